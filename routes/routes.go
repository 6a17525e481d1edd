package routes

import (
	"github.com/gin-gonic/gin"

	"market_data_hub/controllers"
	"market_data_hub/middleware"
	"market_data_hub/services/metrics"
)

// Dependencies are the services the HTTP API is built on.
type Dependencies struct {
	Market      *controllers.MarketController
	Realtime    *controllers.RealtimeController
	RateLimiter *middleware.RateLimiter
	JWTSecret   string
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	router.GET("/metrics", metrics.Handler())
	router.GET("/ws", deps.Realtime.HandleWebSocket)

	// API v1 group
	api := router.Group("/api/v1")
	if deps.RateLimiter != nil {
		api.Use(middleware.RateLimitMiddleware(deps.RateLimiter))
	}
	{
		// Stock routes
		stocks := api.Group("/stocks/:symbol")
		{
			stocks.GET("/quote", deps.Market.GetQuote)
			stocks.GET("/profile", deps.Market.GetProfile)
			stocks.GET("/financials/:statement", deps.Market.GetFinancials)
			stocks.GET("/metrics", deps.Market.GetKeyMetrics)
			stocks.GET("/history", deps.Market.GetHistory)
			stocks.GET("/intraday", deps.Market.GetIntraday)
		}

		// Congressional trading routes
		api.GET("/trades/:chamber", deps.Market.GetTrades)

		// Realtime routes
		api.GET("/realtime/status", deps.Realtime.GetStatus)

		// Admin routes
		admin := api.Group("/admin")
		admin.Use(middleware.JWTAuthMiddleware(deps.JWTSecret), middleware.AdminRoleMiddleware())
		{
			admin.DELETE("/cache/:resource", deps.Market.ClearCache)
		}
	}
}

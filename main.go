package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"market_data_hub/config"
	"market_data_hub/controllers"
	"market_data_hub/middleware"
	"market_data_hub/routes"
	"market_data_hub/scheduler"
	"market_data_hub/services/cache"
	"market_data_hub/services/cache/cachestore"
	"market_data_hub/services/marketdata"
	"market_data_hub/services/provider"
	"market_data_hub/services/realtime"
	"market_data_hub/services/timeseries"
)

// app holds everything that needs an orderly shutdown.
type app struct {
	db         *gorm.DB
	cacheStore cache.Store
	provider   *provider.Client
	hub        *realtime.Hub
	stopHub    context.CancelFunc
	scheduler  *scheduler.Scheduler
}

func main() {
	log.Println("==============================================")
	log.Println("  Market Data Hub - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("ERROR: Config load failed: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Add middlewares
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	a, err := initialize(cfg, router)
	if err != nil {
		log.Fatalf("ERROR: Initialization failed: %v", err)
	}

	setupHealthEndpoints(router, a)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	gracefulShutdown(server, a)
}

// initialize opens the stores, builds the services and registers routes.
func initialize(cfg *config.Config, router *gin.Engine) (*app, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}

	// Run database migrations
	log.Println("Running database migrations...")
	repo, err := timeseries.NewGormRepository(db, timeseries.DefaultUpsertBatchSize)
	if err != nil {
		return nil, fmt.Errorf("history repository: %w", err)
	}
	log.Println("Database migrations completed successfully")

	store, err := openCacheStore(ctx, cfg, db)
	if err != nil {
		return nil, err
	}

	a := &app{db: db, cacheStore: store}

	coord := cache.NewCoordinator(store, cfg.CachePolicies)
	a.provider = provider.NewClient(cfg.ProviderConfig())
	history := timeseries.NewStore(repo, a.provider, cfg.TimeseriesConfig())
	svc := marketdata.NewService(coord, history, a.provider)

	a.hub = realtime.NewHub(svc, cfg.HubConfig())
	hubCtx, stopHub := context.WithCancel(context.Background())
	a.stopHub = stopHub
	go a.hub.Run(hubCtx)

	limiter := middleware.NewRateLimiter(cfg.APIRatePerSec, cfg.APIRateBurst)

	// Setup all API routes
	routes.SetupRoutes(router, routes.Dependencies{
		Market:      controllers.NewMarketController(svc),
		Realtime:    controllers.NewRealtimeController(a.hub),
		RateLimiter: limiter,
		JWTSecret:   cfg.JWTSecret,
	})

	// Start background scheduler
	tsCfg := cfg.TimeseriesConfig()
	a.scheduler = scheduler.NewScheduler(
		scheduler.DefaultConfig(tsCfg.Location, tsCfg.MarketClose),
		coord, svc, a.hub, limiter,
	)
	if err := a.scheduler.Start(); err != nil {
		return nil, err
	}

	log.Println("Application fully initialized")
	return a, nil
}

// openCacheStore connects the durable cache tier selected by CACHE_STORE.
func openCacheStore(ctx context.Context, cfg *config.Config, db *gorm.DB) (cache.Store, error) {
	switch cfg.CacheStore {
	case "redis":
		log.Printf("Cache store: redis at %s", cfg.RedisAddr)
		store, err := cachestore.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("redis cache store: %w", err)
		}
		return store, nil
	case "mongo":
		log.Printf("Cache store: mongodb database %s", cfg.MongoDatabase)
		store, err := cachestore.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("mongo cache store: %w", err)
		}
		return store, nil
	default:
		log.Printf("Cache store: sql (%s)", cfg.DBDriver)
		store, err := cachestore.NewSQLStore(db)
		if err != nil {
			return nil, fmt.Errorf("sql cache store: %w", err)
		}
		return store, nil
	}
}

// setupHealthEndpoints sets up liveness and readiness endpoints
func setupHealthEndpoints(router *gin.Engine, a *app) {
	// Root endpoint
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Market Data Hub",
			"version": "1.0.0",
		})
	})

	// Liveness probe - always returns OK if server is running
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe - checks the database and reports hub state
	router.GET("/ready", func(c *gin.Context) {
		sqlDB, err := a.db.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database connection error",
			})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "ready",
			"realtime": a.hub.Status(),
		})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for probes and scrapes to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(server *http.Server, a *app) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	// Stop scheduler first
	a.scheduler.Stop()

	// Stop broadcasting and drop websocket clients
	a.stopHub()
	a.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if err := a.provider.Close(); err != nil {
		log.Printf("Warning: provider client close: %v", err)
	}
	if err := a.cacheStore.Close(); err != nil {
		log.Printf("Warning: cache store close: %v", err)
	}

	// Close database connection
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
		log.Println("Database connection closed")
	}

	log.Println("Server shutdown completed")
}

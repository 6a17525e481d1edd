package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"market_data_hub/services/realtime"
)

// RealtimeController exposes the websocket hub
type RealtimeController struct {
	hub *realtime.Hub
}

// NewRealtimeController creates a new realtime controller
func NewRealtimeController(hub *realtime.Hub) *RealtimeController {
	return &RealtimeController{hub: hub}
}

// HandleWebSocket upgrades the request and registers the connection
// GET /ws
func (rc *RealtimeController) HandleWebSocket(c *gin.Context) {
	realtime.ServeWS(rc.hub, c.Writer, c.Request)
}

// GetStatus returns hub statistics
// GET /api/v1/realtime/status
func (rc *RealtimeController) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": rc.hub.Status()})
}

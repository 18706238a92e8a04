package gateway

import (
	"github.com/gin-gonic/gin"

	"github.com/bizmatters/mission-dispatch/internal/auth"
	"github.com/bizmatters/mission-dispatch/internal/models"
)

// RegisterRoutes mounts the health probes and the /api surface
func (h *Handler) RegisterRoutes(router *gin.Engine, stream *TopicStream) {
	// Health checks MUST be at the root for the WebService standard
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)

	api := router.Group("/api")

	// Public routes (no authentication required)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)
	api.GET("/health", h.Health)

	// Protected routes (require JWT authentication)
	protected := api.Group("")
	protected.Use(auth.RequireAuth(h.deps.JWTManager))

	company := auth.RequireRole(models.RoleCompany)
	agent := auth.RequireRole(models.RoleAgent)

	// Mission routes
	protected.POST("/missions", company, h.CreateMission)
	protected.GET("/missions/:id", h.GetMission)
	protected.POST("/missions/:id/claim", agent, h.ClaimMission)
	protected.PATCH("/missions/:id/status", agent, h.UpdateStatus)
	protected.POST("/missions/:id/cancel", h.CancelMission)
	protected.POST("/missions/:id/no-show", company, h.MarkNoShow)
	protected.POST("/missions/:id/respond", agent, h.RespondToProposal)
	protected.GET("/missions/:id/logs", h.GetMissionLogs)

	// Tracking routes
	protected.POST("/missions/:id/track", agent, h.ReportLocation)
	protected.GET("/missions/:id/track", h.GetLatestLocation)

	// Agent routes
	protected.GET("/agent/proposals", agent, h.ListProposals)
	protected.POST("/agent/location", agent, h.UpdateAgentLocation)
	protected.DELETE("/agent/location", agent, h.GoOffline)

	// Push registration routes
	protected.POST("/push/subscribe", h.SubscribeWebPush)
	protected.DELETE("/push/subscribe", h.UnsubscribeWebPush)
	protected.POST("/push/devices", h.RegisterDevice)
	protected.DELETE("/push/devices", h.UnregisterDevice)

	// WebSocket routes (authenticated)
	if stream != nil {
		protected.GET("/ws/topics/:topic", stream.Subscribe)
	}
}

package gateway

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bizmatters/mission-dispatch/internal/models"
)

// LocationRequest is a position report from an agent device
type LocationRequest struct {
	Latitude  *float64   `json:"latitude" binding:"required"`
	Longitude *float64   `json:"longitude" binding:"required"`
	Timestamp *time.Time `json:"timestamp"`
}

// TrackResponse reports whether a sample was kept or throttled
type TrackResponse struct {
	Outcome string `json:"outcome"`
}

// ReportLocation godoc
// @Summary Report live location
// @Description Ingest a tracking sample from the assigned agent; samples inside the throttle window are dropped without error
// @Tags tracking
// @Accept json
// @Produce json
// @Param id path string true "Mission ID"
// @Param request body LocationRequest true "Current position"
// @Success 200 {object} TrackResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse "TRACKING_NOT_ACTIVE"
// @Security BearerAuth
// @Router /missions/{id}/track [post]
func (h *Handler) ReportLocation(c *gin.Context) {
	id, ok := missionID(c)
	if !ok {
		return
	}
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}

	var at time.Time
	if req.Timestamp != nil {
		at = *req.Timestamp
	}
	outcome, err := h.deps.Relay.Ingest(c.Request.Context(), id, actor(c).UserID,
		models.Point{Lat: *req.Latitude, Lon: *req.Longitude}, at)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, TrackResponse{Outcome: string(outcome)})
}

// GetLatestLocation godoc
// @Summary Latest live location
// @Tags tracking
// @Produce json
// @Param id path string true "Mission ID"
// @Success 200 {object} tracking.Sample
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /missions/{id}/track [get]
func (h *Handler) GetLatestLocation(c *gin.Context) {
	id, ok := missionID(c)
	if !ok {
		return
	}
	caller := actor(c)

	mission, err := h.deps.Store.GetMission(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if mission.CompanyID != caller.UserID && !mission.AssignedTo(caller.UserID) {
		respondError(c, models.ErrForbidden)
		return
	}

	sample, err := h.deps.Relay.Latest(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sample)
}

// UpdateAgentLocation godoc
// @Summary Publish agent availability position
// @Description Places the calling agent in the dispatch index
// @Tags agent
// @Accept json
// @Param request body LocationRequest true "Current position"
// @Success 204
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /agent/location [post]
func (h *Handler) UpdateAgentLocation(c *gin.Context) {
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	agentID := actor(c).UserID
	err := h.deps.Positions.UpsertPosition(c.Request.Context(), agentID,
		models.Point{Lat: *req.Latitude, Lon: *req.Longitude}, time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GoOffline godoc
// @Summary Leave the dispatch index
// @Tags agent
// @Success 204
// @Security BearerAuth
// @Router /agent/location [delete]
func (h *Handler) GoOffline(c *gin.Context) {
	agentID := actor(c).UserID
	if err := h.deps.Positions.RemovePosition(c.Request.Context(), agentID); err != nil {
		respondError(c, err)
		return
	}
	log.Printf(`{"level":"info","message":"Agent went offline","agent_id":"%s"}`, agentID)
	c.Status(http.StatusNoContent)
}

package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bizmatters/mission-dispatch/internal/models"
)

// CreateMissionRequest represents a mission posted by a company
type CreateMissionRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	Location    string    `json:"location" binding:"required"`
	Latitude    *float64  `json:"latitude" binding:"required"`
	Longitude   *float64  `json:"longitude" binding:"required"`
	StartTime   time.Time `json:"start_time" binding:"required"`
	EndTime     time.Time `json:"end_time" binding:"required"`
}

// CreateMission godoc
// @Summary Create mission
// @Description Persist a PENDING mission, then offer it to nearby agents in the background
// @Tags missions
// @Accept json
// @Produce json
// @Param request body CreateMissionRequest true "Mission details"
// @Success 201 {object} models.Mission
// @Failure 400 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /missions [post]
func (h *Handler) CreateMission(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.create_mission")
	defer span.End()

	var req CreateMissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	company := actor(c)

	decision, err := h.deps.Limiter.Allow(ctx, "mission-create:"+company.UserID, h.deps.CreateLimit, h.deps.CreateWindow)
	if err != nil {
		log.Printf(`{"level":"warn","message":"Mission creation limiter unavailable","user_id":"%s","error":"%v"}`, company.UserID, err)
	} else if !decision.Allowed {
		c.Header("Retry-After", strconv.Itoa(int(decision.ResetIn.Seconds()+0.5)))
		respondError(c, fmt.Errorf("mission creation: %w", models.ErrRateLimited))
		return
	}

	in := models.CreateMissionInput{
		CompanyID:     company.UserID,
		Title:         req.Title,
		Description:   req.Description,
		LocationLabel: req.Location,
		Latitude:      *req.Latitude,
		Longitude:     *req.Longitude,
		StartTime:     req.StartTime.UTC(),
		EndTime:       req.EndTime.UTC(),
	}
	now := time.Now().UTC()
	if err := in.Validate(now); err != nil {
		respondError(c, err)
		return
	}

	mission, err := h.deps.Store.CreateMission(ctx, in, now)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Printf(`{"level":"info","message":"Mission created","mission_id":"%s","company_id":"%s"}`, mission.ID, company.UserID)

	if h.deps.Publisher != nil {
		if err := h.deps.Publisher.Publish(ctx, models.TopicPublicMissions, models.EventMissionCreated, mission); err != nil {
			log.Printf(`{"level":"warn","message":"Failed to broadcast new mission","mission_id":"%s","error":"%v"}`, mission.ID, err)
		}
	}

	h.dispatchInBackground(ctx, mission)
	c.JSON(http.StatusCreated, mission)
}

// dispatchInBackground runs the dispatch detached from the request so a
// slow channel never delays the company's response.
func (h *Handler) dispatchInBackground(ctx context.Context, mission *models.Mission) {
	if h.deps.Dispatcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.deps.DispatchTimeout)
	h.background.Add(1)
	go func() {
		defer h.background.Done()
		defer cancel()
		if _, err := h.deps.Dispatcher.Dispatch(ctx, mission); err != nil {
			log.Printf(`{"level":"error","message":"Dispatch failed","mission_id":"%s","error":"%v"}`, mission.ID, err)
		}
	}()
}

// GetMission godoc
// @Summary Get mission
// @Description Owners and assignees see any mission; agents see missions still open for claims
// @Tags missions
// @Produce json
// @Param id path string true "Mission ID"
// @Success 200 {object} models.Mission
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /missions/{id} [get]
func (h *Handler) GetMission(c *gin.Context) {
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
	open := mission.Status == models.MissionStatusPending && caller.Role == models.RoleAgent
	if mission.CompanyID != caller.UserID && !mission.AssignedTo(caller.UserID) && !open {
		respondError(c, models.ErrForbidden)
		return
	}
	c.JSON(http.StatusOK, mission)
}

// ClaimMission godoc
// @Summary Claim mission
// @Description Assign a PENDING mission to the calling agent
// @Tags missions
// @Produce json
// @Param id path string true "Mission ID"
// @Success 200 {object} models.Mission
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse "ALREADY_CLAIMED or SCHEDULE_CONFLICT"
// @Security BearerAuth
// @Router /missions/{id}/claim [post]
func (h *Handler) ClaimMission(c *gin.Context) {
	id, ok := missionID(c)
	if !ok {
		return
	}
	mission, err := h.deps.Guard.Claim(c.Request.Context(), id, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mission)
}

// UpdateStatusRequest moves a mission forward
type UpdateStatusRequest struct {
	Status    string   `json:"status" binding:"required"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// UpdateStatus godoc
// @Summary Advance mission status
// @Description The assigned agent reports EN_ROUTE, ARRIVED, IN_PROGRESS or COMPLETED
// @Tags missions
// @Accept json
// @Produce json
// @Param id path string true "Mission ID"
// @Param request body UpdateStatusRequest true "Target status and optional position"
// @Success 200 {object} models.Mission
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /missions/{id}/status [patch]
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := missionID(c)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}

	target, err := models.ParseMissionStatus(req.Status)
	if err != nil {
		respondError(c, fmt.Errorf("%w: %q", models.ErrInvalidTransition, req.Status))
		return
	}
	point, err := optionalPoint(req.Latitude, req.Longitude)
	if err != nil {
		respondError(c, err)
		return
	}

	mission, err := h.deps.Guard.Transition(c.Request.Context(), id, actor(c), target, point)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mission)
}

func optionalPoint(lat, lon *float64) (*models.Point, error) {
	if lat == nil && lon == nil {
		return nil, nil
	}
	if lat == nil || lon == nil {
		return nil, fmt.Errorf("%w: latitude and longitude must be sent together", models.ErrValidation)
	}
	return &models.Point{Lat: *lat, Lon: *lon}, nil
}

// CancelMissionRequest ends or releases a mission
type CancelMissionRequest struct {
	Release bool   `json:"release"`
	Reason  string `json:"reason"`
}

// CancelMission godoc
// @Summary Cancel mission
// @Description The owning company or the assigned agent cancels; the agent may release the mission back to PENDING instead
// @Tags missions
// @Accept json
// @Produce json
// @Param id path string true "Mission ID"
// @Param request body CancelMissionRequest false "Cancellation options"
// @Success 200 {object} models.Mission
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /missions/{id}/cancel [post]
func (h *Handler) CancelMission(c *gin.Context) {
	id, ok := missionID(c)
	if !ok {
		return
	}
	var req CancelMissionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
	}

	mission, err := h.deps.Guard.Cancel(c.Request.Context(), id, actor(c), req.Release, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mission)
}

// MarkNoShow godoc
// @Summary Mark agent no-show
// @Tags missions
// @Produce json
// @Param id path string true "Mission ID"
// @Success 200 {object} models.Mission
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /missions/{id}/no-show [post]
func (h *Handler) MarkNoShow(c *gin.Context) {
	id, ok := missionID(c)
	if !ok {
		return
	}
	mission, err := h.deps.Guard.NoShow(c.Request.Context(), id, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mission)
}

// RespondRequest carries an agent's answer to a proposal
type RespondRequest struct {
	Response string `json:"response" binding:"required,oneof=ACCEPTED REJECTED"`
}

// RespondToProposal godoc
// @Summary Answer a mission proposal
// @Description ACCEPTED claims the mission, REJECTED excludes the agent from future dispatches of it
// @Tags missions
// @Accept json
// @Produce json
// @Param id path string true "Mission ID"
// @Param request body RespondRequest true "Answer"
// @Success 200 {object} models.Mission
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /missions/{id}/respond [post]
func (h *Handler) RespondToProposal(c *gin.Context) {
	id, ok := missionID(c)
	if !ok {
		return
	}
	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}

	mission, err := h.deps.Guard.RespondToProposal(c.Request.Context(), id, actor(c), models.NotificationStatus(req.Response))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mission)
}

// GetMissionLogs godoc
// @Summary Mission audit log
// @Description Status transitions in commit order, for the owner or the assignee
// @Tags missions
// @Produce json
// @Param id path string true "Mission ID"
// @Success 200 {array} models.AuditEntry
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /missions/{id}/logs [get]
func (h *Handler) GetMissionLogs(c *gin.Context) {
	id, ok := missionID(c)
	if !ok {
		return
	}
	entries, err := h.deps.Guard.AuditLog(c.Request.Context(), id, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// ListProposals godoc
// @Summary Agent proposal inbox
// @Description Open offers for the calling agent, newest first
// @Tags agent
// @Produce json
// @Success 200 {array} models.AgentProposal
// @Security BearerAuth
// @Router /agent/proposals [get]
func (h *Handler) ListProposals(c *gin.Context) {
	proposals, err := h.deps.Store.ListAgentProposals(c.Request.Context(), actor(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	if proposals == nil {
		proposals = []models.AgentProposal{}
	}
	c.JSON(http.StatusOK, proposals)
}

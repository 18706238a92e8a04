package gateway

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/bizmatters/mission-dispatch/internal/auth"
	"github.com/bizmatters/mission-dispatch/internal/dispatch"
	"github.com/bizmatters/mission-dispatch/internal/geo"
	"github.com/bizmatters/mission-dispatch/internal/lifecycle"
	"github.com/bizmatters/mission-dispatch/internal/models"
	"github.com/bizmatters/mission-dispatch/internal/ratelimit"
	"github.com/bizmatters/mission-dispatch/internal/realtime"
	"github.com/bizmatters/mission-dispatch/internal/store"
	"github.com/bizmatters/mission-dispatch/internal/tracking"
)

// Dispatcher offers a freshly created mission to nearby agents
type Dispatcher interface {
	Dispatch(ctx context.Context, mission *models.Mission) (*dispatch.Result, error)
}

// Dependencies wires the handler to the engine components
type Dependencies struct {
	Store      store.Store
	JWTManager *auth.JWTManager
	Guard      *lifecycle.Guard
	Dispatcher Dispatcher
	Relay      *tracking.Relay
	Positions  geo.Index
	Publisher  realtime.Publisher
	Limiter    ratelimit.Limiter
	// CreateLimit missions per CreateWindow and company
	CreateLimit     int
	CreateWindow    time.Duration
	DispatchTimeout time.Duration
	TokenTTL        time.Duration
}

// Handler handles HTTP requests for the gateway layer
type Handler struct {
	deps       Dependencies
	tracer     trace.Tracer
	background sync.WaitGroup
}

// NewHandler creates a new gateway handler
func NewHandler(deps Dependencies) *Handler {
	if deps.CreateLimit <= 0 {
		deps.CreateLimit = 20
	}
	if deps.CreateWindow <= 0 {
		deps.CreateWindow = time.Minute
	}
	if deps.DispatchTimeout <= 0 {
		deps.DispatchTimeout = 30 * time.Second
	}
	if deps.TokenTTL <= 0 {
		deps.TokenTTL = 24 * time.Hour
	}
	return &Handler{deps: deps, tracer: otel.Tracer("gateway")}
}

// Wait blocks until background dispatches started by the handler finish
func (h *Handler) Wait() {
	h.background.Wait()
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token  string          `json:"token"`
	UserID string          `json:"user_id"`
	Role   string          `json:"role"`
	User   models.UserInfo `json:"user"`
}

// Login godoc
// @Summary User login
// @Description Authenticate an agent or company user and return a JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}

	user, err := h.deps.Store.FindUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		log.Printf(`{"level":"warn","message":"User not found","email":"%s"}`, req.Email)
		writeError(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Invalid email or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		log.Printf(`{"level":"warn","message":"Invalid password","email":"%s"}`, req.Email)
		writeError(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Invalid email or password")
		return
	}

	token, err := h.deps.JWTManager.GenerateToken(
		c.Request.Context(),
		user.ID,
		user.Email,
		user.Name,
		[]string{user.Role},
		h.deps.TokenTTL,
	)
	if err != nil {
		writeError(c, http.StatusInternalServerError, models.ErrCodeInternalError, "Failed to generate token")
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:  token,
		UserID: user.ID,
		Role:   user.Role,
		User:   user.ToUserInfo(),
	})
}

// RefreshResponse carries a re-issued token
type RefreshResponse struct {
	Token string `json:"token"`
}

// RefreshToken godoc
// @Summary Refresh token
// @Description Exchange a still-valid JWT for a new one with a fresh expiry
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} RefreshResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/refresh [post]
func (h *Handler) RefreshToken(c *gin.Context) {
	token, err := auth.TokenFromRequest(c)
	if err != nil {
		writeError(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, err.Error())
		return
	}

	refreshed, err := h.deps.JWTManager.RefreshToken(c.Request.Context(), token, h.deps.TokenTTL)
	if err != nil {
		log.Printf(`{"level":"warn","message":"Token refresh rejected","security":true,"error":"%v"}`, err)
		writeError(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Invalid or expired token")
		return
	}

	c.JSON(http.StatusOK, RefreshResponse{Token: refreshed})
}

// Health godoc
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready godoc
// @Summary Readiness probe
// @Description Reports ready once the mission store answers
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /ready [get]
func (h *Handler) Ready(c *gin.Context) {
	if err := h.deps.Store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  "database connection failed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// actor returns the authenticated caller; RequireAuth guarantees claims
func actor(c *gin.Context) models.Actor {
	claims, ok := auth.CurrentClaims(c)
	if !ok {
		return models.Actor{}
	}
	return auth.ActorFromClaims(claims)
}

// missionID validates the :id path parameter
func missionID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		badRequest(c, "Invalid mission ID")
		return "", false
	}
	return id, true
}

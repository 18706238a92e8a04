package gateway

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bizmatters/mission-dispatch/internal/models"
)

// respondError maps domain errors to the API error shape. Conflicts are
// reported as 409 with a machine code so clients can tell "already taken"
// from "try again later".
func respondError(c *gin.Context, err error) {
	var conflict *models.ScheduleConflictError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error: "Agent already has an overlapping mission",
			Code:  models.ErrCodeScheduleConflict,
			Details: map[string]string{
				"mission_id": conflict.MissionID,
				"title":      conflict.Title,
				"start_time": conflict.Window.Start.UTC().Format(time.RFC3339),
				"end_time":   conflict.Window.End.UTC().Format(time.RFC3339),
			},
		})
	case errors.Is(err, models.ErrAlreadyClaimed):
		writeError(c, http.StatusConflict, models.ErrCodeAlreadyClaimed, "Mission already claimed")
	case errors.Is(err, models.ErrAlreadyTerminal):
		writeError(c, http.StatusConflict, models.ErrCodeAlreadyTerminal, "Mission already finished")
	case errors.Is(err, models.ErrTrackingNotActive):
		writeError(c, http.StatusConflict, models.ErrCodeTrackingNotActive, "Tracking is not active for this mission")
	case errors.Is(err, models.ErrNotFound):
		writeError(c, http.StatusNotFound, models.ErrCodeNotFound, "Not found")
	case errors.Is(err, models.ErrNotAssigned):
		writeError(c, http.StatusForbidden, models.ErrCodeNotAssigned, "Mission is not assigned to you")
	case errors.Is(err, models.ErrForbidden):
		writeError(c, http.StatusForbidden, models.ErrCodeForbidden, "Forbidden")
	case errors.Is(err, models.ErrInvalidTransition):
		writeError(c, http.StatusBadRequest, models.ErrCodeInvalidTransition, err.Error())
	case errors.Is(err, models.ErrInvalidCoordinate):
		writeError(c, http.StatusBadRequest, models.ErrCodeInvalidCoordinate, err.Error())
	case errors.Is(err, models.ErrValidation):
		writeError(c, http.StatusBadRequest, models.ErrCodeValidationFailed, err.Error())
	case errors.Is(err, models.ErrRateLimited):
		writeError(c, http.StatusTooManyRequests, models.ErrCodeRateLimitExceeded, "Too many requests")
	default:
		log.Printf(`{"level":"error","message":"Request failed","path":"%s","error":"%v"}`, c.Request.URL.Path, err)
		writeError(c, http.StatusInternalServerError, models.ErrCodeInternalError, "Internal server error")
	}
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{Error: message, Code: code})
}

func badRequest(c *gin.Context, message string) {
	writeError(c, http.StatusBadRequest, models.ErrCodeInvalidRequest, message)
}

package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeAlreadyClaimed    = "ALREADY_CLAIMED"
	ErrCodeScheduleConflict  = "SCHEDULE_CONFLICT"
	ErrCodeNotAssigned       = "NOT_ASSIGNED"
	ErrCodeAlreadyTerminal   = "ALREADY_TERMINAL"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeTrackingNotActive = "TRACKING_NOT_ACTIVE"
	ErrCodeInvalidCoordinate = "INVALID_COORDINATE"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
)

// Domain errors shared by the store, the guard and the relay
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyClaimed    = errors.New("mission already claimed")
	ErrScheduleConflict  = errors.New("schedule conflict")
	ErrNotAssigned       = errors.New("mission not assigned to this agent")
	ErrAlreadyTerminal   = errors.New("mission already terminal")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTrackingNotActive = errors.New("tracking not active for mission")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrValidation        = errors.New("validation failed")
	ErrRateLimited       = errors.New("rate limit exceeded")
)

// ScheduleConflictError reports the active mission that overlaps a claim
type ScheduleConflictError struct {
	MissionID string
	Title     string
	Window    Window
}

func (e *ScheduleConflictError) Error() string {
	return fmt.Sprintf("schedule conflict with mission %s (%s) from %s to %s",
		e.MissionID, e.Title,
		e.Window.Start.UTC().Format(time.RFC3339), e.Window.End.UTC().Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrScheduleConflict) hold
func (e *ScheduleConflictError) Is(target error) bool {
	return target == ErrScheduleConflict
}

// IsConflict reports whether err is an expected business conflict rather than a server fault
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyClaimed) ||
		errors.Is(err, ErrScheduleConflict) ||
		errors.Is(err, ErrAlreadyTerminal)
}

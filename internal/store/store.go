// Package store defines the durable system of record consumed by the
// dispatch engine and ships Postgres and in-memory implementations.
package store

import (
	"context"
	"time"

	"github.com/bizmatters/mission-dispatch/internal/models"
)

// ClaimRequest asks the store to assign a PENDING mission to an agent.
// The overlap check against the agent's booking-active missions and the
// conditional write run as one unit.
type ClaimRequest struct {
	MissionID   string
	AgentID     string
	ActorUserID string
	Note        string
	Now         time.Time
}

// StatusChange asks the store to move a mission to NewStatus.
// Check runs against the row as locked for the write; a non-nil error
// aborts the change and is returned unchanged.
type StatusChange struct {
	MissionID    string
	ActorUserID  string
	NewStatus    models.MissionStatus
	Latitude     *float64
	Longitude    *float64
	ReleaseAgent bool
	Note         string
	Now          time.Time
	Check        func(current *models.Mission) error
}

// TransitionResult is the committed outcome of a status change
type TransitionResult struct {
	Previous *models.Mission
	Mission  *models.Mission
	Audit    models.AuditEntry
}

// MissionStore persists missions and their audit trail
type MissionStore interface {
	CreateMission(ctx context.Context, in models.CreateMissionInput, now time.Time) (*models.Mission, error)
	GetMission(ctx context.Context, missionID string) (*models.Mission, error)
	ClaimMission(ctx context.Context, req ClaimRequest) (*TransitionResult, error)
	ChangeStatus(ctx context.Context, req StatusChange) (*TransitionResult, error)
	ListAuditEntries(ctx context.Context, missionID string) ([]models.AuditEntry, error)
}

// NotificationStore persists per-candidate mission offers
type NotificationStore interface {
	// UpsertNotification creates a SENT row or returns the existing one untouched
	UpsertNotification(ctx context.Context, missionID, agentID string, now time.Time) (*models.Notification, bool, error)
	SetNotificationStatus(ctx context.Context, missionID, agentID string, status models.NotificationStatus, now time.Time) (*models.Notification, error)
	ListNotificationAgents(ctx context.Context, missionID string, status models.NotificationStatus) ([]string, error)
	ListAgentProposals(ctx context.Context, agentID string) ([]models.AgentProposal, error)
}

// TargetStore is the push registration set of each user
type TargetStore interface {
	ListTargets(ctx context.Context, userID string) ([]models.PushTarget, error)
	SaveTarget(ctx context.Context, target models.PushTarget) error
	RemoveTarget(ctx context.Context, target models.PushTarget) error
}

// UserStore resolves accounts for login and display names
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) (string, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Store is everything the service needs from persistence
type Store interface {
	MissionStore
	NotificationStore
	TargetStore
	UserStore
	Ping(ctx context.Context) error
}

func statusStrings(statuses []models.MissionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

package models

import (
	"time"
)

// NotificationStatus represents an agent's answer to a mission offer
type NotificationStatus string

const (
	NotificationStatusSent     NotificationStatus = "SENT"
	NotificationStatusAccepted NotificationStatus = "ACCEPTED"
	NotificationStatusRejected NotificationStatus = "REJECTED"
)

// Notification records that a mission was offered to one candidate agent.
// At most one row exists per (MissionID, AgentID).
type Notification struct {
	ID        string             `json:"id" db:"id"`
	MissionID string             `json:"mission_id" db:"mission_id"`
	AgentID   string             `json:"agent_id" db:"agent_id"`
	Status    NotificationStatus `json:"status" db:"status"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" db:"updated_at"`
}

// AgentProposal is a SENT notification joined with its mission for the agent inbox
type AgentProposal struct {
	Notification Notification `json:"notification"`
	Mission      Mission      `json:"mission"`
}

// AuditEntry is an immutable record of one committed status transition
type AuditEntry struct {
	ID             string        `json:"id" db:"id"`
	Seq            int64         `json:"seq" db:"seq"`
	MissionID      string        `json:"mission_id" db:"mission_id"`
	ActorUserID    string        `json:"actor_user_id" db:"actor_user_id"`
	PreviousStatus MissionStatus `json:"previous_status" db:"previous_status"`
	NewStatus      MissionStatus `json:"new_status" db:"new_status"`
	Latitude       *float64      `json:"latitude,omitempty" db:"latitude"`
	Longitude      *float64      `json:"longitude,omitempty" db:"longitude"`
	Note           string        `json:"note,omitempty" db:"note"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

package models

import (
	"time"
)

// Realtime event names
const (
	EventMissionNew       = "mission:new"
	EventMissionCreated   = "mission:created"
	EventMissionAccepted  = "mission:accepted"
	EventMissionStatus    = "mission:status"
	EventMissionCancelled = "mission:cancelled"
	EventAgentLocation    = "agent:location"
)

// Topic names consumed by realtime clients
const (
	TopicPublicMissions = "public-missions"
	TopicUserPrefix     = "private-user-"
	TopicMissionPrefix  = "private-mission-"
)

// UserTopic returns the private topic of one user
func UserTopic(userID string) string {
	return TopicUserPrefix + userID
}

// MissionTopic returns the observer topic of one mission
func MissionTopic(missionID string) string {
	return TopicMissionPrefix + missionID
}

// ProposalPayload is sent to each candidate agent when a mission is offered
type ProposalPayload struct {
	MissionID string    `json:"mission_id"`
	Title     string    `json:"title"`
	Location  string    `json:"location"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Link      string    `json:"link"`
}

// StatusChangePayload is sent to the counterparty after every committed transition
type StatusChangePayload struct {
	MissionID      string        `json:"mission_id"`
	Title          string        `json:"title"`
	PreviousStatus MissionStatus `json:"previous_status"`
	NewStatus      MissionStatus `json:"new_status"`
	ActorName      string        `json:"actor_name"`
	Location       string        `json:"location"`
	Timestamp      time.Time     `json:"timestamp"`
}

// LocationPayload is relayed on the mission topic for each accepted tracking sample
type LocationPayload struct {
	MissionID string    `json:"mission_id"`
	AgentID   string    `json:"agent_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

package models

import (
	"fmt"
	"math"
	"time"
)

// MissionStatus represents the lifecycle state of a mission
type MissionStatus string

const (
	MissionStatusPending    MissionStatus = "PENDING"
	MissionStatusAccepted   MissionStatus = "ACCEPTED"
	MissionStatusEnRoute    MissionStatus = "EN_ROUTE"
	MissionStatusArrived    MissionStatus = "ARRIVED"
	MissionStatusInProgress MissionStatus = "IN_PROGRESS"
	MissionStatusCompleted  MissionStatus = "COMPLETED"
	MissionStatusCancelled  MissionStatus = "CANCELLED"
	MissionStatusNoShow     MissionStatus = "NO_SHOW"
)

// AllMissionStatuses lists every known status in lifecycle order
var AllMissionStatuses = []MissionStatus{
	MissionStatusPending,
	MissionStatusAccepted,
	MissionStatusEnRoute,
	MissionStatusArrived,
	MissionStatusInProgress,
	MissionStatusCompleted,
	MissionStatusCancelled,
	MissionStatusNoShow,
}

// BookingActiveStatuses are the statuses that occupy an agent's schedule
var BookingActiveStatuses = []MissionStatus{
	MissionStatusAccepted,
	MissionStatusEnRoute,
	MissionStatusArrived,
	MissionStatusInProgress,
}

// TrackingActiveStatuses are the statuses during which live location is relayed
var TrackingActiveStatuses = []MissionStatus{
	MissionStatusEnRoute,
	MissionStatusArrived,
	MissionStatusInProgress,
}

// ParseMissionStatus validates a raw status string
func ParseMissionStatus(raw string) (MissionStatus, error) {
	for _, s := range AllMissionStatuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown mission status %q", ErrValidation, raw)
}

// IsTerminal reports whether no further transition is allowed
func (s MissionStatus) IsTerminal() bool {
	switch s {
	case MissionStatusCompleted, MissionStatusCancelled, MissionStatusNoShow:
		return true
	}
	return false
}

// IsBookingActive reports whether the status blocks the agent's time window
func (s MissionStatus) IsBookingActive() bool {
	return containsStatus(BookingActiveStatuses, s)
}

// IsTrackingActive reports whether live tracking samples are accepted
func (s MissionStatus) IsTrackingActive() bool {
	return containsStatus(TrackingActiveStatuses, s)
}

func containsStatus(set []MissionStatus, s MissionStatus) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}

// Point is a WGS84 coordinate
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Validate checks the coordinate range. NaN and infinities are rejected.
func (p Point) Validate() error {
	if !isFinite(p.Lat) || !isFinite(p.Lon) {
		return fmt.Errorf("%w: (%f, %f) is not a finite coordinate", ErrInvalidCoordinate, p.Lat, p.Lon)
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: (%f, %f)", ErrInvalidCoordinate, p.Lat, p.Lon)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Mission represents a bounded-time security job posted by a company.
// CompanyID is the user id of the owning company account.
type Mission struct {
	ID            string        `json:"id" db:"id"`
	CompanyID     string        `json:"company_id" db:"company_id"`
	AgentID       *string       `json:"agent_id,omitempty" db:"agent_id"`
	Title         string        `json:"title" db:"title"`
	Description   string        `json:"description,omitempty" db:"description"`
	LocationLabel string        `json:"location" db:"location_label"`
	Latitude      float64       `json:"latitude" db:"latitude"`
	Longitude     float64       `json:"longitude" db:"longitude"`
	LastLatitude  *float64      `json:"last_latitude,omitempty" db:"last_latitude"`
	LastLongitude *float64      `json:"last_longitude,omitempty" db:"last_longitude"`
	Status        MissionStatus `json:"status" db:"status"`
	StartTime     time.Time     `json:"start_time" db:"start_time"`
	EndTime       time.Time     `json:"end_time" db:"end_time"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// Point returns the mission's target coordinate
func (m *Mission) Point() Point {
	return Point{Lat: m.Latitude, Lon: m.Longitude}
}

// AssignedTo reports whether agentID is the mission's assigned agent
func (m *Mission) AssignedTo(agentID string) bool {
	return m.AgentID != nil && *m.AgentID == agentID
}

// Overlaps applies the half-open interval test against [start, end)
func (m *Mission) Overlaps(start, end time.Time) bool {
	return m.StartTime.Before(end) && m.EndTime.After(start)
}

// Clone returns a deep copy safe to hand across goroutines
func (m *Mission) Clone() *Mission {
	c := *m
	if m.AgentID != nil {
		id := *m.AgentID
		c.AgentID = &id
	}
	if m.LastLatitude != nil {
		v := *m.LastLatitude
		c.LastLatitude = &v
	}
	if m.LastLongitude != nil {
		v := *m.LastLongitude
		c.LastLongitude = &v
	}
	return &c
}

// Window is a half-open time interval
type Window struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
}

// CreateMissionInput carries the fields a company submits
type CreateMissionInput struct {
	CompanyID     string
	Title         string
	Description   string
	LocationLabel string
	Latitude      float64
	Longitude     float64
	StartTime     time.Time
	EndTime       time.Time
}

// Validate enforces field presence, coordinate range and window ordering
func (in CreateMissionInput) Validate(now time.Time) error {
	if l := len([]rune(in.Title)); l < 5 || l > 100 {
		return fmt.Errorf("%w: title must be between 5 and 100 characters", ErrValidation)
	}
	if len([]rune(in.LocationLabel)) < 5 {
		return fmt.Errorf("%w: location is required", ErrValidation)
	}
	if err := (Point{Lat: in.Latitude, Lon: in.Longitude}).Validate(); err != nil {
		return err
	}
	if !in.StartTime.After(now) {
		return fmt.Errorf("%w: start time must be in the future", ErrValidation)
	}
	if !in.EndTime.After(in.StartTime) {
		return fmt.Errorf("%w: end time must be after start time", ErrValidation)
	}
	return nil
}

package helpers

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bizmatters/mission-dispatch/internal/models"
)

// Paris is the reference dispatch point used across scenario tests
var Paris = models.Point{Lat: 48.8566, Lon: 2.3522}

// kmPerDegreeLat is one degree of latitude on the 6371 km sphere
const kmPerDegreeLat = 111.19492664455873

// NorthOf returns the point km kilometres due north of p
func NorthOf(p models.Point, km float64) models.Point {
	return models.Point{Lat: p.Lat + km/kmPerDegreeLat, Lon: p.Lon}
}

// TestUser represents a test user fixture
type TestUser struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Default test fixtures
var (
	DefaultCompany = TestUser{
		Email:    "company@example.com",
		Password: "company-password-123",
		Role:     models.RoleCompany,
	}

	DefaultAgent = TestUser{
		Email:    "agent@example.com",
		Password: "agent-password-123",
		Role:     models.RoleAgent,
	}
)

var emailSeq atomic.Int64

// UniqueEmail returns an address that will not collide with earlier rows
func UniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d-%d@example.com", prefix, time.Now().UnixNano(), emailSeq.Add(1))
}

// MissionInput builds a valid creation request at point p spanning [start, end)
func MissionInput(companyID string, p models.Point, start, end time.Time) models.CreateMissionInput {
	return models.CreateMissionInput{
		CompanyID:     companyID,
		Title:         "Night patrol",
		Description:   "Perimeter patrol of the warehouse",
		LocationLabel: "Paris, Ile-de-France",
		Latitude:      p.Lat,
		Longitude:     p.Lon,
		StartTime:     start,
		EndTime:       end,
	}
}

// Mission builds a stored mission fixture for the in-memory store
func Mission(id, companyID string, status models.MissionStatus, agentID string, start, end time.Time) *models.Mission {
	m := &models.Mission{
		ID:            id,
		CompanyID:     companyID,
		Title:         "Mission " + id,
		LocationLabel: "Paris, Ile-de-France",
		Latitude:      Paris.Lat,
		Longitude:     Paris.Lon,
		Status:        status,
		StartTime:     start,
		EndTime:       end,
		CreatedAt:     start.Add(-24 * time.Hour),
		UpdatedAt:     start.Add(-24 * time.Hour),
	}
	if agentID != "" {
		m.AgentID = &agentID
	}
	return m
}

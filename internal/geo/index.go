// Package geo keeps the ephemeral agent position index used to pick
// dispatch candidates.
package geo

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/bizmatters/mission-dispatch/internal/models"
)

// EarthRadiusKm is the mean radius used for great-circle distances
const EarthRadiusKm = 6371.0

// MaxIndexLatitude is the Web Mercator bound of the Redis GEO encoding.
// Every backend refuses to store positions beyond it.
const MaxIndexLatitude = 85.05112878

// Candidate is an agent found by a radius query
type Candidate struct {
	AgentID    string  `json:"agent_id"`
	DistanceKm float64 `json:"distance_km"`
}

// Position is the last reported point of an agent
type Position struct {
	AgentID   string       `json:"agent_id"`
	Point     models.Point `json:"point"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Index maps agents to their last known coordinate. Implementations are
// overwrite-in-place and make no durability promise.
type Index interface {
	// UpsertPosition overwrites the agent's point; out-of-range input,
	// including latitudes beyond MaxIndexLatitude, fails with ErrInvalidCoordinate
	UpsertPosition(ctx context.Context, agentID string, p models.Point, at time.Time) error
	// QueryWithinRadius returns agents within radiusKm, nearest first, ties by agent id
	QueryWithinRadius(ctx context.Context, center models.Point, radiusKm float64) ([]Candidate, error)
	RemovePosition(ctx context.Context, agentID string) error
	GetPosition(ctx context.Context, agentID string) (*Position, error)
}

// validateIndexable checks p against the storable range of the index
func validateIndexable(p models.Point) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if math.Abs(p.Lat) > MaxIndexLatitude {
		return fmt.Errorf("%w: latitude %f is outside the Web Mercator range ±%.8f supported by the position index",
			models.ErrInvalidCoordinate, p.Lat, MaxIndexLatitude)
	}
	return nil
}

// DistanceKm is the haversine distance between two points
func DistanceKm(a, b models.Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].DistanceKm != candidates[j].DistanceKm {
			return candidates[i].DistanceKm < candidates[j].DistanceKm
		}
		return candidates[i].AgentID < candidates[j].AgentID
	})
}

// AgentIDs flattens candidates to their ids, preserving order
func AgentIDs(candidates []Candidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.AgentID
	}
	return ids
}

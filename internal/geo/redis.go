package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bizmatters/mission-dispatch/internal/models"
)

const (
	defaultPositionsKey = "dispatch:agents:geo"
	defaultSeenKey      = "dispatch:agents:seen"

	// redisEarthRadiusKm is the radius Redis uses for GEO distances
	redisEarthRadiusKm = 6372.797560856
)

// RedisIndex stores positions in a Redis GEO set so every API replica
// sees the same agents. Update times live in a companion hash.
type RedisIndex struct {
	client       redis.UniversalClient
	positionsKey string
	seenKey      string
}

var _ Index = (*RedisIndex)(nil)

func NewRedisIndex(client redis.UniversalClient) *RedisIndex {
	return &RedisIndex{
		client:       client,
		positionsKey: defaultPositionsKey,
		seenKey:      defaultSeenKey,
	}
}

func (idx *RedisIndex) UpsertPosition(ctx context.Context, agentID string, p models.Point, at time.Time) error {
	if err := validateIndexable(p); err != nil {
		return err
	}
	pipe := idx.client.TxPipeline()
	pipe.GeoAdd(ctx, idx.positionsKey, &redis.GeoLocation{
		Name:      agentID,
		Longitude: p.Lon,
		Latitude:  p.Lat,
	})
	pipe.HSet(ctx, idx.seenKey, agentID, at.UnixMilli())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert agent position: %w", err)
	}
	return nil
}

// QueryWithinRadius re-sorts the Redis reply because GEORADIUS orders by
// distance only and leaves ties unspecified. A center beyond
// MaxIndexLatitude is searched from the nearest storable latitude with a
// widened radius, then filtered on the true distance.
func (idx *RedisIndex) QueryWithinRadius(ctx context.Context, center models.Point, radiusKm float64) ([]Candidate, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	search := center
	search.Lat = math.Max(-MaxIndexLatitude, math.Min(MaxIndexLatitude, center.Lat))
	clamped := search.Lat != center.Lat

	query := &redis.GeoRadiusQuery{
		Radius:   radiusKm,
		Unit:     "km",
		WithDist: true,
		Sort:     "ASC",
	}
	if clamped {
		query.Radius = (radiusKm + DistanceKm(center, search)) * redisEarthRadiusKm / EarthRadiusKm
		query.WithCoord = true
	}
	locations, err := idx.client.GeoRadius(ctx, idx.positionsKey, search.Lon, search.Lat, query).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query agent positions: %w", err)
	}

	candidates := make([]Candidate, 0, len(locations))
	for _, loc := range locations {
		dist := loc.Dist
		if clamped {
			dist = DistanceKm(center, models.Point{Lat: loc.Latitude, Lon: loc.Longitude})
			if dist > radiusKm {
				continue
			}
		}
		candidates = append(candidates, Candidate{AgentID: loc.Name, DistanceKm: dist})
	}
	sortCandidates(candidates)
	return candidates, nil
}

func (idx *RedisIndex) RemovePosition(ctx context.Context, agentID string) error {
	pipe := idx.client.TxPipeline()
	pipe.ZRem(ctx, idx.positionsKey, agentID)
	pipe.HDel(ctx, idx.seenKey, agentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove agent position: %w", err)
	}
	return nil
}

func (idx *RedisIndex) GetPosition(ctx context.Context, agentID string) (*Position, error) {
	points, err := idx.client.GeoPos(ctx, idx.positionsKey, agentID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read agent position: %w", err)
	}
	if len(points) == 0 || points[0] == nil {
		return nil, fmt.Errorf("position of %s: %w", agentID, models.ErrNotFound)
	}

	pos := &Position{
		AgentID: agentID,
		Point:   models.Point{Lat: points[0].Latitude, Lon: points[0].Longitude},
	}
	raw, err := idx.client.HGet(ctx, idx.seenKey, agentID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read agent position time: %w", err)
	}
	if ms, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
		pos.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return pos, nil
}

package tracking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bizmatters/mission-dispatch/internal/models"
)

// Sample is the latest reported point of the agent on an active mission
type Sample struct {
	MissionID string    `json:"mission_id"`
	AgentID   string    `json:"agent_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// SampleStore keeps one sample per mission, most recent write wins
type SampleStore interface {
	Save(ctx context.Context, s Sample) error
	// Latest returns ErrNotFound when the mission has no live sample
	Latest(ctx context.Context, missionID string) (*Sample, error)
	Delete(ctx context.Context, missionID string) error
}

// MemorySampleStore is the single-process SampleStore
type MemorySampleStore struct {
	mu      sync.RWMutex
	samples map[string]Sample
}

var _ SampleStore = (*MemorySampleStore)(nil)

func NewMemorySampleStore() *MemorySampleStore {
	return &MemorySampleStore{samples: make(map[string]Sample)}
}

func (m *MemorySampleStore) Save(ctx context.Context, s Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[s.MissionID] = s
	return nil
}

func (m *MemorySampleStore) Latest(ctx context.Context, missionID string) (*Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.samples[missionID]
	if !ok {
		return nil, fmt.Errorf("sample for mission %s: %w", missionID, models.ErrNotFound)
	}
	return &s, nil
}

func (m *MemorySampleStore) Delete(ctx context.Context, missionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.samples, missionID)
	return nil
}

// RedisSampleStore keeps samples in per-mission hashes that expire on
// their own if a mission is never stopped.
type RedisSampleStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ SampleStore = (*RedisSampleStore)(nil)

func NewRedisSampleStore(client redis.UniversalClient) *RedisSampleStore {
	return &RedisSampleStore{client: client, prefix: "dispatch:track:", ttl: 12 * time.Hour}
}

func (r *RedisSampleStore) key(missionID string) string {
	return r.prefix + missionID
}

func (r *RedisSampleStore) Save(ctx context.Context, s Sample) error {
	key := r.key(s.MissionID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key,
		"agent_id", s.AgentID,
		"lat", strconv.FormatFloat(s.Latitude, 'f', -1, 64),
		"lon", strconv.FormatFloat(s.Longitude, 'f', -1, 64),
		"ts", s.Timestamp.UnixMilli(),
	)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save tracking sample: %w", err)
	}
	return nil
}

func (r *RedisSampleStore) Latest(ctx context.Context, missionID string) (*Sample, error) {
	fields, err := r.client.HGetAll(ctx, r.key(missionID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load tracking sample: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("sample for mission %s: %w", missionID, models.ErrNotFound)
	}

	lat, err := strconv.ParseFloat(fields["lat"], 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sample latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(fields["lon"], 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sample longitude: %w", err)
	}
	ms, err := strconv.ParseInt(fields["ts"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sample timestamp: %w", err)
	}

	return &Sample{
		MissionID: missionID,
		AgentID:   fields["agent_id"],
		Latitude:  lat,
		Longitude: lon,
		Timestamp: time.UnixMilli(ms).UTC(),
	}, nil
}

func (r *RedisSampleStore) Delete(ctx context.Context, missionID string) error {
	if err := r.client.Del(ctx, r.key(missionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete tracking sample: %w", err)
	}
	return nil
}

package geo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bizmatters/mission-dispatch/internal/models"
)

// MemoryIndex is a process-local Index with a linear radius scan
type MemoryIndex struct {
	mu        sync.RWMutex
	positions map[string]Position
}

var _ Index = (*MemoryIndex)(nil)

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{positions: make(map[string]Position)}
}

func (idx *MemoryIndex) UpsertPosition(ctx context.Context, agentID string, p models.Point, at time.Time) error {
	if err := validateIndexable(p); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.positions[agentID] = Position{AgentID: agentID, Point: p, UpdatedAt: at}
	return nil
}

func (idx *MemoryIndex) QueryWithinRadius(ctx context.Context, center models.Point, radiusKm float64) ([]Candidate, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var candidates []Candidate
	for id, pos := range idx.positions {
		if d := DistanceKm(center, pos.Point); d <= radiusKm {
			candidates = append(candidates, Candidate{AgentID: id, DistanceKm: d})
		}
	}
	sortCandidates(candidates)
	return candidates, nil
}

func (idx *MemoryIndex) RemovePosition(ctx context.Context, agentID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.positions, agentID)
	return nil
}

func (idx *MemoryIndex) GetPosition(ctx context.Context, agentID string) (*Position, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	pos, ok := idx.positions[agentID]
	if !ok {
		return nil, fmt.Errorf("position of %s: %w", agentID, models.ErrNotFound)
	}
	return &pos, nil
}

// Package ratelimit provides fixed-window limiters behind one interface so
// callers pick a backend at construction time.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Limiter admits at most limit events per key in each window
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

type bucket struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a process-local fixed-window limiter
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter() *MemoryLimiter {
	return NewMemoryLimiterWithClock(time.Now)
}

// NewMemoryLimiterWithClock lets tests drive the window boundaries
func NewMemoryLimiterWithClock(now func() time.Time) *MemoryLimiter {
	return &MemoryLimiter{buckets: make(map[string]*bucket), now: now}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(window)}
		l.buckets[key] = b
		l.sweepLocked(now)
	}

	if b.count >= limit {
		return Decision{Allowed: false, ResetIn: b.resetAt.Sub(now)}, nil
	}
	b.count++
	return Decision{Allowed: true, Remaining: limit - b.count, ResetIn: b.resetAt.Sub(now)}, nil
}

// sweepLocked drops expired buckets once the map grows
func (l *MemoryLimiter) sweepLocked(now time.Time) {
	if len(l.buckets) < 1024 {
		return
	}
	for key, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, key)
		}
	}
}

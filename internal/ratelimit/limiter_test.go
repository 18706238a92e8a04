package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiterWithClock(clock.Now)

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "company-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d, err := l.Allow(ctx, "company-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.ResetIn)

	other, err := l.Allow(ctx, "company-2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	clock.Advance(time.Minute)
	d, err = l.Allow(ctx, "company-1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryLimiter_TrackingThrottle(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiterWithClock(clock.Now)

	first, err := l.Allow(ctx, "track:a1", 1, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	clock.Advance(2 * time.Second)
	second, err := l.Allow(ctx, "track:a1", 1, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, second.Allowed)

	clock.Advance(4 * time.Second)
	third, err := l.Allow(ctx, "track:a1", 1, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, third.Allowed)
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	l := NewRedisLimiter(client)

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "company-1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := l.Allow(ctx, "company-1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.ResetIn, time.Duration(0))

	mr.FastForward(time.Minute)
	d, err = l.Allow(ctx, "company-1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

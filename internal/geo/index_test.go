package geo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/mission-dispatch/internal/models"
	"github.com/bizmatters/mission-dispatch/tests/helpers"
)

func newRedisIndex(t *testing.T) *RedisIndex {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisIndex(client)
}

func TestDistanceKm(t *testing.T) {
	assert.InDelta(t, 1.0, DistanceKm(helpers.Paris, helpers.NorthOf(helpers.Paris, 1)), 1e-6)
	assert.InDelta(t, 12.0, DistanceKm(helpers.Paris, helpers.NorthOf(helpers.Paris, 12)), 1e-6)
	assert.Zero(t, DistanceKm(helpers.Paris, helpers.Paris))
}

func TestIndexImplementations(t *testing.T) {
	implementations := map[string]func(t *testing.T) Index{
		"memory": func(t *testing.T) Index { return NewMemoryIndex() },
		"redis":  func(t *testing.T) Index { return newRedisIndex(t) },
	}

	for name, build := range implementations {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC)

			t.Run("radius query is nearest first", func(t *testing.T) {
				idx := build(t)
				require.NoError(t, idx.UpsertPosition(ctx, "far", helpers.NorthOf(helpers.Paris, 12), now))
				require.NoError(t, idx.UpsertPosition(ctx, "mid", helpers.NorthOf(helpers.Paris, 5), now))
				require.NoError(t, idx.UpsertPosition(ctx, "near", helpers.NorthOf(helpers.Paris, 1), now))

				got, err := idx.QueryWithinRadius(ctx, helpers.Paris, 10)
				require.NoError(t, err)
				assert.Equal(t, []string{"near", "mid"}, AgentIDs(got))
				assert.InDelta(t, 1.0, got[0].DistanceKm, 0.01)
			})

			t.Run("ties are broken by agent id", func(t *testing.T) {
				idx := build(t)
				p := helpers.NorthOf(helpers.Paris, 2)
				require.NoError(t, idx.UpsertPosition(ctx, "b-agent", p, now))
				require.NoError(t, idx.UpsertPosition(ctx, "a-agent", p, now))
				require.NoError(t, idx.UpsertPosition(ctx, "c-agent", p, now))

				got, err := idx.QueryWithinRadius(ctx, helpers.Paris, 10)
				require.NoError(t, err)
				assert.Equal(t, []string{"a-agent", "b-agent", "c-agent"}, AgentIDs(got))
			})

			t.Run("upsert overwrites and remove forgets", func(t *testing.T) {
				idx := build(t)
				require.NoError(t, idx.UpsertPosition(ctx, "a1", helpers.NorthOf(helpers.Paris, 20), now))
				require.NoError(t, idx.UpsertPosition(ctx, "a1", helpers.NorthOf(helpers.Paris, 3), now.Add(time.Minute)))

				got, err := idx.QueryWithinRadius(ctx, helpers.Paris, 10)
				require.NoError(t, err)
				assert.Equal(t, []string{"a1"}, AgentIDs(got))

				pos, err := idx.GetPosition(ctx, "a1")
				require.NoError(t, err)
				assert.InDelta(t, helpers.NorthOf(helpers.Paris, 3).Lat, pos.Point.Lat, 1e-4)
				assert.True(t, pos.UpdatedAt.Equal(now.Add(time.Minute)))

				require.NoError(t, idx.RemovePosition(ctx, "a1"))
				got, err = idx.QueryWithinRadius(ctx, helpers.Paris, 10)
				require.NoError(t, err)
				assert.Empty(t, got)

				_, err = idx.GetPosition(ctx, "a1")
				assert.ErrorIs(t, err, models.ErrNotFound)
			})

			t.Run("out of range coordinates are rejected", func(t *testing.T) {
				idx := build(t)
				err := idx.UpsertPosition(ctx, "a1", models.Point{Lat: 91, Lon: 0}, now)
				assert.ErrorIs(t, err, models.ErrInvalidCoordinate)
				err = idx.UpsertPosition(ctx, "a1", models.Point{Lat: 0, Lon: -180.5}, now)
				assert.ErrorIs(t, err, models.ErrInvalidCoordinate)

				got, err := idx.QueryWithinRadius(ctx, models.Point{Lat: 0, Lon: 0}, 10)
				require.NoError(t, err)
				assert.Empty(t, got)
			})

			t.Run("latitudes beyond the mercator bound are not stored", func(t *testing.T) {
				idx := build(t)
				err := idx.UpsertPosition(ctx, "polar", models.Point{Lat: 89, Lon: 0}, now)
				assert.ErrorIs(t, err, models.ErrInvalidCoordinate)
				assert.Contains(t, err.Error(), "Web Mercator")
				err = idx.UpsertPosition(ctx, "polar", models.Point{Lat: -85.1, Lon: 10}, now)
				assert.ErrorIs(t, err, models.ErrInvalidCoordinate)

				_, err = idx.GetPosition(ctx, "polar")
				assert.ErrorIs(t, err, models.ErrNotFound)
			})

			t.Run("query centered beyond the mercator bound", func(t *testing.T) {
				idx := build(t)
				require.NoError(t, idx.UpsertPosition(ctx, "north", models.Point{Lat: 85.0, Lon: 20}, now))
				require.NoError(t, idx.UpsertPosition(ctx, "south", models.Point{Lat: 84.5, Lon: 20}, now))

				center := models.Point{Lat: 85.1, Lon: 20}
				got, err := idx.QueryWithinRadius(ctx, center, 20)
				require.NoError(t, err)
				assert.Equal(t, []string{"north"}, AgentIDs(got))
				assert.InDelta(t, DistanceKm(center, models.Point{Lat: 85.0, Lon: 20}), got[0].DistanceKm, 0.1)
			})
		})
	}
}

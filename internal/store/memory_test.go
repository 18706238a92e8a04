package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/mission-dispatch/internal/models"
	"github.com/bizmatters/mission-dispatch/tests/helpers"
)

var day = time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)

func at(hour int) time.Time {
	return day.Add(time.Duration(hour) * time.Hour)
}

func TestMemoryStore_ClaimMission(t *testing.T) {
	ctx := context.Background()

	t.Run("exactly one of many concurrent claims wins", func(t *testing.T) {
		s := NewMemoryStore()
		s.PutMission(helpers.Mission("m1", "c1", models.MissionStatusPending, "", at(10), at(14)))

		const agents = 20
		var wg sync.WaitGroup
		errs := make([]error, agents)
		for i := 0; i < agents; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.ClaimMission(ctx, ClaimRequest{
					MissionID: "m1", AgentID: fmt.Sprintf("agent-%d", i), Now: day,
				})
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, models.ErrAlreadyClaimed)
		}
		assert.Equal(t, 1, wins)

		m, err := s.GetMission(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, models.MissionStatusAccepted, m.Status)
		require.NotNil(t, m.AgentID)

		entries, err := s.ListAuditEntries(ctx, "m1")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, models.MissionStatusPending, entries[0].PreviousStatus)
		assert.Equal(t, models.MissionStatusAccepted, entries[0].NewStatus)
	})

	t.Run("overlapping window is a schedule conflict", func(t *testing.T) {
		s := NewMemoryStore()
		s.PutMission(helpers.Mission("busy", "c1", models.MissionStatusAccepted, "a1", at(10), at(14)))
		s.PutMission(helpers.Mission("overlap", "c1", models.MissionStatusPending, "", at(12), at(16)))
		s.PutMission(helpers.Mission("adjacent", "c1", models.MissionStatusPending, "", at(14), at(16)))

		_, err := s.ClaimMission(ctx, ClaimRequest{MissionID: "overlap", AgentID: "a1", Now: day})
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrScheduleConflict)

		var conflict *models.ScheduleConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, "busy", conflict.MissionID)
		assert.True(t, conflict.Window.Start.Equal(at(10)))
		assert.True(t, conflict.Window.End.Equal(at(14)))

		m, err := s.GetMission(ctx, "overlap")
		require.NoError(t, err)
		assert.Equal(t, models.MissionStatusPending, m.Status)

		res, err := s.ClaimMission(ctx, ClaimRequest{MissionID: "adjacent", AgentID: "a1", Now: day})
		require.NoError(t, err)
		assert.Equal(t, models.MissionStatusAccepted, res.Mission.Status)
	})

	t.Run("terminal missions do not block the schedule", func(t *testing.T) {
		s := NewMemoryStore()
		s.PutMission(helpers.Mission("done", "c1", models.MissionStatusCompleted, "a1", at(10), at(14)))
		s.PutMission(helpers.Mission("next", "c1", models.MissionStatusPending, "", at(12), at(16)))

		_, err := s.ClaimMission(ctx, ClaimRequest{MissionID: "next", AgentID: "a1", Now: day})
		assert.NoError(t, err)
	})

	t.Run("unknown mission is not found", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.ClaimMission(ctx, ClaimRequest{MissionID: "missing", AgentID: "a1", Now: day})
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.NotErrorIs(t, err, models.ErrAlreadyClaimed)
	})
}

func TestMemoryStore_ChangeStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("failed check leaves the mission unchanged", func(t *testing.T) {
		s := NewMemoryStore()
		s.PutMission(helpers.Mission("m1", "c1", models.MissionStatusAccepted, "a1", at(10), at(14)))

		_, err := s.ChangeStatus(ctx, StatusChange{
			MissionID: "m1",
			NewStatus: models.MissionStatusEnRoute,
			Now:       day,
			Check: func(current *models.Mission) error {
				return models.ErrNotAssigned
			},
		})
		assert.ErrorIs(t, err, models.ErrNotAssigned)

		m, err := s.GetMission(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, models.MissionStatusAccepted, m.Status)

		entries, err := s.ListAuditEntries(ctx, "m1")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("coordinates and release are applied", func(t *testing.T) {
		s := NewMemoryStore()
		s.PutMission(helpers.Mission("m1", "c1", models.MissionStatusAccepted, "a1", at(10), at(14)))

		lat, lon := 48.9, 2.4
		res, err := s.ChangeStatus(ctx, StatusChange{
			MissionID: "m1", ActorUserID: "a1", NewStatus: models.MissionStatusEnRoute,
			Latitude: &lat, Longitude: &lon, Now: day,
		})
		require.NoError(t, err)
		require.NotNil(t, res.Mission.LastLatitude)
		assert.Equal(t, lat, *res.Mission.LastLatitude)
		assert.Equal(t, models.MissionStatusAccepted, res.Previous.Status)

		res, err = s.ChangeStatus(ctx, StatusChange{
			MissionID: "m1", ActorUserID: "a1", NewStatus: models.MissionStatusPending,
			ReleaseAgent: true, Now: day,
		})
		require.NoError(t, err)
		assert.Nil(t, res.Mission.AgentID)

		entries, err := s.ListAuditEntries(ctx, "m1")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Less(t, entries[0].Seq, entries[1].Seq)
		assert.Equal(t, models.MissionStatusEnRoute, entries[0].NewStatus)
		assert.Equal(t, models.MissionStatusPending, entries[1].NewStatus)
	})
}

func TestMemoryStore_Notifications(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.PutMission(helpers.Mission("m1", "c1", models.MissionStatusPending, "", at(10), at(14)))

	n, created, err := s.UpsertNotification(ctx, "m1", "a1", day)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.NotificationStatusSent, n.Status)

	again, created, err := s.UpsertNotification(ctx, "m1", "a1", day.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, n.ID, again.ID)
	assert.Equal(t, 1, s.CountNotifications("m1"))

	_, err = s.SetNotificationStatus(ctx, "m1", "a1", models.NotificationStatusRejected, day)
	require.NoError(t, err)

	kept, _, err := s.UpsertNotification(ctx, "m1", "a1", day)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationStatusRejected, kept.Status)

	rejected, err := s.ListNotificationAgents(ctx, "m1", models.NotificationStatusRejected)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, rejected)

	_, _, err = s.UpsertNotification(ctx, "m1", "a2", day)
	require.NoError(t, err)
	proposals, err := s.ListAgentProposals(ctx, "a2")
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, "m1", proposals[0].Mission.ID)

	proposals, err = s.ListAgentProposals(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, proposals)
}

func TestMemoryStore_Targets(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	web := models.WebTarget{UserID: "u1", Endpoint: "https://push.example.com/1", P256dh: "k", Auth: "a"}
	mobile := models.MobileTarget{UserID: "u1", Token: "tok-1", Platform: "android"}
	require.NoError(t, s.SaveTarget(ctx, web))
	require.NoError(t, s.SaveTarget(ctx, mobile))

	targets, err := s.ListTargets(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, targets, 2)

	// the same device re-registered by another user moves to that user
	require.NoError(t, s.SaveTarget(ctx, models.MobileTarget{UserID: "u2", Token: "tok-1", Platform: "ios"}))
	targets, err = s.ListTargets(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []models.PushTarget{web}, targets)

	require.NoError(t, s.RemoveTarget(ctx, web))
	targets, err = s.ListTargets(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, targets)
}

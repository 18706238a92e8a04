package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/mission-dispatch/internal/fanout"
	"github.com/bizmatters/mission-dispatch/internal/models"
	"github.com/bizmatters/mission-dispatch/internal/realtime"
	"github.com/bizmatters/mission-dispatch/internal/store"
	"github.com/bizmatters/mission-dispatch/tests/helpers"
)

type notifyCall struct {
	recipients []string
	msg        fanout.Message
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (n *recordingNotifier) Notify(ctx context.Context, recipients []string, msg fanout.Message) fanout.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{recipients: recipients, msg: msg})
	return fanout.Result{Succeeded: len(recipients)}
}

func (n *recordingNotifier) last(t *testing.T) notifyCall {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.calls)
	return n.calls[len(n.calls)-1]
}

type recordingStopper struct {
	mu      sync.Mutex
	stopped []string
}

func (s *recordingStopper) Stop(ctx context.Context, missionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, missionID)
	return nil
}

var (
	windowStart = time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC)
	company     = models.Actor{UserID: "company-1", Name: "Acme Security", Role: models.RoleCompany}
	agent       = models.Actor{UserID: "agent-1", Name: "Jane Doe", Role: models.RoleAgent}
	stranger    = models.Actor{UserID: "agent-9", Name: "Someone Else", Role: models.RoleAgent}
)

type guardFixture struct {
	store    *store.MemoryStore
	notifier *recordingNotifier
	stopper  *recordingStopper
	hub      *realtime.Hub
	now      time.Time
	guard    *Guard
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()
	f := &guardFixture{
		store:    store.NewMemoryStore(),
		notifier: &recordingNotifier{},
		stopper:  &recordingStopper{},
		hub:      realtime.NewHub(8),
		now:      windowStart.Add(-time.Hour),
	}
	f.guard = NewGuard(f.store, f.notifier,
		WithPublisher(f.hub),
		WithTracking(f.stopper),
		WithBaseURL("https://app.example.com/"),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *guardFixture) put(id string, status models.MissionStatus, agentID string) {
	f.store.PutMission(helpers.Mission(id, company.UserID, status, agentID, windowStart, windowStart.Add(4*time.Hour)))
}

func (f *guardFixture) status(t *testing.T, id string) models.MissionStatus {
	t.Helper()
	m, err := f.store.GetMission(context.Background(), id)
	require.NoError(t, err)
	return m.Status
}

func TestGuard_ConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	f := newGuardFixture(t)
	f.put("m1", models.MissionStatusPending, "")

	const agents = 20
	var wins, lost atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < agents; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := models.Actor{UserID: fmt.Sprintf("agent-%02d", i), Role: models.RoleAgent}
			_, err := f.guard.Claim(ctx, "m1", actor)
			switch {
			case err == nil:
				wins.Add(1)
			case assert.ErrorIs(t, err, models.ErrAlreadyClaimed):
				lost.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(agents-1), lost.Load())
	assert.Equal(t, models.MissionStatusAccepted, f.status(t, "m1"))

	entries, err := f.store.ListAuditEntries(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGuard_ClaimAnnouncesToCompany(t *testing.T) {
	ctx := context.Background()
	f := newGuardFixture(t)
	f.put("m1", models.MissionStatusPending, "")
	_, _, err := f.store.UpsertNotification(ctx, "m1", agent.UserID, f.now)
	require.NoError(t, err)
	sub := f.hub.Subscribe(models.MissionTopic("m1"))

	mission, err := f.guard.Claim(ctx, "m1", agent)
	require.NoError(t, err)
	assert.True(t, mission.AssignedTo(agent.UserID))

	call := f.notifier.last(t)
	assert.Equal(t, []string{company.UserID}, call.recipients)
	assert.Equal(t, models.EventMissionAccepted, call.msg.Event)
	assert.Equal(t, "https://app.example.com/missions/m1", call.msg.Link)
	payload, ok := call.msg.Data.(models.StatusChangePayload)
	require.True(t, ok)
	assert.Equal(t, models.MissionStatusPending, payload.PreviousStatus)
	assert.Equal(t, models.MissionStatusAccepted, payload.NewStatus)
	assert.Equal(t, "Jane Doe", payload.ActorName)
	assert.Equal(t, "Paris, Ile-de-France", payload.Location)

	assert.Len(t, sub.Messages(), 1)
	assert.Empty(t, f.stopper.stopped)

	accepted, err := f.store.ListNotificationAgents(ctx, "m1", models.NotificationStatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, []string{agent.UserID}, accepted)
}

func TestGuard_ClaimFailures(t *testing.T) {
	ctx := context.Background()
	f := newGuardFixture(t)
	f.put("busy", models.MissionStatusAccepted, agent.UserID)
	f.store.PutMission(helpers.Mission("overlap", company.UserID, models.MissionStatusPending, "",
		windowStart.Add(2*time.Hour), windowStart.Add(6*time.Hour)))

	_, err := f.guard.Claim(ctx, "overlap", agent)
	var conflict *models.ScheduleConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "busy", conflict.MissionID)
	assert.Equal(t, windowStart, conflict.Window.Start)

	_, err = f.guard.Claim(ctx, "overlap", company)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.guard.Claim(ctx, "missing", agent)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Equal(t, models.MissionStatusPending, f.status(t, "overlap"))
	assert.Empty(t, f.notifier.calls)
}

func TestGuard_Transition(t *testing.T) {
	ctx := context.Background()
	f := newGuardFixture(t)
	f.put("m1", models.MissionStatusAccepted, agent.UserID)

	point := helpers.NorthOf(helpers.Paris, 1)
	mission, err := f.guard.Transition(ctx, "m1", agent, models.MissionStatusEnRoute, &point)
	require.NoError(t, err)
	assert.Equal(t, models.MissionStatusEnRoute, mission.Status)
	require.NotNil(t, mission.LastLatitude)
	assert.InDelta(t, point.Lat, *mission.LastLatitude, 1e-9)

	call := f.notifier.last(t)
	assert.Equal(t, []string{company.UserID}, call.recipients)
	assert.Equal(t, models.EventMissionStatus, call.msg.Event)

	// skipping ahead is allowed
	_, err = f.guard.Transition(ctx, "m1", agent, models.MissionStatusInProgress, nil)
	require.NoError(t, err)
	assert.Empty(t, f.stopper.stopped)

	_, err = f.guard.Transition(ctx, "m1", agent, models.MissionStatusCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, f.stopper.stopped)

	entries, err := f.store.ListAuditEntries(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, models.MissionStatusEnRoute, entries[0].NewStatus)
	assert.Equal(t, models.MissionStatusCompleted, entries[2].NewStatus)
	assert.Equal(t, models.MissionStatusInProgress, entries[2].PreviousStatus)
}

func TestGuard_TransitionFailuresLeaveStateUnchanged(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		status  models.MissionStatus
		assigns string
		actor   models.Actor
		target  models.MissionStatus
		point   *models.Point
		wantErr error
	}{
		{"not the assigned agent", models.MissionStatusAccepted, agent.UserID, stranger, models.MissionStatusEnRoute, nil, models.ErrNotAssigned},
		{"pending mission", models.MissionStatusPending, "", agent, models.MissionStatusEnRoute, nil, models.ErrNotAssigned},
		{"already completed", models.MissionStatusCompleted, agent.UserID, agent, models.MissionStatusInProgress, nil, models.ErrAlreadyTerminal},
		{"already cancelled", models.MissionStatusCancelled, agent.UserID, agent, models.MissionStatusEnRoute, nil, models.ErrAlreadyTerminal},
		{"back to pending", models.MissionStatusAccepted, agent.UserID, agent, models.MissionStatusPending, nil, models.ErrInvalidTransition},
		{"accepted is claim only", models.MissionStatusEnRoute, agent.UserID, agent, models.MissionStatusAccepted, nil, models.ErrInvalidTransition},
		{"cancel through transition", models.MissionStatusEnRoute, agent.UserID, agent, models.MissionStatusCancelled, nil, models.ErrInvalidTransition},
		{"bad coordinate", models.MissionStatusAccepted, agent.UserID, agent, models.MissionStatusEnRoute, &models.Point{Lat: 100}, models.ErrInvalidCoordinate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGuardFixture(t)
			f.put("m1", tt.status, tt.assigns)

			_, err := f.guard.Transition(ctx, "m1", tt.actor, tt.target, tt.point)
			assert.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, tt.status, f.status(t, "m1"))
			entries, err := f.store.ListAuditEntries(ctx, "m1")
			require.NoError(t, err)
			assert.Empty(t, entries)
			assert.Empty(t, f.notifier.calls)
		})
	}
}

func TestGuard_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("company cancels pending mission", func(t *testing.T) {
		f := newGuardFixture(t)
		f.put("m1", models.MissionStatusPending, "")

		mission, err := f.guard.Cancel(ctx, "m1", company, false, "")
		require.NoError(t, err)
		assert.Equal(t, models.MissionStatusCancelled, mission.Status)
		assert.Empty(t, f.notifier.calls)
		assert.Equal(t, []string{"m1"}, f.stopper.stopped)
	})

	t.Run("company cancel notifies the agent", func(t *testing.T) {
		f := newGuardFixture(t)
		f.put("m1", models.MissionStatusEnRoute, agent.UserID)

		mission, err := f.guard.Cancel(ctx, "m1", company, false, "client cancelled")
		require.NoError(t, err)
		assert.True(t, mission.AssignedTo(agent.UserID))

		call := f.notifier.last(t)
		assert.Equal(t, []string{agent.UserID}, call.recipients)
		assert.Equal(t, models.EventMissionCancelled, call.msg.Event)

		entries, err := f.store.ListAuditEntries(ctx, "m1")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "mission cancelled: client cancelled", entries[0].Note)
	})

	t.Run("agent releases mission back to pending", func(t *testing.T) {
		f := newGuardFixture(t)
		f.put("m1", models.MissionStatusEnRoute, agent.UserID)

		mission, err := f.guard.Cancel(ctx, "m1", agent, true, "")
		require.NoError(t, err)
		assert.Equal(t, models.MissionStatusPending, mission.Status)
		assert.Nil(t, mission.AgentID)
		assert.Equal(t, []string{"m1"}, f.stopper.stopped)
		assert.Equal(t, []string{company.UserID}, f.notifier.last(t).recipients)

		rejected, err := f.store.ListNotificationAgents(ctx, "m1", models.NotificationStatusRejected)
		require.NoError(t, err)
		assert.Equal(t, []string{agent.UserID}, rejected)
	})

	failures := []struct {
		name    string
		status  models.MissionStatus
		actor   models.Actor
		release bool
		wantErr error
	}{
		{"unrelated user", models.MissionStatusAccepted, stranger, false, models.ErrForbidden},
		{"already terminal", models.MissionStatusCompleted, company, false, models.ErrAlreadyTerminal},
		{"company cannot release", models.MissionStatusAccepted, company, true, models.ErrValidation},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			f := newGuardFixture(t)
			f.put("m1", tt.status, agent.UserID)

			_, err := f.guard.Cancel(ctx, "m1", tt.actor, tt.release, "")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.status, f.status(t, "m1"))
			assert.Empty(t, f.stopper.stopped)
		})
	}
}

func TestGuard_NoShow(t *testing.T) {
	ctx := context.Background()
	f := newGuardFixture(t)
	f.put("m1", models.MissionStatusAccepted, agent.UserID)

	_, err := f.guard.NoShow(ctx, "m1", company)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	f.now = windowStart.Add(30 * time.Minute)
	_, err = f.guard.NoShow(ctx, "m1", agent)
	assert.ErrorIs(t, err, models.ErrForbidden)

	mission, err := f.guard.NoShow(ctx, "m1", company)
	require.NoError(t, err)
	assert.Equal(t, models.MissionStatusNoShow, mission.Status)
	assert.Equal(t, []string{agent.UserID}, f.notifier.last(t).recipients)

	_, err = f.guard.NoShow(ctx, "m1", company)
	assert.ErrorIs(t, err, models.ErrAlreadyTerminal)
}

func TestGuard_RespondToProposal(t *testing.T) {
	ctx := context.Background()
	f := newGuardFixture(t)
	f.put("m1", models.MissionStatusPending, "")
	f.put("m2", models.MissionStatusPending, "")

	_, err := f.guard.RespondToProposal(ctx, "m1", agent, models.NotificationStatusRejected)
	require.NoError(t, err)
	rejected, err := f.store.ListNotificationAgents(ctx, "m1", models.NotificationStatusRejected)
	require.NoError(t, err)
	assert.Equal(t, []string{agent.UserID}, rejected)
	assert.Equal(t, models.MissionStatusPending, f.status(t, "m1"))

	mission, err := f.guard.RespondToProposal(ctx, "m2", agent, models.NotificationStatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.MissionStatusAccepted, mission.Status)

	_, err = f.guard.RespondToProposal(ctx, "m1", agent, models.NotificationStatusSent)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.guard.RespondToProposal(ctx, "missing", agent, models.NotificationStatusRejected)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGuard_RejectAfterClaimLeavesAssignmentIntact(t *testing.T) {
	ctx := context.Background()
	f := newGuardFixture(t)
	f.put("m1", models.MissionStatusPending, "")
	f.put("done", models.MissionStatusCompleted, agent.UserID)

	_, err := f.guard.Claim(ctx, "m1", agent)
	require.NoError(t, err)

	_, err = f.guard.RespondToProposal(ctx, "m1", agent, models.NotificationStatusRejected)
	assert.ErrorIs(t, err, models.ErrAlreadyClaimed)

	_, err = f.guard.RespondToProposal(ctx, "m1", stranger, models.NotificationStatusRejected)
	assert.ErrorIs(t, err, models.ErrAlreadyClaimed)

	accepted, err := f.store.ListNotificationAgents(ctx, "m1", models.NotificationStatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, []string{agent.UserID}, accepted)
	rejected, err := f.store.ListNotificationAgents(ctx, "m1", models.NotificationStatusRejected)
	require.NoError(t, err)
	assert.Empty(t, rejected)

	mission, err := f.store.GetMission(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, models.MissionStatusAccepted, mission.Status)
	assert.True(t, mission.AssignedTo(agent.UserID))

	_, err = f.guard.RespondToProposal(ctx, "done", stranger, models.NotificationStatusRejected)
	assert.ErrorIs(t, err, models.ErrAlreadyTerminal)
	rejected, err = f.store.ListNotificationAgents(ctx, "done", models.NotificationStatusRejected)
	require.NoError(t, err)
	assert.Empty(t, rejected)
}

func TestGuard_AuditLog(t *testing.T) {
	ctx := context.Background()
	f := newGuardFixture(t)
	f.put("m1", models.MissionStatusPending, "")

	_, err := f.guard.Claim(ctx, "m1", agent)
	require.NoError(t, err)
	_, err = f.guard.Transition(ctx, "m1", agent, models.MissionStatusEnRoute, nil)
	require.NoError(t, err)

	for _, actor := range []models.Actor{company, agent} {
		entries, err := f.guard.AuditLog(ctx, "m1", actor)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Less(t, entries[0].Seq, entries[1].Seq)
		assert.Equal(t, models.MissionStatusAccepted, entries[0].NewStatus)
	}

	_, err = f.guard.AuditLog(ctx, "m1", stranger)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

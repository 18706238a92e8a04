package fanout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/mission-dispatch/internal/models"
	"github.com/bizmatters/mission-dispatch/internal/realtime"
	"github.com/bizmatters/mission-dispatch/internal/store"
)

type fakeMobileSender struct {
	mu      sync.Mutex
	expired map[string]bool
	delay   time.Duration
	sent    []string
}

func (f *fakeMobileSender) SendMobile(ctx context.Context, target models.MobileTarget, msg Message) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.expired[target.Token] {
		return ErrTargetExpired
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, target.Token)
	return nil
}

type fakeWebSender struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (f *fakeWebSender) SendWeb(ctx context.Context, target models.WebTarget, msg Message) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, target.Endpoint)
	return nil
}

var (
	expiredToken = models.MobileTarget{UserID: "agent-1", Token: "expired-token", Platform: "android"}
	validWeb     = models.WebTarget{UserID: "agent-1", Endpoint: "https://push.example.com/sub", P256dh: "k", Auth: "a"}
)

func TestFanout_ExpiredTokenIsRemoved(t *testing.T) {
	ctx := context.Background()
	targets := store.NewMemoryStore()
	require.NoError(t, targets.SaveTarget(ctx, expiredToken))
	require.NoError(t, targets.SaveTarget(ctx, validWeb))

	mobile := &fakeMobileSender{expired: map[string]bool{"expired-token": true}}
	web := &fakeWebSender{}
	f := New(targets, WithMobileSender(mobile), WithWebSender(web))

	result := f.Notify(ctx, []string{"agent-1"}, Message{Event: models.EventMissionNew, Title: "New mission"})

	assert.Equal(t, Result{Succeeded: 1, Failed: 1}, result)
	assert.Equal(t, []string{validWeb.Endpoint}, web.sent)

	remaining, err := targets.ListTargets(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, []models.PushTarget{validWeb}, remaining)
}

func TestFanout_ExpiredTokenWithRealtimeCountsEveryChannel(t *testing.T) {
	ctx := context.Background()
	targets := store.NewMemoryStore()
	require.NoError(t, targets.SaveTarget(ctx, expiredToken))
	require.NoError(t, targets.SaveTarget(ctx, validWeb))

	hub := realtime.NewHub(4)
	sub := hub.Subscribe(models.UserTopic("agent-1"))
	mobile := &fakeMobileSender{expired: map[string]bool{"expired-token": true}}
	web := &fakeWebSender{}
	f := New(targets, WithPublisher(hub), WithMobileSender(mobile), WithWebSender(web))

	result := f.Notify(ctx, []string{"agent-1"}, Message{Event: models.EventMissionNew, Title: "New mission"})

	// realtime publish and web push succeed, the expired token fails
	assert.Equal(t, Result{Succeeded: 2, Failed: 1}, result)
	assert.Len(t, sub.Messages(), 1)
	assert.Equal(t, []string{validWeb.Endpoint}, web.sent)
	assert.Empty(t, mobile.sent)

	remaining, err := targets.ListTargets(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, []models.PushTarget{validWeb}, remaining)
}

func TestFanout_ChannelsAreIsolated(t *testing.T) {
	ctx := context.Background()
	targets := store.NewMemoryStore()
	require.NoError(t, targets.SaveTarget(ctx, models.MobileTarget{UserID: "agent-1", Token: "ok-token"}))
	require.NoError(t, targets.SaveTarget(ctx, validWeb))

	hub := realtime.NewHub(4)
	sub := hub.Subscribe(models.UserTopic("agent-1"))
	mobile := &fakeMobileSender{}
	web := &fakeWebSender{err: errors.New("push service unavailable")}
	f := New(targets, WithPublisher(hub), WithMobileSender(mobile), WithWebSender(web))

	result := f.Notify(ctx, []string{"agent-1"}, Message{Event: models.EventMissionNew, Data: models.ProposalPayload{MissionID: "m1"}})

	assert.Equal(t, Result{Succeeded: 2, Failed: 1}, result)
	assert.Equal(t, []string{"ok-token"}, mobile.sent)
	assert.Len(t, sub.Messages(), 1)

	// a transient failure keeps the registration
	remaining, err := targets.ListTargets(ctx, "agent-1")
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestFanout_SlowChannelIsBounded(t *testing.T) {
	ctx := context.Background()
	targets := store.NewMemoryStore()
	require.NoError(t, targets.SaveTarget(ctx, models.MobileTarget{UserID: "agent-1", Token: "slow"}))
	require.NoError(t, targets.SaveTarget(ctx, validWeb))

	mobile := &fakeMobileSender{delay: time.Second}
	web := &fakeWebSender{}
	f := New(targets, WithMobileSender(mobile), WithWebSender(web), WithTimeout(50*time.Millisecond))

	started := time.Now()
	result := f.Notify(ctx, []string{"agent-1"}, Message{Event: models.EventMissionNew})

	assert.Less(t, time.Since(started), 500*time.Millisecond)
	assert.Equal(t, Result{Succeeded: 1, Failed: 1}, result)
}

func TestFanout_ManyRecipients(t *testing.T) {
	ctx := context.Background()
	targets := store.NewMemoryStore()
	recipients := []string{"a1", "a2", "a3"}
	for _, id := range recipients {
		require.NoError(t, targets.SaveTarget(ctx, models.MobileTarget{UserID: id, Token: "tok-" + id}))
	}

	mobile := &fakeMobileSender{}
	f := New(targets, WithMobileSender(mobile))

	result := f.Notify(ctx, recipients, Message{Event: models.EventMissionStatus})
	assert.Equal(t, Result{Succeeded: 3}, result)
	assert.ElementsMatch(t, []string{"tok-a1", "tok-a2", "tok-a3"}, mobile.sent)
}

func TestFanout_UnconfiguredChannelIsSkipped(t *testing.T) {
	ctx := context.Background()
	targets := store.NewMemoryStore()
	require.NoError(t, targets.SaveTarget(ctx, validWeb))

	f := New(targets)
	assert.Equal(t, Result{}, f.Notify(ctx, []string{"agent-1"}, Message{Event: models.EventMissionNew}))
}

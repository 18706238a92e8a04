package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/mission-dispatch/internal/models"
	"github.com/bizmatters/mission-dispatch/internal/store"
	"github.com/bizmatters/mission-dispatch/tests/helpers"
)

func receive(t *testing.T, sub *Subscriber) Envelope {
	t.Helper()
	select {
	case frame := <-sub.Messages():
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return Envelope{}
}

func TestHub_PublishToTopic(t *testing.T) {
	hub := NewHub(4)
	a := hub.Subscribe("private-user-a")
	b := hub.Subscribe("private-user-b")

	err := hub.Publish(context.Background(), "private-user-a", models.EventMissionNew, models.ProposalPayload{MissionID: "m1"})
	require.NoError(t, err)

	env := receive(t, a)
	assert.Equal(t, "private-user-a", env.Topic)
	assert.Equal(t, models.EventMissionNew, env.Event)
	var payload models.ProposalPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "m1", payload.MissionID)

	select {
	case <-b.Messages():
		t.Fatal("subscriber of another topic received the frame")
	default:
	}

	hub.Unsubscribe(a)
	assert.Equal(t, 0, hub.SubscriberCount("private-user-a"))
	<-a.Done()
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	hub := NewHub(1)
	slow := hub.Subscribe("public-missions")

	assert.Equal(t, 1, hub.Deliver("public-missions", []byte(`{}`)))
	assert.Equal(t, 0, hub.Deliver("public-missions", []byte(`{}`)))

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow subscriber was not dropped")
	}
	assert.Equal(t, 0, hub.SubscriberCount("public-missions"))
}

func TestRedisBridge_RelaysToLocalHub(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	hub := NewHub(4)
	bridge := NewRedisBridge(client, hub)
	sub := hub.Subscribe("private-mission-m1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	go bridge.Run(ctx, ready)
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not subscribe")
	}

	require.NoError(t, bridge.Publish(ctx, "private-mission-m1", models.EventAgentLocation,
		models.LocationPayload{MissionID: "m1", Latitude: 48.85, Longitude: 2.35}))

	env := receive(t, sub)
	assert.Equal(t, models.EventAgentLocation, env.Event)
}

func TestServeConn_WritesFrames(t *testing.T) {
	hub := NewHub(4)
	subscribed := make(chan *Subscriber, 1)
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		sub := hub.Subscribe("public-missions")
		defer hub.Unsubscribe(sub)
		subscribed <- sub
		ServeConn(r.Context(), conn, sub)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	<-subscribed
	require.NoError(t, hub.Publish(context.Background(), "public-missions", models.EventMissionCreated, map[string]string{"id": "m1"}))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	require.NoError(t, client.ReadJSON(&env))
	assert.Equal(t, models.EventMissionCreated, env.Event)
}

// strictReader fails the test when a lookup reaches the store
type strictReader struct {
	t *testing.T
}

func (r strictReader) GetMission(ctx context.Context, missionID string) (*models.Mission, error) {
	r.t.Errorf("unexpected mission lookup for %q", missionID)
	return nil, models.ErrNotFound
}

func TestTopicAuthorizer(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	start := time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC)
	missionID := uuid.NewString()
	s.PutMission(helpers.Mission(missionID, "company-1", models.MissionStatusEnRoute, "agent-1", start, start.Add(4*time.Hour)))
	authz := NewTopicAuthorizer(s)

	tests := []struct {
		name    string
		userID  string
		topic   string
		allowed bool
	}{
		{"public topic", "anyone", models.TopicPublicMissions, true},
		{"own user topic", "agent-1", models.UserTopic("agent-1"), true},
		{"other user topic", "agent-2", models.UserTopic("agent-1"), false},
		{"owning company", "company-1", models.MissionTopic(missionID), true},
		{"assigned agent", "agent-1", models.MissionTopic(missionID), true},
		{"unrelated agent", "agent-2", models.MissionTopic(missionID), false},
		{"unknown mission", "company-1", models.MissionTopic(uuid.NewString()), false},
		{"unknown topic", "agent-1", "presence-room", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authz.Authorize(ctx, tt.userID, tt.topic)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, models.ErrForbidden)
			}
		})
	}

	t.Run("malformed mission id never reaches the store", func(t *testing.T) {
		strict := NewTopicAuthorizer(strictReader{t: t})
		for _, id := range []string{"m1", "not-a-uuid", "'; DROP TABLE missions; --", ""} {
			assert.ErrorIs(t, strict.Authorize(ctx, "company-1", models.MissionTopic(id)), models.ErrForbidden)
		}
	})

	t.Run("reassignment is seen on the next subscribe", func(t *testing.T) {
		s.PutMission(helpers.Mission(missionID, "company-1", models.MissionStatusPending, "", start, start.Add(4*time.Hour)))
		assert.ErrorIs(t, authz.Authorize(ctx, "agent-1", models.MissionTopic(missionID)), models.ErrForbidden)
	})
}

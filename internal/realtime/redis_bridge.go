package realtime

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

const bridgeChannelPrefix = "dispatch:topic:"

// RedisBridge publishes through Redis so that every API replica relays the
// event to its own hub subscribers.
type RedisBridge struct {
	client redis.UniversalClient
	hub    *Hub
}

var _ Publisher = (*RedisBridge)(nil)

func NewRedisBridge(client redis.UniversalClient, hub *Hub) *RedisBridge {
	return &RedisBridge{client: client, hub: hub}
}

func (b *RedisBridge) Publish(ctx context.Context, topic, event string, data any) error {
	frame, err := Encode(topic, event, data)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, bridgeChannelPrefix+topic, frame).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Run relays Redis messages into the local hub until ctx is cancelled.
// ready is closed once the pattern subscription is confirmed.
func (b *RedisBridge) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := b.client.PSubscribe(ctx, bridgeChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to realtime bridge: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	log.Printf("Realtime bridge subscribed to %s*", bridgeChannelPrefix)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			topic := strings.TrimPrefix(msg.Channel, bridgeChannelPrefix)
			b.hub.Deliver(topic, []byte(msg.Payload))
		}
	}
}

// Package realtime fans events out to websocket subscribers grouped by topic.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// Envelope is the JSON frame written to subscribers
type Envelope struct {
	Topic     string          `json:"topic"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher delivers one event to every subscriber of a topic
type Publisher interface {
	Publish(ctx context.Context, topic, event string, data any) error
}

// Encode builds the wire frame for an event
func Encode(topic, event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Topic: topic, Event: event, Data: raw, Timestamp: time.Now().UTC()})
}

// Subscriber is one connection's queue on a topic
type Subscriber struct {
	topic  string
	send   chan []byte
	done   chan struct{}
	closer sync.Once
}

// Messages yields encoded envelopes in publish order
func (s *Subscriber) Messages() <-chan []byte {
	return s.send
}

// Done is closed once the hub drops the subscriber
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) Topic() string {
	return s.topic
}

func (s *Subscriber) close() {
	s.closer.Do(func() { close(s.done) })
}

// Hub keeps the subscriber sets of this process. Publish never blocks:
// a subscriber whose queue is full is dropped and must reconnect.
type Hub struct {
	mu         sync.RWMutex
	topics     map[string]map[*Subscriber]struct{}
	bufferSize int
}

var _ Publisher = (*Hub)(nil)

func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		topics:     make(map[string]map[*Subscriber]struct{}),
		bufferSize: bufferSize,
	}
}

func (h *Hub) Subscribe(topic string) *Subscriber {
	sub := &Subscriber{
		topic: topic,
		send:  make(chan []byte, h.bufferSize),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.topics[topic]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.topics[topic] = set
	}
	set[sub] = struct{}{}
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscriber) {
	if set, ok := h.topics[sub.topic]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.topics, sub.topic)
		}
	}
	sub.close()
}

func (h *Hub) Publish(ctx context.Context, topic, event string, data any) error {
	frame, err := Encode(topic, event, data)
	if err != nil {
		return err
	}
	h.Deliver(topic, frame)
	return nil
}

// Deliver queues an encoded frame for every subscriber of topic and
// returns how many received it.
func (h *Hub) Deliver(topic string, frame []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for sub := range h.topics[topic] {
		select {
		case sub.send <- frame:
			delivered++
		default:
			log.Printf("Dropping slow subscriber on topic %s", topic)
			h.removeLocked(sub)
		}
	}
	return delivered
}

func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Package fanout delivers one event to many users across the realtime,
// mobile push and web push channels.
package fanout

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/mission-dispatch/internal/metrics"
	"github.com/bizmatters/mission-dispatch/internal/models"
	"github.com/bizmatters/mission-dispatch/internal/realtime"
	"github.com/bizmatters/mission-dispatch/internal/store"
)

// Channel names used in logs and metrics
const (
	ChannelRealtime = "realtime"
	ChannelMobile   = "mobile"
	ChannelWeb      = "web"
)

// ErrTargetExpired marks a push target the provider no longer accepts.
// Notify removes such targets from the recipient's registration set.
var ErrTargetExpired = errors.New("push target expired")

// Message is the human-facing part of a notification
type Message struct {
	Event string
	Title string
	Body  string
	Link  string
	// Data is published as-is on realtime topics and embedded in push payloads
	Data any
}

// MobileSender sends to one native device
type MobileSender interface {
	SendMobile(ctx context.Context, target models.MobileTarget, msg Message) error
}

// WebSender sends to one browser subscription
type WebSender interface {
	SendWeb(ctx context.Context, target models.WebTarget, msg Message) error
}

// Result aggregates channel attempts
type Result struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Add merges other into r
func (r *Result) Add(other Result) {
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
}

// Notifier is the fanout contract consumed by dispatch and lifecycle
type Notifier interface {
	Notify(ctx context.Context, recipients []string, msg Message) Result
}

// Fanout attempts every channel of every recipient concurrently, each
// attempt bounded by its own timeout. Failures are counted, never returned.
type Fanout struct {
	targets   store.TargetStore
	publisher realtime.Publisher
	mobile    MobileSender
	web       WebSender
	timeout   time.Duration
	metrics   *metrics.DispatchMetrics
	tracer    trace.Tracer
}

var _ Notifier = (*Fanout)(nil)

// Option configures a Fanout
type Option func(*Fanout)

// WithPublisher enables the realtime channel
func WithPublisher(p realtime.Publisher) Option {
	return func(f *Fanout) { f.publisher = p }
}

// WithMobileSender enables the mobile push channel
func WithMobileSender(s MobileSender) Option {
	return func(f *Fanout) { f.mobile = s }
}

// WithWebSender enables the web push channel
func WithWebSender(s WebSender) Option {
	return func(f *Fanout) { f.web = s }
}

// WithTimeout bounds each channel attempt
func WithTimeout(d time.Duration) Option {
	return func(f *Fanout) { f.timeout = d }
}

func WithMetrics(m *metrics.DispatchMetrics) Option {
	return func(f *Fanout) { f.metrics = m }
}

func New(targets store.TargetStore, opts ...Option) *Fanout {
	f := &Fanout{
		targets: targets,
		timeout: 3 * time.Second,
		tracer:  otel.Tracer("notification-fanout"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fanout) Notify(ctx context.Context, recipients []string, msg Message) Result {
	ctx, span := f.tracer.Start(ctx, "fanout.notify")
	defer span.End()
	span.SetAttributes(
		attribute.String("event", msg.Event),
		attribute.Int("recipients", len(recipients)),
	)

	var (
		mu     sync.Mutex
		result Result
		wg     sync.WaitGroup
	)
	record := func(channel string, err error) {
		f.metrics.RecordDelivery(ctx, channel, err == nil)
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	for _, userID := range recipients {
		if f.publisher != nil {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				err := f.attempt(ctx, func(ctx context.Context) error {
					return f.publisher.Publish(ctx, models.UserTopic(userID), msg.Event, msg.Data)
				})
				if err != nil {
					log.Printf(`{"level":"warn","message":"Realtime publish failed","user_id":"%s","event":"%s","error":"%v"}`,
						userID, msg.Event, err)
				}
				record(ChannelRealtime, err)
			}(userID)
		}

		targets, err := f.targets.ListTargets(ctx, userID)
		if err != nil {
			log.Printf(`{"level":"error","message":"Failed to load push targets","user_id":"%s","error":"%v"}`, userID, err)
			continue
		}

		for _, target := range targets {
			wg.Add(1)
			go func(target models.PushTarget) {
				defer wg.Done()
				channel, err := f.send(ctx, target, msg)
				if channel == "" {
					return
				}
				if errors.Is(err, ErrTargetExpired) {
					f.prune(ctx, target)
				} else if err != nil {
					log.Printf(`{"level":"warn","message":"Push delivery failed","user_id":"%s","channel":"%s","error":"%v"}`,
						target.Owner(), channel, err)
				}
				record(channel, err)
			}(target)
		}
	}

	wg.Wait()
	span.SetAttributes(
		attribute.Int("deliveries.succeeded", result.Succeeded),
		attribute.Int("deliveries.failed", result.Failed),
	)
	return result
}

// send dispatches on the target variant. An empty channel means the
// channel is not configured and nothing was attempted.
func (f *Fanout) send(ctx context.Context, target models.PushTarget, msg Message) (string, error) {
	switch t := target.(type) {
	case models.MobileTarget:
		if f.mobile == nil {
			return "", nil
		}
		return ChannelMobile, f.attempt(ctx, func(ctx context.Context) error {
			return f.mobile.SendMobile(ctx, t, msg)
		})
	case models.WebTarget:
		if f.web == nil {
			return "", nil
		}
		return ChannelWeb, f.attempt(ctx, func(ctx context.Context) error {
			return f.web.SendWeb(ctx, t, msg)
		})
	}
	return "", nil
}

func (f *Fanout) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fanout) prune(ctx context.Context, target models.PushTarget) {
	// removal must survive the caller's deadline
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()

	if err := f.targets.RemoveTarget(ctx, target); err != nil {
		log.Printf(`{"level":"error","message":"Failed to remove expired push target","user_id":"%s","error":"%v"}`,
			target.Owner(), err)
		return
	}
	log.Printf(`{"level":"info","message":"Removed expired push target","user_id":"%s","target":"%s"}`,
		target.Owner(), target.Key())
}

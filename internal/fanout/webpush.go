package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/mission-dispatch/internal/models"
)

// WebPushConfig holds the VAPID identity of this server
type WebPushConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
	TTL        int
}

// WebPushSender delivers encrypted Web Push messages
type WebPushSender struct {
	config     WebPushConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	tracer     trace.Tracer
}

var _ WebSender = (*WebPushSender)(nil)

func NewWebPushSender(config WebPushConfig) *WebPushSender {
	if config.TTL <= 0 {
		config.TTL = 3600
	}
	return &WebPushSender{
		config:     config,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    newBreaker("web-push"),
		tracer:     otel.Tracer("web-push-sender"),
	}
}

type webPushPayload struct {
	Event string `json:"event"`
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func (s *WebPushSender) SendWeb(ctx context.Context, target models.WebTarget, msg Message) error {
	ctx, span := s.tracer.Start(ctx, "web_push.send")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", target.UserID))

	body, err := json.Marshal(webPushPayload{
		Event: msg.Event,
		Title: msg.Title,
		Body:  msg.Body,
		URL:   msg.Link,
		Data:  msg.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal web push payload: %w", err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.send(ctx, target, body)
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (s *WebPushSender) send(ctx context.Context, target models.WebTarget, body []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: target.Endpoint,
		Keys: webpush.Keys{
			P256dh: target.P256dh,
			Auth:   target.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.httpClient,
		Subscriber:      s.config.Subject,
		VAPIDPublicKey:  s.config.PublicKey,
		VAPIDPrivateKey: s.config.PrivateKey,
		TTL:             s.config.TTL,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return fmt.Errorf("failed to send web push: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("web push endpoint returned %d: %w", resp.StatusCode, ErrTargetExpired)
	case resp.StatusCode >= 400:
		return fmt.Errorf("web push endpoint returned %d", resp.StatusCode)
	}
	return nil
}

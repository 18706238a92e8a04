package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/messaging"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/mission-dispatch/internal/models"
)

// MessagingClient is the part of *messaging.Client used for delivery
type MessagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSender delivers native pushes through Firebase Cloud Messaging
type FCMSender struct {
	client    MessagingClient
	isExpired func(error) bool
	breaker   *gobreaker.CircuitBreaker
	tracer    trace.Tracer
}

var _ MobileSender = (*FCMSender)(nil)

func NewFCMSender(client MessagingClient) *FCMSender {
	return &FCMSender{
		client:    client,
		isExpired: isUnregisteredToken,
		breaker:   newBreaker("fcm"),
		tracer:    otel.Tracer("fcm-sender"),
	}
}

// isUnregisteredToken reports FCM answers that mean the token will never
// deliver again. INVALID_ARGUMENT only counts when FCM blames the token,
// since the same code covers malformed payloads.
func isUnregisteredToken(err error) bool {
	if messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err) {
		return true
	}
	return messaging.IsInvalidArgument(err) && strings.Contains(strings.ToLower(err.Error()), "registration token")
}

func (s *FCMSender) SendMobile(ctx context.Context, target models.MobileTarget, msg Message) error {
	ctx, span := s.tracer.Start(ctx, "fcm.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", target.UserID),
		attribute.String("device.platform", target.Platform),
	)

	data := map[string]string{
		"event": msg.Event,
		"link":  msg.Link,
	}
	if msg.Data != nil {
		raw, err := json.Marshal(msg.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal push data: %w", err)
		}
		data["payload"] = string(raw)
	}

	message := &messaging.Message{
		Token: target.Token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}

	_, err := s.breaker.Execute(func() (interface{}, error) {
		_, err := s.client.Send(ctx, message)
		if err != nil && s.isExpired(err) {
			return nil, fmt.Errorf("fcm token rejected: %w: %v", ErrTargetExpired, err)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to send fcm message: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

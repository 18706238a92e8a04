package gateway

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/mission-dispatch/internal/models"
	"github.com/bizmatters/mission-dispatch/internal/realtime"
)

// TopicStream upgrades authorized subscribers to websocket connections
// fed by the realtime hub.
type TopicStream struct {
	hub        *realtime.Hub
	authorizer *realtime.TopicAuthorizer
	tracer     trace.Tracer
	upgrader   websocket.Upgrader
}

// NewTopicStream accepts browser origins listed in allowedOrigins; an
// empty list accepts any origin.
func NewTopicStream(hub *realtime.Hub, authorizer *realtime.TopicAuthorizer, allowedOrigins []string) *TopicStream {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}
	return &TopicStream{
		hub:        hub,
		authorizer: authorizer,
		tracer:     otel.Tracer("topic-stream"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allowed) == 0 || origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				_, ok := allowed[u.Scheme+"://"+u.Host]
				if !ok {
					log.Printf(`{"level":"warn","message":"WebSocket origin rejected","origin":"%s"}`, origin)
				}
				return ok
			},
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Subscribe handles WebSocket /api/ws/topics/:topic
// @Summary Subscribe to a realtime topic
// @Description Streams JSON envelopes {topic, event, data, timestamp}. Mission topics are re-authorized against the store on every subscribe.
// @Tags realtime
// @Param topic path string true "public-missions, private-user-{userId} or private-mission-{missionId}"
// @Param token query string false "JWT for clients that cannot set headers"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /ws/topics/{topic} [get]
func (s *TopicStream) Subscribe(c *gin.Context) {
	ctx, span := s.tracer.Start(c.Request.Context(), "topic_stream.subscribe")
	defer span.End()

	topic := c.Param("topic")
	caller := actor(c)
	span.SetAttributes(
		attribute.String("topic", topic),
		attribute.String("user.id", caller.UserID),
	)

	if err := s.authorizer.Authorize(ctx, caller.UserID, topic); err != nil {
		span.RecordError(err)
		if errors.Is(err, models.ErrForbidden) {
			span.SetAttributes(attribute.Bool("access_denied", true))
			log.Printf(`{"level":"warn","message":"Topic subscription denied","security":true,"user_id":"%s","topic":"%s"}`,
				caller.UserID, topic)
		}
		respondError(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(topic)
	defer s.hub.Unsubscribe(sub)
	log.Printf(`{"level":"info","message":"Topic subscribed","user_id":"%s","topic":"%s"}`, caller.UserID, topic)

	if err := realtime.ServeConn(ctx, conn, sub); err != nil {
		span.RecordError(err)
	}
	log.Printf(`{"level":"info","message":"Topic unsubscribed","user_id":"%s","topic":"%s"}`, caller.UserID, topic)
}

// Package tracking ingests live location samples from the assigned agent
// while a mission is in its active phase and relays them to observers.
package tracking

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/mission-dispatch/internal/geo"
	"github.com/bizmatters/mission-dispatch/internal/metrics"
	"github.com/bizmatters/mission-dispatch/internal/models"
	"github.com/bizmatters/mission-dispatch/internal/ratelimit"
	"github.com/bizmatters/mission-dispatch/internal/realtime"
)

// Outcome tells the agent whether its sample was kept
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeDropped  Outcome = "dropped"
)

// DefaultMinInterval is the per-agent throttle between accepted samples
const DefaultMinInterval = 5 * time.Second

// MissionReader is the store lookup the relay needs
type MissionReader interface {
	GetMission(ctx context.Context, missionID string) (*models.Mission, error)
}

// Relay validates, throttles, stores and publishes tracking samples
type Relay struct {
	missions    MissionReader
	samples     SampleStore
	limiter     ratelimit.Limiter
	publisher   realtime.Publisher
	positions   geo.Index
	minInterval time.Duration
	metrics     *metrics.DispatchMetrics
	now         func() time.Time
	tracer      trace.Tracer
}

// Option configures a Relay
type Option func(*Relay)

// WithPositions mirrors accepted samples into the agent position index
func WithPositions(idx geo.Index) Option {
	return func(r *Relay) { r.positions = idx }
}

func WithMinInterval(d time.Duration) Option {
	return func(r *Relay) { r.minInterval = d }
}

func WithMetrics(m *metrics.DispatchMetrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// WithClock overrides the clock used for sample timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

func NewRelay(missions MissionReader, samples SampleStore, limiter ratelimit.Limiter, publisher realtime.Publisher, opts ...Option) *Relay {
	r := &Relay{
		missions:    missions,
		samples:     samples,
		limiter:     limiter,
		publisher:   publisher,
		minInterval: DefaultMinInterval,
		now:         time.Now,
		tracer:      otel.Tracer("live-tracking-relay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ingest accepts a sample from the mission's assigned agent during the
// active phase. A sample inside the throttle window is dropped and
// reported as OutcomeDropped with a nil error.
func (r *Relay) Ingest(ctx context.Context, missionID, agentID string, p models.Point, at time.Time) (Outcome, error) {
	ctx, span := r.tracer.Start(ctx, "tracking.ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("mission.id", missionID),
		attribute.String("agent.id", agentID),
	)

	if err := p.Validate(); err != nil {
		return "", err
	}

	mission, err := r.missions.GetMission(ctx, missionID)
	if err != nil {
		return "", err
	}
	if !mission.Status.IsTrackingActive() {
		return "", fmt.Errorf("mission %s is %s: %w", missionID, mission.Status, models.ErrTrackingNotActive)
	}
	if !mission.AssignedTo(agentID) {
		log.Printf(`{"level":"warn","message":"Tracking sample from unassigned agent","security":true,"mission_id":"%s","agent_id":"%s"}`,
			missionID, agentID)
		return "", fmt.Errorf("agent %s is not assigned to mission %s: %w", agentID, missionID, models.ErrForbidden)
	}

	decision, err := r.limiter.Allow(ctx, "track:"+agentID, 1, r.minInterval)
	if err != nil {
		// the throttle only bounds volume, so a limiter outage lets samples through
		log.Printf(`{"level":"warn","message":"Tracking throttle unavailable","agent_id":"%s","error":"%v"}`, agentID, err)
	} else if !decision.Allowed {
		r.metrics.RecordTrackingSample(ctx, false)
		span.SetAttributes(attribute.String("outcome", string(OutcomeDropped)))
		return OutcomeDropped, nil
	}

	if at.IsZero() {
		at = r.now()
	}
	sample := Sample{
		MissionID: missionID,
		AgentID:   agentID,
		Latitude:  p.Lat,
		Longitude: p.Lon,
		Timestamp: at.UTC(),
	}
	if err := r.samples.Save(ctx, sample); err != nil {
		return "", err
	}

	if r.positions != nil {
		if err := r.positions.UpsertPosition(ctx, agentID, p, at); err != nil {
			log.Printf(`{"level":"warn","message":"Failed to refresh agent position","agent_id":"%s","error":"%v"}`, agentID, err)
		}
	}

	if r.publisher != nil {
		err := r.publisher.Publish(ctx, models.MissionTopic(missionID), models.EventAgentLocation, models.LocationPayload{
			MissionID: missionID,
			AgentID:   agentID,
			Latitude:  p.Lat,
			Longitude: p.Lon,
			Timestamp: sample.Timestamp,
		})
		if err != nil {
			log.Printf(`{"level":"warn","message":"Failed to relay tracking sample","mission_id":"%s","error":"%v"}`, missionID, err)
		}
	}

	r.metrics.RecordTrackingSample(ctx, true)
	span.SetAttributes(attribute.String("outcome", string(OutcomeAccepted)))
	return OutcomeAccepted, nil
}

// Latest returns the live sample of a mission still in its active phase
func (r *Relay) Latest(ctx context.Context, missionID string) (*Sample, error) {
	mission, err := r.missions.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if !mission.Status.IsTrackingActive() {
		return nil, fmt.Errorf("mission %s is %s: %w", missionID, mission.Status, models.ErrTrackingNotActive)
	}
	return r.samples.Latest(ctx, missionID)
}

// Stop discards the mission's tracking data once it leaves the active phase
func (r *Relay) Stop(ctx context.Context, missionID string) error {
	if err := r.samples.Delete(ctx, missionID); err != nil {
		return err
	}
	log.Printf(`{"level":"info","message":"Tracking stopped","mission_id":"%s"}`, missionID)
	return nil
}

// Package dispatch offers a new mission to the agents closest to it
package dispatch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/bizmatters/mission-dispatch/internal/fanout"
	"github.com/bizmatters/mission-dispatch/internal/geo"
	"github.com/bizmatters/mission-dispatch/internal/metrics"
	"github.com/bizmatters/mission-dispatch/internal/models"
	"github.com/bizmatters/mission-dispatch/internal/store"
)

// Defaults for candidate selection
const (
	DefaultRadiusKm      = 10.0
	DefaultMaxCandidates = 50
	DefaultConcurrency   = 8
)

// Result describes one dispatch run
type Result struct {
	MissionID string `json:"mission_id"`
	// Candidates are the agents offered the mission, nearest first
	Candidates []geo.Candidate `json:"candidates"`
	// Created counts notification rows this run inserted
	Created    int           `json:"created"`
	Deliveries fanout.Result `json:"deliveries"`
}

// Coordinator selects candidates, records offers and notifies agents
type Coordinator struct {
	index         geo.Index
	notifications store.NotificationStore
	notifier      fanout.Notifier
	radiusKm      float64
	maxCandidates int
	concurrency   int
	baseURL       string
	metrics       *metrics.DispatchMetrics
	now           func() time.Time
	tracer        trace.Tracer
}

// Option configures a Coordinator
type Option func(*Coordinator)

func WithRadiusKm(km float64) Option {
	return func(c *Coordinator) { c.radiusKm = km }
}

func WithMaxCandidates(n int) Option {
	return func(c *Coordinator) { c.maxCandidates = n }
}

// WithConcurrency bounds how many candidates are notified at once
func WithConcurrency(n int) Option {
	return func(c *Coordinator) { c.concurrency = n }
}

// WithBaseURL sets the prefix of proposal deep links
func WithBaseURL(u string) Option {
	return func(c *Coordinator) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithMetrics(m *metrics.DispatchMetrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(index geo.Index, notifications store.NotificationStore, notifier fanout.Notifier, opts ...Option) *Coordinator {
	c := &Coordinator{
		index:         index,
		notifications: notifications,
		notifier:      notifier,
		radiusKm:      DefaultRadiusKm,
		maxCandidates: DefaultMaxCandidates,
		concurrency:   DefaultConcurrency,
		now:           time.Now,
		tracer:        otel.Tracer("dispatch-coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dispatch offers a PENDING mission to nearby agents. Re-running it for
// the same mission never duplicates offers and never re-offers an agent
// who rejected it. Delivery failures are counted in the result; only
// index and storage failures are returned.
func (c *Coordinator) Dispatch(ctx context.Context, mission *models.Mission) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "dispatch.mission")
	defer span.End()
	span.SetAttributes(attribute.String("mission.id", mission.ID))
	started := time.Now()

	if mission.Status != models.MissionStatusPending {
		return nil, fmt.Errorf("%w: mission %s is %s, only PENDING missions are dispatched",
			models.ErrInvalidTransition, mission.ID, mission.Status)
	}

	candidates, err := c.selectCandidates(ctx, mission)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &Result{MissionID: mission.ID, Candidates: candidates}
	var offers []string
	for _, candidate := range candidates {
		n, created, err := c.notifications.UpsertNotification(ctx, mission.ID, candidate.AgentID, c.now())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to record offer for agent %s: %w", candidate.AgentID, err)
		}
		if created {
			result.Created++
		}
		if n.Status == models.NotificationStatusSent {
			offers = append(offers, candidate.AgentID)
		}
	}

	result.Deliveries = c.notifyAll(ctx, mission, offers)

	span.SetAttributes(
		attribute.Int("dispatch.candidates", len(candidates)),
		attribute.Int("dispatch.created", result.Created),
		attribute.Int("dispatch.deliveries_failed", result.Deliveries.Failed),
	)
	c.metrics.RecordDispatch(ctx, len(candidates), result.Deliveries.Failed > 0, time.Since(started).Seconds())
	log.Printf(`{"level":"info","message":"Mission dispatched","mission_id":"%s","candidates":%d,"created":%d,"succeeded":%d,"failed":%d}`,
		mission.ID, len(candidates), result.Created, result.Deliveries.Succeeded, result.Deliveries.Failed)
	return result, nil
}

// selectCandidates returns nearby agents that have not rejected the
// mission, nearest first, capped at maxCandidates.
func (c *Coordinator) selectCandidates(ctx context.Context, mission *models.Mission) ([]geo.Candidate, error) {
	nearby, err := c.index.QueryWithinRadius(ctx, mission.Point(), c.radiusKm)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearby agents: %w", err)
	}

	rejected, err := c.notifications.ListNotificationAgents(ctx, mission.ID, models.NotificationStatusRejected)
	if err != nil {
		return nil, fmt.Errorf("failed to load rejections: %w", err)
	}
	excluded := make(map[string]struct{}, len(rejected))
	for _, agentID := range rejected {
		excluded[agentID] = struct{}{}
	}

	candidates := make([]geo.Candidate, 0, len(nearby))
	for _, candidate := range nearby {
		if _, skip := excluded[candidate.AgentID]; skip {
			continue
		}
		candidates = append(candidates, candidate)
		if len(candidates) == c.maxCandidates {
			break
		}
	}
	return candidates, nil
}

// notifyAll calls the fanout once per agent with bounded parallelism
func (c *Coordinator) notifyAll(ctx context.Context, mission *models.Mission, agentIDs []string) fanout.Result {
	link := c.baseURL + "/missions/" + mission.ID
	msg := fanout.Message{
		Event: models.EventMissionNew,
		Title: "New mission available",
		Body:  fmt.Sprintf("%s at %s", mission.Title, mission.LocationLabel),
		Link:  link,
		Data: models.ProposalPayload{
			MissionID: mission.ID,
			Title:     mission.Title,
			Location:  mission.LocationLabel,
			StartTime: mission.StartTime,
			EndTime:   mission.EndTime,
			Link:      link,
		},
	}

	var (
		mu    sync.Mutex
		total fanout.Result
	)
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, agentID := range agentIDs {
		g.Go(func() error {
			r := c.notifier.Notify(ctx, []string{agentID}, msg)
			mu.Lock()
			defer mu.Unlock()
			total.Add(r)
			return nil
		})
	}
	_ = g.Wait()
	return total
}

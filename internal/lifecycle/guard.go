// Package lifecycle is the only writer of mission status. Every change
// is validated against the locked row, audited in the same store call
// and then announced to the counterparty.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/mission-dispatch/internal/fanout"
	"github.com/bizmatters/mission-dispatch/internal/metrics"
	"github.com/bizmatters/mission-dispatch/internal/models"
	"github.com/bizmatters/mission-dispatch/internal/realtime"
	"github.com/bizmatters/mission-dispatch/internal/store"
)

// ForwardStatuses are the targets an assigned agent may move a mission to.
// Order is not enforced between them.
var ForwardStatuses = []models.MissionStatus{
	models.MissionStatusEnRoute,
	models.MissionStatusArrived,
	models.MissionStatusInProgress,
	models.MissionStatusCompleted,
}

// Claim outcomes reported to metrics
const (
	ClaimAccepted         = "accepted"
	ClaimAlreadyClaimed   = "already_claimed"
	ClaimScheduleConflict = "schedule_conflict"
	ClaimNotFound         = "not_found"
	ClaimError            = "error"
)

// TrackingStopper discards live tracking data of a mission
type TrackingStopper interface {
	Stop(ctx context.Context, missionID string) error
}

// Store is the persistence the guard writes through
type Store interface {
	store.MissionStore
	store.NotificationStore
}

// Guard validates and applies mission status changes
type Guard struct {
	store     Store
	notifier  fanout.Notifier
	publisher realtime.Publisher
	tracking  TrackingStopper
	metrics   *metrics.DispatchMetrics
	baseURL   string
	now       func() time.Time
	tracer    trace.Tracer
}

// Option configures a Guard
type Option func(*Guard)

// WithPublisher announces every committed change on the mission topic
func WithPublisher(p realtime.Publisher) Option {
	return func(g *Guard) { g.publisher = p }
}

func WithTracking(t TrackingStopper) Option {
	return func(g *Guard) { g.tracking = t }
}

func WithMetrics(m *metrics.DispatchMetrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// WithBaseURL sets the prefix of deep links in notifications
func WithBaseURL(u string) Option {
	return func(g *Guard) { g.baseURL = strings.TrimRight(u, "/") }
}

func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

func NewGuard(s Store, notifier fanout.Notifier, opts ...Option) *Guard {
	g := &Guard{
		store:    s,
		notifier: notifier,
		now:      time.Now,
		tracer:   otel.Tracer("state-transition-guard"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Claim assigns a PENDING mission to the calling agent. Exactly one of
// many concurrent claims wins; the others get ErrAlreadyClaimed.
func (g *Guard) Claim(ctx context.Context, missionID string, actor models.Actor) (*models.Mission, error) {
	ctx, span := g.startSpan(ctx, "guard.claim", missionID, actor)
	defer span.End()

	if actor.Role != models.RoleAgent {
		return nil, g.forbidden(span, missionID, actor, "only agents may claim missions")
	}

	res, err := g.store.ClaimMission(ctx, store.ClaimRequest{
		MissionID:   missionID,
		AgentID:     actor.UserID,
		ActorUserID: actor.UserID,
		Note:        "mission accepted",
		Now:         g.now(),
	})
	g.metrics.RecordClaim(ctx, claimOutcome(err))
	if err != nil {
		g.recordFailure(span, err)
		return nil, err
	}

	if _, err := g.store.SetNotificationStatus(ctx, missionID, actor.UserID, models.NotificationStatusAccepted, res.Audit.CreatedAt); err != nil {
		log.Printf(`{"level":"error","message":"Failed to mark notification accepted","mission_id":"%s","agent_id":"%s","error":"%v"}`,
			missionID, actor.UserID, err)
	}

	log.Printf(`{"level":"info","message":"Mission claimed","mission_id":"%s","agent_id":"%s"}`, missionID, actor.UserID)
	g.announce(ctx, res, actor, models.EventMissionAccepted, []string{res.Mission.CompanyID})
	return res.Mission, nil
}

func claimOutcome(err error) string {
	switch {
	case err == nil:
		return ClaimAccepted
	case errors.Is(err, models.ErrAlreadyClaimed):
		return ClaimAlreadyClaimed
	case errors.Is(err, models.ErrScheduleConflict):
		return ClaimScheduleConflict
	case errors.Is(err, models.ErrNotFound):
		return ClaimNotFound
	}
	return ClaimError
}

// Transition moves an assigned mission forward. The caller must be the
// assigned agent and the mission must not be terminal. An optional point
// is stored as the mission's latest known position.
func (g *Guard) Transition(ctx context.Context, missionID string, actor models.Actor, target models.MissionStatus, at *models.Point) (*models.Mission, error) {
	ctx, span := g.startSpan(ctx, "guard.transition", missionID, actor)
	defer span.End()
	span.SetAttributes(attribute.String("mission.target_status", string(target)))

	if !isForward(target) {
		err := fmt.Errorf("%w: %s is not a forward status", models.ErrInvalidTransition, target)
		g.recordFailure(span, err)
		return nil, err
	}

	req := store.StatusChange{
		MissionID:   missionID,
		ActorUserID: actor.UserID,
		NewStatus:   target,
		Note:        "status changed to " + string(target),
		Now:         g.now(),
		Check: func(current *models.Mission) error {
			if !current.AssignedTo(actor.UserID) {
				return fmt.Errorf("mission %s: %w", current.ID, models.ErrNotAssigned)
			}
			if current.Status.IsTerminal() {
				return fmt.Errorf("mission %s is %s: %w", current.ID, current.Status, models.ErrAlreadyTerminal)
			}
			return nil
		},
	}
	if at != nil {
		if err := at.Validate(); err != nil {
			return nil, err
		}
		req.Latitude, req.Longitude = &at.Lat, &at.Lon
	}

	res, err := g.store.ChangeStatus(ctx, req)
	if err != nil {
		if errors.Is(err, models.ErrNotAssigned) {
			g.logSecurity(missionID, actor, "transition by unassigned user")
		}
		g.recordFailure(span, err)
		return nil, err
	}

	g.metrics.RecordTransition(ctx, string(res.Previous.Status), string(res.Mission.Status))
	g.announce(ctx, res, actor, models.EventMissionStatus, []string{res.Mission.CompanyID})
	return res.Mission, nil
}

func isForward(status models.MissionStatus) bool {
	for _, s := range ForwardStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Cancel ends a non-terminal mission on behalf of its assigned agent or
// owning company. With release set, the assigned agent hands the mission
// back to PENDING instead; the agent is then never offered it again.
func (g *Guard) Cancel(ctx context.Context, missionID string, actor models.Actor, release bool, reason string) (*models.Mission, error) {
	ctx, span := g.startSpan(ctx, "guard.cancel", missionID, actor)
	defer span.End()
	span.SetAttributes(attribute.Bool("mission.release", release))

	target := models.MissionStatusCancelled
	note := "mission cancelled"
	if release {
		target = models.MissionStatusPending
		note = "mission released by agent"
	}
	if reason != "" {
		note += ": " + reason
	}

	res, err := g.store.ChangeStatus(ctx, store.StatusChange{
		MissionID:    missionID,
		ActorUserID:  actor.UserID,
		NewStatus:    target,
		ReleaseAgent: release,
		Note:         note,
		Now:          g.now(),
		Check: func(current *models.Mission) error {
			isCompany := current.CompanyID == actor.UserID
			isAgent := current.AssignedTo(actor.UserID)
			if !isCompany && !isAgent {
				return fmt.Errorf("mission %s: %w", current.ID, models.ErrForbidden)
			}
			if current.Status.IsTerminal() {
				return fmt.Errorf("mission %s is %s: %w", current.ID, current.Status, models.ErrAlreadyTerminal)
			}
			if release && !isAgent {
				return fmt.Errorf("%w: only the assigned agent may release a mission", models.ErrValidation)
			}
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, models.ErrForbidden) {
			g.logSecurity(missionID, actor, "cancel by unrelated user")
		}
		g.recordFailure(span, err)
		return nil, err
	}

	if release {
		if _, err := g.store.SetNotificationStatus(ctx, missionID, actor.UserID, models.NotificationStatusRejected, res.Audit.CreatedAt); err != nil {
			log.Printf(`{"level":"error","message":"Failed to mark released notification","mission_id":"%s","agent_id":"%s","error":"%v"}`,
				missionID, actor.UserID, err)
		}
	}

	g.metrics.RecordTransition(ctx, string(res.Previous.Status), string(res.Mission.Status))
	g.announce(ctx, res, actor, models.EventMissionCancelled, counterparty(res.Previous, actor))
	return res.Mission, nil
}

// NoShow lets the owning company close an ACCEPTED or EN_ROUTE mission
// whose agent never arrived once its start time has passed.
func (g *Guard) NoShow(ctx context.Context, missionID string, actor models.Actor) (*models.Mission, error) {
	ctx, span := g.startSpan(ctx, "guard.no_show", missionID, actor)
	defer span.End()

	now := g.now()
	res, err := g.store.ChangeStatus(ctx, store.StatusChange{
		MissionID:   missionID,
		ActorUserID: actor.UserID,
		NewStatus:   models.MissionStatusNoShow,
		Note:        "agent did not show up",
		Now:         now,
		Check: func(current *models.Mission) error {
			if current.CompanyID != actor.UserID {
				return fmt.Errorf("mission %s: %w", current.ID, models.ErrForbidden)
			}
			if current.Status.IsTerminal() {
				return fmt.Errorf("mission %s is %s: %w", current.ID, current.Status, models.ErrAlreadyTerminal)
			}
			if current.Status != models.MissionStatusAccepted && current.Status != models.MissionStatusEnRoute {
				return fmt.Errorf("%w: cannot mark a %s mission as no-show", models.ErrInvalidTransition, current.Status)
			}
			if now.Before(current.StartTime) {
				return fmt.Errorf("%w: mission has not started yet", models.ErrInvalidTransition)
			}
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, models.ErrForbidden) {
			g.logSecurity(missionID, actor, "no-show by non-owner")
		}
		g.recordFailure(span, err)
		return nil, err
	}

	g.metrics.RecordTransition(ctx, string(res.Previous.Status), string(res.Mission.Status))
	g.announce(ctx, res, actor, models.EventMissionStatus, counterparty(res.Previous, actor))
	return res.Mission, nil
}

// RespondToProposal records an agent's answer to an offer. Accepting
// claims the mission; rejecting excludes the agent from later dispatches.
func (g *Guard) RespondToProposal(ctx context.Context, missionID string, actor models.Actor, response models.NotificationStatus) (*models.Mission, error) {
	switch response {
	case models.NotificationStatusAccepted:
		return g.Claim(ctx, missionID, actor)
	case models.NotificationStatusRejected:
	default:
		return nil, fmt.Errorf("%w: response must be ACCEPTED or REJECTED", models.ErrValidation)
	}

	if actor.Role != models.RoleAgent {
		return nil, fmt.Errorf("only agents may reject proposals: %w", models.ErrForbidden)
	}
	mission, err := g.store.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if mission.Status.IsTerminal() {
		return nil, fmt.Errorf("mission %s is %s: %w", mission.ID, mission.Status, models.ErrAlreadyTerminal)
	}
	if mission.Status != models.MissionStatusPending || mission.AssignedTo(actor.UserID) {
		return nil, fmt.Errorf("mission %s is %s: %w", mission.ID, mission.Status, models.ErrAlreadyClaimed)
	}
	if _, err := g.store.SetNotificationStatus(ctx, missionID, actor.UserID, models.NotificationStatusRejected, g.now()); err != nil {
		return nil, err
	}
	log.Printf(`{"level":"info","message":"Proposal rejected","mission_id":"%s","agent_id":"%s"}`, missionID, actor.UserID)
	return mission, nil
}

// AuditLog returns a mission's transitions in commit order to its owner or assignee
func (g *Guard) AuditLog(ctx context.Context, missionID string, actor models.Actor) ([]models.AuditEntry, error) {
	mission, err := g.store.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if mission.CompanyID != actor.UserID && !mission.AssignedTo(actor.UserID) {
		g.logSecurity(missionID, actor, "audit log read by unrelated user")
		return nil, fmt.Errorf("mission %s: %w", missionID, models.ErrForbidden)
	}
	return g.store.ListAuditEntries(ctx, missionID)
}

// counterparty is the other side of the mission relative to actor
func counterparty(m *models.Mission, actor models.Actor) []string {
	if m.CompanyID != actor.UserID {
		return []string{m.CompanyID}
	}
	if m.AgentID != nil {
		return []string{*m.AgentID}
	}
	return nil
}

// announce publishes a committed change and stops tracking when the
// mission leaves the active phase. Delivery failures are only logged.
func (g *Guard) announce(ctx context.Context, res *store.TransitionResult, actor models.Actor, event string, recipients []string) {
	m := res.Mission
	actorName := actor.Name
	if actorName == "" {
		actorName = actor.UserID
	}
	payload := models.StatusChangePayload{
		MissionID:      m.ID,
		Title:          m.Title,
		PreviousStatus: res.Previous.Status,
		NewStatus:      m.Status,
		ActorName:      actorName,
		Location:       m.LocationLabel,
		Timestamp:      res.Audit.CreatedAt,
	}

	leftActivePhase := m.Status.IsTerminal() || m.Status == models.MissionStatusPending
	if leftActivePhase && g.tracking != nil {
		if err := g.tracking.Stop(ctx, m.ID); err != nil {
			log.Printf(`{"level":"error","message":"Failed to stop tracking","mission_id":"%s","error":"%v"}`, m.ID, err)
		}
	}

	if g.publisher != nil {
		if err := g.publisher.Publish(ctx, models.MissionTopic(m.ID), event, payload); err != nil {
			log.Printf(`{"level":"warn","message":"Failed to publish mission event","mission_id":"%s","event":"%s","error":"%v"}`,
				m.ID, event, err)
		}
	}

	if g.notifier == nil || len(recipients) == 0 {
		return
	}
	result := g.notifier.Notify(ctx, recipients, fanout.Message{
		Event: event,
		Title: m.Title,
		Body:  fmt.Sprintf("%s: %s to %s", actorName, res.Previous.Status, m.Status),
		Link:  g.baseURL + "/missions/" + m.ID,
		Data:  payload,
	})
	log.Printf(`{"level":"info","message":"Status change announced","mission_id":"%s","event":"%s","succeeded":%d,"failed":%d}`,
		m.ID, event, result.Succeeded, result.Failed)
}

func (g *Guard) startSpan(ctx context.Context, name, missionID string, actor models.Actor) (context.Context, trace.Span) {
	ctx, span := g.tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("mission.id", missionID),
		attribute.String("actor.id", actor.UserID),
		attribute.String("actor.role", actor.Role),
	)
	return ctx, span
}

func (g *Guard) forbidden(span trace.Span, missionID string, actor models.Actor, reason string) error {
	g.logSecurity(missionID, actor, reason)
	err := fmt.Errorf("%s: %w", reason, models.ErrForbidden)
	g.recordFailure(span, err)
	return err
}

func (g *Guard) logSecurity(missionID string, actor models.Actor, reason string) {
	log.Printf(`{"level":"warn","message":"Authorization failure","security":true,"reason":"%s","mission_id":"%s","user_id":"%s","role":"%s"}`,
		reason, missionID, actor.UserID, actor.Role)
}

func (g *Guard) recordFailure(span trace.Span, err error) {
	span.RecordError(err)
	if !models.IsConflict(err) {
		span.SetStatus(codes.Error, err.Error())
	}
}

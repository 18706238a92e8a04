package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DispatchMetrics counts dispatch, delivery, lifecycle and tracking
// events. A nil *DispatchMetrics records nothing.
type DispatchMetrics struct {
	missionsDispatchedCounter metric.Int64Counter
	candidatesOfferedCounter  metric.Int64Counter
	deliveriesCounter         metric.Int64Counter
	claimsCounter             metric.Int64Counter
	transitionsCounter        metric.Int64Counter
	trackingSamplesCounter    metric.Int64Counter
	dispatchDurationHistogram metric.Float64Histogram
}

// NewDispatchMetrics registers instruments on the global meter provider
func NewDispatchMetrics() (*DispatchMetrics, error) {
	return NewDispatchMetricsWithMeter(otel.Meter("dispatch-metrics"))
}

// NewDispatchMetricsWithMeter registers instruments on meter
func NewDispatchMetricsWithMeter(meter metric.Meter) (*DispatchMetrics, error) {
	missionsDispatched, err := meter.Int64Counter(
		"mission_dispatch.missions.dispatched",
		metric.WithDescription("Total number of dispatch runs"),
		metric.WithUnit("{mission}"),
	)
	if err != nil {
		return nil, err
	}

	candidatesOffered, err := meter.Int64Counter(
		"mission_dispatch.candidates.offered",
		metric.WithDescription("Total number of candidate agents offered a mission"),
		metric.WithUnit("{agent}"),
	)
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter(
		"mission_dispatch.deliveries",
		metric.WithDescription("Notification channel attempts by channel and outcome"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, err
	}

	claims, err := meter.Int64Counter(
		"mission_dispatch.claims",
		metric.WithDescription("Claim attempts by outcome"),
		metric.WithUnit("{claim}"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"mission_dispatch.transitions",
		metric.WithDescription("Committed mission status transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	trackingSamples, err := meter.Int64Counter(
		"mission_dispatch.tracking.samples",
		metric.WithDescription("Live tracking samples by outcome"),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return nil, err
	}

	dispatchDuration, err := meter.Float64Histogram(
		"mission_dispatch.dispatch.duration",
		metric.WithDescription("Duration of a dispatch run in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &DispatchMetrics{
		missionsDispatchedCounter: missionsDispatched,
		candidatesOfferedCounter:  candidatesOffered,
		deliveriesCounter:         deliveries,
		claimsCounter:             claims,
		transitionsCounter:        transitions,
		trackingSamplesCounter:    trackingSamples,
		dispatchDurationHistogram: dispatchDuration,
	}, nil
}

// RecordDispatch records one dispatch run
func (dm *DispatchMetrics) RecordDispatch(ctx context.Context, candidates int, partialFailure bool, seconds float64) {
	if dm == nil {
		return
	}
	dm.missionsDispatchedCounter.Add(ctx, 1)
	dm.candidatesOfferedCounter.Add(ctx, int64(candidates))
	dm.dispatchDurationHistogram.Record(ctx, seconds,
		metric.WithAttributes(attribute.Bool("partial_failure", partialFailure)),
	)
}

// RecordDelivery records one channel attempt
func (dm *DispatchMetrics) RecordDelivery(ctx context.Context, channel string, ok bool) {
	if dm == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	dm.deliveriesCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordClaim records a claim outcome such as "accepted" or "already_claimed"
func (dm *DispatchMetrics) RecordClaim(ctx context.Context, outcome string) {
	if dm == nil {
		return
	}
	dm.claimsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTransition records a committed status change
func (dm *DispatchMetrics) RecordTransition(ctx context.Context, from, to string) {
	if dm == nil {
		return
	}
	dm.transitionsCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordTrackingSample records whether a sample was relayed or throttled
func (dm *DispatchMetrics) RecordTrackingSample(ctx context.Context, accepted bool) {
	if dm == nil {
		return
	}
	outcome := "accepted"
	if !accepted {
		outcome = "dropped"
	}
	dm.trackingSamplesCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

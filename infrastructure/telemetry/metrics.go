// Package telemetry records the workflow engine's OpenTelemetry metrics.
package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/felixgeelhaar/robotflow/domain/verification"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
)

// Metrics defines the engine's metric recording surface.
type Metrics interface {
	RecordRun(ctx context.Context, run *workflow.Run)
	RecordPlanAttempt(ctx context.Context, attempt int, ok bool)
	RecordVerification(ctx context.Context, res verification.Result)
	RecordReviewWait(ctx context.Context, decision workflow.Decision, wait time.Duration)
	RecordExecution(ctx context.Context, mode string, steps int, d time.Duration, err error)
	RecordTransition(ctx context.Context, from, to workflow.State)
}

// MetricsProvider records metrics with OpenTelemetry instruments.
type MetricsProvider struct {
	meter metric.Meter

	runs        metric.Int64Counter
	attempts    metric.Int64Counter
	violations  metric.Int64Counter
	transitions metric.Int64Counter

	reviewWait   metric.Float64Histogram
	execDuration metric.Float64Histogram
	runDuration  metric.Float64Histogram
}

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// MeterProvider supplies the meter. Nil uses the global provider.
	MeterProvider metric.MeterProvider
	MeterName     string
	MeterVersion  string
}

// DefaultMetricsConfig returns the default configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    "github.com/felixgeelhaar/robotflow",
		MeterVersion: "1.0.0",
	}
}

// NewMetricsProvider creates the instruments.
func NewMetricsProvider(config MetricsConfig) (*MetricsProvider, error) {
	if config.MeterName == "" {
		config.MeterName = DefaultMetricsConfig().MeterName
	}
	provider := config.MeterProvider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	mp := &MetricsProvider{
		meter: provider.Meter(config.MeterName, metric.WithInstrumentationVersion(config.MeterVersion)),
	}
	if err := mp.initInstruments(); err != nil {
		return nil, err
	}
	return mp, nil
}

func (mp *MetricsProvider) initInstruments() error {
	var errs [7]error

	mp.runs, errs[0] = mp.meter.Int64Counter(
		"robotflow.runs",
		metric.WithDescription("Finished runs by outcome"),
		metric.WithUnit("{run}"),
	)
	mp.attempts, errs[1] = mp.meter.Int64Counter(
		"robotflow.plan.attempts",
		metric.WithDescription("Plan attempts made by the planning node"),
		metric.WithUnit("{attempt}"),
	)
	mp.violations, errs[2] = mp.meter.Int64Counter(
		"robotflow.verification.violations",
		metric.WithDescription("Verification violations by category"),
		metric.WithUnit("{violation}"),
	)
	mp.transitions, errs[3] = mp.meter.Int64Counter(
		"robotflow.workflow.transitions",
		metric.WithDescription("Workflow state transitions"),
		metric.WithUnit("{transition}"),
	)
	mp.reviewWait, errs[4] = mp.meter.Float64Histogram(
		"robotflow.review.wait",
		metric.WithDescription("Time spent waiting for the operator's review decision"),
		metric.WithUnit("s"),
	)
	mp.execDuration, errs[5] = mp.meter.Float64Histogram(
		"robotflow.execution.duration",
		metric.WithDescription("Duration of plan execution on the robot link"),
		metric.WithUnit("ms"),
	)
	mp.runDuration, errs[6] = mp.meter.Float64Histogram(
		"robotflow.run.duration",
		metric.WithDescription("End to end run duration"),
		metric.WithUnit("ms"),
	)
	return errors.Join(errs[:]...)
}

func outcome(run *workflow.Run) string {
	if run.Fallback == workflow.ReasonNone {
		return "success"
	}
	return string(run.Fallback)
}

// RecordRun records a finished run.
func (mp *MetricsProvider) RecordRun(ctx context.Context, run *workflow.Run) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome(run)),
		attribute.String("intent", string(run.Intent)),
	)
	mp.runs.Add(ctx, 1, attrs)
	mp.runDuration.Record(ctx, float64(run.Duration().Milliseconds()), attrs)
}

// RecordPlanAttempt records one planning attempt.
func (mp *MetricsProvider) RecordPlanAttempt(ctx context.Context, attempt int, ok bool) {
	mp.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("attempt", attempt),
		attribute.Bool("success", ok),
	))
}

// RecordVerification adds one count per violation, keyed by category.
func (mp *MetricsProvider) RecordVerification(ctx context.Context, res verification.Result) {
	for category, n := range res.Categories() {
		if n == 0 {
			continue
		}
		mp.violations.Add(ctx, int64(n), metric.WithAttributes(attribute.String("category", category)))
	}
}

// RecordReviewWait records how long a review took to decide.
func (mp *MetricsProvider) RecordReviewWait(ctx context.Context, decision workflow.Decision, wait time.Duration) {
	mp.reviewWait.Record(ctx, wait.Seconds(), metric.WithAttributes(attribute.String("decision", string(decision))))
}

// RecordExecution records a plan execution.
func (mp *MetricsProvider) RecordExecution(ctx context.Context, mode string, steps int, d time.Duration, err error) {
	mp.execDuration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Int("steps", steps),
		attribute.Bool("success", err == nil),
	))
}

// RecordTransition records a workflow transition.
func (mp *MetricsProvider) RecordTransition(ctx context.Context, from, to workflow.State) {
	mp.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state.from", string(from)),
		attribute.String("state.to", string(to)),
	))
}

// NoopMetricsProvider discards every measurement.
type NoopMetricsProvider struct{}

// RecordRun is a no-op.
func (NoopMetricsProvider) RecordRun(context.Context, *workflow.Run) {}

// RecordPlanAttempt is a no-op.
func (NoopMetricsProvider) RecordPlanAttempt(context.Context, int, bool) {}

// RecordVerification is a no-op.
func (NoopMetricsProvider) RecordVerification(context.Context, verification.Result) {}

// RecordReviewWait is a no-op.
func (NoopMetricsProvider) RecordReviewWait(context.Context, workflow.Decision, time.Duration) {}

// RecordExecution is a no-op.
func (NoopMetricsProvider) RecordExecution(context.Context, string, int, time.Duration, error) {}

// RecordTransition is a no-op.
func (NoopMetricsProvider) RecordTransition(context.Context, workflow.State, workflow.State) {}

var (
	_ Metrics = (*MetricsProvider)(nil)
	_ Metrics = NoopMetricsProvider{}
)

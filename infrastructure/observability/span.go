package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/robotflow/domain/workflow"
)

// Span attribute keys.
const (
	AttrCorrelationID = attribute.Key("robotflow.correlation_id")
	AttrState         = attribute.Key("robotflow.workflow_state")
	AttrAttempt       = attribute.Key("robotflow.plan_attempt")
	AttrIntent        = attribute.Key("robotflow.intent")
	AttrFallback      = attribute.Key("robotflow.fallback_reason")
)

// StartNode opens a span for one workflow node of run.
func StartNode(ctx context.Context, tracer trace.Tracer, run *workflow.Run) (context.Context, trace.Span) {
	return tracer.Start(ctx, "workflow."+string(run.State),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrCorrelationID.String(run.CorrelationID),
			AttrState.String(string(run.State)),
			AttrAttempt.Int(run.PlanAttempt),
		))
}

// StartRun opens the root span of a run.
func StartRun(ctx context.Context, tracer trace.Tracer, run *workflow.Run) (context.Context, trace.Span) {
	return tracer.Start(ctx, "workflow.run",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(AttrCorrelationID.String(run.CorrelationID)))
}

// End closes span, marking it failed when err is set.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// EndRun closes the root span with the run outcome.
func EndRun(span trace.Span, run *workflow.Run) {
	span.SetAttributes(
		AttrIntent.String(string(run.Intent)),
		AttrAttempt.Int(run.PlanAttempt),
	)
	if run.Fallback != workflow.ReasonNone {
		span.SetAttributes(AttrFallback.String(string(run.Fallback)))
		span.SetStatus(codes.Error, string(run.Fallback))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "weaver"

// StartPhaseSpan starts a span for one phase execution.
func StartPhaseSpan(ctx context.Context, phaseKind, phaseKey, storyID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "phase",
		trace.WithAttributes(
			attribute.String("phase.kind", phaseKind),
			attribute.String("phase.key", phaseKey),
			attribute.String("story.id", storyID),
		),
	)
}

// StartScheduleSpan starts a span for one scheduling pass.
func StartScheduleSpan(ctx context.Context, storyID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "schedule",
		trace.WithAttributes(
			attribute.String("story.id", storyID),
		),
	)
}

// StartPlanSpan starts a span for one planner execution.
func StartPlanSpan(ctx context.Context, plannerKey, storyID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "plan",
		trace.WithAttributes(
			attribute.String("planner.key", plannerKey),
			attribute.String("story.id", storyID),
		),
	)
}

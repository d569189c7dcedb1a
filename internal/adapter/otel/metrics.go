package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "weaver"

// Metrics holds all weaver metric instruments.
type Metrics struct {
	PhasesStarted   metric.Int64Counter
	PhasesCompleted metric.Int64Counter
	PhasesFailed    metric.Int64Counter
	PhasesCancelled metric.Int64Counter
	PhaseDuration   metric.Float64Histogram
	JobsEnqueued    metric.Int64Counter
	PlansStarted    metric.Int64Counter
	PlanDuration    metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.PhasesStarted, err = meter.Int64Counter("weaver.phases.started",
		metric.WithDescription("Number of phase executions started"))
	if err != nil {
		return nil, err
	}

	m.PhasesCompleted, err = meter.Int64Counter("weaver.phases.completed",
		metric.WithDescription("Number of phase executions completed"))
	if err != nil {
		return nil, err
	}

	m.PhasesFailed, err = meter.Int64Counter("weaver.phases.failed",
		metric.WithDescription("Number of phase executions failed"))
	if err != nil {
		return nil, err
	}

	m.PhasesCancelled, err = meter.Int64Counter("weaver.phases.cancelled",
		metric.WithDescription("Number of phase executions cancelled"))
	if err != nil {
		return nil, err
	}

	m.PhaseDuration, err = meter.Float64Histogram("weaver.phase.duration_seconds",
		metric.WithDescription("Phase execution duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.JobsEnqueued, err = meter.Int64Counter("weaver.jobs.enqueued",
		metric.WithDescription("Number of phase jobs enqueued"))
	if err != nil {
		return nil, err
	}

	m.PlansStarted, err = meter.Int64Counter("weaver.plans.started",
		metric.WithDescription("Number of planner executions started"))
	if err != nil {
		return nil, err
	}

	m.PlanDuration, err = meter.Float64Histogram("weaver.plan.duration_seconds",
		metric.WithDescription("Planner execution duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	wotel "github.com/inkforge/weaver/internal/adapter/otel"
	"github.com/inkforge/weaver/internal/domain/checkpoint"
	"github.com/inkforge/weaver/internal/domain/critique"
	"github.com/inkforge/weaver/internal/domain/phase"
	"github.com/inkforge/weaver/internal/domain/planner"
	"github.com/inkforge/weaver/internal/port/database"
	"github.com/inkforge/weaver/internal/port/worklog"
)

// PlannerParams is the typed parameter object a planner validates before its
// algorithm runs.
type PlannerParams interface {
	Validate() error
}

// PlannerAlgorithm is the planning loop itself, owned by the content layer.
// It runs LLM-driven steps and assembles the result. Every self-review pass
// it spends must be charged against the critique manager it receives.
type PlannerAlgorithm func(ctx context.Context, critic *critique.Manager) (*planner.Result, error)

// PlannerService is the reusable execution wrapper for phases that are
// multi-step planning loops: parameter validation, telemetry events, duration
// metrics, and best-effort transcript persistence around the algorithm.
type PlannerService struct {
	store   database.Store
	audit   worklog.Log
	metrics *wotel.Metrics
}

// NewPlannerService creates a PlannerService with all dependencies.
func NewPlannerService(store database.Store, audit worklog.Log, metrics *wotel.Metrics) *PlannerService {
	return &PlannerService{store: store, audit: audit, metrics: metrics}
}

// Execute runs one planner invocation with a fresh critique budget. The
// manager's spending summary lands on the result as metrics and a diagnostic.
// Cancellation and algorithm errors are re-raised to the caller; transcript
// persistence failures never fail the plan.
func (s *PlannerService) Execute(
	ctx context.Context,
	plannerKey string,
	ec phase.ExecutionContext,
	params PlannerParams,
	critiqueCfg critique.Config,
	algorithm PlannerAlgorithm,
) (*planner.Result, error) {
	if params != nil {
		if err := params.Validate(); err != nil {
			return nil, fmt.Errorf("validate %s parameters: %w", plannerKey, err)
		}
	}

	critic := critique.NewManager(critiqueCfg)

	ctx, span := wotel.StartPlanSpan(ctx, plannerKey, ec.StoryID)
	defer span.End()

	s.audit.Append(ctx, ec.ConversationID, "plan.started", map[string]string{
		"planner":  plannerKey,
		"story_id": ec.StoryID,
	})
	s.metrics.PlansStarted.Add(ctx, 1)

	startedAt := time.Now()
	result, err := algorithm(ctx, critic)
	elapsed := time.Since(startedAt)

	if err != nil {
		kind := "plan.failed"
		if errors.Is(err, context.Canceled) {
			kind = "plan.cancelled"
		}
		s.audit.Append(ctx, ec.ConversationID, kind, map[string]string{
			"planner":  plannerKey,
			"story_id": ec.StoryID,
			"error":    err.Error(),
		})
		return nil, err
	}

	result.SetMetric("duration_seconds", elapsed.Seconds())
	s.metrics.PlanDuration.Record(ctx, elapsed.Seconds())
	critic.ApplyMetrics(result)

	s.persistPlanTranscript(ctx, plannerKey, ec, result)

	s.audit.Append(ctx, ec.ConversationID, "plan.completed", map[string]string{
		"planner":  plannerKey,
		"story_id": ec.StoryID,
		"outcome":  string(result.Outcome),
	})

	slog.Info("plan executed",
		"planner", plannerKey,
		"story_id", ec.StoryID,
		"outcome", result.Outcome,
		"steps", len(result.Steps),
	)
	return result, nil
}

// persistPlanTranscript translates the planner transcript into persisted
// records. Best-effort: store failures are logged and swallowed.
func (s *PlannerService) persistPlanTranscript(ctx context.Context, plannerKey string, ec phase.ExecutionContext, result *planner.Result) {
	cp := &checkpoint.Checkpoint{
		ID:       ec.Meta("checkpointId"),
		PhaseKey: plannerKey,
	}
	for _, entry := range result.Transcript {
		rec := transcriptRecord(cp, ec, entry.Role, entry.Content)
		if err := s.store.AppendTranscript(ctx, rec); err != nil {
			slog.Warn("persist plan transcript", "planner", plannerKey, "error", err)
			return
		}
	}
}

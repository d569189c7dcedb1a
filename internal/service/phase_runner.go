package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkforge/weaver/internal/domain/backlog"
	"github.com/inkforge/weaver/internal/domain/critique"
	"github.com/inkforge/weaver/internal/domain/phase"
	"github.com/inkforge/weaver/internal/domain/planner"
	"github.com/inkforge/weaver/internal/domain/quota"
	"github.com/inkforge/weaver/internal/port/database"
	"github.com/inkforge/weaver/internal/port/generation"
	"github.com/inkforge/weaver/internal/port/runner"
)

// PhaseRunner executes one phase kind by delegating the content work to a
// generation worker through the planner framework. It enforces iteration
// quotas before dispatch and persists any backlog items the plan emits.
type PhaseRunner struct {
	kind     phase.Kind
	planners *PlannerService
	backend  generation.Backend
	store    database.Store
	quotas   *QuotaService
	critique critique.Config
}

// NewPhaseRunner creates a runner for one phase kind.
func NewPhaseRunner(
	kind phase.Kind,
	planners *PlannerService,
	backend generation.Backend,
	store database.Store,
	quotas *QuotaService,
	critiqueCfg critique.Config,
) *PhaseRunner {
	return &PhaseRunner{
		kind:     kind,
		planners: planners,
		backend:  backend,
		store:    store,
		quotas:   quotas,
		critique: critiqueCfg,
	}
}

// AllRunners builds one runner per phase kind over shared dependencies.
func AllRunners(
	planners *PlannerService,
	backend generation.Backend,
	store database.Store,
	quotas *QuotaService,
	critiqueCfg critique.Config,
) []runner.Runner {
	runners := make([]runner.Runner, 0, len(phase.Kinds))
	for _, kind := range phase.Kinds {
		runners = append(runners, NewPhaseRunner(kind, planners, backend, store, quotas, critiqueCfg))
	}
	return runners
}

// Kind declares the phase this runner executes.
func (r *PhaseRunner) Kind() phase.Kind {
	return r.kind
}

// Run executes the phase. Blocked quotas are a result status, not an error;
// worker and transport failures are errors so the job queue retries them.
func (r *PhaseRunner) Run(ctx context.Context, ec phase.ExecutionContext) (*phase.Result, error) {
	if ec.Iteration != nil {
		decision := r.quotas.Evaluate(ctx, string(r.kind), ec.Meta(phase.MetaPersonaID), quota.Check{
			Iteration: ec.Iteration,
		})
		if !decision.Allowed {
			return &phase.Result{
				Status:  phase.OutcomeBlocked,
				Summary: decision.Reason,
				Data:    map[string]any{"limit_kind": decision.LimitKind, "limit": decision.Limit},
			}, nil
		}
	}

	result, err := r.planners.Execute(ctx, string(r.kind), ec, nil, r.critique,
		func(ctx context.Context, critic *critique.Manager) (*planner.Result, error) {
			res, err := r.backend.Generate(ctx, generation.Request{
				Kind:     r.kind,
				Context:  ec,
				Critique: r.critique,
			})
			if err != nil {
				return nil, err
			}
			// The worker reports each self-review pass it spent; every
			// pass is charged against the in-core budget ledger.
			for _, pass := range res.CritiquePasses {
				if att := critic.Begin(pass.StepID, pass.Tokens); att.Allowed() {
					att.Complete(pass.Tokens)
				}
			}
			return res, nil
		})
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", r.kind, err)
	}

	r.persistBacklogDrafts(ctx, ec, result)

	return phaseResult(result), nil
}

// persistBacklogDrafts writes plan-emitted backlog items (vision planning
// seeds the story backlog this way). Best-effort per draft.
func (r *PhaseRunner) persistBacklogDrafts(ctx context.Context, ec phase.ExecutionContext, result *planner.Result) {
	for _, draft := range result.BacklogDrafts {
		item := &backlog.Item{
			ID:          draft.ID,
			StoryID:     ec.StoryID,
			Description: draft.Description,
			Status:      backlog.StatusPending,
			Inputs:      draft.Inputs,
			Outputs:     draft.Outputs,
			CreatedAt:   time.Now().UTC(),
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if err := r.store.CreateBacklogItem(ctx, item); err != nil {
			slog.Warn("persist backlog draft", "story_id", ec.StoryID, "error", err)
		}
	}
}

// phaseResult translates a planner result into the engine's result shape.
func phaseResult(result *planner.Result) *phase.Result {
	res := &phase.Result{
		Summary: result.Artifacts["summary"],
		Data:    make(map[string]any, len(result.Metrics)+len(result.Diagnostics)),
	}
	for k, v := range result.Metrics {
		res.Data[k] = v
	}
	for k, v := range result.Diagnostics {
		res.Data[k] = v
	}
	for _, entry := range result.Transcript {
		res.Transcripts = append(res.Transcripts, phase.Transcript{
			Role:      entry.Role,
			Content:   entry.Content,
			CreatedAt: entry.At,
		})
	}

	switch result.Outcome {
	case planner.OutcomeSuccess:
		res.Status = phase.OutcomeCompleted
	case planner.OutcomePartial:
		res.Status = phase.OutcomePending
	case planner.OutcomeCancelled:
		res.Status = phase.OutcomeCancelled
	default:
		res.Status = phase.OutcomeFailed
	}
	return res
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	wotel "github.com/inkforge/weaver/internal/adapter/otel"
	"github.com/inkforge/weaver/internal/domain"
	"github.com/inkforge/weaver/internal/domain/backlog"
	"github.com/inkforge/weaver/internal/domain/checkpoint"
	"github.com/inkforge/weaver/internal/domain/phase"
	"github.com/inkforge/weaver/internal/domain/story"
	"github.com/inkforge/weaver/internal/port/broadcast"
	"github.com/inkforge/weaver/internal/port/database"
	"github.com/inkforge/weaver/internal/port/jobqueue"
	"github.com/inkforge/weaver/internal/port/worklog"
)

// PhaseEngineService orchestrates a single phase invocation: checkpoint
// lifecycle, cancel/resume signals, runner execution, transcript persistence
// and progress events. It never retries; the job queue owns retry policy.
type PhaseEngineService struct {
	store    database.Store
	registry *RunnerRegistry
	queue    jobqueue.Queue
	hub      broadcast.Broadcaster
	audit    worklog.Log
	metrics  *wotel.Metrics
}

// NewPhaseEngineService creates a PhaseEngineService with all dependencies.
func NewPhaseEngineService(
	store database.Store,
	registry *RunnerRegistry,
	queue jobqueue.Queue,
	hub broadcast.Broadcaster,
	audit worklog.Log,
	metrics *wotel.Metrics,
) *PhaseEngineService {
	return &PhaseEngineService{
		store:    store,
		registry: registry,
		queue:    queue,
		hub:      hub,
		audit:    audit,
		metrics:  metrics,
	}
}

// ExecutePhase runs one phase invocation. Every phase kind funnels through
// here. After any outcome the checkpoint's lock fields are cleared and its
// status is one of Complete, Pending or Cancelled.
func (s *PhaseEngineService) ExecutePhase(ctx context.Context, kind phase.Kind, ec phase.ExecutionContext) (*phase.Result, error) {
	st, err := s.store.GetStory(ctx, ec.StoryID)
	if err != nil {
		return nil, fmt.Errorf("load story %s: %w", ec.StoryID, err)
	}

	if ec.Branch == "" {
		ec = ec.WithBranch(st.Branch())
	}

	if st.Status == story.StatusDraft {
		if err := s.store.UpdateStoryStatus(ctx, st.ID, story.StatusInProgress); err != nil {
			return nil, fmt.Errorf("start story %s: %w", st.ID, err)
		}
	}

	key := ec.Key(kind)
	cp, err := s.getOrCreateCheckpoint(ctx, kind, key, ec)
	if err != nil {
		return nil, err
	}

	if cp.Status == checkpoint.StatusComplete {
		// At-least-once delivery can replay a finished phase; completed
		// work is never re-run.
		slog.Info("phase already complete", "story_id", st.ID, "phase_key", key)
		return &phase.Result{Status: phase.OutcomeCompleted, Summary: cp.Summary}, nil
	}

	ctx, span := wotel.StartPhaseSpan(ctx, string(kind), key, st.ID)
	defer span.End()

	if ec.MetaFlag(phase.MetaCancel) {
		cp.Status = checkpoint.StatusCancelled
		cp.ClearLock()
		if err := s.store.UpdateCheckpoint(ctx, cp); err != nil {
			return nil, fmt.Errorf("cancel checkpoint %s: %w", key, err)
		}
		s.publishProgress(ctx, ec, kind, cp, "cancelled", "cancellation requested", nil)
		return &phase.Result{Status: phase.OutcomeCancelled, Summary: "cancellation requested"}, nil
	}

	if cp.Status == checkpoint.StatusCancelled {
		if !ec.MetaFlag(phase.MetaResume) {
			// Cancellation is sticky per phase key until explicitly resumed.
			s.publishProgress(ctx, ec, kind, cp, "cancelled", "phase is cancelled", nil)
			return &phase.Result{Status: phase.OutcomeCancelled, Summary: "phase is cancelled"}, nil
		}
		cp.Status = checkpoint.StatusPending
		cp.ClearLock()
		if err := s.store.UpdateCheckpoint(ctx, cp); err != nil {
			return nil, fmt.Errorf("resume checkpoint %s: %w", key, err)
		}
		s.publishProgress(ctx, ec, kind, cp, "resumed", "phase resumed", nil)
	}

	cp.AcquireLock(ec.AgentID, ec.ConversationID, time.Now().UTC())
	if err := s.store.UpdateCheckpoint(ctx, cp); err != nil {
		return nil, fmt.Errorf("lock checkpoint %s: %w", key, err)
	}
	s.publishProgress(ctx, ec, kind, cp, "started", "phase started", nil)
	s.metrics.PhasesStarted.Add(ctx, 1)

	ru, err := s.registry.Resolve(kind)
	if err != nil {
		s.revertCheckpoint(ctx, cp, err)
		return nil, err
	}

	startedAt := time.Now()
	res, err := ru.Run(ctx, ec)
	s.metrics.PhaseDuration.Record(ctx, time.Since(startedAt).Seconds())

	if err != nil {
		if errors.Is(err, context.Canceled) {
			cp.Status = checkpoint.StatusCancelled
			cp.ClearLock()
			if uerr := s.store.UpdateCheckpoint(ctx, cp); uerr != nil {
				slog.Error("persist cancelled checkpoint", "phase_key", key, "error", uerr)
			}
			s.publishProgress(ctx, ec, kind, cp, "cancelled", "phase cancelled", nil)
			s.metrics.PhasesCancelled.Add(ctx, 1)
			return nil, err
		}
		s.revertCheckpoint(ctx, cp, err)
		s.revertBacklogItem(ctx, ec)
		s.publishProgress(ctx, ec, kind, cp, "failed", err.Error(), nil)
		s.metrics.PhasesFailed.Add(ctx, 1)
		// Re-raise so the job queue's retry policy governs resubmission.
		return nil, err
	}

	s.persistTranscripts(ctx, cp, ec, res)

	cp.ClearLock()
	cp.Status = checkpoint.StatusForOutcome(res.Status)
	cp.Summary = res.Summary
	if cp.Status == checkpoint.StatusComplete {
		cp.Completed = cp.Target
	}
	if err := s.store.UpdateCheckpoint(ctx, cp); err != nil {
		return nil, fmt.Errorf("persist checkpoint %s: %w", key, err)
	}
	if err := s.store.TouchStory(ctx, st.ID); err != nil {
		slog.Warn("touch story", "story_id", st.ID, "error", err)
	}

	s.syncBacklogItem(ctx, ec, res.Status)

	s.publishProgress(ctx, ec, kind, cp, string(cp.Status), res.Summary, res.Data)
	s.metrics.PhasesCompleted.Add(ctx, 1)

	slog.Info("phase executed",
		"story_id", st.ID,
		"phase", kind,
		"phase_key", key,
		"outcome", res.Status,
		"checkpoint_status", cp.Status,
	)
	return res, nil
}

// getOrCreateCheckpoint resolves the checkpoint for a phase key, creating it
// lazily with status Pending on first execution.
func (s *PhaseEngineService) getOrCreateCheckpoint(ctx context.Context, kind phase.Kind, key string, ec phase.ExecutionContext) (*checkpoint.Checkpoint, error) {
	cp, err := s.store.GetCheckpoint(ctx, ec.StoryID, key)
	if err == nil {
		return cp, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load checkpoint %s: %w", key, err)
	}

	cp = &checkpoint.Checkpoint{
		ID:       uuid.NewString(),
		StoryID:  ec.StoryID,
		PhaseKey: key,
		Phase:    kind,
		Branch:   ec.Branch,
		Status:   checkpoint.StatusPending,
		Target:   1,
	}
	if err := s.store.CreateCheckpoint(ctx, cp); err != nil {
		return nil, fmt.Errorf("create checkpoint %s: %w", key, err)
	}
	return cp, nil
}

// revertCheckpoint puts a checkpoint back to Pending after a failed
// execution, recording the error in the progress snapshot. Persistence
// failures are logged, never allowed to mask the original error.
func (s *PhaseEngineService) revertCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint, cause error) {
	cp.Status = checkpoint.StatusPending
	cp.ClearLock()
	cp.LastError = cause.Error()
	if err := s.store.UpdateCheckpoint(ctx, cp); err != nil {
		slog.Error("revert checkpoint", "phase_key", cp.PhaseKey, "error", err)
	}
}

// syncBacklogItem advances the backlog item paired with this execution:
// Complete on a completed outcome, back to Pending on blocked or failed
// outcomes so the scheduler re-attempts, untouched on cancellation (the item
// resumes with the phase). Items are never silently dropped.
func (s *PhaseEngineService) syncBacklogItem(ctx context.Context, ec phase.ExecutionContext, outcome phase.Outcome) {
	itemID := ec.Meta(phase.MetaBacklogItemID)
	if itemID == "" {
		return
	}
	item, err := s.store.GetBacklogItem(ctx, ec.StoryID, itemID)
	if err != nil {
		slog.Warn("load backlog item", "backlog_id", itemID, "error", err)
		return
	}

	switch outcome {
	case phase.OutcomeCompleted:
		item.Status = backlog.StatusComplete
		if item.CompletedAt == nil {
			now := time.Now().UTC()
			item.CompletedAt = &now
		}
	case phase.OutcomeCancelled:
		return
	default:
		item.Status = backlog.StatusPending
	}

	if err := s.store.UpdateBacklogItem(ctx, item); err != nil {
		slog.Warn("update backlog item", "backlog_id", itemID, "error", err)
	}
}

// revertBacklogItem puts the paired backlog item back to Pending after an
// execution failure.
func (s *PhaseEngineService) revertBacklogItem(ctx context.Context, ec phase.ExecutionContext) {
	itemID := ec.Meta(phase.MetaBacklogItemID)
	if itemID == "" {
		return
	}
	item, err := s.store.GetBacklogItem(ctx, ec.StoryID, itemID)
	if err != nil {
		slog.Warn("load backlog item", "backlog_id", itemID, "error", err)
		return
	}
	item.Status = backlog.StatusPending
	if err := s.store.UpdateBacklogItem(ctx, item); err != nil {
		slog.Warn("update backlog item", "backlog_id", itemID, "error", err)
	}
}

// persistTranscripts stores any transcript entries the runner produced,
// attaching checkpoint id, branch, phase key and target entity id to each.
// Transcript persistence is best-effort.
func (s *PhaseEngineService) persistTranscripts(ctx context.Context, cp *checkpoint.Checkpoint, ec phase.ExecutionContext, res *phase.Result) {
	for _, tr := range res.Transcripts {
		rec := transcriptRecord(cp, ec, tr.Role, tr.Content)
		if err := s.store.AppendTranscript(ctx, rec); err != nil {
			slog.Warn("append transcript", "checkpoint_id", cp.ID, "error", err)
		}
	}
}

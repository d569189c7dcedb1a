package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/inkforge/weaver/internal/domain/phase"
	"github.com/inkforge/weaver/internal/port/jobqueue"
)

// JobConsumer pulls phase jobs off the queue, rebuilds the execution context
// and drives the engine. After a completed execution it asks the scheduler
// for the next ready backlog item, so a story advances one phase per job.
type JobConsumer struct {
	engine    *PhaseEngineService
	scheduler *SchedulerService
	queue     jobqueue.Queue
}

// NewJobConsumer creates a JobConsumer with all dependencies.
func NewJobConsumer(engine *PhaseEngineService, scheduler *SchedulerService, queue jobqueue.Queue) *JobConsumer {
	return &JobConsumer{engine: engine, scheduler: scheduler, queue: queue}
}

// Start subscribes to all phase job subjects. The returned function cancels
// the subscription.
func (c *JobConsumer) Start(ctx context.Context) (func(), error) {
	cancel, err := c.queue.Subscribe(ctx, jobqueue.SubjectPhaseJobs+".>", c.Handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe phase jobs: %w", err)
	}
	slog.Info("job consumer started", "subject", jobqueue.SubjectPhaseJobs+".>")
	return cancel, nil
}

// Handle processes one phase job message. A returned error NAKs the message;
// the queue's redelivery policy owns retries, the engine never retries itself.
func (c *JobConsumer) Handle(ctx context.Context, subject string, data []byte) error {
	var payload jobqueue.PhaseJobPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		// A payload that cannot be decoded will never succeed; drop it.
		slog.Error("drop undecodable phase job", "subject", subject, "error", err)
		return nil
	}

	kind, err := kindFromSubject(subject, payload.Phase)
	if err != nil {
		slog.Error("drop phase job with unknown phase", "subject", subject, "phase", payload.Phase)
		return nil
	}

	ec := executionContext(payload)

	res, err := c.engine.ExecutePhase(ctx, kind, ec)
	if err != nil {
		return fmt.Errorf("execute %s job %s: %w", kind, payload.JobID, err)
	}
	if res.Status != phase.OutcomeCompleted {
		// Only a completed phase advances the backlog. Blocked and
		// cancelled runs wait for their condition to clear; chaining here
		// would re-enqueue the same item immediately.
		return nil
	}

	st, err := c.engine.store.GetStory(ctx, payload.StoryID)
	if err != nil {
		slog.Warn("load story for scheduling", "story_id", payload.StoryID, "error", err)
		return nil
	}
	if err := c.scheduler.Schedule(ctx, st, ec); err != nil {
		slog.Error("schedule next backlog item", "story_id", payload.StoryID, "error", err)
	}
	return nil
}

// kindFromSubject resolves the phase kind from the subject suffix, falling
// back to the payload's phase field.
func kindFromSubject(subject, payloadPhase string) (phase.Kind, error) {
	name := payloadPhase
	if i := strings.LastIndex(subject, "."); i >= 0 && i+1 < len(subject) {
		name = subject[i+1:]
	}
	for _, k := range phase.Kinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown phase %q", name)
}

// executionContext rebuilds the phase execution context from a job payload.
func executionContext(p jobqueue.PhaseJobPayload) phase.ExecutionContext {
	ec := phase.NewExecutionContext(p.StoryID, p.AgentID, p.ConversationID, p.Metadata).
		WithBranch(p.Branch)
	ec.InvokedByJobID = p.JobID
	ec.BlueprintID = ec.Meta(phase.MetaBlueprintID)
	ec.ScrollID = ec.Meta(phase.MetaScrollID)
	ec.SceneID = ec.Meta(phase.MetaSceneID)
	if v := ec.Meta(phase.MetaIterationIndex); v != "" {
		if idx, err := strconv.Atoi(v); err == nil {
			ec.Iteration = &idx
		}
	}
	return ec
}

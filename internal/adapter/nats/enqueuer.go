package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inkforge/weaver/internal/domain/phase"
	"github.com/inkforge/weaver/internal/port/jobqueue"
)

// Enqueuer implements jobqueue.Enqueuer by publishing one PhaseJobPayload per
// call to weaver.jobs.<phase kind>. It works over the queue port so any
// transport (or a test double) can back it.
type Enqueuer struct {
	queue jobqueue.Queue
}

// NewEnqueuer creates an Enqueuer publishing through the given queue.
func NewEnqueuer(queue jobqueue.Queue) *Enqueuer {
	return &Enqueuer{queue: queue}
}

func (e *Enqueuer) enqueue(ctx context.Context, kind phase.Kind, job jobqueue.Job) (string, error) {
	payload := jobqueue.PhaseJobPayload{
		JobID:          uuid.NewString(),
		Phase:          string(kind),
		StoryID:        job.StoryID,
		AgentID:        job.AgentID,
		ConversationID: job.ConversationID,
		TargetID:       job.TargetID,
		ProviderID:     job.ProviderID,
		ModelID:        job.ModelID,
		Branch:         job.Branch,
		Metadata:       job.Metadata,
		EnqueuedAt:     time.Now().UTC(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal phase job: %w", err)
	}

	subject := jobqueue.SubjectPhaseJobs + "." + string(kind)
	if err := e.queue.Publish(ctx, subject, data); err != nil {
		return "", fmt.Errorf("enqueue %s job: %w", kind, err)
	}
	return payload.JobID, nil
}

func (e *Enqueuer) EnqueueVisionPlanning(ctx context.Context, job jobqueue.Job) (string, error) {
	return e.enqueue(ctx, phase.KindVisionPlanner, job)
}

func (e *Enqueuer) EnqueueWorldBible(ctx context.Context, job jobqueue.Job) (string, error) {
	return e.enqueue(ctx, phase.KindWorldBible, job)
}

func (e *Enqueuer) EnqueueIterativePlanning(ctx context.Context, job jobqueue.Job) (string, error) {
	return e.enqueue(ctx, phase.KindIterativePlanner, job)
}

func (e *Enqueuer) EnqueueChapterArchitect(ctx context.Context, job jobqueue.Job) (string, error) {
	return e.enqueue(ctx, phase.KindChapterArchitect, job)
}

func (e *Enqueuer) EnqueueScrollRefiner(ctx context.Context, job jobqueue.Job) (string, error) {
	return e.enqueue(ctx, phase.KindScrollRefiner, job)
}

func (e *Enqueuer) EnqueueSceneWeaver(ctx context.Context, job jobqueue.Job) (string, error) {
	return e.enqueue(ctx, phase.KindSceneWeaver, job)
}

func (e *Enqueuer) EnqueueLoreFulfillment(ctx context.Context, job jobqueue.Job) (string, error) {
	return e.enqueue(ctx, phase.KindLoreFulfillment, job)
}

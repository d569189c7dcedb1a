// Package jobqueue defines the durable job queue port: phase job enqueueing,
// job consumption, and progress event publishing.
package jobqueue

import "context"

// Handler processes a job received from the queue. A non-nil error NAKs the
// message so the queue's redelivery policy governs retries.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the transport-level port for publishing and subscribing.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for weaver queue traffic.
const (
	// SubjectPhaseJobs is the prefix for phase jobs; the full subject is
	// weaver.jobs.<phase kind>.
	SubjectPhaseJobs = "weaver.jobs"

	// SubjectProgress is the prefix for phase progress events; the full
	// subject is weaver.progress.<phase kind>.
	SubjectProgress = "weaver.progress"
)

// Enqueuer is the port the scheduler and the lore watcher use to submit
// phase work. One method per phase kind; each call enqueues exactly one job
// and returns its id.
type Enqueuer interface {
	EnqueueVisionPlanning(ctx context.Context, job Job) (string, error)
	EnqueueWorldBible(ctx context.Context, job Job) (string, error)
	EnqueueIterativePlanning(ctx context.Context, job Job) (string, error)
	EnqueueChapterArchitect(ctx context.Context, job Job) (string, error)
	EnqueueScrollRefiner(ctx context.Context, job Job) (string, error)
	EnqueueSceneWeaver(ctx context.Context, job Job) (string, error)
	EnqueueLoreFulfillment(ctx context.Context, job Job) (string, error)
}

// Job carries everything a worker needs to rebuild the execution context for
// one phase invocation.
type Job struct {
	StoryID        string            `json:"story_id"`
	AgentID        string            `json:"agent_id"`
	ConversationID string            `json:"conversation_id"`
	TargetID       string            `json:"target_id,omitempty"`
	ProviderID     string            `json:"provider_id"`
	ModelID        string            `json:"model_id,omitempty"`
	Branch         string            `json:"branch"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Package checkpoint defines the persisted execution state for one phase key.
package checkpoint

import (
	"time"

	"github.com/inkforge/weaver/internal/domain/phase"
)

// Status represents the lifecycle state of a checkpoint.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusCancelled  Status = "cancelled"
)

// Checkpoint records execution state for one (story, phase key) pair.
// The lock fields are advisory observability metadata, not a mutex: they are
// populated only while Status is InProgress and cleared on every other
// transition.
type Checkpoint struct {
	ID       string     `json:"id"`
	StoryID  string     `json:"story_id"`
	PhaseKey string     `json:"phase_key"`
	Phase    phase.Kind `json:"phase"`
	Branch   string     `json:"branch"`
	Status   Status     `json:"status"`

	LockAgentID        string     `json:"lock_agent_id,omitempty"`
	LockConversationID string     `json:"lock_conversation_id,omitempty"`
	LockedAt           *time.Time `json:"locked_at,omitempty"`

	Completed int `json:"completed"`
	Target    int `json:"target"`

	Summary   string    `json:"summary,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AcquireLock stamps the advisory lock fields and moves the checkpoint to
// InProgress. A zero Target defaults to one unit of work.
func (c *Checkpoint) AcquireLock(agentID, conversationID string, now time.Time) {
	c.Status = StatusInProgress
	c.LockAgentID = agentID
	c.LockConversationID = conversationID
	c.LockedAt = &now
	if c.Target == 0 {
		c.Target = 1
	}
}

// ClearLock nulls the advisory lock fields.
func (c *Checkpoint) ClearLock() {
	c.LockAgentID = ""
	c.LockConversationID = ""
	c.LockedAt = nil
}

// Locked reports whether any advisory lock field is populated.
func (c *Checkpoint) Locked() bool {
	return c.LockAgentID != "" || c.LockConversationID != "" || c.LockedAt != nil
}

// StatusForOutcome maps a runner outcome to the checkpoint status the engine
// persists after the run. Blocked and failed outcomes revert to Pending so the
// scheduler re-attempts once the blocking condition clears.
func StatusForOutcome(o phase.Outcome) Status {
	switch o {
	case phase.OutcomeCompleted:
		return StatusComplete
	case phase.OutcomeCancelled:
		return StatusCancelled
	default:
		// Skipped, Pending, NotImplemented, Blocked, Failed all leave the
		// checkpoint eligible for re-attempt.
		return StatusPending
	}
}

// Package story defines the Story domain entity, the unit of work the
// weaver pipeline generates.
package story

import "time"

// Status represents the lifecycle state of a story.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusCancelled  Status = "cancelled"
)

// DefaultBranch is the primary branch slug used when a story does not
// declare one explicitly.
const DefaultBranch = "main"

// Story is the root aggregate driven by the phase engine. Phases, checkpoints
// and backlog items all hang off a story.
type Story struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Status             Status    `json:"status"`
	PrimaryBranch      string    `json:"primary_branch"`
	ConversationPlanID string    `json:"conversation_plan_id,omitempty"`
	Version            int       `json:"version"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Branch returns the story's primary branch, falling back to DefaultBranch.
func (s *Story) Branch() string {
	if s.PrimaryBranch == "" {
		return DefaultBranch
	}
	return s.PrimaryBranch
}

// CreateRequest holds the fields for creating a new story.
type CreateRequest struct {
	Title         string `json:"title"`
	PrimaryBranch string `json:"primary_branch,omitempty"`
}

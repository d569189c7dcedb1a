// Package entity defines the downstream generation entities the scheduler
// materializes as stubs: chapter blueprints, scrolls, sections, scenes,
// world-bible entries, iteration passes and lore requirements. Their content
// is owned by the generation layer; the orchestrator only needs identity and
// placement.
package entity

import "time"

// ChapterBlueprint is the structural outline for one chapter of a story.
type ChapterBlueprint struct {
	ID           string    `json:"id"`
	StoryID      string    `json:"story_id"`
	Branch       string    `json:"branch,omitempty"`
	Slug         string    `json:"slug"`
	ChapterIndex int       `json:"chapter_index"`
	CreatedAt    time.Time `json:"created_at"`
}

// Scroll is one versioned draft of a chapter's prose.
type Scroll struct {
	ID          string    `json:"id"`
	StoryID     string    `json:"story_id"`
	BlueprintID string    `json:"blueprint_id"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
}

// Section is one ordered division within a scroll.
type Section struct {
	ID        string    `json:"id"`
	ScrollID  string    `json:"scroll_id"`
	Index     int       `json:"index"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Scene is one woven scene within a section.
type Scene struct {
	ID        string    `json:"id"`
	SectionID string    `json:"section_id"`
	Index     int       `json:"index"`
	CreatedAt time.Time `json:"created_at"`
}

// WorldBibleDomainCore is the domain slug for the canonical world bible.
const WorldBibleDomainCore = "core"

// WorldBible is one world-bible entry for a story. Branch is empty for the
// default branch.
type WorldBible struct {
	ID        string    `json:"id"`
	StoryID   string    `json:"story_id"`
	Domain    string    `json:"domain"`
	Branch    string    `json:"branch,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IterationPass records one completed pass of the iterative planner.
type IterationPass struct {
	ID        string    `json:"id"`
	StoryID   string    `json:"story_id"`
	Index     int       `json:"index"`
	CreatedAt time.Time `json:"created_at"`
}

// LoreRequirement is an unresolved piece of lore a phase is blocked on.
type LoreRequirement struct {
	ID          string            `json:"id"`
	StoryID     string            `json:"story_id"`
	Branch      string            `json:"branch,omitempty"`
	Description string            `json:"description"`
	Fulfilled   bool              `json:"fulfilled"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// MetaAutoFulfillRequestedAt stamps a lore requirement once the SLA watcher
// has enqueued an auto-fulfillment job for it.
const MetaAutoFulfillRequestedAt = "autoFulfillRequestedAt"

// ConversationTask pairs a backlog item with the conversation-plan task that
// tracks it in the chat surface.
type ConversationTask struct {
	ID                 string    `json:"id"`
	ConversationPlanID string    `json:"conversation_plan_id"`
	BacklogItemID      string    `json:"backlog_item_id"`
	CreatedAt          time.Time `json:"created_at"`
}

// TranscriptRecord is one persisted transcript entry attached to a checkpoint.
type TranscriptRecord struct {
	ID           string    `json:"id"`
	CheckpointID string    `json:"checkpoint_id"`
	StoryID      string    `json:"story_id"`
	Branch       string    `json:"branch,omitempty"`
	PhaseKey     string    `json:"phase_key"`
	TargetID     string    `json:"target_id,omitempty"`
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}

// Package phase defines the generation phases of the weaver pipeline and the
// execution context threaded through a single phase invocation.
package phase

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies one named stage of the generation pipeline.
type Kind string

const (
	KindVisionPlanner    Kind = "vision_planner"
	KindWorldBible       Kind = "world_bible_manager"
	KindIterativePlanner Kind = "iterative_planner"
	KindChapterArchitect Kind = "chapter_architect"
	KindScrollRefiner    Kind = "scroll_refiner"
	KindSceneWeaver      Kind = "scene_weaver"
	KindLoreFulfillment  Kind = "lore_fulfillment"
)

// Kinds lists every phase kind; the runner registry checks coverage against it.
var Kinds = []Kind{
	KindVisionPlanner,
	KindWorldBible,
	KindIterativePlanner,
	KindChapterArchitect,
	KindScrollRefiner,
	KindSceneWeaver,
	KindLoreFulfillment,
}

// Outcome is the status a runner reports for one phase invocation.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeSkipped        Outcome = "skipped"
	OutcomePending        Outcome = "pending"
	OutcomeNotImplemented Outcome = "not_implemented"
	OutcomeBlocked        Outcome = "blocked"
	OutcomeFailed         Outcome = "failed"
	OutcomeCancelled      Outcome = "cancelled"
)

// Metadata keys carried in the execution context bag.
const (
	MetaProviderID         = "providerId"
	MetaModelID            = "modelId"
	MetaPersonaID          = "personaId"
	MetaBacklogItemID      = "backlogItemId"
	MetaConversationTaskID = "conversationTaskId"
	MetaConversationPlanID = "conversationPlanId"
	MetaBlueprintID        = "chapterBlueprintId"
	MetaScrollID           = "chapterScrollId"
	MetaSectionID          = "sectionId"
	MetaSceneID            = "sceneId"
	MetaWorldBibleID       = "worldBibleId"
	MetaIterationIndex     = "iterationIndex"
	MetaCancel             = "cancel"
	MetaResume             = "resume"
)

// ExecutionContext describes one phase invocation. It is constructed once and
// passed down the call chain by value; the metadata bag is copied on
// construction and never mutated in place.
type ExecutionContext struct {
	StoryID        string            `json:"story_id"`
	AgentID        string            `json:"agent_id"`
	ConversationID string            `json:"conversation_id"`
	Branch         string            `json:"branch,omitempty"`
	BlueprintID    string            `json:"blueprint_id,omitempty"`
	ScrollID       string            `json:"scroll_id,omitempty"`
	SceneID        string            `json:"scene_id,omitempty"`
	Iteration      *int              `json:"iteration,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	InvokedByJobID string            `json:"invoked_by_job_id,omitempty"`
}

// NewExecutionContext builds a context with a defensive copy of the metadata bag.
func NewExecutionContext(storyID, agentID, conversationID string, metadata map[string]string) ExecutionContext {
	return ExecutionContext{
		StoryID:        storyID,
		AgentID:        agentID,
		ConversationID: conversationID,
		Metadata:       copyMeta(metadata),
	}
}

// Meta returns the metadata value for key, or "" when absent.
func (ec ExecutionContext) Meta(key string) string {
	return ec.Metadata[key]
}

// MetaFlag reports whether the metadata bag carries a truthy flag for key.
func (ec ExecutionContext) MetaFlag(key string) bool {
	switch strings.ToLower(ec.Metadata[key]) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// WithBranch returns a copy of the context with the branch slug set.
func (ec ExecutionContext) WithBranch(branch string) ExecutionContext {
	ec.Branch = branch
	return ec
}

// WithMeta returns a copy of the context with one extra metadata entry.
func (ec ExecutionContext) WithMeta(key, value string) ExecutionContext {
	merged := copyMeta(ec.Metadata)
	if merged == nil {
		merged = make(map[string]string, 1)
	}
	merged[key] = value
	ec.Metadata = merged
	return ec
}

// TargetID returns the most specific target entity id set on the context:
// scene over scroll over blueprint.
func (ec ExecutionContext) TargetID() string {
	switch {
	case ec.SceneID != "":
		return ec.SceneID
	case ec.ScrollID != "":
		return ec.ScrollID
	default:
		return ec.BlueprintID
	}
}

// Key builds the composite phase key identifying one checkpoint. Two
// executions with the same key are the same logical unit of work.
func (ec ExecutionContext) Key(kind Kind) string {
	var b strings.Builder
	b.WriteString(string(kind))
	if ec.Branch != "" && ec.Branch != "main" {
		b.WriteString(":")
		b.WriteString(ec.Branch)
	}
	if ec.Iteration != nil {
		fmt.Fprintf(&b, ":iter%d", *ec.Iteration)
	}
	if target := ec.TargetID(); target != "" {
		b.WriteString(":")
		b.WriteString(target)
	}
	return b.String()
}

func copyMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Transcript is one role-tagged entry produced by a runner during a phase.
type Transcript struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Result is what a runner reports back to the phase engine.
type Result struct {
	Status      Outcome        `json:"status"`
	Summary     string         `json:"summary"`
	Data        map[string]any `json:"data,omitempty"`
	Transcripts []Transcript   `json:"transcripts,omitempty"`
}

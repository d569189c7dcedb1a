// Package backlog defines schedulable units of generation work and the
// tag-based dependency scan that orders them.
package backlog

import (
	"strings"
	"time"

	"github.com/inkforge/weaver/internal/domain/phase"
)

// Status represents the lifecycle state of a backlog item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
)

// Item is one discrete unit of generation work belonging to a story.
//
// Outputs carries both semantic dependency tags (e.g. "chapter-blueprint")
// and key=value tokens recording ids of entities the item produced. The
// tokens are managed exclusively through OutputValue and SetOutputValue.
type Item struct {
	ID          string     `json:"id"`
	StoryID     string     `json:"story_id"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Inputs      []string   `json:"inputs"`
	Outputs     []string   `json:"outputs"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Output tags understood by the scheduler, mapped to the phase that produces
// them. Matching is case-insensitive.
var tagPhases = map[string]phase.Kind{
	"vision-plan":       phase.KindVisionPlanner,
	"world-bible":       phase.KindWorldBible,
	"iteration-plan":    phase.KindIterativePlanner,
	"chapter-blueprint": phase.KindChapterArchitect,
	"chapter-scroll":    phase.KindScrollRefiner,
	"scene-draft":       phase.KindSceneWeaver,
	"scene":             phase.KindSceneWeaver,
	"lore-requirement":  phase.KindLoreFulfillment,
}

// PhaseFor returns the phase that produces this item's outputs, scanning the
// output tags in order. Key=value tokens are skipped.
func PhaseFor(item *Item) (phase.Kind, bool) {
	for _, tag := range item.Outputs {
		if strings.Contains(tag, "=") {
			continue
		}
		if kind, ok := tagPhases[strings.ToLower(tag)]; ok {
			return kind, true
		}
	}
	return "", false
}

// OutputValue reads a key=value token from the item's outputs.
func OutputValue(item *Item, key string) (string, bool) {
	prefix := key + "="
	for _, tag := range item.Outputs {
		if strings.HasPrefix(tag, prefix) {
			return tag[len(prefix):], true
		}
	}
	return "", false
}

// SetOutputValue writes a key=value token onto the item's outputs, replacing
// any existing token for the same key.
func SetOutputValue(item *Item, key, value string) {
	prefix := key + "="
	for i, tag := range item.Outputs {
		if strings.HasPrefix(tag, prefix) {
			item.Outputs[i] = prefix + value
			return
		}
	}
	item.Outputs = append(item.Outputs, prefix+value)
}

// Satisfied reports whether every input tag of item is produced, as an output
// tag, by some other Complete item. Items with no inputs are always
// satisfiable. Tag comparison is case-insensitive.
func Satisfied(item *Item, all []Item) bool {
	for _, input := range item.Inputs {
		if !producedByComplete(input, item.ID, all) {
			return false
		}
	}
	return true
}

func producedByComplete(tag, selfID string, all []Item) bool {
	for i := range all {
		if all[i].ID == selfID || all[i].Status != StatusComplete {
			continue
		}
		for _, out := range all[i].Outputs {
			if strings.EqualFold(out, tag) {
				return true
			}
		}
	}
	return false
}

// NextReady returns the first Pending item, in creation order, that maps to a
// runnable phase and whose dependencies are satisfied. Returns nil when no
// item is ready.
func NextReady(items []Item) *Item {
	for i := range items {
		if items[i].Status != StatusPending {
			continue
		}
		if _, ok := PhaseFor(&items[i]); !ok {
			continue
		}
		if Satisfied(&items[i], items) {
			return &items[i]
		}
	}
	return nil
}

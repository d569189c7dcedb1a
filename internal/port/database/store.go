// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/inkforge/weaver/internal/domain/backlog"
	"github.com/inkforge/weaver/internal/domain/checkpoint"
	"github.com/inkforge/weaver/internal/domain/entity"
	"github.com/inkforge/weaver/internal/domain/story"
)

// Store is the port interface for database operations. Implementations must
// provide per-row optimistic concurrency on stories and checkpoints (the
// Version field) and efficient lookup by (story, phase key) and
// (story, backlog id).
type Store interface {
	// Stories
	CreateStory(ctx context.Context, req story.CreateRequest) (*story.Story, error)
	GetStory(ctx context.Context, id string) (*story.Story, error)
	UpdateStoryStatus(ctx context.Context, id string, status story.Status) error
	TouchStory(ctx context.Context, id string) error

	// Checkpoints
	GetCheckpoint(ctx context.Context, storyID, phaseKey string) (*checkpoint.Checkpoint, error)
	CreateCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error
	UpdateCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error

	// Backlog
	ListBacklog(ctx context.Context, storyID string) ([]backlog.Item, error)
	GetBacklogItem(ctx context.Context, storyID, itemID string) (*backlog.Item, error)
	CreateBacklogItem(ctx context.Context, item *backlog.Item) error
	UpdateBacklogItem(ctx context.Context, item *backlog.Item) error

	// Generation entity stubs
	GetBlueprint(ctx context.Context, id string) (*entity.ChapterBlueprint, error)
	CreateBlueprint(ctx context.Context, bp *entity.ChapterBlueprint) error
	NextChapterIndex(ctx context.Context, storyID string) (int, error)
	CreateScroll(ctx context.Context, sc *entity.Scroll) error
	GetScroll(ctx context.Context, id string) (*entity.Scroll, error)
	CreateSection(ctx context.Context, sec *entity.Section) error
	FirstSection(ctx context.Context, scrollID string) (*entity.Section, error)
	CreateScene(ctx context.Context, sn *entity.Scene) error
	NextSceneIndex(ctx context.Context, sectionID string) (int, error)
	FindWorldBible(ctx context.Context, storyID, domain, branch string) (*entity.WorldBible, error)
	CreateWorldBible(ctx context.Context, wb *entity.WorldBible) error
	MaxIterationIndex(ctx context.Context, storyID string) (int, error)
	CreateIterationPass(ctx context.Context, ip *entity.IterationPass) error

	// Lore requirements
	ListUnfulfilledLore(ctx context.Context, olderThan time.Time) ([]entity.LoreRequirement, error)
	UpdateLoreMetadata(ctx context.Context, id string, metadata map[string]string) error

	// Conversation pairing
	FindConversationTask(ctx context.Context, conversationPlanID, backlogItemID string) (*entity.ConversationTask, error)

	// Transcripts
	AppendTranscript(ctx context.Context, rec *entity.TranscriptRecord) error
	ListTranscripts(ctx context.Context, checkpointID string) ([]entity.TranscriptRecord, error)
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/inkforge/weaver/internal/domain"
	"github.com/inkforge/weaver/internal/domain/entity"
)

func (s *Store) AppendTranscript(ctx context.Context, rec *entity.TranscriptRecord) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO transcripts (id, checkpoint_id, story_id, branch, phase_key, target_id, role, content)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7, $8)
		 RETURNING created_at`,
		rec.ID, rec.CheckpointID, rec.StoryID, rec.Branch, rec.PhaseKey,
		rec.TargetID, rec.Role, rec.Content,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

func (s *Store) ListTranscripts(ctx context.Context, checkpointID string) ([]entity.TranscriptRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, checkpoint_id, story_id, COALESCE(branch, ''), phase_key,
		        COALESCE(target_id, ''), role, content, created_at
		 FROM transcripts WHERE checkpoint_id = $1 ORDER BY created_at, id`,
		checkpointID)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	var recs []entity.TranscriptRecord
	for rows.Next() {
		var rec entity.TranscriptRecord
		if err := rows.Scan(&rec.ID, &rec.CheckpointID, &rec.StoryID, &rec.Branch,
			&rec.PhaseKey, &rec.TargetID, &rec.Role, &rec.Content, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	return recs, nil
}

// FindConversationTask looks up the conversation-plan task paired with a
// backlog item, if the chat surface created one.
func (s *Store) FindConversationTask(ctx context.Context, conversationPlanID, backlogItemID string) (*entity.ConversationTask, error) {
	var ct entity.ConversationTask
	err := s.pool.QueryRow(ctx,
		`SELECT id, conversation_plan_id, backlog_item_id, created_at
		 FROM conversation_tasks
		 WHERE conversation_plan_id = $1 AND backlog_item_id = $2`,
		conversationPlanID, backlogItemID,
	).Scan(&ct.ID, &ct.ConversationPlanID, &ct.BacklogItemID, &ct.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("find conversation task: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("find conversation task: %w", err)
	}
	return &ct, nil
}

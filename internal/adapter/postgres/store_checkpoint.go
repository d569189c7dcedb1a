package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/inkforge/weaver/internal/domain"
	"github.com/inkforge/weaver/internal/domain/checkpoint"
)

const checkpointColumns = `id, story_id, phase_key, phase, branch, status,
	COALESCE(lock_agent_id::text, ''), COALESCE(lock_conversation_id::text, ''), locked_at,
	completed, target, summary, last_error, version, created_at, updated_at`

func scanCheckpoint(row pgx.Row) (*checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	err := row.Scan(&cp.ID, &cp.StoryID, &cp.PhaseKey, &cp.Phase, &cp.Branch, &cp.Status,
		&cp.LockAgentID, &cp.LockConversationID, &cp.LockedAt,
		&cp.Completed, &cp.Target, &cp.Summary, &cp.LastError, &cp.Version,
		&cp.CreatedAt, &cp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *Store) GetCheckpoint(ctx context.Context, storyID, phaseKey string) (*checkpoint.Checkpoint, error) {
	cp, err := scanCheckpoint(s.pool.QueryRow(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoints WHERE story_id = $1 AND phase_key = $2`,
		storyID, phaseKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get checkpoint %s: %w", phaseKey, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get checkpoint %s: %w", phaseKey, err)
	}
	return cp, nil
}

func (s *Store) CreateCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO checkpoints (id, story_id, phase_key, phase, branch, status, completed, target, summary, last_error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING version, created_at, updated_at`,
		cp.ID, cp.StoryID, cp.PhaseKey, cp.Phase, cp.Branch, cp.Status,
		cp.Completed, cp.Target, cp.Summary, cp.LastError,
	).Scan(&cp.Version, &cp.CreatedAt, &cp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create checkpoint %s: %w", cp.PhaseKey, err)
	}
	return nil
}

// UpdateCheckpoint persists all mutable checkpoint fields with optimistic
// concurrency on the version column.
func (s *Store) UpdateCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE checkpoints
		 SET status = $3, lock_agent_id = NULLIF($4, '')::uuid, lock_conversation_id = NULLIF($5, '')::uuid,
		     locked_at = $6, completed = $7, target = $8, summary = $9, last_error = $10,
		     version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND version = $2`,
		cp.ID, cp.Version, cp.Status, cp.LockAgentID, cp.LockConversationID,
		cp.LockedAt, cp.Completed, cp.Target, cp.Summary, cp.LastError)
	if err != nil {
		return fmt.Errorf("update checkpoint %s: %w", cp.PhaseKey, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update checkpoint %s: %w", cp.PhaseKey, domain.ErrConflict)
	}
	cp.Version++
	return nil
}

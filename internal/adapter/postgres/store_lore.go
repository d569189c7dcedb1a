package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/inkforge/weaver/internal/domain"
	"github.com/inkforge/weaver/internal/domain/entity"
)

// ListUnfulfilledLore returns unfulfilled lore requirements created before the
// cutoff, oldest first.
func (s *Store) ListUnfulfilledLore(ctx context.Context, olderThan time.Time) ([]entity.LoreRequirement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, story_id, COALESCE(branch, ''), description, fulfilled, metadata, created_at
		 FROM lore_requirements
		 WHERE fulfilled = FALSE AND created_at < $1
		 ORDER BY created_at`,
		olderThan)
	if err != nil {
		return nil, fmt.Errorf("list unfulfilled lore: %w", err)
	}
	defer rows.Close()

	var reqs []entity.LoreRequirement
	for rows.Next() {
		var req entity.LoreRequirement
		if err := rows.Scan(&req.ID, &req.StoryID, &req.Branch, &req.Description,
			&req.Fulfilled, &req.Metadata, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lore requirement: %w", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unfulfilled lore: %w", err)
	}
	return reqs, nil
}

func (s *Store) UpdateLoreMetadata(ctx context.Context, id string, metadata map[string]string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE lore_requirements SET metadata = $2 WHERE id = $1`,
		id, metadata)
	if err != nil {
		return fmt.Errorf("update lore metadata %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update lore metadata %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/inkforge/weaver/internal/domain"
	"github.com/inkforge/weaver/internal/domain/backlog"
)

const backlogColumns = `id, story_id, description, status, inputs, outputs, created_at, started_at, completed_at`

func scanBacklogItem(row pgx.Row) (*backlog.Item, error) {
	var item backlog.Item
	err := row.Scan(&item.ID, &item.StoryID, &item.Description, &item.Status,
		&item.Inputs, &item.Outputs, &item.CreatedAt, &item.StartedAt, &item.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListBacklog returns all backlog items for a story in creation order, which
// is the order the dependency scan expects.
func (s *Store) ListBacklog(ctx context.Context, storyID string) ([]backlog.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+backlogColumns+` FROM backlog_items WHERE story_id = $1 ORDER BY created_at, id`,
		storyID)
	if err != nil {
		return nil, fmt.Errorf("list backlog: %w", err)
	}
	defer rows.Close()

	var items []backlog.Item
	for rows.Next() {
		item, err := scanBacklogItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backlog item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list backlog: %w", err)
	}
	return items, nil
}

func (s *Store) GetBacklogItem(ctx context.Context, storyID, itemID string) (*backlog.Item, error) {
	item, err := scanBacklogItem(s.pool.QueryRow(ctx,
		`SELECT `+backlogColumns+` FROM backlog_items WHERE story_id = $1 AND id = $2`,
		storyID, itemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get backlog item %s: %w", itemID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get backlog item %s: %w", itemID, err)
	}
	return item, nil
}

func (s *Store) CreateBacklogItem(ctx context.Context, item *backlog.Item) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO backlog_items (id, story_id, description, status, inputs, outputs)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		item.ID, item.StoryID, item.Description, item.Status, item.Inputs, item.Outputs,
	).Scan(&item.CreatedAt)
	if err != nil {
		return fmt.Errorf("create backlog item: %w", err)
	}
	return nil
}

func (s *Store) UpdateBacklogItem(ctx context.Context, item *backlog.Item) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE backlog_items
		 SET description = $2, status = $3, inputs = $4, outputs = $5, started_at = $6, completed_at = $7
		 WHERE id = $1`,
		item.ID, item.Description, item.Status, item.Inputs, item.Outputs,
		item.StartedAt, item.CompletedAt)
	if err != nil {
		return fmt.Errorf("update backlog item %s: %w", item.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update backlog item %s: %w", item.ID, domain.ErrNotFound)
	}
	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/inkforge/weaver/internal/domain"
	"github.com/inkforge/weaver/internal/domain/story"
)

func (s *Store) CreateStory(ctx context.Context, req story.CreateRequest) (*story.Story, error) {
	branch := req.PrimaryBranch
	if branch == "" {
		branch = story.DefaultBranch
	}

	var created story.Story
	err := s.pool.QueryRow(ctx,
		`INSERT INTO stories (title, status, primary_branch)
		 VALUES ($1, $2, $3)
		 RETURNING id, title, status, primary_branch, COALESCE(conversation_plan_id::text, ''), version, created_at, updated_at`,
		req.Title, story.StatusDraft, branch,
	).Scan(&created.ID, &created.Title, &created.Status, &created.PrimaryBranch,
		&created.ConversationPlanID, &created.Version, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create story: %w", err)
	}
	return &created, nil
}

func (s *Store) GetStory(ctx context.Context, id string) (*story.Story, error) {
	var st story.Story
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, status, primary_branch, COALESCE(conversation_plan_id::text, ''), version, created_at, updated_at
		 FROM stories WHERE id = $1`,
		id,
	).Scan(&st.ID, &st.Title, &st.Status, &st.PrimaryBranch,
		&st.ConversationPlanID, &st.Version, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get story %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get story %s: %w", id, err)
	}
	return &st, nil
}

func (s *Store) UpdateStoryStatus(ctx context.Context, id string, status story.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE stories SET status = $2, version = version + 1, updated_at = NOW() WHERE id = $1`,
		id, status)
	if err != nil {
		return fmt.Errorf("update story status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update story status %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) TouchStory(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE stories SET updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch story %s: %w", id, err)
	}
	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/inkforge/weaver/internal/domain"
	"github.com/inkforge/weaver/internal/domain/entity"
)

// Generation entity stubs. The scheduler creates these rows so downstream
// phases have a stable target id; the generation layer fills in the content.

func (s *Store) GetBlueprint(ctx context.Context, id string) (*entity.ChapterBlueprint, error) {
	var bp entity.ChapterBlueprint
	err := s.pool.QueryRow(ctx,
		`SELECT id, story_id, COALESCE(branch, ''), slug, chapter_index, created_at
		 FROM chapter_blueprints WHERE id = $1`,
		id,
	).Scan(&bp.ID, &bp.StoryID, &bp.Branch, &bp.Slug, &bp.ChapterIndex, &bp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get blueprint %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get blueprint %s: %w", id, err)
	}
	return &bp, nil
}

func (s *Store) CreateBlueprint(ctx context.Context, bp *entity.ChapterBlueprint) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO chapter_blueprints (id, story_id, branch, slug, chapter_index)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		 RETURNING created_at`,
		bp.ID, bp.StoryID, bp.Branch, bp.Slug, bp.ChapterIndex,
	).Scan(&bp.CreatedAt)
	if err != nil {
		return fmt.Errorf("create blueprint: %w", err)
	}
	return nil
}

func (s *Store) NextChapterIndex(ctx context.Context, storyID string) (int, error) {
	var max int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(chapter_index), 0) FROM chapter_blueprints WHERE story_id = $1`,
		storyID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("next chapter index: %w", err)
	}
	return max + 1, nil
}

func (s *Store) CreateScroll(ctx context.Context, sc *entity.Scroll) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO scrolls (id, story_id, blueprint_id, version)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		sc.ID, sc.StoryID, sc.BlueprintID, sc.Version,
	).Scan(&sc.CreatedAt)
	if err != nil {
		return fmt.Errorf("create scroll: %w", err)
	}
	return nil
}

func (s *Store) GetScroll(ctx context.Context, id string) (*entity.Scroll, error) {
	var sc entity.Scroll
	err := s.pool.QueryRow(ctx,
		`SELECT id, story_id, blueprint_id, version, created_at FROM scrolls WHERE id = $1`,
		id,
	).Scan(&sc.ID, &sc.StoryID, &sc.BlueprintID, &sc.Version, &sc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get scroll %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get scroll %s: %w", id, err)
	}
	return &sc, nil
}

func (s *Store) CreateSection(ctx context.Context, sec *entity.Section) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sections (id, scroll_id, index, title)
		 VALUES ($1, $2, $3, NULLIF($4, ''))
		 RETURNING created_at`,
		sec.ID, sec.ScrollID, sec.Index, sec.Title,
	).Scan(&sec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

func (s *Store) FirstSection(ctx context.Context, scrollID string) (*entity.Section, error) {
	var sec entity.Section
	err := s.pool.QueryRow(ctx,
		`SELECT id, scroll_id, index, COALESCE(title, ''), created_at
		 FROM sections WHERE scroll_id = $1 ORDER BY index LIMIT 1`,
		scrollID,
	).Scan(&sec.ID, &sec.ScrollID, &sec.Index, &sec.Title, &sec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("first section of scroll %s: %w", scrollID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("first section of scroll %s: %w", scrollID, err)
	}
	return &sec, nil
}

func (s *Store) CreateScene(ctx context.Context, sn *entity.Scene) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO scenes (id, section_id, index)
		 VALUES ($1, $2, $3)
		 RETURNING created_at`,
		sn.ID, sn.SectionID, sn.Index,
	).Scan(&sn.CreatedAt)
	if err != nil {
		return fmt.Errorf("create scene: %w", err)
	}
	return nil
}

func (s *Store) NextSceneIndex(ctx context.Context, sectionID string) (int, error) {
	var max int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(index), 0) FROM scenes WHERE section_id = $1`,
		sectionID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("next scene index: %w", err)
	}
	return max + 1, nil
}

// FindWorldBible treats an empty branch and a NULL branch column as the same
// entry, so the canonical bible is shared across default-branch lookups.
func (s *Store) FindWorldBible(ctx context.Context, storyID, bibleDomain, branch string) (*entity.WorldBible, error) {
	var wb entity.WorldBible
	err := s.pool.QueryRow(ctx,
		`SELECT id, story_id, domain, COALESCE(branch, ''), created_at
		 FROM world_bibles
		 WHERE story_id = $1 AND domain = $2 AND COALESCE(branch, '') = $3`,
		storyID, bibleDomain, branch,
	).Scan(&wb.ID, &wb.StoryID, &wb.Domain, &wb.Branch, &wb.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("find world bible %s/%s: %w", bibleDomain, branch, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("find world bible %s/%s: %w", bibleDomain, branch, err)
	}
	return &wb, nil
}

func (s *Store) CreateWorldBible(ctx context.Context, wb *entity.WorldBible) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO world_bibles (id, story_id, domain, branch)
		 VALUES ($1, $2, $3, NULLIF($4, ''))
		 RETURNING created_at`,
		wb.ID, wb.StoryID, wb.Domain, wb.Branch,
	).Scan(&wb.CreatedAt)
	if err != nil {
		return fmt.Errorf("create world bible: %w", err)
	}
	return nil
}

func (s *Store) MaxIterationIndex(ctx context.Context, storyID string) (int, error) {
	var max int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(index), 0) FROM iteration_passes WHERE story_id = $1`,
		storyID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max iteration index: %w", err)
	}
	return max, nil
}

func (s *Store) CreateIterationPass(ctx context.Context, ip *entity.IterationPass) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO iteration_passes (id, story_id, index)
		 VALUES ($1, $2, $3)
		 RETURNING created_at`,
		ip.ID, ip.StoryID, ip.Index,
	).Scan(&ip.CreatedAt)
	if err != nil {
		return fmt.Errorf("create iteration pass: %w", err)
	}
	return nil
}

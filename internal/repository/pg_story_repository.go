package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"storyteller-server/internal/model"
)

// Compile-time check to ensure pgStoryRepository implements StoryRepository
var _ StoryRepository = (*pgStoryRepository)(nil)

type pgStoryRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgStoryRepository creates a new PostgreSQL-backed StoryRepository.
func NewPgStoryRepository(db DBTX, logger *zap.Logger) StoryRepository {
	return &pgStoryRepository{
		db:     db,
		logger: logger.Named("PgStoryRepo"),
	}
}

// CreateStory inserts the story shell before generation starts.
func (r *pgStoryRepository) CreateStory(ctx context.Context, story *model.Story) error {
	query := `INSERT INTO stories (user_id, title, theme, hero_name, hero_age, reading_time, special_request, is_interactive, status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	          RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		story.UserID, story.Title, story.Theme, story.HeroName, story.HeroAge,
		story.ReadingTime, story.SpecialRequest, story.IsInteractive, story.Status).
		Scan(&story.ID, &story.CreatedAt, &story.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create story in postgres", zap.Error(err), zap.String("userID", story.UserID.String()))
		return fmt.Errorf("failed to create story in postgres: %w", err)
	}
	r.logger.Info("Story created", zap.String("storyID", story.ID.String()), zap.String("userID", story.UserID.String()))
	return nil
}

// GetStoryForUser retrieves a story with its pages, scoped to the owner.
func (r *pgStoryRepository) GetStoryForUser(ctx context.Context, storyID, userID uuid.UUID) (*model.Story, error) {
	story, err := r.getStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story.UserID != userID {
		// Do not reveal whether a foreign story exists.
		return nil, model.ErrStoryNotFound
	}
	return story, nil
}

// GetStory retrieves a story with its pages without an ownership check.
// Used for share-token resolution.
func (r *pgStoryRepository) GetStory(ctx context.Context, storyID uuid.UUID) (*model.Story, error) {
	return r.getStory(ctx, storyID)
}

func (r *pgStoryRepository) getStory(ctx context.Context, storyID uuid.UUID) (*model.Story, error) {
	query := `SELECT id, user_id, title, theme, hero_name, hero_age, reading_time, special_request, is_interactive, status, created_at, updated_at
	          FROM stories WHERE id = $1`
	story := &model.Story{}
	err := r.db.QueryRow(ctx, query, storyID).Scan(
		&story.ID, &story.UserID, &story.Title, &story.Theme, &story.HeroName, &story.HeroAge,
		&story.ReadingTime, &story.SpecialRequest, &story.IsInteractive, &story.Status,
		&story.CreatedAt, &story.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrStoryNotFound
		}
		r.logger.Error("Failed to get story from postgres", zap.Error(err), zap.String("storyID", storyID.String()))
		return nil, fmt.Errorf("failed to get story from postgres: %w", err)
	}

	pages, err := r.loadPages(ctx, storyID)
	if err != nil {
		return nil, err
	}
	story.Pages = pages
	return story, nil
}

func (r *pgStoryRepository) loadPages(ctx context.Context, storyID uuid.UUID) ([]model.StoryPage, error) {
	query := `SELECT id, story_id, page_number, text, image_url, choices, created_at
	          FROM story_pages WHERE story_id = $1 ORDER BY page_number ASC`
	rows, err := r.db.Query(ctx, query, storyID)
	if err != nil {
		r.logger.Error("Failed to query story pages", zap.Error(err), zap.String("storyID", storyID.String()))
		return nil, fmt.Errorf("failed to query story pages: %w", err)
	}
	defer rows.Close()

	var pages []model.StoryPage
	for rows.Next() {
		var page model.StoryPage
		var choicesJSON []byte
		if err := rows.Scan(&page.ID, &page.StoryID, &page.PageNumber, &page.Text, &page.ImageURL, &choicesJSON, &page.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan story page: %w", err)
		}
		if len(choicesJSON) > 0 {
			if err := json.Unmarshal(choicesJSON, &page.Choices); err != nil {
				r.logger.Warn("Failed to unmarshal page choices",
					zap.Error(err),
					zap.String("storyID", storyID.String()),
					zap.Int("pageNumber", page.PageNumber))
			}
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate story pages: %w", err)
	}
	return pages, nil
}

// ListStories returns story summaries for a user, newest first.
// Pages are not loaded for the list view.
func (r *pgStoryRepository) ListStories(ctx context.Context, userID uuid.UUID, skip, limit int) ([]model.Story, error) {
	if limit <= 0 {
		limit = 20
	}
	if skip < 0 {
		skip = 0
	}
	query := `SELECT id, user_id, title, theme, hero_name, hero_age, reading_time, special_request, is_interactive, status, created_at, updated_at
	          FROM stories WHERE user_id = $1
	          ORDER BY created_at DESC
	          OFFSET $2 LIMIT $3`
	rows, err := r.db.Query(ctx, query, userID, skip, limit)
	if err != nil {
		r.logger.Error("Failed to list stories", zap.Error(err), zap.String("userID", userID.String()))
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	var stories []model.Story
	for rows.Next() {
		var story model.Story
		if err := rows.Scan(
			&story.ID, &story.UserID, &story.Title, &story.Theme, &story.HeroName, &story.HeroAge,
			&story.ReadingTime, &story.SpecialRequest, &story.IsInteractive, &story.Status,
			&story.CreatedAt, &story.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stories: %w", err)
	}
	return stories, nil
}

// DeleteStory removes a story owned by the user. Pages and progress are
// removed by the cascading foreign keys.
func (r *pgStoryRepository) DeleteStory(ctx context.Context, storyID, userID uuid.UUID) error {
	query := `DELETE FROM stories WHERE id = $1 AND user_id = $2`
	tag, err := r.db.Exec(ctx, query, storyID, userID)
	if err != nil {
		r.logger.Error("Failed to delete story", zap.Error(err), zap.String("storyID", storyID.String()))
		return fmt.Errorf("failed to delete story: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrStoryNotFound
	}
	r.logger.Info("Story deleted", zap.String("storyID", storyID.String()), zap.String("userID", userID.String()))
	return nil
}

// SavePages persists the whole page batch in a single transaction so a
// story never becomes visible with a partial page set.
func (r *pgStoryRepository) SavePages(ctx context.Context, storyID uuid.UUID, pages []model.StoryPage) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO story_pages (story_id, page_number, text, image_url, choices)
	          VALUES ($1, $2, $3, $4, $5)`
	for _, page := range pages {
		var choicesJSON []byte
		if len(page.Choices) > 0 {
			choicesJSON, err = json.Marshal(page.Choices)
			if err != nil {
				return fmt.Errorf("failed to marshal choices for page %d: %w", page.PageNumber, err)
			}
		}
		if _, err := tx.Exec(ctx, query, storyID, page.PageNumber, page.Text, page.ImageURL, choicesJSON); err != nil {
			r.logger.Error("Failed to insert story page",
				zap.Error(err),
				zap.String("storyID", storyID.String()),
				zap.Int("pageNumber", page.PageNumber))
			return fmt.Errorf("failed to insert page %d: %w", page.PageNumber, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit page batch: %w", err)
	}
	r.logger.Info("Story pages saved", zap.String("storyID", storyID.String()), zap.Int("count", len(pages)))
	return nil
}

// UpdateStatus sets the terminal status and optionally appends a suffix to
// the title for clients that only render the list view.
func (r *pgStoryRepository) UpdateStatus(ctx context.Context, storyID uuid.UUID, status model.StoryStatus, titleSuffix string) error {
	query := `UPDATE stories SET status = $2, title = title || $3, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, storyID, status, titleSuffix)
	if err != nil {
		r.logger.Error("Failed to update story status", zap.Error(err), zap.String("storyID", storyID.String()))
		return fmt.Errorf("failed to update story status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrStoryNotFound
	}
	return nil
}

// CountPages returns the number of persisted pages for a story.
func (r *pgStoryRepository) CountPages(ctx context.Context, storyID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM story_pages WHERE story_id = $1`, storyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count story pages: %w", err)
	}
	return count, nil
}

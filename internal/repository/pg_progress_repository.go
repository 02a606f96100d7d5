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

// Compile-time check to ensure pgProgressRepository implements ProgressRepository
var _ ProgressRepository = (*pgProgressRepository)(nil)

type pgProgressRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgProgressRepository creates a new PostgreSQL-backed ProgressRepository.
func NewPgProgressRepository(db DBTX, logger *zap.Logger) ProgressRepository {
	return &pgProgressRepository{
		db:     db,
		logger: logger.Named("PgProgressRepo"),
	}
}

// GetProgress retrieves the reading progress for a user and story.
func (r *pgProgressRepository) GetProgress(ctx context.Context, userID, storyID uuid.UUID) (*model.StoryProgress, error) {
	query := `SELECT id, user_id, story_id, current_page, path_taken, version, updated_at
	          FROM story_progress WHERE user_id = $1 AND story_id = $2`
	progress := &model.StoryProgress{}
	var pathJSON []byte
	err := r.db.QueryRow(ctx, query, userID, storyID).Scan(
		&progress.ID, &progress.UserID, &progress.StoryID, &progress.CurrentPage,
		&pathJSON, &progress.Version, &progress.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		r.logger.Error("Failed to get story progress", zap.Error(err),
			zap.String("userID", userID.String()), zap.String("storyID", storyID.String()))
		return nil, fmt.Errorf("failed to get story progress: %w", err)
	}
	if len(pathJSON) > 0 {
		if err := json.Unmarshal(pathJSON, &progress.PathTaken); err != nil {
			return nil, fmt.Errorf("failed to unmarshal path_taken: %w", err)
		}
	}
	return progress, nil
}

// CreateProgress inserts the first progress row for a user and story.
func (r *pgProgressRepository) CreateProgress(ctx context.Context, progress *model.StoryProgress) error {
	pathJSON, err := json.Marshal(progress.PathTaken)
	if err != nil {
		return fmt.Errorf("failed to marshal path_taken: %w", err)
	}
	query := `INSERT INTO story_progress (user_id, story_id, current_page, path_taken, version)
	          VALUES ($1, $2, $3, $4, 1)
	          RETURNING id, version, updated_at`
	err = r.db.QueryRow(ctx, query, progress.UserID, progress.StoryID, progress.CurrentPage, pathJSON).
		Scan(&progress.ID, &progress.Version, &progress.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create story progress", zap.Error(err),
			zap.String("userID", progress.UserID.String()), zap.String("storyID", progress.StoryID.String()))
		return fmt.Errorf("failed to create story progress: %w", err)
	}
	return nil
}

// UpdateProgressWithVersion writes the new position only if the row still
// carries the version the caller read. A stale write returns
// model.ErrVersionConflict so the caller can re-read and retry.
func (r *pgProgressRepository) UpdateProgressWithVersion(ctx context.Context, progress *model.StoryProgress) error {
	pathJSON, err := json.Marshal(progress.PathTaken)
	if err != nil {
		return fmt.Errorf("failed to marshal path_taken: %w", err)
	}
	query := `UPDATE story_progress
	          SET current_page = $3, path_taken = $4, version = version + 1, updated_at = NOW()
	          WHERE id = $1 AND version = $2`
	tag, err := r.db.Exec(ctx, query, progress.ID, progress.Version, progress.CurrentPage, pathJSON)
	if err != nil {
		r.logger.Error("Failed to update story progress", zap.Error(err), zap.Int64("progressID", progress.ID))
		return fmt.Errorf("failed to update story progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("Progress version conflict", zap.Int64("progressID", progress.ID), zap.Int("version", progress.Version))
		return model.ErrVersionConflict
	}
	progress.Version++
	return nil
}

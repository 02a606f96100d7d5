package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"storyteller-server/internal/model"
)

// DBTX abstracts the pgx pool so repositories can run against the pool or a
// transaction in tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// UserRepository persists user accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, name, pictureURL string) error
}

// StoryRepository persists stories and their pages.
type StoryRepository interface {
	CreateStory(ctx context.Context, story *model.Story) error
	GetStoryForUser(ctx context.Context, storyID, userID uuid.UUID) (*model.Story, error)
	GetStory(ctx context.Context, storyID uuid.UUID) (*model.Story, error)
	ListStories(ctx context.Context, userID uuid.UUID, skip, limit int) ([]model.Story, error)
	DeleteStory(ctx context.Context, storyID, userID uuid.UUID) error
	SavePages(ctx context.Context, storyID uuid.UUID, pages []model.StoryPage) error
	UpdateStatus(ctx context.Context, storyID uuid.UUID, status model.StoryStatus, titleSuffix string) error
	CountPages(ctx context.Context, storyID uuid.UUID) (int, error)
}

// ProgressRepository persists reading progress for interactive stories.
// Writes are guarded by an optimistic version column.
type ProgressRepository interface {
	GetProgress(ctx context.Context, userID, storyID uuid.UUID) (*model.StoryProgress, error)
	CreateProgress(ctx context.Context, progress *model.StoryProgress) error
	UpdateProgressWithVersion(ctx context.Context, progress *model.StoryProgress) error
}

// ShareRepository stores issued share tokens.
type ShareRepository interface {
	SaveToken(ctx context.Context, token string, storyID uuid.UUID, ttl time.Duration) error
	ResolveToken(ctx context.Context, token string) (uuid.UUID, error)
	RevokeTokens(ctx context.Context, storyID uuid.UUID) error
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"storyteller-server/internal/model"
)

// Compile-time check to ensure pgUserRepository implements UserRepository
var _ UserRepository = (*pgUserRepository)(nil)

type pgUserRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgUserRepository creates a new PostgreSQL-backed UserRepository.
func NewPgUserRepository(db DBTX, logger *zap.Logger) UserRepository {
	return &pgUserRepository{
		db:     db,
		logger: logger.Named("PgUserRepo"),
	}
}

// CreateUser inserts a new user into the database.
func (r *pgUserRepository) CreateUser(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (email, name, google_id, picture_url)
	          VALUES ($1, $2, $3, $4)
	          RETURNING id, created_at, updated_at`
	r.logger.Debug("Executing query", zap.String("query", query), zap.String("email", user.Email))
	err := r.db.QueryRow(ctx, query, user.Email, user.Name, user.GoogleID, user.PictureURL).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 is unique_violation
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.logger.Warn("Attempted to create duplicate user",
				zap.String("email", user.Email),
				zap.String("constraint", pgErr.ConstraintName))
			return model.ErrEmailConflict
		}
		r.logger.Error("Failed to create user in postgres", zap.Error(err), zap.String("email", user.Email))
		return fmt.Errorf("failed to create user in postgres: %w", err)
	}
	r.logger.Info("User created successfully", zap.String("userID", user.ID.String()), zap.String("email", user.Email))
	return nil
}

// GetUserByEmail retrieves a user by their email.
func (r *pgUserRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT id, email, name, google_id, picture_url, created_at, updated_at
	          FROM users WHERE email = $1`
	user := &model.User{}
	err := r.db.QueryRow(ctx, query, email).
		Scan(&user.ID, &user.Email, &user.Name, &user.GoogleID, &user.PictureURL, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("User not found by email", zap.String("email", email))
			return nil, model.ErrUserNotFound
		}
		r.logger.Error("Failed to get user by email from postgres", zap.Error(err), zap.String("email", email))
		return nil, fmt.Errorf("failed to get user by email from postgres: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by their ID.
func (r *pgUserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT id, email, name, google_id, picture_url, created_at, updated_at
	          FROM users WHERE id = $1`
	user := &model.User{}
	err := r.db.QueryRow(ctx, query, id).
		Scan(&user.ID, &user.Email, &user.Name, &user.GoogleID, &user.PictureURL, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("User not found by ID", zap.String("id", id.String()))
			return nil, model.ErrUserNotFound
		}
		r.logger.Error("Failed to get user by id from postgres", zap.Error(err), zap.String("id", id.String()))
		return nil, fmt.Errorf("failed to get user by id from postgres: %w", err)
	}
	return user, nil
}

// UpdateProfile refreshes the display name and picture from the identity
// provider on login.
func (r *pgUserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, name, pictureURL string) error {
	query := `UPDATE users SET name = $2, picture_url = $3, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, name, pictureURL)
	if err != nil {
		r.logger.Error("Failed to update user profile", zap.Error(err), zap.String("id", id.String()))
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

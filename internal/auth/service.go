package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storyteller-server/internal/model"
	"storyteller-server/internal/repository"
)

// AuthService exchanges Google credentials for local sessions.
type AuthService interface {
	// AuthenticateGoogle verifies a Google ID token, finds or creates the
	// account and returns it together with a session token.
	AuthenticateGoogle(ctx context.Context, googleIDToken string) (*model.User, string, error)
	// UserByEmail loads the account behind a verified session claim.
	UserByEmail(ctx context.Context, email string) (*model.User, error)
}

type authService struct {
	verifier GoogleVerifier
	tokens   TokenService
	users    repository.UserRepository
	logger   *zap.Logger
}

var _ AuthService = (*authService)(nil)

// NewAuthService wires the verifier, token service and user repository.
func NewAuthService(verifier GoogleVerifier, tokens TokenService, users repository.UserRepository, logger *zap.Logger) AuthService {
	return &authService{
		verifier: verifier,
		tokens:   tokens,
		users:    users,
		logger:   logger.Named("AuthService"),
	}
}

// AuthenticateGoogle implements the find-or-create login flow. An existing
// account gets its profile refreshed from Google on every login. An email
// already bound to a different Google account is rejected.
func (s *authService) AuthenticateGoogle(ctx context.Context, googleIDToken string) (*model.User, string, error) {
	info, err := s.verifier.Verify(ctx, googleIDToken)
	if err != nil {
		return nil, "", err
	}

	user, err := s.users.GetUserByEmail(ctx, info.Email)
	switch {
	case err == nil:
		if user.GoogleID != info.Sub {
			s.logger.Warn("Email already bound to another google account", zap.String("email", info.Email))
			return nil, "", model.ErrEmailConflict
		}
		if user.Name != info.Name || user.PictureURL != info.PictureURL {
			if err := s.users.UpdateProfile(ctx, user.ID, info.Name, info.PictureURL); err != nil {
				// Stale profile data is not worth failing a login over.
				s.logger.Warn("Failed to refresh user profile", zap.Error(err), zap.String("email", info.Email))
			} else {
				user.Name = info.Name
				user.PictureURL = info.PictureURL
			}
		}

	case errors.Is(err, model.ErrUserNotFound):
		user = &model.User{
			Email:      info.Email,
			Name:       info.Name,
			GoogleID:   info.Sub,
			PictureURL: info.PictureURL,
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return nil, "", err
		}
		s.logger.Info("New user registered via google", zap.String("email", info.Email))

	default:
		return nil, "", fmt.Errorf("failed to look up user: %w", err)
	}

	accessToken, err := s.tokens.CreateAccessToken(user.Email)
	if err != nil {
		return nil, "", err
	}
	return user, accessToken, nil
}

// UserByEmail loads the account for a verified session.
func (s *authService) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.users.GetUserByEmail(ctx, email)
}

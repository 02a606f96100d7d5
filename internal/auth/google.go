package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/idtoken"

	"storyteller-server/internal/model"
)

// Issuers Google is allowed to sign ID tokens with.
var allowedGoogleIssuers = map[string]struct{}{
	"accounts.google.com":         {},
	"https://accounts.google.com": {},
}

// GoogleVerifier validates Google ID tokens and extracts the profile claims
// the application needs.
type GoogleVerifier interface {
	Verify(ctx context.Context, rawToken string) (*model.GoogleUserInfo, error)
}

type googleVerifier struct {
	clientID string
	logger   *zap.Logger
}

var _ GoogleVerifier = (*googleVerifier)(nil)

// NewGoogleVerifier creates a verifier bound to the application's OAuth
// client ID.
func NewGoogleVerifier(clientID string, logger *zap.Logger) GoogleVerifier {
	return &googleVerifier{
		clientID: clientID,
		logger:   logger.Named("GoogleVerifier"),
	}
}

// Verify validates signature, audience and expiry via Google's JWKS, then
// checks issuer and profile claims.
func (v *googleVerifier) Verify(ctx context.Context, rawToken string) (*model.GoogleUserInfo, error) {
	payload, err := idtoken.Validate(ctx, rawToken, v.clientID)
	if err != nil {
		v.logger.Debug("Google ID token validation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", model.ErrTokenInvalid, err)
	}

	if _, ok := allowedGoogleIssuers[payload.Issuer]; !ok {
		v.logger.Warn("Google ID token has unexpected issuer", zap.String("issuer", payload.Issuer))
		return nil, fmt.Errorf("%w: unexpected issuer", model.ErrTokenInvalid)
	}

	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("%w: token has no email claim", model.ErrTokenInvalid)
	}
	if verified, _ := payload.Claims["email_verified"].(bool); !verified {
		v.logger.Warn("Google account email is not verified", zap.String("email", email))
		return nil, fmt.Errorf("%w: email is not verified", model.ErrTokenInvalid)
	}

	name, _ := payload.Claims["name"].(string)
	if name == "" {
		name = email
	}
	picture, _ := payload.Claims["picture"].(string)

	return &model.GoogleUserInfo{
		Sub:        payload.Subject,
		Email:      email,
		Name:       name,
		PictureURL: picture,
	}, nil
}

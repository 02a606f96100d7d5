package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storyteller-server/internal/model"
)

// tokenType discriminates session tokens from anything else signed with the
// same secret.
const tokenType = "access_token"

// Claims carried by a session token.
type Claims struct {
	Email     string
	TokenType string
	jwt.RegisteredClaims
}

// TokenService issues and verifies local session tokens.
type TokenService interface {
	CreateAccessToken(email string) (string, error)
	VerifyToken(tokenString string) (*Claims, error)
}

type tokenService struct {
	secret []byte
	ttl    time.Duration
}

var _ TokenService = (*tokenService)(nil)

// NewTokenService creates a TokenService signing with HS256.
// ttlHours defaults to 168 (7 days) when non-positive.
func NewTokenService(secret string, ttlHours int) TokenService {
	if ttlHours <= 0 {
		ttlHours = 168
	}
	return &tokenService{
		secret: []byte(secret),
		ttl:    time.Duration(ttlHours) * time.Hour,
	}
}

// CreateAccessToken issues a session token for the given account email.
func (s *tokenService) CreateAccessToken(email string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  email,
		"type": tokenType,
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a session token.
func (s *tokenService) VerifyToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, model.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, model.ErrTokenMalformed
		default:
			return nil, fmt.Errorf("%w: %v", model.ErrTokenInvalid, err)
		}
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, model.ErrTokenInvalid
	}

	typ, _ := mapClaims["type"].(string)
	if typ != tokenType {
		return nil, fmt.Errorf("%w: wrong token type", model.ErrTokenInvalid)
	}

	email, _ := mapClaims["sub"].(string)
	if email == "" {
		return nil, fmt.Errorf("%w: missing subject", model.ErrTokenInvalid)
	}

	return &Claims{Email: email, TokenType: typ}, nil
}

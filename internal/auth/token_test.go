package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyteller-server/internal/auth"
	"storyteller-server/internal/model"
)

const testSecret = "unit-test-secret"

// signTestToken crafts a token directly, bypassing the service, to exercise
// verification edge cases.
func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc := auth.NewTokenService(testSecret, 1)

	token, err := svc.CreateAccessToken("luna@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "luna@example.com", claims.Email)
}

func TestTokenService_WrongSecret(t *testing.T) {
	issuer := auth.NewTokenService("other-secret", 1)
	verifier := auth.NewTokenService(testSecret, 1)

	token, err := issuer.CreateAccessToken("luna@example.com")
	require.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestTokenService_Malformed(t *testing.T) {
	svc := auth.NewTokenService(testSecret, 1)

	_, err := svc.VerifyToken("not.a.token")
	assert.ErrorIs(t, err, model.ErrTokenMalformed)
}

func TestTokenService_Expired(t *testing.T) {
	svc := auth.NewTokenService(testSecret, 1)

	token := signTestToken(t, jwt.MapClaims{
		"sub":  "luna@example.com",
		"type": "access_token",
		"iat":  time.Now().Add(-2 * time.Hour).Unix(),
		"exp":  time.Now().Add(-time.Hour).Unix(),
	})

	_, err := svc.VerifyToken(token)
	assert.ErrorIs(t, err, model.ErrTokenExpired)
}

func TestTokenService_WrongTokenType(t *testing.T) {
	svc := auth.NewTokenService(testSecret, 1)

	token := signTestToken(t, jwt.MapClaims{
		"sub":  "luna@example.com",
		"type": "refresh_token",
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	_, err := svc.VerifyToken(token)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestTokenService_MissingSubject(t *testing.T) {
	svc := auth.NewTokenService(testSecret, 1)

	token := signTestToken(t, jwt.MapClaims{
		"type": "access_token",
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	_, err := svc.VerifyToken(token)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

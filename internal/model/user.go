package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered account. Accounts are created on the first
// successful Google sign-in and refreshed on every subsequent login.
type User struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	GoogleID   string    `json:"-"`
	PictureURL string    `json:"picture_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// GoogleUserInfo holds the verified claims extracted from a Google ID token.
type GoogleUserInfo struct {
	Sub        string
	Email      string
	Name       string
	PictureURL string
}

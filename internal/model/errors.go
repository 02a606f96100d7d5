package model

import "errors"

// Sentinel errors shared across services, repositories and handlers.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrStoryNotFound   = errors.New("story not found")
	ErrEmailConflict   = errors.New("email already registered with a different google account")
	ErrForbidden       = errors.New("access denied")
	ErrValidation      = errors.New("validation failed")
	ErrContentRejected = errors.New("request rejected by content moderation")

	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("token invalid")
	ErrTokenMalformed = errors.New("token malformed")

	ErrVersionConflict = errors.New("progress version conflict")
	ErrShareNotFound   = errors.New("share token not found or expired")
)

package handler

import (
	"time"

	"github.com/google/uuid"

	"storyteller-server/internal/model"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
}

type googleAuthRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

type authResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        userResponse `json:"user"`
}

type userResponse struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	PictureURL string    `json:"picture_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		PictureURL: u.PictureURL,
		CreatedAt:  u.CreatedAt,
	}
}

type createStoryRequest struct {
	Theme          string  `json:"theme" binding:"required"`
	HeroName       string  `json:"hero_name" binding:"required"`
	HeroAge        int     `json:"hero_age" binding:"required"`
	ReadingTime    float64 `json:"reading_time" binding:"required"`
	SpecialRequest string  `json:"special_request"`
	IsInteractive  bool    `json:"is_interactive"`
}

type choiceRequest struct {
	CurrentPage int `json:"current_page" binding:"required"`
}

type choiceResponse struct {
	Status      string `json:"status"`
	CurrentPage int    `json:"current_page"`
	PathTaken   []int  `json:"path_taken"`
}

type shareResponse struct {
	ShareURL   string `json:"share_url"`
	ShareToken string `json:"share_token"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// storySummary is the list-view shape: no pages.
type storySummary struct {
	ID            uuid.UUID         `json:"id"`
	Title         string            `json:"title"`
	Theme         string            `json:"theme"`
	HeroName      string            `json:"hero_name"`
	HeroAge       int               `json:"hero_age"`
	ReadingTime   float64           `json:"reading_time"`
	IsInteractive bool              `json:"is_interactive"`
	Status        model.StoryStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
}

func toStorySummary(s model.Story) storySummary {
	return storySummary{
		ID:            s.ID,
		Title:         s.Title,
		Theme:         s.Theme,
		HeroName:      s.HeroName,
		HeroAge:       s.HeroAge,
		ReadingTime:   s.ReadingTime,
		IsInteractive: s.IsInteractive,
		Status:        s.Status,
		CreatedAt:     s.CreatedAt,
	}
}

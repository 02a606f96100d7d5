package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StoryStatus is the lifecycle state of a story. A story starts as
// StatusGenerating and ends in exactly one terminal state.
type StoryStatus string

const (
	StatusGenerating       StoryStatus = "generating"
	StatusComplete         StoryStatus = "complete"
	StatusModerationFailed StoryStatus = "moderation_failed"
	StatusGenerationFailed StoryStatus = "generation_failed"
)

// IsTerminal reports whether the status will never change again.
func (s StoryStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusModerationFailed || s == StatusGenerationFailed
}

// Valid reports whether s is one of the known statuses.
func (s StoryStatus) Valid() bool {
	switch s {
	case StatusGenerating, StatusComplete, StatusModerationFailed, StatusGenerationFailed:
		return true
	}
	return false
}

// Title suffixes appended to a story title when generation ends in a failure
// state. The status column is authoritative; the suffix keeps the title
// self-describing for clients that only render the list view.
const (
	TitleSuffixModerationFailed = " (Content Moderation Failed)"
	TitleSuffixGenerationFailed = " (Generation Failed)"
)

// Themes accepted for story creation.
const (
	ThemeAdventure  = "adventure"
	ThemeSpace      = "space"
	ThemeOcean      = "ocean"
	ThemeForest     = "forest"
	ThemeCastle     = "castle"
	ThemeMagic      = "magic"
	ThemeFriendship = "friendship"
	ThemeAnimals    = "animals"
)

// ValidTheme reports whether theme is one of the supported story themes.
func ValidTheme(theme string) bool {
	switch theme {
	case ThemeAdventure, ThemeSpace, ThemeOcean, ThemeForest, ThemeCastle, ThemeMagic, ThemeFriendship, ThemeAnimals:
		return true
	}
	return false
}

// StoryTitle derives the display title for a new story,
// e.g. "Luna's Space Adventure".
func StoryTitle(heroName, theme string) string {
	capitalized := theme
	if theme != "" {
		capitalized = strings.ToUpper(theme[:1]) + theme[1:]
	}
	return fmt.Sprintf("%s's %s Adventure", heroName, capitalized)
}

// Story is a generated (or in-flight) children's story owned by a user.
type Story struct {
	ID             uuid.UUID   `json:"id"`
	UserID         uuid.UUID   `json:"user_id"`
	Title          string      `json:"title"`
	Theme          string      `json:"theme"`
	HeroName       string      `json:"hero_name"`
	HeroAge        int         `json:"hero_age"`
	ReadingTime    float64     `json:"reading_time"`
	SpecialRequest string      `json:"special_request,omitempty"`
	IsInteractive  bool        `json:"is_interactive"`
	Status         StoryStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	Pages          []StoryPage `json:"pages,omitempty"`
}

// StoryChoice is a branching option offered at the end of an interactive page.
type StoryChoice struct {
	Text     string `json:"text"`
	NextPage int    `json:"next_page"`
}

// StoryPage is one persisted page of a story. ImageURL is empty when image
// generation for the page failed or was skipped.
type StoryPage struct {
	ID         int64         `json:"id"`
	StoryID    uuid.UUID     `json:"story_id"`
	PageNumber int           `json:"page_number"`
	Text       string        `json:"text"`
	ImageURL   string        `json:"image_url,omitempty"`
	Choices    []StoryChoice `json:"choices,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// StoryProgress tracks a reader's position within an interactive story.
// Version implements optimistic concurrency for choice appends.
type StoryProgress struct {
	ID          int64     `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	StoryID     uuid.UUID `json:"story_id"`
	CurrentPage int       `json:"current_page"`
	PathTaken   []int     `json:"path_taken"`
	Version     int       `json:"-"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GenerationParams carries everything the assembly pipeline needs to produce
// a story. It is captured at creation time so the pipeline never reads
// request state after the HTTP handler returns.
type GenerationParams struct {
	StoryID        uuid.UUID
	UserID         uuid.UUID
	Title          string
	Theme          string
	HeroName       string
	HeroAge        int
	ReadingTime    float64
	SpecialRequest string
	IsInteractive  bool
}

// PageDraft is an in-memory page produced by the generator before
// moderation and persistence.
type PageDraft struct {
	PageNumber       int           `json:"page_number"`
	Text             string        `json:"text"`
	Choices          []StoryChoice `json:"choices,omitempty"`
	ImageDescription string        `json:"image_description,omitempty"`
	ImageURL         string        `json:"-"`
	Moderation       *ModerationResult
}

// StoryStructure is the generator's complete draft of a story.
type StoryStructure struct {
	Title      string      `json:"title"`
	Pages      []PageDraft `json:"pages"`
	TotalPages int         `json:"total_pages"`
}

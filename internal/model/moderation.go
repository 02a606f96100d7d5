package model

// ModerationResult is the verdict for a single piece of content.
type ModerationResult struct {
	Safe           bool     `json:"safe"`
	Reason         string   `json:"reason"`
	AgeAppropriate bool     `json:"age_appropriate"`
	Concerns       []string `json:"concerns,omitempty"`
}

// StoryModerationSummary aggregates per-page verdicts for a whole story.
type StoryModerationSummary struct {
	OverallSafe    bool               `json:"overall_safe"`
	TotalPages     int                `json:"total_pages"`
	ModeratedPages int                `json:"moderated_pages"`
	PageResults    []ModerationResult `json:"page_results"`
	Concerns       []string           `json:"concerns,omitempty"`
}

// ContentUnit is a tagged piece of content submitted for moderation. Each
// variant carries exactly the fields its modality needs; the moderator
// dispatches on the concrete type.
type ContentUnit interface {
	contentUnit()
}

// RequestUnit is the user-supplied story request checked before any
// generation starts.
type RequestUnit struct {
	Theme          string
	HeroName       string
	HeroAge        int
	SpecialRequest string
}

// PageTextUnit is the text of one generated page.
type PageTextUnit struct {
	Text    string
	HeroAge int
}

// ImageUnit is a generated illustration plus the page text it accompanies.
type ImageUnit struct {
	ImageURL string
	Context  string
	HeroAge  int
}

// PageCombinedUnit is a full page: text and illustration evaluated together.
type PageCombinedUnit struct {
	Text     string
	ImageURL string
	HeroAge  int
}

func (RequestUnit) contentUnit()      {}
func (PageTextUnit) contentUnit()     {}
func (ImageUnit) contentUnit()        {}
func (PageCombinedUnit) contentUnit() {}

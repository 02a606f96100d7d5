package moderation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"storyteller-server/internal/model"
	"storyteller-server/pkg/ai"
)

// Words that reject a request outright, no matter how short it is.
var denylist = []string{
	"violence", "death", "scary", "horror", "adult", "kill", "hurt", "fight",
}

// judgeClient is the slice of the AI client the moderator needs.
type judgeClient interface {
	ModerateVision(ctx context.Context, model, systemPrompt, userText, imageURL string) (string, error)
}

// Moderator evaluates content units for age appropriateness.
type Moderator interface {
	// Evaluate dispatches a single unit to the checker for its modality.
	Evaluate(ctx context.Context, unit model.ContentUnit) model.ModerationResult
	// EvaluateStory checks every page of a drafted story and aggregates
	// the verdicts.
	EvaluateStory(ctx context.Context, pages []model.PageDraft, heroAge int) model.StoryModerationSummary
}

// Config tunes the moderation policy.
type Config struct {
	Model string
	// EscalationThreshold is the minimum special-request length that
	// triggers the remote judge after the denylist passes.
	EscalationThreshold int
	// FailOpen treats content as safe when the judge is unreachable.
	// Disabled it rejects instead.
	FailOpen bool
}

type moderator struct {
	judge  judgeClient
	cfg    Config
	logger *zap.Logger
}

var _ Moderator = (*moderator)(nil)

// New creates a Moderator backed by an AI judge.
func New(judge judgeClient, cfg Config, logger *zap.Logger) Moderator {
	if cfg.EscalationThreshold <= 0 {
		cfg.EscalationThreshold = 20
	}
	return &moderator{
		judge:  judge,
		cfg:    cfg,
		logger: logger.Named("Moderator"),
	}
}

// Evaluate dispatches on the concrete unit type.
func (m *moderator) Evaluate(ctx context.Context, unit model.ContentUnit) model.ModerationResult {
	switch u := unit.(type) {
	case model.RequestUnit:
		return m.evaluateRequest(ctx, u)
	case model.PageTextUnit:
		return m.remoteVerdict(ctx, m.textPrompt(u.HeroAge), m.textPayload(u.Text), "")
	case model.ImageUnit:
		return m.remoteVerdict(ctx, m.imagePrompt(u.HeroAge), m.imagePayload(u.Context), u.ImageURL)
	case model.PageCombinedUnit:
		return m.remoteVerdict(ctx, m.combinedPrompt(u.HeroAge), m.textPayload(u.Text), u.ImageURL)
	default:
		m.logger.Error("Unknown content unit type", zap.Any("unit", unit))
		return m.fallbackResult("unknown content type")
	}
}

// evaluateRequest applies the three-step request gate: denylist, length
// threshold, remote judge.
func (m *moderator) evaluateRequest(ctx context.Context, u model.RequestUnit) model.ModerationResult {
	request := strings.ToLower(strings.TrimSpace(u.SpecialRequest))
	if request == "" {
		return model.ModerationResult{Safe: true, Reason: "empty request", AgeAppropriate: true}
	}

	for _, word := range denylist {
		if strings.Contains(request, word) {
			m.logger.Info("Request rejected by denylist", zap.String("word", word))
			return model.ModerationResult{
				Safe:           false,
				Reason:         fmt.Sprintf("request contains inappropriate term %q", word),
				AgeAppropriate: false,
				Concerns:       []string{word},
			}
		}
	}

	// Short requests that cleared the denylist are not worth an AI call.
	if len(request) <= m.cfg.EscalationThreshold {
		return model.ModerationResult{Safe: true, Reason: "short request passed denylist", AgeAppropriate: true}
	}

	payload := fmt.Sprintf("Story request for a %d-year-old child.\nTheme: %s\nHero: %s\nSpecial request: %s",
		u.HeroAge, u.Theme, u.HeroName, u.SpecialRequest)
	return m.remoteVerdict(ctx, m.requestPrompt(u.HeroAge), payload, "")
}

// remoteVerdict asks the AI judge and parses its structured answer.
// Judge failures fall back according to the configured policy.
func (m *moderator) remoteVerdict(ctx context.Context, systemPrompt, userText, imageURL string) model.ModerationResult {
	raw, err := m.judge.ModerateVision(ctx, m.cfg.Model, systemPrompt, userText, imageURL)
	if err != nil {
		m.logger.Warn("Moderation judge unavailable", zap.Error(err))
		return m.fallbackResult("moderation service unavailable")
	}

	var verdict model.ModerationResult
	if err := ai.ParseModelJSON(raw, &verdict); err != nil {
		m.logger.Warn("Moderation judge returned unparseable verdict", zap.Error(err))
		return m.fallbackResult("moderation verdict unparseable")
	}
	return verdict
}

// fallbackResult is returned when the judge cannot produce a verdict.
func (m *moderator) fallbackResult(reason string) model.ModerationResult {
	if m.cfg.FailOpen {
		return model.ModerationResult{
			Safe:           true,
			Reason:         reason + "; defaulting to safe",
			AgeAppropriate: true,
		}
	}
	return model.ModerationResult{
		Safe:           false,
		Reason:         reason + "; rejecting",
		AgeAppropriate: false,
	}
}

// EvaluateStory moderates every page of a drafted story. Pages with both
// text and an illustration are checked as one combined unit so the judge
// sees them the way a child will.
func (m *moderator) EvaluateStory(ctx context.Context, pages []model.PageDraft, heroAge int) model.StoryModerationSummary {
	summary := model.StoryModerationSummary{
		OverallSafe: true,
		TotalPages:  len(pages),
	}

	for _, page := range pages {
		var unit model.ContentUnit
		switch {
		case page.Text != "" && page.ImageURL != "":
			unit = model.PageCombinedUnit{Text: page.Text, ImageURL: page.ImageURL, HeroAge: heroAge}
		case page.Text != "":
			unit = model.PageTextUnit{Text: page.Text, HeroAge: heroAge}
		case page.ImageURL != "":
			unit = model.ImageUnit{ImageURL: page.ImageURL, Context: page.ImageDescription, HeroAge: heroAge}
		default:
			continue
		}

		result := m.Evaluate(ctx, unit)
		summary.PageResults = append(summary.PageResults, result)
		summary.ModeratedPages++
		if !result.Safe {
			summary.OverallSafe = false
		}
		summary.Concerns = append(summary.Concerns, result.Concerns...)
	}

	return summary
}

func (m *moderator) requestPrompt(age int) string {
	return fmt.Sprintf(`You are a content safety reviewer for a children's story service.
Decide whether the following story request is appropriate for a %d-year-old child.
Respond with JSON only: {"safe": bool, "reason": string, "age_appropriate": bool, "concerns": [string]}`, age)
}

func (m *moderator) textPrompt(age int) string {
	return fmt.Sprintf(`You are a content safety reviewer for a children's story service.
Decide whether the following story text is appropriate for a %d-year-old child.
Respond with JSON only: {"safe": bool, "reason": string, "age_appropriate": bool, "concerns": [string]}`, age)
}

func (m *moderator) imagePrompt(age int) string {
	return fmt.Sprintf(`You are a content safety reviewer for a children's story service.
Decide whether the attached illustration is appropriate for a %d-year-old child.
Respond with JSON only: {"safe": bool, "reason": string, "age_appropriate": bool, "concerns": [string]}`, age)
}

func (m *moderator) combinedPrompt(age int) string {
	return fmt.Sprintf(`You are a content safety reviewer for a children's story service.
Decide whether the following story page (text and attached illustration together) is appropriate for a %d-year-old child.
Respond with JSON only: {"safe": bool, "reason": string, "age_appropriate": bool, "concerns": [string]}`, age)
}

func (m *moderator) textPayload(text string) string {
	return "Story text:\n" + text
}

func (m *moderator) imagePayload(context string) string {
	if context == "" {
		return "Illustration for a children's story."
	}
	return "Illustration context:\n" + context
}

package generator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storyteller-server/internal/model"
	"storyteller-server/internal/moderation"
	"storyteller-server/pkg/ai"
	"storyteller-server/pkg/imageopt"
)

// aiClient is the slice of the AI client the generator needs.
type aiClient interface {
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// Generator produces complete story drafts: structure, per-page
// illustrations and optional moderation verdicts.
type Generator interface {
	GenerateStructure(ctx context.Context, params model.GenerationParams) model.StoryStructure
	GenerateComplete(ctx context.Context, params model.GenerationParams) model.StoryStructure
	GenerateCompleteWithModeration(ctx context.Context, params model.GenerationParams) (model.StoryStructure, model.StoryModerationSummary)
}

// Config tunes the generator.
type Config struct {
	// Model is used only for token accounting.
	Model string
}

type generator struct {
	client    aiClient
	optimizer imageopt.Optimizer
	moderator moderation.Moderator
	cfg       Config
	logger    *zap.Logger
}

var _ Generator = (*generator)(nil)

// New creates a story generator.
func New(client aiClient, optimizer imageopt.Optimizer, moderator moderation.Moderator, cfg Config, logger *zap.Logger) Generator {
	if optimizer == nil {
		optimizer = imageopt.Noop()
	}
	return &generator{
		client:    client,
		optimizer: optimizer,
		moderator: moderator,
		cfg:       cfg,
		logger:    logger.Named("StoryGenerator"),
	}
}

// ExpectedPageCount derives the page count from the requested reading time
// in minutes. Stories always have at least two pages.
func ExpectedPageCount(readingTime float64) int {
	pages := int(readingTime)
	if pages < 2 {
		pages = 2
	}
	return pages
}

// WordRangeForAge returns the per-page word count range appropriate for the
// hero's age.
func WordRangeForAge(age int) (minWords, maxWords int) {
	switch {
	case age <= 3:
		return 20, 40 // very simple, few words
	case age <= 5:
		return 40, 80 // simple sentences
	case age <= 7:
		return 80, 120 // short paragraphs
	case age <= 9:
		return 120, 180 // longer paragraphs
	case age <= 12:
		return 180, 250 // more complex stories
	default:
		return 200, 300
	}
}

// GenerateStructure asks the model for the full story structure and falls
// back to a templated story when the model cannot deliver one.
func (g *generator) GenerateStructure(ctx context.Context, params model.GenerationParams) model.StoryStructure {
	expectedPages := ExpectedPageCount(params.ReadingTime)
	minWords, maxWords := WordRangeForAge(params.HeroAge)

	log := g.logger.With(
		zap.String("storyID", params.StoryID.String()),
		zap.String("theme", params.Theme),
		zap.Int("expectedPages", expectedPages))
	log.Info("Story generation requested",
		zap.Bool("interactive", params.IsInteractive),
		zap.Int("heroAge", params.HeroAge),
		zap.String("wordsPerPage", fmt.Sprintf("%d-%d", minWords, maxWords)))

	prompt := buildStoryPrompt(params, expectedPages, minWords, maxWords)

	raw, err := g.client.GenerateJSON(ctx, storySystemPrompt, prompt)
	if err != nil {
		log.Error("Story structure generation failed, using fallback", zap.Error(err))
		fallbackStories.Inc()
		return g.fallbackStory(params)
	}
	aiTokensUsed.Add(float64(ai.CountTokens(g.cfg.Model, prompt) + ai.CountTokens(g.cfg.Model, raw)))

	var structure model.StoryStructure
	if err := ai.ParseModelJSON(raw, &structure); err != nil {
		log.Error("Story structure response unparseable, using fallback", zap.Error(err))
		fallbackStories.Inc()
		return g.fallbackStory(params)
	}
	if len(structure.Pages) == 0 {
		log.Error("Story structure has no pages, using fallback")
		fallbackStories.Inc()
		return g.fallbackStory(params)
	}

	if structure.Title == "" {
		structure.Title = model.StoryTitle(params.HeroName, params.Theme)
	}
	structure.TotalPages = len(structure.Pages)

	// Non-interactive stories must not carry choices even if the model
	// added them.
	if !params.IsInteractive {
		for i := range structure.Pages {
			structure.Pages[i].Choices = nil
		}
	}

	log.Info("Story structure generated", zap.Int("pages", len(structure.Pages)))
	return structure
}

// fallbackStory builds a simple templated story about kindness so a child
// always gets something to read. Page numbers are contiguous from 1.
func (g *generator) fallbackStory(params model.GenerationParams) model.StoryStructure {
	pageCount := ExpectedPageCount(params.ReadingTime)
	_, maxWords := WordRangeForAge(params.HeroAge)
	longForm := maxWords >= 80

	pages := make([]model.PageDraft, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		var text, imageDesc string
		switch {
		case i == 0:
			text = fallbackOpening(params, longForm)
			imageDesc = fmt.Sprintf("A happy %d-year-old child named %s with a bright smile, wearing colorful adventure clothes, standing in a magical %s-themed setting with warm, inviting colors",
				params.HeroAge, params.HeroName, params.Theme)
		case i == pageCount-1:
			text = fallbackClosing(params, longForm)
			imageDesc = fmt.Sprintf("%s beaming with happiness, surrounded by new friends in a beautiful %s setting, with warm golden light showing the joy of friendship and kindness",
				params.HeroName, params.Theme)
		default:
			middles := fallbackMiddles(params)
			idx := i - 1
			if idx >= len(middles) {
				idx = len(middles) - 1
			}
			text = middles[idx]
			imageDesc = fmt.Sprintf("%s interacting kindly with a friend in a beautiful %s environment, showing warmth, friendship, and the magic of caring for others",
				params.HeroName, params.Theme)
		}

		pages = append(pages, model.PageDraft{
			PageNumber:       i + 1,
			Text:             text,
			ImageDescription: imageDesc,
		})
	}

	g.logger.Info("Fallback story created",
		zap.String("storyID", params.StoryID.String()),
		zap.Int("pages", len(pages)))

	return model.StoryStructure{
		Title:      model.StoryTitle(params.HeroName, params.Theme),
		Pages:      pages,
		TotalPages: len(pages),
	}
}

// GenerateComplete produces the structure and then an illustration per page.
// Each image is generated in isolation: a failure or timeout on one page
// leaves that page without an image and the rest of the story intact.
func (g *generator) GenerateComplete(ctx context.Context, params model.GenerationParams) model.StoryStructure {
	structure := g.GenerateStructure(ctx, params)
	consistency := consistencyDetails(structure.Title, params)

	log := g.logger.With(zap.String("storyID", params.StoryID.String()))
	generated := 0
	for i := range structure.Pages {
		page := &structure.Pages[i]
		if page.ImageDescription == "" {
			continue
		}

		imagePrompt := g.buildImagePrompt(ctx, page.Text, page.ImageDescription, params)
		fullPrompt := buildConsistentPrompt(imagePrompt, params, consistency)

		imageURL, err := g.client.GenerateImage(ctx, fullPrompt)
		if err != nil {
			reason := "error"
			if errors.Is(err, ai.ErrImageTimeout) {
				reason = "timeout"
			}
			imageFailures.WithLabelValues(reason).Inc()
			log.Warn("Page illustration failed, continuing without image",
				zap.Int("pageNumber", page.PageNumber),
				zap.String("reason", reason),
				zap.Error(err))
			continue
		}

		page.ImageURL = g.optimizer.Optimize(ctx, imageURL)
		imagesGenerated.Inc()
		generated++
		log.Debug("Page illustration generated", zap.Int("pageNumber", page.PageNumber))
	}

	log.Info("Complete story generated",
		zap.Int("totalPages", len(structure.Pages)),
		zap.Int("imagesGenerated", generated))
	return structure
}

// buildImagePrompt asks the model to compose a DALL-E prompt for the page
// and falls back to a fixed template when the call fails.
func (g *generator) buildImagePrompt(ctx context.Context, pageText, imageDescription string, params model.GenerationParams) string {
	request := buildImagePromptRequest(pageText, imageDescription, params)

	prompt, err := g.client.GenerateText(ctx, imagePromptSystemPrompt, request)
	if err != nil || prompt == "" {
		g.logger.Warn("Image prompt composition failed, using fallback",
			zap.String("storyID", params.StoryID.String()), zap.Error(err))
		return fmt.Sprintf("Colorful children's book illustration of %s in a %s adventure, digital art style, bright and cheerful",
			params.HeroName, params.Theme)
	}
	aiTokensUsed.Add(float64(ai.CountTokens(g.cfg.Model, request) + ai.CountTokens(g.cfg.Model, prompt)))
	return prompt
}

// GenerateCompleteWithModeration generates the full story and attaches a
// moderation verdict to every page that has content. Moderation itself
// never aborts generation; unavailable verdicts follow the moderator's
// fail-open policy.
func (g *generator) GenerateCompleteWithModeration(ctx context.Context, params model.GenerationParams) (model.StoryStructure, model.StoryModerationSummary) {
	structure := g.GenerateComplete(ctx, params)

	summary := g.moderator.EvaluateStory(ctx, structure.Pages, params.HeroAge)

	// EvaluateStory returns verdicts in page order, skipping empty pages.
	idx := 0
	for i := range structure.Pages {
		page := &structure.Pages[i]
		if page.Text == "" && page.ImageURL == "" {
			continue
		}
		if idx < len(summary.PageResults) {
			page.Moderation = &summary.PageResults[idx]
			idx++
		}
	}

	g.logger.Info("Story moderation finished",
		zap.String("storyID", params.StoryID.String()),
		zap.Bool("overallSafe", summary.OverallSafe),
		zap.Int("moderatedPages", summary.ModeratedPages))
	return structure, summary
}

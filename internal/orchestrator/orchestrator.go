package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyteller-server/internal/generator"
	"storyteller-server/internal/model"
	"storyteller-server/internal/repository"
)

// Orchestrator runs the story assembly pipeline: generate, moderate, filter,
// persist, finalize. It always drives the story to a terminal status and
// never propagates errors to the caller.
type Orchestrator interface {
	AssembleStory(ctx context.Context, params model.GenerationParams)
}

type orchestrator struct {
	generator generator.Generator
	stories   repository.StoryRepository
	logger    *zap.Logger
}

var _ Orchestrator = (*orchestrator)(nil)

// New creates the assembly orchestrator.
func New(gen generator.Generator, stories repository.StoryRepository, logger *zap.Logger) Orchestrator {
	return &orchestrator{
		generator: gen,
		stories:   stories,
		logger:    logger.Named("Orchestrator"),
	}
}

// AssembleStory produces and persists the content of a story shell. It is
// designed to run as a background task: panics are recovered and every exit
// path leaves the story in a terminal status.
func (o *orchestrator) AssembleStory(ctx context.Context, params model.GenerationParams) {
	start := time.Now()
	log := o.logger.With(
		zap.String("storyID", params.StoryID.String()),
		zap.String("userID", params.UserID.String()))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Story assembly panicked", zap.Any("panic", r), zap.Stack("stack"))
			o.finalize(ctx, params.StoryID, model.StatusGenerationFailed, model.TitleSuffixGenerationFailed, log)
		}
		assemblyDuration.Observe(time.Since(start).Seconds())
	}()

	log.Info("Story assembly started", zap.Float64("readingTime", params.ReadingTime))

	structure, summary := o.generator.GenerateCompleteWithModeration(ctx, params)

	// Drop pages that failed moderation; the rest of the story survives.
	var safePages []model.StoryPage
	for _, draft := range structure.Pages {
		if draft.Moderation != nil && !draft.Moderation.Safe {
			pagesRejected.Inc()
			log.Info("Page rejected by moderation",
				zap.Int("pageNumber", draft.PageNumber),
				zap.String("reason", draft.Moderation.Reason),
				zap.Strings("concerns", draft.Moderation.Concerns))
			continue
		}
		page := model.StoryPage{
			StoryID:    params.StoryID,
			PageNumber: draft.PageNumber,
			Text:       draft.Text,
			ImageURL:   draft.ImageURL,
		}
		if params.IsInteractive {
			page.Choices = draft.Choices
		}
		safePages = append(safePages, page)
	}

	if len(safePages) > 0 {
		if err := o.stories.SavePages(ctx, params.StoryID, safePages); err != nil {
			log.Error("Failed to persist story pages", zap.Error(err))
			o.finalize(ctx, params.StoryID, model.StatusGenerationFailed, model.TitleSuffixGenerationFailed, log)
			return
		}
	}

	// Re-count persisted pages rather than trusting the slice: the batch
	// insert is the source of truth for what readers will see.
	pageCount, err := o.stories.CountPages(ctx, params.StoryID)
	if err != nil {
		log.Error("Failed to count persisted pages", zap.Error(err))
		o.finalize(ctx, params.StoryID, model.StatusGenerationFailed, model.TitleSuffixGenerationFailed, log)
		return
	}

	if pageCount == 0 {
		log.Warn("All pages rejected by moderation",
			zap.Int("pagesGenerated", len(structure.Pages)),
			zap.Strings("concerns", summary.Concerns))
		o.finalize(ctx, params.StoryID, model.StatusModerationFailed, model.TitleSuffixModerationFailed, log)
		return
	}

	o.finalize(ctx, params.StoryID, model.StatusComplete, "", log)
	log.Info("Story assembly finished",
		zap.Int("pagesGenerated", len(structure.Pages)),
		zap.Int("pagesSaved", pageCount),
		zap.Duration("elapsed", time.Since(start)))
}

// finalize writes the terminal status. A failure to do so is logged with
// full context; there is no one left to report it to.
func (o *orchestrator) finalize(ctx context.Context, storyID uuid.UUID, status model.StoryStatus, titleSuffix string, log *zap.Logger) {
	if err := o.stories.UpdateStatus(ctx, storyID, status, titleSuffix); err != nil {
		log.Error("Failed to set terminal story status",
			zap.String("status", string(status)),
			zap.Error(err))
		return
	}
	storiesAssembled.WithLabelValues(string(status)).Inc()
}

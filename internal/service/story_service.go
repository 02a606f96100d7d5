package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyteller-server/internal/model"
	"storyteller-server/internal/moderation"
	"storyteller-server/internal/orchestrator"
	"storyteller-server/internal/repository"
	"storyteller-server/pkg/taskmanager"
)

// shareTokenTTL matches the session lifetime: a shared story stays
// reachable for seven days.
const shareTokenTTL = 7 * 24 * time.Hour

// choiceRetries bounds the optimistic retry loop for concurrent choice
// submissions.
const choiceRetries = 3

// CreateStoryInput carries the validated request fields.
type CreateStoryInput struct {
	Theme          string
	HeroName       string
	HeroAge        int
	ReadingTime    float64
	SpecialRequest string
	IsInteractive  bool
}

// ShareLink is the result of minting a share token.
type ShareLink struct {
	Token    string
	ShareURL string
}

// StoryService implements the story-facing use cases.
type StoryService interface {
	CreateStory(ctx context.Context, userID uuid.UUID, input CreateStoryInput) (*model.Story, error)
	ListStories(ctx context.Context, userID uuid.UUID, skip, limit int) ([]model.Story, error)
	GetStory(ctx context.Context, storyID, userID uuid.UUID) (*model.Story, error)
	DeleteStory(ctx context.Context, storyID, userID uuid.UUID) error
	MakeChoice(ctx context.Context, storyID, userID uuid.UUID, newPage int) (*model.StoryProgress, error)
	ShareStory(ctx context.Context, storyID, userID uuid.UUID) (*ShareLink, error)
	ResolveSharedStory(ctx context.Context, token string) (*model.Story, error)
}

type storyService struct {
	stories      repository.StoryRepository
	progress     repository.ProgressRepository
	shares       repository.ShareRepository
	moderator    moderation.Moderator
	orchestrator orchestrator.Orchestrator
	tasks        taskmanager.ITaskManager
	frontendURL  string
	logger       *zap.Logger
}

var _ StoryService = (*storyService)(nil)

// NewStoryService wires the story use cases.
func NewStoryService(
	stories repository.StoryRepository,
	progress repository.ProgressRepository,
	shares repository.ShareRepository,
	moderator moderation.Moderator,
	orch orchestrator.Orchestrator,
	tasks taskmanager.ITaskManager,
	frontendURL string,
	logger *zap.Logger,
) StoryService {
	return &storyService{
		stories:      stories,
		progress:     progress,
		shares:       shares,
		moderator:    moderator,
		orchestrator: orch,
		tasks:        tasks,
		frontendURL:  strings.TrimRight(frontendURL, "/"),
		logger:       logger.Named("StoryService"),
	}
}

// validateInput enforces the request constraints.
func validateInput(input CreateStoryInput) error {
	if !model.ValidTheme(input.Theme) {
		return fmt.Errorf("%w: unknown theme %q", model.ErrValidation, input.Theme)
	}
	name := strings.TrimSpace(input.HeroName)
	if name == "" || len(name) > 50 {
		return fmt.Errorf("%w: hero name must be 1-50 characters", model.ErrValidation)
	}
	if input.HeroAge < 2 || input.HeroAge > 12 {
		return fmt.Errorf("%w: hero age must be between 2 and 12", model.ErrValidation)
	}
	if input.ReadingTime < 3.0 || input.ReadingTime > 10.0 {
		return fmt.Errorf("%w: reading time must be between 3 and 10 minutes", model.ErrValidation)
	}
	if len(input.SpecialRequest) > 200 {
		return fmt.Errorf("%w: special request must be at most 200 characters", model.ErrValidation)
	}
	return nil
}

// CreateStory validates and moderates the request, persists the story shell
// and dispatches the assembly pipeline as a background task. The returned
// story is in status "generating" with no pages yet.
func (s *storyService) CreateStory(ctx context.Context, userID uuid.UUID, input CreateStoryInput) (*model.Story, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	verdict := s.moderator.Evaluate(ctx, model.RequestUnit{
		Theme:          input.Theme,
		HeroName:       input.HeroName,
		HeroAge:        input.HeroAge,
		SpecialRequest: input.SpecialRequest,
	})
	if !verdict.Safe {
		s.logger.Info("Story request rejected by moderation",
			zap.String("userID", userID.String()),
			zap.String("reason", verdict.Reason))
		return nil, fmt.Errorf("%w: %s", model.ErrContentRejected, verdict.Reason)
	}

	story := &model.Story{
		UserID:         userID,
		Title:          model.StoryTitle(strings.TrimSpace(input.HeroName), input.Theme),
		Theme:          input.Theme,
		HeroName:       strings.TrimSpace(input.HeroName),
		HeroAge:        input.HeroAge,
		ReadingTime:    input.ReadingTime,
		SpecialRequest: input.SpecialRequest,
		IsInteractive:  input.IsInteractive,
		Status:         model.StatusGenerating,
	}
	if err := s.stories.CreateStory(ctx, story); err != nil {
		return nil, err
	}

	params := model.GenerationParams{
		StoryID:        story.ID,
		UserID:         userID,
		Title:          story.Title,
		Theme:          story.Theme,
		HeroName:       story.HeroName,
		HeroAge:        story.HeroAge,
		ReadingTime:    story.ReadingTime,
		SpecialRequest: story.SpecialRequest,
		IsInteractive:  story.IsInteractive,
	}

	taskID, err := s.tasks.SubmitTaskWithOwner(ctx, func(taskCtx context.Context, p interface{}) (interface{}, error) {
		s.orchestrator.AssembleStory(taskCtx, p.(model.GenerationParams))
		return nil, nil
	}, params, userID.String())
	if err != nil {
		// The shell exists but nothing will fill it; close it out so the
		// client is not left polling a story stuck in "generating".
		s.logger.Error("Failed to dispatch assembly task", zap.Error(err), zap.String("storyID", story.ID.String()))
		if updErr := s.stories.UpdateStatus(ctx, story.ID, model.StatusGenerationFailed, model.TitleSuffixGenerationFailed); updErr != nil {
			s.logger.Error("Failed to mark story as failed after dispatch error", zap.Error(updErr))
		}
		return nil, fmt.Errorf("failed to start story generation: %w", err)
	}

	s.logger.Info("Story assembly dispatched",
		zap.String("storyID", story.ID.String()),
		zap.String("taskID", taskID.String()))
	return story, nil
}

// ListStories returns story summaries, newest first.
func (s *storyService) ListStories(ctx context.Context, userID uuid.UUID, skip, limit int) ([]model.Story, error) {
	return s.stories.ListStories(ctx, userID, skip, limit)
}

// GetStory returns a story with its pages, scoped to the owner.
func (s *storyService) GetStory(ctx context.Context, storyID, userID uuid.UUID) (*model.Story, error) {
	return s.stories.GetStoryForUser(ctx, storyID, userID)
}

// DeleteStory removes the story and revokes its share tokens.
func (s *storyService) DeleteStory(ctx context.Context, storyID, userID uuid.UUID) error {
	if err := s.stories.DeleteStory(ctx, storyID, userID); err != nil {
		return err
	}
	if err := s.shares.RevokeTokens(ctx, storyID); err != nil {
		// The story is gone; orphaned tokens expire with their TTL.
		s.logger.Warn("Failed to revoke share tokens for deleted story",
			zap.Error(err), zap.String("storyID", storyID.String()))
	}
	return nil
}

// MakeChoice records a page transition for an interactive story. The page
// is appended to the path only if it is not already there, and the write is
// retried on concurrent-update conflicts.
func (s *storyService) MakeChoice(ctx context.Context, storyID, userID uuid.UUID, newPage int) (*model.StoryProgress, error) {
	story, err := s.stories.GetStoryForUser(ctx, storyID, userID)
	if err != nil {
		return nil, err
	}
	if newPage < 1 {
		return nil, fmt.Errorf("%w: page number must be positive", model.ErrValidation)
	}
	if len(story.Pages) > 0 && newPage > len(story.Pages) {
		return nil, fmt.Errorf("%w: page %d is out of range", model.ErrValidation, newPage)
	}

	for attempt := 0; attempt < choiceRetries; attempt++ {
		progress, err := s.progress.GetProgress(ctx, userID, storyID)
		if errors.Is(err, model.ErrNotFound) {
			progress = &model.StoryProgress{
				UserID:      userID,
				StoryID:     storyID,
				CurrentPage: 1,
				PathTaken:   []int{1},
			}
			if err := s.progress.CreateProgress(ctx, progress); err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, err
		}

		progress.CurrentPage = newPage
		if !containsPage(progress.PathTaken, newPage) {
			progress.PathTaken = append(progress.PathTaken, newPage)
		}

		err = s.progress.UpdateProgressWithVersion(ctx, progress)
		if errors.Is(err, model.ErrVersionConflict) {
			s.logger.Debug("Choice write conflicted, retrying",
				zap.String("storyID", storyID.String()),
				zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}
		return progress, nil
	}

	return nil, model.ErrVersionConflict
}

func containsPage(path []int, page int) bool {
	for _, p := range path {
		if p == page {
			return true
		}
	}
	return false
}

// ShareStory mints a share token, stores it with a TTL and returns the
// public URL.
func (s *storyService) ShareStory(ctx context.Context, storyID, userID uuid.UUID) (*ShareLink, error) {
	if _, err := s.stories.GetStoryForUser(ctx, storyID, userID); err != nil {
		return nil, err
	}

	token := uuid.NewString()
	if err := s.shares.SaveToken(ctx, token, storyID, shareTokenTTL); err != nil {
		return nil, err
	}

	s.logger.Info("Share link issued", zap.String("storyID", storyID.String()))
	return &ShareLink{
		Token:    token,
		ShareURL: fmt.Sprintf("%s/story/shared/%s", s.frontendURL, token),
	}, nil
}

// ResolveSharedStory validates a share token and returns the story it
// points at, regardless of who is asking.
func (s *storyService) ResolveSharedStory(ctx context.Context, token string) (*model.Story, error) {
	storyID, err := s.shares.ResolveToken(ctx, token)
	if err != nil {
		return nil, err
	}
	story, err := s.stories.GetStory(ctx, storyID)
	if err != nil {
		if errors.Is(err, model.ErrStoryNotFound) {
			// The story was deleted after the token was issued.
			return nil, model.ErrShareNotFound
		}
		return nil, err
	}
	return story, nil
}

package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyteller-server/internal/model"
	"storyteller-server/internal/service"
	"storyteller-server/pkg/taskmanager"
)

type mockStoryRepo struct {
	stories map[uuid.UUID]*model.Story

	createErr     error
	statusUpdates []model.StoryStatus
}

func (m *mockStoryRepo) CreateStory(_ context.Context, story *model.Story) error {
	if m.createErr != nil {
		return m.createErr
	}
	story.ID = uuid.New()
	if m.stories == nil {
		m.stories = map[uuid.UUID]*model.Story{}
	}
	m.stories[story.ID] = story
	return nil
}

func (m *mockStoryRepo) GetStoryForUser(_ context.Context, storyID, userID uuid.UUID) (*model.Story, error) {
	story, ok := m.stories[storyID]
	if !ok || story.UserID != userID {
		return nil, model.ErrStoryNotFound
	}
	return story, nil
}

func (m *mockStoryRepo) GetStory(_ context.Context, storyID uuid.UUID) (*model.Story, error) {
	story, ok := m.stories[storyID]
	if !ok {
		return nil, model.ErrStoryNotFound
	}
	return story, nil
}

func (m *mockStoryRepo) ListStories(context.Context, uuid.UUID, int, int) ([]model.Story, error) {
	return nil, nil
}

func (m *mockStoryRepo) DeleteStory(_ context.Context, storyID, userID uuid.UUID) error {
	story, ok := m.stories[storyID]
	if !ok || story.UserID != userID {
		return model.ErrStoryNotFound
	}
	delete(m.stories, storyID)
	return nil
}

func (m *mockStoryRepo) SavePages(context.Context, uuid.UUID, []model.StoryPage) error { return nil }

func (m *mockStoryRepo) UpdateStatus(_ context.Context, _ uuid.UUID, status model.StoryStatus, _ string) error {
	m.statusUpdates = append(m.statusUpdates, status)
	return nil
}

func (m *mockStoryRepo) CountPages(context.Context, uuid.UUID) (int, error) { return 0, nil }

// mockProgressRepo simulates the optimistic version guard. conflictTimes
// makes the first N updates fail with a version conflict.
type mockProgressRepo struct {
	progress      *model.StoryProgress
	conflictTimes int
	updates       int
}

func (m *mockProgressRepo) GetProgress(_ context.Context, _, _ uuid.UUID) (*model.StoryProgress, error) {
	if m.progress == nil {
		return nil, model.ErrNotFound
	}
	copied := *m.progress
	copied.PathTaken = append([]int(nil), m.progress.PathTaken...)
	return &copied, nil
}

func (m *mockProgressRepo) CreateProgress(_ context.Context, progress *model.StoryProgress) error {
	progress.ID = 1
	progress.Version = 1
	m.progress = progress
	return nil
}

func (m *mockProgressRepo) UpdateProgressWithVersion(_ context.Context, progress *model.StoryProgress) error {
	m.updates++
	if m.updates <= m.conflictTimes {
		return model.ErrVersionConflict
	}
	progress.Version++
	copied := *progress
	m.progress = &copied
	return nil
}

type mockShareRepo struct {
	tokens    map[string]uuid.UUID
	saveErr   error
	revoked   []uuid.UUID
	revokeErr error
}

func (m *mockShareRepo) SaveToken(_ context.Context, token string, storyID uuid.UUID, _ time.Duration) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.tokens == nil {
		m.tokens = map[string]uuid.UUID{}
	}
	m.tokens[token] = storyID
	return nil
}

func (m *mockShareRepo) ResolveToken(_ context.Context, token string) (uuid.UUID, error) {
	storyID, ok := m.tokens[token]
	if !ok {
		return uuid.UUID{}, model.ErrShareNotFound
	}
	return storyID, nil
}

func (m *mockShareRepo) RevokeTokens(_ context.Context, storyID uuid.UUID) error {
	m.revoked = append(m.revoked, storyID)
	return m.revokeErr
}

type mockModerator struct {
	verdict model.ModerationResult
	units   []model.ContentUnit
}

func (m *mockModerator) Evaluate(_ context.Context, unit model.ContentUnit) model.ModerationResult {
	m.units = append(m.units, unit)
	return m.verdict
}

func (m *mockModerator) EvaluateStory(_ context.Context, pages []model.PageDraft, _ int) model.StoryModerationSummary {
	return model.StoryModerationSummary{OverallSafe: m.verdict.Safe, TotalPages: len(pages)}
}

type mockOrchestrator struct {
	assembled []model.GenerationParams
}

func (m *mockOrchestrator) AssembleStory(_ context.Context, params model.GenerationParams) {
	m.assembled = append(m.assembled, params)
}

// mockTaskManager runs submitted tasks synchronously.
type mockTaskManager struct {
	submitErr error
	submitted int
}

func (m *mockTaskManager) SubmitTask(ctx context.Context, taskFunc taskmanager.TaskFunc, params interface{}) (uuid.UUID, error) {
	return m.SubmitTaskWithOwner(ctx, taskFunc, params, "")
}

func (m *mockTaskManager) SubmitTaskWithOwner(ctx context.Context, taskFunc taskmanager.TaskFunc, params interface{}, _ string) (uuid.UUID, error) {
	if m.submitErr != nil {
		return uuid.UUID{}, m.submitErr
	}
	m.submitted++
	_, _ = taskFunc(ctx, params)
	return uuid.New(), nil
}

func (m *mockTaskManager) GetTask(uuid.UUID) (*taskmanager.Task, error) { return nil, nil }
func (m *mockTaskManager) ListTasksByOwner(string) []*taskmanager.Task  { return nil }
func (m *mockTaskManager) CancelTask(uuid.UUID) error                   { return nil }
func (m *mockTaskManager) CleanupTasks(time.Duration)                   {}
func (m *mockTaskManager) Shutdown(context.Context) error               { return nil }

type serviceFixture struct {
	stories  *mockStoryRepo
	progress *mockProgressRepo
	shares   *mockShareRepo
	mod      *mockModerator
	orch     *mockOrchestrator
	tasks    *mockTaskManager
	svc      service.StoryService
}

func newFixture() *serviceFixture {
	f := &serviceFixture{
		stories:  &mockStoryRepo{stories: map[uuid.UUID]*model.Story{}},
		progress: &mockProgressRepo{},
		shares:   &mockShareRepo{},
		mod:      &mockModerator{verdict: model.ModerationResult{Safe: true, AgeAppropriate: true}},
		orch:     &mockOrchestrator{},
		tasks:    &mockTaskManager{},
	}
	f.svc = service.NewStoryService(
		f.stories, f.progress, f.shares, f.mod, f.orch, f.tasks,
		"https://stories.example/", zap.NewNop())
	return f
}

func validInput() service.CreateStoryInput {
	return service.CreateStoryInput{
		Theme:       model.ThemeSpace,
		HeroName:    "Luna",
		HeroAge:     5,
		ReadingTime: 3,
	}
}

func TestCreateStory_Validation(t *testing.T) {
	f := newFixture()
	userID := uuid.New()

	tests := []struct {
		name   string
		mutate func(*service.CreateStoryInput)
	}{
		{"unknown theme", func(in *service.CreateStoryInput) { in.Theme = "dinosaurs" }},
		{"empty hero name", func(in *service.CreateStoryInput) { in.HeroName = "   " }},
		{"hero name too long", func(in *service.CreateStoryInput) {
			in.HeroName = "Luna Luna Luna Luna Luna Luna Luna Luna Luna Luna Luna"
		}},
		{"hero too young", func(in *service.CreateStoryInput) { in.HeroAge = 1 }},
		{"hero too old", func(in *service.CreateStoryInput) { in.HeroAge = 13 }},
		{"reading time too short", func(in *service.CreateStoryInput) { in.ReadingTime = 2.5 }},
		{"reading time too long", func(in *service.CreateStoryInput) { in.ReadingTime = 11 }},
		{"special request too long", func(in *service.CreateStoryInput) {
			long := make([]byte, 201)
			for i := range long {
				long[i] = 'a'
			}
			in.SpecialRequest = string(long)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.mutate(&input)
			_, err := f.svc.CreateStory(context.Background(), userID, input)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}

	assert.Zero(t, f.tasks.submitted, "invalid requests must not dispatch assembly")
}

func TestCreateStory_RejectedByModeration(t *testing.T) {
	f := newFixture()
	f.mod.verdict = model.ModerationResult{Safe: false, Reason: "inappropriate"}

	_, err := f.svc.CreateStory(context.Background(), uuid.New(), validInput())
	assert.ErrorIs(t, err, model.ErrContentRejected)
	assert.Empty(t, f.stories.stories, "rejected requests must not create a shell")
	assert.Zero(t, f.tasks.submitted)
}

func TestCreateStory_DispatchesAssembly(t *testing.T) {
	f := newFixture()
	userID := uuid.New()

	story, err := f.svc.CreateStory(context.Background(), userID, validInput())
	require.NoError(t, err)
	assert.Equal(t, model.StatusGenerating, story.Status)
	assert.Equal(t, "Luna's Space Adventure", story.Title)

	// The moderator saw the request before the shell was created.
	require.Len(t, f.mod.units, 1)
	_, ok := f.mod.units[0].(model.RequestUnit)
	assert.True(t, ok, "request moderation uses the request unit")

	// The synchronous task manager already ran the pipeline.
	require.Len(t, f.orch.assembled, 1)
	assert.Equal(t, story.ID, f.orch.assembled[0].StoryID)
	assert.Equal(t, userID, f.orch.assembled[0].UserID)
}

func TestCreateStory_DispatchFailureClosesShell(t *testing.T) {
	f := newFixture()
	f.tasks.submitErr = errors.New("task manager is shutting down")

	_, err := f.svc.CreateStory(context.Background(), uuid.New(), validInput())
	require.Error(t, err)
	require.Len(t, f.stories.statusUpdates, 1,
		"a shell nobody will fill must be closed out")
	assert.Equal(t, model.StatusGenerationFailed, f.stories.statusUpdates[0])
}

func seedStory(f *serviceFixture, userID uuid.UUID, pages int) *model.Story {
	story := &model.Story{
		ID:            uuid.New(),
		UserID:        userID,
		Title:         "Seeded",
		Status:        model.StatusComplete,
		IsInteractive: true,
	}
	for i := 1; i <= pages; i++ {
		story.Pages = append(story.Pages, model.StoryPage{PageNumber: i})
	}
	f.stories.stories[story.ID] = story
	return story
}

func TestMakeChoice_CreatesProgressOnFirstChoice(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	story := seedStory(f, userID, 4)

	progress, err := f.svc.MakeChoice(context.Background(), story.ID, userID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.CurrentPage)
	assert.Equal(t, []int{1, 3}, progress.PathTaken)
}

func TestMakeChoice_DuplicatePageNotAppended(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	story := seedStory(f, userID, 4)

	_, err := f.svc.MakeChoice(context.Background(), story.ID, userID, 3)
	require.NoError(t, err)

	// Going back to a page already on the path must not duplicate it.
	progress, err := f.svc.MakeChoice(context.Background(), story.ID, userID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.CurrentPage)
	assert.Equal(t, []int{1, 3}, progress.PathTaken)
}

func TestMakeChoice_RetriesOnVersionConflict(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	story := seedStory(f, userID, 4)
	f.progress.progress = &model.StoryProgress{
		ID: 1, UserID: userID, StoryID: story.ID,
		CurrentPage: 1, PathTaken: []int{1}, Version: 1,
	}
	f.progress.conflictTimes = 2

	progress, err := f.svc.MakeChoice(context.Background(), story.ID, userID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.CurrentPage)
	assert.Equal(t, 3, f.progress.updates, "two conflicts then success")
}

func TestMakeChoice_GivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	story := seedStory(f, userID, 4)
	f.progress.progress = &model.StoryProgress{
		ID: 1, UserID: userID, StoryID: story.ID,
		CurrentPage: 1, PathTaken: []int{1}, Version: 1,
	}
	f.progress.conflictTimes = 100

	_, err := f.svc.MakeChoice(context.Background(), story.ID, userID, 2)
	assert.ErrorIs(t, err, model.ErrVersionConflict)
}

func TestMakeChoice_PageOutOfRange(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	story := seedStory(f, userID, 4)

	_, err := f.svc.MakeChoice(context.Background(), story.ID, userID, 5)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.MakeChoice(context.Background(), story.ID, userID, 0)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestMakeChoice_ForeignStory(t *testing.T) {
	f := newFixture()
	story := seedStory(f, uuid.New(), 4)

	_, err := f.svc.MakeChoice(context.Background(), story.ID, uuid.New(), 2)
	assert.ErrorIs(t, err, model.ErrStoryNotFound)
}

func TestShareStory_IssuesResolvableToken(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	story := seedStory(f, userID, 2)

	link, err := f.svc.ShareStory(context.Background(), story.ID, userID)
	require.NoError(t, err)
	assert.NotEmpty(t, link.Token)
	assert.Equal(t, "https://stories.example/story/shared/"+link.Token, link.ShareURL)

	// Anyone holding the token can resolve the story.
	resolved, err := f.svc.ResolveSharedStory(context.Background(), link.Token)
	require.NoError(t, err)
	assert.Equal(t, story.ID, resolved.ID)
}

func TestShareStory_ForeignStory(t *testing.T) {
	f := newFixture()
	story := seedStory(f, uuid.New(), 2)

	_, err := f.svc.ShareStory(context.Background(), story.ID, uuid.New())
	assert.ErrorIs(t, err, model.ErrStoryNotFound)
}

func TestResolveSharedStory_UnknownToken(t *testing.T) {
	f := newFixture()

	_, err := f.svc.ResolveSharedStory(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, model.ErrShareNotFound)
}

func TestResolveSharedStory_DeletedStory(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	story := seedStory(f, userID, 2)

	link, err := f.svc.ShareStory(context.Background(), story.ID, userID)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteStory(context.Background(), story.ID, userID))

	// The mock revocation keeps the token; resolution still fails because
	// the story is gone.
	_, err = f.svc.ResolveSharedStory(context.Background(), link.Token)
	assert.ErrorIs(t, err, model.ErrShareNotFound)
}

func TestDeleteStory_RevokesTokens(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	story := seedStory(f, userID, 2)

	require.NoError(t, f.svc.DeleteStory(context.Background(), story.ID, userID))
	require.Len(t, f.shares.revoked, 1)
	assert.Equal(t, story.ID, f.shares.revoked[0])
}

func TestDeleteStory_RevocationFailureIsNonFatal(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	story := seedStory(f, userID, 2)
	f.shares.revokeErr = errors.New("redis down")

	err := f.svc.DeleteStory(context.Background(), story.ID, userID)
	assert.NoError(t, err, "orphaned tokens expire with their TTL")
}

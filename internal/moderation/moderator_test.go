package moderation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyteller-server/internal/model"
	"storyteller-server/internal/moderation"
)

// mockJudge records every call and replays scripted responses.
type mockJudge struct {
	responses []string
	err       error
	calls     []judgeCall
}

type judgeCall struct {
	model        string
	systemPrompt string
	userText     string
	imageURL     string
}

func (m *mockJudge) ModerateVision(_ context.Context, mdl, systemPrompt, userText, imageURL string) (string, error) {
	m.calls = append(m.calls, judgeCall{model: mdl, systemPrompt: systemPrompt, userText: userText, imageURL: imageURL})
	if m.err != nil {
		return "", m.err
	}
	idx := len(m.calls) - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx], nil
}

const safeVerdict = `{"safe": true, "reason": "fine", "age_appropriate": true}`
const unsafeVerdict = `{"safe": false, "reason": "too intense", "age_appropriate": false, "concerns": ["intensity"]}`

func newModerator(judge *mockJudge, failOpen bool) moderation.Moderator {
	return moderation.New(judge, moderation.Config{
		Model:               "gpt-4o-mini",
		EscalationThreshold: 20,
		FailOpen:            failOpen,
	}, zap.NewNop())
}

func TestEvaluate_Request_EmptyIsSafe(t *testing.T) {
	judge := &mockJudge{}
	m := newModerator(judge, true)

	result := m.Evaluate(context.Background(), model.RequestUnit{HeroAge: 5})
	assert.True(t, result.Safe)
	assert.Empty(t, judge.calls, "empty request must not reach the judge")
}

func TestEvaluate_Request_Denylist(t *testing.T) {
	judge := &mockJudge{}
	m := newModerator(judge, true)

	result := m.Evaluate(context.Background(), model.RequestUnit{
		HeroAge:        5,
		SpecialRequest: "a story with lots of VIOLENCE please",
	})
	assert.False(t, result.Safe)
	assert.False(t, result.AgeAppropriate)
	assert.Contains(t, result.Concerns, "violence")
	assert.Empty(t, judge.calls, "denylist hits must not reach the judge")
}

func TestEvaluate_Request_DenylistMatchesSubstring(t *testing.T) {
	judge := &mockJudge{}
	m := newModerator(judge, true)

	// "fighting" contains "fight".
	result := m.Evaluate(context.Background(), model.RequestUnit{
		HeroAge:        7,
		SpecialRequest: "dragons fighting",
	})
	assert.False(t, result.Safe)
}

func TestEvaluate_Request_ShortRequestSkipsJudge(t *testing.T) {
	judge := &mockJudge{}
	m := newModerator(judge, false)

	// 20 characters: at the threshold, still short enough.
	result := m.Evaluate(context.Background(), model.RequestUnit{
		HeroAge:        5,
		SpecialRequest: "12345678901234567890",
	})
	assert.True(t, result.Safe)
	assert.Empty(t, judge.calls)
}

func TestEvaluate_Request_LongRequestEscalates(t *testing.T) {
	judge := &mockJudge{responses: []string{unsafeVerdict}}
	m := newModerator(judge, true)

	result := m.Evaluate(context.Background(), model.RequestUnit{
		Theme:          model.ThemeSpace,
		HeroName:       "Luna",
		HeroAge:        5,
		SpecialRequest: "please include a dramatic chase across the rings of Saturn",
	})
	assert.False(t, result.Safe)
	require.Len(t, judge.calls, 1)
	assert.Equal(t, "gpt-4o-mini", judge.calls[0].model)
	assert.Contains(t, judge.calls[0].userText, "Luna")
	assert.Empty(t, judge.calls[0].imageURL)
}

func TestEvaluate_JudgeUnavailable_FailOpen(t *testing.T) {
	judge := &mockJudge{err: errors.New("connection refused")}

	open := newModerator(judge, true)
	result := open.Evaluate(context.Background(), model.PageTextUnit{Text: "Once upon a time", HeroAge: 5})
	assert.True(t, result.Safe, "fail-open policy defaults to safe")

	closed := newModerator(judge, false)
	result = closed.Evaluate(context.Background(), model.PageTextUnit{Text: "Once upon a time", HeroAge: 5})
	assert.False(t, result.Safe, "fail-closed policy rejects")
}

func TestEvaluate_UnparseableVerdict_FollowsPolicy(t *testing.T) {
	judge := &mockJudge{responses: []string{"I think it is probably fine"}}
	m := newModerator(judge, false)

	result := m.Evaluate(context.Background(), model.PageTextUnit{Text: "hello", HeroAge: 5})
	assert.False(t, result.Safe)
}

func TestEvaluate_ImageUnit_PassesImageURL(t *testing.T) {
	judge := &mockJudge{responses: []string{safeVerdict}}
	m := newModerator(judge, true)

	result := m.Evaluate(context.Background(), model.ImageUnit{
		ImageURL: "https://img.example/1.png",
		Context:  "a friendly dragon",
		HeroAge:  5,
	})
	assert.True(t, result.Safe)
	require.Len(t, judge.calls, 1)
	assert.Equal(t, "https://img.example/1.png", judge.calls[0].imageURL)
	assert.Contains(t, judge.calls[0].userText, "a friendly dragon")
}

func TestEvaluateStory_DispatchesByModality(t *testing.T) {
	judge := &mockJudge{responses: []string{safeVerdict}}
	m := newModerator(judge, true)

	pages := []model.PageDraft{
		{PageNumber: 1, Text: "text and image", ImageURL: "https://img.example/1.png"},
		{PageNumber: 2, Text: "text only"},
		{PageNumber: 3, ImageURL: "https://img.example/3.png", ImageDescription: "a castle"},
		{PageNumber: 4}, // empty, skipped
	}

	summary := m.EvaluateStory(context.Background(), pages, 6)
	assert.True(t, summary.OverallSafe)
	assert.Equal(t, 4, summary.TotalPages)
	assert.Equal(t, 3, summary.ModeratedPages, "empty page must be skipped")
	require.Len(t, judge.calls, 3)

	// Page 1 is checked as one combined unit: text payload plus image.
	assert.Contains(t, judge.calls[0].userText, "text and image")
	assert.Equal(t, "https://img.example/1.png", judge.calls[0].imageURL)
	// Page 2 is text only.
	assert.Empty(t, judge.calls[1].imageURL)
	// Page 3 is image only.
	assert.Equal(t, "https://img.example/3.png", judge.calls[2].imageURL)
}

func TestEvaluateStory_AggregatesUnsafePages(t *testing.T) {
	judge := &mockJudge{responses: []string{safeVerdict, unsafeVerdict}}
	m := newModerator(judge, true)

	pages := []model.PageDraft{
		{PageNumber: 1, Text: "fine"},
		{PageNumber: 2, Text: "not fine"},
	}

	summary := m.EvaluateStory(context.Background(), pages, 6)
	assert.False(t, summary.OverallSafe)
	require.Len(t, summary.PageResults, 2)
	assert.True(t, summary.PageResults[0].Safe)
	assert.False(t, summary.PageResults[1].Safe)
	assert.Contains(t, summary.Concerns, "intensity")
}

func TestEvaluateStory_NoPages(t *testing.T) {
	m := newModerator(&mockJudge{}, true)

	summary := m.EvaluateStory(context.Background(), nil, 6)
	assert.True(t, summary.OverallSafe)
	assert.Zero(t, summary.ModeratedPages)
}

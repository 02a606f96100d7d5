package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyteller-server/internal/auth"
	"storyteller-server/internal/handler"
	"storyteller-server/internal/model"
	"storyteller-server/internal/service"
)

const testBearer = "valid-session-token"

var testUser = &model.User{
	ID:    uuid.MustParse("11111111-1111-1111-1111-111111111111"),
	Email: "luna@example.com",
	Name:  "Luna",
}

type mockAuthService struct {
	authErr error
}

func (m *mockAuthService) AuthenticateGoogle(context.Context, string) (*model.User, string, error) {
	if m.authErr != nil {
		return nil, "", m.authErr
	}
	return testUser, "issued-session-token", nil
}

func (m *mockAuthService) UserByEmail(_ context.Context, email string) (*model.User, error) {
	if email != testUser.Email {
		return nil, model.ErrUserNotFound
	}
	return testUser, nil
}

type mockTokenService struct{}

func (mockTokenService) CreateAccessToken(string) (string, error) {
	return "issued-session-token", nil
}

func (mockTokenService) VerifyToken(token string) (*auth.Claims, error) {
	if token != testBearer {
		return nil, model.ErrTokenInvalid
	}
	return &auth.Claims{Email: testUser.Email}, nil
}

// mockStoryService returns scripted results per operation.
type mockStoryService struct {
	story     *model.Story
	stories   []model.Story
	progress  *model.StoryProgress
	link      *service.ShareLink
	createErr error
	getErr    error
	choiceErr error
	shareErr  error
	resolvErr error
	deleteErr error
}

func (m *mockStoryService) CreateStory(_ context.Context, userID uuid.UUID, _ service.CreateStoryInput) (*model.Story, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.story, nil
}

func (m *mockStoryService) ListStories(context.Context, uuid.UUID, int, int) ([]model.Story, error) {
	return m.stories, nil
}

func (m *mockStoryService) GetStory(context.Context, uuid.UUID, uuid.UUID) (*model.Story, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.story, nil
}

func (m *mockStoryService) DeleteStory(context.Context, uuid.UUID, uuid.UUID) error {
	return m.deleteErr
}

func (m *mockStoryService) MakeChoice(context.Context, uuid.UUID, uuid.UUID, int) (*model.StoryProgress, error) {
	if m.choiceErr != nil {
		return nil, m.choiceErr
	}
	return m.progress, nil
}

func (m *mockStoryService) ShareStory(context.Context, uuid.UUID, uuid.UUID) (*service.ShareLink, error) {
	if m.shareErr != nil {
		return nil, m.shareErr
	}
	return m.link, nil
}

func (m *mockStoryService) ResolveSharedStory(context.Context, string) (*model.Story, error) {
	if m.resolvErr != nil {
		return nil, m.resolvErr
	}
	return m.story, nil
}

func setupRouter(stories *mockStoryService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := handler.New(&mockAuthService{}, mockTokenService{}, stories, zap.NewNop())
	h.RegisterRoutes(router)
	return router
}

func doRequest(router *gin.Engine, method, path, body string, authed bool) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testBearer)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router := setupRouter(&mockStoryService{})

	w := doRequest(router, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestAuthMiddleware(t *testing.T) {
	router := setupRouter(&mockStoryService{})

	t.Run("missing header", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/auth/me", "", false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/auth/me", "", true)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), testUser.Email)
	})
}

func TestGoogleAuth(t *testing.T) {
	router := setupRouter(&mockStoryService{})

	t.Run("success", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/auth/google", `{"id_token": "google-token"}`, false)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "issued-session-token", resp["access_token"])
		assert.Equal(t, "bearer", resp["token_type"])
	})

	t.Run("missing id_token", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/auth/google", `{}`, false)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCreateStory_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"content rejected", fmt.Errorf("%w: bad request", model.ErrContentRejected), http.StatusBadRequest},
		{"validation", fmt.Errorf("%w: hero age must be between 2 and 12", model.ErrValidation), http.StatusBadRequest},
		{"internal", fmt.Errorf("db down"), http.StatusInternalServerError},
	}

	body := `{"theme": "space", "hero_name": "Luna", "hero_age": 5, "reading_time": 3}`
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupRouter(&mockStoryService{createErr: tt.err})
			w := doRequest(router, http.MethodPost, "/stories/create", body, true)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestCreateStory_ReturnsShell(t *testing.T) {
	shell := &model.Story{
		ID:     uuid.New(),
		UserID: testUser.ID,
		Title:  "Luna's Space Adventure",
		Status: model.StatusGenerating,
	}
	router := setupRouter(&mockStoryService{story: shell})

	body := `{"theme": "space", "hero_name": "Luna", "hero_age": 5, "reading_time": 3}`
	w := doRequest(router, http.MethodPost, "/stories/create", body, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"generating"`)
}

func TestGetStory(t *testing.T) {
	t.Run("invalid id", func(t *testing.T) {
		router := setupRouter(&mockStoryService{})
		w := doRequest(router, http.MethodGet, "/stories/not-a-uuid", "", true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		router := setupRouter(&mockStoryService{getErr: model.ErrStoryNotFound})
		w := doRequest(router, http.MethodGet, "/stories/"+uuid.NewString(), "", true)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestMakeChoice(t *testing.T) {
	storyID := uuid.NewString()

	t.Run("success", func(t *testing.T) {
		router := setupRouter(&mockStoryService{progress: &model.StoryProgress{
			CurrentPage: 3,
			PathTaken:   []int{1, 3},
		}})
		w := doRequest(router, http.MethodPost, "/stories/"+storyID+"/choice", `{"current_page": 3}`, true)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, float64(3), resp["current_page"])
	})

	t.Run("version conflict", func(t *testing.T) {
		router := setupRouter(&mockStoryService{choiceErr: model.ErrVersionConflict})
		w := doRequest(router, http.MethodPost, "/stories/"+storyID+"/choice", `{"current_page": 3}`, true)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("missing page", func(t *testing.T) {
		router := setupRouter(&mockStoryService{})
		w := doRequest(router, http.MethodPost, "/stories/"+storyID+"/choice", `{}`, true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSharedStory_PublicAccess(t *testing.T) {
	story := &model.Story{ID: uuid.New(), Title: "Shared", Status: model.StatusComplete}

	t.Run("resolves without auth", func(t *testing.T) {
		router := setupRouter(&mockStoryService{story: story})
		w := doRequest(router, http.MethodGet, "/stories/shared/some-token", "", false)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Shared")
	})

	t.Run("unknown token", func(t *testing.T) {
		router := setupRouter(&mockStoryService{resolvErr: model.ErrShareNotFound})
		w := doRequest(router, http.MethodGet, "/stories/shared/some-token", "", false)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestShareStory(t *testing.T) {
	router := setupRouter(&mockStoryService{link: &service.ShareLink{
		Token:    "tok-1",
		ShareURL: "https://stories.example/story/shared/tok-1",
	}})

	w := doRequest(router, http.MethodGet, "/stories/"+uuid.NewString()+"/share", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tok-1")
}

func TestDeleteStory(t *testing.T) {
	router := setupRouter(&mockStoryService{})

	w := doRequest(router, http.MethodDelete, "/stories/"+uuid.NewString(), "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "success")
}

package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyteller-server/internal/auth"
	"storyteller-server/internal/model"
	"storyteller-server/internal/service"
)

// Handler binds the HTTP surface to the services.
type Handler struct {
	authService  auth.AuthService
	tokenService auth.TokenService
	stories      service.StoryService
	logger       *zap.Logger
}

// New creates the HTTP handler.
func New(authService auth.AuthService, tokenService auth.TokenService, stories service.StoryService, logger *zap.Logger) *Handler {
	return &Handler{
		authService:  authService,
		tokenService: tokenService,
		stories:      stories,
		logger:       logger.Named("HTTPHandler"),
	}
}

// RegisterRoutes attaches all routes to the engine.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/google", h.googleAuth)
		authGroup.GET("/me", h.requireAuth(), h.currentUser)
		authGroup.POST("/logout", h.requireAuth(), h.logout)
	}

	stories := r.Group("/stories")
	{
		// Share resolution is public: the token is the credential.
		stories.GET("/shared/:token", h.sharedStory)

		authed := stories.Group("", h.requireAuth())
		authed.POST("/create", h.createStory)
		authed.GET("/", h.listStories)
		authed.GET("/:id", h.getStory)
		authed.POST("/:id/choice", h.makeChoice)
		authed.DELETE("/:id", h.deleteStory)
		authed.GET("/:id/share", h.shareStory)
	}
}

func (h *Handler) requireAuth() gin.HandlerFunc {
	return AuthMiddleware(h.tokenService, h.authService, h.logger)
}

// currentUserFromContext extracts the user loaded by the auth middleware.
func currentUserFromContext(c *gin.Context) (*model.User, bool) {
	value, exists := c.Get(currentUserKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*model.User)
	return user, ok
}

// handleServiceError maps service errors onto HTTP statuses.
func (h *Handler) handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var apiErr APIError

	switch {
	case errors.Is(err, model.ErrTokenExpired),
		errors.Is(err, model.ErrTokenInvalid),
		errors.Is(err, model.ErrTokenMalformed):
		statusCode = http.StatusUnauthorized
		apiErr = APIError{Message: "Invalid or expired token"}
	case errors.Is(err, model.ErrEmailConflict):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, model.ErrContentRejected):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: "Content request contains inappropriate elements"}
	case errors.Is(err, model.ErrValidation):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, model.ErrStoryNotFound),
		errors.Is(err, model.ErrUserNotFound),
		errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrShareNotFound):
		statusCode = http.StatusNotFound
		apiErr = APIError{Message: "Resource not found or access denied"}
	case errors.Is(err, model.ErrVersionConflict):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: "Concurrent update, please retry"}
	default:
		h.logger.Error("Unhandled service error", zap.Error(err))
		statusCode = http.StatusInternalServerError
		apiErr = APIError{Message: "Internal server error"}
	}
	c.JSON(statusCode, apiErr)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{Status: "healthy"})
}

// googleAuth exchanges a Google ID token for a local session.
func (h *Handler) googleAuth(c *gin.Context) {
	var req googleAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	user, accessToken, err := h.authService.AuthenticateGoogle(c.Request.Context(), req.IDToken)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, authResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
		User:        toUserResponse(user),
	})
}

func (h *Handler) currentUser(c *gin.Context) {
	user, ok := currentUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// logout is stateless: sessions are self-contained JWTs, the client simply
// discards its copy.
func (h *Handler) logout(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{Status: "success", Message: "Logged out"})
}

// createStory starts asynchronous story assembly and returns the shell.
func (h *Handler) createStory(c *gin.Context) {
	user, ok := currentUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
		return
	}

	var req createStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	story, err := h.stories.CreateStory(c.Request.Context(), user.ID, service.CreateStoryInput{
		Theme:          req.Theme,
		HeroName:       req.HeroName,
		HeroAge:        req.HeroAge,
		ReadingTime:    req.ReadingTime,
		SpecialRequest: req.SpecialRequest,
		IsInteractive:  req.IsInteractive,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, story)
}

func (h *Handler) listStories(c *gin.Context) {
	user, ok := currentUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
		return
	}

	skip := intQuery(c, "skip", 0)
	limit := intQuery(c, "limit", 20)

	stories, err := h.stories.ListStories(c.Request.Context(), user.ID, skip, limit)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	summaries := make([]storySummary, 0, len(stories))
	for _, s := range stories {
		summaries = append(summaries, toStorySummary(s))
	}
	c.JSON(http.StatusOK, summaries)
}

func (h *Handler) getStory(c *gin.Context) {
	user, storyID, ok := h.storyRequest(c)
	if !ok {
		return
	}

	story, err := h.stories.GetStory(c.Request.Context(), storyID, user.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (h *Handler) makeChoice(c *gin.Context) {
	user, storyID, ok := h.storyRequest(c)
	if !ok {
		return
	}

	var req choiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	progress, err := h.stories.MakeChoice(c.Request.Context(), storyID, user.ID, req.CurrentPage)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, choiceResponse{
		Status:      "success",
		CurrentPage: progress.CurrentPage,
		PathTaken:   progress.PathTaken,
	})
}

func (h *Handler) deleteStory(c *gin.Context) {
	user, storyID, ok := h.storyRequest(c)
	if !ok {
		return
	}

	if err := h.stories.DeleteStory(c.Request.Context(), storyID, user.ID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{Status: "success", Message: "Story deleted"})
}

func (h *Handler) shareStory(c *gin.Context) {
	user, storyID, ok := h.storyRequest(c)
	if !ok {
		return
	}

	link, err := h.stories.ShareStory(c.Request.Context(), storyID, user.ID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, shareResponse{ShareURL: link.ShareURL, ShareToken: link.Token})
}

// sharedStory resolves a share token without authentication.
func (h *Handler) sharedStory(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, APIError{Message: "Share token required"})
		return
	}

	story, err := h.stories.ResolveSharedStory(c.Request.Context(), token)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

// storyRequest extracts the authenticated user and the story ID parameter.
func (h *Handler) storyRequest(c *gin.Context) (*model.User, uuid.UUID, bool) {
	user, ok := currentUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized"})
		return nil, uuid.UUID{}, false
	}

	storyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid story ID format"})
		return nil, uuid.UUID{}, false
	}
	return user, storyID, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	value := c.Query(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

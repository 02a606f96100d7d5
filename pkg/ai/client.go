package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Ошибки, которые вызывающий код может различать через errors.Is.
var (
	// ErrRetryRequested — модель так и не вернула пригодный ответ
	// после всех попыток.
	ErrRetryRequested = errors.New("ai: retry attempts exhausted")
	// ErrEmptyResponse — API вернул ответ без вариантов.
	ErrEmptyResponse = errors.New("ai: empty response from API")
	// ErrImageTimeout — генерация изображения не уложилась в таймаут.
	ErrImageTimeout = errors.New("ai: image generation timed out")
)

// Config содержит конфигурацию для клиента нейросети
type Config struct {
	APIKey     string
	BaseURL    string
	ModelName  string
	Timeout    int
	MaxRetries int
}

// ImageConfig содержит параметры генерации изображений
type ImageConfig struct {
	Model   string
	Size    string
	Quality string
	Style   string
	Timeout int
}

// Client предоставляет интерфейс для работы с API нейросети
type Client struct {
	client     *openai.Client
	modelName  string
	timeout    time.Duration
	maxRetries int
	imageCfg   ImageConfig
	logger     *zap.Logger
}

// New создает новый экземпляр клиента нейросети
func New(cfg Config, imageCfg ImageConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("AI API key is not set")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "gpt-4o"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if imageCfg.Model == "" {
		imageCfg.Model = openai.CreateImageModelDallE3
	}
	if imageCfg.Size == "" {
		imageCfg.Size = openai.CreateImageSize1024x1024
	}
	if imageCfg.Timeout <= 0 {
		imageCfg.Timeout = 120
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &Client{
		client:     openai.NewClientWithConfig(config),
		modelName:  cfg.ModelName,
		timeout:    time.Duration(cfg.Timeout) * time.Second,
		maxRetries: cfg.MaxRetries,
		imageCfg:   imageCfg,
		logger:     logger.Named("AIClient"),
	}, nil
}

// GenerateJSON отправляет запрос модели и возвращает ответ, который
// гарантированно является валидным JSON. Повторяет запрос с линейной
// задержкой при сетевых ошибках, пустых и не-JSON ответах.
func (c *Client) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	attempts := 0
	for attempts < c.maxRetries {
		attempts++

		req := openai.ChatCompletionRequest{
			Model: c.modelName,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: userPrompt,
				},
			},
			Temperature: 0.7,
			TopP:        0.95,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			c.logger.Error("CreateChatCompletion failed", zap.Int("attempt", attempts), zap.Error(err))
			if attempts >= c.maxRetries {
				return "", fmt.Errorf("%w: %v", ErrRetryRequested, err)
			}
			time.Sleep(time.Duration(attempts) * time.Second)
			continue
		}

		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			c.logger.Warn("Empty response from AI", zap.Int("attempt", attempts))
			if attempts >= c.maxRetries {
				return "", ErrEmptyResponse
			}
			time.Sleep(time.Duration(attempts) * time.Second)
			continue
		}

		content := StripCodeFences(resp.Choices[0].Message.Content)

		// Проверка, является ли ответ валидным JSON
		var js json.RawMessage
		if json.Unmarshal([]byte(content), &js) != nil {
			c.logger.Warn("AI response is not valid JSON, retrying", zap.Int("attempt", attempts))
			if attempts >= c.maxRetries {
				return "", fmt.Errorf("%w: response is not valid JSON after %d attempts", ErrRetryRequested, attempts)
			}
			time.Sleep(time.Duration(attempts) * time.Second)
			continue
		}

		return content, nil
	}

	return "", ErrRetryRequested
}

// GenerateText отправляет запрос модели и возвращает ответ как есть,
// без требования JSON-формата.
func (c *Client) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	attempts := 0
	for attempts < c.maxRetries {
		attempts++

		req := openai.ChatCompletionRequest{
			Model: c.modelName,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: userPrompt,
				},
			},
			Temperature: 0.7,
			TopP:        0.95,
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			if attempts >= c.maxRetries {
				return "", fmt.Errorf("%w: %v", ErrRetryRequested, err)
			}
			time.Sleep(time.Duration(attempts) * time.Second)
			continue
		}

		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			if attempts >= c.maxRetries {
				return "", ErrEmptyResponse
			}
			time.Sleep(time.Duration(attempts) * time.Second)
			continue
		}

		return resp.Choices[0].Message.Content, nil
	}

	return "", ErrRetryRequested
}

// GenerateImage генерирует изображение по текстовому промпту и возвращает
// URL результата. Вызов ограничен собственным таймаутом, чтобы долгая
// генерация одной иллюстрации не блокировала конвейер целиком.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.imageCfg.Timeout)*time.Second)
	defer cancel()

	req := openai.ImageRequest{
		Model:   c.imageCfg.Model,
		Prompt:  prompt,
		N:       1,
		Size:    c.imageCfg.Size,
		Quality: c.imageCfg.Quality,
		Style:   c.imageCfg.Style,
	}

	resp, err := c.client.CreateImage(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrImageTimeout
		}
		return "", fmt.Errorf("image generation failed: %w", err)
	}

	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", ErrEmptyResponse
	}

	return resp.Data[0].URL, nil
}

// ModerateVision отправляет мультимодальный запрос (текст + изображение)
// модели-судье и возвращает JSON-вердикт.
func (c *Client) ModerateVision(ctx context.Context, model, systemPrompt, userText, imageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if model == "" {
		model = c.modelName
	}

	parts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: userText,
		},
	}
	if imageURL != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    imageURL,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: parts,
			},
		},
		Temperature: 0.0,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("moderation call failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}

	return StripCodeFences(resp.Choices[0].Message.Content), nil
}

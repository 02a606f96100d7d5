package imageopt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Optimizer переносит сгенерированные изображения в CDN и возвращает
// оптимизированный URL. Любая ошибка не фатальна: вызывающий код
// получает исходный URL без изменений.
type Optimizer interface {
	Optimize(ctx context.Context, imageURL string) string
}

// Config содержит настройки Cloudinary.
type Config struct {
	CloudName    string
	UploadPreset string
	Enabled      bool
	Timeout      int
}

// Transformation applied to every uploaded illustration: square crop for
// the reader layout, automatic quality and format negotiation.
const transformation = "w_800,h_800,c_fill,g_center,q_auto:good,f_auto,fl_progressive"

type cloudinaryOptimizer struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

var _ Optimizer = (*cloudinaryOptimizer)(nil)

// New создает оптимизатор изображений на основе Cloudinary.
func New(cfg Config, logger *zap.Logger) Optimizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cloudinaryOptimizer{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		logger: logger.Named("ImageOptimizer"),
	}
}

type uploadResponse struct {
	PublicID string `json:"public_id"`
	Format   string `json:"format"`
	Version  int64  `json:"version"`
}

// Optimize загружает изображение по URL в Cloudinary (unsigned upload)
// и возвращает URL с трансформацией. При любой ошибке или выключенной
// оптимизации возвращается исходный URL.
func (o *cloudinaryOptimizer) Optimize(ctx context.Context, imageURL string) string {
	if !o.cfg.Enabled || o.cfg.CloudName == "" || imageURL == "" {
		return imageURL
	}

	log := o.logger.With(zap.String("source_url", imageURL))

	optimized, err := o.upload(ctx, imageURL)
	if err != nil {
		log.Warn("Image optimization failed, keeping original URL", zap.Error(err))
		return imageURL
	}

	log.Debug("Image optimized", zap.String("optimized_url", optimized))
	return optimized
}

// upload выполняет unsigned upload по удалённому URL.
func (o *cloudinaryOptimizer) upload(ctx context.Context, imageURL string) (string, error) {
	endpoint := fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/upload", o.cfg.CloudName)

	form := url.Values{}
	form.Set("file", imageURL)
	form.Set("upload_preset", o.cfg.UploadPreset)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	if readErr != nil {
		return "", fmt.Errorf("failed to read upload response: %w", readErr)
	}

	var uploaded uploadResponse
	if err := json.Unmarshal(bodyBytes, &uploaded); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	if uploaded.PublicID == "" {
		return "", fmt.Errorf("upload response has no public_id")
	}

	return o.deliveryURL(uploaded), nil
}

// deliveryURL собирает URL доставки с трансформацией.
func (o *cloudinaryOptimizer) deliveryURL(u uploadResponse) string {
	format := u.Format
	if format == "" {
		format = "jpg"
	}
	return fmt.Sprintf("https://res.cloudinary.com/%s/image/upload/%s/v%d/%s.%s",
		o.cfg.CloudName, transformation, u.Version, u.PublicID, format)
}

// Noop возвращает оптимизатор, который всегда отдает исходный URL.
// Используется, когда Cloudinary не сконфигурирован.
func Noop() Optimizer {
	return noopOptimizer{}
}

type noopOptimizer struct{}

func (noopOptimizer) Optimize(_ context.Context, imageURL string) string { return imageURL }

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config содержит конфигурацию приложения
type Config struct {
	Environment string
	Server      ServerConfig
	Logger      LoggerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	AI          AIConfig
	ImageAI     ImageAIConfig
	Moderation  ModerationConfig
	Cloudinary  CloudinaryConfig
	Google      GoogleConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Pipeline    PipelineConfig
	FrontendURL string
}

// ServerConfig содержит конфигурацию HTTP-сервера
type ServerConfig struct {
	Port                int
	ReadTimeoutSeconds  int
	WriteTimeoutSeconds int
	IdleTimeoutSeconds  int
}

// LoggerConfig содержит конфигурацию логгера
type LoggerConfig struct {
	Level      string
	Encoding   string
	OutputPath string
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConnections int
}

// DSN собирает строку подключения PostgreSQL.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// RedisConfig содержит конфигурацию Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AIConfig содержит конфигурацию текстовой AI-модели
type AIConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	TimeoutSeconds int
	MaxAttempts    int
}

// ImageAIConfig содержит конфигурацию генерации изображений
type ImageAIConfig struct {
	Model          string
	Size           string
	Quality        string
	Style          string
	TimeoutSeconds int
}

// ModerationConfig содержит конфигурацию модерации контента
type ModerationConfig struct {
	Model string
	// EscalationThreshold — минимальная длина special_request,
	// при которой запрос отправляется на удалённую проверку.
	EscalationThreshold int
	// FailOpen — при недоступности модерации считать контент безопасным.
	FailOpen bool
}

// CloudinaryConfig содержит конфигурацию оптимизации изображений
type CloudinaryConfig struct {
	CloudName    string
	UploadPreset string
	Enabled      bool
}

// GoogleConfig содержит конфигурацию Google OAuth
type GoogleConfig struct {
	ClientID string
}

// JWTConfig содержит конфигурацию JWT
type JWTConfig struct {
	Secret         string
	AccessTokenTTL int // Время жизни access токена в часах
}

// CORSConfig содержит конфигурацию CORS
type CORSConfig struct {
	AllowedOrigins []string
}

// PipelineConfig содержит конфигурацию фоновой сборки историй
type PipelineConfig struct {
	MaxConcurrentTasks int
	TaskRetentionHours int
}

// Load загружает конфигурацию из переменных окружения
func Load(env string) (Config, error) {
	cfg := Config{
		Environment: env,
		Server: ServerConfig{
			Port:                getEnvInt("SERVER_PORT", 8080),
			ReadTimeoutSeconds:  getEnvInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeoutSeconds: getEnvInt("SERVER_WRITE_TIMEOUT", 30),
			IdleTimeoutSeconds:  getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Logger: LoggerConfig{
			Level:      getEnvStr("LOG_LEVEL", "info"),
			Encoding:   getEnvStr("LOG_ENCODING", "json"),
			OutputPath: getEnvStr("LOG_OUTPUT", ""),
		},
		Database: DatabaseConfig{
			Host:           getEnvStr("DB_HOST", "localhost"),
			Port:           getEnvInt("DB_PORT", 5432),
			User:           getEnvStr("DB_USER", "postgres"),
			Password:       getEnvStr("DB_PASSWORD", "postgres"),
			Name:           getEnvStr("DB_NAME", "storyteller"),
			SSLMode:        getEnvStr("DB_SSL_MODE", "disable"),
			MaxConnections: getEnvInt("DB_MAX_CONNECTIONS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnvStr("REDIS_ADDR", "localhost:6379"),
			Password: getEnvStr("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		AI: AIConfig{
			APIKey:         getEnvStr("AI_API_KEY", ""),
			Model:          getEnvStr("AI_MODEL", "gpt-4o"),
			BaseURL:        getEnvStr("AI_BASE_URL", "https://api.openai.com/v1"),
			TimeoutSeconds: getEnvInt("AI_TIMEOUT", 90),
			MaxAttempts:    getEnvInt("AI_MAX_ATTEMPTS", 3),
		},
		ImageAI: ImageAIConfig{
			Model:          getEnvStr("IMAGE_AI_MODEL", "dall-e-3"),
			Size:           getEnvStr("IMAGE_AI_SIZE", "1024x1024"),
			Quality:        getEnvStr("IMAGE_AI_QUALITY", "hd"),
			Style:          getEnvStr("IMAGE_AI_STYLE", "vivid"),
			TimeoutSeconds: getEnvInt("IMAGE_AI_TIMEOUT", 120),
		},
		Moderation: ModerationConfig{
			Model:               getEnvStr("MODERATION_MODEL", "gpt-4o-mini"),
			EscalationThreshold: getEnvInt("MODERATION_ESCALATION_THRESHOLD", 20),
			FailOpen:            getEnvBool("MODERATION_FAIL_OPEN", true),
		},
		Cloudinary: CloudinaryConfig{
			CloudName:    getEnvStr("CLOUDINARY_CLOUD_NAME", ""),
			UploadPreset: getEnvStr("CLOUDINARY_UPLOAD_PRESET", ""),
			Enabled:      getEnvBool("CLOUDINARY_ENABLED", false),
		},
		Google: GoogleConfig{
			ClientID: getEnvStr("GOOGLE_CLIENT_ID", ""),
		},
		JWT: JWTConfig{
			Secret:         getEnvStr("JWT_SECRET", ""),
			AccessTokenTTL: getEnvInt("JWT_ACCESS_TOKEN_TTL", 168), // 7 дней
		},
		CORS: CORSConfig{
			AllowedOrigins: strings.Split(getEnvStr("CORS_ALLOWED_ORIGINS", "http://localhost:3000"), ","),
		},
		Pipeline: PipelineConfig{
			MaxConcurrentTasks: getEnvInt("PIPELINE_MAX_CONCURRENT", 4),
			TaskRetentionHours: getEnvInt("PIPELINE_TASK_RETENTION_HOURS", 24),
		},
		FrontendURL: getEnvStr("FRONTEND_URL", "http://localhost:3000"),
	}

	// Проверка обязательных настроек
	if cfg.AI.APIKey == "" {
		return cfg, fmt.Errorf("AI_API_KEY not set")
	}
	if cfg.JWT.Secret == "" {
		return cfg, fmt.Errorf("JWT_SECRET not set")
	}
	if cfg.Google.ClientID == "" {
		return cfg, fmt.Errorf("GOOGLE_CLIENT_ID not set")
	}
	if cfg.Cloudinary.Enabled && cfg.Cloudinary.CloudName == "" {
		return cfg, fmt.Errorf("CLOUDINARY_CLOUD_NAME not set while Cloudinary is enabled")
	}

	return cfg, nil
}

// getEnvStr возвращает строковое значение из переменной окружения или значение по умолчанию
func getEnvStr(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt возвращает целочисленное значение из переменной окружения или значение по умолчанию
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool возвращает булево значение из переменной окружения или значение по умолчанию
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"storyteller-server/internal/auth"
	"storyteller-server/internal/config"
	"storyteller-server/internal/generator"
	"storyteller-server/internal/handler"
	"storyteller-server/internal/moderation"
	"storyteller-server/internal/orchestrator"
	"storyteller-server/internal/repository"
	"storyteller-server/internal/service"
	"storyteller-server/migrations"
	"storyteller-server/pkg/ai"
	"storyteller-server/pkg/database"
	"storyteller-server/pkg/imageopt"
	"storyteller-server/pkg/logger"
	"storyteller-server/pkg/migration"
	"storyteller-server/pkg/taskmanager"
)

func main() {
	// Загрузка переменных окружения
	if err := godotenv.Load(); err != nil {
		// В production .env может не использоваться
		fmt.Printf("Warning: could not load .env file: %v\n", err)
	}

	// Парсинг флагов командной строки
	env := flag.String("env", "development", "Environment: development, production")
	flag.Parse()

	// Загрузка конфигурации
	cfg, err := config.Load(*env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	log, err := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Encoding:   cfg.Logger.Encoding,
		OutputPath: cfg.Logger.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Инициализация соединения с БД
	log.Info("Connecting to database...")
	db, err := database.New(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConnections,
	}, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Применяем миграции
	migrator := migration.NewMigrator(migration.Config{
		MigrationsPath: ".",
		MigrationsFS:   migrations.FS,
	}, db.Pool, log)
	if err := migrator.Up(); err != nil {
		log.Fatal("Failed to apply migrations", zap.Error(err))
	}

	// Инициализация Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Инициализация AI клиента
	aiClient, err := ai.New(ai.Config{
		APIKey:     cfg.AI.APIKey,
		BaseURL:    cfg.AI.BaseURL,
		ModelName:  cfg.AI.Model,
		Timeout:    cfg.AI.TimeoutSeconds,
		MaxRetries: cfg.AI.MaxAttempts,
	}, ai.ImageConfig{
		Model:   cfg.ImageAI.Model,
		Size:    cfg.ImageAI.Size,
		Quality: cfg.ImageAI.Quality,
		Style:   cfg.ImageAI.Style,
		Timeout: cfg.ImageAI.TimeoutSeconds,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize AI client", zap.Error(err))
	}

	// Оптимизатор изображений
	var optimizer imageopt.Optimizer
	if cfg.Cloudinary.Enabled {
		optimizer = imageopt.New(imageopt.Config{
			CloudName:    cfg.Cloudinary.CloudName,
			UploadPreset: cfg.Cloudinary.UploadPreset,
			Enabled:      true,
		}, log)
	} else {
		optimizer = imageopt.Noop()
	}

	// Репозитории
	userRepo := repository.NewPgUserRepository(db.Pool, log)
	storyRepo := repository.NewPgStoryRepository(db.Pool, log)
	progressRepo := repository.NewPgProgressRepository(db.Pool, log)
	shareRepo := repository.NewRedisShareRepository(redisClient, log)

	// Менеджер фоновых задач
	taskManager, err := taskmanager.New(taskmanager.Config{
		MaxTasks: cfg.Pipeline.MaxConcurrentTasks,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize task manager", zap.Error(err))
	}

	// Модерация, генерация и оркестрация
	moderator := moderation.New(aiClient, moderation.Config{
		Model:               cfg.Moderation.Model,
		EscalationThreshold: cfg.Moderation.EscalationThreshold,
		FailOpen:            cfg.Moderation.FailOpen,
	}, log)
	storyGenerator := generator.New(aiClient, optimizer, moderator, generator.Config{
		Model: cfg.AI.Model,
	}, log)
	assembly := orchestrator.New(storyGenerator, storyRepo, log)

	// Аутентификация
	googleVerifier := auth.NewGoogleVerifier(cfg.Google.ClientID, log)
	tokenService := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	authService := auth.NewAuthService(googleVerifier, tokenService, userRepo, log)

	// Сервис историй
	storyService := service.NewStoryService(
		storyRepo, progressRepo, shareRepo, moderator, assembly, taskManager,
		cfg.FrontendURL, log)

	// HTTP сервер
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.ZapLoggingMiddleware(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	prom := ginprometheus.NewPrometheus("storyteller")
	prom.Use(router)

	httpHandler := handler.New(authService, tokenService, storyService, log)
	httpHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}

	// Периодическая очистка завершенных задач
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				taskManager.CleanupTasks(time.Duration(cfg.Pipeline.TaskRetentionHours) * time.Hour)
			case <-cleanupDone:
				return
			}
		}
	}()

	// Запуск сервера в горутине
	go func() {
		log.Info("Starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	gracefulShutdown(server, taskManager, log)
	close(cleanupDone)
}

// gracefulShutdown обеспечивает плавное завершение работы сервера
func gracefulShutdown(server *http.Server, taskManager taskmanager.ITaskManager, log *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Остановка HTTP сервера
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}

	// Ожидаем завершения фоновой сборки историй
	if err := taskManager.Shutdown(ctx); err != nil {
		log.Error("Task manager shutdown failed", zap.Error(err))
	}

	log.Info("Server stopped gracefully")
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/blog-analytics/internal/config"
	"github.com/SergeiKhy/blog-analytics/internal/handler"
	"github.com/SergeiKhy/blog-analytics/internal/logger"
	"github.com/SergeiKhy/blog-analytics/internal/middleware"
	"github.com/SergeiKhy/blog-analytics/internal/repository"
	"github.com/SergeiKhy/blog-analytics/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Подключение к БД (postgres)
	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		zl.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	zl.Info("Connected to PostgreSQL")

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		zl.Fatal("Failed to migrate database", zap.Error(err))
	}
	cancelMigrate()

	// Подключение к Redis
	redis, err := repository.NewRedisClient(cfg.Redis)
	if err != nil {
		zl.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	zl.Info("Connected to Redis")

	// Инициализация репозиториев
	pageViewRepo := repository.NewPageViewRepository(db)
	hitRepo := repository.NewHitRepository(db)
	linkRepo := repository.NewVisitorLinkRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	blockStore := repository.NewBlockStore(redis)
	viewCounter := repository.NewViewCounter(redis)
	viewQueue := repository.NewViewQueue(redis)
	sessionStore := repository.NewSessionStore(redis)

	// Инициализация процессора просмотров (Worker Pool)
	viewProcessor := service.NewViewProcessor(viewQueue, pageViewRepo, hitRepo, viewCounter, service.ProcessorConfig{
		Workers:    cfg.Ingest.Workers,
		MaxRetries: cfg.Ingest.MaxRetries,
	}, zl)
	viewProcessor.Start()
	defer viewProcessor.Stop()

	// Инициализация сервисов
	svc := handler.Services{
		Tracker: service.NewViewTracker(
			service.NewBotClassifier(cfg.Tracking.BotFragments),
			blockStore,
			viewQueue,
			service.TrackerConfig{BlockTTL: cfg.Tracking.BlockTTL},
			zl,
		),
		Processor:  viewProcessor,
		Counter:    service.NewViewCounterService(viewCounter, pageViewRepo, zl),
		Resolver:   service.NewIdentityResolver(linkRepo, zl),
		Reconciler: service.NewReconciler(pageViewRepo, linkRepo, sessionStore, cfg.Tracking.SessionTTL, zl),
		Stats:      service.NewStatsService(statsRepo),
		Sessions:   sessionStore,
	}

	// Инициализация middleware
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})
	defer rateLimiter.Stop()

	if len(cfg.Auth.APIKeys) == 0 {
		zl.Warn("API_KEYS is empty, stats endpoints will reject every request")
	} else {
		zl.Info("API key authentication enabled", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	}
	if cfg.Auth.JWTSecret == "" {
		zl.Warn("JWT_SECRET is empty, every request is tracked as a guest")
	}

	// Настройка роутера
	router := handler.NewRouter(svc, handler.RouterConfig{
		CORSOrigins: cfg.App.CORSOrigins,
		JWTSecret:   cfg.Auth.JWTSecret,
		APIKeys:     cfg.Auth.APIKeys,
		VisitorCookie: middleware.CookieConfig{
			Name:   cfg.Tracking.VisitorCookie,
			TTL:    cfg.Tracking.VisitorCookieTTL,
			Secure: cfg.Tracking.CookieSecure,
		},
		SessionCookie: middleware.CookieConfig{
			Name:   cfg.Tracking.SessionCookie,
			TTL:    cfg.Tracking.SessionTTL,
			Secure: cfg.Tracking.CookieSecure,
		},
	}, rateLimiter, zl)

	// Запуск сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		zl.Info("Server starting", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zl.Error("Server forced to shutdown", zap.Error(err))
	}

	zl.Info("Server exited")
}

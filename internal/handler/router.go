package handler

import (
	"time"

	"github.com/SergeiKhy/blog-analytics/internal/middleware"
	"github.com/SergeiKhy/blog-analytics/internal/repository"
	"github.com/SergeiKhy/blog-analytics/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services зависимости HTTP слоя
type Services struct {
	Tracker    service.ViewTracker
	Processor  service.ViewProcessor
	Counter    service.ViewCounterService
	Resolver   service.IdentityResolver
	Reconciler service.Reconciler
	Stats      service.StatsService
	Sessions   repository.SessionStore
}

// RouterConfig настройки HTTP слоя
type RouterConfig struct {
	CORSOrigins   []string
	JWTSecret     string
	APIKeys       map[string]string
	VisitorCookie middleware.CookieConfig
	SessionCookie middleware.CookieConfig
}

func NewRouter(
	svc Services,
	cfg RouterConfig,
	rateLimiter *middleware.RateLimiter,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Middleware для логгирования
	router.Use(middleware.RequestLogger(logger))

	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	}

	viewHandler := NewViewHandler(svc.Tracker, svc.Counter, svc.Resolver, logger)
	statsHandler := NewStatsHandler(svc.Stats, svc.Processor, logger)

	// API v.1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", HealthCheck)

		// Публичная часть: cookie посетителя, сессия, JWT и сверка после входа
		public := v1.Group("",
			middleware.VisitorCookie(cfg.VisitorCookie),
			middleware.Sessions(svc.Sessions, cfg.SessionCookie, logger),
			middleware.OptionalAuth(cfg.JWTSecret, logger),
			middleware.ReconcileVisitors(svc.Reconciler, logger),
		)
		public.POST("/views/:type/:id", rateLimiter.Middleware(), viewHandler.Track)
		public.GET("/views/:type/:id", viewHandler.Count)
		public.GET("/identity", viewHandler.Identity)

		// Отчёты только по API ключу
		stats := v1.Group("/stats", middleware.RequireAPIKey(cfg.APIKeys))
		stats.GET("/blogs", statsHandler.Blogs)
		stats.GET("/posts", statsHandler.Posts)
		stats.GET("/visitors", statsHandler.Visitors)
		stats.GET("/bots", statsHandler.Bots)
		stats.GET("/anonymous", statsHandler.Anonymous)
		stats.GET("/queue", statsHandler.Queue)
	}

	return router
}

// corsConfig разрешает трекинг-маяку с фронтенда слать cookie
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.APIKeyHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}

	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}

	return cfg
}

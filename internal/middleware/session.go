package middleware

import (
	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/SergeiKhy/blog-analytics/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sessions загружает серверное состояние сессии по session cookie
func Sessions(store repository.SessionStore, cfg CookieConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(cfg.Name)
		if err != nil || uuid.Validate(sessionID) != nil {
			sessionID = uuid.NewString()
		}
		setCookie(c, cfg, sessionID)

		ctx := c.Request.Context()
		session, err := store.Get(ctx, sessionID)
		if err != nil {
			// Без Redis сессия пустая: сверка просто повторится позже
			logger.Warn("Не удалось загрузить сессию", zap.Error(err))
			session = &models.Session{ID: sessionID}
		} else if err := store.Touch(ctx, sessionID, cfg.TTL); err != nil {
			logger.Debug("Не удалось продлить сессию", zap.Error(err))
		}

		c.Set(ContextSessionKey, session)
		c.Next()
	}
}

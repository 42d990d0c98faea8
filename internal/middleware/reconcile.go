package middleware

import (
	"github.com/SergeiKhy/blog-analytics/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReconcileVisitors после входа один раз за сессию переносит анонимные просмотры
// на пользователя. Ошибки только логируются
func ReconcileVisitors(reconciler service.Reconciler, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserID(c)
		session := Session(c)

		if userID != nil && session != nil && session.VisitorsSyncedFor != *userID {
			if _, err := reconciler.SyncSession(c.Request.Context(), session, *userID, RequestInfo(c)); err != nil {
				logger.Error("Не удалось сверить анонимные просмотры",
					zap.Int64("user_id", *userID),
					zap.Error(err),
				)
			}
		}

		c.Next()
	}
}

package middleware

import (
	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/gin-gonic/gin"
)

// Ключи gin контекста
const (
	ContextUserIDKey    = "user_id"
	ContextVisitorIDKey = "visitor_id"
	ContextSessionKey   = "session"
)

// UserID возвращает id авторизованного пользователя, nil для гостя
func UserID(c *gin.Context) *int64 {
	if v, ok := c.Get(ContextUserIDKey); ok {
		if id, ok := v.(int64); ok {
			return &id
		}
	}
	return nil
}

// VisitorID возвращает значение visitor cookie текущего запроса
func VisitorID(c *gin.Context) string {
	return c.GetString(ContextVisitorIDKey)
}

// Session возвращает состояние сессии, nil если middleware сессий не подключён
func Session(c *gin.Context) *models.Session {
	if v, ok := c.Get(ContextSessionKey); ok {
		if s, ok := v.(*models.Session); ok {
			return s
		}
	}
	return nil
}

// RequestInfo собирает из запроса всё, что нужно учёту просмотров
func RequestInfo(c *gin.Context) *models.RequestInfo {
	info := &models.RequestInfo{
		UserID:         UserID(c),
		VisitorID:      VisitorID(c),
		IPAddress:      c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
		AcceptLanguage: c.GetHeader("Accept-Language"),
	}
	if s := Session(c); s != nil {
		info.SessionID = s.ID
	}
	return info
}

package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxVisitorIDLength верхняя граница длины непрозрачного visitor id
const maxVisitorIDLength = 128

// CookieConfig параметры cookie идентификации
type CookieConfig struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// VisitorCookie гарантирует наличие visitor cookie и продлевает её на каждом ответе
func VisitorCookie(cfg CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		visitorID, err := c.Cookie(cfg.Name)
		if err != nil || !validVisitorID(visitorID) {
			visitorID = uuid.NewString()
		}

		setCookie(c, cfg, visitorID)
		c.Set(ContextVisitorIDKey, visitorID)

		c.Next()
	}
}

// validVisitorID принимает любой непустой токен из URL-safe символов: новые id это UUID,
// но ранее выданные значения уже лежат в page_views и visitor_links
func validVisitorID(id string) bool {
	if id == "" || len(id) > maxVisitorIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		ch := id[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-', ch == '_', ch == '.', ch == '~':
		default:
			return false
		}
	}
	return true
}

// setCookie выставляется до c.Next, пока заголовки ещё не отправлены
func setCookie(c *gin.Context, cfg CookieConfig, value string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.Name, value, int(cfg.TTL/time.Second), "/", "", cfg.Secure, true)
}

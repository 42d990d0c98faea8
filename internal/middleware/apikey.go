package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// APIKeyHeader заголовок с ключом доступа к отчётам
	APIKeyHeader = "X-API-Key"
	// ContextAPIKeyNameKey имя (описание) принятого ключа в gin контексте
	ContextAPIKeyNameKey = "api_key_name"
)

// APIKey middleware для аутентификации административных запросов по API ключу.
// Authorization занят JWT пользователя, поэтому ключ читается только из
// X-API-Key или query параметра api_key
type APIKey struct {
	// validKeys карта валидных API ключей к их описаниям
	validKeys map[string]string
}

// NewAPIKey создаёт middleware. Пустой набор ключей закрывает доступ полностью
func NewAPIKey(validKeys map[string]string) *APIKey {
	return &APIKey{validKeys: validKeys}
}

// Middleware возвращает Gin middleware handler для API key аутентификации
func (ak *APIKey) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(APIKeyHeader)

		// Также проверяем query параметр как запасной вариант
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_api_key",
				"message": "Требуется API ключ. Передайте его через заголовок X-API-Key или query параметр api_key",
			})
			return
		}

		// Валидация API ключа с использованием constant-time comparison
		keyName, valid := ak.lookup(apiKey)
		if !valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_api_key",
				"message": "Невалидный API ключ",
			})
			return
		}

		c.Set(ContextAPIKeyNameKey, keyName)
		c.Next()
	}
}

func (ak *APIKey) lookup(apiKey string) (string, bool) {
	for validKey, name := range ak.validKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
			return name, true
		}
	}
	return "", false
}

// RequireAPIKey хелпер для защиты административных роутов
func RequireAPIKey(validKeys map[string]string) gin.HandlerFunc {
	return NewAPIKey(validKeys).Middleware()
}

// APIKeyName возвращает описание ключа, которым авторизован запрос
func APIKeyName(c *gin.Context) string {
	return c.GetString(ContextAPIKeyNameKey)
}

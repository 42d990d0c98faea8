package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SergeiKhy/blog-analytics/internal/middleware"
	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/SergeiKhy/blog-analytics/internal/service"
	"github.com/SergeiKhy/blog-analytics/internal/service/mocks"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var sessionCookie = middleware.CookieConfig{Name: "session_id", TTL: 2 * time.Hour}

// TestSessions проверяет загрузку состояния сессии по cookie
func TestSessions(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := mocks.NewMockSessionStore()
	sessionID := uuid.NewString()
	require.NoError(t, store.MarkVisitorsSynced(context.Background(), sessionID, 5, time.Hour))

	router := gin.New()
	router.Use(middleware.Sessions(store, sessionCookie, zap.NewNop()))
	router.GET("/", func(c *gin.Context) {
		s := middleware.Session(c)
		c.JSON(http.StatusOK, gin.H{"id": s.ID, "synced": s.VisitorsSyncedFor})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: sessionID})
	router.ServeHTTP(w, req)
	assert.JSONEq(t, `{"id":"`+sessionID+`","synced":5}`, w.Body.String())

	// Без cookie создаётся новая сессия
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/", nil)
	router.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), `"synced":0`)
	require.Len(t, w.Result().Cookies(), 1)
	assert.Equal(t, "session_id", w.Result().Cookies()[0].Name)
}

// TestReconcileVisitors сверка запускается один раз на сессию после входа
func TestReconcileVisitors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	pageViews := mocks.NewMockPageViewRepository()
	links := mocks.NewMockVisitorLinkRepository()
	store := mocks.NewMockSessionStore()
	reconciler := service.NewReconciler(pageViews, links, store, time.Hour, zap.NewNop())

	pageViews.Add(models.PageView{VisitorID: "v2", Viewable: models.NewPost(42)})
	pageViews.Add(models.PageView{VisitorID: "v2", Viewable: models.NewBlog(10)})

	loggedIn := true
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextVisitorIDKey, "v2")
		if loggedIn {
			c.Set(middleware.ContextUserIDKey, int64(5))
		}
		c.Next()
	})
	router.Use(middleware.Sessions(store, sessionCookie, zap.NewNop()))
	router.Use(middleware.ReconcileVisitors(reconciler, zap.NewNop()))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	sessionID := uuid.NewString()
	do := func() {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/", nil)
		req.AddCookie(&http.Cookie{Name: "session_id", Value: sessionID})
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	do()
	for _, v := range pageViews.Views() {
		require.NotNil(t, v.UserID)
		assert.Equal(t, int64(5), *v.UserID)
	}

	session, err := store.Get(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), session.VisitorsSyncedFor)

	// Новый анонимный просмотр в той же сессии уже не переносится
	pageViews.Add(models.PageView{VisitorID: "v2", Viewable: models.NewPost(7)})
	do()
	assert.Nil(t, pageViews.Views()[2].UserID)

	// Гость не запускает сверку
	loggedIn = false
	do()
	assert.Nil(t, pageViews.Views()[2].UserID)
}

package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/SergeiKhy/blog-analytics/internal/service"
	"github.com/SergeiKhy/blog-analytics/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupTestTracker создаёт шлюз с моковыми хранилищами
func setupTestTracker() (service.ViewTracker, *mocks.MockBlockStore, *mocks.MockViewQueue) {
	blocks := mocks.NewMockBlockStore()
	queue := mocks.NewMockViewQueue()
	logger, _ := zap.NewDevelopment()
	tracker := service.NewViewTracker(
		service.NewBotClassifier(nil),
		blocks,
		queue,
		service.TrackerConfig{BlockTTL: time.Hour},
		logger,
	)
	return tracker, blocks, queue
}

func guestRequest(visitorID string) *models.RequestInfo {
	return &models.RequestInfo{
		VisitorID:      visitorID,
		SessionID:      "s-" + visitorID,
		IPAddress:      "203.0.113.5",
		UserAgent:      chromeUA,
		AcceptLanguage: "en-US",
	}
}

// TestBlockKeys проверяет формат и порядок ключей блокировки
func TestBlockKeys(t *testing.T) {
	keys := service.BlockKeys(models.NewPost(42), int64Ptr(5), "v1", "abc")

	assert.Equal(t, []string{
		`block:App\Models\Post:42:fingerprint:abc`,
		`block:App\Models\Post:42:user:5`,
		`block:App\Models\Post:42:visitor:v1`,
	}, keys)

	assert.Empty(t, service.BlockKeys(models.NewBlog(1), nil, "", ""))
}

// TestViewTracker_Duplicate повтор в окне блокировки не ставится в очередь
func TestViewTracker_Duplicate(t *testing.T) {
	tracker, blocks, queue := setupTestTracker()
	ctx := context.Background()

	assert.Equal(t, service.TrackQueued, tracker.Track(ctx, models.NewPost(42), guestRequest("v1")))
	assert.Equal(t, service.TrackDuplicate, tracker.Track(ctx, models.NewPost(42), guestRequest("v1")))

	jobs := queue.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobPageView, jobs[0].Kind)
	assert.Equal(t, "v1", jobs[0].VisitorID)
	assert.Equal(t, models.MorphClassPost, jobs[0].ViewableType)
	assert.Equal(t, int64(42), jobs[0].ViewableID)
	assert.NotEmpty(t, jobs[0].Fingerprint)

	for _, ttl := range blocks.Keys() {
		assert.Equal(t, time.Hour, ttl)
	}
}

// TestViewTracker_PerViewable блокировка действует на конкретную сущность
func TestViewTracker_PerViewable(t *testing.T) {
	tracker, _, queue := setupTestTracker()
	ctx := context.Background()

	assert.Equal(t, service.TrackQueued, tracker.Track(ctx, models.NewPost(42), guestRequest("v1")))
	assert.Equal(t, service.TrackQueued, tracker.Track(ctx, models.NewBlog(10), guestRequest("v1")))

	assert.Len(t, queue.Jobs(), 2)
}

// TestViewTracker_AnySignalBlocks совпадение любого сигнала считается повтором
func TestViewTracker_AnySignalBlocks(t *testing.T) {
	tracker, _, queue := setupTestTracker()
	ctx := context.Background()

	first := guestRequest("v1")
	first.UserID = int64Ptr(5)
	require.Equal(t, service.TrackQueued, tracker.Track(ctx, models.NewPost(42), first))

	// Тот же браузер после выхода: совпадают cookie и отпечаток
	assert.Equal(t, service.TrackDuplicate, tracker.Track(ctx, models.NewPost(42), guestRequest("v1")))

	// Другая cookie, но та же подсеть и браузер: совпадает отпечаток
	assert.Equal(t, service.TrackDuplicate, tracker.Track(ctx, models.NewPost(42), guestRequest("v9")))

	// Пользователь с другого устройства: совпадает только user_id
	otherDevice := &models.RequestInfo{UserID: int64Ptr(5), VisitorID: "v3", IPAddress: "198.51.100.1", UserAgent: firefoxUA}
	assert.Equal(t, service.TrackDuplicate, tracker.Track(ctx, models.NewPost(42), otherDevice))

	assert.Len(t, queue.Jobs(), 1)
}

// TestViewTracker_BlockWindowExpires после окна блокировки просмотр снова засчитывается
func TestViewTracker_BlockWindowExpires(t *testing.T) {
	tracker, blocks, queue := setupTestTracker()
	ctx := context.Background()

	tracker.Track(ctx, models.NewPost(42), guestRequest("v1"))
	blocks.Expire()
	assert.Equal(t, service.TrackQueued, tracker.Track(ctx, models.NewPost(42), guestRequest("v1")))

	assert.Len(t, queue.Jobs(), 2)
}

// TestViewTracker_Bot боты не пишут ключи блокировки и не создают page view
func TestViewTracker_Bot(t *testing.T) {
	tracker, blocks, queue := setupTestTracker()
	ctx := context.Background()

	req := &models.RequestInfo{VisitorID: "v1", IPAddress: "66.249.66.1", UserAgent: googlebotUA}
	assert.Equal(t, service.TrackBot, tracker.Track(ctx, models.NewPost(42), req))
	assert.Equal(t, service.TrackBot, tracker.Track(ctx, models.NewPost(42), req))

	assert.Empty(t, blocks.Keys())
	jobs := queue.Jobs()
	require.Len(t, jobs, 2)
	for _, job := range jobs {
		assert.Equal(t, models.JobBotView, job.Kind)
	}
}

// TestViewTracker_SynthesizesVisitorID без cookie генерируется временный visitor_id
func TestViewTracker_SynthesizesVisitorID(t *testing.T) {
	tracker, blocks, queue := setupTestTracker()

	req := guestRequest("")
	assert.Equal(t, service.TrackQueued, tracker.Track(context.Background(), models.NewPost(1), req))

	jobs := queue.Jobs()
	require.Len(t, jobs, 1)
	assert.Len(t, jobs[0].VisitorID, 36)
	assert.Empty(t, req.VisitorID, "request is not mutated")
	assert.Len(t, blocks.Keys(), 2)
}

// TestViewTracker_FailOpen недоступный кэш не теряет просмотр
func TestViewTracker_FailOpen(t *testing.T) {
	tracker, blocks, queue := setupTestTracker()
	blocks.ClaimErr = errors.New("redis: connection refused")
	ctx := context.Background()

	assert.Equal(t, service.TrackQueued, tracker.Track(ctx, models.NewPost(42), guestRequest("v1")))
	assert.Equal(t, service.TrackQueued, tracker.Track(ctx, models.NewPost(42), guestRequest("v1")))

	assert.Len(t, queue.Jobs(), 2)
}

// TestViewTracker_EnqueueFailure ошибка очереди не возвращается вызывающему
func TestViewTracker_EnqueueFailure(t *testing.T) {
	tracker, _, queue := setupTestTracker()
	queue.EnqueueErr = errors.New("redis: connection refused")

	assert.Equal(t, service.TrackDropped, tracker.Track(context.Background(), models.NewPost(42), guestRequest("v1")))
}

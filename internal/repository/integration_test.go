package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/SergeiKhy/blog-analytics/internal/config"
	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/SergeiKhy/blog-analytics/internal/repository"
	"github.com/SergeiKhy/blog-analytics/internal/visitorkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestEnv хранит окружение для интеграционных тестов
type TestEnv struct {
	db    *repository.PostgresDB
	redis *repository.RedisDB
}

// setupTestEnv поднимает PostgreSQL и Redis в контейнерах и применяет схему
func setupTestEnv(t *testing.T) *TestEnv {
	ctx := t.Context()

	dbContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("analytics"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbContainer.Terminate(context.Background()) })

	redisContainer, err := redis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisContainer.Terminate(context.Background()) })

	dbHost, err := dbContainer.Host(ctx)
	require.NoError(t, err)
	dbPort, err := dbContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)
	redisHost, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	db, err := repository.NewPostgresDB(config.DBConfig{
		Host:     dbHost,
		Port:     dbPort.Port(),
		User:     "user",
		Password: "password",
		Name:     "analytics",
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "schema is idempotent")

	redisClient, err := repository.NewRedisClient(config.RedisConfig{
		Host: redisHost,
		Port: redisPort.Port(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisClient.Close() })

	return &TestEnv{db: db, redis: redisClient}
}

// seed создаёт пользователей, блог с постом и подписку на рассылку
func (env *TestEnv) seed(t *testing.T) {
	_, err := env.db.Pool.Exec(t.Context(), `
		INSERT INTO users (id, name) VALUES (3, 'Owner'), (7, 'Bob');
		INSERT INTO blogs (id, user_id, name) VALUES (10, 3, 'Travel'), (11, 99, 'Cooking');
		INSERT INTO posts (id, blog_id, user_id, title) VALUES (42, 10, 3, 'Lisbon'), (43, 11, 99, 'Pasta');
		INSERT INTO newsletter_subscriptions (visitor_id, email) VALUES ('v9', 'reader@example.com');
	`)
	require.NoError(t, err)
}

func view(userID *int64, visitorID string, viewable models.Viewable, createdAt time.Time) *models.PageView {
	return &models.PageView{
		UserID:      userID,
		VisitorID:   visitorID,
		SessionID:   "s-" + visitorID,
		Viewable:    viewable,
		IPAddress:   "203.0.113.5",
		UserAgent:   "test-agent",
		Fingerprint: "fp-" + visitorID,
		CreatedAt:   createdAt,
	}
}

func int64Ptr(v int64) *int64 { return &v }

// TestIntegration_Repositories проверяет SQL и Redis репозитории на реальных хранилищах
func TestIntegration_Repositories(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	env.seed(t)

	pageViews := repository.NewPageViewRepository(env.db)
	hits := repository.NewHitRepository(env.db)
	links := repository.NewVisitorLinkRepository(env.db)
	stats := repository.NewStatsRepository(env.db)

	now := time.Now()
	old := now.AddDate(0, -2, 0)
	weekAgo := models.RangeWeek.Since(now)

	// 2 просмотра блога пользователем 7 и 1 анонимный, плюс старый просмотр вне диапазона
	for _, v := range []*models.PageView{
		view(int64Ptr(7), "abc", models.NewBlog(10), now),
		view(int64Ptr(7), "abc", models.NewBlog(10), now),
		view(nil, "v9", models.NewBlog(10), now),
		view(nil, "v9", models.NewPost(42), now),
		view(nil, "v9", models.NewBlog(10), old),
		view(nil, "other", models.NewPost(43), now),
	} {
		require.NoError(t, pageViews.Insert(t.Context(), v))
		require.NotZero(t, v.ID)
	}

	t.Run("unique visitor precedence", func(t *testing.T) {
		var key string
		err := env.db.Pool.QueryRow(t.Context(),
			"SELECT "+visitorkey.SQL("")+" FROM page_views WHERE user_id = 7 LIMIT 1",
		).Scan(&key)
		require.NoError(t, err)
		assert.Equal(t, "user:7", key)
	})

	t.Run("blog views", func(t *testing.T) {
		c := models.NewStatsCriteria()
		c.BlogID = int64Ptr(10)

		rows, err := stats.BlogViews(t.Context(), c, weekAgo)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Travel", rows[0].Name)
		assert.Equal(t, int64(3), rows[0].Views)
		assert.Equal(t, int64(2), rows[0].UniqueViews)
		assert.Equal(t, int64(1), rows[0].PostViews)
		assert.Equal(t, int64(1), rows[0].PostUniqueViews)

		rows, err = stats.BlogViews(t.Context(), c, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(4), rows[0].Views, "all time includes the old view")
	})

	t.Run("blog views scoped to blogger", func(t *testing.T) {
		c := models.NewStatsCriteria()
		c.BloggerID = int64Ptr(99)
		c.Sort = models.SortNameAsc

		rows, err := stats.BlogViews(t.Context(), c, weekAgo)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(11), rows[0].BlogID)
		assert.Zero(t, rows[0].Views)
		assert.Equal(t, int64(1), rows[0].PostViews)
	})

	t.Run("post views", func(t *testing.T) {
		c := models.NewStatsCriteria()
		c.BloggerID = int64Ptr(3)

		rows, err := stats.PostViews(t.Context(), c, weekAgo)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Lisbon", rows[0].Title)
		assert.Equal(t, int64(1), rows[0].Views)

		c = models.NewStatsCriteria()
		limit := 0
		c.Limit = &limit
		rows, err = stats.PostViews(t.Context(), c, weekAgo)
		require.NoError(t, err)
		assert.Len(t, rows, 1, "limit is floored at 1")
	})

	t.Run("visitor views", func(t *testing.T) {
		c := models.NewStatsCriteria()
		c.BlogID = int64Ptr(10)

		rows, err := stats.VisitorViews(t.Context(), c, weekAgo)
		require.NoError(t, err)
		require.Len(t, rows, 2, "visitor with no views of blog 10 is excluded")

		byKey := map[string]models.VisitorStats{}
		for _, r := range rows {
			byKey[r.Key] = r
		}
		assert.Equal(t, "Bob", byKey["abc"].Label)
		assert.Equal(t, int64(2), byKey["abc"].BlogViews)
		assert.Equal(t, "reader@example.com", byKey["v9"].Label)
		assert.Equal(t, int64(1), byKey["v9"].BlogViews)
		assert.Equal(t, int64(1), byKey["v9"].PostViews)
		assert.Equal(t, int64(2), byKey["v9"].TotalViews)
		assert.Equal(t, int64(3), byKey["v9"].LifetimeViews, "lifetime ignores range and scope")

		c = models.NewStatsCriteria()
		c.VisitorType = models.VisitorsGuests
		c.Sort = models.SortLabelAsc
		rows, err = stats.VisitorViews(t.Context(), c, weekAgo)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "other", rows[0].Label)
		assert.Equal(t, "reader@example.com", rows[1].Label)
	})

	t.Run("reattribute anonymous", func(t *testing.T) {
		updated, err := pageViews.ReattributeAnonymous(t.Context(), 5, "v9", "")
		require.NoError(t, err)
		assert.Equal(t, int64(3), updated)

		updated, err = pageViews.ReattributeAnonymous(t.Context(), 5, "v9", "")
		require.NoError(t, err)
		assert.Zero(t, updated, "second run is a no-op")

		updated, err = pageViews.ReattributeAnonymous(t.Context(), 5, "", "")
		require.NoError(t, err)
		assert.Zero(t, updated)

		count, err := pageViews.CountByViewable(t.Context(), models.NewPost(43))
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("visitor links", func(t *testing.T) {
		_, err := links.GetByVisitorID(t.Context(), "v9")
		assert.ErrorIs(t, err, repository.ErrNotFound)

		require.NoError(t, links.Link(t.Context(), "v9", 5))
		require.NoError(t, links.Link(t.Context(), "v9", 6))

		link, err := links.GetByVisitorID(t.Context(), "v9")
		require.NoError(t, err)
		assert.Equal(t, int64(6), link.UserID)
	})

	t.Run("bot and anonymous hits", func(t *testing.T) {
		uaID, err := hits.UserAgentID(t.Context(), "googlebot")
		require.NoError(t, err)
		again, err := hits.UserAgentID(t.Context(), "googlebot")
		require.NoError(t, err)
		assert.Equal(t, uaID, again)

		require.NoError(t, hits.IncrementBotView(t.Context(), uaID, models.NewPost(42), now))
		require.NoError(t, hits.IncrementBotView(t.Context(), uaID, models.NewPost(42), now))
		require.NoError(t, hits.IncrementAnonymousView(t.Context(), uaID, models.NewBlog(10), now))

		c := models.NewStatsCriteria()
		c.BlogID = int64Ptr(10)
		rows, err := stats.BotViews(t.Context(), c)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "googlebot", rows[0].UserAgent)
		assert.Equal(t, models.MorphClassPost, rows[0].ViewableType)
		assert.Equal(t, int64(2), rows[0].Hits)

		rows, err = stats.AnonymousViews(t.Context(), models.NewStatsCriteria())
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(1), rows[0].Hits)
	})

	t.Run("block store", func(t *testing.T) {
		blocks := repository.NewBlockStore(env.redis)
		keys := []string{`block:App\Models\Post:42:fingerprint:fp`, `block:App\Models\Post:42:visitor:v1`}

		ok, err := blocks.Claim(t.Context(), keys, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = blocks.Claim(t.Context(), []string{`block:App\Models\Post:42:visitor:v1`, `block:App\Models\Post:42:user:5`}, time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		exists, err := env.redis.Client.Exists(t.Context(), `block:App\Models\Post:42:user:5`).Result()
		require.NoError(t, err)
		assert.Zero(t, exists, "a rejected claim writes nothing")

		ttl, err := env.redis.Client.TTL(t.Context(), keys[0]).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 50*time.Second)
	})

	t.Run("view counter", func(t *testing.T) {
		counter := repository.NewViewCounter(env.redis)
		post := models.NewPost(42)

		_, err := counter.Get(t.Context(), post)
		assert.ErrorIs(t, err, repository.ErrCacheMiss)

		// Инкремент холодного ключа не создаёт его с единицы
		_, err = counter.Incr(t.Context(), post)
		assert.ErrorIs(t, err, repository.ErrCacheMiss)
		_, err = counter.Get(t.Context(), post)
		assert.ErrorIs(t, err, repository.ErrCacheMiss)

		require.NoError(t, counter.Seed(t.Context(), post, 10))
		require.NoError(t, counter.Seed(t.Context(), post, 99))
		n, err := counter.Incr(t.Context(), post)
		require.NoError(t, err)
		assert.Equal(t, int64(11), n)

		raw, err := env.redis.Client.Get(t.Context(), `page_views:count:App\Models\Post:42`).Int64()
		require.NoError(t, err)
		assert.Equal(t, int64(11), raw)
	})

	t.Run("view queue", func(t *testing.T) {
		queue := repository.NewViewQueue(env.redis)
		ctx := t.Context()

		for _, id := range []int64{1, 2} {
			require.NoError(t, queue.Enqueue(ctx, &models.ViewJob{
				Kind:         models.JobPageView,
				ViewableType: models.MorphClassPost,
				ViewableID:   id,
				QueuedAt:     now,
			}))
		}

		first, err := queue.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(1), first.Job.ViewableID, "FIFO")

		require.NoError(t, queue.Nack(ctx, first))
		second, err := queue.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(2), second.Job.ViewableID)
		require.NoError(t, queue.Ack(ctx, second))

		// Задача, взятая "упавшим" воркером, возвращается через Recover
		inFlight, err := queue.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(1), inFlight.Job.ViewableID)

		n, err := queue.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		length, err := queue.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), length)

		recovered, err := queue.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NoError(t, queue.Ack(ctx, recovered))

		_, err = queue.Dequeue(ctx, 100*time.Millisecond)
		assert.ErrorIs(t, err, repository.ErrQueueEmpty)

		// Битый payload удаляется из processing, а не ждёт Recover
		require.NoError(t, env.redis.Client.LPush(ctx, "queue:page_views", "{not json").Err())
		_, err = queue.Dequeue(ctx, time.Second)
		require.Error(t, err)
		assert.NotErrorIs(t, err, repository.ErrQueueEmpty)

		processing, err := env.redis.Client.LLen(ctx, "queue:page_views:processing").Result()
		require.NoError(t, err)
		assert.Zero(t, processing)
	})

	t.Run("session store", func(t *testing.T) {
		sessions := repository.NewSessionStore(env.redis)

		s, err := sessions.Get(t.Context(), "s1")
		require.NoError(t, err)
		assert.Zero(t, s.VisitorsSyncedFor)

		require.NoError(t, sessions.MarkVisitorsSynced(t.Context(), "s1", 5, time.Hour))
		require.NoError(t, sessions.Touch(t.Context(), "s1", time.Hour))

		s, err = sessions.Get(t.Context(), "s1")
		require.NoError(t, err)
		assert.Equal(t, int64(5), s.VisitorsSyncedFor)
	})
}

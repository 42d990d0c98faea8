package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/redis/go-redis/v9"
)

// ViewCounter is the fast, best-effort total view count per viewable.
type ViewCounter interface {
	// Incr bumps an existing counter and returns ErrCacheMiss when the key is
	// absent, leaving it for the next read to seed from page_views.
	Incr(ctx context.Context, viewable models.Viewable) (int64, error)
	Get(ctx context.Context, viewable models.Viewable) (int64, error)
	// Seed sets the counter only if it does not exist yet.
	Seed(ctx context.Context, viewable models.Viewable, count int64) error
}

// incrExistingScript increments KEYS[1] only if it exists.
var incrExistingScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return redis.call('INCR', KEYS[1])
end
return false
`)

type viewCounter struct {
	redis *RedisDB
}

func NewViewCounter(redis *RedisDB) ViewCounter {
	return &viewCounter{redis: redis}
}

// CounterKey is page_views:count:{viewable_type}:{viewable_id}.
func CounterKey(viewable models.Viewable) string {
	return "page_views:count:" + viewable.MorphClass() + ":" + strconv.FormatInt(viewable.ID, 10)
}

func (c *viewCounter) Incr(ctx context.Context, viewable models.Viewable) (int64, error) {
	n, err := incrExistingScript.Run(ctx, c.redis.Client, []string{CounterKey(viewable)}).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("failed to increment view counter: %w", err)
	}
	return n, nil
}

func (c *viewCounter) Get(ctx context.Context, viewable models.Viewable) (int64, error) {
	n, err := c.redis.Client.Get(ctx, CounterKey(viewable)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("failed to read view counter: %w", err)
	}
	return n, nil
}

func (c *viewCounter) Seed(ctx context.Context, viewable models.Viewable, count int64) error {
	if err := c.redis.Client.SetNX(ctx, CounterKey(viewable), count, 0).Err(); err != nil {
		return fmt.Errorf("failed to seed view counter: %w", err)
	}
	return nil
}

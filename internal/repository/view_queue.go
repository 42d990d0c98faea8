package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	viewQueueKey      = "queue:page_views"
	viewProcessingKey = "queue:page_views:processing"
)

// QueuedJob is a dequeued job together with its raw payload, which is needed
// to acknowledge it.
type QueuedJob struct {
	Job     models.ViewJob
	Payload string
}

// ViewQueue is a reliable FIFO: dequeued jobs stay in a processing list
// until acknowledged, so a crashed worker loses nothing.
type ViewQueue interface {
	Enqueue(ctx context.Context, job *models.ViewJob) error
	// Dequeue blocks up to timeout and returns ErrQueueEmpty if nothing arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (*QueuedJob, error)
	Ack(ctx context.Context, job *QueuedJob) error
	// Nack puts the job back at the end of the queue.
	Nack(ctx context.Context, job *QueuedJob) error
	// Recover requeues jobs left in processing by a previous run.
	Recover(ctx context.Context) (int, error)
	Len(ctx context.Context) (int64, error)
}

type viewQueue struct {
	redis *RedisDB
}

func NewViewQueue(redis *RedisDB) ViewQueue {
	return &viewQueue{redis: redis}
}

func (q *viewQueue) Enqueue(ctx context.Context, job *models.ViewJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal view job: %w", err)
	}

	if err := q.redis.Client.LPush(ctx, viewQueueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue view job: %w", err)
	}

	return nil
}

func (q *viewQueue) Dequeue(ctx context.Context, timeout time.Duration) (*QueuedJob, error) {
	payload, err := q.redis.Client.BLMove(ctx, viewQueueKey, viewProcessingKey, "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrQueueEmpty
		}
		return nil, fmt.Errorf("failed to dequeue view job: %w", err)
	}

	queued := &QueuedJob{Payload: payload}
	if err := json.Unmarshal([]byte(payload), &queued.Job); err != nil {
		// Битый payload обратно в очередь не возвращаем
		if remErr := q.redis.Client.LRem(ctx, viewProcessingKey, 1, payload).Err(); remErr != nil {
			return nil, fmt.Errorf("failed to drop malformed view job: %w", errors.Join(err, remErr))
		}
		return nil, fmt.Errorf("failed to unmarshal view job: %w", err)
	}

	return queued, nil
}

func (q *viewQueue) Ack(ctx context.Context, job *QueuedJob) error {
	if err := q.redis.Client.LRem(ctx, viewProcessingKey, 1, job.Payload).Err(); err != nil {
		return fmt.Errorf("failed to ack view job: %w", err)
	}
	return nil
}

func (q *viewQueue) Nack(ctx context.Context, job *QueuedJob) error {
	_, err := q.redis.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, viewProcessingKey, 1, job.Payload)
		pipe.LPush(ctx, viewQueueKey, job.Payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to nack view job: %w", err)
	}
	return nil
}

func (q *viewQueue) Recover(ctx context.Context) (int, error) {
	recovered := 0
	for {
		err := q.redis.Client.LMove(ctx, viewProcessingKey, viewQueueKey, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return recovered, nil
		}
		if err != nil {
			return recovered, fmt.Errorf("failed to recover view jobs: %w", err)
		}
		recovered++
	}
}

func (q *viewQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.redis.Client.LLen(ctx, viewQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}

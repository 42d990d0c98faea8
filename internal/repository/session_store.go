package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/redis/go-redis/v9"
)

const sessionSyncedField = "visitors_synced_for"

// SessionStore keeps server-side session state in a Redis hash per session.
type SessionStore interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	MarkVisitorsSynced(ctx context.Context, id string, userID int64, ttl time.Duration) error
	Touch(ctx context.Context, id string, ttl time.Duration) error
}

type sessionStore struct {
	redis *RedisDB
}

func NewSessionStore(redis *RedisDB) SessionStore {
	return &sessionStore{redis: redis}
}

func (s *sessionStore) key(id string) string {
	return "session:" + id
}

func (s *sessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	session := &models.Session{ID: id}

	synced, err := s.redis.Client.HGet(ctx, s.key(id), sessionSyncedField).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	session.VisitorsSyncedFor = synced

	return session, nil
}

func (s *sessionStore) MarkVisitorsSynced(ctx context.Context, id string, userID int64, ttl time.Duration) error {
	_, err := s.redis.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(id), sessionSyncedField, userID)
		pipe.Expire(ctx, s.key(id), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (s *sessionStore) Touch(ctx context.Context, id string, ttl time.Duration) error {
	if err := s.redis.Client.Expire(ctx, s.key(id), ttl).Err(); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

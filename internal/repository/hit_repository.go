package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/SergeiKhy/blog-analytics/internal/models"
)

// HitRepository stores per user-agent hit counters (bot_views, anonymous_views)
// and the user_agents dictionary they reference.
type HitRepository interface {
	UserAgentID(ctx context.Context, name string) (int64, error)
	IncrementBotView(ctx context.Context, userAgentID int64, viewable models.Viewable, seenAt time.Time) error
	IncrementAnonymousView(ctx context.Context, userAgentID int64, viewable models.Viewable, seenAt time.Time) error
}

type hitRepository struct {
	db *PostgresDB
}

func NewHitRepository(db *PostgresDB) HitRepository {
	return &hitRepository{db: db}
}

func (r *hitRepository) UserAgentID(ctx context.Context, name string) (int64, error) {
	// DO UPDATE so RETURNING yields the id for existing rows too
	query := `
		INSERT INTO user_agents (name, created_at)
		VALUES ($1, NOW())
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`

	var id int64
	if err := r.db.Pool.QueryRow(ctx, query, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to resolve user agent: %w", err)
	}

	return id, nil
}

func (r *hitRepository) IncrementBotView(ctx context.Context, userAgentID int64, viewable models.Viewable, seenAt time.Time) error {
	return r.increment(ctx, "bot_views", userAgentID, viewable, seenAt)
}

func (r *hitRepository) IncrementAnonymousView(ctx context.Context, userAgentID int64, viewable models.Viewable, seenAt time.Time) error {
	return r.increment(ctx, "anonymous_views", userAgentID, viewable, seenAt)
}

func (r *hitRepository) increment(ctx context.Context, table string, userAgentID int64, viewable models.Viewable, seenAt time.Time) error {
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (user_agent_id, viewable_type, viewable_id, hits, last_seen_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (user_agent_id, viewable_type, viewable_id)
		DO UPDATE SET hits = %[1]s.hits + 1, last_seen_at = GREATEST(%[1]s.last_seen_at, EXCLUDED.last_seen_at)
	`, table)

	if _, err := r.db.Pool.Exec(ctx, query, userAgentID, viewable.MorphClass(), viewable.ID, seenAt); err != nil {
		return fmt.Errorf("failed to increment %s: %w", table, err)
	}

	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/SergeiKhy/blog-analytics/internal/models"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrCacheMiss  = errors.New("cache miss")
	ErrQueueEmpty = errors.New("queue empty")
)

type PageViewRepository interface {
	Insert(ctx context.Context, view *models.PageView) error
	// ReattributeAnonymous assigns userID to anonymous rows matching the
	// visitor id or the fingerprint. Empty signals never match.
	ReattributeAnonymous(ctx context.Context, userID int64, visitorID, fingerprint string) (int64, error)
	CountByViewable(ctx context.Context, viewable models.Viewable) (int64, error)
}

type pageViewRepository struct {
	db *PostgresDB
}

func NewPageViewRepository(db *PostgresDB) PageViewRepository {
	return &pageViewRepository{db: db}
}

func (r *pageViewRepository) Insert(ctx context.Context, view *models.PageView) error {
	query := `
		INSERT INTO page_views (
			user_id, visitor_id, session_id, viewable_type, viewable_id,
			ip_address, user_agent, user_agent_id, fingerprint, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		view.UserID,
		nullString(view.VisitorID),
		nullString(view.SessionID),
		view.Viewable.MorphClass(),
		view.Viewable.ID,
		view.IPAddress,
		view.UserAgent,
		view.UserAgentID,
		nullString(view.Fingerprint),
		view.CreatedAt,
	).Scan(&view.ID)

	if err != nil {
		return fmt.Errorf("failed to insert page view: %w", err)
	}

	return nil
}

func (r *pageViewRepository) ReattributeAnonymous(ctx context.Context, userID int64, visitorID, fingerprint string) (int64, error) {
	if visitorID == "" && fingerprint == "" {
		return 0, nil
	}

	query := `
		UPDATE page_views
		SET user_id = $1
		WHERE user_id IS NULL
			AND ((visitor_id = $2 AND $2 <> '') OR (fingerprint = $3 AND $3 <> ''))
	`

	result, err := r.db.Pool.Exec(ctx, query, userID, visitorID, fingerprint)
	if err != nil {
		return 0, fmt.Errorf("failed to reattribute page views: %w", err)
	}

	return result.RowsAffected(), nil
}

func (r *pageViewRepository) CountByViewable(ctx context.Context, viewable models.Viewable) (int64, error) {
	query := `SELECT COUNT(*) FROM page_views WHERE viewable_type = $1 AND viewable_id = $2`

	var count int64
	if err := r.db.Pool.QueryRow(ctx, query, viewable.MorphClass(), viewable.ID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count page views: %w", err)
	}

	return count, nil
}

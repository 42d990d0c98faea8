package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/jackc/pgx/v5"
)

type VisitorLinkRepository interface {
	GetByVisitorID(ctx context.Context, visitorID string) (*models.VisitorLink, error)
	Link(ctx context.Context, visitorID string, userID int64) error
}

type visitorLinkRepository struct {
	db *PostgresDB
}

func NewVisitorLinkRepository(db *PostgresDB) VisitorLinkRepository {
	return &visitorLinkRepository{db: db}
}

func (r *visitorLinkRepository) GetByVisitorID(ctx context.Context, visitorID string) (*models.VisitorLink, error) {
	query := `
		SELECT id, visitor_id, user_id, created_at, updated_at
		FROM visitor_links
		WHERE visitor_id = $1
	`

	link := &models.VisitorLink{}
	err := r.db.Pool.QueryRow(ctx, query, visitorID).Scan(
		&link.ID,
		&link.VisitorID,
		&link.UserID,
		&link.CreatedAt,
		&link.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get visitor link: %w", err)
	}

	return link, nil
}

func (r *visitorLinkRepository) Link(ctx context.Context, visitorID string, userID int64) error {
	query := `
		INSERT INTO visitor_links (visitor_id, user_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (visitor_id) DO UPDATE
		SET user_id = EXCLUDED.user_id, updated_at = NOW()
	`

	if _, err := r.db.Pool.Exec(ctx, query, visitorID, userID); err != nil {
		return fmt.Errorf("failed to link visitor: %w", err)
	}

	return nil
}

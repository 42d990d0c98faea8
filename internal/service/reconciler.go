package service

import (
	"context"
	"fmt"
	"time"

	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/SergeiKhy/blog-analytics/internal/repository"
	"go.uber.org/zap"
)

// Reconciler переносит анонимные просмотры на пользователя после входа
type Reconciler interface {
	// Reconcile проставляет user_id анонимным просмотрам с тем же visitor_id
	// или fingerprint и связывает visitor_id с пользователем. Идемпотентна
	Reconcile(ctx context.Context, userID int64, req *models.RequestInfo) (int64, error)
	// SyncSession вызывает Reconcile один раз на пару (сессия, пользователь)
	SyncSession(ctx context.Context, session *models.Session, userID int64, req *models.RequestInfo) (bool, error)
}

type reconciler struct {
	pageViews  repository.PageViewRepository
	links      repository.VisitorLinkRepository
	sessions   repository.SessionStore
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewReconciler создаёт сервис сверки идентичности
func NewReconciler(
	pageViews repository.PageViewRepository,
	links repository.VisitorLinkRepository,
	sessions repository.SessionStore,
	sessionTTL time.Duration,
	logger *zap.Logger,
) Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &reconciler{
		pageViews:  pageViews,
		links:      links,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

func (r *reconciler) Reconcile(ctx context.Context, userID int64, req *models.RequestInfo) (int64, error) {
	fingerprint, _ := GenerateFingerprint(req.IPAddress, req.UserAgent, req.AcceptLanguage)

	updated, err := r.pageViews.ReattributeAnonymous(ctx, userID, req.VisitorID, fingerprint)
	if err != nil {
		return 0, fmt.Errorf("failed to reattribute anonymous views: %w", err)
	}

	if req.VisitorID != "" {
		if err := r.links.Link(ctx, req.VisitorID, userID); err != nil {
			return updated, fmt.Errorf("failed to link visitor: %w", err)
		}
	}

	r.logger.Info("Анонимные просмотры привязаны к пользователю",
		zap.Int64("user_id", userID),
		zap.String("visitor_id", req.VisitorID),
		zap.Int64("updated", updated),
	)

	return updated, nil
}

func (r *reconciler) SyncSession(ctx context.Context, session *models.Session, userID int64, req *models.RequestInfo) (bool, error) {
	if session == nil || session.VisitorsSyncedFor == userID {
		return false, nil
	}

	if _, err := r.Reconcile(ctx, userID, req); err != nil {
		return false, err
	}

	// Флаг только оптимизация: повторный Reconcile ничего не меняет
	if err := r.sessions.MarkVisitorsSynced(ctx, session.ID, userID, r.sessionTTL); err != nil {
		return true, fmt.Errorf("failed to mark session synced: %w", err)
	}
	session.VisitorsSyncedFor = userID

	return true, nil
}

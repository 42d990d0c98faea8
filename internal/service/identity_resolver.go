package service

import (
	"context"
	"errors"

	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/SergeiKhy/blog-analytics/internal/repository"
	"go.uber.org/zap"
)

// IdentityResolver определяет эффективную пару (user_id, visitor_id) запроса
type IdentityResolver interface {
	Resolve(ctx context.Context, req *models.RequestInfo) models.Identity
}

type identityResolver struct {
	links  repository.VisitorLinkRepository
	logger *zap.Logger
}

// NewIdentityResolver создаёт резолвер. Только чтение, VisitorLink не пишет
func NewIdentityResolver(links repository.VisitorLinkRepository, logger *zap.Logger) IdentityResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &identityResolver{links: links, logger: logger}
}

func (r *identityResolver) Resolve(ctx context.Context, req *models.RequestInfo) models.Identity {
	identity := models.Identity{VisitorID: req.VisitorID}

	// Авторизованный пользователь всегда главнее связки visitor -> user
	if req.UserID != nil {
		identity.UserID = req.UserID
		return identity
	}

	if req.VisitorID == "" {
		return identity
	}

	link, err := r.links.GetByVisitorID(ctx, req.VisitorID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			r.logger.Warn("Не удалось получить связку посетителя",
				zap.String("visitor_id", req.VisitorID),
				zap.Error(err),
			)
		}
		return identity
	}

	userID := link.UserID
	identity.UserID = &userID

	return identity
}

package service

import (
	"context"
	"errors"

	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/SergeiKhy/blog-analytics/internal/repository"
	"go.uber.org/zap"
)

// ViewCounterService отдаёт быстрый (оценочный) счётчик просмотров
type ViewCounterService interface {
	Count(ctx context.Context, viewable models.Viewable) (int64, error)
}

type viewCounterService struct {
	counter   repository.ViewCounter
	pageViews repository.PageViewRepository
	logger    *zap.Logger
}

// NewViewCounterService создаёт сервис счётчика
func NewViewCounterService(counter repository.ViewCounter, pageViews repository.PageViewRepository, logger *zap.Logger) ViewCounterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &viewCounterService{counter: counter, pageViews: pageViews, logger: logger}
}

// Count читает счётчик из Redis, при промахе считает по page_views и заполняет кэш
func (s *viewCounterService) Count(ctx context.Context, viewable models.Viewable) (int64, error) {
	// Пробуем получить из кэша
	count, err := s.counter.Get(ctx, viewable)
	if err == nil {
		return count, nil
	}

	miss := errors.Is(err, repository.ErrCacheMiss)
	if !miss {
		s.logger.Warn("Ошибка чтения счётчика, считаем по БД",
			zap.String("viewable", viewable.String()),
			zap.Error(err),
		)
	}

	// Cache miss - идём в БД
	count, err = s.pageViews.CountByViewable(ctx, viewable)
	if err != nil {
		return 0, err
	}

	if miss {
		// SETNX: не перетираем инкременты, пришедшие параллельно
		if err := s.counter.Seed(ctx, viewable, count); err != nil {
			s.logger.Warn("Не удалось заполнить счётчик",
				zap.String("viewable", viewable.String()),
				zap.Error(err),
			)
		}
	}

	return count, nil
}

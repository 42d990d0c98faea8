package service

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/SergeiKhy/blog-analytics/internal/repository"
	"github.com/microcosm-cc/bluemonday"
)

// ErrInvalidCriteria ошибка валидации параметров отчёта (HTTP 400)
var ErrInvalidCriteria = models.ErrInvalidCriteria

// Допустимые сортировки по типу отчёта
var (
	entitySorts  = []models.StatsSort{models.SortViewsDesc, models.SortViewsAsc, models.SortNameAsc, models.SortNameDesc}
	visitorSorts = []models.StatsSort{models.SortViewsDesc, models.SortViewsAsc, models.SortLabelAsc, models.SortLabelDesc}
	hitSorts     = []models.StatsSort{models.SortViewsDesc}
)

// StatsService строит отчёты по просмотрам
type StatsService interface {
	BlogViews(ctx context.Context, c models.StatsCriteria) ([]models.BlogStats, error)
	PostViews(ctx context.Context, c models.StatsCriteria) ([]models.PostStats, error)
	VisitorViews(ctx context.Context, c models.StatsCriteria) ([]models.VisitorStats, error)
	BotViews(ctx context.Context, c models.StatsCriteria) ([]models.HitStats, error)
	AnonymousViews(ctx context.Context, c models.StatsCriteria) ([]models.HitStats, error)
}

type statsService struct {
	repo      repository.StatsRepository
	markup    *bluemonday.Policy
	now       func() time.Time
}

// NewStatsService создаёт сервис отчётов
func NewStatsService(repo repository.StatsRepository) StatsService {
	return &statsService{
		repo:      repo,
		markup:    bluemonday.StrictPolicy(),
		now:       time.Now,
	}
}

func (s *statsService) BlogViews(ctx context.Context, c models.StatsCriteria) ([]models.BlogStats, error) {
	if err := validate(c, entitySorts); err != nil {
		return nil, err
	}
	return s.repo.BlogViews(ctx, c, c.Range.Since(s.now()))
}

func (s *statsService) PostViews(ctx context.Context, c models.StatsCriteria) ([]models.PostStats, error) {
	if err := validate(c, entitySorts); err != nil {
		return nil, err
	}
	return s.repo.PostViews(ctx, c, c.Range.Since(s.now()))
}

func (s *statsService) VisitorViews(ctx context.Context, c models.StatsCriteria) ([]models.VisitorStats, error) {
	if err := validate(c, visitorSorts); err != nil {
		return nil, err
	}

	stats, err := s.repo.VisitorViews(ctx, c, c.Range.Since(s.now()))
	if err != nil {
		return nil, err
	}

	// Метка отдаётся как есть, разметку только помечаем
	for i := range stats {
		stats[i].LabelMarkup = hasMarkup(s.markup, stats[i].Label)
	}

	return stats, nil
}

// BotViews счётчики за всё время: диапазон не применяется
func (s *statsService) BotViews(ctx context.Context, c models.StatsCriteria) ([]models.HitStats, error) {
	if err := validate(c, hitSorts); err != nil {
		return nil, err
	}
	return s.repo.BotViews(ctx, c)
}

func (s *statsService) AnonymousViews(ctx context.Context, c models.StatsCriteria) ([]models.HitStats, error) {
	if err := validate(c, hitSorts); err != nil {
		return nil, err
	}
	return s.repo.AnonymousViews(ctx, c)
}

// hasMarkup сообщает, вырезала бы strict политика что-то из строки
func hasMarkup(policy *bluemonday.Policy, label string) bool {
	return html.UnescapeString(policy.Sanitize(label)) != label
}

func validate(c models.StatsCriteria, sorts []models.StatsSort) error {
	if err := c.Validate(); err != nil {
		return err
	}
	for _, sort := range sorts {
		if c.Sort == sort {
			return nil
		}
	}
	return fmt.Errorf("%w: sort %q is not supported by this report", ErrInvalidCriteria, c.Sort)
}

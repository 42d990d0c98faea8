package service

import (
	"context"
	"strconv"
	"time"

	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/SergeiKhy/blog-analytics/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultBlockTTL = time.Hour

// TrackResult итог обработки одного просмотра
type TrackResult int

const (
	TrackQueued    TrackResult = iota // просмотр принят и поставлен в очередь
	TrackDuplicate                    // повтор в окне блокировки
	TrackBot                          // бот, ушёл в счётчик bot_views
	TrackDropped                      // не удалось поставить в очередь
)

func (r TrackResult) String() string {
	switch r {
	case TrackQueued:
		return "queued"
	case TrackDuplicate:
		return "duplicate"
	case TrackBot:
		return "bot"
	case TrackDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// TrackerConfig настройки шлюза дедупликации
type TrackerConfig struct {
	BlockTTL time.Duration
}

// ViewTracker решает, засчитывать ли просмотр, и ставит его в очередь
type ViewTracker interface {
	Track(ctx context.Context, viewable models.Viewable, req *models.RequestInfo) TrackResult
}

type viewTracker struct {
	classifier *BotClassifier
	blocks     repository.BlockStore
	queue      repository.ViewQueue
	blockTTL   time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewViewTracker создаёт шлюз дедупликации
func NewViewTracker(
	classifier *BotClassifier,
	blocks repository.BlockStore,
	queue repository.ViewQueue,
	cfg TrackerConfig,
	logger *zap.Logger,
) ViewTracker {
	if cfg.BlockTTL <= 0 {
		cfg.BlockTTL = defaultBlockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &viewTracker{
		classifier: classifier,
		blocks:     blocks,
		queue:      queue,
		blockTTL:   cfg.BlockTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// BlockKeys строит ключи блокировки по всем доступным сигналам:
// block:{viewable_type}:{viewable_id}:{fingerprint|user|visitor}:{value}
func BlockKeys(viewable models.Viewable, userID *int64, visitorID, fingerprint string) []string {
	base := "block:" + viewable.MorphClass() + ":" + strconv.FormatInt(viewable.ID, 10)

	keys := make([]string, 0, 3)
	if fingerprint != "" {
		keys = append(keys, base+":fingerprint:"+fingerprint)
	}
	if userID != nil {
		keys = append(keys, base+":user:"+strconv.FormatInt(*userID, 10))
	}
	if visitorID != "" {
		keys = append(keys, base+":visitor:"+visitorID)
	}

	return keys
}

// Track никогда не возвращает ошибку: учёт просмотров не должен ломать ответ
func (t *viewTracker) Track(ctx context.Context, viewable models.Viewable, req *models.RequestInfo) TrackResult {
	if t.classifier.IsBot(req.UserAgent) {
		// Боты идут мимо дедупликации: ключи блокировки не пишем
		job := &models.ViewJob{
			Kind:         models.JobBotView,
			ViewableType: viewable.MorphClass(),
			ViewableID:   viewable.ID,
			IPAddress:    req.IPAddress,
			UserAgent:    req.UserAgent,
			QueuedAt:     t.now(),
		}
		if err := t.queue.Enqueue(ctx, job); err != nil {
			t.logger.Error("Не удалось поставить просмотр бота в очередь",
				zap.String("viewable", viewable.String()),
				zap.Error(err),
			)
			return TrackDropped
		}
		return TrackBot
	}

	visitorID := req.VisitorID
	if visitorID == "" {
		// Cookie выставляет middleware, здесь только значение для текущего запроса
		visitorID = uuid.NewString()
	}

	fingerprint, _ := GenerateFingerprint(req.IPAddress, req.UserAgent, req.AcceptLanguage)
	keys := BlockKeys(viewable, req.UserID, visitorID, fingerprint)

	if len(keys) > 0 {
		claimed, err := t.blocks.Claim(ctx, keys, t.blockTTL)
		switch {
		case err != nil:
			// Кэш недоступен: считаем просмотр уникальным
			t.logger.Warn("Проверка дубликата не удалась, просмотр засчитан",
				zap.String("viewable", viewable.String()),
				zap.Error(err),
			)
		case !claimed:
			return TrackDuplicate
		}
	}

	job := &models.ViewJob{
		Kind:         models.JobPageView,
		UserID:       req.UserID,
		VisitorID:    visitorID,
		SessionID:    req.SessionID,
		ViewableType: viewable.MorphClass(),
		ViewableID:   viewable.ID,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		Fingerprint:  fingerprint,
		QueuedAt:     t.now(),
	}

	if err := t.queue.Enqueue(ctx, job); err != nil {
		t.logger.Error("Не удалось поставить просмотр в очередь",
			zap.String("viewable", viewable.String()),
			zap.Error(err),
		)
		return TrackDropped
	}

	return TrackQueued
}

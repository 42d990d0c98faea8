package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/SergeiKhy/blog-analytics/internal/repository"
	"go.uber.org/zap"
)

// Константы worker pool
const (
	defaultWorkerCount = 3                      // Количество воркеров
	defaultMaxRetries  = 3                      // Максимальное количество попыток записи
	defaultPollTimeout = 2 * time.Second        // Сколько ждать задачу в BLMOVE
	jobTimeout         = 5 * time.Second        // Таймаут обработки одной задачи
	maxUserAgentLength = 512                    // Длина метки user_agents.name
	unknownUserAgent   = "unknown"              // Метка для пустого User-Agent
	retryBackoffStep   = 100 * time.Millisecond // Линейный шаг задержки между попытками
)

// errMalformedJob задача, которую бессмысленно повторять
var errMalformedJob = errors.New("malformed view job")

// ProcessorConfig настройки worker pool
type ProcessorConfig struct {
	Workers     int
	MaxRetries  int
	PollTimeout time.Duration
}

// ViewProcessor асинхронно сохраняет просмотры из очереди
type ViewProcessor interface {
	Start()
	Stop()
	Stats(ctx context.Context) QueueStats
}

// QueueStats статистика очереди для мониторинга
type QueueStats struct {
	Pending     int64  `json:"pending"`      // Задач в очереди
	Processed   uint64 `json:"processed"`    // Успешно обработано
	Failed      uint64 `json:"failed"`       // Возвращено в очередь после всех попыток
	WorkerCount int    `json:"worker_count"` // Количество воркеров
}

// viewProcessor реализация процессора просмотров с использованием Worker Pool
type viewProcessor struct {
	queue       repository.ViewQueue
	pageViews   repository.PageViewRepository
	hits        repository.HitRepository
	counter     repository.ViewCounter
	logger      *zap.Logger
	workerCount int
	maxRetries  int
	pollTimeout time.Duration
	processed   atomic.Uint64
	failed      atomic.Uint64
	wg          sync.WaitGroup // WaitGroup для ожидания завершения воркеров
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewViewProcessor создаёт новый экземпляр процессора просмотров
func NewViewProcessor(
	queue repository.ViewQueue,
	pageViews repository.PageViewRepository,
	hits repository.HitRepository,
	counter repository.ViewCounter,
	cfg ProcessorConfig,
	logger *zap.Logger,
) ViewProcessor {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &viewProcessor{
		queue:       queue,
		pageViews:   pageViews,
		hits:        hits,
		counter:     counter,
		logger:      logger,
		workerCount: cfg.Workers,
		maxRetries:  cfg.MaxRetries,
		pollTimeout: cfg.PollTimeout,
	}
}

// Start возвращает в очередь задачи, зависшие с прошлого запуска, и запускает worker pool
func (p *viewProcessor) Start() {
	p.ctx, p.cancel = context.WithCancel(context.Background())

	recoverCtx, cancel := context.WithTimeout(p.ctx, jobTimeout)
	if n, err := p.queue.Recover(recoverCtx); err != nil {
		p.logger.Error("Не удалось восстановить незавершённые задачи", zap.Error(err))
	} else if n > 0 {
		p.logger.Info("Незавершённые задачи возвращены в очередь", zap.Int("count", n))
	}
	cancel()

	p.logger.Info("Запуск воркеров процессора просмотров", zap.Int("count", p.workerCount))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop корректно останавливает worker pool, дожидаясь текущих задач
func (p *viewProcessor) Stop() {
	p.logger.Info("Остановка процессора просмотров...")
	p.cancel()
	p.wg.Wait()
	p.logger.Info("Процессор просмотров остановлен")
}

// worker забирает задачи из очереди до отмены контекста
func (p *viewProcessor) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("Воркер просмотров запущен", zap.Int("id", id))

	for {
		if p.ctx.Err() != nil {
			p.logger.Debug("Воркер просмотров остановлен", zap.Int("id", id))
			return
		}

		job, err := p.queue.Dequeue(p.ctx, p.pollTimeout)
		if err != nil {
			if errors.Is(err, repository.ErrQueueEmpty) || p.ctx.Err() != nil {
				continue
			}
			p.logger.Warn("Ошибка чтения очереди просмотров", zap.Error(err))
			p.sleep(p.pollTimeout)
			continue
		}

		p.handle(job)
	}
}

// handle обрабатывает задачу и подтверждает её либо возвращает в очередь
func (p *viewProcessor) handle(job *repository.QueuedJob) {
	// Начатая задача доделывается даже при остановке
	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), jobTimeout)
	defer cancel()

	err := p.process(ctx, &job.Job)
	if err == nil || errors.Is(err, errMalformedJob) {
		if err != nil {
			p.logger.Error("Некорректная задача просмотра отброшена",
				zap.String("viewable_type", job.Job.ViewableType),
				zap.Error(err),
			)
		} else {
			p.processed.Add(1)
		}
		if ackErr := p.queue.Ack(ctx, job); ackErr != nil {
			p.logger.Warn("Не удалось подтвердить задачу", zap.Error(ackErr))
		}
		return
	}

	p.failed.Add(1)
	p.logger.Error("Не удалось записать просмотр после всех попыток, задача возвращена в очередь",
		zap.String("kind", string(job.Job.Kind)),
		zap.String("viewable_type", job.Job.ViewableType),
		zap.Int64("viewable_id", job.Job.ViewableID),
		zap.Error(err),
	)
	if nackErr := p.queue.Nack(ctx, job); nackErr != nil {
		p.logger.Error("Не удалось вернуть задачу в очередь", zap.Error(nackErr))
	}
}

// process выполняет задачу: обязательная запись с retry, затем best-effort счётчики
func (p *viewProcessor) process(ctx context.Context, job *models.ViewJob) error {
	viewable, err := job.Viewable()
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformedJob, err)
	}

	switch job.Kind {
	case models.JobBotView:
		return p.retry(ctx, job, func() error {
			uaID, err := p.hits.UserAgentID(ctx, userAgentLabel(job.UserAgent))
			if err != nil {
				return err
			}
			return p.hits.IncrementBotView(ctx, uaID, viewable, job.QueuedAt)
		})

	case models.JobPageView:
		view := &models.PageView{
			UserID:      job.UserID,
			VisitorID:   job.VisitorID,
			SessionID:   job.SessionID,
			Viewable:    viewable,
			IPAddress:   job.IPAddress,
			UserAgent:   job.UserAgent,
			Fingerprint: job.Fingerprint,
			CreatedAt:   job.QueuedAt,
		}
		if view.CreatedAt.IsZero() {
			view.CreatedAt = time.Now()
		}

		err := p.retry(ctx, job, func() error {
			if view.UserAgentID == nil {
				uaID, err := p.hits.UserAgentID(ctx, userAgentLabel(job.UserAgent))
				if err != nil {
					return err
				}
				view.UserAgentID = &uaID
			}
			return p.pageViews.Insert(ctx, view)
		})
		if err != nil {
			return err
		}

		// Счётчик не транзакционен со вставкой: расхождение допустимо.
		// Холодный ключ не создаём, его заполнит Count из page_views
		if _, err := p.counter.Incr(ctx, viewable); err != nil && !errors.Is(err, repository.ErrCacheMiss) {
			p.logger.Warn("Не удалось увеличить счётчик просмотров",
				zap.String("viewable", viewable.String()),
				zap.Error(err),
			)
		}

		if view.UserID == nil {
			if err := p.hits.IncrementAnonymousView(ctx, *view.UserAgentID, viewable, view.CreatedAt); err != nil {
				p.logger.Warn("Не удалось обновить анонимные просмотры",
					zap.String("viewable", viewable.String()),
					zap.Error(err),
				)
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: kind %q", errMalformedJob, job.Kind)
	}
}

// retry повторяет fn с линейной задержкой
func (p *viewProcessor) retry(ctx context.Context, job *models.ViewJob, fn func() error) error {
	var err error
	for i := 0; i < p.maxRetries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		// Логгируем попытку retry
		if i < p.maxRetries-1 {
			p.logger.Debug("Повторная попытка записи просмотра",
				zap.String("kind", string(job.Kind)),
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * retryBackoffStep):
			}
		}
	}
	return err
}

func (p *viewProcessor) sleep(d time.Duration) {
	select {
	case <-p.ctx.Done():
	case <-time.After(d):
	}
}

// Stats возвращает статистику очереди для мониторинга
func (p *viewProcessor) Stats(ctx context.Context) QueueStats {
	pending, err := p.queue.Len(ctx)
	if err != nil {
		p.logger.Warn("Не удалось получить длину очереди", zap.Error(err))
	}
	return QueueStats{
		Pending:     pending,
		Processed:   p.processed.Load(),
		Failed:      p.failed.Load(),
		WorkerCount: p.workerCount,
	}
}

// userAgentLabel нормализует User-Agent для справочника user_agents
func userAgentLabel(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return unknownUserAgent
	}
	if len(ua) > maxUserAgentLength {
		ua = strings.ToValidUTF8(ua[:maxUserAgentLength], "")
	}
	return ua
}

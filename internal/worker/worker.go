package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vgarzom/miso4208-project-cypress-executor/internal/telemetry"
)

// Default configuration values.
const (
	defaultIdleInterval      = 10 * time.Second
	defaultConnectRetryDelay = 5 * time.Second
)

// Connector устанавливает соединение с хранилищем.
type Connector interface {
	Connect(ctx context.Context) error
}

// Store — хранилище job'ов, к которому воркер подключается при старте.
type Store interface {
	Connector
	JobRepository
}

// Worker — цикл опроса очереди.
//
// Сначала подключается к хранилищу (бесконечный retry с фиксированной
// задержкой), затем по одному получает сообщения и передаёт их Executor.
// Пустой опрос — пауза IdleInterval. Одновременно обрабатывается
// не больше одного job.
type Worker struct {
	store     Store
	queue     Queue
	executor  *Executor
	publisher ArtifactPublisher

	idleInterval      time.Duration
	connectRetryDelay time.Duration

	logger *slog.Logger
}

// Config — конфигурация Worker.
type Config struct {
	Store     Store
	Queue     Queue
	Cache     SpecCache
	Runner    Runner
	Publisher ArtifactPublisher

	IdleInterval      time.Duration // пауза после пустого опроса (default: 10s)
	ConnectRetryDelay time.Duration // пауза между попытками подключения (default: 5s)

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	idle := cfg.IdleInterval
	if idle <= 0 {
		idle = defaultIdleInterval
	}

	retry := cfg.ConnectRetryDelay
	if retry <= 0 {
		retry = defaultConnectRetryDelay
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		store: cfg.Store,
		queue: cfg.Queue,
		executor: NewExecutor(ExecutorConfig{
			Queue:     cfg.Queue,
			Repo:      cfg.Store,
			Cache:     cfg.Cache,
			Runner:    cfg.Runner,
			Publisher: cfg.Publisher,
			Logger:    logger,
		}),
		publisher:         cfg.Publisher,
		idleInterval:      idle,
		connectRetryDelay: retry,
		logger:            logger,
	}
}

// Run подключается к хранилищу и опрашивает очередь до отмены ctx.
//
// Начатый job доводится до конца даже после отмены ctx. Перед возвратом
// Run дожидается фоновых загрузок скриншотов.
func (w *Worker) Run(ctx context.Context) error {
	defer w.publisher.Wait()

	if err := w.connect(ctx); err != nil {
		return err
	}

	w.logger.Info("worker started", "idle_interval", w.idleInterval)

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return nil
		}

		handled, err := w.PollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Warn("queue receive failed", "error", err)
		}
		if handled {
			continue
		}

		sleep(ctx, w.idleInterval)
	}
}

// PollOnce получает не больше одного сообщения и обрабатывает его.
// Возвращает true, если сообщение было.
func (w *Worker) PollOnce(ctx context.Context) (bool, error) {
	msg, err := w.queue.ReceiveOne(ctx)
	if err != nil {
		return false, err
	}
	if msg == nil {
		w.logger.Debug("no messages")
		return false, nil
	}

	telemetry.MessagesReceived.Inc()

	// Начатый job не отменяется остановкой воркера.
	res := w.executor.Handle(context.WithoutCancel(ctx), msg)
	w.logger.Info("message handled",
		"message_id", msg.ID,
		"job_id", res.JobID,
		"state", res.State,
		"outcome", res.Outcome,
		"deleted", res.Deleted,
	)
	return true, nil
}

// connect подключается к хранилищу, повторяя попытки с фиксированной задержкой.
// Возвращает ошибку только при отмене ctx.
func (w *Worker) connect(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := w.store.Connect(ctx)
		telemetry.StoreConnectAttempts.WithLabelValues(telemetry.Result(err)).Inc()
		if err == nil {
			return nil
		}

		w.logger.Error("store connection failed, retrying",
			"attempt", attempt,
			"retry_in", w.connectRetryDelay,
			"error", fmt.Errorf("%w: %w", ErrConnection, err),
		)

		if !sleep(ctx, w.connectRetryDelay) {
			return fmt.Errorf("%w: %w", ErrConnection, errors.Join(err, ctx.Err()))
		}
	}
}

// sleep ждёт d или отмены ctx. Возвращает false при отмене.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

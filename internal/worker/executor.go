package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/vgarzom/miso4208-project-cypress-executor/internal/artifacts"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/domain"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/engine"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/mq"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/repo"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/telemetry"
)

// Queue — очередь сообщений с lease.
type Queue interface {
	ReceiveOne(ctx context.Context) (*mq.Message, error)
	Delete(ctx context.Context, msg *mq.Message) error
}

// JobRepository читает и обновляет job'ы.
type JobRepository interface {
	FetchFull(ctx context.Context, id string) (*domain.Job, error)
	SetStatus(ctx context.Context, id string, status domain.JobStatus) error
	SaveResult(ctx context.Context, job *domain.Job) error
}

// SpecCache гарантирует наличие spec-файла на диске.
type SpecCache interface {
	Ensure(ctx context.Context, fileName string) (string, error)
}

// Runner запускает движок тестов.
type Runner interface {
	Run(ctx context.Context, specPath string, opts engine.Options) (*engine.Report, error)
}

// ArtifactPublisher загружает скриншоты в фоне.
type ArtifactPublisher interface {
	Publish(ctx context.Context, localPath, name string)
	URL(name string) string
	Wait()
}

// State — состояние обработки сообщения.
type State string

// Состояния обработки.
const (
	StateReceived   State = "received"
	StateResolved   State = "resolved"
	StatePreparing  State = "preparing"
	StateRunning    State = "running"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
	StateAborted    State = "aborted"
)

// Outcome — исход обработки сообщения (метка метрики jobs_processed_total).
type Outcome string

// Исходы обработки.
const (
	OutcomeSuccess         Outcome = "success"
	OutcomeFailed          Outcome = "failed"
	OutcomeEngineError     Outcome = "engine_error"
	OutcomeMalformed       Outcome = "malformed"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeQueryError      Outcome = "query_error"
	OutcomeAlreadyFinished Outcome = "already_finished"
	OutcomeSpecUnavailable Outcome = "spec_unavailable"
	OutcomeInvalidStatus   Outcome = "invalid_status"
	OutcomePanic           Outcome = "panic"
)

// Result — итог обработки одного сообщения.
type Result struct {
	State   State
	Outcome Outcome
	JobID   string

	// Deleted — сообщение удалено из очереди.
	Deleted bool
}

// Executor обрабатывает одно сообщение от получения до удаления.
//
// Любая ошибка внутри обработки ловится на границе шага и логируется;
// сообщение удаляется на каждом пути. Если удаление не удалось,
// сообщение вернётся после истечения lease.
type Executor struct {
	queue     Queue
	repo      JobRepository
	cache     SpecCache
	runner    Runner
	publisher ArtifactPublisher
	logger    *slog.Logger
}

// ExecutorConfig — зависимости Executor.
type ExecutorConfig struct {
	Queue     Queue
	Repo      JobRepository
	Cache     SpecCache
	Runner    Runner
	Publisher ArtifactPublisher
	Logger    *slog.Logger
}

// NewExecutor создаёт Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		queue:     cfg.Queue,
		repo:      cfg.Repo,
		cache:     cfg.Cache,
		runner:    cfg.Runner,
		publisher: cfg.Publisher,
		logger:    logger,
	}
}

// Handle проводит сообщение через все состояния и удаляет его.
func (e *Executor) Handle(ctx context.Context, msg *mq.Message) (res Result) {
	logger := telemetry.WithMessageID(e.logger, msg.ID, uuid.NewString())
	ctx = telemetry.WithLogger(ctx, logger)
	logger.Debug("message received", "state", StateReceived, "redelivered", msg.Redelivered)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrHandlerPanic, r)
			telemetry.FromContext(ctx).Error("message handling aborted",
				"state", StateAborted,
				"error", err,
				"stack", string(debug.Stack()),
			)
			res.State = StateAborted
			res.Outcome = OutcomePanic
		}

		res.Deleted = e.deleteMessage(ctx, msg)
		telemetry.JobsProcessed.WithLabelValues(string(res.Outcome)).Inc()
	}()

	return e.process(ctx, msg)
}

// process выполняет шаги Received → Done / Aborted без удаления сообщения.
func (e *Executor) process(ctx context.Context, msg *mq.Message) Result {
	logger := telemetry.FromContext(ctx)

	req, err := mq.ParseTestRequest(msg.Body)
	if err != nil {
		logger.Warn("discarding malformed message", "state", StateAborted, "error", err)
		return Result{State: StateAborted, Outcome: OutcomeMalformed}
	}

	logger = telemetry.WithJobID(logger, req.TestID)
	ctx = telemetry.WithLogger(ctx, logger)
	aborted := func(outcome Outcome) Result {
		return Result{State: StateAborted, Outcome: outcome, JobID: req.TestID}
	}

	// Received → Resolved
	job, err := e.repo.FetchFull(ctx, req.TestID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		logger.Warn("job not found", "state", StateAborted, "error", err)
		return aborted(OutcomeNotFound)
	case err != nil:
		logger.Error("job lookup failed", "state", StateAborted, "error", err)
		return aborted(OutcomeQueryError)
	}
	logger.Debug("job resolved", "state", StateResolved, "status", job.Status, "file_name", job.Case.FileName)

	if job.IsFinished() {
		logger.Info("job already finished, skipping", "state", StateAborted, "status", job.Status)
		return aborted(OutcomeAlreadyFinished)
	}

	// Resolved → Preparing
	if !job.MarkInProgress() {
		logger.Error("job status does not allow a run", "state", StateAborted, "status", job.Status)
		return aborted(OutcomeInvalidStatus)
	}
	if err := e.repo.SetStatus(ctx, job.ID, domain.JobStatusInProgress); err != nil {
		logger.Warn("failed to mark job in-progress", "state", StatePreparing, "error", err)
	}

	specPath, err := e.cache.Ensure(ctx, job.Case.FileName)
	if err != nil {
		logger.Error("spec file unavailable", "state", StateAborted, "file_name", job.Case.FileName, "error", err)
		return aborted(OutcomeSpecUnavailable)
	}

	// Preparing → Running
	logger.Info("job started", "state", StateRunning, "spec", job.Case.FileName)
	report, err := e.runner.Run(ctx, specPath, engine.Options{Video: false})
	if err != nil {
		errText := err.Error()
		report = &engine.Report{Error: &errText}
	}

	if report.Failed() {
		if !job.Fail(report.ErrorMessage()) {
			logger.Error("job status does not allow a result", "state", StateAborted, "status", job.Status)
			return aborted(OutcomeInvalidStatus)
		}
		logger.Warn("engine reported an error", "state", StateFinalizing, "error", report.ErrorMessage())
		e.saveResult(ctx, job)
		return Result{State: StateDone, Outcome: OutcomeEngineError, JobID: job.ID}
	}

	// Running → Finalizing
	if !job.Complete(report.ReporterStats, nil) {
		logger.Error("job status does not allow a result", "state", StateAborted, "status", job.Status)
		return aborted(OutcomeInvalidStatus)
	}
	job.Screenshots = e.publishScreenshots(ctx, report.Screenshots)
	logger.Info("job finished",
		"state", StateFinalizing,
		"status", job.Status,
		"passes", report.ReporterStats.Passes,
		"tests", report.ReporterStats.Tests,
		"screenshots", len(job.Screenshots),
	)

	// Finalizing → Done
	e.saveResult(ctx, job)

	outcome := OutcomeFailed
	if job.Status == domain.JobStatusSuccess {
		outcome = OutcomeSuccess
	}
	return Result{State: StateDone, Outcome: outcome, JobID: job.ID}
}

// publishScreenshots запускает загрузку скриншотов под именами {id}_{i}.png
// и возвращает записи с публичными URL. Загрузки не ожидаются.
func (e *Executor) publishScreenshots(ctx context.Context, refs []engine.ScreenshotRef) []domain.Screenshot {
	screenshots := make([]domain.Screenshot, 0, len(refs))
	if len(refs) == 0 {
		return screenshots
	}

	batchID := artifacts.NewBatchID()
	for i, ref := range refs {
		name := artifacts.Name(batchID, i)
		e.publisher.Publish(ctx, ref.Path, name)
		screenshots = append(screenshots, domain.Screenshot{
			Name:    name,
			URL:     e.publisher.URL(name),
			Path:    ref.Path,
			TakenAt: ref.TakenAt,
			Height:  ref.Height,
			Width:   ref.Width,
		})
	}
	return screenshots
}

func (e *Executor) saveResult(ctx context.Context, job *domain.Job) {
	if err := e.repo.SaveResult(ctx, job); err != nil {
		telemetry.FromContext(ctx).Error("failed to save job result",
			"state", StateFinalizing,
			"error", fmt.Errorf("%w: %w", ErrPersistence, err),
		)
	}
}

func (e *Executor) deleteMessage(ctx context.Context, msg *mq.Message) bool {
	err := e.queue.Delete(ctx, msg)
	telemetry.MessagesDeleted.WithLabelValues(telemetry.Result(err)).Inc()
	if err != nil {
		telemetry.FromContext(ctx).Warn("failed to delete message, it will be redelivered",
			"error", fmt.Errorf("%w: %w", ErrQueueDelete, err),
		)
		return false
	}
	telemetry.FromContext(ctx).Debug("message deleted")
	return true
}

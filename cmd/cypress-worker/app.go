package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/vgarzom/miso4208-project-cypress-executor/internal/api"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/artifacts"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/cache"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/cli"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/config"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/engine"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/mq"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/repo"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/storage"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/telemetry"
	"github.com/vgarzom/miso4208-project-cypress-executor/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// queue — очередь, которую воркер опрашивает и в которую пишет enqueue.
type queue interface {
	worker.Queue
	cli.Sender
}

func runWorker(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting cypress-worker", "version", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := newStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	q, closeQueue, err := newQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeQueue()

	awsCfg, err := cfg.AWS(ctx)
	if err != nil {
		return err
	}
	objects := storage.NewS3Store(storage.Config{
		Client: storage.NewS3Client(awsCfg),
		Bucket: cfg.Bucket,
		Region: cfg.AWSRegion,
		Logger: logger,
	})

	runner, err := engine.NewCommandRunner(engine.RunnerConfig{
		Command: cfg.EngineCommand,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	w := worker.New(worker.Config{
		Store:             store,
		Queue:             q,
		Cache:             cache.New(cfg.SpecRoot, objects, logger),
		Runner:            runner,
		Publisher:         artifacts.NewPublisher(objects, logger),
		IdleInterval:      cfg.IdleInterval,
		ConnectRetryDelay: cfg.ConnectRetryDelay,
		Logger:            logger,
	})

	// HTTP: /healthz, /readyz, /metrics, /api/v1/jobs/{id}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewHandler(store, logger).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	runErr := w.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", "error", err)
	}

	logger.Info("cypress-worker stopped")
	return runErr
}

// newStore выбирает хранилище по схеме DB_URL.
func newStore(cfg config.Config, logger *slog.Logger) (repo.Store, error) {
	backend, err := cfg.StoreBackend()
	if err != nil {
		return nil, err
	}

	switch backend {
	case config.BackendPostgres:
		return repo.NewPgStore(cfg.DBURL, logger), nil
	default:
		return repo.NewMongoStore(repo.MongoConfig{
			URI:      cfg.DBURL,
			Database: cfg.DBName,
			Logger:   logger,
		}), nil
	}
}

// newQueue выбирает очередь по схеме QUEUE_URL.
func newQueue(ctx context.Context, cfg config.Config, logger *slog.Logger) (queue, func(), error) {
	backend, err := cfg.QueueBackend()
	if err != nil {
		return nil, nil, err
	}

	if backend == config.BackendAMQP {
		conn, err := mq.NewConnection(cfg.QueueURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := mq.SetupTopology(conn, cfg.AMQPQueue); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("setup topology: %w", err)
		}
		q := mq.NewAMQPQueue(conn, mq.AMQPConfig{
			Queue:    cfg.AMQPQueue,
			WaitTime: cfg.WaitTime,
			Logger:   logger,
		})
		return q, func() { conn.Close() }, nil
	}

	awsCfg, err := cfg.AWS(ctx)
	if err != nil {
		return nil, nil, err
	}
	q := mq.NewSQSQueue(mq.SQSConfig{
		Client:            mq.NewSQSClient(awsCfg),
		URL:               cfg.QueueURL,
		VisibilityTimeout: cfg.VisibilityTimeout,
		WaitTime:          cfg.WaitTime,
		Logger:            logger,
	})
	return q, func() {}, nil
}

// openSender открывает очередь для команды enqueue.
func openSender(ctx context.Context) (cli.Sender, func(), error) {
	logger := telemetry.SetupLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.QueueURL == "" {
		return nil, nil, fmt.Errorf("%w: QUEUE_URL", config.ErrMissing)
	}

	return newQueue(ctx, cfg, logger)
}

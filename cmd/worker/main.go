package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/civisight/portal/pkg/cache"
	"github.com/civisight/portal/pkg/config"
	"github.com/civisight/portal/pkg/database"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/queue"
	"github.com/civisight/portal/pkg/repository/postgres"
	"github.com/civisight/portal/pkg/services"
	"github.com/civisight/portal/pkg/worker"
)

func run(ctx context.Context, w *worker.Worker, logger observability.Logger) error {
	logger.Info("Starting reminder worker", nil)
	return w.Run(ctx)
}

func workerConfig(cfg config.RemindersConfig) worker.Config {
	return worker.Config{
		ScanInterval:   cfg.ScanInterval,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := observability.NewLogger("worker")
	if !cfg.Reminders.Enabled {
		logger.Info("Reminders are disabled, exiting", nil)
		return
	}

	metricsClient := observability.NewPrometheusMetricsClient(cfg.Metrics.Namespace, map[string]string{"component": "worker"})
	defer metricsClient.Close()

	tracer, shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer shutdownTracing()

	db, err := database.NewDatabase(ctx, cfg.Database, logger)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	cacheClient, err := cache.NewCache(ctx, cfg.Cache, logger, metricsClient)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cacheClient.Close()

	reminderQueue, err := queue.New(ctx, cfg.AWS.SQS, logger)
	if err != nil {
		log.Fatalf("Failed to initialize reminder queue: %v", err)
	}

	sqlxDB := db.DB()
	reminders := services.NewReminderService(
		services.ServiceConfig{Logger: logger, Metrics: metricsClient, Tracer: tracer},
		services.ReminderConfig{
			FromAddress: cfg.Reminders.FromAddress,
			WaitSeconds: cfg.Reminders.WaitSeconds,
			BatchSize:   cfg.Reminders.BatchSize,
		},
		postgres.NewTaskRepository(sqlxDB, cacheClient, logger, tracer, metricsClient),
		postgres.NewUserRepository(sqlxDB, cacheClient, logger, tracer, metricsClient),
		postgres.NewCountyRepository(sqlxDB, logger, tracer, metricsClient),
		postgres.NewReminderRepository(sqlxDB, logger, tracer, metricsClient),
		reminderQueue,
	)

	w := worker.New(reminders, services.NewLogMailer(logger), cacheClient, workerConfig(cfg.Reminders), logger, metricsClient)
	if err := run(ctx, w, logger); err != nil {
		log.Fatalf("Worker exited with error: %v", err)
	}
	logger.Info("Reminder worker stopped", nil)
}

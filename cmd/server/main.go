package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/civisight/portal/pkg/api"
	"github.com/civisight/portal/pkg/auth"
	"github.com/civisight/portal/pkg/cache"
	"github.com/civisight/portal/pkg/config"
	"github.com/civisight/portal/pkg/database"
	"github.com/civisight/portal/pkg/health"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/queue"
	"github.com/civisight/portal/pkg/repository/postgres"
	"github.com/civisight/portal/pkg/services"
	"github.com/civisight/portal/pkg/storage"
)

// countyListTTL bounds how stale the cached county list may be.
const countyListTTL = time.Minute

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := validateConfiguration(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := observability.NewLogger("server")

	metricsClient := observability.NewPrometheusMetricsClient(cfg.Metrics.Namespace, map[string]string{"environment": cfg.Environment})
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

	store, err := storage.New(ctx, cfg.AWS.S3, logger)
	if err != nil {
		log.Fatalf("Failed to initialize form storage: %v", err)
	}
	reminderQueue, err := queue.New(ctx, cfg.AWS.SQS, logger)
	if err != nil {
		log.Fatalf("Failed to initialize reminder queue: %v", err)
	}

	sqlxDB := db.DB()
	tasks := postgres.NewTaskRepository(sqlxDB, cacheClient, logger, tracer, metricsClient)
	users := postgres.NewUserRepository(sqlxDB, cacheClient, logger, tracer, metricsClient)
	counties := postgres.NewCountyRepository(sqlxDB, logger, tracer, metricsClient)
	obligations := postgres.NewObligationRepository(sqlxDB, logger, tracer, metricsClient)
	forms := postgres.NewFormRepository(sqlxDB, logger, tracer, metricsClient)
	reminders := postgres.NewReminderRepository(sqlxDB, logger, tracer, metricsClient)

	authService := auth.NewService(cfg.Auth, logger)
	svcConfig := services.ServiceConfig{Logger: logger, Metrics: metricsClient, Tracer: tracer}
	svc := api.Services{
		Accounts:    services.NewAccountService(svcConfig, users, authService),
		Counties:    services.NewCountyService(svcConfig, counties, tasks, cacheClient, countyListTTL),
		Tasks:       services.NewTaskService(svcConfig, tasks, counties, cacheClient),
		Obligations: services.NewObligationService(svcConfig, obligations),
		Forms:       services.NewFormService(svcConfig, forms, counties, store, cfg.API.MaxUploadBytes),
		Reminders: services.NewReminderService(svcConfig, services.ReminderConfig{
			FromAddress: cfg.Reminders.FromAddress,
			WaitSeconds: cfg.Reminders.WaitSeconds,
			BatchSize:   cfg.Reminders.BatchSize,
		}, tasks, users, counties, reminders, reminderQueue),
	}

	checker := health.NewHealthChecker(logger, metricsClient)
	checker.RegisterCheck(health.NewPingCheck("database", db))
	if p, ok := cacheClient.(health.Pinger); ok {
		checker.RegisterCheck(health.NewPingCheck("cache", p))
	}

	opts := api.Options{Logger: logger, Metrics: metricsClient, Health: checker}
	if cfg.Metrics.Enabled {
		opts.MetricsHandler = metricsClient.Handler()
	}
	server := api.NewServer(cfg.API, authService, svc, opts)

	go func() {
		if err := server.Start(ctx); err != nil {
			logger.Error("API server stopped", map[string]interface{}{"error": err.Error()})
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("Received shutdown signal", nil)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", map[string]interface{}{"error": err.Error()})
	}
	logger.Info("Server stopped gracefully", nil)
}

// validateConfiguration validates critical configuration settings
func validateConfiguration(cfg *config.Config) error {
	if cfg.Database.DSN == "" && (cfg.Database.Host == "" || cfg.Database.Port == 0 || cfg.Database.Database == "") {
		return fmt.Errorf("invalid database configuration: DSN or host/port/database must be provided")
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must be set")
	}
	if cfg.API.ReadTimeout <= 0 || cfg.API.WriteTimeout <= 0 || cfg.API.IdleTimeout <= 0 {
		return fmt.Errorf("invalid API timeouts: must be greater than 0")
	}
	if cfg.API.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid API shutdown timeout: must be greater than 0")
	}
	if cfg.API.MaxUploadBytes <= 0 {
		return fmt.Errorf("api.max_upload_bytes must be greater than 0")
	}
	if cfg.IsProduction() && cfg.Cache.Type == "memory" {
		log.Println("Warning: in-memory cache in production; cached counts are per instance")
	}
	return nil
}

/**
 * @description
 * This is the main entry point for the reconciler. This binary is a non-HTTP,
 * long-running process that executes scheduled tasks: the registration
 * reconciliation sweep, the flow metrics recompute and the alert threshold
 * check. It initializes the configuration, database connection and the cron
 * scheduler, then starts it.
 */
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcarraroia/comademig-sub001/internal/app"
	"github.com/rcarraroia/comademig-sub001/internal/config"
	"github.com/rcarraroia/comademig-sub001/internal/flowlog"
	"github.com/rcarraroia/comademig-sub001/internal/store"
	"github.com/rcarraroia/comademig-sub001/pkg/asaasclient"
	"github.com/rcarraroia/comademig-sub001/pkg/authclient"
	"github.com/rcarraroia/comademig-sub001/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load application configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Establish database connection with connection pool configuration
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}

	// A background sweeper needs far fewer connections than the API server.
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Event publishing falls back to a noop when the broker is down so the
	// sweep itself keeps running.
	var producer rabbitmq.Publisher
	rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		logger.Warn("rabbitmq unavailable, events disabled", "error", err)
		producer = &rabbitmq.NoopPublisher{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
	}
	events := rabbitmq.NewExchangePublisher(producer, cfg.EventsExchange)

	// Initialize dependencies
	repository := store.NewRepository(dbpool)
	flowLogger := flowlog.NewLogger(repository)
	asaasClient := asaasclient.NewClient(cfg.AsaasBaseURL, cfg.AsaasAPIKey)
	authClient := authclient.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey)

	reconciler := app.NewReconciler(
		asaasClient,
		authClient,
		repository,
		events,
		time.Duration(cfg.StaleProfileMinutes)*time.Minute,
		cfg.ReconcileBatchLimit,
	)
	jobs := app.NewJobs(reconciler, repository, flowLogger, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg)

	// Start the cron scheduler in the background
	scheduler.Start()
	logger.Info("scheduler started")

	// Wait for termination signal to gracefully shut down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	// Stop the scheduler
	logger.Info("shutdown signal received, stopping scheduler")
	stopCtx := scheduler.Stop()
	<-stopCtx.Done() // Wait for scheduler to fully stop
	logger.Info("scheduler stopped gracefully")
}

/**
 * @description
 * Cron scheduler setup for the reconciler binary's scheduled jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/rcarraroia/comademig-sub001/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.ReconcileSchedule, s.jobs.RunReconciliation); err != nil {
		s.logger.Error("failed to schedule reconciliation job", "error", err)
	} else {
		s.logger.Info("scheduled reconciliation job", "schedule", s.config.ReconcileSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.MetricsSchedule, s.jobs.RecomputeMetrics); err != nil {
		s.logger.Error("failed to schedule metrics recompute job", "error", err)
	} else {
		s.logger.Info("scheduled metrics recompute job", "schedule", s.config.MetricsSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.AlertCheckSchedule, s.jobs.CheckAlerts); err != nil {
		s.logger.Error("failed to schedule alert check job", "error", err)
	} else {
		s.logger.Info("scheduled alert check job", "schedule", s.config.AlertCheckSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

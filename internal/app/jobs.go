/**
 * @description
 * Scheduled job implementations for the reconciler binary.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

// MetricsStore defines the persistence operations the metrics job needs.
type MetricsStore interface {
	ComputeMetrics(ctx context.Context, since time.Time) error
}

// AlertChecker evaluates alert thresholds over recent flow activity.
type AlertChecker interface {
	CheckAndCreateAlerts(ctx context.Context) error
}

// metricsLookback bounds how far the recompute reaches. Two days covers
// late-arriving events around midnight bucket boundaries.
const metricsLookback = 48 * time.Hour

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	reconciler *Reconciler
	metrics    MetricsStore
	alerts     AlertChecker
	logger     *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(reconciler *Reconciler, metrics MetricsStore, alerts AlertChecker, logger *slog.Logger) *Jobs {
	return &Jobs{
		reconciler: reconciler,
		metrics:    metrics,
		alerts:     alerts,
		logger:     logger,
	}
}

// RunReconciliation sweeps and completes stuck registrations.
func (j *Jobs) RunReconciliation() {
	j.logger.Info("starting registration reconciliation job")
	ctx := context.Background()

	result, err := j.reconciler.ProcessAll(ctx)
	if err != nil {
		j.logger.Error("registration reconciliation job failed", "error", err)
		return
	}

	j.logger.Info("registration reconciliation job finished",
		"total_found", result.TotalFound,
		"completed", result.Completed,
		"failed", result.Failed,
	)
}

// RecomputeMetrics refreshes the hourly and daily flow metric buckets.
func (j *Jobs) RecomputeMetrics() {
	j.logger.Info("starting flow metrics recompute job")
	ctx := context.Background()

	if err := j.metrics.ComputeMetrics(ctx, time.Now().Add(-metricsLookback)); err != nil {
		j.logger.Error("flow metrics recompute job failed", "error", err)
		return
	}

	j.logger.Info("flow metrics recompute job finished")
}

// CheckAlerts evaluates flow health thresholds and opens alerts on breaches.
func (j *Jobs) CheckAlerts() {
	j.logger.Info("starting flow alert check job")
	ctx := context.Background()

	if err := j.alerts.CheckAndCreateAlerts(ctx); err != nil {
		j.logger.Error("flow alert check job failed", "error", err)
		return
	}

	j.logger.Info("flow alert check job finished")
}

/**
 * @description
 * Observability persistence: flow event inserts, alert lifecycle and the
 * periodic metric-bucket recompute over payment_first_flow_logs.
 */
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rcarraroia/comademig-sub001/internal/domain"
)

// InsertFlowEvent appends one event row. Callers treat failures as
// non-fatal; the flow itself never depends on logging.
func (r *Repository) InsertFlowEvent(ctx context.Context, event domain.FlowEvent) error {
	var contextBlob []byte
	if event.Context != nil {
		var err error
		contextBlob, err = json.Marshal(event.Context)
		if err != nil {
			return fmt.Errorf("failed to marshal event context: %w", err)
		}
	}

	query := `
        INSERT INTO payment_first_flow_logs (event_type, user_email, user_id, asaas_customer_id,
                                             asaas_payment_id, member_type, plan_id, affiliate_id,
                                             processing_time_ms, error_message, error_code, context)
        VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
                NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, 0), NULLIF($10, ''), NULLIF($11, ''), $12)
    `
	_, err := r.db.Exec(ctx, query,
		event.EventType, event.UserEmail, event.UserID, event.AsaasCustomerID,
		event.AsaasPaymentID, event.MemberType, event.PlanID, event.AffiliateID,
		event.ProcessingTimeMs, event.ErrorMessage, event.ErrorCode, contextBlob,
	)
	return err
}

// InsertFlowAlert opens a new alert row.
func (r *Repository) InsertFlowAlert(ctx context.Context, alert domain.FlowAlert) error {
	query := `
        INSERT INTO payment_first_flow_alerts (alert_type, severity, title, description,
                                               threshold_value, current_value)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := r.db.Exec(ctx, query,
		alert.AlertType, alert.Severity, alert.Title, alert.Description,
		alert.ThresholdValue, alert.CurrentValue,
	)
	return err
}

// HasActiveAlert reports whether an unresolved alert of the given type already
// exists, so the checker does not open duplicates every run.
func (r *Repository) HasActiveAlert(ctx context.Context, alertType domain.AlertType) (bool, error) {
	var exists bool
	query := `
        SELECT EXISTS(
            SELECT 1 FROM payment_first_flow_alerts
            WHERE alert_type = $1 AND is_resolved = FALSE
        )
    `
	err := r.db.QueryRow(ctx, query, alertType).Scan(&exists)
	return exists, err
}

// ListActiveAlerts returns unresolved alerts, newest first.
func (r *Repository) ListActiveAlerts(ctx context.Context) ([]domain.FlowAlert, error) {
	query := `
        SELECT id, alert_type, severity, title, description, threshold_value,
               current_value, is_resolved, resolved_at, COALESCE(resolved_by, ''), created_at
        FROM payment_first_flow_alerts
        WHERE is_resolved = FALSE
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []domain.FlowAlert
	for rows.Next() {
		var a domain.FlowAlert
		if err := rows.Scan(
			&a.ID, &a.AlertType, &a.Severity, &a.Title, &a.Description,
			&a.ThresholdValue, &a.CurrentValue, &a.IsResolved, &a.ResolvedAt,
			&a.ResolvedBy, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ResolveAlert marks one alert as handled.
func (r *Repository) ResolveAlert(ctx context.Context, alertID, resolvedBy string) error {
	query := `
        UPDATE payment_first_flow_alerts
        SET is_resolved = TRUE, resolved_at = NOW(), resolved_by = $2
        WHERE id = $1 AND is_resolved = FALSE
    `
	tag, err := r.db.Exec(ctx, query, alertID, resolvedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	return nil
}

// ComputeMetrics recomputes the daily and hourly buckets covering events since
// the cutoff, upserting into payment_first_flow_metrics.
func (r *Repository) ComputeMetrics(ctx context.Context, since time.Time) error {
	query := `
        INSERT INTO payment_first_flow_metrics (metric_date, metric_hour, total_registrations,
            successful_registrations, failed_registrations, payment_failures,
            account_creation_failures, fallback_activations, avg_processing_time_ms,
            max_processing_time_ms, min_processing_time_ms)
        SELECT created_at::date,
               EXTRACT(HOUR FROM created_at)::int,
               COUNT(*) FILTER (WHERE event_type = 'registration_started'),
               COUNT(*) FILTER (WHERE event_type = 'process_completed'),
               COUNT(*) FILTER (WHERE event_type = 'process_failed'),
               COUNT(*) FILTER (WHERE event_type = 'payment_failed'),
               COUNT(*) FILTER (WHERE event_type = 'account_creation_failed'),
               COUNT(*) FILTER (WHERE event_type = 'fallback_stored'),
               COALESCE(AVG(processing_time_ms) FILTER (WHERE processing_time_ms IS NOT NULL), 0),
               COALESCE(MAX(processing_time_ms), 0),
               COALESCE(MIN(processing_time_ms), 0)
        FROM payment_first_flow_logs
        WHERE created_at >= $1
        GROUP BY created_at::date, EXTRACT(HOUR FROM created_at)::int
        ON CONFLICT (metric_date, metric_hour)
        DO UPDATE SET total_registrations = EXCLUDED.total_registrations,
                      successful_registrations = EXCLUDED.successful_registrations,
                      failed_registrations = EXCLUDED.failed_registrations,
                      payment_failures = EXCLUDED.payment_failures,
                      account_creation_failures = EXCLUDED.account_creation_failures,
                      fallback_activations = EXCLUDED.fallback_activations,
                      avg_processing_time_ms = EXCLUDED.avg_processing_time_ms,
                      max_processing_time_ms = EXCLUDED.max_processing_time_ms,
                      min_processing_time_ms = EXCLUDED.min_processing_time_ms,
                      updated_at = NOW()
    `
	_, err := r.db.Exec(ctx, query, since)
	return err
}

// GetMetrics returns metric buckets in a date range. Hourly rows when hourly
// is set, otherwise the per-day rollup. Success rate is computed on read.
func (r *Repository) GetMetrics(ctx context.Context, from, to time.Time, hourly bool) ([]domain.FlowMetrics, error) {
	var query string
	if hourly {
		query = `
            SELECT metric_date::text, metric_hour, total_registrations, successful_registrations,
                   failed_registrations, payment_failures, account_creation_failures,
                   fallback_activations, avg_processing_time_ms, max_processing_time_ms,
                   min_processing_time_ms
            FROM payment_first_flow_metrics
            WHERE metric_date BETWEEN $1 AND $2
            ORDER BY metric_date, metric_hour
        `
	} else {
		query = `
            SELECT metric_date::text, NULL::int,
                   SUM(total_registrations)::int, SUM(successful_registrations)::int,
                   SUM(failed_registrations)::int, SUM(payment_failures)::int,
                   SUM(account_creation_failures)::int, SUM(fallback_activations)::int,
                   COALESCE(SUM(avg_processing_time_ms * total_registrations) / NULLIF(SUM(total_registrations), 0), 0),
                   MAX(max_processing_time_ms), MIN(min_processing_time_ms)
            FROM payment_first_flow_metrics
            WHERE metric_date BETWEEN $1 AND $2
            GROUP BY metric_date
            ORDER BY metric_date
        `
	}

	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []domain.FlowMetrics
	for rows.Next() {
		var m domain.FlowMetrics
		if err := rows.Scan(
			&m.Date, &m.Hour, &m.TotalRegistrations, &m.SuccessfulRegistrations,
			&m.FailedRegistrations, &m.PaymentFailures, &m.AccountCreationFailures,
			&m.FallbackActivations, &m.AvgProcessingTimeMs, &m.MaxProcessingTimeMs,
			&m.MinProcessingTimeMs,
		); err != nil {
			return nil, err
		}
		if m.TotalRegistrations > 0 {
			m.SuccessRate = float64(m.SuccessfulRegistrations) / float64(m.TotalRegistrations) * 100
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// RecentWindowMetrics aggregates raw events over a trailing window for the
// alert checker. It reads the log table directly so thresholds see data the
// bucket recompute has not caught up with yet.
func (r *Repository) RecentWindowMetrics(ctx context.Context, window time.Duration) (*domain.FlowMetrics, error) {
	query := `
        SELECT COUNT(*) FILTER (WHERE event_type = 'registration_started'),
               COUNT(*) FILTER (WHERE event_type = 'process_completed'),
               COUNT(*) FILTER (WHERE event_type = 'process_failed'),
               COUNT(*) FILTER (WHERE event_type = 'payment_failed'),
               COUNT(*) FILTER (WHERE event_type = 'account_creation_failed'),
               COUNT(*) FILTER (WHERE event_type = 'fallback_stored'),
               COALESCE(AVG(processing_time_ms) FILTER (WHERE processing_time_ms IS NOT NULL), 0)
        FROM payment_first_flow_logs
        WHERE created_at >= NOW() - $1::interval
    `
	interval := fmt.Sprintf("%d seconds", int(window.Seconds()))
	var m domain.FlowMetrics
	err := r.db.QueryRow(ctx, query, interval).Scan(
		&m.TotalRegistrations, &m.SuccessfulRegistrations, &m.FailedRegistrations,
		&m.PaymentFailures, &m.AccountCreationFailures, &m.FallbackActivations,
		&m.AvgProcessingTimeMs,
	)
	if err != nil {
		return nil, err
	}
	if m.TotalRegistrations > 0 {
		m.SuccessRate = float64(m.SuccessfulRegistrations) / float64(m.TotalRegistrations) * 100
	}
	return &m, nil
}

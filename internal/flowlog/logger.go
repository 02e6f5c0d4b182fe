/**
 * @description
 * Best-effort flow observability. Events are appended to the flow log table
 * and failures are swallowed after a warning, because losing a log row must
 * never fail a live registration.
 */
package flowlog

import (
	"context"
	"log"
	"time"

	"github.com/rcarraroia/comademig-sub001/internal/domain"
)

// Store is the persistence surface the logger needs.
type Store interface {
	InsertFlowEvent(ctx context.Context, event domain.FlowEvent) error
	InsertFlowAlert(ctx context.Context, alert domain.FlowAlert) error
	HasActiveAlert(ctx context.Context, alertType domain.AlertType) (bool, error)
	RecentWindowMetrics(ctx context.Context, window time.Duration) (*domain.FlowMetrics, error)
}

// Logger writes flow events and evaluates alert thresholds.
type Logger struct {
	store Store
}

// NewLogger creates a flow logger backed by the given store.
func NewLogger(store Store) *Logger {
	return &Logger{store: store}
}

// LogEvent appends one event, swallowing any storage error.
func (l *Logger) LogEvent(ctx context.Context, event domain.FlowEvent) {
	if err := l.store.InsertFlowEvent(ctx, event); err != nil {
		log.Printf("level=warn component=flowlog msg=\"failed to record flow event\" event_type=%s error=%v", event.EventType, err)
	}
}

// LogStarted records the beginning of a registration attempt.
func (l *Logger) LogStarted(ctx context.Context, email, memberType, planID, affiliateID string) {
	l.LogEvent(ctx, domain.FlowEvent{
		EventType:   domain.EventRegistrationStarted,
		UserEmail:   email,
		MemberType:  memberType,
		PlanID:      planID,
		AffiliateID: affiliateID,
	})
}

// LogPaymentProcessed records a settled charge.
func (l *Logger) LogPaymentProcessed(ctx context.Context, email, customerID, paymentID string) {
	l.LogEvent(ctx, domain.FlowEvent{
		EventType:       domain.EventPaymentProcessed,
		UserEmail:       email,
		AsaasCustomerID: customerID,
		AsaasPaymentID:  paymentID,
	})
}

// LogPaymentFailed records a refused or errored charge.
func (l *Logger) LogPaymentFailed(ctx context.Context, email, paymentID, errMsg, errCode string) {
	l.LogEvent(ctx, domain.FlowEvent{
		EventType:      domain.EventPaymentFailed,
		UserEmail:      email,
		AsaasPaymentID: paymentID,
		ErrorMessage:   errMsg,
		ErrorCode:      errCode,
	})
}

// LogAccountCreated records a successful auth account creation.
func (l *Logger) LogAccountCreated(ctx context.Context, email, userID string) {
	l.LogEvent(ctx, domain.FlowEvent{
		EventType: domain.EventAccountCreated,
		UserEmail: email,
		UserID:    userID,
	})
}

// LogAccountCreationFailed records an auth account failure after payment.
func (l *Logger) LogAccountCreationFailed(ctx context.Context, email, paymentID, errMsg string) {
	l.LogEvent(ctx, domain.FlowEvent{
		EventType:      domain.EventAccountCreationFailed,
		UserEmail:      email,
		AsaasPaymentID: paymentID,
		ErrorMessage:   errMsg,
	})
}

// LogFallbackStored records that a fallback row was written.
func (l *Logger) LogFallbackStored(ctx context.Context, email, paymentID, table string) {
	l.LogEvent(ctx, domain.FlowEvent{
		EventType:      domain.EventFallbackStored,
		UserEmail:      email,
		AsaasPaymentID: paymentID,
		Context:        map[string]any{"table": table},
	})
}

// LogCompleted records a fully successful registration with its duration.
func (l *Logger) LogCompleted(ctx context.Context, email, userID, paymentID string, elapsed time.Duration) {
	l.LogEvent(ctx, domain.FlowEvent{
		EventType:        domain.EventProcessCompleted,
		UserEmail:        email,
		UserID:           userID,
		AsaasPaymentID:   paymentID,
		ProcessingTimeMs: elapsed.Milliseconds(),
	})
}

// LogFailed records a terminal failure with its duration.
func (l *Logger) LogFailed(ctx context.Context, email, errMsg string, elapsed time.Duration) {
	l.LogEvent(ctx, domain.FlowEvent{
		EventType:        domain.EventProcessFailed,
		UserEmail:        email,
		ErrorMessage:     errMsg,
		ProcessingTimeMs: elapsed.Milliseconds(),
	})
}

// Alert thresholds over the trailing window. Rate checks require a minimum
// sample so a single bad registration does not page anyone.
const (
	alertWindow            = time.Hour
	minAttemptsForRates    = 5
	successRateFloor       = 80.0
	avgProcessingCeilingMs = 20000.0
	fallbackRateCeiling    = 10.0
)

// CheckAndCreateAlerts evaluates the trailing-window metrics against the
// thresholds and opens alerts for breaches that are not already active.
func (l *Logger) CheckAndCreateAlerts(ctx context.Context) error {
	m, err := l.store.RecentWindowMetrics(ctx, alertWindow)
	if err != nil {
		return err
	}

	if m.TotalRegistrations >= minAttemptsForRates && m.SuccessRate < successRateFloor {
		l.openAlert(ctx, domain.FlowAlert{
			AlertType:      domain.AlertHighFailureRate,
			Severity:       domain.SeverityHigh,
			Title:          "Taxa de falha elevada no fluxo de registro",
			Description:    "A taxa de sucesso dos registros caiu abaixo do limite na última hora.",
			ThresholdValue: successRateFloor,
			CurrentValue:   m.SuccessRate,
		})
	}

	if m.TotalRegistrations > 0 && m.AvgProcessingTimeMs > avgProcessingCeilingMs {
		l.openAlert(ctx, domain.FlowAlert{
			AlertType:      domain.AlertSlowProcessing,
			Severity:       domain.SeverityMedium,
			Title:          "Processamento de registros lento",
			Description:    "O tempo médio de processamento dos registros excedeu o limite na última hora.",
			ThresholdValue: avgProcessingCeilingMs,
			CurrentValue:   m.AvgProcessingTimeMs,
		})
	}

	if m.TotalRegistrations >= minAttemptsForRates && m.FallbackRate() > fallbackRateCeiling {
		l.openAlert(ctx, domain.FlowAlert{
			AlertType:      domain.AlertFallbackThreshold,
			Severity:       domain.SeverityHigh,
			Title:          "Uso excessivo do armazenamento de contingência",
			Description:    "A fração de registros que ativaram o fluxo de contingência excedeu o limite na última hora.",
			ThresholdValue: fallbackRateCeiling,
			CurrentValue:   m.FallbackRate(),
		})
	}

	return nil
}

func (l *Logger) openAlert(ctx context.Context, alert domain.FlowAlert) {
	active, err := l.store.HasActiveAlert(ctx, alert.AlertType)
	if err != nil {
		log.Printf("level=warn component=flowlog msg=\"failed to check active alerts\" alert_type=%s error=%v", alert.AlertType, err)
		return
	}
	if active {
		return
	}
	if err := l.store.InsertFlowAlert(ctx, alert); err != nil {
		log.Printf("level=warn component=flowlog msg=\"failed to create alert\" alert_type=%s error=%v", alert.AlertType, err)
	}
}

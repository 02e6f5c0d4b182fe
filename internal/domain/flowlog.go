/**
 * @description
 * Observability rows for the payment-first flow: append-only events, mutable
 * alerts and periodically recomputed metric buckets.
 */
package domain

import "time"

// FlowEventType enumerates the append-only event vocabulary.
type FlowEventType string

const (
	EventRegistrationStarted   FlowEventType = "registration_started"
	EventPaymentProcessed      FlowEventType = "payment_processed"
	EventPaymentFailed         FlowEventType = "payment_failed"
	EventAccountCreated        FlowEventType = "account_created"
	EventAccountCreationFailed FlowEventType = "account_creation_failed"
	EventSubscriptionCreated   FlowEventType = "subscription_created"
	EventFallbackStored        FlowEventType = "fallback_stored"
	EventProcessCompleted      FlowEventType = "process_completed"
	EventProcessFailed         FlowEventType = "process_failed"
)

// FlowEvent is one immutable row in payment_first_flow_logs.
type FlowEvent struct {
	EventType        FlowEventType  `json:"event_type"`
	UserEmail        string         `json:"user_email,omitempty"`
	UserID           string         `json:"user_id,omitempty"`
	AsaasCustomerID  string         `json:"asaas_customer_id,omitempty"`
	AsaasPaymentID   string         `json:"asaas_payment_id,omitempty"`
	MemberType       string         `json:"member_type,omitempty"`
	PlanID           string         `json:"plan_id,omitempty"`
	AffiliateID      string         `json:"affiliate_id,omitempty"`
	ProcessingTimeMs int64          `json:"processing_time_ms,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	ErrorCode        string         `json:"error_code,omitempty"`
	Context          map[string]any `json:"context,omitempty"`
}

// AlertType enumerates detected anomalies.
type AlertType string

const (
	AlertHighFailureRate   AlertType = "high_failure_rate"
	AlertSlowProcessing    AlertType = "slow_processing"
	AlertFallbackThreshold AlertType = "fallback_threshold_exceeded"
)

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// FlowAlert is a row in payment_first_flow_alerts.
type FlowAlert struct {
	ID             string        `json:"id"`
	AlertType      AlertType     `json:"alert_type"`
	Severity       AlertSeverity `json:"severity"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	ThresholdValue float64       `json:"threshold_value"`
	CurrentValue   float64       `json:"current_value"`
	IsResolved     bool          `json:"is_resolved"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy     string        `json:"resolved_by,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// FlowMetrics is one recomputed aggregate bucket in
// payment_first_flow_metrics, keyed by date and optionally by hour.
type FlowMetrics struct {
	Date                    string  `json:"date"`
	Hour                    *int    `json:"hour,omitempty"`
	TotalRegistrations      int     `json:"total_registrations"`
	SuccessfulRegistrations int     `json:"successful_registrations"`
	FailedRegistrations     int     `json:"failed_registrations"`
	PaymentFailures         int     `json:"payment_failures"`
	AccountCreationFailures int     `json:"account_creation_failures"`
	FallbackActivations     int     `json:"fallback_activations"`
	AvgProcessingTimeMs     float64 `json:"avg_processing_time_ms"`
	MaxProcessingTimeMs     int64   `json:"max_processing_time_ms"`
	MinProcessingTimeMs     int64   `json:"min_processing_time_ms"`
	SuccessRate             float64 `json:"success_rate"`
}

// FallbackRate returns the percentage of registrations that activated the
// fallback store within the bucket.
func (m FlowMetrics) FallbackRate() float64 {
	if m.TotalRegistrations == 0 {
		return 0
	}
	return float64(m.FallbackActivations) / float64(m.TotalRegistrations) * 100
}

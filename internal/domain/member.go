/**
 * @description
 * Persisted membership records: plans, profiles, subscriptions, affiliates
 * and commissions. These mirror the relational tables the flow writes to.
 */
package domain

import "time"

// FlowVersion tags records created by the payment-first orchestration,
// distinguishing them from the legacy signup flow.
const FlowVersion = "payment_first_v1"

// Profile status values.
const (
	ProfileStatusAtivo    = "ativo"
	ProfileStatusPendente = "pendente"
)

// BillingCycle values carried by subscription plans.
const (
	CycleMonthly      = "MONTHLY"
	CycleSemiannually = "SEMIANNUALLY"
	CycleYearly       = "YEARLY"
)

// Plan is a subscription plan row (subscription_plans).
type Plan struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Cycle string  `json:"cycle"`
}

// NextBillingDate computes the next billing date for a plan cycle starting
// from the given instant. Unknown cycles fall back to monthly.
func NextBillingDate(cycle string, from time.Time) time.Time {
	switch cycle {
	case CycleSemiannually:
		return from.AddDate(0, 6, 0)
	case CycleYearly:
		return from.AddDate(1, 0, 0)
	case CycleMonthly:
		return from.AddDate(0, 1, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

// Profile is the member business record (profiles). 1:1 with the auth account.
type Profile struct {
	ID                 string     `json:"id"`
	Nome               string     `json:"nome"`
	Email              string     `json:"email"`
	CPF                string     `json:"cpf"`
	Telefone           string     `json:"telefone"`
	Endereco           Address    `json:"endereco"`
	TipoMembro         MemberType `json:"tipo_membro"`
	Status             string     `json:"status"`
	AsaasCustomerID    string     `json:"asaas_customer_id"`
	PaymentConfirmedAt *time.Time `json:"payment_confirmed_at,omitempty"`
	FlowVersion        string     `json:"registration_flow_version"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ProcessingContext is the typed processing-context blob stored with each
// subscription. Extra holds forward-compatible metadata only.
type ProcessingContext struct {
	FlowVersion        string         `json:"flow_version"`
	PaymentConfirmedAt time.Time      `json:"payment_confirmed_at"`
	AffiliateID        string         `json:"affiliate_id,omitempty"`
	Extra              map[string]any `json:"extra,omitempty"`
}

// Subscription links a profile to a plan (user_subscriptions).
type Subscription struct {
	ID                string            `json:"id"`
	UserID            string            `json:"user_id"`
	PlanID            string            `json:"plan_id"`
	Status            string            `json:"status"`
	StartDate         time.Time         `json:"start_date"`
	NextBillingDate   time.Time         `json:"next_billing_date"`
	AsaasPaymentID    string            `json:"asaas_payment_id"`
	ProcessingContext ProcessingContext `json:"processing_context"`
}

// Affiliate is the referral partner row (affiliates).
type Affiliate struct {
	ID                   string  `json:"id"`
	CommissionPercentage float64 `json:"commission_percentage"`
}

// Commission is an affiliate commission row (commissions), always created in
// pending status for later payout review.
type Commission struct {
	ID          string    `json:"id"`
	AffiliateID string    `json:"affiliate_id"`
	UserID      string    `json:"user_id"`
	PaymentID   string    `json:"payment_id"`
	Amount      float64   `json:"amount"`
	Percentage  float64   `json:"percentage"`
	Status      string    `json:"status"`
	Type        string    `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
}

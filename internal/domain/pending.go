/**
 * @description
 * Fallback-store records and the unified shape the reconciliation sweep
 * normalizes its three discovery sources into.
 */
package domain

import "time"

// PendingStatus is the lifecycle of a fallback record.
type PendingStatus string

const (
	PendingStatusPending    PendingStatus = "pending"
	PendingStatusInProgress PendingStatus = "in_progress"
	PendingStatusCompleted  PendingStatus = "completed"
	PendingStatusFailed     PendingStatus = "failed"
)

// PendingUserData is the applicant snapshot stored in
// pending_subscriptions.user_data. Passwords are stored bcrypt-hashed.
type PendingUserData struct {
	Email        string     `json:"email"`
	PasswordHash string     `json:"password_hash"`
	Nome         string     `json:"nome"`
	CPF          string     `json:"cpf"`
	Telefone     string     `json:"telefone"`
	Endereco     Address    `json:"endereco"`
	TipoMembro   MemberType `json:"tipo_membro"`
}

// PendingSubscriptionData is the plan/affiliate snapshot stored in
// pending_subscriptions.subscription_data.
type PendingSubscriptionData struct {
	PlanID      string `json:"plan_id"`
	AffiliateID string `json:"affiliate_id,omitempty"`
}

// PendingPaymentData is the payment snapshot stored in
// pending_subscriptions.payment_data.
type PendingPaymentData struct {
	Amount        float64       `json:"amount"`
	PaymentMethod PaymentMethod `json:"payment_method"`
}

// PendingSubscription is a fallback record written when payment confirmation
// timed out before the account was ever attempted (pending_subscriptions).
// Keyed by the gateway charge id; writes are idempotent upserts.
type PendingSubscription struct {
	PaymentID        string                  `json:"payment_id"`
	CustomerID       string                  `json:"customer_id"`
	UserData         PendingUserData         `json:"user_data"`
	SubscriptionData PendingSubscriptionData `json:"subscription_data"`
	PaymentData      PendingPaymentData      `json:"payment_data"`
	RetryCount       int                     `json:"retry_count"`
	Status           PendingStatus           `json:"status"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// PendingProfileData is the profile snapshot stored in
// pending_completions.profile_data.
type PendingProfileData struct {
	Endereco   Address    `json:"endereco"`
	TipoMembro MemberType `json:"tipo_membro"`
}

// PendingCompletion is a fallback record written when account creation or the
// profile/subscription unit failed after payment was already confirmed
// (pending_completions). Keyed by the gateway charge id.
type PendingCompletion struct {
	PaymentID      string             `json:"payment_id"`
	CustomerID     string             `json:"customer_id"`
	SubscriptionID string             `json:"subscription_id,omitempty"`
	Email          string             `json:"email"`
	PasswordHash   string             `json:"password_hash"`
	FullName       string             `json:"full_name"`
	CPF            string             `json:"cpf"`
	Phone          string             `json:"phone"`
	MemberTypeID   string             `json:"member_type_id"`
	PlanID         string             `json:"plan_id"`
	AffiliateCode  string             `json:"affiliate_code,omitempty"`
	ProfileData    PendingProfileData `json:"profile_data"`
	RetryCount     int                `json:"retry_count"`
	Status         PendingStatus      `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// PendingStage is the inferred stage of a stuck registration, driving the
// reconciliation dispatch.
type PendingStage string

const (
	StagePaymentConfirmed      PendingStage = "payment_confirmed"
	StageAccountCreationFailed PendingStage = "account_creation_failed"
	StagePendingPayment        PendingStage = "pending_payment"
)

// PendingSource identifies which sweep discovered a stuck registration.
type PendingSource string

const (
	SourcePaidCharge    PendingSource = "paid_charge"
	SourceStaleProfile  PendingSource = "stale_profile"
	SourceFallbackStore PendingSource = "fallback_store"
)

// PendingRegistration is the unified shape every discovery source is
// normalized into before dispatch.
type PendingRegistration struct {
	ID              string          `json:"id"`
	Source          PendingSource   `json:"source"`
	UserEmail       string          `json:"user_email"`
	UserData        PendingUserData `json:"user_data"`
	PlanID          string          `json:"plan_id"`
	AffiliateID     string          `json:"affiliate_id,omitempty"`
	AsaasCustomerID string          `json:"asaas_customer_id,omitempty"`
	AsaasPaymentID  string          `json:"asaas_payment_id,omitempty"`
	ProfileID       string          `json:"profile_id,omitempty"`
	Stage           PendingStage    `json:"status"`
	AdminNotes      string          `json:"admin_notes,omitempty"`
	ManualRun       bool            `json:"manual_completion,omitempty"`
	RetryCount      int             `json:"retry_count"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ReconcileError pairs one failed registration with its error.
type ReconcileError struct {
	RegistrationID string `json:"registration_id"`
	Error          string `json:"error"`
}

// ReconcileResult aggregates a batch run. One registration's failure never
// aborts the batch.
type ReconcileResult struct {
	TotalFound int              `json:"total_found"`
	Completed  int              `json:"successfully_migrated"`
	Failed     int              `json:"failed_migrations"`
	Errors     []ReconcileError `json:"errors"`
}

// ReconcileStats summarizes the current backlog of incomplete registrations.
type ReconcileStats struct {
	TotalIncomplete    int            `json:"total_incomplete"`
	ByStatus           map[string]int `json:"by_status"`
	OldestRegistration *time.Time     `json:"oldest_registration"`
	NewestRegistration *time.Time     `json:"newest_registration"`
}

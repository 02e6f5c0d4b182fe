/**
 * @description
 * Core domain types for the payment-first registration flow: the inbound
 * registration request, the per-step processing log, and the response
 * envelope returned to the caller.
 */
package domain

import "time"

// MemberType enumerates the membership categories accepted at registration.
type MemberType string

const (
	MemberTypeBispo   MemberType = "bispo"
	MemberTypePastor  MemberType = "pastor"
	MemberTypeDiacono MemberType = "diacono"
	MemberTypeMembro  MemberType = "membro"
)

// ValidMemberTypes lists every accepted member type.
var ValidMemberTypes = []MemberType{MemberTypeBispo, MemberTypePastor, MemberTypeDiacono, MemberTypeMembro}

// PaymentMethod enumerates the billing types the flow accepts.
type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentMethodPix        PaymentMethod = "PIX"
)

// Address is the applicant's structured address, persisted verbatim on the
// profile and inside fallback records.
type Address struct {
	CEP         string `json:"cep"`
	Logradouro  string `json:"logradouro"`
	Numero      string `json:"numero"`
	Complemento string `json:"complemento,omitempty"`
	Bairro      string `json:"bairro"`
	Cidade      string `json:"cidade"`
	Estado      string `json:"estado"`
}

// CardData carries the credit card fields required when the payment method is
// CREDIT_CARD. It is forwarded to the gateway and never persisted.
type CardData struct {
	HolderName  string `json:"holderName"`
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	CCV         string `json:"ccv"`
}

// RegistrationRequest is the inbound payload of the payment-first flow.
type RegistrationRequest struct {
	Nome          string        `json:"nome"`
	Email         string        `json:"email"`
	Password      string        `json:"password"`
	CPF           string        `json:"cpf"`
	Telefone      string        `json:"telefone"`
	Endereco      Address       `json:"endereco"`
	TipoMembro    MemberType    `json:"tipo_membro"`
	PlanID        string        `json:"plan_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	CardData      *CardData     `json:"card_data,omitempty"`
	AffiliateID   string        `json:"affiliate_id,omitempty"`
}

// StepStatus is the per-step progression state reported back to the caller.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// Flow step names, in execution order.
const (
	StepValidation          = "validation"
	StepAsaasCustomer       = "asaas_customer"
	StepPayment             = "payment"
	StepPaymentConfirmation = "payment_confirmation"
	StepAccountCreation     = "account_creation"
	StepProfileSubscription = "profile_subscription"
	StepDone                = "completed"
)

// ProcessingStep is one entry of the step log returned verbatim in every
// response, success or failure, so callers can see where an attempt stopped.
type ProcessingStep struct {
	Step      string     `json:"step"`
	Status    StepStatus `json:"status"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
	Error     string     `json:"error,omitempty"`
}

// FlowResult is the JSON envelope returned by the registration endpoint.
type FlowResult struct {
	Success                    bool             `json:"success"`
	UserID                     string           `json:"user_id,omitempty"`
	PaymentID                  string           `json:"payment_id,omitempty"`
	AsaasCustomerID            string           `json:"asaas_customer_id,omitempty"`
	AsaasSubscriptionID        string           `json:"asaas_subscription_id,omitempty"`
	Steps                      []ProcessingStep `json:"steps"`
	Error                      string           `json:"error,omitempty"`
	FallbackStored             bool             `json:"fallback_stored,omitempty"`
	RequiresManualIntervention bool             `json:"requires_manual_intervention,omitempty"`
	DurationMs                 int64            `json:"duration_ms,omitempty"`
}

/**
 * @description
 * Payment-first registration orchestrator. The flow charges the applicant
 * before any account exists: validate, create the gateway customer and
 * charge, wait for settlement, then create the auth account and the
 * profile/subscription records. Failures after settlement never lose the
 * payment; they land in a fallback table for reconciliation.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rcarraroia/comademig-sub001/internal/domain"
	"github.com/rcarraroia/comademig-sub001/pkg/asaasclient"
	"github.com/rcarraroia/comademig-sub001/pkg/authclient"
)

// Outcome classifies a finished registration attempt for transport mapping.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeValidationFailed
	OutcomePaymentRefused
	OutcomePollTimeout
	OutcomeInternalError
)

// PaymentGateway is the billing surface the orchestrator needs.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, req asaasclient.CreateCustomerRequest) (*asaasclient.CustomerResponse, error)
	CreatePayment(ctx context.Context, req asaasclient.CreatePaymentRequest) (*asaasclient.PaymentResponse, error)
	GetPayment(ctx context.Context, paymentID string) (*domain.Charge, error)
}

// AuthProvider is the auth admin surface the orchestrator needs.
type AuthProvider interface {
	CreateUser(ctx context.Context, req authclient.CreateUserRequest) (*authclient.User, error)
	FindUserByEmail(ctx context.Context, email string) (*authclient.User, error)
}

// Store is the persistence surface the orchestrator needs.
type Store interface {
	GetPlanByID(ctx context.Context, planID string) (*domain.Plan, error)
	GetAffiliateByID(ctx context.Context, affiliateID string) (*domain.Affiliate, error)
	CreateProfile(ctx context.Context, profile domain.Profile) error
	CreateSubscription(ctx context.Context, sub domain.Subscription) error
	CreateCommission(ctx context.Context, commission domain.Commission) error
	UpsertPendingSubscription(ctx context.Context, rec domain.PendingSubscription) error
	UpsertPendingCompletion(ctx context.Context, rec domain.PendingCompletion) error
}

// FlowLogger is the observability surface the orchestrator needs. All calls
// are best-effort.
type FlowLogger interface {
	LogStarted(ctx context.Context, email, memberType, planID, affiliateID string)
	LogPaymentProcessed(ctx context.Context, email, customerID, paymentID string)
	LogPaymentFailed(ctx context.Context, email, paymentID, errMsg, errCode string)
	LogAccountCreated(ctx context.Context, email, userID string)
	LogAccountCreationFailed(ctx context.Context, email, paymentID, errMsg string)
	LogFallbackStored(ctx context.Context, email, paymentID, table string)
	LogCompleted(ctx context.Context, email, userID, paymentID string, elapsed time.Duration)
	LogFailed(ctx context.Context, email, errMsg string, elapsed time.Duration)
}

// EventPublisher emits domain events to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Routing keys for events emitted after a member becomes active, either by
// the live flow or by the reconciliation sweep.
const (
	RoutingKeyMemberRegistered = "member.registered"
	RoutingKeyMemberReconciled = "member.reconciled"
)

// Service orchestrates the payment-first registration flow.
type Service struct {
	gateway      PaymentGateway
	auth         AuthProvider
	store        Store
	flow         FlowLogger
	events       EventPublisher
	pollTimeout  time.Duration
	pollInterval time.Duration
}

// NewService wires the orchestrator.
func NewService(gateway PaymentGateway, auth AuthProvider, store Store, flow FlowLogger, events EventPublisher, pollTimeout, pollInterval time.Duration) *Service {
	return &Service{
		gateway:      gateway,
		auth:         auth,
		store:        store,
		flow:         flow,
		events:       events,
		pollTimeout:  pollTimeout,
		pollInterval: pollInterval,
	}
}

// stepLog accumulates the per-step processing log returned in every response.
type stepLog struct {
	steps []domain.ProcessingStep
}

func (l *stepLog) start(step, message string) {
	l.steps = append(l.steps, domain.ProcessingStep{
		Step:      step,
		Status:    domain.StepProcessing,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func (l *stepLog) complete(message string) {
	last := &l.steps[len(l.steps)-1]
	last.Status = domain.StepCompleted
	last.Message = message
	last.Timestamp = time.Now().UTC()
}

func (l *stepLog) fail(message string, err error) {
	last := &l.steps[len(l.steps)-1]
	last.Status = domain.StepFailed
	last.Message = message
	last.Timestamp = time.Now().UTC()
	if err != nil {
		last.Error = err.Error()
	}
}

func (l *stepLog) update(message string) {
	last := &l.steps[len(l.steps)-1]
	last.Message = message
	last.Timestamp = time.Now().UTC()
}

// Register runs the full payment-first flow for one applicant. The returned
// FlowResult always carries the step log, whatever the outcome.
func (s *Service) Register(ctx context.Context, req domain.RegistrationRequest) (*domain.FlowResult, Outcome) {
	started := time.Now()
	steps := &stepLog{}
	result := &domain.FlowResult{}

	finish := func(outcome Outcome, errMsg string) (*domain.FlowResult, Outcome) {
		result.Steps = steps.steps
		result.DurationMs = time.Since(started).Milliseconds()
		if errMsg != "" {
			result.Error = errMsg
		}
		if outcome != OutcomeSuccess {
			s.flow.LogFailed(ctx, req.Email, errMsg, time.Since(started))
		}
		return result, outcome
	}

	s.flow.LogStarted(ctx, req.Email, string(req.TipoMembro), req.PlanID, req.AffiliateID)

	// 1. Validation.
	steps.start(domain.StepValidation, "Validando dados do cadastro")
	validation := domain.ValidateRegistration(req)
	if !validation.IsValid {
		msg := strings.Join(validation.Errors, "; ")
		steps.fail("Dados inválidos", fmt.Errorf("%s", msg))
		return finish(OutcomeValidationFailed, msg)
	}
	plan, err := s.store.GetPlanByID(ctx, req.PlanID)
	if err != nil {
		steps.fail("Plano de filiação não encontrado", err)
		return finish(OutcomeValidationFailed, "Plano de filiação não encontrado")
	}
	steps.complete("Dados validados")

	// 2. Gateway customer.
	steps.start(domain.StepAsaasCustomer, "Criando cliente no gateway de pagamento")
	customer, err := s.gateway.CreateCustomer(ctx, buildCustomerRequest(req))
	if err != nil {
		steps.fail("Falha ao criar cliente no gateway", err)
		return finish(OutcomeInternalError, "Falha ao criar cliente de pagamento")
	}
	result.AsaasCustomerID = customer.ID
	steps.complete("Cliente criado no gateway")

	// 3. Charge.
	steps.start(domain.StepPayment, "Criando cobrança")
	payment, err := s.gateway.CreatePayment(ctx, buildPaymentRequest(req, plan, customer.ID))
	if err != nil {
		steps.fail("Falha ao criar cobrança", err)
		s.flow.LogPaymentFailed(ctx, req.Email, "", err.Error(), gatewayErrorCode(err))
		if isGatewayRejection(err) {
			return finish(OutcomePaymentRefused, "Pagamento recusado")
		}
		return finish(OutcomeInternalError, "Falha ao criar cobrança")
	}
	result.PaymentID = payment.ID
	steps.complete("Cobrança criada")

	// 4. Confirmation. Card charges may settle synchronously on creation.
	steps.start(domain.StepPaymentConfirmation, "Aguardando confirmação do pagamento")
	if !domain.ChargeStatus(payment.Status).IsSettled() {
		poll := PollPaymentStatus(ctx, s.gateway, payment.ID, s.pollTimeout, s.pollInterval, func(status domain.ChargeStatus) {
			steps.update(fmt.Sprintf("Status do pagamento: %s", status))
		})
		switch {
		case poll.TimedOut:
			steps.fail("Tempo de confirmação esgotado", nil)
			if err := s.storePendingSubscription(ctx, req, customer.ID, payment.ID, plan); err == nil {
				result.FallbackStored = true
				s.flow.LogFallbackStored(ctx, req.Email, payment.ID, "pending_subscriptions")
			}
			return finish(OutcomePollTimeout, "Pagamento ainda não confirmado. Seu cadastro será concluído automaticamente após a confirmação.")
		case poll.QueryFailed:
			// Status reads failed, but the charge itself may still settle.
			// Keep the registration recoverable and report an internal
			// error, not a refusal.
			steps.fail("Erro ao consultar status do pagamento", poll.Err)
			fallbackCtx := context.WithoutCancel(ctx)
			if err := s.storePendingSubscription(fallbackCtx, req, customer.ID, payment.ID, plan); err == nil {
				result.FallbackStored = true
				s.flow.LogFallbackStored(fallbackCtx, req.Email, payment.ID, "pending_subscriptions")
			}
			return finish(OutcomeInternalError, "Erro na confirmação do pagamento")
		case poll.Err != nil:
			if errors.Is(poll.Err, context.DeadlineExceeded) || errors.Is(poll.Err, context.Canceled) {
				// The request budget ran out before the charge settled. The
				// payment may still confirm, so treat it like a poll timeout.
				steps.fail("Tempo de confirmação esgotado", poll.Err)
				fallbackCtx := context.WithoutCancel(ctx)
				if err := s.storePendingSubscription(fallbackCtx, req, customer.ID, payment.ID, plan); err == nil {
					result.FallbackStored = true
					s.flow.LogFallbackStored(fallbackCtx, req.Email, payment.ID, "pending_subscriptions")
				}
				return finish(OutcomePollTimeout, "Pagamento ainda não confirmado. Seu cadastro será concluído automaticamente após a confirmação.")
			}
			steps.fail("Pagamento não aprovado", poll.Err)
			s.flow.LogPaymentFailed(ctx, req.Email, payment.ID, poll.Err.Error(), "")
			return finish(OutcomePaymentRefused, "Pagamento recusado")
		}
	}
	confirmedAt := time.Now().UTC()
	steps.complete("Pagamento confirmado")
	s.flow.LogPaymentProcessed(ctx, req.Email, customer.ID, payment.ID)

	// From here the applicant has paid. Any failure must leave a recoverable
	// record instead of losing the payment.

	// 5. Auth account.
	steps.start(domain.StepAccountCreation, "Criando conta de acesso")
	user, err := s.auth.CreateUser(ctx, authclient.CreateUserRequest{
		Email:        req.Email,
		Password:     req.Password,
		EmailConfirm: true,
		UserMetadata: authclient.UserMetadata{
			Nome:        req.Nome,
			CPF:         req.CPF,
			Telefone:    req.Telefone,
			TipoMembro:  string(req.TipoMembro),
			FlowVersion: domain.FlowVersion,
		},
	})
	if err != nil {
		steps.fail("Falha ao criar conta de acesso", err)
		s.flow.LogAccountCreationFailed(ctx, req.Email, payment.ID, err.Error())
		return s.postPaymentFailure(ctx, finish, result, req, customer.ID, payment.ID, err)
	}
	result.UserID = user.ID
	steps.complete("Conta criada")
	s.flow.LogAccountCreated(ctx, req.Email, user.ID)

	// 6. Profile, subscription and commission.
	steps.start(domain.StepProfileSubscription, "Registrando perfil e assinatura")
	if err := createMemberRecords(ctx, s.store, req, plan, user.ID, customer.ID, payment.ID, confirmedAt, nil); err != nil {
		steps.fail("Falha ao registrar perfil e assinatura", err)
		return s.postPaymentFailure(ctx, finish, result, req, customer.ID, payment.ID, err)
	}
	steps.complete("Perfil e assinatura registrados")

	steps.start(domain.StepDone, "Cadastro concluído")
	steps.complete("Cadastro concluído")

	s.publishMemberRegistered(ctx, user.ID, req, payment.ID)
	s.flow.LogCompleted(ctx, req.Email, user.ID, payment.ID, time.Since(started))

	result.Success = true
	result.Steps = steps.steps
	result.DurationMs = time.Since(started).Milliseconds()
	return result, OutcomeSuccess
}

// postPaymentFailure stores a pending_completions fallback record and returns
// the manual-intervention failure envelope.
func (s *Service) postPaymentFailure(ctx context.Context, finish func(Outcome, string) (*domain.FlowResult, Outcome), result *domain.FlowResult, req domain.RegistrationRequest, customerID, paymentID string, cause error) (*domain.FlowResult, Outcome) {
	result.RequiresManualIntervention = true
	// The failure may be the request deadline itself; the fallback write must
	// still go through.
	fallbackCtx := context.WithoutCancel(ctx)
	if err := s.storePendingCompletion(fallbackCtx, req, customerID, paymentID); err == nil {
		result.FallbackStored = true
		s.flow.LogFallbackStored(fallbackCtx, req.Email, paymentID, "pending_completions")
	}
	return finish(OutcomeInternalError, fmt.Sprintf("Pagamento confirmado, mas o cadastro não pôde ser concluído: %v", cause))
}

// createMemberRecords writes the profile, subscription and optional affiliate
// commission for a confirmed payment. extra is merged into the subscription's
// processing context. Shared between the live flow and reconciliation.
func createMemberRecords(ctx context.Context, st Store, req domain.RegistrationRequest, plan *domain.Plan, userID, customerID, paymentID string, confirmedAt time.Time, extra map[string]any) error {
	profile := domain.Profile{
		ID:                 userID,
		Nome:               req.Nome,
		Email:              req.Email,
		CPF:                req.CPF,
		Telefone:           req.Telefone,
		Endereco:           req.Endereco,
		TipoMembro:         req.TipoMembro,
		Status:             domain.ProfileStatusAtivo,
		AsaasCustomerID:    customerID,
		PaymentConfirmedAt: &confirmedAt,
		FlowVersion:        domain.FlowVersion,
	}
	if err := st.CreateProfile(ctx, profile); err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	sub := domain.Subscription{
		UserID:          userID,
		PlanID:          plan.ID,
		Status:          "active",
		StartDate:       confirmedAt,
		NextBillingDate: domain.NextBillingDate(plan.Cycle, confirmedAt),
		AsaasPaymentID:  paymentID,
		ProcessingContext: domain.ProcessingContext{
			FlowVersion:        domain.FlowVersion,
			PaymentConfirmedAt: confirmedAt,
			AffiliateID:        req.AffiliateID,
			Extra:              extra,
		},
	}
	if err := st.CreateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	if req.AffiliateID != "" {
		createCommission(ctx, st, req.AffiliateID, userID, paymentID, plan.Value)
	}
	return nil
}

// createCommission is best-effort. A commission write failure must not undo a
// registration the member already paid for.
func createCommission(ctx context.Context, st Store, affiliateID, userID, paymentID string, amount float64) {
	affiliate, err := st.GetAffiliateByID(ctx, affiliateID)
	if err != nil {
		log.Printf("level=warn component=registration_service msg=\"affiliate lookup failed, skipping commission\" affiliate_id=%s error=%v", affiliateID, err)
		return
	}
	commission := domain.Commission{
		AffiliateID: affiliate.ID,
		UserID:      userID,
		PaymentID:   paymentID,
		Amount:      amount * affiliate.CommissionPercentage / 100,
		Percentage:  affiliate.CommissionPercentage,
		Status:      "pending",
		Type:        "filiacao",
	}
	if err := st.CreateCommission(ctx, commission); err != nil {
		log.Printf("level=warn component=registration_service msg=\"failed to create commission\" affiliate_id=%s error=%v", affiliateID, err)
	}
}

func (s *Service) storePendingSubscription(ctx context.Context, req domain.RegistrationRequest, customerID, paymentID string, plan *domain.Plan) error {
	hash, err := hashPassword(req.Password)
	if err != nil {
		return err
	}
	rec := domain.PendingSubscription{
		PaymentID:  paymentID,
		CustomerID: customerID,
		UserData: domain.PendingUserData{
			Email:        req.Email,
			PasswordHash: hash,
			Nome:         req.Nome,
			CPF:          req.CPF,
			Telefone:     req.Telefone,
			Endereco:     req.Endereco,
			TipoMembro:   req.TipoMembro,
		},
		SubscriptionData: domain.PendingSubscriptionData{
			PlanID:      req.PlanID,
			AffiliateID: req.AffiliateID,
		},
		PaymentData: domain.PendingPaymentData{
			Amount:        plan.Value,
			PaymentMethod: req.PaymentMethod,
		},
		Status: domain.PendingStatusPending,
	}
	if err := s.store.UpsertPendingSubscription(ctx, rec); err != nil {
		log.Printf("level=error component=registration_service msg=\"failed to store pending subscription fallback\" payment_id=%s error=%v", paymentID, err)
		return err
	}
	return nil
}

func (s *Service) storePendingCompletion(ctx context.Context, req domain.RegistrationRequest, customerID, paymentID string) error {
	hash, err := hashPassword(req.Password)
	if err != nil {
		return err
	}
	rec := domain.PendingCompletion{
		PaymentID:     paymentID,
		CustomerID:    customerID,
		Email:         req.Email,
		PasswordHash:  hash,
		FullName:      req.Nome,
		CPF:           req.CPF,
		Phone:         req.Telefone,
		MemberTypeID:  string(req.TipoMembro),
		PlanID:        req.PlanID,
		AffiliateCode: req.AffiliateID,
		ProfileData: domain.PendingProfileData{
			Endereco:   req.Endereco,
			TipoMembro: req.TipoMembro,
		},
		Status: domain.PendingStatusPending,
	}
	if err := s.store.UpsertPendingCompletion(ctx, rec); err != nil {
		log.Printf("level=error component=registration_service msg=\"failed to store pending completion fallback\" payment_id=%s error=%v", paymentID, err)
		return err
	}
	return nil
}

func (s *Service) publishMemberRegistered(ctx context.Context, userID string, req domain.RegistrationRequest, paymentID string) {
	if s.events == nil {
		return
	}
	body := fmt.Sprintf(`{"user_id":%q,"email":%q,"tipo_membro":%q,"plan_id":%q,"payment_id":%q}`,
		userID, req.Email, req.TipoMembro, req.PlanID, paymentID)
	if err := s.events.Publish(ctx, RoutingKeyMemberRegistered, []byte(body)); err != nil {
		log.Printf("level=warn component=registration_service msg=\"failed to publish member.registered event\" user_id=%s error=%v", userID, err)
	}
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func buildCustomerRequest(req domain.RegistrationRequest) asaasclient.CreateCustomerRequest {
	return asaasclient.CreateCustomerRequest{
		Name:                 req.Nome,
		CpfCnpj:              digitsOf(req.CPF),
		Email:                req.Email,
		Phone:                digitsOf(req.Telefone),
		MobilePhone:          digitsOf(req.Telefone),
		Address:              req.Endereco.Logradouro,
		AddressNumber:        req.Endereco.Numero,
		Complement:           req.Endereco.Complemento,
		Province:             req.Endereco.Bairro,
		PostalCode:           digitsOf(req.Endereco.CEP),
		City:                 req.Endereco.Cidade,
		State:                req.Endereco.Estado,
		Country:              "Brasil",
		ExternalReference:    uuid.NewString(),
		NotificationDisabled: false,
	}
}

func buildPaymentRequest(req domain.RegistrationRequest, plan *domain.Plan, customerID string) asaasclient.CreatePaymentRequest {
	payment := asaasclient.CreatePaymentRequest{
		Customer:          customerID,
		BillingType:       string(req.PaymentMethod),
		Value:             plan.Value,
		DueDate:           time.Now().Format("2006-01-02"),
		Description:       fmt.Sprintf("Filiação COMADEMIG - %s", plan.Name),
		ExternalReference: uuid.NewString(),
	}
	if req.PaymentMethod == domain.PaymentMethodCreditCard && req.CardData != nil {
		payment.CreditCard = &asaasclient.CreditCard{
			HolderName:  req.CardData.HolderName,
			Number:      req.CardData.Number,
			ExpiryMonth: req.CardData.ExpiryMonth,
			ExpiryYear:  req.CardData.ExpiryYear,
			CCV:         req.CardData.CCV,
		}
		payment.CreditCardHolderInfo = &asaasclient.CreditCardHolderInfo{
			Name:          req.Nome,
			Email:         req.Email,
			CpfCnpj:       digitsOf(req.CPF),
			PostalCode:    digitsOf(req.Endereco.CEP),
			AddressNumber: req.Endereco.Numero,
			Phone:         digitsOf(req.Telefone),
			MobilePhone:   digitsOf(req.Telefone),
		}
	}
	return payment
}

// isGatewayRejection distinguishes a 4xx rejection (declined card, invalid
// billing data) from infrastructure failures.
func isGatewayRejection(err error) bool {
	var apiErr *asaasclient.ErrorResponse
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

func gatewayErrorCode(err error) string {
	var apiErr *asaasclient.ErrorResponse
	if errors.As(err, &apiErr) && len(apiErr.Errors) > 0 {
		return apiErr.Errors[0].Code
	}
	return ""
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

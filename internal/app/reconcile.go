/**
 * @description
 * Reconciliation of registrations the live flow lost somewhere between a paid
 * charge and a finished account. Three discovery sources feed a single queue:
 * settled gateway charges with no profile, profiles stuck in pending status,
 * and the fallback tables written by the orchestrator.
 */
package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/rcarraroia/comademig-sub001/internal/domain"
	"github.com/rcarraroia/comademig-sub001/internal/store"
	"github.com/rcarraroia/comademig-sub001/pkg/authclient"
)

// ReconcileStore is the persistence surface the reconciler needs.
type ReconcileStore interface {
	Store
	ListSettledChargesWithoutProfile(ctx context.Context, limit int) ([]store.SettledChargeRow, error)
	ListStaleProfiles(ctx context.Context, olderThan time.Time, limit int) ([]store.StaleProfileRow, error)
	ListPendingSubscriptions(ctx context.Context, limit int) ([]domain.PendingSubscription, error)
	ListPendingCompletions(ctx context.Context, limit int) ([]domain.PendingCompletion, error)
	GetPendingSubscription(ctx context.Context, paymentID string) (*domain.PendingSubscription, error)
	GetPendingCompletion(ctx context.Context, paymentID string) (*domain.PendingCompletion, error)
	GetSettledChargeForEmail(ctx context.Context, email string) (*domain.Charge, error)
	MarkPendingSubscription(ctx context.Context, paymentID string, status domain.PendingStatus) error
	MarkPendingCompletion(ctx context.Context, paymentID string, status domain.PendingStatus) error
	ActivateProfile(ctx context.Context, profileID string, confirmedAt time.Time) error
}

// Reconciler completes registrations the live flow could not finish.
type Reconciler struct {
	gateway     PaymentGateway
	auth        AuthProvider
	store       ReconcileStore
	events      EventPublisher
	staleCutoff time.Duration
	batchLimit  int
}

// NewReconciler wires the reconciliation service.
func NewReconciler(gateway PaymentGateway, auth AuthProvider, st ReconcileStore, events EventPublisher, staleCutoff time.Duration, batchLimit int) *Reconciler {
	return &Reconciler{
		gateway:     gateway,
		auth:        auth,
		store:       st,
		events:      events,
		staleCutoff: staleCutoff,
		batchLimit:  batchLimit,
	}
}

// FindPending discovers stuck registrations from all three sources and
// normalizes them. A discovery failure in one source does not hide the others.
func (r *Reconciler) FindPending(ctx context.Context) ([]domain.PendingRegistration, error) {
	var pending []domain.PendingRegistration

	charges, err := r.store.ListSettledChargesWithoutProfile(ctx, r.batchLimit)
	if err != nil {
		log.Printf("level=warn component=reconciler msg=\"failed to list settled charges without profile\" error=%v", err)
	}
	for _, c := range charges {
		pending = append(pending, domain.PendingRegistration{
			ID:              "charge:" + c.ChargeID,
			Source:          domain.SourcePaidCharge,
			UserEmail:       c.CustomerEmail,
			UserData: domain.PendingUserData{
				Email:      c.CustomerEmail,
				Nome:       c.CustomerName,
				CPF:        c.CustomerCPF,
				Telefone:   c.CustomerPhone,
				TipoMembro: domain.MemberType(c.MemberType),
			},
			PlanID:          c.PlanID,
			AffiliateID:     c.AffiliateID,
			AsaasCustomerID: c.AsaasCustomerID,
			AsaasPaymentID:  c.AsaasID,
			Stage:           domain.StagePaymentConfirmed,
			CreatedAt:       c.CreatedAt,
			UpdatedAt:       c.UpdatedAt,
		})
	}

	profiles, err := r.store.ListStaleProfiles(ctx, time.Now().Add(-r.staleCutoff), r.batchLimit)
	if err != nil {
		log.Printf("level=warn component=reconciler msg=\"failed to list stale profiles\" error=%v", err)
	}
	for _, p := range profiles {
		pending = append(pending, domain.PendingRegistration{
			ID:        "profile:" + p.ID,
			Source:    domain.SourceStaleProfile,
			UserEmail: p.Email,
			UserData: domain.PendingUserData{
				Email:      p.Email,
				Nome:       p.Nome,
				CPF:        p.CPF,
				Telefone:   p.Telefone,
				Endereco:   p.Endereco,
				TipoMembro: domain.MemberType(p.TipoMembro),
			},
			PlanID:    p.PlanID,
			ProfileID: p.ID,
			Stage:     domain.StagePendingPayment,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		})
	}

	subs, err := r.store.ListPendingSubscriptions(ctx, r.batchLimit)
	if err != nil {
		log.Printf("level=warn component=reconciler msg=\"failed to list pending subscriptions\" error=%v", err)
	}
	for _, rec := range subs {
		pending = append(pending, domain.PendingRegistration{
			ID:              "pending_subscription:" + rec.PaymentID,
			Source:          domain.SourceFallbackStore,
			UserEmail:       rec.UserData.Email,
			UserData:        rec.UserData,
			PlanID:          rec.SubscriptionData.PlanID,
			AffiliateID:     rec.SubscriptionData.AffiliateID,
			AsaasCustomerID: rec.CustomerID,
			AsaasPaymentID:  rec.PaymentID,
			Stage:           domain.StagePendingPayment,
			RetryCount:      rec.RetryCount,
			CreatedAt:       rec.CreatedAt,
			UpdatedAt:       rec.UpdatedAt,
		})
	}

	completions, err := r.store.ListPendingCompletions(ctx, r.batchLimit)
	if err != nil {
		log.Printf("level=warn component=reconciler msg=\"failed to list pending completions\" error=%v", err)
	}
	for _, rec := range completions {
		pending = append(pending, domain.PendingRegistration{
			ID:        "pending_completion:" + rec.PaymentID,
			Source:    domain.SourceFallbackStore,
			UserEmail: rec.Email,
			UserData: domain.PendingUserData{
				Email:        rec.Email,
				PasswordHash: rec.PasswordHash,
				Nome:         rec.FullName,
				CPF:          rec.CPF,
				Telefone:     rec.Phone,
				Endereco:     rec.ProfileData.Endereco,
				TipoMembro:   domain.MemberType(rec.MemberTypeID),
			},
			PlanID:          rec.PlanID,
			AffiliateID:     rec.AffiliateCode,
			AsaasCustomerID: rec.CustomerID,
			AsaasPaymentID:  rec.PaymentID,
			Stage:           domain.StageAccountCreationFailed,
			RetryCount:      rec.RetryCount,
			CreatedAt:       rec.CreatedAt,
			UpdatedAt:       rec.UpdatedAt,
		})
	}

	return pending, nil
}

// ProcessAll runs one reconciliation sweep. One registration's failure never
// aborts the batch.
func (r *Reconciler) ProcessAll(ctx context.Context) (*domain.ReconcileResult, error) {
	pending, err := r.FindPending(ctx)
	if err != nil {
		return nil, err
	}

	result := &domain.ReconcileResult{TotalFound: len(pending)}
	for _, reg := range pending {
		if err := r.processOne(ctx, reg); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, domain.ReconcileError{
				RegistrationID: reg.ID,
				Error:          err.Error(),
			})
			log.Printf("level=warn component=reconciler msg=\"failed to reconcile registration\" registration_id=%s error=%v", reg.ID, err)
			continue
		}
		result.Completed++
	}
	return result, nil
}

func (r *Reconciler) processOne(ctx context.Context, reg domain.PendingRegistration) error {
	switch reg.Stage {
	case domain.StagePendingPayment:
		return r.processPendingPayment(ctx, reg)
	case domain.StagePaymentConfirmed, domain.StageAccountCreationFailed:
		return r.completeRegistration(ctx, reg)
	default:
		return fmt.Errorf("unknown reconciliation stage: %s", reg.Stage)
	}
}

// processPendingPayment verifies whether the charge has settled since the live
// flow gave up, and finishes the registration when it has.
func (r *Reconciler) processPendingPayment(ctx context.Context, reg domain.PendingRegistration) error {
	if reg.AsaasPaymentID != "" {
		charge, err := r.gateway.GetPayment(ctx, reg.AsaasPaymentID)
		if err != nil {
			return fmt.Errorf("failed to check payment status: %w", err)
		}
		if !charge.Status.IsSettled() {
			if charge.Status == domain.ChargeRefused || charge.Status == domain.ChargeRefunded {
				return r.markSource(ctx, reg, domain.PendingStatusFailed)
			}
			// Still waiting on the gateway. Re-enqueue with a bumped retry
			// counter and surface the wait in the batch error list.
			if err := r.markSource(ctx, reg, domain.PendingStatusPending); err != nil {
				log.Printf("level=warn component=reconciler msg=\"failed to re-enqueue fallback record\" registration_id=%s error=%v", reg.ID, err)
			}
			return fmt.Errorf("payment %s not settled yet (status %s)", reg.AsaasPaymentID, charge.Status)
		}
		return r.completeRegistration(ctx, reg)
	}

	// Stale profile with no charge reference. Activate only if a settled
	// charge exists for the same email.
	charge, err := r.store.GetSettledChargeForEmail(ctx, reg.UserEmail)
	if err != nil {
		return fmt.Errorf("no settled payment found for %s: %w", reg.UserEmail, err)
	}
	reg.AsaasPaymentID = charge.ID
	return r.completeRegistration(ctx, reg)
}

// completeRegistration finishes a registration whose payment is settled:
// ensures the auth account exists, writes or activates the profile, and
// creates the subscription and commission.
func (r *Reconciler) completeRegistration(ctx context.Context, reg domain.PendingRegistration) error {
	confirmedAt := time.Now().UTC()

	user, err := r.auth.FindUserByEmail(ctx, reg.UserEmail)
	if err != nil {
		return fmt.Errorf("failed to look up auth account: %w", err)
	}
	if user == nil {
		user, err = r.createAccount(ctx, reg)
		if err != nil {
			if markErr := r.markSource(ctx, reg, domain.PendingStatusFailed); markErr != nil {
				log.Printf("level=warn component=reconciler msg=\"failed to mark fallback record\" registration_id=%s error=%v", reg.ID, markErr)
			}
			return fmt.Errorf("failed to create auth account: %w", err)
		}
	}

	if reg.ProfileID != "" {
		if err := r.store.ActivateProfile(ctx, reg.ProfileID, confirmedAt); err != nil {
			return fmt.Errorf("failed to activate profile: %w", err)
		}
	} else {
		planID := reg.PlanID
		if planID == "" {
			return fmt.Errorf("registration %s has no plan reference", reg.ID)
		}
		plan, err := r.store.GetPlanByID(ctx, planID)
		if err != nil {
			return fmt.Errorf("failed to load plan: %w", err)
		}

		extra := map[string]any{"reconciled": true, "source": string(reg.Source)}
		if reg.ManualRun {
			extra["manual_completion"] = true
		}
		if reg.AdminNotes != "" {
			extra["admin_notes"] = reg.AdminNotes
		}

		req := domain.RegistrationRequest{
			Nome:        reg.UserData.Nome,
			Email:       reg.UserData.Email,
			CPF:         reg.UserData.CPF,
			Telefone:    reg.UserData.Telefone,
			Endereco:    reg.UserData.Endereco,
			TipoMembro:  reg.UserData.TipoMembro,
			PlanID:      plan.ID,
			AffiliateID: reg.AffiliateID,
		}
		if err := createMemberRecords(ctx, r.store, req, plan, user.ID, reg.AsaasCustomerID, reg.AsaasPaymentID, confirmedAt, extra); err != nil {
			if markErr := r.markSource(ctx, reg, domain.PendingStatusFailed); markErr != nil {
				log.Printf("level=warn component=reconciler msg=\"failed to mark fallback record\" registration_id=%s error=%v", reg.ID, markErr)
			}
			return err
		}
	}

	if err := r.markSource(ctx, reg, domain.PendingStatusCompleted); err != nil {
		log.Printf("level=warn component=reconciler msg=\"failed to mark fallback record completed\" registration_id=%s error=%v", reg.ID, err)
	}

	r.publishRegistered(ctx, user.ID, reg)
	return nil
}

// createAccount creates the auth account for a reconciled registration. The
// original password is only ever stored hashed, so a temporary one is issued
// and the member must reset it on first login.
func (r *Reconciler) createAccount(ctx context.Context, reg domain.PendingRegistration) (*authclient.User, error) {
	password, err := generateTempPassword()
	if err != nil {
		return nil, err
	}
	return r.auth.CreateUser(ctx, authclient.CreateUserRequest{
		Email:        reg.UserEmail,
		Password:     password,
		EmailConfirm: true,
		UserMetadata: authclient.UserMetadata{
			Nome:                reg.UserData.Nome,
			CPF:                 reg.UserData.CPF,
			Telefone:            reg.UserData.Telefone,
			TipoMembro:          string(reg.UserData.TipoMembro),
			FlowVersion:         domain.FlowVersion,
			MigratedFromOldFlow: true,
		},
	})
}

// markSource advances the fallback row a registration came from. Discovery
// sources without a fallback row (paid charges, stale profiles) are no-ops.
func (r *Reconciler) markSource(ctx context.Context, reg domain.PendingRegistration, status domain.PendingStatus) error {
	if reg.Source != domain.SourceFallbackStore {
		return nil
	}
	switch reg.Stage {
	case domain.StageAccountCreationFailed:
		return r.store.MarkPendingCompletion(ctx, reg.AsaasPaymentID, status)
	default:
		return r.store.MarkPendingSubscription(ctx, reg.AsaasPaymentID, status)
	}
}

// CompleteManually force-processes one fallback record by its charge id,
// recording who asked for it and why. Both fallback tables are checked.
func (r *Reconciler) CompleteManually(ctx context.Context, paymentID, adminID, notes string) error {
	var reg domain.PendingRegistration

	rec, err := r.store.GetPendingSubscription(ctx, paymentID)
	if err == nil {
		reg = domain.PendingRegistration{
			ID:              "pending_subscription:" + rec.PaymentID,
			Source:          domain.SourceFallbackStore,
			UserEmail:       rec.UserData.Email,
			UserData:        rec.UserData,
			PlanID:          rec.SubscriptionData.PlanID,
			AffiliateID:     rec.SubscriptionData.AffiliateID,
			AsaasCustomerID: rec.CustomerID,
			AsaasPaymentID:  rec.PaymentID,
			Stage:           domain.StagePendingPayment,
		}
	} else {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		comp, compErr := r.store.GetPendingCompletion(ctx, paymentID)
		if compErr != nil {
			return compErr
		}
		reg = domain.PendingRegistration{
			ID:        "pending_completion:" + comp.PaymentID,
			Source:    domain.SourceFallbackStore,
			UserEmail: comp.Email,
			UserData: domain.PendingUserData{
				Email:        comp.Email,
				PasswordHash: comp.PasswordHash,
				Nome:         comp.FullName,
				CPF:          comp.CPF,
				Telefone:     comp.Phone,
				Endereco:     comp.ProfileData.Endereco,
				TipoMembro:   domain.MemberType(comp.MemberTypeID),
			},
			PlanID:          comp.PlanID,
			AffiliateID:     comp.AffiliateCode,
			AsaasCustomerID: comp.CustomerID,
			AsaasPaymentID:  comp.PaymentID,
			Stage:           domain.StageAccountCreationFailed,
		}
	}

	reg.ManualRun = true
	reg.AdminNotes = notes
	if adminID != "" {
		reg.AdminNotes = fmt.Sprintf("%s (por %s)", notes, adminID)
	}
	return r.processOne(ctx, reg)
}

// Stats reports the current backlog of incomplete registrations.
func (r *Reconciler) Stats(ctx context.Context) (*domain.ReconcileStats, error) {
	pending, err := r.FindPending(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.ReconcileStats{
		TotalIncomplete: len(pending),
		ByStatus:        make(map[string]int),
	}
	for _, reg := range pending {
		stats.ByStatus[string(reg.Stage)]++
		if reg.CreatedAt.IsZero() {
			continue
		}
		created := reg.CreatedAt
		if stats.OldestRegistration == nil || created.Before(*stats.OldestRegistration) {
			stats.OldestRegistration = &created
		}
		if stats.NewestRegistration == nil || created.After(*stats.NewestRegistration) {
			stats.NewestRegistration = &created
		}
	}
	return stats, nil
}

const tempPasswordAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateTempPassword issues a 12-character random password from an alphabet
// without look-alike characters.
func generateTempPassword() (string, error) {
	out := make([]byte, 12)
	max := big.NewInt(int64(len(tempPasswordAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate temporary password: %w", err)
		}
		out[i] = tempPasswordAlphabet[n.Int64()]
	}
	return string(out), nil
}

func (r *Reconciler) publishRegistered(ctx context.Context, userID string, reg domain.PendingRegistration) {
	if r.events == nil {
		return
	}
	body := fmt.Sprintf(`{"user_id":%q,"email":%q,"tipo_membro":%q,"plan_id":%q,"payment_id":%q,"reconciled":true}`,
		userID, reg.UserEmail, reg.UserData.TipoMembro, reg.PlanID, reg.AsaasPaymentID)
	if err := r.events.Publish(ctx, RoutingKeyMemberReconciled, []byte(body)); err != nil {
		log.Printf("level=warn component=reconciler msg=\"failed to publish member.reconciled event\" user_id=%s error=%v", userID, err)
	}
}

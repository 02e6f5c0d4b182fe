/**
 * @description
 * Member-record queries: subscription plans, profiles, user subscriptions,
 * affiliates and commissions.
 */
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rcarraroia/comademig-sub001/internal/domain"
)

// GetPlanByID retrieves a subscription plan.
func (r *Repository) GetPlanByID(ctx context.Context, planID string) (*domain.Plan, error) {
	var plan domain.Plan
	query := `
        SELECT id, name, value, cycle
        FROM subscription_plans
        WHERE id = $1
    `
	err := r.db.QueryRow(ctx, query, planID).Scan(
		&plan.ID,
		&plan.Name,
		&plan.Value,
		&plan.Cycle,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("plan %s: %w", planID, ErrNotFound)
		}
		return nil, err
	}
	return &plan, nil
}

// GetAffiliateByID retrieves an affiliate and its commission percentage.
func (r *Repository) GetAffiliateByID(ctx context.Context, affiliateID string) (*domain.Affiliate, error) {
	var affiliate domain.Affiliate
	query := `
        SELECT id, COALESCE(commission_percentage, 10)
        FROM affiliates
        WHERE id = $1
    `
	err := r.db.QueryRow(ctx, query, affiliateID).Scan(
		&affiliate.ID,
		&affiliate.CommissionPercentage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("affiliate %s: %w", affiliateID, ErrNotFound)
		}
		return nil, err
	}
	return &affiliate, nil
}

// CreateProfile inserts a member profile row.
func (r *Repository) CreateProfile(ctx context.Context, profile domain.Profile) error {
	endereco, err := json.Marshal(profile.Endereco)
	if err != nil {
		return fmt.Errorf("failed to marshal address: %w", err)
	}

	query := `
        INSERT INTO profiles (id, nome, email, cpf, telefone, endereco, tipo_membro,
                              status, asaas_customer_id, payment_confirmed_at, registration_flow_version)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `
	_, err = r.db.Exec(ctx, query,
		profile.ID,
		profile.Nome,
		profile.Email,
		profile.CPF,
		profile.Telefone,
		endereco,
		profile.TipoMembro,
		profile.Status,
		profile.AsaasCustomerID,
		profile.PaymentConfirmedAt,
		profile.FlowVersion,
	)
	return err
}

// ActivateProfile flips a profile to active and stamps the payment
// confirmation time. Used by the reconciliation sweep when the account
// already exists.
func (r *Repository) ActivateProfile(ctx context.Context, profileID string, confirmedAt time.Time) error {
	query := `
        UPDATE profiles
        SET status = $2, payment_confirmed_at = $3, registration_flow_version = $4, updated_at = NOW()
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query, profileID, domain.ProfileStatusAtivo, confirmedAt, domain.FlowVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profile %s: %w", profileID, ErrNotFound)
	}
	return nil
}

// CreateSubscription inserts a user subscription row.
func (r *Repository) CreateSubscription(ctx context.Context, sub domain.Subscription) error {
	contextBlob, err := json.Marshal(sub.ProcessingContext)
	if err != nil {
		return fmt.Errorf("failed to marshal processing context: %w", err)
	}

	query := `
        INSERT INTO user_subscriptions (user_id, plan_id, status, start_date,
                                        next_billing_date, asaas_payment_id, processing_context)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err = r.db.Exec(ctx, query,
		sub.UserID,
		sub.PlanID,
		sub.Status,
		sub.StartDate,
		sub.NextBillingDate,
		sub.AsaasPaymentID,
		contextBlob,
	)
	return err
}

// CreateCommission inserts an affiliate commission row in pending status.
func (r *Repository) CreateCommission(ctx context.Context, commission domain.Commission) error {
	query := `
        INSERT INTO commissions (affiliate_id, user_id, payment_id, amount, percentage, status, type)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := r.db.Exec(ctx, query,
		commission.AffiliateID,
		commission.UserID,
		commission.PaymentID,
		commission.Amount,
		commission.Percentage,
		commission.Status,
		commission.Type,
	)
	return err
}

// SettledChargeRow is one gateway charge marked settled with no matching
// profile, as discovered by the reconciliation sweep.
type SettledChargeRow struct {
	ChargeID        string
	AsaasID         string
	CustomerName    string
	CustomerEmail   string
	CustomerCPF     string
	CustomerPhone   string
	AsaasCustomerID string
	Value           float64
	PaymentMethod   string
	MemberType      string
	PlanID          string
	AffiliateID     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ListSettledChargesWithoutProfile finds charges the gateway recorded as
// RECEIVED/CONFIRMED for which no profile exists.
func (r *Repository) ListSettledChargesWithoutProfile(ctx context.Context, limit int) ([]SettledChargeRow, error) {
	query := `
        SELECT c.id, c.asaas_id, COALESCE(c.customer_name, ''), COALESCE(c.customer_email, ''),
               COALESCE(c.customer_cpf, ''), COALESCE(c.customer_phone, ''),
               COALESCE(c.asaas_customer_id, ''), c.value, COALESCE(c.payment_method, ''),
               COALESCE(c.metadata->>'member_type', 'membro'),
               COALESCE(c.metadata->>'plan_id', ''),
               COALESCE(c.metadata->>'affiliate_id', ''),
               c.created_at, c.updated_at
        FROM asaas_cobrancas c
        LEFT JOIN profiles p ON p.email = c.customer_email
        WHERE c.status IN ('RECEIVED', 'CONFIRMED') AND p.id IS NULL
        ORDER BY c.created_at
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var charges []SettledChargeRow
	for rows.Next() {
		var c SettledChargeRow
		if err := rows.Scan(
			&c.ChargeID, &c.AsaasID, &c.CustomerName, &c.CustomerEmail,
			&c.CustomerCPF, &c.CustomerPhone, &c.AsaasCustomerID, &c.Value,
			&c.PaymentMethod, &c.MemberType, &c.PlanID, &c.AffiliateID,
			&c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		charges = append(charges, c)
	}
	return charges, rows.Err()
}

// GetSettledChargeForEmail finds the most recent settled charge recorded for
// an email. Used to decide whether a stale pending profile can be activated.
func (r *Repository) GetSettledChargeForEmail(ctx context.Context, email string) (*domain.Charge, error) {
	var charge domain.Charge
	query := `
        SELECT asaas_id, status, value
        FROM asaas_cobrancas
        WHERE customer_email = $1 AND status IN ('RECEIVED', 'CONFIRMED')
        ORDER BY created_at DESC
        LIMIT 1
    `
	err := r.db.QueryRow(ctx, query, email).Scan(&charge.ID, &charge.Status, &charge.Value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("settled charge for %s: %w", email, ErrNotFound)
		}
		return nil, err
	}
	return &charge, nil
}

// StaleProfileRow is a profile stuck in pending status past the staleness
// threshold.
type StaleProfileRow struct {
	ID         string
	Nome       string
	Email      string
	CPF        string
	Telefone   string
	Endereco   domain.Address
	TipoMembro string
	PlanID     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ListStaleProfiles finds profiles still pending older than the given cutoff.
func (r *Repository) ListStaleProfiles(ctx context.Context, olderThan time.Time, limit int) ([]StaleProfileRow, error) {
	query := `
        SELECT p.id, p.nome, p.email, COALESCE(p.cpf, ''), COALESCE(p.telefone, ''),
               COALESCE(p.endereco, '{}'::jsonb), COALESCE(p.tipo_membro, 'membro'),
               COALESCE(s.plan_id, ''), p.created_at, p.updated_at
        FROM profiles p
        LEFT JOIN user_subscriptions s ON s.user_id = p.id
        WHERE p.status = 'pendente' AND p.created_at < $1
        ORDER BY p.created_at
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []StaleProfileRow
	for rows.Next() {
		var p StaleProfileRow
		var endereco []byte
		if err := rows.Scan(
			&p.ID, &p.Nome, &p.Email, &p.CPF, &p.Telefone,
			&endereco, &p.TipoMembro, &p.PlanID, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(endereco, &p.Endereco); err != nil {
			return nil, fmt.Errorf("failed to decode address for profile %s: %w", p.ID, err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

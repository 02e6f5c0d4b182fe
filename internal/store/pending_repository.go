/**
 * @description
 * Fallback-store persistence: pending_subscriptions (poll timed out before any
 * account existed) and pending_completions (account or profile work failed
 * after the payment settled). Both tables are keyed by the gateway charge id
 * so retries of the same registration collapse into one row.
 */
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rcarraroia/comademig-sub001/internal/domain"
)

// UpsertPendingSubscription records a registration whose payment confirmation
// timed out. Replays for the same charge update the snapshot in place.
func (r *Repository) UpsertPendingSubscription(ctx context.Context, rec domain.PendingSubscription) error {
	userData, err := json.Marshal(rec.UserData)
	if err != nil {
		return fmt.Errorf("failed to marshal user data: %w", err)
	}
	subData, err := json.Marshal(rec.SubscriptionData)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription data: %w", err)
	}
	payData, err := json.Marshal(rec.PaymentData)
	if err != nil {
		return fmt.Errorf("failed to marshal payment data: %w", err)
	}

	query := `
        INSERT INTO pending_subscriptions (payment_id, customer_id, user_data, subscription_data, payment_data, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (payment_id)
        DO UPDATE SET customer_id = EXCLUDED.customer_id,
                      user_data = EXCLUDED.user_data,
                      subscription_data = EXCLUDED.subscription_data,
                      payment_data = EXCLUDED.payment_data,
                      status = EXCLUDED.status,
                      updated_at = NOW()
    `
	_, err = r.db.Exec(ctx, query, rec.PaymentID, rec.CustomerID, userData, subData, payData, rec.Status)
	return err
}

// UpsertPendingCompletion records a registration whose payment settled but
// whose account or profile work failed.
func (r *Repository) UpsertPendingCompletion(ctx context.Context, rec domain.PendingCompletion) error {
	profileData, err := json.Marshal(rec.ProfileData)
	if err != nil {
		return fmt.Errorf("failed to marshal profile data: %w", err)
	}

	query := `
        INSERT INTO pending_completions (payment_id, customer_id, subscription_id, email, password_hash,
                                         full_name, cpf, phone, member_type_id, plan_id, affiliate_code,
                                         profile_data, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (payment_id)
        DO UPDATE SET customer_id = EXCLUDED.customer_id,
                      subscription_id = EXCLUDED.subscription_id,
                      email = EXCLUDED.email,
                      password_hash = EXCLUDED.password_hash,
                      full_name = EXCLUDED.full_name,
                      cpf = EXCLUDED.cpf,
                      phone = EXCLUDED.phone,
                      member_type_id = EXCLUDED.member_type_id,
                      plan_id = EXCLUDED.plan_id,
                      affiliate_code = EXCLUDED.affiliate_code,
                      profile_data = EXCLUDED.profile_data,
                      status = EXCLUDED.status,
                      updated_at = NOW()
    `
	_, err = r.db.Exec(ctx, query,
		rec.PaymentID, rec.CustomerID, rec.SubscriptionID, rec.Email, rec.PasswordHash,
		rec.FullName, rec.CPF, rec.Phone, rec.MemberTypeID, rec.PlanID, rec.AffiliateCode,
		profileData, rec.Status,
	)
	return err
}

// ListPendingSubscriptions returns fallback records still waiting on
// confirmation, oldest first.
func (r *Repository) ListPendingSubscriptions(ctx context.Context, limit int) ([]domain.PendingSubscription, error) {
	query := `
        SELECT payment_id, customer_id, user_data, subscription_data, payment_data,
               retry_count, status, created_at, updated_at
        FROM pending_subscriptions
        WHERE status = 'pending'
        ORDER BY created_at
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.PendingSubscription
	for rows.Next() {
		var rec domain.PendingSubscription
		var userData, subData, payData []byte
		if err := rows.Scan(
			&rec.PaymentID, &rec.CustomerID, &userData, &subData, &payData,
			&rec.RetryCount, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(userData, &rec.UserData); err != nil {
			return nil, fmt.Errorf("failed to decode user data for %s: %w", rec.PaymentID, err)
		}
		if err := json.Unmarshal(subData, &rec.SubscriptionData); err != nil {
			return nil, fmt.Errorf("failed to decode subscription data for %s: %w", rec.PaymentID, err)
		}
		if err := json.Unmarshal(payData, &rec.PaymentData); err != nil {
			return nil, fmt.Errorf("failed to decode payment data for %s: %w", rec.PaymentID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListPendingCompletions returns post-payment fallback records still pending,
// oldest first.
func (r *Repository) ListPendingCompletions(ctx context.Context, limit int) ([]domain.PendingCompletion, error) {
	query := `
        SELECT payment_id, customer_id, COALESCE(subscription_id, ''), email, password_hash,
               full_name, COALESCE(cpf, ''), COALESCE(phone, ''), member_type_id,
               COALESCE(plan_id, ''), COALESCE(affiliate_code, ''), profile_data,
               retry_count, status, created_at, updated_at
        FROM pending_completions
        WHERE status = 'pending'
        ORDER BY created_at
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.PendingCompletion
	for rows.Next() {
		var rec domain.PendingCompletion
		var profileData []byte
		if err := rows.Scan(
			&rec.PaymentID, &rec.CustomerID, &rec.SubscriptionID, &rec.Email, &rec.PasswordHash,
			&rec.FullName, &rec.CPF, &rec.Phone, &rec.MemberTypeID,
			&rec.PlanID, &rec.AffiliateCode, &profileData,
			&rec.RetryCount, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(profileData, &rec.ProfileData); err != nil {
			return nil, fmt.Errorf("failed to decode profile data for %s: %w", rec.PaymentID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetPendingSubscription loads one fallback record by charge id.
func (r *Repository) GetPendingSubscription(ctx context.Context, paymentID string) (*domain.PendingSubscription, error) {
	query := `
        SELECT payment_id, customer_id, user_data, subscription_data, payment_data,
               retry_count, status, created_at, updated_at
        FROM pending_subscriptions
        WHERE payment_id = $1
    `
	var rec domain.PendingSubscription
	var userData, subData, payData []byte
	err := r.db.QueryRow(ctx, query, paymentID).Scan(
		&rec.PaymentID, &rec.CustomerID, &userData, &subData, &payData,
		&rec.RetryCount, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pending subscription %s: %w", paymentID, ErrNotFound)
		}
		return nil, err
	}
	if err := json.Unmarshal(userData, &rec.UserData); err != nil {
		return nil, fmt.Errorf("failed to decode user data for %s: %w", paymentID, err)
	}
	if err := json.Unmarshal(subData, &rec.SubscriptionData); err != nil {
		return nil, fmt.Errorf("failed to decode subscription data for %s: %w", paymentID, err)
	}
	if err := json.Unmarshal(payData, &rec.PaymentData); err != nil {
		return nil, fmt.Errorf("failed to decode payment data for %s: %w", paymentID, err)
	}
	return &rec, nil
}

// GetPendingCompletion loads one post-payment fallback record by charge id.
func (r *Repository) GetPendingCompletion(ctx context.Context, paymentID string) (*domain.PendingCompletion, error) {
	query := `
        SELECT payment_id, customer_id, COALESCE(subscription_id, ''), email, password_hash,
               full_name, COALESCE(cpf, ''), COALESCE(phone, ''), member_type_id,
               COALESCE(plan_id, ''), COALESCE(affiliate_code, ''), profile_data,
               retry_count, status, created_at, updated_at
        FROM pending_completions
        WHERE payment_id = $1
    `
	var rec domain.PendingCompletion
	var profileData []byte
	err := r.db.QueryRow(ctx, query, paymentID).Scan(
		&rec.PaymentID, &rec.CustomerID, &rec.SubscriptionID, &rec.Email, &rec.PasswordHash,
		&rec.FullName, &rec.CPF, &rec.Phone, &rec.MemberTypeID,
		&rec.PlanID, &rec.AffiliateCode, &profileData,
		&rec.RetryCount, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pending completion %s: %w", paymentID, ErrNotFound)
		}
		return nil, err
	}
	if err := json.Unmarshal(profileData, &rec.ProfileData); err != nil {
		return nil, fmt.Errorf("failed to decode profile data for %s: %w", paymentID, err)
	}
	return &rec, nil
}

// MarkPendingSubscription advances a pending_subscriptions row. The retry
// counter is bumped on failure and on re-enqueue (marking back to pending).
func (r *Repository) MarkPendingSubscription(ctx context.Context, paymentID string, status domain.PendingStatus) error {
	query := `
        UPDATE pending_subscriptions
        SET status = $2,
            retry_count = retry_count + CASE WHEN $2 IN ('failed', 'pending') THEN 1 ELSE 0 END,
            updated_at = NOW()
        WHERE payment_id = $1
    `
	tag, err := r.db.Exec(ctx, query, paymentID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending subscription %s: %w", paymentID, ErrNotFound)
	}
	return nil
}

// MarkPendingCompletion advances a pending_completions row. The retry counter
// is bumped on failure and on re-enqueue.
func (r *Repository) MarkPendingCompletion(ctx context.Context, paymentID string, status domain.PendingStatus) error {
	query := `
        UPDATE pending_completions
        SET status = $2,
            retry_count = retry_count + CASE WHEN $2 IN ('failed', 'pending') THEN 1 ELSE 0 END,
            updated_at = NOW()
        WHERE payment_id = $1
    `
	tag, err := r.db.Exec(ctx, query, paymentID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending completion %s: %w", paymentID, ErrNotFound)
	}
	return nil
}

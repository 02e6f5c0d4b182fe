/**
 * @description
 * Charge confirmation poller. After a charge is created the flow waits for the
 * gateway to settle it, polling on a fixed interval inside a bounded budget.
 */
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rcarraroia/comademig-sub001/internal/domain"
)

// PaymentReader is the gateway surface the poller needs.
type PaymentReader interface {
	GetPayment(ctx context.Context, paymentID string) (*domain.Charge, error)
}

// PollResult is the outcome of one polling session. QueryFailed marks an Err
// caused by status reads failing, as opposed to the gateway refusing the
// charge or reporting an unknown status.
type PollResult struct {
	Success     bool
	TimedOut    bool
	QueryFailed bool
	Err         error
}

// PollPaymentStatus polls a charge until it settles, is refused, or the budget
// runs out. onStatus, when non-nil, is invoked with every status observed.
// Transient read errors are tolerated and retried; only an error on the final
// allowed iteration fails the session.
func PollPaymentStatus(ctx context.Context, reader PaymentReader, paymentID string, timeout, interval time.Duration, onStatus func(domain.ChargeStatus)) PollResult {
	deadline := time.Now().Add(timeout)

	for {
		lastIteration := time.Now().Add(interval).After(deadline)

		charge, err := reader.GetPayment(ctx, paymentID)
		switch {
		case err != nil:
			if lastIteration {
				return PollResult{QueryFailed: true, Err: fmt.Errorf("failed to check payment status: %w", err)}
			}
			log.Printf("level=warn component=payment_poller payment_id=%s msg=\"transient status check failure, retrying\" error=%v", paymentID, err)
		default:
			if onStatus != nil {
				onStatus(charge.Status)
			}
			switch {
			case charge.Status.IsSettled():
				return PollResult{Success: true}
			case charge.Status == domain.ChargeRefused:
				return PollResult{Err: fmt.Errorf("payment refused by gateway")}
			case charge.Status.IsInterim():
				// keep polling
			default:
				return PollResult{Err: fmt.Errorf("unexpected payment status: %s", charge.Status)}
			}
		}

		if lastIteration {
			return PollResult{TimedOut: true}
		}

		select {
		case <-ctx.Done():
			return PollResult{Err: ctx.Err()}
		case <-time.After(interval):
		}
	}
}

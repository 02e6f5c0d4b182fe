package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rcarraroia/comademig-sub001/internal/domain"
)

type scriptedReader struct {
	statuses []domain.ChargeStatus
	errs     []error
	calls    int
}

func (r *scriptedReader) GetPayment(_ context.Context, paymentID string) (*domain.Charge, error) {
	i := r.calls
	r.calls++
	if i >= len(r.statuses) {
		i = len(r.statuses) - 1
	}
	if i < len(r.errs) && r.errs[i] != nil {
		return nil, r.errs[i]
	}
	return &domain.Charge{ID: paymentID, Status: r.statuses[i]}, nil
}

func TestPollPaymentStatusConfirmedOnSecondCheck(t *testing.T) {
	reader := &scriptedReader{statuses: []domain.ChargeStatus{domain.ChargePending, domain.ChargeConfirmed}}

	var seen []domain.ChargeStatus
	result := PollPaymentStatus(context.Background(), reader, "pay-1", 500*time.Millisecond, 10*time.Millisecond, func(s domain.ChargeStatus) {
		seen = append(seen, s)
	})

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if reader.calls != 2 {
		t.Errorf("expected 2 gateway reads, got %d", reader.calls)
	}
	if len(seen) != 2 || seen[0] != domain.ChargePending || seen[1] != domain.ChargeConfirmed {
		t.Errorf("unexpected status sequence: %v", seen)
	}
}

func TestPollPaymentStatusRefusedFailsImmediately(t *testing.T) {
	reader := &scriptedReader{statuses: []domain.ChargeStatus{domain.ChargeRefused}}

	result := PollPaymentStatus(context.Background(), reader, "pay-1", 500*time.Millisecond, 10*time.Millisecond, nil)

	if result.Success || result.TimedOut {
		t.Fatalf("expected hard failure, got %+v", result)
	}
	if result.Err == nil {
		t.Fatal("expected refusal error")
	}
	if result.QueryFailed {
		t.Error("refusal must not be flagged as a query failure")
	}
	if reader.calls != 1 {
		t.Errorf("expected 1 gateway read, got %d", reader.calls)
	}
}

func TestPollPaymentStatusQueryFailureOnFinalCheck(t *testing.T) {
	reader := &scriptedReader{
		statuses: []domain.ChargeStatus{domain.ChargePending},
		errs:     []error{errors.New("gateway unavailable")},
	}

	result := PollPaymentStatus(context.Background(), reader, "pay-1", 5*time.Millisecond, 10*time.Millisecond, nil)

	if !result.QueryFailed || result.Err == nil {
		t.Fatalf("expected query failure, got %+v", result)
	}
	if result.Success || result.TimedOut {
		t.Errorf("query failure must not report success or timeout: %+v", result)
	}
}

func TestPollPaymentStatusTimesOutWhilePending(t *testing.T) {
	reader := &scriptedReader{statuses: []domain.ChargeStatus{domain.ChargePending}}

	result := PollPaymentStatus(context.Background(), reader, "pay-1", 50*time.Millisecond, 10*time.Millisecond, nil)

	if !result.TimedOut {
		t.Fatalf("expected timeout, got %+v", result)
	}
	if result.Success || result.Err != nil {
		t.Errorf("timeout must not carry success or error: %+v", result)
	}
}

func TestPollPaymentStatusToleratesTransientErrors(t *testing.T) {
	reader := &scriptedReader{
		statuses: []domain.ChargeStatus{domain.ChargePending, domain.ChargePending, domain.ChargeConfirmed},
		errs:     []error{errors.New("network blip"), nil, nil},
	}

	result := PollPaymentStatus(context.Background(), reader, "pay-1", 500*time.Millisecond, 10*time.Millisecond, nil)

	if !result.Success {
		t.Fatalf("expected success after transient error, got %+v", result)
	}
}

func TestPollPaymentStatusUnknownStatusFails(t *testing.T) {
	reader := &scriptedReader{statuses: []domain.ChargeStatus{"CHARGEBACK_REQUESTED"}}

	result := PollPaymentStatus(context.Background(), reader, "pay-1", 500*time.Millisecond, 10*time.Millisecond, nil)

	if result.Success || result.TimedOut || result.Err == nil {
		t.Fatalf("expected hard failure on unknown status, got %+v", result)
	}
}

func TestPollPaymentStatusHonorsContextCancellation(t *testing.T) {
	reader := &scriptedReader{statuses: []domain.ChargeStatus{domain.ChargePending}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := PollPaymentStatus(ctx, reader, "pay-1", 5*time.Second, time.Second, nil)

	if !errors.Is(result.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %+v", result)
	}
}

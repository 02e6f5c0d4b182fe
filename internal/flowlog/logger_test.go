package flowlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rcarraroia/comademig-sub001/internal/domain"
)

type stubStore struct {
	events       []domain.FlowEvent
	alerts       []domain.FlowAlert
	activeTypes  map[domain.AlertType]bool
	metrics      *domain.FlowMetrics
	insertErr    error
	metricsErr   error
	hasActiveErr error
}

func (s *stubStore) InsertFlowEvent(_ context.Context, event domain.FlowEvent) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubStore) InsertFlowAlert(_ context.Context, alert domain.FlowAlert) error {
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *stubStore) HasActiveAlert(_ context.Context, alertType domain.AlertType) (bool, error) {
	if s.hasActiveErr != nil {
		return false, s.hasActiveErr
	}
	return s.activeTypes[alertType], nil
}

func (s *stubStore) RecentWindowMetrics(_ context.Context, _ time.Duration) (*domain.FlowMetrics, error) {
	if s.metricsErr != nil {
		return nil, s.metricsErr
	}
	return s.metrics, nil
}

func TestLogEventSwallowsStoreErrors(t *testing.T) {
	store := &stubStore{insertErr: errors.New("connection refused")}
	logger := NewLogger(store)

	// Must not panic or surface the error.
	logger.LogStarted(context.Background(), "a@b.com", "membro", "plan-1", "")
}

func TestLogCompletedRecordsDuration(t *testing.T) {
	store := &stubStore{}
	logger := NewLogger(store)

	logger.LogCompleted(context.Background(), "a@b.com", "user-1", "pay-1", 1500*time.Millisecond)

	if len(store.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(store.events))
	}
	ev := store.events[0]
	if ev.EventType != domain.EventProcessCompleted {
		t.Errorf("expected event type %s, got %s", domain.EventProcessCompleted, ev.EventType)
	}
	if ev.ProcessingTimeMs != 1500 {
		t.Errorf("expected 1500ms, got %d", ev.ProcessingTimeMs)
	}
}

func TestCheckAndCreateAlerts(t *testing.T) {
	testCases := []struct {
		name       string
		metrics    domain.FlowMetrics
		active     map[domain.AlertType]bool
		wantAlerts []domain.AlertType
	}{
		{
			name: "healthy window produces no alerts",
			metrics: domain.FlowMetrics{
				TotalRegistrations:      10,
				SuccessfulRegistrations: 10,
				SuccessRate:             100,
				AvgProcessingTimeMs:     5000,
			},
			wantAlerts: nil,
		},
		{
			name: "low success rate with enough attempts",
			metrics: domain.FlowMetrics{
				TotalRegistrations:      10,
				SuccessfulRegistrations: 5,
				SuccessRate:             50,
			},
			wantAlerts: []domain.AlertType{domain.AlertHighFailureRate},
		},
		{
			name: "low success rate below attempt minimum is ignored",
			metrics: domain.FlowMetrics{
				TotalRegistrations:      3,
				SuccessfulRegistrations: 1,
				SuccessRate:             33.3,
			},
			wantAlerts: nil,
		},
		{
			name: "slow processing",
			metrics: domain.FlowMetrics{
				TotalRegistrations:      2,
				SuccessfulRegistrations: 2,
				SuccessRate:             100,
				AvgProcessingTimeMs:     25000,
			},
			wantAlerts: []domain.AlertType{domain.AlertSlowProcessing},
		},
		{
			name: "fallback rate above ceiling",
			metrics: domain.FlowMetrics{
				TotalRegistrations:      10,
				SuccessfulRegistrations: 9,
				SuccessRate:             90,
				FallbackActivations:     2,
			},
			wantAlerts: []domain.AlertType{domain.AlertFallbackThreshold},
		},
		{
			name: "already-active alert is not duplicated",
			metrics: domain.FlowMetrics{
				TotalRegistrations:      10,
				SuccessfulRegistrations: 5,
				SuccessRate:             50,
			},
			active:     map[domain.AlertType]bool{domain.AlertHighFailureRate: true},
			wantAlerts: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := tc.metrics
			store := &stubStore{metrics: &m, activeTypes: tc.active}
			logger := NewLogger(store)

			if err := logger.CheckAndCreateAlerts(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(store.alerts) != len(tc.wantAlerts) {
				t.Fatalf("expected %d alerts, got %d", len(tc.wantAlerts), len(store.alerts))
			}
			for i, want := range tc.wantAlerts {
				if store.alerts[i].AlertType != want {
					t.Errorf("alert %d: expected type %s, got %s", i, want, store.alerts[i].AlertType)
				}
			}
		})
	}
}

func TestCheckAndCreateAlertsPropagatesMetricsError(t *testing.T) {
	store := &stubStore{metricsErr: errors.New("query failed")}
	logger := NewLogger(store)

	if err := logger.CheckAndCreateAlerts(context.Background()); err == nil {
		t.Fatal("expected error when metrics query fails")
	}
}

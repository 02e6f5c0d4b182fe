package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rcarraroia/comademig-sub001/internal/app"
	"github.com/rcarraroia/comademig-sub001/internal/domain"
	"github.com/rcarraroia/comademig-sub001/internal/store"
)

const testJWTSecret = "test-secret"

type stubRegistration struct {
	result  *domain.FlowResult
	outcome app.Outcome
	gotReq  domain.RegistrationRequest
}

func (s *stubRegistration) Register(_ context.Context, req domain.RegistrationRequest) (*domain.FlowResult, app.Outcome) {
	s.gotReq = req
	return s.result, s.outcome
}

type stubReconcile struct {
	pending      []domain.PendingRegistration
	result       *domain.ReconcileResult
	stats        *domain.ReconcileStats
	completeErr  error
	lastAdminID  string
	lastNotes    string
	lastPayment  string
	processCalls int
}

func (s *stubReconcile) FindPending(_ context.Context) ([]domain.PendingRegistration, error) {
	return s.pending, nil
}

func (s *stubReconcile) ProcessAll(_ context.Context) (*domain.ReconcileResult, error) {
	s.processCalls++
	return s.result, nil
}

func (s *stubReconcile) CompleteManually(_ context.Context, paymentID, adminID, notes string) error {
	s.lastPayment = paymentID
	s.lastAdminID = adminID
	s.lastNotes = notes
	return s.completeErr
}

func (s *stubReconcile) Stats(_ context.Context) (*domain.ReconcileStats, error) {
	return s.stats, nil
}

type stubObserve struct {
	alerts     []domain.FlowAlert
	metrics    []domain.FlowMetrics
	resolvedID string
	resolvedBy string
	lastHourly bool
	resolveErr error
}

func (s *stubObserve) ListActiveAlerts(_ context.Context) ([]domain.FlowAlert, error) {
	return s.alerts, nil
}

func (s *stubObserve) ResolveAlert(_ context.Context, alertID, resolvedBy string) error {
	if s.resolveErr != nil {
		return s.resolveErr
	}
	s.resolvedID = alertID
	s.resolvedBy = resolvedBy
	return nil
}

func (s *stubObserve) GetMetrics(_ context.Context, _, _ time.Time, hourly bool) ([]domain.FlowMetrics, error) {
	s.lastHourly = hourly
	return s.metrics, nil
}

func newTestRouter(reg *stubRegistration, rec *stubReconcile, obs *stubObserve) http.Handler {
	h := NewHandler(reg, rec, obs)
	return NewRouter(h, RouterConfig{
		RequestTimeout:    25 * time.Second,
		SupabaseJWTSecret: testJWTSecret,
		InternalAPIKey:    "internal-key",
	})
}

func adminToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "admin-uuid-1",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func TestRegisterEndpointStatusMapping(t *testing.T) {
	testCases := []struct {
		name       string
		outcome    app.Outcome
		result     *domain.FlowResult
		wantStatus int
	}{
		{"success", app.OutcomeSuccess, &domain.FlowResult{Success: true, UserID: "u1"}, http.StatusOK},
		{"validation", app.OutcomeValidationFailed, &domain.FlowResult{Error: "CPF inválido"}, http.StatusBadRequest},
		{"refused", app.OutcomePaymentRefused, &domain.FlowResult{Error: "Pagamento recusado"}, http.StatusPaymentRequired},
		{"timeout", app.OutcomePollTimeout, &domain.FlowResult{FallbackStored: true}, http.StatusRequestTimeout},
		{"internal", app.OutcomeInternalError, &domain.FlowResult{RequiresManualIntervention: true}, http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&stubRegistration{result: tc.result, outcome: tc.outcome}, &stubReconcile{}, &stubObserve{})

			req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"registration_data":{"email":"a@b.com"}}`))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			var body domain.FlowResult
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("response must be a JSON envelope: %v", err)
			}
		})
	}
}

func TestRegisterEndpointUnwrapsRegistrationData(t *testing.T) {
	reg := &stubRegistration{result: &domain.FlowResult{Success: true}, outcome: app.OutcomeSuccess}
	router := newTestRouter(reg, &stubReconcile{}, &stubObserve{})

	body := `{"registration_data":{"nome":"João","email":"joao@test.com","plan_id":"plan-monthly-25"}}`
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if reg.gotReq.Email != "joao@test.com" || reg.gotReq.PlanID != "plan-monthly-25" {
		t.Errorf("wrapper not unwrapped, got %+v", reg.gotReq)
	}
}

func TestRegisterEndpointRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(&stubRegistration{}, &stubReconcile{}, &stubObserve{})

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{not json`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRegisterEndpointWrongMethod(t *testing.T) {
	router := newTestRouter(&stubRegistration{}, &stubReconcile{}, &stubObserve{})

	req := httptest.NewRequest(http.MethodGet, "/register", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("405 must carry the JSON envelope: %v", err)
	}
	if body["success"] != false {
		t.Errorf("expected success=false, got %v", body["success"])
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	router := newTestRouter(&stubRegistration{}, &stubReconcile{}, &stubObserve{})

	req := httptest.NewRequest(http.MethodPost, "/admin/reconcile", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
}

func TestAdminReconcileRun(t *testing.T) {
	rec := &stubReconcile{result: &domain.ReconcileResult{TotalFound: 3, Completed: 2, Failed: 1}}
	router := newTestRouter(&stubRegistration{}, rec, &stubObserve{})

	req := httptest.NewRequest(http.MethodPost, "/admin/reconcile", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "authenticated"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	var body domain.ReconcileResult
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.TotalFound != 3 || body.Completed != 2 {
		t.Errorf("unexpected result: %+v", body)
	}
	if rec.processCalls != 1 {
		t.Errorf("expected one sweep, got %d", rec.processCalls)
	}
}

func TestAdminManualCompletion(t *testing.T) {
	rec := &stubReconcile{}
	router := newTestRouter(&stubRegistration{}, rec, &stubObserve{})

	body := `{"payment_id":"pay_001","notes":"confirmado via extrato"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/reconcile/complete", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "authenticated"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if rec.lastPayment != "pay_001" || rec.lastAdminID != "admin-uuid-1" {
		t.Errorf("admin context not forwarded: payment=%q admin=%q", rec.lastPayment, rec.lastAdminID)
	}
}

func TestAdminManualCompletionUnknownRecord(t *testing.T) {
	rec := &stubReconcile{completeErr: store.ErrNotFound}
	router := newTestRouter(&stubRegistration{}, rec, &stubObserve{})

	req := httptest.NewRequest(http.MethodPost, "/admin/reconcile/complete", strings.NewReader(`{"payment_id":"pay_999"}`))
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "authenticated"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestAdminResolveAlert(t *testing.T) {
	obs := &stubObserve{}
	router := newTestRouter(&stubRegistration{}, &stubReconcile{}, obs)

	req := httptest.NewRequest(http.MethodPost, "/admin/alerts/alert-7/resolve", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "authenticated"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if obs.resolvedID != "alert-7" || obs.resolvedBy != "admin-uuid-1" {
		t.Errorf("unexpected resolution: id=%q by=%q", obs.resolvedID, obs.resolvedBy)
	}
}

func TestAdminMetricsGranularity(t *testing.T) {
	obs := &stubObserve{metrics: []domain.FlowMetrics{{Date: "2026-08-28", TotalRegistrations: 4}}}
	router := newTestRouter(&stubRegistration{}, &stubReconcile{}, obs)

	req := httptest.NewRequest(http.MethodGet, "/admin/metrics?granularity=hourly", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "authenticated"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !obs.lastHourly {
		t.Error("expected hourly granularity to be forwarded")
	}
}

func TestAdminMetricsRejectsBadDate(t *testing.T) {
	router := newTestRouter(&stubRegistration{}, &stubReconcile{}, &stubObserve{})

	req := httptest.NewRequest(http.MethodGet, "/admin/metrics?from=notadate", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "authenticated"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestInternalReconcileRequiresKey(t *testing.T) {
	rec := &stubReconcile{result: &domain.ReconcileResult{}}
	router := newTestRouter(&stubRegistration{}, rec, &stubObserve{})

	req := httptest.NewRequest(http.MethodPost, "/internal/reconcile", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/internal/reconcile", nil)
	req.Header.Set("X-Internal-Api-Key", "internal-key")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", rr.Code)
	}
}

type fixedLimiter struct {
	count int
}

func (f *fixedLimiter) ConsumeRateLimit(_ context.Context, _, _ string, _ int, _ time.Duration) (int, int, error) {
	return f.count, 30, nil
}

func TestRateLimitMiddleware(t *testing.T) {
	h := NewHandler(&stubRegistration{result: &domain.FlowResult{Success: true}, outcome: app.OutcomeSuccess}, &stubReconcile{}, &stubObserve{})
	router := NewRouter(h, RouterConfig{
		RequestTimeout:    25 * time.Second,
		SupabaseJWTSecret: testJWTSecret,
		RateLimiter:       &fixedLimiter{count: 11},
		RateLimitPerMin:   10,
	})

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "30" {
		t.Errorf("expected Retry-After header, got %q", rr.Header().Get("Retry-After"))
	}
}

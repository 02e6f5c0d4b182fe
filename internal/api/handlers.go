/**
 * @description
 * This file contains the HTTP handler functions for the registration service.
 * Handlers are responsible for parsing incoming requests, calling the
 * orchestration layer, and mapping flow outcomes onto HTTP status codes.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rcarraroia/comademig-sub001/internal/app"
	"github.com/rcarraroia/comademig-sub001/internal/domain"
	"github.com/rcarraroia/comademig-sub001/internal/store"
)

// RegistrationService is the orchestration surface the handlers call.
type RegistrationService interface {
	Register(ctx context.Context, req domain.RegistrationRequest) (*domain.FlowResult, app.Outcome)
}

// ReconcileService is the admin reconciliation surface.
type ReconcileService interface {
	FindPending(ctx context.Context) ([]domain.PendingRegistration, error)
	ProcessAll(ctx context.Context) (*domain.ReconcileResult, error)
	CompleteManually(ctx context.Context, paymentID, adminID, notes string) error
	Stats(ctx context.Context) (*domain.ReconcileStats, error)
}

// ObservabilityStore is the alert and metrics read surface.
type ObservabilityStore interface {
	ListActiveAlerts(ctx context.Context) ([]domain.FlowAlert, error)
	ResolveAlert(ctx context.Context, alertID, resolvedBy string) error
	GetMetrics(ctx context.Context, from, to time.Time, hourly bool) ([]domain.FlowMetrics, error)
}

// Handler holds the application services that handlers will interact with.
type Handler struct {
	registration RegistrationService
	reconcile    ReconcileService
	observe      ObservabilityStore
}

// NewHandler creates a new Handler with the given services.
func NewHandler(registration RegistrationService, reconcile ReconcileService, observe ObservabilityStore) *Handler {
	return &Handler{
		registration: registration,
		reconcile:    reconcile,
		observe:      observe,
	}
}

// handleRegister runs the payment-first registration flow. The payload
// arrives wrapped in a registration_data field.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RegistrationData domain.RegistrationRequest `json:"registration_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithJSON(w, http.StatusBadRequest, domain.FlowResult{
			Success: false,
			Error:   "Corpo da requisição inválido",
		})
		return
	}

	result, outcome := h.registration.Register(r.Context(), body.RegistrationData)
	respondWithJSON(w, statusForOutcome(outcome), result)
}

// statusForOutcome maps a flow outcome onto its HTTP status.
func statusForOutcome(outcome app.Outcome) int {
	switch outcome {
	case app.OutcomeSuccess:
		return http.StatusOK
	case app.OutcomeValidationFailed:
		return http.StatusBadRequest
	case app.OutcomePaymentRefused:
		return http.StatusPaymentRequired
	case app.OutcomePollTimeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleListPending lists stuck registrations from every discovery source.
func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.reconcile.FindPending(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"total":         len(pending),
		"registrations": pending,
	})
}

// handleRunReconcile triggers one reconciliation sweep.
func (h *Handler) handleRunReconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconcile.ProcessAll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// handleCompleteManually force-completes one fallback record.
func (h *Handler) handleCompleteManually(w http.ResponseWriter, r *http.Request) {
	adminID, ok := GetAdminUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		PaymentID string `json:"payment_id"`
		Notes     string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.reconcile.CompleteManually(r.Context(), req.PaymentID, adminID, req.Notes); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"success": true, "payment_id": req.PaymentID})
}

// handleReconcileStats reports the incomplete-registration backlog.
func (h *Handler) handleReconcileStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reconcile.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// handleListAlerts lists unresolved flow alerts.
func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.observe.ListActiveAlerts(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// handleResolveAlert marks one alert as handled by the calling admin.
func (h *Handler) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	adminID, ok := GetAdminUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	alertID := chi.URLParam(r, "id")
	if alertID == "" {
		http.Error(w, "Alert id required", http.StatusBadRequest)
		return
	}

	if err := h.observe.ResolveAlert(r.Context(), alertID, adminID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"success": true, "alert_id": alertID})
}

// handleGetMetrics returns flow metric buckets for a date range. Defaults to
// the last seven days of daily rollups.
func (h *Handler) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from := now.AddDate(0, 0, -7)
	to := now

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "Invalid 'from' date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "Invalid 'to' date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		to = parsed
	}
	hourly := r.URL.Query().Get("granularity") == "hourly"

	metrics, err := h.observe.GetMetrics(r.Context(), from, to, hourly)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"metrics": metrics})
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

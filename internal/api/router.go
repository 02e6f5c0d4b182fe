/**
 * @description
 * This file sets up the HTTP router for the registration service using the
 * go-chi/chi router. It defines the public registration endpoint, the
 * admin reconciliation surface, and applies middleware for logging, CORS,
 * rate limiting and authentication.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the router's middleware settings.
type RouterConfig struct {
	RequestTimeout    time.Duration
	SupabaseJWTSecret string
	InternalAPIKey    string
	RateLimiter       RateLimiter
	RateLimitPerMin   int
}

// NewRouter creates a new Chi router and registers the registration-service
// routes.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-Api-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// The registration endpoint is called by browsers; wrong verbs must get
	// the same JSON envelope as every other failure.
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusMethodNotAllowed, map[string]any{
			"success": false,
			"error":   "Method not allowed",
		})
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Registration service is healthy"))
	})

	// Public registration endpoint, rate limited per client IP.
	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(cfg.RateLimiter, "register", cfg.RateLimitPerMin, time.Minute))
		r.Post("/register", h.handleRegister)
	})

	// Admin reconciliation and observability surface.
	r.Route("/admin", func(r chi.Router) {
		r.Use(SupabaseAuthMiddleware(cfg.SupabaseJWTSecret))

		r.Post("/reconcile", h.handleRunReconcile)
		r.Get("/reconcile/pending", h.handleListPending)
		r.Post("/reconcile/complete", h.handleCompleteManually)
		r.Get("/reconcile/stats", h.handleReconcileStats)
		r.Get("/alerts", h.handleListAlerts)
		r.Post("/alerts/{id}/resolve", h.handleResolveAlert)
		r.Get("/metrics", h.handleGetMetrics)
	})

	// Service-to-service trigger used by the edge scheduler.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
		r.Post("/internal/reconcile", h.handleRunReconcile)
	})

	return r
}

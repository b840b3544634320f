package proxy

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/vnmchuo/translate-gateway/internal/apierr"
	"github.com/vnmchuo/translate-gateway/internal/auth"
	"github.com/vnmchuo/translate-gateway/internal/metrics"
)

// NewRouter wires the gateway routes. CORS headers are attached to every
// response, including 404 and 405.
func NewRouter(h *Handler, policy *auth.Policy, collector *metrics.Collector) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(auth.NewCORSMiddleware(policy))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apierr.WriteJSON(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apierr.WriteJSON(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"translate-gateway"}`))
	})
	r.Method(http.MethodGet, "/metrics", collector.Handler())

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(policy))
		r.Options("/v1/chat/completions", h.HandlePreflight)
		r.Post("/v1/chat/completions", h.HandleChat)
		r.Get("/v1/usage", h.HandleUsage)
	})

	return r
}

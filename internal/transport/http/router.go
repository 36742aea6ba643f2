// Package httptransport exposes the consumer-facing query surface over HTTP:
// the direct page data path, the refresh signal, and the record write
// boundary.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"casegov/internal/platform/middleware"
)

// NewRouter assembles the full route tree. Authenticated endpoints sit behind
// bearer token validation; probes and metrics stay open.
func NewRouter(h *Handler, validator middleware.TokenValidator) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", h.HandleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, h.logger))
		h.Register(r)
	})

	return r
}

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for management UIs

ROUTE GROUPS:
  /api/consumption          Consumption computation
  /api/calculations/*       Tariff pricing
  /api/distributions        Shared cost distribution
  /api/readings/*           Reading validation and status overrides
  /api/tariffs/*            Rate-change validation
  /api/audit/*              Audit trail queries
  /api/rollbacks/*          Rollback operations

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Calculation routes
		r.Post("/consumption", h.ComputeConsumption)
		r.Route("/calculations", func(r chi.Router) {
			r.Post("/price", h.PriceCalculation)
		})
		r.Post("/distributions", h.DistributeCosts)

		// Validation routes
		r.Route("/readings", func(r chi.Router) {
			r.Post("/validate", h.ValidateReadings)
			r.Post("/status", h.OverrideStatus)
		})
		r.Route("/tariffs", func(r chi.Router) {
			r.Post("/validate-change", h.ValidateRateChange)
		})

		// Audit routes
		r.Route("/audit", func(r chi.Router) {
			r.Get("/{entityType}/{entityID}", h.ListAuditEntries)
			r.Get("/{entityType}/{entityID}/rollbacks", h.ListRollbackHistory)
		})

		// Rollback routes
		r.Route("/rollbacks", func(r chi.Router) {
			r.Post("/bulk", h.PerformBulkRollback)
			r.Post("/{id}/validate", h.ValidateRollback)
			r.Post("/{id}", h.PerformRollback)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}

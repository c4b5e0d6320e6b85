package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Consumer connection status across all tenants
		r.Get("/connections", s.handleListConnections)

		// Remote subscription inspection and removal
		r.Route("/devices/{deviceID}/subscriptions", func(r chi.Router) {
			r.Get("/", s.handleDeviceSubscriptions)
			r.Delete("/{name}", s.handleRemoveDeviceSubscription)
		})
		r.Delete("/subscriptions/{name}", s.handleRemoveSubscriptionEverywhere)

		// Tenant-level operations
		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", s.handleListTenants)
			r.Post("/{tenantID}/unsubscribe", s.handleUnsubscribeTenant)
			r.Post("/{tenantID}/resubscribe", s.handleResubscribeTenant)
			r.Post("/{tenantID}/disconnect", s.handleForceDisconnect)
		})

		// Connection audit trail
		r.Get("/audit", s.handleListAudit)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

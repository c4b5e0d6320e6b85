package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListTenants returns the onboarded tenant ids.
func (s *Server) handleListTenants(w http.ResponseWriter, _ *http.Request) {
	tenants := s.service.Tenants()
	writeJSON(w, http.StatusOK, map[string]any{
		"tenants": tenants,
		"count":   len(tenants),
	})
}

// handleUnsubscribeTenant detaches the tenant's consumers: tokens are
// invalidated and transports closed. The tenant stays onboarded and the
// remote subscriptions remain; resubscribe restores the sessions.
func (s *Server) handleUnsubscribeTenant(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenantID")

	if err := s.service.Unsubscribe(r.Context(), tenant); err != nil {
		s.logger.Error("failed to unsubscribe tenant", "tenant", tenant, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant": tenant,
		"status": "unsubscribed",
	})
}

// handleResubscribeTenant re-runs the full subscribe flow for an onboarded
// tenant whose consumers were detached.
func (s *Server) handleResubscribeTenant(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenantID")

	if err := s.service.ResubscribeTenant(r.Context(), tenant); err != nil {
		s.logger.Error("failed to resubscribe tenant", "tenant", tenant, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant": tenant,
		"status": "resubscribed",
	})
}

// handleForceDisconnect closes the tenant's transports without dropping the
// registry records, so the reconnect scheduler restores the connections.
func (s *Server) handleForceDisconnect(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenantID")

	if err := s.service.ForceDisconnect(r.Context(), tenant); err != nil {
		s.logger.Error("failed to force-disconnect tenant", "tenant", tenant, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant": tenant,
		"status": "disconnected",
	})
}

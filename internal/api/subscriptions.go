package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// subscriptionResponse is the wire shape for one remote subscription.
type subscriptionResponse struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Context string `json:"context"`
}

// tenantParam extracts the mandatory tenant query parameter. Device and
// subscription routes are tenant-scoped; the id never appears in the path
// because device ids are only unique within a tenant.
func tenantParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenant := r.URL.Query().Get("tenant")
	if tenant == "" {
		writeBadRequest(w, "tenant query parameter is required")
		return "", false
	}
	return tenant, true
}

// handleListConnections returns the status of every registered consumer
// connection across both subscription types.
func (s *Server) handleListConnections(w http.ResponseWriter, _ *http.Request) {
	conns := s.service.Connections()
	writeJSON(w, http.StatusOK, map[string]any{
		"connections": conns,
		"count":       len(conns),
	})
}

// handleDeviceSubscriptions lists the remote subscriptions attached to one
// device managed object.
func (s *Server) handleDeviceSubscriptions(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantParam(w, r)
	if !ok {
		return
	}
	deviceID := chi.URLParam(r, "deviceID")

	subs, err := s.service.SubscriptionsForDevice(r.Context(), tenant, deviceID)
	if err != nil {
		s.logger.Error("failed to list device subscriptions",
			"tenant", tenant, "device_id", deviceID, "error", err)
		writeServiceError(w, err)
		return
	}

	out := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subscriptionResponse{
			ID:      sub.ID,
			Name:    sub.Name,
			Context: string(sub.Context),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":     deviceID,
		"subscriptions": out,
	})
}

// handleRemoveDeviceSubscription removes the named subscription from one device.
func (s *Server) handleRemoveDeviceSubscription(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantParam(w, r)
	if !ok {
		return
	}
	deviceID := chi.URLParam(r, "deviceID")
	name := chi.URLParam(r, "name")

	if err := s.service.UnsubscribeDevice(r.Context(), tenant, deviceID, name); err != nil {
		s.logger.Error("failed to remove device subscription",
			"tenant", tenant, "device_id", deviceID, "subscription", name, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":    deviceID,
		"subscription": name,
		"removed":      true,
	})
}

// handleRemoveSubscriptionEverywhere removes the named subscription from
// every device and direct child in the tenant's inventory.
func (s *Server) handleRemoveSubscriptionEverywhere(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantParam(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")

	removed, err := s.service.UnsubscribeAllDevices(r.Context(), tenant, name)
	if err != nil {
		s.logger.Error("failed to remove subscription across devices",
			"tenant", tenant, "subscription", name, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subscription": name,
		"removed":      removed,
	})
}

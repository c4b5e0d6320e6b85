package api

import (
	"net/http"
	"strconv"

	"github.com/iotstream/notify-core/internal/audit"
)

// handleListAudit returns paginated connection audit events with optional filters.
//
// Query parameters:
//   - tenant: filter by tenant id
//   - event: filter by event kind (connected, disconnected, upgrade_rejected, ...)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.trail == nil {
		writeInternalError(w, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Tenant: q.Get("tenant"),
		Event:  q.Get("event"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.trail.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit events", "error", err)
		writeInternalError(w, "failed to list audit events")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

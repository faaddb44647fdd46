package api

import (
	"net/http"
	"strconv"

	"github.com/RaufunNazin/bnetdiag/internal/audit"
	"github.com/RaufunNazin/bnetdiag/internal/auth"
)

// handleListAuditLogs returns the audit trail of the caller's area.
//
// Query parameters:
//   - action: create, insert, connect, update, delete, disconnect, login...
//   - entity_type: device, position, user
//   - entity_id
//   - limit: max results (default 50, max 200)
//   - offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if !p.Can(auth.PermAuditRead) {
		writeForbidden(w, "insufficient permissions")
		return
	}
	area, ok := p.Area()
	if !ok {
		writeForbidden(w, "no area assigned")
		return
	}
	if s.audit == nil {
		writeInternalError(w, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		AreaID:     &area,
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
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

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/aims-io/aims/internal/app/domain/audit"
	"github.com/aims-io/aims/internal/app/errs"
)

func (h *handler) auditQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, _, ok := h.requireCapability(w, r, "audit:read")
	if !ok {
		return
	}

	q := r.URL.Query()
	f := audit.Filter{
		AgentID:      q.Get("agent_id"),
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		StartDate:    q.Get("start_date"),
		EndDate:      q.Get("end_date"),
	}

	var err error
	if f.Limit, err = parseIntParam(q.Get("limit"), 50); err != nil {
		writeError(w, http.StatusUnprocessableEntity, errs.Validation("limit must be an integer"))
		return
	}
	if f.Limit < 1 || f.Limit > 500 {
		writeError(w, http.StatusUnprocessableEntity, errs.Validation("limit must be between 1 and 500"))
		return
	}
	if f.Offset, err = parseIntParam(q.Get("offset"), 0); err != nil {
		writeError(w, http.StatusUnprocessableEntity, errs.Validation("offset must be an integer"))
		return
	}

	entries, err := h.app.Audit.Query(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func parseIntParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

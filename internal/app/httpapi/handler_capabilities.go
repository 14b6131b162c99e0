package httpapi

import (
	"net/http"

	"github.com/aims-io/aims/internal/app/domain/capability"
)

func (h *handler) capabilities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		actor, _, ok := h.requireCapability(w, r, "admin:*")
		if !ok {
			return
		}
		var payload struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		created, err := h.app.Capabilities.Create(r.Context(), actor, payload.Name, payload.Description)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodGet:
		_, _, ok := h.requireCapability(w, r, "agents:read")
		if !ok {
			return
		}
		list, err := h.app.Capabilities.List(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if list == nil {
			list = []capability.Capability{}
		}
		writeJSON(w, http.StatusOK, list)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) agentCapabilities(w http.ResponseWriter, r *http.Request, agentID string, rest []string) {
	switch len(rest) {
	case 0:
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		actor, _, ok := h.requireCapability(w, r, "admin:*")
		if !ok {
			return
		}
		var payload struct {
			CapabilityID string `json:"capability_id"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		granted, err := h.app.Capabilities.Grant(r.Context(), actor, agentID, payload.CapabilityID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, granted)

	case 1:
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		actor, _, ok := h.requireCapability(w, r, "admin:*")
		if !ok {
			return
		}
		if err := h.app.Capabilities.Revoke(r.Context(), actor, agentID, rest[0]); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

package httpapi

import (
	"net/http"
	"strings"

	agentdomain "github.com/aims-io/aims/internal/app/domain/agent"
	"github.com/aims-io/aims/internal/app/services/agents"
	"github.com/aims-io/aims/internal/app/storage"
)

func (h *handler) agents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		actor, _, ok := h.requireCapability(w, r, "agents:write")
		if !ok {
			return
		}
		var payload struct {
			Name         string `json:"name"`
			Description  string `json:"description"`
			Owner        string `json:"owner"`
			AgentType    string `json:"agent_type"`
			MetadataJSON string `json:"metadata_json"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		created, err := h.app.Agents.Create(r.Context(), actor, agents.CreateParams{
			Name:         payload.Name,
			Description:  payload.Description,
			Owner:        payload.Owner,
			AgentType:    payload.AgentType,
			MetadataJSON: payload.MetadataJSON,
		})
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
		q := r.URL.Query()
		list, err := h.app.Agents.List(r.Context(), storage.AgentFilter{
			Status:    q.Get("status"),
			Owner:     q.Get("owner"),
			AgentType: q.Get("agent_type"),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if list == nil {
			list = []agentdomain.Agent{}
		}
		writeJSON(w, http.StatusOK, list)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) agentResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/agents"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	agentID := parts[0]

	if len(parts) == 1 {
		h.agentByID(w, r, agentID)
		return
	}

	switch parts[1] {
	case "suspend", "reactivate", "revoke":
		if len(parts) != 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.agentLifecycle(w, r, agentID, parts[1])
	case "keys":
		h.agentKeys(w, r, agentID, parts[2:])
	case "capabilities":
		h.agentCapabilities(w, r, agentID, parts[2:])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) agentByID(w http.ResponseWriter, r *http.Request, agentID string) {
	switch r.Method {
	case http.MethodGet:
		_, _, ok := h.requireCapability(w, r, "agents:read")
		if !ok {
			return
		}
		a, err := h.app.Agents.Get(r.Context(), agentID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)

	case http.MethodPatch:
		actor, _, ok := h.requireCapability(w, r, "agents:write")
		if !ok {
			return
		}
		var payload struct {
			Description  *string `json:"description"`
			Owner        *string `json:"owner"`
			AgentType    *string `json:"agent_type"`
			MetadataJSON *string `json:"metadata_json"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		updated, err := h.app.Agents.Patch(r.Context(), actor, agentID, agents.PatchParams{
			Description:  payload.Description,
			Owner:        payload.Owner,
			AgentType:    payload.AgentType,
			MetadataJSON: payload.MetadataJSON,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		actor, _, ok := h.requireCapability(w, r, "admin:*")
		if !ok {
			return
		}
		if err := h.app.Agents.Delete(r.Context(), actor, agentID); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) agentLifecycle(w http.ResponseWriter, r *http.Request, agentID, op string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	actor, _, ok := h.requireCapability(w, r, "admin:*")
	if !ok {
		return
	}

	var payload struct {
		Reason string `json:"reason"`
	}
	if op != "reactivate" {
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		if payload.Reason == "" {
			payload.Reason = "No reason provided"
		}
	}

	var (
		result any
		err    error
	)
	switch op {
	case "suspend":
		result, err = h.app.Agents.Suspend(r.Context(), actor, agentID, payload.Reason)
	case "reactivate":
		result, err = h.app.Agents.Reactivate(r.Context(), actor, agentID)
	case "revoke":
		result, err = h.app.Agents.Revoke(r.Context(), actor, agentID, payload.Reason)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

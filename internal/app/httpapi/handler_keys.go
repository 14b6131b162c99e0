package httpapi

import (
	"net/http"

	"github.com/aims-io/aims/internal/app/domain/apikey"
)

func (h *handler) agentKeys(w http.ResponseWriter, r *http.Request, agentID string, rest []string) {
	switch len(rest) {
	case 0:
		switch r.Method {
		case http.MethodPost:
			actor, _, ok := h.requireCapability(w, r, "keys:manage")
			if !ok {
				return
			}
			var payload struct {
				Name      string  `json:"name"`
				ExpiresAt *string `json:"expires_at"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusUnprocessableEntity, err)
				return
			}
			created, err := h.app.Keys.Create(r.Context(), actor, agentID, payload.Name, payload.ExpiresAt)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, created)

		case http.MethodGet:
			_, _, ok := h.requireCapability(w, r, "keys:manage")
			if !ok {
				return
			}
			list, err := h.app.Keys.List(r.Context(), agentID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			if list == nil {
				list = []apikey.Key{}
			}
			writeJSON(w, http.StatusOK, list)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	case 1:
		keyID := rest[0]
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		actor, _, ok := h.requireCapability(w, r, "keys:manage")
		if !ok {
			return
		}
		if err := h.app.Keys.Revoke(r.Context(), actor, agentID, keyID); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case 2:
		if rest[1] != "rotate" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		actor, _, ok := h.requireCapability(w, r, "keys:manage")
		if !ok {
			return
		}
		rotation, err := h.app.Keys.Rotate(r.Context(), actor, agentID, rest[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rotation)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

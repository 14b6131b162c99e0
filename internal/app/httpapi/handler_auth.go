package httpapi

import (
	"net/http"

	"github.com/aims-io/aims/internal/app/metrics"
)

// exchangeToken handles POST /auth/token: a raw API key in X-API-Key is
// traded for a short-lived bearer token.
func (h *handler) exchangeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rawKey := r.Header.Get("X-API-Key")
	resp, err := h.app.Tokens.Exchange(r.Context(), rawKey, clientIP(r))
	if err != nil {
		metrics.RecordTokenExchange("rejected")
		writeServiceError(w, err)
		return
	}
	metrics.RecordTokenExchange("issued")
	writeJSON(w, http.StatusOK, resp)
}

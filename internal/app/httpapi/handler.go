// Package httpapi exposes the REST surface of the identity service.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/aims-io/aims/internal/app"
	"github.com/aims-io/aims/internal/app/errs"
	"github.com/aims-io/aims/internal/app/metrics"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the identity REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/_health", h.health)
	mux.HandleFunc("/auth/token", h.exchangeToken)
	mux.HandleFunc("/agents", h.agents)
	mux.HandleFunc("/agents/", h.agentResources)
	mux.HandleFunc("/capabilities", h.capabilities)
	mux.HandleFunc("/audit", h.auditQuery)
	return mux
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError renders the {detail} error body. Internal failures never leak
// the underlying message.
func writeError(w http.ResponseWriter, status int, err error) {
	detail := "Internal server error"
	if status != http.StatusInternalServerError && err != nil {
		detail = err.Error()
	}
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeServiceError maps a service error onto its HTTP status.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, errs.HTTPStatus(err), err)
}

// clientIP extracts the caller address, preferring the first forwarded hop.
func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

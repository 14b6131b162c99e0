package httpapi

import (
	"net/http"
	"strings"

	"github.com/aims-io/aims/internal/app/auth"
	"github.com/aims-io/aims/internal/app/domain/audit"
	"github.com/aims-io/aims/internal/app/domain/capability"
	"github.com/aims-io/aims/internal/app/errs"
)

// extractToken supports the standard Authorization header only; avoid query
// tokens.
func extractToken(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.Fields(authHeader)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// requireCapability verifies the bearer token and checks the capability the
// operation declares. The admin wildcard always passes. On failure the
// response has been written and ok is false.
func (h *handler) requireCapability(w http.ResponseWriter, r *http.Request, required string) (audit.Actor, *auth.Claims, bool) {
	token := extractToken(r)
	if token == "" {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, errs.Unauthorized("Not authenticated"))
		return audit.Actor{}, nil, false
	}

	claims, err := h.app.TokenManager.Validate(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errs.Unauthorized("Invalid or expired token"))
		return audit.Actor{}, nil, false
	}
	if strings.TrimSpace(claims.Subject) == "" {
		writeError(w, http.StatusUnauthorized, errs.Unauthorized("Invalid token payload"))
		return audit.Actor{}, nil, false
	}

	if !claims.HasScope(required, capability.Wildcard) {
		writeError(w, http.StatusForbidden, errs.Forbidden("Missing required capability: %s", required))
		return audit.Actor{}, nil, false
	}

	return audit.Actor{AgentID: claims.Subject, IP: clientIP(r)}, claims, true
}

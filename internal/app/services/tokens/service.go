// Package tokens implements the API-key-for-bearer-token exchange pipeline.
package tokens

import (
	"context"
	"time"

	"github.com/aims-io/aims/internal/app/auth"
	"github.com/aims-io/aims/internal/app/domain/agent"
	"github.com/aims-io/aims/internal/app/domain/apikey"
	"github.com/aims-io/aims/internal/app/domain/audit"
	"github.com/aims-io/aims/internal/app/domain/timefmt"
	"github.com/aims-io/aims/internal/app/errs"
	"github.com/aims-io/aims/internal/app/storage"
	"github.com/aims-io/aims/pkg/logger"
)

// Response is the successful exchange payload.
type Response struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Service exchanges raw API keys for signed bearer tokens. Every failure
// path writes its own audit row before the error is returned, so rejected
// attempts are recorded even though the request fails.
type Service struct {
	store      storage.Store
	manager    *auth.Manager
	graceHours int
	log        *logger.Logger
}

// NewService constructs the token exchange service.
func NewService(store storage.Store, manager *auth.Manager, graceHours int, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("tokens")
	}
	return &Service{store: store, manager: manager, graceHours: graceHours, log: log}
}

// fail records the rejected attempt and returns the client-facing error.
func (s *Service) fail(ctx context.Context, ip string, agentID *string, reason, detail string, forbidden bool) error {
	_, err := s.store.AppendAudit(ctx, audit.Entry{
		Timestamp:   timefmt.Now(),
		AgentID:     agentID,
		Action:      "auth.failed",
		DetailsJSON: audit.Details(map[string]any{"reason": reason}),
		IPAddress:   audit.Str(ip),
		Success:     0,
	})
	if err != nil {
		s.log.Warnf("audit write for failed auth: %v", err)
	}
	if forbidden {
		return errs.Forbidden(detail)
	}
	return errs.Unauthorized(detail)
}

// Exchange runs the issuance pipeline: key lookup by hash, key-state checks,
// grace and expiry checks, agent-state checks, scope gathering, last-used
// stamping, and the final mint. Key-state checks run before agent-state
// checks, so a revoked key on a suspended agent reports the key.
func (s *Service) Exchange(ctx context.Context, rawKey, ip string) (Response, error) {
	hash := auth.HashAPIKey(rawKey)

	key, err := s.store.GetKeyByHash(ctx, hash)
	if err != nil || !auth.HashEqual(hash, key.KeyHash) {
		return Response{}, s.fail(ctx, ip, nil, "invalid_key", "Invalid API key", false)
	}

	if key.Status == apikey.StatusRevoked {
		return Response{}, s.fail(ctx, ip, audit.Str(key.AgentID), "key_revoked", "API key has been revoked", false)
	}

	now := time.Now().UTC()

	if key.Status == apikey.StatusRotated && key.RotatedAt != nil {
		rotatedAt, err := timefmt.Parse(*key.RotatedAt)
		if err != nil || now.Sub(rotatedAt) > time.Duration(s.graceHours)*time.Hour {
			return Response{}, s.fail(ctx, ip, audit.Str(key.AgentID), "rotated_key_expired",
				"Rotated API key has expired past grace period", false)
		}
	}

	if key.ExpiresAt != nil {
		expiresAt, err := timefmt.Parse(*key.ExpiresAt)
		if err != nil || now.After(expiresAt) {
			return Response{}, s.fail(ctx, ip, audit.Str(key.AgentID), "key_expired", "API key has expired", false)
		}
	}

	owner, err := s.store.GetAgent(ctx, key.AgentID)
	if err != nil {
		return Response{}, err
	}
	switch owner.Status {
	case agent.StatusSuspended:
		return Response{}, s.fail(ctx, ip, audit.Str(owner.ID), "agent_suspended", "Agent is suspended", true)
	case agent.StatusRevoked:
		return Response{}, s.fail(ctx, ip, audit.Str(owner.ID), "agent_revoked", "Agent has been revoked", true)
	}

	scopes, err := s.store.ListAgentCapabilityNames(ctx, owner.ID)
	if err != nil {
		return Response{}, err
	}

	if err := s.store.TouchKeyLastUsed(ctx, key.ID, timefmt.Format(now)); err != nil {
		return Response{}, err
	}

	token, _, err := s.manager.Issue(owner.ID, scopes)
	if err != nil {
		return Response{}, err
	}

	if _, err := s.store.AppendAudit(ctx, audit.Entry{
		Timestamp:    timefmt.Now(),
		AgentID:      audit.Str(owner.ID),
		Action:       "auth.token_issued",
		ResourceType: audit.Str("api_key"),
		ResourceID:   audit.Str(key.ID),
		IPAddress:    audit.Str(ip),
		Success:      1,
	}); err != nil {
		s.log.Warnf("audit write for token issue: %v", err)
	}

	return Response{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.manager.TTL().Seconds()),
	}, nil
}

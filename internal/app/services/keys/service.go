// Package keys implements the API key lifecycle, including
// rotation-with-grace and terminal revocation.
package keys

import (
	"context"

	"github.com/google/uuid"

	"github.com/aims-io/aims/internal/app/auth"
	"github.com/aims-io/aims/internal/app/domain/apikey"
	"github.com/aims-io/aims/internal/app/domain/audit"
	"github.com/aims-io/aims/internal/app/domain/timefmt"
	"github.com/aims-io/aims/internal/app/errs"
	"github.com/aims-io/aims/internal/app/storage"
	"github.com/aims-io/aims/pkg/logger"
)

// Service manages the API keys of an agent.
type Service struct {
	agents     storage.AgentStore
	store      storage.APIKeyStore
	keyPrefix  string
	graceHours int
	log        *logger.Logger
}

// NewService constructs a key service. keyPrefix is prepended to generated
// raw keys; graceHours is the rotation grace window reported to clients.
func NewService(agents storage.AgentStore, store storage.APIKeyStore, keyPrefix string, graceHours int, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("keys")
	}
	return &Service{agents: agents, store: store, keyPrefix: keyPrefix, graceHours: graceHours, log: log}
}

func (s *Service) agentExists(ctx context.Context, agentID string) error {
	_, err := s.agents.GetAgent(ctx, agentID)
	return err
}

// keyOnAgent loads a key and verifies it belongs to the agent in the path.
func (s *Service) keyOnAgent(ctx context.Context, agentID, keyID string) (apikey.Key, error) {
	k, err := s.store.GetKey(ctx, keyID)
	if err != nil {
		return apikey.Key{}, err
	}
	if k.AgentID != agentID {
		return apikey.Key{}, errs.NotFound("API key not found")
	}
	return k, nil
}

// Create mints a new active key for the agent. The raw secret appears only
// in the returned value.
func (s *Service) Create(ctx context.Context, actor audit.Actor, agentID, name string, expiresAt *string) (apikey.Created, error) {
	if err := s.agentExists(ctx, agentID); err != nil {
		return apikey.Created{}, err
	}
	if name == "" {
		name = "default"
	}
	if len(name) > 128 {
		return apikey.Created{}, errs.Validation("name must be at most 128 characters")
	}

	raw, err := auth.GenerateAPIKey(s.keyPrefix)
	if err != nil {
		return apikey.Created{}, err
	}
	now := timefmt.Now()
	k := apikey.Key{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		KeyPrefix: auth.KeyPrefix(raw),
		KeyHash:   auth.HashAPIKey(raw),
		Name:      name,
		Status:    apikey.StatusActive,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}

	stored, err := s.store.CreateKey(ctx, k, audit.Entry{
		Timestamp:    now,
		AgentID:      audit.Str(actor.AgentID),
		Action:       "key.created",
		ResourceType: audit.Str("api_key"),
		ResourceID:   audit.Str(k.ID),
		DetailsJSON:  audit.Details(map[string]any{"target_agent": agentID, "key_name": name}),
		IPAddress:    audit.Str(actor.IP),
		Success:      1,
	})
	if err != nil {
		return apikey.Created{}, err
	}
	s.log.Infof("api key %s created for agent %s", stored.ID, agentID)

	return apikey.Created{
		ID:        stored.ID,
		AgentID:   stored.AgentID,
		KeyPrefix: stored.KeyPrefix,
		Name:      stored.Name,
		RawKey:    raw,
		Status:    stored.Status,
		ExpiresAt: stored.ExpiresAt,
		CreatedAt: stored.CreatedAt,
	}, nil
}

// List returns the agent's keys. Raw secrets are never part of the result.
func (s *Service) List(ctx context.Context, agentID string) ([]apikey.Key, error) {
	if err := s.agentExists(ctx, agentID); err != nil {
		return nil, err
	}
	return s.store.ListKeys(ctx, agentID)
}

// Rotate retires an active key into the grace window and returns its
// replacement, which inherits name and expiry.
func (s *Service) Rotate(ctx context.Context, actor audit.Actor, agentID, keyID string) (apikey.Rotation, error) {
	if err := s.agentExists(ctx, agentID); err != nil {
		return apikey.Rotation{}, err
	}
	old, err := s.keyOnAgent(ctx, agentID, keyID)
	if err != nil {
		return apikey.Rotation{}, err
	}
	if old.Status != apikey.StatusActive {
		return apikey.Rotation{}, errs.Precondition("Only active keys can be rotated")
	}

	raw, err := auth.GenerateAPIKey(s.keyPrefix)
	if err != nil {
		return apikey.Rotation{}, err
	}
	now := timefmt.Now()
	old.Status = apikey.StatusRotated
	old.RotatedAt = &now

	replacement := apikey.Key{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		KeyPrefix: auth.KeyPrefix(raw),
		KeyHash:   auth.HashAPIKey(raw),
		Name:      old.Name,
		Status:    apikey.StatusActive,
		ExpiresAt: old.ExpiresAt,
		CreatedAt: now,
	}

	stored, err := s.store.RotateKey(ctx, old, replacement, audit.Entry{
		Timestamp:    now,
		AgentID:      audit.Str(actor.AgentID),
		Action:       "key.rotated",
		ResourceType: audit.Str("api_key"),
		ResourceID:   audit.Str(old.ID),
		DetailsJSON:  audit.Details(map[string]any{"old_key_id": old.ID, "new_key_id": replacement.ID}),
		IPAddress:    audit.Str(actor.IP),
		Success:      1,
	})
	if err != nil {
		return apikey.Rotation{}, err
	}
	s.log.Infof("api key %s rotated to %s for agent %s", old.ID, stored.ID, agentID)

	return apikey.Rotation{
		OldKeyID: old.ID,
		NewKey: apikey.Created{
			ID:        stored.ID,
			AgentID:   stored.AgentID,
			KeyPrefix: stored.KeyPrefix,
			Name:      stored.Name,
			RawKey:    raw,
			Status:    stored.Status,
			ExpiresAt: stored.ExpiresAt,
			CreatedAt: stored.CreatedAt,
		},
		GracePeriodHours: s.graceHours,
	}, nil
}

// Revoke terminally revokes a key.
func (s *Service) Revoke(ctx context.Context, actor audit.Actor, agentID, keyID string) error {
	if err := s.agentExists(ctx, agentID); err != nil {
		return err
	}
	k, err := s.keyOnAgent(ctx, agentID, keyID)
	if err != nil {
		return err
	}
	if k.Status == apikey.StatusRevoked {
		return errs.Precondition("Key already revoked")
	}

	now := timefmt.Now()
	k.Status = apikey.StatusRevoked
	k.RevokedAt = &now

	_, err = s.store.UpdateKey(ctx, k, audit.Entry{
		Timestamp:    now,
		AgentID:      audit.Str(actor.AgentID),
		Action:       "key.revoked",
		ResourceType: audit.Str("api_key"),
		ResourceID:   audit.Str(k.ID),
		DetailsJSON:  audit.Details(map[string]any{"target_agent": agentID}),
		IPAddress:    audit.Str(actor.IP),
		Success:      1,
	})
	if err != nil {
		return err
	}
	s.log.Infof("api key %s revoked for agent %s", keyID, agentID)
	return nil
}

// Package capabilities manages permission atoms and their grants to agents.
package capabilities

import (
	"context"

	"github.com/google/uuid"

	"github.com/aims-io/aims/internal/app/domain/audit"
	"github.com/aims-io/aims/internal/app/domain/capability"
	"github.com/aims-io/aims/internal/app/domain/timefmt"
	"github.com/aims-io/aims/internal/app/errs"
	"github.com/aims-io/aims/internal/app/storage"
	"github.com/aims-io/aims/pkg/logger"
)

// Service provides capability and grant operations.
type Service struct {
	agents storage.AgentStore
	store  storage.CapabilityStore
	log    *logger.Logger
}

// NewService constructs a capability service.
func NewService(agents storage.AgentStore, store storage.CapabilityStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("capabilities")
	}
	return &Service{agents: agents, store: store, log: log}
}

// Create registers a new capability.
func (s *Service) Create(ctx context.Context, actor audit.Actor, name, description string) (capability.Capability, error) {
	if len(name) < 1 || len(name) > 128 {
		return capability.Capability{}, errs.Validation("name must be between 1 and 128 characters")
	}

	now := timefmt.Now()
	c := capability.Capability{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
	}

	created, err := s.store.CreateCapability(ctx, c, audit.Entry{
		Timestamp:    now,
		AgentID:      audit.Str(actor.AgentID),
		Action:       "capability.created",
		ResourceType: audit.Str("capability"),
		ResourceID:   audit.Str(c.ID),
		DetailsJSON:  audit.Details(map[string]any{"name": name}),
		IPAddress:    audit.Str(actor.IP),
		Success:      1,
	})
	if err != nil {
		return capability.Capability{}, err
	}
	s.log.Infof("capability %s (%s) created by %s", created.ID, name, actor.AgentID)
	return created, nil
}

// List returns all capabilities.
func (s *Service) List(ctx context.Context) ([]capability.Capability, error) {
	return s.store.ListCapabilities(ctx)
}

// Grant links a capability to an agent. Agents may not change their own
// grants.
func (s *Service) Grant(ctx context.Context, actor audit.Actor, agentID, capabilityID string) (capability.Capability, error) {
	if agentID == actor.AgentID {
		return capability.Capability{}, errs.Precondition("Cannot modify your own capabilities")
	}
	if _, err := s.agents.GetAgent(ctx, agentID); err != nil {
		return capability.Capability{}, err
	}
	c, err := s.store.GetCapability(ctx, capabilityID)
	if err != nil {
		return capability.Capability{}, err
	}

	now := timefmt.Now()
	g := capability.Grant{
		ID:           uuid.NewString(),
		AgentID:      agentID,
		CapabilityID: c.ID,
		GrantedAt:    now,
		GrantedBy:    audit.Str(actor.AgentID),
	}

	_, err = s.store.GrantCapability(ctx, g, audit.Entry{
		Timestamp:    now,
		AgentID:      audit.Str(actor.AgentID),
		Action:       "capability.granted",
		ResourceType: audit.Str("agent"),
		ResourceID:   audit.Str(agentID),
		DetailsJSON:  audit.Details(map[string]any{"capability": c.Name, "capability_id": c.ID}),
		IPAddress:    audit.Str(actor.IP),
		Success:      1,
	})
	if err != nil {
		return capability.Capability{}, err
	}
	s.log.Infof("capability %s granted to agent %s by %s", c.Name, agentID, actor.AgentID)
	return c, nil
}

// Revoke removes a grant.
func (s *Service) Revoke(ctx context.Context, actor audit.Actor, agentID, capabilityID string) error {
	if agentID == actor.AgentID {
		return errs.Precondition("Cannot modify your own capabilities")
	}
	if _, err := s.store.GetGrant(ctx, agentID, capabilityID); err != nil {
		return err
	}

	capName := capabilityID
	if c, err := s.store.GetCapability(ctx, capabilityID); err == nil {
		capName = c.Name
	}

	err := s.store.RevokeGrant(ctx, agentID, capabilityID, audit.Entry{
		Timestamp:    timefmt.Now(),
		AgentID:      audit.Str(actor.AgentID),
		Action:       "capability.revoked",
		ResourceType: audit.Str("agent"),
		ResourceID:   audit.Str(agentID),
		DetailsJSON:  audit.Details(map[string]any{"capability": capName, "capability_id": capabilityID}),
		IPAddress:    audit.Str(actor.IP),
		Success:      1,
	})
	if err != nil {
		return err
	}
	s.log.Infof("capability %s revoked from agent %s by %s", capName, agentID, actor.AgentID)
	return nil
}

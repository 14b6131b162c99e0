// Package agents implements the agent lifecycle: create, patch, suspend,
// reactivate, revoke with key cascade, and delete.
package agents

import (
	"context"

	"github.com/google/uuid"

	"github.com/aims-io/aims/internal/app/domain/agent"
	"github.com/aims-io/aims/internal/app/domain/audit"
	"github.com/aims-io/aims/internal/app/domain/timefmt"
	"github.com/aims-io/aims/internal/app/errs"
	"github.com/aims-io/aims/internal/app/storage"
	"github.com/aims-io/aims/pkg/logger"
)

// Service provides high-level operations for managing agents.
type Service struct {
	store storage.AgentStore
	log   *logger.Logger
}

// NewService constructs an agent service backed by the provided store.
func NewService(store storage.AgentStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("agents")
	}
	return &Service{store: store, log: log}
}

// CreateParams carries the create-agent request body.
type CreateParams struct {
	Name         string
	Description  string
	Owner        string
	AgentType    string
	MetadataJSON string
}

// PatchParams carries a partial update; nil fields are left untouched.
type PatchParams struct {
	Description  *string
	Owner        *string
	AgentType    *string
	MetadataJSON *string
}

// Create registers a new agent in the active state.
func (s *Service) Create(ctx context.Context, actor audit.Actor, p CreateParams) (agent.Agent, error) {
	if err := agent.ValidateName(p.Name); err != nil {
		return agent.Agent{}, err
	}
	if err := agent.ValidateOwner(p.Owner); err != nil {
		return agent.Agent{}, err
	}
	if p.AgentType == "" {
		p.AgentType = string(agent.TypeCustom)
	}
	if err := agent.ValidateType(p.AgentType); err != nil {
		return agent.Agent{}, err
	}
	if p.MetadataJSON == "" {
		p.MetadataJSON = "{}"
	}

	now := timefmt.Now()
	a := agent.Agent{
		ID:           uuid.NewString(),
		Name:         p.Name,
		Description:  p.Description,
		Owner:        p.Owner,
		Status:       agent.StatusActive,
		AgentType:    agent.Type(p.AgentType),
		MetadataJSON: p.MetadataJSON,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.store.CreateAgent(ctx, a, audit.Entry{
		Timestamp:    now,
		AgentID:      audit.Str(actor.AgentID),
		Action:       "agent.created",
		ResourceType: audit.Str("agent"),
		ResourceID:   audit.Str(a.ID),
		DetailsJSON:  audit.Details(map[string]any{"name": a.Name, "owner": a.Owner}),
		IPAddress:    audit.Str(actor.IP),
		Success:      1,
	})
	if err != nil {
		return agent.Agent{}, err
	}
	s.log.Infof("agent %s (%s) created by %s", created.ID, created.Name, actor.AgentID)
	return created, nil
}

// Get returns the agent with the given identifier.
func (s *Service) Get(ctx context.Context, id string) (agent.Agent, error) {
	return s.store.GetAgent(ctx, id)
}

// List returns agents matching the filter.
func (s *Service) List(ctx context.Context, f storage.AgentFilter) ([]agent.Agent, error) {
	return s.store.ListAgents(ctx, f)
}

// Patch applies a partial update and stamps updated_at.
func (s *Service) Patch(ctx context.Context, actor audit.Actor, id string, p PatchParams) (agent.Agent, error) {
	a, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return agent.Agent{}, err
	}

	var updated []string
	if p.Description != nil {
		a.Description = *p.Description
		updated = append(updated, "description")
	}
	if p.Owner != nil {
		if err := agent.ValidateOwner(*p.Owner); err != nil {
			return agent.Agent{}, err
		}
		a.Owner = *p.Owner
		updated = append(updated, "owner")
	}
	if p.AgentType != nil {
		if err := agent.ValidateType(*p.AgentType); err != nil {
			return agent.Agent{}, err
		}
		a.AgentType = agent.Type(*p.AgentType)
		updated = append(updated, "agent_type")
	}
	if p.MetadataJSON != nil {
		a.MetadataJSON = *p.MetadataJSON
		updated = append(updated, "metadata_json")
	}

	now := timefmt.Now()
	a.UpdatedAt = now

	return s.store.UpdateAgent(ctx, a, audit.Entry{
		Timestamp:    now,
		AgentID:      audit.Str(actor.AgentID),
		Action:       "agent.updated",
		ResourceType: audit.Str("agent"),
		ResourceID:   audit.Str(a.ID),
		DetailsJSON:  audit.Details(map[string]any{"updated_fields": updated}),
		IPAddress:    audit.Str(actor.IP),
		Success:      1,
	})
}

// Suspend moves an active agent into the suspended state. Acting on your own
// identity is rejected; revoked agents stay revoked.
func (s *Service) Suspend(ctx context.Context, actor audit.Actor, id, reason string) (agent.Agent, error) {
	if id == actor.AgentID {
		return agent.Agent{}, errs.Precondition("Cannot suspend yourself")
	}
	if err := agent.ValidateReason(reason); err != nil {
		return agent.Agent{}, err
	}
	a, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return agent.Agent{}, err
	}
	if a.Status == agent.StatusRevoked {
		return agent.Agent{}, errs.Precondition("Cannot suspend a revoked agent")
	}

	now := timefmt.Now()
	a.Status = agent.StatusSuspended
	a.SuspendedAt = &now
	a.UpdatedAt = now

	suspended, err := s.store.UpdateAgent(ctx, a, audit.Entry{
		Timestamp:    now,
		AgentID:      audit.Str(actor.AgentID),
		Action:       "agent.suspended",
		ResourceType: audit.Str("agent"),
		ResourceID:   audit.Str(a.ID),
		DetailsJSON:  audit.Details(map[string]any{"reason": reason}),
		IPAddress:    audit.Str(actor.IP),
		Success:      1,
	})
	if err != nil {
		return agent.Agent{}, err
	}
	s.log.Infof("agent %s suspended by %s", id, actor.AgentID)
	return suspended, nil
}

// Reactivate returns a suspended agent to the active state.
func (s *Service) Reactivate(ctx context.Context, actor audit.Actor, id string) (agent.Agent, error) {
	a, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return agent.Agent{}, err
	}
	if a.Status != agent.StatusSuspended {
		return agent.Agent{}, errs.Precondition("Only suspended agents can be reactivated")
	}

	now := timefmt.Now()
	a.Status = agent.StatusActive
	a.SuspendedAt = nil
	a.UpdatedAt = now

	reactivated, err := s.store.UpdateAgent(ctx, a, audit.Entry{
		Timestamp:    now,
		AgentID:      audit.Str(actor.AgentID),
		Action:       "agent.reactivated",
		ResourceType: audit.Str("agent"),
		ResourceID:   audit.Str(a.ID),
		IPAddress:    audit.Str(actor.IP),
		Success:      1,
	})
	if err != nil {
		return agent.Agent{}, err
	}
	s.log.Infof("agent %s reactivated by %s", id, actor.AgentID)
	return reactivated, nil
}

// Revoke terminally revokes an agent and all of its active API keys in a
// single transaction.
func (s *Service) Revoke(ctx context.Context, actor audit.Actor, id, reason string) (agent.Agent, error) {
	if id == actor.AgentID {
		return agent.Agent{}, errs.Precondition("Cannot revoke yourself")
	}
	if err := agent.ValidateReason(reason); err != nil {
		return agent.Agent{}, err
	}
	a, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return agent.Agent{}, err
	}
	if a.Status == agent.StatusRevoked {
		return agent.Agent{}, errs.Precondition("Agent already revoked")
	}

	now := timefmt.Now()
	a.Status = agent.StatusRevoked
	a.RevokedAt = &now
	a.UpdatedAt = now

	revoked, err := s.store.RevokeAgentCascade(ctx, a, now, audit.Entry{
		Timestamp:    now,
		AgentID:      audit.Str(actor.AgentID),
		Action:       "agent.revoked",
		ResourceType: audit.Str("agent"),
		ResourceID:   audit.Str(a.ID),
		DetailsJSON:  audit.Details(map[string]any{"reason": reason}),
		IPAddress:    audit.Str(actor.IP),
		Success:      1,
	})
	if err != nil {
		return agent.Agent{}, err
	}
	s.log.Infof("agent %s revoked by %s", id, actor.AgentID)
	return revoked, nil
}

// Delete permanently removes an agent; keys and grants go with it.
func (s *Service) Delete(ctx context.Context, actor audit.Actor, id string) error {
	if id == actor.AgentID {
		return errs.Precondition("Cannot delete yourself")
	}
	a, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return err
	}

	err = s.store.DeleteAgent(ctx, id, audit.Entry{
		Timestamp:    timefmt.Now(),
		AgentID:      audit.Str(actor.AgentID),
		Action:       "agent.deleted",
		ResourceType: audit.Str("agent"),
		ResourceID:   audit.Str(id),
		DetailsJSON:  audit.Details(map[string]any{"name": a.Name}),
		IPAddress:    audit.Str(actor.IP),
		Success:      1,
	})
	if err != nil {
		return err
	}
	s.log.Infof("agent %s deleted by %s", id, actor.AgentID)
	return nil
}

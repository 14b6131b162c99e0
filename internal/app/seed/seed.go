// Package seed bootstraps the first administrator: the default capability
// set, the admin agent with every grant, and its initial API key.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/aims-io/aims/internal/app/auth"
	"github.com/aims-io/aims/internal/app/domain/agent"
	"github.com/aims-io/aims/internal/app/domain/apikey"
	"github.com/aims-io/aims/internal/app/domain/audit"
	"github.com/aims-io/aims/internal/app/domain/capability"
	"github.com/aims-io/aims/internal/app/domain/timefmt"
	"github.com/aims-io/aims/internal/app/errs"
	"github.com/aims-io/aims/internal/app/storage"
)

// DefaultCapabilities is the capability set every deployment starts with.
var DefaultCapabilities = []capability.Capability{
	{Name: "agents:read", Description: "Read agent information"},
	{Name: "agents:write", Description: "Create and update agents"},
	{Name: "keys:manage", Description: "Create, rotate, and revoke API keys"},
	{Name: "audit:read", Description: "Read audit logs"},
	{Name: capability.Wildcard, Description: "Full administrative access"},
}

// Result reports what the bootstrap created. RawKey is shown exactly once.
type Result struct {
	AdminAgentID string
	RawKey       string
	Seeded       bool
}

// Run creates the admin agent and its credentials unless one already exists.
func Run(ctx context.Context, store storage.Store, keyPrefix string) (Result, error) {
	if _, err := store.GetAgentByName(ctx, "admin"); err == nil {
		return Result{Seeded: false}, nil
	} else if !errors.Is(err, errs.ErrNotFound) {
		return Result{}, err
	}

	now := timefmt.Now()
	system := audit.Str("system")

	caps := make([]capability.Capability, 0, len(DefaultCapabilities))
	for _, c := range DefaultCapabilities {
		c.ID = uuid.NewString()
		c.CreatedAt = now
		created, err := store.CreateCapability(ctx, c, audit.Entry{
			Timestamp:    now,
			Action:       "capability.created",
			ResourceType: audit.Str("capability"),
			ResourceID:   audit.Str(c.ID),
			DetailsJSON:  audit.Details(map[string]any{"name": c.Name}),
			Success:      1,
		})
		if err != nil {
			return Result{}, fmt.Errorf("seed capability %s: %w", c.Name, err)
		}
		caps = append(caps, created)
	}

	admin := agent.Agent{
		ID:           uuid.NewString(),
		Name:         "admin",
		Description:  "System administrator agent",
		Owner:        "system",
		Status:       agent.StatusActive,
		AgentType:    agent.TypeOrchestrator,
		MetadataJSON: "{}",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := store.CreateAgent(ctx, admin, audit.Entry{
		Timestamp:    now,
		Action:       "agent.created",
		ResourceType: audit.Str("agent"),
		ResourceID:   audit.Str(admin.ID),
		DetailsJSON:  audit.Details(map[string]any{"name": admin.Name, "owner": admin.Owner}),
		Success:      1,
	}); err != nil {
		return Result{}, fmt.Errorf("seed admin agent: %w", err)
	}

	for _, c := range caps {
		g := capability.Grant{
			ID:           uuid.NewString(),
			AgentID:      admin.ID,
			CapabilityID: c.ID,
			GrantedAt:    now,
			GrantedBy:    system,
		}
		if _, err := store.GrantCapability(ctx, g, audit.Entry{
			Timestamp:    now,
			Action:       "capability.granted",
			ResourceType: audit.Str("agent"),
			ResourceID:   audit.Str(admin.ID),
			DetailsJSON:  audit.Details(map[string]any{"capability": c.Name, "capability_id": c.ID}),
			Success:      1,
		}); err != nil {
			return Result{}, fmt.Errorf("seed grant %s: %w", c.Name, err)
		}
	}

	raw, err := auth.GenerateAPIKey(keyPrefix)
	if err != nil {
		return Result{}, err
	}
	key := apikey.Key{
		ID:        uuid.NewString(),
		AgentID:   admin.ID,
		KeyPrefix: auth.KeyPrefix(raw),
		KeyHash:   auth.HashAPIKey(raw),
		Name:      "admin-bootstrap",
		Status:    apikey.StatusActive,
		CreatedAt: now,
	}
	if _, err := store.CreateKey(ctx, key, audit.Entry{
		Timestamp:    now,
		Action:       "key.created",
		ResourceType: audit.Str("api_key"),
		ResourceID:   audit.Str(key.ID),
		DetailsJSON:  audit.Details(map[string]any{"target_agent": admin.ID, "key_name": key.Name}),
		Success:      1,
	}); err != nil {
		return Result{}, fmt.Errorf("seed admin key: %w", err)
	}

	return Result{AdminAgentID: admin.ID, RawKey: raw, Seeded: true}, nil
}

package storage

import (
	"context"

	"github.com/aims-io/aims/internal/app/domain/agent"
	"github.com/aims-io/aims/internal/app/domain/apikey"
	"github.com/aims-io/aims/internal/app/domain/audit"
	"github.com/aims-io/aims/internal/app/domain/capability"
)

// AgentFilter narrows ListAgents. Empty fields match everything.
type AgentFilter struct {
	Status    string
	Owner     string
	AgentType string
}

// AgentStore persists agents. Mutations take the audit entry that must land
// in the same transaction as the row change.
type AgentStore interface {
	CreateAgent(ctx context.Context, a agent.Agent, entry audit.Entry) (agent.Agent, error)
	GetAgent(ctx context.Context, id string) (agent.Agent, error)
	GetAgentByName(ctx context.Context, name string) (agent.Agent, error)
	ListAgents(ctx context.Context, f AgentFilter) ([]agent.Agent, error)
	UpdateAgent(ctx context.Context, a agent.Agent, entry audit.Entry) (agent.Agent, error)
	// RevokeAgentCascade persists the revoked agent and flips all of its
	// active keys to revoked in one transaction.
	RevokeAgentCascade(ctx context.Context, a agent.Agent, now string, entry audit.Entry) (agent.Agent, error)
	DeleteAgent(ctx context.Context, id string, entry audit.Entry) error
}

// APIKeyStore persists API keys.
type APIKeyStore interface {
	CreateKey(ctx context.Context, k apikey.Key, entry audit.Entry) (apikey.Key, error)
	GetKey(ctx context.Context, id string) (apikey.Key, error)
	// GetKeyByHash looks a key up by its stored SHA-256 digest.
	GetKeyByHash(ctx context.Context, hash string) (apikey.Key, error)
	ListKeys(ctx context.Context, agentID string) ([]apikey.Key, error)
	UpdateKey(ctx context.Context, k apikey.Key, entry audit.Entry) (apikey.Key, error)
	// RotateKey stores the rotated source key and its replacement in one
	// transaction; the returned key is the stored replacement.
	RotateKey(ctx context.Context, old apikey.Key, replacement apikey.Key, entry audit.Entry) (apikey.Key, error)
	TouchKeyLastUsed(ctx context.Context, id string, when string) error
}

// CapabilityStore persists capabilities and their grants.
type CapabilityStore interface {
	CreateCapability(ctx context.Context, c capability.Capability, entry audit.Entry) (capability.Capability, error)
	GetCapability(ctx context.Context, id string) (capability.Capability, error)
	GetCapabilityByName(ctx context.Context, name string) (capability.Capability, error)
	ListCapabilities(ctx context.Context) ([]capability.Capability, error)
	GrantCapability(ctx context.Context, g capability.Grant, entry audit.Entry) (capability.Grant, error)
	GetGrant(ctx context.Context, agentID, capabilityID string) (capability.Grant, error)
	RevokeGrant(ctx context.Context, agentID, capabilityID string, entry audit.Entry) error
	// ListAgentCapabilityNames resolves the capability names granted to an
	// agent, the scope snapshot minted into tokens.
	ListAgentCapabilityNames(ctx context.Context, agentID string) ([]string, error)
}

// AuditStore appends and queries audit rows. Append commits on its own so
// failed-authentication rows survive the failed request.
type AuditStore interface {
	AppendAudit(ctx context.Context, e audit.Entry) (audit.Entry, error)
	QueryAudit(ctx context.Context, f audit.Filter) ([]audit.Entry, error)
}

// Store is the full persistence surface of the service.
type Store interface {
	AgentStore
	APIKeyStore
	CapabilityStore
	AuditStore
}

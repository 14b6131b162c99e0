package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aims-io/aims/internal/app/auth"
	"github.com/aims-io/aims/internal/app/domain/agent"
	"github.com/aims-io/aims/internal/app/domain/apikey"
	"github.com/aims-io/aims/internal/app/domain/audit"
	"github.com/aims-io/aims/internal/app/domain/capability"
	"github.com/aims-io/aims/internal/app/domain/timefmt"
	"github.com/aims-io/aims/internal/app/errs"
)

// Memory is a thread-safe in-memory persistence layer implementing the
// storage interfaces. It backs tests and DSN-less runs and mirrors the
// relational constraints: unique names, the unique grant pair, and delete
// cascades.
type Memory struct {
	mu       sync.RWMutex
	agents   map[string]agent.Agent
	keys     map[string]apikey.Key
	caps     map[string]capability.Capability
	grants   map[string]capability.Grant
	auditLog []audit.Entry
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		agents: make(map[string]agent.Agent),
		keys:   make(map[string]apikey.Key),
		caps:   make(map[string]capability.Capability),
		grants: make(map[string]capability.Grant),
	}
}

func (m *Memory) appendAuditLocked(e audit.Entry) audit.Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp == "" {
		e.Timestamp = timefmt.Now()
	}
	if e.DetailsJSON == "" {
		e.DetailsJSON = "{}"
	}
	m.auditLog = append(m.auditLog, e)
	return e
}

// --- AgentStore --------------------------------------------------------------

func (m *Memory) CreateAgent(_ context.Context, a agent.Agent, entry audit.Entry) (agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.agents {
		if existing.Name == a.Name {
			return agent.Agent{}, errs.Conflict("Agent name already exists")
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.agents[a.ID] = a
	m.appendAuditLocked(entry)
	return a, nil
}

func (m *Memory) GetAgent(_ context.Context, id string) (agent.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[id]
	if !ok {
		return agent.Agent{}, errs.NotFound("Agent not found")
	}
	return a, nil
}

func (m *Memory) GetAgentByName(_ context.Context, name string) (agent.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.agents {
		if a.Name == name {
			return a, nil
		}
	}
	return agent.Agent{}, errs.NotFound("Agent not found")
}

func (m *Memory) ListAgents(_ context.Context, f AgentFilter) ([]agent.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]agent.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		if f.Status != "" && string(a.Status) != f.Status {
			continue
		}
		if f.Owner != "" && a.Owner != f.Owner {
			continue
		}
		if f.AgentType != "" && string(a.AgentType) != f.AgentType {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt < result[j].CreatedAt })
	return result, nil
}

func (m *Memory) UpdateAgent(_ context.Context, a agent.Agent, entry audit.Entry) (agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[a.ID]; !ok {
		return agent.Agent{}, errs.NotFound("Agent not found")
	}
	m.agents[a.ID] = a
	m.appendAuditLocked(entry)
	return a, nil
}

func (m *Memory) RevokeAgentCascade(_ context.Context, a agent.Agent, now string, entry audit.Entry) (agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[a.ID]; !ok {
		return agent.Agent{}, errs.NotFound("Agent not found")
	}
	m.agents[a.ID] = a
	for id, k := range m.keys {
		if k.AgentID == a.ID && k.Status == apikey.StatusActive {
			revokedAt := now
			k.Status = apikey.StatusRevoked
			k.RevokedAt = &revokedAt
			m.keys[id] = k
		}
	}
	m.appendAuditLocked(entry)
	return a, nil
}

func (m *Memory) DeleteAgent(_ context.Context, id string, entry audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[id]; !ok {
		return errs.NotFound("Agent not found")
	}
	delete(m.agents, id)
	for kid, k := range m.keys {
		if k.AgentID == id {
			delete(m.keys, kid)
		}
	}
	for gid, g := range m.grants {
		if g.AgentID == id {
			delete(m.grants, gid)
		}
	}
	m.appendAuditLocked(entry)
	return nil
}

// --- APIKeyStore -------------------------------------------------------------

func (m *Memory) CreateKey(_ context.Context, k apikey.Key, entry audit.Entry) (apikey.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[k.AgentID]; !ok {
		return apikey.Key{}, errs.NotFound("Agent not found")
	}
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	m.keys[k.ID] = k
	m.appendAuditLocked(entry)
	return k, nil
}

func (m *Memory) GetKey(_ context.Context, id string) (apikey.Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k, ok := m.keys[id]
	if !ok {
		return apikey.Key{}, errs.NotFound("API key not found")
	}
	return k, nil
}

func (m *Memory) GetKeyByHash(_ context.Context, hash string) (apikey.Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Scan with a timing-safe comparison instead of a map lookup keyed on
	// the digest.
	for _, k := range m.keys {
		if auth.HashEqual(k.KeyHash, hash) {
			return k, nil
		}
	}
	return apikey.Key{}, errs.NotFound("API key not found")
}

func (m *Memory) ListKeys(_ context.Context, agentID string) ([]apikey.Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []apikey.Key
	for _, k := range m.keys {
		if k.AgentID == agentID {
			result = append(result, k)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt < result[j].CreatedAt })
	return result, nil
}

func (m *Memory) UpdateKey(_ context.Context, k apikey.Key, entry audit.Entry) (apikey.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.keys[k.ID]; !ok {
		return apikey.Key{}, errs.NotFound("API key not found")
	}
	m.keys[k.ID] = k
	m.appendAuditLocked(entry)
	return k, nil
}

func (m *Memory) RotateKey(_ context.Context, old apikey.Key, replacement apikey.Key, entry audit.Entry) (apikey.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.keys[old.ID]; !ok {
		return apikey.Key{}, errs.NotFound("API key not found")
	}
	if replacement.ID == "" {
		replacement.ID = uuid.NewString()
	}
	m.keys[old.ID] = old
	m.keys[replacement.ID] = replacement
	m.appendAuditLocked(entry)
	return replacement, nil
}

func (m *Memory) TouchKeyLastUsed(_ context.Context, id string, when string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.keys[id]
	if !ok {
		return errs.NotFound("API key not found")
	}
	k.LastUsedAt = &when
	m.keys[id] = k
	return nil
}

// --- CapabilityStore ---------------------------------------------------------

func (m *Memory) CreateCapability(_ context.Context, c capability.Capability, entry audit.Entry) (capability.Capability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.caps {
		if existing.Name == c.Name {
			return capability.Capability{}, errs.Conflict("Capability already exists")
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.caps[c.ID] = c
	m.appendAuditLocked(entry)
	return c, nil
}

func (m *Memory) GetCapability(_ context.Context, id string) (capability.Capability, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.caps[id]
	if !ok {
		return capability.Capability{}, errs.NotFound("Capability not found")
	}
	return c, nil
}

func (m *Memory) GetCapabilityByName(_ context.Context, name string) (capability.Capability, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.caps {
		if c.Name == name {
			return c, nil
		}
	}
	return capability.Capability{}, errs.NotFound("Capability not found")
}

func (m *Memory) ListCapabilities(_ context.Context) ([]capability.Capability, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]capability.Capability, 0, len(m.caps))
	for _, c := range m.caps {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt < result[j].CreatedAt })
	return result, nil
}

func (m *Memory) GrantCapability(_ context.Context, g capability.Grant, entry audit.Entry) (capability.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[g.AgentID]; !ok {
		return capability.Grant{}, errs.NotFound("Agent not found")
	}
	if _, ok := m.caps[g.CapabilityID]; !ok {
		return capability.Grant{}, errs.NotFound("Capability not found")
	}
	for _, existing := range m.grants {
		if existing.AgentID == g.AgentID && existing.CapabilityID == g.CapabilityID {
			return capability.Grant{}, errs.Conflict("Capability already granted")
		}
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	m.grants[g.ID] = g
	m.appendAuditLocked(entry)
	return g, nil
}

func (m *Memory) GetGrant(_ context.Context, agentID, capabilityID string) (capability.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, g := range m.grants {
		if g.AgentID == agentID && g.CapabilityID == capabilityID {
			return g, nil
		}
	}
	return capability.Grant{}, errs.NotFound("Capability grant not found")
}

func (m *Memory) RevokeGrant(_ context.Context, agentID, capabilityID string, entry audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, g := range m.grants {
		if g.AgentID == agentID && g.CapabilityID == capabilityID {
			delete(m.grants, id)
			m.appendAuditLocked(entry)
			return nil
		}
	}
	return errs.NotFound("Capability grant not found")
}

func (m *Memory) ListAgentCapabilityNames(_ context.Context, agentID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for _, g := range m.grants {
		if g.AgentID != agentID {
			continue
		}
		if c, ok := m.caps[g.CapabilityID]; ok {
			names = append(names, c.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// --- AuditStore --------------------------------------------------------------

func (m *Memory) AppendAudit(_ context.Context, e audit.Entry) (audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.appendAuditLocked(e), nil
}

func (m *Memory) QueryAudit(_ context.Context, f audit.Filter) ([]audit.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []audit.Entry
	for _, e := range m.auditLog {
		if f.AgentID != "" && (e.AgentID == nil || *e.AgentID != f.AgentID) {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.ResourceType != "" && (e.ResourceType == nil || *e.ResourceType != f.ResourceType) {
			continue
		}
		if f.StartDate != "" && strings.Compare(e.Timestamp, f.StartDate) < 0 {
			continue
		}
		if f.EndDate != "" && strings.Compare(e.Timestamp, f.EndDate) > 0 {
			continue
		}
		result = append(result, e)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Timestamp > result[j].Timestamp })

	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return []audit.Entry{}, nil
	}
	result = result[offset:]

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

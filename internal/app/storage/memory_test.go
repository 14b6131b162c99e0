package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aims-io/aims/internal/app/auth"
	"github.com/aims-io/aims/internal/app/domain/agent"
	"github.com/aims-io/aims/internal/app/domain/apikey"
	"github.com/aims-io/aims/internal/app/domain/audit"
	"github.com/aims-io/aims/internal/app/domain/capability"
	"github.com/aims-io/aims/internal/app/domain/timefmt"
	"github.com/aims-io/aims/internal/app/errs"
)

func testAgent(name string) agent.Agent {
	now := timefmt.Now()
	return agent.Agent{
		Name:         name,
		Owner:        "tester",
		Status:       agent.StatusActive,
		AgentType:    agent.TypeCustom,
		MetadataJSON: "{}",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func testEntry(action string) audit.Entry {
	return audit.Entry{Action: action, Success: 1}
}

func TestCreateAgentEnforcesUniqueName(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.CreateAgent(ctx, testAgent("alpha"), testEntry("agent.created"))
	require.NoError(t, err)

	_, err = m.CreateAgent(ctx, testAgent("alpha"), testEntry("agent.created"))
	require.ErrorIs(t, err, errs.ErrConflict)
}

func TestListAgentsFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a := testAgent("a")
	a.Owner = "alice"
	a.AgentType = agent.TypeLLM
	_, err := m.CreateAgent(ctx, a, testEntry("agent.created"))
	require.NoError(t, err)

	b := testAgent("b")
	b.Owner = "bob"
	_, err = m.CreateAgent(ctx, b, testEntry("agent.created"))
	require.NoError(t, err)

	byOwner, err := m.ListAgents(ctx, AgentFilter{Owner: "alice"})
	require.NoError(t, err)
	require.Len(t, byOwner, 1)
	require.Equal(t, "a", byOwner[0].Name)

	byType, err := m.ListAgents(ctx, AgentFilter{AgentType: "llm"})
	require.NoError(t, err)
	require.Len(t, byType, 1)

	all, err := m.ListAgents(ctx, AgentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestRevokeAgentCascadeRevokesActiveKeys(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, err := m.CreateAgent(ctx, testAgent("victim"), testEntry("agent.created"))
	require.NoError(t, err)

	now := timefmt.Now()
	active, err := m.CreateKey(ctx, apikey.Key{
		AgentID: a.ID, KeyHash: auth.HashAPIKey("k1"), KeyPrefix: "aims_aaa",
		Name: "one", Status: apikey.StatusActive, CreatedAt: now,
	}, testEntry("key.created"))
	require.NoError(t, err)

	already := now
	revoked, err := m.CreateKey(ctx, apikey.Key{
		AgentID: a.ID, KeyHash: auth.HashAPIKey("k2"), KeyPrefix: "aims_bbb",
		Name: "two", Status: apikey.StatusRevoked, RevokedAt: &already, CreatedAt: now,
	}, testEntry("key.created"))
	require.NoError(t, err)

	a.Status = agent.StatusRevoked
	a.RevokedAt = &now
	a.UpdatedAt = now
	_, err = m.RevokeAgentCascade(ctx, a, now, testEntry("agent.revoked"))
	require.NoError(t, err)

	got, err := m.GetKey(ctx, active.ID)
	require.NoError(t, err)
	require.Equal(t, apikey.StatusRevoked, got.Status)
	require.NotNil(t, got.RevokedAt)

	// The already revoked key keeps its original revocation timestamp.
	got, err = m.GetKey(ctx, revoked.ID)
	require.NoError(t, err)
	require.Equal(t, &already, got.RevokedAt)
}

func TestDeleteAgentCascades(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, err := m.CreateAgent(ctx, testAgent("gone"), testEntry("agent.created"))
	require.NoError(t, err)

	k, err := m.CreateKey(ctx, apikey.Key{
		AgentID: a.ID, KeyHash: auth.HashAPIKey("k"), Status: apikey.StatusActive, CreatedAt: timefmt.Now(),
	}, testEntry("key.created"))
	require.NoError(t, err)

	c, err := m.CreateCapability(ctx, capability.Capability{Name: "x:y", CreatedAt: timefmt.Now()}, testEntry("capability.created"))
	require.NoError(t, err)
	_, err = m.GrantCapability(ctx, capability.Grant{AgentID: a.ID, CapabilityID: c.ID, GrantedAt: timefmt.Now()}, testEntry("capability.granted"))
	require.NoError(t, err)

	require.NoError(t, m.DeleteAgent(ctx, a.ID, testEntry("agent.deleted")))

	_, err = m.GetKey(ctx, k.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = m.GetGrant(ctx, a.ID, c.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestGetKeyByHash(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, err := m.CreateAgent(ctx, testAgent("holder"), testEntry("agent.created"))
	require.NoError(t, err)

	hash := auth.HashAPIKey("aims_secret")
	created, err := m.CreateKey(ctx, apikey.Key{
		AgentID: a.ID, KeyHash: hash, Status: apikey.StatusActive, CreatedAt: timefmt.Now(),
	}, testEntry("key.created"))
	require.NoError(t, err)

	found, err := m.GetKeyByHash(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)

	_, err = m.GetKeyByHash(ctx, auth.HashAPIKey("other"))
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestGrantPairIsUnique(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, err := m.CreateAgent(ctx, testAgent("grantee"), testEntry("agent.created"))
	require.NoError(t, err)
	c, err := m.CreateCapability(ctx, capability.Capability{Name: "agents:read", CreatedAt: timefmt.Now()}, testEntry("capability.created"))
	require.NoError(t, err)

	g := capability.Grant{AgentID: a.ID, CapabilityID: c.ID, GrantedAt: timefmt.Now()}
	_, err = m.GrantCapability(ctx, g, testEntry("capability.granted"))
	require.NoError(t, err)

	_, err = m.GrantCapability(ctx, g, testEntry("capability.granted"))
	require.ErrorIs(t, err, errs.ErrConflict)
}

func TestCapabilityNameIsUnique(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.CreateCapability(ctx, capability.Capability{Name: "dup", CreatedAt: timefmt.Now()}, testEntry("capability.created"))
	require.NoError(t, err)
	_, err = m.CreateCapability(ctx, capability.Capability{Name: "dup", CreatedAt: timefmt.Now()}, testEntry("capability.created"))
	require.ErrorIs(t, err, errs.ErrConflict)
}

func TestListAgentCapabilityNames(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, err := m.CreateAgent(ctx, testAgent("scoped"), testEntry("agent.created"))
	require.NoError(t, err)
	for _, name := range []string{"agents:read", "keys:manage"} {
		c, err := m.CreateCapability(ctx, capability.Capability{Name: name, CreatedAt: timefmt.Now()}, testEntry("capability.created"))
		require.NoError(t, err)
		_, err = m.GrantCapability(ctx, capability.Grant{AgentID: a.ID, CapabilityID: c.ID, GrantedAt: timefmt.Now()}, testEntry("capability.granted"))
		require.NoError(t, err)
	}

	names, err := m.ListAgentCapabilityNames(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"agents:read", "keys:manage"}, names)
}

func TestQueryAuditFiltersAndOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	actor := "agent-1"
	for i, action := range []string{"agent.created", "agent.updated", "auth.failed"} {
		entry := audit.Entry{
			Timestamp: timefmt.Format(timeAt(2025, 1, i+1)),
			AgentID:   &actor,
			Action:    action,
			Success:   1,
		}
		_, err := m.AppendAudit(ctx, entry)
		require.NoError(t, err)
	}

	all, err := m.QueryAudit(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	require.Equal(t, "auth.failed", all[0].Action)

	byAction, err := m.QueryAudit(ctx, audit.Filter{Action: "agent.updated"})
	require.NoError(t, err)
	require.Len(t, byAction, 1)

	ranged, err := m.QueryAudit(ctx, audit.Filter{
		StartDate: timefmt.Format(timeAt(2025, 1, 2)),
		EndDate:   timefmt.Format(timeAt(2025, 1, 3)),
	})
	require.NoError(t, err)
	require.Len(t, ranged, 2)

	paged, err := m.QueryAudit(ctx, audit.Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	require.Equal(t, "agent.updated", paged[0].Action)

	past, err := m.QueryAudit(ctx, audit.Filter{Offset: 10})
	require.NoError(t, err)
	require.Empty(t, past)
}

func TestUpdateAgentMissingRow(t *testing.T) {
	m := NewMemory()
	_, err := m.UpdateAgent(context.Background(), agent.Agent{ID: "nope"}, testEntry("agent.updated"))
	require.True(t, errors.Is(err, errs.ErrNotFound))
}

func timeAt(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

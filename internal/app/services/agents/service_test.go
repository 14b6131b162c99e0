package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aims-io/aims/internal/app/domain/agent"
	"github.com/aims-io/aims/internal/app/domain/audit"
	"github.com/aims-io/aims/internal/app/errs"
	"github.com/aims-io/aims/internal/app/storage"
)

var actor = audit.Actor{AgentID: "admin-1", IP: "127.0.0.1"}

func newService() (*Service, *storage.Memory) {
	store := storage.NewMemory()
	return NewService(store, nil), store
}

func create(t *testing.T, s *Service, name string) agent.Agent {
	t.Helper()
	a, err := s.Create(context.Background(), actor, CreateParams{Name: name, Owner: "tester"})
	require.NoError(t, err)
	return a
}

func TestCreateDefaultsAndAudit(t *testing.T) {
	s, store := newService()
	a := create(t, s, "worker")

	require.Equal(t, agent.StatusActive, a.Status)
	require.Equal(t, agent.TypeCustom, a.AgentType)
	require.Equal(t, "{}", a.MetadataJSON)
	require.Equal(t, a.CreatedAt, a.UpdatedAt)
	require.Nil(t, a.SuspendedAt)
	require.Nil(t, a.RevokedAt)

	rows, err := store.QueryAudit(context.Background(), audit.Filter{Action: "agent.created"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "admin-1", *rows[0].AgentID)
	require.Equal(t, a.ID, *rows[0].ResourceID)
	require.Equal(t, 1, rows[0].Success)
}

func TestCreateValidation(t *testing.T) {
	s, _ := newService()
	ctx := context.Background()

	_, err := s.Create(ctx, actor, CreateParams{Name: "bad name!", Owner: "tester"})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.Create(ctx, actor, CreateParams{Name: "", Owner: "tester"})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.Create(ctx, actor, CreateParams{Name: "ok", Owner: ""})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.Create(ctx, actor, CreateParams{Name: "ok", Owner: "tester", AgentType: "robot"})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestCreateDuplicateName(t *testing.T) {
	s, _ := newService()
	create(t, s, "dup")
	_, err := s.Create(context.Background(), actor, CreateParams{Name: "dup", Owner: "tester"})
	require.ErrorIs(t, err, errs.ErrConflict)
}

func TestPatchUpdatesFields(t *testing.T) {
	s, store := newService()
	a := create(t, s, "patchme")

	owner := "new-owner"
	desc := "updated"
	updated, err := s.Patch(context.Background(), actor, a.ID, PatchParams{Owner: &owner, Description: &desc})
	require.NoError(t, err)
	require.Equal(t, "new-owner", updated.Owner)
	require.Equal(t, "updated", updated.Description)
	require.Equal(t, a.Name, updated.Name)

	rows, err := store.QueryAudit(context.Background(), audit.Filter{Action: "agent.updated"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestSuspendAndReactivate(t *testing.T) {
	s, _ := newService()
	ctx := context.Background()
	a := create(t, s, "target")

	suspended, err := s.Suspend(ctx, actor, a.ID, "misbehaving")
	require.NoError(t, err)
	require.Equal(t, agent.StatusSuspended, suspended.Status)
	require.NotNil(t, suspended.SuspendedAt)

	reactivated, err := s.Reactivate(ctx, actor, a.ID)
	require.NoError(t, err)
	require.Equal(t, agent.StatusActive, reactivated.Status)
	require.Nil(t, reactivated.SuspendedAt)
}

func TestReactivateRequiresSuspended(t *testing.T) {
	s, _ := newService()
	a := create(t, s, "activeone")
	_, err := s.Reactivate(context.Background(), actor, a.ID)
	require.ErrorIs(t, err, errs.ErrPrecondition)
}

func TestSelfProtection(t *testing.T) {
	s, _ := newService()
	ctx := context.Background()
	self := audit.Actor{AgentID: "me", IP: "127.0.0.1"}

	_, err := s.Suspend(ctx, self, "me", "nope")
	require.ErrorIs(t, err, errs.ErrPrecondition)
	_, err = s.Revoke(ctx, self, "me", "nope")
	require.ErrorIs(t, err, errs.ErrPrecondition)
	err = s.Delete(ctx, self, "me")
	require.ErrorIs(t, err, errs.ErrPrecondition)
}

func TestRevokeIsTerminal(t *testing.T) {
	s, _ := newService()
	ctx := context.Background()
	a := create(t, s, "doomed")

	revoked, err := s.Revoke(ctx, actor, a.ID, "compromised")
	require.NoError(t, err)
	require.Equal(t, agent.StatusRevoked, revoked.Status)
	require.NotNil(t, revoked.RevokedAt)

	_, err = s.Revoke(ctx, actor, a.ID, "again")
	require.ErrorIs(t, err, errs.ErrPrecondition)
	_, err = s.Suspend(ctx, actor, a.ID, "too late")
	require.ErrorIs(t, err, errs.ErrPrecondition)
}

func TestRevokeEmitsSingleAuditRow(t *testing.T) {
	s, store := newService()
	ctx := context.Background()
	a := create(t, s, "audited")

	_, err := s.Revoke(ctx, actor, a.ID, "cleanup")
	require.NoError(t, err)

	rows, err := store.QueryAudit(ctx, audit.Filter{Action: "agent.revoked"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// The cascade does not audit keys individually.
	keyRows, err := store.QueryAudit(ctx, audit.Filter{Action: "key.revoked"})
	require.NoError(t, err)
	require.Empty(t, keyRows)
}

func TestDeleteAgent(t *testing.T) {
	s, _ := newService()
	ctx := context.Background()
	a := create(t, s, "deleted")

	require.NoError(t, s.Delete(ctx, actor, a.ID))
	_, err := s.Get(ctx, a.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestReasonBound(t *testing.T) {
	s, _ := newService()
	a := create(t, s, "verbose")
	long := make([]byte, 501)
	for i := range long {
		long[i] = 'x'
	}
	_, err := s.Suspend(context.Background(), actor, a.ID, string(long))
	require.ErrorIs(t, err, errs.ErrValidation)
}

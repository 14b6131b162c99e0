package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aims-io/aims/internal/app/auth"
	"github.com/aims-io/aims/internal/app/domain/audit"
	"github.com/aims-io/aims/internal/app/storage"
)

func TestRunBootstrapsAdmin(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	result, err := Run(ctx, store, "aims_")
	require.NoError(t, err)
	require.True(t, result.Seeded)
	require.True(t, strings.HasPrefix(result.RawKey, "aims_"))

	admin, err := store.GetAgentByName(ctx, "admin")
	require.NoError(t, err)
	require.Equal(t, result.AdminAgentID, admin.ID)
	require.Equal(t, "system", admin.Owner)

	names, err := store.ListAgentCapabilityNames(ctx, admin.ID)
	require.NoError(t, err)
	require.Len(t, names, len(DefaultCapabilities))
	require.Contains(t, names, "admin:*")

	// The bootstrap key authenticates by hash.
	key, err := store.GetKeyByHash(ctx, auth.HashAPIKey(result.RawKey))
	require.NoError(t, err)
	require.Equal(t, admin.ID, key.AgentID)
}

func TestRunIsIdempotent(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	first, err := Run(ctx, store, "aims_")
	require.NoError(t, err)
	require.True(t, first.Seeded)

	second, err := Run(ctx, store, "aims_")
	require.NoError(t, err)
	require.False(t, second.Seeded)
	require.Empty(t, second.RawKey)

	caps, err := store.ListCapabilities(ctx)
	require.NoError(t, err)
	require.Len(t, caps, len(DefaultCapabilities))
}

func TestRunAuditsBootstrap(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	_, err := Run(ctx, store, "aims_")
	require.NoError(t, err)

	rows, err := store.QueryAudit(ctx, audit.Filter{Action: "agent.created"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

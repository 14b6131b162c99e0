package auditlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aims-io/aims/internal/app/domain/audit"
	"github.com/aims-io/aims/internal/app/errs"
	"github.com/aims-io/aims/internal/app/storage"
)

func TestQueryBounds(t *testing.T) {
	s := NewService(storage.NewMemory(), nil)
	ctx := context.Background()

	_, err := s.Query(ctx, audit.Filter{Limit: 501})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.Query(ctx, audit.Filter{Limit: -1})
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.Query(ctx, audit.Filter{Offset: -1})
	require.ErrorIs(t, err, errs.ErrValidation)

	entries, err := s.Query(ctx, audit.Filter{})
	require.NoError(t, err)
	require.NotNil(t, entries)
	require.Empty(t, entries)
}

func TestQueryDefaultsLimit(t *testing.T) {
	store := storage.NewMemory()
	s := NewService(store, nil)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		_, err := store.AppendAudit(ctx, audit.Entry{Action: "agent.created", Success: 1})
		require.NoError(t, err)
	}

	entries, err := s.Query(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 50)
}

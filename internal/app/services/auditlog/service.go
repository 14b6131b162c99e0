// Package auditlog exposes read access to the append-only audit trail.
package auditlog

import (
	"context"

	"github.com/aims-io/aims/internal/app/domain/audit"
	"github.com/aims-io/aims/internal/app/errs"
	"github.com/aims-io/aims/internal/app/storage"
	"github.com/aims-io/aims/pkg/logger"
)

// Service queries audit rows. There is no mutation surface here: rows are
// written by the stores and the token pipeline, never edited.
type Service struct {
	store storage.AuditStore
	log   *logger.Logger
}

// NewService constructs an audit query service.
func NewService(store storage.AuditStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("audit")
	}
	return &Service{store: store, log: log}
}

// Query returns audit rows matching the filter, newest first.
func (s *Service) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	if f.Limit == 0 {
		f.Limit = 50
	}
	if f.Limit < 1 || f.Limit > 500 {
		return nil, errs.Validation("limit must be between 1 and 500")
	}
	if f.Offset < 0 {
		return nil, errs.Validation("offset must be non-negative")
	}
	entries, err := s.store.QueryAudit(ctx, f)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return entries, nil
}

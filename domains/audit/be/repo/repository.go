package repo

import (
	"context"

	"github.com/hardhat-labs/crewdeck/platform/go/persistence"
)

// Repository defines the persistence operations required by the audit service.
type Repository interface {
	ListEntries(ctx context.Context, params persistence.ListAuditEntriesParams) (persistence.ListAuditEntriesResult, error)
}

type postgresRepository struct {
	audit *persistence.AuditStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(audit *persistence.AuditStore) Repository {
	if audit == nil {
		panic("audit store is required")
	}
	return &postgresRepository{audit: audit}
}

func (r *postgresRepository) ListEntries(ctx context.Context, params persistence.ListAuditEntriesParams) (persistence.ListAuditEntriesResult, error) {
	return r.audit.ListAuditEntries(ctx, params)
}

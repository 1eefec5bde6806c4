package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hardhat-labs/crewdeck/platform/go/persistence"
)

// Repository defines the persistence operations required by the compliance
// service. Ownership checks need the agencies store, and review decisions
// append audit rows.
type Repository interface {
	InsertDocument(ctx context.Context, params persistence.InsertDocumentParams) (persistence.ComplianceDocument, error)
	GetDocument(ctx context.Context, id uuid.UUID) (persistence.ComplianceDocument, error)
	ListDocuments(ctx context.Context, params persistence.ListDocumentsParams) (persistence.ListDocumentsResult, error)
	ReviewDocument(ctx context.Context, id uuid.UUID, params persistence.ReviewDocumentParams) (persistence.ComplianceDocument, error)
	MarkExpiredDocuments(ctx context.Context, now time.Time) (int, error)
	GetAgency(ctx context.Context, id uuid.UUID) (persistence.Agency, error)
	RecordAudit(ctx context.Context, params persistence.InsertAuditEntryParams) error
}

type postgresRepository struct {
	documents *persistence.ComplianceStore
	agencies  *persistence.AgencyStore
	audit     *persistence.AuditStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(documents *persistence.ComplianceStore, agencies *persistence.AgencyStore, audit *persistence.AuditStore) Repository {
	if documents == nil {
		panic("compliance store is required")
	}
	if agencies == nil {
		panic("agency store is required")
	}
	if audit == nil {
		panic("audit store is required")
	}

	return &postgresRepository{documents: documents, agencies: agencies, audit: audit}
}

func (r *postgresRepository) InsertDocument(ctx context.Context, params persistence.InsertDocumentParams) (persistence.ComplianceDocument, error) {
	return r.documents.InsertDocument(ctx, params)
}

func (r *postgresRepository) GetDocument(ctx context.Context, id uuid.UUID) (persistence.ComplianceDocument, error) {
	return r.documents.GetDocument(ctx, id)
}

func (r *postgresRepository) ListDocuments(ctx context.Context, params persistence.ListDocumentsParams) (persistence.ListDocumentsResult, error) {
	return r.documents.ListDocuments(ctx, params)
}

func (r *postgresRepository) ReviewDocument(ctx context.Context, id uuid.UUID, params persistence.ReviewDocumentParams) (persistence.ComplianceDocument, error) {
	return r.documents.ReviewDocument(ctx, id, params)
}

func (r *postgresRepository) MarkExpiredDocuments(ctx context.Context, now time.Time) (int, error) {
	return r.documents.MarkExpiredDocuments(ctx, now)
}

func (r *postgresRepository) GetAgency(ctx context.Context, id uuid.UUID) (persistence.Agency, error) {
	return r.agencies.GetAgency(ctx, id)
}

func (r *postgresRepository) RecordAudit(ctx context.Context, params persistence.InsertAuditEntryParams) error {
	_, err := r.audit.InsertAuditEntry(ctx, params)
	return err
}

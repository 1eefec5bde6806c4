package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/hardhat-labs/crewdeck/platform/go/persistence"
)

// Repository defines the persistence operations required by the agencies service.
type Repository interface {
	Create(ctx context.Context, params persistence.CreateAgencyParams) (persistence.Agency, error)
	Get(ctx context.Context, id uuid.UUID) (persistence.Agency, error)
	GetBySlug(ctx context.Context, slug string) (persistence.Agency, error)
	List(ctx context.Context, params persistence.ListAgenciesParams) (persistence.ListAgenciesResult, error)
	Update(ctx context.Context, id uuid.UUID, params persistence.UpdateAgencyParams) (persistence.Agency, error)
	ReplaceSelections(ctx context.Context, id uuid.UUID, trades, regions []string) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) (persistence.Agency, error)
	RecordAudit(ctx context.Context, params persistence.InsertAuditEntryParams) error
}

type postgresRepository struct {
	agencies *persistence.AgencyStore
	audit    *persistence.AuditStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(agencies *persistence.AgencyStore, audit *persistence.AuditStore) Repository {
	if agencies == nil {
		panic("agency store is required")
	}
	if audit == nil {
		panic("audit store is required")
	}
	return &postgresRepository{agencies: agencies, audit: audit}
}

func (r *postgresRepository) Create(ctx context.Context, params persistence.CreateAgencyParams) (persistence.Agency, error) {
	return r.agencies.CreateAgency(ctx, params)
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID) (persistence.Agency, error) {
	return r.agencies.GetAgency(ctx, id)
}

func (r *postgresRepository) GetBySlug(ctx context.Context, slug string) (persistence.Agency, error) {
	return r.agencies.GetAgencyBySlug(ctx, slug)
}

func (r *postgresRepository) List(ctx context.Context, params persistence.ListAgenciesParams) (persistence.ListAgenciesResult, error) {
	return r.agencies.ListAgencies(ctx, params)
}

func (r *postgresRepository) Update(ctx context.Context, id uuid.UUID, params persistence.UpdateAgencyParams) (persistence.Agency, error) {
	return r.agencies.UpdateAgency(ctx, id, params)
}

func (r *postgresRepository) ReplaceSelections(ctx context.Context, id uuid.UUID, trades, regions []string) error {
	return r.agencies.ReplaceSelections(ctx, id, trades, regions)
}

func (r *postgresRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) (persistence.Agency, error) {
	return r.agencies.SetAgencyActive(ctx, id, active)
}

func (r *postgresRepository) RecordAudit(ctx context.Context, params persistence.InsertAuditEntryParams) error {
	_, err := r.audit.InsertAuditEntry(ctx, params)
	return err
}

package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hardhat-labs/crewdeck/platform/go/persistence"
)

// Repository defines the persistence operations required by the claims
// service. Approval touches claims, agencies, and profiles, so all three
// stores sit behind the one interface.
type Repository interface {
	CreateClaim(ctx context.Context, params persistence.CreateClaimParams) (persistence.ClaimRequest, error)
	GetClaim(ctx context.Context, id uuid.UUID) (persistence.ClaimRequest, error)
	ListClaims(ctx context.Context, params persistence.ListClaimsParams) (persistence.ListClaimsResult, error)
	TransitionClaim(ctx context.Context, id uuid.UUID, params persistence.TransitionClaimParams) (persistence.ClaimRequest, error)
	RevertClaim(ctx context.Context, id uuid.UUID, status string) error

	GetAgency(ctx context.Context, id uuid.UUID) (persistence.Agency, error)
	MarkAgencyClaimed(ctx context.Context, id, claimedBy uuid.UUID, claimedAt time.Time) error
	ClearAgencyClaim(ctx context.Context, id uuid.UUID) error

	UpdateProfileRole(ctx context.Context, id uuid.UUID, role string) (persistence.Profile, error)

	RecordAudit(ctx context.Context, params persistence.InsertAuditEntryParams) error
}

type postgresRepository struct {
	claims   *persistence.ClaimStore
	agencies *persistence.AgencyStore
	profiles *persistence.ProfileStore
	audit    *persistence.AuditStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(
	claims *persistence.ClaimStore,
	agencies *persistence.AgencyStore,
	profiles *persistence.ProfileStore,
	audit *persistence.AuditStore,
) Repository {
	if claims == nil {
		panic("claim store is required")
	}
	if agencies == nil {
		panic("agency store is required")
	}
	if profiles == nil {
		panic("profile store is required")
	}
	if audit == nil {
		panic("audit store is required")
	}

	return &postgresRepository{claims: claims, agencies: agencies, profiles: profiles, audit: audit}
}

func (r *postgresRepository) CreateClaim(ctx context.Context, params persistence.CreateClaimParams) (persistence.ClaimRequest, error) {
	return r.claims.CreateClaim(ctx, params)
}

func (r *postgresRepository) GetClaim(ctx context.Context, id uuid.UUID) (persistence.ClaimRequest, error) {
	return r.claims.GetClaim(ctx, id)
}

func (r *postgresRepository) ListClaims(ctx context.Context, params persistence.ListClaimsParams) (persistence.ListClaimsResult, error) {
	return r.claims.ListClaims(ctx, params)
}

func (r *postgresRepository) TransitionClaim(ctx context.Context, id uuid.UUID, params persistence.TransitionClaimParams) (persistence.ClaimRequest, error) {
	return r.claims.TransitionClaim(ctx, id, params)
}

func (r *postgresRepository) RevertClaim(ctx context.Context, id uuid.UUID, status string) error {
	return r.claims.RevertClaim(ctx, id, status)
}

func (r *postgresRepository) GetAgency(ctx context.Context, id uuid.UUID) (persistence.Agency, error) {
	return r.agencies.GetAgency(ctx, id)
}

func (r *postgresRepository) MarkAgencyClaimed(ctx context.Context, id, claimedBy uuid.UUID, claimedAt time.Time) error {
	return r.agencies.MarkAgencyClaimed(ctx, id, claimedBy, claimedAt)
}

func (r *postgresRepository) ClearAgencyClaim(ctx context.Context, id uuid.UUID) error {
	return r.agencies.ClearAgencyClaim(ctx, id)
}

func (r *postgresRepository) UpdateProfileRole(ctx context.Context, id uuid.UUID, role string) (persistence.Profile, error) {
	return r.profiles.UpdateProfileRole(ctx, id, role)
}

func (r *postgresRepository) RecordAudit(ctx context.Context, params persistence.InsertAuditEntryParams) error {
	_, err := r.audit.InsertAuditEntry(ctx, params)
	return err
}

package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/hardhat-labs/crewdeck/platform/go/persistence"
)

// Repository defines the persistence operations required by the profiles service.
type Repository interface {
	Ensure(ctx context.Context, params persistence.EnsureProfileParams) (persistence.Profile, error)
	Get(ctx context.Context, id uuid.UUID) (persistence.Profile, error)
	GetByAuthUID(ctx context.Context, authUID string) (persistence.Profile, error)
	List(ctx context.Context, params persistence.ListProfilesParams) (persistence.ListProfilesResult, error)
	Update(ctx context.Context, id uuid.UUID, params persistence.UpdateProfileParams) (persistence.Profile, error)
}

type postgresRepository struct {
	store *persistence.ProfileStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(store *persistence.ProfileStore) Repository {
	if store == nil {
		panic("profile store is required")
	}
	return &postgresRepository{store: store}
}

func (r *postgresRepository) Ensure(ctx context.Context, params persistence.EnsureProfileParams) (persistence.Profile, error) {
	return r.store.EnsureProfile(ctx, params)
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID) (persistence.Profile, error) {
	return r.store.GetProfile(ctx, id)
}

func (r *postgresRepository) GetByAuthUID(ctx context.Context, authUID string) (persistence.Profile, error) {
	return r.store.GetProfileByAuthUID(ctx, authUID)
}

func (r *postgresRepository) List(ctx context.Context, params persistence.ListProfilesParams) (persistence.ListProfilesResult, error) {
	return r.store.ListProfiles(ctx, params)
}

func (r *postgresRepository) Update(ctx context.Context, id uuid.UUID, params persistence.UpdateProfileParams) (persistence.Profile, error) {
	return r.store.UpdateProfile(ctx, id, params)
}

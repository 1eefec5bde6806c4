package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/hardhat-labs/crewdeck/platform/go/persistence"
)

// Repository defines the persistence operations required by the
// labor-requests service. Matching needs the agencies store, so it sits
// behind the same interface as the request and inbox operations.
type Repository interface {
	CreateRequest(ctx context.Context, params persistence.CreateLaborRequestParams) (persistence.LaborRequest, error)
	GetRequest(ctx context.Context, id uuid.UUID) (persistence.LaborRequest, error)
	MatchAgencies(ctx context.Context, trade, region string) ([]persistence.MatchedAgency, error)
	InsertNotifications(ctx context.Context, requestID uuid.UUID, agencyIDs []uuid.UUID) (int, error)
	ListInbox(ctx context.Context, params persistence.ListInboxParams) (persistence.ListInboxResult, error)
	MarkNotificationRead(ctx context.Context, agencyID, notificationID uuid.UUID) error
	GetAgency(ctx context.Context, id uuid.UUID) (persistence.Agency, error)
}

type postgresRepository struct {
	requests *persistence.LaborRequestStore
	agencies *persistence.AgencyStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(requests *persistence.LaborRequestStore, agencies *persistence.AgencyStore) Repository {
	if requests == nil {
		panic("labor request store is required")
	}
	if agencies == nil {
		panic("agency store is required")
	}

	return &postgresRepository{requests: requests, agencies: agencies}
}

func (r *postgresRepository) CreateRequest(ctx context.Context, params persistence.CreateLaborRequestParams) (persistence.LaborRequest, error) {
	return r.requests.CreateLaborRequest(ctx, params)
}

func (r *postgresRepository) GetRequest(ctx context.Context, id uuid.UUID) (persistence.LaborRequest, error) {
	return r.requests.GetLaborRequest(ctx, id)
}

func (r *postgresRepository) MatchAgencies(ctx context.Context, trade, region string) ([]persistence.MatchedAgency, error) {
	return r.agencies.MatchAgencies(ctx, trade, region)
}

func (r *postgresRepository) InsertNotifications(ctx context.Context, requestID uuid.UUID, agencyIDs []uuid.UUID) (int, error) {
	return r.requests.InsertNotifications(ctx, requestID, agencyIDs)
}

func (r *postgresRepository) ListInbox(ctx context.Context, params persistence.ListInboxParams) (persistence.ListInboxResult, error) {
	return r.requests.ListInbox(ctx, params)
}

func (r *postgresRepository) MarkNotificationRead(ctx context.Context, agencyID, notificationID uuid.UUID) error {
	return r.requests.MarkNotificationRead(ctx, agencyID, notificationID)
}

func (r *postgresRepository) GetAgency(ctx context.Context, id uuid.UUID) (persistence.Agency, error) {
	return r.agencies.GetAgency(ctx, id)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hardhat-labs/crewdeck/platform/go/persistence"
	"github.com/hardhat-labs/crewdeck/platform/go/taxonomy"
)

type mockRepository struct {
	createFn            func(ctx context.Context, params persistence.CreateAgencyParams) (persistence.Agency, error)
	getFn               func(ctx context.Context, id uuid.UUID) (persistence.Agency, error)
	getBySlugFn         func(ctx context.Context, slug string) (persistence.Agency, error)
	listFn              func(ctx context.Context, params persistence.ListAgenciesParams) (persistence.ListAgenciesResult, error)
	updateFn            func(ctx context.Context, id uuid.UUID, params persistence.UpdateAgencyParams) (persistence.Agency, error)
	replaceSelectionsFn func(ctx context.Context, id uuid.UUID, trades, regions []string) error
	setActiveFn         func(ctx context.Context, id uuid.UUID, active bool) (persistence.Agency, error)
	recordAuditFn       func(ctx context.Context, params persistence.InsertAuditEntryParams) error
}

func (m *mockRepository) Create(ctx context.Context, params persistence.CreateAgencyParams) (persistence.Agency, error) {
	if m.createFn == nil {
		panic("unexpected Create call")
	}
	return m.createFn(ctx, params)
}

func (m *mockRepository) Get(ctx context.Context, id uuid.UUID) (persistence.Agency, error) {
	if m.getFn == nil {
		panic("unexpected Get call")
	}
	return m.getFn(ctx, id)
}

func (m *mockRepository) GetBySlug(ctx context.Context, slug string) (persistence.Agency, error) {
	if m.getBySlugFn == nil {
		panic("unexpected GetBySlug call")
	}
	return m.getBySlugFn(ctx, slug)
}

func (m *mockRepository) List(ctx context.Context, params persistence.ListAgenciesParams) (persistence.ListAgenciesResult, error) {
	if m.listFn == nil {
		panic("unexpected List call")
	}
	return m.listFn(ctx, params)
}

func (m *mockRepository) Update(ctx context.Context, id uuid.UUID, params persistence.UpdateAgencyParams) (persistence.Agency, error) {
	if m.updateFn == nil {
		panic("unexpected Update call")
	}
	return m.updateFn(ctx, id, params)
}

func (m *mockRepository) ReplaceSelections(ctx context.Context, id uuid.UUID, trades, regions []string) error {
	if m.replaceSelectionsFn == nil {
		panic("unexpected ReplaceSelections call")
	}
	return m.replaceSelectionsFn(ctx, id, trades, regions)
}

func (m *mockRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) (persistence.Agency, error) {
	if m.setActiveFn == nil {
		panic("unexpected SetActive call")
	}
	return m.setActiveFn(ctx, id, active)
}

func (m *mockRepository) RecordAudit(ctx context.Context, params persistence.InsertAuditEntryParams) error {
	if m.recordAuditFn == nil {
		panic("unexpected RecordAudit call")
	}
	return m.recordAuditFn(ctx, params)
}

func mustTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.Load("")
	require.NoError(t, err)
	return tax
}

func sampleAgency(id uuid.UUID) persistence.Agency {
	now := time.Now().UTC()
	return persistence.Agency{
		AgencyID:  id,
		Name:      "Summit Crew Staffing",
		Slug:      "summit-crew-staffing",
		Trades:    []string{"electrical"},
		Regions:   []string{"midwest"},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func strPtr(v string) *string { return &v }

func TestSearchClampsPagination(t *testing.T) {
	t.Parallel()

	var captured persistence.ListAgenciesParams
	repo := &mockRepository{
		listFn: func(ctx context.Context, params persistence.ListAgenciesParams) (persistence.ListAgenciesResult, error) {
			captured = params
			return persistence.ListAgenciesResult{TotalItems: 45}, nil
		},
	}
	svc := New(repo, mustTaxonomy(t), zaptest.NewLogger(t))

	result, err := svc.Search(context.Background(), SearchOptions{Page: -2, PageSize: 900})
	require.NoError(t, err)
	require.Equal(t, 1, captured.Page)
	require.Equal(t, 100, captured.PageSize)
	require.Equal(t, 1, result.TotalPages)
	require.Equal(t, 45, result.TotalItems)
}

func TestSearchRejectsUnknownTrade(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{}, mustTaxonomy(t), zaptest.NewLogger(t))

	_, err := svc.Search(context.Background(), SearchOptions{Trade: strPtr("underwater-basket-weaving")})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Fields, "trade")
}

func TestSearchRejectsUnknownSortField(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{}, mustTaxonomy(t), zaptest.NewLogger(t))

	_, err := svc.Search(context.Background(), SearchOptions{Sort: strPtr("name,-secretColumn")})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Fields, "sort")
}

func TestUpdateRequiresOwnershipOrAdmin(t *testing.T) {
	t.Parallel()

	agencyID := uuid.New()
	owner := uuid.New()
	stranger := uuid.New()

	record := sampleAgency(agencyID)
	record.IsClaimed = true
	record.ClaimedBy = &owner

	repo := &mockRepository{
		getFn: func(ctx context.Context, id uuid.UUID) (persistence.Agency, error) {
			return record, nil
		},
	}
	svc := New(repo, mustTaxonomy(t), zaptest.NewLogger(t))

	_, err := svc.Update(context.Background(), Actor{ProfileID: stranger, Role: persistence.RoleUser}, agencyID, UpdateInput{
		Name: strPtr("New Name"),
	})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateByOwnerSucceeds(t *testing.T) {
	t.Parallel()

	agencyID := uuid.New()
	owner := uuid.New()

	record := sampleAgency(agencyID)
	record.IsClaimed = true
	record.ClaimedBy = &owner

	repo := &mockRepository{
		getFn: func(ctx context.Context, id uuid.UUID) (persistence.Agency, error) {
			return record, nil
		},
		updateFn: func(ctx context.Context, id uuid.UUID, params persistence.UpdateAgencyParams) (persistence.Agency, error) {
			require.NotNil(t, params.Name)
			require.Equal(t, "Summit Crews, LLC", *params.Name)
			updated := record
			updated.Name = *params.Name
			return updated, nil
		},
	}
	svc := New(repo, mustTaxonomy(t), zaptest.NewLogger(t))

	agency, err := svc.Update(context.Background(), Actor{ProfileID: owner, Role: persistence.RoleAgencyOwner}, agencyID, UpdateInput{
		Name: strPtr("  Summit Crews, LLC  "),
	})
	require.NoError(t, err)
	require.Equal(t, "Summit Crews, LLC", agency.Name)
}

func TestUpdateRejectsEmptyPayload(t *testing.T) {
	t.Parallel()

	agencyID := uuid.New()
	svc := New(&mockRepository{
		getFn: func(ctx context.Context, id uuid.UUID) (persistence.Agency, error) {
			return sampleAgency(agencyID), nil
		},
	}, mustTaxonomy(t), zaptest.NewLogger(t))

	_, err := svc.Update(context.Background(), Actor{ProfileID: uuid.New(), Role: persistence.RoleAdmin}, agencyID, UpdateInput{})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Fields, "payload")
}

func TestUpdateSelectionsValidatesSlugsAndDedupes(t *testing.T) {
	t.Parallel()

	agencyID := uuid.New()
	svc := New(&mockRepository{}, mustTaxonomy(t), zaptest.NewLogger(t))

	_, err := svc.UpdateSelections(context.Background(), Actor{Role: persistence.RoleAdmin}, agencyID, SelectionsInput{
		Trades:  []string{"electrical", "time-travel"},
		Regions: []string{"midwest"},
	})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Fields, "trades")

	var gotTrades, gotRegions []string
	record := sampleAgency(agencyID)
	repo := &mockRepository{
		replaceSelectionsFn: func(ctx context.Context, id uuid.UUID, trades, regions []string) error {
			gotTrades, gotRegions = trades, regions
			return nil
		},
		getFn: func(ctx context.Context, id uuid.UUID) (persistence.Agency, error) {
			return record, nil
		},
	}
	svc = New(repo, mustTaxonomy(t), zaptest.NewLogger(t))

	_, err = svc.UpdateSelections(context.Background(), Actor{Role: persistence.RoleAdmin}, agencyID, SelectionsInput{
		Trades:  []string{"electrical", "electrical", "plumbing"},
		Regions: []string{"midwest", "midwest"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"electrical", "plumbing"}, gotTrades)
	require.Equal(t, []string{"midwest"}, gotRegions)
}

func TestAdminCreateDerivesSlugFromName(t *testing.T) {
	t.Parallel()

	var captured persistence.CreateAgencyParams
	repo := &mockRepository{
		createFn: func(ctx context.Context, params persistence.CreateAgencyParams) (persistence.Agency, error) {
			captured = params
			return sampleAgency(params.AgencyID), nil
		},
	}
	svc := New(repo, mustTaxonomy(t), zaptest.NewLogger(t))

	_, err := svc.AdminCreate(context.Background(), Actor{ProfileID: uuid.New(), Role: persistence.RoleAdmin}, CreateInput{
		Name:    "Gulf Coast Crews, Inc.",
		Trades:  []string{"welding"},
		Regions: []string{"gulf-coast"},
	})
	require.NoError(t, err)
	require.Equal(t, "gulf-coast-crews-inc", captured.Slug)
}

func TestAdminCreateRequiresAdmin(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{}, mustTaxonomy(t), zaptest.NewLogger(t))

	_, err := svc.AdminCreate(context.Background(), Actor{ProfileID: uuid.New(), Role: persistence.RoleAgencyOwner}, CreateInput{
		Name: "Rogue Listing",
	})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestAdminSetActiveSurvivesAuditFailure(t *testing.T) {
	t.Parallel()

	agencyID := uuid.New()
	admin := uuid.New()

	record := sampleAgency(agencyID)
	record.IsActive = false

	auditCalled := false
	repo := &mockRepository{
		setActiveFn: func(ctx context.Context, id uuid.UUID, active bool) (persistence.Agency, error) {
			require.False(t, active)
			return record, nil
		},
		recordAuditFn: func(ctx context.Context, params persistence.InsertAuditEntryParams) error {
			auditCalled = true
			require.Equal(t, admin, params.AdminID)
			require.Equal(t, persistence.AuditActionAgencyStatus, params.Action)
			return context.DeadlineExceeded
		},
	}
	svc := New(repo, mustTaxonomy(t), zaptest.NewLogger(t))

	agency, err := svc.AdminSetActive(context.Background(), Actor{ProfileID: admin, Role: persistence.RoleAdmin}, agencyID, false)
	require.NoError(t, err)
	require.True(t, auditCalled)
	require.False(t, agency.IsActive)
}

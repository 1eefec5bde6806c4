package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hardhat-labs/crewdeck/platform/go/mailer"
	"github.com/hardhat-labs/crewdeck/platform/go/persistence"
	"github.com/hardhat-labs/crewdeck/platform/go/taxonomy"
)

type mockRepository struct {
	createRequestFn        func(ctx context.Context, params persistence.CreateLaborRequestParams) (persistence.LaborRequest, error)
	getRequestFn           func(ctx context.Context, id uuid.UUID) (persistence.LaborRequest, error)
	matchAgenciesFn        func(ctx context.Context, trade, region string) ([]persistence.MatchedAgency, error)
	insertNotificationsFn  func(ctx context.Context, requestID uuid.UUID, agencyIDs []uuid.UUID) (int, error)
	listInboxFn            func(ctx context.Context, params persistence.ListInboxParams) (persistence.ListInboxResult, error)
	markNotificationReadFn func(ctx context.Context, agencyID, notificationID uuid.UUID) error
	getAgencyFn            func(ctx context.Context, id uuid.UUID) (persistence.Agency, error)
}

func (m *mockRepository) CreateRequest(ctx context.Context, params persistence.CreateLaborRequestParams) (persistence.LaborRequest, error) {
	if m.createRequestFn == nil {
		panic("unexpected CreateRequest call")
	}
	return m.createRequestFn(ctx, params)
}

func (m *mockRepository) GetRequest(ctx context.Context, id uuid.UUID) (persistence.LaborRequest, error) {
	if m.getRequestFn == nil {
		panic("unexpected GetRequest call")
	}
	return m.getRequestFn(ctx, id)
}

func (m *mockRepository) MatchAgencies(ctx context.Context, trade, region string) ([]persistence.MatchedAgency, error) {
	if m.matchAgenciesFn == nil {
		panic("unexpected MatchAgencies call")
	}
	return m.matchAgenciesFn(ctx, trade, region)
}

func (m *mockRepository) InsertNotifications(ctx context.Context, requestID uuid.UUID, agencyIDs []uuid.UUID) (int, error) {
	if m.insertNotificationsFn == nil {
		panic("unexpected InsertNotifications call")
	}
	return m.insertNotificationsFn(ctx, requestID, agencyIDs)
}

func (m *mockRepository) ListInbox(ctx context.Context, params persistence.ListInboxParams) (persistence.ListInboxResult, error) {
	if m.listInboxFn == nil {
		panic("unexpected ListInbox call")
	}
	return m.listInboxFn(ctx, params)
}

func (m *mockRepository) MarkNotificationRead(ctx context.Context, agencyID, notificationID uuid.UUID) error {
	if m.markNotificationReadFn == nil {
		panic("unexpected MarkNotificationRead call")
	}
	return m.markNotificationReadFn(ctx, agencyID, notificationID)
}

func (m *mockRepository) GetAgency(ctx context.Context, id uuid.UUID) (persistence.Agency, error) {
	if m.getAgencyFn == nil {
		panic("unexpected GetAgency call")
	}
	return m.getAgencyFn(ctx, id)
}

type recordingSender struct {
	sent []mailer.Email
	err  error
}

func (r *recordingSender) Send(ctx context.Context, email mailer.Email) error {
	r.sent = append(r.sent, email)
	return r.err
}

func mustTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.Load("")
	require.NoError(t, err)
	return tax
}

func validInput() SubmitInput {
	return SubmitInput{
		ContactName:  "Riley Okafor",
		ContactEmail: "riley@buildsite.example",
		Trade:        "electrical",
		Region:       "midwest",
		Headcount:    4,
	}
}

func storedRequest(params persistence.CreateLaborRequestParams) persistence.LaborRequest {
	return persistence.LaborRequest{
		RequestID:    params.RequestID,
		ContactName:  params.ContactName,
		ContactEmail: params.ContactEmail,
		ContactPhone: params.ContactPhone,
		Trade:        params.Trade,
		Region:       params.Region,
		Headcount:    params.Headcount,
		StartDate:    params.StartDate,
		Details:      params.Details,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestSubmitValidatesTaxonomyAndHeadcount(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{}, mustTaxonomy(t), &recordingSender{}, zaptest.NewLogger(t))

	input := validInput()
	input.Trade = "alchemy"
	input.Region = "atlantis"
	input.Headcount = 0

	_, err := svc.Submit(context.Background(), input)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Fields, "trade")
	require.Contains(t, validationErr.Fields, "region")
	require.Contains(t, validationErr.Fields, "headcount")
}

func TestSubmitFansOutToMatchedAgencies(t *testing.T) {
	t.Parallel()

	ownerA := persistence.MatchedAgency{
		AgencyID:   uuid.New(),
		Name:       "Summit Crew Staffing",
		OwnerID:    uuid.New(),
		OwnerEmail: "owner-a@example.com",
	}
	ownerB := persistence.MatchedAgency{
		AgencyID:   uuid.New(),
		Name:       "Lakeshore Trades",
		OwnerID:    uuid.New(),
		OwnerEmail: "owner-b@example.com",
	}

	var fanoutIDs []uuid.UUID
	repo := &mockRepository{
		createRequestFn: func(ctx context.Context, params persistence.CreateLaborRequestParams) (persistence.LaborRequest, error) {
			return storedRequest(params), nil
		},
		matchAgenciesFn: func(ctx context.Context, trade, region string) ([]persistence.MatchedAgency, error) {
			require.Equal(t, "electrical", trade)
			require.Equal(t, "midwest", region)
			return []persistence.MatchedAgency{ownerA, ownerB}, nil
		},
		insertNotificationsFn: func(ctx context.Context, requestID uuid.UUID, agencyIDs []uuid.UUID) (int, error) {
			fanoutIDs = agencyIDs
			return len(agencyIDs), nil
		},
	}
	sender := &recordingSender{}
	svc := New(repo, mustTaxonomy(t), sender, zaptest.NewLogger(t))

	result, err := svc.Submit(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, 2, result.MatchedAgencies)
	require.Equal(t, 2, result.NotificationsNew)
	require.ElementsMatch(t, []uuid.UUID{ownerA.AgencyID, ownerB.AgencyID}, fanoutIDs)
	require.Len(t, sender.sent, 2)
	require.ElementsMatch(t,
		[]string{"owner-a@example.com", "owner-b@example.com"},
		[]string{sender.sent[0].To, sender.sent[1].To})
}

func TestSubmitSurvivesMatchingFailure(t *testing.T) {
	t.Parallel()

	repo := &mockRepository{
		createRequestFn: func(ctx context.Context, params persistence.CreateLaborRequestParams) (persistence.LaborRequest, error) {
			return storedRequest(params), nil
		},
		matchAgenciesFn: func(ctx context.Context, trade, region string) ([]persistence.MatchedAgency, error) {
			return nil, errors.New("connection reset")
		},
	}
	sender := &recordingSender{}
	svc := New(repo, mustTaxonomy(t), sender, zaptest.NewLogger(t))

	result, err := svc.Submit(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, 0, result.MatchedAgencies)
	require.Empty(t, sender.sent)
}

func TestSubmitSurvivesEmailFailure(t *testing.T) {
	t.Parallel()

	match := persistence.MatchedAgency{
		AgencyID:   uuid.New(),
		Name:       "Summit Crew Staffing",
		OwnerID:    uuid.New(),
		OwnerEmail: "owner@example.com",
	}
	repo := &mockRepository{
		createRequestFn: func(ctx context.Context, params persistence.CreateLaborRequestParams) (persistence.LaborRequest, error) {
			return storedRequest(params), nil
		},
		matchAgenciesFn: func(ctx context.Context, trade, region string) ([]persistence.MatchedAgency, error) {
			return []persistence.MatchedAgency{match}, nil
		},
		insertNotificationsFn: func(ctx context.Context, requestID uuid.UUID, agencyIDs []uuid.UUID) (int, error) {
			return 1, nil
		},
	}
	svc := New(repo, mustTaxonomy(t), &recordingSender{err: errors.New("relay down")}, zaptest.NewLogger(t))

	result, err := svc.Submit(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, 1, result.NotificationsNew)
}

func TestInboxOwnerOnly(t *testing.T) {
	t.Parallel()

	agencyID := uuid.New()
	owner := uuid.New()
	stranger := uuid.New()

	repo := &mockRepository{
		getAgencyFn: func(ctx context.Context, id uuid.UUID) (persistence.Agency, error) {
			return persistence.Agency{AgencyID: agencyID, IsClaimed: true, ClaimedBy: &owner}, nil
		},
	}
	svc := New(repo, mustTaxonomy(t), &recordingSender{}, zaptest.NewLogger(t))

	_, err := svc.Inbox(context.Background(), Actor{ProfileID: stranger, Role: persistence.RoleUser}, agencyID, InboxOptions{})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestInboxClampsAndPaginates(t *testing.T) {
	t.Parallel()

	agencyID := uuid.New()
	owner := uuid.New()

	var captured persistence.ListInboxParams
	repo := &mockRepository{
		getAgencyFn: func(ctx context.Context, id uuid.UUID) (persistence.Agency, error) {
			return persistence.Agency{AgencyID: agencyID, IsClaimed: true, ClaimedBy: &owner}, nil
		},
		listInboxFn: func(ctx context.Context, params persistence.ListInboxParams) (persistence.ListInboxResult, error) {
			captured = params
			return persistence.ListInboxResult{TotalItems: 3}, nil
		},
	}
	svc := New(repo, mustTaxonomy(t), &recordingSender{}, zaptest.NewLogger(t))

	result, err := svc.Inbox(context.Background(),
		Actor{ProfileID: owner, Role: persistence.RoleAgencyOwner}, agencyID,
		InboxOptions{Page: -1, PageSize: 500, UnreadOnly: true})
	require.NoError(t, err)
	require.Equal(t, 1, captured.Page)
	require.Equal(t, 100, captured.PageSize)
	require.True(t, captured.UnreadOnly)
	require.Equal(t, 1, result.TotalPages)
}

func TestMarkReadMapsMissingNotification(t *testing.T) {
	t.Parallel()

	agencyID := uuid.New()
	owner := uuid.New()

	repo := &mockRepository{
		getAgencyFn: func(ctx context.Context, id uuid.UUID) (persistence.Agency, error) {
			return persistence.Agency{AgencyID: agencyID, IsClaimed: true, ClaimedBy: &owner}, nil
		},
		markNotificationReadFn: func(ctx context.Context, gotAgency, gotNotification uuid.UUID) error {
			return persistence.ErrNotificationNotFound
		},
	}
	svc := New(repo, mustTaxonomy(t), &recordingSender{}, zaptest.NewLogger(t))

	err := svc.MarkRead(context.Background(),
		Actor{ProfileID: owner, Role: persistence.RoleAgencyOwner}, agencyID, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMarkReadAdminBypassesOwnership(t *testing.T) {
	t.Parallel()

	agencyID := uuid.New()
	notificationID := uuid.New()

	var marked bool
	repo := &mockRepository{
		markNotificationReadFn: func(ctx context.Context, gotAgency, gotNotification uuid.UUID) error {
			require.Equal(t, agencyID, gotAgency)
			require.Equal(t, notificationID, gotNotification)
			marked = true
			return nil
		},
	}
	svc := New(repo, mustTaxonomy(t), &recordingSender{}, zaptest.NewLogger(t))

	err := svc.MarkRead(context.Background(),
		Actor{ProfileID: uuid.New(), Role: persistence.RoleAdmin}, agencyID, notificationID)
	require.NoError(t, err)
	require.True(t, marked)
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformauth "github.com/hardhat-labs/crewdeck/platform/go/auth"
	"github.com/hardhat-labs/crewdeck/platform/go/persistence"
)

type mockRepository struct {
	ensureFn       func(ctx context.Context, params persistence.EnsureProfileParams) (persistence.Profile, error)
	getFn          func(ctx context.Context, id uuid.UUID) (persistence.Profile, error)
	getByAuthUIDFn func(ctx context.Context, authUID string) (persistence.Profile, error)
	listFn         func(ctx context.Context, params persistence.ListProfilesParams) (persistence.ListProfilesResult, error)
	updateFn       func(ctx context.Context, id uuid.UUID, params persistence.UpdateProfileParams) (persistence.Profile, error)
}

func (m *mockRepository) Ensure(ctx context.Context, params persistence.EnsureProfileParams) (persistence.Profile, error) {
	if m.ensureFn == nil {
		panic("ensureFn not configured")
	}
	return m.ensureFn(ctx, params)
}

func (m *mockRepository) Get(ctx context.Context, id uuid.UUID) (persistence.Profile, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, id)
}

func (m *mockRepository) GetByAuthUID(ctx context.Context, authUID string) (persistence.Profile, error) {
	if m.getByAuthUIDFn == nil {
		panic("getByAuthUIDFn not configured")
	}
	return m.getByAuthUIDFn(ctx, authUID)
}

func (m *mockRepository) List(ctx context.Context, params persistence.ListProfilesParams) (persistence.ListProfilesResult, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, params)
}

func (m *mockRepository) Update(ctx context.Context, id uuid.UUID, params persistence.UpdateProfileParams) (persistence.Profile, error) {
	if m.updateFn == nil {
		panic("updateFn not configured")
	}
	return m.updateFn(ctx, id, params)
}

func TestEnsureFromCredentialsUpserts(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	profileID := uuid.New()
	repository := &mockRepository{}

	repository.ensureFn = func(ctx context.Context, params persistence.EnsureProfileParams) (persistence.Profile, error) {
		require.Equal(t, "uid-123", params.AuthUID)
		require.Equal(t, "worker@example.com", params.Email)
		require.Equal(t, "Sam Mason", params.FullName)

		return persistence.Profile{
			ProfileID: profileID,
			AuthUID:   params.AuthUID,
			Email:     params.Email,
			FullName:  params.FullName,
			Role:      persistence.RoleUser,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}

	svc := New(repository)

	name := "Sam Mason"
	profile, err := svc.EnsureFromCredentials(context.Background(), &platformauth.UserCredentials{
		ID:    "uid-123",
		Email: "worker@example.com",
		Name:  &name,
	})
	require.NoError(t, err)
	require.Equal(t, profileID, profile.ID)
	require.Equal(t, persistence.RoleUser, profile.Role)
}

func TestEnsureFromCredentialsRejectsMissingIdentity(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{})

	_, err := svc.EnsureFromCredentials(context.Background(), nil)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.EnsureFromCredentials(context.Background(), &platformauth.UserCredentials{ID: "  "})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSelfValidation(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{})

	_, err := svc.UpdateSelf(context.Background(), uuid.New(), UpdateSelfInput{})
	require.Error(t, err)

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	require.Contains(t, validationErr.Fields, "payload")

	empty := "  "
	_, err = svc.UpdateSelf(context.Background(), uuid.New(), UpdateSelfInput{FullName: &empty})
	require.True(t, errors.As(err, &validationErr))
	require.Contains(t, validationErr.Fields, "fullName")
}

func TestUpdateSelfSuccess(t *testing.T) {
	t.Parallel()

	profileID := uuid.New()
	now := time.Now().UTC()
	repository := &mockRepository{}

	repository.updateFn = func(ctx context.Context, id uuid.UUID, params persistence.UpdateProfileParams) (persistence.Profile, error) {
		require.Equal(t, profileID, id)
		require.NotNil(t, params.FullName)
		require.Equal(t, "Sam Mason", *params.FullName)
		require.NotNil(t, params.Phone)
		require.Equal(t, "555-0101", *params.Phone)

		return persistence.Profile{
			ProfileID: id,
			FullName:  *params.FullName,
			Phone:     params.Phone,
			Role:      persistence.RoleUser,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}

	svc := New(repository)

	name := " Sam Mason "
	phone := " 555-0101 "
	updated, err := svc.UpdateSelf(context.Background(), profileID, UpdateSelfInput{FullName: &name, Phone: &phone})
	require.NoError(t, err)
	require.Equal(t, "Sam Mason", updated.FullName)
}

func TestListClampsAndFilters(t *testing.T) {
	t.Parallel()

	repository := &mockRepository{}

	repository.listFn = func(ctx context.Context, params persistence.ListProfilesParams) (persistence.ListProfilesResult, error) {
		require.Equal(t, 1, params.Page)
		require.Equal(t, 100, params.PageSize)
		require.NotNil(t, params.Role)
		require.Equal(t, persistence.RoleAdmin, *params.Role)
		return persistence.ListProfilesResult{TotalItems: 250}, nil
	}

	svc := New(repository)

	role := persistence.RoleAdmin
	result, err := svc.List(context.Background(), ListOptions{Page: -3, PageSize: 500, Role: &role})
	require.NoError(t, err)
	require.Equal(t, 100, result.PageSize)
	require.Equal(t, 3, result.TotalPages)
}

func TestListRejectsUnknownRole(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{})

	role := "superuser"
	_, err := svc.List(context.Background(), ListOptions{Role: &role})

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	require.Contains(t, validationErr.Fields, "role")
}

func TestGetMapsNotFound(t *testing.T) {
	t.Parallel()

	repository := &mockRepository{}
	repository.getFn = func(ctx context.Context, id uuid.UUID) (persistence.Profile, error) {
		return persistence.Profile{}, persistence.ErrProfileNotFound
	}

	svc := New(repository)

	_, err := svc.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(context.Background(), uuid.Nil)
	require.ErrorIs(t, err, ErrNotFound)
}

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestClaimLifecycleAgainstPostgres(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping claim store integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("crewdeck"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, PoolConfig{ConnString: connString})
	require.NoError(t, err)
	t.Cleanup(func() { ClosePool(pool) })

	require.NoError(t, applyCoreSchemaDDL(ctx, pool))

	profiles, err := NewProfileStore(ctx, pool)
	require.NoError(t, err)
	agencies, err := NewAgencyStore(ctx, pool)
	require.NoError(t, err)
	claims, err := NewClaimStore(ctx, pool)
	require.NoError(t, err)

	claimant, err := profiles.EnsureProfile(ctx, EnsureProfileParams{
		AuthUID:  "uid-claimant",
		Email:    "owner@summitcrew.example",
		FullName: "Jordan Vega",
	})
	require.NoError(t, err)
	require.Equal(t, RoleUser, claimant.Role)

	admin, err := profiles.EnsureProfile(ctx, EnsureProfileParams{
		AuthUID:  "uid-admin",
		Email:    "admin@crewdeck.example",
		FullName: "Back Office",
	})
	require.NoError(t, err)
	_, err = profiles.UpdateProfileRole(ctx, admin.ProfileID, RoleAdmin)
	require.NoError(t, err)

	agency, err := agencies.CreateAgency(ctx, CreateAgencyParams{
		AgencyID: uuid.New(),
		Slug:     "summit-crew-staffing",
		Name:     "Summit Crew Staffing",
	})
	require.NoError(t, err)
	require.Nil(t, agency.ClaimedBy)

	claim, err := claims.CreateClaim(ctx, CreateClaimParams{
		ClaimID:      uuid.New(),
		AgencyID:     agency.AgencyID,
		UserID:       claimant.ProfileID,
		ContactName:  "Jordan Vega",
		ContactEmail: "owner@summitcrew.example",
	})
	require.NoError(t, err)
	require.Equal(t, ClaimStatusPending, claim.Status)

	// A second open claim for the same agency and user hits the partial unique index.
	_, err = claims.CreateClaim(ctx, CreateClaimParams{
		ClaimID:      uuid.New(),
		AgencyID:     agency.AgencyID,
		UserID:       claimant.ProfileID,
		ContactName:  "Jordan Vega",
		ContactEmail: "owner@summitcrew.example",
	})
	require.ErrorIs(t, err, ErrClaimConflict)

	now := time.Now().UTC()
	approved, err := claims.TransitionClaim(ctx, claim.ClaimID, TransitionClaimParams{
		AllowedFrom: []string{ClaimStatusPending, ClaimStatusUnderReview},
		To:          ClaimStatusApproved,
		ReviewedBy:  admin.ProfileID,
		ReviewedAt:  now,
	})
	require.NoError(t, err)
	require.Equal(t, ClaimStatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	require.Equal(t, admin.ProfileID, *approved.ReviewedBy)

	// The claim is terminal now; a repeated transition reports a state conflict, not a double approve.
	_, err = claims.TransitionClaim(ctx, claim.ClaimID, TransitionClaimParams{
		AllowedFrom: []string{ClaimStatusPending, ClaimStatusUnderReview},
		To:          ClaimStatusApproved,
		ReviewedBy:  admin.ProfileID,
		ReviewedAt:  now,
	})
	require.ErrorIs(t, err, ErrClaimStateConflict)

	err = agencies.MarkAgencyClaimed(ctx, agency.AgencyID, claimant.ProfileID, now)
	require.NoError(t, err)

	claimedAgency, err := agencies.GetAgency(ctx, agency.AgencyID)
	require.NoError(t, err)
	require.NotNil(t, claimedAgency.ClaimedBy)
	require.Equal(t, claimant.ProfileID, *claimedAgency.ClaimedBy)

	// Claiming an already claimed agency is refused.
	err = agencies.MarkAgencyClaimed(ctx, agency.AgencyID, admin.ProfileID, now)
	require.ErrorIs(t, err, ErrAgencyAlreadyClaimed)

	upgraded, err := profiles.UpdateProfileRole(ctx, claimant.ProfileID, RoleAgencyOwner)
	require.NoError(t, err)
	require.Equal(t, RoleAgencyOwner, upgraded.Role)

	// Compensation path: revert restores the claim and clears the review stamp.
	require.NoError(t, claims.RevertClaim(ctx, claim.ClaimID, ClaimStatusPending))
	reverted, err := claims.GetClaim(ctx, claim.ClaimID)
	require.NoError(t, err)
	require.Equal(t, ClaimStatusPending, reverted.Status)
	require.Nil(t, reverted.ReviewedBy)
	require.Nil(t, reverted.ReviewedAt)

	require.NoError(t, agencies.ClearAgencyClaim(ctx, agency.AgencyID))
	unclaimed, err := agencies.GetAgency(ctx, agency.AgencyID)
	require.NoError(t, err)
	require.Nil(t, unclaimed.ClaimedBy)

	// Admin claim queue joins agency name and claimant email.
	queue, err := claims.ListClaims(ctx, ListClaimsParams{Status: strPtr(ClaimStatusPending)})
	require.NoError(t, err)
	require.Equal(t, 1, queue.TotalItems)
	require.Equal(t, "Summit Crew Staffing", queue.Claims[0].AgencyName)
	require.Equal(t, "owner@summitcrew.example", queue.Claims[0].UserEmail)
}

func strPtr(s string) *string { return &s }

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hardhat-labs/crewdeck/domains/claims/be/service"
	"github.com/hardhat-labs/crewdeck/domains/profiles/be/access"
	profilesvc "github.com/hardhat-labs/crewdeck/domains/profiles/be/service"
)

type mockService struct {
	submitFn    func(ctx context.Context, actor service.Actor, input service.SubmitInput) (service.Claim, error)
	adminListFn func(ctx context.Context, actor service.Actor, opts service.ListOptions) (service.ListResult, error)
	adminGetFn  func(ctx context.Context, actor service.Actor, claimID uuid.UUID) (service.Claim, error)
	reviewFn    func(ctx context.Context, actor service.Actor, claimID uuid.UUID) (service.Claim, error)
	approveFn   func(ctx context.Context, actor service.Actor, claimID uuid.UUID) (service.Claim, error)
	rejectFn    func(ctx context.Context, actor service.Actor, claimID uuid.UUID, notes *string) (service.Claim, error)
}

func (m *mockService) Submit(ctx context.Context, actor service.Actor, input service.SubmitInput) (service.Claim, error) {
	if m.submitFn == nil {
		panic("unexpected Submit call")
	}
	return m.submitFn(ctx, actor, input)
}

func (m *mockService) AdminList(ctx context.Context, actor service.Actor, opts service.ListOptions) (service.ListResult, error) {
	if m.adminListFn == nil {
		panic("unexpected AdminList call")
	}
	return m.adminListFn(ctx, actor, opts)
}

func (m *mockService) AdminGet(ctx context.Context, actor service.Actor, claimID uuid.UUID) (service.Claim, error) {
	if m.adminGetFn == nil {
		panic("unexpected AdminGet call")
	}
	return m.adminGetFn(ctx, actor, claimID)
}

func (m *mockService) Review(ctx context.Context, actor service.Actor, claimID uuid.UUID) (service.Claim, error) {
	if m.reviewFn == nil {
		panic("unexpected Review call")
	}
	return m.reviewFn(ctx, actor, claimID)
}

func (m *mockService) Approve(ctx context.Context, actor service.Actor, claimID uuid.UUID) (service.Claim, error) {
	if m.approveFn == nil {
		panic("unexpected Approve call")
	}
	return m.approveFn(ctx, actor, claimID)
}

func (m *mockService) Reject(ctx context.Context, actor service.Actor, claimID uuid.UUID, notes *string) (service.Claim, error) {
	if m.rejectFn == nil {
		panic("unexpected Reject call")
	}
	return m.rejectFn(ctx, actor, claimID, notes)
}

func newRouter(h *Handler, profile *profilesvc.Profile) http.Handler {
	r := chi.NewRouter()
	if profile != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ctx := access.WithProfileContext(req.Context(), *profile)
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
	}
	r.Post("/api/v1/claims", h.Submit)
	r.Get("/api/v1/admin/claims", h.AdminList)
	r.Get("/api/v1/admin/claims/{claimId}", h.AdminGet)
	r.Post("/api/v1/admin/claims/{claimId}/review", h.Review)
	r.Post("/api/v1/admin/claims/{claimId}/approve", h.Approve)
	r.Post("/api/v1/admin/claims/{claimId}/reject", h.Reject)
	return r
}

func sampleClaim(id uuid.UUID) service.Claim {
	now := time.Now().UTC()
	return service.Claim{
		ID:           id,
		AgencyID:     uuid.New(),
		UserID:       uuid.New(),
		Status:       "pending",
		ContactName:  "Dana Mason",
		ContactEmail: "dana@summitcrew.example",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func adminProfile() *profilesvc.Profile {
	return &profilesvc.Profile{ID: uuid.New(), Role: "admin"}
}

func TestSubmitRequiresAuthentication(t *testing.T) {
	t.Parallel()

	router := newRouter(New(&mockService{}, zaptest.NewLogger(t)), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/claims",
		strings.NewReader(`{"agencyId":"`+uuid.NewString()+`"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitReturns201(t *testing.T) {
	t.Parallel()

	agencyID := uuid.New()
	claimID := uuid.New()
	svc := &mockService{
		submitFn: func(ctx context.Context, actor service.Actor, input service.SubmitInput) (service.Claim, error) {
			require.Equal(t, agencyID, input.AgencyID)
			require.Equal(t, "Dana Mason", input.ContactName)
			claim := sampleClaim(claimID)
			claim.AgencyID = agencyID
			return claim, nil
		},
	}
	caller := &profilesvc.Profile{ID: uuid.New(), Role: "user"}
	router := newRouter(New(svc, zaptest.NewLogger(t)), caller)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/claims",
		strings.NewReader(`{"agencyId":"`+agencyID.String()+`","contactName":"Dana Mason","contactEmail":"dana@summitcrew.example"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var body claimResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, claimID.String(), body.ID)
}

func TestSubmitRejectsMalformedAgencyID(t *testing.T) {
	t.Parallel()

	caller := &profilesvc.Profile{ID: uuid.New(), Role: "user"}
	router := newRouter(New(&mockService{}, zaptest.NewLogger(t)), caller)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/claims",
		strings.NewReader(`{"agencyId":"nope"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApproveStateConflictMapsTo409ValidationError(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		approveFn: func(ctx context.Context, actor service.Actor, claimID uuid.UUID) (service.Claim, error) {
			return service.Claim{}, service.ErrStateConflict
		},
	}
	router := newRouter(New(svc, zaptest.NewLogger(t)), adminProfile())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/claims/"+uuid.NewString()+"/approve", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "VALIDATION_ERROR", body.Code)
}

func TestApproveReturnsApprovedClaim(t *testing.T) {
	t.Parallel()

	claimID := uuid.New()
	svc := &mockService{
		approveFn: func(ctx context.Context, actor service.Actor, got uuid.UUID) (service.Claim, error) {
			require.Equal(t, claimID, got)
			claim := sampleClaim(claimID)
			claim.Status = "approved"
			return claim, nil
		},
	}
	router := newRouter(New(svc, zaptest.NewLogger(t)), adminProfile())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/claims/"+claimID.String()+"/approve", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body claimResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "approved", body.Status)
}

func TestRejectPassesNotes(t *testing.T) {
	t.Parallel()

	claimID := uuid.New()
	var gotNotes *string
	svc := &mockService{
		rejectFn: func(ctx context.Context, actor service.Actor, id uuid.UUID, notes *string) (service.Claim, error) {
			gotNotes = notes
			claim := sampleClaim(claimID)
			claim.Status = "rejected"
			return claim, nil
		},
	}
	router := newRouter(New(svc, zaptest.NewLogger(t)), adminProfile())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/claims/"+claimID.String()+"/reject",
		strings.NewReader(`{"notes":"insufficient documentation"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotNotes)
	require.Equal(t, "insufficient documentation", *gotNotes)
}

func TestAdminListForbiddenForNonAdmin(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		adminListFn: func(ctx context.Context, actor service.Actor, opts service.ListOptions) (service.ListResult, error) {
			return service.ListResult{}, service.ErrForbidden
		},
	}
	caller := &profilesvc.Profile{ID: uuid.New(), Role: "user"}
	router := newRouter(New(svc, zaptest.NewLogger(t)), caller)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/claims", nil))

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminGetUnknownClaimIs404(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		adminGetFn: func(ctx context.Context, actor service.Actor, claimID uuid.UUID) (service.Claim, error) {
			return service.Claim{}, service.ErrNotFound
		},
	}
	router := newRouter(New(svc, zaptest.NewLogger(t)), adminProfile())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/claims/"+uuid.NewString(), nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

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

	"github.com/hardhat-labs/crewdeck/domains/agencies/be/service"
	"github.com/hardhat-labs/crewdeck/domains/profiles/be/access"
	profilesvc "github.com/hardhat-labs/crewdeck/domains/profiles/be/service"
)

type mockService struct {
	searchFn           func(ctx context.Context, opts service.SearchOptions) (service.SearchResult, error)
	getFn              func(ctx context.Context, id uuid.UUID) (service.Agency, error)
	updateFn           func(ctx context.Context, actor service.Actor, id uuid.UUID, input service.UpdateInput) (service.Agency, error)
	updateSelectionsFn func(ctx context.Context, actor service.Actor, id uuid.UUID, input service.SelectionsInput) (service.Agency, error)
	adminCreateFn      func(ctx context.Context, actor service.Actor, input service.CreateInput) (service.Agency, error)
	adminSetActiveFn   func(ctx context.Context, actor service.Actor, id uuid.UUID, active bool) (service.Agency, error)
}

func (m *mockService) Search(ctx context.Context, opts service.SearchOptions) (service.SearchResult, error) {
	if m.searchFn == nil {
		panic("unexpected Search call")
	}
	return m.searchFn(ctx, opts)
}

func (m *mockService) Get(ctx context.Context, id uuid.UUID) (service.Agency, error) {
	if m.getFn == nil {
		panic("unexpected Get call")
	}
	return m.getFn(ctx, id)
}

func (m *mockService) Update(ctx context.Context, actor service.Actor, id uuid.UUID, input service.UpdateInput) (service.Agency, error) {
	if m.updateFn == nil {
		panic("unexpected Update call")
	}
	return m.updateFn(ctx, actor, id, input)
}

func (m *mockService) UpdateSelections(ctx context.Context, actor service.Actor, id uuid.UUID, input service.SelectionsInput) (service.Agency, error) {
	if m.updateSelectionsFn == nil {
		panic("unexpected UpdateSelections call")
	}
	return m.updateSelectionsFn(ctx, actor, id, input)
}

func (m *mockService) AdminCreate(ctx context.Context, actor service.Actor, input service.CreateInput) (service.Agency, error) {
	if m.adminCreateFn == nil {
		panic("unexpected AdminCreate call")
	}
	return m.adminCreateFn(ctx, actor, input)
}

func (m *mockService) AdminSetActive(ctx context.Context, actor service.Actor, id uuid.UUID, active bool) (service.Agency, error) {
	if m.adminSetActiveFn == nil {
		panic("unexpected AdminSetActive call")
	}
	return m.adminSetActiveFn(ctx, actor, id, active)
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
	r.Get("/api/v1/agencies", h.Search)
	r.Get("/api/v1/agencies/{agencyId}", h.Get)
	r.Put("/api/v1/agencies/{agencyId}", h.Update)
	r.Put("/api/v1/agencies/{agencyId}/trades", h.UpdateSelections)
	r.Post("/api/v1/admin/agencies", h.AdminCreate)
	r.Put("/api/v1/admin/agencies/{agencyId}/status", h.AdminSetStatus)
	return r
}

func sampleAgency(id uuid.UUID) service.Agency {
	now := time.Now().UTC()
	return service.Agency{
		ID:        id,
		Name:      "Summit Crew Staffing",
		Slug:      "summit-crew-staffing",
		Trades:    []string{"electrical"},
		Regions:   []string{"midwest"},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSearchPassesFilters(t *testing.T) {
	t.Parallel()

	var captured service.SearchOptions
	svc := &mockService{
		searchFn: func(ctx context.Context, opts service.SearchOptions) (service.SearchResult, error) {
			captured = opts
			return service.SearchResult{Page: 2, PageSize: 10}, nil
		},
	}
	router := newRouter(New(svc, zaptest.NewLogger(t)), nil)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/agencies?trade=electrical&region=midwest&q=summit&claimed=true&page=2&pageSize=10&sort=-claimedAt", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured.Trade)
	require.Equal(t, "electrical", *captured.Trade)
	require.NotNil(t, captured.Region)
	require.Equal(t, "midwest", *captured.Region)
	require.NotNil(t, captured.Query)
	require.Equal(t, "summit", *captured.Query)
	require.NotNil(t, captured.Claimed)
	require.True(t, *captured.Claimed)
	require.Equal(t, 2, captured.Page)
	require.Equal(t, 10, captured.PageSize)
	require.False(t, captured.IncludeInactive)

	var body struct {
		Items []json.RawMessage `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Items)
}

func TestSearchIncludeInactiveRequiresAdmin(t *testing.T) {
	t.Parallel()

	var captured service.SearchOptions
	svc := &mockService{
		searchFn: func(ctx context.Context, opts service.SearchOptions) (service.SearchResult, error) {
			captured = opts
			return service.SearchResult{}, nil
		},
	}

	// Anonymous caller: the flag is ignored.
	router := newRouter(New(svc, zaptest.NewLogger(t)), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agencies?includeInactive=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, captured.IncludeInactive)

	// Admin caller: the flag is honored.
	admin := &profilesvc.Profile{ID: uuid.New(), Role: "admin"}
	router = newRouter(New(svc, zaptest.NewLogger(t)), admin)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agencies?includeInactive=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, captured.IncludeInactive)
}

func TestGetRejectsMalformedID(t *testing.T) {
	t.Parallel()

	router := newRouter(New(&mockService{}, zaptest.NewLogger(t)), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agencies/not-a-uuid", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestGetReturnsAgency(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	svc := &mockService{
		getFn: func(ctx context.Context, got uuid.UUID) (service.Agency, error) {
			require.Equal(t, id, got)
			return sampleAgency(id), nil
		},
	}
	router := newRouter(New(svc, zaptest.NewLogger(t)), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agencies/"+id.String(), nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body agencyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, id.String(), body.ID)
	require.Equal(t, []string{"electrical"}, body.Trades)
}

func TestUpdateRequiresAuthentication(t *testing.T) {
	t.Parallel()

	router := newRouter(New(&mockService{}, zaptest.NewLogger(t)), nil)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/agencies/"+uuid.NewString(),
		strings.NewReader(`{"name":"New Name"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateForbiddenMapsTo403(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		updateFn: func(ctx context.Context, actor service.Actor, id uuid.UUID, input service.UpdateInput) (service.Agency, error) {
			return service.Agency{}, service.ErrForbidden
		},
	}
	caller := &profilesvc.Profile{ID: uuid.New(), Role: "user"}
	router := newRouter(New(svc, zaptest.NewLogger(t)), caller)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/agencies/"+uuid.NewString(),
		strings.NewReader(`{"name":"New Name"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)

	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "FORBIDDEN", body.Code)
}

func TestUpdateSelectionsValidationMapsTo400(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		updateSelectionsFn: func(ctx context.Context, actor service.Actor, id uuid.UUID, input service.SelectionsInput) (service.Agency, error) {
			return service.Agency{}, &service.ValidationError{Fields: service.FieldErrors{
				"trades": {"unknown trades: time-travel"},
			}}
		},
	}
	caller := &profilesvc.Profile{ID: uuid.New(), Role: "agency_owner"}
	router := newRouter(New(svc, zaptest.NewLogger(t)), caller)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/agencies/"+uuid.NewString()+"/trades",
		strings.NewReader(`{"trades":["time-travel"],"regions":["midwest"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Code   string              `json:"code"`
		Errors map[string][]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "VALIDATION_ERROR", body.Code)
	require.Contains(t, body.Errors, "trades")
}

func TestAdminCreateReturns201(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	svc := &mockService{
		adminCreateFn: func(ctx context.Context, actor service.Actor, input service.CreateInput) (service.Agency, error) {
			require.Equal(t, "admin", actor.Role)
			require.Equal(t, "Summit Crew Staffing", input.Name)
			return sampleAgency(id), nil
		},
	}
	admin := &profilesvc.Profile{ID: uuid.New(), Role: "admin"}
	router := newRouter(New(svc, zaptest.NewLogger(t)), admin)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/agencies",
		strings.NewReader(`{"name":"Summit Crew Staffing","trades":["electrical"],"regions":["midwest"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestAdminSetStatusRequiresIsActive(t *testing.T) {
	t.Parallel()

	admin := &profilesvc.Profile{ID: uuid.New(), Role: "admin"}
	router := newRouter(New(&mockService{}, zaptest.NewLogger(t)), admin)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/agencies/"+uuid.NewString()+"/status",
		strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminSetStatusDeactivates(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	svc := &mockService{
		adminSetActiveFn: func(ctx context.Context, actor service.Actor, got uuid.UUID, active bool) (service.Agency, error) {
			require.Equal(t, id, got)
			require.False(t, active)
			deactivated := sampleAgency(id)
			deactivated.IsActive = false
			return deactivated, nil
		},
	}
	admin := &profilesvc.Profile{ID: uuid.New(), Role: "admin"}
	router := newRouter(New(svc, zaptest.NewLogger(t)), admin)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/agencies/"+id.String()+"/status",
		strings.NewReader(`{"isActive":false}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body agencyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.IsActive)
}

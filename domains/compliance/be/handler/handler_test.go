package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hardhat-labs/crewdeck/domains/compliance/be/service"
	"github.com/hardhat-labs/crewdeck/domains/profiles/be/access"
	profilesvc "github.com/hardhat-labs/crewdeck/domains/profiles/be/service"
)

type mockService struct {
	listFn          func(ctx context.Context, actor service.Actor, agencyID uuid.UUID, opts service.ListOptions) (service.ListResult, error)
	registerFn      func(ctx context.Context, actor service.Actor, agencyID uuid.UUID, input service.RegisterInput) (service.Document, error)
	adminListFn     func(ctx context.Context, actor service.Actor, opts service.AdminListOptions) (service.ListResult, error)
	adminReviewFn   func(ctx context.Context, actor service.Actor, documentID uuid.UUID, input service.ReviewInput) (service.Document, error)
	expireOverdueFn func(ctx context.Context, now time.Time) (int, error)
}

func (m *mockService) List(ctx context.Context, actor service.Actor, agencyID uuid.UUID, opts service.ListOptions) (service.ListResult, error) {
	if m.listFn == nil {
		panic("unexpected List call")
	}
	return m.listFn(ctx, actor, agencyID, opts)
}

func (m *mockService) Register(ctx context.Context, actor service.Actor, agencyID uuid.UUID, input service.RegisterInput) (service.Document, error) {
	if m.registerFn == nil {
		panic("unexpected Register call")
	}
	return m.registerFn(ctx, actor, agencyID, input)
}

func (m *mockService) AdminList(ctx context.Context, actor service.Actor, opts service.AdminListOptions) (service.ListResult, error) {
	if m.adminListFn == nil {
		panic("unexpected AdminList call")
	}
	return m.adminListFn(ctx, actor, opts)
}

func (m *mockService) AdminReview(ctx context.Context, actor service.Actor, documentID uuid.UUID, input service.ReviewInput) (service.Document, error) {
	if m.adminReviewFn == nil {
		panic("unexpected AdminReview call")
	}
	return m.adminReviewFn(ctx, actor, documentID, input)
}

func (m *mockService) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	if m.expireOverdueFn == nil {
		panic("unexpected ExpireOverdue call")
	}
	return m.expireOverdueFn(ctx, now)
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
	r.Get("/api/v1/agencies/{agencyId}/compliance", h.List)
	r.Post("/api/v1/agencies/{agencyId}/compliance", h.Register)
	r.Get("/api/v1/admin/compliance", h.AdminList)
	r.Put("/api/v1/admin/compliance/{documentId}", h.AdminReview)
	return r
}

func sampleDocument(agencyID uuid.UUID) service.Document {
	now := time.Now().UTC()
	return service.Document{
		ID:           uuid.New(),
		AgencyID:     agencyID,
		DocumentType: "insurance_certificate",
		Status:       "pending",
		FileName:     "coi-2026.pdf",
		ContentType:  "application/pdf",
		SizeBytes:    2048,
		UploadedBy:   uuid.New(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func userProfile() *profilesvc.Profile {
	return &profilesvc.Profile{ID: uuid.New(), Role: "user"}
}

func adminProfile() *profilesvc.Profile {
	return &profilesvc.Profile{ID: uuid.New(), Role: "admin"}
}

func multipartUpload(t *testing.T, fields map[string]string, fileName, fileContent string) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = io.WriteString(part, fileContent)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return &buf, writer.FormDataContentType()
}

func TestListRequiresAuthentication(t *testing.T) {
	t.Parallel()

	router := newRouter(New(&mockService{}, zaptest.NewLogger(t)), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agencies/"+uuid.NewString()+"/compliance", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListPassesFilters(t *testing.T) {
	t.Parallel()

	agencyID := uuid.New()
	svc := &mockService{
		listFn: func(ctx context.Context, actor service.Actor, got uuid.UUID, opts service.ListOptions) (service.ListResult, error) {
			require.Equal(t, agencyID, got)
			require.NotNil(t, opts.Status)
			require.Equal(t, "pending", *opts.Status)
			return service.ListResult{
				Documents: []service.Document{sampleDocument(agencyID)},
				Page:      1, PageSize: 20, TotalItems: 1, TotalPages: 1,
			}, nil
		},
	}
	router := newRouter(New(svc, zaptest.NewLogger(t)), userProfile())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/agencies/"+agencyID.String()+"/compliance?status=pending", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	require.Equal(t, "insurance_certificate", body.Items[0].DocumentType)
}

func TestRegisterReturns201WithDocument(t *testing.T) {
	t.Parallel()

	agencyID := uuid.New()
	svc := &mockService{
		registerFn: func(ctx context.Context, actor service.Actor, got uuid.UUID, input service.RegisterInput) (service.Document, error) {
			require.Equal(t, agencyID, got)
			require.Equal(t, "insurance_certificate", input.DocumentType)
			require.Equal(t, "coi-2026.pdf", input.FileName)
			require.NotNil(t, input.ExpiresAt)

			content, err := io.ReadAll(input.Content)
			require.NoError(t, err)
			require.Equal(t, "certificate body", string(content))

			document := sampleDocument(agencyID)
			document.ExpiresAt = input.ExpiresAt
			return document, nil
		},
	}
	router := newRouter(New(svc, zaptest.NewLogger(t)), userProfile())

	bodyReader, contentType := multipartUpload(t, map[string]string{
		"documentType": "insurance_certificate",
		"expiresAt":    "2027-01-31",
	}, "coi-2026.pdf", "certificate body")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agencies/"+agencyID.String()+"/compliance", bodyReader)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var body documentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "coi-2026.pdf", body.FileName)
	require.NotNil(t, body.ExpiresAt)
}

func TestRegisterWithoutFilePartIs400(t *testing.T) {
	t.Parallel()

	router := newRouter(New(&mockService{}, zaptest.NewLogger(t)), userProfile())

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("documentType", "insurance_certificate"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agencies/"+uuid.NewString()+"/compliance", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterRejectsMalformedExpiresAt(t *testing.T) {
	t.Parallel()

	router := newRouter(New(&mockService{}, zaptest.NewLogger(t)), userProfile())

	bodyReader, contentType := multipartUpload(t, map[string]string{
		"documentType": "insurance_certificate",
		"expiresAt":    "31/01/2027",
	}, "coi.pdf", "data")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agencies/"+uuid.NewString()+"/compliance", bodyReader)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminListRejectsMalformedAgencyFilter(t *testing.T) {
	t.Parallel()

	router := newRouter(New(&mockService{}, zaptest.NewLogger(t)), adminProfile())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/compliance?agencyId=nope", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminListForbiddenForNonAdmin(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		adminListFn: func(ctx context.Context, actor service.Actor, opts service.AdminListOptions) (service.ListResult, error) {
			return service.ListResult{}, service.ErrForbidden
		},
	}
	router := newRouter(New(svc, zaptest.NewLogger(t)), userProfile())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/compliance", nil))

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminReviewRequiresApproveField(t *testing.T) {
	t.Parallel()

	router := newRouter(New(&mockService{}, zaptest.NewLogger(t)), adminProfile())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/compliance/"+uuid.NewString(),
		strings.NewReader(`{"notes":"missing decision"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminReviewApproves(t *testing.T) {
	t.Parallel()

	documentID := uuid.New()
	svc := &mockService{
		adminReviewFn: func(ctx context.Context, actor service.Actor, got uuid.UUID, input service.ReviewInput) (service.Document, error) {
			require.Equal(t, documentID, got)
			require.True(t, input.Approve)
			document := sampleDocument(uuid.New())
			document.ID = documentID
			document.Status = "approved"
			return document, nil
		},
	}
	router := newRouter(New(svc, zaptest.NewLogger(t)), adminProfile())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/compliance/"+documentID.String(),
		strings.NewReader(`{"approve":true}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body documentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "approved", body.Status)
}

func TestAdminReviewAlreadyReviewedIs409(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		adminReviewFn: func(ctx context.Context, actor service.Actor, documentID uuid.UUID, input service.ReviewInput) (service.Document, error) {
			return service.Document{}, service.ErrStateConflict
		},
	}
	router := newRouter(New(svc, zaptest.NewLogger(t)), adminProfile())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/compliance/"+uuid.NewString(),
		strings.NewReader(`{"approve":false,"notes":"expired policy"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "VALIDATION_ERROR", body.Code)
}

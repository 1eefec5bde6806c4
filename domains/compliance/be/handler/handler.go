package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hardhat-labs/crewdeck/domains/compliance/be/service"
	"github.com/hardhat-labs/crewdeck/domains/profiles/be/access"
	platformlogging "github.com/hardhat-labs/crewdeck/platform/go/logging"
	"github.com/hardhat-labs/crewdeck/platform/go/problem"
)

type operation string

const (
	listOperation      operation = "complianceList"
	registerOperation  operation = "complianceRegister"
	adminListOperation operation = "complianceAdminList"
	reviewOperation    operation = "complianceAdminReview"
)

// Uploads above this size are rejected before they reach the blob store.
const maxUploadBytes = 20 << 20

// Handler serves the compliance-document endpoints.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("compliance service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

type documentResponse struct {
	ID           string     `json:"id"`
	AgencyID     string     `json:"agencyId"`
	DocumentType string     `json:"documentType"`
	Status       string     `json:"status"`
	FileName     string     `json:"fileName"`
	ContentType  string     `json:"contentType"`
	SizeBytes    int64      `json:"sizeBytes"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	ReviewedAt   *time.Time `json:"reviewedAt,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type listResponse struct {
	Items      []documentResponse `json:"items"`
	Page       int                `json:"page"`
	PageSize   int                `json:"pageSize"`
	TotalItems int                `json:"totalItems"`
	TotalPages int                `json:"totalPages"`
}

// List returns an agency's compliance documents for the dashboard.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	agencyID, ok := pathID(w, r, "agencyId", "agency not found")
	if !ok {
		return
	}

	opts := service.ListOptions{}
	q := r.URL.Query()
	opts.Page = intQuery(q.Get("page"))
	opts.PageSize = intQuery(q.Get("pageSize"))
	if status := q.Get("status"); status != "" {
		opts.Status = &status
	}
	if documentType := q.Get("documentType"); documentType != "" {
		opts.DocumentType = &documentType
	}

	result, err := h.svc.List(r.Context(), actor, agencyID, opts)
	if err != nil {
		h.writeError(w, r, err, listOperation)
		return
	}

	writeJSON(w, http.StatusOK, toListResponse(result))
}

// Register accepts a multipart upload: a "file" part plus documentType and
// an optional expiresAt date field.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	agencyID, ok := pathID(w, r, "agencyId", "agency not found")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
			"Invalid request body", "request must be multipart/form-data with a file part"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
			"Validation failed", "a file part is required"))
		return
	}
	defer file.Close()

	input := service.RegisterInput{
		DocumentType: r.FormValue("documentType"),
		FileName:     header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Content:      file,
	}

	if raw := r.FormValue("expiresAt"); raw != "" {
		expires, parseErr := time.Parse("2006-01-02", raw)
		if parseErr != nil {
			problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
				"Validation failed", "expiresAt must use the YYYY-MM-DD format"))
			return
		}
		input.ExpiresAt = &expires
	}

	document, err := h.svc.Register(r.Context(), actor, agencyID, input)
	if err != nil {
		h.writeError(w, r, err, registerOperation)
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(document))
}

// AdminList returns the cross-agency review queue.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	opts := service.AdminListOptions{}
	q := r.URL.Query()
	opts.Page = intQuery(q.Get("page"))
	opts.PageSize = intQuery(q.Get("pageSize"))
	if status := q.Get("status"); status != "" {
		opts.Status = &status
	}
	if documentType := q.Get("documentType"); documentType != "" {
		opts.DocumentType = &documentType
	}
	if raw := q.Get("agencyId"); raw != "" {
		agencyID, err := uuid.Parse(raw)
		if err != nil {
			problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
				"Validation failed", "agencyId must be a UUID"))
			return
		}
		opts.AgencyID = &agencyID
	}

	result, err := h.svc.AdminList(r.Context(), actor, opts)
	if err != nil {
		h.writeError(w, r, err, adminListOperation)
		return
	}

	writeJSON(w, http.StatusOK, toListResponse(result))
}

type reviewRequest struct {
	Approve *bool   `json:"approve"`
	Notes   *string `json:"notes"`
}

// AdminReview records an approve/reject decision on a pending document.
func (h *Handler) AdminReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	documentID, ok := pathID(w, r, "documentId", "compliance document not found")
	if !ok {
		return
	}

	var body reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Approve == nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
			"Invalid request body", "approve is required"))
		return
	}

	document, err := h.svc.AdminReview(r.Context(), actor, documentID, service.ReviewInput{
		Approve: *body.Approve,
		Notes:   body.Notes,
	})
	if err != nil {
		h.writeError(w, r, err, reviewOperation)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(document))
}

func toListResponse(result service.ListResult) listResponse {
	items := make([]documentResponse, 0, len(result.Documents))
	for _, document := range result.Documents {
		items = append(items, toResponse(document))
	}

	return listResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	}
}

func toResponse(document service.Document) documentResponse {
	return documentResponse{
		ID:           document.ID.String(),
		AgencyID:     document.AgencyID.String(),
		DocumentType: document.DocumentType,
		Status:       document.Status,
		FileName:     document.FileName,
		ContentType:  document.ContentType,
		SizeBytes:    document.SizeBytes,
		ExpiresAt:    document.ExpiresAt,
		ReviewedAt:   document.ReviewedAt,
		Notes:        document.Notes,
		CreatedAt:    document.CreatedAt,
		UpdatedAt:    document.UpdatedAt,
	}
}

func requireActor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	profile, ok := access.FromContext(r.Context())
	if !ok {
		problem.Write(w, problem.New(http.StatusUnauthorized, problem.CodeUnauthorized,
			"Unauthorized", "authentication is required"))
		return service.Actor{}, false
	}

	return service.Actor{ProfileID: profile.ID, Role: profile.Role}, true
}

func pathID(w http.ResponseWriter, r *http.Request, param, missing string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		problem.Write(w, problem.New(http.StatusNotFound, problem.CodeNotFound,
			"Resource not found", missing))
		return uuid.Nil, false
	}

	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, op operation) {
	details := classifyError(err)

	logger := platformlogging.FromRequest(r, h.logger)
	logFields := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", details.Status),
	}

	switch {
	case details.Status >= http.StatusInternalServerError:
		logger.Error("compliance operation failed", append(logFields, zap.Error(err))...)
	case details.Status == http.StatusNotFound:
		logger.Info("compliance resource not found", append(logFields, zap.Error(err))...)
	default:
		logger.Warn("compliance request rejected", append(logFields, zap.Error(err))...)
	}

	problem.Write(w, details)
}

func classifyError(err error) problem.Details {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return problem.New(http.StatusBadRequest, problem.CodeValidation,
			"Validation failed", "one or more fields are invalid").
			WithFields(validationErr.Fields)
	case errors.Is(err, service.ErrNotFound):
		return problem.New(http.StatusNotFound, problem.CodeNotFound,
			"Resource not found", "compliance document not found")
	case errors.Is(err, service.ErrForbidden):
		return problem.New(http.StatusForbidden, problem.CodeForbidden,
			"Forbidden", "caller may not access these compliance documents")
	case errors.Is(err, service.ErrStateConflict):
		return problem.New(http.StatusConflict, problem.CodeValidation,
			"Conflict", "compliance document has already been reviewed")
	default:
		return problem.New(http.StatusInternalServerError, problem.CodeDatabase,
			"Internal server error", "an unexpected error occurred")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func intQuery(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

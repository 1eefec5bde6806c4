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

	"github.com/hardhat-labs/crewdeck/domains/claims/be/service"
	"github.com/hardhat-labs/crewdeck/domains/profiles/be/access"
	platformlogging "github.com/hardhat-labs/crewdeck/platform/go/logging"
	"github.com/hardhat-labs/crewdeck/platform/go/problem"
)

type operation string

const (
	submitOperation  operation = "claimsSubmit"
	listOperation    operation = "claimsAdminList"
	getOperation     operation = "claimsAdminGet"
	reviewOperation  operation = "claimsReview"
	approveOperation operation = "claimsApprove"
	rejectOperation  operation = "claimsReject"
)

// Handler serves the claim endpoints.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("claims service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

type claimResponse struct {
	ID           string     `json:"id"`
	AgencyID     string     `json:"agencyId"`
	UserID       string     `json:"userId"`
	Status       string     `json:"status"`
	ContactName  string     `json:"contactName"`
	ContactEmail string     `json:"contactEmail"`
	ContactPhone *string    `json:"contactPhone,omitempty"`
	Message      *string    `json:"message,omitempty"`
	ReviewedBy   *string    `json:"reviewedBy,omitempty"`
	ReviewedAt   *time.Time `json:"reviewedAt,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type claimListItemResponse struct {
	claimResponse
	AgencyName string `json:"agencyName"`
	UserEmail  string `json:"userEmail"`
}

type listResponse struct {
	Items      []claimListItemResponse `json:"items"`
	Page       int                     `json:"page"`
	PageSize   int                     `json:"pageSize"`
	TotalItems int                     `json:"totalItems"`
	TotalPages int                     `json:"totalPages"`
}

type submitRequest struct {
	AgencyID     string  `json:"agencyId"`
	ContactName  string  `json:"contactName"`
	ContactEmail string  `json:"contactEmail"`
	ContactPhone *string `json:"contactPhone"`
	Message      *string `json:"message"`
}

// Submit lets an authenticated user request ownership of a listing.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
			"Invalid request body", "request body must be valid JSON"))
		return
	}

	agencyID, err := uuid.Parse(body.AgencyID)
	if err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
			"Validation failed", "agencyId must be a UUID"))
		return
	}

	claim, err := h.svc.Submit(r.Context(), actor, service.SubmitInput{
		AgencyID:     agencyID,
		ContactName:  body.ContactName,
		ContactEmail: body.ContactEmail,
		ContactPhone: body.ContactPhone,
		Message:      body.Message,
	})
	if err != nil {
		h.writeError(w, r, err, submitOperation)
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(claim))
}

// AdminList returns the claim queue with status and agency filters.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
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
		h.writeError(w, r, err, listOperation)
		return
	}

	items := make([]claimListItemResponse, 0, len(result.Claims))
	for _, item := range result.Claims {
		items = append(items, claimListItemResponse{
			claimResponse: toResponse(item.Claim),
			AgencyName:    item.AgencyName,
			UserEmail:     item.UserEmail,
		})
	}

	writeJSON(w, http.StatusOK, listResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

// AdminGet returns a single claim for the back-office detail view.
func (h *Handler) AdminGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	id, ok := claimID(w, r)
	if !ok {
		return
	}

	claim, err := h.svc.AdminGet(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err, getOperation)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(claim))
}

// Review moves a pending claim into under_review.
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	id, ok := claimID(w, r)
	if !ok {
		return
	}

	claim, err := h.svc.Review(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err, reviewOperation)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(claim))
}

// Approve runs the approval sequence for a pending or under-review claim.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	id, ok := claimID(w, r)
	if !ok {
		return
	}

	claim, err := h.svc.Approve(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err, approveOperation)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(claim))
}

type rejectRequest struct {
	Notes *string `json:"notes"`
}

// Reject terminally rejects a claim, recording reviewer notes.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	id, ok := claimID(w, r)
	if !ok {
		return
	}

	var body rejectRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
				"Invalid request body", "request body must be valid JSON"))
			return
		}
	}

	claim, err := h.svc.Reject(r.Context(), actor, id, body.Notes)
	if err != nil {
		h.writeError(w, r, err, rejectOperation)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(claim))
}

func toResponse(claim service.Claim) claimResponse {
	resp := claimResponse{
		ID:           claim.ID.String(),
		AgencyID:     claim.AgencyID.String(),
		UserID:       claim.UserID.String(),
		Status:       claim.Status,
		ContactName:  claim.ContactName,
		ContactEmail: claim.ContactEmail,
		ContactPhone: claim.ContactPhone,
		Message:      claim.Message,
		ReviewedAt:   claim.ReviewedAt,
		Notes:        claim.Notes,
		CreatedAt:    claim.CreatedAt,
		UpdatedAt:    claim.UpdatedAt,
	}
	if claim.ReviewedBy != nil {
		reviewer := claim.ReviewedBy.String()
		resp.ReviewedBy = &reviewer
	}
	return resp
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

func claimID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "claimId")
	id, err := uuid.Parse(raw)
	if err != nil {
		problem.Write(w, problem.New(http.StatusNotFound, problem.CodeNotFound,
			"Resource not found", "claim not found"))
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
		logger.Error("claims operation failed", append(logFields, zap.Error(err))...)
	case details.Status == http.StatusNotFound:
		logger.Info("claims resource not found", append(logFields, zap.Error(err))...)
	default:
		logger.Warn("claims request rejected", append(logFields, zap.Error(err))...)
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
			"Resource not found", "claim not found")
	case errors.Is(err, service.ErrForbidden):
		return problem.New(http.StatusForbidden, problem.CodeForbidden,
			"Forbidden", "admin role is required")
	case errors.Is(err, service.ErrStateConflict):
		return problem.New(http.StatusConflict, problem.CodeValidation,
			"Conflict", "claim is not in a reviewable status")
	case errors.Is(err, service.ErrDuplicate):
		return problem.New(http.StatusConflict, problem.CodeValidation,
			"Conflict", "an open claim already exists for this agency")
	case errors.Is(err, service.ErrAgencyClaimed):
		return problem.New(http.StatusConflict, problem.CodeValidation,
			"Conflict", "agency is already claimed")
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

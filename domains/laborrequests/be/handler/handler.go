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

	"github.com/hardhat-labs/crewdeck/domains/laborrequests/be/service"
	"github.com/hardhat-labs/crewdeck/domains/profiles/be/access"
	platformlogging "github.com/hardhat-labs/crewdeck/platform/go/logging"
	"github.com/hardhat-labs/crewdeck/platform/go/problem"
)

type operation string

const (
	submitOperation   operation = "laborRequestsSubmit"
	inboxOperation    operation = "laborRequestsInbox"
	markReadOperation operation = "laborRequestsMarkRead"
)

// Handler serves the labor-request endpoints.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("labor requests service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

type requestResponse struct {
	ID           string     `json:"id"`
	ContactName  string     `json:"contactName"`
	ContactEmail string     `json:"contactEmail"`
	ContactPhone *string    `json:"contactPhone,omitempty"`
	Trade        string     `json:"trade"`
	Region       string     `json:"region"`
	Headcount    int        `json:"headcount"`
	StartDate    *time.Time `json:"startDate,omitempty"`
	Details      *string    `json:"details,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type submitResponse struct {
	Request         requestResponse `json:"request"`
	MatchedAgencies int             `json:"matchedAgencies"`
}

type inboxItemResponse struct {
	NotificationID string          `json:"notificationId"`
	ReadAt         *time.Time      `json:"readAt,omitempty"`
	NotifiedAt     time.Time       `json:"notifiedAt"`
	Request        requestResponse `json:"request"`
}

type inboxResponse struct {
	Items      []inboxItemResponse `json:"items"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"pageSize"`
	TotalItems int                 `json:"totalItems"`
	TotalPages int                 `json:"totalPages"`
}

type submitRequest struct {
	ContactName  string  `json:"contactName"`
	ContactEmail string  `json:"contactEmail"`
	ContactPhone *string `json:"contactPhone"`
	Trade        string  `json:"trade"`
	Region       string  `json:"region"`
	Headcount    int     `json:"headcount"`
	StartDate    *string `json:"startDate"`
	Details      *string `json:"details"`
}

// Submit is the public staffing-request intake.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
			"Invalid request body", "request body must be valid JSON"))
		return
	}

	input := service.SubmitInput{
		ContactName:  body.ContactName,
		ContactEmail: body.ContactEmail,
		ContactPhone: body.ContactPhone,
		Trade:        body.Trade,
		Region:       body.Region,
		Headcount:    body.Headcount,
		Details:      body.Details,
	}

	if body.StartDate != nil && *body.StartDate != "" {
		start, err := time.Parse("2006-01-02", *body.StartDate)
		if err != nil {
			problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
				"Validation failed", "startDate must use the YYYY-MM-DD format"))
			return
		}
		input.StartDate = &start
	}

	result, err := h.svc.Submit(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err, submitOperation)
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{
		Request:         toResponse(result.Request),
		MatchedAgencies: result.MatchedAgencies,
	})
}

// Inbox lists an agency's labor-request notifications.
func (h *Handler) Inbox(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	agencyID, ok := pathID(w, r, "agencyId", "agency not found")
	if !ok {
		return
	}

	opts := service.InboxOptions{}
	q := r.URL.Query()
	opts.Page = intQuery(q.Get("page"))
	opts.PageSize = intQuery(q.Get("pageSize"))
	if unread := q.Get("unread"); unread != "" {
		parsed, err := strconv.ParseBool(unread)
		if err != nil {
			problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
				"Validation failed", "unread must be a boolean"))
			return
		}
		opts.UnreadOnly = parsed
	}

	result, err := h.svc.Inbox(r.Context(), actor, agencyID, opts)
	if err != nil {
		h.writeError(w, r, err, inboxOperation)
		return
	}

	items := make([]inboxItemResponse, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, inboxItemResponse{
			NotificationID: item.NotificationID.String(),
			ReadAt:         item.ReadAt,
			NotifiedAt:     item.NotifiedAt,
			Request:        toResponse(item.Request),
		})
	}

	writeJSON(w, http.StatusOK, inboxResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

// MarkRead stamps one inbox notification as read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	agencyID, ok := pathID(w, r, "agencyId", "agency not found")
	if !ok {
		return
	}
	notificationID, ok := pathID(w, r, "notificationId", "notification not found")
	if !ok {
		return
	}

	if err := h.svc.MarkRead(r.Context(), actor, agencyID, notificationID); err != nil {
		h.writeError(w, r, err, markReadOperation)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toResponse(request service.Request) requestResponse {
	return requestResponse{
		ID:           request.ID.String(),
		ContactName:  request.ContactName,
		ContactEmail: request.ContactEmail,
		ContactPhone: request.ContactPhone,
		Trade:        request.Trade,
		Region:       request.Region,
		Headcount:    request.Headcount,
		StartDate:    request.StartDate,
		Details:      request.Details,
		CreatedAt:    request.CreatedAt,
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
		logger.Error("labor requests operation failed", append(logFields, zap.Error(err))...)
	case details.Status == http.StatusNotFound:
		logger.Info("labor requests resource not found", append(logFields, zap.Error(err))...)
	default:
		logger.Warn("labor requests request rejected", append(logFields, zap.Error(err))...)
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
			"Resource not found", "resource not found")
	case errors.Is(err, service.ErrForbidden):
		return problem.New(http.StatusForbidden, problem.CodeForbidden,
			"Forbidden", "caller may not access this agency inbox")
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

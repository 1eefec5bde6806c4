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

	"github.com/hardhat-labs/crewdeck/domains/agencies/be/service"
	"github.com/hardhat-labs/crewdeck/domains/profiles/be/access"
	platformlogging "github.com/hardhat-labs/crewdeck/platform/go/logging"
	"github.com/hardhat-labs/crewdeck/platform/go/problem"
)

type operation string

const (
	searchOperation      operation = "agenciesSearch"
	getOperation         operation = "agenciesGet"
	updateOperation      operation = "agenciesUpdate"
	selectionsOperation  operation = "agenciesUpdateSelections"
	adminCreateOperation operation = "agenciesAdminCreate"
	adminStatusOperation operation = "agenciesAdminSetStatus"
)

// Handler serves the agency directory endpoints.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("agencies service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

type agencyResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description *string    `json:"description,omitempty"`
	Website     *string    `json:"website,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	Email       *string    `json:"email,omitempty"`
	Trades      []string   `json:"trades"`
	Regions     []string   `json:"regions"`
	IsClaimed   bool       `json:"isClaimed"`
	ClaimedAt   *time.Time `json:"claimedAt,omitempty"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type searchResponse struct {
	Items      []agencyResponse `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalItems int              `json:"totalItems"`
	TotalPages int              `json:"totalPages"`
}

// Search handles the public directory listing with trade/region/text filters.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	opts := service.SearchOptions{}

	q := r.URL.Query()
	opts.Page = intQuery(q.Get("page"))
	opts.PageSize = intQuery(q.Get("pageSize"))
	if trade := q.Get("trade"); trade != "" {
		opts.Trade = &trade
	}
	if region := q.Get("region"); region != "" {
		opts.Region = &region
	}
	if query := q.Get("q"); query != "" {
		opts.Query = &query
	}
	if sort := q.Get("sort"); sort != "" {
		opts.Sort = &sort
	}
	if claimed := q.Get("claimed"); claimed != "" {
		parsed, err := strconv.ParseBool(claimed)
		if err != nil {
			problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
				"Validation failed", "claimed must be a boolean"))
			return
		}
		opts.Claimed = &parsed
	}

	// Only admins may see deactivated listings.
	if profile, ok := access.FromContext(r.Context()); ok && profile.Role == "admin" {
		if include := q.Get("includeInactive"); include != "" {
			parsed, err := strconv.ParseBool(include)
			if err == nil {
				opts.IncludeInactive = parsed
			}
		}
	}

	result, err := h.svc.Search(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err, searchOperation)
		return
	}

	items := make([]agencyResponse, 0, len(result.Agencies))
	for _, agency := range result.Agencies {
		items = append(items, toResponse(agency))
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

// Get returns a single listing by its identifier.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := agencyID(w, r)
	if !ok {
		return
	}

	agency, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, getOperation)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(agency))
}

type updateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Website     *string `json:"website"`
	Phone       *string `json:"phone"`
	Email       *string `json:"email"`
}

// Update edits listing fields; restricted to the claiming owner or an admin.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	id, ok := agencyID(w, r)
	if !ok {
		return
	}

	var body updateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
			"Invalid request body", "request body must be valid JSON"))
		return
	}

	agency, err := h.svc.Update(r.Context(), actor, id, service.UpdateInput{
		Name:        body.Name,
		Description: body.Description,
		Website:     body.Website,
		Phone:       body.Phone,
		Email:       body.Email,
	})
	if err != nil {
		h.writeError(w, r, err, updateOperation)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(agency))
}

type selectionsRequest struct {
	Trades  []string `json:"trades"`
	Regions []string `json:"regions"`
}

// UpdateSelections replaces the listing's trade and region selections.
func (h *Handler) UpdateSelections(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	id, ok := agencyID(w, r)
	if !ok {
		return
	}

	var body selectionsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
			"Invalid request body", "request body must be valid JSON"))
		return
	}

	agency, err := h.svc.UpdateSelections(r.Context(), actor, id, service.SelectionsInput{
		Trades:  body.Trades,
		Regions: body.Regions,
	})
	if err != nil {
		h.writeError(w, r, err, selectionsOperation)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(agency))
}

type createRequest struct {
	Name        string   `json:"name"`
	Slug        *string  `json:"slug"`
	Description *string  `json:"description"`
	Website     *string  `json:"website"`
	Phone       *string  `json:"phone"`
	Email       *string  `json:"email"`
	Trades      []string `json:"trades"`
	Regions     []string `json:"regions"`
}

// AdminCreate registers a new unclaimed listing in the directory.
func (h *Handler) AdminCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
			"Invalid request body", "request body must be valid JSON"))
		return
	}

	agency, err := h.svc.AdminCreate(r.Context(), actor, service.CreateInput{
		Name:        body.Name,
		Slug:        body.Slug,
		Description: body.Description,
		Website:     body.Website,
		Phone:       body.Phone,
		Email:       body.Email,
		Trades:      body.Trades,
		Regions:     body.Regions,
	})
	if err != nil {
		h.writeError(w, r, err, adminCreateOperation)
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(agency))
}

type statusRequest struct {
	IsActive *bool `json:"isActive"`
}

// AdminSetStatus activates or deactivates a listing.
func (h *Handler) AdminSetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	id, ok := agencyID(w, r)
	if !ok {
		return
	}

	var body statusRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IsActive == nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
			"Invalid request body", "isActive is required"))
		return
	}

	agency, err := h.svc.AdminSetActive(r.Context(), actor, id, *body.IsActive)
	if err != nil {
		h.writeError(w, r, err, adminStatusOperation)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(agency))
}

func toResponse(agency service.Agency) agencyResponse {
	trades := agency.Trades
	if trades == nil {
		trades = []string{}
	}
	regions := agency.Regions
	if regions == nil {
		regions = []string{}
	}

	return agencyResponse{
		ID:          agency.ID.String(),
		Name:        agency.Name,
		Slug:        agency.Slug,
		Description: agency.Description,
		Website:     agency.Website,
		Phone:       agency.Phone,
		Email:       agency.Email,
		Trades:      trades,
		Regions:     regions,
		IsClaimed:   agency.IsClaimed,
		ClaimedAt:   agency.ClaimedAt,
		IsActive:    agency.IsActive,
		CreatedAt:   agency.CreatedAt,
		UpdatedAt:   agency.UpdatedAt,
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

func agencyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "agencyId")
	id, err := uuid.Parse(raw)
	if err != nil {
		problem.Write(w, problem.New(http.StatusNotFound, problem.CodeNotFound,
			"Resource not found", "agency not found"))
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
		logger.Error("agencies operation failed", append(logFields, zap.Error(err))...)
	case details.Status == http.StatusNotFound:
		logger.Info("agencies resource not found", append(logFields, zap.Error(err))...)
	default:
		logger.Warn("agencies request rejected", append(logFields, zap.Error(err))...)
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
			"Resource not found", "agency not found")
	case errors.Is(err, service.ErrForbidden):
		return problem.New(http.StatusForbidden, problem.CodeForbidden,
			"Forbidden", "caller may not manage this agency")
	case errors.Is(err, service.ErrConflict):
		return problem.New(http.StatusConflict, problem.CodeValidation,
			"Conflict", "an agency with the same slug already exists")
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

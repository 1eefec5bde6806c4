package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hardhat-labs/crewdeck/domains/profiles/be/access"
	"github.com/hardhat-labs/crewdeck/domains/profiles/be/service"
	platformlogging "github.com/hardhat-labs/crewdeck/platform/go/logging"
	"github.com/hardhat-labs/crewdeck/platform/go/problem"
)

type operation string

const (
	meOperation       operation = "profilesMe"
	meUpdateOperation operation = "profilesUpdateMe"
	listOperation     operation = "profilesAdminList"
)

// Handler serves the profile endpoints.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("profiles service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

type profileResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Phone     *string   `json:"phone,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type listResponse struct {
	Items      []profileResponse `json:"items"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalItems int               `json:"totalItems"`
	TotalPages int               `json:"totalPages"`
}

// Me returns the caller's profile; the access middleware has already upserted it.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	profile, ok := access.FromContext(r.Context())
	if !ok {
		problem.Write(w, problem.New(http.StatusUnauthorized, problem.CodeUnauthorized,
			"Unauthorized", "authentication is required"))
		return
	}

	writeJSON(w, http.StatusOK, toResponse(profile))
}

type updateMeRequest struct {
	FullName *string `json:"fullName"`
	Phone    *string `json:"phone"`
}

// UpdateMe edits the caller's own profile fields.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	profile, ok := access.FromContext(r.Context())
	if !ok {
		problem.Write(w, problem.New(http.StatusUnauthorized, problem.CodeUnauthorized,
			"Unauthorized", "authentication is required"))
		return
	}

	var body updateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
			"Invalid request body", "request body must be valid JSON"))
		return
	}

	updated, err := h.svc.UpdateSelf(r.Context(), profile.ID, service.UpdateSelfInput{
		FullName: body.FullName,
		Phone:    body.Phone,
	})
	if err != nil {
		h.writeError(w, r, err, meUpdateOperation)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(updated))
}

// AdminList returns profiles for the back-office, with email/role filters.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	opts := service.ListOptions{}

	q := r.URL.Query()
	opts.Page = intQuery(q.Get("page"))
	opts.PageSize = intQuery(q.Get("pageSize"))
	if email := q.Get("email"); email != "" {
		opts.Email = &email
	}
	if role := q.Get("role"); role != "" {
		opts.Role = &role
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err, listOperation)
		return
	}

	items := make([]profileResponse, 0, len(result.Profiles))
	for _, profile := range result.Profiles {
		items = append(items, toResponse(profile))
	}

	writeJSON(w, http.StatusOK, listResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

func toResponse(profile service.Profile) profileResponse {
	return profileResponse{
		ID:        profile.ID.String(),
		Email:     profile.Email,
		FullName:  profile.FullName,
		Phone:     profile.Phone,
		Role:      profile.Role,
		CreatedAt: profile.CreatedAt,
		UpdatedAt: profile.UpdatedAt,
	}
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
		logger.Error("profiles operation failed", append(logFields, zap.Error(err))...)
	case details.Status == http.StatusNotFound:
		logger.Info("profiles resource not found", append(logFields, zap.Error(err))...)
	default:
		logger.Warn("profiles request rejected", append(logFields, zap.Error(err))...)
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
			"Resource not found", "profile not found")
	case errors.Is(err, service.ErrConflict):
		return problem.New(http.StatusConflict, problem.CodeValidation,
			"Conflict", "profile conflict")
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

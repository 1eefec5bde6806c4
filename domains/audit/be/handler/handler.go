package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hardhat-labs/crewdeck/domains/audit/be/service"
	"github.com/hardhat-labs/crewdeck/domains/profiles/be/access"
	platformlogging "github.com/hardhat-labs/crewdeck/platform/go/logging"
	"github.com/hardhat-labs/crewdeck/platform/go/problem"
)

type operation string

const listOperation operation = "auditAdminList"

// Handler serves the admin audit-log endpoint.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("audit service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

type entryResponse struct {
	EntryID    string     `json:"entryId"`
	AdminID    string     `json:"adminId"`
	Action     string     `json:"action"`
	ClaimID    *uuid.UUID `json:"claimId,omitempty"`
	AgencyID   *uuid.UUID `json:"agencyId,omitempty"`
	DocumentID *uuid.UUID `json:"documentId,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type listResponse struct {
	Items      []entryResponse `json:"items"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	TotalItems int             `json:"totalItems"`
	TotalPages int             `json:"totalPages"`
}

// AdminList returns the audit trail newest first with action and adminId filters.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	opts := service.ListOptions{}
	q := r.URL.Query()
	opts.Page = intQuery(q.Get("page"))
	opts.PageSize = intQuery(q.Get("pageSize"))
	if action := q.Get("action"); action != "" {
		opts.Action = &action
	}
	if raw := q.Get("adminId"); raw != "" {
		adminID, err := uuid.Parse(raw)
		if err != nil {
			problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
				"Validation failed", "adminId must be a UUID"))
			return
		}
		opts.AdminID = &adminID
	}

	result, err := h.svc.AdminList(r.Context(), actor, opts)
	if err != nil {
		h.writeError(w, r, err, listOperation)
		return
	}

	items := make([]entryResponse, 0, len(result.Entries))
	for _, entry := range result.Entries {
		items = append(items, entryResponse{
			EntryID:    entry.EntryID.String(),
			AdminID:    entry.AdminID.String(),
			Action:     entry.Action,
			ClaimID:    entry.ClaimID,
			AgencyID:   entry.AgencyID,
			DocumentID: entry.DocumentID,
			Notes:      entry.Notes,
			CreatedAt:  entry.CreatedAt,
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

func requireActor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	profile, ok := access.FromContext(r.Context())
	if !ok {
		problem.Write(w, problem.New(http.StatusUnauthorized, problem.CodeUnauthorized,
			"Unauthorized", "authentication is required"))
		return service.Actor{}, false
	}

	return service.Actor{ProfileID: profile.ID, Role: profile.Role}, true
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
		logger.Error("audit operation failed", append(logFields, zap.Error(err))...)
	default:
		logger.Warn("audit request rejected", append(logFields, zap.Error(err))...)
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
	case errors.Is(err, service.ErrForbidden):
		return problem.New(http.StatusForbidden, problem.CodeForbidden,
			"Forbidden", "the audit log requires the admin role")
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

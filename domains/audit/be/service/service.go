package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hardhat-labs/crewdeck/domains/audit/be/repo"
	"github.com/hardhat-labs/crewdeck/platform/go/persistence"
)

// ErrForbidden indicates the caller lacks the admin role.
var ErrForbidden = errors.New("forbidden")

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Actor identifies the authenticated caller.
type Actor struct {
	ProfileID uuid.UUID
	Role      string
}

// IsAdmin reports whether the actor holds the back-office role.
func (a Actor) IsAdmin() bool {
	return a.Role == persistence.RoleAdmin
}

// Entry is one immutable audit record as exposed to the back office.
type Entry struct {
	EntryID    uuid.UUID
	AdminID    uuid.UUID
	Action     string
	ClaimID    *uuid.UUID
	AgencyID   *uuid.UUID
	DocumentID *uuid.UUID
	Notes      *string
	CreatedAt  time.Time
}

// ListOptions carries the audit-log filters and pagination.
type ListOptions struct {
	Page     int
	PageSize int
	Action   *string
	AdminID  *uuid.UUID
}

// ListResult is one page of audit entries plus pagination metadata.
type ListResult struct {
	Entries    []Entry
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// FieldErrors maps field names to a human readable problem description.
type FieldErrors map[string][]string

// ValidationError carries per-field validation failures.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d invalid fields", len(e.Fields))
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: FieldErrors{field: {message}}}
}

// Service exposes the audit-log listing for the admin back office.
type Service interface {
	AdminList(ctx context.Context, actor Actor, opts ListOptions) (ListResult, error)
}

type service struct {
	repo   repo.Repository
	logger *zap.Logger
}

// New constructs the audit service.
func New(repository repo.Repository, logger *zap.Logger) Service {
	if repository == nil {
		panic("audit repository is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &service{repo: repository, logger: logger}
}

var knownActions = map[string]struct{}{
	persistence.AuditActionClaimApproved:    {},
	persistence.AuditActionClaimRejected:    {},
	persistence.AuditActionClaimUnderReview: {},
	persistence.AuditActionComplianceReview: {},
	persistence.AuditActionAgencyStatus:     {},
}

// AdminList returns audit entries newest first, optionally filtered by action
// and acting admin.
func (s *service) AdminList(ctx context.Context, actor Actor, opts ListOptions) (ListResult, error) {
	if !actor.IsAdmin() {
		return ListResult{}, ErrForbidden
	}

	if opts.Action != nil {
		if _, ok := knownActions[*opts.Action]; !ok {
			return ListResult{}, newValidationError("action", "unknown audit action")
		}
	}

	page, pageSize := clampPagination(opts.Page, opts.PageSize)

	result, err := s.repo.ListEntries(ctx, persistence.ListAuditEntriesParams{
		Page:     page,
		PageSize: pageSize,
		Action:   opts.Action,
		AdminID:  opts.AdminID,
	})
	if err != nil {
		return ListResult{}, fmt.Errorf("list audit entries: %w", err)
	}

	entries := make([]Entry, 0, len(result.Entries))
	for _, entry := range result.Entries {
		entries = append(entries, mapEntry(entry))
	}

	return ListResult{
		Entries:    entries,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: result.TotalItems,
		TotalPages: totalPages(result.TotalItems, pageSize),
	}, nil
}

func mapEntry(entry persistence.AuditEntry) Entry {
	return Entry{
		EntryID:    entry.EntryID,
		AdminID:    entry.AdminID,
		Action:     entry.Action,
		ClaimID:    entry.ClaimID,
		AgencyID:   entry.AgencyID,
		DocumentID: entry.DocumentID,
		Notes:      entry.Notes,
		CreatedAt:  entry.CreatedAt,
	}
}

func clampPagination(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func totalPages(totalItems, pageSize int) int {
	if totalItems == 0 {
		return 0
	}
	return (totalItems + pageSize - 1) / pageSize
}

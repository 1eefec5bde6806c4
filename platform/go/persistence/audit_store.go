package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const AuditLogTable = "audit_log"

// Audit actions recorded for admin operations.
const (
	AuditActionClaimApproved    = "claim_approved"
	AuditActionClaimRejected    = "claim_rejected"
	AuditActionClaimUnderReview = "claim_under_review"
	AuditActionComplianceReview = "compliance_reviewed"
	AuditActionAgencyStatus     = "agency_status_changed"
)

// AuditEntry is an append-only record of an admin action.
type AuditEntry struct {
	EntryID    uuid.UUID  `db:"entry_id" json:"entryId"`
	AdminID    uuid.UUID  `db:"admin_id" json:"adminId"`
	Action     string     `db:"action" json:"action"`
	ClaimID    *uuid.UUID `db:"claim_id" json:"claimId,omitempty"`
	AgencyID   *uuid.UUID `db:"agency_id" json:"agencyId,omitempty"`
	DocumentID *uuid.UUID `db:"document_id" json:"documentId,omitempty"`
	Notes      *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

// ErrAuditEntryInvalid indicates a malformed audit entry (missing admin or action).
var ErrAuditEntryInvalid = errors.New("audit entry invalid")

// AuditStore exposes persistence helpers for the append-only audit_log table.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore returns a store instance bound to the shared pool.
func NewAuditStore(ctx context.Context, pool *pgxpool.Pool) (*AuditStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}

	return &AuditStore{pool: pool}, nil
}

// InsertAuditEntryParams carries the fields of a new audit record.
type InsertAuditEntryParams struct {
	AdminID    uuid.UUID
	Action     string
	ClaimID    *uuid.UUID
	AgencyID   *uuid.UUID
	DocumentID *uuid.UUID
	Notes      *string
}

// InsertAuditEntry appends one audit record. Callers treat failures as best-effort:
// the error is logged and never changes the outcome of the primary operation.
func (s *AuditStore) InsertAuditEntry(ctx context.Context, params InsertAuditEntryParams) (AuditEntry, error) {
	if params.AdminID == uuid.Nil || strings.TrimSpace(params.Action) == "" {
		return AuditEntry{}, ErrAuditEntryInvalid
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (entry_id, admin_id, action, claim_id, agency_id, document_id, notes)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING entry_id, admin_id, action, claim_id, agency_id, document_id, notes, created_at
    `, AuditLogTable),
		uuid.New(),
		params.AdminID,
		strings.TrimSpace(params.Action),
		params.ClaimID,
		params.AgencyID,
		params.DocumentID,
		params.Notes,
	)

	var entry AuditEntry
	if err := row.Scan(
		&entry.EntryID, &entry.AdminID, &entry.Action,
		&entry.ClaimID, &entry.AgencyID, &entry.DocumentID,
		&entry.Notes, &entry.CreatedAt,
	); err != nil {
		return AuditEntry{}, err
	}

	return entry, nil
}

// ListAuditEntriesParams captures filters and pagination for the audit listing.
type ListAuditEntriesParams struct {
	Page     int
	PageSize int
	Action   *string
	AdminID  *uuid.UUID
}

// ListAuditEntriesResult includes the rows and the total count for pagination metadata.
type ListAuditEntriesResult struct {
	Entries    []AuditEntry
	TotalItems int
}

// ListAuditEntries returns audit records newest first.
func (s *AuditStore) ListAuditEntries(ctx context.Context, params ListAuditEntriesParams) (ListAuditEntriesResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}

	whereParts := []string{"1=1"}
	var args []any

	if params.Action != nil && strings.TrimSpace(*params.Action) != "" {
		args = append(args, strings.TrimSpace(*params.Action))
		whereParts = append(whereParts, fmt.Sprintf("action = $%d", len(args)))
	}
	if params.AdminID != nil && *params.AdminID != uuid.Nil {
		args = append(args, *params.AdminID)
		whereParts = append(whereParts, fmt.Sprintf("admin_id = $%d", len(args)))
	}

	whereSQL := strings.Join(whereParts, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", AuditLogTable, whereSQL)
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListAuditEntriesResult{}, fmt.Errorf("count audit entries: %w", err)
	}

	result := ListAuditEntriesResult{Entries: []AuditEntry{}, TotalItems: total}
	if total == 0 {
		return result, nil
	}

	dataArgs := append([]any{}, args...)
	dataArgs = append(dataArgs, params.PageSize, (params.Page-1)*params.PageSize)

	query := fmt.Sprintf(`
        SELECT entry_id, admin_id, action, claim_id, agency_id, document_id, notes, created_at
        FROM %s
        WHERE %s
        ORDER BY created_at DESC
        LIMIT $%d OFFSET $%d
    `, AuditLogTable, whereSQL, len(dataArgs)-1, len(dataArgs))

	rows, err := s.pool.Query(ctx, query, dataArgs...)
	if err != nil {
		return ListAuditEntriesResult{}, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]AuditEntry, 0)
	for rows.Next() {
		var entry AuditEntry
		if err := rows.Scan(
			&entry.EntryID, &entry.AdminID, &entry.Action,
			&entry.ClaimID, &entry.AgencyID, &entry.DocumentID,
			&entry.Notes, &entry.CreatedAt,
		); err != nil {
			return ListAuditEntriesResult{}, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return ListAuditEntriesResult{}, fmt.Errorf("iterate audit entries: %w", err)
	}

	result.Entries = entries
	return result, nil
}

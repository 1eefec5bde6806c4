package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ClaimRequestsTable = "claim_requests"

// Claim statuses. A claim is terminal once it leaves pending/under_review.
const (
	ClaimStatusPending     = "pending"
	ClaimStatusUnderReview = "under_review"
	ClaimStatusApproved    = "approved"
	ClaimStatusRejected    = "rejected"
)

// ClaimRequest represents a row in the claim_requests table.
type ClaimRequest struct {
	ClaimID      uuid.UUID  `db:"claim_id" json:"claimId"`
	AgencyID     uuid.UUID  `db:"agency_id" json:"agencyId"`
	UserID       uuid.UUID  `db:"user_id" json:"userId"`
	Status       string     `db:"status" json:"status"`
	ContactName  string     `db:"contact_name" json:"contactName"`
	ContactEmail string     `db:"contact_email" json:"contactEmail"`
	ContactPhone *string    `db:"contact_phone" json:"contactPhone,omitempty"`
	Message      *string    `db:"message" json:"message,omitempty"`
	ReviewedBy   *uuid.UUID `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt   *time.Time `db:"reviewed_at" json:"reviewedAt,omitempty"`
	Notes        *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}

// ClaimRow is the listing DTO for the admin back-office: claim fields joined
// with the agency name and the claimant email so the queue renders without extra lookups.
type ClaimRow struct {
	ClaimRequest
	AgencyName string `db:"agency_name" json:"agencyName"`
	UserEmail  string `db:"user_email" json:"userEmail"`
}

var (
	// ErrClaimNotFound indicates a missing claim record.
	ErrClaimNotFound = errors.New("claim not found")
	// ErrClaimConflict indicates the user already has an open claim for the agency.
	ErrClaimConflict = errors.New("claim conflict")
	// ErrClaimStateConflict indicates the claim exists but is not in an allowed status for the transition.
	ErrClaimStateConflict = errors.New("claim state conflict")
)

// ClaimStore exposes persistence helpers for the claim_requests table.
type ClaimStore struct {
	pool *pgxpool.Pool
}

// NewClaimStore returns a store instance bound to the shared pool.
func NewClaimStore(ctx context.Context, pool *pgxpool.Pool) (*ClaimStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}

	return &ClaimStore{pool: pool}, nil
}

const claimColumns = "claim_id, agency_id, user_id, status, contact_name, contact_email, contact_phone, message, reviewed_by, reviewed_at, notes, created_at, updated_at"

// CreateClaimParams captures the fields required to submit an ownership claim.
type CreateClaimParams struct {
	ClaimID      uuid.UUID
	AgencyID     uuid.UUID
	UserID       uuid.UUID
	ContactName  string
	ContactEmail string
	ContactPhone *string
	Message      *string
}

// CreateClaim inserts a new pending claim and returns the persisted record.
// A partial unique index on open claims maps double submissions to ErrClaimConflict.
func (s *ClaimStore) CreateClaim(ctx context.Context, params CreateClaimParams) (ClaimRequest, error) {
	if params.ClaimID == uuid.Nil {
		return ClaimRequest{}, errors.New("claim id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (claim_id, agency_id, user_id, status, contact_name, contact_email, contact_phone, message)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING %s
    `, ClaimRequestsTable, claimColumns),
		params.ClaimID,
		params.AgencyID,
		params.UserID,
		ClaimStatusPending,
		strings.TrimSpace(params.ContactName),
		strings.ToLower(strings.TrimSpace(params.ContactEmail)),
		params.ContactPhone,
		params.Message,
	)

	claim, err := scanClaim(row)
	if err != nil {
		if isUniqueViolation(err) {
			return ClaimRequest{}, ErrClaimConflict
		}
		if isForeignKeyViolation(err) {
			return ClaimRequest{}, ErrClaimNotFound
		}
		return ClaimRequest{}, err
	}

	return claim, nil
}

// GetClaim returns a single claim by identifier.
func (s *ClaimStore) GetClaim(ctx context.Context, id uuid.UUID) (ClaimRequest, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE claim_id = $1
    `, claimColumns, ClaimRequestsTable), id)

	claim, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClaimRequest{}, ErrClaimNotFound
		}
		return ClaimRequest{}, err
	}

	return claim, nil
}

// ListClaimsParams captures filters and pagination for the admin claim queue.
type ListClaimsParams struct {
	Page     int
	PageSize int
	Status   *string
	AgencyID *uuid.UUID
}

// ListClaimsResult includes the joined rows and the total count for pagination metadata.
type ListClaimsResult struct {
	Claims     []ClaimRow
	TotalItems int
}

// ListClaims returns claims joined with agency name and claimant email, newest first.
func (s *ClaimStore) ListClaims(ctx context.Context, params ListClaimsParams) (ListClaimsResult, error) {
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

	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		args = append(args, strings.TrimSpace(*params.Status))
		whereParts = append(whereParts, fmt.Sprintf("c.status = $%d", len(args)))
	}
	if params.AgencyID != nil && *params.AgencyID != uuid.Nil {
		args = append(args, *params.AgencyID)
		whereParts = append(whereParts, fmt.Sprintf("c.agency_id = $%d", len(args)))
	}

	whereSQL := strings.Join(whereParts, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s c WHERE %s", ClaimRequestsTable, whereSQL)
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListClaimsResult{}, fmt.Errorf("count claims: %w", err)
	}

	result := ListClaimsResult{Claims: []ClaimRow{}, TotalItems: total}
	if total == 0 {
		return result, nil
	}

	dataArgs := append([]any{}, args...)
	dataArgs = append(dataArgs, params.PageSize, (params.Page-1)*params.PageSize)

	query := fmt.Sprintf(`
        SELECT c.claim_id, c.agency_id, c.user_id, c.status, c.contact_name, c.contact_email,
               c.contact_phone, c.message, c.reviewed_by, c.reviewed_at, c.notes, c.created_at, c.updated_at,
               a.name AS agency_name, p.email AS user_email
        FROM %s c
        JOIN %s a ON a.agency_id = c.agency_id
        JOIN %s p ON p.profile_id = c.user_id
        WHERE %s
        ORDER BY c.created_at DESC
        LIMIT $%d OFFSET $%d
    `, ClaimRequestsTable, AgenciesTable, ProfilesTable, whereSQL, len(dataArgs)-1, len(dataArgs))

	rows, err := s.pool.Query(ctx, query, dataArgs...)
	if err != nil {
		return ListClaimsResult{}, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	claims := make([]ClaimRow, 0)
	for rows.Next() {
		var cr ClaimRow
		if err := rows.Scan(
			&cr.ClaimID, &cr.AgencyID, &cr.UserID, &cr.Status, &cr.ContactName, &cr.ContactEmail,
			&cr.ContactPhone, &cr.Message, &cr.ReviewedBy, &cr.ReviewedAt, &cr.Notes, &cr.CreatedAt, &cr.UpdatedAt,
			&cr.AgencyName, &cr.UserEmail,
		); err != nil {
			return ListClaimsResult{}, fmt.Errorf("scan claim row: %w", err)
		}
		claims = append(claims, cr)
	}

	if err = rows.Err(); err != nil {
		return ListClaimsResult{}, fmt.Errorf("iterate claims: %w", err)
	}

	result.Claims = claims
	return result, nil
}

// TransitionClaimParams describes a guarded status change.
type TransitionClaimParams struct {
	AllowedFrom []string
	To          string
	ReviewedBy  uuid.UUID
	ReviewedAt  time.Time
	Notes       *string
}

// TransitionClaim moves a claim to a new status only when its current status is allowed.
// The status precondition lives in the WHERE clause so a raced or terminal claim
// surfaces as ErrClaimStateConflict instead of a double transition.
func (s *ClaimStore) TransitionClaim(ctx context.Context, id uuid.UUID, params TransitionClaimParams) (ClaimRequest, error) {
	if len(params.AllowedFrom) == 0 {
		return ClaimRequest{}, errors.New("allowed-from statuses are required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET status = $1, reviewed_by = $2, reviewed_at = $3, notes = COALESCE($4, notes), updated_at = NOW()
        WHERE claim_id = $5 AND status = ANY($6)
        RETURNING %s
    `, ClaimRequestsTable, claimColumns),
		params.To,
		params.ReviewedBy,
		params.ReviewedAt,
		params.Notes,
		id,
		params.AllowedFrom,
	)

	claim, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.GetClaim(ctx, id); getErr != nil {
				return ClaimRequest{}, getErr
			}
			return ClaimRequest{}, ErrClaimStateConflict
		}
		return ClaimRequest{}, err
	}

	return claim, nil
}

// RevertClaim restores a claim to a prior status and clears the review stamp.
// Compensation path only; never exposed through a handler.
func (s *ClaimStore) RevertClaim(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s
        SET status = $1, reviewed_by = NULL, reviewed_at = NULL, updated_at = NOW()
        WHERE claim_id = $2
    `, ClaimRequestsTable), status, id)
	if err != nil {
		return fmt.Errorf("revert claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimNotFound
	}

	return nil
}

func scanClaim(row pgx.Row) (ClaimRequest, error) {
	var claim ClaimRequest

	if err := row.Scan(
		&claim.ClaimID,
		&claim.AgencyID,
		&claim.UserID,
		&claim.Status,
		&claim.ContactName,
		&claim.ContactEmail,
		&claim.ContactPhone,
		&claim.Message,
		&claim.ReviewedBy,
		&claim.ReviewedAt,
		&claim.Notes,
		&claim.CreatedAt,
		&claim.UpdatedAt,
	); err != nil {
		return ClaimRequest{}, err
	}

	return claim, nil
}

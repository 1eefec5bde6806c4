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

const ComplianceDocumentsTable = "compliance_documents"

// Compliance document statuses. Documents past their expiry date surface as expired.
const (
	DocumentStatusPending  = "pending"
	DocumentStatusApproved = "approved"
	DocumentStatusRejected = "rejected"
	DocumentStatusExpired  = "expired"
)

// Compliance document types tracked per agency.
const (
	DocumentTypeInsurance     = "insurance_certificate"
	DocumentTypeLicense       = "contractor_license"
	DocumentTypeWorkersComp   = "workers_comp"
	DocumentTypeBondingLetter = "bonding_letter"
)

// ComplianceDocument represents an uploaded credential of an agency.
type ComplianceDocument struct {
	DocumentID   uuid.UUID  `db:"document_id" json:"documentId"`
	AgencyID     uuid.UUID  `db:"agency_id" json:"agencyId"`
	DocumentType string     `db:"document_type" json:"documentType"`
	Status       string     `db:"status" json:"status"`
	FileName     string     `db:"file_name" json:"fileName"`
	ObjectPath   string     `db:"object_path" json:"-"`
	ContentType  string     `db:"content_type" json:"contentType"`
	SizeBytes    int64      `db:"size_bytes" json:"sizeBytes"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expiresAt,omitempty"`
	UploadedBy   uuid.UUID  `db:"uploaded_by" json:"uploadedBy"`
	ReviewedBy   *uuid.UUID `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt   *time.Time `db:"reviewed_at" json:"reviewedAt,omitempty"`
	Notes        *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}

var (
	// ErrDocumentNotFound indicates a missing compliance document record.
	ErrDocumentNotFound = errors.New("compliance document not found")
	// ErrDocumentStateConflict indicates the document is not reviewable in its current status.
	ErrDocumentStateConflict = errors.New("compliance document state conflict")
)

// ComplianceStore exposes persistence helpers for the compliance_documents table.
type ComplianceStore struct {
	pool *pgxpool.Pool
}

// NewComplianceStore returns a store instance bound to the shared pool.
func NewComplianceStore(ctx context.Context, pool *pgxpool.Pool) (*ComplianceStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}

	return &ComplianceStore{pool: pool}, nil
}

const documentColumns = "document_id, agency_id, document_type, status, file_name, object_path, content_type, size_bytes, expires_at, uploaded_by, reviewed_by, reviewed_at, notes, created_at, updated_at"

// InsertDocumentParams captures the metadata recorded for an uploaded document.
type InsertDocumentParams struct {
	DocumentID   uuid.UUID
	AgencyID     uuid.UUID
	DocumentType string
	FileName     string
	ObjectPath   string
	ContentType  string
	SizeBytes    int64
	ExpiresAt    *time.Time
	UploadedBy   uuid.UUID
}

// InsertDocument records an uploaded document in pending status.
func (s *ComplianceStore) InsertDocument(ctx context.Context, params InsertDocumentParams) (ComplianceDocument, error) {
	if params.DocumentID == uuid.Nil {
		return ComplianceDocument{}, errors.New("document id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (document_id, agency_id, document_type, status, file_name, object_path, content_type, size_bytes, expires_at, uploaded_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING %s
    `, ComplianceDocumentsTable, documentColumns),
		params.DocumentID,
		params.AgencyID,
		strings.TrimSpace(params.DocumentType),
		DocumentStatusPending,
		strings.TrimSpace(params.FileName),
		params.ObjectPath,
		params.ContentType,
		params.SizeBytes,
		params.ExpiresAt,
		params.UploadedBy,
	)

	document, err := scanDocument(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ComplianceDocument{}, ErrAgencyNotFound
		}
		return ComplianceDocument{}, err
	}

	return document, nil
}

// GetDocument returns a single compliance document by identifier.
func (s *ComplianceStore) GetDocument(ctx context.Context, id uuid.UUID) (ComplianceDocument, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE document_id = $1
    `, documentColumns, ComplianceDocumentsTable), id)

	document, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ComplianceDocument{}, ErrDocumentNotFound
		}
		return ComplianceDocument{}, err
	}

	return document, nil
}

// ListDocumentsParams captures filters and pagination for document listings.
type ListDocumentsParams struct {
	Page         int
	PageSize     int
	AgencyID     *uuid.UUID
	Status       *string
	DocumentType *string
}

// ListDocumentsResult includes the rows and the total count for pagination metadata.
type ListDocumentsResult struct {
	Documents  []ComplianceDocument
	TotalItems int
}

// ListDocuments returns compliance documents newest first.
func (s *ComplianceStore) ListDocuments(ctx context.Context, params ListDocumentsParams) (ListDocumentsResult, error) {
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

	if params.AgencyID != nil && *params.AgencyID != uuid.Nil {
		args = append(args, *params.AgencyID)
		whereParts = append(whereParts, fmt.Sprintf("agency_id = $%d", len(args)))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		args = append(args, strings.TrimSpace(*params.Status))
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}
	if params.DocumentType != nil && strings.TrimSpace(*params.DocumentType) != "" {
		args = append(args, strings.TrimSpace(*params.DocumentType))
		whereParts = append(whereParts, fmt.Sprintf("document_type = $%d", len(args)))
	}

	whereSQL := strings.Join(whereParts, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", ComplianceDocumentsTable, whereSQL)
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListDocumentsResult{}, fmt.Errorf("count documents: %w", err)
	}

	result := ListDocumentsResult{Documents: []ComplianceDocument{}, TotalItems: total}
	if total == 0 {
		return result, nil
	}

	dataArgs := append([]any{}, args...)
	dataArgs = append(dataArgs, params.PageSize, (params.Page-1)*params.PageSize)

	query := fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE %s
        ORDER BY created_at DESC
        LIMIT $%d OFFSET $%d
    `, documentColumns, ComplianceDocumentsTable, whereSQL, len(dataArgs)-1, len(dataArgs))

	rows, err := s.pool.Query(ctx, query, dataArgs...)
	if err != nil {
		return ListDocumentsResult{}, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	documents := make([]ComplianceDocument, 0)
	for rows.Next() {
		document, err := scanDocument(rows)
		if err != nil {
			return ListDocumentsResult{}, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, document)
	}

	if err = rows.Err(); err != nil {
		return ListDocumentsResult{}, fmt.Errorf("iterate documents: %w", err)
	}

	result.Documents = documents
	return result, nil
}

// ReviewDocumentParams describes an admin review decision.
type ReviewDocumentParams struct {
	Status     string
	ReviewedBy uuid.UUID
	ReviewedAt time.Time
	Notes      *string
}

// ReviewDocument stamps a review decision on a pending document.
// The pending precondition lives in the WHERE clause so a raced review
// surfaces as ErrDocumentStateConflict.
func (s *ComplianceStore) ReviewDocument(ctx context.Context, id uuid.UUID, params ReviewDocumentParams) (ComplianceDocument, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET status = $1, reviewed_by = $2, reviewed_at = $3, notes = COALESCE($4, notes), updated_at = NOW()
        WHERE document_id = $5 AND status = $6
        RETURNING %s
    `, ComplianceDocumentsTable, documentColumns),
		params.Status,
		params.ReviewedBy,
		params.ReviewedAt,
		params.Notes,
		id,
		DocumentStatusPending,
	)

	document, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.GetDocument(ctx, id); getErr != nil {
				return ComplianceDocument{}, getErr
			}
			return ComplianceDocument{}, ErrDocumentStateConflict
		}
		return ComplianceDocument{}, err
	}

	return document, nil
}

// MarkExpiredDocuments flips approved documents whose expiry date has passed; returns the number changed.
func (s *ComplianceStore) MarkExpiredDocuments(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s
        SET status = $1, updated_at = NOW()
        WHERE status = $2 AND expires_at IS NOT NULL AND expires_at < $3
    `, ComplianceDocumentsTable), DocumentStatusExpired, DocumentStatusApproved, now)
	if err != nil {
		return 0, fmt.Errorf("mark expired documents: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

func scanDocument(row pgx.Row) (ComplianceDocument, error) {
	var document ComplianceDocument

	if err := row.Scan(
		&document.DocumentID,
		&document.AgencyID,
		&document.DocumentType,
		&document.Status,
		&document.FileName,
		&document.ObjectPath,
		&document.ContentType,
		&document.SizeBytes,
		&document.ExpiresAt,
		&document.UploadedBy,
		&document.ReviewedBy,
		&document.ReviewedAt,
		&document.Notes,
		&document.CreatedAt,
		&document.UpdatedAt,
	); err != nil {
		return ComplianceDocument{}, err
	}

	return document, nil
}

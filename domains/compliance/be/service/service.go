package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hardhat-labs/crewdeck/domains/compliance/be/repo"
	"github.com/hardhat-labs/crewdeck/platform/go/persistence"
	"github.com/hardhat-labs/crewdeck/platform/go/storage"
)

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// ValidationError is returned when the input payload is invalid.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

// Domain sentinel errors.
var (
	ErrNotFound  = errors.New("compliance document not found")
	ErrForbidden = errors.New("caller may not access this agency's compliance documents")
	// ErrStateConflict means the document exists but has already been reviewed.
	ErrStateConflict = errors.New("compliance document is not pending review")
)

// Actor identifies the caller for ownership and role checks.
type Actor struct {
	ProfileID uuid.UUID
	Role      string
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool { return a.Role == persistence.RoleAdmin }

// Document is the domain view of an agency credential.
type Document struct {
	ID           uuid.UUID
	AgencyID     uuid.UUID
	DocumentType string
	Status       string
	FileName     string
	ContentType  string
	SizeBytes    int64
	ExpiresAt    *time.Time
	UploadedBy   uuid.UUID
	ReviewedBy   *uuid.UUID
	ReviewedAt   *time.Time
	Notes        *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterInput carries an uploaded document's metadata and content.
type RegisterInput struct {
	DocumentType string
	FileName     string
	ContentType  string
	ExpiresAt    *time.Time
	Content      io.Reader
}

// ListOptions filters the per-agency document listing.
type ListOptions struct {
	Status       *string
	DocumentType *string
	Page         int
	PageSize     int
}

// AdminListOptions filters the back-office review queue across agencies.
type AdminListOptions struct {
	AgencyID     *uuid.UUID
	Status       *string
	DocumentType *string
	Page         int
	PageSize     int
}

// ReviewInput is an admin decision on a pending document.
type ReviewInput struct {
	Approve bool
	Notes   *string
}

// ListResult wraps a page of documents with pagination metadata.
type ListResult struct {
	Documents  []Document
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Config carries the blob-store location settings.
type Config struct {
	Bucket    string
	EnvPrefix string
}

// Service defines the business operations for the compliance domain.
type Service interface {
	List(ctx context.Context, actor Actor, agencyID uuid.UUID, opts ListOptions) (ListResult, error)
	Register(ctx context.Context, actor Actor, agencyID uuid.UUID, input RegisterInput) (Document, error)
	AdminList(ctx context.Context, actor Actor, opts AdminListOptions) (ListResult, error)
	AdminReview(ctx context.Context, actor Actor, documentID uuid.UUID, input ReviewInput) (Document, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

type service struct {
	repo   repo.Repository
	blobs  storage.BlobStore
	cfg    Config
	logger *zap.Logger
}

// New constructs a compliance Service instance.
func New(r repo.Repository, blobs storage.BlobStore, cfg Config, logger *zap.Logger) Service {
	if r == nil {
		panic("compliance repository is required")
	}
	if blobs == nil {
		panic("blob store is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &service{repo: r, blobs: blobs, cfg: cfg, logger: logger}
}

func (s *service) List(ctx context.Context, actor Actor, agencyID uuid.UUID, opts ListOptions) (ListResult, error) {
	if err := s.requireAgencyAccess(ctx, actor, agencyID); err != nil {
		return ListResult{}, err
	}

	return s.list(ctx, persistence.ListDocumentsParams{
		AgencyID:     &agencyID,
		Status:       opts.Status,
		DocumentType: opts.DocumentType,
		Page:         opts.Page,
		PageSize:     opts.PageSize,
	})
}

// Register stores the blob first and the metadata row second. When the row
// insert fails the blob is deleted best-effort so the bucket does not collect
// orphans.
func (s *service) Register(ctx context.Context, actor Actor, agencyID uuid.UUID, input RegisterInput) (Document, error) {
	if err := s.requireAgencyAccess(ctx, actor, agencyID); err != nil {
		return Document{}, err
	}

	fieldErrors := FieldErrors{}

	documentType := strings.TrimSpace(input.DocumentType)
	if !isKnownDocumentType(documentType) {
		fieldErrors.add("documentType", fmt.Sprintf("unknown document type %q", documentType))
	}
	if strings.TrimSpace(input.FileName) == "" {
		fieldErrors.add("fileName", "fileName is required")
	}
	if input.Content == nil {
		fieldErrors.add("file", "document content is required")
	}
	if len(fieldErrors) > 0 {
		return Document{}, &ValidationError{Fields: fieldErrors}
	}

	documentID := uuid.New()
	location, err := storage.ResolveDocumentLocation(s.cfg.Bucket, s.cfg.EnvPrefix, agencyID, documentID, input.FileName)
	if err != nil {
		fe := FieldErrors{}
		fe.add("fileName", err.Error())
		return Document{}, &ValidationError{Fields: fe}
	}

	contentType := input.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	size, err := s.blobs.Put(ctx, location, contentType, input.Content)
	if err != nil {
		return Document{}, fmt.Errorf("store document blob: %w", err)
	}

	record, err := s.repo.InsertDocument(ctx, persistence.InsertDocumentParams{
		DocumentID:   documentID,
		AgencyID:     agencyID,
		DocumentType: documentType,
		FileName:     input.FileName,
		ObjectPath:   location.FullPath,
		ContentType:  contentType,
		SizeBytes:    size,
		ExpiresAt:    input.ExpiresAt,
		UploadedBy:   actor.ProfileID,
	})
	if err != nil {
		if deleteErr := s.blobs.Delete(ctx, location); deleteErr != nil {
			s.logger.Warn("orphaned blob cleanup failed",
				zap.String("object_path", location.FullPath),
				zap.Error(deleteErr),
			)
		}
		if errors.Is(err, persistence.ErrAgencyNotFound) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}

	return mapDocument(record), nil
}

func (s *service) AdminList(ctx context.Context, actor Actor, opts AdminListOptions) (ListResult, error) {
	if !actor.IsAdmin() {
		return ListResult{}, ErrForbidden
	}

	return s.list(ctx, persistence.ListDocumentsParams{
		AgencyID:     opts.AgencyID,
		Status:       opts.Status,
		DocumentType: opts.DocumentType,
		Page:         opts.Page,
		PageSize:     opts.PageSize,
	})
}

func (s *service) AdminReview(ctx context.Context, actor Actor, documentID uuid.UUID, input ReviewInput) (Document, error) {
	if !actor.IsAdmin() {
		return Document{}, ErrForbidden
	}

	status := persistence.DocumentStatusRejected
	if input.Approve {
		status = persistence.DocumentStatusApproved
	}

	record, err := s.repo.ReviewDocument(ctx, documentID, persistence.ReviewDocumentParams{
		Status:     status,
		ReviewedBy: actor.ProfileID,
		ReviewedAt: time.Now().UTC(),
		Notes:      input.Notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, persistence.ErrDocumentNotFound):
			return Document{}, ErrNotFound
		case errors.Is(err, persistence.ErrDocumentStateConflict):
			return Document{}, ErrStateConflict
		default:
			return Document{}, err
		}
	}

	if auditErr := s.repo.RecordAudit(ctx, persistence.InsertAuditEntryParams{
		AdminID:    actor.ProfileID,
		Action:     persistence.AuditActionComplianceReview,
		AgencyID:   &record.AgencyID,
		DocumentID: &record.DocumentID,
		Notes:      input.Notes,
	}); auditErr != nil {
		s.logger.Warn("audit insert failed for compliance review",
			zap.String("document_id", record.DocumentID.String()),
			zap.Error(auditErr),
		)
	}

	return mapDocument(record), nil
}

// ExpireOverdue flips approved documents whose expiry has passed. Callers run
// it periodically; it is not exposed over HTTP.
func (s *service) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	return s.repo.MarkExpiredDocuments(ctx, now)
}

func (s *service) list(ctx context.Context, params persistence.ListDocumentsParams) (ListResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}

	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		if !isKnownStatus(strings.TrimSpace(*params.Status)) {
			return ListResult{}, newValidationError(map[string]string{
				"status": fmt.Sprintf("unknown status %q", *params.Status),
			})
		}
	}
	if params.DocumentType != nil && strings.TrimSpace(*params.DocumentType) != "" {
		if !isKnownDocumentType(strings.TrimSpace(*params.DocumentType)) {
			return ListResult{}, newValidationError(map[string]string{
				"documentType": fmt.Sprintf("unknown document type %q", *params.DocumentType),
			})
		}
	}

	result, err := s.repo.ListDocuments(ctx, params)
	if err != nil {
		return ListResult{}, err
	}

	documents := make([]Document, 0, len(result.Documents))
	for _, record := range result.Documents {
		documents = append(documents, mapDocument(record))
	}

	totalPages := 0
	if result.TotalItems > 0 {
		totalPages = (result.TotalItems + params.PageSize - 1) / params.PageSize
	}

	return ListResult{
		Documents:  documents,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: totalPages,
	}, nil
}

// requireAgencyAccess allows admins and the claiming owner through.
func (s *service) requireAgencyAccess(ctx context.Context, actor Actor, agencyID uuid.UUID) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.ProfileID == uuid.Nil {
		return ErrForbidden
	}

	agency, err := s.repo.GetAgency(ctx, agencyID)
	if err != nil {
		if errors.Is(err, persistence.ErrAgencyNotFound) {
			return ErrNotFound
		}
		return err
	}

	if agency.ClaimedBy == nil || *agency.ClaimedBy != actor.ProfileID {
		return ErrForbidden
	}

	return nil
}

func isKnownStatus(status string) bool {
	switch status {
	case persistence.DocumentStatusPending,
		persistence.DocumentStatusApproved,
		persistence.DocumentStatusRejected,
		persistence.DocumentStatusExpired:
		return true
	default:
		return false
	}
}

func isKnownDocumentType(documentType string) bool {
	switch documentType {
	case persistence.DocumentTypeInsurance,
		persistence.DocumentTypeLicense,
		persistence.DocumentTypeWorkersComp,
		persistence.DocumentTypeBondingLetter:
		return true
	default:
		return false
	}
}

func mapDocument(record persistence.ComplianceDocument) Document {
	return Document{
		ID:           record.DocumentID,
		AgencyID:     record.AgencyID,
		DocumentType: record.DocumentType,
		Status:       record.Status,
		FileName:     record.FileName,
		ContentType:  record.ContentType,
		SizeBytes:    record.SizeBytes,
		ExpiresAt:    record.ExpiresAt,
		UploadedBy:   record.UploadedBy,
		ReviewedBy:   record.ReviewedBy,
		ReviewedAt:   record.ReviewedAt,
		Notes:        record.Notes,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

func newValidationError(fields map[string]string) error {
	fe := FieldErrors{}
	for key, message := range fields {
		fe.add(key, message)
	}
	return &ValidationError{Fields: fe}
}

func (f FieldErrors) add(field, message string) {
	if f == nil {
		return
	}
	f[field] = append(f[field], message)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hardhat-labs/crewdeck/domains/claims/be/repo"
	"github.com/hardhat-labs/crewdeck/platform/go/mailer"
	"github.com/hardhat-labs/crewdeck/platform/go/persistence"
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
	ErrNotFound      = errors.New("claim not found")
	ErrForbidden     = errors.New("caller may not perform this claim action")
	ErrDuplicate     = errors.New("an open claim already exists for this agency and user")
	ErrAgencyClaimed = errors.New("agency is already claimed")
	// ErrStateConflict means the claim exists but is not in a status that
	// allows the requested transition.
	ErrStateConflict = errors.New("claim is not in an allowed status")
)

// Actor identifies the caller for role checks.
type Actor struct {
	ProfileID uuid.UUID
	Role      string
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool { return a.Role == persistence.RoleAdmin }

// Claim is the domain view of an ownership claim.
type Claim struct {
	ID           uuid.UUID
	AgencyID     uuid.UUID
	UserID       uuid.UUID
	Status       string
	ContactName  string
	ContactEmail string
	ContactPhone *string
	Message      *string
	ReviewedBy   *uuid.UUID
	ReviewedAt   *time.Time
	Notes        *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ClaimListItem decorates a claim with the joined agency name and claimant
// email for the admin queue.
type ClaimListItem struct {
	Claim
	AgencyName string
	UserEmail  string
}

// SubmitInput is the payload for a user claiming an agency listing.
type SubmitInput struct {
	AgencyID     uuid.UUID
	ContactName  string
	ContactEmail string
	ContactPhone *string
	Message      *string
}

// ListOptions filters the admin claim queue.
type ListOptions struct {
	Status   *string
	AgencyID *uuid.UUID
	Page     int
	PageSize int
}

// ListResult wraps a page of claims with pagination metadata.
type ListResult struct {
	Claims     []ClaimListItem
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Service defines the business operations for the claims domain.
type Service interface {
	Submit(ctx context.Context, actor Actor, input SubmitInput) (Claim, error)
	AdminList(ctx context.Context, actor Actor, opts ListOptions) (ListResult, error)
	AdminGet(ctx context.Context, actor Actor, claimID uuid.UUID) (Claim, error)
	Review(ctx context.Context, actor Actor, claimID uuid.UUID) (Claim, error)
	Approve(ctx context.Context, actor Actor, claimID uuid.UUID) (Claim, error)
	Reject(ctx context.Context, actor Actor, claimID uuid.UUID, notes *string) (Claim, error)
}

type service struct {
	repo   repo.Repository
	mail   mailer.Sender
	logger *zap.Logger
}

// New constructs a claims Service instance.
func New(r repo.Repository, mail mailer.Sender, logger *zap.Logger) Service {
	if r == nil {
		panic("claims repository is required")
	}
	if mail == nil {
		panic("mail sender is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &service{repo: r, mail: mail, logger: logger}
}

func (s *service) Submit(ctx context.Context, actor Actor, input SubmitInput) (Claim, error) {
	if actor.ProfileID == uuid.Nil {
		return Claim{}, ErrForbidden
	}

	fieldErrors := FieldErrors{}

	if input.AgencyID == uuid.Nil {
		fieldErrors.add("agencyId", "agencyId is required")
	}
	name := strings.TrimSpace(input.ContactName)
	if name == "" {
		fieldErrors.add("contactName", "contactName is required")
	}
	email := strings.ToLower(strings.TrimSpace(input.ContactEmail))
	if email == "" {
		fieldErrors.add("contactEmail", "contactEmail is required")
	} else if !strings.Contains(email, "@") {
		fieldErrors.add("contactEmail", "contactEmail must contain '@'")
	}

	if len(fieldErrors) > 0 {
		return Claim{}, &ValidationError{Fields: fieldErrors}
	}

	agency, err := s.repo.GetAgency(ctx, input.AgencyID)
	if err != nil {
		if errors.Is(err, persistence.ErrAgencyNotFound) {
			return Claim{}, ErrNotFound
		}
		return Claim{}, err
	}
	if agency.IsClaimed {
		return Claim{}, ErrAgencyClaimed
	}

	record, err := s.repo.CreateClaim(ctx, persistence.CreateClaimParams{
		ClaimID:      uuid.New(),
		AgencyID:     input.AgencyID,
		UserID:       actor.ProfileID,
		ContactName:  name,
		ContactEmail: email,
		ContactPhone: input.ContactPhone,
		Message:      input.Message,
	})
	if err != nil {
		switch {
		case errors.Is(err, persistence.ErrClaimConflict):
			return Claim{}, ErrDuplicate
		case errors.Is(err, persistence.ErrClaimNotFound):
			return Claim{}, ErrNotFound
		default:
			return Claim{}, err
		}
	}

	return mapClaim(record), nil
}

func (s *service) AdminList(ctx context.Context, actor Actor, opts ListOptions) (ListResult, error) {
	if !actor.IsAdmin() {
		return ListResult{}, ErrForbidden
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	if opts.Status != nil && strings.TrimSpace(*opts.Status) != "" {
		if !isKnownStatus(strings.TrimSpace(*opts.Status)) {
			return ListResult{}, newValidationError(map[string]string{
				"status": fmt.Sprintf("unknown status %q", *opts.Status),
			})
		}
	}

	result, err := s.repo.ListClaims(ctx, persistence.ListClaimsParams{
		Page:     page,
		PageSize: pageSize,
		Status:   opts.Status,
		AgencyID: opts.AgencyID,
	})
	if err != nil {
		return ListResult{}, err
	}

	items := make([]ClaimListItem, 0, len(result.Claims))
	for _, row := range result.Claims {
		items = append(items, ClaimListItem{
			Claim:      mapClaim(row.ClaimRequest),
			AgencyName: row.AgencyName,
			UserEmail:  row.UserEmail,
		})
	}

	totalPages := 0
	if result.TotalItems > 0 {
		totalPages = (result.TotalItems + pageSize - 1) / pageSize
	}

	return ListResult{
		Claims:     items,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: result.TotalItems,
		TotalPages: totalPages,
	}, nil
}

func (s *service) AdminGet(ctx context.Context, actor Actor, claimID uuid.UUID) (Claim, error) {
	if !actor.IsAdmin() {
		return Claim{}, ErrForbidden
	}

	record, err := s.repo.GetClaim(ctx, claimID)
	if err != nil {
		return Claim{}, mapClaimError(err)
	}

	return mapClaim(record), nil
}

func (s *service) Review(ctx context.Context, actor Actor, claimID uuid.UUID) (Claim, error) {
	if !actor.IsAdmin() {
		return Claim{}, ErrForbidden
	}

	record, err := s.repo.TransitionClaim(ctx, claimID, persistence.TransitionClaimParams{
		AllowedFrom: []string{persistence.ClaimStatusPending},
		To:          persistence.ClaimStatusUnderReview,
		ReviewedBy:  actor.ProfileID,
		ReviewedAt:  time.Now().UTC(),
	})
	if err != nil {
		return Claim{}, mapClaimError(err)
	}

	s.recordAudit(ctx, persistence.InsertAuditEntryParams{
		AdminID:  actor.ProfileID,
		Action:   persistence.AuditActionClaimUnderReview,
		ClaimID:  &record.ClaimID,
		AgencyID: &record.AgencyID,
	})

	return mapClaim(record), nil
}

// Approve runs the four-write approval sequence. The writes are sequential
// with manual compensation on partial failure: there is no transaction, no
// retry, and no idempotency token, so concurrent approvals are only guarded
// by the status precondition on the first write.
func (s *service) Approve(ctx context.Context, actor Actor, claimID uuid.UUID) (Claim, error) {
	if !actor.IsAdmin() {
		return Claim{}, ErrForbidden
	}

	prior, err := s.repo.GetClaim(ctx, claimID)
	if err != nil {
		return Claim{}, mapClaimError(err)
	}

	// Write 1: claim -> approved, guarded on the prior status.
	approved, err := s.repo.TransitionClaim(ctx, claimID, persistence.TransitionClaimParams{
		AllowedFrom: []string{persistence.ClaimStatusPending, persistence.ClaimStatusUnderReview},
		To:          persistence.ClaimStatusApproved,
		ReviewedBy:  actor.ProfileID,
		ReviewedAt:  time.Now().UTC(),
	})
	if err != nil {
		return Claim{}, mapClaimError(err)
	}

	// Write 2: agency -> claimed by the claim's subject user.
	if err := s.repo.MarkAgencyClaimed(ctx, approved.AgencyID, approved.UserID, time.Now().UTC()); err != nil {
		s.revertClaim(ctx, claimID, prior.Status)
		return Claim{}, fmt.Errorf("mark agency claimed: %w", err)
	}

	// Write 3: subject profile -> agency_owner.
	if _, err := s.repo.UpdateProfileRole(ctx, approved.UserID, persistence.RoleAgencyOwner); err != nil {
		s.revertAgencyClaim(ctx, approved.AgencyID)
		s.revertClaim(ctx, claimID, prior.Status)
		return Claim{}, fmt.Errorf("upgrade profile role: %w", err)
	}

	// Write 4: audit row, best-effort.
	s.recordAudit(ctx, persistence.InsertAuditEntryParams{
		AdminID:  actor.ProfileID,
		Action:   persistence.AuditActionClaimApproved,
		ClaimID:  &approved.ClaimID,
		AgencyID: &approved.AgencyID,
	})

	s.sendDecisionEmail(ctx, approved, "Your agency claim was approved",
		"Your claim has been approved. You now manage this agency listing.")

	return mapClaim(approved), nil
}

func (s *service) Reject(ctx context.Context, actor Actor, claimID uuid.UUID, notes *string) (Claim, error) {
	if !actor.IsAdmin() {
		return Claim{}, ErrForbidden
	}

	record, err := s.repo.TransitionClaim(ctx, claimID, persistence.TransitionClaimParams{
		AllowedFrom: []string{persistence.ClaimStatusPending, persistence.ClaimStatusUnderReview},
		To:          persistence.ClaimStatusRejected,
		ReviewedBy:  actor.ProfileID,
		ReviewedAt:  time.Now().UTC(),
		Notes:       notes,
	})
	if err != nil {
		return Claim{}, mapClaimError(err)
	}

	s.recordAudit(ctx, persistence.InsertAuditEntryParams{
		AdminID:  actor.ProfileID,
		Action:   persistence.AuditActionClaimRejected,
		ClaimID:  &record.ClaimID,
		AgencyID: &record.AgencyID,
		Notes:    notes,
	})

	s.sendDecisionEmail(ctx, record, "Your agency claim was not approved",
		"Your claim has been reviewed and was not approved.")

	return mapClaim(record), nil
}

// revertClaim is compensation for a partially applied approval. Failures are
// logged and swallowed: the caller is already on an error path.
func (s *service) revertClaim(ctx context.Context, claimID uuid.UUID, status string) {
	if err := s.repo.RevertClaim(ctx, claimID, status); err != nil {
		s.logger.Error("claim revert failed after partial approval",
			zap.String("claim_id", claimID.String()),
			zap.String("target_status", status),
			zap.Error(err),
		)
	}
}

func (s *service) revertAgencyClaim(ctx context.Context, agencyID uuid.UUID) {
	if err := s.repo.ClearAgencyClaim(ctx, agencyID); err != nil {
		s.logger.Error("agency claim revert failed after partial approval",
			zap.String("agency_id", agencyID.String()),
			zap.Error(err),
		)
	}
}

func (s *service) recordAudit(ctx context.Context, params persistence.InsertAuditEntryParams) {
	if err := s.repo.RecordAudit(ctx, params); err != nil {
		s.logger.Warn("audit insert failed for claim action",
			zap.String("action", params.Action),
			zap.Error(err),
		)
	}
}

func (s *service) sendDecisionEmail(ctx context.Context, claim persistence.ClaimRequest, subject, body string) {
	err := s.mail.Send(ctx, mailer.Email{
		To:      claim.ContactEmail,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		s.logger.Warn("claim decision email failed",
			zap.String("claim_id", claim.ClaimID.String()),
			zap.Error(err),
		)
	}
}

func isKnownStatus(status string) bool {
	switch status {
	case persistence.ClaimStatusPending,
		persistence.ClaimStatusUnderReview,
		persistence.ClaimStatusApproved,
		persistence.ClaimStatusRejected:
		return true
	default:
		return false
	}
}

func mapClaim(record persistence.ClaimRequest) Claim {
	return Claim{
		ID:           record.ClaimID,
		AgencyID:     record.AgencyID,
		UserID:       record.UserID,
		Status:       record.Status,
		ContactName:  record.ContactName,
		ContactEmail: record.ContactEmail,
		ContactPhone: record.ContactPhone,
		Message:      record.Message,
		ReviewedBy:   record.ReviewedBy,
		ReviewedAt:   record.ReviewedAt,
		Notes:        record.Notes,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

func mapClaimError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrClaimNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrClaimStateConflict):
		return ErrStateConflict
	default:
		return err
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

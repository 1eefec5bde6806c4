package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hardhat-labs/crewdeck/domains/laborrequests/be/repo"
	"github.com/hardhat-labs/crewdeck/platform/go/mailer"
	"github.com/hardhat-labs/crewdeck/platform/go/persistence"
	"github.com/hardhat-labs/crewdeck/platform/go/taxonomy"
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
	ErrNotFound  = errors.New("labor request not found")
	ErrForbidden = errors.New("caller may not access this agency inbox")
)

// Actor identifies the caller for ownership checks.
type Actor struct {
	ProfileID uuid.UUID
	Role      string
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool { return a.Role == persistence.RoleAdmin }

// Request is the domain view of a public staffing request.
type Request struct {
	ID           uuid.UUID
	ContactName  string
	ContactEmail string
	ContactPhone *string
	Trade        string
	Region       string
	Headcount    int
	StartDate    *time.Time
	Details      *string
	CreatedAt    time.Time
}

// InboxItem is one notification in an agency's dashboard inbox.
type InboxItem struct {
	NotificationID uuid.UUID
	AgencyID       uuid.UUID
	ReadAt         *time.Time
	NotifiedAt     time.Time
	Request        Request
}

// SubmitInput is the public intake payload.
type SubmitInput struct {
	ContactName  string
	ContactEmail string
	ContactPhone *string
	Trade        string
	Region       string
	Headcount    int
	StartDate    *time.Time
	Details      *string
}

// SubmitResult reports the stored request and how many agency inboxes it reached.
type SubmitResult struct {
	Request          Request
	MatchedAgencies  int
	NotificationsNew int
}

// InboxOptions filters the agency inbox listing.
type InboxOptions struct {
	UnreadOnly bool
	Page       int
	PageSize   int
}

// InboxResult wraps a page of inbox items with pagination metadata.
type InboxResult struct {
	Items      []InboxItem
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Service defines the business operations for the labor-requests domain.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (SubmitResult, error)
	Inbox(ctx context.Context, actor Actor, agencyID uuid.UUID, opts InboxOptions) (InboxResult, error)
	MarkRead(ctx context.Context, actor Actor, agencyID, notificationID uuid.UUID) error
}

type service struct {
	repo   repo.Repository
	tax    *taxonomy.Taxonomy
	mail   mailer.Sender
	logger *zap.Logger
}

// New constructs a labor-requests Service instance.
func New(r repo.Repository, tax *taxonomy.Taxonomy, mail mailer.Sender, logger *zap.Logger) Service {
	if r == nil {
		panic("labor requests repository is required")
	}
	if tax == nil {
		panic("taxonomy is required")
	}
	if mail == nil {
		panic("mail sender is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &service{repo: r, tax: tax, mail: mail, logger: logger}
}

// Submit stores the request, fans it out to matching agency inboxes, and
// attempts one email per matched owner. Notification and email failures are
// logged and never fail the intake.
func (s *service) Submit(ctx context.Context, input SubmitInput) (SubmitResult, error) {
	fieldErrors := FieldErrors{}

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

	trade := strings.TrimSpace(input.Trade)
	if trade == "" {
		fieldErrors.add("trade", "trade is required")
	} else if !s.tax.IsTrade(trade) {
		fieldErrors.add("trade", fmt.Sprintf("unknown trade %q", trade))
	}
	region := strings.TrimSpace(input.Region)
	if region == "" {
		fieldErrors.add("region", "region is required")
	} else if !s.tax.IsRegion(region) {
		fieldErrors.add("region", fmt.Sprintf("unknown region %q", region))
	}

	if input.Headcount < 1 {
		fieldErrors.add("headcount", "headcount must be at least 1")
	}

	if len(fieldErrors) > 0 {
		return SubmitResult{}, &ValidationError{Fields: fieldErrors}
	}

	record, err := s.repo.CreateRequest(ctx, persistence.CreateLaborRequestParams{
		RequestID:    uuid.New(),
		ContactName:  name,
		ContactEmail: email,
		ContactPhone: input.ContactPhone,
		Trade:        trade,
		Region:       region,
		Headcount:    input.Headcount,
		StartDate:    input.StartDate,
		Details:      input.Details,
	})
	if err != nil {
		return SubmitResult{}, err
	}

	result := SubmitResult{Request: mapRequest(record)}

	matches, err := s.repo.MatchAgencies(ctx, trade, region)
	if err != nil {
		s.logger.Error("agency matching failed, request stored without notifications",
			zap.String("request_id", record.RequestID.String()),
			zap.Error(err),
		)
		return result, nil
	}
	result.MatchedAgencies = len(matches)
	if len(matches) == 0 {
		return result, nil
	}

	agencyIDs := make([]uuid.UUID, 0, len(matches))
	for _, match := range matches {
		agencyIDs = append(agencyIDs, match.AgencyID)
	}

	inserted, err := s.repo.InsertNotifications(ctx, record.RequestID, agencyIDs)
	if err != nil {
		s.logger.Error("notification fan-out failed",
			zap.String("request_id", record.RequestID.String()),
			zap.Int("inserted", inserted),
			zap.Error(err),
		)
	}
	result.NotificationsNew = inserted

	for _, match := range matches {
		s.notifyOwner(ctx, match, record)
	}

	return result, nil
}

func (s *service) Inbox(ctx context.Context, actor Actor, agencyID uuid.UUID, opts InboxOptions) (InboxResult, error) {
	if err := s.requireInboxAccess(ctx, actor, agencyID); err != nil {
		return InboxResult{}, err
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

	result, err := s.repo.ListInbox(ctx, persistence.ListInboxParams{
		AgencyID:   agencyID,
		UnreadOnly: opts.UnreadOnly,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		return InboxResult{}, err
	}

	items := make([]InboxItem, 0, len(result.Rows))
	for _, row := range result.Rows {
		items = append(items, InboxItem{
			NotificationID: row.NotificationID,
			AgencyID:       row.AgencyID,
			ReadAt:         row.ReadAt,
			NotifiedAt:     row.NotifiedAt,
			Request:        mapRequest(row.Request),
		})
	}

	totalPages := 0
	if result.TotalItems > 0 {
		totalPages = (result.TotalItems + pageSize - 1) / pageSize
	}

	return InboxResult{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: result.TotalItems,
		TotalPages: totalPages,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, actor Actor, agencyID, notificationID uuid.UUID) error {
	if err := s.requireInboxAccess(ctx, actor, agencyID); err != nil {
		return err
	}

	if err := s.repo.MarkNotificationRead(ctx, agencyID, notificationID); err != nil {
		if errors.Is(err, persistence.ErrNotificationNotFound) {
			return ErrNotFound
		}
		return err
	}

	return nil
}

// requireInboxAccess allows admins and the claiming owner through.
func (s *service) requireInboxAccess(ctx context.Context, actor Actor, agencyID uuid.UUID) error {
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

func (s *service) notifyOwner(ctx context.Context, match persistence.MatchedAgency, request persistence.LaborRequest) {
	body := fmt.Sprintf(
		"A new labor request for %s in %s (headcount %d) matches %s. Check your dashboard inbox for details.",
		request.Trade, request.Region, request.Headcount, match.Name,
	)

	err := s.mail.Send(ctx, mailer.Email{
		To:      match.OwnerEmail,
		Subject: "New labor request matching your agency",
		Body:    body,
	})
	if err != nil {
		s.logger.Warn("labor request owner email failed",
			zap.String("request_id", request.RequestID.String()),
			zap.String("agency_id", match.AgencyID.String()),
			zap.Error(err),
		)
	}
}

func mapRequest(record persistence.LaborRequest) Request {
	return Request{
		ID:           record.RequestID,
		ContactName:  record.ContactName,
		ContactEmail: record.ContactEmail,
		ContactPhone: record.ContactPhone,
		Trade:        record.Trade,
		Region:       record.Region,
		Headcount:    record.Headcount,
		StartDate:    record.StartDate,
		Details:      record.Details,
		CreatedAt:    record.CreatedAt,
	}
}

func (f FieldErrors) add(field, message string) {
	if f == nil {
		return
	}
	f[field] = append(f[field], message)
}

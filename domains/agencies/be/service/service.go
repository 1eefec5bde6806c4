package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hardhat-labs/crewdeck/domains/agencies/be/repo"
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
	ErrNotFound  = errors.New("agency not found")
	ErrConflict  = errors.New("agency conflict")
	ErrForbidden = errors.New("caller may not manage this agency")
)

// Actor identifies the caller for ownership and role checks.
type Actor struct {
	ProfileID uuid.UUID
	Role      string
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool { return a.Role == persistence.RoleAdmin }

// Agency represents the domain view of a directory listing.
type Agency struct {
	ID          uuid.UUID
	Name        string
	Slug        string
	Description *string
	Website     *string
	Phone       *string
	Email       *string
	Trades      []string
	Regions     []string
	IsClaimed   bool
	ClaimedBy   *uuid.UUID
	ClaimedAt   *time.Time
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SearchOptions controls the public directory search.
type SearchOptions struct {
	Trade           *string
	Region          *string
	Query           *string
	Claimed         *bool
	Sort            *string
	Page            int
	PageSize        int
	IncludeInactive bool
}

// SearchResult wraps a page of listings with pagination metadata.
type SearchResult struct {
	Agencies   []Agency
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// UpdateInput encapsulates the listing fields an owner or admin may edit.
type UpdateInput struct {
	Name        *string
	Description *string
	Website     *string
	Phone       *string
	Email       *string
}

// SelectionsInput carries a replacement trade/region selection.
type SelectionsInput struct {
	Trades  []string
	Regions []string
}

// CreateInput represents the payload for admin listing creation.
type CreateInput struct {
	Name        string
	Slug        *string
	Description *string
	Website     *string
	Phone       *string
	Email       *string
	Trades      []string
	Regions     []string
}

// Service defines the business operations for the agencies domain.
type Service interface {
	Search(ctx context.Context, opts SearchOptions) (SearchResult, error)
	Get(ctx context.Context, id uuid.UUID) (Agency, error)
	Update(ctx context.Context, actor Actor, id uuid.UUID, input UpdateInput) (Agency, error)
	UpdateSelections(ctx context.Context, actor Actor, id uuid.UUID, input SelectionsInput) (Agency, error)
	AdminCreate(ctx context.Context, actor Actor, input CreateInput) (Agency, error)
	AdminSetActive(ctx context.Context, actor Actor, id uuid.UUID, active bool) (Agency, error)
}

type service struct {
	repo   repo.Repository
	tax    *taxonomy.Taxonomy
	logger *zap.Logger
}

// New constructs an agencies Service instance.
func New(r repo.Repository, tax *taxonomy.Taxonomy, logger *zap.Logger) Service {
	if r == nil {
		panic("agencies repository is required")
	}
	if tax == nil {
		panic("taxonomy is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &service{repo: r, tax: tax, logger: logger}
}

func (s *service) Search(ctx context.Context, opts SearchOptions) (SearchResult, error) {
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

	params := persistence.ListAgenciesParams{
		Page:            page,
		PageSize:        pageSize,
		Claimed:         opts.Claimed,
		IncludeInactive: opts.IncludeInactive,
	}

	if opts.Trade != nil && strings.TrimSpace(*opts.Trade) != "" {
		trade := strings.TrimSpace(*opts.Trade)
		if !s.tax.IsTrade(trade) {
			return SearchResult{}, newValidationError(map[string]string{"trade": fmt.Sprintf("unknown trade %q", trade)})
		}
		params.Trade = &trade
	}
	if opts.Region != nil && strings.TrimSpace(*opts.Region) != "" {
		region := strings.TrimSpace(*opts.Region)
		if !s.tax.IsRegion(region) {
			return SearchResult{}, newValidationError(map[string]string{"region": fmt.Sprintf("unknown region %q", region)})
		}
		params.Region = &region
	}
	if opts.Query != nil && strings.TrimSpace(*opts.Query) != "" {
		q := strings.TrimSpace(*opts.Query)
		params.Query = &q
	}
	sortValue, sortErr := sanitizeSort(opts.Sort)
	if sortErr != nil {
		return SearchResult{}, sortErr
	}
	params.Sort = sortValue

	result, err := s.repo.List(ctx, params)
	if err != nil {
		return SearchResult{}, err
	}

	agencies := make([]Agency, 0, len(result.Agencies))
	for _, record := range result.Agencies {
		agencies = append(agencies, mapAgency(record))
	}

	totalPages := 0
	if result.TotalItems > 0 {
		totalPages = (result.TotalItems + pageSize - 1) / pageSize
	}

	return SearchResult{
		Agencies:   agencies,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: result.TotalItems,
		TotalPages: totalPages,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (Agency, error) {
	if id == uuid.Nil {
		return Agency{}, ErrNotFound
	}

	record, err := s.repo.Get(ctx, id)
	if err != nil {
		return Agency{}, mapPersistenceError(err)
	}

	return mapAgency(record), nil
}

func (s *service) Update(ctx context.Context, actor Actor, id uuid.UUID, input UpdateInput) (Agency, error) {
	if id == uuid.Nil {
		return Agency{}, ErrNotFound
	}

	if err := s.requireManager(ctx, actor, id); err != nil {
		return Agency{}, err
	}

	params, err := buildUpdateParams(input)
	if err != nil {
		return Agency{}, err
	}

	record, repoErr := s.repo.Update(ctx, id, params)
	if repoErr != nil {
		return Agency{}, mapPersistenceError(repoErr)
	}

	return mapAgency(record), nil
}

func (s *service) UpdateSelections(ctx context.Context, actor Actor, id uuid.UUID, input SelectionsInput) (Agency, error) {
	if id == uuid.Nil {
		return Agency{}, ErrNotFound
	}

	if err := s.requireManager(ctx, actor, id); err != nil {
		return Agency{}, err
	}

	fieldErrors := FieldErrors{}
	if invalid := s.tax.InvalidTrades(input.Trades); len(invalid) > 0 {
		fieldErrors.add("trades", fmt.Sprintf("unknown trades: %s", strings.Join(invalid, ", ")))
	}
	if invalid := s.tax.InvalidRegions(input.Regions); len(invalid) > 0 {
		fieldErrors.add("regions", fmt.Sprintf("unknown regions: %s", strings.Join(invalid, ", ")))
	}
	if len(fieldErrors) > 0 {
		return Agency{}, &ValidationError{Fields: fieldErrors}
	}

	if err := s.repo.ReplaceSelections(ctx, id, dedupe(input.Trades), dedupe(input.Regions)); err != nil {
		return Agency{}, mapPersistenceError(err)
	}

	record, err := s.repo.Get(ctx, id)
	if err != nil {
		return Agency{}, mapPersistenceError(err)
	}

	return mapAgency(record), nil
}

func (s *service) AdminCreate(ctx context.Context, actor Actor, input CreateInput) (Agency, error) {
	if !actor.IsAdmin() {
		return Agency{}, ErrForbidden
	}

	fieldErrors := FieldErrors{}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		fieldErrors.add("name", "name is required")
	}

	var slug string
	var err error
	if input.Slug != nil && strings.TrimSpace(*input.Slug) != "" {
		slug, err = persistence.NormalizeSlug(*input.Slug)
		if err != nil {
			fieldErrors.add("slug", err.Error())
		}
	} else if name != "" {
		slug, err = persistence.SlugifyName(name)
		if err != nil {
			fieldErrors.add("name", "a slug could not be derived from the name")
		}
	}

	if invalid := s.tax.InvalidTrades(input.Trades); len(invalid) > 0 {
		fieldErrors.add("trades", fmt.Sprintf("unknown trades: %s", strings.Join(invalid, ", ")))
	}
	if invalid := s.tax.InvalidRegions(input.Regions); len(invalid) > 0 {
		fieldErrors.add("regions", fmt.Sprintf("unknown regions: %s", strings.Join(invalid, ", ")))
	}

	if len(fieldErrors) > 0 {
		return Agency{}, &ValidationError{Fields: fieldErrors}
	}

	record, err := s.repo.Create(ctx, persistence.CreateAgencyParams{
		AgencyID:    uuid.New(),
		Name:        name,
		Slug:        slug,
		Description: input.Description,
		Website:     input.Website,
		Phone:       input.Phone,
		Email:       input.Email,
		Trades:      dedupe(input.Trades),
		Regions:     dedupe(input.Regions),
	})
	if err != nil {
		return Agency{}, mapPersistenceError(err)
	}

	return mapAgency(record), nil
}

func (s *service) AdminSetActive(ctx context.Context, actor Actor, id uuid.UUID, active bool) (Agency, error) {
	if !actor.IsAdmin() {
		return Agency{}, ErrForbidden
	}
	if id == uuid.Nil {
		return Agency{}, ErrNotFound
	}

	record, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return Agency{}, mapPersistenceError(err)
	}

	notes := fmt.Sprintf("is_active set to %t", active)
	if auditErr := s.repo.RecordAudit(ctx, persistence.InsertAuditEntryParams{
		AdminID:  actor.ProfileID,
		Action:   persistence.AuditActionAgencyStatus,
		AgencyID: &id,
		Notes:    &notes,
	}); auditErr != nil {
		s.logger.Warn("audit insert failed for agency status change",
			zap.String("agency_id", id.String()),
			zap.Error(auditErr),
		)
	}

	return mapAgency(record), nil
}

// requireManager allows admins and the claiming owner through.
func (s *service) requireManager(ctx context.Context, actor Actor, id uuid.UUID) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.ProfileID == uuid.Nil {
		return ErrForbidden
	}

	record, err := s.repo.Get(ctx, id)
	if err != nil {
		return mapPersistenceError(err)
	}

	if record.ClaimedBy == nil || *record.ClaimedBy != actor.ProfileID {
		return ErrForbidden
	}

	return nil
}

func buildUpdateParams(input UpdateInput) (persistence.UpdateAgencyParams, error) {
	fieldErrors := FieldErrors{}
	params := persistence.UpdateAgencyParams{}
	fieldsSet := 0

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			fieldErrors.add("name", "name cannot be empty")
		} else {
			params.Name = &name
			fieldsSet++
		}
	}
	if input.Description != nil {
		params.Description = input.Description
		fieldsSet++
	}
	if input.Website != nil {
		params.Website = input.Website
		fieldsSet++
	}
	if input.Phone != nil {
		params.Phone = input.Phone
		fieldsSet++
	}
	if input.Email != nil {
		email := strings.TrimSpace(*input.Email)
		if email != "" && !strings.Contains(email, "@") {
			fieldErrors.add("email", "email must contain '@'")
		} else {
			params.Email = &email
			fieldsSet++
		}
	}

	if fieldsSet == 0 && len(fieldErrors) == 0 {
		fieldErrors.add("payload", "at least one field must be provided")
	}

	if len(fieldErrors) > 0 {
		return persistence.UpdateAgencyParams{}, &ValidationError{Fields: fieldErrors}
	}

	return params, nil
}

func sanitizeSort(sort *string) (*string, error) {
	if sort == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*sort)
	if trimmed == "" {
		return nil, nil
	}

	allowed := map[string]struct{}{
		"name":      {},
		"createdAt": {},
		"claimedAt": {},
	}

	for _, raw := range strings.Split(trimmed, ",") {
		field := strings.TrimSpace(raw)
		if field == "" {
			continue
		}
		field = strings.TrimPrefix(field, "-")
		if _, ok := allowed[field]; !ok {
			return nil, newValidationError(map[string]string{"sort": fmt.Sprintf("unsupported sort field %q", field)})
		}
	}

	return &trimmed, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func mapAgency(record persistence.Agency) Agency {
	return Agency{
		ID:          record.AgencyID,
		Name:        record.Name,
		Slug:        record.Slug,
		Description: record.Description,
		Website:     record.Website,
		Phone:       record.Phone,
		Email:       record.Email,
		Trades:      record.Trades,
		Regions:     record.Regions,
		IsClaimed:   record.IsClaimed,
		ClaimedBy:   record.ClaimedBy,
		ClaimedAt:   record.ClaimedAt,
		IsActive:    record.IsActive,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrAgencyNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrAgencyConflict):
		return ErrConflict
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

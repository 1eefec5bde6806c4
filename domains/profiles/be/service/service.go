package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hardhat-labs/crewdeck/domains/profiles/be/repo"
	platformauth "github.com/hardhat-labs/crewdeck/platform/go/auth"
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
	ErrNotFound = errors.New("profile not found")
	ErrConflict = errors.New("profile conflict")
)

// Profile represents the domain view of a profile record.
type Profile struct {
	ID        uuid.UUID
	Email     string
	FullName  string
	Phone     *string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListOptions controls filtering and pagination for the admin listing.
type ListOptions struct {
	Email    *string
	Role     *string
	Page     int
	PageSize int
}

// ListResult wraps a page of profiles with pagination metadata.
type ListResult struct {
	Profiles   []Profile
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// UpdateSelfInput encapsulates the fields the authenticated user can modify.
type UpdateSelfInput struct {
	FullName *string
	Phone    *string
}

// Service defines the business operations for the profiles domain.
type Service interface {
	// EnsureFromCredentials upserts the caller's profile on first sight and
	// returns it. Role resolution for every authenticated request goes
	// through here, never through token claims.
	EnsureFromCredentials(ctx context.Context, creds *platformauth.UserCredentials) (Profile, error)
	Get(ctx context.Context, id uuid.UUID) (Profile, error)
	UpdateSelf(ctx context.Context, id uuid.UUID, input UpdateSelfInput) (Profile, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
}

type service struct {
	repo repo.Repository
}

// New constructs a profiles Service instance backed by the provided repository.
func New(r repo.Repository) Service {
	if r == nil {
		panic("profiles repository is required")
	}
	return &service{repo: r}
}

func (s *service) EnsureFromCredentials(ctx context.Context, creds *platformauth.UserCredentials) (Profile, error) {
	if creds == nil || strings.TrimSpace(creds.ID) == "" {
		return Profile{}, ErrNotFound
	}

	fullName := ""
	if creds.Name != nil {
		fullName = strings.TrimSpace(*creds.Name)
	}

	record, err := s.repo.Ensure(ctx, persistence.EnsureProfileParams{
		AuthUID:  creds.ID,
		Email:    creds.Email,
		FullName: fullName,
	})
	if err != nil {
		return Profile{}, mapPersistenceError(err)
	}

	return mapProfile(record), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (Profile, error) {
	if id == uuid.Nil {
		return Profile{}, ErrNotFound
	}

	record, err := s.repo.Get(ctx, id)
	if err != nil {
		return Profile{}, mapPersistenceError(err)
	}

	return mapProfile(record), nil
}

func (s *service) UpdateSelf(ctx context.Context, id uuid.UUID, input UpdateSelfInput) (Profile, error) {
	if id == uuid.Nil {
		return Profile{}, ErrNotFound
	}

	fieldErrors := FieldErrors{}
	params := persistence.UpdateProfileParams{}
	fieldsSet := 0

	if input.FullName != nil {
		name := strings.TrimSpace(*input.FullName)
		if name == "" {
			fieldErrors.add("fullName", "fullName cannot be empty")
		} else {
			params.FullName = &name
			fieldsSet++
		}
	}
	if input.Phone != nil {
		phone := strings.TrimSpace(*input.Phone)
		params.Phone = &phone
		fieldsSet++
	}

	if fieldsSet == 0 {
		fieldErrors.add("payload", "at least one field must be provided")
	}

	if len(fieldErrors) > 0 {
		return Profile{}, &ValidationError{Fields: fieldErrors}
	}

	record, err := s.repo.Update(ctx, id, params)
	if err != nil {
		return Profile{}, mapPersistenceError(err)
	}

	return mapProfile(record), nil
}

func (s *service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
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

	repoParams := persistence.ListProfilesParams{
		Page:     page,
		PageSize: pageSize,
	}

	if opts.Email != nil && strings.TrimSpace(*opts.Email) != "" {
		email := strings.TrimSpace(*opts.Email)
		repoParams.Email = &email
	}
	if opts.Role != nil && strings.TrimSpace(*opts.Role) != "" {
		role := strings.TrimSpace(*opts.Role)
		switch role {
		case persistence.RoleUser, persistence.RoleAgencyOwner, persistence.RoleAdmin:
		default:
			fe := FieldErrors{}
			fe.add("role", "unsupported role filter")
			return ListResult{}, &ValidationError{Fields: fe}
		}
		repoParams.Role = &role
	}

	result, err := s.repo.List(ctx, repoParams)
	if err != nil {
		return ListResult{}, err
	}

	profiles := make([]Profile, 0, len(result.Profiles))
	for _, record := range result.Profiles {
		profiles = append(profiles, mapProfile(record))
	}

	totalPages := 0
	if result.TotalItems > 0 {
		totalPages = (result.TotalItems + pageSize - 1) / pageSize
	}

	return ListResult{
		Profiles:   profiles,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: result.TotalItems,
		TotalPages: totalPages,
	}, nil
}

func mapProfile(record persistence.Profile) Profile {
	return Profile{
		ID:        record.ProfileID,
		Email:     record.Email,
		FullName:  record.FullName,
		Phone:     record.Phone,
		Role:      record.Role,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrProfileNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrProfileConflict):
		return ErrConflict
	default:
		return err
	}
}

func (f FieldErrors) add(field, message string) {
	if f == nil {
		return
	}
	f[field] = append(f[field], message)
}

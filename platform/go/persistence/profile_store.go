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

const ProfilesTable = "profiles"

// Profile roles. Role lives on the profile row; tokens never carry it.
const (
	RoleUser        = "user"
	RoleAgencyOwner = "agency_owner"
	RoleAdmin       = "admin"
)

// Profile represents a row in the profiles table.
type Profile struct {
	ProfileID uuid.UUID `db:"profile_id" json:"profileId"`
	AuthUID   string    `db:"auth_uid" json:"authUid"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"fullName"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

var (
	// ErrProfileNotFound indicates a missing profile record.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProfileConflict indicates a uniqueness violation (duplicated auth uid or email).
	ErrProfileConflict = errors.New("profile conflict")
)

// ProfileStore exposes persistence helpers for the profiles table.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore returns a store instance bound to the shared pool.
func NewProfileStore(ctx context.Context, pool *pgxpool.Pool) (*ProfileStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}

	return &ProfileStore{pool: pool}, nil
}

const profileColumns = "profile_id, auth_uid, email, full_name, phone, role, created_at, updated_at"

// EnsureProfileParams carries the identity fields known at first sight of an auth uid.
type EnsureProfileParams struct {
	AuthUID  string
	Email    string
	FullName string
}

// EnsureProfile upserts a profile row for the given auth uid and returns it.
// Existing rows keep their role and editable fields; only email is refreshed.
func (s *ProfileStore) EnsureProfile(ctx context.Context, params EnsureProfileParams) (Profile, error) {
	if strings.TrimSpace(params.AuthUID) == "" {
		return Profile{}, errors.New("auth uid is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (profile_id, auth_uid, email, full_name, role)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (auth_uid) DO UPDATE SET email = EXCLUDED.email, updated_at = NOW()
        RETURNING %s
    `, ProfilesTable, profileColumns),
		uuid.New(),
		strings.TrimSpace(params.AuthUID),
		strings.ToLower(strings.TrimSpace(params.Email)),
		strings.TrimSpace(params.FullName),
		RoleUser,
	)

	return scanProfile(row)
}

// GetProfile returns a single profile by identifier.
func (s *ProfileStore) GetProfile(ctx context.Context, id uuid.UUID) (Profile, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE profile_id = $1
    `, profileColumns, ProfilesTable), id)

	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrProfileNotFound
		}
		return Profile{}, err
	}

	return profile, nil
}

// GetProfileByAuthUID returns a single profile by its auth provider uid.
func (s *ProfileStore) GetProfileByAuthUID(ctx context.Context, authUID string) (Profile, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE auth_uid = $1
    `, profileColumns, ProfilesTable), authUID)

	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrProfileNotFound
		}
		return Profile{}, err
	}

	return profile, nil
}

// ListProfilesParams captures filters and pagination for ListProfiles.
type ListProfilesParams struct {
	Page     int
	PageSize int
	Email    *string
	Role     *string
}

// ListProfilesResult includes the rows and the total count for pagination metadata.
type ListProfilesResult struct {
	Profiles   []Profile
	TotalItems int
}

// ListProfiles returns profiles matching the filters with pagination applied.
func (s *ProfileStore) ListProfiles(ctx context.Context, params ListProfilesParams) (ListProfilesResult, error) {
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

	if params.Email != nil && strings.TrimSpace(*params.Email) != "" {
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(*params.Email))+"%")
		whereParts = append(whereParts, fmt.Sprintf("LOWER(email) LIKE $%d", len(args)))
	}
	if params.Role != nil && strings.TrimSpace(*params.Role) != "" {
		args = append(args, strings.TrimSpace(*params.Role))
		whereParts = append(whereParts, fmt.Sprintf("role = $%d", len(args)))
	}

	whereSQL := strings.Join(whereParts, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", ProfilesTable, whereSQL)
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListProfilesResult{}, fmt.Errorf("count profiles: %w", err)
	}

	result := ListProfilesResult{Profiles: []Profile{}, TotalItems: total}
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
    `, profileColumns, ProfilesTable, whereSQL, len(dataArgs)-1, len(dataArgs))

	rows, err := s.pool.Query(ctx, query, dataArgs...)
	if err != nil {
		return ListProfilesResult{}, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0)
	for rows.Next() {
		profile, scanErr := scanProfile(rows)
		if scanErr != nil {
			return ListProfilesResult{}, fmt.Errorf("scan profile: %w", scanErr)
		}
		profiles = append(profiles, profile)
	}

	if err = rows.Err(); err != nil {
		return ListProfilesResult{}, fmt.Errorf("iterate profiles: %w", err)
	}

	result.Profiles = profiles
	return result, nil
}

// UpdateProfileParams represents self-editable fields.
type UpdateProfileParams struct {
	FullName *string
	Phone    *string
}

// UpdateProfile applies the provided fields and returns the updated record.
func (s *ProfileStore) UpdateProfile(ctx context.Context, id uuid.UUID, params UpdateProfileParams) (Profile, error) {
	setParts := []string{}
	var args []any

	if params.FullName != nil {
		args = append(args, strings.TrimSpace(*params.FullName))
		setParts = append(setParts, fmt.Sprintf("full_name = $%d", len(args)))
	}
	if params.Phone != nil {
		args = append(args, strings.TrimSpace(*params.Phone))
		setParts = append(setParts, fmt.Sprintf("phone = $%d", len(args)))
	}

	if len(setParts) == 0 {
		return Profile{}, errors.New("no fields to update")
	}

	args = append(args, id)

	query := fmt.Sprintf(`
        UPDATE %s
        SET %s, updated_at = NOW()
        WHERE profile_id = $%d
        RETURNING %s
    `, ProfilesTable, strings.Join(setParts, ", "), len(args), profileColumns)

	row := s.pool.QueryRow(ctx, query, args...)

	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrProfileNotFound
		}
		if isUniqueViolation(err) {
			return Profile{}, ErrProfileConflict
		}
		return Profile{}, err
	}

	return profile, nil
}

// UpdateProfileRole sets the role for the given profile id and returns the updated record.
// The claim-approval sequence uses this for the agency_owner upgrade and its compensation path.
func (s *ProfileStore) UpdateProfileRole(ctx context.Context, id uuid.UUID, role string) (Profile, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET role = $1, updated_at = NOW()
        WHERE profile_id = $2
        RETURNING %s
    `, ProfilesTable, profileColumns), role, id)

	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrProfileNotFound
		}
		return Profile{}, err
	}

	return profile, nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var profile Profile

	if err := row.Scan(
		&profile.ProfileID,
		&profile.AuthUID,
		&profile.Email,
		&profile.FullName,
		&profile.Phone,
		&profile.Role,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		return Profile{}, err
	}

	return profile, nil
}

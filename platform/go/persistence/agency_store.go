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

const (
	AgenciesTable      = "agencies"
	AgencyTradesTable  = "agency_trades"
	AgencyRegionsTable = "agency_regions"
)

// Agency represents a directory listing row together with its trade/region selections.
type Agency struct {
	AgencyID    uuid.UUID  `db:"agency_id" json:"agencyId"`
	Name        string     `db:"name" json:"name"`
	Slug        string     `db:"slug" json:"slug"`
	Description *string    `db:"description" json:"description,omitempty"`
	Website     *string    `db:"website" json:"website,omitempty"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	Email       *string    `db:"email" json:"email,omitempty"`
	Trades      []string   `json:"trades"`
	Regions     []string   `json:"regions"`
	IsClaimed   bool       `db:"is_claimed" json:"isClaimed"`
	ClaimedBy   *uuid.UUID `db:"claimed_by" json:"claimedBy,omitempty"`
	ClaimedAt   *time.Time `db:"claimed_at" json:"claimedAt,omitempty"`
	IsActive    bool       `db:"is_active" json:"isActive"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

var (
	// ErrAgencyNotFound indicates a missing agency record.
	ErrAgencyNotFound = errors.New("agency not found")
	// ErrAgencyConflict indicates a uniqueness violation (duplicated slug).
	ErrAgencyConflict = errors.New("agency conflict")
	// ErrAgencyAlreadyClaimed indicates the listing already has an owner.
	ErrAgencyAlreadyClaimed = errors.New("agency already claimed")
)

// AgencyStore exposes persistence helpers for the agencies table and its trade/region selections.
type AgencyStore struct {
	pool *pgxpool.Pool
}

// NewAgencyStore returns a store instance bound to the shared pool.
func NewAgencyStore(ctx context.Context, pool *pgxpool.Pool) (*AgencyStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}

	return &AgencyStore{pool: pool}, nil
}

const agencySelect = `
    SELECT a.agency_id, a.name, a.slug, a.description, a.website, a.phone, a.email,
           a.is_claimed, a.claimed_by, a.claimed_at, a.is_active, a.created_at, a.updated_at,
           COALESCE((SELECT array_agg(t.trade ORDER BY t.trade) FROM agency_trades t WHERE t.agency_id = a.agency_id), '{}') AS trades,
           COALESCE((SELECT array_agg(r.region ORDER BY r.region) FROM agency_regions r WHERE r.agency_id = a.agency_id), '{}') AS regions
    FROM agencies a
`

// CreateAgencyParams captures the fields required to insert a new listing.
type CreateAgencyParams struct {
	AgencyID    uuid.UUID
	Name        string
	Slug        string
	Description *string
	Website     *string
	Phone       *string
	Email       *string
	Trades      []string
	Regions     []string
}

// CreateAgency inserts a new listing with its trade/region selections and returns the persisted record.
func (s *AgencyStore) CreateAgency(ctx context.Context, params CreateAgencyParams) (Agency, error) {
	if params.AgencyID == uuid.Nil {
		return Agency{}, errors.New("agency id is required")
	}

	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (agency_id, name, slug, description, website, phone, email)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, AgenciesTable),
		params.AgencyID,
		strings.TrimSpace(params.Name),
		strings.TrimSpace(params.Slug),
		params.Description,
		params.Website,
		params.Phone,
		params.Email,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Agency{}, ErrAgencyConflict
		}
		return Agency{}, fmt.Errorf("insert agency: %w", err)
	}

	if err := s.ReplaceSelections(ctx, params.AgencyID, params.Trades, params.Regions); err != nil {
		return Agency{}, err
	}

	return s.GetAgency(ctx, params.AgencyID)
}

// GetAgency returns a single listing by identifier, selections included.
func (s *AgencyStore) GetAgency(ctx context.Context, id uuid.UUID) (Agency, error) {
	row := s.pool.QueryRow(ctx, agencySelect+` WHERE a.agency_id = $1`, id)

	agency, err := scanAgency(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agency{}, ErrAgencyNotFound
		}
		return Agency{}, err
	}

	return agency, nil
}

// GetAgencyBySlug returns a single listing by its public slug.
func (s *AgencyStore) GetAgencyBySlug(ctx context.Context, slug string) (Agency, error) {
	row := s.pool.QueryRow(ctx, agencySelect+` WHERE a.slug = $1`, strings.TrimSpace(slug))

	agency, err := scanAgency(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agency{}, ErrAgencyNotFound
		}
		return Agency{}, err
	}

	return agency, nil
}

// ListAgenciesParams captures directory search filters and pagination.
type ListAgenciesParams struct {
	Page            int
	PageSize        int
	Trade           *string
	Region          *string
	Query           *string
	Claimed         *bool
	IncludeInactive bool
	Sort            *string
}

// ListAgenciesResult includes the rows and the total count for pagination metadata.
type ListAgenciesResult struct {
	Agencies   []Agency
	TotalItems int
}

// ListAgencies returns listings matching the filters with pagination applied.
// Public search always excludes inactive listings; admin listings pass IncludeInactive.
func (s *AgencyStore) ListAgencies(ctx context.Context, params ListAgenciesParams) (ListAgenciesResult, error) {
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

	if !params.IncludeInactive {
		whereParts = append(whereParts, "a.is_active")
	}
	if params.Trade != nil && strings.TrimSpace(*params.Trade) != "" {
		args = append(args, strings.TrimSpace(*params.Trade))
		whereParts = append(whereParts, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM %s t WHERE t.agency_id = a.agency_id AND t.trade = $%d)", AgencyTradesTable, len(args)))
	}
	if params.Region != nil && strings.TrimSpace(*params.Region) != "" {
		args = append(args, strings.TrimSpace(*params.Region))
		whereParts = append(whereParts, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM %s r WHERE r.agency_id = a.agency_id AND r.region = $%d)", AgencyRegionsTable, len(args)))
	}
	if params.Query != nil && strings.TrimSpace(*params.Query) != "" {
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(*params.Query))+"%")
		whereParts = append(whereParts, fmt.Sprintf("LOWER(a.name) LIKE $%d", len(args)))
	}
	if params.Claimed != nil {
		args = append(args, *params.Claimed)
		whereParts = append(whereParts, fmt.Sprintf("a.is_claimed = $%d", len(args)))
	}

	whereSQL := strings.Join(whereParts, " AND ")

	orderSQL, err := buildAgencyOrderBy(params.Sort)
	if err != nil {
		return ListAgenciesResult{}, err
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s a WHERE %s", AgenciesTable, whereSQL)
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListAgenciesResult{}, fmt.Errorf("count agencies: %w", err)
	}

	result := ListAgenciesResult{Agencies: []Agency{}, TotalItems: total}
	if total == 0 {
		return result, nil
	}

	dataArgs := append([]any{}, args...)
	dataArgs = append(dataArgs, params.PageSize, (params.Page-1)*params.PageSize)

	query := fmt.Sprintf(`%s WHERE %s %s LIMIT $%d OFFSET $%d`,
		agencySelect, whereSQL, orderSQL, len(dataArgs)-1, len(dataArgs))

	rows, err := s.pool.Query(ctx, query, dataArgs...)
	if err != nil {
		return ListAgenciesResult{}, fmt.Errorf("list agencies: %w", err)
	}
	defer rows.Close()

	agencies := make([]Agency, 0)
	for rows.Next() {
		agency, scanErr := scanAgency(rows)
		if scanErr != nil {
			return ListAgenciesResult{}, fmt.Errorf("scan agency: %w", scanErr)
		}
		agencies = append(agencies, agency)
	}

	if err = rows.Err(); err != nil {
		return ListAgenciesResult{}, fmt.Errorf("iterate agencies: %w", err)
	}

	result.Agencies = agencies
	return result, nil
}

func buildAgencyOrderBy(sort *string) (string, error) {
	const defaultOrder = "ORDER BY a.name ASC"
	if sort == nil || strings.TrimSpace(*sort) == "" {
		return defaultOrder, nil
	}

	mapping := map[string]string{
		"name":      "a.name",
		"createdAt": "a.created_at",
		"claimedAt": "a.claimed_at",
	}

	orderClauses := make([]string, 0, 2)
	for _, raw := range strings.Split(strings.TrimSpace(*sort), ",") {
		f := strings.TrimSpace(raw)
		if f == "" {
			continue
		}

		direction := "ASC"
		if strings.HasPrefix(f, "-") {
			direction = "DESC"
			f = strings.TrimPrefix(f, "-")
		}

		column, ok := mapping[f]
		if !ok {
			return "", fmt.Errorf("unsupported sort field %q", f)
		}

		orderClauses = append(orderClauses, fmt.Sprintf("%s %s", column, direction))
	}

	if len(orderClauses) == 0 {
		return defaultOrder, nil
	}

	return "ORDER BY " + strings.Join(orderClauses, ", "), nil
}

// UpdateAgencyParams represents the listing fields an owner (or admin) may edit.
type UpdateAgencyParams struct {
	Name        *string
	Description *string
	Website     *string
	Phone       *string
	Email       *string
}

// UpdateAgency applies the provided fields and returns the updated record.
func (s *AgencyStore) UpdateAgency(ctx context.Context, id uuid.UUID, params UpdateAgencyParams) (Agency, error) {
	setParts := []string{}
	var args []any

	if params.Name != nil {
		args = append(args, strings.TrimSpace(*params.Name))
		setParts = append(setParts, fmt.Sprintf("name = $%d", len(args)))
	}
	if params.Description != nil {
		args = append(args, params.Description)
		setParts = append(setParts, fmt.Sprintf("description = $%d", len(args)))
	}
	if params.Website != nil {
		args = append(args, params.Website)
		setParts = append(setParts, fmt.Sprintf("website = $%d", len(args)))
	}
	if params.Phone != nil {
		args = append(args, params.Phone)
		setParts = append(setParts, fmt.Sprintf("phone = $%d", len(args)))
	}
	if params.Email != nil {
		args = append(args, params.Email)
		setParts = append(setParts, fmt.Sprintf("email = $%d", len(args)))
	}

	if len(setParts) == 0 {
		return Agency{}, errors.New("no fields to update")
	}

	args = append(args, id)

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET %s, updated_at = NOW() WHERE agency_id = $%d
    `, AgenciesTable, strings.Join(setParts, ", "), len(args)), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return Agency{}, ErrAgencyConflict
		}
		return Agency{}, fmt.Errorf("update agency: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Agency{}, ErrAgencyNotFound
	}

	return s.GetAgency(ctx, id)
}

// ReplaceSelections swaps the trade and region selections for a listing.
func (s *AgencyStore) ReplaceSelections(ctx context.Context, id uuid.UUID, trades, regions []string) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE agency_id = $1`, AgencyTradesTable), id); err != nil {
		return fmt.Errorf("clear agency trades: %w", err)
	}
	for _, trade := range trades {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf(`
            INSERT INTO %s (agency_id, trade) VALUES ($1, $2) ON CONFLICT DO NOTHING
        `, AgencyTradesTable), id, strings.TrimSpace(trade)); err != nil {
			return fmt.Errorf("insert agency trade: %w", err)
		}
	}

	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE agency_id = $1`, AgencyRegionsTable), id); err != nil {
		return fmt.Errorf("clear agency regions: %w", err)
	}
	for _, region := range regions {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf(`
            INSERT INTO %s (agency_id, region) VALUES ($1, $2) ON CONFLICT DO NOTHING
        `, AgencyRegionsTable), id, strings.TrimSpace(region)); err != nil {
			return fmt.Errorf("insert agency region: %w", err)
		}
	}

	return nil
}

// SetAgencyActive toggles listing visibility in the public directory.
func (s *AgencyStore) SetAgencyActive(ctx context.Context, id uuid.UUID, active bool) (Agency, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET is_active = $1, updated_at = NOW() WHERE agency_id = $2
    `, AgenciesTable), active, id)
	if err != nil {
		return Agency{}, fmt.Errorf("set agency active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Agency{}, ErrAgencyNotFound
	}

	return s.GetAgency(ctx, id)
}

// MarkAgencyClaimed stamps ownership on a listing. Step two of the claim-approval sequence.
// The unclaimed precondition lives in the WHERE clause so two racing approvals
// cannot both stamp the same listing.
func (s *AgencyStore) MarkAgencyClaimed(ctx context.Context, id uuid.UUID, claimedBy uuid.UUID, claimedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s
        SET is_claimed = TRUE, claimed_by = $1, claimed_at = $2, updated_at = NOW()
        WHERE agency_id = $3 AND NOT is_claimed
    `, AgenciesTable), claimedBy, claimedAt, id)
	if err != nil {
		return fmt.Errorf("mark agency claimed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetAgency(ctx, id); getErr != nil {
			return getErr
		}
		return ErrAgencyAlreadyClaimed
	}

	return nil
}

// ClearAgencyClaim removes ownership stamps; used only by the approval compensation path.
func (s *AgencyStore) ClearAgencyClaim(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s
        SET is_claimed = FALSE, claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
        WHERE agency_id = $1
    `, AgenciesTable), id)
	if err != nil {
		return fmt.Errorf("clear agency claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAgencyNotFound
	}

	return nil
}

/// MatchedAgency is the projection used by the labor-request notification pipeline:
// an active, claimed listing covering the requested trade and region, joined to its owner contact.
type MatchedAgency struct {
	AgencyID   uuid.UUID
	Name       string
	OwnerID    uuid.UUID
	OwnerEmail string
	OwnerName  string
}

// MatchAgencies returns active claimed listings covering the given trade and region.
func (s *AgencyStore) MatchAgencies(ctx context.Context, trade, region string) ([]MatchedAgency, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT a.agency_id, a.name, p.profile_id, p.email, p.full_name
        FROM %s a
        JOIN %s p ON p.profile_id = a.claimed_by
        WHERE a.is_active
          AND a.is_claimed
          AND EXISTS (SELECT 1 FROM %s t WHERE t.agency_id = a.agency_id AND t.trade = $1)
          AND EXISTS (SELECT 1 FROM %s r WHERE r.agency_id = a.agency_id AND r.region = $2)
        ORDER BY a.name
    `, AgenciesTable, ProfilesTable, AgencyTradesTable, AgencyRegionsTable),
		strings.TrimSpace(trade), strings.TrimSpace(region))
	if err != nil {
		return nil, fmt.Errorf("match agencies: %w", err)
	}
	defer rows.Close()

	matches := make([]MatchedAgency, 0)
	for rows.Next() {
		var m MatchedAgency
		if err := rows.Scan(&m.AgencyID, &m.Name, &m.OwnerID, &m.OwnerEmail, &m.OwnerName); err != nil {
			return nil, fmt.Errorf("scan matched agency: %w", err)
		}
		matches = append(matches, m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matched agencies: %w", err)
	}

	return matches, nil
}

func scanAgency(row pgx.Row) (Agency, error) {
	var agency Agency

	if err := row.Scan(
		&agency.AgencyID,
		&agency.Name,
		&agency.Slug,
		&agency.Description,
		&agency.Website,
		&agency.Phone,
		&agency.Email,
		&agency.IsClaimed,
		&agency.ClaimedBy,
		&agency.ClaimedAt,
		&agency.IsActive,
		&agency.CreatedAt,
		&agency.UpdatedAt,
		&agency.Trades,
		&agency.Regions,
	); err != nil {
		return Agency{}, err
	}

	return agency, nil
}

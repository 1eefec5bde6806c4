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
	LaborRequestsTable       = "labor_requests"
	AgencyNotificationsTable = "agency_notifications"
)

// LaborRequest represents a public staffing request row.
type LaborRequest struct {
	RequestID    uuid.UUID  `db:"request_id" json:"requestId"`
	ContactName  string     `db:"contact_name" json:"contactName"`
	ContactEmail string     `db:"contact_email" json:"contactEmail"`
	ContactPhone *string    `db:"contact_phone" json:"contactPhone,omitempty"`
	Trade        string     `db:"trade" json:"trade"`
	Region       string     `db:"region" json:"region"`
	Headcount    int        `db:"headcount" json:"headcount"`
	StartDate    *time.Time `db:"start_date" json:"startDate,omitempty"`
	Details      *string    `db:"details" json:"details,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
}

// InboxRow is the agency-dashboard projection: a notification joined with its labor request.
type InboxRow struct {
	NotificationID uuid.UUID  `db:"notification_id" json:"notificationId"`
	AgencyID       uuid.UUID  `db:"agency_id" json:"agencyId"`
	ReadAt         *time.Time `db:"read_at" json:"readAt,omitempty"`
	NotifiedAt     time.Time  `db:"notified_at" json:"notifiedAt"`
	Request        LaborRequest
}

var (
	// ErrLaborRequestNotFound indicates a missing labor request record.
	ErrLaborRequestNotFound = errors.New("labor request not found")
	// ErrNotificationNotFound indicates a missing inbox notification.
	ErrNotificationNotFound = errors.New("notification not found")
)

// LaborRequestStore exposes persistence helpers for labor requests and agency inbox notifications.
type LaborRequestStore struct {
	pool *pgxpool.Pool
}

// NewLaborRequestStore returns a store instance bound to the shared pool.
func NewLaborRequestStore(ctx context.Context, pool *pgxpool.Pool) (*LaborRequestStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}

	return &LaborRequestStore{pool: pool}, nil
}

const laborRequestColumns = "request_id, contact_name, contact_email, contact_phone, trade, region, headcount, start_date, details, created_at"

// CreateLaborRequestParams captures the intake fields of a staffing request.
type CreateLaborRequestParams struct {
	RequestID    uuid.UUID
	ContactName  string
	ContactEmail string
	ContactPhone *string
	Trade        string
	Region       string
	Headcount    int
	StartDate    *time.Time
	Details      *string
}

// CreateLaborRequest inserts a new staffing request and returns the persisted record.
func (s *LaborRequestStore) CreateLaborRequest(ctx context.Context, params CreateLaborRequestParams) (LaborRequest, error) {
	if params.RequestID == uuid.Nil {
		return LaborRequest{}, errors.New("request id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (request_id, contact_name, contact_email, contact_phone, trade, region, headcount, start_date, details)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING %s
    `, LaborRequestsTable, laborRequestColumns),
		params.RequestID,
		strings.TrimSpace(params.ContactName),
		strings.ToLower(strings.TrimSpace(params.ContactEmail)),
		params.ContactPhone,
		strings.TrimSpace(params.Trade),
		strings.TrimSpace(params.Region),
		params.Headcount,
		params.StartDate,
		params.Details,
	)

	return scanLaborRequest(row)
}

// GetLaborRequest returns a single staffing request by identifier.
func (s *LaborRequestStore) GetLaborRequest(ctx context.Context, id uuid.UUID) (LaborRequest, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE request_id = $1
    `, laborRequestColumns, LaborRequestsTable), id)

	request, err := scanLaborRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LaborRequest{}, ErrLaborRequestNotFound
		}
		return LaborRequest{}, err
	}

	return request, nil
}

// InsertNotifications fans one labor request out to the matched agencies' inboxes.
// Notifications for agencies already notified about the request are skipped.
func (s *LaborRequestStore) InsertNotifications(ctx context.Context, requestID uuid.UUID, agencyIDs []uuid.UUID) (int, error) {
	inserted := 0
	for _, agencyID := range agencyIDs {
		tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
            INSERT INTO %s (notification_id, agency_id, request_id)
            VALUES ($1, $2, $3)
            ON CONFLICT (agency_id, request_id) DO NOTHING
        `, AgencyNotificationsTable), uuid.New(), agencyID, requestID)
		if err != nil {
			return inserted, fmt.Errorf("insert agency notification: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	return inserted, nil
}

// ListInboxParams captures the agency inbox filters and pagination.
type ListInboxParams struct {
	AgencyID   uuid.UUID
	UnreadOnly bool
	Page       int
	PageSize   int
}

// ListInboxResult includes the joined rows and the total count for pagination metadata.
type ListInboxResult struct {
	Rows       []InboxRow
	TotalItems int
}

// ListInbox returns an agency's labor-request notifications, newest first.
func (s *LaborRequestStore) ListInbox(ctx context.Context, params ListInboxParams) (ListInboxResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}

	whereParts := []string{"n.agency_id = $1"}
	args := []any{params.AgencyID}

	if params.UnreadOnly {
		whereParts = append(whereParts, "n.read_at IS NULL")
	}

	whereSQL := strings.Join(whereParts, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s n WHERE %s", AgencyNotificationsTable, whereSQL)
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListInboxResult{}, fmt.Errorf("count inbox: %w", err)
	}

	result := ListInboxResult{Rows: []InboxRow{}, TotalItems: total}
	if total == 0 {
		return result, nil
	}

	dataArgs := append([]any{}, args...)
	dataArgs = append(dataArgs, params.PageSize, (params.Page-1)*params.PageSize)

	query := fmt.Sprintf(`
        SELECT n.notification_id, n.agency_id, n.read_at, n.created_at,
               r.request_id, r.contact_name, r.contact_email, r.contact_phone,
               r.trade, r.region, r.headcount, r.start_date, r.details, r.created_at
        FROM %s n
        JOIN %s r ON r.request_id = n.request_id
        WHERE %s
        ORDER BY n.created_at DESC
        LIMIT $%d OFFSET $%d
    `, AgencyNotificationsTable, LaborRequestsTable, whereSQL, len(dataArgs)-1, len(dataArgs))

	rows, err := s.pool.Query(ctx, query, dataArgs...)
	if err != nil {
		return ListInboxResult{}, fmt.Errorf("list inbox: %w", err)
	}
	defer rows.Close()

	inbox := make([]InboxRow, 0)
	for rows.Next() {
		var row InboxRow
		if err := rows.Scan(
			&row.NotificationID, &row.AgencyID, &row.ReadAt, &row.NotifiedAt,
			&row.Request.RequestID, &row.Request.ContactName, &row.Request.ContactEmail, &row.Request.ContactPhone,
			&row.Request.Trade, &row.Request.Region, &row.Request.Headcount, &row.Request.StartDate,
			&row.Request.Details, &row.Request.CreatedAt,
		); err != nil {
			return ListInboxResult{}, fmt.Errorf("scan inbox row: %w", err)
		}
		inbox = append(inbox, row)
	}

	if err = rows.Err(); err != nil {
		return ListInboxResult{}, fmt.Errorf("iterate inbox: %w", err)
	}

	result.Rows = inbox
	return result, nil
}

// MarkNotificationRead stamps read_at on one inbox notification; idempotent.
func (s *LaborRequestStore) MarkNotificationRead(ctx context.Context, agencyID, notificationID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s
        SET read_at = COALESCE(read_at, NOW())
        WHERE notification_id = $1 AND agency_id = $2
    `, AgencyNotificationsTable), notificationID, agencyID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}

	return nil
}

func scanLaborRequest(row pgx.Row) (LaborRequest, error) {
	var request LaborRequest

	if err := row.Scan(
		&request.RequestID,
		&request.ContactName,
		&request.ContactEmail,
		&request.ContactPhone,
		&request.Trade,
		&request.Region,
		&request.Headcount,
		&request.StartDate,
		&request.Details,
		&request.CreatedAt,
	); err != nil {
		return LaborRequest{}, err
	}

	return request, nil
}

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
	ConversationsTable = "conversations"
	MessagesTable      = "messages"
)

// Conversation links a requester profile with an agency.
type Conversation struct {
	ConversationID uuid.UUID `db:"conversation_id" json:"conversationId"`
	AgencyID       uuid.UUID `db:"agency_id" json:"agencyId"`
	RequesterID    uuid.UUID `db:"requester_id" json:"requesterId"`
	Subject        string    `db:"subject" json:"subject"`
	LastMessageAt  time.Time `db:"last_message_at" json:"lastMessageAt"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// ConversationRow is the listing projection with the agency name and the caller's unread count.
type ConversationRow struct {
	Conversation
	AgencyName  string `db:"agency_name" json:"agencyName"`
	UnreadCount int    `db:"unread_count" json:"unreadCount"`
}

// Message is one entry inside a conversation.
type Message struct {
	MessageID      uuid.UUID  `db:"message_id" json:"messageId"`
	ConversationID uuid.UUID  `db:"conversation_id" json:"conversationId"`
	SenderID       uuid.UUID  `db:"sender_id" json:"senderId"`
	Body           string     `db:"body" json:"body"`
	ReadAt         *time.Time `db:"read_at" json:"readAt,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

var (
	// ErrConversationNotFound indicates a missing conversation record.
	ErrConversationNotFound = errors.New("conversation not found")
)

// ConversationStore exposes persistence helpers for conversations and messages.
type ConversationStore struct {
	pool *pgxpool.Pool
}

// NewConversationStore returns a store instance bound to the shared pool.
func NewConversationStore(ctx context.Context, pool *pgxpool.Pool) (*ConversationStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}

	return &ConversationStore{pool: pool}, nil
}

// CreateConversationParams opens a conversation together with its first message.
type CreateConversationParams struct {
	ConversationID uuid.UUID
	AgencyID       uuid.UUID
	RequesterID    uuid.UUID
	Subject        string
	FirstMessage   string
}

// CreateConversation inserts the conversation row and its opening message.
func (s *ConversationStore) CreateConversation(ctx context.Context, params CreateConversationParams) (Conversation, error) {
	if params.ConversationID == uuid.Nil {
		return Conversation{}, errors.New("conversation id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (conversation_id, agency_id, requester_id, subject, last_message_at)
        VALUES ($1, $2, $3, $4, NOW())
        RETURNING conversation_id, agency_id, requester_id, subject, last_message_at, created_at
    `, ConversationsTable),
		params.ConversationID,
		params.AgencyID,
		params.RequesterID,
		strings.TrimSpace(params.Subject),
	)

	conversation, err := scanConversation(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return Conversation{}, ErrAgencyNotFound
		}
		return Conversation{}, err
	}

	if _, err := s.InsertMessage(ctx, InsertMessageParams{
		MessageID:      uuid.New(),
		ConversationID: conversation.ConversationID,
		SenderID:       params.RequesterID,
		Body:           params.FirstMessage,
	}); err != nil {
		return Conversation{}, err
	}

	return conversation, nil
}

// GetConversation returns a single conversation by identifier.
func (s *ConversationStore) GetConversation(ctx context.Context, id uuid.UUID) (Conversation, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT conversation_id, agency_id, requester_id, subject, last_message_at, created_at
        FROM %s WHERE conversation_id = $1
    `, ConversationsTable), id)

	conversation, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrConversationNotFound
		}
		return Conversation{}, err
	}

	return conversation, nil
}

// ListConversationsParams captures the caller identity and pagination.
// A caller sees conversations where they are the requester plus those of agencies they own.
type ListConversationsParams struct {
	ProfileID uuid.UUID
	Page      int
	PageSize  int
}

// ListConversationsResult includes the joined rows and the total count for pagination metadata.
type ListConversationsResult struct {
	Conversations []ConversationRow
	TotalItems    int
}

// ListConversations returns the caller's conversations ordered by last activity.
func (s *ConversationStore) ListConversations(ctx context.Context, params ListConversationsParams) (ListConversationsResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}

	whereSQL := `(c.requester_id = $1 OR EXISTS (
        SELECT 1 FROM agencies a WHERE a.agency_id = c.agency_id AND a.claimed_by = $1
    ))`

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s c WHERE %s", ConversationsTable, whereSQL)
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, params.ProfileID).Scan(&total); err != nil {
		return ListConversationsResult{}, fmt.Errorf("count conversations: %w", err)
	}

	result := ListConversationsResult{Conversations: []ConversationRow{}, TotalItems: total}
	if total == 0 {
		return result, nil
	}

	query := fmt.Sprintf(`
        SELECT c.conversation_id, c.agency_id, c.requester_id, c.subject, c.last_message_at, c.created_at,
               a.name AS agency_name,
               (SELECT COUNT(*) FROM %s m
                WHERE m.conversation_id = c.conversation_id
                  AND m.sender_id <> $1
                  AND m.read_at IS NULL) AS unread_count
        FROM %s c
        JOIN %s a ON a.agency_id = c.agency_id
        WHERE %s
        ORDER BY c.last_message_at DESC
        LIMIT $2 OFFSET $3
    `, MessagesTable, ConversationsTable, AgenciesTable, whereSQL)

	rows, err := s.pool.Query(ctx, query, params.ProfileID, params.PageSize, (params.Page-1)*params.PageSize)
	if err != nil {
		return ListConversationsResult{}, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]ConversationRow, 0)
	for rows.Next() {
		var cr ConversationRow
		if err := rows.Scan(
			&cr.ConversationID, &cr.AgencyID, &cr.RequesterID, &cr.Subject, &cr.LastMessageAt, &cr.CreatedAt,
			&cr.AgencyName, &cr.UnreadCount,
		); err != nil {
			return ListConversationsResult{}, fmt.Errorf("scan conversation row: %w", err)
		}
		conversations = append(conversations, cr)
	}

	if err = rows.Err(); err != nil {
		return ListConversationsResult{}, fmt.Errorf("iterate conversations: %w", err)
	}

	result.Conversations = conversations
	return result, nil
}

// ListMessages returns all messages of a conversation oldest first.
func (s *ConversationStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT message_id, conversation_id, sender_id, body, read_at, created_at
        FROM %s
        WHERE conversation_id = $1
        ORDER BY created_at ASC
    `, MessagesTable), conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.MessageID, &m.ConversationID, &m.SenderID, &m.Body, &m.ReadAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// InsertMessageParams carries one outgoing message.
type InsertMessageParams struct {
	MessageID      uuid.UUID
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Body           string
}

// InsertMessage appends a message and bumps the conversation's last activity stamp.
func (s *ConversationStore) InsertMessage(ctx context.Context, params InsertMessageParams) (Message, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (message_id, conversation_id, sender_id, body)
        VALUES ($1, $2, $3, $4)
        RETURNING message_id, conversation_id, sender_id, body, read_at, created_at
    `, MessagesTable),
		params.MessageID,
		params.ConversationID,
		params.SenderID,
		strings.TrimSpace(params.Body),
	)

	var message Message
	if err := row.Scan(&message.MessageID, &message.ConversationID, &message.SenderID, &message.Body, &message.ReadAt, &message.CreatedAt); err != nil {
		if isForeignKeyViolation(err) {
			return Message{}, ErrConversationNotFound
		}
		return Message{}, err
	}

	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET last_message_at = $1 WHERE conversation_id = $2
    `, ConversationsTable), message.CreatedAt, params.ConversationID); err != nil {
		return Message{}, fmt.Errorf("bump conversation activity: %w", err)
	}

	return message, nil
}

// MarkConversationRead stamps read_at on every counterparty message; returns the number stamped.
func (s *ConversationStore) MarkConversationRead(ctx context.Context, conversationID, readerID uuid.UUID) (int, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s
        SET read_at = NOW()
        WHERE conversation_id = $1 AND sender_id <> $2 AND read_at IS NULL
    `, MessagesTable), conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var conversation Conversation

	if err := row.Scan(
		&conversation.ConversationID,
		&conversation.AgencyID,
		&conversation.RequesterID,
		&conversation.Subject,
		&conversation.LastMessageAt,
		&conversation.CreatedAt,
	); err != nil {
		return Conversation{}, err
	}

	return conversation, nil
}

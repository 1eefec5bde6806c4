package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hardhat-labs/crewdeck/domains/messaging/be/repo"
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
	ErrNotFound  = errors.New("conversation not found")
	ErrForbidden = errors.New("caller is not a participant of this conversation")
)

// Actor identifies the caller for participant checks.
type Actor struct {
	ProfileID uuid.UUID
	Role      string
}

// Conversation is the domain view of a message thread.
type Conversation struct {
	ID            uuid.UUID
	AgencyID      uuid.UUID
	RequesterID   uuid.UUID
	Subject       string
	LastMessageAt time.Time
	CreatedAt     time.Time
}

// ConversationListItem decorates a conversation with the agency name and the
// caller's unread count.
type ConversationListItem struct {
	Conversation
	AgencyName  string
	UnreadCount int
}

// Message is one entry inside a conversation.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Body           string
	ReadAt         *time.Time
	CreatedAt      time.Time
}

// ConversationDetail bundles a conversation with its full message history.
type ConversationDetail struct {
	Conversation Conversation
	Messages     []Message
}

// OpenInput starts a conversation with an agency.
type OpenInput struct {
	AgencyID uuid.UUID
	Subject  string
	Body     string
}

// ListOptions paginates the caller's conversation listing.
type ListOptions struct {
	Page     int
	PageSize int
}

// ListResult wraps a page of conversations with pagination metadata.
type ListResult struct {
	Conversations []ConversationListItem
	Page          int
	PageSize      int
	TotalItems    int
	TotalPages    int
}

// Service defines the business operations for the messaging domain.
type Service interface {
	Open(ctx context.Context, actor Actor, input OpenInput) (Conversation, error)
	List(ctx context.Context, actor Actor, opts ListOptions) (ListResult, error)
	Get(ctx context.Context, actor Actor, conversationID uuid.UUID) (ConversationDetail, error)
	Send(ctx context.Context, actor Actor, conversationID uuid.UUID, body string) (Message, error)
	MarkRead(ctx context.Context, actor Actor, conversationID uuid.UUID) (int, error)
}

type service struct {
	repo   repo.Repository
	logger *zap.Logger
}

// New constructs a messaging Service instance.
func New(r repo.Repository, logger *zap.Logger) Service {
	if r == nil {
		panic("messaging repository is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &service{repo: r, logger: logger}
}

func (s *service) Open(ctx context.Context, actor Actor, input OpenInput) (Conversation, error) {
	if actor.ProfileID == uuid.Nil {
		return Conversation{}, ErrForbidden
	}

	fieldErrors := FieldErrors{}
	if input.AgencyID == uuid.Nil {
		fieldErrors.add("agencyId", "agencyId is required")
	}
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		fieldErrors.add("subject", "subject is required")
	}
	body := strings.TrimSpace(input.Body)
	if body == "" {
		fieldErrors.add("body", "an opening message is required")
	}
	if len(fieldErrors) > 0 {
		return Conversation{}, &ValidationError{Fields: fieldErrors}
	}

	record, err := s.repo.CreateConversation(ctx, persistence.CreateConversationParams{
		ConversationID: uuid.New(),
		AgencyID:       input.AgencyID,
		RequesterID:    actor.ProfileID,
		Subject:        subject,
		FirstMessage:   body,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrAgencyNotFound) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, err
	}

	return mapConversation(record), nil
}

func (s *service) List(ctx context.Context, actor Actor, opts ListOptions) (ListResult, error) {
	if actor.ProfileID == uuid.Nil {
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

	result, err := s.repo.ListConversations(ctx, persistence.ListConversationsParams{
		ProfileID: actor.ProfileID,
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		return ListResult{}, err
	}

	items := make([]ConversationListItem, 0, len(result.Conversations))
	for _, row := range result.Conversations {
		items = append(items, ConversationListItem{
			Conversation: mapConversation(row.Conversation),
			AgencyName:   row.AgencyName,
			UnreadCount:  row.UnreadCount,
		})
	}

	totalPages := 0
	if result.TotalItems > 0 {
		totalPages = (result.TotalItems + pageSize - 1) / pageSize
	}

	return ListResult{
		Conversations: items,
		Page:          page,
		PageSize:      pageSize,
		TotalItems:    result.TotalItems,
		TotalPages:    totalPages,
	}, nil
}

func (s *service) Get(ctx context.Context, actor Actor, conversationID uuid.UUID) (ConversationDetail, error) {
	conversation, err := s.requireParticipant(ctx, actor, conversationID)
	if err != nil {
		return ConversationDetail{}, err
	}

	records, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return ConversationDetail{}, err
	}

	messages := make([]Message, 0, len(records))
	for _, record := range records {
		messages = append(messages, mapMessage(record))
	}

	return ConversationDetail{
		Conversation: mapConversation(conversation),
		Messages:     messages,
	}, nil
}

func (s *service) Send(ctx context.Context, actor Actor, conversationID uuid.UUID, body string) (Message, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		fe := FieldErrors{}
		fe.add("body", "body is required")
		return Message{}, &ValidationError{Fields: fe}
	}

	if _, err := s.requireParticipant(ctx, actor, conversationID); err != nil {
		return Message{}, err
	}

	record, err := s.repo.InsertMessage(ctx, persistence.InsertMessageParams{
		MessageID:      uuid.New(),
		ConversationID: conversationID,
		SenderID:       actor.ProfileID,
		Body:           trimmed,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrConversationNotFound) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}

	return mapMessage(record), nil
}

func (s *service) MarkRead(ctx context.Context, actor Actor, conversationID uuid.UUID) (int, error) {
	if _, err := s.requireParticipant(ctx, actor, conversationID); err != nil {
		return 0, err
	}

	return s.repo.MarkConversationRead(ctx, conversationID, actor.ProfileID)
}

// requireParticipant resolves the conversation and allows the requester or
// the claimed-agency owner through. Admins are not implicit participants.
func (s *service) requireParticipant(ctx context.Context, actor Actor, conversationID uuid.UUID) (persistence.Conversation, error) {
	if actor.ProfileID == uuid.Nil {
		return persistence.Conversation{}, ErrForbidden
	}

	conversation, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, persistence.ErrConversationNotFound) {
			return persistence.Conversation{}, ErrNotFound
		}
		return persistence.Conversation{}, err
	}

	if conversation.RequesterID == actor.ProfileID {
		return conversation, nil
	}

	agency, err := s.repo.GetAgency(ctx, conversation.AgencyID)
	if err != nil {
		if errors.Is(err, persistence.ErrAgencyNotFound) {
			return persistence.Conversation{}, ErrForbidden
		}
		return persistence.Conversation{}, err
	}

	if agency.ClaimedBy == nil || *agency.ClaimedBy != actor.ProfileID {
		return persistence.Conversation{}, ErrForbidden
	}

	return conversation, nil
}

func mapConversation(record persistence.Conversation) Conversation {
	return Conversation{
		ID:            record.ConversationID,
		AgencyID:      record.AgencyID,
		RequesterID:   record.RequesterID,
		Subject:       record.Subject,
		LastMessageAt: record.LastMessageAt,
		CreatedAt:     record.CreatedAt,
	}
}

func mapMessage(record persistence.Message) Message {
	return Message{
		ID:             record.MessageID,
		ConversationID: record.ConversationID,
		SenderID:       record.SenderID,
		Body:           record.Body,
		ReadAt:         record.ReadAt,
		CreatedAt:      record.CreatedAt,
	}
}

func (f FieldErrors) add(field, message string) {
	if f == nil {
		return
	}
	f[field] = append(f[field], message)
}

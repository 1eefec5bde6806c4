package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/hardhat-labs/crewdeck/platform/go/persistence"
)

// Repository defines the persistence operations required by the messaging
// service. Participant checks need the agencies store, so it sits behind the
// same interface.
type Repository interface {
	CreateConversation(ctx context.Context, params persistence.CreateConversationParams) (persistence.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (persistence.Conversation, error)
	ListConversations(ctx context.Context, params persistence.ListConversationsParams) (persistence.ListConversationsResult, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]persistence.Message, error)
	InsertMessage(ctx context.Context, params persistence.InsertMessageParams) (persistence.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID uuid.UUID) (int, error)
	GetAgency(ctx context.Context, id uuid.UUID) (persistence.Agency, error)
}

type postgresRepository struct {
	conversations *persistence.ConversationStore
	agencies      *persistence.AgencyStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(conversations *persistence.ConversationStore, agencies *persistence.AgencyStore) Repository {
	if conversations == nil {
		panic("conversation store is required")
	}
	if agencies == nil {
		panic("agency store is required")
	}

	return &postgresRepository{conversations: conversations, agencies: agencies}
}

func (r *postgresRepository) CreateConversation(ctx context.Context, params persistence.CreateConversationParams) (persistence.Conversation, error) {
	return r.conversations.CreateConversation(ctx, params)
}

func (r *postgresRepository) GetConversation(ctx context.Context, id uuid.UUID) (persistence.Conversation, error) {
	return r.conversations.GetConversation(ctx, id)
}

func (r *postgresRepository) ListConversations(ctx context.Context, params persistence.ListConversationsParams) (persistence.ListConversationsResult, error) {
	return r.conversations.ListConversations(ctx, params)
}

func (r *postgresRepository) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]persistence.Message, error) {
	return r.conversations.ListMessages(ctx, conversationID)
}

func (r *postgresRepository) InsertMessage(ctx context.Context, params persistence.InsertMessageParams) (persistence.Message, error) {
	return r.conversations.InsertMessage(ctx, params)
}

func (r *postgresRepository) MarkConversationRead(ctx context.Context, conversationID, readerID uuid.UUID) (int, error) {
	return r.conversations.MarkConversationRead(ctx, conversationID, readerID)
}

func (r *postgresRepository) GetAgency(ctx context.Context, id uuid.UUID) (persistence.Agency, error) {
	return r.agencies.GetAgency(ctx, id)
}

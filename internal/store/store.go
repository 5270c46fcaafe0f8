package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"ugc-maroc-backend/internal/models"
)

// ErrNotFound is returned when a specific record is not found.
var ErrNotFound = errors.New("record not found")

// CreateConversationParams contains parameters for creating a conversation
// together with its participant rows.
type CreateConversationParams struct {
	ID           uuid.UUID
	Subject      string
	CreatedBy    uuid.UUID
	Participants []uuid.UUID
}

// InsertMessageParams contains parameters for persisting the durable copy of
// a chat message.
type InsertMessageParams struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	AuthorID       uuid.UUID
	Content        string
	Kind           models.MessageKind
	CreatedAt      time.Time
}

// ConversationListing is one row of a user's inbox: the conversation plus its
// most recent message, if any.
type ConversationListing struct {
	Conversation models.Conversation
	LastMessage  *models.MessageRecord
}

// Store defines the interface for the relational system of record. The
// conversation actors own the live in-memory state; this store provides
// durability and the listings that outlive an actor.
type Store interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// Conversation operations
	CreateConversation(ctx context.Context, arg CreateConversationParams) (*models.Conversation, error)
	GetConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListConversationsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ConversationListing, error)
	ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)

	// Message operations
	InsertMessage(ctx context.Context, arg InsertMessageParams) error
	ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.MessageRecord, error)

	// Read-receipt operations. A nil messageID marks everything as read.
	MarkRead(ctx context.Context, conversationID, userID uuid.UUID, messageID *uuid.UUID) error
}

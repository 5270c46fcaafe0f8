package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a marketplace user in the database. The Role distinguishes
// brand accounts from creator accounts; both sides of a conversation are users.
type User struct {
	ID             uuid.UUID `db:"id"`
	Email          string    `db:"email"`
	DisplayName    string    `db:"display_name"`
	Role           UserRole  `db:"role"`
	HashedPassword string    `db:"hashed_password"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// UserRole identifies which side of the marketplace an account belongs to.
type UserRole string

const (
	RoleBrand   UserRole = "BRAND"
	RoleCreator UserRole = "CREATOR"
)

// Conversation is the persistent record of a chat between participants.
// The live message log and session set are owned by the conversation's actor;
// this row is the durable anchor the actor hangs off.
type Conversation struct {
	ID        uuid.UUID `db:"id"`
	Subject   string    `db:"subject"`
	CreatedBy uuid.UUID `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ConversationParticipant links a user to a conversation and tracks their
// read position. LastReadMessageID is nil until the user first marks read.
type ConversationParticipant struct {
	ConversationID    uuid.UUID  `db:"conversation_id"`
	UserID            uuid.UUID  `db:"user_id"`
	LastReadMessageID *uuid.UUID `db:"last_read_message_id"`
	LastReadAt        *time.Time `db:"last_read_at"`
	JoinedAt          time.Time  `db:"joined_at"`
}

// MessageRecord is the durable copy of a chat message. It mirrors the actor's
// in-memory Message; ordering across actor restarts comes from created_at,
// not from the in-memory sequence.
type MessageRecord struct {
	ID             uuid.UUID   `db:"id"`
	ConversationID uuid.UUID   `db:"conversation_id"`
	AuthorID       uuid.UUID   `db:"author_id"`
	Content        string      `db:"content"`
	Kind           MessageKind `db:"kind"`
	CreatedAt      time.Time   `db:"created_at"`
}

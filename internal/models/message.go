package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind discriminates the payload type of a chat message.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindFile  MessageKind = "file"
)

// Valid reports whether k is one of the supported message kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindFile:
		return true
	}
	return false
}

// Message is a single chat message as held in a conversation actor's log and
// delivered over the wire. Immutable once created; ordering is by arrival at
// the owning actor, not by any author-supplied time.
type Message struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	AuthorID       uuid.UUID   `json:"author_id"`
	Content        string      `json:"content"`
	Kind           MessageKind `json:"kind"`
	CreatedAt      time.Time   `json:"created_at"`
}

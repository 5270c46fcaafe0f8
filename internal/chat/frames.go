package chat

import (
	"github.com/google/uuid"

	"ugc-maroc-backend/internal/models"
)

// Inbound command discriminators carried by duplex-channel frames.
const (
	CmdJoin    = "join"
	CmdMessage = "message"
	CmdTyping  = "typing"
	CmdRead    = "read"
)

// Outbound frame discriminators.
const (
	FrameHistory    = "history"
	FrameNewMessage = "new_message"
	FrameTyping     = "typing"
	FrameRead       = "read"
	FrameError      = "error"
)

// Command is an inbound frame from a connected client.
type Command struct {
	Type     string             `json:"type"`
	Content  string             `json:"content,omitempty"`
	Kind     models.MessageKind `json:"kind,omitempty"`
	IsTyping bool               `json:"is_typing,omitempty"`
	// MessageID accompanies read commands; nil marks the whole
	// conversation as read.
	MessageID *uuid.UUID `json:"message_id,omitempty"`
}

// HistoryFrame carries the snapshot pushed to a freshly attached session.
type HistoryFrame struct {
	Type     string           `json:"type"`
	Messages []models.Message `json:"messages"`
}

// NewMessageFrame announces a newly posted message.
type NewMessageFrame struct {
	Type    string         `json:"type"`
	Message models.Message `json:"message"`
}

// TypingFrame is an ephemeral typing signal, never stored in the log.
type TypingFrame struct {
	Type     string    `json:"type"`
	UserID   uuid.UUID `json:"user_id"`
	IsTyping bool      `json:"is_typing"`
}

// ReadFrame is an ephemeral read-receipt signal, never stored in the log.
type ReadFrame struct {
	Type      string     `json:"type"`
	UserID    uuid.UUID  `json:"user_id"`
	MessageID *uuid.UUID `json:"message_id,omitempty"`
}

// ErrorFrame reports a per-command failure back to the issuing session only.
type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

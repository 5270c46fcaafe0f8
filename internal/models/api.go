package models

import (
	"time"

	"github.com/google/uuid"
)

// --- Request Structs ---

// SignupRequest defines the expected body for the signup endpoint.
type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"` // "BRAND" or "CREATOR"
}

// LoginRequest defines the expected body for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateConversationRequest defines the body for creating a conversation.
// The creator is taken from the authenticated principal and is always added
// to the participant list.
type CreateConversationRequest struct {
	Subject      string      `json:"subject,omitempty"`
	Participants []uuid.UUID `json:"participants"`
}

// SendMessageRequest defines the body for posting a message over REST.
type SendMessageRequest struct {
	Content string      `json:"content"`
	Kind    MessageKind `json:"kind,omitempty"` // defaults to "text"
}

// MarkReadRequest defines the body for the mark-read endpoint. A nil
// MessageID marks everything in the conversation as read.
type MarkReadRequest struct {
	MessageID *uuid.UUID `json:"message_id,omitempty"`
}

// SetFlagRequest defines the body for the admin feature-flag endpoint.
type SetFlagRequest struct {
	Enabled bool `json:"enabled"`
}

// --- Response Structs ---

// UserResponse defines the user information returned by the API.
// Avoid returning sensitive info like HashedPassword.
type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        UserRole  `json:"role"`
}

// AuthResponse defines the response body for successful authentication.
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	User        UserResponse `json:"user"`
}

// ErrorResponse defines the standard structure for API errors.
type ErrorResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after,omitempty"` // seconds, set on rate-limit rejections
}

// ConversationResponse defines the data returned for a single conversation.
type ConversationResponse struct {
	ID           uuid.UUID   `json:"id"`
	Subject      string      `json:"subject,omitempty"`
	CreatedBy    uuid.UUID   `json:"created_by"`
	Participants []uuid.UUID `json:"participants"`
	CreatedAt    time.Time   `json:"created_at"`
}

// ConversationPreview is a conversation listed for a user together with its
// most recent message, used by the inbox view.
type ConversationPreview struct {
	ID          uuid.UUID `json:"id"`
	Subject     string    `json:"subject,omitempty"`
	LastMessage *Message  `json:"last_message,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListConversationsResponse wraps the inbox listing.
type ListConversationsResponse struct {
	Conversations []ConversationPreview `json:"conversations"`
}

// MessagesPage is one page of a conversation's history, newest first.
type MessagesPage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// FlagResponse defines the data returned for a feature flag.
type FlagResponse struct {
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"ugc-maroc-backend/internal/chat"
	"ugc-maroc-backend/internal/models"
	"ugc-maroc-backend/internal/store"
)

// ErrNotParticipant is returned when a user addresses a conversation they do
// not belong to.
var ErrNotParticipant = errors.New("user is not a participant of this conversation")

// CacheInvalidator drops cached read-endpoint responses under a path prefix.
// The cache-aside layer provides it; a nil invalidator just means listings
// age out by TTL alone.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, pathPrefix string) error
}

// ConversationService glues the REST and websocket surfaces to the
// conversation actors and the relational system of record. The actors own all
// live state; this service owns durability and authorization.
type ConversationService struct {
	store    store.Store
	registry *chat.Registry
	cache    CacheInvalidator
}

func NewConversationService(s store.Store, registry *chat.Registry, cache CacheInvalidator) *ConversationService {
	return &ConversationService{
		store:    s,
		registry: registry,
		cache:    cache,
	}
}

// LoadHistory seeds a freshly spawned actor with the newest persisted
// messages, oldest first. Used as the registry's HistoryLoader.
func LoadHistory(s store.Store, limit int) chat.HistoryLoader {
	return func(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
		records, err := s.ListRecentMessages(ctx, conversationID, limit)
		if err != nil {
			return nil, fmt.Errorf("loading history for %s: %w", conversationID, err)
		}
		return lo.Map(records, func(rec models.MessageRecord, _ int) models.Message {
			return models.Message{
				ID:             rec.ID,
				ConversationID: rec.ConversationID,
				AuthorID:       rec.AuthorID,
				Content:        rec.Content,
				Kind:           rec.Kind,
				CreatedAt:      rec.CreatedAt,
			}
		}), nil
	}
}

// Create creates a conversation with its participant list. The relational
// store is the system of record here, so failures are surfaced.
func (s *ConversationService) Create(ctx context.Context, creatorID uuid.UUID, req models.CreateConversationRequest) (*models.ConversationResponse, error) {
	if len(req.Participants) == 0 {
		return nil, fmt.Errorf("%w: participants are required", ErrValidation)
	}

	participants := req.Participants
	if !lo.Contains(participants, creatorID) {
		participants = append([]uuid.UUID{creatorID}, participants...)
	}

	conv, err := s.store.CreateConversation(ctx, store.CreateConversationParams{
		ID:           uuid.New(),
		Subject:      req.Subject,
		CreatedBy:    creatorID,
		Participants: participants,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	// Echo the persisted roster, not the request: the store deduplicates
	// participants on insert.
	roster, err := s.store.ListParticipants(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participant roster: %w", err)
	}

	s.invalidateListings(ctx)

	return &models.ConversationResponse{
		ID:           conv.ID,
		Subject:      conv.Subject,
		CreatedBy:    conv.CreatedBy,
		Participants: roster,
		CreatedAt:    conv.CreatedAt,
	}, nil
}

// ListForUser returns the user's inbox with last-message previews.
func (s *ConversationService) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) (*models.ListConversationsResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	listings, err := s.store.ListConversationsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	previews := lo.Map(listings, func(listing store.ConversationListing, _ int) models.ConversationPreview {
		preview := models.ConversationPreview{
			ID:        listing.Conversation.ID,
			Subject:   listing.Conversation.Subject,
			UpdatedAt: listing.Conversation.UpdatedAt,
		}
		if listing.LastMessage != nil {
			preview.LastMessage = &models.Message{
				ID:             listing.LastMessage.ID,
				ConversationID: listing.LastMessage.ConversationID,
				AuthorID:       listing.LastMessage.AuthorID,
				Content:        listing.LastMessage.Content,
				Kind:           listing.LastMessage.Kind,
				CreatedAt:      listing.LastMessage.CreatedAt,
			}
		}
		return preview
	})

	return &models.ListConversationsResponse{Conversations: previews}, nil
}

// Authorize verifies the conversation exists and the user participates in it.
func (s *ConversationService) Authorize(ctx context.Context, conversationID, userID uuid.UUID) error {
	if _, err := s.store.GetConversationByID(ctx, conversationID); err != nil {
		return err // store.ErrNotFound propagates as-is
	}
	ok, err := s.store.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("failed to check participant: %w", err)
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

// Messages returns a newest-first page of the conversation's live log.
func (s *ConversationService) Messages(ctx context.Context, conversationID, userID uuid.UUID, limit, offset int) (*models.MessagesPage, error) {
	if err := s.Authorize(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	msgs, hasMore, err := s.registry.Get(conversationID).History(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return &models.MessagesPage{Messages: msgs, HasMore: hasMore}, nil
}

// Send posts a message through the conversation's actor and persists the
// durable copy. Session delivery problems never fail the send; a persistence
// failure does, because the relational store is the system of record.
func (s *ConversationService) Send(ctx context.Context, conversationID, authorID uuid.UUID, content string, kind models.MessageKind) (*models.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrValidation)
	}
	if kind == "" {
		kind = models.KindText
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown message kind %q", ErrValidation, kind)
	}
	if err := s.Authorize(ctx, conversationID, authorID); err != nil {
		return nil, err
	}

	msg, err := s.registry.Get(conversationID).Post(ctx, authorID, content, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to post message: %w", err)
	}

	if err := s.store.InsertMessage(ctx, store.InsertMessageParams{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		AuthorID:       msg.AuthorID,
		Content:        msg.Content,
		Kind:           msg.Kind,
		CreatedAt:      msg.CreatedAt,
	}); err != nil {
		// Already broadcast to live sessions, but not durable; the caller
		// must know the system of record rejected it.
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	s.invalidateListings(ctx)
	return &msg, nil
}

// Typing relays an ephemeral typing signal through the conversation's actor.
func (s *ConversationService) Typing(ctx context.Context, conversationID, userID uuid.UUID, isTyping bool) error {
	return s.registry.Get(conversationID).Typing(ctx, userID, isTyping)
}

// MarkRead persists the read position, then broadcasts the receipt. A nil
// messageID marks the whole conversation as read. The persistence failure is
// surfaced; the broadcast is best-effort.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID, userID uuid.UUID, messageID *uuid.UUID) error {
	if err := s.Authorize(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.store.MarkRead(ctx, conversationID, userID, messageID); err != nil {
		return fmt.Errorf("failed to mark read: %w", err)
	}
	if err := s.registry.Get(conversationID).Read(ctx, userID, messageID); err != nil {
		log.Printf("WARN [ConversationService] MarkRead: broadcast failed for %s: %v", conversationID, err)
	}
	return nil
}

// Attach authorizes the user, builds a session around conn and attaches it to
// the conversation's actor. The caller owns the session afterwards.
func (s *ConversationService) Attach(ctx context.Context, conversationID, userID uuid.UUID, conn chat.Conn) (*chat.Session, error) {
	if err := s.Authorize(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	sess := chat.NewSession(userID, conn)
	if err := s.registry.Get(conversationID).Attach(ctx, sess); err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to attach session: %w", err)
	}
	return sess, nil
}

// Detach removes a previously attached session. Idempotent.
func (s *ConversationService) Detach(ctx context.Context, conversationID uuid.UUID, sess *chat.Session) {
	if err := s.registry.Get(conversationID).Detach(ctx, sess); err != nil {
		log.Printf("WARN [ConversationService] Detach: %v", err)
	}
}

func (s *ConversationService) invalidateListings(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "/v1/conversations"); err != nil {
		log.Printf("WARN [ConversationService] cache invalidation failed: %v", err)
	}
}

// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ugc-maroc-backend/internal/models"
	"ugc-maroc-backend/internal/store"
)

// Compile-time check to ensure FakeStore implements store.Store.
var _ store.Store = (*FakeStore)(nil)

// FakeStore is a mutex-guarded in-memory implementation of store.Store. It
// counts lookups so tests can observe whether caches short-circuited them.
type FakeStore struct {
	mu sync.Mutex

	users         map[uuid.UUID]models.User
	usersByEmail  map[string]uuid.UUID
	conversations map[uuid.UUID]models.Conversation
	participants  map[uuid.UUID][]uuid.UUID
	messages      map[uuid.UUID][]models.MessageRecord
	reads         map[string]*uuid.UUID

	// GetUserByIDCalls counts relational principal lookups.
	GetUserByIDCalls int

	// InsertMessageErr, when set, is returned by InsertMessage so tests can
	// simulate a persistence failure.
	InsertMessageErr error
}

// New creates an empty FakeStore.
func New() *FakeStore {
	return &FakeStore{
		users:         make(map[uuid.UUID]models.User),
		usersByEmail:  make(map[string]uuid.UUID),
		conversations: make(map[uuid.UUID]models.Conversation),
		participants:  make(map[uuid.UUID][]uuid.UUID),
		messages:      make(map[uuid.UUID][]models.MessageRecord),
		reads:         make(map[string]*uuid.UUID),
	}
}

func (s *FakeStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	u := *user
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = u
	s.usersByEmail[u.Email] = u.ID
	return nil
}

func (s *FakeStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.usersByEmail[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.users[id]
	return &user, nil
}

func (s *FakeStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetUserByIDCalls++
	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

// UserLookupCount reads GetUserByIDCalls under the store lock, for tests
// that observe it across goroutines.
func (s *FakeStore) UserLookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.GetUserByIDCalls
}

func (s *FakeStore) CreateConversation(_ context.Context, arg store.CreateConversationParams) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	conv := models.Conversation{
		ID:        arg.ID,
		Subject:   arg.Subject,
		CreatedBy: arg.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[conv.ID] = conv
	seen := make(map[uuid.UUID]struct{})
	for _, userID := range arg.Participants {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		s.participants[conv.ID] = append(s.participants[conv.ID], userID)
	}
	return &conv, nil
}

func (s *FakeStore) GetConversationByID(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &conv, nil
}

func (s *FakeStore) ListConversationsByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]store.ConversationListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var listings []store.ConversationListing
	for convID, members := range s.participants {
		for _, member := range members {
			if member != userID {
				continue
			}
			listing := store.ConversationListing{Conversation: s.conversations[convID]}
			if msgs := s.messages[convID]; len(msgs) > 0 {
				last := msgs[len(msgs)-1]
				listing.LastMessage = &last
			}
			listings = append(listings, listing)
			break
		}
	}
	sort.Slice(listings, func(i, j int) bool {
		return listings[i].Conversation.UpdatedAt.After(listings[j].Conversation.UpdatedAt)
	})

	if offset >= len(listings) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(listings) {
		end = len(listings)
	}
	return listings[offset:end], nil
}

func (s *FakeStore) ListParticipants(_ context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, store.ErrNotFound
	}
	return append([]uuid.UUID(nil), s.participants[conversationID]...), nil
}

func (s *FakeStore) IsParticipant(_ context.Context, conversationID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, member := range s.participants[conversationID] {
		if member == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *FakeStore) InsertMessage(_ context.Context, arg store.InsertMessageParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertMessageErr != nil {
		return s.InsertMessageErr
	}
	if _, ok := s.conversations[arg.ConversationID]; !ok {
		return store.ErrNotFound
	}
	s.messages[arg.ConversationID] = append(s.messages[arg.ConversationID], models.MessageRecord{
		ID:             arg.ID,
		ConversationID: arg.ConversationID,
		AuthorID:       arg.AuthorID,
		Content:        arg.Content,
		Kind:           arg.Kind,
		CreatedAt:      arg.CreatedAt,
	})
	conv := s.conversations[arg.ConversationID]
	conv.UpdatedAt = time.Now()
	s.conversations[arg.ConversationID] = conv
	return nil
}

func (s *FakeStore) ListRecentMessages(_ context.Context, conversationID uuid.UUID, limit int) ([]models.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.MessageRecord(nil), msgs...), nil
}

func (s *FakeStore) MarkRead(_ context.Context, conversationID, userID uuid.UUID, messageID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for _, member := range s.participants[conversationID] {
		if member == userID {
			found = true
			break
		}
	}
	if !found {
		return store.ErrNotFound
	}
	s.reads[conversationID.String()+":"+userID.String()] = messageID
	return nil
}

// LastRead returns the recorded read position for tests.
func (s *FakeStore) LastRead(conversationID, userID uuid.UUID) (*uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.reads[conversationID.String()+":"+userID.String()]
	return id, ok
}

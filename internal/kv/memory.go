package kv

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Compile-time check to ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

type memoryItem struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (it memoryItem) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && now.After(it.expiresAt)
}

// MemoryStore is a mutex-guarded in-memory Store with lazy TTL expiry,
// checked on read. It backs tests and deployments without a Badger path.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem

	// now is swappable so tests can step through TTL windows.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// SetClock replaces the store's time source. Test hook only.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok || item.expired(s.now()) {
		delete(s.items, key)
		return nil, ErrKeyNotFound
	}
	value := make([]byte, len(item.value))
	copy(value, item.value)
	return value, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = s.now().Add(ttl)
	}
	s.items[key] = item
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.items {
		if strings.HasPrefix(key, prefix) {
			delete(s.items, key)
		}
	}
	return nil
}

func (s *MemoryStore) Scan(_ context.Context, prefix string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var entries []Entry
	for key, item := range s.items {
		if !strings.HasPrefix(key, prefix) || item.expired(now) {
			continue
		}
		entries = append(entries, Entry{Key: key, Value: append([]byte(nil), item.value...)})
	}
	return entries, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	item, ok := s.items[key]
	if !ok || item.expired(now) {
		expiresAt := now.Add(ttl)
		s.items[key] = memoryItem{value: []byte("1"), expiresAt: expiresAt}
		return 1, expiresAt, nil
	}

	count, err := strconv.ParseInt(string(item.value), 10, 64)
	if err != nil {
		count = 0
	}
	count++
	item.value = []byte(strconv.FormatInt(count, 10))
	s.items[key] = item
	return count, item.expiresAt, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

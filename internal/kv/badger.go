package kv

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Compile-time check to ensure BadgerStore implements Store.
var _ Store = (*BadgerStore)(nil)

// incrementRetries bounds optimistic-transaction retries on write conflicts.
const incrementRetries = 8

// BadgerStore implements Store on top of an embedded BadgerDB instance,
// using Badger's native per-entry TTL for expiry.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a Badger database at path. An empty path
// opens an in-memory instance, useful for development and tests.
func NewBadgerStore(path string) (*BadgerStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil) // Badger's own logger is too chatty for request paths

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("badger get %q: %w", key, err)
	}
	return value, nil
}

func (s *BadgerStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("badger set %q: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("badger delete %q: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) DeletePrefix(_ context.Context, prefix string) error {
	if err := s.db.DropPrefix([]byte(prefix)); err != nil {
		return fmt.Errorf("badger drop prefix %q: %w", prefix, err)
	}
	return nil
}

func (s *BadgerStore) Scan(_ context.Context, prefix string) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			entries = append(entries, Entry{Key: string(item.Key()), Value: value})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger scan %q: %w", prefix, err)
	}
	return entries, nil
}

// Increment is a read-modify-write inside a single Badger transaction.
// Badger transactions are optimistic, so a concurrent increment of the same
// key surfaces as ErrConflict; retry until one of us wins.
func (s *BadgerStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, time.Time, error) {
	var (
		count     int64
		expiresAt time.Time
	)

	for attempt := 0; attempt < incrementRetries; attempt++ {
		err := s.db.Update(func(txn *badger.Txn) error {
			count = 1
			expiresAt = time.Now().Add(ttl)

			item, err := txn.Get([]byte(key))
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				// First hit in this window; fall through and create the counter.
			case err != nil:
				return err
			default:
				value, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				current, err := strconv.ParseInt(string(value), 10, 64)
				if err != nil {
					// Corrupt counter value; start the window over.
					log.Printf("WARN [BadgerStore] Increment: non-numeric counter at %q, resetting", key)
				} else {
					count = current + 1
					if exp := item.ExpiresAt(); exp > 0 {
						expiresAt = time.Unix(int64(exp), 0)
					}
				}
			}

			entry := badger.NewEntry([]byte(key), []byte(strconv.FormatInt(count, 10)))
			if remaining := time.Until(expiresAt); remaining > 0 {
				entry = entry.WithTTL(remaining)
			}
			return txn.SetEntry(entry)
		})
		if err == nil {
			return count, expiresAt, nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return 0, time.Time{}, fmt.Errorf("badger increment %q: %w", key, err)
		}
	}
	return 0, time.Time{}, fmt.Errorf("badger increment %q: too many conflicts", key)
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

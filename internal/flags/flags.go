package flags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"ugc-maroc-backend/internal/kv"
	"ugc-maroc-backend/internal/models"
	"ugc-maroc-backend/pkg/httputil"
)

const keyPrefix = "flag:"

// flagRecord is the stored shape of a feature flag.
type flagRecord struct {
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service reads and writes feature flags in the key-value store. Flags are
// global booleans mutated administratively and read on the request hot path.
type Service struct {
	store kv.Store
}

// NewService creates a flag service backed by the given store.
func NewService(store kv.Store) *Service {
	return &Service{store: store}
}

// Enabled reports whether the named feature is on. An absent flag means
// enabled, and a store failure also degrades to enabled: this layer never
// blocks a request because of its own malfunction.
func (s *Service) Enabled(ctx context.Context, name string) bool {
	value, err := s.store.Get(ctx, keyPrefix+name)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			log.Printf("WARN [Flags] Enabled(%s): store read failed, treating as enabled: %v", name, err)
		}
		return true
	}

	var rec flagRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		log.Printf("WARN [Flags] Enabled(%s): corrupt flag record, treating as enabled: %v", name, err)
		return true
	}
	return rec.Enabled
}

// Set writes the named flag. Flags never expire.
func (s *Service) Set(ctx context.Context, name string, enabled bool) (models.FlagResponse, error) {
	rec := flagRecord{Enabled: enabled, UpdatedAt: time.Now().UTC()}
	value, err := json.Marshal(rec)
	if err != nil {
		return models.FlagResponse{}, fmt.Errorf("marshaling flag %s: %w", name, err)
	}
	if err := s.store.Set(ctx, keyPrefix+name, value, 0); err != nil {
		return models.FlagResponse{}, fmt.Errorf("storing flag %s: %w", name, err)
	}
	return models.FlagResponse{Name: name, Enabled: rec.Enabled, UpdatedAt: rec.UpdatedAt}, nil
}

// Get returns the named flag as explicitly stored. Absence surfaces as
// kv.ErrKeyNotFound; only Enabled applies the absent-means-enabled default.
func (s *Service) Get(ctx context.Context, name string) (models.FlagResponse, error) {
	value, err := s.store.Get(ctx, keyPrefix+name)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return models.FlagResponse{}, fmt.Errorf("flag %s: %w", name, kv.ErrKeyNotFound)
		}
		return models.FlagResponse{}, fmt.Errorf("reading flag %s: %w", name, err)
	}

	var rec flagRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return models.FlagResponse{}, fmt.Errorf("decoding flag %s: %w", name, err)
	}
	return models.FlagResponse{Name: name, Enabled: rec.Enabled, UpdatedAt: rec.UpdatedAt}, nil
}

// List returns every explicitly stored flag.
func (s *Service) List(ctx context.Context) ([]models.FlagResponse, error) {
	entries, err := s.store.Scan(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("scanning flags: %w", err)
	}

	out := make([]models.FlagResponse, 0, len(entries))
	for _, entry := range entries {
		var rec flagRecord
		if err := json.Unmarshal(entry.Value, &rec); err != nil {
			log.Printf("WARN [Flags] List: skipping corrupt flag %s: %v", entry.Key, err)
			continue
		}
		out = append(out, models.FlagResponse{
			Name:      strings.TrimPrefix(entry.Key, keyPrefix),
			Enabled:   rec.Enabled,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	return out, nil
}

// Require returns middleware that short-circuits every request with 503 while
// the named feature flag is disabled.
func (s *Service) Require(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.Enabled(r.Context(), name) {
				httputil.RespondError(w, http.StatusServiceUnavailable, fmt.Sprintf("feature %q is currently disabled", name))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"ugc-maroc-backend/internal/kv"
)

const keyPrefix = "cache:"

// Default TTLs: short for volatile listings, longer for near-static entities
// fetched by id.
const (
	TTLVolatile = 5 * time.Minute
	TTLEntity   = time.Hour
)

// cachedResponse is the stored shape of a cacheable handler result. The full
// header map is kept so handler-set headers survive a hit.
type cachedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// Cache wraps idempotent read endpoints with the cache-aside pattern: serve
// from the key-value store when present, otherwise invoke the handler and
// populate the store with a TTL. Writes never pass through it.
type Cache struct {
	store kv.Store
}

// New creates a cache over the given store.
func New(store kv.Store) *Cache {
	return &Cache{store: store}
}

// Key derives the deterministic cache key for a request. url.Values.Encode
// sorts query parameters, so equivalent requests collapse to one key.
func Key(r *http.Request) string {
	return keyPrefix + r.URL.Path + "?" + r.URL.Query().Encode()
}

// Middleware returns cache-aside middleware storing successful GET responses
// for ttl. Store failures on both the read and the write path degrade to a
// plain cache miss; the wrapped handler always gets a chance to answer.
func (c *Cache) Middleware(ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := Key(r)
			if cached, ok := c.lookup(r.Context(), key); ok {
				for name, values := range cached.Header {
					w.Header()[name] = values
				}
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(cached.Status)
				if _, err := w.Write(cached.Body); err != nil {
					log.Printf("Error writing cached response for %s: %v", key, err)
				}
				return
			}

			rec := newRecorder(w)
			rec.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(rec, r)

			if rec.status >= 200 && rec.status < 300 {
				header := rec.Header().Clone()
				header.Del("X-Cache") // recomputed on replay
				c.populate(r.Context(), key, cachedResponse{
					Status: rec.status,
					Header: header,
					Body:   rec.body.Bytes(),
				}, ttl)
			}
		})
	}
}

// Invalidate removes every cached entry whose path starts with pathPrefix.
// Deletion is real (prefix drop on the store), not a best-effort no-op.
func (c *Cache) Invalidate(ctx context.Context, pathPrefix string) error {
	if err := c.store.DeletePrefix(ctx, keyPrefix+pathPrefix); err != nil {
		return fmt.Errorf("invalidating cache prefix %q: %w", pathPrefix, err)
	}
	return nil
}

func (c *Cache) lookup(ctx context.Context, key string) (cachedResponse, bool) {
	value, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			log.Printf("WARN [Cache] lookup: store read failed for %s, treating as miss: %v", key, err)
		}
		return cachedResponse{}, false
	}

	var cached cachedResponse
	if err := json.Unmarshal(value, &cached); err != nil {
		log.Printf("WARN [Cache] lookup: corrupt entry at %s, treating as miss: %v", key, err)
		return cachedResponse{}, false
	}
	return cached, true
}

func (c *Cache) populate(ctx context.Context, key string, resp cachedResponse, ttl time.Duration) {
	value, err := json.Marshal(resp)
	if err != nil {
		log.Printf("WARN [Cache] populate: marshal failed for %s: %v", key, err)
		return
	}
	if err := c.store.Set(ctx, key, value, ttl); err != nil {
		log.Printf("WARN [Cache] populate: store write failed for %s: %v", key, err)
	}
}

// recorder tees a handler's response so it can be cached while still being
// written to the client.
type recorder struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func newRecorder(w http.ResponseWriter) *recorder {
	return &recorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *recorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

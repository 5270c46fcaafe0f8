package ratelimit

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"ugc-maroc-backend/internal/kv"
)

// Bucket is an endpoint class with its own limit and window. Auth-sensitive
// paths get a stricter bucket, payment paths a moderate one.
type Bucket struct {
	Name   string
	Limit  int64
	Window time.Duration
}

// Config holds the three endpoint-class buckets.
type Config struct {
	Auth    Bucket
	Payment Bucket
	Default Bucket
}

// DefaultConfig gives the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		Auth:    Bucket{Name: "auth", Limit: 10, Window: time.Minute},
		Payment: Bucket{Name: "payment", Limit: 30, Window: time.Minute},
		Default: Bucket{Name: "default", Limit: 100, Window: time.Minute},
	}
}

// Result is the outcome of one rate-limit check.
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration // set when not allowed
}

// Limiter is a fixed-window request counter over the key-value store.
// The window resets through the store's TTL expiry rather than explicit
// rollover, so a client can burst up to twice the limit across a window
// boundary; that is an accepted property of the fixed-window design.
type Limiter struct {
	store kv.Store
	cfg   Config
}

// NewLimiter creates a limiter backed by the given store.
func NewLimiter(store kv.Store, cfg Config) *Limiter {
	return &Limiter{store: store, cfg: cfg}
}

// Classify maps a request path onto its endpoint-class bucket.
func (l *Limiter) Classify(path string) Bucket {
	switch {
	case strings.HasPrefix(path, "/v1/auth"):
		return l.cfg.Auth
	case strings.HasPrefix(path, "/v1/payments"):
		return l.cfg.Payment
	default:
		return l.cfg.Default
	}
}

// Check counts one request from clientID against path's bucket. A store
// failure degrades to "allow" — the limiter never rejects traffic because its
// own backend is down.
func (l *Limiter) Check(ctx context.Context, clientID, path string) Result {
	bucket := l.Classify(path)
	key := fmt.Sprintf("rl:%s:%s:%s", clientID, bucket.Name, path)

	count, expiresAt, err := l.store.Increment(ctx, key, bucket.Window)
	if err != nil {
		log.Printf("WARN [RateLimiter] Check: increment failed for %s, allowing request: %v", key, err)
		return Result{Allowed: true, Limit: bucket.Limit, Remaining: bucket.Limit, ResetAt: time.Now().Add(bucket.Window)}
	}

	result := Result{
		Limit:   bucket.Limit,
		ResetAt: expiresAt,
	}
	if count > bucket.Limit {
		result.Allowed = false
		result.Remaining = 0
		result.RetryAfter = time.Until(expiresAt)
		if result.RetryAfter < 0 {
			result.RetryAfter = 0
		}
		return result
	}

	result.Allowed = true
	result.Remaining = bucket.Limit - count
	return result
}

package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ugc-maroc-backend/internal/kv"
)

func testConfig() Config {
	return Config{
		Auth:    Bucket{Name: "auth", Limit: 5, Window: time.Minute},
		Payment: Bucket{Name: "payment", Limit: 3, Window: time.Minute},
		Default: Bucket{Name: "default", Limit: 100, Window: time.Minute},
	}
}

func TestFixedWindowExactLimit(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	now := time.Now()
	store.SetClock(func() time.Time { return now })

	limiter := NewLimiter(store, testConfig())

	// Exactly 5 requests succeed within the window.
	for i := 0; i < 5; i++ {
		result := limiter.Check(ctx, "10.0.0.1", "/v1/auth/login")
		require.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, int64(5-(i+1)), result.Remaining)
	}

	// The 6th is rejected with a positive retry-after within the window.
	result := limiter.Check(ctx, "10.0.0.1", "/v1/auth/login")
	require.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, result.RetryAfter, time.Minute)

	// After window expiry a new request succeeds and the counter resets to 1.
	now = now.Add(61 * time.Second)
	result = limiter.Check(ctx, "10.0.0.1", "/v1/auth/login")
	require.True(t, result.Allowed)
	assert.Equal(t, int64(4), result.Remaining)
}

func TestBucketsAreIndependentPerClientAndEndpoint(t *testing.T) {
	ctx := context.Background()
	limiter := NewLimiter(kv.NewMemoryStore(), testConfig())

	for i := 0; i < 3; i++ {
		require.True(t, limiter.Check(ctx, "10.0.0.1", "/v1/payments/checkout").Allowed)
	}
	assert.False(t, limiter.Check(ctx, "10.0.0.1", "/v1/payments/checkout").Allowed)

	// Other clients and other endpoints are untouched.
	assert.True(t, limiter.Check(ctx, "10.0.0.2", "/v1/payments/checkout").Allowed)
	assert.True(t, limiter.Check(ctx, "10.0.0.1", "/v1/conversations").Allowed)
}

func TestClassify(t *testing.T) {
	limiter := NewLimiter(kv.NewMemoryStore(), testConfig())

	assert.Equal(t, "auth", limiter.Classify("/v1/auth/login").Name)
	assert.Equal(t, "payment", limiter.Classify("/v1/payments/checkout").Name)
	assert.Equal(t, "default", limiter.Classify("/v1/conversations").Name)
}

func TestMiddlewareHeadersAndRejection(t *testing.T) {
	limiter := NewLimiter(kv.NewMemoryStore(), testConfig())

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var rec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		rec = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/payments/checkout", nil)
		req.RemoteAddr = "192.0.2.7:4242"
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/checkout", nil)
	req.RemoteAddr = "192.0.2.7:4242"
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "retry_after")
}

func TestClientIDFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	assert.Equal(t, "203.0.113.9", ClientID(req))

	req.RemoteAddr = "203.0.113.9" // RealIP strips the port
	assert.Equal(t, "203.0.113.9", ClientID(req))

	req.RemoteAddr = ""
	assert.Equal(t, "unknown", ClientID(req))
}

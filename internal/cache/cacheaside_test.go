package cache

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ugc-maroc-backend/internal/kv"
)

func TestCacheHitSkipsHandler(t *testing.T) {
	c := New(kv.NewMemoryStore())

	invocations := 0
	handler := c.Middleware(TTLVolatile)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		invocations++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"invocation":%d}`, invocations)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/v1/conversations?user_id=abc", nil))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/v1/conversations?user_id=abc", nil))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))

	// The handler ran exactly once and the replay is byte-identical.
	assert.Equal(t, 1, invocations)
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
}

func TestCacheHitReplaysHandlerHeaders(t *testing.T) {
	c := New(kv.NewMemoryStore())

	handler := c.Middleware(TTLVolatile)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Total-Count", "7")
		w.Header().Add("Link", `</v1/conversations?offset=20>; rel="next"`)
		w.Write([]byte(`[]`))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/conversations?user_id=abc", nil))

	hit := httptest.NewRecorder()
	handler.ServeHTTP(hit, httptest.NewRequest(http.MethodGet, "/v1/conversations?user_id=abc", nil))
	require.Equal(t, "HIT", hit.Header().Get("X-Cache"))
	assert.Equal(t, "7", hit.Header().Get("X-Total-Count"))
	assert.Equal(t, `</v1/conversations?offset=20>; rel="next"`, hit.Header().Get("Link"))
	assert.Equal(t, "application/json", hit.Header().Get("Content-Type"))
}

func TestQueryOrderDoesNotSplitKeys(t *testing.T) {
	r1 := httptest.NewRequest(http.MethodGet, "/v1/conversations?limit=10&offset=0", nil)
	r2 := httptest.NewRequest(http.MethodGet, "/v1/conversations?offset=0&limit=10", nil)
	assert.Equal(t, Key(r1), Key(r2))
}

func TestNonGetBypassesCache(t *testing.T) {
	c := New(kv.NewMemoryStore())

	invocations := 0
	handler := c.Middleware(TTLVolatile)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		invocations++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/conversations", nil))
		assert.Equal(t, http.StatusCreated, rec.Code)
	}
	assert.Equal(t, 2, invocations)
}

func TestErrorResponsesAreNotCached(t *testing.T) {
	c := New(kv.NewMemoryStore())

	invocations := 0
	handler := c.Middleware(TTLVolatile)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		invocations++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/conversations", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	}
	assert.Equal(t, 2, invocations)
}

func TestTTLExpiryReinvokesHandler(t *testing.T) {
	store := kv.NewMemoryStore()
	now := time.Now()
	store.SetClock(func() time.Time { return now })
	c := New(store)

	invocations := 0
	handler := c.Middleware(30*time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		invocations++
		w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/x", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/x", nil))
	assert.Equal(t, 1, invocations)

	now = now.Add(31 * time.Second)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/x", nil))
	assert.Equal(t, 2, invocations)
}

func TestInvalidateByPrefix(t *testing.T) {
	store := kv.NewMemoryStore()
	c := New(store)

	invocations := 0
	handler := c.Middleware(TTLVolatile)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		invocations++
		w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/conversations?user_id=a", nil))
	require.NoError(t, c.Invalidate(context.Background(), "/v1/conversations"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/conversations?user_id=a", nil))
	assert.Equal(t, 2, invocations)
}

package flags

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ugc-maroc-backend/internal/kv"
)

func TestEnabledDefaultsToTrue(t *testing.T) {
	svc := NewService(kv.NewMemoryStore())
	assert.True(t, svc.Enabled(context.Background(), "chat"))
}

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	svc := NewService(kv.NewMemoryStore())

	_, err := svc.Set(ctx, "chat", false)
	require.NoError(t, err)
	assert.False(t, svc.Enabled(ctx, "chat"))

	flag, err := svc.Get(ctx, "chat")
	require.NoError(t, err)
	assert.False(t, flag.Enabled)
	assert.False(t, flag.UpdatedAt.IsZero())

	_, err = svc.Set(ctx, "chat", true)
	require.NoError(t, err)
	assert.True(t, svc.Enabled(ctx, "chat"))
}

func TestGetAbsentFlagSurfacesNotFound(t *testing.T) {
	svc := NewService(kv.NewMemoryStore())

	_, err := svc.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	svc := NewService(kv.NewMemoryStore())

	_, err := svc.Set(ctx, "chat", true)
	require.NoError(t, err)
	_, err = svc.Set(ctx, "payments", false)
	require.NoError(t, err)

	flags, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, flags, 2)
}

func TestRequireMiddlewareShortCircuits(t *testing.T) {
	ctx := context.Background()
	svc := NewService(kv.NewMemoryStore())

	invoked := 0
	handler := svc.Require("chat")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		invoked++
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/conversations", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, invoked)

	_, err := svc.Set(ctx, "chat", false)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/conversations", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 1, invoked)
}

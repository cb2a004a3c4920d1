package ratelimit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rakhadjo/payverify/internal/ratelimit"
)

func newLimiter(t *testing.T) ratelimit.SlidingWindow {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return ratelimit.SlidingWindow{Client: client, Prefix: "rl:test:"}
}

func TestAllowWithinLimit(t *testing.T) {
	limiter := newLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, _, err := limiter.Allow(ctx, "1.2.3.4", time.Minute, 3)
		require.NoError(t, err)
		require.Truef(t, allowed, "request %d should pass", i+1)
	}
	allowed, remaining, _, err := limiter.Allow(ctx, "1.2.3.4", time.Minute, 3)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)
}

func TestAllowKeysAreIndependent(t *testing.T) {
	limiter := newLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, _, err := limiter.Allow(ctx, "1.2.3.4", time.Minute, 1)
		require.NoError(t, err)
	}
	allowed, _, _, err := limiter.Allow(ctx, "5.6.7.8", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestAllowDisabledWithoutClient(t *testing.T) {
	allowed, _, _, err := ratelimit.SlidingWindow{}.Allow(context.Background(), "k", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestMiddlewareBlocksOverLimit(t *testing.T) {
	limiter := newLimiter(t)
	keyFn := func(*http.Request) string { return "client" }
	handler := ratelimit.Middleware(limiter, keyFn, time.Minute, 2, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	var rec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	}
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestMiddlewareFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := ratelimit.SlidingWindow{Client: client, Prefix: "rl:test:"}
	mr.Close()

	var sawErr error
	handler := ratelimit.Middleware(limiter, func(*http.Request) string { return "client" }, time.Minute, 1, func(err error) {
		sawErr = err
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Error(t, sawErr)
}

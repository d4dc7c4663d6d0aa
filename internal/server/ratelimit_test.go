package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestTerracare_Server_RateLimiter(t *testing.T) {
	t.Parallel()

	t.Run("denies once the burst is spent", func(t *testing.T) {
		t.Parallel()
		rl := NewRateLimiter(rate.Every(time.Minute), 2)
		defer rl.Stop()

		allowed, _ := rl.AllowWithRetry("token-a")
		require.True(t, allowed)
		allowed, _ = rl.AllowWithRetry("token-a")
		require.True(t, allowed)

		allowed, retryAfter := rl.AllowWithRetry("token-a")
		require.False(t, allowed)
		require.Greater(t, retryAfter, time.Duration(0))
	})

	t.Run("tokens are limited independently", func(t *testing.T) {
		t.Parallel()
		rl := NewRateLimiter(rate.Every(time.Minute), 1)
		defer rl.Stop()

		allowed, _ := rl.AllowWithRetry("token-a")
		require.True(t, allowed)
		allowed, _ = rl.AllowWithRetry("token-a")
		require.False(t, allowed)

		allowed, _ = rl.AllowWithRetry("token-b")
		require.True(t, allowed)
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		t.Parallel()
		rl := NewRateLimiter(rate.Every(time.Second), 1)
		rl.Stop()
		rl.Stop()
	})
}

func TestTerracare_Server_RateLimitMiddleware(t *testing.T) {
	t.Parallel()

	// 10 requests/minute gives a burst of 2, so the third immediate
	// request must be rejected.
	h := newAPIHarnessRPM(t, 10)

	for i := 0; i < 2; i++ {
		rec := h.do(t, "member-token", http.MethodGet, "/api/supply", nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}

	rec := h.do(t, "member-token", http.MethodGet, "/api/supply", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	got := decodeJSON[RateLimitError](t, rec)
	require.Equal(t, "rate_limit_exceeded", got.Error)
	require.GreaterOrEqual(t, got.RetryAfter, 1)

	// Other tokens still have their own budget.
	rec = h.do(t, "admin-token", http.MethodGet, "/api/supply", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

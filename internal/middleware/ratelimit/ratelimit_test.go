package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_Window(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 2})
	defer rl.Stop()

	now := time.Now()
	assert.True(t, rl.allowAt("1.1.1.1", now))
	assert.True(t, rl.allowAt("1.1.1.1", now.Add(time.Second)))
	assert.False(t, rl.allowAt("1.1.1.1", now.Add(2*time.Second)))
	assert.True(t, rl.allowAt("2.2.2.2", now.Add(2*time.Second)), "other clients are independent")

	assert.True(t, rl.allowAt("1.1.1.1", now.Add(61*time.Second)), "a new window starts after a minute")
	assert.Equal(t, int64(1), rl.GetMetrics().Rejected)
}

func TestLimiter_CleanupStaleEntries(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 10})
	defer rl.Stop()

	now := time.Now()
	rl.allowAt("1.1.1.1", now.Add(-11*time.Minute))
	rl.allowAt("2.2.2.2", now)

	rl.cleanupStaleEntries(now)
	assert.Equal(t, 1, rl.ActiveClients())
}

func TestLimiter_MiddlewareOnlyLimitsWrites(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 1, Methods: []string{http.MethodPut}})
	defer rl.Stop()

	h := rl.Middleware(func(*http.Request) string { return "1.1.1.1" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)

	serve := func(method string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, "/api/periods/2024-2026/contributions", nil))
		return rr
	}

	assert.Equal(t, http.StatusNoContent, serve(http.MethodPut).Code)
	rr := serve(http.MethodPut)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusNoContent, serve(http.MethodGet).Code)
}

func TestLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewLimiter(DefaultConfig())
	rl.Stop()
	rl.Stop()
}

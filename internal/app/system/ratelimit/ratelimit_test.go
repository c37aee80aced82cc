package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int, d time.Duration) (*Limiter, *time.Time) {
	t.Helper()
	l := New(limit, d)
	t.Cleanup(l.Stop)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllow_WindowResets(t *testing.T) {
	l, now := newTestLimiter(t, 2, time.Minute)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys are independent")
	assert.Equal(t, 0, l.Remaining("a"))
	assert.Equal(t, time.Minute, l.RetryAfter("a"))

	*now = now.Add(time.Minute + time.Second)
	assert.True(t, l.Allow("a"))
	assert.Equal(t, 1, l.Remaining("a"))
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute)
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))

	l.Reset("a")
	assert.True(t, l.Allow("a"))
}

func TestSweep(t *testing.T) {
	l, now := newTestLimiter(t, 1, time.Minute)
	l.Allow("a")
	*now = now.Add(2 * time.Minute)
	l.sweep()
	assert.Empty(t, l.windows)
}

func TestStop_Idempotent(t *testing.T) {
	l := New(1, time.Minute)
	l.Stop()
	l.Stop()
}

func TestMiddleware(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Middleware(l, func(r *http.Request) string { return r.Header.Get("X-User-ID") })(ok)

	serve := func(user, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		if user != "" {
			req.Header.Set("X-User-ID", user)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, serve("7", "10.0.0.1:1").Code)
	rec := serve("7", "10.0.0.2:1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "61", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limited")

	assert.Equal(t, http.StatusOK, serve("8", "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusOK, serve("", "10.0.0.1:1").Code, "anonymous requests are keyed by IP")
	assert.Equal(t, http.StatusTooManyRequests, serve("", "10.0.0.1:2").Code)
}

func TestMiddleware_NilLimiter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Middleware(nil, nil)(ok)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "9.9.9.9:80", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": " 5.6.7.8 "}, "9.9.9.9:80", "5.6.7.8"},
		{"remote with port", nil, "9.9.9.9:80", "9.9.9.9"},
		{"remote without port", nil, "9.9.9.9", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

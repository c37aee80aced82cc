package syncapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireCaller(t *testing.T) {
	var got int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = Caller(r)
		w.WriteHeader(http.StatusTeapot)
	})
	h := RequireCaller(next)

	tests := []struct {
		header string
		status int
		caller int64
	}{
		{"", http.StatusUnauthorized, 0},
		{"abc", http.StatusUnauthorized, 0},
		{"-4", http.StatusUnauthorized, 0},
		{"42", http.StatusTeapot, 42},
	}
	for _, tt := range tests {
		got = 0
		req := httptest.NewRequest("GET", "/sync/users/42/joined_groups", nil)
		if tt.header != "" {
			req.Header.Set(CallerHeader, tt.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, tt.status, rec.Code, "header %q", tt.header)
		assert.Equal(t, tt.caller, got, "header %q", tt.header)
	}
}

func TestLastKnown(t *testing.T) {
	req := httptest.NewRequest("GET", "/x", nil)
	v, err := lastKnown(req)
	require.NoError(t, err)
	assert.Nil(t, v)

	req = httptest.NewRequest("GET", "/x?version=2024-03-01T12:00:00.123Z", nil)
	v, err = lastKnown(req)
	require.NoError(t, err)
	assert.True(t, v.Equal(time.Date(2024, 3, 1, 12, 0, 0, 123e6, time.UTC)))

	req = httptest.NewRequest("GET", "/x?version=1709294400123", nil)
	v, err = lastKnown(req)
	require.NoError(t, err)
	assert.Equal(t, int64(1709294400123), v.UnixMilli())

	req = httptest.NewRequest("GET", "/x?version=yesterday", nil)
	_, err = lastKnown(req)
	assert.Error(t, err)
}

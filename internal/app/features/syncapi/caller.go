// internal/app/features/syncapi/caller.go
package syncapi

import (
	"context"
	"net/http"
	"strconv"
)

// CallerHeader carries the authenticated user ID. Authentication happens
// upstream; this service trusts the header.
const CallerHeader = "X-User-ID"

type callerKey struct{}

// RequireCaller rejects requests without a valid caller ID and stores the
// ID in the request context.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(CallerHeader), 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusUnauthorized, errorBody{
				Error:   "unauthenticated",
				Message: "missing or invalid " + CallerHeader + " header",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, id)))
	})
}

// Caller returns the user ID stored by RequireCaller.
func Caller(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(callerKey{}).(int64)
	return id, ok
}

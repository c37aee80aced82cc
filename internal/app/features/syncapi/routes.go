// internal/app/features/syncapi/routes.go
package syncapi

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/grouphub/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
)

// Routes returns the sync subrouter, mounted under /sync. Every route needs
// the caller identity set by the upstream gateway. Polling is limited per
// caller when limiter is non-nil.
func Routes(h *Handler, limiter *ratelimit.Limiter) chi.Router {
	r := chi.NewRouter()
	r.Use(RequireCaller)
	r.Use(ratelimit.Middleware(limiter, rateKey))

	r.Get("/groups/{groupID}/{resource}", h.ServeGroupResource)
	r.Get("/users/{userID}/{resource}", h.ServeUserResource)
	return r
}

func rateKey(r *http.Request) string {
	id, ok := Caller(r)
	if !ok {
		return ""
	}
	return "user:" + strconv.FormatInt(id, 10)
}

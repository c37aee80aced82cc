// internal/app/features/syncapi/user.go
package syncapi

import (
	"net/http"

	"github.com/dalemusser/grouphub/internal/app/system/grouperr"
	"github.com/dalemusser/grouphub/internal/app/system/timeouts"
	"github.com/dalemusser/grouphub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// ServeUserResource handles GET /sync/users/{userID}/{resource}. Users may
// only read their own resources. joined_groups returns group documents,
// or just the IDs with ?ids=true.
func (h *Handler) ServeUserResource(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Read(), h.Log, "sync user resource")
	defer cancel()

	caller, _ := Caller(r)
	userID, err := pathID(chi.URLParam(r, "userID"), "user id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if userID != caller {
		h.writeError(w, r, grouperr.New(grouperr.Authorization, grouperr.ReasonForeignUserScope,
			"user %d cannot read resources of user %d", caller, userID))
		return
	}
	since, err := lastKnown(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	gw := h.Gateway
	switch models.VersionResource(chi.URLParam(r, "resource")) {
	case models.UserSentGroupInvitationsVersion:
		res, err := gw.SentInvitations(ctx, userID, since)
		serve(h, w, r, res, err)
	case models.UserReceivedGroupInvitationsVersion:
		res, err := gw.ReceivedInvitations(ctx, userID, since)
		serve(h, w, r, res, err)
	case models.UserGroupJoinRequestsVersion:
		res, err := gw.UserJoinRequests(ctx, userID, since)
		serve(h, w, r, res, err)
	case models.UserJoinedGroupsVersion:
		if r.URL.Query().Get("ids") == "true" {
			res, err := gw.JoinedGroupIDs(ctx, userID, since)
			serve(h, w, r, res, err)
			return
		}
		res, err := gw.JoinedGroups(ctx, userID, since)
		serve(h, w, r, res, err)
	default:
		h.writeError(w, r, grouperr.New(grouperr.NotFound, grouperr.ReasonUnknownResource,
			"unknown user resource %q", chi.URLParam(r, "resource")))
	}
}

// internal/app/features/syncapi/group.go
package syncapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/grouphub/internal/app/services/syncgateway"
	"github.com/dalemusser/grouphub/internal/app/system/grouperr"
	"github.com/dalemusser/grouphub/internal/app/system/timeouts"
	"github.com/dalemusser/grouphub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

var groupAccess = map[models.VersionResource]syncgateway.Access{
	models.GroupInfoVersion:          syncgateway.Public,
	models.GroupJoinQuestionsVersion: syncgateway.Public,
	models.GroupMembersVersion:       syncgateway.Members,
	models.GroupBlacklistVersion:     syncgateway.Moderators,
	models.GroupInvitationsVersion:   syncgateway.Moderators,
	models.GroupJoinRequestsVersion:  syncgateway.Moderators,
}

// ServeGroupResource handles GET /sync/groups/{groupID}/{resource}.
//
// Group info and join questions are public (accepted answers only go to
// the owner and managers), members need membership, and the blacklist and
// pending requests need the owner or a manager.
func (h *Handler) ServeGroupResource(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Read(), h.Log, "sync group resource")
	defer cancel()

	caller, _ := Caller(r)
	groupID, err := pathID(chi.URLParam(r, "groupID"), "group id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	since, err := lastKnown(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resource := models.VersionResource(chi.URLParam(r, "resource"))
	access, ok := groupAccess[resource]
	if !ok {
		h.writeError(w, r, grouperr.New(grouperr.NotFound, grouperr.ReasonUnknownResource,
			"unknown group resource %q", resource))
		return
	}
	if err := h.Gateway.Authorize(ctx, caller, groupID, access); err != nil {
		h.writeError(w, r, err)
		return
	}

	gw := h.Gateway
	switch resource {
	case models.GroupInfoVersion:
		res, err := gw.GroupInfo(ctx, groupID, since)
		serve(h, w, r, res, err)
	case models.GroupMembersVersion:
		res, err := gw.Members(ctx, groupID, since)
		serve(h, w, r, res, err)
	case models.GroupBlacklistVersion:
		res, err := gw.BlockedUserIDs(ctx, groupID, since)
		serve(h, w, r, res, err)
	case models.GroupInvitationsVersion:
		res, err := gw.GroupInvitations(ctx, groupID, since)
		serve(h, w, r, res, err)
	case models.GroupJoinRequestsVersion:
		res, err := gw.GroupJoinRequests(ctx, groupID, since)
		serve(h, w, r, res, err)
	case models.GroupJoinQuestionsVersion:
		h.serveJoinQuestions(ctx, w, r, caller, groupID, since)
	}
}

func (h *Handler) serveJoinQuestions(ctx context.Context, w http.ResponseWriter, r *http.Request, caller, groupID int64, since *time.Time) {
	withAnswers, err := h.Gateway.IsModerator(ctx, groupID, caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.Gateway.JoinQuestions(ctx, groupID, withAnswers, since)
	serve(h, w, r, res, err)
}

// serve writes a gateway call's result, or its error.
func serve[T any](h *Handler, w http.ResponseWriter, r *http.Request, res syncgateway.Result[T], err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

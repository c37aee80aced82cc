package lifecycle

import (
	"context"
	"time"

	"github.com/dalemusser/grouphub/internal/app/policy/grouppolicy"
	"github.com/dalemusser/grouphub/internal/app/services/svcutil"
	membershipstore "github.com/dalemusser/grouphub/internal/app/store/memberships"
	"github.com/dalemusser/grouphub/internal/app/system/grouperr"
	"github.com/dalemusser/grouphub/internal/app/system/ids"
	"github.com/dalemusser/grouphub/internal/app/system/inputval"
	"github.com/dalemusser/grouphub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// NewJoinRequest is the payload of a join request.
type NewJoinRequest struct {
	GroupID     int64  `json:"group_id" validate:"required"`
	RequesterID int64  `json:"requester_id" validate:"required"`
	Content     string `json:"content"`
}

// JoinRequestResult is returned by every join request operation.
// VersionErr has the same meaning as on InvitationResult.
type JoinRequestResult struct {
	Request         models.GroupJoinRequest
	Joined          bool
	AffectedUserIDs []int64
	VersionErr      error
}

// CreateJoinRequest stores a PENDING join request without authorization
// checks.
func (s *Service) CreateJoinRequest(ctx context.Context, in NewJoinRequest) (JoinRequestResult, error) {
	if err := inputval.Validate(in); err != nil {
		return JoinRequestResult{}, err
	}
	if err := s.checkContent(in.Content); err != nil {
		return JoinRequestResult{}, err
	}

	ctx, rec := svcutil.Track(ctx)
	now := s.now().UTC().Truncate(time.Millisecond)
	req := models.GroupJoinRequest{
		ID:          s.ids.NextID(ids.KindJoinRequest),
		GroupID:     in.GroupID,
		RequesterID: in.RequesterID,
		Content:     in.Content,
		RequestState: models.RequestState{
			Status:         models.RequestPending,
			CreationDate:   now,
			ExpirationDate: s.expiration(s.cfg.JoinRequestTTL, now),
		},
	}
	if err := s.joinRequests.Insert(ctx, req); err != nil {
		return JoinRequestResult{}, err
	}
	s.bumpJoinRequest(ctx, req)

	return JoinRequestResult{Request: req, AffectedUserIDs: s.moderators(ctx, req.GroupID), VersionErr: rec.Err()}, nil
}

// AuthAndCreateJoinRequest checks that the requester is not blocked, that
// the group's join strategy takes requests, and that the requester is not
// already a member. Nothing is written when a check fails.
func (s *Service) AuthAndCreateJoinRequest(ctx context.Context, in NewJoinRequest) (JoinRequestResult, error) {
	if err := inputval.Validate(in); err != nil {
		return JoinRequestResult{}, err
	}
	g, err := svcutil.AliveGroup(ctx, s.groups, in.GroupID)
	if err != nil {
		return JoinRequestResult{}, err
	}

	blocked, err := s.blocks.IsBlocked(ctx, g.ID, in.RequesterID)
	if err != nil {
		return JoinRequestResult{}, err
	}
	if blocked {
		return JoinRequestResult{}, grouperr.New(grouperr.Authorization, grouperr.ReasonUserBlocked,
			"user %d is blocked from group %d", in.RequesterID, g.ID)
	}

	gt, err := svcutil.GroupType(ctx, s.types, g)
	if err != nil {
		return JoinRequestResult{}, err
	}
	if !grouppolicy.AllowsJoin(gt.JoinStrategy, grouppolicy.JoinByRequest) {
		return JoinRequestResult{}, grouperr.New(grouperr.Authorization, grouperr.ReasonJoinRequestNotAllowed,
			"join strategy %s does not take requests", gt.JoinStrategy)
	}

	member, err := s.members.Exists(ctx, g.ID, in.RequesterID)
	if err != nil {
		return JoinRequestResult{}, err
	}
	if member {
		return JoinRequestResult{}, grouperr.New(grouperr.AlreadyMember, grouperr.ReasonAlreadyMember,
			"user %d is already a member of group %d", in.RequesterID, g.ID)
	}

	return s.CreateJoinRequest(ctx, in)
}

// RecallJoinRequest cancels a pending join request. Only the requester may
// recall it.
func (s *Service) RecallJoinRequest(ctx context.Context, actorID, requestID int64) (JoinRequestResult, error) {
	req, err := s.joinRequests.Get(ctx, requestID)
	if err != nil {
		return JoinRequestResult{}, svcutil.RequestErr(err)
	}
	if req.RequesterID != actorID {
		return JoinRequestResult{}, grouperr.New(grouperr.Authorization, grouperr.ReasonNotRequester,
			"user %d did not send join request %d", actorID, requestID)
	}

	ctx, rec := svcutil.Track(ctx)
	updated, err := s.joinRequests.Transition(ctx, requestID, models.RequestCanceled, nil)
	if err != nil {
		return JoinRequestResult{}, svcutil.RequestErr(err)
	}
	s.bumpJoinRequest(ctx, updated)

	return JoinRequestResult{Request: updated, AffectedUserIDs: s.moderators(ctx, updated.GroupID), VersionErr: rec.Err()}, nil
}

// RespondJoinRequest records a moderator's answer. ACCEPT adds the
// requester as a MEMBER in the same transaction as the status change.
func (s *Service) RespondJoinRequest(ctx context.Context, responderID, requestID int64, action Action) (JoinRequestResult, error) {
	status, ok := actionStatus[action]
	if !ok {
		return JoinRequestResult{}, grouperr.New(grouperr.Validation, grouperr.ReasonInvalidAction,
			"unknown response action %q", action)
	}

	req, err := s.joinRequests.Get(ctx, requestID)
	if err != nil {
		return JoinRequestResult{}, svcutil.RequestErr(err)
	}
	if err := svcutil.RequireModerator(ctx, s.members, req.GroupID, responderID); err != nil {
		return JoinRequestResult{}, err
	}

	ctx, rec := svcutil.Track(ctx)
	var updated models.GroupJoinRequest
	err = s.runTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.joinRequests.Transition(ctx, requestID, status, bson.M{"responder_id": responderID})
		if err != nil {
			return svcutil.RequestErr(err)
		}
		if action != Accept {
			return nil
		}
		_, err = s.members.Add(ctx, req.GroupID, membershipstore.NewMember{
			UserID: req.RequesterID,
			Role:   models.RoleMember,
		})
		return svcutil.MemberErr(err)
	})
	if err != nil {
		return JoinRequestResult{}, err
	}
	s.bumpJoinRequest(ctx, updated)

	if action == Accept {
		s.log.Info("join request accepted",
			zap.Int64("group_id", req.GroupID),
			zap.Int64("user_id", req.RequesterID),
			zap.Int64("responder_id", responderID))
	}
	return JoinRequestResult{
		Request:         updated,
		Joined:          action == Accept,
		AffectedUserIDs: []int64{updated.RequesterID},
		VersionErr:      rec.Err(),
	}, nil
}

// JoinRequest returns one join request with lazy expiration applied.
func (s *Service) JoinRequest(ctx context.Context, id int64) (models.GroupJoinRequest, error) {
	req, err := s.joinRequests.Get(ctx, id)
	return req, svcutil.RequestErr(err)
}

func (s *Service) bumpJoinRequest(ctx context.Context, req models.GroupJoinRequest) {
	s.bumpGroup(ctx, req.GroupID, models.GroupJoinRequestsVersion)
	s.bumpUser(ctx, req.RequesterID, models.UserGroupJoinRequestsVersion)
}

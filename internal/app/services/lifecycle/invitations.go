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
	"go.uber.org/zap"
)

// NewInvitation is the payload of an invitation.
type NewInvitation struct {
	GroupID   int64  `json:"group_id" validate:"required"`
	InviterID int64  `json:"inviter_id" validate:"required"`
	InviteeID int64  `json:"invitee_id" validate:"required,nefield=InviterID"`
	Content   string `json:"content"`
}

// InvitationResult is returned by every invitation operation.
// AffectedUserIDs lists the users the notification layer should tell.
// VersionErr is set when the change was stored but a version stamp failed,
// so sync clients may not see it until the next stamp.
type InvitationResult struct {
	Invitation      models.GroupInvitation
	Joined          bool
	AffectedUserIDs []int64
	VersionErr      error
}

// CreateInvitation stores a PENDING invitation without authorization
// checks. Use AuthAndCreateInvitation for user-initiated invitations.
func (s *Service) CreateInvitation(ctx context.Context, in NewInvitation) (InvitationResult, error) {
	if err := inputval.Validate(in); err != nil {
		return InvitationResult{}, err
	}
	if err := s.checkContent(in.Content); err != nil {
		return InvitationResult{}, err
	}

	ctx, rec := svcutil.Track(ctx)
	now := s.now().UTC().Truncate(time.Millisecond)
	inv := models.GroupInvitation{
		ID:        s.ids.NextID(ids.KindInvitation),
		GroupID:   in.GroupID,
		InviterID: in.InviterID,
		InviteeID: in.InviteeID,
		Content:   in.Content,
		RequestState: models.RequestState{
			Status:         models.RequestPending,
			CreationDate:   now,
			ExpirationDate: s.expiration(s.cfg.InvitationTTL, now),
		},
	}
	if err := s.invitations.Insert(ctx, inv); err != nil {
		return InvitationResult{}, err
	}

	s.bumpInvitation(ctx, inv)
	return InvitationResult{Invitation: inv, AffectedUserIDs: []int64{inv.InviteeID}, VersionErr: rec.Err()}, nil
}

// AuthAndCreateInvitation creates an invitation after checking that the
// group's invitation strategy admits the inviter's role and requires the
// invitee's approval, and that the invitee is neither a member nor blocked.
func (s *Service) AuthAndCreateInvitation(ctx context.Context, in NewInvitation) (InvitationResult, error) {
	if err := inputval.Validate(in); err != nil {
		return InvitationResult{}, err
	}
	g, err := svcutil.AliveGroup(ctx, s.groups, in.GroupID)
	if err != nil {
		return InvitationResult{}, err
	}
	gt, err := svcutil.GroupType(ctx, s.types, g)
	if err != nil {
		return InvitationResult{}, err
	}

	role, err := s.members.Role(ctx, g.ID, in.InviterID)
	if err != nil {
		return InvitationResult{}, err
	}
	if !grouppolicy.CanInvite(gt.InvitationStrategy, role) {
		return InvitationResult{}, grouperr.New(grouperr.Authorization, grouperr.ReasonInvitationNotAllowed,
			"strategy %s does not allow role %q to invite", gt.InvitationStrategy, role)
	}
	if !grouppolicy.InvitationRequiresApproval(gt.InvitationStrategy) {
		return InvitationResult{}, grouperr.New(grouperr.Authorization, grouperr.ReasonApprovalNotRequired,
			"strategy %s adds members directly; invitations are not used", gt.InvitationStrategy)
	}

	blocked, err := s.blocks.IsBlocked(ctx, g.ID, in.InviteeID)
	if err != nil {
		return InvitationResult{}, err
	}
	if blocked {
		return InvitationResult{}, grouperr.New(grouperr.Authorization, grouperr.ReasonUserBlocked,
			"user %d is blocked from group %d", in.InviteeID, g.ID)
	}
	member, err := s.members.Exists(ctx, g.ID, in.InviteeID)
	if err != nil {
		return InvitationResult{}, err
	}
	if member {
		return InvitationResult{}, grouperr.New(grouperr.AlreadyMember, grouperr.ReasonAlreadyMember,
			"user %d is already a member of group %d", in.InviteeID, g.ID)
	}

	return s.CreateInvitation(ctx, in)
}

// RecallInvitation cancels a pending invitation. The inviter, the group's
// owner and its managers may recall.
func (s *Service) RecallInvitation(ctx context.Context, actorID, invitationID int64) (InvitationResult, error) {
	inv, err := s.invitations.Get(ctx, invitationID)
	if err != nil {
		return InvitationResult{}, svcutil.RequestErr(err)
	}
	if inv.InviterID != actorID {
		if err := svcutil.RequireModerator(ctx, s.members, inv.GroupID, actorID); err != nil {
			return InvitationResult{}, err
		}
	}

	ctx, rec := svcutil.Track(ctx)
	updated, err := s.invitations.Transition(ctx, invitationID, models.RequestCanceled, nil)
	if err != nil {
		return InvitationResult{}, svcutil.RequestErr(err)
	}

	s.bumpInvitation(ctx, updated)
	return InvitationResult{Invitation: updated, AffectedUserIDs: []int64{updated.InviteeID}, VersionErr: rec.Err()}, nil
}

// RespondInvitation records the invitee's answer. ACCEPT adds the invitee
// as a MEMBER in the same transaction as the status change.
func (s *Service) RespondInvitation(ctx context.Context, actorID, invitationID int64, action Action) (InvitationResult, error) {
	status, ok := actionStatus[action]
	if !ok {
		return InvitationResult{}, grouperr.New(grouperr.Validation, grouperr.ReasonInvalidAction,
			"unknown response action %q", action)
	}

	inv, err := s.invitations.Get(ctx, invitationID)
	if err != nil {
		return InvitationResult{}, svcutil.RequestErr(err)
	}
	if inv.InviteeID != actorID {
		return InvitationResult{}, grouperr.New(grouperr.Authorization, grouperr.ReasonNotInvitee,
			"user %d is not the invitee", actorID)
	}

	ctx, rec := svcutil.Track(ctx)
	var updated models.GroupInvitation
	err = s.runTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.invitations.Transition(ctx, invitationID, status, nil)
		if err != nil {
			return svcutil.RequestErr(err)
		}
		if action != Accept {
			return nil
		}
		_, err = s.members.Add(ctx, inv.GroupID, membershipstore.NewMember{
			UserID: inv.InviteeID,
			Role:   models.RoleMember,
		})
		return svcutil.MemberErr(err)
	})
	if err != nil {
		return InvitationResult{}, err
	}

	s.bumpInvitation(ctx, updated)
	res := InvitationResult{
		Invitation:      updated,
		Joined:          action == Accept,
		AffectedUserIDs: []int64{updated.InviterID},
		VersionErr:      rec.Err(),
	}
	if res.Joined {
		s.log.Info("invitation accepted",
			zap.Int64("group_id", inv.GroupID), zap.Int64("user_id", inv.InviteeID))
	}
	return res, nil
}

// Invitation returns one invitation with lazy expiration applied.
func (s *Service) Invitation(ctx context.Context, id int64) (models.GroupInvitation, error) {
	inv, err := s.invitations.Get(ctx, id)
	return inv, svcutil.RequestErr(err)
}

func (s *Service) bumpInvitation(ctx context.Context, inv models.GroupInvitation) {
	s.bumpGroup(ctx, inv.GroupID, models.GroupInvitationsVersion)
	s.bumpUser(ctx, inv.InviterID, models.UserSentGroupInvitationsVersion)
	s.bumpUser(ctx, inv.InviteeID, models.UserReceivedGroupInvitationsVersion)
}

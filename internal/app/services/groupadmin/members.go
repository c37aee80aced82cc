package groupadmin

import (
	"context"

	"github.com/dalemusser/grouphub/internal/app/policy/grouppolicy"
	"github.com/dalemusser/grouphub/internal/app/services/ownership"
	"github.com/dalemusser/grouphub/internal/app/services/svcutil"
	membershipstore "github.com/dalemusser/grouphub/internal/app/store/memberships"
	"github.com/dalemusser/grouphub/internal/app/system/grouperr"
	"github.com/dalemusser/grouphub/internal/domain/models"
	"go.uber.org/zap"
)

// Quit removes userID from the group. The owner must name a successor;
// ownership then moves to the successor and the owner leaves in the same
// transaction.
func (s *Service) Quit(ctx context.Context, userID, groupID, successorID int64) ([]int64, error) {
	role, err := s.members.Role(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	switch role {
	case grouppolicy.Guest:
		return nil, grouperr.New(grouperr.Authorization, grouperr.ReasonNotMember,
			"user %d is not a member of group %d", userID, groupID)
	case models.RoleOwner:
		if successorID == 0 {
			return nil, grouperr.New(grouperr.Validation, grouperr.ReasonOwnerCannotQuit,
				"owner of group %d must name a successor", groupID)
		}
		res, err := s.ownership.Transfer(ctx, ownership.TransferRequest{
			GroupID:           groupID,
			SuccessorID:       successorID,
			QuitAfterTransfer: true,
			OwnerHint:         userID,
		})
		if err != nil {
			return nil, err
		}
		return res.AffectedUserIDs, nil
	}

	n, err := s.members.Remove(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, grouperr.New(grouperr.Authorization, grouperr.ReasonNotMember,
			"user %d is not a member of group %d", userID, groupID)
	}
	return s.moderatorsAnd(ctx, groupID, userID), nil
}

// Join adds userID to a group whose join strategy admits anyone.
func (s *Service) Join(ctx context.Context, userID, groupID int64) ([]int64, error) {
	g, err := svcutil.AliveGroup(ctx, s.groups, groupID)
	if err != nil {
		return nil, err
	}
	gt, err := svcutil.GroupType(ctx, s.policies, g)
	if err != nil {
		return nil, err
	}
	if !grouppolicy.AllowsJoin(gt.JoinStrategy, grouppolicy.JoinDirectly) {
		return nil, grouperr.New(grouperr.Authorization, grouperr.ReasonDirectJoinNotAllowed,
			"join strategy %s does not admit direct joins", gt.JoinStrategy)
	}
	err = s.runTx(ctx, func(ctx context.Context) error {
		_, err := s.members.Add(ctx, groupID, membershipstore.NewMember{UserID: userID, Role: models.RoleMember})
		return err
	})
	if err != nil {
		return nil, svcutil.MemberErr(err)
	}
	return s.moderatorsAnd(ctx, groupID, userID), nil
}

// AddResult reports the outcome of AddMembers.
type AddResult struct {
	Added           []int64
	Blocked         []int64
	Duplicates      int
	AffectedUserIDs []int64
	VersionErr      error
}

// AddMembers adds users directly, without invitations. The group's
// invitation strategy must admit the actor's role and must not require the
// invitee's approval.
func (s *Service) AddMembers(ctx context.Context, actorID, groupID int64, userIDs []int64) (AddResult, error) {
	userIDs = svcutil.Dedup(userIDs, actorID)
	if len(userIDs) == 0 {
		return AddResult{}, grouperr.New(grouperr.Validation, grouperr.ReasonInvalidInput, "no users to add")
	}
	g, err := svcutil.AliveGroup(ctx, s.groups, groupID)
	if err != nil {
		return AddResult{}, err
	}
	gt, err := svcutil.GroupType(ctx, s.policies, g)
	if err != nil {
		return AddResult{}, err
	}
	role, err := s.members.Role(ctx, groupID, actorID)
	if err != nil {
		return AddResult{}, err
	}
	if !grouppolicy.CanInvite(gt.InvitationStrategy, role) {
		return AddResult{}, grouperr.New(grouperr.Authorization, grouperr.ReasonInvitationNotAllowed,
			"strategy %s does not allow role %q to add members", gt.InvitationStrategy, role)
	}
	if grouppolicy.InvitationRequiresApproval(gt.InvitationStrategy) {
		return AddResult{}, grouperr.New(grouperr.Authorization, grouperr.ReasonApprovalRequired,
			"strategy %s requires invitees to accept an invitation", gt.InvitationStrategy)
	}

	batch := make([]membershipstore.NewMember, 0, len(userIDs))
	for _, uid := range userIDs {
		batch = append(batch, membershipstore.NewMember{UserID: uid, Role: models.RoleMember})
	}
	ctx, rec := svcutil.Track(ctx)
	var r membershipstore.AddBatchResult
	err = s.runTx(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.members.AddMany(ctx, groupID, batch)
		return err
	})
	if err != nil {
		return AddResult{}, svcutil.MemberErr(err)
	}

	res := AddResult{Added: r.Added, Blocked: r.Blocked, Duplicates: r.Duplicates, VersionErr: rec.Err()}
	if len(r.Added) > 0 {
		all, err := s.members.ListUserIDs(ctx, groupID)
		if err != nil {
			s.log.Warn("add members: list members failed", zap.Int64("group_id", groupID), zap.Error(err))
		}
		res.AffectedUserIDs = all
	}
	return res, nil
}

// RemoveMembers removes users on behalf of actorID. The whole call is
// rejected if any target outranks the actor or is the actor.
func (s *Service) RemoveMembers(ctx context.Context, actorID, groupID int64, userIDs []int64) ([]int64, error) {
	userIDs = svcutil.Dedup(userIDs)
	if len(userIDs) == 0 {
		return nil, grouperr.New(grouperr.Validation, grouperr.ReasonInvalidInput, "no users to remove")
	}
	actor, err := s.members.Role(ctx, groupID, actorID)
	if err != nil {
		return nil, err
	}
	if !grouppolicy.CanModerate(actor) {
		return nil, grouperr.New(grouperr.Authorization, grouperr.ReasonNotOwnerOrManager,
			"user %d may not remove members of group %d", actorID, groupID)
	}
	if err := s.checkTargets(ctx, groupID, actorID, actor, userIDs); err != nil {
		return nil, err
	}

	audience, _ := s.members.ListUserIDs(ctx, groupID)
	if _, err := s.members.Remove(ctx, groupID, userIDs...); err != nil {
		return nil, err
	}
	s.cfg.Audit.MembersRemoved(ctx, groupID, actorID, userIDs)
	return audience, nil
}

// UpdateMember changes another member's role, name or mute state. Role
// changes are reserved to the owner; name and mute follow the type's
// member-info update strategy, and muting needs a moderator.
func (s *Service) UpdateMember(ctx context.Context, actorID, groupID, targetID int64, u membershipstore.MemberUpdate) ([]int64, error) {
	if u.Empty() {
		return nil, grouperr.New(grouperr.Validation, grouperr.ReasonInvalidInput, "nothing to update")
	}
	if u.Role != nil && !u.Role.Valid() {
		return nil, grouperr.New(grouperr.Validation, grouperr.ReasonInvalidInput, "unknown role %q", *u.Role)
	}

	g, err := svcutil.AliveGroup(ctx, s.groups, groupID)
	if err != nil {
		return nil, err
	}
	gt, err := svcutil.GroupType(ctx, s.policies, g)
	if err != nil {
		return nil, err
	}
	actor, err := s.members.Role(ctx, groupID, actorID)
	if err != nil {
		return nil, err
	}
	target, err := s.members.Role(ctx, groupID, targetID)
	if err != nil {
		return nil, err
	}
	if target == grouppolicy.Guest {
		return nil, grouperr.New(grouperr.Authorization, grouperr.ReasonNotMember,
			"user %d is not a member of group %d", targetID, groupID)
	}
	self := actorID == targetID

	if u.Role != nil && !grouppolicy.CanChangeRole(actor, target, *u.Role) {
		reason := grouperr.ReasonNotOwner
		switch {
		case target == models.RoleOwner || *u.Role == models.RoleOwner:
			reason = grouperr.ReasonCannotTargetOwner
		case actor == models.RoleManager:
			reason = grouperr.ReasonManagerCannotPromote
		}
		return nil, grouperr.New(grouperr.Authorization, reason,
			"user %d may not make %d %s", actorID, targetID, *u.Role)
	}
	if u.Name != nil && !grouppolicy.CanUpdateMemberInfo(gt.MemberInfoUpdateStrategy, actor, target, self, gt.SelfInfoUpdatable) {
		return nil, grouperr.New(grouperr.Authorization, grouperr.ReasonUpdateNotAllowed,
			"strategy %s does not allow %q to rename %q", gt.MemberInfoUpdateStrategy, actor, target)
	}
	if u.MuteEndDate != nil {
		if self || !grouppolicy.CanModerate(actor) || !grouppolicy.CanRemoveMember(actor, target) {
			return nil, grouperr.New(grouperr.Authorization, grouperr.ReasonNotOwnerOrManager,
				"user %d may not mute %d", actorID, targetID)
		}
	}

	if _, err := s.members.Update(ctx, groupID, []int64{targetID}, u); err != nil {
		return nil, svcutil.MemberErr(err)
	}
	if u.Role != nil {
		s.cfg.Audit.MemberRoleChanged(ctx, groupID, actorID, targetID, string(*u.Role))
	}
	return s.members.ListUserIDs(ctx, groupID)
}

// BlockResult reports the outcome of BlockUsers.
type BlockResult struct {
	NewlyBlocked    int64
	Removed         int64
	AffectedUserIDs []int64
	VersionErr      error
}

// BlockUsers blacklists users and removes those who are members, in one
// transaction. Moderators only; the owner and the actor cannot be blocked,
// and managers cannot block managers.
func (s *Service) BlockUsers(ctx context.Context, actorID, groupID int64, userIDs []int64) (BlockResult, error) {
	userIDs = svcutil.Dedup(userIDs)
	if len(userIDs) == 0 {
		return BlockResult{}, grouperr.New(grouperr.Validation, grouperr.ReasonInvalidInput, "no users to block")
	}
	if _, err := svcutil.AliveGroup(ctx, s.groups, groupID); err != nil {
		return BlockResult{}, err
	}
	actor, err := s.members.Role(ctx, groupID, actorID)
	if err != nil {
		return BlockResult{}, err
	}
	if !grouppolicy.CanModerate(actor) {
		return BlockResult{}, grouperr.New(grouperr.Authorization, grouperr.ReasonNotOwnerOrManager,
			"user %d may not block users in group %d", actorID, groupID)
	}
	if err := s.checkTargets(ctx, groupID, actorID, actor, userIDs); err != nil {
		return BlockResult{}, err
	}

	audience, _ := s.members.ListUserIDs(ctx, groupID)
	ctx, rec := svcutil.Track(ctx)
	var res BlockResult
	err = s.runTx(ctx, func(ctx context.Context) error {
		n, err := s.blocks.Add(ctx, groupID, actorID, userIDs...)
		if err != nil {
			return err
		}
		removed, err := s.members.Remove(ctx, groupID, userIDs...)
		if err != nil {
			return err
		}
		res = BlockResult{NewlyBlocked: n, Removed: removed}
		return nil
	})
	if err != nil {
		return BlockResult{}, err
	}
	res.AffectedUserIDs = svcutil.Dedup(append(audience, userIDs...))
	res.VersionErr = rec.Err()
	s.cfg.Audit.UsersBlocked(ctx, groupID, actorID, userIDs)
	return res, nil
}

// UnblockUsers removes users from the blacklist. Moderators only.
func (s *Service) UnblockUsers(ctx context.Context, actorID, groupID int64, userIDs []int64) (int64, error) {
	if err := svcutil.RequireModerator(ctx, s.members, groupID, actorID); err != nil {
		return 0, err
	}
	n, err := s.blocks.Remove(ctx, groupID, svcutil.Dedup(userIDs)...)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.cfg.Audit.UsersUnblocked(ctx, groupID, actorID, userIDs)
	}
	return n, nil
}

// checkTargets rejects self-targeting and targets the actor may not act on.
// Non-members pass: blocking a stranger is allowed.
func (s *Service) checkTargets(ctx context.Context, groupID, actorID int64, actor models.GroupMemberRole, userIDs []int64) error {
	for _, uid := range userIDs {
		if uid == actorID {
			return grouperr.New(grouperr.Validation, grouperr.ReasonCannotTargetSelf, "user %d cannot target themselves", uid)
		}
		target, err := s.members.Role(ctx, groupID, uid)
		if err != nil {
			return err
		}
		if target == grouppolicy.Guest {
			continue
		}
		if target == models.RoleOwner {
			return grouperr.New(grouperr.Authorization, grouperr.ReasonCannotTargetOwner,
				"user %d owns group %d", uid, groupID)
		}
		if !grouppolicy.CanRemoveMember(actor, target) {
			return grouperr.New(grouperr.Authorization, grouperr.ReasonNotOwner,
				"%s %d may not act on %s %d", actor, actorID, target, uid)
		}
	}
	return nil
}

func (s *Service) moderatorsAnd(ctx context.Context, groupID, userID int64) []int64 {
	mods, err := svcutil.Moderators(ctx, s.members, groupID)
	if err != nil {
		s.log.Warn("moderators lookup failed", zap.Int64("group_id", groupID), zap.Error(err))
	}
	return svcutil.Dedup(append(mods, userID))
}

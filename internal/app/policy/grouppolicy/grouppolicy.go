// internal/app/policy/grouppolicy/grouppolicy.go
//
// Package grouppolicy maps group-type strategies to the roles they admit.
// Every decision is a pure function over a lookup table so callers never
// branch on strategy values themselves. A non-member is represented by the
// empty role.
package grouppolicy

import "github.com/dalemusser/grouphub/internal/domain/models"

// Guest is the role of a user with no membership in the group.
const Guest models.GroupMemberRole = ""

type roles map[models.GroupMemberRole]bool

var (
	ownerOnly       = roles{models.RoleOwner: true}
	ownerManager    = roles{models.RoleOwner: true, models.RoleManager: true}
	anyMember       = roles{models.RoleOwner: true, models.RoleManager: true, models.RoleMember: true}
	anyoneWithGuest = roles{models.RoleOwner: true, models.RoleManager: true, models.RoleMember: true, Guest: true}
)

type invitationRule struct {
	inviters         roles
	requiresApproval bool
}

var invitationRules = map[models.GroupInvitationStrategy]invitationRule{
	models.InviteAll:                                 {anyoneWithGuest, false},
	models.InviteAllRequiringApproval:                {anyoneWithGuest, true},
	models.InviteOwner:                               {ownerOnly, false},
	models.InviteOwnerRequiringApproval:              {ownerOnly, true},
	models.InviteOwnerManager:                        {ownerManager, false},
	models.InviteOwnerManagerRequiringApproval:       {ownerManager, true},
	models.InviteOwnerManagerMember:                  {anyMember, false},
	models.InviteOwnerManagerMemberRequiringApproval: {anyMember, true},
}

var updateRules = map[models.GroupUpdateStrategy]roles{
	models.UpdateOwner:              ownerOnly,
	models.UpdateOwnerManager:       ownerManager,
	models.UpdateOwnerManagerMember: anyMember,
	models.UpdateAll:                anyoneWithGuest,
}

// rank orders roles for "may act on" comparisons.
var rank = map[models.GroupMemberRole]int{
	Guest:              0,
	models.RoleMember:  1,
	models.RoleManager: 2,
	models.RoleOwner:   3,
}

// CanInvite reports whether a user holding role may invite under s.
// Unknown strategies admit nobody.
func CanInvite(s models.GroupInvitationStrategy, role models.GroupMemberRole) bool {
	return invitationRules[s].inviters[role]
}

// InvitationRequiresApproval reports whether invitees must accept before
// joining. Unknown strategies require approval.
func InvitationRequiresApproval(s models.GroupInvitationStrategy) bool {
	rule, ok := invitationRules[s]
	return !ok || rule.requiresApproval
}

// CanUpdateGroupInfo reports whether role may change group information under s.
func CanUpdateGroupInfo(s models.GroupUpdateStrategy, role models.GroupMemberRole) bool {
	return updateRules[s][role]
}

// CanUpdateMemberInfo reports whether actor may change target's name or mute
// state. Users may edit themselves when the group type allows it; otherwise
// the actor must be admitted by s and must not be outranked by the target.
// Nobody but the owner edits the owner.
func CanUpdateMemberInfo(s models.GroupUpdateStrategy, actor, target models.GroupMemberRole, self, selfUpdatable bool) bool {
	if self {
		return selfUpdatable && actor != Guest
	}
	if target == Guest {
		return false
	}
	if !updateRules[s][actor] {
		return false
	}
	if target == models.RoleOwner {
		return false
	}
	return rank[actor] >= rank[target]
}

// CanChangeRole reports whether actor may give target the role to. The
// OWNER role only moves through ownership transfer; only the owner assigns
// MANAGER.
func CanChangeRole(actor, target, to models.GroupMemberRole) bool {
	if to == models.RoleOwner || target == models.RoleOwner || target == Guest {
		return false
	}
	return actor == models.RoleOwner
}

// CanRemoveMember reports whether actor may remove target from the group.
// The owner can remove anyone but themselves; managers can remove members.
func CanRemoveMember(actor, target models.GroupMemberRole) bool {
	switch {
	case target == models.RoleOwner || target == Guest:
		return false
	case actor == models.RoleOwner:
		return true
	case actor == models.RoleManager:
		return target == models.RoleMember
	}
	return false
}

// CanModerate reports whether role may block users, answer join requests,
// recall invitations and manage join questions.
func CanModerate(role models.GroupMemberRole) bool {
	return ownerManager[role]
}

// JoinPath is a way for a non-member to enter a group on their own.
type JoinPath int

const (
	JoinByRequest JoinPath = iota
	JoinByQuestions
	JoinDirectly
)

var joinRules = map[models.GroupJoinStrategy]map[JoinPath]bool{
	models.JoinMembershipRequest: {JoinByRequest: true},
	models.JoinQuestion:          {JoinByQuestions: true},
	models.JoinFree:              {JoinDirectly: true},
	models.JoinInvitationOnly:    {},
}

// AllowsJoin reports whether s admits path.
func AllowsJoin(s models.GroupJoinStrategy, path JoinPath) bool {
	return joinRules[s][path]
}

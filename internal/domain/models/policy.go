// internal/domain/models/policy.go
package models

import "strconv"

// GroupInvitationStrategy decides who may invite and whether the invitee
// must accept before becoming a member.
type GroupInvitationStrategy string

const (
	InviteAll                                 GroupInvitationStrategy = "ALL"
	InviteAllRequiringApproval                GroupInvitationStrategy = "ALL_REQUIRING_APPROVAL"
	InviteOwner                               GroupInvitationStrategy = "OWNER"
	InviteOwnerRequiringApproval              GroupInvitationStrategy = "OWNER_REQUIRING_APPROVAL"
	InviteOwnerManager                        GroupInvitationStrategy = "OWNER_MANAGER"
	InviteOwnerManagerRequiringApproval       GroupInvitationStrategy = "OWNER_MANAGER_REQUIRING_APPROVAL"
	InviteOwnerManagerMember                  GroupInvitationStrategy = "OWNER_MANAGER_MEMBER"
	InviteOwnerManagerMemberRequiringApproval GroupInvitationStrategy = "OWNER_MANAGER_MEMBER_REQUIRING_APPROVAL"
)

// GroupJoinStrategy decides how a non-member can become a member on their own.
type GroupJoinStrategy string

const (
	JoinMembershipRequest GroupJoinStrategy = "MEMBERSHIP_REQUEST"
	JoinInvitationOnly    GroupJoinStrategy = "INVITATION"
	JoinQuestion          GroupJoinStrategy = "QUESTION"
	JoinFree              GroupJoinStrategy = "FREE"
)

// GroupUpdateStrategy decides which roles may update group information or
// other members' information.
type GroupUpdateStrategy string

const (
	UpdateOwner              GroupUpdateStrategy = "OWNER"
	UpdateOwnerManager       GroupUpdateStrategy = "OWNER_MANAGER"
	UpdateOwnerManagerMember GroupUpdateStrategy = "OWNER_MANAGER_MEMBER"
	UpdateAll                GroupUpdateStrategy = "ALL"
)

// DefaultGroupTypeID is the group type used when a create request names none.
const DefaultGroupTypeID int64 = 0

// DefaultPermissionGroupID is used for users with no explicit assignment.
const DefaultPermissionGroupID int64 = 0

// GroupType is a policy record shared by every group of that type.
type GroupType struct {
	ID                       int64                   `bson:"_id" json:"id"`
	Name                     string                  `bson:"name" json:"name"`
	GroupSizeLimit           int                     `bson:"group_size_limit" json:"group_size_limit"`
	InvitationStrategy       GroupInvitationStrategy `bson:"invitation_strategy" json:"invitation_strategy"`
	JoinStrategy             GroupJoinStrategy       `bson:"join_strategy" json:"join_strategy"`
	GroupInfoUpdateStrategy  GroupUpdateStrategy     `bson:"group_info_update_strategy" json:"group_info_update_strategy"`
	MemberInfoUpdateStrategy GroupUpdateStrategy     `bson:"member_info_update_strategy" json:"member_info_update_strategy"`
	GuestSpeakable           bool                    `bson:"guest_speakable" json:"guest_speakable"`
	SelfInfoUpdatable        bool                    `bson:"self_info_updatable" json:"self_info_updatable"`
}

// DefaultGroupType returns the policy seeded for DefaultGroupTypeID.
func DefaultGroupType() GroupType {
	return GroupType{
		ID:                       DefaultGroupTypeID,
		Name:                     "DEFAULT",
		GroupSizeLimit:           500,
		InvitationStrategy:       InviteOwnerManagerMemberRequiringApproval,
		JoinStrategy:             JoinMembershipRequest,
		GroupInfoUpdateStrategy:  UpdateOwnerManager,
		MemberInfoUpdateStrategy: UpdateOwnerManager,
		GuestSpeakable:           false,
		SelfInfoUpdatable:        true,
	}
}

// UserPermissionGroup holds group-ownership quotas for a class of users.
type UserPermissionGroup struct {
	ID                              int64          `bson:"_id" json:"id"`
	CreatableGroupTypeIDs           []int64        `bson:"creatable_group_type_ids" json:"creatable_group_type_ids"`
	OwnedGroupLimit                 int            `bson:"owned_group_limit" json:"owned_group_limit"`
	OwnedGroupLimitForEachGroupType int            `bson:"owned_group_limit_for_each_group_type" json:"owned_group_limit_for_each_group_type"`
	GroupTypeIDToLimit              map[string]int `bson:"group_type_id_to_limit,omitempty" json:"group_type_id_to_limit,omitempty"`
}

// DefaultUserPermissionGroup returns the quota seeded for DefaultPermissionGroupID.
func DefaultUserPermissionGroup() UserPermissionGroup {
	return UserPermissionGroup{
		ID:                              DefaultPermissionGroupID,
		CreatableGroupTypeIDs:           []int64{DefaultGroupTypeID},
		OwnedGroupLimit:                 10,
		OwnedGroupLimitForEachGroupType: 10,
	}
}

// CanCreateType reports whether members of p may create groups of typeID.
func (p UserPermissionGroup) CanCreateType(typeID int64) bool {
	for _, id := range p.CreatableGroupTypeIDs {
		if id == typeID {
			return true
		}
	}
	return false
}

// OwnedLimitForType returns how many groups of typeID a user may own.
// An explicit per-type entry overrides OwnedGroupLimitForEachGroupType.
func (p UserPermissionGroup) OwnedLimitForType(typeID int64) int {
	if n, ok := p.GroupTypeIDToLimit[strconv.FormatInt(typeID, 10)]; ok {
		return n
	}
	return p.OwnedGroupLimitForEachGroupType
}

// UserPermissionAssignment binds a user to a permission group.
type UserPermissionAssignment struct {
	UserID            int64 `bson:"_id" json:"user_id"`
	PermissionGroupID int64 `bson:"permission_group_id" json:"permission_group_id"`
}

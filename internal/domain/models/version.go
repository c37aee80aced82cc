// internal/domain/models/version.go
package models

// VersionResource names a sub-resource whose last-modified time is tracked.
// The value doubles as the field name in the version document.
type VersionResource string

// Group-scoped resources (stored in group_versions).
const (
	GroupInfoVersion          VersionResource = "info"
	GroupMembersVersion       VersionResource = "members"
	GroupBlacklistVersion     VersionResource = "blacklist"
	GroupInvitationsVersion   VersionResource = "invitations"
	GroupJoinRequestsVersion  VersionResource = "join_requests"
	GroupJoinQuestionsVersion VersionResource = "join_questions"
)

// User-scoped resources (stored in user_versions).
const (
	UserSentGroupInvitationsVersion     VersionResource = "sent_group_invitations"
	UserReceivedGroupInvitationsVersion VersionResource = "received_group_invitations"
	UserGroupJoinRequestsVersion        VersionResource = "group_join_requests"
	UserJoinedGroupsVersion             VersionResource = "joined_groups"
	UserRelationshipsVersion            VersionResource = "relationships"
	UserRelationshipGroupsVersion       VersionResource = "relationship_groups"
	UserFriendRequestsVersion           VersionResource = "friend_requests"
)

// GroupVersionResources lists every resource tracked per group.
var GroupVersionResources = []VersionResource{
	GroupInfoVersion,
	GroupMembersVersion,
	GroupBlacklistVersion,
	GroupInvitationsVersion,
	GroupJoinRequestsVersion,
	GroupJoinQuestionsVersion,
}

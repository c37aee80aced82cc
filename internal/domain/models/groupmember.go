// internal/domain/models/groupmember.go
package models

import (
	"time"
)

// GroupMemberRole is the role a user holds inside one group.
type GroupMemberRole string

const (
	RoleOwner   GroupMemberRole = "OWNER"
	RoleManager GroupMemberRole = "MANAGER"
	RoleMember  GroupMemberRole = "MEMBER"
)

// Valid reports whether r is one of the known roles.
func (r GroupMemberRole) Valid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleMember:
		return true
	}
	return false
}

// GroupMember is the authoritative join between users and groups.
// Exactly one document per (group_id, user_id).
type GroupMember struct {
	GroupID     int64           `bson:"group_id" json:"group_id"`
	UserID      int64           `bson:"user_id" json:"user_id"`
	Role        GroupMemberRole `bson:"role" json:"role"`
	Name        string          `bson:"name,omitempty" json:"name,omitempty"`
	JoinDate    time.Time       `bson:"join_date" json:"join_date"`
	MuteEndDate *time.Time      `bson:"mute_end_date,omitempty" json:"mute_end_date,omitempty"`
}

// GroupBlockedUser is a blacklist entry: the user cannot join or be invited.
type GroupBlockedUser struct {
	GroupID     int64     `bson:"group_id" json:"group_id"`
	UserID      int64     `bson:"user_id" json:"user_id"`
	BlockDate   time.Time `bson:"block_date" json:"block_date"`
	RequesterID int64     `bson:"requester_id" json:"requester_id"`
}

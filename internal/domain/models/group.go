// internal/domain/models/group.go
package models

import (
	"time"
)

// Group is the root document of a chat group.
//
// NOTE:
//   - Members are not embedded; they live in the group_members collection.
//   - OwnerID is denormalized from the single OWNER membership and is kept in
//     sync by the ownership transfer path inside the same transaction.
//   - DeletionDate is set by logical deletion; a group with a non-nil
//     DeletionDate is treated as gone everywhere.
type Group struct {
	ID           int64      `bson:"_id" json:"id"`
	TypeID       int64      `bson:"type_id" json:"type_id"`
	CreatorID    int64      `bson:"creator_id" json:"creator_id"`
	OwnerID      int64      `bson:"owner_id" json:"owner_id"`
	Name         string     `bson:"name" json:"name"`
	Intro        string     `bson:"intro,omitempty" json:"intro,omitempty"`
	Announcement string     `bson:"announcement,omitempty" json:"announcement,omitempty"`
	MinimumScore int        `bson:"minimum_score" json:"minimum_score"`
	CreationDate time.Time  `bson:"creation_date" json:"creation_date"`
	DeletionDate *time.Time `bson:"deletion_date,omitempty" json:"deletion_date,omitempty"`
	MuteEndDate  *time.Time `bson:"mute_end_date,omitempty" json:"mute_end_date,omitempty"`
	IsActive     bool       `bson:"is_active" json:"is_active"`

	LastUpdatedDate time.Time `bson:"last_updated_date" json:"last_updated_date"`
}

// Alive reports whether the group accepts membership changes.
func (g Group) Alive() bool {
	return g.DeletionDate == nil && g.IsActive
}

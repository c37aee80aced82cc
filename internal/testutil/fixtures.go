package testutil

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/grouphub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var idSeq atomic.Int64

// NextID returns a process-unique positive ID for fixtures.
func NextID() int64 {
	return time.Now().UnixMilli()*1000 + idSeq.Add(1)%1000
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateGroupType upserts a group type policy record.
func (f *Fixtures) CreateGroupType(ctx context.Context, gt models.GroupType) models.GroupType {
	f.t.Helper()
	_, err := f.db.Collection("group_types").ReplaceOne(ctx,
		bson.M{"_id": gt.ID}, gt, options.Replace().SetUpsert(true))
	if err != nil {
		f.t.Fatalf("failed to create group type: %v", err)
	}
	return gt
}

// CreatePermissionGroup upserts a user permission group and optionally
// assigns users to it.
func (f *Fixtures) CreatePermissionGroup(ctx context.Context, pg models.UserPermissionGroup, userIDs ...int64) models.UserPermissionGroup {
	f.t.Helper()
	_, err := f.db.Collection("user_permission_groups").ReplaceOne(ctx,
		bson.M{"_id": pg.ID}, pg, options.Replace().SetUpsert(true))
	if err != nil {
		f.t.Fatalf("failed to create permission group: %v", err)
	}
	for _, uid := range userIDs {
		_, err := f.db.Collection("user_permission_assignments").ReplaceOne(ctx,
			bson.M{"_id": uid},
			models.UserPermissionAssignment{UserID: uid, PermissionGroupID: pg.ID},
			options.Replace().SetUpsert(true))
		if err != nil {
			f.t.Fatalf("failed to assign permission group: %v", err)
		}
	}
	return pg
}

// CreateGroup inserts an active group of typeID owned by ownerID, together
// with the owner's membership.
func (f *Fixtures) CreateGroup(ctx context.Context, name string, ownerID, typeID int64) models.Group {
	f.t.Helper()

	now := time.Now().UTC().Truncate(time.Millisecond)
	g := models.Group{
		ID:              NextID(),
		TypeID:          typeID,
		CreatorID:       ownerID,
		OwnerID:         ownerID,
		Name:            name,
		CreationDate:    now,
		IsActive:        true,
		LastUpdatedDate: now,
	}
	if _, err := f.db.Collection("groups").InsertOne(ctx, g); err != nil {
		f.t.Fatalf("failed to create test group: %v", err)
	}
	f.CreateMember(ctx, g.ID, ownerID, models.RoleOwner)
	return g
}

// CreateMember inserts a membership with the given role.
func (f *Fixtures) CreateMember(ctx context.Context, groupID, userID int64, role models.GroupMemberRole) models.GroupMember {
	f.t.Helper()
	m := models.GroupMember{
		GroupID:  groupID,
		UserID:   userID,
		Role:     role,
		Name:     "user-" + strconv.FormatInt(userID, 10),
		JoinDate: time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := f.db.Collection("group_members").InsertOne(ctx, m); err != nil {
		f.t.Fatalf("failed to create test member: %v", err)
	}
	return m
}

// BlockUser adds userID to the group's blacklist.
func (f *Fixtures) BlockUser(ctx context.Context, groupID, userID int64) {
	f.t.Helper()
	_, err := f.db.Collection("group_blocked_users").InsertOne(ctx, models.GroupBlockedUser{
		GroupID:   groupID,
		UserID:    userID,
		BlockDate: time.Now().UTC(),
	})
	if err != nil {
		f.t.Fatalf("failed to block user: %v", err)
	}
}

// CreateInvitation inserts an invitation document directly, bypassing
// authorization. Use expiration in the past to get a lazily-expired one.
func (f *Fixtures) CreateInvitation(ctx context.Context, groupID, inviterID, inviteeID int64, status models.RequestStatus, expiration *time.Time) models.GroupInvitation {
	f.t.Helper()
	inv := models.GroupInvitation{
		ID:        NextID(),
		GroupID:   groupID,
		InviterID: inviterID,
		InviteeID: inviteeID,
		RequestState: models.RequestState{
			Status:         status,
			CreationDate:   time.Now().UTC().Truncate(time.Millisecond),
			ExpirationDate: expiration,
		},
	}
	if _, err := f.db.Collection("group_invitations").InsertOne(ctx, inv); err != nil {
		f.t.Fatalf("failed to create invitation: %v", err)
	}
	return inv
}

// CreateJoinRequest inserts a join request document directly.
func (f *Fixtures) CreateJoinRequest(ctx context.Context, groupID, requesterID int64, status models.RequestStatus, expiration *time.Time) models.GroupJoinRequest {
	f.t.Helper()
	req := models.GroupJoinRequest{
		ID:          NextID(),
		GroupID:     groupID,
		RequesterID: requesterID,
		RequestState: models.RequestState{
			Status:         status,
			CreationDate:   time.Now().UTC().Truncate(time.Millisecond),
			ExpirationDate: expiration,
		},
	}
	if _, err := f.db.Collection("group_join_requests").InsertOne(ctx, req); err != nil {
		f.t.Fatalf("failed to create join request: %v", err)
	}
	return req
}

// CountDocs counts documents in coll matching filter.
func (f *Fixtures) CountDocs(ctx context.Context, coll string, filter bson.M) int64 {
	f.t.Helper()
	n, err := f.db.Collection(coll).CountDocuments(ctx, filter)
	if err != nil {
		f.t.Fatalf("CountDocuments(%s) failed: %v", coll, err)
	}
	return n
}

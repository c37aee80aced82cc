// internal/app/store/blocks/blockstore.go
package blockstore

import (
	"context"
	"time"

	versionstore "github.com/dalemusser/grouphub/internal/app/store/versions"
	"github.com/dalemusser/grouphub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Store is the per-group blacklist.
type Store struct {
	c        *mongo.Collection
	versions *versionstore.Store
	log      *zap.Logger
}

func New(db *mongo.Database, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		c:        db.Collection("group_blocked_users"),
		versions: versionstore.NewGroupVersions(db),
		log:      log,
	}
}

// Add blocks userIDs. Already-blocked users are left as they are. Returns
// the number of newly blocked users.
func (s *Store) Add(ctx context.Context, groupID, requesterID int64, userIDs ...int64) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	writes := make([]mongo.WriteModel, 0, len(userIDs))
	for _, uid := range userIDs {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"group_id": groupID, "user_id": uid}).
			SetUpdate(bson.M{"$setOnInsert": bson.M{
				"block_date":   now,
				"requester_id": requesterID,
			}}).
			SetUpsert(true))
	}
	res, err := s.c.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, err
	}
	if res.UpsertedCount > 0 {
		s.bump(ctx, groupID)
	}
	return res.UpsertedCount, nil
}

// Remove unblocks userIDs.
func (s *Store) Remove(ctx context.Context, groupID int64, userIDs ...int64) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID, "user_id": bson.M{"$in": userIDs}})
	if err != nil {
		return 0, err
	}
	if res.DeletedCount > 0 {
		s.bump(ctx, groupID)
	}
	return res.DeletedCount, nil
}

// IsBlocked reports whether userID is on the group's blacklist.
func (s *Store) IsBlocked(ctx context.Context, groupID, userID int64) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{"group_id": groupID, "user_id": userID}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListByGroup returns the blacklist entries, oldest first.
func (s *Store) ListByGroup(ctx context.Context, groupID int64) ([]models.GroupBlockedUser, error) {
	opts := options.Find().SetSort(bson.D{{Key: "block_date", Value: 1}, {Key: "user_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"group_id": groupID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.GroupBlockedUser
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListUserIDs returns the blocked user IDs of the group.
func (s *Store) ListUserIDs(ctx context.Context, groupID int64) ([]int64, error) {
	entries, err := s.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	return ids, nil
}

// DeleteByGroup removes the whole blacklist of a group.
func (s *Store) DeleteByGroup(ctx context.Context, groupID int64) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *Store) bump(ctx context.Context, groupID int64) {
	versionstore.Record(ctx, s.log, "blacklist.bump", func(ctx context.Context) error {
		return s.versions.Bump(ctx, groupID, models.GroupBlacklistVersion)
	}, zap.Int64("group_id", groupID))
}

// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/grouphub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

var (
	ErrNotFound       = errors.New("group not found")
	ErrDuplicateGroup = errors.New("a group with this id already exists")
)

// aliveFilter matches groups that have not been logically deleted.
func aliveFilter(m bson.M) bson.M {
	m["deletion_date"] = nil
	return m
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("groups")}
}

// Create inserts g. The caller allocates g.ID.
func (s *Store) Create(ctx context.Context, g models.Group) (models.Group, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	if g.CreationDate.IsZero() {
		g.CreationDate = now
	}
	g.LastUpdatedDate = now
	if _, err := s.c.InsertOne(ctx, g); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Group{}, ErrDuplicateGroup
		}
		return models.Group{}, err
	}
	return g, nil
}

// GetByID returns the group, including logically deleted ones.
func (s *Store) GetByID(ctx context.Context, id int64) (models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		if err == mongo.ErrNoDocuments {
			return models.Group{}, ErrNotFound
		}
		return models.Group{}, err
	}
	return g, nil
}

// GetAlive returns the group unless it is missing or logically deleted.
func (s *Store) GetAlive(ctx context.Context, id int64) (models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, aliveFilter(bson.M{"_id": id})).Decode(&g); err != nil {
		if err == mongo.ErrNoDocuments {
			return models.Group{}, ErrNotFound
		}
		return models.Group{}, err
	}
	return g, nil
}

// ListAlive returns the non-deleted groups among ids, ordered by ID.
func (s *Store) ListAlive(ctx context.Context, ids []int64) ([]models.Group, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, aliveFilter(bson.M{"_id": bson.M{"$in": ids}}), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Group
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InfoUpdate carries the group fields to change; nil fields are left alone.
type InfoUpdate struct {
	TypeID       *int64
	Name         *string
	Intro        *string
	Announcement *string
	MinimumScore *int
	MuteEndDate  *time.Time
	IsActive     *bool
}

// Empty reports whether u changes nothing.
func (u InfoUpdate) Empty() bool {
	return u.TypeID == nil && u.Name == nil && u.Intro == nil && u.Announcement == nil &&
		u.MinimumScore == nil && u.MuteEndDate == nil && u.IsActive == nil
}

// UpdateInfo applies u to a live group. A mute end date that is not in
// the future unmutes the group. Returns false when the group is missing or
// deleted.
func (s *Store) UpdateInfo(ctx context.Context, id int64, u InfoUpdate) (bool, error) {
	now := time.Now().UTC()
	set := bson.M{"last_updated_date": now.Truncate(time.Millisecond)}
	unset := bson.M{}

	if u.TypeID != nil {
		set["type_id"] = *u.TypeID
	}
	if u.Name != nil {
		set["name"] = *u.Name
	}
	if u.Intro != nil {
		set["intro"] = *u.Intro
	}
	if u.Announcement != nil {
		set["announcement"] = *u.Announcement
	}
	if u.MinimumScore != nil {
		set["minimum_score"] = *u.MinimumScore
	}
	if u.IsActive != nil {
		set["is_active"] = *u.IsActive
	}
	if u.MuteEndDate != nil {
		if u.MuteEndDate.After(now) {
			set["mute_end_date"] = u.MuteEndDate.UTC()
		} else {
			unset["mute_end_date"] = ""
		}
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	res, err := s.c.UpdateOne(ctx, aliveFilter(bson.M{"_id": id}), update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// SetOwner records ownerID as the group's owner.
func (s *Store) SetOwner(ctx context.Context, id, ownerID int64) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"owner_id":          ownerID,
		"last_updated_date": time.Now().UTC().Truncate(time.Millisecond),
	}})
	return err
}

// MarkDeleted sets the deletion date of a live group.
func (s *Store) MarkDeleted(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.c.UpdateOne(ctx, aliveFilter(bson.M{"_id": id}), bson.M{"$set": bson.M{
		"deletion_date":     at.UTC(),
		"is_active":         false,
		"last_updated_date": at.UTC(),
	}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// Delete removes the group document.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// CountOwned returns how many live groups ownerID owns.
func (s *Store) CountOwned(ctx context.Context, ownerID int64) (int64, error) {
	return s.c.CountDocuments(ctx, aliveFilter(bson.M{"owner_id": ownerID}))
}

// CountOwnedByType returns how many live groups of typeID ownerID owns.
func (s *Store) CountOwnedByType(ctx context.Context, ownerID, typeID int64) (int64, error) {
	return s.c.CountDocuments(ctx, aliveFilter(bson.M{"owner_id": ownerID, "type_id": typeID}))
}

// ListOwnedIDs returns the IDs of live groups owned by ownerID.
func (s *Store) ListOwnedIDs(ctx context.Context, ownerID int64) ([]int64, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, aliveFilter(bson.M{"owner_id": ownerID}), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []int64
	for cur.Next(ctx) {
		var row struct {
			ID int64 `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, cur.Err()
}

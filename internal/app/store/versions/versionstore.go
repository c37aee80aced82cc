// internal/app/store/versions/versionstore.go
package versionstore

import (
	"context"
	"time"

	"github.com/dalemusser/grouphub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// BeginningOfTime is returned by Query when a scope has never been stamped.
// Any client-held version is "not older" than it.
var BeginningOfTime = time.Unix(0, 0).UTC()

// Store tracks per-scope last-modified timestamps. One document per scope
// (_id = group ID or user ID) holds one timestamp field per resource.
//
// Bumps use $max so a stored timestamp never moves backwards, even when two
// nodes with skewed clocks bump the same field concurrently.
type Store struct {
	c   *mongo.Collection
	now func() time.Time
}

// NewGroupVersions returns the tracker for group-scoped resources.
func NewGroupVersions(db *mongo.Database) *Store {
	return &Store{c: db.Collection("group_versions"), now: time.Now}
}

// NewUserVersions returns the tracker for user-scoped resources.
func NewUserVersions(db *mongo.Database) *Store {
	return &Store{c: db.Collection("user_versions"), now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// stamp truncates to the store's millisecond precision so the value handed
// back by Query compares equal to what was written.
func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Bump sets resource's timestamp for scopeID to now, creating the scope's
// document if absent.
func (s *Store) Bump(ctx context.Context, scopeID int64, resource models.VersionResource) error {
	return s.BumpMany(ctx, scopeID, resource)
}

// BumpMany stamps several resources of one scope in a single write.
func (s *Store) BumpMany(ctx context.Context, scopeID int64, resources ...models.VersionResource) error {
	if len(resources) == 0 {
		return nil
	}
	now := s.stamp()
	fields := bson.M{}
	for _, r := range resources {
		fields[string(r)] = now
	}
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": scopeID},
		bson.M{"$max": fields},
		options.Update().SetUpsert(true))
	return err
}

// BumpScopes stamps one resource across many scopes (e.g. every member's
// joined-groups version) with one unordered bulk write.
func (s *Store) BumpScopes(ctx context.Context, scopeIDs []int64, resource models.VersionResource) error {
	if len(scopeIDs) == 0 {
		return nil
	}
	now := s.stamp()
	writes := make([]mongo.WriteModel, 0, len(scopeIDs))
	for _, id := range scopeIDs {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id}).
			SetUpdate(bson.M{"$max": bson.M{string(resource): now}}).
			SetUpsert(true))
	}
	_, err := s.c.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	return err
}

// Query returns the stored timestamp for resource, or BeginningOfTime.
func (s *Store) Query(ctx context.Context, scopeID int64, resource models.VersionResource) (time.Time, error) {
	var doc bson.M
	opts := options.FindOne().SetProjection(bson.M{string(resource): 1})
	err := s.c.FindOne(ctx, bson.M{"_id": scopeID}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return BeginningOfTime, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	v, ok := doc[string(resource)]
	if !ok {
		return BeginningOfTime, nil
	}
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC(), nil
	case time.Time:
		return t.UTC(), nil
	}
	return BeginningOfTime, nil
}

// Claim writes to scopeID's document without touching any version. Inside a
// transaction it serializes check-then-write work on one scope: a concurrent
// transaction that claims the same scope write-conflicts and is retried.
func (s *Store) Claim(ctx context.Context, scopeID int64) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": scopeID},
		bson.M{"$inc": bson.M{claimField: int64(1)}},
		options.Update().SetUpsert(true))
	return err
}

const claimField = "claims"

// Delete removes the scope's version document.
func (s *Store) Delete(ctx context.Context, scopeID int64) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": scopeID})
	return err
}

// BestEffort runs a bump whose failure must not roll back the mutation that
// triggered it. The failure is logged and returned so callers that promise
// freshness can surface it.
func BestEffort(log *zap.Logger, op string, err error, fields ...zap.Field) error {
	if err == nil {
		return nil
	}
	if log != nil {
		log.Warn("version bump failed",
			append([]zap.Field{zap.String("op", op), zap.Error(err)}, fields...)...)
	}
	return err
}

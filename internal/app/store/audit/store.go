// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event types
const (
	EventGroupCreated         = "group_created"
	EventGroupDeleted         = "group_deleted"
	EventOwnershipTransferred = "ownership_transferred"
	EventMembersRemoved       = "members_removed"
	EventMemberRoleChanged    = "member_role_changed"
	EventUsersBlocked         = "users_blocked"
	EventUsersUnblocked       = "users_unblocked"
)

// SystemActor marks events not attributed to a user.
const SystemActor int64 = 0

// Event is one recorded group administration action.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Timestamp time.Time          `bson:"timestamp"`
	EventType string             `bson:"event_type"`
	GroupID   int64              `bson:"group_id"`
	ActorID   int64              `bson:"actor_id"`
	UserIDs   []int64            `bson:"user_ids,omitempty"` // affected users
	Details   map[string]string  `bson:"details,omitempty"`
}

// QueryFilter narrows List. Zero fields match everything.
type QueryFilter struct {
	GroupID   int64
	ActorID   int64
	EventType string
	Since     *time.Time
	Limit     int64
}

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("group_audit_events")}
}

// EnsureIndexes creates the query indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "actor_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "event_type", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	return err
}

// Log records an event, stamping it with the current time if unset.
func (s *Store) Log(ctx context.Context, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, e)
	return err
}

// List returns matching events, newest first.
func (s *Store) List(ctx context.Context, f QueryFilter) ([]Event, error) {
	filter := bson.M{}
	if f.GroupID != 0 {
		filter["group_id"] = f.GroupID
	}
	if f.ActorID != 0 {
		filter["actor_id"] = f.ActorID
	}
	if f.EventType != "" {
		filter["event_type"] = f.EventType
	}
	if f.Since != nil {
		filter["timestamp"] = bson.M{"$gte": *f.Since}
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

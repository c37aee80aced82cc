// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup (and by the test DB helper). Each ensure*
function is idempotent. Errors are aggregated so every problem is visible
and startup can fail fast.

The unique indexes here are load-bearing: membership and blacklist
uniqueness, and one version document per scope, are enforced by the
database rather than by read-then-write checks.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	for _, e := range []struct {
		name string
		fn   func(context.Context, *mongo.Database) error
	}{
		{"groups", ensureGroups},
		{"group_members", ensureGroupMembers},
		{"group_blocked_users", ensureGroupBlockedUsers},
		{"group_invitations", ensureGroupInvitations},
		{"group_join_requests", ensureGroupJoinRequests},
		{"group_join_questions", ensureGroupJoinQuestions},
	} {
		if err := e.fn(ctx, db); err != nil {
			problems = append(problems, e.name+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func boolOf(b *bool) bool { return b != nil && *b }

func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

func listIndexes(ctx context.Context, coll *mongo.Collection) (map[string]existingIndex, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := map[string]existingIndex{}
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out, cur.Err()
}

// ensureIndexSet reconciles the desired indexes of one collection:
// an index with the same key pattern and uniqueness is reused (and renamed
// if needed); one with different options is dropped and recreated.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, desired []mongo.IndexModel) error {
	var errs []string

	existing, err := listIndexes(ctx, coll)
	if err != nil {
		// Collection may not exist yet; CreateOne will create it.
		existing = map[string]existingIndex{}
	}

	for _, m := range desired {
		var name string
		var unique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				name = *m.Options.Name
			}
			unique = m.Options.Unique
		}
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()

		if ex, ok := existing[sig]; ok {
			if boolOf(ex.Unique) == boolOf(unique) && (name == "" || ex.Name == name) {
				zap.L().Debug("reusing existing index",
					zap.String("collection", coll.Name()),
					zap.String("name", ex.Name),
					zap.String("keys", sig))
				continue
			}
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), name, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if isDuplicateKeyErr(err) && boolOf(unique) {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), name))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
			}
			zap.L().Warn("index ensure failed",
				zap.String("collection", coll.Name()),
				zap.String("name", name),
				zap.String("keys", sig),
				zap.Error(err))
			continue
		}
		zap.L().Info("index ensured",
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", boolOf(unique)),
			zap.String("took", time.Since(start).String()))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func ensureGroups(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("groups"), []mongo.IndexModel{
		// Ownership quota counts: owned groups (per type) of a user
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "type_id", Value: 1}, {Key: "deletion_date", Value: 1}},
			Options: options.Index().SetName("idx_groups_owner_type_deleted"),
		},
		{
			Keys:    bson.D{{Key: "type_id", Value: 1}},
			Options: options.Index().SetName("idx_groups_type"),
		},
	})
}

func ensureGroupMembers(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("group_members"), []mongo.IndexModel{
		// Uniqueness: exactly one membership per (group, user)
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_gm_group_user"),
		},
		// Owner lookup and role segmentation
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "role", Value: 1}},
			Options: options.Index().SetName("idx_gm_group_role"),
		},
		// A user's joined groups
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "group_id", Value: 1}},
			Options: options.Index().SetName("idx_gm_user_group"),
		},
	})
}

func ensureGroupBlockedUsers(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("group_blocked_users"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_gbu_group_user"),
		},
	})
}

func requestIndexes(prefix, senderField, recipientField string) []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "creation_date", Value: -1}},
			Options: options.Index().SetName("idx_" + prefix + "_group_created"),
		},
		{
			Keys:    bson.D{{Key: senderField, Value: 1}, {Key: "creation_date", Value: -1}},
			Options: options.Index().SetName("idx_" + prefix + "_sender_created"),
		},
		{
			Keys:    bson.D{{Key: recipientField, Value: 1}, {Key: "creation_date", Value: -1}},
			Options: options.Index().SetName("idx_" + prefix + "_recipient_created"),
		},
		// Sweep: pending requests past their expiration date
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "expiration_date", Value: 1}},
			Options: options.Index().SetName("idx_" + prefix + "_status_expiration"),
		},
	}
}

func ensureGroupInvitations(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("group_invitations"), requestIndexes("gi", "inviter_id", "invitee_id"))
}

func ensureGroupJoinRequests(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("group_join_requests"), requestIndexes("gjr", "requester_id", "responder_id"))
}

func ensureGroupJoinQuestions(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("group_join_questions"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}},
			Options: options.Index().SetName("idx_gjq_group"),
		},
	})
}

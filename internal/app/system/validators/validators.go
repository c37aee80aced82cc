// internal/app/system/validators/validators.go
package validators

// User and group IDs are int64 values assigned outside MongoDB; group IDs
// come from the snowflake generator, user IDs from the upstream IM service.

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/grouphub/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. Collections must exist before the first multi-document
// transaction touches them on servers older than 4.4. On servers that don't
// support collMod/validators (e.g. some DocumentDB versions), we log and skip.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure("groups", groupsSchema())
	ensure("group_members", groupMembersSchema())
	ensure("group_blocked_users", groupBlockedUsersSchema())
	ensure("group_invitations", requestSchema("inviter_id", "invitee_id"))
	ensure("group_join_requests", requestSchema("requester_id"))
	ensure("group_join_questions", groupJoinQuestionsSchema())

	// Policy records
	ensure("group_types", groupTypesSchema())
	ensure("user_permission_groups", nil)
	ensure("user_permission_assignments", nil)

	// Version records are upserted inside transactions.
	ensure("group_versions", nil)
	ensure("user_versions", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

var number = bson.M{"bsonType": bson.A{"int", "long"}}

func enumOf[T ~string](vals ...T) bson.M {
	out := bson.A{}
	for _, v := range vals {
		out = append(out, string(v))
	}
	return bson.M{"enum": out}
}

func groupsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"type_id", "creator_id", "owner_id", "name", "creation_date", "is_active"},
			"properties": bson.M{
				"_id":           number,
				"type_id":       number,
				"creator_id":    number,
				"owner_id":      number,
				"name":          bson.M{"bsonType": "string"},
				"minimum_score": number,
				"creation_date": bson.M{"bsonType": "date"},
				"deletion_date": bson.M{"bsonType": bson.A{"date", "null"}},
				"mute_end_date": bson.M{"bsonType": bson.A{"date", "null"}},
				"is_active":     bson.M{"bsonType": "bool"},
			},
		},
	}
}

func groupMembersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"group_id", "user_id", "role", "join_date"},
			"properties": bson.M{
				"group_id":      number,
				"user_id":       number,
				"role":          enumOf(models.RoleOwner, models.RoleManager, models.RoleMember),
				"name":          bson.M{"bsonType": "string"},
				"join_date":     bson.M{"bsonType": "date"},
				"mute_end_date": bson.M{"bsonType": "date"},
			},
		},
	}
}

func groupBlockedUsersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"group_id", "user_id", "block_date"},
			"properties": bson.M{
				"group_id":     number,
				"user_id":      number,
				"block_date":   bson.M{"bsonType": "date"},
				"requester_id": number,
			},
		},
	}
}

func requestSchema(required ...string) bson.M {
	req := bson.A{"group_id", "status", "creation_date"}
	props := bson.M{
		"_id":      number,
		"group_id": number,
		"status": enumOf(models.RequestPending, models.RequestAccepted, models.RequestDeclined,
			models.RequestIgnored, models.RequestCanceled, models.RequestExpired),
		"content":         bson.M{"bsonType": "string"},
		"creation_date":   bson.M{"bsonType": "date"},
		"response_date":   bson.M{"bsonType": bson.A{"date", "null"}},
		"expiration_date": bson.M{"bsonType": bson.A{"date", "null"}},
	}
	for _, f := range required {
		req = append(req, f)
		props[f] = number
	}
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType":   "object",
			"required":   req,
			"properties": props,
		},
	}
}

func groupJoinQuestionsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"group_id", "question", "score"},
			"properties": bson.M{
				"_id":      number,
				"group_id": number,
				"question": bson.M{"bsonType": "string", "minLength": 1},
				"answers":  bson.M{"bsonType": bson.A{"array", "null"}, "items": bson.M{"bsonType": "string"}},
				"score":    number,
			},
		},
	}
}

func groupTypesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"group_size_limit", "invitation_strategy", "join_strategy"},
			"properties": bson.M{
				"group_size_limit": number,
				"invitation_strategy": enumOf(
					models.InviteAll, models.InviteAllRequiringApproval,
					models.InviteOwner, models.InviteOwnerRequiringApproval,
					models.InviteOwnerManager, models.InviteOwnerManagerRequiringApproval,
					models.InviteOwnerManagerMember, models.InviteOwnerManagerMemberRequiringApproval),
				"join_strategy": enumOf(
					models.JoinMembershipRequest, models.JoinInvitationOnly, models.JoinQuestion, models.JoinFree),
			},
		},
	}
}

package validators_test

import (
	"testing"
	"time"

	"github.com/dalemusser/grouphub/internal/app/system/validators"
	"github.com/dalemusser/grouphub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
)

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("First EnsureAll failed: %v", err)
	}
	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("Second EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_CreatesCollections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		t.Fatalf("ListCollectionNames failed: %v", err)
	}
	have := map[string]bool{}
	for _, n := range names {
		have[n] = true
	}
	for _, want := range []string{
		"groups", "group_members", "group_blocked_users",
		"group_invitations", "group_join_requests", "group_join_questions",
		"group_types", "user_permission_groups", "user_permission_assignments",
		"group_versions", "user_versions",
	} {
		if !have[want] {
			t.Errorf("collection %q not created", want)
		}
	}
}

func TestEnsureAll_RejectsBadRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := validators.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	_, err := db.Collection("group_members").InsertOne(ctx, bson.M{
		"group_id":  int64(1),
		"user_id":   int64(2),
		"role":      "ADMIN",
		"join_date": time.Now(),
	})
	if err == nil {
		t.Skip("server does not enforce validators")
	}
}

package blockstore_test

import (
	"testing"

	blockstore "github.com/dalemusser/grouphub/internal/app/store/blocks"
	versionstore "github.com/dalemusser/grouphub/internal/app/store/versions"
	"github.com/dalemusser/grouphub/internal/domain/models"
	"github.com/dalemusser/grouphub/internal/testutil"
	"go.uber.org/zap"
)

func TestStore_AddRemove(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := blockstore.New(db, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	n, err := store.Add(ctx, 1, 100, 5, 6)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Add: got %d, want 2", n)
	}

	// Re-blocking is a no-op.
	n, err = store.Add(ctx, 1, 100, 5)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if n != 0 {
		t.Errorf("second Add: got %d, want 0", n)
	}

	blocked, err := store.IsBlocked(ctx, 1, 5)
	if err != nil || !blocked {
		t.Errorf("IsBlocked(5): got %v, %v", blocked, err)
	}
	blocked, err = store.IsBlocked(ctx, 2, 5)
	if err != nil || blocked {
		t.Errorf("IsBlocked in other group: got %v, %v", blocked, err)
	}

	v, _ := versionstore.NewGroupVersions(db).Query(ctx, 1, models.GroupBlacklistVersion)
	if v.Equal(versionstore.BeginningOfTime) {
		t.Error("expected blacklist version to be bumped")
	}

	if _, err := store.Remove(ctx, 1, 5); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	ids, err := store.ListUserIDs(ctx, 1)
	if err != nil {
		t.Fatalf("ListUserIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != 6 {
		t.Errorf("ListUserIDs: got %v, want [6]", ids)
	}

	if _, err := store.DeleteByGroup(ctx, 1); err != nil {
		t.Fatalf("DeleteByGroup failed: %v", err)
	}
	ids, _ = store.ListUserIDs(ctx, 1)
	if len(ids) != 0 {
		t.Errorf("after DeleteByGroup: got %v", ids)
	}
}

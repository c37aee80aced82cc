package versionstore_test

import (
	"errors"
	"testing"
	"time"

	versionstore "github.com/dalemusser/grouphub/internal/app/store/versions"
	"github.com/dalemusser/grouphub/internal/domain/models"
	"github.com/dalemusser/grouphub/internal/testutil"
	"go.uber.org/zap"
)

func TestStore_Query_Absent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := versionstore.NewGroupVersions(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	got, err := store.Query(ctx, 42, models.GroupMembersVersion)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !got.Equal(versionstore.BeginningOfTime) {
		t.Errorf("Query: got %v, want BeginningOfTime", got)
	}
}

func TestStore_Bump_Upserts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	store := versionstore.NewGroupVersions(db).WithClock(func() time.Time { return now })
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.Bump(ctx, 7, models.GroupInfoVersion); err != nil {
		t.Fatalf("Bump failed: %v", err)
	}

	got, err := store.Query(ctx, 7, models.GroupInfoVersion)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	want := now.Truncate(time.Millisecond)
	if !got.Equal(want) {
		t.Errorf("Query: got %v, want %v", got, want)
	}

	// Other resources of the same scope stay untouched.
	other, err := store.Query(ctx, 7, models.GroupMembersVersion)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !other.Equal(versionstore.BeginningOfTime) {
		t.Errorf("members version: got %v, want BeginningOfTime", other)
	}
}

func TestStore_Bump_NeverDecreases(t *testing.T) {
	db := testutil.SetupTestDB(t)
	later := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	clock := later
	store := versionstore.NewGroupVersions(db).WithClock(func() time.Time { return clock })
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.Bump(ctx, 1, models.GroupMembersVersion); err != nil {
		t.Fatalf("Bump failed: %v", err)
	}

	// A node with a lagging clock bumps afterwards.
	clock = earlier
	if err := store.Bump(ctx, 1, models.GroupMembersVersion); err != nil {
		t.Fatalf("Bump failed: %v", err)
	}

	got, err := store.Query(ctx, 1, models.GroupMembersVersion)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !got.Equal(later) {
		t.Errorf("Query: got %v, want %v", got, later)
	}
}

func TestStore_Bump_Twice(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := versionstore.NewUserVersions(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.Bump(ctx, 5, models.UserJoinedGroupsVersion); err != nil {
		t.Fatalf("Bump failed: %v", err)
	}
	first, err := store.Query(ctx, 5, models.UserJoinedGroupsVersion)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	if err := store.Bump(ctx, 5, models.UserJoinedGroupsVersion); err != nil {
		t.Fatalf("Bump failed: %v", err)
	}
	second, err := store.Query(ctx, 5, models.UserJoinedGroupsVersion)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if second.Before(first) {
		t.Errorf("second bump %v is before first %v", second, first)
	}
}

func TestStore_BumpMany(t *testing.T) {
	db := testutil.SetupTestDB(t)
	now := time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC)
	store := versionstore.NewGroupVersions(db).WithClock(func() time.Time { return now })
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.BumpMany(ctx, 3, models.GroupVersionResources...); err != nil {
		t.Fatalf("BumpMany failed: %v", err)
	}
	for _, r := range models.GroupVersionResources {
		got, err := store.Query(ctx, 3, r)
		if err != nil {
			t.Fatalf("Query(%s) failed: %v", r, err)
		}
		if !got.Equal(now) {
			t.Errorf("%s: got %v, want %v", r, got, now)
		}
	}

	if err := store.BumpMany(ctx, 3); err != nil {
		t.Errorf("BumpMany with no resources: %v", err)
	}
}

func TestStore_BumpScopes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	now := time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC)
	store := versionstore.NewUserVersions(db).WithClock(func() time.Time { return now })
	ctx, cancel := testutil.TestContext()
	defer cancel()

	users := []int64{10, 11, 12}
	if err := store.BumpScopes(ctx, users, models.UserJoinedGroupsVersion); err != nil {
		t.Fatalf("BumpScopes failed: %v", err)
	}
	for _, u := range users {
		got, err := store.Query(ctx, u, models.UserJoinedGroupsVersion)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if !got.Equal(now) {
			t.Errorf("user %d: got %v, want %v", u, got, now)
		}
	}
}

func TestStore_Delete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := versionstore.NewGroupVersions(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.Bump(ctx, 9, models.GroupInfoVersion); err != nil {
		t.Fatalf("Bump failed: %v", err)
	}
	if err := store.Delete(ctx, 9); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	got, err := store.Query(ctx, 9, models.GroupInfoVersion)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !got.Equal(versionstore.BeginningOfTime) {
		t.Errorf("after Delete: got %v, want BeginningOfTime", got)
	}
}

func TestBestEffort(t *testing.T) {
	if err := versionstore.BestEffort(zap.NewNop(), "bump", nil); err != nil {
		t.Errorf("nil error: got %v", err)
	}
	cause := errors.New("boom")
	if err := versionstore.BestEffort(zap.NewNop(), "bump", cause); !errors.Is(err, cause) {
		t.Errorf("got %v, want %v", err, cause)
	}
	if err := versionstore.BestEffort(nil, "bump", cause); !errors.Is(err, cause) {
		t.Errorf("nil logger: got %v, want %v", err, cause)
	}
}

package groupadmin_test

import (
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/grouphub/internal/app/services/groupadmin"
	"github.com/dalemusser/grouphub/internal/app/services/syncgateway"
	"github.com/dalemusser/grouphub/internal/app/store/audit"
	groupstore "github.com/dalemusser/grouphub/internal/app/store/groups"
	membershipstore "github.com/dalemusser/grouphub/internal/app/store/memberships"
	policystore "github.com/dalemusser/grouphub/internal/app/store/policies"
	versionstore "github.com/dalemusser/grouphub/internal/app/store/versions"
	"github.com/dalemusser/grouphub/internal/app/system/auditlog"
	"github.com/dalemusser/grouphub/internal/app/system/grouperr"
	"github.com/dalemusser/grouphub/internal/app/system/ids"
	"github.com/dalemusser/grouphub/internal/app/system/txn"
	"github.com/dalemusser/grouphub/internal/domain/models"
	"github.com/dalemusser/grouphub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func newService(t *testing.T, db *mongo.Database, cfg groupadmin.Config) *groupadmin.Service {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	policies := policystore.New(db, nil, zap.NewNop())
	if err := policies.SeedDefaults(ctx); err != nil {
		t.Fatalf("SeedDefaults failed: %v", err)
	}
	gen, err := ids.NewGenerator(2)
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	return groupadmin.New(db, policies, gen, nil, cfg, zap.NewNop())
}

func wantErr(t *testing.T, err error, kind grouperr.Kind, reason string) {
	t.Helper()
	if !grouperr.IsKind(err, kind) {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
	if reason != "" && grouperr.ReasonOf(err) != reason {
		t.Errorf("reason: got %q, want %q", grouperr.ReasonOf(err), reason)
	}
}

func ptr[T any](v T) *T { return &v }

func TestCreate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newService(t, db, groupadmin.DefaultConfig())
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	res, err := svc.Create(ctx, groupadmin.NewGroup{CreatorID: 10, Name: "Readers", MemberIDs: []int64{11, 12, 10, 11}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	g := res.Group
	if g.ID == 0 || g.OwnerID != 10 || g.CreatorID != 10 || !g.IsActive {
		t.Errorf("unexpected group: %+v", g)
	}
	if len(res.Added) != 2 {
		t.Errorf("Added: got %v, want [11 12]", res.Added)
	}

	if n := fixtures.CountDocs(ctx, "group_members", bson.M{"group_id": g.ID, "user_id": int64(10), "role": models.RoleOwner}); n != 1 {
		t.Error("expected creator to be OWNER")
	}
	if n := fixtures.CountDocs(ctx, "group_members", bson.M{"group_id": g.ID}); n != 3 {
		t.Errorf("members: got %d, want 3", n)
	}

	versions := versionstore.NewGroupVersions(db)
	for _, r := range models.GroupVersionResources {
		v, err := versions.Query(ctx, g.ID, r)
		if err != nil {
			t.Fatalf("Query(%s) failed: %v", r, err)
		}
		if v.Equal(versionstore.BeginningOfTime) {
			t.Errorf("version %s not stamped", r)
		}
	}
}

func TestCreate_Rejections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newService(t, db, groupadmin.DefaultConfig())
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fixtures.CreatePermissionGroup(ctx, models.UserPermissionGroup{
		ID:                              3,
		CreatableGroupTypeIDs:           []int64{models.DefaultGroupTypeID},
		OwnedGroupLimit:                 1,
		OwnedGroupLimitForEachGroupType: 5,
	}, 20)
	fixtures.CreateGroup(ctx, "existing", 20, models.DefaultGroupTypeID)

	_, err := svc.Create(ctx, groupadmin.NewGroup{CreatorID: 20, Name: "second"})
	wantErr(t, err, grouperr.QuotaExceeded, grouperr.ReasonOwnedGroupLimit)
	if n := fixtures.CountDocs(ctx, "groups", bson.M{"name": "second"}); n != 0 {
		t.Errorf("expected no group stored, got %d", n)
	}

	_, err = svc.Create(ctx, groupadmin.NewGroup{CreatorID: 21, Name: "typed", TypeID: 99})
	wantErr(t, err, grouperr.NotFound, grouperr.ReasonGroupTypeNotFound)

	_, err = svc.Create(ctx, groupadmin.NewGroup{CreatorID: 21, Name: "  "})
	wantErr(t, err, grouperr.Validation, grouperr.ReasonInvalidInput)
}

func TestUpdateInformation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newService(t, db, groupadmin.DefaultConfig())
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g := fixtures.CreateGroup(ctx, "G", 1, models.DefaultGroupTypeID)
	fixtures.CreateMember(ctx, g.ID, 2, models.RoleManager)
	fixtures.CreateMember(ctx, g.ID, 3, models.RoleMember)

	_, err := svc.UpdateInformation(ctx, 3, g.ID, groupstore.InfoUpdate{Name: ptr("by member")})
	wantErr(t, err, grouperr.Authorization, grouperr.ReasonUpdateNotAllowed)

	_, err = svc.UpdateInformation(ctx, 2, g.ID, groupstore.InfoUpdate{IsActive: ptr(false)})
	wantErr(t, err, grouperr.Authorization, grouperr.ReasonNotOwner)

	_, err = svc.UpdateInformation(ctx, 2, g.ID, groupstore.InfoUpdate{})
	wantErr(t, err, grouperr.Validation, grouperr.ReasonInvalidInput)

	affected, err := svc.UpdateInformation(ctx, 2, g.ID, groupstore.InfoUpdate{
		Name:        ptr("renamed"),
		MuteEndDate: ptr(time.Now().Add(-time.Minute)),
	})
	if err != nil {
		t.Fatalf("UpdateInformation failed: %v", err)
	}
	if len(affected) != 3 {
		t.Errorf("affected: got %v, want 3 members", affected)
	}

	var raw bson.M
	if err := db.Collection("groups").FindOne(ctx, bson.M{"_id": g.ID}).Decode(&raw); err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if raw["name"] != "renamed" {
		t.Errorf("name: got %v", raw["name"])
	}
	if _, ok := raw["mute_end_date"]; ok {
		t.Error("past mute end date should not be stored")
	}

	v, _ := versionstore.NewGroupVersions(db).Query(ctx, g.ID, models.GroupInfoVersion)
	if v.Equal(versionstore.BeginningOfTime) {
		t.Error("expected info version to be bumped")
	}
}

func TestDelete(t *testing.T) {
	for _, logical := range []bool{true, false} {
		name := "physical"
		if logical {
			name = "logical"
		}
		t.Run(name, func(t *testing.T) {
			db := testutil.SetupTestDB(t)
			svc := newService(t, db, groupadmin.DefaultConfig())
			fixtures := testutil.NewFixtures(t, db)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			g := fixtures.CreateGroup(ctx, "G", 1, models.DefaultGroupTypeID)
			fixtures.CreateMember(ctx, g.ID, 2, models.RoleMember)
			fixtures.BlockUser(ctx, g.ID, 9)
			fixtures.CreateInvitation(ctx, g.ID, 1, 5, models.RequestPending, nil)
			fixtures.CreateJoinRequest(ctx, g.ID, 6, models.RequestPending, nil)
			if err := versionstore.NewGroupVersions(db).Bump(ctx, g.ID, models.GroupInfoVersion); err != nil {
				t.Fatalf("Bump failed: %v", err)
			}
			gw := syncgateway.New(db, zap.NewNop())
			held, err := gw.GroupInfo(ctx, g.ID, nil)
			if err != nil || held.Outcome != syncgateway.Snapshot {
				t.Fatalf("GroupInfo before delete: %+v, %v", held, err)
			}

			_, err = svc.Delete(ctx, 2, g.ID, &logical)
			wantErr(t, err, grouperr.Authorization, grouperr.ReasonNotOwner)

			res, err := svc.Delete(ctx, 1, g.ID, &logical)
			if err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if res.VersionErr != nil {
				t.Errorf("VersionErr: %v", res.VersionErr)
			}
			affected := map[int64]bool{}
			for _, id := range res.AffectedUserIDs {
				affected[id] = true
			}
			for _, id := range []int64{1, 2, 5, 6} {
				if !affected[id] {
					t.Errorf("user %d missing from affected %v", id, res.AffectedUserIDs)
				}
			}

			for _, coll := range []string{"group_members", "group_blocked_users", "group_invitations", "group_join_requests", "group_join_questions"} {
				if n := fixtures.CountDocs(ctx, coll, bson.M{"group_id": g.ID}); n != 0 {
					t.Errorf("%s: %d documents left", coll, n)
				}
			}
			if n := fixtures.CountDocs(ctx, "group_versions", bson.M{"_id": g.ID}); n != 0 {
				t.Error("expected version record to be removed")
			}

			groups := fixtures.CountDocs(ctx, "groups", bson.M{"_id": g.ID})
			deleted := fixtures.CountDocs(ctx, "groups", bson.M{"_id": g.ID, "deletion_date": bson.M{"$ne": nil}})
			if logical && (groups != 1 || deleted != 1) {
				t.Error("expected group document with deletion_date")
			}
			if !logical && groups != 0 {
				t.Error("expected group document to be removed")
			}

			gone, err := gw.GroupInfo(ctx, g.ID, &held.Version)
			if err != nil {
				t.Fatalf("GroupInfo after delete failed: %v", err)
			}
			if gone.Outcome != syncgateway.Empty {
				t.Errorf("client holding %v: got %v, want empty", held.Version, gone.Outcome)
			}

			_, err = svc.DeleteGroup(ctx, g.ID, nil)
			wantErr(t, err, grouperr.NotFound, grouperr.ReasonGroupNotFound)
		})
	}
}

func TestQuit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newService(t, db, groupadmin.DefaultConfig())
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g := fixtures.CreateGroup(ctx, "G", 1, models.DefaultGroupTypeID)
	fixtures.CreateMember(ctx, g.ID, 2, models.RoleMember)
	fixtures.CreateMember(ctx, g.ID, 3, models.RoleMember)

	_, err := svc.Quit(ctx, 9, g.ID, 0)
	wantErr(t, err, grouperr.Authorization, grouperr.ReasonNotMember)

	_, err = svc.Quit(ctx, 1, g.ID, 0)
	wantErr(t, err, grouperr.Validation, grouperr.ReasonOwnerCannotQuit)

	if _, err := svc.Quit(ctx, 3, g.ID, 0); err != nil {
		t.Fatalf("member Quit failed: %v", err)
	}
	if n := fixtures.CountDocs(ctx, "group_members", bson.M{"group_id": g.ID, "user_id": int64(3)}); n != 0 {
		t.Error("expected member 3 to be gone")
	}

	if _, err := svc.Quit(ctx, 1, g.ID, 2); err != nil {
		t.Fatalf("owner Quit failed: %v", err)
	}
	if n := fixtures.CountDocs(ctx, "group_members", bson.M{"group_id": g.ID, "user_id": int64(1)}); n != 0 {
		t.Error("expected old owner to be gone")
	}
	if n := fixtures.CountDocs(ctx, "group_members", bson.M{"group_id": g.ID, "role": models.RoleOwner}); n != 1 {
		t.Errorf("owners: got %d, want 1", n)
	}
}

func TestJoinAndAddMembers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newService(t, db, groupadmin.DefaultConfig())
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	open := models.DefaultGroupType()
	open.ID = 2
	open.JoinStrategy = models.JoinFree
	open.InvitationStrategy = models.InviteOwnerManager
	fixtures.CreateGroupType(ctx, open)

	closed := fixtures.CreateGroup(ctx, "closed", 1, models.DefaultGroupTypeID)
	g := fixtures.CreateGroup(ctx, "open", 1, open.ID)
	fixtures.CreateMember(ctx, g.ID, 2, models.RoleMember)
	fixtures.BlockUser(ctx, g.ID, 9)

	_, err := svc.Join(ctx, 5, closed.ID)
	wantErr(t, err, grouperr.Authorization, grouperr.ReasonDirectJoinNotAllowed)

	if _, err := svc.Join(ctx, 5, g.ID); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	_, err = svc.Join(ctx, 9, g.ID)
	wantErr(t, err, grouperr.Authorization, grouperr.ReasonUserBlocked)

	_, err = svc.AddMembers(ctx, 1, closed.ID, []int64{6})
	wantErr(t, err, grouperr.Authorization, grouperr.ReasonApprovalRequired)

	_, err = svc.AddMembers(ctx, 2, g.ID, []int64{6})
	wantErr(t, err, grouperr.Authorization, grouperr.ReasonInvitationNotAllowed)

	res, err := svc.AddMembers(ctx, 1, g.ID, []int64{6, 7, 9, 5})
	if err != nil {
		t.Fatalf("AddMembers failed: %v", err)
	}
	if len(res.Added) != 2 || len(res.Blocked) != 1 || res.Duplicates != 1 {
		t.Errorf("got added=%v blocked=%v duplicates=%d", res.Added, res.Blocked, res.Duplicates)
	}
}

func TestJoin_SizeLimitHoldsUnderConcurrency(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.RequireTransactions(t, db)
	svc := newService(t, db, groupadmin.Config{Txn: txn.Policy{MaxAttempts: 20, InitialBackoff: time.Millisecond, MaxBackoff: 20 * time.Millisecond}})
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	small := models.DefaultGroupType()
	small.ID = 3
	small.JoinStrategy = models.JoinFree
	small.GroupSizeLimit = 3
	fixtures.CreateGroupType(ctx, small)
	g := fixtures.CreateGroup(ctx, "small", 1, small.ID)
	if err := versionstore.NewGroupVersions(db).Bump(ctx, g.ID, models.GroupInfoVersion); err != nil {
		t.Fatalf("Bump failed: %v", err)
	}

	const joiners = 8
	var wg sync.WaitGroup
	errs := make([]error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Join(ctx, int64(100+i), g.ID)
		}(i)
	}
	wg.Wait()

	joined := 0
	for _, err := range errs {
		switch {
		case err == nil:
			joined++
		case grouperr.IsKind(err, grouperr.QuotaExceeded), grouperr.IsKind(err, grouperr.Conflict):
		default:
			t.Errorf("unexpected join error: %v", err)
		}
	}
	if n := fixtures.CountDocs(ctx, "group_members", bson.M{"group_id": g.ID}); n > 3 {
		t.Errorf("members: got %d, limit is 3", n)
	}
	if joined > 2 {
		t.Errorf("joined: got %d, want at most 2 besides the owner", joined)
	}
}

func TestCreate_OwnedLimitHoldsUnderConcurrency(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.RequireTransactions(t, db)
	svc := newService(t, db, groupadmin.Config{Txn: txn.Policy{MaxAttempts: 20, InitialBackoff: time.Millisecond, MaxBackoff: 20 * time.Millisecond}})
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	const creator = int64(77)
	quota := models.DefaultUserPermissionGroup()
	quota.ID = 5
	quota.OwnedGroupLimit = 1
	fixtures.CreatePermissionGroup(ctx, quota, creator)
	if err := versionstore.NewUserVersions(db).Bump(ctx, creator, models.UserJoinedGroupsVersion); err != nil {
		t.Fatalf("Bump failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Create(ctx, groupadmin.NewGroup{CreatorID: creator, Name: "race"})
		}()
	}
	wg.Wait()

	if n := fixtures.CountDocs(ctx, "groups", bson.M{"owner_id": creator}); n != 1 {
		t.Errorf("owned groups: got %d, want 1", n)
	}
}

func TestRemoveMembers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newService(t, db, groupadmin.DefaultConfig())
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g := fixtures.CreateGroup(ctx, "G", 1, models.DefaultGroupTypeID)
	fixtures.CreateMember(ctx, g.ID, 2, models.RoleManager)
	fixtures.CreateMember(ctx, g.ID, 3, models.RoleManager)
	fixtures.CreateMember(ctx, g.ID, 4, models.RoleMember)

	tests := []struct {
		name    string
		actor   int64
		targets []int64
		kind    grouperr.Kind
		reason  string
	}{
		{"member cannot remove", 4, []int64{3}, grouperr.Authorization, grouperr.ReasonNotOwnerOrManager},
		{"manager cannot remove manager", 2, []int64{4, 3}, grouperr.Authorization, grouperr.ReasonNotOwner},
		{"nobody removes the owner", 2, []int64{1}, grouperr.Authorization, grouperr.ReasonCannotTargetOwner},
		{"self", 1, []int64{1}, grouperr.Validation, grouperr.ReasonCannotTargetSelf},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RemoveMembers(ctx, tt.actor, g.ID, tt.targets)
			wantErr(t, err, tt.kind, tt.reason)
		})
	}
	if n := fixtures.CountDocs(ctx, "group_members", bson.M{"group_id": g.ID}); n != 4 {
		t.Fatalf("rejected calls removed members: %d left", n)
	}

	if _, err := svc.RemoveMembers(ctx, 2, g.ID, []int64{4}); err != nil {
		t.Fatalf("RemoveMembers by manager failed: %v", err)
	}
	if _, err := svc.RemoveMembers(ctx, 1, g.ID, []int64{3}); err != nil {
		t.Fatalf("RemoveMembers by owner failed: %v", err)
	}
	if n := fixtures.CountDocs(ctx, "group_members", bson.M{"group_id": g.ID}); n != 2 {
		t.Errorf("members: got %d, want 2", n)
	}
}

func TestUpdateMember(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newService(t, db, groupadmin.DefaultConfig())
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g := fixtures.CreateGroup(ctx, "G", 1, models.DefaultGroupTypeID)
	fixtures.CreateMember(ctx, g.ID, 2, models.RoleManager)
	fixtures.CreateMember(ctx, g.ID, 3, models.RoleMember)

	_, err := svc.UpdateMember(ctx, 2, g.ID, 3, membershipstore.MemberUpdate{Role: ptr(models.RoleManager)})
	wantErr(t, err, grouperr.Authorization, grouperr.ReasonManagerCannotPromote)

	_, err = svc.UpdateMember(ctx, 1, g.ID, 3, membershipstore.MemberUpdate{Role: ptr(models.RoleOwner)})
	wantErr(t, err, grouperr.Authorization, grouperr.ReasonCannotTargetOwner)

	_, err = svc.UpdateMember(ctx, 3, g.ID, 2, membershipstore.MemberUpdate{Name: ptr("x")})
	wantErr(t, err, grouperr.Authorization, grouperr.ReasonUpdateNotAllowed)

	_, err = svc.UpdateMember(ctx, 3, g.ID, 3, membershipstore.MemberUpdate{MuteEndDate: ptr(time.Now().Add(time.Hour))})
	wantErr(t, err, grouperr.Authorization, grouperr.ReasonNotOwnerOrManager)

	if _, err := svc.UpdateMember(ctx, 1, g.ID, 3, membershipstore.MemberUpdate{Role: ptr(models.RoleManager)}); err != nil {
		t.Fatalf("promote failed: %v", err)
	}
	if _, err := svc.UpdateMember(ctx, 3, g.ID, 3, membershipstore.MemberUpdate{Name: ptr("me")}); err != nil {
		t.Fatalf("self rename failed: %v", err)
	}
	if _, err := svc.UpdateMember(ctx, 1, g.ID, 2, membershipstore.MemberUpdate{MuteEndDate: ptr(time.Now().Add(time.Hour))}); err != nil {
		t.Fatalf("mute failed: %v", err)
	}

	if n := fixtures.CountDocs(ctx, "group_members", bson.M{"group_id": g.ID, "user_id": int64(3), "role": models.RoleManager, "name": "me"}); n != 1 {
		t.Error("expected user 3 to be a MANAGER named me")
	}
	if n := fixtures.CountDocs(ctx, "group_members", bson.M{"group_id": g.ID, "user_id": int64(2), "mute_end_date": bson.M{"$exists": true}}); n != 1 {
		t.Error("expected user 2 to be muted")
	}
}

func TestBlockUsers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := newService(t, db, groupadmin.DefaultConfig())
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g := fixtures.CreateGroup(ctx, "G", 1, models.DefaultGroupTypeID)
	fixtures.CreateMember(ctx, g.ID, 2, models.RoleManager)
	fixtures.CreateMember(ctx, g.ID, 3, models.RoleMember)

	_, err := svc.BlockUsers(ctx, 3, g.ID, []int64{8})
	wantErr(t, err, grouperr.Authorization, grouperr.ReasonNotOwnerOrManager)

	_, err = svc.BlockUsers(ctx, 2, g.ID, []int64{1})
	wantErr(t, err, grouperr.Authorization, grouperr.ReasonCannotTargetOwner)

	res, err := svc.BlockUsers(ctx, 2, g.ID, []int64{3, 8})
	if err != nil {
		t.Fatalf("BlockUsers failed: %v", err)
	}
	if res.NewlyBlocked != 2 || res.Removed != 1 {
		t.Errorf("got newly=%d removed=%d, want 2 and 1", res.NewlyBlocked, res.Removed)
	}
	if n := fixtures.CountDocs(ctx, "group_members", bson.M{"group_id": g.ID, "user_id": int64(3)}); n != 0 {
		t.Error("expected blocked member to be removed")
	}

	n, err := svc.UnblockUsers(ctx, 1, g.ID, []int64{3, 3, 8})
	if err != nil {
		t.Fatalf("UnblockUsers failed: %v", err)
	}
	if n != 2 {
		t.Errorf("unblocked: got %d, want 2", n)
	}

	v, _ := versionstore.NewGroupVersions(db).Query(ctx, g.ID, models.GroupBlacklistVersion)
	if v.Equal(versionstore.BeginningOfTime) {
		t.Error("expected blacklist version to be bumped")
	}
}

func TestAuditTrail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	cfg := groupadmin.DefaultConfig()
	cfg.Audit = auditlog.New(store, zap.NewNop(), auditlog.ModeDB)
	svc := newService(t, db, cfg)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := svc.Create(ctx, groupadmin.NewGroup{CreatorID: 70, Name: "Audited", MemberIDs: []int64{71}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	g := created.Group
	if _, err := svc.BlockUsers(ctx, 70, g.ID, []int64{71}); err != nil {
		t.Fatalf("BlockUsers failed: %v", err)
	}
	if _, err := svc.Delete(ctx, 70, g.ID, nil); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	events, err := store.List(ctx, audit.QueryFilter{GroupID: g.ID})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var types []string
	for _, e := range events {
		types = append(types, e.EventType)
		if e.ActorID != 70 {
			t.Errorf("%s: actor got %d, want 70", e.EventType, e.ActorID)
		}
	}
	want := map[string]bool{audit.EventGroupCreated: true, audit.EventUsersBlocked: true, audit.EventGroupDeleted: true}
	if len(types) != len(want) {
		t.Fatalf("events: got %v", types)
	}
	for _, typ := range types {
		if !want[typ] {
			t.Errorf("unexpected event %s", typ)
		}
	}
}

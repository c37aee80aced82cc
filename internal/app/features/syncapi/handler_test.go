package syncapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/dalemusser/grouphub/internal/app/features/syncapi"
	"github.com/dalemusser/grouphub/internal/domain/models"
	"github.com/dalemusser/grouphub/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func newRouter(db *mongo.Database) http.Handler {
	return syncapi.Routes(syncapi.NewHandler(db, zap.NewNop()), nil)
}

func get(t *testing.T, h http.Handler, caller int64, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	req.Header.Set(syncapi.CallerHeader, strconv.FormatInt(caller, 10))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func groupPath(groupID int64, resource string) string {
	return "/groups/" + strconv.FormatInt(groupID, 10) + "/" + resource
}

func TestGroupInfo_SnapshotThenNotModified(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	router := newRouter(db)
	g := fixtures.CreateGroup(ctx, "Polled", 1, 0)

	rec := get(t, router, 7, groupPath(g.ID, "info"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Data models.Group `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Data.ID != g.ID || body.Data.Name != "Polled" {
		t.Errorf("data: got %+v", body.Data)
	}

	version := rec.Header().Get(syncapi.VersionHeader)
	if version == "" {
		t.Fatal("missing version header")
	}
	rec = get(t, router, 7, groupPath(g.ID, "info")+"?version="+url.QueryEscape(version))
	if rec.Code != http.StatusNotModified {
		t.Errorf("status with current version: got %d, want 304", rec.Code)
	}
}

func TestGroupResource_Access(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	router := newRouter(db)
	g := fixtures.CreateGroup(ctx, "Private", 1, 0)
	fixtures.CreateMember(ctx, g.ID, 2, models.RoleMember)

	tests := []struct {
		name     string
		caller   int64
		resource string
		status   int
	}{
		{"guest reads members", 9, "members", http.StatusForbidden},
		{"member reads members", 2, "members", http.StatusOK},
		{"member reads blacklist", 2, "blacklist", http.StatusForbidden},
		{"owner reads empty blacklist", 1, "blacklist", http.StatusNoContent},
		{"owner reads empty invitations", 1, "invitations", http.StatusNoContent},
		{"guest reads questions", 9, "join_questions", http.StatusNoContent},
		{"unknown resource", 1, "avatars", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, router, tt.caller, groupPath(g.ID, tt.resource))
			if rec.Code != tt.status {
				t.Errorf("status: got %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestGroupResource_BadInput(t *testing.T) {
	db := testutil.SetupTestDB(t)
	router := newRouter(db)

	if rec := get(t, router, 1, "/groups/abc/info"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad group id: got %d, want 400", rec.Code)
	}
	if rec := get(t, router, 1, "/groups/5/info?version=soon"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad version: got %d, want 400", rec.Code)
	}

	req := httptest.NewRequest("GET", "/groups/5/info", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no caller: got %d, want 401", rec.Code)
	}
}

func TestUserResources(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	router := newRouter(db)
	g := fixtures.CreateGroup(ctx, "Mine", 3, 0)
	fixtures.CreateInvitation(ctx, g.ID, 3, 4, models.RequestPending, nil)

	if rec := get(t, router, 4, "/users/3/joined_groups"); rec.Code != http.StatusForbidden {
		t.Errorf("foreign scope: got %d, want 403", rec.Code)
	}

	rec := get(t, router, 3, "/users/3/joined_groups?ids=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("joined ids: got %d, want 200", rec.Code)
	}
	var ids struct {
		Data []int64 `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ids); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(ids.Data) != 1 || ids.Data[0] != g.ID {
		t.Errorf("joined ids: got %v, want [%d]", ids.Data, g.ID)
	}

	if rec := get(t, router, 4, "/users/4/received_group_invitations"); rec.Code != http.StatusOK {
		t.Errorf("received invitations: got %d, want 200", rec.Code)
	}
	if rec := get(t, router, 4, "/users/4/group_join_requests"); rec.Code != http.StatusNoContent {
		t.Errorf("no join requests: got %d, want 204", rec.Code)
	}
	if rec := get(t, router, 4, "/users/4/friends"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown resource: got %d, want 404", rec.Code)
	}
}

func TestServeGroupResource_Direct(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	h := syncapi.NewHandler(db, zap.NewNop())
	g := fixtures.CreateGroup(ctx, "Direct", 1, 0)

	req := httptest.NewRequest("GET", "/", nil)
	req = testutil.WithChiURLParams(req, "groupID", strconv.FormatInt(g.ID, 10), "resource", "info")
	rec := httptest.NewRecorder()
	h.ServeGroupResource(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

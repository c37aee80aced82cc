package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/grouphub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validAppConfig() AppConfig {
	return AppConfig{
		MongoURI:             "mongodb://localhost:27017",
		MongoDatabase:        "grouphub",
		NATSSubject:          "grouphub.policy.invalidate",
		NodeID:               -1,
		InvitationTTL:        7 * 24 * time.Hour,
		JoinRequestTTL:       0,
		MaxContentLength:     200,
		SweepInterval:        time.Hour,
		SweepAction:          "delete",
		DeleteGroupLogically: true,
		TxnMaxAttempts:       5,
		TxnInitialBackoff:    20 * time.Millisecond,
		TxnMaxBackoff:        500 * time.Millisecond,
		MasterLeaseTTL:       15 * time.Second,
		AuditLog:             "all",
		SyncRateLimit:        600,
	}
}

func TestValidateApp(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"defaults", func(*AppConfig) {}, ""},
		{"mark action", func(c *AppConfig) { c.SweepAction = "mark" }, ""},
		{"unknown action", func(c *AppConfig) { c.SweepAction = "archive" }, "expired_request_action"},
		{"zero interval", func(c *AppConfig) { c.SweepInterval = 0 }, "sweep_interval"},
		{"negative ttl", func(c *AppConfig) { c.InvitationTTL = -time.Second }, "TTLs"},
		{"zero content length", func(c *AppConfig) { c.MaxContentLength = 0 }, "max_content_length"},
		{"zero attempts", func(c *AppConfig) { c.TxnMaxAttempts = 0 }, "txn"},
		{"backoff ceiling below start", func(c *AppConfig) { c.TxnMaxBackoff = time.Millisecond }, "txn"},
		{"negative rate limit", func(c *AppConfig) { c.SyncRateLimit = -1 }, "sync_rate_limit"},
		{"unknown audit mode", func(c *AppConfig) { c.AuditLog = "loud" }, "audit_log"},
		{"node out of range", func(c *AppConfig) { c.NodeID = 5000 }, "node_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAppConfig()
			tt.mutate(&cfg)
			err := validateApp(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestResolveNodeID(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cfg := validAppConfig()
	cfg.NodeID = 17
	if id, err := resolveNodeID(ctx, cfg, nil, testLogger()); err != nil || id != 17 {
		t.Errorf("configured: got %d, %v; want 17", id, err)
	}

	cfg.NodeID = -1
	if id, err := resolveNodeID(ctx, cfg, nil, testLogger()); err != nil || id != 0 {
		t.Errorf("no redis: got %d, %v; want 0", id, err)
	}
}

func TestResolveNodeID_FromRedis(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cfg := validAppConfig()
	first, err := resolveNodeID(ctx, cfg, rdb, testLogger())
	if err != nil {
		t.Fatalf("resolveNodeID failed: %v", err)
	}
	second, err := resolveNodeID(ctx, cfg, rdb, testLogger())
	if err != nil {
		t.Fatalf("resolveNodeID failed: %v", err)
	}
	if first == second {
		t.Errorf("expected distinct node ids, got %d twice", first)
	}
}

func TestStartupAndShutdown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cfg := validAppConfig()
	cfg.NodeID = 3
	// MongoClient stays nil so Shutdown leaves the test client connected.
	deps := DBDeps{MongoDatabase: db, Services: &Services{}}

	if err := Startup(ctx, nil, cfg, deps, testLogger()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	svc := deps.Services
	if svc.Lifecycle == nil || svc.Ownership == nil || svc.Admin == nil || svc.IDs == nil {
		t.Fatalf("services not wired: %+v", svc)
	}
	if !svc.elector.IsMaster() {
		t.Error("single node without redis should be master")
	}
	if svc.IDs.NodeID() != 3 {
		t.Errorf("node id: got %d, want 3", svc.IDs.NodeID())
	}
	if n := fixtures.CountDocs(ctx, "group_types", bson.M{}); n == 0 {
		t.Error("expected default group type to be seeded")
	}

	if err := Shutdown(ctx, nil, cfg, deps, testLogger()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestBuildHandler_Routes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db}

	h, err := BuildHandler(nil, validAppConfig(), deps, testLogger())
	if err != nil {
		t.Fatalf("BuildHandler failed: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/health: got %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/sync/groups/1/info", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("/sync without caller: got %d, want 401", rec.Code)
	}
}

package health_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/grouphub/internal/app/features/health"
	"github.com/dalemusser/grouphub/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type healthBody struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Redis     string `json:"redis"`
	Broadcast string `json:"broadcast"`
}

func serve(t *testing.T, h *health.Handler) (int, healthBody) {
	t.Helper()
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	h.Serve(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want %q", ct, "application/json")
	}
	var body healthBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return rec.Code, body
}

func TestServe_DatabaseConnected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	handler := health.NewHandler(db.Client(), nil, nil, zap.NewNop())

	code, body := serve(t, handler)
	if code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, code)
	}
	if body.Status != "ok" || body.Database != "connected" {
		t.Errorf("got %+v, want ok/connected", body)
	}
	if body.Redis != "disabled" || body.Broadcast != "disabled" {
		t.Errorf("optional backends: got %+v, want disabled", body)
	}
}

func TestServe_WithRedis(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rdb := testutil.SetupTestRedis(t)
	handler := health.NewHandler(db.Client(), rdb, nil, zap.NewNop())

	code, body := serve(t, handler)
	if code != http.StatusOK || body.Redis != "connected" {
		t.Errorf("got %d %+v, want 200 with redis connected", code, body)
	}
}

func TestServe_DatabaseDisconnected(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(testutil.DefaultMongoURI))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := client.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	code, body := serve(t, health.NewHandler(client, nil, nil, zap.NewNop()))
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, code)
	}
	if body.Status != "error" || body.Database != "disconnected" {
		t.Errorf("got %+v, want error/disconnected", body)
	}
}

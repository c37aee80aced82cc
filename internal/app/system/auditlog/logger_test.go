package auditlog_test

import (
	"testing"

	"github.com/dalemusser/grouphub/internal/app/store/audit"
	"github.com/dalemusser/grouphub/internal/app/system/auditlog"
	"github.com/dalemusser/grouphub/internal/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_NilLogger(t *testing.T) {
	var logger *auditlog.Logger
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger.Log(ctx, audit.Event{EventType: "test"})
	logger.GroupCreated(ctx, 1, 2, 0, nil)
	logger.UsersBlocked(ctx, 1, 2, []int64{3})
}

func TestLogger_Modes(t *testing.T) {
	tests := []struct {
		mode   string
		stored int
		logged int
	}{
		{auditlog.ModeAll, 1, 1},
		{auditlog.ModeDB, 1, 0},
		{auditlog.ModeLog, 0, 1},
		{auditlog.ModeOff, 0, 0},
		{"bogus", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			db := testutil.SetupTestDB(t)
			store := audit.New(db)
			core, logs := observer.New(zap.InfoLevel)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			logger := auditlog.New(store, zap.New(core), tt.mode)
			logger.OwnershipTransferred(ctx, 7, 1, 1, 2, true)

			events, err := store.List(ctx, audit.QueryFilter{GroupID: 7})
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(events) != tt.stored {
				t.Errorf("stored: got %d, want %d", len(events), tt.stored)
			}
			if logs.Len() != tt.logged {
				t.Errorf("logged: got %d, want %d", logs.Len(), tt.logged)
			}
			if tt.stored == 1 {
				e := events[0]
				if e.EventType != audit.EventOwnershipTransferred || e.Details["quit"] != "true" {
					t.Errorf("unexpected event: %+v", e)
				}
			}
		})
	}
}

func TestValidMode(t *testing.T) {
	for _, m := range []string{"all", "db", "log", "off"} {
		if !auditlog.ValidMode(m) {
			t.Errorf("ValidMode(%q) = false", m)
		}
	}
	if auditlog.ValidMode("everything") {
		t.Error("ValidMode accepted an unknown mode")
	}
}

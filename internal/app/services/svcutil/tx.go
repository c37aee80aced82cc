package svcutil

import (
	"context"

	versionstore "github.com/dalemusser/grouphub/internal/app/store/versions"
	"github.com/dalemusser/grouphub/internal/app/system/timeouts"
	"github.com/dalemusser/grouphub/internal/app/system/txn"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Track returns ctx carrying a version recorder, reusing the caller's when
// one is attached.
func Track(ctx context.Context) (context.Context, *versionstore.Recorder) {
	if r := versionstore.RecorderFrom(ctx); r != nil {
		return ctx, r
	}
	r := versionstore.NewRecorder()
	return versionstore.WithRecorder(ctx, r), r
}

// RunTx runs fn in a retried transaction bounded, retries included, by the
// write timeout. Version bumps recorded inside fn are held until the
// transaction commits; an aborted attempt discards its bumps, so a bump
// never rolls back a mutation and a rolled-back mutation is never stamped.
func RunTx(ctx context.Context, db *mongo.Database, log *zap.Logger, p txn.Policy, fn func(ctx context.Context) error) error {
	ctx, rec := Track(ctx)
	mark := rec.Hold()
	txCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Write(), log, "transaction")
	err := txn.RunWithRetry(txCtx, db, log, p, func(ctx context.Context) error {
		rec.Rewind(mark)
		return fn(ctx)
	})
	cancel()
	if err != nil {
		rec.Rewind(mark)
	}
	rec.Release(ctx)
	return err
}

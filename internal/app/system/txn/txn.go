// Package txn runs multi-document MongoDB work atomically.
//
// Run executes fn inside a transaction when the deployment supports it and
// falls back to plain execution on standalone servers (local development,
// some DocumentDB deployments). RunWithRetry adds bounded exponential
// backoff on transient transaction errors (write conflicts, elections) and
// reports exhaustion as a grouperr Conflict.
//
// fn must be safe to execute more than once: every attempt starts from a
// clean transaction, so fn must not carry state between attempts other than
// what it reads back from the database.
package txn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/grouphub/internal/app/system/grouperr"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"
)

// Policy bounds the retry loop of RunWithRetry.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy is used by Run and by callers that pass a zero Policy.
var DefaultPolicy = Policy{
	MaxAttempts:    5,
	InitialBackoff: 20 * time.Millisecond,
	MaxBackoff:     500 * time.Millisecond,
}

var (
	mu      sync.RWMutex
	current = DefaultPolicy
)

// Configure replaces the process-wide default policy. Zero fields are ignored.
func Configure(p Policy) {
	mu.Lock()
	defer mu.Unlock()
	if p.MaxAttempts > 0 {
		current.MaxAttempts = p.MaxAttempts
	}
	if p.InitialBackoff > 0 {
		current.InitialBackoff = p.InitialBackoff
	}
	if p.MaxBackoff > 0 {
		current.MaxBackoff = p.MaxBackoff
	}
}

// Current returns the process-wide default policy.
func Current() Policy {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Backoff returns the delay before attempt+1, given that attempt (1-based)
// just failed.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

func (p Policy) withDefaults() Policy {
	def := Current()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	return p
}

// Run executes fn in a transaction using the process-wide retry policy.
func Run(ctx context.Context, db *mongo.Database, log *zap.Logger, fn func(ctx context.Context) error) error {
	return RunWithRetry(ctx, db, log, Policy{}, fn)
}

// RunWithRetry executes fn in a transaction, retrying the whole transaction
// on transient errors with exponential backoff. Business errors returned by
// fn abort immediately and are returned unchanged.
func RunWithRetry(ctx context.Context, db *mongo.Database, log *zap.Logger, p Policy, fn func(ctx context.Context) error) error {
	p = p.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := runOnce(ctx, db, fn)
		if err == nil {
			return nil
		}
		if grouperr.Business(err) {
			return err
		}
		if IsNotSupported(err) {
			log.Warn("transactions not supported; running without transaction", zap.Error(err))
			return fn(ctx)
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Backoff(attempt)
		log.Debug("transient transaction error; retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	log.Warn("transaction retries exhausted",
		zap.Int("attempts", p.MaxAttempts),
		zap.Error(lastErr))
	return grouperr.Wrap(lastErr, grouperr.Conflict, grouperr.ReasonRetriesExhausted, "transaction retries exhausted")
}

func runOnce(ctx context.Context, db *mongo.Database, fn func(ctx context.Context) error) error {
	sess, err := db.Client().StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(context.Background())

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	return mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sess.StartTransaction(opts); err != nil {
			return err
		}
		if err := fn(sc); err != nil {
			_ = sess.AbortTransaction(context.Background())
			return err
		}
		for {
			err := sess.CommitTransaction(sc)
			if err != nil && hasLabel(err, "UnknownTransactionCommitResult") && sc.Err() == nil {
				continue
			}
			return err
		}
	})
}

// IsTransient reports whether err is safe to resolve by re-running the whole
// transaction.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if hasLabel(err, "TransientTransactionError") {
		return true
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 112 { // WriteConflict
		return true
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 112 {
				return true
			}
		}
	}
	return false
}

func hasLabel(err error, label string) bool {
	var le mongo.LabeledError
	if errors.As(err, &le) {
		return le.HasErrorLabel(label)
	}
	return false
}

// IsNotSupported reports whether err indicates the deployment cannot run
// multi-document transactions (standalone mongod, unsupported server).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, 51, 263: // IllegalOperation, transaction numbers / unsupported in txn
			return true
		}
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "illegal operation") {
		return true
	}
	if strings.Contains(s, "transaction") && (strings.Contains(s, "replica set") || strings.Contains(s, "session")) {
		return true
	}
	return strings.Contains(s, "session") && strings.Contains(s, "not supported")
}

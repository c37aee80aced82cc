package versionstore

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Recorder collects the version bumps of one operation.
//
// While held (see Hold) bumps are queued instead of written, so a bump made
// inside a transaction runs only after the transaction commits and its
// failure cannot abort the mutation. Every failed bump is kept; Err reports
// them to callers that care whether their versions are current.
//
// A Recorder follows one operation; concurrent transactions each need
// their own.
type Recorder struct {
	mu     sync.Mutex
	depth  int
	queued []queuedBump
	errs   []error
}

type queuedBump struct {
	log    *zap.Logger
	op     string
	fields []zap.Field
	run    func(ctx context.Context) error
}

type recorderKey struct{}

// NewRecorder returns an empty, released recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// WithRecorder attaches r to ctx. Bumps recorded through ctx report to r.
func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

// RecorderFrom returns the recorder attached to ctx, or nil.
func RecorderFrom(ctx context.Context) *Recorder {
	r, _ := ctx.Value(recorderKey{}).(*Recorder)
	return r
}

// Record runs bump, or queues it when ctx carries a held recorder. A failure
// is logged and kept on the recorder; it never reaches the caller as an error.
func Record(ctx context.Context, log *zap.Logger, op string, bump func(ctx context.Context) error, fields ...zap.Field) {
	r := RecorderFrom(ctx)
	if r != nil && r.enqueue(queuedBump{log: log, op: op, fields: fields, run: bump}) {
		return
	}
	err := BestEffort(log, op, bump(ctx), fields...)
	if r != nil {
		r.fail(err)
	}
}

// Hold starts queuing bumps and returns a mark for Rewind. Holds nest; only
// the outermost Release runs the queue.
func (r *Recorder) Hold() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.depth++
	return len(r.queued)
}

// Rewind drops the bumps queued after mark, e.g. by an aborted transaction
// attempt.
func (r *Recorder) Rewind(mark int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mark < len(r.queued) {
		r.queued = r.queued[:mark]
	}
}

// Release ends one Hold. The outermost Release runs the queued bumps with
// ctx, which must not be a transaction's session context.
func (r *Recorder) Release(ctx context.Context) {
	r.mu.Lock()
	if r.depth > 0 {
		r.depth--
	}
	if r.depth > 0 {
		r.mu.Unlock()
		return
	}
	queued := r.queued
	r.queued = nil
	r.mu.Unlock()

	for _, b := range queued {
		r.fail(BestEffort(b.log, b.op, b.run(ctx), b.fields...))
	}
}

// Err joins every bump failure seen so far, or returns nil.
func (r *Recorder) Err() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.errs...)
}

func (r *Recorder) enqueue(b queuedBump) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.depth == 0 {
		return false
	}
	r.queued = append(r.queued, b)
	return true
}

func (r *Recorder) fail(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

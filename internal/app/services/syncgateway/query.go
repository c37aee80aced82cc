// Package syncgateway serves whole-resource snapshots gated by version
// timestamps. A client sends the version of the snapshot it holds; if the
// stored version is not newer it gets NotModified and no payload.
package syncgateway

import (
	"context"
	"time"

	versionstore "github.com/dalemusser/grouphub/internal/app/store/versions"
	"github.com/dalemusser/grouphub/internal/domain/models"
)

// Outcome is the variant of a Result.
type Outcome int

const (
	// Snapshot carries the full current state and its version.
	Snapshot Outcome = iota + 1
	// NotModified means the client's version is current.
	NotModified
	// Empty means the resource changed but currently holds nothing.
	Empty
)

func (o Outcome) String() string {
	switch o {
	case Snapshot:
		return "snapshot"
	case NotModified:
		return "not_modified"
	case Empty:
		return "empty"
	}
	return "unknown"
}

// Result is the answer to a versioned query. Data is only set for
// Snapshot; Version is set for Snapshot and Empty.
type Result[T any] struct {
	Outcome Outcome
	Data    T
	Version time.Time
}

// VersionSource returns the last-modified time of a scoped resource.
type VersionSource interface {
	Query(ctx context.Context, scopeID int64, resource models.VersionResource) (time.Time, error)
}

// Fetch loads the current state of a resource and reports whether it holds
// anything.
type Fetch[T any] func(ctx context.Context) (T, bool, error)

// Query implements the versioned read contract. The version is read before
// the data, so a write racing with the fetch yields a newer version on the
// next poll rather than a missed change.
//
// A scope whose record is gone (a deleted group) reads as BeginningOfTime.
// A client holding any later version is then told Empty rather than
// NotModified: its version came from a record that no longer exists.
func Query[T any](ctx context.Context, versions VersionSource, scopeID int64, resource models.VersionResource, lastKnown *time.Time, fetch Fetch[T]) (Result[T], error) {
	var res Result[T]

	version, err := versions.Query(ctx, scopeID, resource)
	if err != nil {
		return res, err
	}
	removed := version.Equal(versionstore.BeginningOfTime)
	if lastKnown != nil && !lastKnown.Before(version) && !(removed && lastKnown.After(version)) {
		res.Outcome = NotModified
		return res, nil
	}

	data, ok, err := fetch(ctx)
	if err != nil {
		return res, err
	}
	res.Version = version
	if !ok {
		res.Outcome = Empty
		return res, nil
	}
	res.Outcome = Snapshot
	res.Data = data
	return res, nil
}

// List adapts a slice loader to Fetch: an empty slice is Empty.
func List[T any](load func(ctx context.Context) ([]T, error)) Fetch[[]T] {
	return func(ctx context.Context) ([]T, bool, error) {
		items, err := load(ctx)
		return items, len(items) > 0, err
	}
}

// internal/app/system/tasks/job.go
package tasks

import (
	"context"
	"time"
)

// Job is a unit of periodic background work.
type Job struct {
	Name     string
	Interval time.Duration
	// MasterOnly jobs run only on the elected cluster master.
	MasterOnly bool
	Run        func(ctx context.Context) error
}

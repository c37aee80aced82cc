// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SweepFunc reconciles lazily-expired requests and reports how many it
// deleted or marked.
type SweepFunc func(ctx context.Context) (int64, error)

// ExpiredRequestSweepJob creates the master-only job that deletes or marks
// invitations and join requests whose expiration date has passed.
func ExpiredRequestSweepJob(sweep SweepFunc, interval time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:       "expired-request-sweep",
		Interval:   interval,
		MasterOnly: true,
		Run: func(ctx context.Context) error {
			count, err := sweep(ctx)
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Info("swept expired requests", zap.Int64("count", count))
			}
			return nil
		},
	}
}

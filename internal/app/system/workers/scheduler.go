// internal/app/system/workers/scheduler.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/grouphub/internal/app/system/election"
	"github.com/dalemusser/grouphub/internal/app/system/tasks"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scheduler runs jobs on their own tickers. MasterOnly jobs are skipped on
// any tick where this node is not the elected master.
type Scheduler struct {
	jobs    []tasks.Job
	elector election.Elector
	log     *zap.Logger
	timeout time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. timeout bounds each job run; zero means
// the job's interval.
func NewScheduler(elector election.Elector, logger *zap.Logger, timeout time.Duration, jobs ...tasks.Job) *Scheduler {
	if elector == nil {
		elector = election.Static(true)
	}
	return &Scheduler{
		jobs:    jobs,
		elector: elector,
		log:     logger,
		timeout: timeout,
		stopCh:  make(chan struct{}),
	}
}

// Start begins one loop per job.
func (s *Scheduler) Start() {
	for _, j := range s.jobs {
		if j.Interval <= 0 || j.Run == nil {
			s.log.Warn("job skipped: no interval or run func", zap.String("job", j.Name))
			continue
		}
		s.wg.Add(1)
		go s.loop(j)
		s.log.Info("job scheduled",
			zap.String("job", j.Name),
			zap.Duration("interval", j.Interval),
			zap.Bool("master_only", j.MasterOnly))
	}
}

// Stop signals every loop to stop and waits for in-flight runs.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) loop(j tasks.Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunOnce(j)
		}
	}
}

// RunOnce executes j now, honoring MasterOnly. It reports whether the job ran.
func (s *Scheduler) RunOnce(j tasks.Job) bool {
	if j.MasterOnly && !s.elector.IsMaster() {
		return false
	}

	timeout := s.timeout
	if timeout <= 0 {
		timeout = j.Interval
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	runID := uuid.NewString()
	start := time.Now()
	if err := j.Run(ctx); err != nil {
		s.log.Error("job failed",
			zap.String("job", j.Name),
			zap.String("run_id", runID),
			zap.Error(err))
		return true
	}
	s.log.Debug("job finished",
		zap.String("job", j.Name),
		zap.String("run_id", runID),
		zap.Duration("took", time.Since(start)))
	return true
}

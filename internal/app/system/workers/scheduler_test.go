package workers_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/grouphub/internal/app/system/election"
	"github.com/dalemusser/grouphub/internal/app/system/tasks"
	"github.com/dalemusser/grouphub/internal/app/system/workers"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type switchElector struct{ master atomic.Bool }

func (e *switchElector) IsMaster() bool { return e.master.Load() }

func TestScheduler_RunOnce_MasterOnly(t *testing.T) {
	var runs atomic.Int32
	job := tasks.Job{
		Name:       "sweep",
		Interval:   time.Minute,
		MasterOnly: true,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}

	e := &switchElector{}
	s := workers.NewScheduler(e, zap.NewNop(), 0, job)

	assert.False(t, s.RunOnce(job), "follower must not run")
	assert.Equal(t, int32(0), runs.Load())

	e.master.Store(true)
	assert.True(t, s.RunOnce(job))
	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduler_RunOnce_Error(t *testing.T) {
	job := tasks.Job{
		Name:     "failing",
		Interval: time.Minute,
		Run:      func(context.Context) error { return errors.New("boom") },
	}
	s := workers.NewScheduler(election.Static(false), zap.NewNop(), time.Second, job)
	assert.True(t, s.RunOnce(job), "non-master-only jobs run on every node")
}

func TestScheduler_StartStop(t *testing.T) {
	var runs atomic.Int32
	job := tasks.Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}
	s := workers.NewScheduler(nil, zap.NewNop(), 0, job, tasks.Job{Name: "no-interval"})
	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}

func TestExpiredRequestSweepJob(t *testing.T) {
	var called bool
	job := tasks.ExpiredRequestSweepJob(func(context.Context) (int64, error) {
		called = true
		return 3, nil
	}, time.Minute, zap.NewNop())

	assert.True(t, job.MasterOnly)
	assert.NoError(t, job.Run(context.Background()))
	assert.True(t, called)
}

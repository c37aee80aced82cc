// Package election decides which node is the cluster master. Master-only
// work (the expired-request sweep) checks IsMaster before each run.
package election

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Elector reports whether this process currently holds mastership.
type Elector interface {
	IsMaster() bool
}

// Static is an Elector with a fixed answer, for single-node deployments.
type Static bool

func (s Static) IsMaster() bool { return bool(s) }

// DefaultKey is the redis key holding the master lease.
const DefaultKey = "grouphub:master"

var (
	renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)
)

// RedisLease holds mastership through a redis key set with NX and a TTL.
// The holder renews the TTL at a third of its length; a node that stops
// renewing loses mastership once the key expires.
type RedisLease struct {
	rdb redis.Cmdable
	key string
	id  string
	ttl time.Duration
	log *zap.Logger

	master atomic.Bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewRedisLease(rdb redis.Cmdable, key string, ttl time.Duration, logger *zap.Logger) *RedisLease {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLease{
		rdb:    rdb,
		key:    key,
		id:     uuid.NewString(),
		ttl:    ttl,
		log:    logger,
		stopCh: make(chan struct{}),
	}
}

// ID identifies this node as a lease holder.
func (l *RedisLease) ID() string { return l.id }

func (l *RedisLease) IsMaster() bool { return l.master.Load() }

// TryAcquire renews the lease if held, otherwise tries to take it.
func (l *RedisLease) TryAcquire(ctx context.Context) (bool, error) {
	var held bool
	if l.master.Load() {
		n, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.id, l.ttl.Milliseconds()).Int64()
		if err != nil {
			l.setMaster(false)
			return false, err
		}
		held = n == 1
	}
	if !held {
		ok, err := l.rdb.SetNX(ctx, l.key, l.id, l.ttl).Result()
		if err != nil {
			l.setMaster(false)
			return false, err
		}
		held = ok
	}
	l.setMaster(held)
	return held, nil
}

// Release gives the lease up if this node holds it.
func (l *RedisLease) Release(ctx context.Context) error {
	l.setMaster(false)
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.id).Err()
}

// Start begins the background acquire/renew loop.
func (l *RedisLease) Start() {
	l.wg.Add(1)
	go l.run()
	l.log.Info("master election started",
		zap.String("key", l.key),
		zap.String("node", l.id),
		zap.Duration("ttl", l.ttl))
}

// Stop ends the loop and releases the lease.
func (l *RedisLease) Stop() {
	close(l.stopCh)
	l.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Release(ctx); err != nil {
		l.log.Warn("failed to release master lease", zap.Error(err))
	}
	l.log.Info("master election stopped")
}

func (l *RedisLease) run() {
	defer l.wg.Done()

	l.tick()
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *RedisLease) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
	defer cancel()
	if _, err := l.TryAcquire(ctx); err != nil {
		l.log.Warn("master lease attempt failed", zap.Error(err))
	}
}

func (l *RedisLease) setMaster(v bool) {
	if old := l.master.Swap(v); old != v {
		l.log.Info("master status changed", zap.Bool("master", v), zap.String("node", l.id))
	}
}

package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisAddr is used unless GROUPHUB_TEST_REDIS_ADDR is set.
const DefaultRedisAddr = "localhost:6379"

// SetupTestRedis returns a client for the test redis server, skipping the
// test when it is unreachable. Keys created through RedisKey are removed
// when the test finishes.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("GROUPHUB_TEST_REDIS_ADDR")
	if addr == "" {
		addr = DefaultRedisAddr
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("redis unavailable (%s): %v", addr, err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		iter := rdb.Scan(ctx, 0, keyPrefix(t)+"*", 100).Iterator()
		for iter.Next(ctx) {
			_ = rdb.Del(ctx, iter.Val()).Err()
		}
		_ = rdb.Close()
	})
	return rdb
}

// RedisKey returns a key unique to the running test.
func RedisKey(t *testing.T, name string) string {
	return keyPrefix(t) + name
}

func keyPrefix(t *testing.T) string {
	return fmt.Sprintf("grouphub_test:%s:%d:", t.Name(), os.Getpid())
}

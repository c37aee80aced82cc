// Package timeouts holds the deadlines applied to request handling and
// background work.
//
//   - Ping: health checks
//   - Read: sync queries (one version read plus one fetch)
//   - Write: group operations, including transaction retries
//   - Sweep: one run of the expired-request sweep
package timeouts

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPing  = 2 * time.Second
	DefaultRead  = 5 * time.Second
	DefaultWrite = 15 * time.Second
	DefaultSweep = 2 * time.Minute
)

var mu sync.RWMutex

var (
	ping  = DefaultPing
	read  = DefaultRead
	write = DefaultWrite
	sweep = DefaultSweep
)

func get(d *time.Duration) time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return *d
}

func Ping() time.Duration  { return get(&ping) }
func Read() time.Duration  { return get(&read) }
func Write() time.Duration { return get(&write) }
func Sweep() time.Duration { return get(&sweep) }

// Config holds timeout overrides. Zero values keep the current value.
type Config struct {
	Ping  time.Duration
	Read  time.Duration
	Write time.Duration
	Sweep time.Duration
}

// Configure applies the non-zero fields of cfg. Call it during startup,
// before handlers are registered.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	set(&ping, cfg.Ping)
	set(&read, cfg.Read)
	set(&write, cfg.Write)
	set(&sweep, cfg.Sweep)
}

func set(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

// Reset restores the defaults. Used by tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping, read, write, sweep = DefaultPing, DefaultRead, DefaultWrite, DefaultSweep
}

// ConfigureFromEnv reads GROUPHUB_TIMEOUT_PING, _READ, _WRITE and _SWEEP
// (Go duration strings). Unset or invalid values are ignored. It returns how
// many values were applied.
func ConfigureFromEnv() int {
	var cfg Config
	n := 0
	for name, dst := range map[string]*time.Duration{
		"GROUPHUB_TIMEOUT_PING":  &cfg.Ping,
		"GROUPHUB_TIMEOUT_READ":  &cfg.Read,
		"GROUPHUB_TIMEOUT_WRITE": &cfg.Write,
		"GROUPHUB_TIMEOUT_SWEEP": &cfg.Sweep,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
			n++
		}
	}
	Configure(cfg)
	return n
}

// Current returns the active configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{Ping: ping, Read: read, Write: write, Sweep: sweep}
}

// WithTimeout derives a context bounded by timeout. Its cancel func logs a
// warning when the deadline was what ended the operation.
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}

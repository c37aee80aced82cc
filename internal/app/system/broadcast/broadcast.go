// Package broadcast fans policy cache invalidations out to every node over
// NATS core pub/sub. Delivery is at-most-once; a node that misses a message
// keeps serving its cached record until the next invalidation or restart.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject carries policy invalidations.
const DefaultSubject = "grouphub.policy.invalidate"

// Message is the wire form of one invalidation.
type Message struct {
	Kind   string `json:"kind"`
	ID     int64  `json:"id"`
	Origin string `json:"origin"`
}

// Handler applies an invalidation received from another node.
type Handler func(kind string, id int64)

// Config describes how to reach NATS.
type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// Connect dials NATS with reconnects enabled indefinitely.
func Connect(cfg Config, logger *zap.Logger) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url missing")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	return nats.Connect(cfg.URL, opts...)
}

// NATS publishes and receives invalidations on one subject.
type NATS struct {
	nc      *nats.Conn
	subject string
	origin  string
	log     *zap.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

func New(nc *nats.Conn, subject string, logger *zap.Logger) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATS{
		nc:      nc,
		subject: subject,
		origin:  uuid.NewString(),
		log:     logger,
	}
}

// Invalidate publishes an invalidation for (kind, id).
func (b *NATS) Invalidate(ctx context.Context, kind string, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Message{Kind: kind, ID: id, Origin: b.origin})
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject, data)
}

// Subscribe delivers invalidations published by other nodes to h.
func (b *NATS) Subscribe(h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return errors.New("broadcast: already subscribed")
	}
	sub, err := b.nc.Subscribe(b.subject, func(m *nats.Msg) { b.handle(m.Data, h) })
	if err != nil {
		return err
	}
	b.sub = sub
	return nil
}

// Close drains the subscription, if any.
func (b *NATS) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub == nil {
		return nil
	}
	err := b.sub.Drain()
	b.sub = nil
	return err
}

func (b *NATS) handle(data []byte, h Handler) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		b.log.Warn("malformed invalidation message", zap.Error(err))
		return
	}
	if m.Origin == b.origin {
		return
	}
	h(m.Kind, m.ID)
}

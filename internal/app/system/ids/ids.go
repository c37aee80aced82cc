// Package ids allocates cluster-unique int64 IDs.
//
// IDs are snowflakes: 41 bits of milliseconds since Epoch, 10 bits of node
// ID and a 12-bit per-millisecond sequence, so they sort by creation time
// across the cluster. Each process needs a distinct node ID; LeaseNodeID
// hands them out from a shared redis counter.
package ids

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Kind names the entity an ID is allocated for.
type Kind string

const (
	KindGroup        Kind = "group"
	KindInvitation   Kind = "group_invitation"
	KindJoinRequest  Kind = "group_join_request"
	KindJoinQuestion Kind = "group_join_question"
)

const (
	nodeBits = 10
	seqBits  = 12

	MaxNodeID = 1<<nodeBits - 1
	seqMask   = 1<<seqBits - 1
	tsMask    = 1<<41 - 1
)

// Epoch is the zero point of snowflake timestamps.
var Epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Generator is a snowflake ID source for one node.
type Generator struct {
	mu       sync.Mutex
	epochMS  int64
	nodeID   int64
	seq      int64
	lastTSMS int64
	now      func() int64
}

// NewGenerator returns a generator for nodeID (0..MaxNodeID).
func NewGenerator(nodeID int64) (*Generator, error) {
	if nodeID < 0 || nodeID > MaxNodeID {
		return nil, fmt.Errorf("node id %d out of range [0, %d]", nodeID, MaxNodeID)
	}
	return &Generator{
		epochMS: Epoch.UnixMilli(),
		nodeID:  nodeID,
		now:     func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// NodeID returns the node bits stamped into every ID.
func (g *Generator) NodeID() int64 { return g.nodeID }

// NextID returns a new ID. All kinds share one sequence.
func (g *Generator) NextID(Kind) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		now := g.now()
		if now < g.lastTSMS {
			// Clock moved backwards; wait it out rather than reuse a slot.
			time.Sleep(time.Duration(g.lastTSMS-now) * time.Millisecond)
			continue
		}
		if now == g.lastTSMS {
			g.seq = (g.seq + 1) & seqMask
			if g.seq == 0 {
				for now <= g.lastTSMS {
					time.Sleep(100 * time.Microsecond)
					now = g.now()
				}
			}
		} else {
			g.seq = 0
		}
		g.lastTSMS = now

		ts := (now - g.epochMS) & tsMask
		return ts<<(nodeBits+seqBits) | g.nodeID<<seqBits | g.seq
	}
}

// Parse splits an ID into its creation time, node ID and sequence.
func Parse(id int64) (time.Time, int64, int64) {
	ms := id >> (nodeBits + seqBits)
	node := (id >> seqBits) & MaxNodeID
	seq := id & seqMask
	return time.UnixMilli(Epoch.UnixMilli() + ms).UTC(), node, seq
}

// DefaultNodeKey is the redis counter LeaseNodeID increments.
const DefaultNodeKey = "grouphub:snowflake:node"

// LeaseNodeID takes the next node ID from a shared redis counter. Counters
// wrap around MaxNodeID, so more than 1024 concurrently running nodes would
// collide.
func LeaseNodeID(ctx context.Context, rdb redis.Cmdable, key string) (int64, error) {
	if key == "" {
		key = DefaultNodeKey
	}
	n, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	return (n - 1) & MaxNodeID, nil
}

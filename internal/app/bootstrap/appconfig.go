// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration. WAFFLE's CoreConfig
// covers the HTTP server, logging and CORS; everything here belongs to
// grouphub.
type AppConfig struct {
	// MongoDB
	MongoURI         string
	MongoDatabase    string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Redis backs the master lease and the snowflake node counter. Blank
	// RedisAddr runs a single node that is always master.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NATS carries policy cache invalidations between nodes. Blank NATSURL
	// disables the broadcast.
	NATSURL     string
	NATSSubject string

	// NodeID is the snowflake node ID; -1 leases one from redis.
	NodeID int64

	// Request lifecycle. A zero TTL means requests never expire.
	InvitationTTL        time.Duration
	JoinRequestTTL       time.Duration
	MaxContentLength     int
	SweepInterval        time.Duration
	SweepAction          string // "delete" or "mark"
	DeleteGroupLogically bool

	// Transaction retry policy
	TxnMaxAttempts    int
	TxnInitialBackoff time.Duration
	TxnMaxBackoff     time.Duration

	MasterLeaseTTL time.Duration

	// AuditLog routes administration events: all, db, log or off.
	AuditLog string

	// SyncRateLimit is the number of sync requests a caller may make per
	// minute; 0 disables the limit.
	SyncRateLimit int
}

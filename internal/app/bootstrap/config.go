// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	requeststore "github.com/dalemusser/grouphub/internal/app/store/requests"
	"github.com/dalemusser/grouphub/internal/app/system/auditlog"
	"github.com/dalemusser/grouphub/internal/app/system/ids"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys are loaded through WAFFLE's config system: config files
// (mongo_uri), environment (GROUPHUB_MONGO_URI) and flags (--mongo_uri).
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "grouphub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size"},

	{Name: "redis_addr", Default: "", Desc: "Redis address (blank runs as a single always-master node)"},
	{Name: "redis_password", Default: "", Desc: "Redis password"},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},

	{Name: "nats_url", Default: "", Desc: "NATS URL for policy cache invalidation (blank disables)"},
	{Name: "nats_subject", Default: "grouphub.policy.invalidate", Desc: "NATS subject for policy cache invalidation"},

	{Name: "node_id", Default: -1, Desc: "Snowflake node ID 0-1023 (-1 leases one from redis, or uses 0 without redis)"},

	{Name: "invitation_ttl", Default: "168h", Desc: "Invitation lifetime (0 never expires)"},
	{Name: "join_request_ttl", Default: "168h", Desc: "Join request lifetime (0 never expires)"},
	{Name: "max_content_length", Default: 200, Desc: "Max length of request content"},
	{Name: "expired_request_sweep_interval", Default: "1h", Desc: "Interval of the expired request sweep"},
	{Name: "expired_request_action", Default: "delete", Desc: "What the sweep does with expired requests: 'delete' or 'mark'"},
	{Name: "delete_group_logically", Default: true, Desc: "Mark deleted groups instead of removing them"},

	{Name: "txn_max_attempts", Default: 5, Desc: "Transaction attempts before giving up"},
	{Name: "txn_initial_backoff", Default: "20ms", Desc: "Backoff after the first failed attempt"},
	{Name: "txn_max_backoff", Default: "500ms", Desc: "Backoff ceiling"},

	{Name: "master_lease_ttl", Default: "15s", Desc: "Master lease TTL"},

	{Name: "audit_log", Default: "all", Desc: "Group audit events: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "sync_rate_limit", Default: 600, Desc: "Sync requests per caller per minute (0 disables)"},
}

// LoadConfig loads WAFFLE core config and grouphub's config. Precedence is
// flags > env (GROUPHUB_*) > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "GROUPHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		RedisAddr:     appValues.String("redis_addr"),
		RedisPassword: appValues.String("redis_password"),
		RedisDB:       appValues.Int("redis_db"),

		NATSURL:     appValues.String("nats_url"),
		NATSSubject: appValues.String("nats_subject"),

		NodeID: int64(appValues.Int("node_id")),

		InvitationTTL:        appValues.Duration("invitation_ttl", 7*24*time.Hour),
		JoinRequestTTL:       appValues.Duration("join_request_ttl", 7*24*time.Hour),
		MaxContentLength:     appValues.Int("max_content_length"),
		SweepInterval:        appValues.Duration("expired_request_sweep_interval", time.Hour),
		SweepAction:          appValues.String("expired_request_action"),
		DeleteGroupLogically: appValues.Bool("delete_group_logically"),

		TxnMaxAttempts:    appValues.Int("txn_max_attempts"),
		TxnInitialBackoff: appValues.Duration("txn_initial_backoff", 20*time.Millisecond),
		TxnMaxBackoff:     appValues.Duration("txn_max_backoff", 500*time.Millisecond),

		MasterLeaseTTL: appValues.Duration("master_lease_ttl", 15*time.Second),

		AuditLog:      appValues.String("audit_log"),
		SyncRateLimit: appValues.Int("sync_rate_limit"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig rejects configurations that would fail later in less
// obvious ways.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	return validateApp(appCfg)
}

func validateApp(appCfg AppConfig) error {
	if !requeststore.SweepAction(appCfg.SweepAction).Valid() {
		return fmt.Errorf("expired_request_action must be 'delete' or 'mark', got %q", appCfg.SweepAction)
	}
	if appCfg.SweepInterval <= 0 {
		return fmt.Errorf("expired_request_sweep_interval must be positive")
	}
	if appCfg.InvitationTTL < 0 || appCfg.JoinRequestTTL < 0 {
		return fmt.Errorf("request TTLs must not be negative")
	}
	if appCfg.MaxContentLength <= 0 {
		return fmt.Errorf("max_content_length must be positive")
	}
	if appCfg.TxnMaxAttempts <= 0 || appCfg.TxnInitialBackoff <= 0 || appCfg.TxnMaxBackoff < appCfg.TxnInitialBackoff {
		return fmt.Errorf("txn retry settings must be positive with txn_max_backoff >= txn_initial_backoff")
	}
	if !auditlog.ValidMode(appCfg.AuditLog) {
		return fmt.Errorf("audit_log must be 'all', 'db', 'log' or 'off', got %q", appCfg.AuditLog)
	}
	if appCfg.SyncRateLimit < 0 {
		return fmt.Errorf("sync_rate_limit must be >= 0, got %d", appCfg.SyncRateLimit)
	}
	if appCfg.NodeID < -1 || appCfg.NodeID > ids.MaxNodeID {
		return fmt.Errorf("node_id must be -1 or within 0-%d, got %d", ids.MaxNodeID, appCfg.NodeID)
	}
	return nil
}

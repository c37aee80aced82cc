// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"time"

	"github.com/dalemusser/grouphub/internal/app/services/groupadmin"
	"github.com/dalemusser/grouphub/internal/app/services/lifecycle"
	"github.com/dalemusser/grouphub/internal/app/services/ownership"
	"github.com/dalemusser/grouphub/internal/app/store/audit"
	policystore "github.com/dalemusser/grouphub/internal/app/store/policies"
	requeststore "github.com/dalemusser/grouphub/internal/app/store/requests"
	"github.com/dalemusser/grouphub/internal/app/system/auditlog"
	"github.com/dalemusser/grouphub/internal/app/system/broadcast"
	"github.com/dalemusser/grouphub/internal/app/system/election"
	"github.com/dalemusser/grouphub/internal/app/system/ids"
	"github.com/dalemusser/grouphub/internal/app/system/ratelimit"
	"github.com/dalemusser/grouphub/internal/app/system/tasks"
	"github.com/dalemusser/grouphub/internal/app/system/timeouts"
	"github.com/dalemusser/grouphub/internal/app/system/txn"
	"github.com/dalemusser/grouphub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services is the wired service graph shared by handlers and workers.
type Services struct {
	Policies  *policystore.Store
	IDs       *ids.Generator
	Lifecycle *lifecycle.Service
	Ownership *ownership.Service
	Admin     *groupadmin.Service

	// SyncLimiter caps sync polls per caller; nil when disabled.
	SyncLimiter *ratelimit.Limiter

	elector   election.Elector
	lease     *election.RedisLease
	broadcast *broadcast.NATS
	scheduler *workers.Scheduler
}

// Startup applies process-wide settings, seeds default policies, builds
// the services and starts the master election and the sweep scheduler.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("timeouts configured from environment", zap.Int("count", n))
	}
	txnPolicy := txn.Policy{
		MaxAttempts:    appCfg.TxnMaxAttempts,
		InitialBackoff: appCfg.TxnInitialBackoff,
		MaxBackoff:     appCfg.TxnMaxBackoff,
	}
	txn.Configure(txnPolicy)

	svc := deps.Services
	db := deps.MongoDatabase

	var inv policystore.Invalidator = policystore.NoopInvalidator{}
	if deps.NATS != nil {
		svc.broadcast = broadcast.New(deps.NATS, appCfg.NATSSubject, logger)
		inv = svc.broadcast
	}
	svc.Policies = policystore.New(db, inv, logger)
	if svc.broadcast != nil {
		if err := svc.broadcast.Subscribe(svc.Policies.HandleInvalidation); err != nil {
			logger.Error("policy invalidation subscribe failed", zap.Error(err))
			return err
		}
	}
	if err := ensurePolicies(ctx, svc.Policies, logger); err != nil {
		return err
	}

	nodeID, err := resolveNodeID(ctx, appCfg, deps.Redis, logger)
	if err != nil {
		return err
	}
	if svc.IDs, err = ids.NewGenerator(nodeID); err != nil {
		return err
	}

	svc.Lifecycle = lifecycle.New(db, svc.Policies, svc.IDs, lifecycle.Config{
		InvitationTTL:    appCfg.InvitationTTL,
		JoinRequestTTL:   appCfg.JoinRequestTTL,
		MaxContentLength: appCfg.MaxContentLength,
		SweepAction:      requeststore.SweepAction(appCfg.SweepAction),
		Txn:              txnPolicy,
	}, logger)
	auditLog := auditlog.New(audit.New(db), logger, appCfg.AuditLog)
	svc.Ownership = ownership.New(db, svc.Policies, txnPolicy, logger).WithAudit(auditLog)
	svc.Admin = groupadmin.New(db, svc.Policies, svc.IDs, svc.Ownership, groupadmin.Config{
		DeleteLogically: appCfg.DeleteGroupLogically,
		Txn:             txnPolicy,
		Audit:           auditLog,
	}, logger)

	if appCfg.SyncRateLimit > 0 {
		svc.SyncLimiter = ratelimit.New(appCfg.SyncRateLimit, time.Minute)
	}

	if deps.Redis != nil {
		svc.lease = election.NewRedisLease(deps.Redis, "", appCfg.MasterLeaseTTL, logger)
		svc.lease.Start()
		svc.elector = svc.lease
	} else {
		logger.Info("no redis configured, running as the only master")
		svc.elector = election.Static(true)
	}

	svc.scheduler = workers.NewScheduler(svc.elector, logger, timeouts.Sweep(),
		tasks.ExpiredRequestSweepJob(svc.Lifecycle.Sweep, appCfg.SweepInterval, logger))
	svc.scheduler.Start()

	logger.Info("grouphub started", zap.Int64("node_id", nodeID))
	return nil
}

// ensurePolicies makes sure the default group type and permission group
// exist. Existing documents are left alone.
func ensurePolicies(ctx context.Context, policies *policystore.Store, logger *zap.Logger) error {
	if err := policies.SeedDefaults(ctx); err != nil {
		logger.Error("seeding default policies failed", zap.Error(err))
		return err
	}
	return nil
}

// resolveNodeID returns the configured snowflake node, or leases one from
// redis when node_id is -1. Without redis a single node uses 0.
func resolveNodeID(ctx context.Context, appCfg AppConfig, rdb redis.Cmdable, logger *zap.Logger) (int64, error) {
	if appCfg.NodeID >= 0 {
		return appCfg.NodeID, nil
	}
	if rdb == nil {
		logger.Warn("node_id not set and no redis configured, using node 0")
		return 0, nil
	}
	id, err := ids.LeaseNodeID(ctx, rdb, "")
	if err != nil {
		logger.Error("leasing snowflake node id failed", zap.Error(err))
		return 0, err
	}
	logger.Info("leased snowflake node id", zap.Int64("node_id", id))
	return id, nil
}

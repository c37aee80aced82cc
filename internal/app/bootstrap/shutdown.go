// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops background work first, then closes the backends.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if svc := deps.Services; svc != nil {
		if svc.scheduler != nil {
			svc.scheduler.Stop()
		}
		if svc.SyncLimiter != nil {
			svc.SyncLimiter.Stop()
		}
		if svc.lease != nil {
			svc.lease.Stop()
		}
		if svc.broadcast != nil {
			if err := svc.broadcast.Close(); err != nil {
				logger.Warn("closing policy broadcast failed", zap.Error(err))
			}
		}
	}
	if deps.NATS != nil {
		deps.NATS.Close()
	}
	if deps.Redis != nil {
		if err := deps.Redis.Close(); err != nil {
			logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}

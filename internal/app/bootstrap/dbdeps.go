// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/grouphub/internal/app/system/broadcast"
	"github.com/dalemusser/grouphub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// DBDeps holds the backends and the services built on them. Redis and NATS
// are nil when not configured. Services is filled in by Startup.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	Redis         *redis.Client
	NATS          *nats.Conn

	Services *Services
}

// ConnectDB dials MongoDB and, when configured, redis and NATS.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return DBDeps{}, fmt.Errorf("ping mongo: %w", err)
	}
	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))

	deps := DBDeps{
		MongoClient:   client,
		MongoDatabase: client.Database(appCfg.MongoDatabase),
		Services:      &Services{},
	}

	if appCfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     appCfg.RedisAddr,
			Password: appCfg.RedisPassword,
			DB:       appCfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, timeouts.Ping())
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			_ = client.Disconnect(context.Background())
			return DBDeps{}, fmt.Errorf("ping redis: %w", err)
		}
		deps.Redis = rdb
		logger.Info("connected to redis", zap.String("addr", appCfg.RedisAddr))
	}

	if appCfg.NATSURL != "" {
		nc, err := broadcast.Connect(broadcast.Config{URL: appCfg.NATSURL, Name: "grouphub"}, logger)
		if err != nil {
			// Without the broadcast each node still serves correct data,
			// only policy edits take effect elsewhere after a restart.
			logger.Warn("NATS unavailable, policy cache invalidation disabled", zap.Error(err))
		} else {
			deps.NATS = nc
			logger.Info("connected to NATS", zap.String("url", nc.ConnectedUrl()))
		}
	}

	return deps, nil
}

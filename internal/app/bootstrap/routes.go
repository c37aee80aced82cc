// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	healthfeature "github.com/dalemusser/grouphub/internal/app/features/health"
	syncapifeature "github.com/dalemusser/grouphub/internal/app/features/syncapi"
	"github.com/dalemusser/grouphub/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BuildHandler mounts the health check and the sync API.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	var rdb redis.Cmdable
	if deps.Redis != nil {
		rdb = deps.Redis
	}
	healthHandler := healthfeature.NewHandler(deps.MongoClient, rdb, deps.NATS, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	syncHandler := syncapifeature.NewHandler(deps.MongoDatabase, logger)
	var limiter *ratelimit.Limiter
	if deps.Services != nil {
		limiter = deps.Services.SyncLimiter
	}
	r.Mount("/sync", syncapifeature.Routes(syncHandler, limiter))

	return r, nil
}

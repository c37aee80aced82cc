package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dalemusser/grouphub/internal/app/system/timeouts"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Handler holds dependencies needed for health checks. Redis and NATS are
// optional; a nil client is reported as "disabled".
type Handler struct {
	Client *mongo.Client
	Redis  redis.Cmdable
	NATS   *nats.Conn
	Log    *zap.Logger
}

// NewHandler constructs a health Handler.
func NewHandler(client *mongo.Client, rdb redis.Cmdable, nc *nats.Conn, logger *zap.Logger) *Handler {
	return &Handler{
		Client: client,
		Redis:  rdb,
		NATS:   nc,
		Log:    logger,
	}
}

type healthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Redis     string `json:"redis"`
	Broadcast string `json:"broadcast"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "redis":"connected", "broadcast":"connected" }
//
// MongoDB is required; when its ping fails the answer is 503. Redis or
// NATS trouble degrades the status but still answers 200, since the
// service keeps working as a non-master node without them.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:    "ok",
		Database:  "connected",
		Redis:     "disabled",
		Broadcast: "disabled",
	}

	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	if h.Redis != nil {
		resp.Redis = "connected"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			h.Log.Warn("health-check: redis ping failed", zap.Error(err))
			resp.Status = "degraded"
			resp.Redis = "disconnected"
		}
	}
	if h.NATS != nil {
		resp.Broadcast = "connected"
		if !h.NATS.IsConnected() {
			resp.Status = "degraded"
			resp.Broadcast = h.NATS.Status().String()
		}
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// internal/app/features/syncapi/handler.go
package syncapi

import (
	"github.com/dalemusser/grouphub/internal/app/services/syncgateway"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves versioned snapshots of group- and user-scoped resources.
// Clients poll with the version of the snapshot they hold and get 304 when
// nothing changed.
type Handler struct {
	Gateway *syncgateway.Gateway
	Log     *zap.Logger
}

// NewHandler constructs a sync Handler over db.
func NewHandler(db *mongo.Database, logger *zap.Logger) *Handler {
	return &Handler{
		Gateway: syncgateway.New(db, logger),
		Log:     logger,
	}
}

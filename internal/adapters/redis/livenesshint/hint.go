// Package livenesshint is the distributed "last known worker liveness"
// hint cache: on a multi-instance deployment the in-memory
// workerregistry.Registry only knows about workers that dialed
// *this* process. This cache lets any instance answer "is worker X alive
// anywhere in the fleet" by consulting a shared TTL'd heartbeat key instead
// of only its own process memory — a hint for cross-instance admin/status
// views, never the scheduler's own source of truth.
package livenesshint

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/platform/mredis"
)

// TTL must exceed workerregistry.DefaultKeepAliveTimeout so a worker
// mid-keepalive-interval isn't reported dead by a peer instance.
const TTL = 45 * time.Second

// Cache records and queries worker heartbeats shared across instances.
type Cache struct {
	conn   *mredis.Connection
	logger mlog.Logger
}

// New constructs a Cache over the given Redis connection.
func New(conn *mredis.Connection, logger mlog.Logger) *Cache {
	if logger == nil {
		logger = &mlog.GoLogger{}
	}

	return &Cache{conn: conn, logger: logger}
}

func heartbeatKey(workerID uuid.UUID) string {
	return "worker:heartbeat:" + workerID.String()
}

// Touch records that workerID is alive as of now, visible to every instance
// for TTL. Best-effort: a Redis outage is logged, not returned as a fatal
// error, since the local Registry remains authoritative for this process's
// own dispatch decisions.
func (c *Cache) Touch(ctx context.Context, workerID uuid.UUID) {
	client, err := c.conn.GetClient(ctx)
	if err != nil {
		c.logger.Warnf("livenesshint: redis unavailable, skipping touch: %v", err)
		return
	}

	client.Set(ctx, heartbeatKey(workerID), time.Now().Unix(), TTL)
}

// Alive reports whether any instance has seen a heartbeat for workerID
// within TTL.
func (c *Cache) Alive(ctx context.Context, workerID uuid.UUID) bool {
	client, err := c.conn.GetClient(ctx)
	if err != nil {
		c.logger.Warnf("livenesshint: redis unavailable, assuming alive: %v", err)
		return true
	}

	return client.Exists(ctx, heartbeatKey(workerID)).Val() > 0
}

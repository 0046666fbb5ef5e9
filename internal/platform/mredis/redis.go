// Package mredis wires the Redis connection backing the index-read cache,
// the worker-liveness hint and publish rate limiting.
package mredis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cratery/cratery/internal/platform/mlog"
)

// Connection is a hub dealing with redis connections.
type Connection struct {
	ConnectionString string
	Logger           mlog.Logger

	client    *redis.Client
	connected bool
}

// Connect opens the client and verifies connectivity.
func (c *Connection) Connect(ctx context.Context) error {
	c.Logger.Info("connecting to redis...")

	opts, err := redis.ParseURL(c.ConnectionString)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	c.client = rdb
	c.connected = true

	c.Logger.Info("connected to redis")

	return nil
}

// GetClient returns the underlying client, connecting lazily if necessary.
func (c *Connection) GetClient(ctx context.Context) (*redis.Client, error) {
	if c.client == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.client, nil
}

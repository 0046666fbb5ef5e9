// Package mmongo wires the MongoDB connection used by the audit log and
// worker job-event history.
package mmongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cratery/cratery/internal/platform/mlog"
)

// Connection is a hub dealing with mongodb connections.
type Connection struct {
	ConnectionString string
	Database         string
	Logger           mlog.Logger

	client    *mongo.Client
	connected bool
}

// Connect opens the client and verifies connectivity.
func (c *Connection) Connect(ctx context.Context) error {
	c.Logger.Info("connecting to mongodb...")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.ConnectionString))
	if err != nil {
		return fmt.Errorf("connect mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongodb: %w", err)
	}

	c.client = client
	c.connected = true

	c.Logger.Info("connected to mongodb")

	return nil
}

// GetDB returns the underlying client, connecting lazily if necessary.
func (c *Connection) GetDB(ctx context.Context) (*mongo.Client, error) {
	if c.client == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.client, nil
}

// Collection is a convenience accessor scoped to the configured database.
func (c *Connection) Collection(ctx context.Context, name string) (*mongo.Collection, error) {
	client, err := c.GetDB(ctx)
	if err != nil {
		return nil, err
	}

	return client.Database(c.Database).Collection(name), nil
}

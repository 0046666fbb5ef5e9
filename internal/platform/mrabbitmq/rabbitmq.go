// Package mrabbitmq wires the RabbitMQ connection backing the Event Bus's
// external fan-out.
package mrabbitmq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cratery/cratery/internal/platform/mlog"
)

// Connection is a hub dealing with rabbitmq connections.
type Connection struct {
	ConnectionString string
	Logger           mlog.Logger

	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
}

// Connect dials the broker and opens a channel.
func (c *Connection) Connect(ctx context.Context) error {
	c.Logger.Info("connecting to rabbitmq...")

	conn, err := amqp.Dial(c.ConnectionString)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}

	c.conn = conn
	c.channel = ch
	c.connected = true

	c.Logger.Info("connected to rabbitmq")

	return nil
}

// GetChannel returns the open channel, connecting lazily if necessary.
func (c *Connection) GetChannel(ctx context.Context) (*amqp.Channel, error) {
	if !c.connected {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.channel, nil
}

// Close tears down the channel and connection.
func (c *Connection) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
	}

	c.connected = false

	return nil
}

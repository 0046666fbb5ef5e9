// Package forwarder is the optional durable fan-out side-channel: the
// in-process Event Bus stays in-process and best-effort, but downstream
// mirrors need a durable queue they can replay after a disconnect.
// Forwarder subscribes to every eventbus topic and republishes each Event
// onto a fanout exchange.
package forwarder

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/platform/mrabbitmq"
	"github.com/cratery/cratery/internal/services/eventbus"
)

// ExchangeName is the fanout exchange every forwarded event is published
// onto; downstream mirrors bind their own durable queue to it.
const ExchangeName = "cratery.events"

// Forwarder drains one eventbus.Subscription per topic and republishes each
// Event as a JSON body onto ExchangeName.
type Forwarder struct {
	conn   *mrabbitmq.Connection
	bus    *eventbus.Bus
	logger mlog.Logger
}

// New constructs a Forwarder. It does not start consuming until Run is
// called.
func New(conn *mrabbitmq.Connection, bus *eventbus.Bus, logger mlog.Logger) *Forwarder {
	if logger == nil {
		logger = &mlog.GoLogger{}
	}

	return &Forwarder{conn: conn, bus: bus, logger: logger}
}

// Run declares ExchangeName and forwards every bus event until ctx is
// cancelled. Intended to be started once at boot as its own goroutine; a
// publish failure is logged and the loop continues rather than exits, since
// one bad message should not silence the rest of the fan-out.
func (f *Forwarder) Run(ctx context.Context) error {
	ch, err := f.conn.GetChannel(ctx)
	if err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(ExchangeName, "fanout", true, false, false, false, nil); err != nil {
		return err
	}

	topics := []eventbus.Topic{eventbus.TopicWorker, eventbus.TopicJob, eventbus.TopicPackage}

	subs := make([]*eventbus.Subscription, 0, len(topics))
	for _, t := range topics {
		subs = append(subs, f.bus.Subscribe(t))
	}

	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()

	merged := make(chan eventbus.Event, 256)

	for _, s := range subs {
		go func(s *eventbus.Subscription) {
			for evt := range s.Events() {
				select {
				case merged <- evt:
				case <-ctx.Done():
					return
				}
			}
		}(s)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-merged:
			f.publish(ch, evt)
		}
	}
}

func (f *Forwarder) publish(ch *amqp.Channel, evt eventbus.Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		f.logger.Errorf("forwarder: marshal event %s: %v", evt.Kind, err)
		return
	}

	err = ch.Publish(ExchangeName, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		f.logger.Errorf("forwarder: publish event %s: %v", evt.Kind, err)
	}
}

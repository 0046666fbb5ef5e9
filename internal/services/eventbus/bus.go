// Package eventbus is the in-process publish/subscribe fan-out of
// worker-state and job-state events: one bounded channel per subscriber,
// and a single-mutex-guarded
// shared-state discipline of internal/adapters/http/in/batch.go.
package eventbus

import (
	"sync"

	"github.com/cratery/cratery/internal/platform/mlog"
)

// Topic enumerates the event families the bus carries.
type Topic string

const (
	TopicWorker  Topic = "worker"
	TopicJob     Topic = "job"
	TopicPackage Topic = "package"
)

// Event is a single message on the bus. Kind is topic-specific
// ("WorkerConnected", "JobDispatched", "PackagePublished", ...); Payload
// carries whatever shape that Kind implies.
type Event struct {
	Topic   Topic
	Kind    string
	Payload any
}

// subscriberBufferSize bounds each subscriber's channel; the bus never
// blocks producers, so a full channel means the subscriber is dropped
// rather than grown or blocked on.
const subscriberBufferSize = 256

type subscriber struct {
	id     uint64
	topic  Topic
	ch     chan Event
	closed bool
}

// Bus is the in-process event bus. Delivery is best-effort and ordered per
// topic per subscriber.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
	logger mlog.Logger
}

// New constructs an empty Bus.
func New(logger mlog.Logger) *Bus {
	if logger == nil {
		logger = &mlog.GoLogger{}
	}

	return &Bus{subs: make(map[uint64]*subscriber), logger: logger}
}

// Subscription is a live registration; the caller ranges over Events() and
// calls Unsubscribe when done.
type Subscription struct {
	bus *Bus
	sub *subscriber
}

// Subscribe registers a new subscriber to topic with a bounded buffer.
func (b *Bus) Subscribe(topic Topic) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++

	sub := &subscriber{
		id:    b.nextID,
		topic: topic,
		ch:    make(chan Event, subscriberBufferSize),
	}
	b.subs[sub.id] = sub

	return &Subscription{bus: b, sub: sub}
}

// Events returns the channel to range over for delivered events.
func (s *Subscription) Events() <-chan Event {
	return s.sub.ch
}

// Unsubscribe removes the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if sub, ok := s.bus.subs[s.sub.id]; ok && !sub.closed {
		sub.closed = true
		close(sub.ch)
		delete(s.bus.subs, s.sub.id)
	}
}

// Publish fans out an event to every subscriber of its topic. Never blocks:
// a subscriber whose buffer is full is dropped (its channel closed) and a
// warning logged.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		if sub.topic != evt.Topic {
			continue
		}

		select {
		case sub.ch <- evt:
		default:
			b.logger.Warnf("eventbus: subscriber %d on topic %s is full, dropping it", id, evt.Topic)

			sub.closed = true
			close(sub.ch)
			delete(b.subs, id)
		}
	}
}

package eventbus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/services/eventbus"
)

func TestPublishDeliversToTopicSubscribers(t *testing.T) {
	bus := eventbus.New(&mlog.GoLogger{})

	sub := bus.Subscribe(eventbus.TopicPackage)
	defer sub.Unsubscribe()

	other := bus.Subscribe(eventbus.TopicWorker)
	defer other.Unsubscribe()

	bus.Publish(eventbus.Event{Topic: eventbus.TopicPackage, Kind: "PackagePublished"})

	select {
	case evt := <-sub.Events():
		assert.Equal(t, "PackagePublished", evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}

	select {
	case evt := <-other.Events():
		t.Fatalf("worker-topic subscriber received %s", evt.Kind)
	default:
	}
}

func TestPublishPreservesPerTopicOrder(t *testing.T) {
	bus := eventbus.New(&mlog.GoLogger{})

	sub := bus.Subscribe(eventbus.TopicJob)
	defer sub.Unsubscribe()

	kinds := []string{"JobQueued", "JobDispatched", "JobSucceeded"}
	for _, k := range kinds {
		bus.Publish(eventbus.Event{Topic: eventbus.TopicJob, Kind: k})
	}

	for _, want := range kinds {
		select {
		case evt := <-sub.Events():
			assert.Equal(t, want, evt.Kind)
		case <-time.After(time.Second):
			t.Fatalf("never received %s", want)
		}
	}
}

func TestSlowSubscriberIsDroppedNotBlocking(t *testing.T) {
	bus := eventbus.New(&mlog.GoLogger{})

	sub := bus.Subscribe(eventbus.TopicJob)

	done := make(chan struct{})

	go func() {
		defer close(done)

		// Never drain: the bus must overflow the bounded buffer, drop the
		// subscriber and keep accepting publishes without blocking.
		for i := 0; i < 1000; i++ {
			bus.Publish(eventbus.Event{Topic: eventbus.TopicJob, Kind: "JobQueued"})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	// A dropped subscriber's channel is closed once drained.
	deadline := time.After(time.Second)

	for {
		select {
		case _, open := <-sub.Events():
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("dropped subscriber's channel never closed")
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := eventbus.New(&mlog.GoLogger{})

	sub := bus.Subscribe(eventbus.TopicWorker)
	sub.Unsubscribe()

	require.NotPanics(t, func() {
		bus.Publish(eventbus.Event{Topic: eventbus.TopicWorker, Kind: "WorkerConnected"})
	})
}

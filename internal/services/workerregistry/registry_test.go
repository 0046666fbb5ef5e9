package workerregistry_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratery/cratery/internal/domain/worker"
	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/services/eventbus"
	"github.com/cratery/cratery/internal/services/workerregistry"
)

func newDescriptor(name string, tags ...string) worker.Descriptor {
	return worker.Descriptor{
		Name:           name,
		HostTriple:     "x86_64-unknown-linux-gnu",
		CapabilityTags: tags,
	}
}

func TestRegistryConnectPublishesEvent(t *testing.T) {
	bus := eventbus.New(&mlog.GoLogger{})
	sub := bus.Subscribe(eventbus.TopicWorker)
	defer sub.Unsubscribe()

	reg := workerregistry.New(bus, &mlog.GoLogger{})

	w := reg.Connect(context.Background(), newDescriptor("runner-1"))
	require.NotNil(t, w)
	assert.Equal(t, worker.StateAvailable, w.State)

	select {
	case evt := <-sub.Events():
		assert.Equal(t, "WorkerConnected", evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected WorkerConnected event")
	}
}

func TestRegistryKeepAliveAndSweep(t *testing.T) {
	bus := eventbus.New(&mlog.GoLogger{})
	reg := workerregistry.New(bus, &mlog.GoLogger{})

	w := reg.Connect(context.Background(), newDescriptor("runner-1"))

	require.NoError(t, reg.KeepAlive(w.ID))

	orphans := reg.SweepTimeouts()
	assert.Empty(t, orphans)
	assert.NotNil(t, reg.Find(w.ID))
}

func TestRegistryMarkWorkingAndAvailable(t *testing.T) {
	bus := eventbus.New(&mlog.GoLogger{})
	reg := workerregistry.New(bus, &mlog.GoLogger{})

	w := reg.Connect(context.Background(), newDescriptor("runner-1"))

	jobID := w.ID // reuse as a stand-in UUID
	require.NoError(t, reg.MarkWorking(w.ID, jobID))

	available := reg.ListAvailable()
	assert.Empty(t, available)

	require.NoError(t, reg.MarkAvailable(w.ID))

	available = reg.ListAvailable()
	require.Len(t, available, 1)
	assert.Equal(t, w.ID, available[0].ID)
}

func TestRegistryRemoveReturnsInFlightJob(t *testing.T) {
	bus := eventbus.New(&mlog.GoLogger{})
	reg := workerregistry.New(bus, &mlog.GoLogger{})

	w := reg.Connect(context.Background(), newDescriptor("runner-1"))
	jobID := w.ID

	require.NoError(t, reg.MarkWorking(w.ID, jobID))

	returnedJobID, ok := reg.Remove(w.ID)
	require.True(t, ok)
	require.NotNil(t, returnedJobID)
	assert.Equal(t, jobID, *returnedJobID)

	assert.Nil(t, reg.Find(w.ID))
}

func TestRegistryUnknownWorker(t *testing.T) {
	bus := eventbus.New(&mlog.GoLogger{})
	reg := workerregistry.New(bus, &mlog.GoLogger{})

	unknown := uuid.Must(uuid.NewV7())

	assert.Error(t, reg.KeepAlive(unknown))
	assert.Error(t, reg.MarkWorking(unknown, unknown))
	assert.Error(t, reg.MarkAvailable(unknown))
	assert.Error(t, reg.Drain(unknown))

	_, ok := reg.Remove(unknown)
	assert.False(t, ok)
}

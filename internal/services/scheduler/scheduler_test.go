package scheduler_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratery/cratery/internal/domain/job"
	"github.com/cratery/cratery/internal/domain/worker"
	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/services/eventbus"
	"github.com/cratery/cratery/internal/services/scheduler"
	"github.com/cratery/cratery/internal/services/workerregistry"
)

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*job.Job
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uuid.UUID]*job.Job)}
}

func (f *fakeJobRepo) Create(_ context.Context, j *job.Job) (*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	j.ID = uuid.Must(uuid.NewV7())
	cp := *j
	f.jobs[j.ID] = &cp

	return &cp, nil
}

func (f *fakeJobRepo) Update(_ context.Context, id uuid.UUID, j *job.Job) (*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *j
	cp.ID = id
	f.jobs[id] = &cp

	return &cp, nil
}

func (f *fakeJobRepo) Find(_ context.Context, id uuid.UUID) (*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	j, ok := f.jobs[id]
	if !ok {
		return nil, nil
	}

	cp := *j

	return &cp, nil
}

func (f *fakeJobRepo) ListQueuedByKind(_ context.Context, kind job.Kind) ([]*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*job.Job

	for _, j := range f.jobs {
		if j.Kind == kind && j.State == job.StateQueued {
			cp := *j
			out = append(out, &cp)
		}
	}

	return out, nil
}

func (f *fakeJobRepo) ListDispatchedToWorker(_ context.Context, workerID uuid.UUID) ([]*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*job.Job

	for _, j := range f.jobs {
		if j.State == job.StateDispatched && j.DispatchedWorkerID != nil && *j.DispatchedWorkerID == workerID {
			cp := *j
			out = append(out, &cp)
		}
	}

	return out, nil
}

func (f *fakeJobRepo) ListDispatchedOrphans(_ context.Context, live []uuid.UUID) ([]*job.Job, error) {
	return nil, nil
}

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []uuid.UUID
	aborted    []uuid.UUID
	fail       bool
}

func (d *fakeDispatcher) Abort(_, jobID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.aborted = append(d.aborted, jobID)

	return nil
}

func (d *fakeDispatcher) Dispatch(_ context.Context, workerID uuid.UUID, j *job.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fail {
		return assert.AnError
	}

	d.dispatched = append(d.dispatched, workerID)

	return nil
}

func TestSchedulerSubmitDispatchesToCapableWorker(t *testing.T) {
	ctx := context.Background()
	repo := newFakeJobRepo()
	bus := eventbus.New(&mlog.GoLogger{})
	registry := workerregistry.New(bus, &mlog.GoLogger{})
	dispatcher := &fakeDispatcher{}

	w := registry.Connect(ctx, worker.Descriptor{Name: "runner", CapabilityTags: []string{"docs"}})

	sched := scheduler.New(repo, registry, bus, dispatcher, &mlog.GoLogger{})

	created, err := sched.Submit(ctx, job.KindBuildDocs, job.Payload{}, []string{"docs"}, nil)
	require.NoError(t, err)

	stored, err := repo.Find(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateDispatched, stored.State)
	require.NotNil(t, stored.DispatchedWorkerID)
	assert.Equal(t, w.ID, *stored.DispatchedWorkerID)
}

func TestSchedulerSubmitWithNoCapableWorkerStaysQueued(t *testing.T) {
	ctx := context.Background()
	repo := newFakeJobRepo()
	bus := eventbus.New(&mlog.GoLogger{})
	registry := workerregistry.New(bus, &mlog.GoLogger{})
	dispatcher := &fakeDispatcher{}

	registry.Connect(ctx, worker.Descriptor{Name: "runner", CapabilityTags: []string{"analyze"}})

	sched := scheduler.New(repo, registry, bus, dispatcher, &mlog.GoLogger{})

	created, err := sched.Submit(ctx, job.KindBuildDocs, job.Payload{}, []string{"docs"}, nil)
	require.NoError(t, err)

	stored, err := repo.Find(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateQueued, stored.State)
}

func TestSchedulerCompleteSucceeded(t *testing.T) {
	ctx := context.Background()
	repo := newFakeJobRepo()
	bus := eventbus.New(&mlog.GoLogger{})
	registry := workerregistry.New(bus, &mlog.GoLogger{})
	dispatcher := &fakeDispatcher{}

	w := registry.Connect(ctx, worker.Descriptor{Name: "runner", CapabilityTags: []string{"docs"}})
	sched := scheduler.New(repo, registry, bus, dispatcher, &mlog.GoLogger{})

	created, err := sched.Submit(ctx, job.KindBuildDocs, job.Payload{}, []string{"docs"}, nil)
	require.NoError(t, err)

	require.NoError(t, sched.Complete(ctx, created.ID, w.ID, true, ""))

	stored, err := repo.Find(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateSucceeded, stored.State)
}

func TestSchedulerCompleteFailureRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	repo := newFakeJobRepo()
	bus := eventbus.New(&mlog.GoLogger{})
	registry := workerregistry.New(bus, &mlog.GoLogger{})
	dispatcher := &fakeDispatcher{}

	registry.Connect(ctx, worker.Descriptor{Name: "runner", CapabilityTags: []string{"docs"}})
	sched := scheduler.New(repo, registry, bus, dispatcher, &mlog.GoLogger{})

	created, err := sched.Submit(ctx, job.KindBuildDocs, job.Payload{}, []string{"docs"}, nil)
	require.NoError(t, err)

	stored, _ := repo.Find(ctx, created.ID)
	workerID := *stored.DispatchedWorkerID

	for i := 0; i < scheduler.MaxAttempts-1; i++ {
		require.NoError(t, sched.Complete(ctx, created.ID, workerID, false, "boom"))

		stored, _ = repo.Find(ctx, created.ID)
		require.NotEqual(t, job.StateFailed, stored.State)

		if stored.State == job.StateDispatched {
			workerID = *stored.DispatchedWorkerID
		}
	}

	require.NoError(t, sched.Complete(ctx, created.ID, workerID, false, "boom again"))

	stored, _ = repo.Find(ctx, created.ID)
	assert.Equal(t, job.StateFailed, stored.State)
}

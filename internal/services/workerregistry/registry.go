// Package workerregistry tracks connected remote Workers, their
// capabilities and liveness. No persistence across process restarts: the
// registry is pure in-memory state guarded by a single lock, released
// before any network I/O.
package workerregistry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/cratery/cratery/internal/domain/worker"
	"github.com/cratery/cratery/internal/platform/constant"
	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/services/eventbus"
)

// DefaultKeepAliveTimeout is how often a worker must send a keepalive
// before it is removed.
const DefaultKeepAliveTimeout = 30 * time.Second

// LivenessHint lets the Registry publish a cross-instance heartbeat hint
// (internal/adapters/redis/livenesshint.Cache) without importing the
// concrete adapter: a multi-instance deployment's admin/status views can
// then ask "is this worker alive anywhere in the fleet", not just on the
// instance it happened to dial. Never consulted for dispatch decisions —
// this process's own map stays the only source of truth for that.
type LivenessHint interface {
	Touch(ctx context.Context, workerID uuid.UUID)
}

// Registry is the in-memory Worker Registry.
type Registry struct {
	mu               sync.Mutex
	workers          map[uuid.UUID]*worker.Worker
	keepAliveBreak   map[uuid.UUID]*gobreaker.CircuitBreaker
	keepAliveTimeout time.Duration
	bus              *eventbus.Bus
	logger           mlog.Logger
	hint             LivenessHint
}

// New constructs an empty Registry.
func New(bus *eventbus.Bus, logger mlog.Logger) *Registry {
	if logger == nil {
		logger = &mlog.GoLogger{}
	}

	return &Registry{
		workers:          make(map[uuid.UUID]*worker.Worker),
		keepAliveBreak:   make(map[uuid.UUID]*gobreaker.CircuitBreaker),
		keepAliveTimeout: DefaultKeepAliveTimeout,
		bus:              bus,
		logger:           logger,
	}
}

// WithLivenessHint attaches a cross-instance heartbeat sink; every Connect
// and KeepAlive call touches it in addition to updating local state. Safe
// to leave unset for a single-instance deployment.
func (r *Registry) WithLivenessHint(hint LivenessHint) *Registry {
	r.hint = hint
	return r
}

// Connect registers a newly connected Worker from its Hello descriptor
//, assigning it a fresh identifier.
func (r *Registry) Connect(ctx context.Context, descriptor worker.Descriptor) *worker.Worker {
	now := time.Now()

	w := &worker.Worker{
		ID:            uuid.Must(uuid.NewV7()),
		Descriptor:    descriptor,
		State:         worker.StateAvailable,
		ConnectedAt:   now,
		LastKeepAlive: now,
	}

	r.mu.Lock()
	r.workers[w.ID] = w
	r.keepAliveBreak[w.ID] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        w.ID.String(),
		MaxRequests: 1,
		Timeout:     r.keepAliveTimeout,
	})
	r.mu.Unlock()

	r.bus.Publish(eventbus.Event{Topic: eventbus.TopicWorker, Kind: "WorkerConnected", Payload: w})
	r.logger.Infof("worker %s (%s) connected", w.ID, w.Descriptor.Name)

	if r.hint != nil {
		r.hint.Touch(ctx, w.ID)
	}

	return w
}

// KeepAlive records a keepalive frame's arrival, resetting the liveness
// deadline.
func (r *Registry) KeepAlive(workerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[workerID]
	if !ok {
		return constant.ErrWorkerNotFound
	}

	w.LastKeepAlive = time.Now()

	if r.hint != nil {
		r.hint.Touch(context.Background(), workerID)
	}

	return nil
}

// MarkWorking transitions a worker to Working(jobID).
func (r *Registry) MarkWorking(workerID, jobID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[workerID]
	if !ok {
		return constant.ErrWorkerNotFound
	}

	w.State = worker.StateWorking
	w.JobID = &jobID

	return nil
}

// MarkAvailable transitions a worker back to Available after its job
// terminates.
func (r *Registry) MarkAvailable(workerID uuid.UUID) error {
	r.mu.Lock()
	w, ok := r.workers[workerID]
	if !ok {
		r.mu.Unlock()
		return constant.ErrWorkerNotFound
	}

	w.State = worker.StateAvailable
	w.JobID = nil
	r.mu.Unlock()

	r.bus.Publish(eventbus.Event{Topic: eventbus.TopicWorker, Kind: "WorkerAvailable", Payload: w})

	return nil
}

// Drain marks a worker Draining: it keeps its current job but is never
// offered a new one.
func (r *Registry) Drain(workerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[workerID]
	if !ok {
		return constant.ErrWorkerNotFound
	}

	w.State = worker.StateDraining

	return nil
}

// Remove deregisters a worker (disconnect or liveness timeout), returning
// its in-flight job if any so the caller (scheduler) can requeue it.
func (r *Registry) Remove(workerID uuid.UUID) (jobID *uuid.UUID, ok bool) {
	r.mu.Lock()
	w, found := r.workers[workerID]

	if !found {
		r.mu.Unlock()
		return nil, false
	}

	delete(r.workers, workerID)
	delete(r.keepAliveBreak, workerID)
	r.mu.Unlock()

	r.bus.Publish(eventbus.Event{Topic: eventbus.TopicWorker, Kind: "WorkerRemoved", Payload: w})
	r.logger.Infof("worker %s (%s) removed", w.ID, w.Descriptor.Name)

	return w.JobID, true
}

// Find returns the worker by ID, or nil if not connected.
func (r *Registry) Find(workerID uuid.UUID) *worker.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.workers[workerID]
}

// ListAvailable returns every Available worker in least-recently-used order
// by LastKeepAlive, the order the scheduler's tick walks them in.
func (r *Registry) ListAvailable() []*worker.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	var available []*worker.Worker

	for _, w := range r.workers {
		if w.IsAvailable() {
			available = append(available, w)
		}
	}

	sortByLeastRecentlyUsed(available)

	return available
}

// ListAll returns every connected worker, used by admin endpoints.
func (r *Registry) ListAll() []*worker.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*worker.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		all = append(all, w)
	}

	return all
}

// IDs returns the identifiers of every connected worker, used by the
// reconciler's ListDispatchedOrphans query.
func (r *Registry) IDs() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(r.workers))
	for id := range r.workers {
		ids = append(ids, id)
	}

	return ids
}

// SweepTimeouts removes every worker whose last keepalive is older than the
// registry's timeout, returning their in-flight job IDs for requeueing.
func (r *Registry) SweepTimeouts() []uuid.UUID {
	deadline := time.Now().Add(-r.keepAliveTimeout)

	r.mu.Lock()
	var stale []uuid.UUID

	for id, w := range r.workers {
		if w.LastKeepAlive.Before(deadline) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	var orphanedJobs []uuid.UUID

	for _, id := range stale {
		if jobID, ok := r.Remove(id); ok && jobID != nil {
			orphanedJobs = append(orphanedJobs, *jobID)
		}
	}

	return orphanedJobs
}

func sortByLeastRecentlyUsed(workers []*worker.Worker) {
	for i := 1; i < len(workers); i++ {
		j := i
		for j > 0 && workers[j-1].LastKeepAlive.After(workers[j].LastKeepAlive) {
			workers[j-1], workers[j] = workers[j], workers[j-1]
			j--
		}
	}
}

// Breaker returns the per-worker circuit breaker guarding outbound keepalive
// probes, so a wedged worker's health check trips independently of every
// other connection.
func (r *Registry) Breaker(workerID uuid.UUID) (*gobreaker.CircuitBreaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.keepAliveBreak[workerID]

	return cb, ok
}

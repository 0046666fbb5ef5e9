// Package scheduler is the Job Scheduler. It tracks Queued jobs per kind,
// dispatches them to capable Available workers on every tick, and
// classifies failures into retry-or-terminal.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/domain/job"
	"github.com/cratery/cratery/internal/platform/constant"
	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/services/eventbus"
	"github.com/cratery/cratery/internal/services/workerregistry"
)

// MaxAttempts is the retry policy's ceiling: a job that fails
// this many times is marked Failed rather than requeued.
const MaxAttempts = 3

// Dispatcher is the contract the scheduler needs from a worker transport to
// actually hand a job to a connected worker; internal/worker's protocol
// package implements this over the websocket connection.
type Dispatcher interface {
	Dispatch(ctx context.Context, workerID uuid.UUID, j *job.Job) error
	Abort(workerID, jobID uuid.UUID) error
}

// Scheduler assigns Queued jobs to capable Available workers.
type Scheduler struct {
	repo     job.Repository
	registry *workerregistry.Registry
	bus      *eventbus.Bus
	dispatch Dispatcher
	logger   mlog.Logger

	mu   sync.Mutex
	kind int // round-robin cursor into kinds
}

var kinds = []job.Kind{job.KindBuildDocs, job.KindAnalyzeDeps, job.KindCheckDeprecation}

// New constructs a Scheduler.
func New(repo job.Repository, registry *workerregistry.Registry, bus *eventbus.Bus, dispatch Dispatcher, logger mlog.Logger) *Scheduler {
	if logger == nil {
		logger = &mlog.GoLogger{}
	}

	return &Scheduler{repo: repo, registry: registry, bus: bus, dispatch: dispatch, logger: logger}
}

// Submit persists a new Job in state=Queued and triggers an immediate
// dispatch attempt.
func (s *Scheduler) Submit(ctx context.Context, kind job.Kind, payload job.Payload, requiredCaps []string, deadline *time.Time) (*job.Job, error) {
	j := &job.Job{
		Kind:                 kind,
		Payload:              payload,
		RequiredCapabilities: requiredCaps,
		SubmittedAt:          time.Now(),
		State:                job.StateQueued,
		Deadline:             deadline,
	}

	created, err := s.repo.Create(ctx, j)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(eventbus.Event{Topic: eventbus.TopicJob, Kind: "JobQueued", Payload: created})

	s.Tick(ctx)

	return created, nil
}

// Tick performs one dispatch pass: for each job kind in round-robin order,
// try to pair its oldest Queued job with a capable Available worker. Safe to
// call concurrently and redundantly; callers trigger it on enqueue, worker
// availability and job completion.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	start := s.kind
	s.mu.Unlock()

	for i := 0; i < len(kinds); i++ {
		kind := kinds[(start+i)%len(kinds)]
		s.dispatchKind(ctx, kind)
	}

	s.mu.Lock()
	s.kind = (start + 1) % len(kinds)
	s.mu.Unlock()
}

func (s *Scheduler) dispatchKind(ctx context.Context, kind job.Kind) {
	queued, err := s.repo.ListQueuedByKind(ctx, kind)
	if err != nil {
		s.logger.Errorf("scheduler: list queued %s jobs: %v", kind, err)
		return
	}

	for _, j := range queued {
		available := s.registry.ListAvailable()

		var assigned bool

		for _, w := range available {
			if !w.Descriptor.HasCapabilities(j.RequiredCapabilities) {
				continue
			}

			if s.assign(ctx, j, w.ID) {
				assigned = true
			}

			break
		}

		if !assigned {
			// No capable worker right now; leave Queued for the next tick.
			continue
		}
	}
}

func (s *Scheduler) assign(ctx context.Context, j *job.Job, workerID uuid.UUID) bool {
	if err := s.registry.MarkWorking(workerID, j.ID); err != nil {
		return false
	}

	j.State = job.StateDispatched
	j.DispatchedWorkerID = &workerID
	j.AttemptCount++

	updated, err := s.repo.Update(ctx, j.ID, j)
	if err != nil {
		s.logger.Errorf("scheduler: update job %s to dispatched: %v", j.ID, err)
		_ = s.registry.MarkAvailable(workerID)

		return false
	}

	if err := s.dispatch.Dispatch(ctx, workerID, updated); err != nil {
		s.logger.Warnf("scheduler: dispatch job %s to worker %s failed: %v", j.ID, workerID, err)
		s.requeueOrFail(ctx, updated, "dispatch failed: "+err.Error())
		_ = s.registry.MarkAvailable(workerID)

		return false
	}

	s.bus.Publish(eventbus.Event{Topic: eventbus.TopicJob, Kind: "JobDispatched", Payload: updated})

	return true
}

// Complete records a worker's job result. On success the job moves to
// Succeeded; on failure it is requeued (attempt < MaxAttempts) or marked
// Failed (attempt == MaxAttempts).
func (s *Scheduler) Complete(ctx context.Context, jobID uuid.UUID, workerID uuid.UUID, succeeded bool, reason string) error {
	j, err := s.repo.Find(ctx, jobID)
	if err != nil {
		return err
	}

	if j == nil {
		return constant.ErrJobNotFound
	}

	if j.IsTerminal() {
		return constant.ErrJobAlreadyTerminal
	}

	if succeeded {
		j.State = job.StateSucceeded
		j.DispatchedWorkerID = nil

		updated, err := s.repo.Update(ctx, j.ID, j)
		if err != nil {
			return err
		}

		s.bus.Publish(eventbus.Event{Topic: eventbus.TopicJob, Kind: "JobSucceeded", Payload: updated})
	} else {
		s.requeueOrFail(ctx, j, reason)
	}

	_ = s.registry.MarkAvailable(workerID)
	s.Tick(ctx)

	return nil
}

// requeueOrFail applies the retry policy to a failed attempt.
func (s *Scheduler) requeueOrFail(ctx context.Context, j *job.Job, reason string) {
	j.DispatchedWorkerID = nil
	j.FailureReason = &reason

	if j.AttemptCount >= MaxAttempts {
		j.State = job.StateFailed

		updated, err := s.repo.Update(ctx, j.ID, j)
		if err != nil {
			s.logger.Errorf("scheduler: mark job %s failed: %v", j.ID, err)
			return
		}

		s.bus.Publish(eventbus.Event{Topic: eventbus.TopicJob, Kind: "JobFailed", Payload: updated})

		return
	}

	j.State = job.StateQueued

	updated, err := s.repo.Update(ctx, j.ID, j)
	if err != nil {
		s.logger.Errorf("scheduler: requeue job %s: %v", j.ID, err)
		return
	}

	s.bus.Publish(eventbus.Event{Topic: eventbus.TopicJob, Kind: "JobRequeued", Payload: updated})
}

// HandleWorkerLoss requeues a job left Dispatched by a worker that timed out
// or disconnected, treating the loss
// as a failed attempt.
func (s *Scheduler) HandleWorkerLoss(ctx context.Context, jobID uuid.UUID) {
	j, err := s.repo.Find(ctx, jobID)
	if err != nil || j == nil || j.IsTerminal() {
		return
	}

	s.requeueOrFail(ctx, j, "worker lost")
	s.Tick(ctx)
}

// Cancel transitions a Queued or Dispatched job to Cancelled.
func (s *Scheduler) Cancel(ctx context.Context, jobID uuid.UUID) error {
	j, err := s.repo.Find(ctx, jobID)
	if err != nil {
		return err
	}

	if j == nil {
		return constant.ErrJobNotFound
	}

	if j.IsTerminal() {
		return constant.ErrJobAlreadyTerminal
	}

	dispatchedTo := j.DispatchedWorkerID

	j.State = job.StateCancelled
	j.DispatchedWorkerID = nil

	updated, err := s.repo.Update(ctx, jobID, j)
	if err != nil {
		return err
	}

	if dispatchedTo != nil {
		if err := s.dispatch.Abort(*dispatchedTo, j.ID); err != nil {
			s.logger.Warnf("scheduler: abort job %s on worker %s: %v", j.ID, *dispatchedTo, err)
		}

		_ = s.registry.MarkAvailable(*dispatchedTo)
	}

	s.bus.Publish(eventbus.Event{Topic: eventbus.TopicJob, Kind: "JobCancelled", Payload: updated})

	return nil
}

// SweepDeadlines cancels every Dispatched job past its wall-clock deadline:
// the worker is asked to abort and the attempt is retried or failed like
// any other failure.
func (s *Scheduler) SweepDeadlines(ctx context.Context) {
	dispatched, err := s.repo.ListDispatchedOrphans(ctx, nil)
	if err != nil {
		s.logger.Errorf("scheduler: list dispatched jobs: %v", err)
		return
	}

	now := time.Now()

	for _, j := range dispatched {
		if j.Deadline == nil || now.Before(*j.Deadline) {
			continue
		}

		if j.DispatchedWorkerID != nil {
			if err := s.dispatch.Abort(*j.DispatchedWorkerID, j.ID); err != nil {
				s.logger.Warnf("scheduler: abort job %s on worker %s: %v", j.ID, *j.DispatchedWorkerID, err)
			}

			_ = s.registry.MarkAvailable(*j.DispatchedWorkerID)
		}

		s.requeueOrFail(ctx, j, "deadline exceeded")
	}

	s.Tick(ctx)
}

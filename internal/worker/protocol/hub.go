package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/domain/job"
	"github.com/cratery/cratery/internal/domain/worker"
	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/services/workerregistry"
)

// Conn is the minimal surface the Hub needs from a WebSocket connection;
// *websocket.Conn (github.com/gorilla/websocket) satisfies it, and tests
// substitute an in-memory fake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Scheduler is the subset of internal/services/scheduler.Scheduler the Hub
// needs to record job results and worker loss.
type Scheduler interface {
	Complete(ctx context.Context, jobID, workerID uuid.UUID, succeeded bool, reason string) error
	HandleWorkerLoss(ctx context.Context, jobID uuid.UUID)
	Tick(ctx context.Context)
	SweepDeadlines(ctx context.Context)
}

// ProgressRecorder persists the streamed output a worker reports for an
// in-flight job; internal/adapters/mongodb/jobevents.Log implements it.
type ProgressRecorder interface {
	RecordProgress(ctx context.Context, jobID, workerID uuid.UUID, chunk []byte) error
}

// textMessage mirrors gorilla/websocket.TextMessage's value (1) without
// importing the package here, so Conn stays a narrow interface tests can
// fake without pulling in a real socket.
const textMessage = 1

// Hub owns the live worker connections and is the scheduler's Dispatcher:
// it turns a Job into a wire Envelope and writes it to the right socket.
type Hub struct {
	registry  *workerregistry.Registry
	scheduler Scheduler
	progress  ProgressRecorder
	logger    mlog.Logger

	mu    sync.Mutex
	conns map[uuid.UUID]Conn
}

// NewHub constructs a Hub bound to a Worker Registry and Scheduler.
func NewHub(registry *workerregistry.Registry, scheduler Scheduler, logger mlog.Logger) *Hub {
	if logger == nil {
		logger = &mlog.GoLogger{}
	}

	return &Hub{registry: registry, scheduler: scheduler, logger: logger, conns: make(map[uuid.UUID]Conn)}
}

// WithProgressRecorder installs the append-only job history JobProgress
// frames are forwarded to. Without one, progress frames are dropped.
func (h *Hub) WithProgressRecorder(recorder ProgressRecorder) *Hub {
	h.progress = recorder
	return h
}

// Dispatch implements scheduler.Dispatcher: it writes a Job frame to the
// worker's live connection.
func (h *Hub) Dispatch(_ context.Context, workerID uuid.UUID, j *job.Job) error {
	h.mu.Lock()
	conn, ok := h.conns[workerID]
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("no live connection for worker %s", workerID)
	}

	frame, err := Encode(FrameJob, JobBody{JobID: j.ID, Kind: j.Kind, Payload: j.Payload})
	if err != nil {
		return fmt.Errorf("encode job frame: %w", err)
	}

	return conn.WriteMessage(textMessage, frame)
}

// Abort sends an Abort frame for jobID to workerID, used when a job is
// cancelled while dispatched.
func (h *Hub) Abort(workerID, jobID uuid.UUID) error {
	h.mu.Lock()
	conn, ok := h.conns[workerID]
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("no live connection for worker %s", workerID)
	}

	frame, err := Encode(FrameAbort, AbortBody{JobID: jobID})
	if err != nil {
		return fmt.Errorf("encode abort frame: %w", err)
	}

	return conn.WriteMessage(textMessage, frame)
}

// Serve runs the read loop for a single upgraded connection until it closes
// or errors. It blocks the caller; invoke it from the goroutine the HTTP
// upgrade handler spawns.
func (h *Hub) Serve(ctx context.Context, conn Conn) {
	var (
		w          *worker.Worker
		registered bool
	)

	defer func() {
		_ = conn.Close()

		if registered {
			h.mu.Lock()
			delete(h.conns, w.ID)
			h.mu.Unlock()

			jobID, ok := h.registry.Remove(w.ID)
			if ok && jobID != nil {
				h.scheduler.HandleWorkerLoss(ctx, *jobID)
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env struct {
			Kind FrameKind       `json:"kind"`
			Body json.RawMessage `json:"body"`
		}

		if err := json.Unmarshal(data, &env); err != nil {
			h.logger.Warnf("protocol: malformed frame: %v", err)
			continue
		}

		switch env.Kind {
		case FrameHello:
			if registered {
				continue
			}

			var body HelloBody
			if err := json.Unmarshal(env.Body, &body); err != nil {
				h.logger.Warnf("protocol: malformed hello: %v", err)
				return
			}

			w = h.registry.Connect(ctx, body.Descriptor)
			registered = true

			h.mu.Lock()
			h.conns[w.ID] = conn
			h.mu.Unlock()

			h.scheduler.Tick(ctx)

		case FrameKeepAlive:
			if !registered {
				continue
			}

			if err := h.registry.KeepAlive(w.ID); err != nil {
				h.logger.Warnf("protocol: keepalive for unknown worker %s: %v", w.ID, err)
			}

		case FrameJobResult:
			if !registered {
				continue
			}

			var body JobResultBody
			if err := json.Unmarshal(env.Body, &body); err != nil {
				h.logger.Warnf("protocol: malformed job result: %v", err)
				continue
			}

			succeeded := body.Outcome == OutcomeSuccess
			if err := h.scheduler.Complete(ctx, body.JobID, w.ID, succeeded, body.Reason); err != nil {
				h.logger.Warnf("protocol: complete job %s: %v", body.JobID, err)
			}

		case FrameJobProgress:
			if !registered || h.progress == nil {
				continue
			}

			var body JobProgressBody
			if err := json.Unmarshal(env.Body, &body); err != nil {
				h.logger.Warnf("protocol: malformed job progress: %v", err)
				continue
			}

			if err := h.progress.RecordProgress(ctx, body.JobID, w.ID, body.ArtifactChunk); err != nil {
				h.logger.Warnf("protocol: record progress for job %s: %v", body.JobID, err)
			}

		default:
			h.logger.Warnf("protocol: unknown frame kind %q", env.Kind)
		}
	}
}

// pruneStaleConns closes and drops any connection whose worker no longer
// appears in the registry, e.g. after SweepTimeouts removed it.
func (h *Hub) pruneStaleConns() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for workerID, conn := range h.conns {
		if h.registry.Find(workerID) == nil {
			_ = conn.Close()
			delete(h.conns, workerID)
		}
	}
}

// SweepLoop runs the Worker Registry's liveness sweep on interval until ctx
// is cancelled, requeueing any job left behind by a timed-out worker.
func (h *Hub) SweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, jobID := range h.registry.SweepTimeouts() {
				h.scheduler.HandleWorkerLoss(ctx, jobID)
			}

			h.scheduler.SweepDeadlines(ctx)
			h.pruneStaleConns()
		}
	}
}

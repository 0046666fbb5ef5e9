package protocol_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratery/cratery/internal/domain/job"
	"github.com/cratery/cratery/internal/domain/worker"
	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/services/eventbus"
	"github.com/cratery/cratery/internal/services/workerregistry"
	"github.com/cratery/cratery/internal/worker/protocol"
)

// fakeConn is an in-memory protocol.Conn: outbound writes land in `sent`,
// inbound reads are fed from `toRead` until it's exhausted, then blocks
// until Close is called.
type fakeConn struct {
	mu     sync.Mutex
	toRead [][]byte
	sent   [][]byte
	closed chan struct{}
}

func newFakeConn(frames ...[]byte) *fakeConn {
	return &fakeConn{toRead: frames, closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	f.mu.Lock()
	if len(f.toRead) > 0 {
		next := f.toRead[0]
		f.toRead = f.toRead[1:]
		f.mu.Unlock()

		return 1, next, nil
	}
	f.mu.Unlock()

	<-f.closed

	return 0, nil, assert.AnError
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, data)

	return nil
}

func (f *fakeConn) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}

	return nil
}

type fakeScheduler struct {
	mu        sync.Mutex
	completed []uuid.UUID
	lost      []uuid.UUID
}

func (s *fakeScheduler) Complete(_ context.Context, jobID, _ uuid.UUID, _ bool, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completed = append(s.completed, jobID)

	return nil
}

func (s *fakeScheduler) HandleWorkerLoss(_ context.Context, jobID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lost = append(s.lost, jobID)
}

func (s *fakeScheduler) Tick(_ context.Context) {}

func (s *fakeScheduler) SweepDeadlines(_ context.Context) {}

type fakeProgressRecorder struct {
	mu     sync.Mutex
	chunks map[uuid.UUID][][]byte
}

func newFakeProgressRecorder() *fakeProgressRecorder {
	return &fakeProgressRecorder{chunks: make(map[uuid.UUID][][]byte)}
}

func (r *fakeProgressRecorder) RecordProgress(_ context.Context, jobID, _ uuid.UUID, chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chunks[jobID] = append(r.chunks[jobID], chunk)

	return nil
}

func frame(t *testing.T, kind protocol.FrameKind, body any) []byte {
	t.Helper()

	data, err := protocol.Encode(kind, body)
	require.NoError(t, err)

	return data
}

func TestHubHelloRegistersWorker(t *testing.T) {
	bus := eventbus.New(&mlog.GoLogger{})
	registry := workerregistry.New(bus, &mlog.GoLogger{})
	sched := &fakeScheduler{}
	hub := protocol.NewHub(registry, sched, &mlog.GoLogger{})

	hello := frame(t, protocol.FrameHello, protocol.HelloBody{
		Descriptor: worker.Descriptor{Name: "runner-1", CapabilityTags: []string{"docs"}},
	})

	conn := newFakeConn(hello)

	done := make(chan struct{})
	go func() {
		hub.Serve(context.Background(), conn)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	all := registry.ListAll()
	require.Len(t, all, 1)
	assert.Equal(t, "runner-1", all[0].Descriptor.Name)

	conn.Close()
	<-done

	assert.Empty(t, registry.ListAll())
}

func TestHubForwardsJobProgressToRecorder(t *testing.T) {
	bus := eventbus.New(&mlog.GoLogger{})
	registry := workerregistry.New(bus, &mlog.GoLogger{})
	sched := &fakeScheduler{}
	recorder := newFakeProgressRecorder()
	hub := protocol.NewHub(registry, sched, &mlog.GoLogger{}).WithProgressRecorder(recorder)

	jobID := uuid.Must(uuid.NewV7())

	hello := frame(t, protocol.FrameHello, protocol.HelloBody{
		Descriptor: worker.Descriptor{Name: "runner-1"},
	})
	progress := frame(t, protocol.FrameJobProgress, protocol.JobProgressBody{
		JobID:         jobID,
		ArtifactChunk: []byte("compiling widgets v0.1.0"),
	})

	conn := newFakeConn(hello, progress)

	done := make(chan struct{})
	go func() {
		hub.Serve(context.Background(), conn)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	recorder.mu.Lock()
	chunks := recorder.chunks[jobID]
	recorder.mu.Unlock()

	require.Len(t, chunks, 1)
	assert.Equal(t, []byte("compiling widgets v0.1.0"), chunks[0])

	conn.Close()
	<-done
}

func TestHubDispatchWritesJobFrame(t *testing.T) {
	bus := eventbus.New(&mlog.GoLogger{})
	registry := workerregistry.New(bus, &mlog.GoLogger{})
	sched := &fakeScheduler{}
	hub := protocol.NewHub(registry, sched, &mlog.GoLogger{})

	conn := newFakeConn()
	// Serve registers the worker with the registry and records its
	// connection when it processes the Hello frame.
	hello := frame(t, protocol.FrameHello, protocol.HelloBody{Descriptor: worker.Descriptor{Name: "runner-1"}})
	conn.toRead = append(conn.toRead, hello)

	done := make(chan struct{})
	go func() {
		hub.Serve(context.Background(), conn)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	all := registry.ListAll()
	require.Len(t, all, 1)

	jobID := uuid.Must(uuid.NewV7())
	err := hub.Dispatch(context.Background(), all[0].ID, &job.Job{ID: jobID, Kind: job.KindBuildDocs})
	require.NoError(t, err)

	conn.mu.Lock()
	require.Len(t, conn.sent, 1)
	sent := conn.sent[0]
	conn.mu.Unlock()

	var body protocol.JobBody
	kind, err := protocol.Decode(sent, &body)
	require.NoError(t, err)
	assert.Equal(t, protocol.FrameJob, kind)
	assert.Equal(t, jobID, body.JobID)

	conn.Close()
	<-done
}

func TestHubJobResultCompletesScheduler(t *testing.T) {
	bus := eventbus.New(&mlog.GoLogger{})
	registry := workerregistry.New(bus, &mlog.GoLogger{})
	sched := &fakeScheduler{}
	hub := protocol.NewHub(registry, sched, &mlog.GoLogger{})

	jobID := uuid.Must(uuid.NewV7())

	hello := frame(t, protocol.FrameHello, protocol.HelloBody{Descriptor: worker.Descriptor{Name: "runner-1"}})
	result := frame(t, protocol.FrameJobResult, protocol.JobResultBody{JobID: jobID, Outcome: protocol.OutcomeSuccess})

	conn := newFakeConn(hello, result)

	done := make(chan struct{})
	go func() {
		hub.Serve(context.Background(), conn)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	conn.Close()
	<-done

	sched.mu.Lock()
	defer sched.mu.Unlock()
	require.Len(t, sched.completed, 1)
	assert.Equal(t, jobID, sched.completed[0])
}

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	data, err := protocol.Encode(protocol.FrameAbort, protocol.AbortBody{JobID: uuid.Must(uuid.NewV7())})
	require.NoError(t, err)

	var body protocol.AbortBody
	kind, err := protocol.Decode(data, &body)
	require.NoError(t, err)
	assert.Equal(t, protocol.FrameAbort, kind)

	var raw json.RawMessage
	_, err = protocol.Decode(data, &raw)
	require.NoError(t, err)
}

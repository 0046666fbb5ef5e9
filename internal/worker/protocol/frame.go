// Package protocol is the Worker Protocol transport: a
// full-duplex message stream over a WebSocket upgraded from an
// authenticated HTTP request, carrying Hello/KeepAlive/Job/JobProgress/
// JobResult/Abort frames: a tagged envelope decoded by Kind, dispatched by
// a switch, one JSON document per WebSocket text frame.
package protocol

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/domain/job"
	"github.com/cratery/cratery/internal/domain/worker"
)

// FrameKind tags the payload carried by an Envelope.
type FrameKind string

const (
	FrameHello       FrameKind = "hello"
	FrameKeepAlive   FrameKind = "keep_alive"
	FrameJob         FrameKind = "job"
	FrameJobProgress FrameKind = "job_progress"
	FrameJobResult   FrameKind = "job_result"
	FrameAbort       FrameKind = "abort"
)

// Envelope is the wire shape of every frame exchanged over the worker
// WebSocket: a Kind tag plus a raw JSON body decoded according to it.
type Envelope struct {
	Kind FrameKind       `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// HelloBody is sent once by a worker immediately after the WebSocket
// upgrade, identifying it to the Worker Registry.
type HelloBody struct {
	Descriptor worker.Descriptor `json:"descriptor"`
}

// KeepAliveBody carries no data; its arrival alone resets the liveness
// deadline.
type KeepAliveBody struct{}

// JobBody is sent server→worker to dispatch a unit of work.
type JobBody struct {
	JobID   uuid.UUID   `json:"jobId"`
	Kind    job.Kind    `json:"kind"`
	Payload job.Payload `json:"payload"`
}

// JobProgressBody is sent worker→server as an in-flight job produces
// streamed output (e.g. a docs-build log chunk).
type JobProgressBody struct {
	JobID         uuid.UUID `json:"jobId"`
	ArtifactChunk []byte    `json:"artifactChunk"`
}

// JobOutcome is whether a completed job succeeded or failed.
type JobOutcome string

const (
	OutcomeSuccess JobOutcome = "success"
	OutcomeFailure JobOutcome = "failure"
)

// JobResultBody is sent worker→server when a job reaches a terminal state.
type JobResultBody struct {
	JobID   uuid.UUID  `json:"jobId"`
	Outcome JobOutcome `json:"outcome"`
	Reason  string     `json:"reason,omitempty"`
}

// AbortBody is sent server→worker to cancel an in-flight job.
type AbortBody struct {
	JobID uuid.UUID `json:"jobId"`
}

// Encode wraps a typed body into an Envelope ready to be written to the
// socket.
func Encode(kind FrameKind, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{Kind: kind, Body: raw})
}

// Decode splits a raw frame into its Envelope and unmarshals Body into out.
func Decode(data []byte, out any) (FrameKind, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}

	if out != nil && len(env.Body) > 0 {
		if err := json.Unmarshal(env.Body, out); err != nil {
			return "", err
		}
	}

	return env.Kind, nil
}

// Package worker holds the Worker aggregate. A Worker is created on
// handshake and destroyed on disconnect or timeout: there is no
// persistence across process restarts, so unlike the other aggregates this
// package carries no Postgres model — only the in-memory shape the Worker
// Registry (internal/services/workerregistry) manages.
package worker

import (
	"time"

	"github.com/google/uuid"
)

// State is the current activity state of a connected Worker.
type State string

const (
	StateAvailable State = "available"
	StateWorking   State = "working"
	StateDraining  State = "draining"
)

// ToolchainVersions describes the stable/nightly toolchain builds a worker
// has installed.
type ToolchainVersions struct {
	Stable  string `json:"stable"`
	Nightly string `json:"nightly,omitempty"`
}

// Descriptor is what a Worker sends in its Hello frame on connect.
type Descriptor struct {
	Name              string            `json:"name"`
	HostTriple        string            `json:"hostTriple"`
	ToolchainVersions ToolchainVersions `json:"toolchainVersions"`
	InstalledTargets  []string          `json:"installedTargets"`
	CapabilityTags    []string          `json:"capabilityTags"`
}

// HasCapabilities reports whether the descriptor's capability tags are a
// superset of required.
func (d Descriptor) HasCapabilities(required []string) bool {
	have := make(map[string]struct{}, len(d.CapabilityTags))
	for _, tag := range d.CapabilityTags {
		have[tag] = struct{}{}
	}

	for _, tag := range required {
		if _, ok := have[tag]; !ok {
			return false
		}
	}

	return true
}

// Worker is a connected remote executor.
type Worker struct {
	ID             uuid.UUID  `json:"id"`
	Descriptor     Descriptor `json:"descriptor"`
	State          State      `json:"state"`
	JobID          *uuid.UUID `json:"jobId,omitempty"`
	ConnectedAt    time.Time  `json:"connectedAt"`
	LastKeepAlive  time.Time  `json:"lastKeepAlive"`
}

// IsAvailable reports whether the worker can accept a new job.
func (w *Worker) IsAvailable() bool {
	return w.State == StateAvailable
}

// Package job holds the Job aggregate: the unit of deferred work
// dispatched to a Worker.
package job

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind is the category of work a Job performs.
type Kind string

const (
	KindBuildDocs         Kind = "build_docs"
	KindAnalyzeDeps       Kind = "analyze_deps"
	KindCheckDeprecation  Kind = "check_deprecation"
)

// State is a Job's position in its lifecycle state machine.
type State string

const (
	StateQueued     State = "queued"
	StateDispatched State = "dispatched"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Payload is the work order a worker receives when dispatched a Job.
type Payload struct {
	CrateID           uuid.UUID `json:"crateId"`
	VersionID         uuid.UUID `json:"versionId"`
	RequestedTargets  []string  `json:"requestedTargets,omitempty"`
	RequestedFeatures []string  `json:"requestedFeatures,omitempty"`
}

// Job is a unit of deferred work created by the registry and consumed by a
// worker.
type Job struct {
	ID                   uuid.UUID  `json:"id"`
	Kind                 Kind       `json:"kind"`
	Payload              Payload    `json:"payload"`
	RequiredCapabilities []string   `json:"requiredCapabilities"`
	SubmittedAt          time.Time  `json:"submittedAt"`
	AttemptCount         int        `json:"attemptCount"`
	State                State      `json:"state"`
	DispatchedWorkerID   *uuid.UUID `json:"dispatchedWorkerId,omitempty"`
	FailureReason        *string    `json:"failureReason,omitempty"`
	Deadline             *time.Time `json:"deadline,omitempty"`
}

// IsTerminal reports whether the Job has reached a state with no further
// transitions.
func (j *Job) IsTerminal() bool {
	switch j.State {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// PostgreSQLModel represents Job in the Metadata DB's relational shape.
type PostgreSQLModel struct {
	ID                   string
	Kind                 string
	Payload              []byte
	RequiredCapabilities []byte
	SubmittedAt          time.Time
	AttemptCount         int
	State                string
	DispatchedWorkerID   sql.NullString
	FailureReason        sql.NullString
	Deadline             sql.NullTime
}

// ToEntity converts a PostgreSQLModel row into a Job.
func (m *PostgreSQLModel) ToEntity() (*Job, error) {
	j := &Job{
		ID:           uuid.MustParse(m.ID),
		Kind:         Kind(m.Kind),
		SubmittedAt:  m.SubmittedAt,
		AttemptCount: m.AttemptCount,
		State:        State(m.State),
	}

	if err := json.Unmarshal(m.Payload, &j.Payload); err != nil {
		return nil, err
	}

	if len(m.RequiredCapabilities) > 0 {
		if err := json.Unmarshal(m.RequiredCapabilities, &j.RequiredCapabilities); err != nil {
			return nil, err
		}
	}

	if m.DispatchedWorkerID.Valid {
		workerID := uuid.MustParse(m.DispatchedWorkerID.String)
		j.DispatchedWorkerID = &workerID
	}

	if m.FailureReason.Valid {
		reason := m.FailureReason.String
		j.FailureReason = &reason
	}

	if m.Deadline.Valid {
		deadline := m.Deadline.Time
		j.Deadline = &deadline
	}

	return j, nil
}

// FromEntity populates a PostgreSQLModel from a Job, assigning a fresh ID
// when the Job hasn't been persisted yet.
func (m *PostgreSQLModel) FromEntity(j *Job) error {
	id := j.ID
	if id == uuid.Nil {
		id = uuid.Must(uuid.NewV7())
	}

	payload, err := json.Marshal(j.Payload)
	if err != nil {
		return err
	}

	caps, err := json.Marshal(j.RequiredCapabilities)
	if err != nil {
		return err
	}

	*m = PostgreSQLModel{
		ID:                   id.String(),
		Kind:                 string(j.Kind),
		Payload:              payload,
		RequiredCapabilities: caps,
		SubmittedAt:          j.SubmittedAt,
		AttemptCount:         j.AttemptCount,
		State:                string(j.State),
	}

	if j.DispatchedWorkerID != nil {
		m.DispatchedWorkerID = sql.NullString{String: j.DispatchedWorkerID.String(), Valid: true}
	}

	if j.FailureReason != nil {
		m.FailureReason = sql.NullString{String: *j.FailureReason, Valid: true}
	}

	if j.Deadline != nil {
		m.Deadline = sql.NullTime{Time: *j.Deadline, Valid: true}
	}

	return nil
}

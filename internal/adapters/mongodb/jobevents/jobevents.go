// Package jobevents is the Mongo-backed append-only job history: every
// streamed progress chunk a worker reports for an in-flight job is appended
// here, separate from the relational Job row so a chatty build never
// contends with Postgres for high-churn progress writes.
package jobevents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/platform/mmongo"
	"github.com/cratery/cratery/internal/platform/motel"
)

// Collection is the Mongo collection every Event is appended to.
const Collection = "job_event_log"

// Event is one progress record for a dispatched Job.
type Event struct {
	ID         uuid.UUID `bson:"_id"`
	JobID      uuid.UUID `bson:"job_id"`
	WorkerID   uuid.UUID `bson:"worker_id"`
	Chunk      []byte    `bson:"chunk"`
	RecordedAt time.Time `bson:"recorded_at"`
}

// Log is the Mongo-backed progress recorder handed to the worker protocol
// Hub.
type Log struct {
	conn   *mmongo.Connection
	logger mlog.Logger
}

// New returns a Log using the given Mongo connection.
func New(conn *mmongo.Connection, logger mlog.Logger) *Log {
	if logger == nil {
		logger = &mlog.GoLogger{}
	}

	return &Log{conn: conn, logger: logger}
}

// RecordProgress appends one streamed chunk for jobID to the job history.
func (l *Log) RecordProgress(ctx context.Context, jobID, workerID uuid.UUID, chunk []byte) error {
	tracer := motel.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "mongodb.jobevents.record_progress")
	defer span.End()

	coll, err := l.conn.Collection(ctx, Collection)
	if err != nil {
		motel.HandleSpanError(&span, "failed to get job event collection", err)
		return err
	}

	evt := Event{
		ID:         uuid.Must(uuid.NewV7()),
		JobID:      jobID,
		WorkerID:   workerID,
		Chunk:      chunk,
		RecordedAt: time.Now(),
	}

	if _, err := coll.InsertOne(ctx, evt); err != nil {
		motel.HandleSpanError(&span, "failed to insert job event", err)
		return err
	}

	return nil
}

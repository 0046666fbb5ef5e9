// Package audit is the Mongo-backed audit log: every publish, ownership
// mutation, yank/unyank, deprecate and remove is appended to an audit
// collection, separate from the relational Job/Version rows so a busy
// publish path never contends with it.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/platform/mmongo"
	"github.com/cratery/cratery/internal/platform/motel"
	"github.com/cratery/cratery/internal/services/command"
)

// Collection is the Mongo collection every Entry is appended to.
const Collection = "crate_audit_log"

// Entry is one recorded mutation against a Crate or Version.
type Entry struct {
	ID         uuid.UUID `bson:"_id"`
	Action     string    `bson:"action"`
	CrateName  string    `bson:"crate_name"`
	Version    string    `bson:"version,omitempty"`
	ActorID    uuid.UUID `bson:"actor_id"`
	Detail     string    `bson:"detail,omitempty"`
	OccurredAt time.Time `bson:"occurred_at"`
}

// Logger is the command layer's view of the audit log: append-only,
// best-effort from the caller's perspective (a failed audit write is logged
// but never aborts the mutation it is recording).
type Logger interface {
	Record(ctx context.Context, e Entry) error
}

// MongoLogger is the Mongo-backed Logger implementation.
type MongoLogger struct {
	conn   *mmongo.Connection
	logger mlog.Logger
}

// New returns a MongoLogger using the given Mongo connection.
func New(conn *mmongo.Connection, logger mlog.Logger) *MongoLogger {
	if logger == nil {
		logger = &mlog.GoLogger{}
	}

	return &MongoLogger{conn: conn, logger: logger}
}

// Record appends an Entry to the audit collection.
func (l *MongoLogger) Record(ctx context.Context, e Entry) error {
	tracer := motel.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "mongodb.audit.record")
	defer span.End()

	if e.ID == uuid.Nil {
		e.ID = uuid.Must(uuid.NewV7())
	}

	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	coll, err := l.conn.Collection(ctx, Collection)
	if err != nil {
		motel.HandleSpanError(&span, "failed to get audit collection", err)
		return err
	}

	if _, err := coll.InsertOne(ctx, e); err != nil {
		motel.HandleSpanError(&span, "failed to insert audit entry", err)
		return err
	}

	return nil
}

// NilLogger discards every Record call; used where no Mongo connection is
// configured (e.g. unit tests, or a deployment that opts out of the audit
// log supplement).
type NilLogger struct{}

func (NilLogger) Record(context.Context, Entry) error { return nil }

// CommandLoggerAdapter satisfies command.AuditLogger by translating a
// command.AuditEntry into an Entry and delegating to a Logger, so the
// command package never needs to import this adapter package directly.
type CommandLoggerAdapter struct {
	Logger Logger
}

// NewCommandLoggerAdapter wraps logger so it can be assigned to
// command.Service.Audit.
func NewCommandLoggerAdapter(logger Logger) CommandLoggerAdapter {
	return CommandLoggerAdapter{Logger: logger}
}

// Record implements command.AuditLogger.
func (a CommandLoggerAdapter) Record(ctx context.Context, e command.AuditEntry) error {
	return a.Logger.Record(ctx, Entry{
		Action:     e.Action,
		CrateName:  e.CrateName,
		Version:    e.Version,
		ActorID:    e.ActorID,
		Detail:     e.Detail,
		OccurredAt: e.OccurredAt,
	})
}

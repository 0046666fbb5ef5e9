// Package job is the Postgres-backed implementation of job.Repository: the
// durable side of the Job state machine.
package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cratery/cratery/internal/domain/job"
	"github.com/cratery/cratery/internal/platform/apperr"
	"github.com/cratery/cratery/internal/platform/constant"
	"github.com/cratery/cratery/internal/platform/mpostgres"
	"github.com/cratery/cratery/internal/platform/motel"
)

// Repository is the Postgres-specific implementation of job.Repository.
type Repository struct {
	conn      *mpostgres.Connection
	tableName string
}

// New constructs a Repository bound to conn.
func New(conn *mpostgres.Connection) *Repository {
	return &Repository{conn: conn, tableName: "registry_job"}
}

const selectColumns = `id, kind, payload, required_capabilities, submitted_at, attempt_count, state,
	dispatched_worker_id, failure_reason, deadline`

func scanJob(row interface{ Scan(...any) error }) (*job.Job, error) {
	m := &job.PostgreSQLModel{}

	if err := row.Scan(
		&m.ID, &m.Kind, &m.Payload, &m.RequiredCapabilities, &m.SubmittedAt, &m.AttemptCount, &m.State,
		&m.DispatchedWorkerID, &m.FailureReason, &m.Deadline,
	); err != nil {
		return nil, err
	}

	return m.ToEntity()
}

// Create inserts a new Job row in state=Queued.
func (r *Repository) Create(ctx context.Context, j *job.Job) (*job.Job, error) {
	tracer := motel.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.job.create")
	defer span.End()

	db, err := r.conn.GetDB(ctx)
	if err != nil {
		motel.HandleSpanError(&span, "get database connection", err)
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	m := &job.PostgreSQLModel{}
	if err := m.FromEntity(j); err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	_, err = db.ExecContext(ctx, `INSERT INTO `+r.tableName+`
		(id, kind, payload, required_capabilities, submitted_at, attempt_count, state, dispatched_worker_id, failure_reason, deadline)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		m.ID, m.Kind, m.Payload, m.RequiredCapabilities, m.SubmittedAt, m.AttemptCount, m.State,
		m.DispatchedWorkerID, m.FailureReason, m.Deadline,
	)
	if err != nil {
		motel.HandleSpanError(&span, "insert job", err)
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return m.ToEntity()
}

// Update rewrites a Job row's state-machine fields.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, j *job.Job) (*job.Job, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	m := &job.PostgreSQLModel{}
	if err := m.FromEntity(j); err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	m.ID = id.String()

	result, err := db.ExecContext(ctx, `UPDATE `+r.tableName+` SET
		attempt_count=$1, state=$2, dispatched_worker_id=$3, failure_reason=$4, deadline=$5
		WHERE id=$6`,
		m.AttemptCount, m.State, m.DispatchedWorkerID, m.FailureReason, m.Deadline, m.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return nil, constant.ErrJobNotFound
	}

	return m.ToEntity()
}

// Find retrieves a Job by ID.
func (r *Repository) Find(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	row := db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM `+r.tableName+` WHERE id=$1`, id.String())

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	return j, nil
}

// ListQueuedByKind returns every Queued job of a kind, FIFO by submission
// time.
func (r *Repository) ListQueuedByKind(ctx context.Context, kind job.Kind) ([]*job.Job, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	rows, err := db.QueryContext(ctx, `SELECT `+selectColumns+` FROM `+r.tableName+`
		WHERE kind=$1 AND state='queued' ORDER BY submitted_at ASC, id ASC`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query queued jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListDispatchedToWorker returns the (at most one) Job currently Dispatched
// to a worker.
func (r *Repository) ListDispatchedToWorker(ctx context.Context, workerID uuid.UUID) ([]*job.Job, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	rows, err := db.QueryContext(ctx, `SELECT `+selectColumns+` FROM `+r.tableName+`
		WHERE dispatched_worker_id=$1 AND state='dispatched'`, workerID.String())
	if err != nil {
		return nil, fmt.Errorf("query dispatched jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListDispatchedOrphans returns every Dispatched Job whose worker no longer
// appears in liveWorkerIDs: the reconciler's startup backstop for the
// non-persisted Worker Registry.
func (r *Repository) ListDispatchedOrphans(ctx context.Context, liveWorkerIDs []uuid.UUID) ([]*job.Job, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	live := make([]string, len(liveWorkerIDs))
	for i, id := range liveWorkerIDs {
		live[i] = id.String()
	}

	rows, err := db.QueryContext(ctx, `SELECT `+selectColumns+` FROM `+r.tableName+`
		WHERE state='dispatched' AND NOT (dispatched_worker_id = ANY($1))`, pq.Array(live))
	if err != nil {
		return nil, fmt.Errorf("query orphaned jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]*job.Job, error) {
	var jobs []*job.Job

	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}

		jobs = append(jobs, j)
	}

	return jobs, rows.Err()
}

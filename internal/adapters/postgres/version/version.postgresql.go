// Package version is the Postgres-backed implementation of
// version.Repository.
package version

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/domain/version"
	"github.com/cratery/cratery/internal/platform/apperr"
	"github.com/cratery/cratery/internal/platform/constant"
	"github.com/cratery/cratery/internal/platform/mpostgres"
	"github.com/cratery/cratery/internal/platform/motel"
)

// Repository is the Postgres-specific implementation of version.Repository.
type Repository struct {
	conn      *mpostgres.Connection
	tableName string
}

// New constructs a Repository bound to conn.
func New(conn *mpostgres.Connection) *Repository {
	return &Repository{conn: conn, tableName: "crate_version"}
}

const selectColumns = `id, crate_id, semver, uploaded_at, uploader_id, state, content_hash, size_bytes,
	dependencies, features, links, binary_targets, docs_state, docs_failure_reason`

func scanVersion(row interface{ Scan(...any) error }) (*version.Version, error) {
	m := &version.PostgreSQLModel{}

	if err := row.Scan(
		&m.ID, &m.CrateID, &m.Semver, &m.UploadedAt, &m.UploaderID, &m.State, &m.ContentHash, &m.SizeBytes,
		&m.Dependencies, &m.Features, &m.Links, &m.BinaryTargets, &m.DocsState, &m.DocsFailureReason,
	); err != nil {
		return nil, err
	}

	return m.ToEntity()
}

// Create inserts a new Version row with state=Active, docs-state=Pending,
// as a single statement on the connection pool; no transaction is opened
// or joined.
func (r *Repository) Create(ctx context.Context, v *version.Version) (*version.Version, error) {
	tracer := motel.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.version.create")
	defer span.End()

	db, err := r.conn.GetDB(ctx)
	if err != nil {
		motel.HandleSpanError(&span, "get database connection", err)
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	m := &version.PostgreSQLModel{}
	if err := m.FromEntity(v); err != nil {
		return nil, fmt.Errorf("marshal version: %w", err)
	}

	_, err = db.ExecContext(ctx, `INSERT INTO `+r.tableName+`
		(id, crate_id, semver, uploaded_at, uploader_id, state, content_hash, size_bytes,
		 dependencies, features, links, binary_targets, docs_state, docs_failure_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		m.ID, m.CrateID, m.Semver, m.UploadedAt, m.UploaderID, m.State, m.ContentHash, m.SizeBytes,
		m.Dependencies, m.Features, m.Links, m.BinaryTargets, m.DocsState, m.DocsFailureReason,
	)
	if err != nil {
		motel.HandleSpanError(&span, "insert version", err)

		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return nil, constant.ErrVersionAlreadyExists
		}

		return nil, fmt.Errorf("insert version: %w", err)
	}

	return m.ToEntity()
}

// Update rewrites a Version row (state transitions, docs-state transitions).
func (r *Repository) Update(ctx context.Context, id uuid.UUID, v *version.Version) (*version.Version, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	m := &version.PostgreSQLModel{}
	if err := m.FromEntity(v); err != nil {
		return nil, fmt.Errorf("marshal version: %w", err)
	}

	m.ID = id.String()

	result, err := db.ExecContext(ctx, `UPDATE `+r.tableName+` SET
		state=$1, docs_state=$2, docs_failure_reason=$3
		WHERE id=$4`,
		m.State, m.DocsState, m.DocsFailureReason, m.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update version: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return nil, constant.ErrVersionNotFound
	}

	return m.ToEntity()
}

// Find retrieves a Version by ID.
func (r *Repository) Find(ctx context.Context, id uuid.UUID) (*version.Version, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	row := db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM `+r.tableName+` WHERE id=$1`, id.String())

	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("scan version: %w", err)
	}

	return v, nil
}

// FindByCrateAndSemver enforces the (crate, semver) uniqueness invariant
// at the read side too: used to reject re-publication, including of yanked
// versions.
func (r *Repository) FindByCrateAndSemver(ctx context.Context, crateID uuid.UUID, semver string) (*version.Version, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	row := db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM `+r.tableName+` WHERE crate_id=$1 AND semver=$2`,
		crateID.String(), semver)

	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("scan version: %w", err)
	}

	return v, nil
}

// ListByCrate lists every Version for a crate in upload order, the source
// the Index Repository's reconciler re-derives a crate's file from.
func (r *Repository) ListByCrate(ctx context.Context, crateID uuid.UUID) ([]*version.Version, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	rows, err := db.QueryContext(ctx, `SELECT `+selectColumns+` FROM `+r.tableName+` WHERE crate_id=$1 ORDER BY uploaded_at ASC`,
		crateID.String())
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	return scanVersions(rows)
}

// ListByContentHash finds every Version sharing a content hash, used by
// Remove to decide whether a blob is still referenced.
func (r *Repository) ListByContentHash(ctx context.Context, contentHash string) ([]*version.Version, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	rows, err := db.QueryContext(ctx, `SELECT `+selectColumns+` FROM `+r.tableName+` WHERE content_hash=$1`, contentHash)
	if err != nil {
		return nil, fmt.Errorf("query versions by hash: %w", err)
	}
	defer rows.Close()

	return scanVersions(rows)
}

// Delete hard-deletes a Version row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return apperr.StorageError{Message: err.Error(), Err: err}
	}

	_, err = db.ExecContext(ctx, `DELETE FROM `+r.tableName+` WHERE id=$1`, id.String())
	if err != nil {
		return fmt.Errorf("delete version: %w", err)
	}

	return nil
}

// ListOrphaned returns the candidates for the reconciler's "crash between
// DB commit and blob move" case: every Active Version uploaded more than one
// hour ago whose docs-state is still Pending. The query does not look at the
// Blob Store; the caller (internal/services/reconcile) checks whether each
// candidate's blob exists.
func (r *Repository) ListOrphaned(ctx context.Context) ([]*version.Version, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	rows, err := db.QueryContext(ctx, `SELECT `+selectColumns+` FROM `+r.tableName+`
		WHERE state='active' AND uploaded_at < now() - interval '1 hour' AND docs_state='pending'`)
	if err != nil {
		return nil, fmt.Errorf("query orphaned versions: %w", err)
	}
	defer rows.Close()

	return scanVersions(rows)
}

func scanVersions(rows *sql.Rows) ([]*version.Version, error) {
	var versions []*version.Version

	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}

		versions = append(versions, v)
	}

	return versions, rows.Err()
}

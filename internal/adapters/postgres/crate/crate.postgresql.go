// Package crate is the Postgres-backed implementation of crate.Repository.
package crate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/domain/crate"
	"github.com/cratery/cratery/internal/platform/apperr"
	"github.com/cratery/cratery/internal/platform/constant"
	"github.com/cratery/cratery/internal/platform/mpostgres"
	"github.com/cratery/cratery/internal/platform/motel"
)

// Repository is the Postgres-specific implementation of crate.Repository.
type Repository struct {
	conn      *mpostgres.Connection
	tableName string
}

// New constructs a Repository bound to conn.
func New(conn *mpostgres.Connection) *Repository {
	return &Repository{conn: conn, tableName: "crate"}
}

func scanCrate(row interface{ Scan(...any) error }) (*crate.Crate, error) {
	m := &crate.PostgreSQLModel{}

	if err := row.Scan(
		&m.ID, &m.Name, &m.NormalizedName, &m.DeprecationNotice, &m.TargetRegistry, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return m.ToEntity(), nil
}

// Create inserts a new Crate row, assigning the publisher as sole Owner is
// the caller's responsibility — this method only
// persists the Crate itself.
func (r *Repository) Create(ctx context.Context, c *crate.Crate) (*crate.Crate, error) {
	tracer := motel.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.crate.create")
	defer span.End()

	db, err := r.conn.GetDB(ctx)
	if err != nil {
		motel.HandleSpanError(&span, "get database connection", err)
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	m := &crate.PostgreSQLModel{}
	m.FromEntity(c)

	_, err = db.ExecContext(ctx, `INSERT INTO `+r.tableName+`
		(id, name, normalized_name, deprecation_notice, target_registry, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.Name, m.NormalizedName, m.DeprecationNotice, m.TargetRegistry, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		motel.HandleSpanError(&span, "insert crate", err)

		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return nil, constant.ErrVersionAlreadyExists
		}

		return nil, fmt.Errorf("insert crate: %w", err)
	}

	return m.ToEntity(), nil
}

// Update rewrites a Crate row's mutable fields (deprecation notice, target
// registry).
func (r *Repository) Update(ctx context.Context, id uuid.UUID, c *crate.Crate) (*crate.Crate, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	m := &crate.PostgreSQLModel{}
	m.FromEntity(c)
	m.ID = id.String()

	result, err := db.ExecContext(ctx, `UPDATE `+r.tableName+` SET
		deprecation_notice=$1, target_registry=$2, updated_at=now()
		WHERE id=$3`,
		m.DeprecationNotice, m.TargetRegistry, m.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update crate: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return nil, constant.ErrPackageNotFound
	}

	return m.ToEntity(), nil
}

// Find retrieves a Crate by ID.
func (r *Repository) Find(ctx context.Context, id uuid.UUID) (*crate.Crate, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	row := db.QueryRowContext(ctx, `SELECT id, name, normalized_name, deprecation_notice, target_registry, created_at, updated_at
		FROM `+r.tableName+` WHERE id=$1`, id.String())

	c, err := scanCrate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("scan crate: %w", err)
	}

	return c, nil
}

// FindByNormalizedName looks up a Crate by its normalized name.
func (r *Repository) FindByNormalizedName(ctx context.Context, normalizedName string) (*crate.Crate, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	row := db.QueryRowContext(ctx, `SELECT id, name, normalized_name, deprecation_notice, target_registry, created_at, updated_at
		FROM `+r.tableName+` WHERE normalized_name=$1`, normalizedName)

	c, err := scanCrate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("scan crate: %w", err)
	}

	return c, nil
}

// Search returns Crates whose name matches query by prefix/substring,
// keyset-paginated: rows are ordered by normalized_name (unique) and the
// page starts strictly after afterName, so a caller resuming from an
// opaque cursor never sees a row twice even if crates were inserted in
// between.
func (r *Repository) Search(ctx context.Context, query string, afterName string, limit int) ([]*crate.Crate, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	q := squirrel.Select("id", "name", "normalized_name", "deprecation_notice", "target_registry", "created_at", "updated_at").
		From(r.tableName)

	if query != "" {
		q = q.Where(squirrel.ILike{"name": "%" + query + "%"})
	}

	if afterName != "" {
		q = q.Where(squirrel.Gt{"normalized_name": afterName})
	}

	q = q.OrderBy("normalized_name ASC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query crates: %w", err)
	}
	defer rows.Close()

	var crates []*crate.Crate

	for rows.Next() {
		c, err := scanCrate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan crate: %w", err)
		}

		crates = append(crates, c)
	}

	return crates, rows.Err()
}

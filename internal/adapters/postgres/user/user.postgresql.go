// Package user is the Postgres-backed implementation of user.Repository:
// entity converters live in the domain package, SQL and scanning here.
package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/domain/user"
	"github.com/cratery/cratery/internal/platform/apperr"
	"github.com/cratery/cratery/internal/platform/constant"
	"github.com/cratery/cratery/internal/platform/mpostgres"
	"github.com/cratery/cratery/internal/platform/motel"
)

// Repository is the Postgres-specific implementation of user.Repository.
type Repository struct {
	conn      *mpostgres.Connection
	tableName string
}

// New constructs a Repository bound to conn.
func New(conn *mpostgres.Connection) *Repository {
	return &Repository{conn: conn, tableName: "registry_user"}
}

func scanUser(row interface{ Scan(...any) error }) (*user.User, error) {
	m := &user.PostgreSQLModel{}

	if err := row.Scan(
		&m.ID, &m.DisplayName, &m.Email, &m.Role, &m.ExternalSubject,
		&m.Disabled, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return m.ToEntity(), nil
}

// Create inserts a new User row.
func (r *Repository) Create(ctx context.Context, u *user.User) (*user.User, error) {
	tracer := motel.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.user.create")
	defer span.End()

	db, err := r.conn.GetDB(ctx)
	if err != nil {
		motel.HandleSpanError(&span, "get database connection", err)
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	m := &user.PostgreSQLModel{}
	m.FromEntity(u)

	_, err = db.ExecContext(ctx, `INSERT INTO `+r.tableName+`
		(id, display_name, email, role, external_subject, disabled, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.DisplayName, m.Email, m.Role, m.ExternalSubject, m.Disabled, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		motel.HandleSpanError(&span, "insert user", err)
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return m.ToEntity(), nil
}

// Update rewrites a User row's mutable fields.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, u *user.User) (*user.User, error) {
	tracer := motel.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.user.update")
	defer span.End()

	db, err := r.conn.GetDB(ctx)
	if err != nil {
		motel.HandleSpanError(&span, "get database connection", err)
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	m := &user.PostgreSQLModel{}
	m.FromEntity(u)
	m.ID = id.String()

	result, err := db.ExecContext(ctx, `UPDATE `+r.tableName+` SET
		display_name=$1, email=$2, role=$3, external_subject=$4, disabled=$5, updated_at=$6
		WHERE id=$7`,
		m.DisplayName, m.Email, m.Role, m.ExternalSubject, m.Disabled, m.UpdatedAt, m.ID,
	)
	if err != nil {
		motel.HandleSpanError(&span, "update user", err)
		return nil, fmt.Errorf("update user: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return nil, constant.ErrPackageNotFound
	}

	return m.ToEntity(), nil
}

// Find retrieves a User by ID.
func (r *Repository) Find(ctx context.Context, id uuid.UUID) (*user.User, error) {
	tracer := motel.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.user.find")
	defer span.End()

	db, err := r.conn.GetDB(ctx)
	if err != nil {
		motel.HandleSpanError(&span, "get database connection", err)
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	row := db.QueryRowContext(ctx, `SELECT id, display_name, email, role, external_subject, disabled, created_at, updated_at
		FROM `+r.tableName+` WHERE id=$1`, id.String())

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		motel.HandleSpanError(&span, "scan user", err)
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return u, nil
}

// FindByExternalSubject looks up a User by its external identity subject.
func (r *Repository) FindByExternalSubject(ctx context.Context, subject string) (*user.User, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	row := db.QueryRowContext(ctx, `SELECT id, display_name, email, role, external_subject, disabled, created_at, updated_at
		FROM `+r.tableName+` WHERE external_subject=$1`, subject)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return u, nil
}

// FindByEmail looks up a User by email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	row := db.QueryRowContext(ctx, `SELECT id, display_name, email, role, external_subject, disabled, created_at, updated_at
		FROM `+r.tableName+` WHERE email=$1`, email)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return u, nil
}

// FindAll paginates over every User, admin-facing.
func (r *Repository) FindAll(ctx context.Context, page, limit int) ([]*user.User, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	q := squirrel.Select("id", "display_name", "email", "role", "external_subject", "disabled", "created_at", "updated_at").
		From(r.tableName).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64((page - 1) * limit)).
		PlaceholderFormat(squirrel.Dollar)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*user.User

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}

		users = append(users, u)
	}

	return users, rows.Err()
}

// Disable marks a User disabled; Users are never destroyed.
func (r *Repository) Disable(ctx context.Context, id uuid.UUID) error {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return apperr.StorageError{Message: err.Error(), Err: err}
	}

	_, err = db.ExecContext(ctx, `UPDATE `+r.tableName+` SET disabled=true, updated_at=now() WHERE id=$1`, id.String())
	if err != nil {
		return fmt.Errorf("disable user: %w", err)
	}

	return nil
}

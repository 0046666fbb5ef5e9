// Package ownership is the Postgres-backed implementation of
// ownership.Repository: the Owner relation's last-owner invariant is enforced by the command layer calling Count inside the same
// per-crate write lock as Remove, not by this adapter.
package ownership

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cratery/cratery/internal/domain/user"
	"github.com/cratery/cratery/internal/platform/apperr"
	"github.com/cratery/cratery/internal/platform/constant"
	"github.com/cratery/cratery/internal/platform/mpostgres"
	"github.com/cratery/cratery/internal/platform/motel"
)

// Repository is the Postgres-specific implementation of ownership.Repository.
type Repository struct {
	conn      *mpostgres.Connection
	tableName string
}

// New constructs a Repository bound to conn.
func New(conn *mpostgres.Connection) *Repository {
	return &Repository{conn: conn, tableName: "crate_ownership"}
}

// Add inserts a (crate, user) ownership row, idempotently.
func (r *Repository) Add(ctx context.Context, crateID, userID uuid.UUID) error {
	tracer := motel.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.ownership.add")
	defer span.End()

	db, err := r.conn.GetDB(ctx)
	if err != nil {
		motel.HandleSpanError(&span, "get database connection", err)
		return apperr.StorageError{Message: err.Error(), Err: err}
	}

	_, err = db.ExecContext(ctx, `INSERT INTO `+r.tableName+` (crate_id, user_id, granted_at)
		VALUES ($1,$2,now()) ON CONFLICT (crate_id, user_id) DO NOTHING`,
		crateID.String(), userID.String(),
	)
	if err != nil {
		motel.HandleSpanError(&span, "insert ownership", err)
		return fmt.Errorf("insert ownership: %w", err)
	}

	return nil
}

// Remove deletes a (crate, user) ownership row. The caller must enforce the
// last-owner invariant before calling this.
func (r *Repository) Remove(ctx context.Context, crateID, userID uuid.UUID) error {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return apperr.StorageError{Message: err.Error(), Err: err}
	}

	result, err := db.ExecContext(ctx, `DELETE FROM `+r.tableName+` WHERE crate_id=$1 AND user_id=$2`,
		crateID.String(), userID.String())
	if err != nil {
		return fmt.Errorf("delete ownership: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return constant.ErrNotAnOwner
	}

	return nil
}

// IsOwner reports whether userID owns crateID.
func (r *Repository) IsOwner(ctx context.Context, crateID, userID uuid.UUID) (bool, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return false, apperr.StorageError{Message: err.Error(), Err: err}
	}

	var exists bool

	err = db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM `+r.tableName+` WHERE crate_id=$1 AND user_id=$2)`,
		crateID.String(), userID.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query ownership: %w", err)
	}

	return exists, nil
}

// Count returns the number of Owners a Crate has, used to enforce the
// "at least one Owner per Package" invariant before a Remove commits.
func (r *Repository) Count(ctx context.Context, crateID uuid.UUID) (int, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return 0, apperr.StorageError{Message: err.Error(), Err: err}
	}

	var count int

	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+r.tableName+` WHERE crate_id=$1`, crateID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count ownership: %w", err)
	}

	return count, nil
}

// ListOwners returns every User owning crateID.
func (r *Repository) ListOwners(ctx context.Context, crateID uuid.UUID) ([]*user.User, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	rows, err := db.QueryContext(ctx, `SELECT u.id, u.display_name, u.email, u.role, u.external_subject, u.disabled, u.created_at, u.updated_at
		FROM `+r.tableName+` o JOIN registry_user u ON u.id = o.user_id
		WHERE o.crate_id=$1 ORDER BY o.granted_at ASC`, crateID.String())
	if err != nil {
		return nil, fmt.Errorf("query owners: %w", err)
	}
	defer rows.Close()

	var owners []*user.User

	for rows.Next() {
		m := &user.PostgreSQLModel{}

		if err := rows.Scan(&m.ID, &m.DisplayName, &m.Email, &m.Role, &m.ExternalSubject, &m.Disabled, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}

		owners = append(owners, m.ToEntity())
	}

	return owners, rows.Err()
}

// Package token is the Postgres-backed implementation of token.Repository.
package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cratery/cratery/internal/domain/token"
	"github.com/cratery/cratery/internal/platform/apperr"
	"github.com/cratery/cratery/internal/platform/mpostgres"
	"github.com/cratery/cratery/internal/platform/motel"
)

// Repository is the Postgres-specific implementation of token.Repository.
type Repository struct {
	conn      *mpostgres.Connection
	tableName string
}

// New constructs a Repository bound to conn.
func New(conn *mpostgres.Connection) *Repository {
	return &Repository{conn: conn, tableName: "registry_token"}
}

func scanToken(row interface{ Scan(...any) error }) (*token.Token, error) {
	m := &token.PostgreSQLModel{}

	if err := row.Scan(
		&m.ID, &m.UserID, &m.Name, &m.SecretPrefix, &m.SecretHash,
		&m.Capabilities, &m.CrateScope, &m.CreatedAt, &m.LastUsedAt, &m.RevokedAt,
	); err != nil {
		return nil, err
	}

	return m.ToEntity(), nil
}

// Create inserts a new Token row.
func (r *Repository) Create(ctx context.Context, t *token.Token) (*token.Token, error) {
	tracer := motel.NewTracerFromContext(ctx)

	ctx, span := tracer.Start(ctx, "postgres.token.create")
	defer span.End()

	db, err := r.conn.GetDB(ctx)
	if err != nil {
		motel.HandleSpanError(&span, "get database connection", err)
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	m := &token.PostgreSQLModel{}
	m.FromEntity(t)

	_, err = db.ExecContext(ctx, `INSERT INTO `+r.tableName+`
		(id, user_id, name, secret_prefix, secret_hash, capabilities, crate_scope, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.UserID, m.Name, m.SecretPrefix, m.SecretHash,
		pq.Array(m.Capabilities), pq.Array(m.CrateScope), m.CreatedAt,
	)
	if err != nil {
		motel.HandleSpanError(&span, "insert token", err)
		return nil, fmt.Errorf("insert token: %w", err)
	}

	return m.ToEntity(), nil
}

// FindByPrefix looks up a Token by its lookup prefix.
func (r *Repository) FindByPrefix(ctx context.Context, prefix string) (*token.Token, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	row := db.QueryRowContext(ctx, `SELECT id, user_id, name, secret_prefix, secret_hash, capabilities, crate_scope, created_at, last_used_at, revoked_at
		FROM `+r.tableName+` WHERE secret_prefix=$1`, prefix)

	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("scan token: %w", err)
	}

	return t, nil
}

// ListByUser lists every Token (including revoked) minted by a User.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*token.Token, error) {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return nil, apperr.StorageError{Message: err.Error(), Err: err}
	}

	rows, err := db.QueryContext(ctx, `SELECT id, user_id, name, secret_prefix, secret_hash, capabilities, crate_scope, created_at, last_used_at, revoked_at
		FROM `+r.tableName+` WHERE user_id=$1 ORDER BY created_at DESC`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*token.Token

	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}

		tokens = append(tokens, t)
	}

	return tokens, rows.Err()
}

// TouchLastUsed updates last-used-at best-effort; a lost write must not
// fail authentication, so callers ignore this error.
func (r *Repository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `UPDATE `+r.tableName+` SET last_used_at=now() WHERE id=$1`, id.String())

	return err
}

// Revoke marks a Token revoked.
func (r *Repository) Revoke(ctx context.Context, id uuid.UUID) error {
	db, err := r.conn.GetDB(ctx)
	if err != nil {
		return apperr.StorageError{Message: err.Error(), Err: err}
	}

	_, err = db.ExecContext(ctx, `UPDATE `+r.tableName+` SET revoked_at=now() WHERE id=$1 AND revoked_at IS NULL`, id.String())
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	return nil
}

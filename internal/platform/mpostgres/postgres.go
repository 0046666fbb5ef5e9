// Package mpostgres wires the Metadata DB connection: primary/replica
// routing via dbresolver with schema migrations applied on connect via
// golang-migrate.
package mpostgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bxcodec/dbresolver/v2"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cratery/cratery/internal/platform/mlog"
)

// Connection is a hub dealing with primary/replica postgres connections.
type Connection struct {
	ConnectionStringPrimary string
	ConnectionStringReplica string
	PrimaryDBName           string
	MigrationsPath          string
	Logger                  mlog.Logger

	db        *dbresolver.DB
	connected bool
}

// Connect opens the primary and replica pools, runs pending migrations
// against the primary, and verifies connectivity.
func (c *Connection) Connect() error {
	c.Logger.Info("connecting to primary and replica databases...")

	dbPrimary, err := sql.Open("pgx", c.ConnectionStringPrimary)
	if err != nil {
		return fmt.Errorf("open primary database: %w", err)
	}

	dbReplica, err := sql.Open("pgx", c.ConnectionStringReplica)
	if err != nil {
		return fmt.Errorf("open replica database: %w", err)
	}

	resolved := dbresolver.New(
		dbresolver.WithPrimaryDBs(dbPrimary),
		dbresolver.WithReplicaDBs(dbReplica),
		dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB),
	)

	if c.MigrationsPath != "" {
		if err := c.migrate(dbPrimary); err != nil {
			return err
		}
	}

	if err := resolved.Ping(); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	c.db = &resolved
	c.connected = true

	c.Logger.Info("connected to postgres")

	return nil
}

func (c *Connection) migrate(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{
		MultiStatementEnabled: true,
		DatabaseName:          c.PrimaryDBName,
		SchemaName:            "public",
	})
	if err != nil {
		return fmt.Errorf("build migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+c.MigrationsPath, c.PrimaryDBName, driver)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// GetDB returns the resolved primary/replica pool, connecting lazily if
// necessary.
func (c *Connection) GetDB(ctx context.Context) (dbresolver.DB, error) {
	if c.db == nil {
		if err := c.Connect(); err != nil {
			return nil, err
		}
	}

	return *c.db, nil
}

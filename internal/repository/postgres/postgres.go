// Package postgres implements the repository interfaces on PostgreSQL.
//
// It exists for deployments that run more than one server instance: every
// instance points at the same database, reveals go through a conditional
// UPDATE, and the replica syncer keeps each instance's in-memory ledger
// current. The schema is managed by goose with migrations embedded in the
// binary.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/sakif/secret-santa/internal/repository"
	"github.com/sakif/secret-santa/internal/repository/postgres/migrations"
)

var _ repository.Store = (*DB)(nil)

// DB implements repository.Store on a database/sql pool using the pgx driver.
type DB struct {
	conn *sql.DB
}

// gooseUp is swapped out in tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// connectBackoff paces the initial ping while the database container is
// still starting: 250ms doubling, five retries.
var connectBackoff = func() retry.Backoff {
	return retry.WithMaxRetries(5, retry.NewExponential(250*time.Millisecond))
}

// New connects to dsn, checks the connection and applies pending migrations.
func New(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}
	if err := ping(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	db := NewWithConn(conn)
	if err := db.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func ping(ctx context.Context, conn *sql.DB) error {
	return retry.Do(ctx, connectBackoff(), func(ctx context.Context) error {
		if err := conn.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// NewWithConn wraps an already-open pool. It does not run migrations.
func NewWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Migrate applies the embedded goose migrations.
func (db *DB) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("postgres: setting goose dialect: %w", err)
	}
	if err := gooseUp(ctx, db.conn, "."); err != nil {
		return fmt.Errorf("postgres: running migrations: %w", err)
	}
	return nil
}

// Close closes the pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// isUniqueViolation reports SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

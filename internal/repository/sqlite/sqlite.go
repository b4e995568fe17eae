// Package sqlite implements the repository interfaces on an embedded SQLite file.
//
// WHY SQLITE?
// A gift exchange is a single-server app with a few hundred rows at most. An
// embedded database means the organiser runs one binary and gets durable
// rounds: a restart no longer wipes the codes that were already handed out.
// Use ":memory:" in tests.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so no C compiler is
// needed and cross-compiling the binary stays trivial.
//
// TABLES:
//   - participants  the roster
//   - rounds        at most one row, the current round header
//   - assignments   one row per giver of the current round
//   - users         GitHub organisers
//   - settings      key/value runtime settings (admin password hash)
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// sql.Open only builds the pool; Ping forces a real connection so a bad path
// fails here instead of on the first reveal.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// An in-memory database lives and dies with its connection. Pin the pool
	// to one connection so every query sees the same database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers (status polls, replication) run while a reveal writes.
	// The journal mode is stored in the file, so one connection is enough.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// connPragmas are per connection in SQLite. Passing them in the DSN makes the
// driver run them on every connection the pool opens.
//
//   - foreign_keys: off by default; assignments -> rounds relies on it.
//   - busy_timeout: concurrent writers wait instead of failing with SQLITE_BUSY.
var connPragmas = []string{"foreign_keys(1)", "busy_timeout(5000)"}

func dsn(dbPath string) string {
	params := make([]string, len(connPragmas))
	for i, p := range connPragmas {
		params[i] = "_pragma=" + p
	}
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + strings.Join(params, "&")
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. Every statement is idempotent, so it runs on
// every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS participants (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			wishlist   TEXT NOT NULL DEFAULT '',
			address    TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_participants_created_at ON participants(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating participants table: %w", err)
	}

	// The CHECK keeps the table to a single row: there is only ever one
	// current round.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS rounds (
			singleton    INTEGER PRIMARY KEY CHECK (singleton = 1),
			id           TEXT NOT NULL UNIQUE,
			generated_at DATETIME NOT NULL,
			updated_at   DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating rounds table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS assignments (
			round_id    TEXT NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
			position    INTEGER NOT NULL,
			giver       TEXT NOT NULL,
			receiver    TEXT NOT NULL,
			wishlist    TEXT NOT NULL DEFAULT '',
			address     TEXT NOT NULL DEFAULT '',
			code        TEXT NOT NULL,
			revealed    INTEGER NOT NULL DEFAULT 0,
			revealed_at DATETIME,
			PRIMARY KEY (round_id, giver)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating assignments table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			github_id  INTEGER NOT NULL UNIQUE,
			login      TEXT NOT NULL,
			email      TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating settings table: %w", err)
	}

	return nil
}

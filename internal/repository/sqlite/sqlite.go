// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code.
//
// QUERY LAYER:
// Queries go through sqlx, which keeps hand-written SQL but scans rows into
// structs by their `db` tags (GetContext / SelectContext).
//
// SCHEMA:
// The schema lives in migrations/*.sql, embedded into the binary and applied
// by golang-migrate on startup. golang-migrate records the applied version in
// a schema_migrations table, so restarting against an existing file is a no-op.
package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/recipe-list/internal/repository"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func init() {
	// sqlx knows "sqlite3" but not modernc's driver name.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// compile-time check that *DB implements every repository
var _ repository.Store = (*DB)(nil)

// DB wraps a sqlx connection pool and provides repository methods.
type DB struct {
	conn *sqlx.DB
}

// New opens the SQLite database at dbPath and brings its schema up to date.
//
// dbPath examples:
//   - "data/recipes.db"  → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// SINGLE CONNECTION:
	// Every ":memory:" connection is a separate, empty database, and PRAGMAs
	// are per-connection. One connection keeps both consistent. SQLite
	// serializes writers regardless.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
		}
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	if err := migrateUp(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return newWithConn(conn), nil
}

// newWithConn wraps an already-open pool without touching the schema.
// Tests use it to drive the repository against sqlmock.
func newWithConn(conn *sql.DB) *DB {
	return &DB{conn: sqlx.NewDb(conn, "sqlite")}
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrateUp applies every pending embedded migration.
//
// m is never closed: closing its sqlite driver closes conn too.
func migrateUp(conn *sql.DB) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("loading migration files: %w", err)
	}

	driver, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Package store persists goals, subgoals, folders, notifications and shares
// for the goalkeeper backend.
//
// The database is an embedded SQLite file opened in WAL mode so the REST
// handlers and the realtime hub can read while a mutation is in flight.
// Every read and write is scoped to the caller's identity: a row is only
// visible to the user in its user_id column (shares are also visible to
// their recipient).
//
// Mutations return the row-level change events they produced so the caller
// can publish them on the realtime feed after the transaction commits.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/mschirtzinger/goalkeeper/internal/schema"
	"github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/ncruces/go-sqlite3/ext/unicode"
)

// Domain errors. Wrapped errors keep these reachable through errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrProgressDerived = errors.New("progress is derived from subgoals")
	ErrBadFilter       = errors.New("invalid filter")
	ErrUnknownTable    = errors.New("unknown table")
)

// DriverSQLite is the default embedded driver.
const DriverSQLite = "sqlite"

type driverSpec struct {
	name    string
	dsn     func(path string) string
	pragmas []string

	// open replaces sql.Open when the driver needs per-connection setup.
	open func(dsn string) (*sql.DB, error)
}

var drivers = map[string]driverSpec{
	DriverSQLite: {
		name: "sqlite3",
		dsn: func(path string) string {
			return "file:" + path +
				"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(wal)&_txlock=immediate"
		},
		// lower() must fold like strings.ToLower so search agrees with
		// client-side filter matching for non-ASCII text.
		open: func(dsn string) (*sql.DB, error) {
			return driver.Open(dsn, unicode.Register)
		},
	},
}

// Drivers lists the database drivers compiled into this binary.
func Drivers() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DB wraps the SQL connection pool.
type DB struct {
	conn   *sql.DB
	path   string
	driver string
	now    func() time.Time
}

// Open opens the SQLite database at path, creating the parent directory.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	db, err := store.Open(".goals/goals.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	return OpenDriver(DriverSQLite, path)
}

// OpenDriver opens path with a named driver from Drivers().
func OpenDriver(name, path string) (*DB, error) {
	spec, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("unknown database driver %q (available: %v)", name, Drivers())
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	open := spec.open
	if open == nil {
		open = func(dsn string) (*sql.DB, error) { return sql.Open(spec.name, dsn) }
	}
	conn, err := open(spec.dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	for _, pragma := range spec.pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &DB{
		conn:   conn,
		path:   path,
		driver: name,
		now:    time.Now,
	}, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB { return db.conn }

// Close checkpoints the WAL and closes the pool.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// InitSchema creates tables and indexes. Safe to call repeatedly.
func (db *DB) InitSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS app_meta (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		schema_version TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS folders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS goals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		progress INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
		target_date TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',  -- JSON array
		folder_id INTEGER REFERENCES folders(id) ON DELETE SET NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS subgoals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		goal_id INTEGER NOT NULL REFERENCES goals(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		read INTEGER NOT NULL DEFAULT 0,
		metadata TEXT,  -- JSON object
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS goal_shares (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		goal_id INTEGER NOT NULL REFERENCES goals(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (goal_id, recipient_id)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_goals_user ON goals(user_id);
	CREATE INDEX IF NOT EXISTS idx_goals_folder ON goals(user_id, folder_id);
	CREATE INDEX IF NOT EXISTS idx_subgoals_goal ON subgoals(goal_id);
	CREATE INDEX IF NOT EXISTS idx_folders_user ON folders(user_id);
	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, read);
	CREATE INDEX IF NOT EXISTS idx_shares_recipient ON goal_shares(recipient_id);
	`

	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	meta := `
	INSERT INTO app_meta (id, name, schema_version) VALUES (1, 'goalkeeper', ?)
	ON CONFLICT(id) DO UPDATE SET schema_version = excluded.schema_version
	`
	if _, err := db.conn.ExecContext(ctx, meta, schema.CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}
	return nil
}

// Meta returns the always-readable metadata row.
func (db *DB) Meta(ctx context.Context) (schema.Meta, error) {
	var m schema.Meta
	err := db.conn.QueryRowContext(ctx, `SELECT id, name, schema_version FROM app_meta WHERE id = 1`).
		Scan(&m.ID, &m.Name, &m.SchemaVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return m, fmt.Errorf("schema metadata: %w", ErrNotFound)
	}
	if err != nil {
		return m, fmt.Errorf("failed to read schema metadata: %w", err)
	}
	return m, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) timestamp() time.Time {
	return db.now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// Package db provides the local persistent cache for the offline restaurant client.
//
// The cache is an embedded SQLite database (ncruces/go-sqlite3, WAL mode) with
// one table per collection:
//
//   - restaurants:          keyed by restaurant id
//   - reviews:              keyed by local key, unique index on server_id,
//     index on restaurant_id
//   - favoriteRequestQueue: append-only, keyed by insertion sequence
//   - reviewRequestQueue:   append-only, keyed by insertion sequence
//
// Records are stored as JSON documents next to the columns used for lookups.
//
// The cache is supplementary, not authoritative. A nil or closed *DB reports
// ErrStoreUnavailable from point lookups and writes, and returns empty results
// from collection reads, so callers can keep running in server-only mode.
//
// All writes are committed before the call returns. Writes to one collection
// are serialized inside a process, which makes lookup-then-overwrite sequences
// such as UpsertReviewByServerID atomic per key.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Collection names. These are the contract surface for any storage backend.
const (
	CollectionRestaurants          = "restaurants"
	CollectionReviews              = "reviews"
	CollectionFavoriteRequestQueue = "favoriteRequestQueue"
	CollectionReviewRequestQueue   = "reviewRequestQueue"
)

var (
	// ErrStoreUnavailable is returned when the cache was never opened or has
	// been closed. Callers should degrade rather than fail.
	ErrStoreUnavailable = errors.New("cache store unavailable")

	// ErrNotFound is returned by point lookups that match no record.
	ErrNotFound = errors.New("record not found")
)

// DB wraps the SQLite connection backing the cache.
type DB struct {
	conn   *sql.DB
	path   string
	closed atomic.Bool

	// One writer per collection.
	restaurantsMu sync.Mutex
	reviewsMu     sync.Mutex
	queueMu       sync.Mutex
}

// Open creates a database connection at the specified path.
//
// The parent directory is created if needed. The database is opened in WAL
// mode so readers never wait on the background reconciliation writer.
// The caller MUST call Close() when done.
//
// Example:
//
//	cache, err := db.Open(".restaurants/cache.db")
//	if err != nil {
//	    return err
//	}
//	defer cache.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them. With
	// synchronous=FULL a committed write survives power loss.
	pragmas := url.Values{}
	pragmas.Add("_pragma", "journal_mode(wal)")
	pragmas.Add("_pragma", "busy_timeout(5000)")
	pragmas.Add("_pragma", "synchronous(full)")

	conn, err := sql.Open("sqlite3", "file:"+path+"?"+pragmas.Encode())
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

	return &DB{
		conn: conn,
		path: path,
	}, nil
}

// OpenAndInit opens the database and creates the schema.
func OpenAndInit(ctx context.Context, path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchemaContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file location.
func (db *DB) Path() string {
	if db == nil {
		return ""
	}
	return db.path
}

// Available reports whether the cache can serve requests.
func (db *DB) Available() bool {
	return db != nil && db.conn != nil && !db.closed.Load()
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db == nil || db.conn == nil || db.closed.Swap(true) {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// InitSchema creates the collections if they don't exist. Idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	if !db.Available() {
		return ErrStoreUnavailable
	}

	schema := `
	CREATE TABLE IF NOT EXISTS restaurants (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		cuisine_type TEXT NOT NULL DEFAULT '',
		neighborhood TEXT NOT NULL DEFAULT '',
		is_favorite INTEGER NOT NULL DEFAULT 0,
		doc TEXT NOT NULL,  -- JSON Restaurant
		cached_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reviews (
		local_key INTEGER PRIMARY KEY AUTOINCREMENT,
		server_id INTEGER,  -- NULL until the server accepts the review
		restaurant_id INTEGER NOT NULL,
		doc TEXT NOT NULL,  -- JSON Review
		cached_at TEXT NOT NULL
	);

	-- At most one cached review per server identity. NULLs never collide.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_reviews_server_id ON reviews(server_id);
	CREATE INDEX IF NOT EXISTS idx_reviews_restaurant ON reviews(restaurant_id);

	CREATE TABLE IF NOT EXISTS favoriteRequestQueue (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		restaurant_id INTEGER NOT NULL,
		is_favorite INTEGER NOT NULL,
		enqueued_at INTEGER NOT NULL  -- unix nanoseconds
	);

	CREATE TABLE IF NOT EXISTS reviewRequestQueue (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		local_key INTEGER NOT NULL DEFAULT 0,
		doc TEXT NOT NULL,  -- JSON Review
		enqueued_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_favorite_queue_restaurant
	    ON favoriteRequestQueue(restaurant_id);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// withTx runs fn inside a transaction and commits it.
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

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

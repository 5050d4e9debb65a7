// Package catalog is the relational product catalog behind inventory sync.
//
// Two dialects are supported through database/sql:
//   - sqlite: embedded database via ncruces/go-sqlite3 (WAL mode), used for
//     local runs and tests
//   - postgres: via the pgx stdlib driver, used in production
//
// Tables:
//   - products: one row per primary-sheet SKU, stock_count is a running total
//   - product_variants: one row per variant SKU, linked to its parent product
//   - sync_runs, sync_steps: pipeline run history written by the scheduler
//
// All writes that apply stock adjustments are batched upserts keyed on sku.
// Queries are written with ? placeholders and rebound per dialect.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DefaultBatchSize is the number of records written per upsert statement.
const DefaultBatchSize = 100

// DB wraps a catalog database connection.
type DB struct {
	conn      *sql.DB
	dialect   Dialect
	path      string
	batchSize int
	newID     func() string
	now       func() time.Time
}

// Open connects to the catalog for the given driver ("sqlite" or "postgres").
// For sqlite the dsn is a file path.
func Open(driver, dsn string) (*DB, error) {
	switch Dialect(driver) {
	case DialectSQLite:
		return OpenSQLite(dsn)
	case DialectPostgres:
		return OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, driver)
	}
}

// OpenSQLite opens (or creates) an embedded catalog at path.
//
// The caller MUST call Close() when done so the WAL is checkpointed.
func OpenSQLite(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	conn, err := sql.Open("sqlite3", dsn)
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

	db := NewWithConn(conn, DialectSQLite)
	db.path = path

	// Enable WAL mode for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return db, nil
}

// OpenPostgres connects to a Postgres catalog using the pgx stdlib driver.
func OpenPostgres(dsn string) (*DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return NewWithConn(conn, DialectPostgres), nil
}

// NewWithConn wraps an existing connection. It is used by tests to inject
// a sqlmock connection.
func NewWithConn(conn *sql.DB, dialect Dialect) *DB {
	return &DB{
		conn:      conn,
		dialect:   dialect,
		batchSize: DefaultBatchSize,
		newID:     NewID,
		now:       time.Now,
	}
}

// SetBatchSize changes the number of records per upsert statement.
// Values below 1 restore the default.
func (db *DB) SetBatchSize(n int) {
	if n < 1 {
		n = DefaultBatchSize
	}
	db.batchSize = n
}

// BatchSize returns the number of records per upsert statement.
func (db *DB) BatchSize() int {
	return db.batchSize
}

// Dialect returns the SQL dialect of the connection.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection. For sqlite the WAL is checkpointed
// first.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if db.dialect == DialectSQLite {
		if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
		}
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the catalog tables if they don't exist. It is
// idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the catalog tables with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	for _, stmt := range db.dialect.ddl() {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func (db *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, db.dialect.rebind(query), args...)
}

func (db *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, db.dialect.rebind(query), args...)
}

func (db *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, db.dialect.rebind(query), args...)
}

func (db *DB) timestamp() string {
	return formatTime(db.now())
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Package database wraps the SQLite store behind typed DAOs. One file,
// WAL mode, foreign keys on; all multi-row writes go through WithTx.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
	path string
}

// Config holds connection options.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// DefaultConfig returns sensible defaults for a store at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     5 * time.Second,
	}
}

// Open opens the store at path with default settings.
func Open(path string) (*DB, error) {
	return OpenWithConfig(DefaultConfig(path))
}

// OpenWithConfig opens the store and verifies that WAL mode and foreign
// keys actually took effect. The cascade rules on executions, steps,
// and versions depend on foreign keys being on.
func OpenWithConfig(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d",
		cfg.Path,
		int(cfg.BusyTimeout.Milliseconds()),
	)

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(types.DB_OPEN_FAILED, "failed to open database", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, types.WrapError(types.DB_OPEN_FAILED, "failed to ping database", err)
	}

	db := &DB{conn: conn, path: cfg.Path}

	var journalMode string
	if err := db.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		conn.Close()
		return nil, types.WrapError(types.DB_OPEN_FAILED, "failed to verify journal mode", err)
	}
	if journalMode != "wal" {
		conn.Close()
		return nil, types.NewError(types.DB_OPEN_FAILED,
			fmt.Sprintf("WAL mode not enabled (got %s)", journalMode))
	}

	var foreignKeys int
	if err := db.conn.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		conn.Close()
		return nil, types.WrapError(types.DB_OPEN_FAILED, "failed to verify foreign keys", err)
	}
	if foreignKeys != 1 {
		conn.Close()
		return nil, types.NewError(types.DB_OPEN_FAILED, "foreign keys not enabled")
	}

	return db, nil
}

// Close closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Conn exposes the raw connection; prefer the DAOs.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the store file path.
func (db *DB) Path() string {
	return db.path
}

// Health reports whether the store answers queries.
func (db *DB) Health(ctx context.Context) types.HealthStatus {
	if err := db.conn.PingContext(ctx); err != nil {
		return types.Unhealthy(fmt.Sprintf("ping failed: %v", err))
	}
	var result int
	if err := db.conn.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return types.Unhealthy(fmt.Sprintf("query failed: %v", err))
	}
	return types.Healthy("database reachable")
}

// WithTx runs fn inside a transaction, rolling back on error or panic.
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return types.WrapError(types.DB_TX_FAILED, "failed to begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return types.WrapError(types.DB_TX_FAILED,
				fmt.Sprintf("transaction failed and rollback failed: %v", rbErr), err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return types.WrapError(types.DB_TX_FAILED, "failed to commit transaction", err)
	}
	return nil
}

// Stats reports connection pool statistics.
type Stats struct {
	OpenConnections int
	InUse           int
	Idle            int
	WaitCount       int64
	WaitDuration    time.Duration
}

// Stats returns pool statistics.
func (db *DB) Stats() Stats {
	s := db.conn.Stats()
	return Stats{
		OpenConnections: s.OpenConnections,
		InUse:           s.InUse,
		Idle:            s.Idle,
		WaitCount:       s.WaitCount,
		WaitDuration:    s.WaitDuration,
	}
}

// Vacuum reclaims unused space.
func (db *DB) Vacuum(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "VACUUM"); err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "vacuum failed", err)
	}
	return nil
}

// Checkpoint moves WAL contents into the main file.
func (db *DB) Checkpoint(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "wal checkpoint failed", err)
	}
	return nil
}

// InitSchema applies all pending migrations.
func (db *DB) InitSchema(ctx context.Context) error {
	if err := NewMigrator(db).Migrate(ctx); err != nil {
		return types.WrapError(types.DB_MIGRATION_FAILED, "failed to run migrations", err)
	}
	return nil
}

// ExecContext wraps the underlying connection's ExecContext.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

// QueryContext wraps the underlying connection's QueryContext.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext wraps the underlying connection's QueryRowContext.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}

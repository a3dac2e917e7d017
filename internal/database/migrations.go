package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"
)

//go:embed schema.sql
var initialSchema string

// Migrator applies schema migrations in order.
type Migrator interface {
	// Migrate applies all pending migrations.
	Migrate(ctx context.Context) error

	// CurrentVersion returns the current schema version, 0 for a fresh
	// database.
	CurrentVersion(ctx context.Context) (int, error)

	// AppliedMigrations lists applied migrations oldest first.
	AppliedMigrations(ctx context.Context) ([]MigrationInfo, error)
}

// MigrationInfo describes one applied migration.
type MigrationInfo struct {
	Version   int
	Name      string
	AppliedAt time.Time
}

type migration struct {
	version int
	name    string
	up      string
}

type migrator struct {
	db         *DB
	migrations []migration
}

// NewMigrator creates a Migrator over the built-in migration list.
func NewMigrator(db *DB) Migrator {
	return &migrator{
		db: db,
		migrations: []migration{
			{version: 1, name: "initial_schema", up: initialSchema},
		},
	}
}

func (m *migrator) ensureVersionTable(ctx context.Context) error {
	_, err := m.db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	return err
}

// Migrate applies every migration newer than the current version, each
// inside its own transaction.
func (m *migrator) Migrate(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if mig.version <= current {
			continue
		}
		err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.up); err != nil {
				return fmt.Errorf("migration %d (%s) failed: %w", mig.version, mig.name, err)
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
				mig.version, mig.name)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// CurrentVersion returns the highest applied migration version.
func (m *migrator) CurrentVersion(ctx context.Context) (int, error) {
	if err := m.ensureVersionTable(ctx); err != nil {
		return 0, err
	}
	var version sql.NullInt64
	err := m.db.conn.QueryRowContext(ctx,
		"SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}

// AppliedMigrations lists applied migrations oldest first.
func (m *migrator) AppliedMigrations(ctx context.Context) ([]MigrationInfo, error) {
	if err := m.ensureVersionTable(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.conn.QueryContext(ctx,
		"SELECT version, name, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	defer rows.Close()

	var infos []MigrationInfo
	for rows.Next() {
		var info MigrationInfo
		if err := rows.Scan(&info.Version, &info.Name, &info.AppliedAt); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

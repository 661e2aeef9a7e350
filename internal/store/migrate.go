// Package store provides database schema migration management.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gridworks/fieldsync/internal/errors"
)

// migration is one schema step. Versions are monotonically increasing
// integers; steps are applied in order inside individual transactions.
type migration struct {
	Version     int
	Description string
	Statements  []string
}

// schemaMigrations defines the full schema history. Append only; never
// edit an applied step, its checksum is persisted.
var schemaMigrations = []migration{
	{
		Version:     1,
		Description: "initial collections",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS inspections (key TEXT PRIMARY KEY, data TEXT NOT NULL);`,
			`CREATE TABLE IF NOT EXISTS photos (key TEXT PRIMARY KEY, data TEXT NOT NULL);`,
			`CREATE TABLE IF NOT EXISTS sync_queue (key TEXT PRIMARY KEY, data TEXT NOT NULL);`,
			`CREATE TABLE IF NOT EXISTS cache (key TEXT PRIMARY KEY, data TEXT NOT NULL);`,
			`CREATE TABLE IF NOT EXISTS feeder_cache (key TEXT PRIMARY KEY, data TEXT NOT NULL);`,
			`CREATE TABLE IF NOT EXISTS viewing_cache (key TEXT PRIMARY KEY, data TEXT NOT NULL);`,
		},
	},
	{
		Version:     2,
		Description: "natural lookup indexes",
		Statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_inspections_status ON inspections (json_extract(data, '$.sync_status'));`,
			`CREATE INDEX IF NOT EXISTS idx_inspections_created ON inspections (json_extract(data, '$.created_at'));`,
			`CREATE INDEX IF NOT EXISTS idx_photos_inspection ON photos (json_extract(data, '$.inspection_id'));`,
			`CREATE INDEX IF NOT EXISTS idx_photos_status ON photos (json_extract(data, '$.sync_status'));`,
			`CREATE INDEX IF NOT EXISTS idx_queue_order ON sync_queue (json_extract(data, '$.priority'), json_extract(data, '$.created_at'));`,
			`CREATE INDEX IF NOT EXISTS idx_queue_target ON sync_queue (json_extract(data, '$.target_id'));`,
			`CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache (json_extract(data, '$.expires_at'));`,
			`CREATE INDEX IF NOT EXISTS idx_feeder_region ON feeder_cache (json_extract(data, '$.region_id'));`,
			`CREATE INDEX IF NOT EXISTS idx_viewing_expires ON viewing_cache (json_extract(data, '$.expires_at'));`,
		},
	},
}

// SchemaVersion is the version a fully migrated store reports.
var SchemaVersion = schemaMigrations[len(schemaMigrations)-1].Version

// Migrator handles database schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(errors.ErrMigration, "failed to create schema_migrations", err)
	}
	return nil
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, errors.Wrap(errors.ErrMigration, "failed to read schema version", err)
	}
	return version, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	steps := make([]migration, len(schemaMigrations))
	copy(steps, schemaMigrations)
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].Version < steps[j].Version
	})

	for _, step := range steps {
		if applied[step.Version] {
			continue
		}
		if err := m.applyMigration(ctx, step); err != nil {
			return errors.Wrap(errors.ErrMigration,
				fmt.Sprintf("failed to apply migration V%d", step.Version), err)
		}
	}

	return nil
}

// appliedVersions returns the set of already applied versions.
func (m *Migrator) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, errors.Wrap(errors.ErrMigration, "failed to list applied migrations", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, errors.Wrap(errors.ErrMigration, "failed to scan migration row", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrMigration, "failed to iterate migrations", err)
	}
	return applied, nil
}

// applyMigration applies a single migration inside a transaction.
func (m *Migrator) applyMigration(ctx context.Context, step migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range step.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}
	}

	// Compute SHA-256 checksum of the migration's SQL content
	hash := sha256.Sum256([]byte(strings.Join(step.Statements, "\n")))
	checksum := hex.EncodeToString(hash[:])

	query := `INSERT INTO schema_migrations (version, applied_at, description, checksum)
			  VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, step.Version, time.Now().Unix(), step.Description, checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

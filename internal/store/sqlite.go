// Package store provides the SQLite implementation of the storage port.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/gridworks/fieldsync/internal/errors"
)

// DatabaseFile is the name of the SQLite database inside the data dir.
const DatabaseFile = "fieldsync.db"

// SQLitePort implements Port on top of modernc.org/sqlite.
// The database is opened with:
// - WAL mode for concurrent reads during writes
// - foreign key constraints enabled
// - a single writer connection (SQLite doesn't support multiple writers)
type SQLitePort struct {
	dataDir string

	mu sync.Mutex
	db *sql.DB

	// Prepared statement cache for frequently used queries.
	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewSQLitePort creates a port storing its database under dataDir.
func NewSQLitePort(dataDir string) *SQLitePort {
	return &SQLitePort{dataDir: dataDir}
}

// Path returns the database file path.
func (p *SQLitePort) Path() string {
	return filepath.Join(p.dataDir, DatabaseFile)
}

// Open opens the database and brings the schema up to date.
// Safe to call again after Close.
func (p *SQLitePort) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db != nil {
		return nil
	}

	if err := os.MkdirAll(p.dataDir, 0755); err != nil {
		return errors.Wrap(errors.ErrStoreUnavailable, "failed to create data directory", err)
	}

	db, err := sql.Open("sqlite", p.Path())
	if err != nil {
		return errors.Wrap(errors.ErrStoreUnavailable, "failed to open database", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return errors.Wrap(errors.ErrStoreCorrupted, "failed to enable WAL mode", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return errors.Wrap(errors.ErrStoreUnavailable, "failed to enable foreign keys", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return errors.Wrap(errors.ErrStoreUnavailable, "failed to set busy timeout", err)
	}

	// A corrupted file often only surfaces on first real statement.
	var probe int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&probe); err != nil {
		db.Close()
		return errors.Wrap(errors.ErrStoreCorrupted, "database probe failed", err)
	}

	migrator := NewMigrator(db)
	if err := migrator.Initialize(ctx); err != nil {
		db.Close()
		return err
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return err
	}

	p.db = db
	return nil
}

// Close closes the database connection and drops cached statements.
func (p *SQLitePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil
	}

	p.stmtCache.Range(func(key, value interface{}) bool {
		value.(*sql.Stmt).Close()
		p.stmtCache.Delete(key)
		return true
	})

	err := p.db.Close()
	p.db = nil
	if err != nil {
		return errors.Wrap(errors.ErrStoreUnavailable, "failed to close database", err)
	}
	return nil
}

// Destroy closes the database and removes its files, including the WAL
// sidecars. Used by the destructive recovery path.
func (p *SQLitePort) Destroy() error {
	if err := p.Close(); err != nil {
		return err
	}

	for _, suffix := range []string{"", "-wal", "-shm"} {
		path := p.Path() + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(errors.ErrRecoveryFailed, "failed to remove database file", err)
		}
	}
	return nil
}

// Ping verifies the engine answers a trivial query.
func (p *SQLitePort) Ping(ctx context.Context) error {
	db, err := p.conn()
	if err != nil {
		return err
	}
	var probe int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&probe); err != nil {
		return classifyErr("ping failed", err)
	}
	return nil
}

// SchemaVersion returns the persisted schema version.
func (p *SQLitePort) SchemaVersion(ctx context.Context) (int, error) {
	db, err := p.conn()
	if err != nil {
		return 0, err
	}
	return NewMigrator(db).CurrentVersion(ctx)
}

// Get returns the document stored under key, or NOT_FOUND.
func (p *SQLitePort) Get(ctx context.Context, collection, key string) ([]byte, error) {
	stmt, err := p.prepare(fmt.Sprintf("SELECT data FROM %s WHERE key = ?", collection))
	if err != nil {
		return nil, err
	}

	var data []byte
	err = stmt.QueryRowContext(ctx, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrNotFound, fmt.Sprintf("%s/%s not found", collection, key))
	}
	if err != nil {
		return nil, classifyErr("get failed", err)
	}
	return data, nil
}

// Put stores or replaces the document under key.
func (p *SQLitePort) Put(ctx context.Context, collection, key string, data []byte) error {
	stmt, err := p.prepare(fmt.Sprintf(
		"INSERT INTO %s (key, data) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET data = excluded.data", collection))
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx, key, string(data)); err != nil {
		return classifyErr("put failed", err)
	}
	return nil
}

// Delete removes the document under key. Deleting a missing key is a no-op.
func (p *SQLitePort) Delete(ctx context.Context, collection, key string) error {
	stmt, err := p.prepare(fmt.Sprintf("DELETE FROM %s WHERE key = ?", collection))
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx, key); err != nil {
		return classifyErr("delete failed", err)
	}
	return nil
}

// List returns every document in the collection, ordered by key.
func (p *SQLitePort) List(ctx context.Context, collection string) ([]Doc, error) {
	stmt, err := p.prepare(fmt.Sprintf("SELECT key, data FROM %s ORDER BY key", collection))
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, classifyErr("list failed", err)
	}
	defer rows.Close()

	var docs []Doc
	for rows.Next() {
		var doc Doc
		if err := rows.Scan(&doc.Key, &doc.Data); err != nil {
			return nil, classifyErr("scan failed", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyErr("list iteration failed", err)
	}
	return docs, nil
}

// Count returns the number of documents in the collection.
func (p *SQLitePort) Count(ctx context.Context, collection string) (int, error) {
	stmt, err := p.prepare(fmt.Sprintf("SELECT COUNT(*) FROM %s", collection))
	if err != nil {
		return 0, err
	}
	var count int
	if err := stmt.QueryRowContext(ctx).Scan(&count); err != nil {
		return 0, classifyErr("count failed", err)
	}
	return count, nil
}

// Clear removes every document in the collection.
func (p *SQLitePort) Clear(ctx context.Context, collection string) error {
	stmt, err := p.prepare(fmt.Sprintf("DELETE FROM %s", collection))
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return classifyErr("clear failed", err)
	}
	return nil
}

// sqliteBatch implements Batch inside one transaction.
type sqliteBatch struct {
	ctx context.Context
	tx  *sql.Tx
}

func (b *sqliteBatch) Put(collection, key string, data []byte) error {
	_, err := b.tx.ExecContext(b.ctx, fmt.Sprintf(
		"INSERT INTO %s (key, data) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET data = excluded.data", collection),
		key, string(data))
	if err != nil {
		return classifyErr("batch put failed", err)
	}
	return nil
}

func (b *sqliteBatch) Delete(collection, key string) error {
	_, err := b.tx.ExecContext(b.ctx, fmt.Sprintf("DELETE FROM %s WHERE key = ?", collection), key)
	if err != nil {
		return classifyErr("batch delete failed", err)
	}
	return nil
}

// RunBatch executes fn's writes in a single transaction.
func (p *SQLitePort) RunBatch(ctx context.Context, fn func(Batch) error) error {
	db, err := p.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classifyErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteBatch{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classifyErr("failed to commit transaction", err)
	}
	return nil
}

// conn returns the open database handle or STORE_UNAVAILABLE.
func (p *SQLitePort) conn() (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil, errors.New(errors.ErrStoreUnavailable, "store is not open")
	}
	return p.db, nil
}

// prepare gets or creates a prepared statement from the cache.
// If already stored by another goroutine, the duplicate is closed.
func (p *SQLitePort) prepare(query string) (*sql.Stmt, error) {
	if stmt, ok := p.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	db, err := p.conn()
	if err != nil {
		return nil, err
	}

	stmt, err := db.Prepare(query)
	if err != nil {
		return nil, classifyErr("failed to prepare statement", err)
	}

	actual, loaded := p.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// classifyErr maps engine faults onto coded errors. SQLITE_FULL surfaces
// as QUOTA_EXCEEDED so callers can prompt the user to free space.
func classifyErr(message string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "database or disk is full"):
		return errors.Wrap(errors.ErrQuotaExceeded, message, err)
	case strings.Contains(msg, "database disk image is malformed"),
		strings.Contains(msg, "file is not a database"):
		return errors.Wrap(errors.ErrStoreCorrupted, message, err)
	case strings.Contains(msg, "constraint"):
		return errors.Wrap(errors.ErrConstraint, message, err)
	default:
		return errors.Wrap(errors.ErrStoreUnavailable, message, err)
	}
}

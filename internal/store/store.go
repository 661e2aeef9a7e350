// Package store provides the Store lifecycle: idempotent initialization
// with a single destructive recovery attempt, health checking with
// cooperative schema reload, and explicit forced recovery.
package store

import (
	"context"
	"sync"

	"github.com/gridworks/fieldsync/internal/errors"
	"github.com/gridworks/fieldsync/internal/logging"
)

// Store is the durable local store. Field data is resubmittable, so
// availability wins over durability: a store that cannot open is destroyed
// and recreated rather than repaired.
type Store struct {
	port Port
	log  *logging.ComponentLogger

	mu            sync.Mutex
	initialized   bool
	versionAtOpen int
}

// New creates a Store over the given port. Call Init before use.
func New(port Port) *Store {
	return &Store{
		port: port,
		log:  logging.ForComponent("store"),
	}
}

// Init opens the store. Idempotent: a second call on an initialized store
// is a no-op. If opening fails, one destructive recovery is attempted
// (close, destroy, recreate); if that also fails the recovery error is
// returned and the store stays unusable.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	return s.initLocked(ctx)
}

func (s *Store) initLocked(ctx context.Context) error {
	openErr := s.port.Open(ctx)
	if openErr == nil {
		return s.finishOpenLocked(ctx)
	}

	s.log.Warn("store open failed, attempting destructive recovery",
		map[string]interface{}{"error": openErr.Error()})

	if err := s.recoverLocked(ctx); err != nil {
		return err
	}

	s.log.Info("store recovered after destructive reset")
	return nil
}

// recoverLocked destroys and recreates the underlying storage.
func (s *Store) recoverLocked(ctx context.Context) error {
	s.port.Close()
	if err := s.port.Destroy(); err != nil {
		return errors.Wrap(errors.ErrRecoveryFailed, "failed to destroy store", err)
	}
	if err := s.port.Open(ctx); err != nil {
		return errors.Wrap(errors.ErrRecoveryFailed, "failed to recreate store", err)
	}
	return s.finishOpenLocked(ctx)
}

func (s *Store) finishOpenLocked(ctx context.Context) error {
	version, err := s.port.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	s.versionAtOpen = version
	s.initialized = true
	s.log.Info("store opened", map[string]interface{}{"schema_version": version})
	return nil
}

// Close closes the store. Init may be called again afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = false
	return s.port.Close()
}

// HealthCheck probes the store. If another process has migrated the shared
// schema past the version seen at open, the store closes and reopens so
// the upgrader is never blocked (cooperative, not preemptive).
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New(errors.ErrStoreUnavailable, "store is not initialized")
	}

	if err := s.port.Ping(ctx); err != nil {
		return err
	}

	version, err := s.port.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if version > s.versionAtOpen {
		s.log.Info("schema upgraded by another writer, reloading",
			map[string]interface{}{"seen": s.versionAtOpen, "current": version})
		if err := s.port.Close(); err != nil {
			return err
		}
		s.initialized = false
		return s.initLocked(ctx)
	}

	return nil
}

// ForceRecovery destroys the underlying storage and recreates it empty.
func (s *Store) ForceRecovery(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Warn("forced recovery requested")
	s.initialized = false
	return s.recoverLocked(ctx)
}

// SchemaVersionAtOpen returns the schema version observed when the store
// was last initialized.
func (s *Store) SchemaVersionAtOpen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versionAtOpen
}

// ready guards data operations behind initialization.
func (s *Store) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errors.New(errors.ErrStoreUnavailable, "store is not initialized")
	}
	return nil
}

// Package store tests for the store lifecycle: initialization, recovery
// and the cooperative schema reload.
package store

import (
	"context"
	"testing"

	"github.com/gridworks/fieldsync/internal/errors"
)

func newTestStore(t *testing.T) (*Store, *MemoryPort) {
	t.Helper()
	port := NewMemoryPort()
	st := New(port)
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return st, port
}

// TestInitIdempotent verifies a second Init is a no-op.
func TestInitIdempotent(t *testing.T) {
	st, _ := newTestStore(t)

	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("Second Init failed: %v", err)
	}
	if st.SchemaVersionAtOpen() != SchemaVersion {
		t.Errorf("Expected schema version %d, got %d", SchemaVersion, st.SchemaVersionAtOpen())
	}
}

// TestInitRecovery verifies a failing open triggers one destructive
// recovery that leaves a working, empty store.
func TestInitRecovery(t *testing.T) {
	ctx := context.Background()
	port := NewMemoryPort()

	// Seed data that recovery must wipe.
	if err := port.Open(ctx); err != nil {
		t.Fatalf("Seed open failed: %v", err)
	}
	if err := port.Put(ctx, ColCache, "k", []byte(`{}`)); err != nil {
		t.Fatalf("Seed put failed: %v", err)
	}
	if err := port.Close(); err != nil {
		t.Fatalf("Seed close failed: %v", err)
	}

	port.FailOpens = 1
	st := New(port)
	if err := st.Init(ctx); err != nil {
		t.Fatalf("Init should recover, got: %v", err)
	}

	count, err := port.Count(ctx, ColCache)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty store after recovery, found %d cache rows", count)
	}
}

// TestInitRecoveryFails verifies the error when recovery also fails.
func TestInitRecoveryFails(t *testing.T) {
	port := NewMemoryPort()
	port.FailOpens = 2

	st := New(port)
	err := st.Init(context.Background())
	if err == nil {
		t.Fatal("Expected Init to fail when recovery fails")
	}
	if !errors.Is(err, errors.ErrRecoveryFailed) {
		t.Errorf("Expected STORE_RECOVERY_FAILED, got: %v", err)
	}

	// Data operations must refuse to run.
	if _, listErr := st.ListInspections(context.Background()); listErr == nil {
		t.Error("Expected data operations to fail on an unrecovered store")
	}
}

// TestHealthCheck verifies the probe on a healthy store.
func TestHealthCheck(t *testing.T) {
	st, _ := newTestStore(t)

	if err := st.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

// TestHealthCheckReload verifies the cooperative reload when another
// writer has advanced the schema version.
func TestHealthCheckReload(t *testing.T) {
	st, port := newTestStore(t)

	seen := st.SchemaVersionAtOpen()
	port.BumpSchemaVersion()

	if err := st.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck should reload, got: %v", err)
	}
	if st.SchemaVersionAtOpen() <= seen {
		t.Errorf("Expected reload to observe a newer schema version, got %d (was %d)",
			st.SchemaVersionAtOpen(), seen)
	}
}

// TestForceRecovery verifies explicit recovery wipes the store.
func TestForceRecovery(t *testing.T) {
	ctx := context.Background()
	st, port := newTestStore(t)

	if err := port.Put(ctx, ColCache, "k", []byte(`{}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := st.ForceRecovery(ctx); err != nil {
		t.Fatalf("ForceRecovery failed: %v", err)
	}

	count, err := port.Count(ctx, ColCache)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty store after forced recovery, found %d rows", count)
	}
}

// TestCloseThenInit verifies the store can be reopened after Close.
func TestCloseThenInit(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)

	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := st.HealthCheck(ctx); err == nil {
		t.Error("Expected HealthCheck to fail on a closed store")
	}
	if err := st.Init(ctx); err != nil {
		t.Fatalf("Re-Init failed: %v", err)
	}
	if err := st.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck after re-Init failed: %v", err)
	}
}

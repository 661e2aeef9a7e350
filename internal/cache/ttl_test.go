package cache

import (
	"context"
	"testing"
	"time"

	"github.com/gridworks/fieldsync/internal/models"
	"github.com/gridworks/fieldsync/internal/store"
)

func newTestCache(t *testing.T) (*TTLCache, *store.Store) {
	t.Helper()
	st := store.New(store.NewMemoryPort())
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return New(st), st
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	type regionList struct {
		Regions []string `json:"regions"`
	}
	in := regionList{Regions: []string{"north", "south"}}
	if err := c.Set(ctx, "regions", in, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var out regionList
	hit, err := c.Get(ctx, "regions", &out)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !hit {
		t.Fatal("Expected a hit")
	}
	if len(out.Regions) != 2 || out.Regions[0] != "north" {
		t.Errorf("Roundtrip mismatch: %+v", out)
	}
}

func TestGetMiss(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	var out string
	hit, err := c.Get(ctx, "absent", &out)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if hit {
		t.Error("Expected a miss")
	}
}

// TestExpiry stores a value with a 10ms lifetime and verifies it reads
// as a miss once the lifetime has passed.
func TestExpiry(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	if err := c.Set(ctx, "volatile", "v", 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	valid, err := c.IsValid(ctx, "volatile")
	if err != nil {
		t.Fatalf("IsValid failed: %v", err)
	}
	if !valid {
		t.Fatal("Expected fresh entry to be valid")
	}

	time.Sleep(20 * time.Millisecond)

	hit, err := c.Get(ctx, "volatile", nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if hit {
		t.Error("Expected expired entry to read as miss")
	}
	valid, err = c.IsValid(ctx, "volatile")
	if err != nil {
		t.Fatalf("IsValid failed: %v", err)
	}
	if valid {
		t.Error("Expected expired entry to be invalid")
	}
}

func TestDefaultMaxAge(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCache(t)

	if err := c.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	entry, err := st.CacheGet(ctx, "k")
	if err != nil {
		t.Fatalf("CacheGet failed: %v", err)
	}
	if entry == nil {
		t.Fatal("Expected entry")
	}
	lifetime := time.Duration(entry.ExpiresAt-entry.Timestamp) * time.Millisecond
	if lifetime != DefaultMaxAge {
		t.Errorf("Expected default lifetime %v, got %v", DefaultMaxAge, lifetime)
	}
}

func TestDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	for _, key := range []string{"a", "b"} {
		if err := c.Set(ctx, key, key, time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if hit, _ := c.Get(ctx, "a", nil); hit {
		t.Error("Expected deleted key to miss")
	}
	if hit, _ := c.Get(ctx, "b", nil); !hit {
		t.Error("Expected other key to survive")
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if hit, _ := c.Get(ctx, "b", nil); hit {
		t.Error("Expected clear to remove everything")
	}
}

func TestListInfo(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	if err := c.Set(ctx, "fresh", "value", time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Set(ctx, "stale", "value", 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	infos, err := c.ListInfo(ctx)
	if err != nil {
		t.Fatalf("ListInfo failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(infos))
	}
	byKey := make(map[string]EntryInfo)
	for _, info := range infos {
		byKey[info.Key] = info
	}
	if !byKey["fresh"].Valid {
		t.Error("Expected fresh entry to report valid")
	}
	if byKey["stale"].Valid {
		t.Error("Expected stale entry to report invalid")
	}
	if byKey["fresh"].Size != len(`"value"`) {
		t.Errorf("Unexpected size: %d", byKey["fresh"].Size)
	}
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	if err := c.Set(ctx, "fresh", 1, time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Set(ctx, "stale", 2, 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	removed, err := c.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}

	infos, err := c.ListInfo(ctx)
	if err != nil {
		t.Fatalf("ListInfo failed: %v", err)
	}
	if len(infos) != 1 || infos[0].Key != "fresh" {
		t.Errorf("Expected only the fresh entry, got %+v", infos)
	}
}

func TestFeederCache(t *testing.T) {
	ctx := context.Background()
	_, st := newTestCache(t)
	fc := NewFeederCache(st)

	feeders := []models.FeederInfo{{ID: "f1", Code: "F-101", Name: "North Main"}}
	if _, err := fc.Put(ctx, "north", "North Region", feeders); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	snap, err := fc.Get(ctx, "north")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if snap == nil || snap.RegionName != "North Region" || len(snap.Feeders) != 1 {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}

	removed, err := fc.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("Expected nothing expired, removed %d", removed)
	}
}

package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gridworks/fieldsync/internal/cache"
	"github.com/gridworks/fieldsync/internal/connectivity"
	"github.com/gridworks/fieldsync/internal/errors"
	"github.com/gridworks/fieldsync/internal/models"
	"github.com/gridworks/fieldsync/internal/store"
	"github.com/gridworks/fieldsync/internal/syncer"
)

// fakeClient answers every request with a fixed response.
type fakeClient struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeClient) Request(ctx context.Context, endpoint, method string, body json.RawMessage) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"id":"srv-1"}`), nil
}

func (f *fakeClient) Health(ctx context.Context) error { return f.err }

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	svc     *Service
	store   *store.Store
	monitor *connectivity.Monitor
	client  *fakeClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.New(store.NewMemoryPort())
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	client := &fakeClient{}
	monitor := connectivity.NewMonitor(client, connectivity.Options{})
	coordinator := syncer.New(st, client, syncer.Options{RetryDelay: time.Millisecond})
	detach := coordinator.AttachMonitor(monitor)
	t.Cleanup(detach)

	return &fixture{
		svc:     New(st, cache.New(st), monitor, coordinator),
		store:   st,
		monitor: monitor,
		client:  client,
	}
}

// TestOfflineSaveThenReconnect is the core offline flow: a record saved
// while offline stays queued at high priority, and the reconnect
// transition drains it without further calls from the caller.
func TestOfflineSaveThenReconnect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.monitor.SetOffline()

	id, err := f.svc.SaveInspection(ctx, json.RawMessage(`{"feeder":"F-101","status":"inspected"}`))
	if err != nil {
		t.Fatalf("SaveInspection failed: %v", err)
	}

	rec, err := f.store.GetInspection(ctx, id)
	if err != nil {
		t.Fatalf("GetInspection failed: %v", err)
	}
	if rec.SyncStatus != models.SyncStatusPending {
		t.Errorf("Expected pending while offline, got %s", rec.SyncStatus)
	}

	entries, err := f.store.ListSyncEntries(ctx)
	if err != nil {
		t.Fatalf("ListSyncEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 queue entry, got %d", len(entries))
	}
	if entries[0].Priority != models.PriorityHigh {
		t.Errorf("Expected high priority, got %d", entries[0].Priority)
	}
	if f.client.callCount() != 0 {
		t.Errorf("Expected no API calls while offline, got %d", f.client.callCount())
	}

	f.monitor.SetOnline("wifi", "4g")

	deadline := time.Now().Add(time.Second)
	for {
		rec, err = f.store.GetInspection(ctx, id)
		if err != nil {
			t.Fatalf("GetInspection failed: %v", err)
		}
		if rec.SyncStatus == models.SyncStatusSynced {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Record never synced after reconnect, status %s", rec.SyncStatus)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if rec.OriginalID != "srv-1" {
		t.Errorf("Expected server id srv-1, got %q", rec.OriginalID)
	}
	count, err := f.store.SyncQueueCount(ctx)
	if err != nil {
		t.Fatalf("SyncQueueCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty queue after drain, got %d", count)
	}
}

func TestSaveInspectionValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.SaveInspection(ctx, nil); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("Expected VALIDATION_ERROR for empty payload, got: %v", err)
	}
	if _, err := f.svc.SaveInspection(ctx, json.RawMessage(`{broken`)); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("Expected VALIDATION_ERROR for invalid JSON, got: %v", err)
	}
}

func TestSavePhoto(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.monitor.SetOffline()

	inspectionID, err := f.svc.SaveInspection(ctx, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("SaveInspection failed: %v", err)
	}

	// "hello" in base64; sniffs as text/plain.
	photoID, err := f.svc.SavePhoto(ctx, inspectionID, "aGVsbG8=", "note.txt", "before", "")
	if err != nil {
		t.Fatalf("SavePhoto failed: %v", err)
	}

	photo, err := f.store.GetPhoto(ctx, photoID)
	if err != nil {
		t.Fatalf("GetPhoto failed: %v", err)
	}
	if photo.Size != 5 {
		t.Errorf("Expected decoded size 5, got %d", photo.Size)
	}
	if photo.MimeType == "" {
		t.Error("Expected MIME type to be sniffed")
	}
	if photo.Category != models.PhotoCategoryBefore {
		t.Errorf("Unexpected category: %s", photo.Category)
	}

	entries, err := f.store.ListSyncEntries(ctx)
	if err != nil {
		t.Fatalf("ListSyncEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected inspection + photo entries, got %d", len(entries))
	}
	// Inspection outranks the photo.
	if entries[0].TargetType != models.SyncTargetInspection || entries[1].TargetType != models.SyncTargetPhoto {
		t.Errorf("Unexpected queue order: %s then %s", entries[0].TargetType, entries[1].TargetType)
	}
}

func TestSavePhotoValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.monitor.SetOffline()

	inspectionID, err := f.svc.SaveInspection(ctx, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("SaveInspection failed: %v", err)
	}

	tests := []struct {
		name         string
		inspectionID string
		data         string
		filename     string
		category     string
	}{
		{"BadInspectionID", "not-a-uuid", "aGVsbG8=", "f.jpg", "before"},
		{"BadBase64", inspectionID, "!!!not base64!!!", "f.jpg", "before"},
		{"MissingFilename", inspectionID, "aGVsbG8=", "", "before"},
		{"BadCategory", inspectionID, "aGVsbG8=", "f.jpg", "during"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SavePhoto(ctx, tt.inspectionID, tt.data, tt.filename, tt.category, "")
			if !errors.Is(err, errors.ErrValidation) {
				t.Errorf("Expected VALIDATION_ERROR, got: %v", err)
			}
		})
	}

	t.Run("UnknownInspection", func(t *testing.T) {
		_, err := f.svc.SavePhoto(ctx, "0f4a2f1c-5b8e-4a52-9c3d-7e6f1a2b3c4d", "aGVsbG8=", "f.jpg", "before", "")
		if !errors.Is(err, errors.ErrNotFound) {
			t.Errorf("Expected NOT_FOUND, got: %v", err)
		}
	})
}

func TestEnqueueChecksTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.monitor.SetOffline()

	_, err := f.svc.Enqueue(ctx, models.SyncTargetInspection, "0f4a2f1c-5b8e-4a52-9c3d-7e6f1a2b3c4d", models.PriorityLow)
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Expected NOT_FOUND for unknown target, got: %v", err)
	}

	_, err = f.svc.Enqueue(ctx, "widget", "x", models.PriorityLow)
	if !errors.Is(err, errors.ErrValidation) {
		t.Errorf("Expected VALIDATION_ERROR for bad target type, got: %v", err)
	}
}

// TestEnqueueDedup verifies re-enqueueing an already queued record keeps
// a single entry.
func TestEnqueueDedup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.monitor.SetOffline()

	id, err := f.svc.SaveInspection(ctx, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("SaveInspection failed: %v", err)
	}

	if _, err := f.svc.Enqueue(ctx, models.SyncTargetInspection, id, models.PriorityLow); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	count, err := f.store.SyncQueueCount(ctx)
	if err != nil {
		t.Fatalf("SyncQueueCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 entry after re-enqueue, got %d", count)
	}
}

func TestGetSyncStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.monitor.SetOffline()

	id, err := f.svc.SaveInspection(ctx, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("SaveInspection failed: %v", err)
	}
	if _, err := f.svc.SavePhoto(ctx, id, "aGVsbG8=", "f.jpg", "after", "image/jpeg"); err != nil {
		t.Fatalf("SavePhoto failed: %v", err)
	}

	stats, err := f.svc.GetSyncStats(ctx)
	if err != nil {
		t.Fatalf("GetSyncStats failed: %v", err)
	}
	if stats.PendingInspections != 1 || stats.PendingPhotos != 1 {
		t.Errorf("Unexpected pending counts: %+v", stats)
	}
	if stats.TotalOfflineItems != 2 || stats.SyncQueueCount != 2 {
		t.Errorf("Unexpected totals: %+v", stats)
	}
	if stats.LastSyncAttempt != 0 {
		t.Errorf("Expected no sync attempts yet, got %d", stats.LastSyncAttempt)
	}

	at := time.Now()
	if err := f.store.RecordInspectionSyncAttempt(ctx, id, at); err != nil {
		t.Fatalf("RecordInspectionSyncAttempt failed: %v", err)
	}
	stats, err = f.svc.GetSyncStats(ctx)
	if err != nil {
		t.Fatalf("GetSyncStats failed: %v", err)
	}
	if stats.LastSyncAttempt != at.UnixMilli() {
		t.Errorf("Expected last attempt %d, got %d", at.UnixMilli(), stats.LastSyncAttempt)
	}
}

func TestDeleteInspectionCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.monitor.SetOffline()

	id, err := f.svc.SaveInspection(ctx, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("SaveInspection failed: %v", err)
	}
	if _, err := f.svc.SavePhoto(ctx, id, "aGVsbG8=", "f.jpg", "before", "image/jpeg"); err != nil {
		t.Fatalf("SavePhoto failed: %v", err)
	}

	if err := f.svc.DeleteInspection(ctx, id); err != nil {
		t.Fatalf("DeleteInspection failed: %v", err)
	}

	count, err := f.store.SyncQueueCount(ctx)
	if err != nil {
		t.Fatalf("SyncQueueCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected cascade to empty the queue, got %d", count)
	}
}

func TestCachePassthrough(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.svc.CacheSet(ctx, "regions", []string{"north"}, time.Minute); err != nil {
		t.Fatalf("CacheSet failed: %v", err)
	}
	var out []string
	hit, err := f.svc.CacheGet(ctx, "regions", &out)
	if err != nil {
		t.Fatalf("CacheGet failed: %v", err)
	}
	if !hit || len(out) != 1 {
		t.Errorf("Unexpected cache result: hit=%v out=%v", hit, out)
	}

	if err := f.svc.CacheDelete(ctx, "regions"); err != nil {
		t.Fatalf("CacheDelete failed: %v", err)
	}
	if hit, _ := f.svc.CacheGet(ctx, "regions", nil); hit {
		t.Error("Expected miss after delete")
	}
}

func TestViewedSnapshots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.svc.MarkViewed(ctx, "inspection", "abc", json.RawMessage(`{"feeder":"F-101"}`)); err != nil {
		t.Fatalf("MarkViewed failed: %v", err)
	}

	entry, err := f.svc.GetViewed(ctx, "inspection", "abc")
	if err != nil {
		t.Fatalf("GetViewed failed: %v", err)
	}
	if entry == nil || string(entry.Value) != `{"feeder":"F-101"}` {
		t.Errorf("Unexpected snapshot: %+v", entry)
	}

	missing, err := f.svc.GetViewed(ctx, "inspection", "nope")
	if err != nil {
		t.Fatalf("GetViewed failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown record, got %+v", missing)
	}
}

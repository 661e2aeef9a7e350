// Package syncer replays queued local mutations to the remote API in
// priority order with bounded retries. A single drain runs at a time;
// failed entries are rescheduled with a not-before timestamp instead of
// blocking the pass.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gridworks/fieldsync/internal/api"
	"github.com/gridworks/fieldsync/internal/connectivity"
	"github.com/gridworks/fieldsync/internal/errors"
	"github.com/gridworks/fieldsync/internal/logging"
	"github.com/gridworks/fieldsync/internal/models"
	"github.com/gridworks/fieldsync/internal/store"
)

// DefaultRetryDelay is the base pacing delay between attempts; the actual
// delay for an entry is RetryDelay * retryCount.
const DefaultRetryDelay = time.Second

// Options tunes the coordinator.
type Options struct {
	RetryDelay time.Duration
}

// Result summarizes one drain pass.
type Result struct {
	Processed int // entries attempted
	Succeeded int // entries drained, records marked synced
	Failed    int // entries exhausted, records marked failed
	Requeued  int // entries rescheduled for a later pass
	Skipped   int // entries dropped because their record is gone
}

// Coordinator drains the sync queue against the remote API.
type Coordinator struct {
	store  *store.Store
	client api.Client
	opts   Options
	log    *logging.ComponentLogger

	mu        sync.Mutex
	draining  bool
	lastDrain time.Time
}

// New creates a coordinator over the store and API client.
func New(st *store.Store, client api.Client, opts Options) *Coordinator {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	return &Coordinator{
		store:  st,
		client: client,
		opts:   opts,
		log:    logging.ForComponent("syncer"),
	}
}

// AttachMonitor subscribes to connectivity transitions: an offline-to-
// online transition triggers an asynchronous drain. Returns the
// unsubscribe function.
func (c *Coordinator) AttachMonitor(m *connectivity.Monitor) func() {
	return m.Subscribe(func(state models.ConnectivityState) {
		if !state.IsOffline {
			go c.Drain(context.Background())
		}
	})
}

// NotifyEnqueued triggers an asynchronous drain right after an enqueue
// when the device is online. offline may be nil when no monitor is wired.
func (c *Coordinator) NotifyEnqueued(offline func() bool) {
	if offline != nil && offline() {
		return
	}
	go c.Drain(context.Background())
}

// Drain performs one complete pass over the eligible queue entries.
// Returns a zero Result with no error when a drain is already running;
// concurrent triggers are no-ops.
func (c *Coordinator) Drain(ctx context.Context) (Result, error) {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		c.log.Debug("drain already in progress, skipping")
		return Result{}, nil
	}
	c.draining = true
	c.lastDrain = time.Now()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.draining = false
		c.mu.Unlock()
	}()

	entries, err := c.store.EligibleSyncEntries(ctx, time.Now())
	if err != nil {
		return Result{}, err
	}
	if len(entries) == 0 {
		return Result{}, nil
	}

	c.log.Info("drain started", map[string]interface{}{"eligible": len(entries)})

	var result Result
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			c.log.Warn("drain cancelled", map[string]interface{}{
				"processed": result.Processed,
				"remaining": len(entries) - result.Processed,
			})
			return result, errors.Wrap(errors.ErrSyncFailed, "drain cancelled", err)
		}

		// One bad entry never halts the rest of the pass.
		c.processEntry(ctx, entry, &result)
	}

	c.log.Info("drain finished", map[string]interface{}{
		"processed": result.Processed,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"requeued":  result.Requeued,
	})
	return result, nil
}

// processEntry attempts one queue entry and applies the outcome.
func (c *Coordinator) processEntry(ctx context.Context, entry *models.SyncQueueEntry, result *Result) {
	result.Processed++

	endpoint, method, body, err := c.buildRequest(ctx, entry)
	if errors.Is(err, errors.ErrNotFound) {
		// Record deleted after enqueue; the entry is stale.
		if delErr := c.store.DeleteSyncEntry(ctx, entry.ID.String()); delErr != nil {
			c.log.Error("failed to drop stale entry", delErr,
				map[string]interface{}{"entry_id": entry.ID.String()})
		}
		result.Skipped++
		return
	}
	if err != nil {
		c.log.Error("failed to build request", err,
			map[string]interface{}{"entry_id": entry.ID.String()})
		c.handleFailure(ctx, entry, err, result)
		return
	}

	if entry.TargetType == models.SyncTargetInspection {
		if err := c.store.RecordInspectionSyncAttempt(ctx, entry.TargetID.String(), time.Now()); err != nil {
			c.log.Error("failed to record sync attempt", err,
				map[string]interface{}{"inspection_id": entry.TargetID.String()})
		}
	}

	resp, err := c.client.Request(ctx, endpoint, method, body)
	if err != nil {
		c.handleFailure(ctx, entry, err, result)
		return
	}

	c.handleSuccess(ctx, entry, resp, result)
}

// buildRequest loads the target record and assembles its replay call.
func (c *Coordinator) buildRequest(ctx context.Context, entry *models.SyncQueueEntry) (endpoint, method string, body []byte, err error) {
	switch entry.TargetType {
	case models.SyncTargetInspection:
		rec, err := c.store.GetInspection(ctx, entry.TargetID.String())
		if err != nil {
			return "", "", nil, err
		}
		return "/api/inspections", http.MethodPost, rec.Payload, nil

	case models.SyncTargetPhoto:
		photo, err := c.store.GetPhoto(ctx, entry.TargetID.String())
		if err != nil {
			return "", "", nil, err
		}
		// Address the photo under the server id once its inspection has
		// synced; until then the local id is the only handle we have.
		inspectionRef := photo.InspectionID.String()
		if rec, err := c.store.GetInspection(ctx, inspectionRef); err == nil && rec.OriginalID != "" {
			inspectionRef = rec.OriginalID
		}
		payload, err := json.Marshal(struct {
			Filename string               `json:"filename"`
			Category models.PhotoCategory `json:"category"`
			MimeType string               `json:"mime_type"`
			Data     string               `json:"data"`
		}{photo.Filename, photo.Category, photo.MimeType, photo.EncodedData})
		if err != nil {
			return "", "", nil, errors.Wrap(errors.ErrInternal, "failed to marshal photo payload", err)
		}
		return "/api/inspections/" + inspectionRef + "/photos", http.MethodPost, payload, nil

	default:
		return "", "", nil, errors.New(errors.ErrInvalid,
			fmt.Sprintf("unknown target type %q", entry.TargetType))
	}
}

// handleSuccess removes the entry and marks the record synced (terminal).
func (c *Coordinator) handleSuccess(ctx context.Context, entry *models.SyncQueueEntry, resp []byte, result *Result) {
	if err := c.store.DeleteSyncEntry(ctx, entry.ID.String()); err != nil {
		c.log.Error("failed to remove drained entry", err,
			map[string]interface{}{"entry_id": entry.ID.String()})
	}

	var err error
	switch entry.TargetType {
	case models.SyncTargetInspection:
		err = c.store.MarkInspectionSynced(ctx, entry.TargetID.String(), api.ServerID(resp))
	case models.SyncTargetPhoto:
		err = c.store.MarkPhotoSynced(ctx, entry.TargetID.String())
	}
	if err != nil {
		c.log.Error("failed to mark record synced", err,
			map[string]interface{}{"target_id": entry.TargetID.String()})
		return
	}

	result.Succeeded++
	c.log.Debug("entry synced", map[string]interface{}{
		"entry_id":  entry.ID.String(),
		"target_id": entry.TargetID.String(),
	})
}

// handleFailure reschedules the entry or, once retries are exhausted,
// removes it and marks the record failed (terminal). All network failures
// are treated uniformly as retryable.
func (c *Coordinator) handleFailure(ctx context.Context, entry *models.SyncQueueEntry, cause error, result *Result) {
	retryCount := entry.RetryCount + 1

	if retryCount < entry.MaxRetries {
		nextAttempt := time.Now().Add(c.opts.RetryDelay * time.Duration(retryCount))
		if err := c.store.RescheduleSyncEntry(ctx, entry.ID.String(), retryCount, nextAttempt); err != nil {
			c.log.Error("failed to reschedule entry", err,
				map[string]interface{}{"entry_id": entry.ID.String()})
			return
		}
		result.Requeued++
		c.log.Warn("entry failed, rescheduled", map[string]interface{}{
			"entry_id":    entry.ID.String(),
			"retry_count": retryCount,
			"max_retries": entry.MaxRetries,
			"error":       cause.Error(),
		})
		return
	}

	if err := c.store.DeleteSyncEntry(ctx, entry.ID.String()); err != nil {
		c.log.Error("failed to remove exhausted entry", err,
			map[string]interface{}{"entry_id": entry.ID.String()})
	}

	var err error
	switch entry.TargetType {
	case models.SyncTargetInspection:
		err = c.store.MarkInspectionFailed(ctx, entry.TargetID.String(), cause.Error())
	case models.SyncTargetPhoto:
		err = c.store.MarkPhotoFailed(ctx, entry.TargetID.String())
	}
	if err != nil {
		c.log.Error("failed to mark record failed", err,
			map[string]interface{}{"target_id": entry.TargetID.String()})
		return
	}

	result.Failed++
	c.log.Warn("entry failed permanently", map[string]interface{}{
		"entry_id":    entry.ID.String(),
		"target_id":   entry.TargetID.String(),
		"retry_count": retryCount,
		"error":       cause.Error(),
	})
}

// Draining reports whether a drain pass is currently running.
func (c *Coordinator) Draining() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draining
}

// LastDrain returns when the last drain pass started; zero when none ran.
func (c *Coordinator) LastDrain() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastDrain
}

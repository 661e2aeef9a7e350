// Package store provides sync queue persistence.
package store

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/gridworks/fieldsync/internal/errors"
	"github.com/gridworks/fieldsync/internal/models"
	"github.com/gridworks/fieldsync/internal/uuid"
)

// DefaultMaxRetries bounds sync attempts per queue entry.
const DefaultMaxRetries = 3

// EnqueueSync adds a queue entry for the target. Enqueueing a target that
// already has a pending entry returns the existing entry unchanged, so a
// record resubmitted before its entry drains never syncs twice.
func (s *Store) EnqueueSync(ctx context.Context, targetType models.SyncTarget, targetID string, priority int) (*models.SyncQueueEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if priority < models.PriorityHigh || priority > models.PriorityLow {
		return nil, errors.New(errors.ErrValidation, "priority must be 1, 2 or 3")
	}

	entries, err := s.ListSyncEntries(ctx)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.TargetType == targetType && entry.TargetID.String() == targetID {
			return entry, nil
		}
	}

	entry := &models.SyncQueueEntry{
		ID:            models.UUID(uuid.New()),
		TargetType:    targetType,
		TargetID:      models.UUID(targetID),
		Priority:      priority,
		CreatedAt:     time.Now().UnixMilli(),
		RetryCount:    0,
		MaxRetries:    DefaultMaxRetries,
		NextAttemptAt: 0,
	}

	if err := s.putSyncEntry(ctx, entry); err != nil {
		return nil, err
	}

	s.log.Debug("sync entry enqueued", map[string]interface{}{
		"entry_id":    entry.ID.String(),
		"target_type": string(targetType),
		"target_id":   targetID,
		"priority":    priority,
	})
	return entry, nil
}

func (s *Store) putSyncEntry(ctx context.Context, entry *models.SyncQueueEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to marshal queue entry", err)
	}
	return s.port.Put(ctx, ColSyncQueue, entry.ID.String(), data)
}

// ListSyncEntries returns every queue entry in drain order: priority
// bucket first (1 before 2 before 3), oldest first within a bucket.
func (s *Store) ListSyncEntries(ctx context.Context) ([]*models.SyncQueueEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	docs, err := s.port.List(ctx, ColSyncQueue)
	if err != nil {
		return nil, err
	}

	var entries []*models.SyncQueueEntry
	for _, doc := range docs {
		var entry models.SyncQueueEntry
		if err := json.Unmarshal(doc.Data, &entry); err != nil {
			return nil, errors.Wrap(errors.ErrStoreCorrupted, "failed to unmarshal queue entry", err)
		}
		entries = append(entries, &entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority < entries[j].Priority
		}
		return entries[i].CreatedAt < entries[j].CreatedAt
	})
	return entries, nil
}

// EligibleSyncEntries returns, in drain order, the entries whose
// NextAttemptAt has passed. Rescheduled entries stay out of the result
// until their pacing delay elapses; the drain never sleeps on them.
func (s *Store) EligibleSyncEntries(ctx context.Context, now time.Time) ([]*models.SyncQueueEntry, error) {
	entries, err := s.ListSyncEntries(ctx)
	if err != nil {
		return nil, err
	}

	eligible := entries[:0]
	for _, entry := range entries {
		if entry.Eligible(now) {
			eligible = append(eligible, entry)
		}
	}
	return eligible, nil
}

// RescheduleSyncEntry bumps the retry count and schedules the next attempt.
func (s *Store) RescheduleSyncEntry(ctx context.Context, id string, retryCount int, nextAttemptAt time.Time) error {
	entry, err := s.GetSyncEntry(ctx, id)
	if err != nil {
		return err
	}

	entry.RetryCount = retryCount
	entry.NextAttemptAt = nextAttemptAt.UnixMilli()
	return s.putSyncEntry(ctx, entry)
}

// GetSyncEntry retrieves one queue entry by id.
func (s *Store) GetSyncEntry(ctx context.Context, id string) (*models.SyncQueueEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	data, err := s.port.Get(ctx, ColSyncQueue, id)
	if err != nil {
		return nil, err
	}

	var entry models.SyncQueueEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, errors.Wrap(errors.ErrStoreCorrupted, "failed to unmarshal queue entry", err)
	}
	return &entry, nil
}

// DeleteSyncEntry removes one queue entry.
func (s *Store) DeleteSyncEntry(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.port.Delete(ctx, ColSyncQueue, id)
}

// DeleteSyncEntriesForTarget removes every entry referencing the target.
func (s *Store) DeleteSyncEntriesForTarget(ctx context.Context, targetID string) error {
	entries, err := s.ListSyncEntries(ctx)
	if err != nil {
		return err
	}

	return s.port.RunBatch(ctx, func(b Batch) error {
		for _, entry := range entries {
			if entry.TargetID.String() == targetID {
				if err := b.Delete(ColSyncQueue, entry.ID.String()); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// SyncQueueCount returns the number of queued entries.
func (s *Store) SyncQueueCount(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.port.Count(ctx, ColSyncQueue)
}

// Package store provides the viewing cache: snapshots of recently viewed
// records kept so detail views stay readable offline.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gridworks/fieldsync/internal/errors"
	"github.com/gridworks/fieldsync/internal/models"
)

// ViewingCacheTTL is the default lifetime of a viewed-record snapshot.
const ViewingCacheTTL = 12 * time.Hour

func viewingKey(recordType, recordID string) string {
	return recordType + ":" + recordID
}

// SaveViewed stores a snapshot of a viewed record.
func (s *Store) SaveViewed(ctx context.Context, recordType, recordID string, value json.RawMessage) error {
	if err := s.ready(); err != nil {
		return err
	}
	if recordType == "" || recordID == "" {
		return errors.New(errors.ErrValidation, "record type and id must not be empty")
	}

	now := time.Now()
	entry := models.ViewingCacheEntry{
		Key:        viewingKey(recordType, recordID),
		RecordType: recordType,
		RecordID:   recordID,
		Value:      value,
		Timestamp:  now.UnixMilli(),
		ExpiresAt:  now.Add(ViewingCacheTTL).UnixMilli(),
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to marshal viewing entry", err)
	}
	return s.port.Put(ctx, ColViewingCache, entry.Key, data)
}

// GetViewed returns the snapshot for a record, or nil when absent or
// expired. Expired snapshots are purged on read.
func (s *Store) GetViewed(ctx context.Context, recordType, recordID string) (*models.ViewingCacheEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	key := viewingKey(recordType, recordID)
	data, err := s.port.Get(ctx, ColViewingCache, key)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry models.ViewingCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, errors.Wrap(errors.ErrStoreCorrupted, "failed to unmarshal viewing entry", err)
	}

	if !entry.Valid(time.Now()) {
		if err := s.port.Delete(ctx, ColViewingCache, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &entry, nil
}

// ListViewedByType returns the still-valid snapshots of one record type.
func (s *Store) ListViewedByType(ctx context.Context, recordType string) ([]*models.ViewingCacheEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	docs, err := s.port.List(ctx, ColViewingCache)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var entries []*models.ViewingCacheEntry
	for _, doc := range docs {
		var entry models.ViewingCacheEntry
		if err := json.Unmarshal(doc.Data, &entry); err != nil {
			return nil, errors.Wrap(errors.ErrStoreCorrupted, "failed to unmarshal viewing entry", err)
		}
		if entry.RecordType != recordType || !entry.Valid(now) {
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// CleanupViewed sweeps expired snapshots and returns how many were removed.
func (s *Store) CleanupViewed(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	docs, err := s.port.List(ctx, ColViewingCache)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	removed := 0
	err = s.port.RunBatch(ctx, func(b Batch) error {
		for _, doc := range docs {
			var entry models.ViewingCacheEntry
			if err := json.Unmarshal(doc.Data, &entry); err != nil {
				return errors.Wrap(errors.ErrStoreCorrupted, "failed to unmarshal viewing entry", err)
			}
			if !entry.Valid(now) {
				if err := b.Delete(ColViewingCache, entry.Key); err != nil {
					return err
				}
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Package store provides feeder reference snapshot persistence.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gridworks/fieldsync/internal/errors"
	"github.com/gridworks/fieldsync/internal/models"
	"github.com/gridworks/fieldsync/internal/uuid"
)

// FeederCacheTTL is the fixed lifetime of a feeder snapshot.
const FeederCacheTTL = 24 * time.Hour

// SaveFeederSnapshot stores the feeder list for a region. Prior entries
// for the region are purged first, so at most one current entry exists.
func (s *Store) SaveFeederSnapshot(ctx context.Context, regionID, regionName string, feeders []models.FeederInfo) (*models.FeederCacheEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if regionID == "" {
		return nil, errors.New(errors.ErrValidation, "region id must not be empty")
	}

	existing, err := s.listFeederSnapshots(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	entry := &models.FeederCacheEntry{
		ID:         models.UUID(uuid.New()),
		RegionID:   regionID,
		RegionName: regionName,
		Feeders:    feeders,
		Timestamp:  now.UnixMilli(),
		ExpiresAt:  now.Add(FeederCacheTTL).UnixMilli(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to marshal feeder snapshot", err)
	}

	err = s.port.RunBatch(ctx, func(b Batch) error {
		for _, old := range existing {
			if old.RegionID == regionID {
				if err := b.Delete(ColFeederCache, old.ID.String()); err != nil {
					return err
				}
			}
		}
		return b.Put(ColFeederCache, entry.ID.String(), data)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// GetFeederSnapshot returns the region's current snapshot, or nil when
// absent or expired. An expired snapshot is purged on read.
func (s *Store) GetFeederSnapshot(ctx context.Context, regionID string) (*models.FeederCacheEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	entries, err := s.listFeederSnapshots(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for _, entry := range entries {
		if entry.RegionID != regionID {
			continue
		}
		if !entry.Valid(now) {
			if err := s.port.Delete(ctx, ColFeederCache, entry.ID.String()); err != nil {
				return nil, err
			}
			continue
		}
		return entry, nil
	}
	return nil, nil
}

// PurgeExpiredFeeders removes every expired snapshot and returns the count.
func (s *Store) PurgeExpiredFeeders(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	entries, err := s.listFeederSnapshots(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	removed := 0
	err = s.port.RunBatch(ctx, func(b Batch) error {
		for _, entry := range entries {
			if !entry.Valid(now) {
				if err := b.Delete(ColFeederCache, entry.ID.String()); err != nil {
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

func (s *Store) listFeederSnapshots(ctx context.Context) ([]*models.FeederCacheEntry, error) {
	docs, err := s.port.List(ctx, ColFeederCache)
	if err != nil {
		return nil, err
	}

	var entries []*models.FeederCacheEntry
	for _, doc := range docs {
		var entry models.FeederCacheEntry
		if err := json.Unmarshal(doc.Data, &entry); err != nil {
			return nil, errors.Wrap(errors.ErrStoreCorrupted, "failed to unmarshal feeder snapshot", err)
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

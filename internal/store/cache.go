// Package store provides the generic TTL cache table.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gridworks/fieldsync/internal/errors"
	"github.com/gridworks/fieldsync/internal/models"
)

// CacheSet stores a value under key with the given lifetime. maxAge must
// be positive so the expires_at > timestamp invariant holds.
func (s *Store) CacheSet(ctx context.Context, key string, value json.RawMessage, maxAge time.Duration) error {
	if err := s.ready(); err != nil {
		return err
	}
	if key == "" {
		return errors.New(errors.ErrValidation, "cache key must not be empty")
	}
	if maxAge <= 0 {
		return errors.New(errors.ErrCacheInvalid, "maxAge must be positive")
	}

	now := time.Now()
	entry := models.CacheEntry{
		Key:       key,
		Value:     value,
		Timestamp: now.UnixMilli(),
		ExpiresAt: now.Add(maxAge).UnixMilli(),
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to marshal cache entry", err)
	}
	return s.port.Put(ctx, ColCache, key, data)
}

// CacheGet returns the entry under key, or nil on miss. An expired entry
// is deleted as a side effect of being read and reported as a miss.
func (s *Store) CacheGet(ctx context.Context, key string) (*models.CacheEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	data, err := s.port.Get(ctx, ColCache, key)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, errors.Wrap(errors.ErrStoreCorrupted, "failed to unmarshal cache entry", err)
	}

	if !entry.Valid(time.Now()) {
		if err := s.port.Delete(ctx, ColCache, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &entry, nil
}

// CacheIsValid reports whether a non-expired entry exists under key.
func (s *Store) CacheIsValid(ctx context.Context, key string) (bool, error) {
	entry, err := s.CacheGet(ctx, key)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// CacheDelete removes the entry under key.
func (s *Store) CacheDelete(ctx context.Context, key string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.port.Delete(ctx, ColCache, key)
}

// CacheClear removes every cache entry.
func (s *Store) CacheClear(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.port.Clear(ctx, ColCache)
}

// CacheList returns every cache entry, expired ones included, for
// diagnostics.
func (s *Store) CacheList(ctx context.Context) ([]*models.CacheEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	docs, err := s.port.List(ctx, ColCache)
	if err != nil {
		return nil, err
	}

	var entries []*models.CacheEntry
	for _, doc := range docs {
		var entry models.CacheEntry
		if err := json.Unmarshal(doc.Data, &entry); err != nil {
			return nil, errors.Wrap(errors.ErrStoreCorrupted, "failed to unmarshal cache entry", err)
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// CacheCleanup sweeps expired entries and returns how many were removed.
func (s *Store) CacheCleanup(ctx context.Context) (int, error) {
	entries, err := s.CacheList(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	removed := 0
	err = s.port.RunBatch(ctx, func(b Batch) error {
		for _, entry := range entries {
			if !entry.Valid(now) {
				if err := b.Delete(ColCache, entry.Key); err != nil {
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

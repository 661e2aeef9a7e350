// Package cache provides a generic expiring cache for read-heavy
// reference data, layered on the local store's cache table and
// independent of the sync queue. Expiry is enforced lazily on read plus
// an explicit sweep; there is no background timer.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gridworks/fieldsync/internal/errors"
	"github.com/gridworks/fieldsync/internal/logging"
	"github.com/gridworks/fieldsync/internal/models"
	"github.com/gridworks/fieldsync/internal/store"
)

// DefaultMaxAge is the lifetime applied when Set is called without one.
const DefaultMaxAge = 5 * time.Minute

// EntryInfo describes one cache entry for diagnostics.
type EntryInfo struct {
	Key   string        `json:"key"`
	Valid bool          `json:"valid"`
	Age   time.Duration `json:"age"`
	Size  int           `json:"size"` // serialized value bytes
}

// TTLCache is a typed wrapper over the store's cache table.
type TTLCache struct {
	store *store.Store
	log   *logging.ComponentLogger
}

// New creates a TTLCache over the store.
func New(st *store.Store) *TTLCache {
	return &TTLCache{
		store: st,
		log:   logging.ForComponent("cache"),
	}
}

// Set stores a value under key. A non-positive maxAge selects the default.
func (c *TTLCache) Set(ctx context.Context, key string, value interface{}, maxAge time.Duration) error {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(errors.ErrCacheInvalid, "failed to marshal cache value", err)
	}
	return c.store.CacheSet(ctx, key, data, maxAge)
}

// Get loads the value under key into dest. Returns false on miss or
// expiry; the expired entry is deleted as a side effect of being read.
func (c *TTLCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	entry, err := c.store.CacheGet(ctx, key)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}

	if dest != nil {
		if err := json.Unmarshal(entry.Value, dest); err != nil {
			return false, errors.Wrap(errors.ErrCacheInvalid, "failed to unmarshal cache value", err)
		}
	}
	return true, nil
}

// IsValid reports whether a non-expired entry exists under key.
func (c *TTLCache) IsValid(ctx context.Context, key string) (bool, error) {
	return c.store.CacheIsValid(ctx, key)
}

// Delete removes the entry under key.
func (c *TTLCache) Delete(ctx context.Context, key string) error {
	return c.store.CacheDelete(ctx, key)
}

// Clear removes every entry.
func (c *TTLCache) Clear(ctx context.Context) error {
	return c.store.CacheClear(ctx)
}

// ListInfo returns diagnostics for every entry, expired ones included.
func (c *TTLCache) ListInfo(ctx context.Context) ([]EntryInfo, error) {
	entries, err := c.store.CacheList(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	infos := make([]EntryInfo, 0, len(entries))
	for _, entry := range entries {
		infos = append(infos, EntryInfo{
			Key:   entry.Key,
			Valid: entry.Valid(now),
			Age:   entry.Age(now),
			Size:  len(entry.Value),
		})
	}
	return infos, nil
}

// Cleanup sweeps expired entries and returns how many were removed.
func (c *TTLCache) Cleanup(ctx context.Context) (int, error) {
	removed, err := c.store.CacheCleanup(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.log.Debug("cache cleanup", map[string]interface{}{"removed": removed})
	}
	return removed, nil
}

// FeederCache caches per-region feeder reference lists with the store's
// fixed 24h window.
type FeederCache struct {
	store *store.Store
}

// NewFeederCache creates a FeederCache over the store.
func NewFeederCache(st *store.Store) *FeederCache {
	return &FeederCache{store: st}
}

// Put replaces the region's snapshot.
func (f *FeederCache) Put(ctx context.Context, regionID, regionName string, feeders []models.FeederInfo) (*models.FeederCacheEntry, error) {
	return f.store.SaveFeederSnapshot(ctx, regionID, regionName, feeders)
}

// Get returns the region's snapshot, or nil when absent or expired.
func (f *FeederCache) Get(ctx context.Context, regionID string) (*models.FeederCacheEntry, error) {
	return f.store.GetFeederSnapshot(ctx, regionID)
}

// PurgeExpired removes expired snapshots across all regions.
func (f *FeederCache) PurgeExpired(ctx context.Context) (int, error) {
	return f.store.PurgeExpiredFeeders(ctx)
}

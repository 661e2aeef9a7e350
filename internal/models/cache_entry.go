// Package models provides data model definitions for the fieldsync core.
package models

import (
	"encoding/json"
	"time"
)

// CacheEntry represents one row of the generic TTL cache table.
// Invariant: ExpiresAt > Timestamp. Validity is checked lazily on read.
type CacheEntry struct {
	Key       string          `db:"key" json:"key"`
	Value     json.RawMessage `db:"value" json:"value"`
	Timestamp int64           `db:"timestamp" json:"timestamp"`
	ExpiresAt int64           `db:"expires_at" json:"expires_at"`
}

// TableName returns the table name for CacheEntry.
func (CacheEntry) TableName() string {
	return "cache"
}

// Valid reports whether the entry has not expired at the given time.
func (c *CacheEntry) Valid(now time.Time) bool {
	return now.UnixMilli() <= c.ExpiresAt
}

// Age returns how long ago the entry was written.
func (c *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(c.Timestamp))
}

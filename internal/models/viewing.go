// Package models provides data model definitions for the fieldsync core.
package models

import (
	"encoding/json"
	"time"
)

// ViewingCacheEntry is a snapshot of a recently viewed record, kept so
// detail views stay readable offline. Same lazy-TTL behavior as the
// generic cache table, keyed separately so sweeps stay independent.
type ViewingCacheEntry struct {
	Key        string          `db:"key" json:"key"`
	RecordType string          `db:"record_type" json:"record_type"`
	RecordID   string          `db:"record_id" json:"record_id"`
	Value      json.RawMessage `db:"value" json:"value"`
	Timestamp  int64           `db:"timestamp" json:"timestamp"`
	ExpiresAt  int64           `db:"expires_at" json:"expires_at"`
}

// TableName returns the table name for ViewingCacheEntry.
func (ViewingCacheEntry) TableName() string {
	return "viewing_cache"
}

// Valid reports whether the entry has not expired at the given time.
func (v *ViewingCacheEntry) Valid(now time.Time) bool {
	return now.UnixMilli() <= v.ExpiresAt
}

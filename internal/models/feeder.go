// Package models provides data model definitions for the fieldsync core.
package models

import "time"

// FeederInfo describes one distribution feeder within a region.
type FeederInfo struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Substation string `json:"substation,omitempty"`
}

// FeederCacheEntry is a snapshot of a region's feeder list, cached for a
// fixed 24 hour window. At most one current entry exists per region.
type FeederCacheEntry struct {
	ID         UUID         `db:"id" json:"id"`
	RegionID   string       `db:"region_id" json:"region_id"`
	RegionName string       `db:"region_name" json:"region_name"`
	Feeders    []FeederInfo `db:"feeders" json:"feeders"`
	Timestamp  int64        `db:"timestamp" json:"timestamp"`
	ExpiresAt  int64        `db:"expires_at" json:"expires_at"`
}

// TableName returns the table name for FeederCacheEntry.
func (FeederCacheEntry) TableName() string {
	return "feeder_cache"
}

// Valid reports whether the snapshot has not expired at the given time.
func (f *FeederCacheEntry) Valid(now time.Time) bool {
	return now.UnixMilli() <= f.ExpiresAt
}

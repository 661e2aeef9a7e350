// Package models provides data model definitions for the fieldsync core.
package models

import "time"

// ConnectivityState is a snapshot of the network condition as seen by the
// connectivity monitor. LastOnline/LastOffline are nil until the
// corresponding transition has happened at least once.
type ConnectivityState struct {
	IsOffline      bool       `json:"is_offline"`
	LastOnline     *time.Time `json:"last_online,omitempty"`
	LastOffline    *time.Time `json:"last_offline,omitempty"`
	ConnectionType string     `json:"connection_type,omitempty"` // wifi, cellular, ethernet, ...
	EffectiveType  string     `json:"effective_type,omitempty"`  // slow-2g, 2g, 3g, 4g
}

// SyncStats summarizes the offline backlog for status displays.
type SyncStats struct {
	PendingInspections int   `json:"pending_inspections"`
	PendingPhotos      int   `json:"pending_photos"`
	TotalOfflineItems  int   `json:"total_offline_items"`
	LastSyncAttempt    int64 `json:"last_sync_attempt,omitempty"` // 0 = never attempted
	SyncQueueCount     int   `json:"sync_queue_count"`
}

// Package models provides data model definitions for the fieldsync core.
package models

import "time"

// SyncTarget identifies the kind of record a queue entry replays.
type SyncTarget string

const (
	SyncTargetInspection SyncTarget = "inspection"
	SyncTargetPhoto      SyncTarget = "photo"
)

// Sync priorities. Lower value drains first.
const (
	PriorityHigh   = 1
	PriorityMedium = 2
	PriorityLow    = 3
)

// SyncQueueEntry represents a pending replay of a local mutation.
// NextAttemptAt schedules retry pacing: an entry is eligible for a drain
// pass only once NextAttemptAt has passed (0 = immediately eligible).
type SyncQueueEntry struct {
	ID            UUID       `db:"id" json:"id"`
	TargetType    SyncTarget `db:"target_type" json:"target_type"`
	TargetID      UUID       `db:"target_id" json:"target_id"`
	Priority      int        `db:"priority" json:"priority"`
	CreatedAt     int64      `db:"created_at" json:"created_at"`
	RetryCount    int        `db:"retry_count" json:"retry_count"`
	MaxRetries    int        `db:"max_retries" json:"max_retries"`
	NextAttemptAt int64      `db:"next_attempt_at" json:"next_attempt_at"`
}

// TableName returns the table name for SyncQueueEntry.
func (SyncQueueEntry) TableName() string {
	return "sync_queue"
}

// Eligible reports whether the entry may be attempted at the given time.
func (e *SyncQueueEntry) Eligible(now time.Time) bool {
	return e.NextAttemptAt <= now.UnixMilli()
}

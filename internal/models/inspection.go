// Package models provides data model definitions for the fieldsync core.
package models

import (
	"encoding/json"
	"time"
)

// SyncStatus represents the replication state of a locally stored record.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// InspectionRecord represents a field inspection captured locally.
// The payload is an opaque document owned by the form layer; only the
// sync bookkeeping fields are interpreted here.
type InspectionRecord struct {
	ID              UUID            `db:"id" json:"id"`
	OriginalID      string          `db:"original_id" json:"original_id,omitempty"` // server id, set once synced
	Payload         json.RawMessage `db:"payload" json:"payload"`
	SyncStatus      SyncStatus      `db:"sync_status" json:"sync_status"`
	CreatedAt       int64           `db:"created_at" json:"created_at"`
	UpdatedAt       int64           `db:"updated_at" json:"updated_at"`
	LastSyncAttempt int64           `db:"last_sync_attempt" json:"last_sync_attempt,omitempty"` // 0 = never attempted
	SyncAttempts    int             `db:"sync_attempts" json:"sync_attempts"`
	ErrorMessage    string          `db:"error_message" json:"error_message,omitempty"`
}

// TableName returns the table name for InspectionRecord.
func (InspectionRecord) TableName() string {
	return "inspections"
}

// CreatedAtTime returns CreatedAt as time.Time.
func (r *InspectionRecord) CreatedAtTime() time.Time {
	return time.UnixMilli(r.CreatedAt)
}

// Touch updates the UpdatedAt timestamp.
func (r *InspectionRecord) Touch() {
	r.UpdatedAt = time.Now().UnixMilli()
}

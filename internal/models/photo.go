// Package models provides data model definitions for the fieldsync core.
package models

import "time"

// PhotoCategory classifies when an inspection photo was taken.
type PhotoCategory string

const (
	PhotoCategoryBefore     PhotoCategory = "before"
	PhotoCategoryAfter      PhotoCategory = "after"
	PhotoCategoryCorrection PhotoCategory = "correction"
)

// PhotoRecord represents an inspection photo captured locally.
// InspectionID is a weak reference: deleting the inspection cascades
// deletion of its photos, but a photo row never blocks inspection writes.
type PhotoRecord struct {
	ID           UUID          `db:"id" json:"id"`
	InspectionID UUID          `db:"inspection_id" json:"inspection_id"`
	Filename     string        `db:"filename" json:"filename"`
	EncodedData  string        `db:"encoded_data" json:"encoded_data"` // base64 image payload
	Category     PhotoCategory `db:"category" json:"category"`
	SyncStatus   SyncStatus    `db:"sync_status" json:"sync_status"`
	CreatedAt    int64         `db:"created_at" json:"created_at"`
	Size         int64         `db:"size" json:"size"` // decoded byte length
	MimeType     string        `db:"mime_type" json:"mime_type"`
}

// TableName returns the table name for PhotoRecord.
func (PhotoRecord) TableName() string {
	return "photos"
}

// CreatedAtTime returns CreatedAt as time.Time.
func (p *PhotoRecord) CreatedAtTime() time.Time {
	return time.UnixMilli(p.CreatedAt)
}

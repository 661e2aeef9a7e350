// Package store provides CRUD operations for inspection records.
package store

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/gridworks/fieldsync/internal/errors"
	"github.com/gridworks/fieldsync/internal/models"
	"github.com/gridworks/fieldsync/internal/uuid"
)

// SaveInspection persists an inspection record. A missing id is generated,
// timestamps are stamped and a missing status defaults to pending.
func (s *Store) SaveInspection(ctx context.Context, rec *models.InspectionRecord) error {
	if err := s.ready(); err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	if rec.ID == "" {
		rec.ID = models.UUID(uuid.New())
		rec.CreatedAt = now
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.SyncStatus == "" {
		rec.SyncStatus = models.SyncStatusPending
	}

	return s.putInspection(ctx, rec)
}

func (s *Store) putInspection(ctx context.Context, rec *models.InspectionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to marshal inspection", err)
	}
	return s.port.Put(ctx, ColInspections, rec.ID.String(), data)
}

// GetInspection retrieves an inspection record by id.
func (s *Store) GetInspection(ctx context.Context, id string) (*models.InspectionRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	data, err := s.port.Get(ctx, ColInspections, id)
	if err != nil {
		return nil, err
	}

	var rec models.InspectionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(errors.ErrStoreCorrupted, "failed to unmarshal inspection", err)
	}
	return &rec, nil
}

// ListInspections returns all inspection records, newest first.
func (s *Store) ListInspections(ctx context.Context) ([]*models.InspectionRecord, error) {
	return s.listInspections(ctx, "")
}

// ListInspectionsByStatus returns inspection records with the given sync
// status, newest first.
func (s *Store) ListInspectionsByStatus(ctx context.Context, status models.SyncStatus) ([]*models.InspectionRecord, error) {
	return s.listInspections(ctx, status)
}

func (s *Store) listInspections(ctx context.Context, status models.SyncStatus) ([]*models.InspectionRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	docs, err := s.port.List(ctx, ColInspections)
	if err != nil {
		return nil, err
	}

	var recs []*models.InspectionRecord
	for _, doc := range docs {
		var rec models.InspectionRecord
		if err := json.Unmarshal(doc.Data, &rec); err != nil {
			return nil, errors.Wrap(errors.ErrStoreCorrupted, "failed to unmarshal inspection", err)
		}
		if status != "" && rec.SyncStatus != status {
			continue
		}
		recs = append(recs, &rec)
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt > recs[j].CreatedAt })
	return recs, nil
}

// DeleteInspection removes the inspection, every photo referencing it and
// every sync queue entry referencing the inspection or one of its photos,
// all in a single transaction.
func (s *Store) DeleteInspection(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}

	photos, err := s.ListPhotosByInspection(ctx, id)
	if err != nil {
		return err
	}
	entries, err := s.ListSyncEntries(ctx)
	if err != nil {
		return err
	}

	targets := map[string]bool{id: true}
	for _, photo := range photos {
		targets[photo.ID.String()] = true
	}

	err = s.port.RunBatch(ctx, func(b Batch) error {
		if err := b.Delete(ColInspections, id); err != nil {
			return err
		}
		for _, photo := range photos {
			if err := b.Delete(ColPhotos, photo.ID.String()); err != nil {
				return err
			}
		}
		for _, entry := range entries {
			if targets[entry.TargetID.String()] {
				if err := b.Delete(ColSyncQueue, entry.ID.String()); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("inspection deleted", map[string]interface{}{
		"inspection_id": id,
		"photos":        len(photos),
	})
	return nil
}

// MarkInspectionSynced marks the record synced (terminal) and attaches the
// server-assigned id when one was returned.
func (s *Store) MarkInspectionSynced(ctx context.Context, id, originalID string) error {
	rec, err := s.GetInspection(ctx, id)
	if err != nil {
		return err
	}

	rec.SyncStatus = models.SyncStatusSynced
	rec.ErrorMessage = ""
	if originalID != "" {
		rec.OriginalID = originalID
	}
	rec.Touch()
	return s.putInspection(ctx, rec)
}

// MarkInspectionFailed marks the record failed (terminal) with the error
// message from the last attempt.
func (s *Store) MarkInspectionFailed(ctx context.Context, id, errorMessage string) error {
	rec, err := s.GetInspection(ctx, id)
	if err != nil {
		return err
	}

	rec.SyncStatus = models.SyncStatusFailed
	rec.ErrorMessage = errorMessage
	rec.Touch()
	return s.putInspection(ctx, rec)
}

// RecordInspectionSyncAttempt increments the attempt counter and stamps
// the attempt time.
func (s *Store) RecordInspectionSyncAttempt(ctx context.Context, id string, at time.Time) error {
	rec, err := s.GetInspection(ctx, id)
	if err != nil {
		return err
	}

	rec.SyncAttempts++
	rec.LastSyncAttempt = at.UnixMilli()
	rec.Touch()
	return s.putInspection(ctx, rec)
}

// Package store provides CRUD operations for photo records.
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

// SavePhoto persists a photo record. A missing id is generated, the
// timestamp stamped and a missing status defaults to pending.
func (s *Store) SavePhoto(ctx context.Context, photo *models.PhotoRecord) error {
	if err := s.ready(); err != nil {
		return err
	}

	if photo.ID == "" {
		photo.ID = models.UUID(uuid.New())
	}
	if photo.CreatedAt == 0 {
		photo.CreatedAt = time.Now().UnixMilli()
	}
	if photo.SyncStatus == "" {
		photo.SyncStatus = models.SyncStatusPending
	}

	return s.putPhoto(ctx, photo)
}

func (s *Store) putPhoto(ctx context.Context, photo *models.PhotoRecord) error {
	data, err := json.Marshal(photo)
	if err != nil {
		return errors.Wrap(errors.ErrInternal, "failed to marshal photo", err)
	}
	return s.port.Put(ctx, ColPhotos, photo.ID.String(), data)
}

// GetPhoto retrieves a photo record by id.
func (s *Store) GetPhoto(ctx context.Context, id string) (*models.PhotoRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	data, err := s.port.Get(ctx, ColPhotos, id)
	if err != nil {
		return nil, err
	}

	var photo models.PhotoRecord
	if err := json.Unmarshal(data, &photo); err != nil {
		return nil, errors.Wrap(errors.ErrStoreCorrupted, "failed to unmarshal photo", err)
	}
	return &photo, nil
}

// ListPhotosByInspection returns the photos referencing an inspection,
// oldest first.
func (s *Store) ListPhotosByInspection(ctx context.Context, inspectionID string) ([]*models.PhotoRecord, error) {
	return s.listPhotos(ctx, func(p *models.PhotoRecord) bool {
		return p.InspectionID.String() == inspectionID
	})
}

// ListPhotosByStatus returns photos with the given sync status, oldest first.
func (s *Store) ListPhotosByStatus(ctx context.Context, status models.SyncStatus) ([]*models.PhotoRecord, error) {
	return s.listPhotos(ctx, func(p *models.PhotoRecord) bool {
		return p.SyncStatus == status
	})
}

func (s *Store) listPhotos(ctx context.Context, match func(*models.PhotoRecord) bool) ([]*models.PhotoRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	docs, err := s.port.List(ctx, ColPhotos)
	if err != nil {
		return nil, err
	}

	var photos []*models.PhotoRecord
	for _, doc := range docs {
		var photo models.PhotoRecord
		if err := json.Unmarshal(doc.Data, &photo); err != nil {
			return nil, errors.Wrap(errors.ErrStoreCorrupted, "failed to unmarshal photo", err)
		}
		if match != nil && !match(&photo) {
			continue
		}
		photos = append(photos, &photo)
	}

	sort.Slice(photos, func(i, j int) bool { return photos[i].CreatedAt < photos[j].CreatedAt })
	return photos, nil
}

// DeletePhoto removes a photo and any sync queue entries referencing it.
func (s *Store) DeletePhoto(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}

	entries, err := s.ListSyncEntries(ctx)
	if err != nil {
		return err
	}

	return s.port.RunBatch(ctx, func(b Batch) error {
		if err := b.Delete(ColPhotos, id); err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.TargetID.String() == id {
				if err := b.Delete(ColSyncQueue, entry.ID.String()); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// MarkPhotoSynced marks the photo synced (terminal).
func (s *Store) MarkPhotoSynced(ctx context.Context, id string) error {
	photo, err := s.GetPhoto(ctx, id)
	if err != nil {
		return err
	}
	photo.SyncStatus = models.SyncStatusSynced
	return s.putPhoto(ctx, photo)
}

// MarkPhotoFailed marks the photo failed (terminal).
func (s *Store) MarkPhotoFailed(ctx context.Context, id string) error {
	photo, err := s.GetPhoto(ctx, id)
	if err != nil {
		return err
	}
	photo.SyncStatus = models.SyncStatusFailed
	return s.putPhoto(ctx, photo)
}

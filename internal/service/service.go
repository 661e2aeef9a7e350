// Package service exposes the consumer contract of the offline core to
// the form and screen layer: saving records, enqueueing sync entries,
// reading backlog stats and the cache passthrough. Instances are
// explicitly constructed and owned by the application context; there are
// no package-level singletons.
package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/gridworks/fieldsync/internal/cache"
	"github.com/gridworks/fieldsync/internal/connectivity"
	"github.com/gridworks/fieldsync/internal/errors"
	"github.com/gridworks/fieldsync/internal/logging"
	"github.com/gridworks/fieldsync/internal/models"
	"github.com/gridworks/fieldsync/internal/store"
	"github.com/gridworks/fieldsync/internal/syncer"
)

// Service is the facade the excluded UI layer talks to.
type Service struct {
	store       *store.Store
	cache       *cache.TTLCache
	monitor     *connectivity.Monitor
	coordinator *syncer.Coordinator
	validate    *validator.Validate
	log         *logging.ComponentLogger
}

// New creates a Service. monitor and coordinator may be nil in read-only
// setups; saves then enqueue without triggering a drain.
func New(st *store.Store, ttl *cache.TTLCache, monitor *connectivity.Monitor, coordinator *syncer.Coordinator) *Service {
	return &Service{
		store:       st,
		cache:       ttl,
		monitor:     monitor,
		coordinator: coordinator,
		validate:    validator.New(),
		log:         logging.ForComponent("service"),
	}
}

type savePhotoRequest struct {
	InspectionID string `validate:"required,uuid4"`
	Data         string `validate:"required,base64"`
	Filename     string `validate:"required"`
	Category     string `validate:"required,oneof=before after correction"`
}

// SaveInspection persists a new pending inspection and enqueues it at
// high priority. When online, a drain is triggered immediately.
func (s *Service) SaveInspection(ctx context.Context, payload json.RawMessage) (string, error) {
	if len(payload) == 0 || !json.Valid(payload) {
		return "", errors.New(errors.ErrValidation, "payload must be a JSON document")
	}

	rec := &models.InspectionRecord{
		Payload:    payload,
		SyncStatus: models.SyncStatusPending,
	}
	if err := s.store.SaveInspection(ctx, rec); err != nil {
		return "", err
	}

	if _, err := s.store.EnqueueSync(ctx, models.SyncTargetInspection, rec.ID.String(), models.PriorityHigh); err != nil {
		return "", err
	}

	s.notifyEnqueued()
	s.log.Info("inspection saved", map[string]interface{}{"inspection_id": rec.ID.String()})
	return rec.ID.String(), nil
}

// SavePhoto persists a new pending photo for an inspection and enqueues
// it at medium priority. The MIME type is sniffed from the decoded bytes
// when the caller does not supply one.
func (s *Service) SavePhoto(ctx context.Context, inspectionID, data, filename, category, mimeType string) (string, error) {
	req := savePhotoRequest{
		InspectionID: inspectionID,
		Data:         data,
		Filename:     filename,
		Category:     category,
	}
	if err := s.validate.Struct(&req); err != nil {
		return "", errors.Wrap(errors.ErrValidation, "invalid photo request", err)
	}

	if _, err := s.store.GetInspection(ctx, inspectionID); err != nil {
		return "", err
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", errors.Wrap(errors.ErrValidation, "photo data is not valid base64", err)
	}
	if mimeType == "" {
		mimeType = mimetype.Detect(decoded).String()
	}

	photo := &models.PhotoRecord{
		InspectionID: models.UUID(inspectionID),
		Filename:     filename,
		EncodedData:  data,
		Category:     models.PhotoCategory(category),
		SyncStatus:   models.SyncStatusPending,
		Size:         int64(len(decoded)),
		MimeType:     mimeType,
	}
	if err := s.store.SavePhoto(ctx, photo); err != nil {
		return "", err
	}

	if _, err := s.store.EnqueueSync(ctx, models.SyncTargetPhoto, photo.ID.String(), models.PriorityMedium); err != nil {
		return "", err
	}

	s.notifyEnqueued()
	s.log.Info("photo saved", map[string]interface{}{
		"photo_id":      photo.ID.String(),
		"inspection_id": inspectionID,
		"size":          photo.Size,
		"mime_type":     mimeType,
	})
	return photo.ID.String(), nil
}

// Enqueue adds a sync entry for an existing record at the given priority.
func (s *Service) Enqueue(ctx context.Context, targetType models.SyncTarget, targetID string, priority int) (string, error) {
	switch targetType {
	case models.SyncTargetInspection:
		if _, err := s.store.GetInspection(ctx, targetID); err != nil {
			return "", err
		}
	case models.SyncTargetPhoto:
		if _, err := s.store.GetPhoto(ctx, targetID); err != nil {
			return "", err
		}
	default:
		return "", errors.New(errors.ErrValidation, "target type must be inspection or photo")
	}

	entry, err := s.store.EnqueueSync(ctx, targetType, targetID, priority)
	if err != nil {
		return "", err
	}

	s.notifyEnqueued()
	return entry.ID.String(), nil
}

// DeleteInspection removes an inspection, its photos and every queue
// entry referencing any of them.
func (s *Service) DeleteInspection(ctx context.Context, id string) error {
	return s.store.DeleteInspection(ctx, id)
}

// GetSyncStats summarizes the offline backlog.
func (s *Service) GetSyncStats(ctx context.Context) (models.SyncStats, error) {
	var stats models.SyncStats

	pendingInspections, err := s.store.ListInspectionsByStatus(ctx, models.SyncStatusPending)
	if err != nil {
		return stats, err
	}
	pendingPhotos, err := s.store.ListPhotosByStatus(ctx, models.SyncStatusPending)
	if err != nil {
		return stats, err
	}
	queueCount, err := s.store.SyncQueueCount(ctx)
	if err != nil {
		return stats, err
	}

	stats.PendingInspections = len(pendingInspections)
	stats.PendingPhotos = len(pendingPhotos)
	stats.TotalOfflineItems = stats.PendingInspections + stats.PendingPhotos
	stats.SyncQueueCount = queueCount

	all, err := s.store.ListInspections(ctx)
	if err != nil {
		return stats, err
	}
	for _, rec := range all {
		if rec.LastSyncAttempt > stats.LastSyncAttempt {
			stats.LastSyncAttempt = rec.LastSyncAttempt
		}
	}
	return stats, nil
}

// CacheSet stores a reference value with the given lifetime.
func (s *Service) CacheSet(ctx context.Context, key string, value interface{}, maxAge time.Duration) error {
	return s.cache.Set(ctx, key, value, maxAge)
}

// CacheGet loads a cached reference value into dest; false on miss/expiry.
func (s *Service) CacheGet(ctx context.Context, key string, dest interface{}) (bool, error) {
	return s.cache.Get(ctx, key, dest)
}

// CacheDelete removes one cached value.
func (s *Service) CacheDelete(ctx context.Context, key string) error {
	return s.cache.Delete(ctx, key)
}

// CacheClear removes every cached value.
func (s *Service) CacheClear(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// MarkViewed snapshots a record for offline detail views.
func (s *Service) MarkViewed(ctx context.Context, recordType, recordID string, value json.RawMessage) error {
	return s.store.SaveViewed(ctx, recordType, recordID, value)
}

// GetViewed returns a viewed-record snapshot, or nil when absent/expired.
func (s *Service) GetViewed(ctx context.Context, recordType, recordID string) (*models.ViewingCacheEntry, error) {
	return s.store.GetViewed(ctx, recordType, recordID)
}

func (s *Service) notifyEnqueued() {
	if s.coordinator == nil {
		return
	}
	var offline func() bool
	if s.monitor != nil {
		offline = s.monitor.IsOffline
	}
	s.coordinator.NotifyEnqueued(offline)
}

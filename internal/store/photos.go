package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PhotoStore persists trip photo metadata.
type PhotoStore struct {
	db *gorm.DB
}

// NewPhotoStore constructs a PhotoStore.
func NewPhotoStore(db *gorm.DB) *PhotoStore {
	return &PhotoStore{db: db}
}

// visibleScope restricts a query to confirmed, undeleted photos.
func visibleScope(q *gorm.DB) *gorm.DB {
	return q.Where("is_valid = ? AND deleted_at IS NULL", true)
}

// Create inserts photo. New photos are invalid until their upload is confirmed.
func (s *PhotoStore) Create(ctx context.Context, photo *models.TripPhoto) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("photo store: not initialized")
	}
	if photo.UUID == "" {
		photo.UUID = uuid.NewString()
	}
	if photo.Type == "" {
		photo.Type = models.PhotoRegular
	}
	if errCreate := s.db.WithContext(ctx).Omit(clause.Associations).Create(photo).Error; errCreate != nil {
		return fmt.Errorf("photo store: create: %w", errCreate)
	}
	return nil
}

// Get loads a photo by primary key, including invalid and deleted photos.
func (s *PhotoStore) Get(ctx context.Context, id uint64) (*models.TripPhoto, error) {
	return s.first(ctx, "id = ?", id)
}

// ByUUID loads a photo by public identifier, including invalid and deleted photos.
func (s *PhotoStore) ByUUID(ctx context.Context, id string) (*models.TripPhoto, error) {
	if _, errParse := uuid.Parse(strings.TrimSpace(id)); errParse != nil {
		return nil, apperr.NotFound("photo")
	}
	return s.first(ctx, "uuid = ?", strings.TrimSpace(id))
}

// ByKey loads a photo by its object storage key.
func (s *PhotoStore) ByKey(ctx context.Context, key string) (*models.TripPhoto, error) {
	return s.first(ctx, "key = ?", key)
}

func (s *PhotoStore) first(ctx context.Context, query string, args ...any) (*models.TripPhoto, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("photo store: not initialized")
	}
	var photo models.TripPhoto
	if errFind := s.db.WithContext(ctx).Where(query, args...).First(&photo).Error; errFind != nil {
		if db.IsNotFound(errFind) {
			return nil, apperr.NotFound("photo")
		}
		return nil, fmt.Errorf("photo store: find: %w", errFind)
	}
	return &photo, nil
}

// ValidForTrip returns the trip's visible regular photos, oldest taken first.
func (s *PhotoStore) ValidForTrip(ctx context.Context, tripID uint64) ([]models.TripPhoto, error) {
	var rows []models.TripPhoto
	errFind := visibleScope(s.db.WithContext(ctx)).
		Where("trip_id = ? AND type = ?", tripID, models.PhotoRegular).
		Order("taken IS NULL").Order("taken ASC").Order("created_at ASC").
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("photo store: valid for trip: %w", errFind)
	}
	return rows, nil
}

// ValidForUser returns the user's visible regular photos, newest first.
func (s *PhotoStore) ValidForUser(ctx context.Context, userID uint64) ([]models.TripPhoto, error) {
	var rows []models.TripPhoto
	errFind := visibleScope(s.db.WithContext(ctx)).
		Where("user_id = ? AND type = ?", userID, models.PhotoRegular).
		Order("created_at DESC").Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("photo store: valid for user: %w", errFind)
	}
	return rows, nil
}

// Invalid returns photos whose uploads were never confirmed.
func (s *PhotoStore) Invalid(ctx context.Context) ([]models.TripPhoto, error) {
	var rows []models.TripPhoto
	if errFind := s.db.WithContext(ctx).Where("is_valid = ?", false).Order("id ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("photo store: invalid: %w", errFind)
	}
	return rows, nil
}

// Deleted returns soft deleted photos.
func (s *PhotoStore) Deleted(ctx context.Context) ([]models.TripPhoto, error) {
	var rows []models.TripPhoto
	if errFind := s.db.WithContext(ctx).Where("deleted_at IS NOT NULL").Order("id ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("photo store: deleted: %w", errFind)
	}
	return rows, nil
}

// CountValid returns the number of visible regular photos per trip.
func (s *PhotoStore) CountValid(ctx context.Context, tripIDs []uint64) (map[uint64]int, error) {
	out := make(map[uint64]int, len(tripIDs))
	if len(tripIDs) == 0 {
		return out, nil
	}
	type row struct {
		TripID uint64
		Count  int
	}
	var rows []row
	errFind := visibleScope(s.db.WithContext(ctx).Model(&models.TripPhoto{})).
		Select("trip_id, COUNT(*) AS count").
		Where("trip_id IN ? AND type = ?", tripIDs, models.PhotoRegular).
		Group("trip_id").Scan(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("photo store: count valid: %w", errFind)
	}
	for _, r := range rows {
		out[r.TripID] = r.Count
	}
	return out, nil
}

// MarkValid records the confirmed upload's metadata and flips is_valid.
func (s *PhotoStore) MarkValid(ctx context.Context, photo *models.TripPhoto, taken *time.Time, size int64) error {
	photo.IsValid = true
	photo.Taken = taken
	photo.Filesize = &size
	errUpdate := s.db.WithContext(ctx).Model(photo).Select("is_valid", "taken", "filesize", "updated_at").Updates(photo).Error
	if errUpdate != nil {
		return fmt.Errorf("photo store: mark valid: %w", errUpdate)
	}
	return nil
}

// UpdateCaption replaces the photo caption.
func (s *PhotoStore) UpdateCaption(ctx context.Context, photo *models.TripPhoto, caption string) error {
	photo.Caption = caption
	if errUpdate := s.db.WithContext(ctx).Model(photo).Update("caption", caption).Error; errUpdate != nil {
		return fmt.Errorf("photo store: update caption: %w", errUpdate)
	}
	return nil
}

// SoftDelete sets deleted_at on a photo.
func (s *PhotoStore) SoftDelete(ctx context.Context, photoID uint64, now time.Time) error {
	errUpdate := s.db.WithContext(ctx).Model(&models.TripPhoto{}).
		Where("id = ? AND deleted_at IS NULL", photoID).
		Update("deleted_at", now.UTC()).Error
	if errUpdate != nil {
		return fmt.Errorf("photo store: soft delete: %w", errUpdate)
	}
	return nil
}

// SoftDeleteAllForTrip soft deletes every photo of a trip and returns the count.
func (s *PhotoStore) SoftDeleteAllForTrip(ctx context.Context, tripID uint64, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.TripPhoto{}).
		Where("trip_id = ? AND deleted_at IS NULL", tripID).
		Update("deleted_at", now.UTC())
	if res.Error != nil {
		return 0, fmt.Errorf("photo store: soft delete all: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteInvalidBefore hard deletes unconfirmed photos added before cutoff.
func (s *PhotoStore) DeleteInvalidBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("is_valid = ? AND created_at < ?", false, cutoff.UTC()).Delete(&models.TripPhoto{})
	if res.Error != nil {
		return 0, fmt.Errorf("photo store: delete invalid: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// MarkOrphansDeleted soft deletes photos whose trip or owner no longer exists.
func (s *PhotoStore) MarkOrphansDeleted(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.TripPhoto{}).
		Where("deleted_at IS NULL AND (trip_id IS NULL OR user_id IS NULL)").
		Update("deleted_at", now.UTC())
	if res.Error != nil {
		return 0, fmt.Errorf("photo store: mark orphans: %w", res.Error)
	}
	return res.RowsAffected, nil
}

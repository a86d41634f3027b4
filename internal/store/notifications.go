package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/metrics"
	"github.com/cavelog/cavelog/internal/models"
	"gorm.io/gorm"
)

// notificationMessageMax bounds free text notifications.
const notificationMessageMax = 255

// NotificationStore persists in-app notifications.
type NotificationStore struct {
	db *gorm.DB
}

// NewNotificationStore constructs a NotificationStore.
func NewNotificationStore(db *gorm.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Notify creates a free text notification for userID.
func (s *NotificationStore) Notify(ctx context.Context, userID uint64, message, url string) (*models.Notification, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("notification store: not initialized")
	}
	message = strings.TrimSpace(message)
	if message == "" || strings.TrimSpace(url) == "" {
		return nil, apperr.Validation("Free text notifications must have both a message and a URL.")
	}
	if len(message) > notificationMessageMax {
		message = message[:notificationMessageMax]
	}
	n := &models.Notification{UserID: userID, Type: models.NotificationFreeText, Message: message, URL: url}
	if errCreate := s.db.WithContext(ctx).Create(n).Error; errCreate != nil {
		return nil, fmt.Errorf("notification store: notify: %w", errCreate)
	}
	return n, nil
}

// NotifyAll sends the same free text notification to every user and returns
// how many were created.
func (s *NotificationStore) NotifyAll(ctx context.Context, message, url string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("notification store: not initialized")
	}
	if strings.TrimSpace(message) == "" || strings.TrimSpace(url) == "" {
		return 0, apperr.Validation("Free text notifications must have both a message and a URL.")
	}
	defer metrics.TrackDBOperation("notify_all", time.Now())

	var ids []uint64
	if errFind := s.db.WithContext(ctx).Model(&models.User{}).Order("id ASC").Pluck("id", &ids).Error; errFind != nil {
		return 0, fmt.Errorf("notification store: notify all: %w", errFind)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	rows := make([]models.Notification, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, models.Notification{UserID: id, Type: models.NotificationFreeText, Message: message, URL: url})
	}
	if errCreate := s.db.WithContext(ctx).CreateInBatches(&rows, 500).Error; errCreate != nil {
		return 0, fmt.Errorf("notification store: notify all: %w", errCreate)
	}
	return len(rows), nil
}

// TouchTripNotification creates or re-marks unread the trip notification of
// type kind for userID.
func (s *NotificationStore) TouchTripNotification(ctx context.Context, userID, tripID uint64, kind models.NotificationType) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n models.Notification
		errFind := tx.Where("user_id = ? AND trip_id = ? AND type = ?", userID, tripID, kind).First(&n).Error
		switch {
		case errFind == nil:
			return tx.Model(&n).Updates(map[string]any{"read": false, "updated_at": time.Now().UTC()}).Error
		case db.IsNotFound(errFind):
			id := tripID
			return tx.Create(&models.Notification{UserID: userID, TripID: &id, Type: kind}).Error
		default:
			return fmt.Errorf("notification store: touch trip notification: %w", errFind)
		}
	})
}

// DeleteTripNotification removes userID's trip notification of type kind.
func (s *NotificationStore) DeleteTripNotification(ctx context.Context, userID, tripID uint64, kind models.NotificationType) error {
	return s.db.WithContext(ctx).Where("user_id = ? AND trip_id = ? AND type = ?", userID, tripID, kind).
		Delete(&models.Notification{}).Error
}

// Get loads one of userID's notifications.
func (s *NotificationStore) Get(ctx context.Context, userID, id uint64) (*models.Notification, error) {
	var n models.Notification
	if errFind := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error; errFind != nil {
		if db.IsNotFound(errFind) {
			return nil, apperr.NotFound("notification")
		}
		return nil, fmt.Errorf("notification store: get: %w", errFind)
	}
	return &n, nil
}

// List returns userID's most recently updated notifications.
func (s *NotificationStore) List(ctx context.Context, userID uint64, limit int) ([]models.Notification, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("updated_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.Notification
	if errFind := q.Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("notification store: list: %w", errFind)
	}
	return rows, nil
}

// UnreadCount returns how many of userID's notifications are unread.
func (s *NotificationStore) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	if errCount := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).Count(&count).Error; errCount != nil {
		return 0, fmt.Errorf("notification store: unread: %w", errCount)
	}
	return count, nil
}

// MarkRead marks one notification read.
func (s *NotificationStore) MarkRead(ctx context.Context, userID, id uint64) error {
	return s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).UpdateColumn("read", true).Error
}

// MarkAllRead marks every notification of userID read.
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID uint64) error {
	return s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).UpdateColumn("read", true).Error
}

// MarkReadForPath marks read the free text notifications whose URL is path,
// and trip notifications for tripID when it is non-zero.
func (s *NotificationStore) MarkReadForPath(ctx context.Context, userID uint64, path string, tripID uint64) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ? AND read = ?", userID, false)
	if tripID > 0 {
		q = q.Where("(type = ? AND url = ?) OR (type <> ? AND trip_id = ?)",
			models.NotificationFreeText, path, models.NotificationFreeText, tripID)
	} else {
		q = q.Where("type = ? AND url = ?", models.NotificationFreeText, path)
	}
	res := q.UpdateColumn("read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("notification store: mark read for path: %w", res.Error)
	}
	return res.RowsAffected, nil
}

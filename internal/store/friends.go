package store

import (
	"context"
	"fmt"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/models"
	"gorm.io/gorm"
)

// FriendRequestStore persists pending friend requests.
type FriendRequestStore struct {
	db *gorm.DB
}

// NewFriendRequestStore constructs a FriendRequestStore.
func NewFriendRequestStore(db *gorm.DB) *FriendRequestStore {
	return &FriendRequestStore{db: db}
}

// Create inserts a request from fromID to toID.
func (s *FriendRequestStore) Create(ctx context.Context, fromID, toID uint64) (*models.FriendRequest, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("friend request store: not initialized")
	}
	req := &models.FriendRequest{FromUserID: fromID, ToUserID: toID}
	if errCreate := s.db.WithContext(ctx).Omit("FromUser", "ToUser").Create(req).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return nil, apperr.Conflict("user", "A friend request already exists for this user.", errCreate)
		}
		return nil, fmt.Errorf("friend request store: create: %w", errCreate)
	}
	return req, nil
}

// Between returns a request between a and b in either direction, or nil.
func (s *FriendRequestStore) Between(ctx context.Context, a, b uint64) (*models.FriendRequest, error) {
	var req models.FriendRequest
	errFind := s.db.WithContext(ctx).
		Where("(from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)", a, b, b, a).
		First(&req).Error
	if errFind != nil {
		if db.IsNotFound(errFind) {
			return nil, nil
		}
		return nil, fmt.Errorf("friend request store: between: %w", errFind)
	}
	return &req, nil
}

// Get loads a request with both users.
func (s *FriendRequestStore) Get(ctx context.Context, id uint64) (*models.FriendRequest, error) {
	var req models.FriendRequest
	if errFind := s.db.WithContext(ctx).Preload("FromUser").Preload("ToUser").First(&req, id).Error; errFind != nil {
		if db.IsNotFound(errFind) {
			return nil, apperr.NotFound("friend request")
		}
		return nil, fmt.Errorf("friend request store: get: %w", errFind)
	}
	return &req, nil
}

// Incoming returns requests sent to userID, newest first.
func (s *FriendRequestStore) Incoming(ctx context.Context, userID uint64) ([]models.FriendRequest, error) {
	return s.list(ctx, "to_user_id = ?", userID)
}

// Outgoing returns requests sent by userID, newest first.
func (s *FriendRequestStore) Outgoing(ctx context.Context, userID uint64) ([]models.FriendRequest, error) {
	return s.list(ctx, "from_user_id = ?", userID)
}

func (s *FriendRequestStore) list(ctx context.Context, query string, userID uint64) ([]models.FriendRequest, error) {
	var rows []models.FriendRequest
	errFind := s.db.WithContext(ctx).Preload("FromUser").Preload("ToUser").
		Where(query, userID).Order("created_at DESC").Order("id DESC").Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("friend request store: list: %w", errFind)
	}
	return rows, nil
}

// Delete removes a request.
func (s *FriendRequestStore) Delete(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Delete(&models.FriendRequest{}, id).Error
}

// AcceptTx writes both friendship directions and removes the request inside tx.
func AcceptTx(tx *gorm.DB, req *models.FriendRequest) error {
	if errAdd := AddFriendshipTx(tx, req.FromUserID, req.ToUserID); errAdd != nil {
		return errAdd
	}
	res := tx.Delete(&models.FriendRequest{}, req.ID)
	if res.Error != nil {
		return fmt.Errorf("accept friend request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("friend request")
	}
	return nil
}

package store

import (
	"context"
	"fmt"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/models"
	"gorm.io/gorm"
)

// CommentStore persists trip and news comments.
type CommentStore struct {
	db *gorm.DB
}

// NewCommentStore constructs a CommentStore.
func NewCommentStore(db *gorm.DB) *CommentStore {
	return &CommentStore{db: db}
}

// Create inserts a trip comment.
func (s *CommentStore) Create(ctx context.Context, c *models.Comment) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("comment store: not initialized")
	}
	if errCreate := s.db.WithContext(ctx).Omit("Author").Create(c).Error; errCreate != nil {
		return fmt.Errorf("comment store: create: %w", errCreate)
	}
	return nil
}

// CreateNews inserts a news comment.
func (s *CommentStore) CreateNews(ctx context.Context, c *models.NewsComment) error {
	if errCreate := s.db.WithContext(ctx).Create(c).Error; errCreate != nil {
		return fmt.Errorf("comment store: create news: %w", errCreate)
	}
	return nil
}

// Get loads a trip comment.
func (s *CommentStore) Get(ctx context.Context, id uint64) (*models.Comment, error) {
	var c models.Comment
	if errFind := s.db.WithContext(ctx).Preload("Author").First(&c, id).Error; errFind != nil {
		if db.IsNotFound(errFind) {
			return nil, apperr.NotFound("comment")
		}
		return nil, fmt.Errorf("comment store: get: %w", errFind)
	}
	return &c, nil
}

// ForTrip returns a trip's comments oldest first with authors loaded.
func (s *CommentStore) ForTrip(ctx context.Context, tripID uint64) ([]models.Comment, error) {
	var rows []models.Comment
	errFind := s.db.WithContext(ctx).Preload("Author").Where("trip_id = ?", tripID).
		Order("created_at ASC").Order("id ASC").Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("comment store: for trip: %w", errFind)
	}
	return rows, nil
}

// ForNews returns a news item's comments oldest first.
func (s *CommentStore) ForNews(ctx context.Context, newsID uint64) ([]models.NewsComment, error) {
	var rows []models.NewsComment
	if errFind := s.db.WithContext(ctx).Where("news_id = ?", newsID).Order("created_at ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("comment store: for news: %w", errFind)
	}
	return rows, nil
}

// Delete removes a trip comment.
func (s *CommentStore) Delete(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Delete(&models.Comment{}, id).Error
}

// CommentersFor returns the distinct authors of a trip's comments in
// comment order, excluding excludeID.
func (s *CommentStore) CommentersFor(ctx context.Context, tripID, excludeID uint64) ([]*models.User, error) {
	comments, errComments := s.ForTrip(ctx, tripID)
	if errComments != nil {
		return nil, errComments
	}
	seen := make(map[uint64]struct{})
	var out []*models.User
	for i := range comments {
		author := comments[i].Author
		if author == nil || author.ID == excludeID {
			continue
		}
		if _, dup := seen[author.ID]; dup {
			continue
		}
		seen[author.ID] = struct{}{}
		out = append(out, author)
	}
	return out, nil
}

// GetNews loads a published news item.
func (s *CommentStore) GetNews(ctx context.Context, id uint64) (*models.News, error) {
	var n models.News
	if errFind := s.db.WithContext(ctx).Where("is_published = ?", true).First(&n, id).Error; errFind != nil {
		if db.IsNotFound(errFind) {
			return nil, apperr.NotFound("news")
		}
		return nil, fmt.Errorf("comment store: get news: %w", errFind)
	}
	return &n, nil
}

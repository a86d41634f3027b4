package store

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CaverStore persists each user's roster of cavers.
type CaverStore struct {
	db    *gorm.DB
	users *UserStore
}

// NewCaverStore constructs a CaverStore.
func NewCaverStore(db *gorm.DB) *CaverStore {
	return &CaverStore{db: db, users: NewUserStore(db)}
}

// CleanCaverName trims name and enforces the length limit.
func CleanCaverName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.FieldError("name", "This field is required.")
	}
	if utf8.RuneCountInString(name) > models.CaverNameMaxLength {
		return "", apperr.FieldError("name", fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", models.CaverNameMaxLength, utf8.RuneCountInString(name)))
	}
	return name, nil
}

// Create adds a caver to ownerID's roster. A linked account is kept only
// when that user is one of the owner's friends.
func (s *CaverStore) Create(ctx context.Context, ownerID uint64, name string, linkedUserID *uint64) (*models.Caver, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("caver store: not initialized")
	}
	clean, errName := CleanCaverName(name)
	if errName != nil {
		return nil, errName
	}
	linked, errLinked := s.checkLink(ctx, ownerID, linkedUserID)
	if errLinked != nil {
		return nil, errLinked
	}
	caver := &models.Caver{UUID: uuid.NewString(), UserID: ownerID, Name: clean, LinkedUserID: linked}
	if errCreate := s.db.WithContext(ctx).Omit(clause.Associations).Create(caver).Error; errCreate != nil {
		return nil, fmt.Errorf("caver store: create: %w", errCreate)
	}
	return caver, nil
}

func (s *CaverStore) checkLink(ctx context.Context, ownerID uint64, linkedUserID *uint64) (*uint64, error) {
	if linkedUserID == nil {
		return nil, nil
	}
	friends, errFriends := s.users.AreFriends(ctx, ownerID, *linkedUserID)
	if errFriends != nil {
		return nil, errFriends
	}
	if !friends {
		return nil, nil
	}
	id := *linkedUserID
	return &id, nil
}

// Update renames a caver and replaces its linked account.
func (s *CaverStore) Update(ctx context.Context, caver *models.Caver, name string, linkedUserID *uint64) error {
	clean, errName := CleanCaverName(name)
	if errName != nil {
		return errName
	}
	linked, errLinked := s.checkLink(ctx, caver.UserID, linkedUserID)
	if errLinked != nil {
		return errLinked
	}
	caver.Name = clean
	caver.LinkedUserID = linked
	if errSave := s.db.WithContext(ctx).Omit(clause.Associations).Save(caver).Error; errSave != nil {
		return fmt.Errorf("caver store: update: %w", errSave)
	}
	return nil
}

// Get loads a caver by primary key.
func (s *CaverStore) Get(ctx context.Context, id uint64) (*models.Caver, error) {
	return s.first(ctx, "id = ?", id)
}

// ByUUID loads a caver by public identifier.
func (s *CaverStore) ByUUID(ctx context.Context, id string) (*models.Caver, error) {
	return s.first(ctx, "uuid = ?", strings.TrimSpace(id))
}

func (s *CaverStore) first(ctx context.Context, query string, args ...any) (*models.Caver, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("caver store: not initialized")
	}
	var caver models.Caver
	if errFind := s.db.WithContext(ctx).Where(query, args...).First(&caver).Error; errFind != nil {
		if db.IsNotFound(errFind) {
			return nil, apperr.NotFound("caver")
		}
		return nil, fmt.Errorf("caver store: find: %w", errFind)
	}
	return &caver, nil
}

// List returns ownerID's roster ordered by name.
func (s *CaverStore) List(ctx context.Context, ownerID uint64) ([]models.Caver, error) {
	var rows []models.Caver
	if errFind := s.db.WithContext(ctx).Where("user_id = ?", ownerID).Order("name ASC").Order("id ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("caver store: list: %w", errFind)
	}
	return rows, nil
}

// GetOrCreateByName returns the roster entry named name, matched
// case-insensitively, creating it when missing.
func (s *CaverStore) GetOrCreateByName(ctx context.Context, ownerID uint64, name string) (*models.Caver, error) {
	clean, errName := CleanCaverName(name)
	if errName != nil {
		return nil, errName
	}
	var caver models.Caver
	errFind := s.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Where(db.CaseInsensitiveEqualExpr("name"), clean).
		Order("id ASC").First(&caver).Error
	if errFind == nil {
		return &caver, nil
	}
	if !db.IsNotFound(errFind) {
		return nil, fmt.Errorf("caver store: find by name: %w", errFind)
	}
	return s.Create(ctx, ownerID, clean, nil)
}

// ResolveNames maps a comma separated list of names onto roster IDs,
// creating missing entries.
func (s *CaverStore) ResolveNames(ctx context.Context, ownerID uint64, names []string) ([]uint64, error) {
	var ids []uint64
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		caver, errCaver := s.GetOrCreateByName(ctx, ownerID, name)
		if errCaver != nil {
			return nil, errCaver
		}
		ids = append(ids, caver.ID)
	}
	return ids, nil
}

// Merge moves every trip link from mergeID onto keepID and removes mergeID.
// Both cavers must belong to ownerID.
func (s *CaverStore) Merge(ctx context.Context, ownerID, keepID, mergeID uint64) error {
	if keepID == mergeID {
		return apperr.Validation("You cannot merge a caver with itself.")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if errCount := tx.Model(&models.Caver{}).Where("user_id = ? AND id IN ?", ownerID, []uint64{keepID, mergeID}).Count(&count).Error; errCount != nil {
			return fmt.Errorf("caver store: merge: %w", errCount)
		}
		if count != 2 {
			return apperr.NotFound("caver")
		}
		var tripIDs []uint64
		if errTrips := tx.Model(&models.TripCaver{}).Where("caver_id = ?", mergeID).Pluck("trip_id", &tripIDs).Error; errTrips != nil {
			return fmt.Errorf("caver store: merge: %w", errTrips)
		}
		if len(tripIDs) > 0 {
			links := make([]models.TripCaver, 0, len(tripIDs))
			for _, tripID := range tripIDs {
				links = append(links, models.TripCaver{TripID: tripID, CaverID: keepID})
			}
			if errLinks := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error; errLinks != nil {
				return fmt.Errorf("caver store: merge links: %w", errLinks)
			}
		}
		if errDelete := tx.Where("caver_id = ?", mergeID).Delete(&models.TripCaver{}).Error; errDelete != nil {
			return fmt.Errorf("caver store: merge: %w", errDelete)
		}
		if errDelete := tx.Delete(&models.Caver{}, mergeID).Error; errDelete != nil {
			return fmt.Errorf("caver store: merge: %w", errDelete)
		}
		return nil
	})
}

// Delete removes a caver and its trip links.
func (s *CaverStore) Delete(ctx context.Context, caverID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errLinks := tx.Where("caver_id = ?", caverID).Delete(&models.TripCaver{}).Error; errLinks != nil {
			return fmt.Errorf("caver store: delete links: %w", errLinks)
		}
		if errDelete := tx.Delete(&models.Caver{}, caverID).Error; errDelete != nil {
			return fmt.Errorf("caver store: delete: %w", errDelete)
		}
		return nil
	})
}

// TripCount returns how many trips each of ownerID's cavers appears on.
func (s *CaverStore) TripCount(ctx context.Context, ownerID uint64) (map[uint64]int, error) {
	type row struct {
		CaverID uint64
		Count   int
	}
	var rows []row
	errFind := s.db.WithContext(ctx).Table("trip_cavers").
		Select("trip_cavers.caver_id AS caver_id, COUNT(*) AS count").
		Joins("JOIN cavers ON cavers.id = trip_cavers.caver_id").
		Where("cavers.user_id = ?", ownerID).
		Group("trip_cavers.caver_id").Scan(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("caver store: trip count: %w", errFind)
	}
	out := make(map[uint64]int, len(rows))
	for _, r := range rows {
		out[r.CaverID] = r.Count
	}
	return out, nil
}

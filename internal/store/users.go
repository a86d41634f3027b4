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
	"github.com/cavelog/cavelog/internal/visibility"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InactiveUserTTL is how long an unverified account survives before pruning.
const InactiveUserTTL = 24 * time.Hour

// UserStore persists users and the friendship graph.
type UserStore struct {
	db *gorm.DB
}

// NewUserStore constructs a UserStore.
func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// Create inserts user with a bcrypt hash of password. The handle and email
// are normalized before storage.
func (s *UserStore) Create(ctx context.Context, user *models.User, password string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("user store: not initialized")
	}
	defer metrics.TrackDBOperation("user_create", time.Now())

	user.Username = models.NormalizeUsername(user.Username)
	user.Email = strings.TrimSpace(user.Email)
	if user.UUID == "" {
		user.UUID = uuid.NewString()
	}
	if password != "" {
		hash, errHash := HashPassword(password)
		if errHash != nil {
			return fmt.Errorf("user store: create: %w", errHash)
		}
		user.Password = hash
	}
	if errCheck := s.checkUnique(ctx, user); errCheck != nil {
		return errCheck
	}
	if errCreate := s.db.WithContext(ctx).Omit(clause.Associations).Create(user).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return apperr.Conflict("username", "A user with that username or email already exists.", errCreate)
		}
		return fmt.Errorf("user store: create: %w", errCreate)
	}
	return nil
}

func (s *UserStore) checkUnique(ctx context.Context, user *models.User) error {
	var count int64
	if errCount := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ? AND id <> ?", user.Username, user.ID).Count(&count).Error; errCount != nil {
		return fmt.Errorf("user store: check username: %w", errCount)
	}
	if count > 0 {
		return apperr.Conflict("username", "A user with that username already exists.", nil)
	}
	if errCount := s.db.WithContext(ctx).Model(&models.User{}).
		Where("LOWER(email) = LOWER(?) AND id <> ?", user.Email, user.ID).Count(&count).Error; errCount != nil {
		return fmt.Errorf("user store: check email: %w", errCount)
	}
	if count > 0 {
		return apperr.Conflict("email", "A user with that email address already exists.", nil)
	}
	return nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the user's hash.
func CheckPassword(user *models.User, password string) bool {
	if user == nil || user.Password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil
}

// Get loads a user by primary key.
func (s *UserStore) Get(ctx context.Context, id uint64) (*models.User, error) {
	return s.first(ctx, "id = ?", id)
}

// ByUUID loads a user by public identifier.
func (s *UserStore) ByUUID(ctx context.Context, id string) (*models.User, error) {
	return s.first(ctx, "uuid = ?", strings.TrimSpace(id))
}

// ByUsername loads a user by handle, case-insensitively.
func (s *UserStore) ByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.first(ctx, "username = ?", models.NormalizeUsername(username))
}

// ByEmail loads a user by email address, case-insensitively.
func (s *UserStore) ByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.first(ctx, db.CaseInsensitiveEqualExpr("email"), strings.TrimSpace(email))
}

// ByIdentifier loads a user by handle, then by email.
func (s *UserStore) ByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	user, errUser := s.ByUsername(ctx, identifier)
	if errUser == nil {
		return user, nil
	}
	if !apperr.Is(errUser, apperr.KindNotFound) {
		return nil, errUser
	}
	return s.ByEmail(ctx, identifier)
}

func (s *UserStore) first(ctx context.Context, query string, args ...any) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("user store: not initialized")
	}
	var user models.User
	if errFind := s.db.WithContext(ctx).Where(query, args...).First(&user).Error; errFind != nil {
		if db.IsNotFound(errFind) {
			return nil, apperr.NotFound("user")
		}
		return nil, fmt.Errorf("user store: find: %w", errFind)
	}
	return &user, nil
}

// ListByIDs loads users keyed by ID.
func (s *UserStore) ListByIDs(ctx context.Context, ids []uint64) (map[uint64]*models.User, error) {
	out := make(map[uint64]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.User
	if errFind := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("user store: list: %w", errFind)
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

// All returns every user ordered by ID.
func (s *UserStore) All(ctx context.Context) ([]models.User, error) {
	var rows []models.User
	if errFind := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("user store: all: %w", errFind)
	}
	return rows, nil
}

// Update saves every column of user.
func (s *UserStore) Update(ctx context.Context, user *models.User) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("user store: not initialized")
	}
	user.Username = models.NormalizeUsername(user.Username)
	if errCheck := s.checkUnique(ctx, user); errCheck != nil {
		return errCheck
	}
	if errSave := s.db.WithContext(ctx).Omit(clause.Associations).Save(user).Error; errSave != nil {
		if db.IsUniqueViolation(errSave) {
			return apperr.Conflict("username", "A user with that username or email already exists.", errSave)
		}
		return fmt.Errorf("user store: update: %w", errSave)
	}
	return nil
}

// SetPassword replaces the user's password hash.
func (s *UserStore) SetPassword(ctx context.Context, user *models.User, password string) error {
	hash, errHash := HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("user store: set password: %w", errHash)
	}
	user.Password = hash
	return s.db.WithContext(ctx).Model(user).Update("password", hash).Error
}

// Touch records the time of the user's latest request.
func (s *UserStore) Touch(ctx context.Context, userID uint64, now time.Time) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("last_seen", now.UTC()).Error
}

// AddProfileView increments the view counter unless the viewer is the owner or anonymous.
func (s *UserStore) AddProfileView(ctx context.Context, viewer, owner *models.User) error {
	if viewer == nil || owner == nil || viewer.ID == owner.ID {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", owner.ID).
		UpdateColumn("profile_view_count", gorm.Expr("profile_view_count + 1")).Error
}

// Verify activates the user and marks email as verified. A differing email
// replaces the stored address.
func (s *UserStore) Verify(ctx context.Context, userID uint64, email string) (*models.User, error) {
	user, errGet := s.Get(ctx, userID)
	if errGet != nil {
		return nil, errGet
	}
	user.IsActive = true
	user.HasVerifiedEmail = true
	if email = strings.TrimSpace(email); email != "" && !strings.EqualFold(email, user.Email) {
		user.Email = email
	}
	if errUpdate := s.Update(ctx, user); errUpdate != nil {
		return nil, errUpdate
	}
	return user, nil
}

// Delete removes a user and everything they own. Photos lose their back
// references instead of being removed so their objects can be swept later.
func (s *UserStore) Delete(ctx context.Context, userID uint64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("user store: not initialized")
	}
	defer metrics.TrackDBOperation("user_delete", time.Now())

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tripIDs []uint64
		if errTrips := tx.Model(&models.Trip{}).Where("user_id = ?", userID).Pluck("id", &tripIDs).Error; errTrips != nil {
			return fmt.Errorf("user store: delete: list trips: %w", errTrips)
		}
		if errTrips := deleteTripsTx(tx, tripIDs); errTrips != nil {
			return fmt.Errorf("user store: delete: %w", errTrips)
		}

		var caverIDs []uint64
		if errCavers := tx.Model(&models.Caver{}).Where("user_id = ?", userID).Pluck("id", &caverIDs).Error; errCavers != nil {
			return fmt.Errorf("user store: delete: list cavers: %w", errCavers)
		}
		if len(caverIDs) > 0 {
			if errLinks := tx.Where("caver_id IN ?", caverIDs).Delete(&models.TripCaver{}).Error; errLinks != nil {
				return fmt.Errorf("user store: delete: caver links: %w", errLinks)
			}
		}

		steps := []struct {
			name  string
			query string
			model any
		}{
			{name: "cavers", query: "user_id = ?", model: &models.Caver{}},
			{name: "reports", query: "user_id = ?", model: &models.TripReport{}},
			{name: "report likes", query: "user_id = ?", model: &models.ReportLike{}},
			{name: "trip likes", query: "user_id = ?", model: &models.TripLike{}},
			{name: "trip follows", query: "user_id = ?", model: &models.TripFollower{}},
			{name: "comments", query: "author_id = ?", model: &models.Comment{}},
			{name: "news comments", query: "author_id = ?", model: &models.NewsComment{}},
			{name: "notifications", query: "user_id = ?", model: &models.Notification{}},
			{name: "friend requests", query: "from_user_id = ? OR to_user_id = ?", model: &models.FriendRequest{}},
			{name: "friendships", query: "user_id = ? OR friend_id = ?", model: &models.Friendship{}},
			{name: "cave systems", query: "user_id = ?", model: &models.CaveSystem{}},
		}
		for _, step := range steps {
			args := []any{userID}
			if strings.Count(step.query, "?") == 2 {
				args = append(args, userID)
			}
			if errDelete := tx.Where(step.query, args...).Delete(step.model).Error; errDelete != nil {
				return fmt.Errorf("user store: delete: %s: %w", step.name, errDelete)
			}
		}

		if errLinked := tx.Model(&models.Caver{}).Where("linked_user_id = ?", userID).
			Update("linked_user_id", nil).Error; errLinked != nil {
			return fmt.Errorf("user store: delete: unlink cavers: %w", errLinked)
		}
		if errPhotos := tx.Model(&models.TripPhoto{}).Where("user_id = ?", userID).
			Update("user_id", nil).Error; errPhotos != nil {
			return fmt.Errorf("user store: delete: detach photos: %w", errPhotos)
		}
		if errUser := tx.Delete(&models.User{}, userID).Error; errUser != nil {
			return fmt.Errorf("user store: delete: %w", errUser)
		}
		return nil
	})
}

// PruneInactive deletes accounts that are still inactive and unverified
// InactiveUserTTL after joining. It returns the number of users removed.
func (s *UserStore) PruneInactive(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("user store: not initialized")
	}
	var ids []uint64
	if errFind := s.db.WithContext(ctx).Model(&models.User{}).
		Where("is_active = ? AND has_verified_email = ? AND created_at < ?", false, false, now.Add(-InactiveUserTTL)).
		Pluck("id", &ids).Error; errFind != nil {
		return 0, fmt.Errorf("user store: prune: %w", errFind)
	}
	for _, id := range ids {
		if errDelete := s.Delete(ctx, id); errDelete != nil {
			return 0, errDelete
		}
	}
	return len(ids), nil
}

// FriendIDs returns the IDs of userID's friends.
func (s *UserStore) FriendIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("user store: not initialized")
	}
	var ids []uint64
	if errFind := s.db.WithContext(ctx).Model(&models.Friendship{}).
		Where("user_id = ? AND friend_id <> ?", userID, userID).
		Order("friend_id ASC").Pluck("friend_id", &ids).Error; errFind != nil {
		return nil, fmt.Errorf("user store: friend ids: %w", errFind)
	}
	return ids, nil
}

// FriendSet returns userID's friends as a visibility set.
func (s *UserStore) FriendSet(ctx context.Context, userID uint64) (visibility.FriendSet, error) {
	ids, err := s.FriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return visibility.NewFriendSet(ids...), nil
}

// Friends returns userID's friends ordered by name.
func (s *UserStore) Friends(ctx context.Context, userID uint64) ([]models.User, error) {
	ids, err := s.FriendIDs(ctx, userID)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	var rows []models.User
	if errFind := s.db.WithContext(ctx).Where("id IN ?", ids).Order("name ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("user store: friends: %w", errFind)
	}
	return rows, nil
}

// AreFriends reports whether a and b are friends.
func (s *UserStore) AreFriends(ctx context.Context, a, b uint64) (bool, error) {
	var count int64
	if errCount := s.db.WithContext(ctx).Model(&models.Friendship{}).
		Where("user_id = ? AND friend_id = ?", a, b).Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("user store: are friends: %w", errCount)
	}
	return count > 0, nil
}

// AddFriendshipTx writes both directions of a friendship inside tx.
func AddFriendshipTx(tx *gorm.DB, a, b uint64) error {
	if a == b {
		return apperr.Validation("You cannot add yourself as a friend.")
	}
	rows := []models.Friendship{{UserID: a, FriendID: b}, {UserID: b, FriendID: a}}
	if errCreate := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; errCreate != nil {
		return fmt.Errorf("add friendship: %w", errCreate)
	}
	return nil
}

// RemoveFriendship deletes both directions of a friendship.
func (s *UserStore) RemoveFriendship(ctx context.Context, a, b uint64) error {
	return s.db.WithContext(ctx).Where(
		"(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", a, b, b, a,
	).Delete(&models.Friendship{}).Error
}

// MutualFriends returns friends shared by a and b.
func (s *UserStore) MutualFriends(ctx context.Context, a, b uint64) ([]models.User, error) {
	var rows []models.User
	errFind := s.db.WithContext(ctx).
		Where("id IN (?)", s.db.Model(&models.Friendship{}).Select("friend_id").Where("user_id = ?", a)).
		Where("id IN (?)", s.db.Model(&models.Friendship{}).Select("friend_id").Where("user_id = ?", b)).
		Order("name ASC").Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("user store: mutual friends: %w", errFind)
	}
	return rows, nil
}

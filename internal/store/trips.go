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
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TripStore persists trips together with their caver links, likes and followers.
type TripStore struct {
	db *gorm.DB
}

// NewTripStore constructs a TripStore.
func NewTripStore(db *gorm.DB) *TripStore {
	return &TripStore{db: db}
}

// CheckTrip enforces the invariants that hold for every stored trip.
func CheckTrip(trip *models.Trip) *apperr.Error {
	verr := apperr.NewValidation()
	if strings.TrimSpace(trip.CaveName) == "" {
		verr.Add("cave_name", "This field is required.")
	}
	if trip.Start.IsZero() {
		verr.Add("start", "This field is required.")
	}
	if trip.End != nil && !trip.Start.IsZero() && trip.Start.After(*trip.End) {
		verr.Add("end", "The trip start time must be before the trip end time.")
	}
	if !trip.Type.Valid() {
		verr.Add("type", fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", trip.Type))
	}
	if !trip.Privacy.Valid() {
		verr.Add("privacy", fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", trip.Privacy))
	}
	if !verr.HasErrors() {
		return nil
	}
	return verr
}

// prepare applies defaults and derived fields before a write.
func prepare(trip *models.Trip) error {
	if trip.UUID == "" {
		trip.UUID = uuid.NewString()
	}
	if trip.Type == "" {
		trip.Type = models.TripSport
	}
	if trip.Privacy == "" {
		trip.Privacy = models.PrivacyDefault
	}
	trip.ApplyDerived()
	if verr := CheckTrip(trip); verr != nil {
		return verr
	}
	return nil
}

// Create inserts trip, links caverIDs and makes the owner a follower.
func (s *TripStore) Create(ctx context.Context, trip *models.Trip, caverIDs []uint64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("trip store: not initialized")
	}
	defer metrics.TrackDBOperation("trip_create", time.Now())
	if errPrepare := prepare(trip); errPrepare != nil {
		return errPrepare
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createTripTx(tx, trip, caverIDs)
	})
	if errTx != nil {
		return errTx
	}
	metrics.RecordTripSaved("form", 1)
	return nil
}

func createTripTx(tx *gorm.DB, trip *models.Trip, caverIDs []uint64) error {
	if errCreate := tx.Omit(clause.Associations).Create(trip).Error; errCreate != nil {
		return fmt.Errorf("trip store: create: %w", errCreate)
	}
	if errLinks := setCaversTx(tx, trip.ID, caverIDs); errLinks != nil {
		return errLinks
	}
	return followTx(tx, trip.ID, trip.UserID)
}

// CreateMany inserts every trip in one transaction. Either all trips are
// stored or none are.
func (s *TripStore) CreateMany(ctx context.Context, trips []*models.Trip, cavers [][]uint64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("trip store: not initialized")
	}
	defer metrics.TrackDBOperation("trip_create_many", time.Now())
	for _, trip := range trips {
		if errPrepare := prepare(trip); errPrepare != nil {
			return errPrepare
		}
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, trip := range trips {
			var ids []uint64
			if i < len(cavers) {
				ids = cavers[i]
			}
			if errCreate := createTripTx(tx, trip, ids); errCreate != nil {
				return errCreate
			}
		}
		return nil
	})
	if errTx != nil {
		return errTx
	}
	metrics.RecordTripSaved("import", len(trips))
	return nil
}

// Update saves trip, replaces its caver links and keeps the owner following it.
func (s *TripStore) Update(ctx context.Context, trip *models.Trip, caverIDs []uint64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("trip store: not initialized")
	}
	defer metrics.TrackDBOperation("trip_update", time.Now())
	if errPrepare := prepare(trip); errPrepare != nil {
		return errPrepare
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errSave := tx.Omit(clause.Associations).Save(trip).Error; errSave != nil {
			return fmt.Errorf("trip store: update: %w", errSave)
		}
		if caverIDs != nil {
			if errLinks := setCaversTx(tx, trip.ID, caverIDs); errLinks != nil {
				return errLinks
			}
		}
		return followTx(tx, trip.ID, trip.UserID)
	})
	if errTx != nil {
		return errTx
	}
	metrics.RecordTripSaved("form", 1)
	return nil
}

// SetFeaturedPhoto points the trip at photoID, or clears it when nil.
func (s *TripStore) SetFeaturedPhoto(ctx context.Context, tripID uint64, photoID *uint64) error {
	return s.db.WithContext(ctx).Model(&models.Trip{}).Where("id = ?", tripID).
		UpdateColumn("featured_photo_id", photoID).Error
}

// AddView increments the trip's view counter unless viewer is anonymous or the owner.
func (s *TripStore) AddView(ctx context.Context, viewer *models.User, trip *models.Trip) error {
	if viewer == nil || trip == nil || viewer.ID == trip.UserID {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Trip{}).Where("id = ?", trip.ID).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
}

func setCaversTx(tx *gorm.DB, tripID uint64, caverIDs []uint64) error {
	if errClear := tx.Where("trip_id = ?", tripID).Delete(&models.TripCaver{}).Error; errClear != nil {
		return fmt.Errorf("trip store: clear cavers: %w", errClear)
	}
	if len(caverIDs) == 0 {
		return nil
	}
	seen := make(map[uint64]struct{}, len(caverIDs))
	links := make([]models.TripCaver, 0, len(caverIDs))
	for _, id := range caverIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		links = append(links, models.TripCaver{TripID: tripID, CaverID: id})
	}
	if errLinks := tx.Create(&links).Error; errLinks != nil {
		return fmt.Errorf("trip store: link cavers: %w", errLinks)
	}
	return nil
}

func followTx(tx *gorm.DB, tripID, userID uint64) error {
	row := models.TripFollower{TripID: tripID, UserID: userID}
	if errFollow := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; errFollow != nil {
		return fmt.Errorf("trip store: follow: %w", errFollow)
	}
	return nil
}

// Get loads a trip by primary key with its cavers.
func (s *TripStore) Get(ctx context.Context, id uint64) (*models.Trip, error) {
	return s.first(ctx, "id = ?", id)
}

// ByUUID loads a trip by public identifier with its cavers.
func (s *TripStore) ByUUID(ctx context.Context, id string) (*models.Trip, error) {
	if _, errParse := uuid.Parse(strings.TrimSpace(id)); errParse != nil {
		return nil, apperr.NotFound("trip")
	}
	return s.first(ctx, "uuid = ?", strings.TrimSpace(id))
}

func (s *TripStore) first(ctx context.Context, query string, args ...any) (*models.Trip, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("trip store: not initialized")
	}
	var trip models.Trip
	if errFind := s.db.WithContext(ctx).Where(query, args...).First(&trip).Error; errFind != nil {
		if db.IsNotFound(errFind) {
			return nil, apperr.NotFound("trip")
		}
		return nil, fmt.Errorf("trip store: find: %w", errFind)
	}
	trips := []*models.Trip{&trip}
	if errCavers := s.LoadCavers(ctx, trips); errCavers != nil {
		return nil, errCavers
	}
	return &trip, nil
}

// ListOptions filters and orders trip listings.
type ListOptions struct {
	UserIDs []uint64
	Types   []models.TripType
	Order   models.FeedOrdering
	Limit   int
	Offset  int
	// Ascending sorts by start ascending instead of newest first.
	Ascending bool
	// IncludePublic widens UserIDs to every trip with public privacy.
	IncludePublic bool
	// Contains keeps trips whose folded text or caver names contain this
	// already folded term.
	Contains string
}

// List returns trips matching opts with cavers loaded. The secondary sort
// key is always id descending.
func (s *TripStore) List(ctx context.Context, opts ListOptions) ([]*models.Trip, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("trip store: not initialized")
	}
	defer metrics.TrackDBOperation("trip_list", time.Now())

	q := s.db.WithContext(ctx).Model(&models.Trip{})
	switch {
	case opts.IncludePublic && len(opts.UserIDs) > 0:
		q = q.Where("user_id IN ? OR privacy = ?", opts.UserIDs, models.PrivacyPublic)
	case opts.IncludePublic:
		q = q.Where("privacy = ?", models.PrivacyPublic)
	case opts.UserIDs != nil:
		if len(opts.UserIDs) == 0 {
			return nil, nil
		}
		q = q.Where("user_id IN ?", opts.UserIDs)
	}
	if len(opts.Types) > 0 {
		q = q.Where("type IN ?", opts.Types)
	}
	if opts.Contains != "" {
		pattern := db.ContainsPattern(s.db, opts.Contains)
		byCaver := s.db.Model(&models.TripCaver{}).Select("trip_cavers.trip_id").
			Joins("JOIN cavers ON cavers.id = trip_cavers.caver_id").
			Where(db.CaseInsensitiveLikeExpr(s.db, "cavers.search_name"), pattern)
		q = q.Where(s.db.Where(db.CaseInsensitiveLikeExpr(s.db, "trips.search_text"), pattern).
			Or("trips.id IN (?)", byCaver))
	}
	switch {
	case opts.Ascending:
		q = q.Order("start ASC").Order("id DESC")
	case opts.Order == models.FeedByAdded:
		q = q.Order("created_at DESC").Order("id DESC")
	default:
		q = q.Order("start DESC").Order("id DESC")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	var rows []*models.Trip
	if errFind := q.Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("trip store: list: %w", errFind)
	}
	if errCavers := s.LoadCavers(ctx, rows); errCavers != nil {
		return nil, errCavers
	}
	return rows, nil
}

// ListForUser returns every trip owned by userID, newest start first.
func (s *TripStore) ListForUser(ctx context.Context, userID uint64) ([]*models.Trip, error) {
	return s.List(ctx, ListOptions{UserIDs: []uint64{userID}, Order: models.FeedByStart})
}

// Count returns the number of trips owned by userID.
func (s *TripStore) Count(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	if errCount := s.db.WithContext(ctx).Model(&models.Trip{}).Where("user_id = ?", userID).Count(&count).Error; errCount != nil {
		return 0, fmt.Errorf("trip store: count: %w", errCount)
	}
	return count, nil
}

// LoadCavers fills Trip.Cavers for every trip in trips.
func (s *TripStore) LoadCavers(ctx context.Context, trips []*models.Trip) error {
	if len(trips) == 0 {
		return nil
	}
	byID := make(map[uint64]*models.Trip, len(trips))
	ids := make([]uint64, 0, len(trips))
	for _, t := range trips {
		byID[t.ID] = t
		t.Cavers = nil
		ids = append(ids, t.ID)
	}
	type row struct {
		TripID uint64
		models.Caver
	}
	var rows []row
	errFind := s.db.WithContext(ctx).Table("trip_cavers").
		Select("trip_cavers.trip_id AS trip_id, cavers.*").
		Joins("JOIN cavers ON cavers.id = trip_cavers.caver_id").
		Where("trip_cavers.trip_id IN ?", ids).
		Order("cavers.name ASC").
		Scan(&rows).Error
	if errFind != nil {
		return fmt.Errorf("trip store: load cavers: %w", errFind)
	}
	for _, r := range rows {
		if t, ok := byID[r.TripID]; ok {
			t.Cavers = append(t.Cavers, r.Caver)
		}
	}
	return nil
}

// Number returns the 1-based position of trip among its owner's trips by start.
func (s *TripStore) Number(ctx context.Context, trip *models.Trip) (int64, error) {
	var before int64
	errCount := s.db.WithContext(ctx).Model(&models.Trip{}).
		Where("user_id = ? AND (start < ? OR (start = ? AND id > ?))", trip.UserID, trip.Start, trip.Start, trip.ID).
		Count(&before).Error
	if errCount != nil {
		return 0, fmt.Errorf("trip store: number: %w", errCount)
	}
	return before + 1, nil
}

// Delete removes a trip and the rows that hang off it. Photos are detached
// and left for the sweeper.
func (s *TripStore) Delete(ctx context.Context, tripID uint64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("trip store: not initialized")
	}
	defer metrics.TrackDBOperation("trip_delete", time.Now())
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errDelete := deleteTripsTx(tx, []uint64{tripID}); errDelete != nil {
			return fmt.Errorf("trip store: delete: %w", errDelete)
		}
		return nil
	})
}

func deleteTripsTx(tx *gorm.DB, tripIDs []uint64) error {
	if len(tripIDs) == 0 {
		return nil
	}
	var reportIDs []uint64
	if errReports := tx.Model(&models.TripReport{}).Where("trip_id IN ?", tripIDs).Pluck("id", &reportIDs).Error; errReports != nil {
		return fmt.Errorf("list reports: %w", errReports)
	}
	if len(reportIDs) > 0 {
		if errLikes := tx.Where("report_id IN ?", reportIDs).Delete(&models.ReportLike{}).Error; errLikes != nil {
			return fmt.Errorf("report likes: %w", errLikes)
		}
	}
	for name, model := range map[string]any{
		"reports":       &models.TripReport{},
		"likes":         &models.TripLike{},
		"followers":     &models.TripFollower{},
		"cavers":        &models.TripCaver{},
		"comments":      &models.Comment{},
		"notifications": &models.Notification{},
	} {
		if errDelete := tx.Where("trip_id IN ?", tripIDs).Delete(model).Error; errDelete != nil {
			return fmt.Errorf("%s: %w", name, errDelete)
		}
	}
	if errPhotos := tx.Model(&models.TripPhoto{}).Where("trip_id IN ?", tripIDs).
		Update("trip_id", nil).Error; errPhotos != nil {
		return fmt.Errorf("detach photos: %w", errPhotos)
	}
	if errTrips := tx.Where("id IN ?", tripIDs).Delete(&models.Trip{}).Error; errTrips != nil {
		return fmt.Errorf("trips: %w", errTrips)
	}
	return nil
}

// Like adds userID to the trip's likes. It reports whether a row was added.
func (s *TripStore) Like(ctx context.Context, tripID, userID uint64) (bool, error) {
	row := models.TripLike{TripID: tripID, UserID: userID}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("trip store: like: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Unlike removes userID from the trip's likes.
func (s *TripStore) Unlike(ctx context.Context, tripID, userID uint64) error {
	return s.db.WithContext(ctx).Where("trip_id = ? AND user_id = ?", tripID, userID).Delete(&models.TripLike{}).Error
}

// HasLiked reports whether userID likes the trip.
func (s *TripStore) HasLiked(ctx context.Context, tripID, userID uint64) (bool, error) {
	var count int64
	if errCount := s.db.WithContext(ctx).Model(&models.TripLike{}).
		Where("trip_id = ? AND user_id = ?", tripID, userID).Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("trip store: has liked: %w", errCount)
	}
	return count > 0, nil
}

// Likers returns the users who like the trip, oldest like first.
func (s *TripStore) Likers(ctx context.Context, tripID uint64) ([]models.User, error) {
	likers, err := s.LikersFor(ctx, []uint64{tripID})
	if err != nil {
		return nil, err
	}
	return likers[tripID], nil
}

// LikersFor returns the likers of each trip in tripIDs, oldest like first.
func (s *TripStore) LikersFor(ctx context.Context, tripIDs []uint64) (map[uint64][]models.User, error) {
	out := make(map[uint64][]models.User, len(tripIDs))
	if len(tripIDs) == 0 {
		return out, nil
	}
	type row struct {
		TripID uint64
		models.User
	}
	var rows []row
	errFind := s.db.WithContext(ctx).Table("trip_likes").
		Select("trip_likes.trip_id AS trip_id, users.*").
		Joins("JOIN users ON users.id = trip_likes.user_id").
		Where("trip_likes.trip_id IN ?", tripIDs).
		Order("trip_likes.created_at ASC").Order("users.id ASC").
		Scan(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("trip store: likers: %w", errFind)
	}
	for _, r := range rows {
		out[r.TripID] = append(out[r.TripID], r.User)
	}
	return out, nil
}

// Follow adds userID to the trip's followers.
func (s *TripStore) Follow(ctx context.Context, tripID, userID uint64) error {
	return followTx(s.db.WithContext(ctx), tripID, userID)
}

// Unfollow removes userID from the trip's followers.
func (s *TripStore) Unfollow(ctx context.Context, tripID, userID uint64) error {
	return s.db.WithContext(ctx).Where("trip_id = ? AND user_id = ?", tripID, userID).Delete(&models.TripFollower{}).Error
}

// IsFollowing reports whether userID follows the trip.
func (s *TripStore) IsFollowing(ctx context.Context, tripID, userID uint64) (bool, error) {
	var count int64
	if errCount := s.db.WithContext(ctx).Model(&models.TripFollower{}).
		Where("trip_id = ? AND user_id = ?", tripID, userID).Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("trip store: is following: %w", errCount)
	}
	return count > 0, nil
}

// Followers returns the users following the trip.
func (s *TripStore) Followers(ctx context.Context, tripID uint64) ([]models.User, error) {
	var rows []models.User
	errFind := s.db.WithContext(ctx).
		Where("id IN (?)", s.db.Model(&models.TripFollower{}).Select("user_id").Where("trip_id = ?", tripID)).
		Order("id ASC").Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("trip store: followers: %w", errFind)
	}
	return rows, nil
}

// CustomFieldInUse reports whether any of userID's trips holds a non-empty
// value in custom field n (1-based).
func (s *TripStore) CustomFieldInUse(ctx context.Context, userID uint64, n int) (bool, error) {
	if n < 1 || n > models.CustomFieldCount {
		return false, fmt.Errorf("trip store: custom field %d out of range", n)
	}
	column := fmt.Sprintf("custom_field_%d", n)
	var count int64
	errCount := s.db.WithContext(ctx).Model(&models.Trip{}).
		Where("user_id = ?", userID).
		Where(fmt.Sprintf("%s IS NOT NULL AND %s <> ''", column, column)).
		Count(&count).Error
	if errCount != nil {
		return false, fmt.Errorf("trip store: custom field in use: %w", errCount)
	}
	return count > 0, nil
}

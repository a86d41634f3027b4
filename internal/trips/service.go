package trips

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
	"github.com/cavelog/cavelog/internal/visibility"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const msgNotOwner = "You do not have permission to change this trip."

// Service saves, loads and deletes trips and their reports on behalf of users.
type Service struct {
	users   *store.UserStore
	trips   *store.TripStore
	cavers  *store.CaverStore
	reports *store.ReportStore
	photos  *store.PhotoStore
	now     func() time.Time
}

// NewService constructs a Service.
func NewService(db *gorm.DB) *Service {
	return &Service{
		users:   store.NewUserStore(db),
		trips:   store.NewTripStore(db),
		cavers:  store.NewCaverStore(db),
		reports: store.NewReportStore(db),
		photos:  store.NewPhotoStore(db),
		now:     time.Now,
	}
}

// Create validates d and stores it as a new trip owned by user.
func (s *Service) Create(ctx context.Context, user *models.User, d *Draft) (*models.Trip, error) {
	if user == nil {
		return nil, apperr.Forbidden("You must be signed in to add a trip.")
	}
	if verr := Validate(d, s.now()); verr != nil {
		return nil, verr
	}
	caverIDs, errCavers := s.cavers.ResolveNames(ctx, user.ID, d.CaverNames())
	if errCavers != nil {
		return nil, errCavers
	}
	trip := &models.Trip{UserID: user.ID}
	d.Apply(trip)
	if errCreate := s.trips.Create(ctx, trip, caverIDs); errCreate != nil {
		return nil, errCreate
	}
	log.WithFields(log.Fields{"user": user.Username, "trip": trip.UUID}).Info("trips: created")
	return s.trips.Get(ctx, trip.ID)
}

// Update applies d to the trip identified by tripUUID. Only the owner may
// change a trip.
func (s *Service) Update(ctx context.Context, user *models.User, tripUUID string, d *Draft) (*models.Trip, error) {
	trip, errTrip := s.owned(ctx, user, tripUUID)
	if errTrip != nil {
		return nil, errTrip
	}
	if verr := Validate(d, s.now()); verr != nil {
		return nil, verr
	}
	caverIDs, errCavers := s.cavers.ResolveNames(ctx, user.ID, d.CaverNames())
	if errCavers != nil {
		return nil, errCavers
	}
	d.Apply(trip)
	if errUpdate := s.trips.Update(ctx, trip, caverIDs); errUpdate != nil {
		return nil, errUpdate
	}
	log.WithFields(log.Fields{"user": user.Username, "trip": trip.UUID}).Info("trips: updated")
	return s.trips.Get(ctx, trip.ID)
}

// Delete removes the trip. Its photos are marked deleted so the sweeper
// removes their objects.
func (s *Service) Delete(ctx context.Context, user *models.User, tripUUID string) error {
	trip, errTrip := s.owned(ctx, user, tripUUID)
	if errTrip != nil {
		return errTrip
	}
	if _, errPhotos := s.photos.SoftDeleteAllForTrip(ctx, trip.ID, s.now()); errPhotos != nil {
		return errPhotos
	}
	if errDelete := s.trips.Delete(ctx, trip.ID); errDelete != nil {
		return errDelete
	}
	log.WithFields(log.Fields{"user": user.Username, "trip": trip.UUID}).Info("trips: deleted")
	return nil
}

func (s *Service) owned(ctx context.Context, user *models.User, tripUUID string) (*models.Trip, error) {
	if user == nil {
		return nil, apperr.Forbidden(msgNotOwner)
	}
	trip, errTrip := s.trips.ByUUID(ctx, tripUUID)
	if errTrip != nil {
		return nil, errTrip
	}
	if trip.UserID != user.ID {
		return nil, apperr.Forbidden(msgNotOwner)
	}
	return trip, nil
}

// Detail is a trip page as seen by one viewer.
type Detail struct {
	Trip          *models.Trip
	Owner         *models.User
	Number        int64
	Report        *models.TripReport
	PhotosVisible bool
	ShowDistances bool
}

// Detail loads the trip for viewer, hiding what they may not see, and counts
// the view.
func (s *Service) Detail(ctx context.Context, viewer *models.User, tripUUID string) (*Detail, error) {
	trip, errTrip := s.trips.ByUUID(ctx, tripUUID)
	if errTrip != nil {
		return nil, errTrip
	}
	owner, friends, errOwner := s.ownerOf(ctx, trip.UserID)
	if errOwner != nil {
		return nil, errOwner
	}
	if !visibility.TripVisible(viewer, trip, owner, friends) {
		return nil, apperr.NotFound("trip")
	}
	number, errNumber := s.trips.Number(ctx, trip)
	if errNumber != nil {
		return nil, errNumber
	}
	out := &Detail{
		Trip:          trip,
		Owner:         owner,
		Number:        number,
		PhotosVisible: visibility.PhotosVisible(viewer, trip, owner, friends),
		ShowDistances: visibility.DistanceVisible(viewer, trip, owner, friends),
	}
	report, errReport := s.reports.ByTrip(ctx, trip.ID)
	switch {
	case errReport == nil:
		if visibility.ReportVisible(viewer, report, trip, owner, friends) {
			out.Report = report
		}
	case !apperr.Is(errReport, apperr.KindNotFound):
		return nil, errReport
	}
	visibility.Sanitise(viewer, trip, owner)
	if errView := s.trips.AddView(ctx, viewer, trip); errView != nil {
		log.WithError(errView).Warn("trips: add view")
	}
	return out, nil
}

// Logbook is a user's trips as seen by one viewer.
type Logbook struct {
	Owner *models.User
	Trips []*models.Trip
}

// ForUser lists the trips of the user with handle username that viewer may
// see, most recent first.
func (s *Service) ForUser(ctx context.Context, viewer *models.User, username string) (*Logbook, error) {
	owner, errOwner := s.users.ByUsername(ctx, username)
	if errOwner != nil {
		return nil, errOwner
	}
	friends, errFriends := s.users.FriendSet(ctx, owner.ID)
	if errFriends != nil {
		return nil, errFriends
	}
	if !visibility.UserVisible(viewer, owner, friends) {
		return nil, apperr.NotFound("user")
	}
	all, errTrips := s.trips.ListForUser(ctx, owner.ID)
	if errTrips != nil {
		return nil, errTrips
	}
	visible := make([]*models.Trip, 0, len(all))
	for _, trip := range all {
		if !visibility.TripVisible(viewer, trip, owner, friends) {
			continue
		}
		visibility.Sanitise(viewer, trip, owner)
		visible = append(visible, trip)
	}
	if errView := s.users.AddProfileView(ctx, viewer, owner); errView != nil {
		log.WithError(errView).Warn("trips: add profile view")
	}
	return &Logbook{Owner: owner, Trips: visible}, nil
}

func (s *Service) ownerOf(ctx context.Context, userID uint64) (*models.User, visibility.FriendSet, error) {
	owner, errOwner := s.users.Get(ctx, userID)
	if errOwner != nil {
		return nil, nil, errOwner
	}
	friends, errFriends := s.users.FriendSet(ctx, owner.ID)
	if errFriends != nil {
		return nil, nil, errFriends
	}
	return owner, friends, nil
}

// ReportDraft is trip report input.
type ReportDraft struct {
	Title   string     `json:"title"`
	Slug    string     `json:"slug"`
	PubDate *time.Time `json:"pub_date"`
	Content string     `json:"content"`
	Privacy string     `json:"privacy"`
}

// SaveReport creates or replaces the report attached to the user's trip.
func (s *Service) SaveReport(ctx context.Context, user *models.User, tripUUID string, d ReportDraft) (*models.TripReport, error) {
	trip, errTrip := s.owned(ctx, user, tripUUID)
	if errTrip != nil {
		return nil, errTrip
	}
	report, errReport := s.reports.ByTrip(ctx, trip.ID)
	creating := false
	switch {
	case apperr.Is(errReport, apperr.KindNotFound):
		report = &models.TripReport{TripID: trip.ID, UserID: user.ID}
		creating = true
	case errReport != nil:
		return nil, errReport
	}
	report.Title = strings.TrimSpace(d.Title)
	report.Slug = store.Slugify(d.Slug)
	report.Content = d.Content
	report.Privacy = models.Privacy(strings.TrimSpace(d.Privacy))
	if d.PubDate != nil {
		report.PubDate = d.PubDate.UTC()
	}
	if creating {
		if errCreate := s.reports.Create(ctx, report); errCreate != nil {
			return nil, errCreate
		}
		return report, nil
	}
	if errUpdate := s.reports.Update(ctx, report); errUpdate != nil {
		return nil, errUpdate
	}
	return report, nil
}

// DeleteReport removes the report attached to the user's trip.
func (s *Service) DeleteReport(ctx context.Context, user *models.User, tripUUID string) error {
	trip, errTrip := s.owned(ctx, user, tripUUID)
	if errTrip != nil {
		return errTrip
	}
	report, errReport := s.reports.ByTrip(ctx, trip.ID)
	if errReport != nil {
		return errReport
	}
	return s.reports.Delete(ctx, report.ID)
}

// ReportDetail is a report page as seen by one viewer.
type ReportDetail struct {
	Report *models.TripReport
	Trip   *models.Trip
	Owner  *models.User
}

// Report loads username's report slug for viewer and counts the view.
func (s *Service) Report(ctx context.Context, viewer *models.User, username, slug string) (*ReportDetail, error) {
	detail, errLoad := s.loadReport(ctx, viewer, username, slug)
	if errLoad != nil {
		return nil, errLoad
	}
	if errView := s.reports.AddView(ctx, viewer, detail.Report); errView != nil {
		log.WithError(errView).Warn("trips: add report view")
	}
	return detail, nil
}

// ToggleReportLike likes or unlikes a report the viewer can see.
func (s *Service) ToggleReportLike(ctx context.Context, viewer *models.User, username, slug string) (bool, error) {
	if viewer == nil {
		return false, apperr.Forbidden("You must be signed in to like a report.")
	}
	detail, errLoad := s.loadReport(ctx, viewer, username, slug)
	if errLoad != nil {
		return false, errLoad
	}
	liked, errLike := s.reports.ToggleLike(ctx, detail.Report.ID, viewer.ID)
	if errLike != nil {
		return false, fmt.Errorf("trips: toggle report like: %w", errLike)
	}
	return liked, nil
}

func (s *Service) loadReport(ctx context.Context, viewer *models.User, username, slug string) (*ReportDetail, error) {
	owner, errOwner := s.users.ByUsername(ctx, username)
	if errOwner != nil {
		return nil, errOwner
	}
	report, errReport := s.reports.BySlug(ctx, owner.ID, slug)
	if errReport != nil {
		return nil, errReport
	}
	trip, errTrip := s.trips.Get(ctx, report.TripID)
	if errTrip != nil {
		return nil, errTrip
	}
	friends, errFriends := s.users.FriendSet(ctx, owner.ID)
	if errFriends != nil {
		return nil, errFriends
	}
	if !visibility.ReportVisible(viewer, report, trip, owner, friends) {
		return nil, apperr.NotFound("report")
	}
	visibility.Sanitise(viewer, trip, owner)
	return &ReportDetail{Report: report, Trip: trip, Owner: owner}, nil
}

package stats

import (
	"context"
	"time"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
	"github.com/cavelog/cavelog/internal/visibility"
	"gorm.io/gorm"
)

// FullFeaturedMinimum is the trip count from which every table is shown.
const FullFeaturedMinimum = 5

// Report is the full statistics page for one user.
type Report struct {
	Owner          *models.User  `json:"-"`
	TripCount      int           `json:"trip_count"`
	FullFeatured   bool          `json:"full_featured"`
	ShowTimeCharts bool          `json:"show_time_charts"`
	CavingDays     int           `json:"caving_days"`
	Yearly         []YearlyStats `json:"yearly"`
	MostCommon     []CommonTable `json:"most_common"`
	BiggestTrips   []TripTable   `json:"biggest_trips"`
	Averages       []AverageRow  `json:"averages"`
	Metrics        []MetricRow   `json:"metrics"`
	TripTypes      []TypeRow     `json:"trip_types"`
	OverTime       []YearlyStats `json:"over_time,omitempty"`
	HoursPerMonth  []MonthHours  `json:"hours_per_month,omitempty"`
}

// Service loads trips and builds reports.
type Service struct {
	users *store.UserStore
	trips *store.TripStore
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(db *gorm.DB) *Service {
	return &Service{users: store.NewUserStore(db), trips: store.NewTripStore(db), now: time.Now}
}

// ForUser builds owner's report as seen by viewer. Other users only see
// statistics the owner made public, computed over the trips they can view.
func (s *Service) ForUser(ctx context.Context, viewer, owner *models.User) (*Report, error) {
	if owner == nil {
		return nil, apperr.NotFound("user")
	}
	isOwner := viewer != nil && viewer.ID == owner.ID
	friends, errFriends := s.users.FriendSet(ctx, owner.ID)
	if errFriends != nil {
		return nil, errFriends
	}
	if !isOwner && (!owner.PublicStatistics || !visibility.UserVisible(viewer, owner, friends)) {
		return nil, apperr.Forbidden("These statistics are private.")
	}

	trips, errTrips := s.trips.ListForUser(ctx, owner.ID)
	if errTrips != nil {
		return nil, errTrips
	}
	if !isOwner {
		visible := trips[:0]
		for _, trip := range trips {
			if visibility.TripVisible(viewer, trip, owner, friends) {
				visible = append(visible, trip)
			}
		}
		trips = visible
	}
	return Build(owner, trips, s.now().In(owner.Zone())), nil
}

// Build computes every statistic for trips. now carries the owner's zone.
func Build(owner *models.User, trips []*models.Trip, now time.Time) *Report {
	loc := now.Location()
	r := &Report{
		Owner:        owner,
		TripCount:    len(trips),
		FullFeatured: len(trips) >= FullFeaturedMinimum,
		CavingDays:   CavingDays(trips, loc),
		Yearly:       Yearly(trips, now, DefaultMaxYears),
		MostCommon:   MostCommon(trips, DefaultLimit),
		BiggestTrips: BiggestTrips(trips, DefaultLimit, owner.DisableDistanceStatistics, owner.DisableSurveyStatistics),
		Averages:     Averages(trips, now, owner.DisableDistanceStatistics, owner.DisableSurveyStatistics),
		Metrics:      Metrics(trips),
		TripTypes:    TripTypeBreakdown(trips),
	}
	r.ShowTimeCharts = showTimeCharts(trips)
	if !owner.DisableStatsOverTime {
		r.OverTime = ChartsOverTime(trips, loc)
		r.HoursPerMonth = HoursPerMonth(trips, now)
	}
	return r
}

// showTimeCharts holds when trips span more than 40 days and at least one
// trip has an end time.
func showTimeCharts(trips []*models.Trip) bool {
	if len(trips) < 2 {
		return false
	}
	first, last := trips[0].Start, trips[0].Start
	ended := false
	for _, trip := range trips {
		if trip.Start.Before(first) {
			first = trip.Start
		}
		if trip.Start.After(last) {
			last = trip.Start
		}
		if trip.End != nil {
			ended = true
		}
	}
	return ended && last.Sub(first) > 40*24*time.Hour
}

// Package feed builds the paginated trip feed of a user and their friends.
package feed

import (
	"context"
	"fmt"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/social"
	"github.com/cavelog/cavelog/internal/store"
	"github.com/cavelog/cavelog/internal/visibility"
	"gorm.io/gorm"
)

const (
	// PageSize is the number of trips per feed page.
	PageSize = 10
	// Window is how many of the most recent trips are considered.
	Window = 100
)

// Item is one trip in the feed, with what the card needs to render.
type Item struct {
	Trip        *models.Trip `json:"trip"`
	Owner       *models.User `json:"owner"`
	LikesCount  int          `json:"likes_count"`
	ViewerLiked bool         `json:"viewer_liked"`
	HasPhotos   bool         `json:"has_photos"`
	PhotoCount  int          `json:"photo_count"`
	LikedStr    string       `json:"liked_str"`
}

// Service reads the feed.
type Service struct {
	users  *store.UserStore
	trips  *store.TripStore
	photos *store.PhotoStore
}

// NewService constructs a Service.
func NewService(db *gorm.DB) *Service {
	return &Service{
		users:  store.NewUserStore(db),
		trips:  store.NewTripStore(db),
		photos: store.NewPhotoStore(db),
	}
}

// Page returns page (1-based) of viewer's feed. Pages past the end are empty.
func (s *Service) Page(ctx context.Context, viewer *models.User, ordering models.FeedOrdering, page int) ([]Item, error) {
	if viewer == nil {
		return nil, apperr.Forbidden("You must be signed in to view the feed.")
	}
	if page < 1 {
		page = 1
	}
	if ordering != models.FeedByStart {
		ordering = models.FeedByAdded
	}

	friendIDs, errFriends := s.users.FriendIDs(ctx, viewer.ID)
	if errFriends != nil {
		return nil, errFriends
	}
	ownerIDs := append([]uint64{viewer.ID}, friendIDs...)
	trips, errTrips := s.trips.List(ctx, store.ListOptions{UserIDs: ownerIDs, Order: ordering, Limit: Window})
	if errTrips != nil {
		return nil, errTrips
	}
	owners, errOwners := s.users.ListByIDs(ctx, ownerIDs)
	if errOwners != nil {
		return nil, errOwners
	}

	// Every owner in the feed is the viewer or one of their friends, so the
	// viewer is in each owner's friend set.
	viewerSet := visibility.NewFriendSet(viewer.ID)
	visible := make([]*models.Trip, 0, len(trips))
	for _, trip := range trips {
		owner := owners[trip.UserID]
		if owner == nil || !visibility.TripVisible(viewer, trip, owner, viewerSet) {
			continue
		}
		visible = append(visible, trip)
	}

	start := (page - 1) * PageSize
	if start >= len(visible) {
		return []Item{}, nil
	}
	end := min(start+PageSize, len(visible))
	pageTrips := visible[start:end]

	ids := make([]uint64, 0, len(pageTrips))
	for _, trip := range pageTrips {
		ids = append(ids, trip.ID)
	}
	likers, errLikers := s.trips.LikersFor(ctx, ids)
	if errLikers != nil {
		return nil, errLikers
	}
	photoCounts, errPhotos := s.photos.CountValid(ctx, ids)
	if errPhotos != nil {
		return nil, fmt.Errorf("feed: %w", errPhotos)
	}
	viewerFriends := visibility.NewFriendSet(friendIDs...)

	items := make([]Item, 0, len(pageTrips))
	for _, trip := range pageTrips {
		owner := owners[trip.UserID]
		visibility.Sanitise(viewer, trip, owner)
		tripLikers := likers[trip.ID]
		item := Item{
			Trip:       trip,
			Owner:      owner,
			LikesCount: len(tripLikers),
			LikedStr:   social.CaptionFor(tripLikers, viewer, viewerFriends),
		}
		for i := range tripLikers {
			if tripLikers[i].ID == viewer.ID {
				item.ViewerLiked = true
				break
			}
		}
		if visibility.PhotosVisible(viewer, trip, owner, viewerSet) {
			item.PhotoCount = photoCounts[trip.ID]
			item.HasPhotos = item.PhotoCount > 0
		}
		items = append(items, item)
	}
	return items, nil
}

// SetOrdering stores the user's preferred feed ordering.
func (s *Service) SetOrdering(ctx context.Context, user *models.User, ordering models.FeedOrdering) error {
	if user == nil {
		return apperr.Forbidden("You must be signed in to change the feed ordering.")
	}
	if ordering != models.FeedByAdded && ordering != models.FeedByStart {
		return apperr.FieldError("sort", "Select a valid choice.")
	}
	user.FeedOrdering = ordering
	return s.users.Update(ctx, user)
}

package social

import (
	"context"
	"fmt"
	"strings"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/visibility"
	log "github.com/sirupsen/logrus"
)

// CaptionNameLimit is how many names a liked caption shows before
// summarising the rest.
const CaptionNameLimit = 2

// LikeState is the result of toggling a like.
type LikeState struct {
	Liked   bool
	Count   int
	Caption string
}

// ToggleLike likes or unlikes trip for viewer and returns the new state.
func (s *Service) ToggleLike(ctx context.Context, viewer *models.User, trip *models.Trip) (*LikeState, error) {
	if errUser := requireUser(viewer); errUser != nil {
		return nil, errUser
	}
	owner, visible, errVisible := s.viewable(ctx, viewer, trip)
	if errVisible != nil {
		return nil, errVisible
	}
	if !visible {
		return nil, apperr.NotFound("trip")
	}

	liked, errLiked := s.trips.HasLiked(ctx, trip.ID, viewer.ID)
	if errLiked != nil {
		return nil, errLiked
	}
	if liked {
		if errUnlike := s.trips.Unlike(ctx, trip.ID, viewer.ID); errUnlike != nil {
			return nil, fmt.Errorf("social: unlike: %w", errUnlike)
		}
		logTripAction(viewer, trip, "unliked")
	} else {
		if _, errLike := s.trips.Like(ctx, trip.ID, viewer.ID); errLike != nil {
			return nil, errLike
		}
		logTripAction(viewer, trip, "liked")
	}

	likers, errLikers := s.trips.Likers(ctx, trip.ID)
	if errLikers != nil {
		return nil, errLikers
	}
	switch {
	case liked && len(likers) == 0:
		if errDelete := s.notifications.DeleteTripNotification(ctx, owner.ID, trip.ID, models.NotificationTripLike); errDelete != nil {
			log.WithError(errDelete).Warn("social: delete like notification")
		}
	case !liked && owner.ID != viewer.ID:
		if errTouch := s.notifications.TouchTripNotification(ctx, owner.ID, trip.ID, models.NotificationTripLike); errTouch != nil {
			log.WithError(errTouch).Warn("social: like notification")
		}
	}

	friends, errFriends := s.users.FriendSet(ctx, viewer.ID)
	if errFriends != nil {
		return nil, errFriends
	}
	return &LikeState{
		Liked:   !liked,
		Count:   len(likers),
		Caption: CaptionFor(likers, viewer, friends),
	}, nil
}

// TripCaption returns the liked caption of trip as seen by viewer.
func (s *Service) TripCaption(ctx context.Context, viewer *models.User, trip *models.Trip) (string, error) {
	likers, errLikers := s.trips.Likers(ctx, trip.ID)
	if errLikers != nil {
		return "", errLikers
	}
	var friends visibility.FriendSet
	if viewer != nil {
		set, errFriends := s.users.FriendSet(ctx, viewer.ID)
		if errFriends != nil {
			return "", errFriends
		}
		friends = set
	}
	return CaptionFor(likers, viewer, friends), nil
}

// CaptionFor orders likers with viewer's friends first and builds the
// caption. viewer may be nil.
func CaptionFor(likers []models.User, viewer *models.User, viewerFriends visibility.FriendSet) string {
	var friendNames, otherNames []string
	selfLiked := false
	for i := range likers {
		u := &likers[i]
		if viewer != nil && u.ID == viewer.ID {
			selfLiked = true
			continue
		}
		if viewerFriends.Has(u.ID) {
			friendNames = append(friendNames, u.Name)
		} else {
			otherNames = append(otherNames, u.Name)
		}
	}
	names := append(friendNames, otherNames...)
	if selfLiked {
		names = append(names, "you")
	}
	return LikedCaption(names, selfLiked, CaptionNameLimit)
}

// LikedCaption renders names, already ordered, as "Liked by A, B and 3
// others". When viewerLiked is set names ends with "you".
func LikedCaption(names []string, viewerLiked bool, limit int) string {
	if limit <= 0 {
		limit = CaptionNameLimit
	}
	if len(names) == 0 {
		return "0 likes"
	}
	shown := append([]string(nil), names...)
	if len(shown) > limit {
		others := len(shown) - limit
		shown = shown[:limit]
		switch {
		case others == 1 && viewerLiked:
			shown = append(shown, "you")
		case others == 1:
			shown = append(shown, "1 other")
		default:
			shown = append(shown, fmt.Sprintf("%d others", others))
		}
	}
	if len(shown) == 1 {
		if viewerLiked {
			return "You liked this"
		}
		return shown[0] + " liked this"
	}
	return "Liked by " + strings.Join(shown[:len(shown)-1], ", ") + " and " + shown[len(shown)-1]
}

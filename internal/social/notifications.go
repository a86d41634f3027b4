package social

import (
	"context"
	"strings"
	"time"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/models"
)

// NotificationView is a notification rendered for its recipient.
type NotificationView struct {
	ID      uint64    `json:"id"`
	Message string    `json:"message"`
	URL     string    `json:"url"`
	Read    bool      `json:"read"`
	Updated time.Time `json:"updated"`
}

// Notifications returns user's most recent notifications, rendered.
func (s *Service) Notifications(ctx context.Context, user *models.User, limit int) ([]NotificationView, error) {
	if errUser := requireUser(user); errUser != nil {
		return nil, errUser
	}
	rows, errList := s.notifications.List(ctx, user.ID, limit)
	if errList != nil {
		return nil, errList
	}
	out := make([]NotificationView, 0, len(rows))
	for i := range rows {
		n := &rows[i]
		message, url, errRender := s.render(ctx, user, n)
		if errRender != nil {
			if apperr.Is(errRender, apperr.KindNotFound) {
				continue
			}
			return nil, errRender
		}
		out = append(out, NotificationView{ID: n.ID, Message: message, URL: url, Read: n.Read, Updated: n.UpdatedAt})
	}
	return out, nil
}

func (s *Service) render(ctx context.Context, user *models.User, n *models.Notification) (string, string, error) {
	if n.Type == models.NotificationFreeText || n.TripID == nil {
		msg, url := n.Render(nil)
		return msg, url, nil
	}
	trip, errTrip := s.trips.Get(ctx, *n.TripID)
	if errTrip != nil {
		return "", "", errTrip
	}
	owner, errOwner := s.users.Get(ctx, trip.UserID)
	if errOwner != nil {
		return "", "", errOwner
	}
	actx := &models.TripActionContext{
		Recipient: user,
		Owner:     owner,
		CaveName:  trip.CaveName,
		TripURL:   trip.Path(),
	}
	switch n.Type {
	case models.NotificationTripLike:
		likers, errLikers := s.trips.Likers(ctx, trip.ID)
		if errLikers != nil {
			return "", "", errLikers
		}
		for i := len(likers) - 1; i >= 0; i-- {
			if likers[i].ID != user.ID {
				actx.Actors = append(actx.Actors, &likers[i])
			}
		}
	case models.NotificationTripComment:
		commenters, errCommenters := s.comments.CommentersFor(ctx, trip.ID, user.ID)
		if errCommenters != nil {
			return "", "", errCommenters
		}
		for i := len(commenters) - 1; i >= 0; i-- {
			actx.Actors = append(actx.Actors, commenters[i])
		}
	}
	msg, url := n.Render(actx)
	return msg, url, nil
}

// UnreadCount returns how many of user's notifications are unread.
func (s *Service) UnreadCount(ctx context.Context, user *models.User) (int64, error) {
	if user == nil {
		return 0, nil
	}
	return s.notifications.UnreadCount(ctx, user.ID)
}

// OpenNotification marks a notification read and returns where it points.
func (s *Service) OpenNotification(ctx context.Context, user *models.User, id uint64) (string, error) {
	if errUser := requireUser(user); errUser != nil {
		return "", errUser
	}
	n, errGet := s.notifications.Get(ctx, user.ID, id)
	if errGet != nil {
		return "", errGet
	}
	if errRead := s.notifications.MarkRead(ctx, user.ID, n.ID); errRead != nil {
		return "", errRead
	}
	_, url, errRender := s.render(ctx, user, n)
	if errRender != nil {
		return "", errRender
	}
	return url, nil
}

// MarkAllRead marks every notification of user as read.
func (s *Service) MarkAllRead(ctx context.Context, user *models.User) error {
	if errUser := requireUser(user); errUser != nil {
		return errUser
	}
	return s.notifications.MarkAllRead(ctx, user.ID)
}

// MarkReadForPath marks read the notifications that point at path. Visiting
// a trip page also clears that trip's like and comment notifications.
func (s *Service) MarkReadForPath(ctx context.Context, user *models.User, path string) (int64, error) {
	if user == nil || strings.TrimSpace(path) == "" {
		return 0, nil
	}
	var tripID uint64
	if id, ok := tripUUIDFromPath(path); ok {
		trip, errTrip := s.trips.ByUUID(ctx, id)
		switch {
		case errTrip == nil:
			tripID = trip.ID
		case !apperr.Is(errTrip, apperr.KindNotFound):
			return 0, errTrip
		}
	}
	return s.notifications.MarkReadForPath(ctx, user.ID, path, tripID)
}

// tripUUIDFromPath extracts the identifier from /trips/<uuid>/.
func tripUUIDFromPath(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/trips/")
	if !ok {
		return "", false
	}
	id, _, _ := strings.Cut(rest, "/")
	if id == "" {
		return "", false
	}
	return id, true
}

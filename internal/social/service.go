// Package social implements friendships, likes, comments, trip follows and
// in-app notifications.
package social

import (
	"context"
	"fmt"
	"strings"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/mailer"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
	"github.com/cavelog/cavelog/internal/visibility"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Mailer enqueues transactional email.
type Mailer interface {
	Emit(ctx context.Context, template mailer.Template, recipient string, data map[string]any) error
}

// Service coordinates the social features on top of the stores.
type Service struct {
	db            *gorm.DB
	users         *store.UserStore
	trips         *store.TripStore
	requests      *store.FriendRequestStore
	comments      *store.CommentStore
	notifications *store.NotificationStore
	mail          Mailer
	siteRoot      string
}

// NewService constructs a Service. mail may be nil, in which case no email is
// sent.
func NewService(db *gorm.DB, mail Mailer, siteRoot string) *Service {
	return &Service{
		db:            db,
		users:         store.NewUserStore(db),
		trips:         store.NewTripStore(db),
		requests:      store.NewFriendRequestStore(db),
		comments:      store.NewCommentStore(db),
		notifications: store.NewNotificationStore(db),
		mail:          mail,
		siteRoot:      strings.TrimRight(strings.TrimSpace(siteRoot), "/"),
	}
}

func (s *Service) absolute(path string) string {
	return s.siteRoot + path
}

func (s *Service) emit(ctx context.Context, template mailer.Template, to string, data map[string]any) {
	if s.mail == nil {
		return
	}
	// Email failures never fail the request.
	if errEmit := s.mail.Emit(ctx, template, to, data); errEmit != nil {
		log.WithError(errEmit).WithField("template", string(template)).Warn("social: email not queued")
	}
}

// viewable loads trip's owner and reports whether viewer may see the trip.
func (s *Service) viewable(ctx context.Context, viewer *models.User, trip *models.Trip) (*models.User, bool, error) {
	owner := trip.User
	if owner == nil {
		loaded, errOwner := s.users.Get(ctx, trip.UserID)
		if errOwner != nil {
			return nil, false, errOwner
		}
		owner = loaded
	}
	friends, errFriends := s.users.FriendSet(ctx, owner.ID)
	if errFriends != nil {
		return nil, false, errFriends
	}
	return owner, visibility.TripVisible(viewer, trip, owner, friends), nil
}

func logTripAction(user *models.User, trip *models.Trip, verb string) {
	log.WithFields(log.Fields{
		"user": user.Username,
		"trip": trip.UUID,
	}).Info(fmt.Sprintf("%s %s a trip to %s", user.Name, verb, trip.CaveName))
}

func requireUser(user *models.User) error {
	if user == nil {
		return apperr.Forbidden("You must be signed in to do that.")
	}
	return nil
}

package social

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/mailer"
	"github.com/cavelog/cavelog/internal/models"
	log "github.com/sirupsen/logrus"
)

const (
	msgCommentTooLong   = "Your comment must be less than 2000 characters long."
	msgCommentForbidden = "You are not allowed to comment on that item."
	msgCommentsDisabled = "Comments are not allowed on that item."
	msgCommentRequired  = "This field is required."
)

func cleanComment(content string) (string, *apperr.Error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.FieldError("content", msgCommentRequired)
	}
	if utf8.RuneCountInString(content) > models.CommentMaxLength {
		return "", apperr.FieldError("content", msgCommentTooLong)
	}
	return content, nil
}

// AddTripComment stores a comment by author on trip. The author starts
// following the trip and every other follower is notified.
func (s *Service) AddTripComment(ctx context.Context, author *models.User, trip *models.Trip, content string) (*models.Comment, error) {
	if errUser := requireUser(author); errUser != nil {
		return nil, errUser
	}
	content, verr := cleanComment(content)
	if verr != nil {
		return nil, verr
	}
	owner, visible, errVisible := s.viewable(ctx, author, trip)
	if errVisible != nil {
		return nil, errVisible
	}
	if !visible {
		return nil, apperr.Validation(msgCommentForbidden)
	}
	if !owner.AllowComments {
		return nil, apperr.Validation(msgCommentsDisabled)
	}

	comment := &models.Comment{TripID: trip.ID, AuthorID: author.ID, Content: content}
	if errCreate := s.comments.Create(ctx, comment); errCreate != nil {
		return nil, errCreate
	}
	comment.Author = author
	if errFollow := s.trips.Follow(ctx, trip.ID, author.ID); errFollow != nil {
		log.WithError(errFollow).Warn("social: follow on comment")
	}

	followers, errFollowers := s.trips.Followers(ctx, trip.ID)
	if errFollowers != nil {
		return nil, errFollowers
	}
	for i := range followers {
		follower := &followers[i]
		if follower.ID == author.ID {
			continue
		}
		if follower.EmailComments {
			s.emit(ctx, mailer.NewComment, follower.Email, map[string]any{
				"name":            follower.Name,
				"commenter_name":  author.Name,
				"trip":            tripTitle(trip),
				"comment_content": content,
				"url":             s.absolute(trip.Path()),
			})
		}
		if errTouch := s.notifications.TouchTripNotification(ctx, follower.ID, trip.ID, models.NotificationTripComment); errTouch != nil {
			log.WithError(errTouch).Warn("social: comment notification")
		}
	}
	logTripAction(author, trip, "commented on")
	return comment, nil
}

func tripTitle(trip *models.Trip) string {
	return trip.CaveName + " on " + trip.Start.UTC().Format("2 Jan 2006")
}

// AddNewsComment stores a comment on a published news item.
func (s *Service) AddNewsComment(ctx context.Context, author *models.User, newsID uint64, content string) (*models.NewsComment, error) {
	if errUser := requireUser(author); errUser != nil {
		return nil, errUser
	}
	content, verr := cleanComment(content)
	if verr != nil {
		return nil, verr
	}
	news, errNews := s.comments.GetNews(ctx, newsID)
	if errNews != nil {
		return nil, errNews
	}
	comment := &models.NewsComment{NewsID: news.ID, AuthorID: author.ID, Content: content}
	if errCreate := s.comments.CreateNews(ctx, comment); errCreate != nil {
		return nil, errCreate
	}
	return comment, nil
}

// DeleteComment removes a trip comment. The author, the trip owner and
// superusers may delete.
func (s *Service) DeleteComment(ctx context.Context, user *models.User, commentID uint64) error {
	if errUser := requireUser(user); errUser != nil {
		return errUser
	}
	comment, errGet := s.comments.Get(ctx, commentID)
	if errGet != nil {
		return errGet
	}
	trip, errTrip := s.trips.Get(ctx, comment.TripID)
	if errTrip != nil {
		return errTrip
	}
	if comment.AuthorID != user.ID && trip.UserID != user.ID && !user.IsSuperuser {
		return apperr.Forbidden("You cannot delete that comment.")
	}
	if errDelete := s.comments.Delete(ctx, comment.ID); errDelete != nil {
		return errDelete
	}
	logTripAction(user, trip, "deleted a comment on")
	return nil
}

// ListTripComments returns trip's comments when viewer may see the trip.
func (s *Service) ListTripComments(ctx context.Context, viewer *models.User, trip *models.Trip) ([]models.Comment, error) {
	_, visible, errVisible := s.viewable(ctx, viewer, trip)
	if errVisible != nil {
		return nil, errVisible
	}
	if !visible {
		return nil, apperr.Forbidden(msgCommentForbidden)
	}
	return s.comments.ForTrip(ctx, trip.ID)
}

// Follow subscribes user to comment notifications on trip.
func (s *Service) Follow(ctx context.Context, user *models.User, trip *models.Trip) error {
	if errUser := requireUser(user); errUser != nil {
		return errUser
	}
	if _, visible, errVisible := s.viewable(ctx, user, trip); errVisible != nil {
		return errVisible
	} else if !visible {
		return apperr.NotFound("trip")
	}
	if errFollow := s.trips.Follow(ctx, trip.ID, user.ID); errFollow != nil {
		return errFollow
	}
	logTripAction(user, trip, "followed")
	return nil
}

// Unfollow removes user from trip's followers.
func (s *Service) Unfollow(ctx context.Context, user *models.User, trip *models.Trip) error {
	if errUser := requireUser(user); errUser != nil {
		return errUser
	}
	if errUnfollow := s.trips.Unfollow(ctx, trip.ID, user.ID); errUnfollow != nil {
		return errUnfollow
	}
	logTripAction(user, trip, "unfollowed")
	return nil
}

package social

import (
	"context"
	"fmt"
	"strings"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/mailer"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	msgFriendSelf    = "You cannot add yourself as a friend."
	msgRequestExists = "A friend request already exists for this user. You may need to wait for them to accept it, or accept it yourself using the form below."
)

// FriendsPage is everything shown on the friends page.
type FriendsPage struct {
	Friends  []models.User
	Incoming []models.FriendRequest
	Outgoing []models.FriendRequest
}

// Friends lists user's friends and pending requests.
func (s *Service) Friends(ctx context.Context, user *models.User) (*FriendsPage, error) {
	if errUser := requireUser(user); errUser != nil {
		return nil, errUser
	}
	friends, errFriends := s.users.Friends(ctx, user.ID)
	if errFriends != nil {
		return nil, errFriends
	}
	incoming, errIn := s.requests.Incoming(ctx, user.ID)
	if errIn != nil {
		return nil, errIn
	}
	outgoing, errOut := s.requests.Outgoing(ctx, user.ID)
	if errOut != nil {
		return nil, errOut
	}
	return &FriendsPage{Friends: friends, Incoming: incoming, Outgoing: outgoing}, nil
}

// findByIdentifier looks a user up by handle, then by email, honouring each
// user's discoverability settings.
func (s *Service) findByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	ident := strings.ToLower(strings.TrimSpace(identifier))
	if ident == "" {
		return nil, nil
	}
	byUsername, errUsername := s.users.ByUsername(ctx, ident)
	switch {
	case errUsername == nil && byUsername.AllowFriendUsername:
		return byUsername, nil
	case errUsername != nil && !apperr.Is(errUsername, apperr.KindNotFound):
		return nil, errUsername
	}
	byEmail, errEmail := s.users.ByEmail(ctx, ident)
	switch {
	case errEmail == nil && byEmail.AllowFriendEmail:
		return byEmail, nil
	case errEmail != nil && !apperr.Is(errEmail, apperr.KindNotFound):
		return nil, errEmail
	}
	return nil, nil
}

// SendRequest sends a friend request from user to the account matching
// identifier and notifies the recipient.
func (s *Service) SendRequest(ctx context.Context, from *models.User, identifier string) (*models.FriendRequest, error) {
	if errUser := requireUser(from); errUser != nil {
		return nil, errUser
	}
	target, errFind := s.findByIdentifier(ctx, identifier)
	if errFind != nil {
		return nil, errFind
	}
	if target == nil {
		msg := fmt.Sprintf("Could not find a user with the identifier '%s'.", strings.TrimSpace(identifier))
		return nil, apperr.FieldError("user", msg)
	}
	if target.ID == from.ID {
		return nil, apperr.FieldError("user", msgFriendSelf)
	}
	already, errFriends := s.users.AreFriends(ctx, from.ID, target.ID)
	if errFriends != nil {
		return nil, errFriends
	}
	if already {
		return nil, apperr.FieldError("user", fmt.Sprintf("%s is already your friend.", target.Name))
	}
	existing, errBetween := s.requests.Between(ctx, from.ID, target.ID)
	if errBetween != nil {
		return nil, errBetween
	}
	if existing != nil {
		return nil, apperr.FieldError("user", msgRequestExists)
	}

	req, errCreate := s.requests.Create(ctx, from.ID, target.ID)
	if errCreate != nil {
		if apperr.Is(errCreate, apperr.KindConflict) {
			return nil, apperr.FieldError("user", msgRequestExists)
		}
		return nil, errCreate
	}
	req.FromUser, req.ToUser = from, target

	if _, errNotify := s.notifications.Notify(ctx, target.ID, fmt.Sprintf("%s sent you a friend request", from.Name), models.FriendsPath); errNotify != nil {
		log.WithError(errNotify).Warn("social: friend request notification")
	}
	if target.EmailFriendRequests {
		s.emit(ctx, mailer.FriendRequestReceived, target.Email, map[string]any{
			"name":           target.Name,
			"requester_name": from.Name,
			"url":            s.absolute(models.FriendsPath),
		})
	}
	log.WithFields(log.Fields{"from": from.Username, "to": target.Username}).Info("social: friend request sent")
	return req, nil
}

// Accept accepts a request addressed to user. Both friendship directions are
// written and the request removed in one transaction.
func (s *Service) Accept(ctx context.Context, user *models.User, requestID uint64) error {
	if errUser := requireUser(user); errUser != nil {
		return errUser
	}
	req, errGet := s.requests.Get(ctx, requestID)
	if errGet != nil {
		return errGet
	}
	if req.ToUserID != user.ID {
		return apperr.Forbidden("You cannot accept that friend request.")
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return store.AcceptTx(tx, req)
	})
	if errTx != nil {
		return errTx
	}

	from := req.FromUser
	if from == nil {
		return nil
	}
	if _, errNotify := s.notifications.Notify(ctx, from.ID, fmt.Sprintf("%s accepted your friend request", user.Name), user.Path()); errNotify != nil {
		log.WithError(errNotify).Warn("social: friend accept notification")
	}
	if from.EmailFriendRequests {
		s.emit(ctx, mailer.FriendRequestAccepted, from.Email, map[string]any{
			"name":          from.Name,
			"accepter_name": user.Name,
			"url":           s.absolute(user.Path()),
		})
	}
	log.WithFields(log.Fields{"from": from.Username, "to": user.Username}).Info("social: friend request accepted")
	return nil
}

// Reject declines a request addressed to user.
func (s *Service) Reject(ctx context.Context, user *models.User, requestID uint64) error {
	return s.deleteRequest(ctx, user, requestID, func(req *models.FriendRequest) bool {
		return req.ToUserID == user.ID
	})
}

// Cancel withdraws a request sent by user.
func (s *Service) Cancel(ctx context.Context, user *models.User, requestID uint64) error {
	return s.deleteRequest(ctx, user, requestID, func(req *models.FriendRequest) bool {
		return req.FromUserID == user.ID
	})
}

func (s *Service) deleteRequest(ctx context.Context, user *models.User, requestID uint64, allowed func(*models.FriendRequest) bool) error {
	if errUser := requireUser(user); errUser != nil {
		return errUser
	}
	req, errGet := s.requests.Get(ctx, requestID)
	if errGet != nil {
		return errGet
	}
	if !allowed(req) {
		return apperr.Forbidden("You cannot delete that friend request.")
	}
	return s.requests.Delete(ctx, req.ID)
}

// Remove ends the friendship between user and username.
func (s *Service) Remove(ctx context.Context, user *models.User, username string) error {
	if errUser := requireUser(user); errUser != nil {
		return errUser
	}
	friend, errFind := s.users.ByUsername(ctx, username)
	if errFind != nil {
		return errFind
	}
	are, errFriends := s.users.AreFriends(ctx, user.ID, friend.ID)
	if errFriends != nil {
		return errFriends
	}
	if !are {
		return apperr.NotFound("friend")
	}
	if errRemove := s.users.RemoveFriendship(ctx, user.ID, friend.ID); errRemove != nil {
		return errRemove
	}
	log.WithFields(log.Fields{"user": user.Username, "friend": friend.Username}).Info("social: friend removed")
	return nil
}

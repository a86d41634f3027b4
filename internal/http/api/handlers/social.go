package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/social"
	"github.com/cavelog/cavelog/internal/store"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SocialHandler serves likes, comments, follows, friends and notifications.
type SocialHandler struct {
	trips  *store.TripStore
	social *social.Service
}

// NewSocialHandler constructs a SocialHandler.
func NewSocialHandler(db *gorm.DB, socialSvc *social.Service) *SocialHandler {
	return &SocialHandler{trips: store.NewTripStore(db), social: socialSvc}
}

func (h *SocialHandler) trip(c *gin.Context) (*models.Trip, bool) {
	trip, errTrip := h.trips.ByUUID(c.Request.Context(), c.Param("uuid"))
	if errTrip != nil {
		respondError(c, errTrip)
		return nil, false
	}
	return trip, true
}

// ToggleLike likes or unlikes a trip.
func (h *SocialHandler) ToggleLike(c *gin.Context) {
	trip, ok := h.trip(c)
	if !ok {
		return
	}
	state, errLike := h.social.ToggleLike(c.Request.Context(), CurrentUser(c), trip)
	if errLike != nil {
		respondError(c, errLike)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": state.Liked, "count": state.Count, "liked_str": state.Caption})
}

// commentRequest defines the request body for a new comment.
type commentRequest struct {
	Content string `json:"content"`
}

// ListComments returns a trip's comments.
func (h *SocialHandler) ListComments(c *gin.Context) {
	trip, ok := h.trip(c)
	if !ok {
		return
	}
	comments, errList := h.social.ListTripComments(c.Request.Context(), CurrentUser(c), trip)
	if errList != nil {
		respondError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(comments))
	for _, cm := range comments {
		out = append(out, commentJSON(cm))
	}
	c.JSON(http.StatusOK, gin.H{"comments": out})
}

// AddComment comments on a trip.
func (h *SocialHandler) AddComment(c *gin.Context) {
	trip, ok := h.trip(c)
	if !ok {
		return
	}
	var body commentRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	comment, errAdd := h.social.AddTripComment(c.Request.Context(), CurrentUser(c), trip, body.Content)
	if errAdd != nil {
		respondError(c, errAdd)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": commentJSON(*comment)})
}

// AddNewsComment comments on a news item.
func (h *SocialHandler) AddNewsComment(c *gin.Context) {
	newsID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body commentRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	comment, errAdd := h.social.AddNewsComment(c.Request.Context(), CurrentUser(c), newsID, body.Content)
	if errAdd != nil {
		respondError(c, errAdd)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": gin.H{"id": comment.ID, "content": comment.Content, "added": comment.CreatedAt}})
}

// DeleteComment removes a comment by its author or the trip owner.
func (h *SocialHandler) DeleteComment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if errDelete := h.social.DeleteComment(c.Request.Context(), CurrentUser(c), id); errDelete != nil {
		respondError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted"})
}

// Follow subscribes the user to a trip's comments.
func (h *SocialHandler) Follow(c *gin.Context) {
	trip, ok := h.trip(c)
	if !ok {
		return
	}
	if errFollow := h.social.Follow(c.Request.Context(), CurrentUser(c), trip); errFollow != nil {
		respondError(c, errFollow)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": true})
}

// Unfollow unsubscribes the user from a trip's comments.
func (h *SocialHandler) Unfollow(c *gin.Context) {
	trip, ok := h.trip(c)
	if !ok {
		return
	}
	if errUnfollow := h.social.Unfollow(c.Request.Context(), CurrentUser(c), trip); errUnfollow != nil {
		respondError(c, errUnfollow)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": false})
}

// Friends lists friends and pending requests.
func (h *SocialHandler) Friends(c *gin.Context) {
	page, errPage := h.social.Friends(c.Request.Context(), CurrentUser(c))
	if errPage != nil {
		respondError(c, errPage)
		return
	}
	friends := make([]gin.H, 0, len(page.Friends))
	for i := range page.Friends {
		friends = append(friends, userSummary(&page.Friends[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"friends":  friends,
		"incoming": requestsJSON(page.Incoming),
		"outgoing": requestsJSON(page.Outgoing),
	})
}

func requestsJSON(rows []models.FriendRequest) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		out = append(out, gin.H{
			"id":    r.ID,
			"from":  userSummary(r.FromUser),
			"to":    userSummary(r.ToUser),
			"added": r.CreatedAt,
		})
	}
	return out
}

// friendRequest defines the request body for a new friend request.
type friendRequest struct {
	User string `json:"user"`
}

// SendRequest sends a friend request by handle or email.
func (h *SocialHandler) SendRequest(c *gin.Context) {
	var body friendRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req, errSend := h.social.SendRequest(c.Request.Context(), CurrentUser(c), strings.TrimSpace(body.User))
	if errSend != nil {
		respondError(c, errSend)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": req.ID})
}

// AcceptRequest accepts an incoming friend request.
func (h *SocialHandler) AcceptRequest(c *gin.Context) {
	h.requestAction(c, h.social.Accept, "Friend request accepted")
}

// RejectRequest declines an incoming friend request.
func (h *SocialHandler) RejectRequest(c *gin.Context) {
	h.requestAction(c, h.social.Reject, "Friend request rejected")
}

// CancelRequest withdraws an outgoing friend request.
func (h *SocialHandler) CancelRequest(c *gin.Context) {
	h.requestAction(c, h.social.Cancel, "Friend request cancelled")
}

func (h *SocialHandler) requestAction(c *gin.Context, action func(ctx context.Context, user *models.User, id uint64) error, message string) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if errAction := action(c.Request.Context(), CurrentUser(c), id); errAction != nil {
		respondError(c, errAction)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// RemoveFriend ends a friendship.
func (h *SocialHandler) RemoveFriend(c *gin.Context) {
	if errRemove := h.social.Remove(c.Request.Context(), CurrentUser(c), c.Param("username")); errRemove != nil {
		respondError(c, errRemove)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Friend removed"})
}

// Notifications lists recent notifications and the unread count.
func (h *SocialHandler) Notifications(c *gin.Context) {
	ctx := c.Request.Context()
	user := CurrentUser(c)
	items, errList := h.social.Notifications(ctx, user, queryInt(c, "limit", 20))
	if errList != nil {
		respondError(c, errList)
		return
	}
	unread, errUnread := h.social.UnreadCount(ctx, user)
	if errUnread != nil {
		respondError(c, errUnread)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items, "unread": unread})
}

// OpenNotification marks a notification read and returns its target.
func (h *SocialHandler) OpenNotification(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	url, errOpen := h.social.OpenNotification(c.Request.Context(), CurrentUser(c), id)
	if errOpen != nil {
		respondError(c, errOpen)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// MarkAllRead marks every notification read.
func (h *SocialHandler) MarkAllRead(c *gin.Context) {
	if errMark := h.social.MarkAllRead(c.Request.Context(), CurrentUser(c)); errMark != nil {
		respondError(c, errMark)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read"})
}

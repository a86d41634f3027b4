package handlers

import (
	"net/http"
	"strings"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/store"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NotificationHandler broadcasts site-wide notices.
type NotificationHandler struct {
	notifications *store.NotificationStore
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(db *gorm.DB) *NotificationHandler {
	return &NotificationHandler{notifications: store.NewNotificationStore(db)}
}

// notifyAllRequest defines the request body for a broadcast.
type notifyAllRequest struct {
	Message string `json:"message"`
	URL     string `json:"url"`
}

// NotifyAll sends a free text notification to every user.
func (h *NotificationHandler) NotifyAll(c *gin.Context) {
	var body notifyAllRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	n, errNotify := h.notifications.NotifyAll(c.Request.Context(), strings.TrimSpace(body.Message), strings.TrimSpace(body.URL))
	if errNotify != nil {
		if apperr.Is(errNotify, apperr.KindValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errNotify.Error()})
			return
		}
		log.WithError(errNotify).Error("admin: notify all failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "notify failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"notified": n})
}

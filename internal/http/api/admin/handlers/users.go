// Package handlers implements the staff-only maintenance endpoints.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	dbutil "github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// UserHandler manages member accounts.
type UserHandler struct {
	db    *gorm.DB
	users *store.UserStore
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db, users: store.NewUserStore(db)}
}

func userJSON(user *models.User) gin.H {
	return gin.H{
		"id":                 user.ID,
		"uuid":               user.UUID,
		"username":           user.Username,
		"email":              user.Email,
		"name":               user.Name,
		"is_active":          user.IsActive,
		"has_verified_email": user.HasVerifiedEmail,
		"is_superuser":       user.IsSuperuser,
		"privacy":            user.Privacy,
		"last_seen":          user.LastSeen,
		"created_at":         user.CreatedAt,
	}
}

// List returns users with optional filters.
func (h *UserHandler) List(c *gin.Context) {
	var (
		usernameQ = strings.TrimSpace(c.Query("username"))
		emailQ    = strings.TrimSpace(c.Query("email"))
		searchQ   = strings.TrimSpace(c.Query("search"))
		inactiveQ = strings.TrimSpace(c.Query("inactive"))
	)

	q := h.db.WithContext(c.Request.Context()).Model(&models.User{})
	if usernameQ != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+usernameQ+"%")
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "username"), pattern)
	}
	if emailQ != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+emailQ+"%")
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "email"), pattern)
	}
	if searchQ != "" {
		ciPattern := dbutil.NormalizeLikePattern(h.db, "%"+searchQ+"%")
		q = q.Where(
			dbutil.CaseInsensitiveLikeExpr(h.db, "username")+" OR "+
				dbutil.CaseInsensitiveLikeExpr(h.db, "email")+" OR "+
				dbutil.CaseInsensitiveLikeExpr(h.db, "name"),
			ciPattern,
			ciPattern,
			ciPattern,
		)
	}
	if inactive, errParse := strconv.ParseBool(inactiveQ); errParse == nil && inactive {
		q = q.Where("is_active = ?", false)
	}

	var rows []models.User
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, userJSON(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

func (h *UserHandler) load(c *gin.Context) (*models.User, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return nil, false
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	return &user, true
}

// Get returns a user by ID.
func (h *UserHandler) Get(c *gin.Context) {
	user, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, userJSON(user))
}

// Delete removes a user and everything they own.
func (h *UserHandler) Delete(c *gin.Context) {
	user, ok := h.load(c)
	if !ok {
		return
	}
	if errDelete := h.users.Delete(c.Request.Context(), user.ID); errDelete != nil {
		log.WithError(errDelete).WithField("user", user.ID).Error("admin: delete user failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	log.WithField("user", user.Username).Info("admin: user deleted")
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

// Disable prevents a user from signing in.
func (h *UserHandler) Disable(c *gin.Context) {
	h.setActive(c, false)
}

// Enable allows a user to sign in again.
func (h *UserHandler) Enable(c *gin.Context) {
	h.setActive(c, true)
}

func (h *UserHandler) setActive(c *gin.Context, active bool) {
	user, ok := h.load(c)
	if !ok {
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{"is_active": active, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	user.IsActive = active
	c.JSON(http.StatusOK, userJSON(user))
}

// Prune deletes accounts that never verified their email.
func (h *UserHandler) Prune(c *gin.Context) {
	n, errPrune := h.users.PruneInactive(c.Request.Context(), time.Now().UTC())
	if errPrune != nil {
		log.WithError(errPrune).Error("admin: prune inactive users failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "prune failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

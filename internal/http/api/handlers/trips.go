package handlers

import (
	"net/http"

	"github.com/cavelog/cavelog/internal/social"
	"github.com/cavelog/cavelog/internal/store"
	"github.com/cavelog/cavelog/internal/trips"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TripHandler manages trip and trip report endpoints.
type TripHandler struct {
	trips  *trips.Service
	store  *store.TripStore
	social *social.Service
}

// NewTripHandler constructs a TripHandler.
func NewTripHandler(db *gorm.DB, socialSvc *social.Service) *TripHandler {
	return &TripHandler{
		trips:  trips.NewService(db),
		store:  store.NewTripStore(db),
		social: socialSvc,
	}
}

// Create adds a trip to the signed-in user's logbook.
func (h *TripHandler) Create(c *gin.Context) {
	var body trips.Draft
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	trip, errCreate := h.trips.Create(c.Request.Context(), CurrentUser(c), &body)
	if errCreate != nil {
		respondError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"trip": tripJSON(trip, true)})
}

// Get returns a trip page with its like caption and report.
func (h *TripHandler) Get(c *gin.Context) {
	viewer := CurrentUser(c)
	detail, errDetail := h.trips.Detail(c.Request.Context(), viewer, c.Param("uuid"))
	if errDetail != nil {
		respondError(c, errDetail)
		return
	}
	caption, errCaption := h.social.TripCaption(c.Request.Context(), viewer, detail.Trip)
	if errCaption != nil {
		log.WithError(errCaption).Warn("api: trip caption")
	}
	out := gin.H{
		"trip":           tripJSON(detail.Trip, detail.ShowDistances),
		"owner":          userSummary(detail.Owner),
		"number":         detail.Number,
		"liked_str":      caption,
		"photos_visible": detail.PhotosVisible,
		"report":         reportJSON(detail.Report),
	}
	if viewer != nil {
		liked, errLiked := h.store.HasLiked(c.Request.Context(), detail.Trip.ID, viewer.ID)
		if errLiked != nil {
			respondError(c, errLiked)
			return
		}
		following, errFollowing := h.store.IsFollowing(c.Request.Context(), detail.Trip.ID, viewer.ID)
		if errFollowing != nil {
			respondError(c, errFollowing)
			return
		}
		out["viewer_liked"] = liked
		out["viewer_following"] = following
	}
	c.JSON(http.StatusOK, out)
}

// Update replaces a trip's fields.
func (h *TripHandler) Update(c *gin.Context) {
	var body trips.Draft
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	trip, errUpdate := h.trips.Update(c.Request.Context(), CurrentUser(c), c.Param("uuid"), &body)
	if errUpdate != nil {
		respondError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trip": tripJSON(trip, true)})
}

// Delete removes a trip.
func (h *TripHandler) Delete(c *gin.Context) {
	if errDelete := h.trips.Delete(c.Request.Context(), CurrentUser(c), c.Param("uuid")); errDelete != nil {
		respondError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Trip deleted"})
}

// Logbook lists a user's trips visible to the viewer.
func (h *TripHandler) Logbook(c *gin.Context) {
	book, errBook := h.trips.ForUser(c.Request.Context(), CurrentUser(c), c.Param("username"))
	if errBook != nil {
		respondError(c, errBook)
		return
	}
	viewer := CurrentUser(c)
	self := viewer != nil && viewer.ID == book.Owner.ID
	c.JSON(http.StatusOK, gin.H{
		"user":  profileJSON(book.Owner, self),
		"trips": tripsJSON(book.Trips),
	})
}

// SaveReport creates or replaces a trip's report.
func (h *TripHandler) SaveReport(c *gin.Context) {
	var body trips.ReportDraft
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	report, errSave := h.trips.SaveReport(c.Request.Context(), CurrentUser(c), c.Param("uuid"), body)
	if errSave != nil {
		respondError(c, errSave)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": reportJSON(report)})
}

// DeleteReport removes a trip's report.
func (h *TripHandler) DeleteReport(c *gin.Context) {
	if errDelete := h.trips.DeleteReport(c.Request.Context(), CurrentUser(c), c.Param("uuid")); errDelete != nil {
		respondError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Report deleted"})
}

// Report returns a report page.
func (h *TripHandler) Report(c *gin.Context) {
	detail, errDetail := h.trips.Report(c.Request.Context(), CurrentUser(c), c.Param("username"), c.Param("slug"))
	if errDetail != nil {
		respondError(c, errDetail)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"report": reportJSON(detail.Report),
		"trip":   tripJSON(detail.Trip, false),
		"owner":  userSummary(detail.Owner),
	})
}

// LikeReport toggles the viewer's like on a report.
func (h *TripHandler) LikeReport(c *gin.Context) {
	liked, errLike := h.trips.ToggleReportLike(c.Request.Context(), CurrentUser(c), c.Param("username"), c.Param("slug"))
	if errLike != nil {
		respondError(c, errLike)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": liked})
}

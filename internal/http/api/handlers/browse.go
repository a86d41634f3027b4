package handlers

import (
	"net/http"
	"strings"

	"github.com/cavelog/cavelog/internal/feed"
	"github.com/cavelog/cavelog/internal/geocode"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/search"
	"github.com/cavelog/cavelog/internal/stats"
	"github.com/cavelog/cavelog/internal/store"
	"github.com/cavelog/cavelog/internal/trips"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// BrowseHandler serves the feed, search, statistics and trip maps.
type BrowseHandler struct {
	users  *store.UserStore
	feed   *feed.Service
	search *search.Service
	stats  *stats.Service
	trips  *trips.Service
}

// NewBrowseHandler constructs a BrowseHandler.
func NewBrowseHandler(db *gorm.DB) *BrowseHandler {
	return &BrowseHandler{
		users:  store.NewUserStore(db),
		feed:   feed.NewService(db),
		search: search.NewService(db),
		stats:  stats.NewService(db),
		trips:  trips.NewService(db),
	}
}

// Feed returns one page of the signed-in user's feed.
func (h *BrowseHandler) Feed(c *gin.Context) {
	user := CurrentUser(c)
	ordering := user.FeedOrdering
	if raw := strings.TrimSpace(c.Query("sort")); raw != "" {
		ordering = models.FeedOrdering(raw)
	}
	page := queryInt(c, "page", 1)
	items, errPage := h.feed.Page(c.Request.Context(), user, ordering, page)
	if errPage != nil {
		respondError(c, errPage)
		return
	}
	out := make([]gin.H, 0, len(items))
	for _, item := range items {
		out = append(out, gin.H{
			"trip":         tripJSON(item.Trip, true),
			"owner":        userSummary(item.Owner),
			"likes_count":  item.LikesCount,
			"viewer_liked": item.ViewerLiked,
			"has_photos":   item.HasPhotos,
			"photo_count":  item.PhotoCount,
			"liked_str":    item.LikedStr,
		})
	}
	c.JSON(http.StatusOK, gin.H{"page": page, "items": out})
}

// feedOrderingRequest defines the request body for the feed ordering.
type feedOrderingRequest struct {
	Sort string `json:"sort"`
}

// SetFeedOrdering stores the preferred feed ordering.
func (h *BrowseHandler) SetFeedOrdering(c *gin.Context) {
	var body feedOrderingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	user := CurrentUser(c)
	if errSet := h.feed.SetOrdering(c.Request.Context(), user, models.FeedOrdering(strings.TrimSpace(body.Sort))); errSet != nil {
		respondError(c, errSet)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sort": user.FeedOrdering})
}

// Search runs a trip search.
func (h *BrowseHandler) Search(c *gin.Context) {
	q := search.Query{
		Terms:    c.Query("terms"),
		Username: c.Query("user"),
		Type:     c.Query("trip_type"),
		Page:     queryInt(c, "page", 1),
	}
	if fields := strings.TrimSpace(c.Query("fields")); fields != "" {
		q.Fields = strings.Split(fields, ",")
	}
	result, errSearch := h.search.Search(c.Request.Context(), CurrentUser(c), q)
	if errSearch != nil {
		respondError(c, errSearch)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trips": tripsJSON(result.Trips),
		"total": result.Total,
		"page":  result.Page,
		"pages": result.Pages,
	})
}

// Stats returns a user's statistics report.
func (h *BrowseHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	owner, errOwner := h.users.ByUsername(ctx, c.Param("username"))
	if errOwner != nil {
		respondError(c, errOwner)
		return
	}
	report, errReport := h.stats.ForUser(ctx, CurrentUser(c), owner)
	if errReport != nil {
		respondError(c, errReport)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userSummary(owner), "stats": report})
}

// Map returns the mapped cave locations of a user's visible trips.
func (h *BrowseHandler) Map(c *gin.Context) {
	book, errBook := h.trips.ForUser(c.Request.Context(), CurrentUser(c), c.Param("username"))
	if errBook != nil {
		respondError(c, errBook)
		return
	}
	list := make([]models.Trip, 0, len(book.Trips))
	for _, t := range book.Trips {
		list = append(list, *t)
	}
	c.JSON(http.StatusOK, gin.H{"markers": geocode.Markers(list)})
}

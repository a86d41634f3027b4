// Package handlers implements the JSON endpoints of the logbook API.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// contextUserKey is where the auth middleware stores the signed-in user.
const contextUserKey = "user"

// SetCurrentUser attaches the signed-in user to the request.
func SetCurrentUser(c *gin.Context, user *models.User) {
	c.Set(contextUserKey, user)
}

// CurrentUser returns the signed-in user, or nil for anonymous requests.
func CurrentUser(c *gin.Context) *models.User {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}

// respondError writes err as JSON with the status of its kind. Unexpected
// errors are logged and hidden from the client.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("api: request failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	body := gin.H{"error": err.Error()}
	var domainErr *apperr.Error
	if errors.As(err, &domainErr) && len(domainErr.FieldErrors) > 0 {
		body["errors"] = domainErr.FieldErrors
		if domainErr.Message == "" {
			body["error"] = "invalid input"
		}
	}
	c.JSON(status, body)
}

func parseID(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	n, errParse := strconv.Atoi(raw)
	if errParse != nil {
		return fallback
	}
	return n
}

func userSummary(u *models.User) gin.H {
	if u == nil {
		return nil
	}
	return gin.H{
		"uuid":     u.UUID,
		"username": u.Username,
		"name":     u.Name,
		"url":      u.Path(),
	}
}

func profileJSON(u *models.User, self bool) gin.H {
	out := gin.H{
		"uuid":        u.UUID,
		"username":    u.Username,
		"name":        u.Name,
		"location":    u.Location,
		"bio":         u.Bio,
		"clubs":       u.Clubs,
		"privacy":     u.Privacy,
		"units":       u.Units,
		"date_joined": u.CreatedAt,
	}
	if self {
		out["email"] = u.Email
		out["timezone"] = u.Timezone
		out["feed_ordering"] = u.FeedOrdering
		out["profile_view_count"] = u.ProfileViewCount
		out["custom_field_labels"] = u.CustomFieldLabels()
		out["settings"] = gin.H{
			"allow_friend_username":       u.AllowFriendUsername,
			"allow_friend_email":          u.AllowFriendEmail,
			"allow_comments":              u.AllowComments,
			"public_statistics":           u.PublicStatistics,
			"private_notes":               u.PrivateNotes,
			"disable_distance_statistics": u.DisableDistanceStatistics,
			"disable_survey_statistics":   u.DisableSurveyStatistics,
			"disable_stats_over_time":     u.DisableStatsOverTime,
			"show_cavers_on_trip_list":    u.ShowCaversOnTripList,
			"email_friend_requests":       u.EmailFriendRequests,
			"email_comments":              u.EmailComments,
		}
	}
	return out
}

func tripJSON(t *models.Trip, showDistances bool) gin.H {
	out := gin.H{
		"uuid":          t.UUID,
		"url":           t.Path(),
		"cave_name":     t.CaveName,
		"cave_entrance": t.CaveEntrance,
		"cave_exit":     t.CaveExit,
		"cave_region":   t.CaveRegion,
		"cave_country":  t.CaveCountry,
		"cave_url":      t.CaveURL,
		"cave_location": t.CaveLocation,
		"latitude":      t.Latitude,
		"longitude":     t.Longitude,
		"start":         t.Start,
		"end":           t.End,
		"duration":      t.DurationStr,
		"type":          t.Type,
		"privacy":       t.Privacy,
		"clubs":         t.Clubs,
		"expedition":    t.Expedition,
		"cavers":        t.CaverNames(),
		"notes":         t.Notes,
		"public_notes":  t.PublicNotes,
		"custom_fields": t.CustomFields(),
		"view_count":    t.ViewCount,
		"added":         t.CreatedAt,
		"updated":       t.UpdatedAt,
	}
	if showDistances {
		distances := gin.H{}
		for _, f := range t.Distances() {
			if !f.Value.Empty() {
				distances[f.Column] = f.Value
			}
		}
		out["distances"] = distances
	}
	return out
}

func tripsJSON(trips []*models.Trip) []gin.H {
	out := make([]gin.H, 0, len(trips))
	for _, t := range trips {
		out = append(out, tripJSON(t, true))
	}
	return out
}

func reportJSON(r *models.TripReport) gin.H {
	if r == nil {
		return nil
	}
	return gin.H{
		"id":         r.ID,
		"title":      r.Title,
		"slug":       r.Slug,
		"pub_date":   r.PubDate,
		"content":    r.Content,
		"privacy":    r.Privacy,
		"view_count": r.ViewCount,
		"added":      r.CreatedAt,
		"updated":    r.UpdatedAt,
	}
}

func commentJSON(cm models.Comment) gin.H {
	return gin.H{
		"id":      cm.ID,
		"author":  userSummary(cm.Author),
		"content": cm.Content,
		"added":   cm.CreatedAt.Format(time.RFC3339),
	}
}

// Abort writes err like a handler would and stops the middleware chain.
func Abort(c *gin.Context, err error) {
	respondError(c, err)
	c.Abort()
}

package handlers

import (
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/customfields"
	"github.com/cavelog/cavelog/internal/distance"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
	"github.com/cavelog/cavelog/internal/trips"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AccountHandler manages the signed-in user's profile, settings, custom
// field labels and caver roster.
type AccountHandler struct {
	users        *store.UserStore
	cavers       *store.CaverStore
	customFields *customfields.Service
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(db *gorm.DB) *AccountHandler {
	return &AccountHandler{
		users:        store.NewUserStore(db),
		cavers:       store.NewCaverStore(db),
		customFields: customfields.NewService(db),
	}
}

// Me returns the signed-in user's full profile.
func (h *AccountHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": profileJSON(CurrentUser(c), true)})
}

// settingsRequest defines the request body for a settings change. Omitted
// fields are left unchanged.
type settingsRequest struct {
	Name     *string `json:"name"`
	Location *string `json:"location"`
	Bio      *string `json:"bio"`
	Clubs    *string `json:"clubs"`
	Privacy  *string `json:"privacy"`
	Units    *string `json:"units"`
	Timezone *string `json:"timezone"`

	AllowFriendUsername       *bool `json:"allow_friend_username"`
	AllowFriendEmail          *bool `json:"allow_friend_email"`
	AllowComments             *bool `json:"allow_comments"`
	PublicStatistics          *bool `json:"public_statistics"`
	PrivateNotes              *bool `json:"private_notes"`
	DisableDistanceStatistics *bool `json:"disable_distance_statistics"`
	DisableSurveyStatistics   *bool `json:"disable_survey_statistics"`
	DisableStatsOverTime      *bool `json:"disable_stats_over_time"`
	ShowCaversOnTripList      *bool `json:"show_cavers_on_trip_list"`
	EmailFriendRequests       *bool `json:"email_friend_requests"`
	EmailComments             *bool `json:"email_comments"`
}

func checkLength(verr *apperr.Error, field string, value *string, max int) {
	if value == nil {
		return
	}
	*value = strings.TrimSpace(*value)
	if n := utf8.RuneCountInString(*value); n > max {
		verr.Add(field, trips.MaxLengthMessage(max, n))
	}
}

// UpdateSettings changes profile and privacy settings.
func (h *AccountHandler) UpdateSettings(c *gin.Context) {
	var body settingsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	verr := apperr.NewValidation()
	checkLength(verr, "name", body.Name, 35)
	checkLength(verr, "location", body.Location, 50)
	checkLength(verr, "clubs", body.Clubs, 100)
	if body.Name != nil && *body.Name == "" {
		verr.Add("name", "This field is required.")
	}
	if body.Privacy != nil && !models.Privacy(*body.Privacy).Valid() {
		verr.Add("privacy", "Select a valid choice. "+*body.Privacy+" is not one of the available choices.")
	}
	if body.Units != nil && *body.Units != string(distance.Metric) && *body.Units != string(distance.Imperial) {
		verr.Add("units", "Select a valid choice. "+*body.Units+" is not one of the available choices.")
	}
	if body.Timezone != nil {
		if _, errZone := time.LoadLocation(*body.Timezone); errZone != nil || *body.Timezone == "" {
			verr.Add("timezone", "Select a valid choice. "+*body.Timezone+" is not one of the available choices.")
		}
	}
	if verr.HasErrors() {
		respondError(c, verr)
		return
	}

	user := CurrentUser(c)
	setString(&user.Name, body.Name)
	setString(&user.Location, body.Location)
	setString(&user.Bio, body.Bio)
	setString(&user.Clubs, body.Clubs)
	if body.Privacy != nil {
		user.Privacy = models.Privacy(*body.Privacy)
	}
	if body.Units != nil {
		user.Units = distance.System(*body.Units)
	}
	setString(&user.Timezone, body.Timezone)
	setBool(&user.AllowFriendUsername, body.AllowFriendUsername)
	setBool(&user.AllowFriendEmail, body.AllowFriendEmail)
	setBool(&user.AllowComments, body.AllowComments)
	setBool(&user.PublicStatistics, body.PublicStatistics)
	setBool(&user.PrivateNotes, body.PrivateNotes)
	setBool(&user.DisableDistanceStatistics, body.DisableDistanceStatistics)
	setBool(&user.DisableSurveyStatistics, body.DisableSurveyStatistics)
	setBool(&user.DisableStatsOverTime, body.DisableStatsOverTime)
	setBool(&user.ShowCaversOnTripList, body.ShowCaversOnTripList)
	setBool(&user.EmailFriendRequests, body.EmailFriendRequests)
	setBool(&user.EmailComments, body.EmailComments)
	if errUpdate := h.users.Update(c.Request.Context(), user); errUpdate != nil {
		respondError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": profileJSON(user, true)})
}

func setString(dst *string, value *string) {
	if value != nil {
		*dst = *value
	}
}

func setBool(dst *bool, value *bool) {
	if value != nil {
		*dst = *value
	}
}

// customFieldsRequest defines the request body for custom field labels.
type customFieldsRequest struct {
	Labels [models.CustomFieldCount]string `json:"labels"`
}

// UpdateCustomFields replaces the user's custom field labels.
func (h *AccountHandler) UpdateCustomFields(c *gin.Context) {
	var body customFieldsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	user := CurrentUser(c)
	if errUpdate := h.customFields.UpdateLabels(c.Request.Context(), user, body.Labels); errUpdate != nil {
		respondError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"labels": user.CustomFieldLabels()})
}

// Cavers lists the user's caver roster with trip counts.
func (h *AccountHandler) Cavers(c *gin.Context) {
	ctx := c.Request.Context()
	user := CurrentUser(c)
	rows, errList := h.cavers.List(ctx, user.ID)
	if errList != nil {
		respondError(c, errList)
		return
	}
	counts, errCounts := h.cavers.TripCount(ctx, user.ID)
	if errCounts != nil {
		respondError(c, errCounts)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, caver := range rows {
		out = append(out, gin.H{
			"uuid":           caver.UUID,
			"name":           caver.Name,
			"linked_user_id": caver.LinkedUserID,
			"trip_count":     counts[caver.ID],
		})
	}
	c.JSON(http.StatusOK, gin.H{"cavers": out})
}

func (h *AccountHandler) ownedCaver(c *gin.Context, id string) (*models.Caver, bool) {
	caver, errCaver := h.cavers.ByUUID(c.Request.Context(), id)
	if errCaver == nil && caver.UserID != CurrentUser(c).ID {
		errCaver = apperr.NotFound("caver")
	}
	if errCaver != nil {
		respondError(c, errCaver)
		return nil, false
	}
	return caver, true
}

// caverRequest defines the request body for a caver rename.
type caverRequest struct {
	Name       string `json:"name"`
	LinkedUser string `json:"linked_user"`
}

// UpdateCaver renames a caver and sets its linked account.
func (h *AccountHandler) UpdateCaver(c *gin.Context) {
	caver, ok := h.ownedCaver(c, c.Param("uuid"))
	if !ok {
		return
	}
	var body caverRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	ctx := c.Request.Context()
	var linked *uint64
	if username := strings.TrimSpace(body.LinkedUser); username != "" {
		u, errUser := h.users.ByUsername(ctx, username)
		if errUser != nil {
			respondError(c, apperr.FieldError("linked_user", "Username not found."))
			return
		}
		linked = &u.ID
	}
	if errUpdate := h.cavers.Update(ctx, caver, body.Name, linked); errUpdate != nil {
		respondError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uuid": caver.UUID, "name": caver.Name, "linked_user_id": caver.LinkedUserID})
}

// mergeRequest defines the request body for a caver merge.
type mergeRequest struct {
	Into string `json:"into"`
}

// MergeCaver folds a caver into another roster entry.
func (h *AccountHandler) MergeCaver(c *gin.Context) {
	merged, ok := h.ownedCaver(c, c.Param("uuid"))
	if !ok {
		return
	}
	var body mergeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	kept, ok := h.ownedCaver(c, body.Into)
	if !ok {
		return
	}
	if errMerge := h.cavers.Merge(c.Request.Context(), CurrentUser(c).ID, kept.ID, merged.ID); errMerge != nil {
		respondError(c, errMerge)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uuid": kept.UUID, "name": kept.Name})
}

// DeleteCaver removes a caver from the roster and its trips.
func (h *AccountHandler) DeleteCaver(c *gin.Context) {
	caver, ok := h.ownedCaver(c, c.Param("uuid"))
	if !ok {
		return
	}
	if errDelete := h.cavers.Delete(c.Request.Context(), caver.ID); errDelete != nil {
		respondError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Caver deleted"})
}

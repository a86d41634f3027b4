package handlers

import (
	"net/http"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/photos"
	"github.com/gin-gonic/gin"
)

// maxAvatarBytes caps the size of an uploaded avatar.
const maxAvatarBytes = 5 << 20

// PhotoHandler serves trip photo and avatar endpoints.
type PhotoHandler struct {
	photos *photos.Service
}

// NewPhotoHandler constructs a PhotoHandler. svc is nil when object storage
// is not configured, in which case every endpoint answers 503.
func NewPhotoHandler(svc *photos.Service) *PhotoHandler {
	return &PhotoHandler{photos: svc}
}

func (h *PhotoHandler) available(c *gin.Context) bool {
	if h == nil || h.photos == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "photo storage is not configured"})
		return false
	}
	return true
}

// List returns the trip photos visible to the viewer.
func (h *PhotoHandler) List(c *gin.Context) {
	if !h.available(c) {
		return
	}
	views, errList := h.photos.ForTrip(c.Request.Context(), CurrentUser(c), c.Param("uuid"))
	if errList != nil {
		respondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photos": views})
}

// uploadRequest defines the request body for a presigned upload.
type uploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// RequestUpload signs an upload form for a new trip photo.
func (h *PhotoHandler) RequestUpload(c *gin.Context) {
	if !h.available(c) {
		return
	}
	var body uploadRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	slot, errSlot := h.photos.RequestUpload(c.Request.Context(), CurrentUser(c), c.Param("uuid"), body.Filename, body.ContentType)
	if errSlot != nil {
		respondError(c, errSlot)
		return
	}
	c.JSON(http.StatusCreated, slot)
}

// confirmRequest defines the request body for an upload confirmation.
type confirmRequest struct {
	Key string `json:"key"`
}

// ConfirmUpload marks an uploaded photo valid.
func (h *PhotoHandler) ConfirmUpload(c *gin.Context) {
	if !h.available(c) {
		return
	}
	var body confirmRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	photo, errConfirm := h.photos.ConfirmUpload(c.Request.Context(), CurrentUser(c), c.Param("uuid"), body.Key)
	if errConfirm != nil {
		respondError(c, errConfirm)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uuid": photo.UUID, "taken": photo.Taken, "filesize": photo.Filesize})
}

// captionRequest defines the request body for a caption change.
type captionRequest struct {
	Caption string `json:"caption"`
}

// UpdateCaption changes a photo caption.
func (h *PhotoHandler) UpdateCaption(c *gin.Context) {
	if !h.available(c) {
		return
	}
	var body captionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	photo, errUpdate := h.photos.UpdateCaption(c.Request.Context(), CurrentUser(c), c.Param("uuid"), body.Caption)
	if errUpdate != nil {
		respondError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uuid": photo.UUID, "caption": photo.Caption})
}

// Delete removes a photo.
func (h *PhotoHandler) Delete(c *gin.Context) {
	if !h.available(c) {
		return
	}
	if errDelete := h.photos.Delete(c.Request.Context(), CurrentUser(c), c.Param("uuid")); errDelete != nil {
		respondError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Photo deleted"})
}

// DeleteAll removes every photo of a trip.
func (h *PhotoHandler) DeleteAll(c *gin.Context) {
	if !h.available(c) {
		return
	}
	n, errDelete := h.photos.DeleteAll(c.Request.Context(), CurrentUser(c), c.Param("uuid"))
	if errDelete != nil {
		respondError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// Feature crops a photo into the trip's featured image.
func (h *PhotoHandler) Feature(c *gin.Context) {
	if !h.available(c) {
		return
	}
	var crop photos.Crop
	if errBind := c.ShouldBindJSON(&crop); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	featured, errFeature := h.photos.Feature(c.Request.Context(), CurrentUser(c), c.Param("uuid"), c.Param("photo"), crop)
	if errFeature != nil {
		respondError(c, errFeature)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uuid": featured.UUID, "key": featured.Key})
}

// Unfeature clears the trip's featured image.
func (h *PhotoHandler) Unfeature(c *gin.Context) {
	if !h.available(c) {
		return
	}
	if errUnfeature := h.photos.Unfeature(c.Request.Context(), CurrentUser(c), c.Param("uuid")); errUnfeature != nil {
		respondError(c, errUnfeature)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Featured photo removed"})
}

// SetAvatar replaces the signed-in user's avatar.
func (h *PhotoHandler) SetAvatar(c *gin.Context) {
	if !h.available(c) {
		return
	}
	header, errFile := c.FormFile("avatar")
	if errFile != nil {
		respondError(c, apperr.FieldError("avatar", "This field is required."))
		return
	}
	if header.Size > maxAvatarBytes {
		respondError(c, apperr.FieldError("avatar", "The avatar is too large."))
		return
	}
	f, errOpen := header.Open()
	if errOpen != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload"})
		return
	}
	defer func() { _ = f.Close() }()
	key, errAvatar := h.photos.SetAvatar(c.Request.Context(), CurrentUser(c), header.Filename, f)
	if errAvatar != nil {
		respondError(c, errAvatar)
		return
	}
	c.JSON(http.StatusOK, gin.H{"avatar": key})
}

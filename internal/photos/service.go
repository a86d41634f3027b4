package photos

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rwcarlsen/goexif/exif"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/metrics"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
	"github.com/cavelog/cavelog/internal/visibility"
)

const (
	// DefaultMaxUploadBytes caps a single upload.
	DefaultMaxUploadBytes = 10 << 20
	// DefaultUploadTTL is how long a presigned upload stays usable.
	DefaultUploadTTL = 5 * time.Minute
	// MaxCaptionLength bounds photo captions.
	MaxCaptionLength = 200

	exifLayout = "2006:01:02 15:04:05"
)

const (
	msgMissingUpload = "Missing filename, content type or trip."
	msgNotImage      = "File is not an image."
	msgNotOwner      = "You do not have permission to change photos for this trip."
	msgNoPhotos      = "There were no photos to delete."
)

// Thumbnailer builds display URLs for stored photos.
type Thumbnailer interface {
	URL(key, preset string) string
}

// Options configures a Service.
type Options struct {
	MaxUploadBytes int64
	UploadTTL      time.Duration
}

// Service implements the photo lifecycle.
type Service struct {
	photos  *store.PhotoStore
	trips   *store.TripStore
	users   *store.UserStore
	storage Storage
	thumbs  Thumbnailer
	opts    Options
	now     func() time.Time
}

// NewService constructs a Service. thumbs may be nil.
func NewService(db *gorm.DB, storage Storage, thumbs Thumbnailer, opts Options) *Service {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.UploadTTL <= 0 {
		opts.UploadTTL = DefaultUploadTTL
	}
	return &Service{
		photos:  store.NewPhotoStore(db),
		trips:   store.NewTripStore(db),
		users:   store.NewUserStore(db),
		storage: storage,
		thumbs:  thumbs,
		opts:    opts,
		now:     time.Now,
	}
}

// ownedTrip loads the trip by UUID and checks user owns it.
func (s *Service) ownedTrip(ctx context.Context, user *models.User, tripUUID string) (*models.Trip, error) {
	if user == nil {
		return nil, apperr.Forbidden("You must be signed in to do that.")
	}
	trip, errTrip := s.trips.ByUUID(ctx, tripUUID)
	if errTrip != nil {
		return nil, errTrip
	}
	if trip.UserID != user.ID {
		return nil, apperr.Forbidden(msgNotOwner)
	}
	return trip, nil
}

// ownedPhoto loads a photo by UUID and checks user uploaded it.
func (s *Service) ownedPhoto(ctx context.Context, user *models.User, photoUUID string) (*models.TripPhoto, error) {
	if user == nil {
		return nil, apperr.Forbidden("You must be signed in to do that.")
	}
	photo, errPhoto := s.photos.ByUUID(ctx, photoUUID)
	if errPhoto != nil {
		return nil, errPhoto
	}
	if photo.UserID == nil || *photo.UserID != user.ID {
		return nil, apperr.Forbidden(msgNotOwner)
	}
	if photo.DeletedAt != nil {
		return nil, apperr.NotFound("photo")
	}
	return photo, nil
}

// UploadSlot is a pending photo and the form used to upload its file.
type UploadSlot struct {
	Photo *models.TripPhoto `json:"-"`
	Key   string            `json:"key"`
	Post  *PresignedPost    `json:"post"`
}

// RequestUpload creates an unconfirmed photo on a trip the user owns and
// signs an upload form for it.
func (s *Service) RequestUpload(ctx context.Context, user *models.User, tripUUID, filename, contentType string) (*UploadSlot, error) {
	filename, contentType = strings.TrimSpace(filename), strings.TrimSpace(contentType)
	if filename == "" || contentType == "" || strings.TrimSpace(tripUUID) == "" {
		return nil, apperr.Validation(msgMissingUpload)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apperr.FieldError("content_type", msgNotImage)
	}
	trip, errTrip := s.ownedTrip(ctx, user, tripUUID)
	if errTrip != nil {
		return nil, errTrip
	}

	userID, tripID := user.ID, trip.ID
	photo := &models.TripPhoto{UserID: &userID, TripID: &tripID, Type: models.PhotoRegular}
	photo.UUID = uuid.NewString()
	photo.Key = PhotoKey(user.UUID, trip.UUID, photo.UUID, extension(filename, contentType))
	if errCreate := s.photos.Create(ctx, photo); errCreate != nil {
		return nil, errCreate
	}
	post, errPost := s.storage.PresignPost(ctx, photo.Key, contentType, s.opts.MaxUploadBytes, s.opts.UploadTTL)
	if errPost != nil {
		return nil, apperr.External("The upload could not be prepared. Please try again.", errPost)
	}
	metrics.RecordPhotoUpload("requested")
	return &UploadSlot{Photo: photo, Key: photo.Key, Post: post}, nil
}

// ConfirmUpload validates an uploaded photo, reading its size and the EXIF
// capture time from storage.
func (s *Service) ConfirmUpload(ctx context.Context, user *models.User, tripUUID, key string) (*models.TripPhoto, error) {
	if strings.TrimSpace(key) == "" || strings.TrimSpace(tripUUID) == "" {
		return nil, apperr.Validation("Missing key or trip.")
	}
	trip, errTrip := s.ownedTrip(ctx, user, tripUUID)
	if errTrip != nil {
		return nil, errTrip
	}
	photo, errPhoto := s.photos.ByKey(ctx, strings.TrimSpace(key))
	if errPhoto != nil {
		return nil, errPhoto
	}
	if photo.TripID == nil || *photo.TripID != trip.ID {
		return nil, apperr.Forbidden(msgNotOwner)
	}

	body, size, errOpen := s.storage.Open(ctx, photo.Key)
	if errOpen != nil {
		return nil, apperr.External("The uploaded photo could not be found.", errOpen)
	}
	defer func() {
		if errClose := body.Close(); errClose != nil {
			log.WithError(errClose).Warn("photos: close object failed")
		}
	}()
	if size > s.opts.MaxUploadBytes {
		return nil, apperr.FieldError("photo", fmt.Sprintf("Photos must be smaller than %s.", humanize.IBytes(uint64(s.opts.MaxUploadBytes))))
	}

	taken := readTaken(body, user.Zone())
	if errValid := s.photos.MarkValid(ctx, photo, taken, size); errValid != nil {
		return nil, errValid
	}
	metrics.RecordPhotoUpload("confirmed")
	log.WithFields(log.Fields{"user": user.Username, "trip": trip.UUID}).
		Infof("%s uploaded a %s photo to a trip to %s", user.Name, humanize.IBytes(uint64(size)), trip.CaveName)
	return photo, nil
}

// readTaken returns the EXIF DateTimeOriginal of an image as a wall clock
// time in loc, or nil.
func readTaken(r io.Reader, loc *time.Location) *time.Time {
	x, errDecode := exif.Decode(r)
	if errDecode != nil {
		return nil
	}
	tag, errTag := x.Get(exif.DateTimeOriginal)
	if errTag != nil {
		return nil
	}
	value, errValue := tag.StringVal()
	if errValue != nil {
		return nil
	}
	taken, errParse := time.ParseInLocation(exifLayout, strings.TrimRight(value, "\x00 "), loc)
	if errParse != nil {
		return nil
	}
	return &taken
}

// UpdateCaption sets the caption of a photo the user uploaded.
func (s *Service) UpdateCaption(ctx context.Context, user *models.User, photoUUID, caption string) (*models.TripPhoto, error) {
	photo, errPhoto := s.ownedPhoto(ctx, user, photoUUID)
	if errPhoto != nil {
		return nil, errPhoto
	}
	caption = strings.TrimSpace(caption)
	if n := utf8.RuneCountInString(caption); n > MaxCaptionLength {
		return nil, apperr.FieldError("caption",
			fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", MaxCaptionLength, n))
	}
	if errUpdate := s.photos.UpdateCaption(ctx, photo, caption); errUpdate != nil {
		return nil, errUpdate
	}
	return photo, nil
}

// Delete soft deletes a photo the user uploaded. Deleting the trip's
// featured image also clears the trip's pointer to it.
func (s *Service) Delete(ctx context.Context, user *models.User, photoUUID string) error {
	photo, errPhoto := s.ownedPhoto(ctx, user, photoUUID)
	if errPhoto != nil {
		return errPhoto
	}
	if errDelete := s.photos.SoftDelete(ctx, photo.ID, s.now()); errDelete != nil {
		return errDelete
	}
	if photo.TripID != nil {
		trip, errTrip := s.trips.Get(ctx, *photo.TripID)
		if errTrip == nil && trip.FeaturedPhotoID != nil && *trip.FeaturedPhotoID == photo.ID {
			if errUnset := s.trips.SetFeaturedPhoto(ctx, trip.ID, nil); errUnset != nil {
				return errUnset
			}
		}
	}
	return nil
}

// DeleteAll soft deletes every photo on a trip the user owns.
func (s *Service) DeleteAll(ctx context.Context, user *models.User, tripUUID string) (int64, error) {
	trip, errTrip := s.ownedTrip(ctx, user, tripUUID)
	if errTrip != nil {
		return 0, errTrip
	}
	n, errDelete := s.photos.SoftDeleteAllForTrip(ctx, trip.ID, s.now())
	if errDelete != nil {
		return 0, errDelete
	}
	if n == 0 {
		return 0, apperr.Validation(msgNoPhotos)
	}
	if trip.FeaturedPhotoID != nil {
		if errUnset := s.trips.SetFeaturedPhoto(ctx, trip.ID, nil); errUnset != nil {
			return 0, errUnset
		}
	}
	log.WithField("trip", trip.UUID).Infof("%s deleted %d photos", user.Name, n)
	return n, nil
}

// PhotoView is a photo as listed with its trip.
type PhotoView struct {
	UUID      string     `json:"uuid"`
	Caption   string     `json:"caption"`
	Taken     *time.Time `json:"taken,omitempty"`
	URL       string     `json:"url"`
	Thumbnail string     `json:"thumbnail"`
}

// ForTrip lists the trip's photos the viewer may see.
func (s *Service) ForTrip(ctx context.Context, viewer *models.User, tripUUID string) ([]PhotoView, error) {
	trip, errTrip := s.trips.ByUUID(ctx, tripUUID)
	if errTrip != nil {
		return nil, errTrip
	}
	owner, errOwner := s.users.Get(ctx, trip.UserID)
	if errOwner != nil {
		return nil, errOwner
	}
	friends, errFriends := s.users.FriendSet(ctx, owner.ID)
	if errFriends != nil {
		return nil, errFriends
	}
	if !visibility.TripVisible(viewer, trip, owner, friends) {
		return nil, apperr.NotFound("trip")
	}
	if !visibility.PhotosVisible(viewer, trip, owner, friends) {
		return []PhotoView{}, nil
	}
	rows, errRows := s.photos.ValidForTrip(ctx, trip.ID)
	if errRows != nil {
		return nil, errRows
	}
	out := make([]PhotoView, 0, len(rows))
	for _, p := range rows {
		out = append(out, s.view(p))
	}
	return out, nil
}

func (s *Service) view(p models.TripPhoto) PhotoView {
	v := PhotoView{UUID: p.UUID, Caption: p.Caption, Taken: p.Taken, URL: s.storage.URL(p.Key)}
	if s.thumbs != nil {
		v.URL = s.thumbs.URL(p.Key, "display")
		v.Thumbnail = s.thumbs.URL(p.Key, "thumb")
	}
	return v
}

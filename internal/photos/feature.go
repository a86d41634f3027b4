package photos

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"io"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/models"
)

const (
	// FeaturedMaxWidth and FeaturedMaxHeight bound generated header images.
	FeaturedMaxWidth  = 1800
	FeaturedMaxHeight = 800
	// FeaturedQuality is the JPEG quality of header images.
	FeaturedQuality = 70
	// AvatarSize is the edge length of stored avatars.
	AvatarSize = 500
)

// Crop is the crop box chosen on a source photo. X, Y, Width and Height are
// in pixels of the flipped and rotated image. Rotate is clockwise degrees.
type Crop struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Rotate float64 `json:"rotate"`
	ScaleX float64 `json:"scaleX"`
	ScaleY float64 `json:"scaleY"`
}

// Validate checks the crop parameters.
func (c *Crop) Validate() error {
	verr := apperr.NewValidation()
	if c.Width <= 0 {
		verr.Add("width", "Width must be above zero.")
	}
	if c.Height <= 0 {
		verr.Add("height", "Height must be above zero.")
	}
	if c.Rotate < -360 || c.Rotate > 360 {
		verr.Add("rotate", "Rotation must be between -360 and 360 degrees.")
	}
	if c.ScaleX == 0 {
		c.ScaleX = 1
	}
	if c.ScaleY == 0 {
		c.ScaleY = 1
	}
	if math.Abs(c.ScaleX) != 1 {
		verr.Add("scaleX", "Scale must be 1 or -1.")
	}
	if math.Abs(c.ScaleY) != 1 {
		verr.Add("scaleY", "Scale must be 1 or -1.")
	}
	return verr.OrNil()
}

// Apply flips, rotates and crops src, then fits the result into the header
// image bounds.
func (c Crop) Apply(src image.Image) (image.Image, error) {
	img := src
	if c.ScaleX < 0 {
		img = imaging.FlipH(img)
	}
	if c.ScaleY < 0 {
		img = imaging.FlipV(img)
	}
	if c.Rotate != 0 {
		img = imaging.Rotate(img, -c.Rotate, color.Black)
	}
	box := image.Rect(
		int(math.Round(c.X)), int(math.Round(c.Y)),
		int(math.Round(c.X+c.Width)), int(math.Round(c.Y+c.Height)),
	).Intersect(img.Bounds())
	if box.Empty() {
		return nil, apperr.FieldError("crop", "The crop area is outside the photo.")
	}
	img = imaging.Crop(img, box)
	return imaging.Fit(img, FeaturedMaxWidth, FeaturedMaxHeight, imaging.Lanczos), nil
}

func (s *Service) decode(ctx context.Context, key string) (image.Image, error) {
	body, _, errOpen := s.storage.Open(ctx, key)
	if errOpen != nil {
		return nil, apperr.External("The photo could not be read.", errOpen)
	}
	defer func() {
		if errClose := body.Close(); errClose != nil {
			log.WithError(errClose).Warn("photos: close object failed")
		}
	}()
	img, errDecode := imaging.Decode(io.LimitReader(body, s.opts.MaxUploadBytes+1), imaging.AutoOrientation(true))
	if errDecode != nil {
		return nil, apperr.FieldError("photo", "The photo could not be decoded.")
	}
	return img, nil
}

// Feature crops a visible photo of the trip into a new header image and
// points the trip at it. Any previous header image is deleted.
func (s *Service) Feature(ctx context.Context, user *models.User, tripUUID, photoUUID string, crop Crop) (*models.TripPhoto, error) {
	trip, errTrip := s.ownedTrip(ctx, user, tripUUID)
	if errTrip != nil {
		return nil, errTrip
	}
	if errCrop := crop.Validate(); errCrop != nil {
		return nil, errCrop
	}
	source, errSource := s.photos.ByUUID(ctx, photoUUID)
	if errSource != nil {
		return nil, errSource
	}
	if !source.Visible() || source.Type != models.PhotoRegular || source.TripID == nil || *source.TripID != trip.ID {
		return nil, apperr.NotFound("photo")
	}

	img, errDecode := s.decode(ctx, source.Key)
	if errDecode != nil {
		return nil, errDecode
	}
	cropped, errApply := crop.Apply(img)
	if errApply != nil {
		return nil, errApply
	}
	var buf bytes.Buffer
	if errEncode := imaging.Encode(&buf, cropped, imaging.JPEG, imaging.JPEGQuality(FeaturedQuality)); errEncode != nil {
		return nil, apperr.External("The featured photo could not be created.", errEncode)
	}

	userID, tripID := user.ID, trip.ID
	featured := &models.TripPhoto{UUID: uuid.NewString(), UserID: &userID, TripID: &tripID, Type: models.PhotoFeatured}
	featured.Key = PhotoKey(user.UUID, trip.UUID, featured.UUID, ".jpg")
	if errPut := s.storage.Put(ctx, featured.Key, buf.Bytes(), "image/jpeg"); errPut != nil {
		return nil, apperr.External("The featured photo could not be stored.", errPut)
	}
	if errCreate := s.photos.Create(ctx, featured); errCreate != nil {
		return nil, errCreate
	}
	if errValid := s.photos.MarkValid(ctx, featured, source.Taken, int64(buf.Len())); errValid != nil {
		return nil, errValid
	}
	if trip.FeaturedPhotoID != nil {
		if errOld := s.photos.SoftDelete(ctx, *trip.FeaturedPhotoID, s.now()); errOld != nil {
			return nil, errOld
		}
	}
	if errSet := s.trips.SetFeaturedPhoto(ctx, trip.ID, &featured.ID); errSet != nil {
		return nil, errSet
	}
	log.WithFields(log.Fields{"user": user.Username, "trip": trip.UUID}).
		Infof("%s set a featured photo on a trip to %s", user.Name, trip.CaveName)
	return featured, nil
}

// Unfeature deletes the trip's header image and clears the pointer.
func (s *Service) Unfeature(ctx context.Context, user *models.User, tripUUID string) error {
	trip, errTrip := s.ownedTrip(ctx, user, tripUUID)
	if errTrip != nil {
		return errTrip
	}
	if trip.FeaturedPhotoID == nil {
		return nil
	}
	if errDelete := s.photos.SoftDelete(ctx, *trip.FeaturedPhotoID, s.now()); errDelete != nil {
		return errDelete
	}
	return s.trips.SetFeaturedPhoto(ctx, trip.ID, nil)
}

// SetAvatar stores a square avatar for user and records its key.
func (s *Service) SetAvatar(ctx context.Context, user *models.User, filename string, body io.Reader) (string, error) {
	if user == nil {
		return "", apperr.Forbidden("You must be signed in to do that.")
	}
	ext := strings.ToLower(extension(filename, ""))
	format, errFormat := imaging.FormatFromExtension(ext)
	if errFormat != nil {
		return "", apperr.FieldError("avatar", msgNotImage)
	}
	img, errDecode := imaging.Decode(io.LimitReader(body, s.opts.MaxUploadBytes+1), imaging.AutoOrientation(true))
	if errDecode != nil {
		return "", apperr.FieldError("avatar", msgNotImage)
	}
	img = imaging.Fill(img, AvatarSize, AvatarSize, imaging.Center, imaging.Lanczos)
	var buf bytes.Buffer
	if errEncode := imaging.Encode(&buf, img, format, imaging.JPEGQuality(85)); errEncode != nil {
		return "", apperr.External("The avatar could not be created.", errEncode)
	}

	key := AvatarKey(user.UUID, ext)
	if errPut := s.storage.Put(ctx, key, buf.Bytes(), "image/"+strings.ToLower(format.String())); errPut != nil {
		return "", apperr.External("The avatar could not be stored.", errPut)
	}
	previous := user.Avatar
	user.Avatar = key
	if errUpdate := s.users.Update(ctx, user); errUpdate != nil {
		return "", errUpdate
	}
	if previous != "" && previous != key {
		if errOld := s.storage.Delete(ctx, previous); errOld != nil {
			log.WithError(errOld).Warn("photos: delete old avatar failed")
		}
	}
	return key, nil
}

package photos

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
)

type memStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	maxBytes int64
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (m *memStorage) PresignPost(_ context.Context, key, contentType string, maxBytes int64, _ time.Duration) (*PresignedPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxBytes = maxBytes
	return &PresignedPost{URL: "https://bucket.example.com", Fields: map[string]string{"key": key, "Content-Type": contentType}}, nil
}

func (m *memStorage) Open(_ context.Context, key string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, 0, fmt.Errorf("no such key %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (m *memStorage) Put(_ context.Context, key string, body []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStorage) URL(key string) string { return "https://cdn.example.com/" + key }

type fixture struct {
	conn    *gorm.DB
	svc     *Service
	storage *memStorage
	owner   *models.User
	other   *models.User
	trip    *models.Trip
}

func newFixture(t *testing.T, name string) *fixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	ctx := context.Background()
	users := store.NewUserStore(conn)
	f := &fixture{conn: conn, storage: newMemStorage()}
	f.owner = &models.User{Username: "ann", Email: "ann@example.com", Name: "Ann", Timezone: "UTC", IsActive: true}
	f.other = &models.User{Username: "bob", Email: "bob@example.com", Name: "Bob", Timezone: "UTC", IsActive: true}
	for _, u := range []*models.User{f.owner, f.other} {
		if err := users.Create(ctx, u, "password123"); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	f.trip = &models.Trip{UserID: f.owner.ID, CaveName: "Ogof Draenen", Privacy: models.PrivacyPublic, Start: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)}
	if err := store.NewTripStore(conn).Create(ctx, f.trip, nil); err != nil {
		t.Fatalf("create trip: %v", err)
	}
	f.svc = NewService(conn, f.storage, nil, Options{})
	return f
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 80, B: 40, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

// upload requests a slot, stores data under its key and confirms it.
func (f *fixture) upload(t *testing.T, data []byte) *models.TripPhoto {
	t.Helper()
	ctx := context.Background()
	slot, err := f.svc.RequestUpload(ctx, f.owner, f.trip.UUID, "IMG_0001.JPG", "image/jpeg")
	if err != nil {
		t.Fatalf("request upload: %v", err)
	}
	if err := f.storage.Put(ctx, slot.Key, data, "image/jpeg"); err != nil {
		t.Fatalf("put: %v", err)
	}
	photo, err := f.svc.ConfirmUpload(ctx, f.owner, f.trip.UUID, slot.Key)
	if err != nil {
		t.Fatalf("confirm upload: %v", err)
	}
	return photo
}

func TestRequestUpload(t *testing.T) {
	f := newFixture(t, "photos_request")
	ctx := context.Background()

	if _, err := f.svc.RequestUpload(ctx, f.owner, f.trip.UUID, "notes.txt", "text/plain"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected non image rejected, got %v", err)
	}
	if _, err := f.svc.RequestUpload(ctx, f.other, f.trip.UUID, "a.jpg", "image/jpeg"); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for other user, got %v", err)
	}

	slot, err := f.svc.RequestUpload(ctx, f.owner, f.trip.UUID, "IMG_0001.JPG", "image/jpeg")
	if err != nil {
		t.Fatalf("request upload: %v", err)
	}
	want := fmt.Sprintf("p/%s/%s/%s.jpg", f.owner.UUID, f.trip.UUID, slot.Photo.UUID)
	if slot.Key != want {
		t.Fatalf("expected key %s, got %s", want, slot.Key)
	}
	if slot.Photo.IsValid || f.storage.maxBytes != DefaultMaxUploadBytes {
		t.Fatalf("expected invalid photo and default size limit, got %v %d", slot.Photo.IsValid, f.storage.maxBytes)
	}
	if slot.Post.Fields["key"] != want {
		t.Fatalf("unexpected presigned fields %v", slot.Post.Fields)
	}
}

func TestConfirmUploadAndList(t *testing.T) {
	f := newFixture(t, "photos_confirm")
	ctx := context.Background()
	data := jpegBytes(t, 64, 48)
	photo := f.upload(t, data)
	if !photo.IsValid || photo.Filesize == nil || *photo.Filesize != int64(len(data)) {
		t.Fatalf("expected valid photo with size, got %+v", photo)
	}
	if photo.Taken != nil {
		t.Fatalf("expected no capture time without exif, got %v", photo.Taken)
	}

	views, err := f.svc.ForTrip(ctx, f.other, f.trip.UUID)
	if err != nil {
		t.Fatalf("for trip: %v", err)
	}
	if len(views) != 1 || views[0].URL != "https://cdn.example.com/"+photo.Key {
		t.Fatalf("unexpected views %+v", views)
	}
}

func TestConfirmUpload_TooLarge(t *testing.T) {
	f := newFixture(t, "photos_too_large")
	f.svc.opts.MaxUploadBytes = 10
	ctx := context.Background()
	slot, err := f.svc.RequestUpload(ctx, f.owner, f.trip.UUID, "a.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("request upload: %v", err)
	}
	_ = f.storage.Put(ctx, slot.Key, jpegBytes(t, 16, 16), "image/jpeg")
	if _, err := f.svc.ConfirmUpload(ctx, f.owner, f.trip.UUID, slot.Key); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestCaptionAndDelete(t *testing.T) {
	f := newFixture(t, "photos_caption")
	ctx := context.Background()
	photo := f.upload(t, jpegBytes(t, 8, 8))

	if _, err := f.svc.UpdateCaption(ctx, f.owner, photo.UUID, strings.Repeat("a", 201)); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected long caption rejected, got %v", err)
	}
	if _, err := f.svc.UpdateCaption(ctx, f.other, photo.UUID, "mine"); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden caption edit, got %v", err)
	}
	updated, err := f.svc.UpdateCaption(ctx, f.owner, photo.UUID, " The streamway ")
	if err != nil || updated.Caption != "The streamway" {
		t.Fatalf("unexpected caption update %+v %v", updated, err)
	}

	if err := f.svc.Delete(ctx, f.owner, photo.UUID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if views, _ := f.svc.ForTrip(ctx, f.owner, f.trip.UUID); len(views) != 0 {
		t.Fatalf("expected deleted photo hidden, got %d", len(views))
	}
	if _, err := f.svc.DeleteAll(ctx, f.owner, f.trip.UUID); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected no photos error, got %v", err)
	}

	f.upload(t, jpegBytes(t, 8, 8))
	f.upload(t, jpegBytes(t, 8, 8))
	if n, err := f.svc.DeleteAll(ctx, f.owner, f.trip.UUID); err != nil || n != 2 {
		t.Fatalf("expected two photos deleted, got %d %v", n, err)
	}
}

func TestCrop(t *testing.T) {
	bad := Crop{Width: 0, Height: 10, ScaleX: 2, Rotate: 400}
	err := bad.Validate()
	if err == nil {
		t.Fatalf("expected invalid crop")
	}
	verr, _ := err.(*apperr.Error)
	for _, field := range []string{"width", "scaleX", "rotate"} {
		if len(verr.Field(field)) == 0 {
			t.Fatalf("expected error on %s, got %v", field, verr.Messages())
		}
	}

	src := imaging.New(400, 100, color.White)
	c := Crop{X: 0, Y: 0, Width: 100, Height: 400, Rotate: 90}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	out, err := c.Apply(src)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if b := out.Bounds(); b.Dx() != 100 || b.Dy() != 400 {
		t.Fatalf("expected rotated crop, got %v", b)
	}

	wide := Crop{Width: 3600, Height: 1000, ScaleX: 1, ScaleY: 1}
	out, _ = wide.Apply(imaging.New(3600, 1000, color.White))
	if b := out.Bounds(); b.Dx() != FeaturedMaxWidth || b.Dy() != 500 {
		t.Fatalf("expected fit within header bounds, got %v", b)
	}
	if _, err := (Crop{X: 500, Y: 500, Width: 10, Height: 10, ScaleX: 1, ScaleY: 1}).Apply(src); err == nil {
		t.Fatalf("expected crop outside image rejected")
	}
}

func TestFeatureAndUnfeature(t *testing.T) {
	f := newFixture(t, "photos_feature")
	ctx := context.Background()
	trips := store.NewTripStore(f.conn)
	source := f.upload(t, jpegBytes(t, 300, 200))
	crop := Crop{Width: 300, Height: 100}

	if _, err := f.svc.Feature(ctx, f.other, f.trip.UUID, source.UUID, crop); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	first, err := f.svc.Feature(ctx, f.owner, f.trip.UUID, source.UUID, crop)
	if err != nil {
		t.Fatalf("feature: %v", err)
	}
	if first.Type != models.PhotoFeatured || !first.IsValid {
		t.Fatalf("unexpected featured photo %+v", first)
	}
	img, err := imaging.Decode(bytes.NewReader(f.storage.objects[first.Key]))
	if err != nil {
		t.Fatalf("decode featured: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 100 {
		t.Fatalf("unexpected featured size %v", b)
	}

	second, err := f.svc.Feature(ctx, f.owner, f.trip.UUID, source.UUID, crop)
	if err != nil {
		t.Fatalf("feature again: %v", err)
	}
	trip, _ := trips.ByUUID(ctx, f.trip.UUID)
	if trip.FeaturedPhotoID == nil || *trip.FeaturedPhotoID != second.ID {
		t.Fatalf("expected trip to point at newest featured photo")
	}
	old, _ := store.NewPhotoStore(f.conn).Get(ctx, first.ID)
	if old.DeletedAt == nil {
		t.Fatalf("expected previous featured photo deleted")
	}
	if views, _ := f.svc.ForTrip(ctx, f.owner, f.trip.UUID); len(views) != 1 {
		t.Fatalf("expected featured photos left out of the trip gallery, got %d", len(views))
	}

	if err := f.svc.Unfeature(ctx, f.owner, f.trip.UUID); err != nil {
		t.Fatalf("unfeature: %v", err)
	}
	trip, _ = trips.ByUUID(ctx, f.trip.UUID)
	if trip.FeaturedPhotoID != nil {
		t.Fatalf("expected featured photo cleared")
	}
}

func TestSetAvatar(t *testing.T) {
	f := newFixture(t, "photos_avatar")
	ctx := context.Background()
	var buf bytes.Buffer
	_ = imaging.Encode(&buf, imaging.New(800, 600, color.Black), imaging.PNG)

	key, err := f.svc.SetAvatar(ctx, f.owner, "me.PNG", &buf)
	if err != nil {
		t.Fatalf("set avatar: %v", err)
	}
	if key != "m/avatars/"+f.owner.UUID+"/avatar.png" || f.owner.Avatar != key {
		t.Fatalf("unexpected avatar key %s", key)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(f.storage.objects[key]))
	if err != nil || cfg.Width != AvatarSize || cfg.Height != AvatarSize {
		t.Fatalf("expected square avatar, got %+v %v", cfg, err)
	}
	if _, err := f.svc.SetAvatar(ctx, f.owner, "me.txt", strings.NewReader("hi")); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected non image rejected, got %v", err)
	}
}

func TestSweepOnce(t *testing.T) {
	f := newFixture(t, "photos_sweep")
	ctx := context.Background()
	photos := store.NewPhotoStore(f.conn)
	ownerID, tripID := f.owner.ID, f.trip.ID

	stale := &models.TripPhoto{UserID: &ownerID, TripID: &tripID, Key: "p/stale.jpg", CreatedAt: time.Now().UTC().Add(-time.Hour)}
	fresh := &models.TripPhoto{UserID: &ownerID, TripID: &tripID, Key: "p/fresh.jpg"}
	orphan := &models.TripPhoto{UserID: &ownerID, Key: "p/orphan.jpg", IsValid: true}
	for _, p := range []*models.TripPhoto{stale, fresh, orphan} {
		if err := photos.Create(ctx, p); err != nil {
			t.Fatalf("create photo: %v", err)
		}
	}

	sweeper := NewSweeper(f.conn, 5*time.Minute)
	res, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.DeletedInvalid != 1 || res.MarkedOrphans != 1 {
		t.Fatalf("unexpected sweep result %+v", res)
	}
	if _, err := photos.Get(ctx, stale.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected stale photo removed, got %v", err)
	}
	if _, err := photos.Get(ctx, fresh.ID); err != nil {
		t.Fatalf("expected fresh photo kept, got %v", err)
	}
}

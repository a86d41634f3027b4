package trips

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
)

func newTestService(t *testing.T, name string) (*Service, *models.User, *models.User) {
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
	users := store.NewUserStore(conn)
	var created []*models.User
	for _, username := range []string{"ann", "bob"} {
		u := &models.User{Username: username, Email: username + "@example.com", Name: username, IsActive: true}
		if errCreate := users.Create(context.Background(), u, "password123"); errCreate != nil {
			t.Fatalf("create user: %v", errCreate)
		}
		created = append(created, u)
	}
	svc := NewService(conn)
	svc.now = func() time.Time { return now }
	return svc, created[0], created[1]
}

func TestService_CreateUpdateDelete(t *testing.T) {
	svc, ann, bob := newTestService(t, "trips_service_crud")
	ctx := context.Background()

	d := validDraft()
	d.Cavers = []string{"Ann", "Bob"}
	trip, err := svc.Create(ctx, ann, d)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if trip.CaveName != "Swildon's Hole" || len(trip.Cavers) != 2 {
		t.Fatalf("expected trip with two cavers, got %q %d", trip.CaveName, len(trip.Cavers))
	}

	if _, errBad := svc.Create(ctx, ann, &Draft{}); !apperr.Is(errBad, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", errBad)
	}

	update := FromTrip(trip)
	update.CaveName = "Eastwater Cavern"
	update.Cavers = []string{"Ann"}
	if _, errOther := svc.Update(ctx, bob, trip.UUID, update); !apperr.Is(errOther, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for another user, got %v", errOther)
	}
	updated, err := svc.Update(ctx, ann, trip.UUID, update)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.CaveName != "Eastwater Cavern" || len(updated.Cavers) != 1 {
		t.Fatalf("expected updated trip, got %q %d", updated.CaveName, len(updated.Cavers))
	}

	if errDelete := svc.Delete(ctx, ann, trip.UUID); errDelete != nil {
		t.Fatalf("delete: %v", errDelete)
	}
	if _, errGone := svc.trips.ByUUID(ctx, trip.UUID); !apperr.Is(errGone, apperr.KindNotFound) {
		t.Fatalf("expected deleted trip, got %v", errGone)
	}
}

func TestService_DetailVisibilityAndNotes(t *testing.T) {
	svc, ann, bob := newTestService(t, "trips_service_detail")
	ctx := context.Background()
	ann.PrivateNotes = true
	if err := svc.users.Update(ctx, ann); err != nil {
		t.Fatalf("update user: %v", err)
	}

	d := validDraft()
	d.Notes = "secret"
	hidden, err := svc.Create(ctx, ann, d)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, errHidden := svc.Detail(ctx, bob, hidden.UUID); !apperr.Is(errHidden, apperr.KindNotFound) {
		t.Fatalf("expected default trip of private user to be hidden, got %v", errHidden)
	}

	d = validDraft()
	d.Privacy = string(models.PrivacyPublic)
	d.Notes = "secret"
	public, err := svc.Create(ctx, ann, d)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	detail, err := svc.Detail(ctx, bob, public.UUID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.Trip.Notes != "" {
		t.Fatalf("expected notes hidden from other users, got %q", detail.Trip.Notes)
	}
	if detail.Number != 1 {
		t.Fatalf("expected newer trip with the same start to be number 1, got %d", detail.Number)
	}
	own, err := svc.Detail(ctx, ann, public.UUID)
	if err != nil {
		t.Fatalf("owner detail: %v", err)
	}
	if own.Trip.Notes != "secret" {
		t.Fatalf("expected owner to see notes, got %q", own.Trip.Notes)
	}
	if own.Trip.ViewCount != 1 {
		t.Fatalf("expected one view from bob, got %d", own.Trip.ViewCount)
	}

	book, err := svc.ForUser(ctx, ann, "ann")
	if err != nil {
		t.Fatalf("for user: %v", err)
	}
	if len(book.Trips) != 2 {
		t.Fatalf("expected both trips for owner, got %d", len(book.Trips))
	}
	if _, errPrivate := svc.ForUser(ctx, bob, "ann"); !apperr.Is(errPrivate, apperr.KindNotFound) {
		t.Fatalf("expected private profile to be hidden, got %v", errPrivate)
	}
}

func TestService_Reports(t *testing.T) {
	svc, ann, bob := newTestService(t, "trips_service_reports")
	ctx := context.Background()

	d := validDraft()
	d.Privacy = string(models.PrivacyPublic)
	trip, err := svc.Create(ctx, ann, d)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	report, err := svc.SaveReport(ctx, ann, trip.UUID, ReportDraft{Title: "Down the Wet Way", Content: "Wet."})
	if err != nil {
		t.Fatalf("save report: %v", err)
	}
	if report.Slug != "down-the-wet-way" {
		t.Fatalf("expected slug from title, got %q", report.Slug)
	}
	if _, errOther := svc.SaveReport(ctx, bob, trip.UUID, ReportDraft{Title: "Mine"}); !apperr.Is(errOther, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", errOther)
	}
	again, err := svc.SaveReport(ctx, ann, trip.UUID, ReportDraft{Title: "Down the Wet Way", Slug: "wet-way", Content: "Very wet."})
	if err != nil {
		t.Fatalf("update report: %v", err)
	}
	if again.ID != report.ID || again.Slug != "wet-way" {
		t.Fatalf("expected report updated in place, got id=%d slug=%q", again.ID, again.Slug)
	}

	detail, err := svc.Report(ctx, bob, "ann", "wet-way")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if detail.Trip.ID != trip.ID {
		t.Fatalf("expected report trip loaded")
	}
	liked, err := svc.ToggleReportLike(ctx, bob, "ann", "wet-way")
	if err != nil || !liked {
		t.Fatalf("expected like, got %v %v", liked, err)
	}
	liked, err = svc.ToggleReportLike(ctx, bob, "ann", "wet-way")
	if err != nil || liked {
		t.Fatalf("expected unlike, got %v %v", liked, err)
	}

	if errDelete := svc.DeleteReport(ctx, ann, trip.UUID); errDelete != nil {
		t.Fatalf("delete report: %v", errDelete)
	}
	if _, errGone := svc.Report(ctx, ann, "ann", "wet-way"); !apperr.Is(errGone, apperr.KindNotFound) {
		t.Fatalf("expected report removed, got %v", errGone)
	}
}

package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
)

func openTestDB(t *testing.T, name string) *gorm.DB {
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
	return conn
}

type env struct {
	conn  *gorm.DB
	svc   *Service
	users *store.UserStore
	trips *store.TripStore
}

func setup(t *testing.T, name string) *env {
	conn := openTestDB(t, name)
	return &env{conn: conn, svc: NewService(conn), users: store.NewUserStore(conn), trips: store.NewTripStore(conn)}
}

func (e *env) user(t *testing.T, username string, privacy models.Privacy) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com", Name: username, Privacy: privacy, IsActive: true}
	if err := e.users.Create(context.Background(), u, "password123"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (e *env) trip(t *testing.T, trip *models.Trip) *models.Trip {
	t.Helper()
	if trip.Start.IsZero() {
		trip.Start = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	}
	if err := e.trips.Create(context.Background(), trip, nil); err != nil {
		t.Fatalf("create trip: %v", err)
	}
	return trip
}

func TestTripListContainsFiltersInSQL(t *testing.T) {
	e := setup(t, "search_contains")
	ctx := context.Background()
	ann := e.user(t, "ann", models.PrivacyPublic)
	caver, err := store.NewCaverStore(e.conn).Create(ctx, ann.ID, "Siân Jones", nil)
	if err != nil {
		t.Fatalf("create caver: %v", err)
	}
	withCaver := &models.Trip{UserID: ann.ID, CaveName: "Dan yr Ogof", Start: time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)}
	if errCreate := e.trips.Create(ctx, withCaver, []uint64{caver.ID}); errCreate != nil {
		t.Fatalf("create trip: %v", errCreate)
	}
	e.trip(t, &models.Trip{UserID: ann.ID, CaveName: "Ogof Ffynnon DDÛ"})
	e.trip(t, &models.Trip{UserID: ann.ID, CaveName: "Otter Hole"})

	found, err := e.trips.List(ctx, store.ListOptions{UserIDs: []uint64{ann.ID}, Contains: "ddu"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(found) != 1 || found[0].CaveName != "Ogof Ffynnon DDÛ" {
		t.Fatalf("expected accent folded match only, got %d trips", len(found))
	}
	found, err = e.trips.List(ctx, store.ListOptions{UserIDs: []uint64{ann.ID}, Contains: "sian"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(found) != 1 || found[0].ID != withCaver.ID {
		t.Fatalf("expected caver name match, got %d trips", len(found))
	}

	res, err := e.svc.Search(ctx, ann, Query{Terms: "SIÂN", Fields: []string{"cavers"}})
	if err != nil || res.Total != 1 {
		t.Fatalf("expected caver search match, got %+v %v", res, err)
	}
}

func TestSearch_Validation(t *testing.T) {
	e := setup(t, "search_validation")
	ann := e.user(t, "ann", models.PrivacyPublic)
	_, err := e.svc.Search(context.Background(), ann, Query{Terms: " ab ", Username: "ghost"})
	verr, ok := err.(*apperr.Error)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Field("terms")[0] != msgTermsTooShort || verr.Field("user")[0] != msgUsernameMissing {
		t.Fatalf("unexpected messages %v", verr.Messages())
	}
}

func TestSearch_AccentsVisibilityAndNotes(t *testing.T) {
	e := setup(t, "search_matching")
	ctx := context.Background()
	ann := e.user(t, "ann", models.PrivacyPublic)
	bob := e.user(t, "bob", models.PrivacyPublic)
	bob.PrivateNotes = true
	if err := e.users.Update(ctx, bob); err != nil {
		t.Fatalf("update: %v", err)
	}

	e.trip(t, &models.Trip{UserID: bob.ID, CaveName: "Grotte de la Cigalère", Privacy: models.PrivacyPublic})
	e.trip(t, &models.Trip{UserID: bob.ID, CaveName: "Cigalere private", Privacy: models.PrivacyPrivate})
	e.trip(t, &models.Trip{UserID: bob.ID, CaveName: "Pant Mawr", Notes: "cigalere next year", Privacy: models.PrivacyPublic})
	e.trip(t, &models.Trip{UserID: ann.ID, CaveName: "Otter Hole", Notes: "dreaming of cigalère", CaveCountry: "France"})

	res, err := e.svc.Search(ctx, ann, Query{Terms: "CIGALERE"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Total != 2 {
		t.Fatalf("expected public trip and own notes match, got %d", res.Total)
	}
	for _, trip := range res.Trips {
		if trip.CaveName == "Pant Mawr" || trip.CaveName == "Cigalere private" {
			t.Fatalf("unexpected match %q", trip.CaveName)
		}
	}

	res, err = e.svc.Search(ctx, ann, Query{Terms: "franc", Fields: []string{"country"}})
	if err != nil || res.Total != 0 {
		t.Fatalf("expected country to need an exact match, got %d %v", res.Total, err)
	}
	res, err = e.svc.Search(ctx, ann, Query{Terms: "FRANCE", Fields: []string{"country"}})
	if err != nil || res.Total != 1 {
		t.Fatalf("expected exact country match, got %d %v", res.Total, err)
	}

	res, err = e.svc.Search(ctx, ann, Query{Terms: "cigalere", Username: "bob"})
	if err != nil || res.Total != 1 || res.Trips[0].CaveName != "Grotte de la Cigalère" {
		t.Fatalf("expected one bob trip, got %+v %v", res, err)
	}
}

func TestSearch_TypeFilterAndPaging(t *testing.T) {
	e := setup(t, "search_paging")
	ctx := context.Background()
	ann := e.user(t, "ann", models.PrivacyPublic)
	for i := 0; i < 12; i++ {
		e.trip(t, &models.Trip{
			UserID:   ann.ID,
			CaveName: fmt.Sprintf("Swildons %d", i),
			Start:    time.Date(2024, 1, 1+i, 9, 0, 0, 0, time.UTC),
			Type:     models.TripSport,
		})
	}
	e.trip(t, &models.Trip{UserID: ann.ID, CaveName: "Swildons dig", Type: models.TripDigging})

	res, err := e.svc.Search(ctx, ann, Query{Terms: "swildons", Type: "Digging"})
	if err != nil || res.Total != 1 {
		t.Fatalf("expected one digging trip, got %d %v", res.Total, err)
	}
	res, err = e.svc.Search(ctx, ann, Query{Terms: "swildons", Type: "Any", Page: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Total != 13 || res.Pages != 2 || len(res.Trips) != 3 {
		t.Fatalf("unexpected paging %d/%d/%d", res.Total, res.Pages, len(res.Trips))
	}
	res, _ = e.svc.Search(ctx, ann, Query{Terms: "swildons", Page: 9})
	if res.Page != 2 {
		t.Fatalf("expected page clamped to 2, got %d", res.Page)
	}
}

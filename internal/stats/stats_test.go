package stats

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/distance"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func trip(cave string, start time.Time, hours float64, typ models.TripType) *models.Trip {
	t := &models.Trip{CaveName: cave, Start: start, Type: typ}
	if hours > 0 {
		end := start.Add(time.Duration(hours * float64(time.Hour)))
		t.End = &end
		t.ApplyDerived()
	}
	return t
}

func metres(m float64) distance.Null { return distance.Some(distance.FromMetres(m)) }

func TestYearly_BucketsAndSurfacePolicy(t *testing.T) {
	overnight := trip("Ogof Draenen", time.Date(2024, 2, 3, 20, 0, 0, 0, time.UTC), 8, models.TripSport)
	overnight.VertDistUp = metres(30)
	old := trip("Lost John's", time.Date(2010, 5, 1, 9, 0, 0, 0, time.UTC), 5, models.TripSport)
	old.VertDistUp = metres(10)
	surface := trip("Hillside", time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), 3, models.TripSurface)
	surface.HorizontalDist = metres(5000)

	got := Yearly([]*models.Trip{overnight, old, surface}, now, 10)
	if len(got) != 2 {
		t.Fatalf("expected one year and a total, got %d", len(got))
	}
	year, total := got[0], got[1]
	if year.Year != 2024 || year.Trips != 1 || year.CavingDays != 2 {
		t.Fatalf("unexpected 2024 bucket %+v", year)
	}
	if !total.IsTotal || total.Trips != 2 || !total.Climbed.EqualMetres(40) || !total.Horizontal.IsZero() {
		t.Fatalf("unexpected total %+v", total)
	}
	if total.CavingHours() != 13 {
		t.Fatalf("expected 13 caving hours, got %v", total.CavingHours())
	}
	if got := Yearly([]*models.Trip{old}, now, 10); len(got) != 0 {
		t.Fatalf("expected no output when no trip is recent, got %d", len(got))
	}
}

func TestMostCommon(t *testing.T) {
	a := trip("Swildon's Hole", now.AddDate(0, -1, 0), 2, models.TripSport)
	a.Clubs = "Wessex, , BEC"
	a.Cavers = []models.Caver{{ID: 1, UUID: "c1", Name: "Ann"}, {ID: 2, UUID: "c2", Name: "Bob"}}
	b := trip("Swildon's Hole", now.AddDate(0, -2, 0), 6, models.TripSport)
	b.Clubs = "Wessex"
	b.Cavers = []models.Caver{{ID: 2, UUID: "c2", Name: "Bob"}}
	c := trip("Mendip walk", now.AddDate(0, -3, 0), 10, models.TripSurface)
	c.Cavers = []models.Caver{{ID: 1, UUID: "c1", Name: "Ann"}}

	tables := MostCommon([]*models.Trip{a, b, c}, 10)
	byTitle := map[string]CommonTable{}
	for _, tbl := range tables {
		byTitle[tbl.Title] = tbl
	}
	if rows := byTitle["Most common caves"].Rows; rows[0].Metric != "Swildon's Hole" || rows[0].Count != 2 {
		t.Fatalf("unexpected caves %+v", rows)
	}
	if rows := byTitle["Most common clubs"].Rows; len(rows) != 2 || rows[0].Metric != "Wessex" || rows[0].Count != 2 {
		t.Fatalf("unexpected clubs %+v", rows)
	}
	if rows := byTitle["Most common cavers by trips"].Rows; rows[0].Count != 2 || rows[1].Count != 2 {
		t.Fatalf("expected surface trip counted for cavers, got %+v", rows)
	}
	byTime := byTitle["Most common cavers by time"].Rows
	if byTime[0].Metric != "Bob" || byTime[0].Duration != 8*time.Hour || byTime[1].Duration != 2*time.Hour {
		t.Fatalf("expected surface time excluded, got %+v", byTime)
	}
	if byTime[0].URL != "/cavers/c2/" {
		t.Fatalf("unexpected url %q", byTime[0].URL)
	}
}

func TestBiggestTripsAndAverages(t *testing.T) {
	a := trip("A", now.AddDate(0, 0, -70), 4, models.TripSport)
	a.SurveyedDist = metres(100)
	b := trip("B", now.AddDate(0, 0, -14), 0, models.TripSport)
	b.VertDistUp = metres(50)
	c := trip("C", now.AddDate(0, 0, -7), 10, models.TripSurface)
	c.SurveyedDist = metres(900)
	trips := []*models.Trip{a, b, c}

	tables := BiggestTrips(trips, 10, false, false)
	titles := map[string]TripTable{}
	for _, tbl := range tables {
		titles[tbl.Title] = tbl
	}
	if len(titles["Surveyed"].Rows) != 1 || !titles["Surveyed"].Rows[0].Distance.EqualMetres(100) {
		t.Fatalf("expected surface survey excluded, got %+v", titles["Surveyed"].Rows)
	}
	if _, ok := titles["Resurveyed"]; ok {
		t.Fatalf("expected empty table omitted")
	}
	if len(BiggestTrips(trips, 10, true, true)) != 1 {
		t.Fatalf("expected only the duration table when distance and survey stats are off")
	}

	rows := Averages(trips, now, false, false)
	values := map[string]AverageRow{}
	for _, r := range rows {
		values[r.Metric] = r
	}
	// Two underground trips over ten weeks.
	if values["Trips per week"].Value != 0.2 {
		t.Fatalf("unexpected trips per week %v", values["Trips per week"].Value)
	}
	if values["Trip duration"].Duration != 4*time.Hour {
		t.Fatalf("expected mean over ended trips, got %v", values["Trip duration"].Duration)
	}
	if !values["Rope climbed"].Distance.EqualMetres(50) || !values["Surveyed"].Distance.EqualMetres(100) {
		t.Fatalf("expected averages over trips with a value, got %+v", values)
	}
	if _, ok := values["Aid climbed"]; ok {
		t.Fatalf("expected zero averages omitted")
	}
}

func TestMetrics(t *testing.T) {
	a := trip("Peak Cavern", now, 1, models.TripSport)
	a.CaveCountry = " UK "
	a.CaveEntrance = "Main"
	a.Cavers = []models.Caver{{ID: 1}, {ID: 2}}
	b := trip("peak cavern", now, 1, models.TripSurface)
	b.CaveCountry = "uk"
	b.Cavers = []models.Caver{{ID: 2}}
	rows := Metrics([]*models.Trip{a, b})
	want := map[string]int{
		"Unique caves entered":        1,
		"Unique entrances/exits used": 2,
		"Unique countries":            1,
		"Cavers caved with":           2,
	}
	if len(rows) != len(want) {
		t.Fatalf("unexpected rows %+v", rows)
	}
	for _, r := range rows {
		if want[r.Metric] != r.Value {
			t.Fatalf("%s: expected %d, got %d", r.Metric, want[r.Metric], r.Value)
		}
	}
}

func TestHoursPerMonthAndBreakdown(t *testing.T) {
	a := trip("A", time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), 3, models.TripSport)
	b := trip("B", time.Date(2023, 7, 1, 9, 0, 0, 0, time.UTC), 2, models.TripSport)
	old := trip("C", time.Date(2023, 6, 1, 9, 0, 0, 0, time.UTC), 9, models.TripDigging)
	months := HoursPerMonth([]*models.Trip{a, b, old}, now)
	if len(months) != 12 || months[11].Hours != 3 || months[0].Hours != 2 {
		t.Fatalf("unexpected months %+v", months)
	}
	types := TripTypeBreakdown([]*models.Trip{a, b, old})
	if types[0].Type != models.TripSport || types[0].Trips != 2 || types[0].Duration != 5*time.Hour {
		t.Fatalf("unexpected breakdown %+v", types)
	}
}

func TestBuild_RespectsSettings(t *testing.T) {
	owner := &models.User{DisableStatsOverTime: true}
	a := trip("A", now.AddDate(0, -3, 0), 2, models.TripSport)
	b := trip("B", now, 2, models.TripSport)
	r := Build(owner, []*models.Trip{a, b}, now)
	if r.FullFeatured || !r.ShowTimeCharts || r.OverTime != nil || r.CavingDays != 2 {
		t.Fatalf("unexpected report %+v", r)
	}
}

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

func TestForUser_PrivateStatistics(t *testing.T) {
	conn := openTestDB(t, "stats_for_user")
	ctx := context.Background()
	users := store.NewUserStore(conn)
	trips := store.NewTripStore(conn)

	owner := &models.User{Username: "ann", Email: "ann@example.com", Name: "Ann", Privacy: models.PrivacyPublic, IsActive: true}
	viewer := &models.User{Username: "bob", Email: "bob@example.com", Name: "Bob", Privacy: models.PrivacyPublic, IsActive: true}
	for _, u := range []*models.User{owner, viewer} {
		if err := users.Create(ctx, u, "password123"); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	for i, privacy := range []models.Privacy{models.PrivacyDefault, models.PrivacyPrivate} {
		trip := &models.Trip{UserID: owner.ID, CaveName: "Cave", Start: now.AddDate(0, 0, -i-1), Privacy: privacy}
		if err := trips.Create(ctx, trip, nil); err != nil {
			t.Fatalf("create trip: %v", err)
		}
	}

	svc := NewService(conn)
	svc.now = func() time.Time { return now }
	if _, err := svc.ForUser(ctx, viewer, owner); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	own, err := svc.ForUser(ctx, owner, owner)
	if err != nil || own.TripCount != 2 {
		t.Fatalf("expected owner to see both trips, got %+v %v", own, err)
	}

	owner.PublicStatistics = true
	if errUpdate := users.Update(ctx, owner); errUpdate != nil {
		t.Fatalf("update user: %v", errUpdate)
	}
	report, err := svc.ForUser(ctx, viewer, owner)
	if err != nil {
		t.Fatalf("for user: %v", err)
	}
	if report.TripCount != 1 {
		t.Fatalf("expected private trip hidden, got %d trips", report.TripCount)
	}
}

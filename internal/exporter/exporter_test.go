package exporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/distance"
	"github.com/cavelog/cavelog/internal/importer"
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

func exportTrip() *models.Trip {
	lat, lng := 51.2345, -2.5
	end := time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC)
	return &models.Trip{
		CaveName:     "Swildon's Hole",
		Start:        time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		End:          &end,
		DurationStr:  "4 hours and 30 minutes",
		Type:         models.TripSport,
		Latitude:     &lat,
		Longitude:    &lng,
		VertDistUp:   distance.Some(distance.FromMetres(40)),
		CustomField2: "wet",
		Cavers:       []models.Caver{{Name: "Ann"}, {Name: "Bob"}},
		Privacy:      models.PrivacyDefault,
	}
}

func cell(t *testing.T, table Table, header string) string {
	t.Helper()
	for i, h := range table.Headers {
		if h == header {
			return table.Rows[0][i]
		}
	}
	t.Fatalf("no column %q in %v", header, table.Headers)
	return ""
}

func TestBuild_ColumnsFollowUserSettings(t *testing.T) {
	user := &models.User{Timezone: "Europe/London", Units: distance.Imperial, CustomField2Label: "Water level"}
	table := Build(user, []*models.Trip{exportTrip()})

	if len(table.Headers) != len(Columns)-4 {
		t.Fatalf("expected unlabelled custom fields dropped, got %d headers", len(table.Headers))
	}
	if got := cell(t, table, "Start time (Europe/London)"); got != "2024-06-01 11:00:00" {
		t.Fatalf("expected local start, got %q", got)
	}
	if got := cell(t, table, "Rope ascent distance (ft)"); got != "131.23" {
		t.Fatalf("expected feet, got %q", got)
	}
	if got := cell(t, table, "Horizontal distance (ft)"); got != "" {
		t.Fatalf("expected blank distance, got %q", got)
	}
	if got := cell(t, table, "Water level"); got != "wet" {
		t.Fatalf("expected custom field value, got %q", got)
	}
	if got := cell(t, table, "Cavers"); got != "Ann, Bob" {
		t.Fatalf("expected caver list, got %q", got)
	}
	if got := cell(t, table, "Coordinates"); got != "51.2345, -2.5" {
		t.Fatalf("expected coordinates, got %q", got)
	}

	metric := Build(&models.User{Timezone: "UTC"}, []*models.Trip{exportTrip()})
	if got := cell(t, metric, "Rope ascent distance (m)"); got != "40" {
		t.Fatalf("expected metres, got %q", got)
	}
}

func TestEncode_JSONKeepsColumnOrder(t *testing.T) {
	table := Table{Headers: []string{"Cave name", "Type"}, Rows: [][]string{{"GB \"Cave\"", "Sport"}}}
	body, err := table.Encode(FormatJSON)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := string(body); got != `[{"Cave name":"GB \"Cave\"","Type":"Sport"}]` {
		t.Fatalf("unexpected json %s", got)
	}
	empty, _ := Table{Headers: []string{"Cave name"}}.Encode(FormatJSON)
	if string(empty) != "[]" {
		t.Fatalf("expected empty array, got %s", empty)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(" CSV "); err != nil || f != FormatCSV {
		t.Fatalf("expected csv, got %q %v", f, err)
	}
	if _, err := ParseFormat("xlsx"); err == nil {
		t.Fatalf("expected unknown format rejected")
	}
}

func TestExport_CSVNewestFirst(t *testing.T) {
	conn := openTestDB(t, "exporter_export")
	ctx := context.Background()
	user := &models.User{Username: "ann", Email: "ann@example.com", Name: "Ann", Timezone: "UTC", IsActive: true}
	if err := store.NewUserStore(conn).Create(ctx, user, "password123"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	trips := store.NewTripStore(conn)
	for i, name := range []string{"Older", "Newer"} {
		trip := &models.Trip{UserID: user.ID, CaveName: name, Start: time.Date(2024, 1, 1+i, 9, 0, 0, 0, time.UTC)}
		if err := trips.Create(ctx, trip, nil); err != nil {
			t.Fatalf("create trip: %v", err)
		}
	}

	payload, err := NewService(conn).Export(ctx, user, FormatCSV)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if payload.Filename != "trips.csv" || payload.ContentType != "text/csv" {
		t.Fatalf("unexpected payload %q %q", payload.Filename, payload.ContentType)
	}
	records, err := csv.NewReader(bytes.NewReader(payload.Body)).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 || records[1][0] != "Newer" || records[2][0] != "Older" {
		t.Fatalf("unexpected rows %v", records)
	}
	if !strings.HasPrefix(records[0][7], "Start time (UTC)") {
		t.Fatalf("unexpected start header %q", records[0][7])
	}
}

func TestEncode_CSVImportsBack(t *testing.T) {
	for _, units := range []distance.System{distance.Imperial, distance.Metric} {
		user := &models.User{Timezone: "Europe/London", Units: units}
		trip := exportTrip()
		trip.CaveRegion = "Mendip"
		trip.CaveCountry = "UK"
		trip.CaveLocation = "Priddy"
		trip.HorizontalDist = distance.Some(distance.FromMetres(120))
		trip.Clubs = "Wessex"
		trip.Notes = "Sump one"
		trip.PublicNotes = "Short trip"
		trip.Privacy = models.PrivacyFriends

		table := Build(user, []*models.Trip{trip})
		data, errEncode := table.Encode(FormatCSV)
		if errEncode != nil {
			t.Fatalf("encode: %v", errEncode)
		}
		rows, errParse := importer.Parse(data)
		if errParse != nil {
			t.Fatalf("parse export: %v", errParse)
		}
		drafts, rowErrs, errValidate := importer.Validate(rows, user.Zone(), trip.Start.Add(24*time.Hour))
		if errValidate != nil {
			t.Fatalf("expected export to import cleanly, got %+v", rowErrs)
		}

		imported := &models.Trip{CreatedAt: trip.CreatedAt, UpdatedAt: trip.UpdatedAt}
		drafts[0].Apply(imported)
		for _, name := range drafts[0].CaverNames() {
			imported.Cavers = append(imported.Cavers, models.Caver{Name: name})
		}
		imported.ApplyDerived()

		again := Build(user, []*models.Trip{imported})
		for i, h := range table.Headers {
			if again.Rows[0][i] != table.Rows[0][i] {
				t.Fatalf("%s %s: expected %q after import, got %q", units, h, table.Rows[0][i], again.Rows[0][i])
			}
		}
	}
}

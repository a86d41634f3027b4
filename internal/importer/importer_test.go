package importer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

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

func csvFile(rows ...string) []byte {
	return []byte(SampleCSV() + "\n" + strings.Join(rows, "\n") + "\n")
}

func TestSampleCSV(t *testing.T) {
	sample := SampleCSV()
	if got := len(strings.Split(sample, ",")); got != 20 {
		t.Fatalf("expected 20 columns, got %d", got)
	}
	if !strings.HasPrefix(sample, "Cave name,Cave entrance,") || !strings.HasSuffix(sample, ",Notes") {
		t.Fatalf("unexpected sample %q", sample)
	}
}

func TestParse_RowsAndLimits(t *testing.T) {
	rows, err := Parse(csvFile(
		"Swildon's Hole,,,Mendip,UK,,2024-01-02 10:00,2024-01-02 14:00,sport,,,,Ann,,,,,,,",
		",,,,,,,,,,,,,,,,,,,",
		"GB Cave,,,,,,2024-01-03 10:00",
	))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and blank row dropped, got %d rows", len(rows))
	}
	if rows[1].Number != 2 || rows[1].Values["cave_name"] != "GB Cave" || rows[1].Values["notes"] != "" {
		t.Fatalf("unexpected short row %+v", rows[1])
	}

	if _, err := Parse(csvFile()); err == nil || apperr.KindOf(err) != apperr.KindValidation || !strings.Contains(err.Error(), msgNoRows) {
		t.Fatalf("expected no rows error, got %v", err)
	}

	many := make([]string, MaxRows+1)
	for i := range many {
		many[i] = fmt.Sprintf("Cave %d,,,,,,2024-01-02 10:00", i)
	}
	if _, err := Parse(csvFile(many...)); err == nil || !strings.Contains(err.Error(), msgTooMany) {
		t.Fatalf("expected too many rows error, got %v", err)
	}
	if rows, err := Parse(csvFile(many[:MaxRows]...)); err != nil || len(rows) != MaxRows {
		t.Fatalf("expected exactly 50 rows accepted, got %d %v", len(rows), err)
	}
}

func TestParse_RejectsBinary(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")
	if _, err := Parse(png); err == nil || !strings.Contains(err.Error(), msgNotCSV) {
		t.Fatalf("expected not csv error, got %v", err)
	}
}

func TestParse_DecodesLegacyEncoding(t *testing.T) {
	data := append([]byte(SampleCSV()+"\n"), []byte("Grotte de la Caf\xe9,,,,France,,2024-01-02 10:00\n")...)
	rows, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := rows[0].Values["cave_name"]; got != "Grotte de la Café" {
		t.Fatalf("expected decoded name, got %q", got)
	}
}

func TestRowDraft_Normalises(t *testing.T) {
	loc := time.FixedZone("test", 2*60*60)
	row := Row{Number: 1, Values: map[string]string{
		"cave_name":     "  Peak Cavern ",
		"start":         "2024-01-02T10:00:00+05:00",
		"end":           "not a date",
		"type":          "aID CLIMBING",
		"privacy":       "",
		"cavers":        "Ann, Bob",
		"vert_dist_up":  "40",
		"surveyed_dist": "12ft",
		"aid_dist":      "0",
	}}
	d := row.Draft(loc)
	if d.CaveName != "Peak Cavern" || d.Privacy != "Default" || d.Type != "Aid climbing" {
		t.Fatalf("unexpected draft %+v", d)
	}
	if d.Start == nil || d.Start.Hour() != 10 || d.Start.Location() != loc {
		t.Fatalf("expected wall clock start in loc, got %v", d.Start)
	}
	if d.End != nil {
		t.Fatalf("expected unreadable end to be nil, got %v", d.End)
	}
	if d.VertDistUp != "40m" || d.SurveyedDist != "12ft" || d.AidDist != "0" {
		t.Fatalf("unexpected distances %q %q %q", d.VertDistUp, d.SurveyedDist, d.AidDist)
	}
}

func TestValidate_RowErrors(t *testing.T) {
	rows, err := Parse(csvFile(
		"Swildon's Hole,,,,,,2024-01-02 10:00,2024-01-02 14:00",
		",,,,,,2024-01-02 10:00,,Swimming",
	))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	drafts, rowErrs, errValidate := Validate(rows, time.UTC, now)
	if len(drafts) != 2 || errValidate == nil {
		t.Fatalf("expected validation error, got %v", errValidate)
	}
	if len(rowErrs) != 2 {
		t.Fatalf("expected two errors on row 2, got %+v", rowErrs)
	}
	if got := rowErrs[0].String(); got != "Row 2: Cave name: This field is required." {
		t.Fatalf("unexpected first error %q", got)
	}
	if rowErrs[1].Field != "type" {
		t.Fatalf("expected type error second, got %+v", rowErrs[1])
	}
}

func TestCommit_StoresAllOrNothing(t *testing.T) {
	conn := openTestDB(t, "importer_commit")
	ctx := context.Background()
	users := store.NewUserStore(conn)
	user := &models.User{Username: "ann", Email: "ann@example.com", Name: "Ann", Timezone: "UTC", IsActive: true}
	if err := users.Create(ctx, user, "password123"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	svc := NewService(conn)
	svc.now = func() time.Time { return now }

	bad := csvFile(
		"Swildon's Hole,,,,,,2024-01-02 10:00",
		"Eastwater,,,,,,2024-01-02 10:00,2024-01-02 10:00",
	)
	if _, err := svc.Commit(ctx, user, bad); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n, _ := store.NewTripStore(conn).Count(ctx, user.ID); n != 0 {
		t.Fatalf("expected nothing stored, got %d trips", n)
	}

	preview, err := svc.Preview(ctx, user, bad)
	if err != nil || preview.Valid() || len(preview.Errors) != 1 || preview.Errors[0].Row != 2 {
		t.Fatalf("unexpected preview %+v %v", preview, err)
	}

	good := csvFile(
		"Swildon's Hole,,,,,,2024-01-02 10:00,2024-01-02 14:00,,,,,\"Bob, Cat\",,,40,,,,",
		"Eastwater,,,,,,2024-01-05 10:00,,digging,Private",
	)
	stored, err := svc.Commit(ctx, user, good)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(stored) != 2 || stored[1].Type != models.TripDigging || stored[1].Privacy != models.PrivacyPrivate {
		t.Fatalf("unexpected trips %+v", stored)
	}
	trip, err := store.NewTripStore(conn).ByUUID(ctx, stored[0].UUID)
	if err != nil {
		t.Fatalf("load trip: %v", err)
	}
	if trip.DurationStr == "" || !trip.VertDistUp.Distance.EqualMetres(40) {
		t.Fatalf("expected derived fields and metres default, got %q %v", trip.DurationStr, trip.VertDistUp)
	}
	if names := trip.CaverNames(); len(names) != 2 {
		t.Fatalf("expected two cavers, got %v", names)
	}
}

func TestParse_MatchesColumnsByHeaderName(t *testing.T) {
	data := []byte("Start time (Europe/London),Cave name,Duration,Horizontal distance (ft),Coordinates,Public notes\n" +
		"2024-01-02 10:00:00,Peak Cavern,3 hours,100,\"53.34, -1.78\",Dry\n")
	rows, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := rows[0].Values["cave_name"]; got != "Peak Cavern" {
		t.Fatalf("expected cave name by header, got %q", got)
	}
	if _, ok := rows[0].Values["duration"]; ok {
		t.Fatalf("expected unknown columns to be ignored, got %+v", rows[0].Values)
	}
	d := rows[0].Draft(time.UTC)
	if d.HorizontalDist != "100ft" {
		t.Fatalf("expected header unit, got %q", d.HorizontalDist)
	}
	if d.Start == nil || d.Start.Hour() != 10 || d.PublicNotes != "Dry" {
		t.Fatalf("unexpected draft %+v", d)
	}
	if d.Latitude == nil || *d.Latitude != 53.34 || d.Longitude == nil || *d.Longitude != -1.78 {
		t.Fatalf("expected coordinates, got %v %v", d.Latitude, d.Longitude)
	}
}

func TestParse_UnknownHeadersArePositional(t *testing.T) {
	data := []byte("a,b,c,d,e,f,g\nPeak Cavern,,,,,,2024-01-02 10:00\n")
	rows, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rows[0].Values["cave_name"] != "Peak Cavern" || rows[0].Values["start"] != "2024-01-02 10:00" {
		t.Fatalf("expected positional columns, got %+v", rows[0].Values)
	}
}

func TestValidate_BadCoordinates(t *testing.T) {
	data := []byte("Cave name,Start date/time,Coordinates\nPeak Cavern,2024-01-02 10:00,north\n")
	rows, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, rowErrs, errValidate := Validate(rows, time.UTC, now)
	if errValidate == nil || len(rowErrs) != 1 {
		t.Fatalf("expected one coordinate error, got %+v", rowErrs)
	}
	if got := rowErrs[0].String(); got != "Row 1: Coordinates: Enter valid coordinates." {
		t.Fatalf("unexpected error %q", got)
	}
}

package db

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/cavelog/cavelog/internal/models"
)

func TestBuildSQLiteDSN(t *testing.T) {
	got := BuildSQLiteDSN("data/cavelog.db")
	want := "file:data/cavelog.db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if got := BuildSQLiteDSN("file:x.db?mode=memory"); got[:len("file:x.db?mode=memory&")] != "file:x.db?mode=memory&" {
		t.Fatalf("expected existing query to be extended, got %q", got)
	}
}

func TestIsPostgresDSN(t *testing.T) {
	if !IsPostgresDSN("postgres://u:p@localhost/db") || !IsPostgresDSN("host=localhost user=x") {
		t.Fatalf("expected postgres dsn")
	}
	if IsPostgresDSN("cavelog.db") {
		t.Fatalf("expected sqlite path")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(fmt.Errorf("wrap: %w", gorm.ErrDuplicatedKey)) {
		t.Fatalf("expected gorm duplicated key")
	}
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("expected pg unique violation")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("expected foreign key violation to be ignored")
	}
	if IsUniqueViolation(errors.New("boom")) || IsUniqueViolation(nil) {
		t.Fatalf("expected unrelated errors to be ignored")
	}
}

func TestMigrateSQLite_UniqueReportSlug(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:db_migrate?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("expected migrate to be idempotent, got %v", errMigrate)
	}
	first := models.TripReport{TripID: 1, UserID: 1, Title: "One", Slug: "one"}
	if errCreate := conn.Create(&first).Error; errCreate != nil {
		t.Fatalf("create report: %v", errCreate)
	}
	second := models.TripReport{TripID: 2, UserID: 1, Title: "Two", Slug: "one"}
	errCreate := conn.Create(&second).Error
	if !IsUniqueViolation(errCreate) {
		t.Fatalf("expected unique violation, got %v", errCreate)
	}
}

func TestMigrate_BackfillsSearchText(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:db_backfill?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	trip := models.Trip{UUID: "t-1", UserID: 1, CaveName: "Ogof Ffynnon Ddû", Clubs: "SWCC", Start: time.Now().UTC()}
	if errCreate := conn.Create(&trip).Error; errCreate != nil {
		t.Fatalf("create trip: %v", errCreate)
	}
	if trip.SearchText != "ogof ffynnon ddu\nswcc" {
		t.Fatalf("expected folded text on save, got %q", trip.SearchText)
	}
	caver := models.Caver{UUID: "c-1", UserID: 1, Name: "Siân"}
	if errCreate := conn.Create(&caver).Error; errCreate != nil {
		t.Fatalf("create caver: %v", errCreate)
	}

	conn.Model(&models.Trip{}).Where("id = ?", trip.ID).UpdateColumn("search_text", "")
	conn.Model(&models.Caver{}).Where("id = ?", caver.ID).UpdateColumn("search_name", "")
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate again: %v", errMigrate)
	}

	var gotTrip models.Trip
	if errFind := conn.First(&gotTrip, trip.ID).Error; errFind != nil {
		t.Fatalf("find trip: %v", errFind)
	}
	if gotTrip.SearchText != "ogof ffynnon ddu\nswcc" {
		t.Fatalf("expected backfilled trip text, got %q", gotTrip.SearchText)
	}
	var gotCaver models.Caver
	if errFind := conn.First(&gotCaver, caver.ID).Error; errFind != nil {
		t.Fatalf("find caver: %v", errFind)
	}
	if gotCaver.SearchName != "sian" {
		t.Fatalf("expected backfilled caver name, got %q", gotCaver.SearchName)
	}
}

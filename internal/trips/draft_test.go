package trips

import (
	"strings"
	"testing"
	"time"

	"github.com/cavelog/cavelog/internal/models"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func validDraft() *Draft {
	start := now.Add(-48 * time.Hour)
	end := start.Add(3 * time.Hour)
	return &Draft{CaveName: " Swildon's Hole ", Start: &start, End: &end}
}

func strPtr(s string) *string { return &s }

func TestValidate_Defaults(t *testing.T) {
	d := validDraft()
	if verr := Validate(d, now); verr != nil {
		t.Fatalf("expected valid draft, got %v", verr.Messages())
	}
	if d.CaveName != "Swildon's Hole" {
		t.Fatalf("expected trimmed cave name, got %q", d.CaveName)
	}
	if d.Type != string(models.TripSport) || d.Privacy != string(models.PrivacyDefault) {
		t.Fatalf("expected default type and privacy, got %q %q", d.Type, d.Privacy)
	}
}

func TestValidate_StartBoundary(t *testing.T) {
	d := validDraft()
	start := now.Add(MaxStartAhead)
	d.Start, d.End = &start, nil
	if verr := Validate(d, now); verr != nil {
		t.Fatalf("expected start exactly 7 days ahead to be accepted, got %v", verr.Messages())
	}
	late := start.Add(time.Second)
	d.Start = &late
	verr := Validate(d, now)
	if verr == nil || len(verr.Field("start")) != 1 || verr.Field("start")[0] != msgStartAhead {
		t.Fatalf("expected start error one second later, got %v", verr)
	}
}

func TestValidate_EndBoundary(t *testing.T) {
	d := validDraft()
	start := now
	end := now.Add(MaxEndAhead)
	d.Start, d.End = &start, &end
	if verr := Validate(d, now); verr != nil {
		t.Fatalf("expected end exactly 31 days ahead to be accepted, got %v", verr.Messages())
	}
	late := end.Add(time.Second)
	d.End = &late
	verr := Validate(d, now)
	if verr == nil || verr.Field("end")[0] != msgEndAhead {
		t.Fatalf("expected end error one second later, got %v", verr)
	}
}

func TestValidate_TimeOrdering(t *testing.T) {
	cases := []struct {
		name  string
		end   time.Duration
		field string
		msg   string
	}{
		{name: "same", end: 0, field: "end", msg: msgSameTimes},
		{name: "before", end: -time.Hour, field: "start", msg: msgStartAfter},
		{name: "too long", end: MaxLength + time.Minute, field: "end", msg: msgTooLong},
	}
	for _, tc := range cases {
		d := validDraft()
		start := now.Add(-90 * 24 * time.Hour)
		end := start.Add(tc.end)
		d.Start, d.End = &start, &end
		verr := Validate(d, now)
		if verr == nil || len(verr.Field(tc.field)) == 0 || verr.Field(tc.field)[0] != tc.msg {
			t.Fatalf("%s: expected %q on %s, got %v", tc.name, tc.msg, tc.field, verr)
		}
	}
	d := validDraft()
	start := now.Add(-90 * 24 * time.Hour)
	end := start.Add(MaxLength)
	d.Start, d.End = &start, &end
	if verr := Validate(d, now); verr != nil {
		t.Fatalf("expected exactly 60 days to be accepted, got %v", verr.Messages())
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	verr := Validate(&Draft{}, now)
	if verr == nil {
		t.Fatalf("expected errors")
	}
	if verr.Field("cave_name")[0] != msgRequired || verr.Field("start")[0] != msgRequired {
		t.Fatalf("expected required messages, got %v", verr.Messages())
	}
}

func TestValidate_Distances(t *testing.T) {
	d := validDraft()
	d.HorizontalDist = "20mi"
	d.VertDistDown = "3000m"
	d.VertDistUp = "0"
	if verr := Validate(d, now); verr != nil {
		t.Fatalf("expected ceilings to be accepted, got %v", verr.Messages())
	}
	trip := &models.Trip{}
	d.Apply(trip)
	if !trip.HorizontalDist.Valid || trip.HorizontalDist.Distance.Unit() != "mi" {
		t.Fatalf("expected horizontal distance in miles, got %v", trip.HorizontalDist)
	}
	if !trip.VertDistUp.Empty() {
		t.Fatalf("expected zero distance to be empty")
	}

	d = validDraft()
	d.HorizontalDist = "20.01mi"
	d.VertDistDown = "3001m"
	d.AidDist = "-5m"
	d.SurveyedDist = "100"
	verr := Validate(d, now)
	if verr == nil {
		t.Fatalf("expected distance errors")
	}
	for _, field := range []string{"horizontal_dist", "vert_dist_down", "aid_dist", "surveyed_dist"} {
		if len(verr.Field(field)) == 0 {
			t.Fatalf("expected error on %s, got %v", field, verr.Messages())
		}
	}
	if verr.Field("aid_dist")[0] != "Distance must be above zero." {
		t.Fatalf("expected below zero message, got %q", verr.Field("aid_dist")[0])
	}
	if !strings.HasPrefix(verr.Field("surveyed_dist")[0], "Please choose a valid unit") {
		t.Fatalf("expected unit message, got %q", verr.Field("surveyed_dist")[0])
	}
}

func TestValidate_ChoicesURLAndCustomFields(t *testing.T) {
	d := validDraft()
	d.Type = "Swimming"
	d.Privacy = "Everyone"
	d.CaveURL = "not a url"
	d.CustomFields[0] = strPtr(strings.Repeat("a", 201))
	d.CustomFields[4] = strPtr(strings.Repeat("b", 101))
	verr := Validate(d, now)
	if verr == nil {
		t.Fatalf("expected errors")
	}
	for _, field := range []string{"type", "privacy", "cave_url", "custom_field_1", "custom_field_5"} {
		if len(verr.Field(field)) == 0 {
			t.Fatalf("expected error on %s, got %v", field, verr.Messages())
		}
	}
	if got := verr.Field("custom_field_5")[0]; got != MaxLengthMessage(100, 101) {
		t.Fatalf("expected length message, got %q", got)
	}

	d = validDraft()
	d.CaveURL = "https://example.com/cave"
	d.CustomFields[4] = strPtr(strings.Repeat("b", 100))
	if verr := Validate(d, now); verr != nil {
		t.Fatalf("expected valid draft, got %v", verr.Messages())
	}
}

func TestApply_LeavesUnsubmittedCustomFields(t *testing.T) {
	trip := &models.Trip{CustomField2: "kept", CustomField3: "old"}
	d := validDraft()
	d.CustomFields[2] = strPtr(" new ")
	d.Cavers = []string{" Ann ", "", "Bob"}
	if verr := Validate(d, now); verr != nil {
		t.Fatalf("validate: %v", verr.Messages())
	}
	d.Apply(trip)
	if trip.CustomField2 != "kept" || trip.CustomField3 != "new" {
		t.Fatalf("expected only submitted custom fields to change, got %q %q", trip.CustomField2, trip.CustomField3)
	}
	if names := d.CaverNames(); len(names) != 2 || names[0] != "Ann" || names[1] != "Bob" {
		t.Fatalf("expected cleaned caver names, got %v", names)
	}
	if trip.End == nil || !trip.Start.Before(*trip.End) {
		t.Fatalf("expected start and end copied")
	}
}

func TestFromTrip_RoundTrip(t *testing.T) {
	d := validDraft()
	d.VertDistUp = "40ft"
	if verr := Validate(d, now); verr != nil {
		t.Fatalf("validate: %v", verr.Messages())
	}
	trip := &models.Trip{}
	d.Apply(trip)

	again := FromTrip(trip)
	if again.VertDistUp != "40ft" {
		t.Fatalf("expected distance rendered in its unit, got %q", again.VertDistUp)
	}
	if verr := Validate(again, now); verr != nil {
		t.Fatalf("expected draft from trip to validate, got %v", verr.Messages())
	}
}

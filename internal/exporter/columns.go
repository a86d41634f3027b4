// Package exporter renders a user's trips as a downloadable CSV or JSON file.
package exporter

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cavelog/cavelog/internal/distance"
	"github.com/cavelog/cavelog/internal/models"
)

// DateTimeLayout is the cell format for timestamps.
const DateTimeLayout = "2006-01-02 15:04:05"

// Column describes one exported field.
type Column struct {
	Key    string
	Header func(user *models.User) string
	Value  func(user *models.User, trip *models.Trip) string
}

func fixed(header string) func(*models.User) string {
	return func(*models.User) string { return header }
}

func text(key, header string, value func(*models.Trip) string) Column {
	return Column{Key: key, Header: fixed(header), Value: func(_ *models.User, t *models.Trip) string { return value(t) }}
}

func datetime(key, verbose string, value func(*models.Trip) *time.Time) Column {
	return Column{
		Key:    key,
		Header: func(u *models.User) string { return fmt.Sprintf("%s (%s)", verbose, u.Zone().String()) },
		Value: func(u *models.User, t *models.Trip) string {
			v := value(t)
			if v == nil || v.IsZero() {
				return ""
			}
			return v.In(u.Zone()).Format(DateTimeLayout)
		},
	}
}

func length(key, verbose string, value func(*models.Trip) distance.Null) Column {
	return Column{
		Key:    key,
		Header: func(u *models.User) string { return fmt.Sprintf("%s (%s)", verbose, unitFor(u)) },
		Value: func(u *models.User, t *models.Trip) string {
			v := value(t)
			if !v.Valid {
				return ""
			}
			n, _ := v.Distance.In(unitFor(u))
			return strconv.FormatFloat(math.Round(n*100)/100, 'f', -1, 64)
		},
	}
}

func custom(i int) Column {
	return Column{
		Key:    fmt.Sprintf("custom_field_%d", i+1),
		Header: func(u *models.User) string { return u.CustomFieldLabels()[i] },
		Value:  func(_ *models.User, t *models.Trip) string { return t.CustomFields()[i] },
	}
}

// unitFor returns the distance unit of user's preferred system.
func unitFor(u *models.User) string {
	if u.Units == distance.Imperial {
		return "ft"
	}
	return "m"
}

func timePtr(t time.Time) *time.Time { return &t }

// Columns is the full export schema in output order. Custom field columns
// are dropped for users who have not labelled them.
var Columns = []Column{
	text("cave_name", "Cave name", func(t *models.Trip) string { return t.CaveName }),
	text("cave_entrance", "Entrance", func(t *models.Trip) string { return t.CaveEntrance }),
	text("cave_exit", "Exit", func(t *models.Trip) string { return t.CaveExit }),
	text("cave_region", "Region", func(t *models.Trip) string { return t.CaveRegion }),
	text("cave_country", "Country", func(t *models.Trip) string { return t.CaveCountry }),
	text("cave_location", "Location", func(t *models.Trip) string { return t.CaveLocation }),
	text("cave_coordinates", "Coordinates", coordinates),
	datetime("start", "Start time", func(t *models.Trip) *time.Time { return timePtr(t.Start) }),
	datetime("end", "End time", func(t *models.Trip) *time.Time { return t.End }),
	text("duration", "Duration", func(t *models.Trip) string { return t.DurationStr }),
	text("type", "Type", func(t *models.Trip) string { return string(t.Type) }),
	text("clubs", "Clubs", func(t *models.Trip) string { return t.Clubs }),
	text("expedition", "Expedition", func(t *models.Trip) string { return t.Expedition }),
	text("cavers", "Cavers", func(t *models.Trip) string { return t.CaversString() }),
	custom(0),
	custom(1),
	custom(2),
	custom(3),
	custom(4),
	length("horizontal_dist", "Horizontal distance", func(t *models.Trip) distance.Null { return t.HorizontalDist }),
	length("vert_dist_up", "Rope ascent distance", func(t *models.Trip) distance.Null { return t.VertDistUp }),
	length("vert_dist_down", "Rope descent distance", func(t *models.Trip) distance.Null { return t.VertDistDown }),
	length("surveyed_dist", "Surveyed distance", func(t *models.Trip) distance.Null { return t.SurveyedDist }),
	length("resurveyed_dist", "Resurveyed distance", func(t *models.Trip) distance.Null { return t.ResurveyedDist }),
	length("aid_dist", "Aid climbing distance", func(t *models.Trip) distance.Null { return t.AidDist }),
	text("notes", "Private notes", func(t *models.Trip) string { return t.Notes }),
	text("public_notes", "Public notes", func(t *models.Trip) string { return t.PublicNotes }),
	datetime("added", "Trip added on", func(t *models.Trip) *time.Time { return timePtr(t.CreatedAt) }),
	datetime("updated", "Trip last updated", func(t *models.Trip) *time.Time { return timePtr(t.UpdatedAt) }),
	text("privacy", "Who can view this trip?", func(t *models.Trip) string { return string(t.Privacy) }),
}

func coordinates(t *models.Trip) string {
	if t.Latitude == nil || t.Longitude == nil {
		return ""
	}
	return fmt.Sprintf("%s, %s",
		strconv.FormatFloat(*t.Latitude, 'f', -1, 64),
		strconv.FormatFloat(*t.Longitude, 'f', -1, 64))
}

// ColumnsFor returns the columns exported for user.
func ColumnsFor(user *models.User) []Column {
	out := make([]Column, 0, len(Columns))
	for _, c := range Columns {
		if c.Header(user) == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

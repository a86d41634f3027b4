// Package stats computes the statistics shown for a user's trips.
//
// Surface trips count towards unique places and count based tables but are
// left out of every duration or distance aggregation.
package stats

import (
	"sort"
	"time"

	"github.com/cavelog/cavelog/internal/distance"
	"github.com/cavelog/cavelog/internal/models"
)

// DefaultMaxYears is how many recent years Yearly reports.
const DefaultMaxYears = 10

// YearlyStats aggregates the trips of one year, or of every year when IsTotal.
type YearlyStats struct {
	Year       int               `json:"year"`
	IsTotal    bool              `json:"is_total"`
	Trips      int               `json:"trips"`
	Duration   time.Duration     `json:"duration"`
	Climbed    distance.Distance `json:"climbed"`
	Descended  distance.Distance `json:"descended"`
	Surveyed   distance.Distance `json:"surveyed"`
	Resurveyed distance.Distance `json:"resurveyed"`
	Horizontal distance.Distance `json:"horizontal"`
	AidClimbed distance.Distance `json:"aid_climbed"`
	CavingDays int               `json:"caving_days"`

	dates map[string]struct{}
}

func newYearly(year int, total bool) *YearlyStats {
	return &YearlyStats{Year: year, IsTotal: total, dates: make(map[string]struct{})}
}

func (y *YearlyStats) add(trip *models.Trip, loc *time.Location) {
	y.Climbed = y.Climbed.Add(trip.VertDistUp.Distance)
	y.Descended = y.Descended.Add(trip.VertDistDown.Distance)
	y.Surveyed = y.Surveyed.Add(trip.SurveyedDist.Distance)
	y.Resurveyed = y.Resurveyed.Add(trip.ResurveyedDist.Distance)
	y.Horizontal = y.Horizontal.Add(trip.HorizontalDist.Distance)
	y.AidClimbed = y.AidClimbed.Add(trip.AidDist.Distance)
	if trip.Duration != nil {
		y.Duration += *trip.Duration
	}
	y.Trips++
	for _, day := range tripDates(trip, loc) {
		y.dates[day] = struct{}{}
	}
	y.CavingDays = len(y.dates)
}

// CavingHours returns the total duration in hours.
func (y YearlyStats) CavingHours() float64 {
	return y.Duration.Hours()
}

// tripDates lists every calendar date the trip touches in loc.
func tripDates(trip *models.Trip, loc *time.Location) []string {
	start := trip.Start.In(loc)
	end := start
	if trip.End != nil && trip.End.After(trip.Start) {
		end = trip.End.In(loc)
	}
	var out []string
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
	for !day.After(last) {
		out = append(out, day.Format(time.DateOnly))
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// underground drops surface trips.
func underground(trips []*models.Trip) []*models.Trip {
	out := make([]*models.Trip, 0, len(trips))
	for _, trip := range trips {
		if !trip.IsSurface() {
			out = append(out, trip)
		}
	}
	return out
}

// Yearly aggregates the last maxYears years up to now, oldest first, with a
// total over every year appended. Dates are bucketed in now's location. The
// result is empty when no trip falls in the window.
func Yearly(trips []*models.Trip, now time.Time, maxYears int) []YearlyStats {
	if maxYears <= 0 {
		maxYears = DefaultMaxYears
	}
	loc := now.Location()
	earliest := now.Year() - (maxYears - 1)
	total := newYearly(0, true)
	years := make(map[int]*YearlyStats)
	for _, trip := range underground(trips) {
		total.add(trip, loc)
		year := trip.Start.In(loc).Year()
		if year < earliest {
			continue
		}
		if years[year] == nil {
			years[year] = newYearly(year, false)
		}
		years[year].add(trip, loc)
	}
	if len(years) == 0 {
		return nil
	}
	out := sortedYears(years)
	return append(out, *total)
}

// ChartsOverTime returns per-year totals for every year with trips.
func ChartsOverTime(trips []*models.Trip, loc *time.Location) []YearlyStats {
	years := make(map[int]*YearlyStats)
	for _, trip := range underground(trips) {
		year := trip.Start.In(loc).Year()
		if years[year] == nil {
			years[year] = newYearly(year, false)
		}
		years[year].add(trip, loc)
	}
	return sortedYears(years)
}

func sortedYears(years map[int]*YearlyStats) []YearlyStats {
	out := make([]YearlyStats, 0, len(years))
	for _, y := range years {
		out = append(out, *y)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// CavingDays counts the distinct dates spanned by non-surface trips.
func CavingDays(trips []*models.Trip, loc *time.Location) int {
	days := make(map[string]struct{})
	for _, trip := range underground(trips) {
		for _, day := range tripDates(trip, loc) {
			days[day] = struct{}{}
		}
	}
	return len(days)
}

// MonthHours is the caving time logged in one calendar month.
type MonthHours struct {
	Month time.Time `json:"month"`
	Hours float64   `json:"hours"`
}

// HoursPerMonth returns the last twelve months up to now, oldest first.
func HoursPerMonth(trips []*models.Trip, now time.Time) []MonthHours {
	loc := now.Location()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	out := make([]MonthHours, 12)
	index := make(map[string]int, 12)
	for i := 0; i < 12; i++ {
		month := current.AddDate(0, i-11, 0)
		out[i].Month = month
		index[month.Format("2006-01")] = i
	}
	for _, trip := range underground(trips) {
		if trip.Duration == nil {
			continue
		}
		if i, ok := index[trip.Start.In(loc).Format("2006-01")]; ok {
			out[i].Hours += trip.Duration.Hours()
		}
	}
	return out
}

// TypeRow is the number of trips and total time for one trip type.
type TypeRow struct {
	Type     models.TripType `json:"type"`
	Trips    int             `json:"trips"`
	Duration time.Duration   `json:"duration"`
}

// TripTypeBreakdown counts trips and sums time per type, most trips first.
func TripTypeBreakdown(trips []*models.Trip) []TypeRow {
	rows := make(map[models.TripType]*TypeRow)
	for _, trip := range trips {
		row := rows[trip.Type]
		if row == nil {
			row = &TypeRow{Type: trip.Type}
			rows[trip.Type] = row
		}
		row.Trips++
		if trip.Duration != nil {
			row.Duration += *trip.Duration
		}
	}
	out := make([]TypeRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Trips != out[j].Trips {
			return out[i].Trips > out[j].Trips
		}
		return out[i].Type < out[j].Type
	})
	return out
}

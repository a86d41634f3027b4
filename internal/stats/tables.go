package stats

import (
	"sort"
	"strings"
	"time"

	"github.com/cavelog/cavelog/internal/distance"
	"github.com/cavelog/cavelog/internal/models"
)

// DefaultLimit is the number of rows in most common and biggest trip tables.
const DefaultLimit = 10

// CommonRow is one entry of a most common table.
type CommonRow struct {
	Metric   string        `json:"metric"`
	Count    int           `json:"count,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	URL      string        `json:"url,omitempty"`
}

// CommonTable ranks values by how often, or for how long, they occur.
type CommonTable struct {
	Title      string      `json:"title"`
	MetricName string      `json:"metric_name"`
	ValueName  string      `json:"value_name"`
	IsTime     bool        `json:"is_time"`
	Rows       []CommonRow `json:"rows"`
}

type counter struct {
	order []string
	rows  map[string]*CommonRow
}

func newCounter() *counter {
	return &counter{rows: make(map[string]*CommonRow)}
}

func (c *counter) row(key, metric, url string) *CommonRow {
	r := c.rows[key]
	if r == nil {
		r = &CommonRow{Metric: metric, URL: url}
		c.rows[key] = r
		c.order = append(c.order, key)
	}
	return r
}

// top returns up to limit rows by descending count or duration. Ties keep
// first-seen order.
func (c *counter) top(limit int, byTime bool) []CommonRow {
	out := make([]CommonRow, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, *c.rows[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if byTime {
			return out[i].Duration > out[j].Duration
		}
		return out[i].Count > out[j].Count
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// splitList splits a comma separated field and drops blank entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// MostCommon builds the most common cavers, caves, clubs and trip types
// tables. Empty tables are omitted.
func MostCommon(trips []*models.Trip, limit int) []CommonTable {
	if limit <= 0 {
		limit = DefaultLimit
	}
	byTrips, byTime, caves, clubs, types := newCounter(), newCounter(), newCounter(), newCounter(), newCounter()
	for _, trip := range trips {
		for _, caver := range trip.Cavers {
			byTrips.row(caver.UUID, caver.Name, caver.Path()).Count++
			if !trip.IsSurface() && trip.Duration != nil {
				byTime.row(caver.UUID, caver.Name, caver.Path()).Duration += *trip.Duration
			}
		}
		caves.row(trip.CaveName, trip.CaveName, "").Count++
		for _, club := range splitList(trip.Clubs) {
			clubs.row(club, club, "").Count++
		}
		types.row(string(trip.Type), string(trip.Type), "").Count++
	}
	tables := []CommonTable{
		{Title: "Most common cavers by trips", MetricName: "Caver", ValueName: "Trips", Rows: byTrips.top(limit, false)},
		{Title: "Most common cavers by time", MetricName: "Caver", ValueName: "Time", IsTime: true, Rows: byTime.top(limit, true)},
		{Title: "Most common caves", MetricName: "Cave", ValueName: "Trips", Rows: caves.top(limit, false)},
		{Title: "Most common clubs", MetricName: "Club", ValueName: "Trips", Rows: clubs.top(limit, false)},
		{Title: "Most common trip types", MetricName: "Trip type", ValueName: "Trips", Rows: types.top(limit, false)},
	}
	out := tables[:0]
	for _, t := range tables {
		if len(t.Rows) > 0 {
			out = append(out, t)
		}
	}
	return out
}

// TripRow is one trip of a biggest trips table.
type TripRow struct {
	Trip     *models.Trip      `json:"trip"`
	Distance distance.Distance `json:"distance"`
	Duration time.Duration     `json:"duration,omitempty"`
}

// TripTable lists the largest trips by one metric.
type TripTable struct {
	Title  string    `json:"title"`
	Metric string    `json:"metric"`
	IsTime bool      `json:"is_time"`
	Rows   []TripRow `json:"rows"`
}

type distanceMetric struct {
	title  string
	metric string
	value  func(*models.Trip) distance.Null
}

var (
	surveyMetrics = []distanceMetric{
		{"Surveyed", "Surveyed", func(t *models.Trip) distance.Null { return t.SurveyedDist }},
		{"Resurveyed", "Resurveyed", func(t *models.Trip) distance.Null { return t.ResurveyedDist }},
	}
	ropeMetrics = []distanceMetric{
		{"Rope climbed", "Climbed", func(t *models.Trip) distance.Null { return t.VertDistUp }},
		{"Rope descended", "Descended", func(t *models.Trip) distance.Null { return t.VertDistDown }},
		{"Aid climbed", "Aid climbed", func(t *models.Trip) distance.Null { return t.AidDist }},
		{"Horizontal distance", "Distance", func(t *models.Trip) distance.Null { return t.HorizontalDist }},
	}
)

// BiggestTrips ranks non-surface trips by duration and by each distance.
// Trips without a value are skipped and empty tables omitted.
func BiggestTrips(trips []*models.Trip, limit int, disableDist, disableSurvey bool) []TripTable {
	if limit <= 0 {
		limit = DefaultLimit
	}
	trips = underground(trips)

	longest := TripTable{Title: "Longest trips", Metric: "Duration", IsTime: true}
	for _, trip := range trips {
		if trip.Duration != nil {
			longest.Rows = append(longest.Rows, TripRow{Trip: trip, Duration: *trip.Duration})
		}
	}
	sort.SliceStable(longest.Rows, func(i, j int) bool { return longest.Rows[i].Duration > longest.Rows[j].Duration })
	tables := []TripTable{longest}

	var metrics []distanceMetric
	if !disableSurvey {
		metrics = append(metrics, surveyMetrics...)
	}
	if !disableDist {
		metrics = append(metrics, ropeMetrics...)
	}
	for _, m := range metrics {
		table := TripTable{Title: m.title, Metric: m.metric}
		for _, trip := range trips {
			if v := m.value(trip); !v.Empty() {
				table.Rows = append(table.Rows, TripRow{Trip: trip, Distance: v.Distance})
			}
		}
		sort.SliceStable(table.Rows, func(i, j int) bool {
			return table.Rows[i].Distance.Metres() > table.Rows[j].Distance.Metres()
		})
		tables = append(tables, table)
	}

	out := tables[:0]
	for _, t := range tables {
		if len(t.Rows) > limit {
			t.Rows = t.Rows[:limit]
		}
		if len(t.Rows) > 0 {
			out = append(out, t)
		}
	}
	return out
}

// AverageRow is one average statistic.
type AverageRow struct {
	Metric   string            `json:"metric"`
	Value    float64           `json:"value,omitempty"`
	Duration time.Duration     `json:"duration,omitempty"`
	Distance distance.Distance `json:"distance"`
	IsDist   bool              `json:"is_dist"`
	IsTime   bool              `json:"is_time"`
}

func (r AverageRow) zero() bool {
	switch {
	case r.IsDist:
		return r.Distance.IsZero()
	case r.IsTime:
		return r.Duration == 0
	default:
		return r.Value == 0
	}
}

// Averages returns trips per week, mean duration of ended trips and mean
// distances over the trips that recorded each distance. Zero rows are omitted.
func Averages(trips []*models.Trip, now time.Time, disableDist, disableSurvey bool) []AverageRow {
	trips = underground(trips)
	rows := []AverageRow{
		{Metric: "Trips per week", Value: tripsPerWeek(trips, now)},
		{Metric: "Trip duration", Duration: meanDuration(trips), IsTime: true},
	}
	if !disableDist {
		rows = append(rows,
			AverageRow{Metric: "Rope climbed", Distance: meanDistance(trips, ropeMetrics[0].value), IsDist: true},
			AverageRow{Metric: "Rope descended", Distance: meanDistance(trips, ropeMetrics[1].value), IsDist: true},
			AverageRow{Metric: "Aid climbed", Distance: meanDistance(trips, ropeMetrics[2].value), IsDist: true},
			AverageRow{Metric: "Horizontal", Distance: meanDistance(trips, ropeMetrics[3].value), IsDist: true},
		)
	}
	if !disableSurvey {
		rows = append(rows,
			AverageRow{Metric: "Surveyed", Distance: meanDistance(trips, surveyMetrics[0].value), IsDist: true},
			AverageRow{Metric: "Resurveyed", Distance: meanDistance(trips, surveyMetrics[1].value), IsDist: true},
		)
	}
	out := rows[:0]
	for _, r := range rows {
		if !r.zero() {
			out = append(out, r)
		}
	}
	return out
}

func tripsPerWeek(trips []*models.Trip, now time.Time) float64 {
	if len(trips) == 0 {
		return 0
	}
	first := trips[0].Start
	for _, trip := range trips[1:] {
		if trip.Start.Before(first) {
			first = trip.Start
		}
	}
	weeks := int(now.Sub(first).Hours()/24) / 7
	if weeks <= 0 {
		return 0
	}
	return float64(len(trips)) / float64(weeks)
}

func meanDuration(trips []*models.Trip) time.Duration {
	var total time.Duration
	n := 0
	for _, trip := range trips {
		if trip.End == nil || trip.Duration == nil {
			continue
		}
		total += *trip.Duration
		n++
	}
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}

func meanDistance(trips []*models.Trip, value func(*models.Trip) distance.Null) distance.Distance {
	var total float64
	n := 0
	for _, trip := range trips {
		v := value(trip)
		if v.Metres() <= 0 {
			continue
		}
		total += v.Metres()
		n++
	}
	if n == 0 {
		return distance.FromMetres(0)
	}
	return distance.FromMetres(total / float64(n))
}

// MetricRow is one unique count.
type MetricRow struct {
	Metric string `json:"metric"`
	Value  int    `json:"value"`
}

// Metrics counts unique caves, entrances and exits, countries, regions and
// cavers. Zero rows are omitted.
func Metrics(trips []*models.Trip) []MetricRow {
	caves := make(map[string]struct{})
	entrances := make(map[string]struct{})
	countries := make(map[string]struct{})
	regions := make(map[string]struct{})
	cavers := make(map[uint64]struct{})
	for _, trip := range trips {
		caves[strings.ToLower(trip.CaveName)] = struct{}{}
		if trip.CaveEntrance != "" || trip.CaveExit != "" {
			if trip.CaveEntrance != "" {
				entrances[trip.CaveEntrance] = struct{}{}
			}
			if trip.CaveExit != "" {
				entrances[trip.CaveExit] = struct{}{}
			}
		} else {
			entrances[trip.CaveName] = struct{}{}
		}
		if c := strings.ToLower(strings.TrimSpace(trip.CaveCountry)); c != "" {
			countries[c] = struct{}{}
		}
		if r := strings.ToLower(strings.TrimSpace(trip.CaveRegion)); r != "" {
			regions[r] = struct{}{}
		}
		for _, caver := range trip.Cavers {
			cavers[caver.ID] = struct{}{}
		}
	}
	rows := []MetricRow{
		{"Unique caves entered", len(caves)},
		{"Unique entrances/exits used", len(entrances)},
		{"Unique countries", len(countries)},
		{"Unique regions", len(regions)},
		{"Cavers caved with", len(cavers)},
	}
	out := rows[:0]
	for _, r := range rows {
		if r.Value > 0 {
			out = append(out, r)
		}
	}
	return out
}

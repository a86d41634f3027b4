package geocode

import (
	"fmt"
	"sort"
	"time"

	"github.com/cavelog/cavelog/internal/models"
)

// Marker is one mapped location with its visit count.
type Marker struct {
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Title       string    `json:"title"`
	Visits      int       `json:"visits"`
	LastVisit   time.Time `json:"last_visit"`
	LastTripURL string    `json:"last_trip_url"`
}

// Markers groups trips with coordinates by location. The title is the
// entrance of the first trip seen, or its cave name.
func Markers(trips []models.Trip) []Marker {
	byCoords := make(map[string]*Marker)
	var order []string
	for i := range trips {
		t := &trips[i]
		if t.Latitude == nil || t.Longitude == nil {
			continue
		}
		key := fmt.Sprintf("%v,%v", *t.Latitude, *t.Longitude)
		if m, ok := byCoords[key]; ok {
			m.Visits++
			if t.Start.After(m.LastVisit) {
				m.LastVisit = t.Start
				m.LastTripURL = t.Path()
			}
			continue
		}
		title := t.CaveEntrance
		if title == "" {
			title = t.CaveName
		}
		byCoords[key] = &Marker{
			Lat:         *t.Latitude,
			Lng:         *t.Longitude,
			Title:       title,
			Visits:      1,
			LastVisit:   t.Start,
			LastTripURL: t.Path(),
		}
		order = append(order, key)
	}
	out := make([]Marker, 0, len(order))
	for _, key := range order {
		out = append(out, *byCoords[key])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Visits > out[j].Visits })
	return out
}

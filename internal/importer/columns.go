// Package importer reads trips from an uploaded CSV file.
package importer

import (
	"regexp"
	"strings"

	"github.com/cavelog/cavelog/internal/distance"
)

// Column is one position of the import schema.
type Column struct {
	Key    string
	Header string
}

// Columns is the fixed import schema in file order.
var Columns = []Column{
	{"cave_name", "Cave name"},
	{"cave_entrance", "Cave entrance"},
	{"cave_exit", "Cave exit"},
	{"cave_region", "Cave region"},
	{"cave_country", "Cave country"},
	{"cave_url", "Cave website"},
	{"start", "Start date/time"},
	{"end", "End date/time"},
	{"type", "Type"},
	{"privacy", "Privacy"},
	{"clubs", "Clubs"},
	{"expedition", "Expedition"},
	{"cavers", "Cavers"},
	{"horizontal_dist", "Horizontal dist"},
	{"vert_dist_down", "Vertical dist down"},
	{"vert_dist_up", "Vertical dist up"},
	{"surveyed_dist", "Surveyed dist"},
	{"resurveyed_dist", "Resurveyed dist"},
	{"aid_dist", "Aid dist"},
	{"notes", "Notes"},
}

// exportedColumns are read only from files matched by header name, such as
// a logbook export.
var exportedColumns = []Column{
	{"cave_location", "Location"},
	{"cave_coordinates", "Coordinates"},
	{"public_notes", "Public notes"},
}

// exportHeaders maps the export's header names onto import keys.
var exportHeaders = map[string]string{
	"entrance":                "cave_entrance",
	"exit":                    "cave_exit",
	"region":                  "cave_region",
	"country":                 "cave_country",
	"start time":              "start",
	"end time":                "end",
	"horizontal distance":     "horizontal_dist",
	"rope descent distance":   "vert_dist_down",
	"rope ascent distance":    "vert_dist_up",
	"surveyed distance":       "surveyed_dist",
	"resurveyed distance":     "resurveyed_dist",
	"aid climbing distance":   "aid_dist",
	"private notes":           "notes",
	"who can view this trip?": "privacy",
}

var distanceKeys = map[string]bool{
	"horizontal_dist": true,
	"vert_dist_down":  true,
	"vert_dist_up":    true,
	"surveyed_dist":   true,
	"resurveyed_dist": true,
	"aid_dist":        true,
}

// headerSuffix splits "Horizontal distance (ft)" into name and suffix.
var headerSuffix = regexp.MustCompile(`^(.*?)\s*\(([^()]*)\)$`)

// layout maps file columns onto import keys.
type layout struct {
	keys  []string
	units map[string]string
}

// positional is the fixed schema of the sample file.
func positional() layout {
	keys := make([]string, len(Columns))
	for i, c := range Columns {
		keys[i] = c.Key
	}
	return layout{keys: keys}
}

// lookupHeader returns the key for a header name, or "".
func lookupHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	for _, group := range [][]Column{Columns, exportedColumns} {
		for _, c := range group {
			if name == strings.ToLower(c.Header) || name == c.Key {
				return c.Key
			}
		}
	}
	return exportHeaders[name]
}

// resolveLayout maps a header row by name. Files whose header row does not
// name the cave and start columns are read by position.
func resolveLayout(record []string) layout {
	out := layout{keys: make([]string, len(record)), units: make(map[string]string)}
	seen := make(map[string]bool)
	for i, cell := range record {
		key := lookupHeader(cell)
		suffix := ""
		if key == "" {
			if m := headerSuffix.FindStringSubmatch(strings.TrimSpace(cell)); m != nil {
				key, suffix = lookupHeader(m[1]), strings.TrimSpace(m[2])
			}
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out.keys[i] = key
		if distanceKeys[key] && suffix != "" {
			if unit, _, errUnit := distance.Default.Resolve(suffix); errUnit == nil {
				out.units[key] = unit
			}
		}
	}
	if !seen["cave_name"] || !seen["start"] {
		return positional()
	}
	return out
}

// SampleCSV returns the header line of an import file.
func SampleCSV() string {
	headers := make([]string, len(Columns))
	for i, c := range Columns {
		headers[i] = c.Header
	}
	return strings.Join(headers, ",")
}

// header returns the display header for key, or key itself.
func header(key string) string {
	for _, group := range [][]Column{Columns, exportedColumns} {
		for _, c := range group {
			if c.Key == key {
				return c.Header
			}
		}
	}
	return key
}

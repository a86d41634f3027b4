package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/trips"
)

// MaxRows is the largest number of data rows one import may hold.
const MaxRows = 50

const (
	msgNotCSV   = "The imported file is not a CSV file."
	msgEncoding = "The imported file uses an unsupported text encoding."
	msgNoRows   = "Imported file has no data rows."
	msgTooMany  = "Imported file has more than 50 data rows."
	msgBadCSV   = "The imported file could not be read as CSV."
	msgBadCoord = "Enter valid coordinates."
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is one data row keyed by column key. Number counts data rows from 1.
// Units holds the unit named in a distance column's header, if any.
type Row struct {
	Number int
	Values map[string]string
	Units  map[string]string
}

// Parse sniffs, decodes and splits an uploaded file into data rows. The
// header row and blank rows are dropped. Columns are matched by header name
// when the header row names them, as in a logbook export, and by position
// otherwise.
func Parse(data []byte) ([]Row, error) {
	mtype := mimetype.Detect(data)
	if !mtype.Is("text/csv") && !mtype.Is("text/plain") {
		return nil, apperr.FieldError("file", msgNotCSV)
	}
	text, errDecode := decode(data)
	if errDecode != nil {
		return nil, errDecode
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	var rows []Row
	var cols layout
	for line := 0; ; line++ {
		record, errRead := reader.Read()
		if errors.Is(errRead, io.EOF) {
			break
		}
		if errRead != nil {
			return nil, apperr.FieldError("file", msgBadCSV)
		}
		if line == 0 {
			cols = resolveLayout(record)
			continue
		}
		if blank(record) {
			continue
		}
		values := make(map[string]string, len(cols.keys))
		for i, key := range cols.keys {
			if key == "" {
				continue
			}
			if i < len(record) {
				values[key] = record[i]
			} else {
				values[key] = ""
			}
		}
		rows = append(rows, Row{Number: len(rows) + 1, Values: values, Units: cols.units})
		if len(rows) > MaxRows {
			return nil, apperr.FieldError("file", msgTooMany)
		}
	}
	if len(rows) == 0 {
		return nil, apperr.FieldError("file", msgNoRows)
	}
	return rows, nil
}

// decode returns data as UTF-8 text. Valid UTF-8 is used as is; anything else
// is decoded with the detected charset.
func decode(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), nil
	}
	result, errDetect := chardet.NewTextDetector().DetectBest(data)
	if errDetect != nil {
		return "", apperr.FieldError("file", msgEncoding)
	}
	enc, errEnc := htmlindex.Get(result.Charset)
	if errEnc != nil {
		return "", apperr.FieldError("file", msgEncoding)
	}
	out, errBytes := enc.NewDecoder().Bytes(data)
	if errBytes != nil {
		return "", apperr.FieldError("file", msgEncoding)
	}
	return string(out), nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Draft normalises the row into trip input. Dates are read as wall clock
// times in loc whatever offset they carry and become nil when unreadable.
// Bare numbers are taken in the header's unit, or metres.
func (r Row) Draft(loc *time.Location) *trips.Draft {
	v := func(key string) string { return strings.TrimSpace(r.Values[key]) }
	dist := func(key string) string { return withUnit(v(key), r.unit(key)) }
	d := &trips.Draft{
		CaveName:       v("cave_name"),
		CaveEntrance:   v("cave_entrance"),
		CaveExit:       v("cave_exit"),
		CaveRegion:     v("cave_region"),
		CaveCountry:    v("cave_country"),
		CaveURL:        v("cave_url"),
		CaveLocation:   v("cave_location"),
		Start:          parseTime(v("start"), loc),
		End:            parseTime(v("end"), loc),
		Type:           capitalise(v("type")),
		Privacy:        v("privacy"),
		Clubs:          v("clubs"),
		Expedition:     v("expedition"),
		Cavers:         strings.Split(v("cavers"), ","),
		HorizontalDist: dist("horizontal_dist"),
		VertDistDown:   dist("vert_dist_down"),
		VertDistUp:     dist("vert_dist_up"),
		SurveyedDist:   dist("surveyed_dist"),
		ResurveyedDist: dist("resurveyed_dist"),
		AidDist:        dist("aid_dist"),
		Notes:          v("notes"),
		PublicNotes:    v("public_notes"),
	}
	if d.Privacy == "" {
		d.Privacy = "Default"
	}
	if lat, lng, ok := r.coordinates(); ok && lat != nil {
		d.Latitude, d.Longitude = lat, lng
	}
	return d
}

func (r Row) unit(key string) string {
	if unit := r.Units[key]; unit != "" {
		return unit
	}
	return "m"
}

// coordinates parses a "lat, lng" cell. A blank cell is ok with nil values.
func (r Row) coordinates() (*float64, *float64, bool) {
	value := strings.TrimSpace(r.Values["cave_coordinates"])
	if value == "" {
		return nil, nil, true
	}
	latText, lngText, found := strings.Cut(value, ",")
	if !found {
		return nil, nil, false
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(latText), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(lngText), 64)
	if errLat != nil || errLng != nil {
		return nil, nil, false
	}
	return &lat, &lng, true
}

func parseTime(value string, loc *time.Location) *time.Time {
	if value == "" {
		return nil
	}
	t, errParse := dateparse.ParseIn(value, loc)
	if errParse != nil {
		return nil
	}
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
	return &wall
}

// capitalise upper-cases the first letter and lower-cases the rest.
func capitalise(value string) string {
	if value == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(value)
	return string(unicode.ToUpper(r)) + strings.ToLower(value[size:])
}

// withUnit appends unit to a bare number other than "0".
func withUnit(value, unit string) string {
	if _, errNumber := strconv.ParseFloat(value, 64); errNumber == nil && value != "0" {
		return value + unit
	}
	return value
}

// RowError is a validation message for one field of one row.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e RowError) String() string {
	if e.Field == "" {
		return fmt.Sprintf("Row %d: %s", e.Row, e.Message)
	}
	return fmt.Sprintf("Row %d: %s: %s", e.Row, header(e.Field), e.Message)
}

// Validate normalises and checks every row as of now. Drafts are returned for
// every row; the error lists every failing row in file order.
func Validate(rows []Row, loc *time.Location, now time.Time) ([]*trips.Draft, []RowError, error) {
	drafts := make([]*trips.Draft, len(rows))
	var rowErrs []RowError
	for i, row := range rows {
		d := row.Draft(loc)
		drafts[i] = d
		verr := trips.Validate(d, now)
		if _, _, ok := row.coordinates(); !ok {
			if verr == nil {
				verr = apperr.NewValidation()
			}
			verr.Add("cave_coordinates", msgBadCoord)
		}
		if verr == nil {
			continue
		}
		for _, field := range fieldOrder(verr) {
			for _, msg := range verr.Field(field) {
				rowErrs = append(rowErrs, RowError{Row: row.Number, Field: field, Message: msg})
			}
		}
	}
	if len(rowErrs) == 0 {
		return drafts, nil, nil
	}
	out := apperr.NewValidation()
	for _, e := range rowErrs {
		out.Add("rows", e.String())
	}
	return drafts, rowErrs, out
}

// fieldOrder lists verr's fields in schema order, then any others.
func fieldOrder(verr *apperr.Error) []string {
	var out []string
	seen := make(map[string]bool)
	for _, group := range [][]Column{Columns, exportedColumns} {
		for _, c := range group {
			if len(verr.Field(c.Key)) > 0 {
				out = append(out, c.Key)
				seen[c.Key] = true
			}
		}
	}
	var rest []string
	for field := range verr.FieldErrors {
		if !seen[field] {
			rest = append(rest, field)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

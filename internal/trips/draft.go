// Package trips validates user supplied trip input before it reaches the store.
package trips

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/distance"
	"github.com/cavelog/cavelog/internal/models"
)

const (
	// MaxStartAhead is how far in the future a trip may start.
	MaxStartAhead = 7 * 24 * time.Hour
	// MaxEndAhead is how far in the future a trip may end.
	MaxEndAhead = 31 * 24 * time.Hour
	// MaxLength is the longest a single trip may last.
	MaxLength = 60 * 24 * time.Hour
)

const (
	msgRequired     = "This field is required."
	msgStartAhead   = "Trips must not start more than one week in the future."
	msgEndAhead     = "Trips must not end more than 31 days in the future."
	msgSameTimes    = "The start and end time must not be the same. If you do not know the end time, leave it blank."
	msgStartAfter   = "The trip start time must be before the trip end time."
	msgTooLong      = "The trip is unrealistically long in duration (over 60 days)."
	msgInvalidURL   = "Enter a valid URL."
	msgInvalidCoord = "Enter valid coordinates."
)

var validate = validator.New()

// Draft is trip input as submitted by a form, an API client or an import row.
// Distances are raw measurement strings such as "40ft".
type Draft struct {
	CaveName     string   `json:"cave_name"`
	CaveEntrance string   `json:"cave_entrance"`
	CaveExit     string   `json:"cave_exit"`
	CaveRegion   string   `json:"cave_region"`
	CaveCountry  string   `json:"cave_country"`
	CaveURL      string   `json:"cave_url"`
	CaveLocation string   `json:"cave_location"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`

	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`

	Type       string   `json:"type"`
	Privacy    string   `json:"privacy"`
	Clubs      string   `json:"clubs"`
	Expedition string   `json:"expedition"`
	Cavers     []string `json:"cavers"`

	HorizontalDist string `json:"horizontal_dist"`
	VertDistDown   string `json:"vert_dist_down"`
	VertDistUp     string `json:"vert_dist_up"`
	SurveyedDist   string `json:"surveyed_dist"`
	ResurveyedDist string `json:"resurveyed_dist"`
	AidDist        string `json:"aid_dist"`

	Notes       string `json:"notes"`
	PublicNotes string `json:"public_notes"`

	// CustomFields holds values for labelled fields only; nil entries are left untouched.
	CustomFields [models.CustomFieldCount]*string `json:"custom_fields"`

	PrivatePhotos bool `json:"private_photos"`

	distances map[string]distance.Null
	cavers    []string
}

// distanceInputs pairs each distance column with its raw input and ceiling.
func (d *Draft) distanceInputs() []distanceInput {
	return []distanceInput{
		{column: "horizontal_dist", raw: d.HorizontalDist, vertical: false},
		{column: "vert_dist_down", raw: d.VertDistDown, vertical: true},
		{column: "vert_dist_up", raw: d.VertDistUp, vertical: true},
		{column: "surveyed_dist", raw: d.SurveyedDist, vertical: false},
		{column: "resurveyed_dist", raw: d.ResurveyedDist, vertical: false},
		{column: "aid_dist", raw: d.AidDist, vertical: true},
	}
}

type distanceInput struct {
	column   string
	raw      string
	vertical bool
}

// textLimits bounds the free text columns.
var textLimits = []struct {
	field string
	value func(*Draft) string
	max   int
}{
	{"cave_name", func(d *Draft) string { return d.CaveName }, 100},
	{"cave_entrance", func(d *Draft) string { return d.CaveEntrance }, 100},
	{"cave_exit", func(d *Draft) string { return d.CaveExit }, 100},
	{"cave_region", func(d *Draft) string { return d.CaveRegion }, 100},
	{"cave_country", func(d *Draft) string { return d.CaveCountry }, 100},
	{"cave_url", func(d *Draft) string { return d.CaveURL }, 200},
	{"cave_location", func(d *Draft) string { return d.CaveLocation }, 100},
	{"clubs", func(d *Draft) string { return d.Clubs }, 100},
	{"expedition", func(d *Draft) string { return d.Expedition }, 100},
}

// customFieldMax returns the length limit of custom field i (0-based).
func customFieldMax(i int) int {
	if i == models.CustomFieldCount-1 {
		return 100
	}
	return 200
}

// MaxLengthMessage renders the length error shown for overlong text.
func MaxLengthMessage(max, got int) string {
	return fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", max, got)
}

// Validate trims and checks draft against the trip invariants as of now.
// On success the parsed distances and caver names are kept on the draft for Apply.
func Validate(draft *Draft, now time.Time) *apperr.Error {
	verr := apperr.NewValidation()
	draft.trim()

	if draft.CaveName == "" {
		verr.Add("cave_name", msgRequired)
	}
	for _, limit := range textLimits {
		if n := utf8.RuneCountInString(limit.value(draft)); n > limit.max {
			verr.Add(limit.field, MaxLengthMessage(limit.max, n))
		}
	}
	if draft.CaveURL != "" && validate.Var(draft.CaveURL, "url") != nil {
		verr.Add("cave_url", msgInvalidURL)
	}
	if draft.Latitude != nil && validate.Var(*draft.Latitude, "latitude") != nil {
		verr.Add("latitude", msgInvalidCoord)
	}
	if draft.Longitude != nil && validate.Var(*draft.Longitude, "longitude") != nil {
		verr.Add("longitude", msgInvalidCoord)
	}

	checkTimes(draft, now, verr)

	if draft.Type == "" {
		draft.Type = string(models.TripSport)
	}
	if !models.TripType(draft.Type).Valid() {
		verr.Add("type", invalidChoice(draft.Type))
	}
	if draft.Privacy == "" {
		draft.Privacy = string(models.PrivacyDefault)
	}
	if !models.Privacy(draft.Privacy).Valid() {
		verr.Add("privacy", invalidChoice(draft.Privacy))
	}

	draft.distances = make(map[string]distance.Null, 6)
	for _, in := range draft.distanceInputs() {
		d, errParse := distance.ParseFormValue(in.raw)
		if errParse != nil {
			verr.Add(in.column, errParse.Error())
			continue
		}
		if d == nil {
			draft.distances[in.column] = distance.Null{}
			continue
		}
		if errCheck := checkDistance(*d, in.vertical); errCheck != nil {
			verr.Add(in.column, errCheck.Error())
			continue
		}
		draft.distances[in.column] = distance.Some(*d)
	}

	for i, value := range draft.CustomFields {
		if value == nil {
			continue
		}
		if n := utf8.RuneCountInString(*value); n > customFieldMax(i) {
			verr.Add(fmt.Sprintf("custom_field_%d", i+1), MaxLengthMessage(customFieldMax(i), n))
		}
	}

	draft.cavers = draft.cavers[:0]
	for _, name := range draft.Cavers {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if n := utf8.RuneCountInString(name); n > models.CaverNameMaxLength {
			verr.Add("cavers", MaxLengthMessage(models.CaverNameMaxLength, n))
			continue
		}
		draft.cavers = append(draft.cavers, name)
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

func checkTimes(draft *Draft, now time.Time, verr *apperr.Error) {
	if draft.Start == nil || draft.Start.IsZero() {
		verr.Add("start", msgRequired)
		return
	}
	start := *draft.Start
	if start.After(now.Add(MaxStartAhead)) {
		verr.Add("start", msgStartAhead)
	}
	if draft.End == nil {
		return
	}
	end := *draft.End
	if end.After(now.Add(MaxEndAhead)) {
		verr.Add("end", msgEndAhead)
	}
	switch {
	case end.Equal(start):
		verr.Add("end", msgSameTimes)
	case start.After(end):
		verr.Add("start", msgStartAfter)
	case end.Sub(start) > MaxLength:
		verr.Add("end", msgTooLong)
	}
}

func checkDistance(d distance.Distance, vertical bool) error {
	if errZero := distance.AboveZero(d); errZero != nil {
		return errZero
	}
	if vertical {
		return distance.Vertical(d)
	}
	return distance.Horizontal(d)
}

func invalidChoice(value string) string {
	return fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", value)
}

func (d *Draft) trim() {
	for _, p := range []*string{
		&d.CaveName, &d.CaveEntrance, &d.CaveExit, &d.CaveRegion, &d.CaveCountry,
		&d.CaveURL, &d.CaveLocation, &d.Type, &d.Privacy, &d.Clubs, &d.Expedition,
	} {
		*p = strings.TrimSpace(*p)
	}
	for _, value := range d.CustomFields {
		if value != nil {
			*value = strings.TrimSpace(*value)
		}
	}
}

// CaverNames returns the cleaned participant names. Valid only after Validate.
func (d *Draft) CaverNames() []string {
	return append([]string(nil), d.cavers...)
}

// Apply copies the validated draft onto trip. Derived fields are recomputed
// by the store when the trip is saved.
func (d *Draft) Apply(trip *models.Trip) {
	trip.CaveName = d.CaveName
	trip.CaveEntrance = d.CaveEntrance
	trip.CaveExit = d.CaveExit
	trip.CaveRegion = d.CaveRegion
	trip.CaveCountry = d.CaveCountry
	trip.CaveURL = d.CaveURL
	trip.CaveLocation = d.CaveLocation
	trip.Latitude = d.Latitude
	trip.Longitude = d.Longitude
	if d.Start != nil {
		trip.Start = d.Start.UTC()
	}
	if d.End != nil {
		end := d.End.UTC()
		trip.End = &end
	} else {
		trip.End = nil
	}
	trip.Type = models.TripType(d.Type)
	trip.Privacy = models.Privacy(d.Privacy)
	trip.Clubs = d.Clubs
	trip.Expedition = d.Expedition
	for _, f := range trip.Distances() {
		*f.Value = d.distances[f.Column]
	}
	trip.Notes = d.Notes
	trip.PublicNotes = d.PublicNotes
	values := trip.CustomFields()
	for i, value := range d.CustomFields {
		if value != nil {
			values[i] = *value
		}
	}
	trip.SetCustomFields(values)
	trip.PrivatePhotos = d.PrivatePhotos
}

// FromTrip builds a draft holding trip's current values, with distances
// rendered in their stored units.
func FromTrip(trip *models.Trip) *Draft {
	d := &Draft{
		CaveName:     trip.CaveName,
		CaveEntrance: trip.CaveEntrance,
		CaveExit:     trip.CaveExit,
		CaveRegion:   trip.CaveRegion,
		CaveCountry:  trip.CaveCountry,
		CaveURL:      trip.CaveURL,
		CaveLocation: trip.CaveLocation,
		Latitude:     trip.Latitude,
		Longitude:    trip.Longitude,
		Type:         string(trip.Type),
		Privacy:      string(trip.Privacy),
		Clubs:        trip.Clubs,
		Expedition:   trip.Expedition,
		Cavers:       trip.CaverNames(),
		Notes:        trip.Notes,
		PublicNotes:  trip.PublicNotes,

		PrivatePhotos: trip.PrivatePhotos,
	}
	start := trip.Start
	d.Start = &start
	if trip.End != nil {
		end := *trip.End
		d.End = &end
	}
	raw := map[string]*string{
		"horizontal_dist": &d.HorizontalDist,
		"vert_dist_down":  &d.VertDistDown,
		"vert_dist_up":    &d.VertDistUp,
		"surveyed_dist":   &d.SurveyedDist,
		"resurveyed_dist": &d.ResurveyedDist,
		"aid_dist":        &d.AidDist,
	}
	for _, f := range trip.Distances() {
		if !f.Value.Empty() {
			*raw[f.Column] = f.Value.Distance.String()
		}
	}
	values := trip.CustomFields()
	for i := range values {
		v := values[i]
		d.CustomFields[i] = &v
	}
	return d
}

package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cavelog/cavelog/internal/distance"
	"github.com/cavelog/cavelog/internal/textfold"
	"gorm.io/gorm"
)

// TripType classifies a trip.
type TripType string

// TripType constants define the supported trip types.
const (
	// TripSport is a recreational trip.
	TripSport TripType = "Sport"
	// TripDigging is a digging trip.
	TripDigging TripType = "Digging"
	// TripSurvey is a survey trip.
	TripSurvey TripType = "Survey"
	// TripExploration pushes new passage.
	TripExploration TripType = "Exploration"
	// TripAid is an aid climbing trip.
	TripAid TripType = "Aid climbing"
	// TripPhotography is a photography trip.
	TripPhotography TripType = "Photography"
	// TripTraining is a training trip.
	TripTraining TripType = "Training"
	// TripRescue is a rescue or rescue practice.
	TripRescue TripType = "Rescue"
	// TripScience is a scientific trip.
	TripScience TripType = "Science"
	// TripHauling moves equipment.
	TripHauling TripType = "Hauling"
	// TripRigging rigs or derigs a cave.
	TripRigging TripType = "Rigging"
	// TripSurface is a surface trip, excluded from underground totals.
	TripSurface TripType = "Surface"
	// TripOther is anything else.
	TripOther TripType = "Other"
)

// TripTypes lists every trip type in display order.
var TripTypes = []TripType{
	TripSport, TripDigging, TripSurvey, TripExploration, TripAid, TripPhotography, TripTraining,
	TripRescue, TripScience, TripHauling, TripRigging, TripSurface, TripOther,
}

// Valid reports whether t is a known trip type.
func (t TripType) Valid() bool {
	for _, known := range TripTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Trip is a single caving outing.
type Trip struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UUID string `gorm:"type:varchar(36);not null;uniqueIndex"` // Public identifier used in URLs.

	UserID uint64 `gorm:"not null;index"`                                 // Owner user ID.
	User   *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;"` // Owner record.

	CaveName     string   `gorm:"type:varchar(100);not null;index"` // Cave or system name.
	CaveEntrance string   `gorm:"type:varchar(100)"`                // Entrance used.
	CaveExit     string   `gorm:"type:varchar(100)"`                // Exit used.
	CaveRegion   string   `gorm:"type:varchar(100)"`                // State or region.
	CaveCountry  string   `gorm:"type:varchar(100)"`                // Country.
	CaveURL      string   `gorm:"type:varchar(200)"`                // Cave website.
	CaveLocation string   `gorm:"type:varchar(100)"`                // Location text used for geocoding.
	Latitude     *float64 `gorm:"type:double precision"`            // WGS84 latitude.
	Longitude    *float64 `gorm:"type:double precision"`            // WGS84 longitude.

	Start       time.Time      `gorm:"not null;index"`                            // Start time.
	End         *time.Time     `gorm:""`                                          // Optional end time.
	Duration    *time.Duration `gorm:"type:bigint"`                               // Derived end minus start.
	DurationStr string         `gorm:"type:varchar(100)"`                         // Derived human duration.
	Type        TripType       `gorm:"type:varchar(15);not null;default:'Sport'"` // Trip type.

	Clubs      string `gorm:"type:varchar(100)"` // Comma separated clubs.
	Expedition string `gorm:"type:varchar(100)"` // Comma separated expeditions.

	HorizontalDist distance.Null `gorm:"type:double precision"` // Horizontal distance in metres.
	VertDistDown   distance.Null `gorm:"type:double precision"` // Rope descended in metres.
	VertDistUp     distance.Null `gorm:"type:double precision"` // Rope climbed in metres.
	SurveyedDist   distance.Null `gorm:"type:double precision"` // Surveyed in metres.
	ResurveyedDist distance.Null `gorm:"type:double precision"` // Resurveyed in metres.
	AidDist        distance.Null `gorm:"type:double precision"` // Aid climbed in metres.

	CustomField1 string `gorm:"column:custom_field_1;type:varchar(200)"` // Free-form field 1.
	CustomField2 string `gorm:"column:custom_field_2;type:varchar(200)"` // Free-form field 2.
	CustomField3 string `gorm:"column:custom_field_3;type:varchar(200)"` // Free-form field 3.
	CustomField4 string `gorm:"column:custom_field_4;type:varchar(200)"` // Free-form field 4.
	CustomField5 string `gorm:"column:custom_field_5;type:varchar(100)"` // Free-form field 5.

	Notes       string `gorm:"type:text"` // Notes, hidden when the owner keeps notes private.
	PublicNotes string `gorm:"type:text"` // Notes always shown with the trip.
	SearchText  string `gorm:"type:text"` // Folded searchable text, set on save.

	ViewCount       int     `gorm:"not null;default:0"`                          // Views by other users.
	FeaturedPhotoID *uint64 `gorm:"index"`                                       // Current featured photo.
	Privacy         Privacy `gorm:"type:varchar(10);not null;default:'Default'"` // Trip visibility.
	PrivatePhotos   bool    `gorm:"not null;default:false"`                      // Photos visible to the owner only.

	Cavers []Caver `gorm:"-"` // Loaded by the trip store.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Added timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`       // Last update timestamp.
}

// BeforeSave refreshes the folded search text.
func (t *Trip) BeforeSave(*gorm.DB) error {
	t.SearchText = t.FoldedText(textfold.New())
	return nil
}

// FoldedText folds the free text fields search matches against, one per line.
func (t *Trip) FoldedText(f *textfold.Folder) string {
	return f.Join(t.CaveName, t.CaveEntrance, t.CaveExit, t.CaveRegion, t.CaveCountry,
		t.Clubs, t.Expedition, t.Notes)
}

// IsSurface reports whether the trip is a surface trip.
func (t *Trip) IsSurface() bool { return t.Type == TripSurface }

// Distances returns pointers to the six distance fields keyed by column name.
func (t *Trip) Distances() []DistanceField {
	return []DistanceField{
		{Column: "horizontal_dist", Label: "Horizontal", Value: &t.HorizontalDist, Vertical: false},
		{Column: "vert_dist_down", Label: "Rope descent", Value: &t.VertDistDown, Vertical: true},
		{Column: "vert_dist_up", Label: "Rope ascent", Value: &t.VertDistUp, Vertical: true},
		{Column: "surveyed_dist", Label: "Surveyed", Value: &t.SurveyedDist, Vertical: false},
		{Column: "resurveyed_dist", Label: "Resurveyed", Value: &t.ResurveyedDist, Vertical: false},
		{Column: "aid_dist", Label: "Aid climbed", Value: &t.AidDist, Vertical: true},
	}
}

// DistanceField describes one of a trip's distance columns.
type DistanceField struct {
	Column   string
	Label    string
	Value    *distance.Null
	Vertical bool
}

// HasDistances reports whether any distance field holds a non-zero value.
func (t *Trip) HasDistances() bool {
	for _, f := range t.Distances() {
		if !f.Value.Empty() {
			return true
		}
	}
	return false
}

// CustomFields returns the five custom field values in order.
func (t *Trip) CustomFields() [CustomFieldCount]string {
	return [CustomFieldCount]string{t.CustomField1, t.CustomField2, t.CustomField3, t.CustomField4, t.CustomField5}
}

// SetCustomFields assigns all five custom field values.
func (t *Trip) SetCustomFields(values [CustomFieldCount]string) {
	t.CustomField1 = values[0]
	t.CustomField2 = values[1]
	t.CustomField3 = values[2]
	t.CustomField4 = values[3]
	t.CustomField5 = values[4]
}

// CaverNames returns the names of the loaded cavers.
func (t *Trip) CaverNames() []string {
	names := make([]string, 0, len(t.Cavers))
	for _, c := range t.Cavers {
		names = append(names, c.Name)
	}
	return names
}

// CaversString joins the loaded caver names with commas.
func (t *Trip) CaversString() string {
	return strings.Join(t.CaverNames(), ", ")
}

// ApplyDerived recomputes duration and its display string, clears zero
// distances, and drops coordinates when no location text is present.
func (t *Trip) ApplyDerived() {
	if t.End != nil {
		d := t.End.Sub(t.Start)
		t.Duration = &d
		t.DurationStr = DurationString(d)
	} else {
		t.Duration = nil
		t.DurationStr = ""
	}
	for _, f := range t.Distances() {
		*f.Value = f.Value.Normalized()
	}
	if strings.TrimSpace(t.CaveLocation) == "" {
		t.Latitude = nil
		t.Longitude = nil
	}
}

// DurationString renders a duration as hours and minutes, for example
// "2 hours and 30 minutes". Days are folded into hours.
func DurationString(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	hours := int64(d / time.Hour)
	rest := d - time.Duration(hours)*time.Hour
	minutes := rest.Minutes()

	var parts []string
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	switch {
	case minutes == math.Trunc(minutes) && minutes > 0:
		parts = append(parts, plural(int64(minutes), "minute"))
	case minutes > 0:
		parts = append(parts, fmt.Sprintf("%.2f minutes", minutes))
	case hours == 0:
		parts = append(parts, "0 minutes")
	}
	return strings.Join(parts, " and ")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// TripLike records that a user liked a trip.
type TripLike struct {
	TripID uint64 `gorm:"primaryKey"`       // Liked trip ID.
	UserID uint64 `gorm:"primaryKey;index"` // Liking user ID.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TripFollower records that a user follows comments on a trip.
type TripFollower struct {
	TripID uint64 `gorm:"primaryKey"`       // Followed trip ID.
	UserID uint64 `gorm:"primaryKey;index"` // Following user ID.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TripCaver links a caver roster entry to a trip.
type TripCaver struct {
	TripID  uint64 `gorm:"primaryKey"`       // Trip ID.
	CaverID uint64 `gorm:"primaryKey;index"` // Caver ID.
}

// Path returns the trip's detail page path.
func (t *Trip) Path() string { return "/trips/" + t.UUID + "/" }

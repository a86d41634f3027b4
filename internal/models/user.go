package models

import (
	"strings"
	"time"

	"github.com/cavelog/cavelog/internal/distance"
)

// Privacy controls who may read a profile, trip, or report.
type Privacy string

// Privacy constants define the visibility tiers.
const (
	// PrivacyDefault defers to the owner's profile privacy.
	PrivacyDefault Privacy = "Default"
	// PrivacyPublic is visible to anyone, including anonymous viewers.
	PrivacyPublic Privacy = "Public"
	// PrivacyFriends is visible to the owner's friends.
	PrivacyFriends Privacy = "Friends"
	// PrivacyPrivate is visible to the owner only.
	PrivacyPrivate Privacy = "Private"
)

// Valid reports whether p is a known privacy tier.
func (p Privacy) Valid() bool {
	switch p {
	case PrivacyDefault, PrivacyPublic, PrivacyFriends, PrivacyPrivate:
		return true
	default:
		return false
	}
}

// FeedOrdering selects how a user's feed is sorted.
type FeedOrdering string

// FeedOrdering constants define the supported sort keys.
const (
	// FeedByAdded sorts by the time the trip was logged, newest first.
	FeedByAdded FeedOrdering = "-added"
	// FeedByStart sorts by trip start time, newest first.
	FeedByStart FeedOrdering = "-start"
)

// DefaultTimezone is used when a user's timezone is blank or unknown.
const DefaultTimezone = "Europe/London"

// CustomFieldCount is the number of free-form trip fields a user may label.
const CustomFieldCount = 5

// User is a member account.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UUID     string `gorm:"type:varchar(36);not null;uniqueIndex"`  // Public identifier.
	Email    string `gorm:"type:varchar(255);not null;uniqueIndex"` // Email address.
	Username string `gorm:"type:varchar(30);not null;uniqueIndex"`  // Lowercase handle.
	Name     string `gorm:"type:varchar(35);not null"`              // Display name.
	Password string `gorm:"type:text"`                              // Bcrypt hash.

	IsActive         bool `gorm:"not null;default:false"` // Whether the user can sign in.
	HasVerifiedEmail bool `gorm:"not null;default:false"` // Email ownership confirmed.
	IsSuperuser      bool `gorm:"not null;default:false"` // Staff account.

	Location string `gorm:"type:varchar(50)"`  // Free-form location.
	Bio      string `gorm:"type:text"`         // Profile text.
	Clubs    string `gorm:"type:varchar(100)"` // Comma separated club list.
	Avatar   string `gorm:"type:varchar(255)"` // Object storage key.

	ProfileViewCount int `gorm:"not null;default:0"` // Views by other signed-in users.

	Privacy      Privacy         `gorm:"type:varchar(10);not null;default:'Private'"`       // Profile visibility.
	Units        distance.System `gorm:"type:varchar(10);not null;default:'Metric'"`        // Preferred units.
	Timezone     string          `gorm:"type:varchar(64);not null;default:'Europe/London'"` // IANA zone name.
	FeedOrdering FeedOrdering    `gorm:"type:varchar(15);not null;default:'-added'"`        // Feed sort key.

	AllowFriendUsername       bool `gorm:"not null;default:true"`  // Findable by handle.
	AllowFriendEmail          bool `gorm:"not null;default:false"` // Findable by email.
	AllowComments             bool `gorm:"not null;default:true"`  // Others may comment on trips.
	PublicStatistics          bool `gorm:"not null;default:false"` // Statistics page is public.
	PrivateNotes              bool `gorm:"not null;default:false"` // Trip notes hidden from others.
	DisableDistanceStatistics bool `gorm:"not null;default:false"` // Hide distance statistics.
	DisableSurveyStatistics   bool `gorm:"not null;default:false"` // Hide survey statistics.
	DisableStatsOverTime      bool `gorm:"not null;default:false"` // Hide charts over time.
	ShowCaversOnTripList      bool `gorm:"not null;default:false"` // Trip list shows cavers column.
	EmailFriendRequests       bool `gorm:"not null;default:true"`  // Email new friend requests.
	EmailComments             bool `gorm:"not null;default:true"`  // Email comments on followed trips.

	CustomField1Label string `gorm:"column:custom_field_1_label;type:varchar(25)"` // Label for trip custom field 1.
	CustomField2Label string `gorm:"column:custom_field_2_label;type:varchar(25)"` // Label for trip custom field 2.
	CustomField3Label string `gorm:"column:custom_field_3_label;type:varchar(25)"` // Label for trip custom field 3.
	CustomField4Label string `gorm:"column:custom_field_4_label;type:varchar(25)"` // Label for trip custom field 4.
	CustomField5Label string `gorm:"column:custom_field_5_label;type:varchar(25)"` // Label for trip custom field 5.

	LastSeen  *time.Time `gorm:"index"`                   // Last authenticated request.
	CreatedAt time.Time  `gorm:"not null;autoCreateTime"` // Date joined.
	UpdatedAt time.Time  `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// NormalizeUsername lowercases and trims a handle.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// IsPublic reports whether the profile is public.
func (u *User) IsPublic() bool {
	return u != nil && u.Privacy == PrivacyPublic
}

// CustomFieldLabels returns the five custom field labels in order.
func (u *User) CustomFieldLabels() [CustomFieldCount]string {
	return [CustomFieldCount]string{
		u.CustomField1Label,
		u.CustomField2Label,
		u.CustomField3Label,
		u.CustomField4Label,
		u.CustomField5Label,
	}
}

// SetCustomFieldLabels assigns all five labels.
func (u *User) SetCustomFieldLabels(labels [CustomFieldCount]string) {
	u.CustomField1Label = labels[0]
	u.CustomField2Label = labels[1]
	u.CustomField3Label = labels[2]
	u.CustomField4Label = labels[3]
	u.CustomField5Label = labels[4]
}

// Zone returns the user's time zone, falling back to Europe/London.
func (u *User) Zone() *time.Location {
	name := DefaultTimezone
	if u != nil && strings.TrimSpace(u.Timezone) != "" {
		name = u.Timezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc, err = time.LoadLocation(DefaultTimezone)
		if err != nil {
			return time.UTC
		}
	}
	return loc
}

// Friendship is one direction of a symmetric friendship. Both directions are
// always stored together.
type Friendship struct {
	UserID   uint64 `gorm:"primaryKey"` // Owner of the friend list.
	FriendID uint64 `gorm:"primaryKey"` // Friend user ID.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// Path returns the user's profile page path.
func (u *User) Path() string { return "/u/" + u.Username + "/" }

// FriendsPath is the page listing friends and pending requests.
const FriendsPath = "/friends/"

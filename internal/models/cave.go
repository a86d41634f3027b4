package models

import "time"

// CaveSystem is a named cave system recorded by a user.
type CaveSystem struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UUID   string `gorm:"type:varchar(36);not null;uniqueIndex"` // Public identifier.
	UserID uint64 `gorm:"not null;index"`                        // Owner user ID.

	Name    string `gorm:"type:varchar(100);not null"` // System name.
	Region  string `gorm:"type:varchar(100)"`          // State or region.
	Country string `gorm:"type:varchar(100)"`          // Country.

	Entrances []CaveEntrance `gorm:"foreignKey:SystemID;constraint:OnDelete:CASCADE;"` // Known entrances.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Added timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// CaveEntrance is an entrance belonging to a cave system.
type CaveEntrance struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	SystemID uint64 `gorm:"not null;index"` // Parent system.

	Name      string   `gorm:"type:varchar(100);not null"` // Entrance name.
	Location  string   `gorm:"type:varchar(100)"`          // Location text.
	Latitude  *float64 `gorm:"type:double precision"`      // WGS84 latitude.
	Longitude *float64 `gorm:"type:double precision"`      // WGS84 longitude.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Added timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

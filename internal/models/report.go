package models

import "time"

// TripReport is a long form write-up attached to exactly one trip.
type TripReport struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TripID uint64 `gorm:"not null;uniqueIndex"`                                       // Parent trip.
	UserID uint64 `gorm:"not null;uniqueIndex:idx_trip_reports_user_slug,priority:1"` // Owner user ID.

	Title     string    `gorm:"type:varchar(100);not null"`                                                   // Report title.
	Slug      string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_trip_reports_user_slug,priority:2"` // URL slug, unique per user.
	PubDate   time.Time `gorm:"not null"`                                                                     // Publication date.
	Content   string    `gorm:"type:text"`                                                                    // Report body.
	Privacy   Privacy   `gorm:"type:varchar(10);not null;default:'Default'"`                                  // Report visibility.
	ViewCount int       `gorm:"not null;default:0"`                                                           // Views by other users.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Added timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// ReportLike records that a user liked a report.
type ReportLike struct {
	ReportID uint64 `gorm:"primaryKey"`       // Liked report ID.
	UserID   uint64 `gorm:"primaryKey;index"` // Liking user ID.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// LikeTarget identifies something that can be liked.
type LikeTarget struct {
	Kind LikeKind
	ID   uint64
}

// LikeKind distinguishes trips from reports for likes.
type LikeKind string

// LikeKind constants define the likeable objects.
const (
	// LikeTrip targets a trip.
	LikeTrip LikeKind = "trip"
	// LikeReport targets a trip report.
	LikeReport LikeKind = "report"
)

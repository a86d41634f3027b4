package models

import "time"

// PhotoType distinguishes uploaded photos from generated feature images.
type PhotoType string

// PhotoType constants define the supported photo types.
const (
	// PhotoRegular is a user uploaded photo.
	PhotoRegular PhotoType = "regular"
	// PhotoFeatured is a cropped header image generated from a regular photo.
	PhotoFeatured PhotoType = "featured"
)

// TripPhoto is an image stored in object storage and attached to a trip.
type TripPhoto struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UUID string `gorm:"type:varchar(36);not null;uniqueIndex"` // Public identifier.

	UserID *uint64 `gorm:"index"` // Uploader; NULL after the user is deleted.
	TripID *uint64 `gorm:"index"` // Parent trip; NULL after the trip is deleted.

	Key      string     `gorm:"type:varchar(255);not null"`                 // Object storage key.
	Caption  string     `gorm:"type:varchar(200)"`                          // Optional caption.
	Taken    *time.Time `gorm:""`                                           // EXIF DateTimeOriginal.
	Filesize *int64     `gorm:""`                                           // Object size in bytes.
	IsValid  bool       `gorm:"not null;default:false;index"`               // Upload confirmed.
	Type     PhotoType  `gorm:"type:varchar(10);not null;default:'regular'"` // Photo type.

	DeletedAt *time.Time `gorm:"index"` // Soft delete timestamp.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Added timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`       // Last update timestamp.
}

// Visible reports whether the photo is confirmed and not deleted.
func (p *TripPhoto) Visible() bool {
	return p != nil && p.IsValid && p.DeletedAt == nil
}

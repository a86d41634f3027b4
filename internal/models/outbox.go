package models

import (
	"time"

	"gorm.io/datatypes"
)

// EmailOutbox is a queued outbound email awaiting the mail consumer.
type EmailOutbox struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Template  string            `gorm:"type:varchar(64);not null"`  // Email template name.
	Recipient string            `gorm:"type:varchar(255);not null"` // Destination address.
	Context   datatypes.JSONMap `gorm:"type:json"`                  // Template context.
	Attempts  int               `gorm:"not null;default:0"`         // Send attempts made.
	LastError string            `gorm:"type:text"`                  // Last send error.

	SentAt *time.Time `gorm:"index"` // Delivery timestamp.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Enqueue timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`       // Last update timestamp.
}

package models

import (
	"time"

	"github.com/cavelog/cavelog/internal/textfold"
	"gorm.io/gorm"
)

// CaverNameMaxLength bounds roster entry names.
const CaverNameMaxLength = 40

// Caver is an entry in a user's roster of people they cave with.
type Caver struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UUID string `gorm:"type:varchar(36);not null;uniqueIndex"` // Public identifier.

	UserID uint64 `gorm:"not null;index"` // Roster owner.

	Name         string  `gorm:"type:varchar(40);not null"` // Display name.
	SearchName   string  `gorm:"type:varchar(80)"`          // Folded name, set on save.
	LinkedUserID *uint64 `gorm:"index"`                     // Matching user account, if any.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Added timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// BeforeSave refreshes the folded name.
func (c *Caver) BeforeSave(*gorm.DB) error {
	c.SearchName = textfold.String(c.Name)
	return nil
}

// Path returns the caver's detail page path.
func (c *Caver) Path() string { return "/cavers/" + c.UUID + "/" }

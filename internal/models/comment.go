package models

import "time"

// CommentMaxLength is the longest comment accepted.
const CommentMaxLength = 2000

// Comment is a comment on a trip.
type Comment struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TripID   uint64 `gorm:"not null;index"`      // Parent trip.
	AuthorID uint64 `gorm:"not null;index"`      // Comment author.
	Author   *User  `gorm:"foreignKey:AuthorID"` // Loaded author.

	Content string `gorm:"type:text;not null"` // Comment body.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Added timestamp.
}

// News is a site announcement.
type News struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AuthorID    uint64    `gorm:"not null;index"`                         // Author user ID.
	Title       string    `gorm:"type:varchar(100);not null"`             // Headline.
	Slug        string    `gorm:"type:varchar(100);not null;uniqueIndex"` // URL slug.
	Content     string    `gorm:"type:text"`                              // Body.
	IsPublished bool      `gorm:"not null;default:false"`                 // Shown on the site.
	PostedAt    time.Time `gorm:"not null"`                               // Publication time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Added timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// NewsComment is a comment on a news item.
type NewsComment struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	NewsID   uint64 `gorm:"not null;index"` // Parent news item.
	AuthorID uint64 `gorm:"not null;index"` // Comment author.

	Content string `gorm:"type:text;not null"` // Comment body.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Added timestamp.
}

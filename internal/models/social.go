package models

import (
	"fmt"
	"time"
)

// FriendRequest is a pending friendship from one user to another.
type FriendRequest struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	FromUserID uint64 `gorm:"not null;uniqueIndex:idx_friend_requests_pair,priority:1"`       // Requesting user.
	ToUserID   uint64 `gorm:"not null;uniqueIndex:idx_friend_requests_pair,priority:2;index"` // Requested user.

	FromUser *User `gorm:"foreignKey:FromUserID"` // Loaded requesting user.
	ToUser   *User `gorm:"foreignKey:ToUserID"`   // Loaded requested user.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// NotificationType selects how a notification message is rendered.
type NotificationType string

// NotificationType constants define the supported notification kinds.
const (
	// NotificationFreeText carries a stored message and URL.
	NotificationFreeText NotificationType = "A"
	// NotificationTripLike aggregates likes on a trip.
	NotificationTripLike NotificationType = "B"
	// NotificationTripComment aggregates comments on a trip.
	NotificationTripComment NotificationType = "C"
)

// Notification is an in-app message for a user.
type Notification struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64           `gorm:"not null;index"`                       // Recipient.
	Type   NotificationType `gorm:"type:varchar(1);not null;default:'A'"` // Rendering kind.
	TripID *uint64          `gorm:"index"`                                // Related trip for trip notifications.

	Message string `gorm:"type:varchar(255)"`            // Free text message.
	URL     string `gorm:"type:varchar(255)"`            // Destination path.
	Read    bool   `gorm:"not null;default:false;index"` // Read flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Added timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`       // Last update timestamp.
}

// TripActionContext provides what is needed to render trip like and comment
// notifications.
type TripActionContext struct {
	Recipient *User
	Owner     *User
	CaveName  string
	TripURL   string
	// Actors are the users who liked or commented, most recent first, with
	// the recipient already removed.
	Actors []*User
}

// Render returns the message and URL shown to the recipient.
func (n *Notification) Render(ctx *TripActionContext) (string, string) {
	switch n.Type {
	case NotificationTripLike:
		if ctx == nil {
			return "", n.URL
		}
		return tripActionMessage(ctx, "like", "liked by"), ctx.TripURL
	case NotificationTripComment:
		if ctx == nil {
			return "", n.URL
		}
		return tripActionMessage(ctx, "comment", "commented on by"), ctx.TripURL
	default:
		return n.Message, n.URL
	}
}

func tripActionMessage(ctx *TripActionContext, noun, verb string) string {
	prefix := "Your trip to"
	if ctx.Owner != nil && ctx.Recipient != nil && ctx.Owner.ID != ctx.Recipient.ID {
		prefix = fmt.Sprintf("%s's trip to", ctx.Owner.Name)
	}
	names := make([]string, 0, len(ctx.Actors))
	for _, u := range ctx.Actors {
		names = append(names, u.Name)
	}
	switch len(names) {
	case 0:
		return fmt.Sprintf("%s %s received %ss.", prefix, ctx.CaveName, noun)
	case 1:
		return fmt.Sprintf("%s %s was %s %s.", prefix, ctx.CaveName, verb, names[0])
	case 2:
		return fmt.Sprintf("%s %s was %s %s and %s.", prefix, ctx.CaveName, verb, names[0], names[1])
	}
	others := len(names) - 2
	tail := fmt.Sprintf("%d others", others)
	if others == 1 {
		tail = "1 other person"
	}
	return fmt.Sprintf("%s %s was %s %s, %s and %s.", prefix, ctx.CaveName, verb, names[0], names[1], tail)
}

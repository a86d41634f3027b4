// Package visibility decides whether a viewer may read profiles, trips,
// reports and photos. A nil viewer is an anonymous visitor.
package visibility

import "github.com/cavelog/cavelog/internal/models"

// FriendSet holds the friend IDs of a content owner.
type FriendSet map[uint64]struct{}

// NewFriendSet builds a set from ids.
func NewFriendSet(ids ...uint64) FriendSet {
	set := make(FriendSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether id is in the set.
func (s FriendSet) Has(id uint64) bool {
	_, ok := s[id]
	return ok
}

// containsViewer reports whether a signed-in viewer is in s.
func (s FriendSet) containsViewer(viewer *models.User) bool {
	return viewer != nil && s.Has(viewer.ID)
}

func isOwner(viewer *models.User, ownerID uint64) bool {
	return viewer != nil && viewer.ID == ownerID
}

// UserVisible reports whether viewer may see owner's profile. friends are owner's friends.
func UserVisible(viewer, owner *models.User, friends FriendSet) bool {
	if owner == nil {
		return false
	}
	if isOwner(viewer, owner.ID) {
		return true
	}
	switch owner.Privacy {
	case models.PrivacyPublic:
		return true
	case models.PrivacyFriends:
		return friends.containsViewer(viewer)
	default:
		return false
	}
}

// TripVisible reports whether viewer may see trip. friends are owner's friends.
func TripVisible(viewer *models.User, trip *models.Trip, owner *models.User, friends FriendSet) bool {
	if trip == nil || owner == nil {
		return false
	}
	if viewer == nil && trip.Privacy == models.PrivacyDefault {
		return owner.IsPublic()
	}
	if viewer == nil || trip.Privacy == models.PrivacyPublic {
		return trip.Privacy == models.PrivacyPublic
	}
	if isOwner(viewer, trip.UserID) {
		return true
	}
	if trip.Privacy == models.PrivacyFriends && friends.containsViewer(viewer) {
		return true
	}
	if trip.Privacy == models.PrivacyDefault {
		return UserVisible(viewer, owner, friends)
	}
	return false
}

// ReportVisible reports whether viewer may see report. Default privacy
// defers to the parent trip's rules.
func ReportVisible(viewer *models.User, report *models.TripReport, trip *models.Trip, owner *models.User, friends FriendSet) bool {
	if report == nil {
		return false
	}
	if isOwner(viewer, report.UserID) {
		return true
	}
	switch report.Privacy {
	case models.PrivacyPublic:
		return true
	case models.PrivacyFriends:
		return friends.containsViewer(viewer)
	case models.PrivacyDefault:
		return TripVisible(viewer, trip, owner, friends)
	default:
		return false
	}
}

// PhotosVisible reports whether viewer may see trip's photos. Private photos
// are shown to the owner only, regardless of trip visibility.
func PhotosVisible(viewer *models.User, trip *models.Trip, owner *models.User, friends FriendSet) bool {
	if !TripVisible(viewer, trip, owner, friends) {
		return false
	}
	return !trip.PrivatePhotos || isOwner(viewer, trip.UserID)
}

// NotesVisible reports whether viewer may read trip's private notes.
func NotesVisible(viewer *models.User, trip *models.Trip, owner *models.User) bool {
	if trip == nil || owner == nil {
		return false
	}
	return isOwner(viewer, trip.UserID) || !owner.PrivateNotes
}

// DistanceVisible reports whether viewer may see trip's distances. It never
// holds for a trip the viewer cannot see.
func DistanceVisible(viewer *models.User, trip *models.Trip, owner *models.User, friends FriendSet) bool {
	return TripVisible(viewer, trip, owner, friends)
}

// TripPublic reports whether trip is visible to anonymous visitors.
func TripPublic(trip *models.Trip, owner *models.User) bool {
	return TripVisible(nil, trip, owner, nil)
}

// Sanitise blanks the private notes of trip when viewer may not read them.
// The trip is modified in place.
func Sanitise(viewer *models.User, trip *models.Trip, owner *models.User) {
	if !NotesVisible(viewer, trip, owner) {
		trip.Notes = ""
	}
}

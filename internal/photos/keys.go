// Package photos manages trip photo uploads, featured header images and
// avatars held in object storage.
package photos

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// PhotosPrefix holds trip photos.
	PhotosPrefix = "p/"
	// MediaPrefix holds other user media such as avatars.
	MediaPrefix = "m/"
)

// PhotoKey returns the storage key of a trip photo.
func PhotoKey(ownerUUID, tripUUID, photoUUID, ext string) string {
	return PhotosPrefix + path.Join(ownerUUID, tripUUID, photoUUID+ext)
}

// AvatarKey returns the storage key of a user's avatar.
func AvatarKey(userUUID, ext string) string {
	return MediaPrefix + path.Join("avatars", userUUID, "avatar"+ext)
}

// extension returns the lower case extension of filename, or the usual
// extension for contentType when the name has none.
func extension(filename, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		return ext
	}
	if m := mimetype.Lookup(contentType); m != nil {
		return m.Extension()
	}
	return ""
}

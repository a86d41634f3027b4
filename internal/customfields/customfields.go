// Package customfields manages the labels of a user's five free-form trip
// fields.
package customfields

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
)

const (
	// MinLabelLength is the shortest accepted non-blank label.
	MinLabelLength = 3
	// MaxLabelLength is the longest accepted label.
	MaxLabelLength = 25

	msgTooShort = "The field name must be at least 3 characters long."
	msgInUse    = "This field cannot be removed or changed as some trips have a value for it."
)

// Service updates custom field labels.
type Service struct {
	users *store.UserStore
	trips *store.TripStore
}

// NewService constructs a Service.
func NewService(db *gorm.DB) *Service {
	return &Service{users: store.NewUserStore(db), trips: store.NewTripStore(db)}
}

// FieldName returns the form field of label i (0-based).
func FieldName(i int) string {
	return fmt.Sprintf("custom_field_%d_label", i+1)
}

// UpdateLabels replaces all five labels of user. A label that is changed or
// removed while any trip holds a value for its field is rejected, as is any
// non-blank label shorter than MinLabelLength.
func (s *Service) UpdateLabels(ctx context.Context, user *models.User, labels [models.CustomFieldCount]string) error {
	if user == nil {
		return apperr.Forbidden("You must be signed in to do that.")
	}
	current := user.CustomFieldLabels()
	verr := apperr.NewValidation()
	for i := range labels {
		label := strings.TrimSpace(labels[i])
		labels[i] = label
		field := FieldName(i)
		n := utf8.RuneCountInString(label)
		switch {
		case n > MaxLabelLength:
			verr.Add(field, fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", MaxLabelLength, n))
			continue
		case n > 0 && n < MinLabelLength:
			verr.Add(field, msgTooShort)
			continue
		}
		if label == current[i] || current[i] == "" {
			continue
		}
		inUse, errInUse := s.trips.CustomFieldInUse(ctx, user.ID, i+1)
		if errInUse != nil {
			return errInUse
		}
		if inUse {
			verr.Add(field, msgInUse)
		}
	}
	if verr.HasErrors() {
		return verr
	}

	user.SetCustomFieldLabels(labels)
	if errUpdate := s.users.Update(ctx, user); errUpdate != nil {
		user.SetCustomFieldLabels(current)
		return errUpdate
	}
	log.WithField("user", user.Username).Info("custom field labels updated")
	return nil
}

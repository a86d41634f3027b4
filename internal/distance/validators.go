package distance

import "errors"

var (
	// ErrBelowZero is returned for negative distances.
	ErrBelowZero = errors.New("Distance must be above zero.")
	// ErrTooLarge is returned when a distance exceeds its ceiling.
	ErrTooLarge = errors.New("Distance is too large.")
)

var (
	// MaxHorizontal is the ceiling for horizontal, surveyed and resurveyed distances.
	MaxHorizontal = MustNew(20, "mi")
	// MaxVertical is the ceiling for rope and aid distances.
	MaxVertical = MustNew(3000, "m")
)

// AboveZero rejects negative distances.
func AboveZero(d Distance) error {
	if d.m < 0 {
		return ErrBelowZero
	}
	return nil
}

// Horizontal rejects distances longer than MaxHorizontal.
func Horizontal(d Distance) error {
	return atMost(d, MaxHorizontal)
}

// Vertical rejects distances longer than MaxVertical.
func Vertical(d Distance) error {
	return atMost(d, MaxVertical)
}

func atMost(d, limit Distance) error {
	if d.Cmp(limit) > 0 {
		return ErrTooLarge
	}
	return nil
}

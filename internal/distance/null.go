package distance

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
)

// Null is a nullable distance column stored as metres. Zero magnitudes are
// written as NULL so that ordering by the column places empty values together.
type Null struct {
	Distance Distance
	Valid    bool
}

// Some wraps d as a valid nullable distance.
func Some(d Distance) Null {
	return Null{Distance: d, Valid: true}
}

// Ptr converts an optional distance into a nullable one.
func Ptr(d *Distance) Null {
	if d == nil {
		return Null{}
	}
	return Some(*d)
}

// Empty reports whether the value is absent or zero.
func (n Null) Empty() bool {
	return !n.Valid || n.Distance.IsZero()
}

// Metres returns the magnitude in metres, or zero when absent.
func (n Null) Metres() float64 {
	if !n.Valid {
		return 0
	}
	return n.Distance.m
}

// Normalized coerces zero magnitudes to an absent value.
func (n Null) Normalized() Null {
	if n.Empty() {
		return Null{}
	}
	return n
}

// Scan implements sql.Scanner.
func (n *Null) Scan(value any) error {
	var metres float64
	switch v := value.(type) {
	case nil:
		*n = Null{}
		return nil
	case float64:
		metres = v
	case float32:
		metres = float64(v)
	case int64:
		metres = float64(v)
	case []byte:
		parsed, errParse := strconv.ParseFloat(string(v), 64)
		if errParse != nil {
			return fmt.Errorf("distance: scan %q: %w", v, errParse)
		}
		metres = parsed
	case string:
		parsed, errParse := strconv.ParseFloat(v, 64)
		if errParse != nil {
			return fmt.Errorf("distance: scan %q: %w", v, errParse)
		}
		metres = parsed
	default:
		return fmt.Errorf("distance: cannot scan %T", value)
	}
	*n = Null{Distance: FromMetres(metres), Valid: true}
	return nil
}

// Value implements driver.Valuer. Zero and absent values are stored as NULL.
func (n Null) Value() (driver.Value, error) {
	if n.Empty() {
		return nil, nil
	}
	return n.Distance.m, nil
}

// MarshalJSON renders the magnitude in metres or null.
func (n Null) MarshalJSON() ([]byte, error) {
	if n.Empty() {
		return []byte("null"), nil
	}
	return json.Marshal(n.Distance.m)
}

// UnmarshalJSON accepts metres as a number, a measurement string, or null.
func (n *Null) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = Null{}
		return nil
	}
	var metres float64
	if errNumber := json.Unmarshal(data, &metres); errNumber == nil {
		*n = Some(FromMetres(metres))
		return nil
	}
	var text string
	if errText := json.Unmarshal(data, &text); errText != nil {
		return fmt.Errorf("distance: unmarshal: %w", errText)
	}
	d, _ := Parse(text)
	if d == nil {
		return fmt.Errorf("distance: invalid measurement %q", text)
	}
	*n = Some(*d)
	return nil
}

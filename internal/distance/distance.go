// Package distance implements a length value with a preferred display unit.
package distance

import (
	"encoding/json"
	"math"
	"strconv"
)

// MaxPrecision is the default number of decimal places used for equality and display.
const MaxPrecision = 6

// Distance is a length stored in metres along with the unit it was expressed in.
// The zero value is zero metres.
type Distance struct {
	m    float64
	unit string
	prec int
	reg  *Registry
}

// FromMetres builds a distance displayed in metres.
func FromMetres(m float64) Distance {
	return Distance{m: m, unit: "m", prec: MaxPrecision}
}

// New builds a distance from a value in unit using the default registry.
func New(value float64, unit string) (Distance, error) {
	return Default.New(value, unit)
}

// MustNew is New that panics on an unknown unit. Intended for constants and tests.
func MustNew(value float64, unit string) Distance {
	d, err := New(value, unit)
	if err != nil {
		panic(err)
	}
	return d
}

// Metres returns the magnitude in metres.
func (d Distance) Metres() float64 { return d.m }

// Unit returns the preferred display unit.
func (d Distance) Unit() string {
	if d.unit == "" {
		return "m"
	}
	return d.unit
}

// Precision returns the number of decimal places used for equality.
func (d Distance) Precision() int {
	if d.prec <= 0 {
		return MaxPrecision
	}
	return d.prec
}

// WithPrecision returns a copy using prec decimal places for equality.
func (d Distance) WithPrecision(prec int) Distance {
	d.prec = prec
	return d
}

// WithUnit returns a copy displayed in unit. Unknown units leave d unchanged.
func (d Distance) WithUnit(unit string) Distance {
	name, _, err := d.registry().Resolve(unit)
	if err != nil {
		return d
	}
	d.unit = name
	return d
}

// In converts the distance to unit. Unknown units report false.
func (d Distance) In(unit string) (float64, bool) {
	_, metres, err := d.registry().Resolve(unit)
	if err != nil {
		return 0, false
	}
	return d.m / metres, true
}

// Magnitude returns the value expressed in the preferred unit.
func (d Distance) Magnitude() float64 {
	v, ok := d.In(d.Unit())
	if !ok {
		return d.m
	}
	return v
}

// IsZero reports whether the magnitude is zero.
func (d Distance) IsZero() bool { return d.m == 0 }

// Neg returns the distance with its sign flipped.
func (d Distance) Neg() Distance {
	d.m = -d.m
	return d
}

// Abs returns the absolute distance.
func (d Distance) Abs() Distance {
	d.m = math.Abs(d.m)
	return d
}

// Pos flips non-positive magnitudes so the result is never negative.
func (d Distance) Pos() Distance {
	if d.m <= 0 {
		d.m = -d.m
	}
	return d
}

// Add returns d+o in the unit of d.
func (d Distance) Add(o Distance) Distance {
	d.m += o.m
	if d.unit == "" {
		d.unit = o.unit
	}
	return d
}

// Sub returns d-o in the unit of d.
func (d Distance) Sub(o Distance) Distance {
	d.m -= o.m
	return d
}

// Scale multiplies the magnitude by f.
func (d Distance) Scale(f float64) Distance {
	d.m *= f
	return d
}

// Equal compares two distances in metres rounded to the receiver's precision.
func (d Distance) Equal(o Distance) bool {
	p := d.Precision()
	return roundTo(d.m, p) == roundTo(o.m, p)
}

// EqualMetres compares the magnitude with a plain number of metres.
func (d Distance) EqualMetres(m float64) bool {
	return d.m == m
}

// Cmp returns -1, 0 or 1 comparing d with o at the receiver's precision.
func (d Distance) Cmp(o Distance) int {
	if d.Equal(o) {
		return 0
	}
	if d.m < o.m {
		return -1
	}
	return 1
}

// CmpMetres compares the magnitude with a plain number of metres.
func (d Distance) CmpMetres(m float64) int {
	switch {
	case d.m < m:
		return -1
	case d.m > m:
		return 1
	default:
		return 0
	}
}

// String renders the magnitude in the preferred unit with trailing zeros trimmed.
func (d Distance) String() string {
	return trimFloat(d.Magnitude(), MaxPrecision) + d.Unit()
}

// MarshalJSON renders the magnitude in metres.
func (d Distance) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.m)
}

func (d Distance) registry() *Registry {
	if d.reg == nil {
		return Default
	}
	return d.reg
}

func roundTo(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.RoundToEven(v*pow) / pow
}

func trimFloat(v float64, places int) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(roundTo(v, places), 'f', -1, 64)
}

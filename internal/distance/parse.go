package distance

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// unitSuffix matches the trailing unit of a measurement such as "12 m" or `3"`.
var unitSuffix = regexp.MustCompile(`(?i)([\s\-_a-z"']+)$`)

// Parse reads a measurement such as "40ft". Without a unit suffix defaultUnit
// is used and hadUnit is false. A nil distance means the input was empty,
// non-numeric, or named an unknown unit.
func (r *Registry) Parse(text, defaultUnit string, maxPrecision int) (*Distance, bool) {
	if text == "" {
		return nil, false
	}
	if maxPrecision <= 0 {
		maxPrecision = MaxPrecision
	}

	unit := defaultUnit
	number := text
	hadUnit := false
	if match := unitSuffix.FindStringSubmatch(text); match != nil {
		hadUnit = true
		unit = strings.TrimSpace(match[1])
		number = strings.TrimSpace(strings.TrimSuffix(strings.TrimRightFunc(text, isSpace), unit))
	}

	value, errParse := strconv.ParseFloat(strings.TrimSpace(number), 64)
	if errParse != nil {
		return nil, hadUnit
	}
	d, errNew := r.New(value, unit)
	if errNew != nil {
		return nil, hadUnit
	}
	d.prec = maxPrecision
	return &d, hadUnit
}

// Parse reads a measurement using the default registry, metres, and MaxPrecision.
func Parse(text string) (*Distance, bool) {
	return Default.Parse(text, "m", MaxPrecision)
}

// ParseFormValue coerces user input from a form field. Empty input yields nil.
// A bare "0" is zero metres; every other value must carry a unit.
func (r *Registry) ParseFormValue(text string) (*Distance, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if text == "0" {
		text = "0m"
	}
	d, hadUnit := r.Parse(text, "m", MaxPrecision)
	if d == nil || !hadUnit {
		return nil, fmt.Errorf("Please choose a valid unit from %s.", strings.Join(r.Units(), ", "))
	}
	return d, nil
}

// ParseFormValue coerces form input using the default registry.
func ParseFormValue(text string) (*Distance, error) {
	return Default.ParseFormValue(text)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

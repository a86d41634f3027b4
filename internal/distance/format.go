package distance

import "strconv"

// System is a user's preferred measurement system.
type System string

const (
	// Metric renders metres and kilometres.
	Metric System = "Metric"
	// Imperial renders feet and miles.
	Imperial System = "Imperial"
)

// simplifyThreshold is the whole-unit count above which the larger unit is used.
const simplifyThreshold = 99999

// FormatMetric renders whole metres, promoting to kilometres above the threshold.
func FormatMetric(d Distance, simplify bool) string {
	metres := roundTo(d.m, 0)
	if simplify && metres > simplifyThreshold {
		km, _ := d.In("km")
		return strconv.FormatFloat(roundTo(km, 2), 'f', -1, 64) + "km"
	}
	return strconv.FormatFloat(metres, 'f', 0, 64) + "m"
}

// FormatImperial renders whole feet, promoting to miles above the threshold.
func FormatImperial(d Distance, simplify bool) string {
	ft, _ := d.In("ft")
	feet := roundTo(ft, 0)
	if simplify && feet > simplifyThreshold {
		mi, _ := d.In("mi")
		return strconv.FormatFloat(roundTo(mi, 2), 'f', -1, 64) + "mi"
	}
	return strconv.FormatFloat(feet, 'f', 0, 64) + "ft"
}

// Format renders d for a user's measurement system.
func Format(d Distance, system System, simplify bool) string {
	if system == Imperial {
		return FormatImperial(d, simplify)
	}
	return FormatMetric(d, simplify)
}

// UnitFor returns the base display unit of a measurement system.
func UnitFor(system System) string {
	if system == Imperial {
		return "ft"
	}
	return "m"
}

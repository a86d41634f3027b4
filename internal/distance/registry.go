package distance

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrRegistryFrozen is returned when a frozen registry is mutated.
var ErrRegistryFrozen = errors.New("distance: registry is frozen")

// ErrUnknownUnit indicates a unit name that resolves to no registered unit.
var ErrUnknownUnit = errors.New("distance: unknown unit")

// standardUnits holds metres-per-unit for the units known at startup.
var standardUnits = map[string]float64{
	"m":       1,
	"km":      1000,
	"cm":      0.01,
	"mm":      0.001,
	"um":      0.000001,
	"ft":      0.3048,
	"inch":    0.0254,
	"yd":      0.9144,
	"mi":      1609.344,
	"nm":      1852,
	"fathom":  1.8288,
	"furlong": 201.168,
	"chain":   20.1168,
	"u":       0.04445,
	"px":      0.001,
}

// standardAliases maps alternative spellings to canonical unit names.
var standardAliases = map[string]string{
	"metre":      "m",
	"meter":      "m",
	"metres":     "m",
	"meters":     "m",
	"kilometre":  "km",
	"kilometer":  "km",
	"kilometres": "km",
	"kilometers": "km",
	"centimetre": "cm",
	"centimeter": "cm",
	"millimetre": "mm",
	"millimeter": "mm",
	"micrometre": "um",
	"foot":       "ft",
	"feet":       "ft",
	"inches":     "inch",
	"in":         "inch",
	`"`:          "inch",
	"'":          "ft",
	"yard":       "yd",
	"yards":      "yd",
	"mile":       "mi",
	"miles":      "mi",
	"fathoms":    "fathom",
	"furlongs":   "furlong",
	"chains":     "chain",
	"ru":         "u",
}

// Registry maps unit names to their length in metres and aliases to units.
type Registry struct {
	mu      sync.RWMutex
	units   map[string]float64
	aliases map[string]string
	frozen  bool
}

// Default is the process-wide registry. It is frozen and safe for concurrent use.
var Default = NewRegistry().Freeze()

// NewRegistry builds a mutable registry seeded with the standard units and aliases.
func NewRegistry() *Registry {
	r := &Registry{
		units:   make(map[string]float64, len(standardUnits)),
		aliases: make(map[string]string, len(standardAliases)),
	}
	for name, metres := range standardUnits {
		r.units[name] = metres
	}
	for alias, unit := range standardAliases {
		r.aliases[strings.ToLower(alias)] = unit
	}
	return r
}

// RegisterUnit adds or replaces a unit.
func (r *Registry) RegisterUnit(name string, metres float64) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("distance: empty unit name")
	}
	if math.IsNaN(metres) || math.IsInf(metres, 0) || metres <= 0 {
		return fmt.Errorf("distance: invalid unit %s=%vm", name, metres)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrRegistryFrozen
	}
	r.units[name] = metres
	log.Debugf("distance: registered unit %s=%vm", name, metres)
	return nil
}

// RegisterAlias maps alias onto an existing unit. Unknown units are skipped with a warning.
func (r *Registry) RegisterAlias(alias, unit string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrRegistryFrozen
	}
	if _, ok := r.units[unit]; !ok {
		log.Warnf("distance: unit %q does not exist when adding alias %q", unit, alias)
		return nil
	}
	r.aliases[strings.ToLower(alias)] = unit
	return nil
}

// Freeze forbids further mutation and returns the registry.
func (r *Registry) Freeze() *Registry {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
	return r
}

// Resolve returns the canonical unit name and its length in metres.
func (r *Registry) Resolve(name string) (string, float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if metres, ok := r.units[name]; ok {
		return name, metres, nil
	}
	lower := strings.ToLower(name)
	if metres, ok := r.units[lower]; ok {
		return lower, metres, nil
	}
	if unit, ok := r.aliases[lower]; ok {
		return unit, r.units[unit], nil
	}
	return "", 0, fmt.Errorf("%w: %q", ErrUnknownUnit, name)
}

// Units returns the sorted canonical unit names.
func (r *Registry) Units() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.units))
	for name := range r.units {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New builds a distance of value expressed in unit.
func (r *Registry) New(value float64, unit string) (Distance, error) {
	name, metres, err := r.Resolve(unit)
	if err != nil {
		return Distance{}, err
	}
	return Distance{m: value * metres, unit: name, prec: MaxPrecision, reg: r}, nil
}

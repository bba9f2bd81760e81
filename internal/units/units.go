package units

import (
	"errors"
	"fmt"
	"strings"
)

// System is an output unit convention.
type System string

const (
	// EN is the imperial system.
	EN System = "EN"
	// SI is the metric system.
	SI System = "SI"
)

// ErrUnknownConversion is returned when no factor links two units.
var ErrUnknownConversion = errors.New("units: unknown conversion")

// ParseSystem normalizes a unit system name. Empty means EN.
func ParseSystem(value string) (System, error) {
	switch System(strings.ToUpper(strings.TrimSpace(value))) {
	case "", EN:
		return EN, nil
	case SI:
		return SI, nil
	default:
		return "", fmt.Errorf("units: unknown system %q", value)
	}
}

// pairs lists EN and SI units that stand for the same quantity.
var pairs = []struct {
	en, si string
}{
	{"ft", "m"},
	{"cfs", "cms"},
	{"kcfs", "kcms"},
	{"in", "mm"},
	{"ac-ft", "m3"},
}

// Preferred returns the unit this system uses for the quantity units names.
// Unknown units come back unchanged.
func (s System) Preferred(units string) string {
	for _, p := range pairs {
		if units == p.en || units == p.si {
			if s == SI {
				return p.si
			}
			return p.en
		}
	}
	return units
}

// Converter converts values between named units.
type Converter interface {
	Convert(value float64, from, to string) (float64, error)
}

type key struct{ from, to string }

// factors hold linear multipliers from unit to unit.
var factors = map[key]float64{
	{"m", "ft"}:      3.280839895013123,
	{"cms", "cfs"}:   35.31466672148859,
	{"kcms", "kcfs"}: 35.31466672148859,
	{"mm", "in"}:     0.03937007874015748,
	{"m3", "ac-ft"}:  0.000810713193789913,
}

// TableConverter converts with a fixed factor table.
type TableConverter struct {
	factors map[key]float64
}

// NewTableConverter builds the default converter.
func NewTableConverter() *TableConverter {
	table := make(map[key]float64, len(factors)*2)
	for k, f := range factors {
		table[k] = f
		table[key{from: k.to, to: k.from}] = 1 / f
	}
	return &TableConverter{factors: table}
}

// Convert converts value. Identical units return the value unchanged.
func (c *TableConverter) Convert(value float64, from, to string) (float64, error) {
	if from == to || from == "" || to == "" {
		return value, nil
	}
	f, ok := c.factors[key{from: from, to: to}]
	if !ok {
		return 0, fmt.Errorf("%w: %s to %s", ErrUnknownConversion, from, to)
	}
	return value * f, nil
}

/*
   This file handles physical lengths used for voxel sizes, positions, and wavelengths.
*/

package bv

import (
	"fmt"
	"strconv"
	"strings"
)

// Unit is a unit of length.  Pixel is the non-physical unit used by decoders that
// have no calibration; it cannot be converted to physical units.
type Unit uint8

const (
	UnitUnknown Unit = iota
	Meter
	Millimeter
	Micrometer
	Nanometer
	Angstrom
	Pixel
)

// meters per unit for physical units
var unitMeters = map[Unit]float64{
	Meter:      1,
	Millimeter: 1e-3,
	Micrometer: 1e-6,
	Nanometer:  1e-9,
	Angstrom:   1e-10,
}

var unitNames = map[string]Unit{
	"m":              Meter,
	"meter":          Meter,
	"mm":             Millimeter,
	"millimeter":     Millimeter,
	"um":             Micrometer,
	"µm":             Micrometer,
	"micron":         Micrometer,
	"micrometer":     Micrometer,
	"nm":             Nanometer,
	"nanometer":      Nanometer,
	"a":              Angstrom,
	"å":              Angstrom,
	"angstrom":       Angstrom,
	"px":             Pixel,
	"pixel":          Pixel,
	"referenceframe": Pixel,
}

func (u Unit) String() string {
	switch u {
	case Meter:
		return "m"
	case Millimeter:
		return "mm"
	case Micrometer:
		return "µm"
	case Nanometer:
		return "nm"
	case Angstrom:
		return "Å"
	case Pixel:
		return "pixel"
	default:
		return "unknown"
	}
}

// Physical returns true if the unit can be converted to meters.
func (u Unit) Physical() bool {
	_, found := unitMeters[u]
	return found
}

// ParseUnit returns the Unit for a name like "mm" or "micrometer".
func ParseUnit(name string) (Unit, error) {
	key := strings.ToLower(strings.Join(strings.Fields(name), ""))
	if u, found := unitNames[key]; found {
		return u, nil
	}
	return UnitUnknown, fmt.Errorf("unknown length unit %q", name)
}

// Length is a value with a unit of length.
type Length struct {
	Value float64
	Unit  Unit
}

// L is shorthand for constructing a Length.
func L(value float64, unit Unit) Length {
	return Length{value, unit}
}

// In returns the length expressed in the given unit.  Conversion between physical
// units and Pixel is not possible and returns false.  Lengths in Pixel are returned
// unchanged when Pixel is requested.
func (l Length) In(u Unit) (float64, bool) {
	if l.Unit == u {
		return l.Value, true
	}
	from, ok1 := unitMeters[l.Unit]
	to, ok2 := unitMeters[u]
	if !ok1 || !ok2 {
		return 0, false
	}
	return l.Value * from / to, true
}

// Ratio returns the length divided by a reference length, i.e., the length measured
// in multiples of the reference.  Non-convertible lengths are measured as raw values.
func (l Length) Ratio(ref Length) float64 {
	if ref.Value == 0 {
		return l.Value
	}
	v, ok := l.In(ref.Unit)
	if !ok {
		v = l.Value
	}
	return v / ref.Value
}

func (l Length) String() string {
	return fmt.Sprintf("%g %s", l.Value, l.Unit)
}

// MarshalText writes a length like "0.5 µm".
func (l Length) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText parses lengths like "0.5 um", "2mm", or a bare unit "um" (value 1).
func (l *Length) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	i := 0
	for i < len(s) && (s[i] == '.' || s[i] == '-' || s[i] == '+' || s[i] == 'e' && i > 0 || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	value := 1.0
	if i > 0 {
		v, err := strconv.ParseFloat(s[:i], 64)
		if err != nil {
			return fmt.Errorf("bad length %q: %v", s, err)
		}
		value = v
	}
	u, err := ParseUnit(s[i:])
	if err != nil {
		return err
	}
	*l = Length{value, u}
	return nil
}

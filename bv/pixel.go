/*
   This file handles the sample types that pixel sources can deliver.
*/

package bv

import (
	"encoding/json"
	"fmt"
)

// PixelType identifies the numeric type of each sample delivered for a series.
type PixelType uint8

const (
	PixelUnknown PixelType = iota
	PixelUint8
	PixelUint16
	PixelUint32
	PixelFloat32
	PixelRGB // packed 8-bit RGB, delivered as ARGB
)

// ARGB is a packed 8-bit alpha, red, green, blue sample.
type ARGB uint32

// NewARGB packs the given components with full opacity.
func NewARGB(r, g, b uint8) ARGB {
	return ARGB(0xff<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

func (c ARGB) Red() uint8   { return uint8(c >> 16) }
func (c ARGB) Green() uint8 { return uint8(c >> 8) }
func (c ARGB) Blue() uint8  { return uint8(c) }
func (c ARGB) Alpha() uint8 { return uint8(c >> 24) }

var pixelTypeNames = map[PixelType]string{
	PixelUnknown: "unknown",
	PixelUint8:   "uint8",
	PixelUint16:  "uint16",
	PixelUint32:  "uint32",
	PixelFloat32: "float32",
	PixelRGB:     "rgb",
}

// BytesPerSample returns the # of bytes for one delivered sample of the type.
func (t PixelType) BytesPerSample() int {
	switch t {
	case PixelUint8:
		return 1
	case PixelUint16:
		return 2
	case PixelUint32, PixelFloat32, PixelRGB:
		return 4
	}
	return 0
}

func (t PixelType) String() string {
	if name, found := pixelTypeNames[t]; found {
		return name
	}
	return fmt.Sprintf("pixel type %d", t)
}

// ParsePixelType returns the PixelType for a name like "uint16".
func ParsePixelType(name string) (PixelType, error) {
	for t, tname := range pixelTypeNames {
		if tname == name && t != PixelUnknown {
			return t, nil
		}
	}
	return PixelUnknown, fmt.Errorf("unknown pixel type %q", name)
}

// MarshalJSON implements the json.Marshaler interface.
func (t PixelType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (t *PixelType) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	parsed, err := ParsePixelType(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalText lets a PixelType be given by name in TOML files.
func (t PixelType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText lets a PixelType be given by name in TOML files.
func (t *PixelType) UnmarshalText(b []byte) error {
	parsed, err := ParsePixelType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

/*
	Package reader defines the opaque format-reading capability consumed by bioview and
	the serialized handle through which all pixel reads of a file pass.

	Concrete microscopy formats are provided by packages that register a Format in
	their init(), the way storage engines are registered.  A Decoder is stateful: the
	current series and resolution are selected before sizes are queried or bytes read,
	so a Decoder must never be used by two goroutines at once.  Handle enforces this.
*/
package reader

import (
	"errors"
	"fmt"

	"github.com/janelia-flyem/bioview/bv"
)

var (
	// ErrUnknownFormat is returned when no registered format accepts a path.
	ErrUnknownFormat = errors.New("no registered format can read file")

	// ErrHandleClosed is returned when a closed Handle is used.
	ErrHandleClosed = errors.New("reader handle is closed")
)

// ChannelMeta is the per-channel metadata of a series.  Wavelengths and colors are
// optional; a zero Length (unknown unit) means the decoder did not report a value.
type ChannelMeta struct {
	Name       string
	Emission   bv.Length
	Excitation bv.Length
	Color      bv.ARGB // zero alpha means no color was reported
}

// HasColor returns true if the decoder reported a display color for the channel.
func (c ChannelMeta) HasColor() bool {
	return c.Color.Alpha() != 0
}

// SeriesMeta is the metadata of one series of a file at full resolution.
type SeriesMeta struct {
	Name            string     // image name, may be empty
	Size            bv.Point3d // X, Y, Z at full resolution
	SizeC           int
	SizeT           int
	PixelType       bv.PixelType
	BitsPerSample   int  // bits of each stored sample
	FloatingPoint   bool // stored samples are IEEE floats
	RGB             bool // samples are packed RGB
	SamplesPerPixel int
	Interleaved     bool // RGB components interleaved within a plane
	LittleEndian    bool

	// Physical metadata.  A zero Length means the component is missing.
	VoxelSize [3]bv.Length
	Position  [3]bv.Length

	Channels []ChannelMeta // may be shorter than SizeC
}

// Channel returns the metadata of channel c, or zero metadata if none was reported.
func (m SeriesMeta) Channel(c int) ChannelMeta {
	if c >= 0 && c < len(m.Channels) {
		return m.Channels[c]
	}
	return ChannelMeta{}
}

// ResolvePixelType returns the PixelType to deliver for the series, derived from the
// reported type or from the bit depth.  PixelUnknown is returned when the type cannot
// be decided.
func (m SeriesMeta) ResolvePixelType() bv.PixelType {
	if m.RGB {
		if m.BitsPerSample == 0 || m.BitsPerSample == 8 {
			return bv.PixelRGB
		}
		return bv.PixelUnknown
	}
	if m.PixelType != bv.PixelUnknown {
		return m.PixelType
	}
	switch {
	case m.FloatingPoint && m.BitsPerSample == 32:
		return bv.PixelFloat32
	case m.FloatingPoint:
		return bv.PixelUnknown
	case m.BitsPerSample == 8:
		return bv.PixelUint8
	case m.BitsPerSample == 16:
		return bv.PixelUint16
	case m.BitsPerSample == 32:
		return bv.PixelUint32
	}
	return bv.PixelUnknown
}

// Decoder is the opaque capability that reads one microscopy file.  Series and
// resolution selection are stateful.
type Decoder interface {
	// SeriesCount returns the number of series in the file.
	SeriesCount() int

	// Metadata returns the full-resolution metadata of a series without changing
	// the current selection.
	Metadata(series int) (SeriesMeta, error)

	// SetSeries selects the series that later calls refer to and resets the
	// resolution to 0.
	SetSeries(series int) error

	// ResolutionCount returns the number of pyramid levels of the current series.
	ResolutionCount() int

	// SetResolution selects a pyramid level of the current series.
	SetResolution(level int) error

	// Size returns the X, Y, Z extent of the current series and resolution.
	Size() bv.Point3d

	// OptimalTileSize returns the preferred read width and height.
	OptimalTileSize() (width, height int32)

	// PlaneIndex returns the plane number holding the given z, channel and timepoint.
	PlaneIndex(z, c, t int) int

	// OpenBytes returns the raw bytes of a rectangle of a plane of the current series
	// and resolution.
	OpenBytes(plane int, x, y, w, h int32) ([]byte, error)

	// Close releases the file.
	Close() error
}

// Open returns a Decoder for the file at path using the first registered format
// that accepts it.
func Open(path string) (Decoder, error) {
	f, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	dec, err := f.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s could not open %q: %w", f, path, err)
	}
	return dec, nil
}

package synth

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/janelia-flyem/bioview/bv"
	"github.com/janelia-flyem/bioview/reader"
)

// Decoder is a reader.Decoder over a FileSpec.
type Decoder struct {
	name     string
	spec     FileSpec
	counters *Counters
	busy     int32

	series int
	level  int
	closed bool
}

// NewDecoder returns a decoder for the spec.  The counters may be nil.
func NewDecoder(name string, spec FileSpec, counters *Counters) *Decoder {
	if counters == nil {
		counters = new(Counters)
	}
	return &Decoder{name: name, spec: spec, counters: counters}
}

func (d *Decoder) enter() {
	if !atomic.CompareAndSwapInt32(&d.busy, 0, 1) {
		atomic.AddInt64(&d.counters.Concurrent, 1)
	}
}

func (d *Decoder) exit() {
	atomic.StoreInt32(&d.busy, 0)
}

func (d *Decoder) SeriesCount() int {
	return len(d.spec.Series)
}

func (d *Decoder) Metadata(series int) (reader.SeriesMeta, error) {
	if d.spec.FailMetadata {
		return reader.SeriesMeta{}, fmt.Errorf("injected metadata failure in %s", d.name)
	}
	if series < 0 || series >= len(d.spec.Series) {
		return reader.SeriesMeta{}, fmt.Errorf("series %d out of range in %s", series, d.name)
	}
	s := d.spec.Series[series]
	meta := reader.SeriesMeta{
		Name:            s.Name,
		Size:            bv.Point3d(s.Size),
		SizeC:           s.SizeC,
		SizeT:           s.SizeT,
		PixelType:       s.PixelType,
		RGB:             s.PixelType == bv.PixelRGB,
		SamplesPerPixel: 1,
		Interleaved:     s.Interleaved,
		LittleEndian:    s.LittleEndian,
	}
	if meta.RGB {
		meta.PixelType = bv.PixelUnknown
		meta.BitsPerSample = 8
		meta.SamplesPerPixel = 3
	}
	if s.Undecidable {
		meta.PixelType = bv.PixelUnknown
		meta.BitsPerSample = 12
		meta.RGB = false
	}
	copy(meta.VoxelSize[:], s.VoxelSize)
	copy(meta.Position[:], s.Position)
	for _, cs := range s.Channels {
		cm := reader.ChannelMeta{
			Name:       cs.Name,
			Emission:   cs.Emission,
			Excitation: cs.Excitation,
		}
		if cs.Color != "" {
			rgb, err := strconv.ParseUint(strings.TrimPrefix(cs.Color, "#"), 16, 32)
			if err != nil {
				return reader.SeriesMeta{}, fmt.Errorf("bad channel color %q in %s", cs.Color, d.name)
			}
			cm.Color = bv.NewARGB(uint8(rgb>>16), uint8(rgb>>8), uint8(rgb))
		}
		meta.Channels = append(meta.Channels, cm)
	}
	return meta, nil
}

func (d *Decoder) SetSeries(series int) error {
	d.enter()
	defer d.exit()
	if series < 0 || series >= len(d.spec.Series) {
		return fmt.Errorf("series %d out of range in %s", series, d.name)
	}
	d.series = series
	d.level = 0
	return nil
}

func (d *Decoder) current() SeriesSpec {
	return d.spec.Series[d.series]
}

func (d *Decoder) ResolutionCount() int {
	if n := d.current().Levels; n > 1 {
		return n
	}
	return 1
}

func (d *Decoder) SetResolution(level int) error {
	d.enter()
	defer d.exit()
	if level < 0 || level >= d.ResolutionCount() {
		return fmt.Errorf("resolution %d out of range in %s", level, d.name)
	}
	d.level = level
	return nil
}

// LevelSize returns the size of a pyramid level of a series.
func LevelSize(s SeriesSpec, level int) bv.Point3d {
	size := bv.Point3d(s.Size)
	for i := 0; i < level; i++ {
		size[0] = (size[0] + 1) / 2
		size[1] = (size[1] + 1) / 2
	}
	return size
}

func (d *Decoder) Size() bv.Point3d {
	return LevelSize(d.current(), d.level)
}

func (d *Decoder) OptimalTileSize() (width, height int32) {
	s := d.current()
	size := d.Size()
	width, height = s.TileWidth, s.TileHeight
	if width <= 0 {
		width = size[0]
	}
	if height <= 0 {
		height = size[1]
	}
	return
}

// PlaneIndex orders planes with Z fastest, then channel, then timepoint.
func (d *Decoder) PlaneIndex(z, c, t int) int {
	s := d.current()
	return z + c*int(s.Size[2]) + t*int(s.Size[2])*s.SizeC
}

func (d *Decoder) OpenBytes(plane int, x, y, w, h int32) ([]byte, error) {
	d.enter()
	defer d.exit()
	atomic.AddInt64(&d.counters.Reads, 1)
	if d.closed {
		return nil, fmt.Errorf("read from closed decoder %s", d.name)
	}
	if d.spec.OnRead != nil {
		d.spec.OnRead(plane)
	}
	if d.spec.Latency.Duration > 0 {
		time.Sleep(d.spec.Latency.Duration)
	}
	if d.spec.FailPlane > 0 && plane == d.spec.FailPlane-1 {
		return nil, fmt.Errorf("injected read failure for plane %d in %s", plane, d.name)
	}
	s := d.current()
	size := d.Size()
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > size[0] || y+h > size[1] {
		return nil, fmt.Errorf("read of %dx%d at (%d,%d) outside %s in %s", w, h, x, y, size, d.name)
	}
	nplanes := int(s.Size[2]) * s.SizeC * s.SizeT
	if plane < 0 || plane >= nplanes {
		return nil, fmt.Errorf("plane %d out of range [0,%d) in %s", plane, nplanes, d.name)
	}

	bytesPerSample := s.PixelType.BytesPerSample()
	if s.PixelType == bv.PixelRGB {
		bytesPerSample = 3
	}
	data := make([]byte, int(w)*int(h)*bytesPerSample)
	if s.PixelType == bv.PixelRGB && !s.Interleaved {
		n := int(w) * int(h)
		var tmp [3]byte
		i := 0
		for py := y; py < y+h; py++ {
			for px := x; px < x+w; px++ {
				Encode(tmp[:], bv.PixelRGB, s.LittleEndian, Sample(d.series, d.level, plane, px, py))
				data[i], data[n+i], data[2*n+i] = tmp[0], tmp[1], tmp[2]
				i++
			}
		}
	} else {
		pos := 0
		for py := y; py < y+h; py++ {
			for px := x; px < x+w; px++ {
				pos += Encode(data[pos:], s.PixelType, s.LittleEndian, Sample(d.series, d.level, plane, px, py))
			}
		}
	}
	if d.spec.ShortRead {
		data = data[:len(data)-1]
	}
	return data, nil
}

func (d *Decoder) Close() error {
	d.closed = true
	if d.spec.FailClose {
		return fmt.Errorf("injected close failure in %s", d.name)
	}
	return nil
}

/*
	Package synth implements a deterministic synthetic microscopy format.  Every sample
	is a pure function of its series, level, plane and position, so tests can compute
	the expected contents of any tile without storing them.

	Files are either TOML descriptions named *.synth.toml or in-memory fixtures
	registered with Register and addressed as "synth://<name>".  The decoder counts
	byte reads, detects concurrent use, and can inject latency and failures.
*/
package synth

import (
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/blang/semver"

	"github.com/janelia-flyem/bioview/bv"
	"github.com/janelia-flyem/bioview/reader"
)

const (
	// Scheme prefixes the paths of in-memory fixtures.
	Scheme = "synth://"

	// Suffix is the file name suffix of TOML fixture descriptions.
	Suffix = ".synth.toml"
)

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		bv.Errorf("Unable to make semver in synth: %v\n", err)
	}
	reader.RegisterFormat(Format{"synth", "Deterministic synthetic images", ver})
}

// ChannelSpec describes one channel.
type ChannelSpec struct {
	Name       string
	Emission   bv.Length
	Excitation bv.Length
	Color      string // hex RRGGBB, optional
}

// SeriesSpec describes one series of a synthetic file.
type SeriesSpec struct {
	Name         string
	Size         [3]int32
	SizeC        int
	SizeT        int
	PixelType    bv.PixelType
	LittleEndian bool
	Interleaved  bool
	Levels       int // pyramid levels, each halving X and Y
	TileWidth    int32
	TileHeight   int32
	VoxelSize    []bv.Length
	Position     []bv.Length
	Channels     []ChannelSpec

	// Undecidable makes the series report an unusable pixel type.
	Undecidable bool
}

// FileSpec describes a synthetic file and the faults to inject while reading it.
type FileSpec struct {
	Series []SeriesSpec

	Latency      Duration // added to every OpenBytes call
	FailOpen     bool
	FailMetadata bool
	FailClose    bool // Close returns an error
	FailPlane    int  // OpenBytes fails for plane FailPlane-1 when > 0
	ShortRead    bool // OpenBytes returns one byte too few

	// OnRead is called at the start of every OpenBytes call of in-memory fixtures.
	OnRead func(plane int) `toml:"-"`
}

// Duration is a time.Duration given as a string like "5ms" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Counters records the activity of all decoders opened on one fixture.
type Counters struct {
	Opens      int64
	Reads      int64
	Concurrent int64 // calls made while another call was in progress
}

type fixture struct {
	spec     FileSpec
	counters *Counters
}

var (
	fixturesMu sync.RWMutex
	fixtures   = map[string]*fixture{}
)

// Register stores an in-memory fixture and returns its path and counters.  Registering
// an existing name replaces it and resets its counters.
func Register(name string, spec FileSpec) (path string, counters *Counters) {
	fixturesMu.Lock()
	defer fixturesMu.Unlock()
	counters = new(Counters)
	fixtures[name] = &fixture{spec: spec, counters: counters}
	return Scheme + name, counters
}

// Lookup returns the counters of a registered fixture path.
func Lookup(path string) (*Counters, bool) {
	fixturesMu.RLock()
	defer fixturesMu.RUnlock()
	f, found := fixtures[strings.TrimPrefix(path, Scheme)]
	if !found {
		return nil, false
	}
	return f.counters, true
}

// Load reads a TOML fixture description.
func Load(path string) (FileSpec, error) {
	var spec FileSpec
	if _, err := toml.DecodeFile(path, &spec); err != nil {
		return spec, fmt.Errorf("could not decode synthetic image %q: %v", path, err)
	}
	return spec, nil
}

// Format is the reader.Format for synthetic images.
type Format struct {
	name   string
	desc   string
	semver semver.Version
}

func (f Format) GetName() string {
	return f.name
}

func (f Format) GetDescription() string {
	return f.desc
}

func (f Format) GetSemVer() semver.Version {
	return f.semver
}

func (f Format) String() string {
	return fmt.Sprintf("%s [%s]", f.name, f.semver)
}

func (f Format) Accepts(path string) bool {
	return strings.HasPrefix(path, Scheme) || strings.HasSuffix(strings.ToLower(path), Suffix)
}

func (f Format) Open(path string) (reader.Decoder, error) {
	var fx *fixture
	if strings.HasPrefix(path, Scheme) {
		fixturesMu.RLock()
		fx = fixtures[strings.TrimPrefix(path, Scheme)]
		fixturesMu.RUnlock()
		if fx == nil {
			return nil, fmt.Errorf("no synthetic fixture registered as %q", path)
		}
	} else {
		spec, err := Load(path)
		if err != nil {
			return nil, err
		}
		fx = &fixture{spec: spec, counters: new(Counters)}
	}
	if fx.spec.FailOpen {
		return nil, fmt.Errorf("injected open failure for %q", path)
	}
	atomic.AddInt64(&fx.counters.Opens, 1)
	return NewDecoder(filepath.Base(path), fx.spec, fx.counters), nil
}

// Sample returns the deterministic value stored at a position of a plane.
func Sample(series, level, plane int, x, y int32) uint32 {
	v := uint32(x)*7 + uint32(y)*131 + uint32(plane)*10007 + uint32(level)*100003 + uint32(series)*1000003
	return v*2654435761 ^ v
}

// Float returns the float32 delivered for a sample value.
func Float(v uint32) float32 {
	return float32(v%65536) / 4
}

// RGB returns the packed color delivered for a sample value.
func RGB(v uint32) bv.ARGB {
	return bv.NewARGB(uint8(v), uint8(v>>8), uint8(v>>16))
}

// Encode writes the stored representation of sample value v into b and returns the
// number of bytes written.  RGB values are written as three bytes.
func Encode(b []byte, t bv.PixelType, littleEndian bool, v uint32) int {
	var order binary.ByteOrder = binary.BigEndian
	if littleEndian {
		order = binary.LittleEndian
	}
	switch t {
	case bv.PixelUint8:
		b[0] = uint8(v)
		return 1
	case bv.PixelUint16:
		order.PutUint16(b, uint16(v))
		return 2
	case bv.PixelUint32:
		order.PutUint32(b, v)
		return 4
	case bv.PixelFloat32:
		order.PutUint32(b, math.Float32bits(Float(v)))
		return 4
	case bv.PixelRGB:
		b[0], b[1], b[2] = uint8(v), uint8(v>>8), uint8(v>>16)
		return 3
	}
	return 0
}

/*
	Package dataset assembles the series, channels and timepoints of many microscopy
	files into one flat, consistent index space of setups and views.

	A Sequence is built once by Assemble and is immutable afterwards.  Its slices are
	indexed by the integer ids they hold, so Setups[id].ID == id.  Every view, a
	(timepoint, setup) pair, is either registered with a spatial transform or listed
	as missing because its series has fewer timepoints than the dataset.
*/
package dataset

import (
	"errors"
	"fmt"

	"github.com/janelia-flyem/bioview/bv"
	"github.com/janelia-flyem/bioview/spatial"
)

type (
	FileID    int
	SeriesID  int
	ChannelID int
	SetupID   int
)

var (
	// ErrPixelType is returned when a series has a pixel type that cannot be delivered.
	ErrPixelType = errors.New("undecidable pixel type")

	// ErrNoData is returned when no input file could be read.
	ErrNoData = errors.New("no readable input files")
)

// File is an input file.
type File struct {
	ID   FileID
	Path string
}

// Series is one series of an input file.
type Series struct {
	ID        SeriesID
	File      FileID
	Index     int // within the file
	Name      string
	Size      bv.Point3d
	SizeC     int
	SizeT     int
	PixelType bv.PixelType
	RGB       bool
	Tile      int // one tile per series, counted across files
	VoxelSize [3]bv.Length
	Transform spatial.Affine3D
}

// Channel is a deduplicated channel identity.
type Channel struct {
	ID       ChannelID
	Name     string
	Key      ChannelKey
	Color    bv.ARGB
	HasColor bool
}

// Setup is one channel of one series, the unit a viewer displays.
type Setup struct {
	ID           SetupID
	Name         string
	File         FileID
	Series       SeriesID
	SeriesIndex  int // within the file
	ChannelIndex int // within the series
	Channel      ChannelID
	Tile         int
	Size         bv.Point3d
	VoxelSize    [3]bv.Length
	PixelType    bv.PixelType
	Color        bv.ARGB
	HasColor     bool
}

// ViewID is a setup at a timepoint.
type ViewID struct {
	Timepoint int
	Setup     SetupID
}

func (v ViewID) String() string {
	return fmt.Sprintf("(t %d, setup %d)", v.Timepoint, v.Setup)
}

// Registration places a view in world space.
type Registration struct {
	View      ViewID
	Transform spatial.Affine3D
}

// Failure records an input file that could not be read.
type Failure struct {
	File  FileID
	Path  string
	Error string
}

// Sequence is an assembled dataset.
type Sequence struct {
	Files         []File
	Series        []Series
	Channels      []Channel
	Setups        []Setup
	Timepoints    int
	Registrations []Registration
	Missing       []ViewID
	Failures      []Failure `json:",omitempty"`

	missing map[ViewID]struct{}
}

func (s *Sequence) index() {
	s.missing = make(map[ViewID]struct{}, len(s.Missing))
	for _, v := range s.Missing {
		s.missing[v] = struct{}{}
	}
}

// Setup returns a setup by id.
func (s *Sequence) Setup(id SetupID) (Setup, bool) {
	if id < 0 || int(id) >= len(s.Setups) {
		return Setup{}, false
	}
	return s.Setups[id], true
}

// IsMissing returns true if the view is a missing view.  Views outside the
// dataset are not missing.
func (s *Sequence) IsMissing(v ViewID) bool {
	if s.missing == nil {
		for _, m := range s.Missing {
			if m == v {
				return true
			}
		}
		return false
	}
	_, found := s.missing[v]
	return found
}

// Valid returns true if the view is inside the dataset.
func (s *Sequence) Valid(v ViewID) bool {
	return v.Timepoint >= 0 && v.Timepoint < s.Timepoints && v.Setup >= 0 && int(v.Setup) < len(s.Setups)
}

// Transform returns the registration of a view.
func (s *Sequence) Transform(v ViewID) (spatial.Affine3D, bool) {
	if !s.Valid(v) || s.IsMissing(v) {
		return spatial.Affine3D{}, false
	}
	setup := s.Setups[v.Setup]
	return s.Series[setup.Series].Transform, true
}

// SetupsByChannel groups setup ids by channel.
func (s *Sequence) SetupsByChannel() map[ChannelID][]SetupID {
	groups := make(map[ChannelID][]SetupID)
	for _, setup := range s.Setups {
		groups[setup.Channel] = append(groups[setup.Channel], setup.ID)
	}
	return groups
}

// SetupsByFile groups setup ids by the file holding their data.
func (s *Sequence) SetupsByFile() map[FileID][]SetupID {
	groups := make(map[FileID][]SetupID)
	for _, setup := range s.Setups {
		groups[setup.File] = append(groups[setup.File], setup.ID)
	}
	return groups
}

// Summary returns a one line description of the sequence.
func (s *Sequence) Summary() string {
	return fmt.Sprintf("%d files (%d failed), %d series, %d channels, %d setups, %d timepoints, %d registered views, %d missing views",
		len(s.Files), len(s.Failures), len(s.Series), len(s.Channels), len(s.Setups), s.Timepoints, len(s.Registrations), len(s.Missing))
}

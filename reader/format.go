package reader

import (
	"fmt"
	"sort"
	"sync"

	"github.com/blang/semver"
	"github.com/janelia-flyem/bioview/bv"
)

// Format is a file format that can produce Decoders.
type Format interface {
	GetName() string
	GetDescription() string
	GetSemVer() semver.Version

	// Accepts returns true if the format can read the file at path.
	Accepts(path string) bool

	// Open returns a new Decoder for the file.  Each call returns an
	// independent Decoder.
	Open(path string) (Decoder, error)

	fmt.Stringer
}

var (
	formatsMu sync.RWMutex
	formats   = map[string]Format{}
)

// RegisterFormat makes a format available.  A format registered with the same name
// replaces the earlier one only if it has a higher version.
func RegisterFormat(f Format) {
	formatsMu.Lock()
	defer formatsMu.Unlock()
	name := f.GetName()
	if prior, found := formats[name]; found {
		if f.GetSemVer().LTE(prior.GetSemVer()) {
			bv.Debugf("Ignoring format %s: already registered %s\n", f, prior)
			return
		}
	}
	formats[name] = f
}

// Formats returns the registered formats sorted by name.
func Formats() []Format {
	formatsMu.RLock()
	defer formatsMu.RUnlock()
	list := make([]Format, 0, len(formats))
	for _, f := range formats {
		list = append(list, f)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].GetName() < list[j].GetName() })
	return list
}

// FormatFor returns the first registered format, in name order, that accepts path.
func FormatFor(path string) (Format, error) {
	for _, f := range Formats() {
		if f.Accepts(path) {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, path)
}

// FormatsString returns a description of the registered formats.
func FormatsString() string {
	var s string
	for _, f := range Formats() {
		s += fmt.Sprintf("%-15s  %s  %s\n", f.GetName(), f.GetSemVer(), f.GetDescription())
	}
	return s
}

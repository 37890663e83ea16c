package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/janelia-flyem/bioview/bv"
	"github.com/janelia-flyem/bioview/reader"
)

// FallbackPolicy decides whether channels without a name can be merged across series.
type FallbackPolicy uint8

const (
	// FallbackMerge treats channels named by position ("ch0") like named channels, so
	// they merge whenever all other identity fields match.
	FallbackMerge FallbackPolicy = iota

	// FallbackPerSeries scopes channels named by position to their file and series.
	FallbackPerSeries
)

func (p FallbackPolicy) String() string {
	switch p {
	case FallbackMerge:
		return "merge"
	case FallbackPerSeries:
		return "per-series"
	}
	return fmt.Sprintf("fallback policy %d", p)
}

// ParseFallbackPolicy returns the policy named "merge" or "per-series".
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "merge":
		return FallbackMerge, nil
	case "per-series", "perseries", "series":
		return FallbackPerSeries, nil
	}
	return FallbackMerge, fmt.Errorf("unknown channel fallback policy %q", s)
}

// UnmarshalText lets the policy be given by name in TOML.
func (p *FallbackPolicy) UnmarshalText(b []byte) error {
	parsed, err := ParseFallbackPolicy(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalText writes the policy name.
func (p FallbackPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ChannelKey is the identity of a channel.  Two channels are the same channel if
// and only if their keys are equal.
type ChannelKey struct {
	Name            string
	Fallback        bool // name was derived from the channel index
	EmissionNM      float64
	HasEmission     bool
	ExcitationNM    float64
	HasExcitation   bool
	SamplesPerPixel int
	RGB             bool

	// Scope of a fallback channel under FallbackPerSeries.
	Scoped bool
	File   FileID
	Series int
}

func (k ChannelKey) String() string {
	s := k.Name
	if k.HasEmission {
		s += fmt.Sprintf(" em %gnm", k.EmissionNM)
	}
	if k.HasExcitation {
		s += fmt.Sprintf(" ex %gnm", k.ExcitationNM)
	}
	if k.RGB {
		s += " rgb"
	}
	if k.Scoped {
		s += fmt.Sprintf(" [file %d series %d]", k.File, k.Series)
	}
	return s
}

// FallbackChannelName returns the name used for a channel without one.
func FallbackChannelName(index int) string {
	return "ch" + strconv.Itoa(index)
}

func wavelength(l bv.Length) (float64, bool) {
	if l.Value == 0 || l.Unit == bv.UnitUnknown {
		return 0, false
	}
	if nm, ok := l.In(bv.Nanometer); ok {
		// unit conversion must not split one wavelength into two identities
		return math.Round(nm*1e6) / 1e6, true
	}
	return l.Value, true
}

// ChannelRegistry assigns channel ids in first-seen order.  It is not safe for
// concurrent use; assembly consults it from a single goroutine.
type ChannelRegistry struct {
	policy   FallbackPolicy
	ids      map[ChannelKey]ChannelID
	channels []Channel
}

// NewChannelRegistry returns an empty registry.
func NewChannelRegistry(policy FallbackPolicy) *ChannelRegistry {
	return &ChannelRegistry{policy: policy, ids: make(map[ChannelKey]ChannelID)}
}

// Key returns the identity of a channel of a series.
func (r *ChannelRegistry) Key(file FileID, series int, meta reader.SeriesMeta, c int) ChannelKey {
	cm := meta.Channel(c)
	k := ChannelKey{
		Name:            cm.Name,
		SamplesPerPixel: meta.SamplesPerPixel,
		RGB:             meta.RGB,
	}
	if k.Name == "" {
		k.Name = FallbackChannelName(c)
		k.Fallback = true
		if r.policy == FallbackPerSeries {
			k.Scoped = true
			k.File = file
			k.Series = series
		}
	}
	k.EmissionNM, k.HasEmission = wavelength(cm.Emission)
	k.ExcitationNM, k.HasExcitation = wavelength(cm.Excitation)
	return k
}

// Resolve returns the id of a channel of a series, registering it if the identity
// has not been seen.
func (r *ChannelRegistry) Resolve(file FileID, series int, meta reader.SeriesMeta, c int) ChannelID {
	k := r.Key(file, series, meta, c)
	if id, found := r.ids[k]; found {
		ch := &r.channels[id]
		if !ch.HasColor {
			if cm := meta.Channel(c); cm.HasColor() {
				ch.Color, ch.HasColor = cm.Color, true
			}
		}
		return id
	}
	id := ChannelID(len(r.channels))
	ch := Channel{ID: id, Name: k.Name, Key: k}
	if cm := meta.Channel(c); cm.HasColor() {
		ch.Color, ch.HasColor = cm.Color, true
	}
	r.ids[k] = id
	r.channels = append(r.channels, ch)
	return id
}

// Channels returns the registered channels indexed by id.
func (r *ChannelRegistry) Channels() []Channel {
	return append([]Channel(nil), r.channels...)
}

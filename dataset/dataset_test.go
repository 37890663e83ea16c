package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/janelia-flyem/bioview/bv"
	"github.com/janelia-flyem/bioview/reader"
	"github.com/janelia-flyem/bioview/reader/synth"
	"github.com/janelia-flyem/bioview/spatial"
)

func channels(names ...string) []synth.ChannelSpec {
	var specs []synth.ChannelSpec
	for _, name := range names {
		specs = append(specs, synth.ChannelSpec{Name: name})
	}
	return specs
}

func series(sizeT int, chans []synth.ChannelSpec) synth.SeriesSpec {
	return synth.SeriesSpec{
		Size:      [3]int32{64, 64, 4},
		SizeC:     len(chans),
		SizeT:     sizeT,
		PixelType: bv.PixelUint16,
		Channels:  chans,
		VoxelSize: []bv.Length{bv.L(0.5, bv.Micrometer), bv.L(0.5, bv.Micrometer), bv.L(2, bv.Micrometer)},
	}
}

func register(name string, s ...synth.SeriesSpec) string {
	path, _ := synth.Register(name, synth.FileSpec{Series: s})
	return path
}

// checkPartition verifies every view is registered or missing, never both.
func checkPartition(t *testing.T, seq *Sequence) {
	t.Helper()
	seen := make(map[ViewID]string)
	for _, r := range seq.Registrations {
		if prior, found := seen[r.View]; found {
			t.Fatalf("view %s registered twice (%s)\n", r.View, prior)
		}
		seen[r.View] = "registered"
	}
	for _, v := range seq.Missing {
		if prior, found := seen[v]; found {
			t.Fatalf("view %s missing and %s\n", v, prior)
		}
		seen[v] = "missing"
	}
	if len(seen) != seq.Timepoints*len(seq.Setups) {
		t.Fatalf("expected %d views, got %d\n", seq.Timepoints*len(seq.Setups), len(seen))
	}
}

func TestFiveAndThreeTimepoints(t *testing.T) {
	a := register("dataset-5t", series(5, channels("DAPI", "GFP")))
	b := register("dataset-3t", series(3, channels("DAPI", "GFP")))
	seq, err := Assemble(context.Background(), Inputs(a, b), Options{})
	if err != nil {
		t.Fatalf("assembly failed: %v\n", err)
	}
	if seq.Timepoints != 5 {
		t.Errorf("expected 5 timepoints, got %d\n", seq.Timepoints)
	}
	if len(seq.Setups) != 4 || len(seq.Channels) != 2 {
		t.Fatalf("expected 4 setups over 2 channels, got %d and %d\n", len(seq.Setups), len(seq.Channels))
	}
	if len(seq.Registrations) != 16 || len(seq.Missing) != 4 {
		t.Errorf("expected 16 registered and 4 missing views, got %d and %d\n", len(seq.Registrations), len(seq.Missing))
	}
	for _, v := range seq.Missing {
		if v.Timepoint < 3 || seq.Setups[v.Setup].File != 1 {
			t.Errorf("unexpected missing view %s\n", v)
		}
	}
	if !seq.IsMissing(ViewID{Timepoint: 4, Setup: 3}) || seq.IsMissing(ViewID{Timepoint: 2, Setup: 3}) {
		t.Errorf("bad missing view lookup\n")
	}
	if seq.IsMissing(ViewID{Timepoint: 5, Setup: 0}) {
		t.Errorf("views outside the dataset are not missing\n")
	}
	checkPartition(t, seq)

	for i, setup := range seq.Setups {
		if setup.ID != SetupID(i) {
			t.Errorf("setup %d has id %d\n", i, setup.ID)
		}
	}
	if seq.Setups[0].Channel != seq.Setups[2].Channel || seq.Setups[1].Channel != seq.Setups[3].Channel {
		t.Errorf("channels were not deduplicated across files\n")
	}
	if seq.Setups[2].Tile != 1 || seq.Setups[0].Tile != 0 {
		t.Errorf("expected one tile per series\n")
	}

	transform, ok := seq.Transform(ViewID{Timepoint: 1, Setup: 2})
	if !ok || !transform.ApproxEqual(spatial.Affine3D{{0.5, 0, 0, 0}, {0, 0.5, 0, 0}, {0, 0, 2, 0}}, 1e-12) {
		t.Errorf("bad transform %s\n", transform)
	}
	if _, ok := seq.Transform(ViewID{Timepoint: 3, Setup: 2}); ok {
		t.Errorf("missing view should have no transform\n")
	}

	byChannel := seq.SetupsByChannel()
	if !reflect.DeepEqual(byChannel[0], []SetupID{0, 2}) || !reflect.DeepEqual(byChannel[1], []SetupID{1, 3}) {
		t.Errorf("bad channel grouping %v\n", byChannel)
	}
	byFile := seq.SetupsByFile()
	if !reflect.DeepEqual(byFile[1], []SetupID{2, 3}) {
		t.Errorf("bad file grouping %v\n", byFile)
	}
}

func TestNaming(t *testing.T) {
	named := series(1, channels("GFP", ""))
	named.Name = "embryo"
	unnamed := series(1, channels(""))
	multi := register("dataset-names-multi.ome.tif", named, unnamed)
	single := register("dataset-names-single.ome.tif", unnamed)

	seq, err := Assemble(context.Background(), Inputs(multi, single), Options{})
	if err != nil {
		t.Fatalf("assembly failed: %v\n", err)
	}
	var names []string
	for _, setup := range seq.Setups {
		names = append(names, setup.Name)
	}
	expected := []string{
		"embryo-s0-GFP",
		"embryo-s0-ch1",
		"dataset-names-multi-s1-ch0",
		"dataset-names-single-ch0",
	}
	if !reflect.DeepEqual(names, expected) {
		t.Errorf("expected names %v, got %v\n", expected, names)
	}
}

func TestImageName(t *testing.T) {
	tests := []struct {
		path     string
		name     string
		series   int
		count    int
		expected string
	}{
		{"/data/cells.ome.tiff", "", 0, 1, "cells"},
		{"/data/cells.czi", "", 2, 3, "cells-s2"},
		{"/data/cells.lif", "Position 1", 0, 1, "Position 1"},
		{"/data/cells.lif", "Position 1", 1, 2, "Position 1-s1"},
		{"plate", "", 0, 1, "plate"},
	}
	for _, tc := range tests {
		got := ImageName(tc.path, reader.SeriesMeta{Name: tc.name}, tc.series, tc.count)
		if got != tc.expected {
			t.Errorf("ImageName(%q, %q, %d, %d) = %q, expected %q\n", tc.path, tc.name, tc.series, tc.count, got, tc.expected)
		}
	}
}

func TestChannelIdentity(t *testing.T) {
	r := NewChannelRegistry(FallbackMerge)
	meta := func(sets ...func(*reader.SeriesMeta)) reader.SeriesMeta {
		m := reader.SeriesMeta{SizeC: 1, SamplesPerPixel: 1, Channels: []reader.ChannelMeta{{Name: "GFP", Emission: bv.L(510, bv.Nanometer)}}}
		for _, set := range sets {
			set(&m)
		}
		return m
	}

	gfp := r.Resolve(0, 0, meta(), 0)
	if again := r.Resolve(1, 3, meta(), 0); again != gfp {
		t.Errorf("equal channels got ids %d and %d\n", gfp, again)
	}
	// same wavelength in other units is the same channel
	um := r.Resolve(2, 0, meta(func(m *reader.SeriesMeta) { m.Channels[0].Emission = bv.L(0.51, bv.Micrometer) }), 0)
	if um != gfp {
		t.Errorf("emission of 0.51 um should equal 510 nm\n")
	}

	differ := []func(*reader.SeriesMeta){
		func(m *reader.SeriesMeta) { m.Channels[0].Emission = bv.L(520, bv.Nanometer) },
		func(m *reader.SeriesMeta) { m.Channels[0].Emission = bv.Length{} },
		func(m *reader.SeriesMeta) { m.Channels[0].Excitation = bv.L(488, bv.Nanometer) },
		func(m *reader.SeriesMeta) { m.Channels[0].Name = "mCherry" },
		func(m *reader.SeriesMeta) { m.RGB, m.SamplesPerPixel = true, 3 },
	}
	ids := map[ChannelID]bool{gfp: true}
	for i, set := range differ {
		id := r.Resolve(0, 0, meta(set), 0)
		if ids[id] {
			t.Errorf("variant %d should be a new channel, got id %d\n", i, id)
		}
		ids[id] = true
	}
	chans := r.Channels()
	if len(chans) != 6 {
		t.Fatalf("expected 6 channels, got %d\n", len(chans))
	}
	for i, ch := range chans {
		if ch.ID != ChannelID(i) {
			t.Errorf("channel %d has id %d\n", i, ch.ID)
		}
	}
	if chans[gfp].Name != "GFP" || !chans[gfp].Key.HasEmission || chans[gfp].Key.EmissionNM != 510 {
		t.Errorf("bad channel %+v\n", chans[gfp])
	}
}

func TestFallbackPolicy(t *testing.T) {
	unnamed := reader.SeriesMeta{SizeC: 2, SamplesPerPixel: 1}

	merge := NewChannelRegistry(FallbackMerge)
	a := merge.Resolve(0, 0, unnamed, 0)
	b := merge.Resolve(1, 0, unnamed, 0)
	c := merge.Resolve(1, 0, unnamed, 1)
	if a != b || a == c {
		t.Errorf("merge policy: expected ch0 merged and ch1 distinct, got %d %d %d\n", a, b, c)
	}
	if merge.Channels()[a].Name != "ch0" {
		t.Errorf("expected fallback name ch0, got %q\n", merge.Channels()[a].Name)
	}

	scoped := NewChannelRegistry(FallbackPerSeries)
	a = scoped.Resolve(0, 0, unnamed, 0)
	b = scoped.Resolve(1, 0, unnamed, 0)
	d := scoped.Resolve(0, 1, unnamed, 0)
	e := scoped.Resolve(0, 0, unnamed, 0)
	if a == b || a == d || a != e {
		t.Errorf("per-series policy: expected scoped ids, got %d %d %d %d\n", a, b, d, e)
	}
	named := reader.SeriesMeta{SizeC: 1, Channels: []reader.ChannelMeta{{Name: "GFP"}}}
	if scoped.Resolve(0, 0, named, 0) != scoped.Resolve(5, 2, named, 0) {
		t.Errorf("per-series policy must still merge named channels\n")
	}

	for _, s := range []string{"merge", "per-series", ""} {
		p, err := ParseFallbackPolicy(s)
		if err != nil {
			t.Errorf("couldn't parse %q: %v\n", s, err)
		}
		if s != "" && p.String() != s {
			t.Errorf("policy %q printed as %q\n", s, p)
		}
	}
	if _, err := ParseFallbackPolicy("split"); err == nil {
		t.Errorf("expected error for unknown policy\n")
	}
}

func TestPolicyInAssembly(t *testing.T) {
	a := register("dataset-policy-a", series(1, channels("")))
	b := register("dataset-policy-b", series(1, channels("")))
	seq, err := Assemble(context.Background(), Inputs(a, b), Options{Fallback: FallbackMerge})
	if err != nil {
		t.Fatalf("assembly failed: %v\n", err)
	}
	if len(seq.Channels) != 1 {
		t.Errorf("merge policy should give 1 channel, got %d\n", len(seq.Channels))
	}
	seq, err = Assemble(context.Background(), Inputs(a, b), Options{Fallback: FallbackPerSeries})
	if err != nil {
		t.Fatalf("assembly failed: %v\n", err)
	}
	if len(seq.Channels) != 2 {
		t.Errorf("per-series policy should give 2 channels, got %d\n", len(seq.Channels))
	}
}

func TestDeterministicAssembly(t *testing.T) {
	var paths []string
	for i := 0; i < 12; i++ {
		chans := channels("DAPI", "GFP")
		if i%3 == 0 {
			chans = channels("", "mCherry", "GFP")
		}
		s := series(1+i%4, chans)
		paths = append(paths, register("dataset-det-"+strings.Repeat("x", i), s, series(2, channels("BF"))))
	}
	serial, err := Assemble(context.Background(), Inputs(paths...), Options{Parallelism: 1})
	if err != nil {
		t.Fatalf("serial assembly failed: %v\n", err)
	}
	for run := 0; run < 3; run++ {
		parallel, err := Assemble(context.Background(), Inputs(paths...), Options{Parallelism: 8})
		if err != nil {
			t.Fatalf("parallel assembly failed: %v\n", err)
		}
		if !reflect.DeepEqual(serial, parallel) {
			t.Fatalf("parallel assembly differs from serial assembly\n")
		}
	}
	checkPartition(t, serial)
}

func TestFailureIsolation(t *testing.T) {
	good := register("dataset-iso-good", series(2, channels("GFP")))
	badOpen, _ := synth.Register("dataset-iso-open", synth.FileSpec{FailOpen: true, Series: []synth.SeriesSpec{series(1, channels("GFP"))}})
	badMeta, _ := synth.Register("dataset-iso-meta", synth.FileSpec{FailMetadata: true, Series: []synth.SeriesSpec{series(1, channels("GFP"))}})
	later := register("dataset-iso-later", series(2, channels("GFP")))

	seq, err := Assemble(context.Background(), Inputs(good, badOpen, "/no/such/file.czi", badMeta, later), Options{})
	if err != nil {
		t.Fatalf("assembly should survive bad files: %v\n", err)
	}
	if len(seq.Files) != 5 || len(seq.Failures) != 3 {
		t.Fatalf("expected 5 files with 3 failures, got %d and %d\n", len(seq.Files), len(seq.Failures))
	}
	for i, f := range seq.Failures {
		if expected := []FileID{1, 2, 3}[i]; f.File != expected || f.Error == "" {
			t.Errorf("bad failure record %+v\n", f)
		}
	}
	if len(seq.Setups) != 2 || seq.Setups[1].File != 4 {
		t.Errorf("expected setups of files 0 and 4, got %+v\n", seq.Setups)
	}
	if seq.Setups[0].Channel != seq.Setups[1].Channel {
		t.Errorf("channel ids should not be affected by failed files\n")
	}

	_, err = Assemble(context.Background(), Inputs(badOpen, badMeta), Options{})
	if !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData when every file fails, got %v\n", err)
	}
	if _, err := Assemble(context.Background(), nil, Options{}); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData without inputs, got %v\n", err)
	}
}

func TestCloseFailureIsolated(t *testing.T) {
	good := register("dataset-close-good", series(2, channels("GFP")))
	badClose, _ := synth.Register("dataset-close-bad", synth.FileSpec{FailClose: true, Series: []synth.SeriesSpec{series(3, channels("DAPI"))}})

	seq, err := Assemble(context.Background(), Inputs(badClose, good), Options{})
	if err != nil {
		t.Fatalf("assembly should survive a file that fails to close: %v\n", err)
	}
	if len(seq.Failures) != 1 || seq.Failures[0].File != 0 || !strings.Contains(seq.Failures[0].Error, "clos") {
		t.Fatalf("expected close failure of file 0 to be recorded, got %+v\n", seq.Failures)
	}
	if len(seq.Series) != 1 || len(seq.Setups) != 1 || seq.Setups[0].File != 1 {
		t.Errorf("file that failed to close should contribute nothing, got %d series and setups %+v\n", len(seq.Series), seq.Setups)
	}
	if len(seq.Channels) != 1 || seq.Channels[0].Name != "GFP" || seq.Timepoints != 2 {
		t.Errorf("unexpected channels %+v or %d timepoints\n", seq.Channels, seq.Timepoints)
	}
}

func TestUndecidablePixelType(t *testing.T) {
	odd := series(1, channels("GFP"))
	odd.Undecidable = true
	good := register("dataset-type-good", series(1, channels("GFP")))
	bad := register("dataset-type-bad", series(1, channels("GFP")), odd)

	_, err := Assemble(context.Background(), Inputs(good, bad), Options{})
	if !errors.Is(err, ErrPixelType) {
		t.Fatalf("expected ErrPixelType, got %v\n", err)
	}
	if !strings.Contains(err.Error(), bad) || !strings.Contains(err.Error(), "series 1") {
		t.Errorf("error should name file and series: %v\n", err)
	}
}

func TestPerFileConvention(t *testing.T) {
	s := series(1, channels("GFP"))
	s.Position = []bv.Length{bv.L(10, bv.Micrometer), bv.L(20, bv.Micrometer), bv.L(0, bv.Micrometer)}
	a := register("dataset-conv-a", s)
	b := register("dataset-conv-b", s)
	inputs := Inputs(a, b)
	inputs[1].Convention = &spatial.Convention{IgnorePosition: true}

	seq, err := Assemble(context.Background(), inputs, Options{Convention: spatial.Convention{PositionUnit: bv.L(1, bv.Millimeter)}})
	if err != nil {
		t.Fatalf("assembly failed: %v\n", err)
	}
	ta := seq.Series[0].Transform
	tb := seq.Series[1].Transform
	if ta[0][3] < 0.0099 || ta[0][3] > 0.0101 {
		t.Errorf("expected position in millimeters, got %s\n", ta)
	}
	if tb[0][3] != 0 || tb[1][3] != 0 {
		t.Errorf("expected ignored position for second file, got %s\n", tb)
	}
}

func TestSequenceJSON(t *testing.T) {
	s := series(2, []synth.ChannelSpec{{Name: "GFP", Color: "00ff00"}})
	path := register("dataset-json", s)
	seq, err := Assemble(context.Background(), Inputs(path), Options{})
	if err != nil {
		t.Fatalf("assembly failed: %v\n", err)
	}
	if !seq.Setups[0].HasColor || seq.Setups[0].Color != bv.NewARGB(0, 0xff, 0) || !seq.Channels[0].HasColor {
		t.Errorf("channel color not recorded: %+v\n", seq.Setups[0])
	}
	b, err := json.Marshal(seq)
	if err != nil {
		t.Fatalf("json: %v\n", err)
	}
	var decoded struct {
		Setups []struct {
			Name      string
			PixelType string
		}
		Registrations []struct {
			Transform []float64
		}
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("couldn't decode sequence json: %v\n", err)
	}
	if len(decoded.Setups) != 1 || decoded.Setups[0].PixelType != "uint16" || decoded.Setups[0].Name != "dataset-json-GFP" {
		t.Errorf("bad setup json: %s\n", b)
	}
	if len(decoded.Registrations) != 2 || len(decoded.Registrations[0].Transform) != 12 {
		t.Errorf("bad registration json: %s\n", b)
	}
	if !strings.Contains(seq.Summary(), "1 setups") {
		t.Errorf("bad summary %q\n", seq.Summary())
	}
}

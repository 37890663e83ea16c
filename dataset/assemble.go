package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/bioview/bv"
	"github.com/janelia-flyem/bioview/reader"
	"github.com/janelia-flyem/bioview/spatial"
)

// Input is a file to assemble with an optional convention for its spatial metadata.
type Input struct {
	Path       string
	Convention *spatial.Convention // Options.Convention if nil
}

// Inputs returns inputs using the default convention.
func Inputs(paths ...string) []Input {
	inputs := make([]Input, len(paths))
	for i, path := range paths {
		inputs[i].Path = path
	}
	return inputs
}

// Options control assembly.
type Options struct {
	Convention  spatial.Convention
	Fallback    FallbackPolicy
	Parallelism int // # of files scanned at once, GOMAXPROCS if zero
}

// scan is the metadata read from one file.
type scan struct {
	series []reader.SeriesMeta
	err    error
}

func scanFile(path string) (result scan) {
	dec, err := reader.Open(path)
	if err != nil {
		result.err = err
		return
	}
	defer func() {
		err := dec.Close()
		switch {
		case err == nil:
		case result.err == nil:
			result.err = fmt.Errorf("closing: %w", err)
		default:
			bv.Warningf("Error closing %q after failed metadata read: %v\n", path, err)
		}
	}()
	n := dec.SeriesCount()
	for i := 0; i < n; i++ {
		meta, err := dec.Metadata(i)
		if err != nil {
			result.err = fmt.Errorf("series %d: %w", i, err)
			return
		}
		result.series = append(result.series, meta)
	}
	return
}

// ImageName returns the name of a series: its reported name, or else the file name
// without extension and any ".ome", suffixed with "-s<series>" when the file holds
// more than one series.
func ImageName(path string, meta reader.SeriesMeta, series, seriesCount int) string {
	name := meta.Name
	if name == "" {
		name = filepath.Base(path)
		name = strings.TrimSuffix(name, filepath.Ext(name))
		name = strings.Replace(name, ".ome", "", 1)
	}
	if seriesCount > 1 {
		name = fmt.Sprintf("%s-s%d", name, series)
	}
	return name
}

// Assemble reads the metadata of every input and builds a Sequence.  Files are
// scanned in parallel; ids are allocated in input order, so the result does not
// depend on the parallelism.  Files that cannot be read are recorded as failures.
// A series whose pixel type cannot be decided aborts assembly.
func Assemble(ctx context.Context, inputs []Input, opts Options) (*Sequence, error) {
	if len(inputs) == 0 {
		return nil, ErrNoData
	}
	timedLog := bv.NewTimeLog()

	scans := make([]scan, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	limit := opts.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(limit)
	for i := range inputs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scans[i] = scanFile(inputs[i].Path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seq := new(Sequence)
	registry := NewChannelRegistry(opts.Fallback)
	tile := 0
	for i, in := range inputs {
		fileID := FileID(i)
		seq.Files = append(seq.Files, File{ID: fileID, Path: in.Path})
		if scans[i].err != nil {
			bv.Errorf("Skipping %q: %v\n", in.Path, scans[i].err)
			seq.Failures = append(seq.Failures, Failure{File: fileID, Path: in.Path, Error: scans[i].err.Error()})
			continue
		}
		conv := opts.Convention
		if in.Convention != nil {
			conv = *in.Convention
		}
		numSeries := len(scans[i].series)
		for si, meta := range scans[i].series {
			pixelType := meta.ResolvePixelType()
			if pixelType == bv.PixelUnknown {
				return nil, fmt.Errorf("%w: file %q series %d (%d bits, float %t, rgb %t)",
					ErrPixelType, in.Path, si, meta.BitsPerSample, meta.FloatingPoint, meta.RGB)
			}
			geom := spatial.Geometry{Dims: meta.Size, VoxelSize: meta.VoxelSize, Position: meta.Position}
			series := Series{
				ID:        SeriesID(len(seq.Series)),
				File:      fileID,
				Index:     si,
				Name:      ImageName(in.Path, meta, si, numSeries),
				Size:      meta.Size,
				SizeC:     meta.SizeC,
				SizeT:     meta.SizeT,
				PixelType: pixelType,
				RGB:       meta.RGB,
				Tile:      tile,
				VoxelSize: meta.VoxelSize,
				Transform: spatial.Resolve(geom, conv),
			}
			tile++
			if series.SizeT > seq.Timepoints {
				seq.Timepoints = series.SizeT
			}
			seq.Series = append(seq.Series, series)

			for c := 0; c < meta.SizeC; c++ {
				chID := registry.Resolve(fileID, si, meta, c)
				chName := meta.Channel(c).Name
				if chName == "" {
					chName = FallbackChannelName(c)
				}
				setup := Setup{
					ID:           SetupID(len(seq.Setups)),
					Name:         series.Name + "-" + chName,
					File:         fileID,
					Series:       series.ID,
					SeriesIndex:  si,
					ChannelIndex: c,
					Channel:      chID,
					Tile:         series.Tile,
					Size:         meta.Size,
					VoxelSize:    meta.VoxelSize,
					PixelType:    pixelType,
				}
				if cm := meta.Channel(c); cm.HasColor() {
					setup.Color, setup.HasColor = cm.Color, true
				}
				seq.Setups = append(seq.Setups, setup)
			}
			bv.Debugf("%s: series %d %q has %d channels and %d timepoints\n", in.Path, si, series.Name, meta.SizeC, meta.SizeT)
		}
	}
	if len(seq.Failures) == len(inputs) {
		return nil, fmt.Errorf("%w: %d of %d files failed, first: %s", ErrNoData, len(seq.Failures), len(inputs), seq.Failures[0].Error)
	}
	seq.Channels = registry.Channels()

	// each view of the global timepoint axis is registered or missing
	setupIdx := 0
	for _, series := range seq.Series {
		first := setupIdx
		for setupIdx < len(seq.Setups) && seq.Setups[setupIdx].Series == series.ID {
			setupIdx++
		}
		for t := 0; t < seq.Timepoints; t++ {
			for id := first; id < setupIdx; id++ {
				view := ViewID{Timepoint: t, Setup: SetupID(id)}
				if t < series.SizeT {
					seq.Registrations = append(seq.Registrations, Registration{View: view, Transform: series.Transform})
				} else {
					seq.Missing = append(seq.Missing, view)
				}
			}
		}
	}
	seq.index()

	timedLog.Infof("Assembled %s", seq.Summary())
	return seq, nil
}

/*
	Package loader gives access to the pixels of an assembled dataset.  Pixel sources
	are created on first use, one per setup, and share one reader handle per file.
*/
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/janelia-flyem/bioview/bv"
	"github.com/janelia-flyem/bioview/cache"
	"github.com/janelia-flyem/bioview/dataset"
	"github.com/janelia-flyem/bioview/reader"
	"github.com/janelia-flyem/bioview/source"
)

// DefaultFetcherThreads is the # of background fetchers used when none is given.
const DefaultFetcherThreads = 4

var (
	// ErrMissingView is returned for views that have no data.
	ErrMissingView = errors.New("missing view")

	// ErrClosed is returned after the loader is closed.
	ErrClosed = errors.New("loader is closed")
)

// Mode selects how Tile waits for data.
type Mode uint8

const (
	// Blocking waits until the tile is filled.
	Blocking Mode = iota

	// NonBlocking returns a cached tile or an invalid placeholder immediately and
	// fills the tile in the background.
	NonBlocking
)

// Options configure the sources of a Loader.
type Options struct {
	TileSize       bv.Point3d
	SwapZC         bool
	Is2D           bool
	MaxCells       int         // per source
	Spill          cache.Spill // shared by all sources, may be nil
	FetcherThreads int
}

type handleEntry struct {
	mu     sync.Mutex
	handle *reader.Handle
}

type sourceEntry struct {
	mu  sync.Mutex
	src source.PixelSource
}

// Loader creates and holds the pixel sources of a Sequence.
type Loader struct {
	seq  *dataset.Sequence
	opts Options

	handles []handleEntry // by file
	sources []sourceEntry // by setup
	queue   *fetchQueue

	mu     sync.RWMutex
	closed bool
}

// New returns a loader for the sequence.  Every setup must have a pixel type.
func New(seq *dataset.Sequence, opts Options) (*Loader, error) {
	for _, setup := range seq.Setups {
		if setup.PixelType == bv.PixelUnknown {
			return nil, fmt.Errorf("setup %d (%s) has no pixel type", setup.ID, setup.Name)
		}
		if int(setup.File) >= len(seq.Files) {
			return nil, fmt.Errorf("setup %d (%s) refers to unknown file %d", setup.ID, setup.Name, setup.File)
		}
	}
	if opts.FetcherThreads <= 0 {
		opts.FetcherThreads = DefaultFetcherThreads
	}
	return &Loader{
		seq:     seq,
		opts:    opts,
		handles: make([]handleEntry, len(seq.Files)),
		sources: make([]sourceEntry, len(seq.Setups)),
		queue:   newFetchQueue(opts.FetcherThreads),
	}, nil
}

// Sequence returns the dataset served by the loader.
func (l *Loader) Sequence() *dataset.Sequence {
	return l.seq
}

func (l *Loader) handle(file dataset.FileID) (*reader.Handle, error) {
	e := &l.handles[file]
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle != nil {
		return e.handle, nil
	}
	h, err := reader.OpenHandle(l.seq.Files[file].Path)
	if err != nil {
		return nil, err
	}
	e.handle = h
	return h, nil
}

// Source returns the pixel source of a setup, creating it on first use.  Creation
// is atomic per setup; a failed creation is retried by later calls.
func (l *Loader) Source(id dataset.SetupID) (source.PixelSource, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}
	setup, found := l.seq.Setup(id)
	if !found {
		return nil, fmt.Errorf("no setup %d in dataset", id)
	}
	e := &l.sources[id]
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src != nil {
		return e.src, nil
	}
	h, err := l.handle(setup.File)
	if err != nil {
		return nil, fmt.Errorf("setup %d (%s): %w", id, setup.Name, err)
	}
	src, err := source.Open(h, setup.PixelType, source.Options{
		Name:     setup.Name,
		Series:   setup.SeriesIndex,
		Channel:  setup.ChannelIndex,
		TileSize: l.opts.TileSize,
		SwapZC:   l.opts.SwapZC,
		Is2D:     l.opts.Is2D,
		MaxCells: l.opts.MaxCells,
		Spill:    l.opts.Spill,
	})
	if err != nil {
		return nil, err
	}
	e.src = src
	return src, nil
}

// Tile returns a tile of a view.  In NonBlocking mode a tile that is not cached is
// returned as an invalid placeholder and queued for a background fill.
func (l *Loader) Tile(ctx context.Context, view dataset.ViewID, level int, coord bv.TileCoord, mode Mode) (source.Cell, error) {
	if !l.seq.Valid(view) {
		return nil, fmt.Errorf("view %s is outside the dataset", view)
	}
	if l.seq.IsMissing(view) {
		return nil, fmt.Errorf("%w %s", ErrMissingView, view)
	}
	src, err := l.Source(view.Setup)
	if err != nil {
		return nil, err
	}
	if mode == Blocking {
		return src.Tile(ctx, view.Timepoint, level, coord)
	}
	if cell, found := src.PeekCell(view.Timepoint, level, coord); found {
		return cell, nil
	}
	placeholder, err := src.Placeholder(view.Timepoint, level, coord)
	if err != nil {
		return nil, err
	}
	l.queue.enqueue(fetchRequest{key: fetchKey{view: view, level: level, tile: coord}, src: src})
	return placeholder, nil
}

// Pending returns the # of background fills queued or running.
func (l *Loader) Pending() int {
	return l.queue.numPending()
}

// Stats returns the cache statistics of every source created so far.
func (l *Loader) Stats() []cache.Stats {
	var stats []cache.Stats
	for i := range l.sources {
		e := &l.sources[i]
		e.mu.Lock()
		if e.src != nil {
			stats = append(stats, e.src.Stats())
		}
		e.mu.Unlock()
	}
	return stats
}

// Close finishes queued fills, then closes every source and reader handle.
func (l *Loader) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.queue.close()
	var firstErr error
	for i := range l.sources {
		if src := l.sources[i].src; src != nil {
			if err := src.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	for i := range l.handles {
		if h := l.handles[i].handle; h != nil {
			if err := h.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

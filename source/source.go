/*
	Package source turns the block reads of a reader.Handle into a randomly addressable,
	tiled, cached, multi-resolution image of one channel of one series.

	A cache miss takes the handle lock, re-checks the cache, reads one plane rectangle
	per Z slice of the tile, decodes the bytes into typed samples and publishes the
	block.  Concurrent misses for the same tile are coalesced, so a tile is decoded at
	most once while it stays cached.  Reads of one file are serialized by its handle.
*/
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/janelia-flyem/bioview/bv"
	"github.com/janelia-flyem/bioview/cache"
	"github.com/janelia-flyem/bioview/reader"
)

// ErrClosed is returned by tile requests on a closed source.
var ErrClosed = errors.New("pixel source is closed")

// Options configure a Source.
type Options struct {
	Name    string
	Series  int
	Channel int

	// TileSize is the nominal tile size.  Zero X or Y components use the decoder's
	// optimal tile size and a zero Z component uses 1.  The size is clamped to the
	// image at each level.
	TileSize bv.Point3d

	// SwapZC composes plane indices as (channel, z, t) for files whose Z and channel
	// axes are mislabeled.
	SwapZC bool

	// Is2D collapses Z to a single plane.
	Is2D bool

	MaxCells int         // memory tier capacity, cache.DefaultMaxCells if zero
	Spill    cache.Spill // optional spill tier shared with other sources
}

type level struct {
	dims     bv.Point3d
	tileSize bv.Point3d
}

// Source is a tiled, cached pixel source delivering samples of type T.
type Source[T Sample] struct {
	name    string
	handle  *reader.Handle
	series  int
	channel int
	sizeT   int
	swapZC  bool
	is2D    bool
	meta    reader.SeriesMeta
	levels  []level
	decode  decodeFunc[T]

	cache *cache.Cache[*Block[T]]
	group singleflight.Group

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// New returns a source for one channel of a series of the handle's file.  The
// series must deliver samples of type T.
func New[T Sample](h *reader.Handle, opts Options) (*Source[T], error) {
	s := &Source[T]{
		name:    opts.Name,
		handle:  h,
		series:  opts.Series,
		channel: opts.Channel,
		swapZC:  opts.SwapZC,
		is2D:    opts.Is2D,
	}
	if s.name == "" {
		s.name = fmt.Sprintf("%s-s%d-c%d", h.Path(), opts.Series, opts.Channel)
	}
	err := h.Do(func(dec reader.Decoder) error {
		meta, err := dec.Metadata(opts.Series)
		if err != nil {
			return err
		}
		s.meta = meta
		if err := dec.SetSeries(opts.Series); err != nil {
			return err
		}
		numLevels := dec.ResolutionCount()
		if numLevels < 1 {
			numLevels = 1
		}
		for l := 0; l < numLevels; l++ {
			if err := dec.SetResolution(l); err != nil {
				return err
			}
			dims := dec.Size()
			if s.is2D {
				dims[2] = 1
			}
			tw, th := dec.OptimalTileSize()
			tileSize := opts.TileSize
			if tileSize[0] <= 0 {
				tileSize[0] = tw
			}
			if tileSize[1] <= 0 {
				tileSize[1] = th
			}
			if tileSize[2] <= 0 {
				tileSize[2] = 1
			}
			tileSize = tileSize.Min(dims).Max(bv.Point3d{1, 1, 1})
			s.levels = append(s.levels, level{dims: dims, tileSize: tileSize})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to initialize source %q: %w", s.name, err)
	}

	want := PixelTypeOf[T]()
	if got := s.meta.ResolvePixelType(); got != want {
		return nil, fmt.Errorf("source %q: series delivers %s samples, not %s", s.name, got, want)
	}
	if opts.Channel < 0 || opts.Channel >= s.meta.SizeC {
		return nil, fmt.Errorf("source %q: channel %d out of range [0,%d)", s.name, opts.Channel, s.meta.SizeC)
	}
	s.sizeT = s.meta.SizeT
	s.decode = newDecodeFunc[T](s.meta.LittleEndian, s.meta.Interleaved)
	s.cache = cache.New[*Block[T]](s.name, opts.MaxCells, opts.Spill, blockCodec[T]{})
	bv.Debugf("Created %s source %q with %d levels, full resolution %s, tile %s\n",
		want, s.name, len(s.levels), s.levels[0].dims, s.levels[0].tileSize)
	return s, nil
}

func (s *Source[T]) Name() string {
	return s.name
}

func (s *Source[T]) PixelType() bv.PixelType {
	return PixelTypeOf[T]()
}

func (s *Source[T]) LevelCount() int {
	return len(s.levels)
}

// Timepoints returns the # of timepoints of the series.
func (s *Source[T]) Timepoints() int {
	return s.sizeT
}

// LevelDims returns the image size at a level, or a zero size for a bad level.
func (s *Source[T]) LevelDims(l int) bv.Point3d {
	if l < 0 || l >= len(s.levels) {
		return bv.Point3d{}
	}
	return s.levels[l].dims
}

func (s *Source[T]) FullResolutionDims() bv.Point3d {
	return s.levels[0].dims
}

// TileSize returns the nominal tile size at a level.  Tiles at the far edges may be
// smaller.
func (s *Source[T]) TileSize(l int) bv.Point3d {
	if l < 0 || l >= len(s.levels) {
		return bv.Point3d{}
	}
	return s.levels[l].tileSize
}

// NumTiles returns the # of tiles along each axis at a level.
func (s *Source[T]) NumTiles(l int) bv.Point3d {
	if l < 0 || l >= len(s.levels) {
		return bv.Point3d{}
	}
	return bv.GridSize(s.levels[l].dims, s.levels[l].tileSize)
}

func (s *Source[T]) locate(t, l int, coord bv.TileCoord) (k cache.Key, offset, size bv.Point3d, err error) {
	if t < 0 || t >= s.sizeT {
		err = fmt.Errorf("timepoint %d out of range [0,%d) for source %q", t, s.sizeT, s.name)
		return
	}
	if l < 0 || l >= len(s.levels) {
		err = fmt.Errorf("level %d out of range [0,%d) for source %q", l, len(s.levels), s.name)
		return
	}
	offset, size, err = bv.TileExtents(coord, s.levels[l].tileSize, s.levels[l].dims)
	if err != nil {
		err = fmt.Errorf("source %q level %d: %v", s.name, l, err)
		return
	}
	k = cache.Key{Timepoint: int32(t), Level: int32(l), Tile: coord}
	return
}

// PeekTile returns a tile only if it is in the memory tier.
func (s *Source[T]) PeekTile(t, l int, coord bv.TileCoord) (*Block[T], bool) {
	if t < 0 || l < 0 {
		return nil, false
	}
	return s.cache.Peek(cache.Key{Timepoint: int32(t), Level: int32(l), Tile: coord})
}

// GetTile returns the tile at a timepoint, level and tile coordinate, reading and
// decoding it if it is not cached.  If ctx is done before the tile is available,
// the fill continues for later requests and ctx.Err() is returned.
func (s *Source[T]) GetTile(ctx context.Context, t, l int, coord bv.TileCoord) (*Block[T], error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	k, offset, size, err := s.locate(t, l, coord)
	if err != nil {
		return nil, err
	}
	if b, found := s.cache.Get(k); found {
		return b, nil
	}
	ch := s.group.DoChan(k.String(), func() (interface{}, error) {
		if !s.enter() {
			return nil, ErrClosed
		}
		defer s.inflight.Done()
		return s.fill(k, offset, size)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Block[T]), nil
	}
}

// GetCell is GetTile for the voxel coordinate of any point within the tile.
func (s *Source[T]) GetCell(ctx context.Context, t, l int, p bv.Point3d) (*Block[T], error) {
	ts := s.TileSize(l)
	if ts[0] == 0 {
		return nil, fmt.Errorf("level %d out of range for source %q", l, s.name)
	}
	return s.GetTile(ctx, t, l, p.Tile(ts))
}

// fill reads and decodes a tile with exclusive use of the decoder.
func (s *Source[T]) fill(k cache.Key, offset, size bv.Point3d) (*Block[T], error) {
	var block *Block[T]
	err := s.handle.Do(func(dec reader.Decoder) error {
		if b, found := s.cache.Get(k); found {
			block = b
			return nil
		}
		if err := dec.SetSeries(s.series); err != nil {
			return err
		}
		if err := dec.SetResolution(int(k.Level)); err != nil {
			return err
		}
		t := int(k.Timepoint)
		planeLen := int(size[0]) * int(size[1])
		data := make([]T, int(size.Prod()))

		readPlane := func(z int, dst []T) error {
			var plane int
			if s.swapZC {
				plane = dec.PlaneIndex(s.channel, z, t)
			} else {
				plane = dec.PlaneIndex(z, s.channel, t)
			}
			raw, err := dec.OpenBytes(plane, offset[0], offset[1], size[0], size[1])
			if err != nil {
				return fmt.Errorf("read of plane %d (z %d) failed: %w", plane, z, err)
			}
			if err := s.decode(dst, raw); err != nil {
				return fmt.Errorf("bad plane %d (z %d): %w", plane, z, err)
			}
			return nil
		}
		if s.is2D {
			if err := readPlane(0, data); err != nil {
				return err
			}
		} else {
			for dz := 0; dz < int(size[2]); dz++ {
				if err := readPlane(int(offset[2])+dz, data[dz*planeLen:(dz+1)*planeLen]); err != nil {
					return err
				}
			}
		}
		block = s.cache.Put(k, &Block[T]{Valid: true, Min: offset, Size: size, Data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("source %q tile %s: %w", s.name, k, err)
	}
	return block, nil
}

func (s *Source[T]) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *Source[T]) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stats returns the cache statistics of the source.
func (s *Source[T]) Stats() cache.Stats {
	return s.cache.Stats()
}

// Close waits for in-flight fills to finish and then discards all cached tiles.
// The shared reader handle is not closed.
func (s *Source[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.inflight.Wait()
	return s.cache.Close()
}

package source

import (
	"context"
	"fmt"

	"github.com/janelia-flyem/bioview/bv"
	"github.com/janelia-flyem/bioview/cache"
	"github.com/janelia-flyem/bioview/reader"
)

// PixelSource is a Source of any sample type.
type PixelSource interface {
	Name() string
	PixelType() bv.PixelType
	LevelCount() int
	Timepoints() int
	LevelDims(level int) bv.Point3d
	FullResolutionDims() bv.Point3d
	TileSize(level int) bv.Point3d
	NumTiles(level int) bv.Point3d

	// Tile returns a filled tile, reading it if necessary.
	Tile(ctx context.Context, t, level int, coord bv.TileCoord) (Cell, error)

	// PeekCell returns a tile only if it is in the memory tier.
	PeekCell(t, level int, coord bv.TileCoord) (Cell, bool)

	// Placeholder returns an invalid tile with the extents of the requested tile.
	Placeholder(t, level int, coord bv.TileCoord) (Cell, error)

	Stats() cache.Stats
	Close() error
}

func (s *Source[T]) Tile(ctx context.Context, t, l int, coord bv.TileCoord) (Cell, error) {
	b, err := s.GetTile(ctx, t, l, coord)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Source[T]) PeekCell(t, l int, coord bv.TileCoord) (Cell, bool) {
	b, found := s.PeekTile(t, l, coord)
	if !found {
		return nil, false
	}
	return b, true
}

func (s *Source[T]) Placeholder(t, l int, coord bv.TileCoord) (Cell, error) {
	_, offset, size, err := s.locate(t, l, coord)
	if err != nil {
		return nil, err
	}
	return &Block[T]{Min: offset, Size: size}, nil
}

// Open returns a source delivering the given pixel type.
func Open(h *reader.Handle, pixelType bv.PixelType, opts Options) (PixelSource, error) {
	switch pixelType {
	case bv.PixelUint8:
		return open[uint8](h, opts)
	case bv.PixelUint16:
		return open[uint16](h, opts)
	case bv.PixelUint32:
		return open[uint32](h, opts)
	case bv.PixelFloat32:
		return open[float32](h, opts)
	case bv.PixelRGB:
		return open[bv.ARGB](h, opts)
	}
	return nil, fmt.Errorf("no pixel source for pixel type %s", pixelType)
}

func open[T Sample](h *reader.Handle, opts Options) (PixelSource, error) {
	s, err := New[T](h, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

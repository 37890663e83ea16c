package bv

import (
	"fmt"
	"strconv"
	"strings"
)

// Point3d is an ordered list of three 32-bit signed integers giving a voxel coordinate
// or an extent in voxels along X, Y, and Z.
type Point3d [3]int32

// Add returns the addition of two points.
func (p Point3d) Add(p2 Point3d) Point3d {
	return Point3d{p[0] + p2[0], p[1] + p2[1], p[2] + p2[2]}
}

// Sub returns the subtraction of the passed point from the receiver.
func (p Point3d) Sub(p2 Point3d) Point3d {
	return Point3d{p[0] - p2[0], p[1] - p2[1], p[2] - p2[2]}
}

// Min returns a Point where each of its elements are the minimum of two points' elements.
func (p Point3d) Min(p2 Point3d) Point3d {
	result := p
	for i := 0; i < 3; i++ {
		if p2[i] < result[i] {
			result[i] = p2[i]
		}
	}
	return result
}

// Max returns a Point where each of its elements are the maximum of two points' elements.
func (p Point3d) Max(p2 Point3d) Point3d {
	result := p
	for i := 0; i < 3; i++ {
		if p2[i] > result[i] {
			result[i] = p2[i]
		}
	}
	return result
}

// Prod returns the product of the elements, e.g., the number of voxels for a size.
func (p Point3d) Prod() int64 {
	return int64(p[0]) * int64(p[1]) * int64(p[2])
}

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// Tile returns the coordinate of the tile containing the point for the given tile size.
// Only non-negative points are expected.
func (p Point3d) Tile(size Point3d) TileCoord {
	return TileCoord{p[0] / size[0], p[1] / size[1], p[2] / size[2]}
}

// TileCoord is the coordinate of a tile in tile space, i.e., the voxel coordinate of
// its first voxel divided by the tile size.
type TileCoord [3]int32

func (c TileCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c[0], c[1], c[2])
}

// MinPoint returns the smallest voxel coordinate of the given tile.
func (c TileCoord) MinPoint(size Point3d) Point3d {
	return Point3d{c[0] * size[0], c[1] * size[1], c[2] * size[2]}
}

// StringToTileCoord parses a string of format "%d<sep>%d<sep>%d" into a TileCoord.
func StringToTileCoord(str, separator string) (TileCoord, error) {
	elems := strings.Split(str, separator)
	if len(elems) != 3 {
		return TileCoord{}, fmt.Errorf("cannot convert %q into a tile coordinate", str)
	}
	var c TileCoord
	for i, elem := range elems {
		n, err := strconv.ParseInt(strings.TrimSpace(elem), 10, 32)
		if err != nil {
			return TileCoord{}, fmt.Errorf("bad tile coordinate %q: %v", str, err)
		}
		c[i] = int32(n)
	}
	return c, nil
}

// GridSize returns the number of tiles along each dimension necessary to cover
// a volume of the given size.
func GridSize(volume, tileSize Point3d) Point3d {
	var grid Point3d
	for i := 0; i < 3; i++ {
		if tileSize[i] <= 0 {
			continue
		}
		grid[i] = (volume[i] + tileSize[i] - 1) / tileSize[i]
	}
	return grid
}

// TileExtents returns the voxel offset and size of a tile clamped to a volume.  Tiles
// along the far edges of a volume may be smaller than the nominal tile size.
func TileExtents(c TileCoord, tileSize, volume Point3d) (offset, size Point3d, err error) {
	grid := GridSize(volume, tileSize)
	for i := 0; i < 3; i++ {
		if c[i] < 0 || c[i] >= grid[i] {
			err = fmt.Errorf("tile %s is outside tile grid %s", c, grid)
			return
		}
	}
	offset = c.MinPoint(tileSize)
	end := offset.Add(tileSize).Min(volume)
	size = end.Sub(offset)
	return
}

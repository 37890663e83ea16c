package bv

import (
	. "github.com/janelia-flyem/go/gocheck"
)

func (s *CoreSuite) TestPoint3d(c *C) {
	a := Point3d{10, 21, 837821}
	b := Point3d{78312, -200, 40123}
	c.Assert(a.Add(b), Equals, Point3d{78322, -179, 877944})
	c.Assert(a.Sub(b), Equals, Point3d{-78302, 221, 797698})
	c.Assert(a.Max(b), Equals, Point3d{78312, 21, 837821})
	c.Assert(b.Max(a), Equals, Point3d{78312, 21, 837821})
	c.Assert(a.Min(b), Equals, Point3d{10, -200, 40123})
	c.Assert(a.String(), Equals, "(10,21,837821)")
	c.Assert(Point3d{512, 512, 100}.Prod(), Equals, int64(26214400))

	c.Assert(Point3d{700, 10, 3}.Tile(Point3d{512, 512, 1}), Equals, TileCoord{1, 0, 3})
	c.Assert(TileCoord{1, 2, 3}.MinPoint(Point3d{64, 32, 1}), Equals, Point3d{64, 64, 3})
}

func (s *CoreSuite) TestTileCoordParsing(c *C) {
	coord, err := StringToTileCoord("3_4_0", "_")
	c.Assert(err, IsNil)
	c.Assert(coord, Equals, TileCoord{3, 4, 0})

	_, err = StringToTileCoord("3_4", "_")
	c.Assert(err, NotNil)
	_, err = StringToTileCoord("3_x_0", "_")
	c.Assert(err, NotNil)
}

func (s *CoreSuite) TestTileExtents(c *C) {
	volume := Point3d{1000, 700, 5}
	tileSize := Point3d{512, 512, 2}
	c.Assert(GridSize(volume, tileSize), Equals, Point3d{2, 2, 3})

	offset, size, err := TileExtents(TileCoord{0, 0, 0}, tileSize, volume)
	c.Assert(err, IsNil)
	c.Assert(offset, Equals, Point3d{0, 0, 0})
	c.Assert(size, Equals, Point3d{512, 512, 2})

	offset, size, err = TileExtents(TileCoord{1, 1, 2}, tileSize, volume)
	c.Assert(err, IsNil)
	c.Assert(offset, Equals, Point3d{512, 512, 4})
	c.Assert(size, Equals, Point3d{488, 188, 1})

	_, _, err = TileExtents(TileCoord{2, 0, 0}, tileSize, volume)
	c.Assert(err, NotNil)
	_, _, err = TileExtents(TileCoord{0, -1, 0}, tileSize, volume)
	c.Assert(err, NotNil)
}

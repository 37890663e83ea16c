package bv

import (
	"math"

	. "github.com/janelia-flyem/go/gocheck"
)

func (s *CoreSuite) TestUnitParsing(c *C) {
	for name, expected := range map[string]Unit{
		"um":              Micrometer,
		"µm":              Micrometer,
		"Micron":          Micrometer,
		"mm":              Millimeter,
		"nm":              Nanometer,
		"Å":               Angstrom,
		"pixel":           Pixel,
		"reference frame": Pixel,
	} {
		u, err := ParseUnit(name)
		c.Assert(err, IsNil)
		c.Assert(u, Equals, expected)
	}
	_, err := ParseUnit("furlong")
	c.Assert(err, NotNil)
	c.Assert(Pixel.Physical(), Equals, false)
	c.Assert(Nanometer.Physical(), Equals, true)
}

func (s *CoreSuite) TestLengthConversion(c *C) {
	v, ok := L(1.5, Millimeter).In(Micrometer)
	c.Assert(ok, Equals, true)
	c.Assert(math.Abs(v-1500) < 1e-9, Equals, true)

	v, ok = L(500, Nanometer).In(Micrometer)
	c.Assert(ok, Equals, true)
	c.Assert(math.Abs(v-0.5) < 1e-12, Equals, true)

	_, ok = L(3, Pixel).In(Micrometer)
	c.Assert(ok, Equals, false)
	v, ok = L(3, Pixel).In(Pixel)
	c.Assert(ok, Equals, true)
	c.Assert(v, Equals, 3.0)

	c.Assert(math.Abs(L(2, Millimeter).Ratio(L(1, Micrometer))-2000) < 1e-9, Equals, true)
	c.Assert(L(4, Pixel).Ratio(L(1, Micrometer)), Equals, 4.0)
	c.Assert(L(4, Micrometer).Ratio(Length{}), Equals, 4.0)
}

func (s *CoreSuite) TestLengthText(c *C) {
	var l Length
	c.Assert(l.UnmarshalText([]byte("0.5 um")), IsNil)
	c.Assert(l, Equals, L(0.5, Micrometer))
	c.Assert(l.UnmarshalText([]byte("2mm")), IsNil)
	c.Assert(l, Equals, L(2, Millimeter))
	c.Assert(l.UnmarshalText([]byte("nm")), IsNil)
	c.Assert(l, Equals, L(1, Nanometer))
	c.Assert(l.UnmarshalText([]byte("1e3 nm")), IsNil)
	c.Assert(l, Equals, L(1000, Nanometer))
	c.Assert(l.UnmarshalText([]byte("3 parsecs")), NotNil)

	b, err := L(0.25, Micrometer).MarshalText()
	c.Assert(err, IsNil)
	c.Assert(string(b), Equals, "0.25 µm")
}

package bv

import (
	"encoding/json"

	. "github.com/janelia-flyem/go/gocheck"
)

func (s *CoreSuite) TestPixelType(c *C) {
	c.Assert(PixelUint8.BytesPerSample(), Equals, 1)
	c.Assert(PixelUint16.BytesPerSample(), Equals, 2)
	c.Assert(PixelFloat32.BytesPerSample(), Equals, 4)
	c.Assert(PixelRGB.BytesPerSample(), Equals, 4)
	c.Assert(PixelUnknown.BytesPerSample(), Equals, 0)

	t, err := ParsePixelType("uint16")
	c.Assert(err, IsNil)
	c.Assert(t, Equals, PixelUint16)
	_, err = ParsePixelType("unknown")
	c.Assert(err, NotNil)
	_, err = ParsePixelType("int64")
	c.Assert(err, NotNil)

	b, err := json.Marshal(struct{ Type PixelType }{PixelRGB})
	c.Assert(err, IsNil)
	c.Assert(string(b), Equals, `{"Type":"rgb"}`)

	var got struct{ Type PixelType }
	c.Assert(json.Unmarshal([]byte(`{"Type":"float32"}`), &got), IsNil)
	c.Assert(got.Type, Equals, PixelFloat32)
}

func (s *CoreSuite) TestARGB(c *C) {
	v := NewARGB(0x12, 0x34, 0x56)
	c.Assert(uint32(v), Equals, uint32(0xff123456))
	c.Assert(v.Red(), Equals, uint8(0x12))
	c.Assert(v.Green(), Equals, uint8(0x34))
	c.Assert(v.Blue(), Equals, uint8(0x56))
	c.Assert(v.Alpha(), Equals, uint8(0xff))
}

package source

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/janelia-flyem/bioview/bv"
)

// Sample is the set of delivered sample types.
type Sample interface {
	uint8 | uint16 | uint32 | float32 | bv.ARGB
}

// PixelTypeOf returns the PixelType delivered as samples of type T.
func PixelTypeOf[T Sample]() bv.PixelType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return bv.PixelUint8
	case uint16:
		return bv.PixelUint16
	case uint32:
		return bv.PixelUint32
	case float32:
		return bv.PixelFloat32
	case bv.ARGB:
		return bv.PixelRGB
	}
	return bv.PixelUnknown
}

// Block is a decoded tile.  Data is ordered with X fastest, then Y, then Z.  An
// invalid block is a placeholder for a tile that has not been filled yet.
type Block[T Sample] struct {
	Valid bool
	Min   bv.Point3d
	Size  bv.Point3d
	Data  []T
}

// CellHeader describes a tile independent of its sample type.
type CellHeader struct {
	Valid     bool
	Min       bv.Point3d
	Size      bv.Point3d
	PixelType bv.PixelType
}

// Cell is a tile of any sample type.
type Cell interface {
	Header() CellHeader

	// Bytes returns the samples in little-endian order.  RGB samples are
	// written as packed 32-bit ARGB.
	Bytes() []byte
}

func (b *Block[T]) Header() CellHeader {
	return CellHeader{Valid: b.Valid, Min: b.Min, Size: b.Size, PixelType: PixelTypeOf[T]()}
}

func (b *Block[T]) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(len(b.Data) * PixelTypeOf[T]().BytesPerSample())
	binary.Write(&buf, binary.LittleEndian, b.Data)
	return buf.Bytes()
}

// blockCodec serializes valid blocks for a spill tier.
type blockCodec[T Sample] struct{}

const blockHeaderSize = 24

func (blockCodec[T]) Encode(b *Block[T]) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, b.Min); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, b.Size); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, b.Data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (blockCodec[T]) Decode(data []byte) (*Block[T], error) {
	if len(data) < blockHeaderSize {
		return nil, fmt.Errorf("spilled block has only %d bytes", len(data))
	}
	b := &Block[T]{Valid: true}
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &b.Min); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &b.Size); err != nil {
		return nil, err
	}
	n := b.Size.Prod()
	if n < 0 || int64(r.Len()) != n*int64(PixelTypeOf[T]().BytesPerSample()) {
		return nil, fmt.Errorf("spilled block %s has %d bytes of samples", b.Size, r.Len())
	}
	b.Data = make([]T, n)
	if err := binary.Read(r, binary.LittleEndian, b.Data); err != nil {
		return nil, err
	}
	return b, nil
}

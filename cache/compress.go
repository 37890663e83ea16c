package cache

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression is the compression applied to spilled cells.
type Compression string

const (
	CompressNone   Compression = "none"
	CompressSnappy Compression = "snappy"
	CompressZstd   Compression = "zstd"
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Valid returns true for a known compression.
func (c Compression) Valid() bool {
	switch c {
	case CompressNone, CompressSnappy, CompressZstd:
		return true
	}
	return false
}

// Compress returns the compressed data.
func (c Compression) Compress(data []byte) ([]byte, error) {
	switch c {
	case CompressNone, "":
		return data, nil
	case CompressSnappy:
		return snappy.Encode(nil, data), nil
	case CompressZstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	}
	return nil, fmt.Errorf("unknown compression %q", c)
}

// Decompress reverses Compress.
func (c Compression) Decompress(data []byte) ([]byte, error) {
	switch c {
	case CompressNone, "":
		return data, nil
	case CompressSnappy:
		return snappy.Decode(nil, data)
	case CompressZstd:
		return zstdDecoder.DecodeAll(data, nil)
	}
	return nil, fmt.Errorf("unknown compression %q", c)
}

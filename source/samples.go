package source

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/janelia-flyem/bioview/bv"
)

// decodeFunc converts the raw bytes of one plane rectangle into len(dst) samples.
type decodeFunc[T Sample] func(dst []T, raw []byte) error

func checkLength(n, bytesPerSample int, raw []byte) error {
	if len(raw) != n*bytesPerSample {
		return fmt.Errorf("expected %d bytes for %d samples, got %d", n*bytesPerSample, n, len(raw))
	}
	return nil
}

// newDecodeFunc returns the sample decoder for T.  Byte order is applied sample by
// sample, independent of the host order.
func newDecodeFunc[T Sample](littleEndian, interleaved bool) decodeFunc[T] {
	var order binary.ByteOrder = binary.BigEndian
	if littleEndian {
		order = binary.LittleEndian
	}
	var f any
	var zero T
	switch any(zero).(type) {
	case uint8:
		f = decodeFunc[uint8](func(dst []uint8, raw []byte) error {
			if err := checkLength(len(dst), 1, raw); err != nil {
				return err
			}
			copy(dst, raw)
			return nil
		})
	case uint16:
		f = decodeFunc[uint16](func(dst []uint16, raw []byte) error {
			if err := checkLength(len(dst), 2, raw); err != nil {
				return err
			}
			for i := range dst {
				dst[i] = order.Uint16(raw[2*i:])
			}
			return nil
		})
	case uint32:
		f = decodeFunc[uint32](func(dst []uint32, raw []byte) error {
			if err := checkLength(len(dst), 4, raw); err != nil {
				return err
			}
			for i := range dst {
				dst[i] = order.Uint32(raw[4*i:])
			}
			return nil
		})
	case float32:
		f = decodeFunc[float32](func(dst []float32, raw []byte) error {
			if err := checkLength(len(dst), 4, raw); err != nil {
				return err
			}
			for i := range dst {
				dst[i] = math.Float32frombits(order.Uint32(raw[4*i:]))
			}
			return nil
		})
	case bv.ARGB:
		f = decodeFunc[bv.ARGB](func(dst []bv.ARGB, raw []byte) error {
			if err := checkLength(len(dst), 3, raw); err != nil {
				return err
			}
			n := len(dst)
			if interleaved {
				for i := range dst {
					dst[i] = bv.NewARGB(raw[3*i], raw[3*i+1], raw[3*i+2])
				}
			} else {
				for i := range dst {
					dst[i] = bv.NewARGB(raw[i], raw[n+i], raw[2*n+i])
				}
			}
			return nil
		})
	}
	return f.(decodeFunc[T])
}

package reader_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/janelia-flyem/bioview/bv"
	"github.com/janelia-flyem/bioview/reader"
	"github.com/janelia-flyem/bioview/reader/synth"
)

func TestResolvePixelType(t *testing.T) {
	tests := []struct {
		meta     reader.SeriesMeta
		expected bv.PixelType
	}{
		{reader.SeriesMeta{PixelType: bv.PixelUint16}, bv.PixelUint16},
		{reader.SeriesMeta{BitsPerSample: 8}, bv.PixelUint8},
		{reader.SeriesMeta{BitsPerSample: 16}, bv.PixelUint16},
		{reader.SeriesMeta{BitsPerSample: 32}, bv.PixelUint32},
		{reader.SeriesMeta{BitsPerSample: 32, FloatingPoint: true}, bv.PixelFloat32},
		{reader.SeriesMeta{BitsPerSample: 64, FloatingPoint: true}, bv.PixelUnknown},
		{reader.SeriesMeta{BitsPerSample: 12}, bv.PixelUnknown},
		{reader.SeriesMeta{RGB: true, BitsPerSample: 8}, bv.PixelRGB},
		{reader.SeriesMeta{RGB: true, BitsPerSample: 16}, bv.PixelUnknown},
	}
	for i, tc := range tests {
		if got := tc.meta.ResolvePixelType(); got != tc.expected {
			t.Errorf("test %d: expected %s, got %s\n", i, tc.expected, got)
		}
	}
}

func TestFormatRegistry(t *testing.T) {
	f, err := reader.FormatFor("synth://anything")
	if err != nil {
		t.Fatalf("expected synth format: %v\n", err)
	}
	if f.GetName() != "synth" {
		t.Errorf("expected synth format, got %s\n", f)
	}
	if _, err := reader.FormatFor("/data/image.czi"); !errors.Is(err, reader.ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v\n", err)
	}
	if _, err := reader.Open("/data/image.czi"); !errors.Is(err, reader.ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat from Open, got %v\n", err)
	}
	if reader.FormatsString() == "" {
		t.Errorf("expected registered formats to be described\n")
	}
}

func TestHandleSerializes(t *testing.T) {
	path, counters := synth.Register("reader-handle", synth.FileSpec{
		Latency: synth.Duration{Duration: 2 * time.Millisecond},
		Series: []synth.SeriesSpec{
			{Size: [3]int32{16, 16, 4}, SizeC: 1, SizeT: 1, PixelType: bv.PixelUint8},
		},
	})
	h, err := reader.OpenHandle(path)
	if err != nil {
		t.Fatalf("couldn't open handle: %v\n", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(z int) {
			defer wg.Done()
			err := h.Do(func(dec reader.Decoder) error {
				if err := dec.SetSeries(0); err != nil {
					return err
				}
				_, err := dec.OpenBytes(dec.PlaneIndex(z%4, 0, 0), 0, 0, 16, 16)
				return err
			})
			if err != nil {
				t.Errorf("read %d failed: %v\n", z, err)
			}
		}(i)
	}
	wg.Wait()
	if counters.Concurrent != 0 {
		t.Errorf("expected serialized decoder use, got %d concurrent calls\n", counters.Concurrent)
	}
	if counters.Reads != 8 {
		t.Errorf("expected 8 reads, got %d\n", counters.Reads)
	}
	if h.Uses() != 8 {
		t.Errorf("expected 8 uses of handle, got %d\n", h.Uses())
	}
	if err := h.Close(); err != nil {
		t.Fatalf("close failed: %v\n", err)
	}
	err = h.Do(func(reader.Decoder) error { return nil })
	if !errors.Is(err, reader.ErrHandleClosed) {
		t.Errorf("expected ErrHandleClosed after close, got %v\n", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v\n", err)
	}
}

package reader

import (
	"sync"

	"github.com/janelia-flyem/bioview/bv"
)

// Handle owns the Decoder of one file and serializes every use of it.  All sources
// of a file share one Handle, so reads of a file are fully serialized while reads of
// different files proceed in parallel.
type Handle struct {
	path string

	mu     sync.Mutex
	dec    Decoder
	closed bool
	reads  uint64
}

// NewHandle wraps an opened Decoder.
func NewHandle(path string, dec Decoder) *Handle {
	return &Handle{path: path, dec: dec}
}

// OpenHandle opens path with the registered formats and wraps the Decoder.
func OpenHandle(path string) (*Handle, error) {
	dec, err := Open(path)
	if err != nil {
		return nil, err
	}
	return NewHandle(path, dec), nil
}

// Path returns the file path of the handle.
func (h *Handle) Path() string {
	return h.path
}

// Do runs fn with exclusive use of the Decoder.  Series and resolution selections
// made within fn are only meaningful within fn.
func (h *Handle) Do(fn func(Decoder) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	h.reads++
	return fn(h.dec)
}

// Uses returns the number of times the Decoder has been used through Do.
func (h *Handle) Uses() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reads
}

// Close waits for the current user of the Decoder and closes it.  Later calls to Do
// return ErrHandleClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if err := h.dec.Close(); err != nil {
		bv.Errorf("Error closing reader for %q: %v\n", h.path, err)
		return err
	}
	return nil
}

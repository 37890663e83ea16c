package cache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/coocood/freecache"
	"github.com/dgraph-io/badger/v3"
	"github.com/dustin/go-humanize"
	"github.com/twinj/uuid"

	"github.com/janelia-flyem/bioview/bv"
)

// SpillKind selects the spill tier implementation.
type SpillKind string

const (
	SpillNone   SpillKind = "none"
	SpillMemory SpillKind = "memory"
	SpillDisk   SpillKind = "disk"
)

// DefaultSpillMB is the spill tier size used when none is given.
const DefaultSpillMB = 256

// Config is the [cache] section of the configuration.
type Config struct {
	MaxCells    int         // memory tier capacity per source
	Spill       SpillKind   // none, memory, or disk
	SpillMB     int         // capacity of a memory spill tier
	Path        string      // directory of a disk spill tier; a temporary one if empty
	Compression Compression // compression of spilled cells
}

// Spill is a byte store shared by the caches of many sources.  Keys of different
// caches are disjoint through their namespace prefix.
type Spill interface {
	Get(key []byte) (value []byte, found bool, err error)
	Set(key, value []byte) error
	DropPrefix(prefix []byte) error
	Stats() SpillStats
	Close() error
}

// SpillStats describes a spill tier.
type SpillStats struct {
	Kind        SpillKind
	Compression Compression
	Entries     int64
	Bytes       uint64 // bytes written after compression
	Size        string
}

// NewSpill returns the spill tier selected by the configuration, or nil if
// spilling is off.
func NewSpill(config Config) (Spill, error) {
	var s Spill
	var err error
	switch config.Spill {
	case "", SpillNone:
		return nil, nil
	case SpillMemory:
		s = newMemorySpill(config.SpillMB)
	case SpillDisk:
		s, err = newDiskSpill(config.Path)
	default:
		return nil, fmt.Errorf("unknown spill tier %q, expected %q, %q or %q", config.Spill, SpillNone, SpillMemory, SpillDisk)
	}
	if err != nil {
		return nil, err
	}
	comp := config.Compression
	if comp == "" {
		comp = CompressNone
	}
	if comp == CompressNone {
		return s, nil
	}
	if !comp.Valid() {
		s.Close()
		return nil, fmt.Errorf("unknown spill compression %q", comp)
	}
	return &compressedSpill{Spill: s, comp: comp}, nil
}

// --- memory spill tier ---

type memorySpill struct {
	fc      *freecache.Cache
	written uint64
}

func newMemorySpill(mb int) *memorySpill {
	if mb <= 0 {
		mb = DefaultSpillMB
	}
	numBytes := mb << 20
	bv.Infof("Created freecache spill tier of ~ %d MB.\n", mb)
	return &memorySpill{fc: freecache.NewCache(numBytes)}
}

func (s *memorySpill) Get(key []byte) ([]byte, bool, error) {
	value, err := s.fc.Get(key)
	if err == freecache.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *memorySpill) Set(key, value []byte) error {
	if err := s.fc.Set(key, value, 0); err != nil {
		return err
	}
	atomic.AddUint64(&s.written, uint64(len(value)))
	return nil
}

func (s *memorySpill) DropPrefix(prefix []byte) error {
	var keys [][]byte
	it := s.fc.NewIterator()
	for e := it.Next(); e != nil; e = it.Next() {
		if bytes.HasPrefix(e.Key, prefix) {
			keys = append(keys, e.Key)
		}
	}
	for _, k := range keys {
		s.fc.Del(k)
	}
	return nil
}

func (s *memorySpill) Stats() SpillStats {
	written := atomic.LoadUint64(&s.written)
	return SpillStats{
		Kind:    SpillMemory,
		Entries: s.fc.EntryCount(),
		Bytes:   written,
		Size:    humanize.Bytes(written),
	}
}

func (s *memorySpill) Close() error {
	s.fc.Clear()
	return nil
}

// --- disk spill tier ---

// badgerLogger routes badger messages through our logging.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{})   { bv.Errorf(format, args...) }
func (badgerLogger) Warningf(format string, args ...interface{}) { bv.Warningf(format, args...) }
func (badgerLogger) Infof(format string, args ...interface{})    { bv.Debugf(format, args...) }
func (badgerLogger) Debugf(format string, args ...interface{})   { bv.Debugf(format, args...) }

type diskSpill struct {
	directory string
	temporary bool
	db        *badger.DB

	mu      sync.Mutex
	entries int64
	written uint64
}

func newDiskSpill(path string) (*diskSpill, error) {
	s := &diskSpill{directory: path}
	if path == "" {
		s.directory = filepath.Join(os.TempDir(), fmt.Sprintf("bioview-spill-%x", uuid.NewV4().Bytes()))
		s.temporary = true
	}
	if err := os.MkdirAll(s.directory, 0744); err != nil {
		return nil, fmt.Errorf("can't make spill directory at %s: %v", s.directory, err)
	}
	opts := badger.DefaultOptions(s.directory).
		WithLogger(badgerLogger{}).
		WithNumVersionsToKeep(1).
		WithSyncWrites(false)
	bv.Infof("Opening badger spill tier @ path %s\n", s.directory)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	s.db = db
	return s, nil
}

func (s *diskSpill) Get(key []byte) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *diskSpill) Set(key, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries++
	s.written += uint64(len(value))
	s.mu.Unlock()
	return nil
}

func (s *diskSpill) DropPrefix(prefix []byte) error {
	return s.db.DropPrefix(prefix)
}

func (s *diskSpill) Stats() SpillStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SpillStats{
		Kind:    SpillDisk,
		Entries: s.entries,
		Bytes:   s.written,
		Size:    humanize.Bytes(s.written),
	}
}

func (s *diskSpill) Close() error {
	err := s.db.Close()
	if s.temporary {
		if rmErr := os.RemoveAll(s.directory); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}

// --- compression wrapper ---

type compressedSpill struct {
	Spill
	comp Compression
}

func (s *compressedSpill) Get(key []byte) ([]byte, bool, error) {
	data, found, err := s.Spill.Get(key)
	if !found || err != nil {
		return nil, found, err
	}
	value, err := s.comp.Decompress(data)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *compressedSpill) Set(key, value []byte) error {
	data, err := s.comp.Compress(value)
	if err != nil {
		return err
	}
	return s.Spill.Set(key, data)
}

func (s *compressedSpill) Stats() SpillStats {
	stats := s.Spill.Stats()
	stats.Compression = s.comp
	return stats
}

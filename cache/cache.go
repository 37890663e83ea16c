/*
	Package cache holds decoded tiles keyed by timepoint, level and tile coordinate.

	Filled cells live in a memory tier that is read without locks and published
	atomically.  The memory tier is bounded by a cell count and evicts the least
	recently used cell, using lazy promotion: reads only mark a cell as touched, and
	touched cells get a second chance when they reach the end of the eviction order.
	Evicted cells can be written to a spill tier shared by many caches so that a later
	access avoids re-decoding.
*/
package cache

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"
	"github.com/golang/groupcache/lru"

	"github.com/janelia-flyem/bioview/bv"
)

// DefaultMaxCells is the memory tier capacity used when none is given.
const DefaultMaxCells = 1024

// KeySize is the # of bytes in a serialized Key.
const KeySize = 20

// Key identifies a cell of a source.
type Key struct {
	Timepoint int32
	Level     int32
	Tile      bv.TileCoord
}

func (k Key) String() string {
	return fmt.Sprintf("t%d/l%d/%s", k.Timepoint, k.Level, k.Tile)
}

// Bytes returns a big-endian serialization of the key.
func (k Key) Bytes() []byte {
	b := make([]byte, KeySize)
	binary.BigEndian.PutUint32(b[0:4], uint32(k.Timepoint))
	binary.BigEndian.PutUint32(b[4:8], uint32(k.Level))
	for i := 0; i < 3; i++ {
		binary.BigEndian.PutUint32(b[8+4*i:12+4*i], uint32(k.Tile[i]))
	}
	return b
}

// Codec converts cell values to and from bytes for a spill tier.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

type entry[V any] struct {
	key     Key
	value   V
	touched int32
}

// Cache is a bounded cell cache for one source.
type Cache[V any] struct {
	name      string
	maxCells  int
	namespace []byte

	cells    sync.Map // Key -> *entry[V]
	spilling sync.Map // Key -> *entry[V] evicted but not yet written to spill

	mu      sync.Mutex
	order   *lru.Cache
	evicted []*entry[V]
	closed  bool

	spill Spill
	codec Codec[V]

	hits      uint64
	misses    uint64
	spillHits uint64
	evictions uint64
	spills    uint64
}

var lastNamespace uint64

// New returns a cache holding at most maxCells cells in memory.  If spill is non-nil,
// evicted cells are encoded with the codec and kept in the spill tier under a
// namespace unique to this cache.
func New[V any](name string, maxCells int, spill Spill, codec Codec[V]) *Cache[V] {
	if maxCells <= 0 {
		maxCells = DefaultMaxCells
	}
	if codec == nil {
		spill = nil
	}
	ns := make([]byte, 8)
	binary.BigEndian.PutUint64(ns, atomic.AddUint64(&lastNamespace, 1))
	c := &Cache[V]{
		name:      name,
		maxCells:  maxCells,
		namespace: ns,
		order:     lru.New(0),
		spill:     spill,
		codec:     codec,
	}
	c.order.OnEvicted = func(_ lru.Key, value interface{}) {
		c.evicted = append(c.evicted, value.(*entry[V]))
	}
	return c
}

func (c *Cache[V]) spillKey(k Key) []byte {
	return append(append(make([]byte, 0, len(c.namespace)+KeySize), c.namespace...), k.Bytes()...)
}

// Peek returns a cell from the memory tier without consulting the spill tier.
func (c *Cache[V]) Peek(k Key) (V, bool) {
	if v, found := c.cells.Load(k); found {
		e := v.(*entry[V])
		atomic.StoreInt32(&e.touched, 1)
		atomic.AddUint64(&c.hits, 1)
		return e.value, true
	}
	var zero V
	return zero, false
}

// Get returns a cell from the memory tier or, failing that, from the spill tier.
// Cells found in the spill tier are returned to the memory tier.
func (c *Cache[V]) Get(k Key) (V, bool) {
	if v, found := c.Peek(k); found {
		return v, true
	}
	var zero V
	if c.spill == nil {
		atomic.AddUint64(&c.misses, 1)
		return zero, false
	}
	if v, found := c.spilling.Load(k); found {
		atomic.AddUint64(&c.spillHits, 1)
		return c.Put(k, v.(*entry[V]).value), true
	}
	data, found, err := c.spill.Get(c.spillKey(k))
	if err != nil {
		bv.Errorf("spill read of %s in cache %q failed: %v\n", k, c.name, err)
	}
	if !found || err != nil {
		atomic.AddUint64(&c.misses, 1)
		return zero, false
	}
	v, err := c.codec.Decode(data)
	if err != nil {
		bv.Errorf("bad spilled cell %s in cache %q: %v\n", k, c.name, err)
		atomic.AddUint64(&c.misses, 1)
		return zero, false
	}
	atomic.AddUint64(&c.spillHits, 1)
	c.Put(k, v)
	return v, true
}

// Put publishes a cell.  A published cell is never modified, so a later Put for the
// same key is ignored and the earlier value is returned.
func (c *Cache[V]) Put(k Key, v V) V {
	e := &entry[V]{key: k, value: v}
	if prior, loaded := c.cells.LoadOrStore(k, e); loaded {
		return prior.(*entry[V]).value
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.cells.Delete(k)
		return v
	}
	c.order.Add(k, e)
	victims := c.evictLocked(k)
	c.mu.Unlock()

	c.spillCells(victims)
	return v
}

// evictLocked trims the memory tier to capacity.  Touched cells are moved to the
// front once; a full pass clears every touched flag, so the loop terminates.  The
// cell just added is never the victim.
func (c *Cache[V]) evictLocked(added Key) []*entry[V] {
	var victims []*entry[V]
	for tries := 0; c.order.Len() > c.maxCells; tries++ {
		c.evicted = c.evicted[:0]
		c.order.RemoveOldest()
		if len(c.evicted) == 0 {
			break
		}
		e := c.evicted[0]
		if e.key == added {
			c.order.Add(e.key, e)
			continue
		}
		if atomic.SwapInt32(&e.touched, 0) == 1 && tries <= c.maxCells {
			c.order.Add(e.key, e)
			continue
		}
		if c.spill != nil {
			c.spilling.Store(e.key, e)
		}
		c.cells.Delete(e.key)
		victims = append(victims, e)
	}
	c.evicted = c.evicted[:0]
	atomic.AddUint64(&c.evictions, uint64(len(victims)))
	return victims
}

func (c *Cache[V]) spillCells(victims []*entry[V]) {
	if c.spill == nil {
		return
	}
	for _, e := range victims {
		c.spillCell(e)
		c.spilling.CompareAndDelete(e.key, e)
	}
}

func (c *Cache[V]) spillCell(e *entry[V]) {
	data, err := c.codec.Encode(e.value)
	if err != nil {
		bv.Errorf("unable to encode cell %s of cache %q for spill: %v\n", e.key, c.name, err)
		return
	}
	if err := c.spill.Set(c.spillKey(e.key), data); err != nil {
		bv.Debugf("cell %s of cache %q not spilled: %v\n", e.key, c.name, err)
		return
	}
	atomic.AddUint64(&c.spills, 1)
}

// Len returns the # of cells in the memory tier.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Close discards all cells including those of this cache in the spill tier.
func (c *Cache[V]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.order.Clear()
	c.evicted = nil
	c.mu.Unlock()

	c.cells.Range(func(k, _ interface{}) bool {
		c.cells.Delete(k)
		return true
	})
	c.spilling.Range(func(k, _ interface{}) bool {
		c.spilling.Delete(k)
		return true
	})
	if c.spill != nil {
		return c.spill.DropPrefix(c.namespace)
	}
	return nil
}

// Stats are counters and memory use of a cache.
type Stats struct {
	Name      string
	Cells     int
	MaxCells  int
	Bytes     uint64
	Size      string // human readable Bytes
	Hits      uint64
	Misses    uint64
	SpillHits uint64
	Evictions uint64
	Spilled   uint64
}

// Stats returns the current statistics.  Memory use is measured by walking the
// cells, so it is not cheap for large caches.
func (c *Cache[V]) Stats() Stats {
	var numBytes uint64
	var cells int
	c.cells.Range(func(_, v interface{}) bool {
		numBytes += uint64(size.Of(v.(*entry[V]).value))
		cells++
		return true
	})
	return Stats{
		Name:      c.name,
		Cells:     cells,
		MaxCells:  c.maxCells,
		Bytes:     numBytes,
		Size:      humanize.Bytes(numBytes),
		Hits:      atomic.LoadUint64(&c.hits),
		Misses:    atomic.LoadUint64(&c.misses),
		SpillHits: atomic.LoadUint64(&c.spillHits),
		Evictions: atomic.LoadUint64(&c.evictions),
		Spilled:   atomic.LoadUint64(&c.spills),
	}
}

package loader

import (
	"context"
	"sync"

	"github.com/janelia-flyem/bioview/bv"
	"github.com/janelia-flyem/bioview/dataset"
	"github.com/janelia-flyem/bioview/source"
)

// FetchBufferSize is the # of requests each fetcher can have waiting.
const FetchBufferSize = 256

type fetchKey struct {
	view  dataset.ViewID
	level int
	tile  bv.TileCoord
}

type fetchRequest struct {
	key fetchKey
	src source.PixelSource
}

// fetchQueue is a pool of fetcher goroutines that fill tiles in the background.
// Requests for a tile are always routed to the same fetcher, and a tile already
// waiting in the queue is not queued again.
type fetchQueue struct {
	channels []chan fetchRequest

	mu      sync.Mutex
	pending map[fetchKey]struct{}
	closed  bool

	running sync.WaitGroup
}

func newFetchQueue(numFetchers int) *fetchQueue {
	if numFetchers <= 0 {
		numFetchers = 1
	}
	q := &fetchQueue{
		channels: make([]chan fetchRequest, numFetchers),
		pending:  make(map[fetchKey]struct{}),
	}
	bv.Debugf("Starting %d tile fetchers...\n", numFetchers)
	for i := range q.channels {
		q.channels[i] = make(chan fetchRequest, FetchBufferSize)
		q.running.Add(1)
		go q.fetcher(q.channels[i])
	}
	return q
}

func (q *fetchQueue) fetcher(c chan fetchRequest) {
	defer q.running.Done()
	for req := range c {
		k := req.key
		if _, err := req.src.Tile(context.Background(), k.view.Timepoint, k.level, k.tile); err != nil {
			bv.Debugf("Background fetch of setup %d t %d level %d tile %s failed: %v\n",
				k.view.Setup, k.view.Timepoint, k.level, k.tile, err)
		}
		q.mu.Lock()
		delete(q.pending, k)
		q.mu.Unlock()
	}
}

func (q *fetchQueue) route(k fetchKey) int {
	h := uint32(k.view.Setup)*2654435761 ^ uint32(k.view.Timepoint)*40503 ^ uint32(k.level)*97
	h ^= uint32(k.tile[0])*73856093 ^ uint32(k.tile[1])*19349663 ^ uint32(k.tile[2])*83492791
	return int(h % uint32(len(q.channels)))
}

// enqueue adds a request without blocking.  It returns false if the tile is
// already pending, the fetcher is full, or the queue is closed.
func (q *fetchQueue) enqueue(req fetchRequest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if _, found := q.pending[req.key]; found {
		return false
	}
	select {
	case q.channels[q.route(req.key)] <- req:
		q.pending[req.key] = struct{}{}
		return true
	default:
		return false
	}
}

// numPending returns the # of queued or running requests.
func (q *fetchQueue) numPending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// close stops accepting requests and waits for queued requests to finish.
func (q *fetchQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for _, c := range q.channels {
		close(c)
	}
	q.mu.Unlock()
	q.running.Wait()
}

package index

import (
	"sync"
	"sync/atomic"
)

// sealedOrder is the sentinel order slice installed when a chunk is being
// rebalanced. Observers compare pointers: a sealed chunk accepts no further
// publishes and callers re-locate through the directory.
var sealedOrder = new([]uint16)

// chunk holds up to cap entries in an append-only slot array. The sorted
// view over the live slots is a copy-on-write slice swapped by CAS, so
// concurrent readers always see a consistent snapshot.
type chunk[K any] struct {
	// minKey is the serialized lower boundary of the chunk's key range,
	// heap-owned and immutable. The first chunk carries the map's global
	// minimum key.
	minKey []byte

	entries  []entry
	allocIdx atomic.Int32
	order    atomic.Pointer[[]uint16]

	// next links to the chunk covering the adjacent higher key range.
	// Links change only under the index directory lock.
	next atomic.Pointer[chunk[K]]

	rebalanceMu sync.Mutex
	replaced    atomic.Bool
}

func newChunk[K any](minKey []byte, capacity int) *chunk[K] {
	c := &chunk[K]{
		minKey:  minKey,
		entries: make([]entry, capacity),
	}
	ord := make([]uint16, 0)
	c.order.Store(&ord)
	return c
}

// loadOrder returns the current sorted view. ok is false when the chunk is
// sealed by a rebalance.
func (c *chunk[K]) loadOrder() (*[]uint16, bool) {
	p := c.order.Load()
	if p == sealedOrder {
		return nil, false
	}
	return p, true
}

// claim reserves an unused slot. It fails once the slot array is exhausted,
// which is the rebalance trigger.
func (c *chunk[K]) claim() (int, bool) {
	idx := c.allocIdx.Add(1) - 1
	if int(idx) >= len(c.entries) {
		return 0, false
	}
	return int(idx), true
}

// publish swaps the order slice from old to next. Failure means another
// insert or a seal won the race; the caller re-reads and decides.
func (c *chunk[K]) publish(old, next *[]uint16) bool {
	return c.order.CompareAndSwap(old, next)
}

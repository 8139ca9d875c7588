package epoch

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"

	"github.com/hupe1980/arenamap/internal/arena"
)

// node is a single retired slice on the lock-free retirement stack.
// Producers push concurrently; a single drainer swaps the whole stack out.
type node struct {
	handle arena.Handle
	size   int
	stamp  uint64
	next   *node
}

// Stats reports reclaimer state.
type Stats struct {
	Epoch        uint64
	ActiveGuards int
	Pending      int64 // retired slices not yet handed back
	PendingBytes int64
	Reclaimed    int64
}

// Reclaimer tracks in-flight operations as epochs and defers physical reuse
// of retired slices until no operation that could observe them is active.
type Reclaimer struct {
	arena *arena.Arena

	// epoch is the global logical clock; advanced on every retirement.
	epoch atomic.Uint64

	// guards maps guard id to the epoch the operation entered at.
	guards   *xsync.MapOf[uint64, uint64]
	guardSeq atomic.Uint64

	retired atomic.Pointer[node]

	// pace limits how often piggy-backed drains actually run.
	pace    rate.Sometimes
	drainMu sync.Mutex

	pending      *xsync.Counter
	pendingBytes *xsync.Counter
	reclaimed    *xsync.Counter
}

// NewReclaimer creates a reclaimer that hands reusable slices back to a.
// The arena's pressure hook is wired here so allocation failures force an
// immediate drain before surfacing capacity exhaustion.
func NewReclaimer(a *arena.Arena) *Reclaimer {
	r := &Reclaimer{
		arena:        a,
		guards:       xsync.NewMapOf[uint64, uint64](),
		pace:         rate.Sometimes{Interval: 2 * time.Millisecond},
		pending:      xsync.NewCounter(),
		pendingBytes: xsync.NewCounter(),
		reclaimed:    xsync.NewCounter(),
	}
	r.epoch.Store(1)
	a.SetReclaimHook(r.Drain)
	return r
}

// Guard marks one operation as in flight. It must be released exactly once
// via Close; callers defer Close immediately after Enter so every exit path
// deregisters.
type Guard struct {
	r      *Reclaimer
	id     uint64
	closed bool
}

// Enter registers the current epoch for a new operation and returns its guard.
func (r *Reclaimer) Enter() *Guard {
	id := r.guardSeq.Add(1)
	r.guards.Store(id, r.epoch.Load())
	return &Guard{r: r, id: id}
}

// Close deregisters the guard. It is idempotent.
func (g *Guard) Close() {
	if g == nil || g.closed {
		return
	}
	g.closed = true
	g.r.guards.Delete(g.id)
}

// Retire stamps the slice with the current epoch, advances the clock and
// queues the slice for deferred reuse. Memory is never freed synchronously.
//
// The stamp is the epoch before the advance: any operation that could still
// reference the slice entered at that epoch or earlier and keeps it pinned,
// while a guard entered after the advance can never have observed it and
// does not delay its reuse.
func (r *Reclaimer) Retire(h arena.Handle, size int) {
	if h == 0 || size <= 0 {
		return
	}
	stamp := r.epoch.Add(1) - 1

	n := &node{handle: h, size: size, stamp: stamp}
	for {
		head := r.retired.Load()
		n.next = head
		if r.retired.CompareAndSwap(head, n) {
			break
		}
	}
	r.pending.Inc()
	r.pendingBytes.Add(int64(arena.ClassSize(size)))
}

// Reclaim opportunistically drains the retirement queue. It is cheap to call
// on every write operation: the actual drain runs at most once per pacing
// interval and only one goroutine drains at a time.
func (r *Reclaimer) Reclaim() {
	r.pace.Do(r.Drain)
}

// Drain scans the retirement queue and hands every slice whose stamp is
// older than the minimum active epoch back to the arena. Survivors are
// re-queued.
func (r *Reclaimer) Drain() {
	if !r.drainMu.TryLock() {
		return
	}
	defer r.drainMu.Unlock()

	head := r.retired.Swap(nil)
	if head == nil {
		return
	}

	minActive := r.minActiveEpoch()

	var keepHead, keepTail *node
	for n := head; n != nil; {
		next := n.next
		if n.stamp < minActive {
			r.arena.Free(n.handle, n.size)
			r.pending.Dec()
			r.pendingBytes.Add(-int64(arena.ClassSize(n.size)))
			r.reclaimed.Inc()
		} else {
			n.next = keepHead
			keepHead = n
			if keepTail == nil {
				keepTail = n
			}
		}
		n = next
	}

	if keepHead != nil {
		// Splice survivors back under whatever got pushed meanwhile.
		for {
			cur := r.retired.Load()
			keepTail.next = cur
			if r.retired.CompareAndSwap(cur, keepHead) {
				break
			}
		}
	}
}

// minActiveEpoch returns the smallest epoch any in-flight operation entered
// at, or one past the current epoch when nothing is in flight.
func (r *Reclaimer) minActiveEpoch() uint64 {
	min := uint64(math.MaxUint64)
	r.guards.Range(func(_ uint64, entered uint64) bool {
		if entered < min {
			min = entered
		}
		return true
	})
	if min == math.MaxUint64 {
		return r.epoch.Load() + 1
	}
	return min
}

// Epoch returns the current global epoch.
func (r *Reclaimer) Epoch() uint64 {
	return r.epoch.Load()
}

// Stats returns a snapshot of the reclaimer counters.
func (r *Reclaimer) Stats() Stats {
	return Stats{
		Epoch:        r.epoch.Load(),
		ActiveGuards: r.guards.Size(),
		Pending:      r.pending.Value(),
		PendingBytes: r.pendingBytes.Value(),
		Reclaimed:    r.reclaimed.Value(),
	}
}

package arena

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/hupe1980/arenamap/internal/mmap"
)

var (
	// ErrArenaFull is returned when neither the free lists nor the remaining
	// capacity budget can satisfy an allocation.
	ErrArenaFull = errors.New("arena: capacity exhausted")
	// ErrSizeTooLarge is returned when a single allocation exceeds the segment size.
	ErrSizeTooLarge = errors.New("arena: allocation exceeds segment size")
	// ErrClosed is returned when allocating from a closed arena.
	ErrClosed = errors.New("arena: closed")
)

const (
	// DefaultSegmentSize is the default size of a segment (32 MiB).
	DefaultSegmentSize = 32 << 20
	// MaxSegments limits the number of segments the handle encoding can address.
	MaxSegments = 1 << 16

	// MinSegmentSize is the smallest segment the arena will operate with.
	MinSegmentSize = 64 << 10

	minClassBits = 4
	minClassSize = 1 << minClassBits // 16 B
	numClasses   = 32

	// blockSize is the size of the per-goroutine bump blocks.
	blockSize = 16 << 10
	// localMax is the largest allocation served from a local bump block.
	localMax = 2 << 10
)

// Handle identifies an allocated byte range inside the arena. It packs the
// segment index and the byte offset within that segment:
//
//	Handle = (segment index << segmentBits) | offset
//
// Handle 0 is reserved as the null handle and is never returned by Alloc.
// Segments never move while the arena is open, so a handle stays valid until
// the slice it names is freed and reused.
type Handle uint64

// ClassSize rounds size up to its allocation size class (a power of two,
// at least 16 bytes). Every allocation and free operates on class sizes so
// freed slices are exactly reusable.
func ClassSize(size int) int {
	if size <= minClassSize {
		return minClassSize
	}
	return 1 << bits.Len(uint(size-1))
}

// classIndex maps a class size (power of two >= minClassSize) to its free
// list index.
func classIndex(rounded int) int {
	return bits.Len(uint(rounded)) - 1 - minClassBits
}

// Stats reports arena memory usage.
//
// Semantics:
//   - BytesReserved: memory mapped from the OS, never exceeds Capacity
//   - BytesLive: bytes currently handed out to callers (class-rounded)
//   - BytesFree: bytes sitting on free lists awaiting reuse
type Stats struct {
	Capacity      int64
	BytesReserved int64
	BytesLive     int64
	BytesFree     int64
	Segments      int
	Allocs        int64
	Frees         int64
}

type segment struct {
	data    []byte
	mapping *mmap.Mapping
	offset  atomic.Int64 // bump pointer, accessed concurrently without locks
	index   uint32
}

type freeList struct {
	mu      sync.Mutex
	handles []Handle
}

// localBlock is a private bump-allocation window carved out of a shared
// segment. Blocks circulate through a sync.Pool so allocation stays off the
// shared CAS path in the common case.
type localBlock struct {
	base Handle
	buf  []byte
	off  int
}

// Arena is a budgeted off-heap allocator. See the package documentation for
// the concurrency and reuse model.
type Arena struct {
	segmentSize int
	segmentBits int
	segmentMask uint64
	maxSegments int
	capacity    int64

	segments     [MaxSegments]atomic.Pointer[segment]
	segmentCount atomic.Uint32
	current      atomic.Pointer[segment]
	mu           sync.Mutex // serializes segment growth

	classes [numClasses]freeList
	blocks  sync.Pool

	// reclaimHook, when set, is invoked on capacity pressure to drain retired
	// slices back onto the free lists before Alloc gives up.
	reclaimHook atomic.Pointer[func()]

	liveBytes *xsync.Counter
	freeBytes *xsync.Counter
	allocs    *xsync.Counter
	frees     *xsync.Counter

	closed atomic.Bool
}

// New creates an arena with the given capacity budget in bytes. segmentSize
// is rounded to a power of two and clamped so at least one segment fits the
// budget; pass 0 for the default.
func New(capacity int64, segmentSize int) (*Arena, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("arena: capacity must be positive, got %d", capacity)
	}
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}

	// Round up to the next power of 2 for cheap handle packing.
	segmentBits := bits.Len(uint(segmentSize - 1))
	segmentSize = 1 << segmentBits

	for int64(segmentSize) > capacity && segmentSize > MinSegmentSize {
		segmentSize >>= 1
		segmentBits--
	}
	if int64(segmentSize) > capacity {
		return nil, fmt.Errorf("arena: capacity %d below minimum segment size %d", capacity, segmentSize)
	}

	maxSegments := int(capacity / int64(segmentSize))
	if maxSegments > MaxSegments {
		maxSegments = MaxSegments
	}

	a := &Arena{
		segmentSize: segmentSize,
		segmentBits: segmentBits,
		segmentMask: uint64(segmentSize - 1),
		maxSegments: maxSegments,
		capacity:    capacity,
		liveBytes:   xsync.NewCounter(),
		freeBytes:   xsync.NewCounter(),
		allocs:      xsync.NewCounter(),
		frees:       xsync.NewCounter(),
	}

	a.mu.Lock()
	err := a.growLocked()
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	// Reserve offset 0 of segment 0 so Handle 0 stays the null handle.
	if _, err := a.bumpAlloc(minClassSize); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// SetReclaimHook installs the function invoked on capacity pressure.
func (a *Arena) SetReclaimHook(fn func()) {
	a.reclaimHook.Store(&fn)
}

// Capacity returns the configured byte budget.
func (a *Arena) Capacity() int64 {
	return a.capacity
}

// SegmentSize returns the size of a single segment.
func (a *Arena) SegmentSize() int {
	return a.segmentSize
}

// Alloc allocates at least size bytes (rounded to the size class) and
// returns the handle plus the byte slice of the requested length. The bytes
// are not zeroed when they come from a free list.
func (a *Arena) Alloc(size int) (Handle, []byte, error) {
	if a.closed.Load() {
		return 0, nil, ErrClosed
	}
	if size <= 0 {
		return 0, nil, nil
	}

	rounded := ClassSize(size)
	if rounded > a.segmentSize {
		return 0, nil, fmt.Errorf("%w: %d > %d", ErrSizeTooLarge, rounded, a.segmentSize)
	}

	if h, ok := a.popFree(rounded); ok {
		a.accountAlloc(rounded)
		return h, a.Bytes(h, size), nil
	}

	h, err := a.allocFresh(rounded)
	if err != nil {
		// Give retired slices a chance to come home before giving up.
		if hook := a.reclaimHook.Load(); hook != nil {
			(*hook)()
			if h, ok := a.popFree(rounded); ok {
				a.accountAlloc(rounded)
				return h, a.Bytes(h, size), nil
			}
			if h, err2 := a.allocFresh(rounded); err2 == nil {
				a.liveBytes.Add(int64(rounded))
				a.allocs.Inc()
				return h, a.Bytes(h, size), nil
			}
		}
		return 0, nil, err
	}

	a.liveBytes.Add(int64(rounded))
	a.allocs.Inc()
	return h, a.Bytes(h, size), nil
}

func (a *Arena) accountAlloc(rounded int) {
	a.liveBytes.Add(int64(rounded))
	a.freeBytes.Add(-int64(rounded))
	a.allocs.Inc()
}

// Free returns the slice at h (allocated with the given size) to its
// size-class free list. It does not zero or unmap memory. The caller must
// guarantee no reader can still observe the slice; the epoch reclaimer is
// the component providing that guarantee.
func (a *Arena) Free(h Handle, size int) {
	if h == 0 || size <= 0 {
		return
	}
	rounded := ClassSize(size)
	a.pushFree(h, rounded)
	a.liveBytes.Add(-int64(rounded))
	a.freeBytes.Add(int64(rounded))
	a.frees.Inc()
}

// Bytes resolves a handle to its byte slice of length n. The slice is capped
// so appends cannot spill into neighboring allocations. Resolving a handle
// that was never returned by Alloc is undefined behavior.
func (a *Arena) Bytes(h Handle, n int) []byte {
	segIdx := uint64(h) >> a.segmentBits
	off := uint64(h) & a.segmentMask

	seg := a.segments[segIdx].Load()
	if seg == nil {
		panic("arena: stale handle")
	}
	return seg.data[off : off+uint64(n) : off+uint64(n)]
}

// Stats returns a snapshot of the arena accounting counters.
func (a *Arena) Stats() Stats {
	return Stats{
		Capacity:      a.capacity,
		BytesReserved: int64(a.segmentCount.Load()) * int64(a.segmentSize),
		BytesLive:     a.liveBytes.Value(),
		BytesFree:     a.freeBytes.Value(),
		Segments:      int(a.segmentCount.Load()),
		Allocs:        a.allocs.Value(),
		Frees:         a.frees.Value(),
	}
}

// Close unmaps all segments. The caller must guarantee no allocation or
// handle resolution is in flight; Close is not safe to call concurrently
// with any other method.
func (a *Arena) Close() error {
	if a.closed.Swap(true) {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	count := int(a.segmentCount.Load())
	for i := 0; i < count; i++ {
		seg := a.segments[i].Load()
		if seg != nil && seg.mapping != nil {
			if closeErr := seg.mapping.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}
		a.segments[i].Store(nil)
	}
	a.segmentCount.Store(0)
	a.current.Store(nil)
	return err
}

func (a *Arena) allocFresh(rounded int) (Handle, error) {
	if rounded <= localMax {
		return a.allocLocal(rounded)
	}
	return a.bumpAlloc(rounded)
}

func (a *Arena) allocLocal(rounded int) (Handle, error) {
	blk, _ := a.blocks.Get().(*localBlock)
	if blk == nil {
		blk = &localBlock{}
	}

	if blk.off+rounded > len(blk.buf) {
		a.recycleTail(blk)

		base, err := a.bumpAlloc(blockSize)
		if err != nil {
			a.blocks.Put(blk)
			// A smaller direct ask may still fit the remaining budget.
			return a.bumpAlloc(rounded)
		}
		blk.base = base
		blk.buf = a.Bytes(base, blockSize)
		blk.off = 0
	}

	h := blk.base + Handle(blk.off)
	blk.off += rounded
	a.blocks.Put(blk)
	return h, nil
}

// recycleTail pushes the unused remainder of an exhausted block onto the
// free lists so block turnover never leaks budget.
func (a *Arena) recycleTail(blk *localBlock) {
	rem := len(blk.buf) - blk.off
	for rem >= minClassSize {
		cls := 1 << (bits.Len(uint(rem)) - 1)
		h := blk.base + Handle(len(blk.buf)-rem)
		a.pushFree(h, cls)
		a.freeBytes.Add(int64(cls))
		rem -= cls
	}
	blk.buf = nil
	blk.off = 0
}

func (a *Arena) bumpAlloc(rounded int) (Handle, error) {
	for {
		curr := a.current.Load()
		if curr == nil {
			return 0, ErrClosed
		}

		if h, ok := a.tryBump(curr, rounded); ok {
			return h, nil
		}

		// Current segment is full. Check if someone else already grew.
		if a.current.Load() != curr {
			continue
		}

		a.mu.Lock()
		if a.current.Load() != curr {
			a.mu.Unlock()
			continue
		}
		err := a.growLocked()
		a.mu.Unlock()
		if err != nil {
			return 0, err
		}
	}
}

// tryBump claims rounded bytes from seg. It reports false only when the
// segment genuinely cannot fit the allocation; a lost CompareAndSwap is
// contention, not exhaustion, and must not trigger a grow that strands the
// rest of the segment.
func (a *Arena) tryBump(seg *segment, rounded int) (Handle, bool) {
	for {
		oldOffset := seg.offset.Load()
		newOffset := oldOffset + int64(rounded)
		if newOffset > int64(len(seg.data)) {
			return 0, false
		}
		if seg.offset.CompareAndSwap(oldOffset, newOffset) {
			return Handle(uint64(seg.index)<<a.segmentBits | uint64(oldOffset)), true
		}
	}
}

func (a *Arena) growLocked() error {
	idx := a.segmentCount.Load()
	if int(idx) >= a.maxSegments {
		return ErrArenaFull
	}

	mapping, err := mmap.MapAnon(a.segmentSize)
	if err != nil {
		return fmt.Errorf("arena: mapping segment: %w", err)
	}

	seg := &segment{
		data:    mapping.Bytes(),
		mapping: mapping,
		index:   idx,
	}

	// Publish the segment before bumping the count so lock-free Bytes()
	// always sees a valid pointer for any handle Alloc has handed out.
	a.segments[idx].Store(seg)
	a.segmentCount.Add(1)
	a.current.Store(seg)
	return nil
}

func (a *Arena) popFree(rounded int) (Handle, bool) {
	fl := &a.classes[classIndex(rounded)]
	fl.mu.Lock()
	defer fl.mu.Unlock()

	n := len(fl.handles)
	if n == 0 {
		return 0, false
	}
	h := fl.handles[n-1]
	fl.handles = fl.handles[:n-1]
	return h, true
}

func (a *Arena) pushFree(h Handle, rounded int) {
	fl := &a.classes[classIndex(rounded)]
	fl.mu.Lock()
	fl.handles = append(fl.handles, h)
	fl.mu.Unlock()
}

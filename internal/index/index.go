package index

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/hupe1980/arenamap/internal/arena"
	"github.com/hupe1980/arenamap/internal/epoch"
	"github.com/hupe1980/arenamap/internal/record"
	"github.com/hupe1980/arenamap/serializer"
)

const (
	// DefaultChunkCapacity is the number of entry slots per chunk.
	DefaultChunkCapacity = 128
	// MaxChunkCapacity bounds the slot count so order indices fit in uint16.
	MaxChunkCapacity = 1 << 15
)

// errRetry tells an operation loop to re-locate the key through the
// directory, typically after losing a publish race or hitting a seal.
var errRetry = errors.New("index: retry traversal")

// directory is the immutable sorted chunk list. Rebalances swap in a new
// directory; readers binary-search whatever snapshot they loaded.
type directory[K any] struct {
	chunks []*chunk[K]
}

// Index is the concurrent ordered index. Keys and values are stored as
// arena records; the index itself keeps only handles and packed state words.
type Index[K any] struct {
	arena    *arena.Arena
	rec      *epoch.Reclaimer
	cmp      serializer.Comparator[K]
	chunkCap int

	dir   atomic.Pointer[directory[K]]
	dirMu sync.Mutex

	length *xsync.Counter
}

// New creates an index whose first chunk is anchored at minKey, the
// serialized form of a key no stored key sorts below. chunkCap of 0 selects
// DefaultChunkCapacity.
func New[K any](a *arena.Arena, rec *epoch.Reclaimer, cmp serializer.Comparator[K], minKey []byte, chunkCap int) *Index[K] {
	if chunkCap <= 0 {
		chunkCap = DefaultChunkCapacity
	}
	if chunkCap > MaxChunkCapacity {
		chunkCap = MaxChunkCapacity
	}

	idx := &Index[K]{
		arena:    a,
		rec:      rec,
		cmp:      cmp,
		chunkCap: chunkCap,
		length:   xsync.NewCounter(),
	}
	first := newChunk[K](append([]byte(nil), minKey...), chunkCap)
	idx.dir.Store(&directory[K]{chunks: []*chunk[K]{first}})
	return idx
}

// Len returns the number of live entries. The value is approximate while
// writers are in flight, exact at rest.
func (idx *Index[K]) Len() int {
	return int(idx.length.Value())
}

// Chunks returns the current chunk count.
func (idx *Index[K]) Chunks() int {
	return len(idx.dir.Load().chunks)
}

// findChunk returns the chunk whose key range covers key: the last chunk
// whose minKey does not sort above it.
func (idx *Index[K]) findChunk(key K) *chunk[K] {
	chunks := idx.dir.Load().chunks
	lo, hi := 0, len(chunks)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if idx.cmp.CompareBytesAndKey(chunks[mid].minKey, key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return chunks[0]
	}
	return chunks[lo-1]
}

func (idx *Index[K]) findChunkBytes(keyBytes []byte) *chunk[K] {
	chunks := idx.dir.Load().chunks
	lo, hi := 0, len(chunks)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if idx.cmp.CompareBytes(chunks[mid].minKey, keyBytes) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return chunks[0]
	}
	return chunks[lo-1]
}

// searchOrd binary-searches the order snapshot. cmp receives an entry's
// serialized key and orders it against the target. Returns the match index
// or the insertion position.
func (idx *Index[K]) searchOrd(c *chunk[K], ord []uint16, cmp func(entryKey []byte) int) (int, bool) {
	lo, hi := 0, len(ord)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		d := cmp(idx.keyPayload(c.entries[ord[mid]].keyHandle))
		switch {
		case d < 0:
			lo = mid + 1
		case d > 0:
			hi = mid
		default:
			return mid, true
		}
	}
	return lo, false
}

// locate finds the chunk and order position for key, waiting out a seal.
// Lookups compare serialized entry keys directly against the key object, so
// reads never serialize.
func (idx *Index[K]) locate(key K) (*chunk[K], *[]uint16, int, bool) {
	for {
		c := idx.findChunk(key)
		ord, ok := c.loadOrder()
		if !ok {
			runtime.Gosched()
			continue
		}
		pos, found := idx.searchOrd(c, *ord, func(ek []byte) int {
			return idx.cmp.CompareBytesAndKey(ek, key)
		})
		return c, ord, pos, found
	}
}

func (idx *Index[K]) locateBytes(keyBytes []byte) (*chunk[K], *[]uint16, int, bool) {
	for {
		c := idx.findChunkBytes(keyBytes)
		ord, ok := c.loadOrder()
		if !ok {
			runtime.Gosched()
			continue
		}
		pos, found := idx.searchOrd(c, *ord, func(ek []byte) int {
			return idx.cmp.CompareBytes(ek, keyBytes)
		})
		return c, ord, pos, found
	}
}

// Get invokes read with the value payload of key while the bytes are
// guaranteed stable, returning whether the key was present. The caller must
// hold an epoch guard across the call.
func (idx *Index[K]) Get(key K, read func(valBytes []byte) error) (bool, error) {
	c, ord, pos, found := idx.locate(key)
	if !found {
		return false, nil
	}
	return idx.ReadValue(&c.entries[(*ord)[pos]], read)
}

// ReadValue runs read against the entry's current value payload and
// validates the read against the entry's seqlock. On validation failure the
// read raced a writer and is retried with the new value.
func (idx *Index[K]) ReadValue(e *entry, read func(valBytes []byte) error) (bool, error) {
	for {
		m1 := e.meta.Load()
		if m1&1 == 1 {
			// in-place mutation running
			runtime.Gosched()
			continue
		}
		v := e.value.Load()
		if v <= valueTombstone {
			return false, nil
		}
		payload := record.Payload(idx.recordBytes(arena.Handle(v)))
		err := read(payload)
		if e.meta.Load() == m1 && e.value.Load() == v {
			return true, err
		}
		runtime.Gosched()
	}
}

// Put maps key to the serialized value, inserting or replacing.
func (idx *Index[K]) Put(key K, keyBytes, valBytes []byte) error {
	for {
		c, ord, pos, found := idx.locateBytes(keyBytes)
		if found {
			err := idx.replaceValue(&c.entries[(*ord)[pos]], valBytes)
			if errors.Is(err, errFrozen) {
				continue
			}
			return err
		}
		err := idx.insert(c, ord, pos, keyBytes, valBytes)
		if errors.Is(err, errRetry) {
			continue
		}
		return err
	}
}

// PutIfAbsent inserts the value only when the key is absent or tombstoned.
// It reports whether the value was installed.
func (idx *Index[K]) PutIfAbsent(key K, keyBytes, valBytes []byte) (bool, error) {
	for {
		c, ord, pos, found := idx.locateBytes(keyBytes)
		if found {
			ok, err := idx.reviveIfAbsent(&c.entries[(*ord)[pos]], valBytes)
			if errors.Is(err, errFrozen) {
				continue
			}
			return ok, err
		}
		err := idx.insert(c, ord, pos, keyBytes, valBytes)
		if errors.Is(err, errRetry) {
			continue
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
}

// Remove tombstones the key's entry. It reports whether a live value was
// removed.
func (idx *Index[K]) Remove(key K) (bool, error) {
	for {
		c, ord, pos, found := idx.locate(key)
		if !found {
			return false, nil
		}
		removed, err := idx.tombstone(&c.entries[(*ord)[pos]])
		if errors.Is(err, errFrozen) {
			continue
		}
		return removed, err
	}
}

// ComputeIfPresent applies fn to the key's current value under the entry's
// writer exclusion. It reports whether fn was applied.
func (idx *Index[K]) ComputeIfPresent(key K, fn func(valBytes []byte) []byte) (bool, error) {
	for {
		c, ord, pos, found := idx.locate(key)
		if !found {
			return false, nil
		}
		applied, err := idx.compute(&c.entries[(*ord)[pos]], fn)
		if errors.Is(err, errFrozen) {
			continue
		}
		return applied, err
	}
}

// PutIfAbsentComputeIfPresent inserts the value when the key is absent,
// otherwise applies fn to the current value, with the same atomicity as the
// two standalone operations. It reports whether the value was inserted.
func (idx *Index[K]) PutIfAbsentComputeIfPresent(key K, keyBytes, valBytes []byte, fn func(valBytes []byte) []byte) (bool, error) {
	for {
		c, ord, pos, found := idx.locateBytes(keyBytes)
		if !found {
			err := idx.insert(c, ord, pos, keyBytes, valBytes)
			if errors.Is(err, errRetry) {
				continue
			}
			if err != nil {
				return false, err
			}
			return true, nil
		}

		e := &c.entries[(*ord)[pos]]
		applied, err := idx.compute(e, fn)
		if errors.Is(err, errFrozen) {
			continue
		}
		if err != nil {
			return false, err
		}
		if applied {
			return false, nil
		}
		// Tombstoned: revive with the initial value, unless a concurrent
		// writer got there first, in which case compute once more.
		ok, err := idx.reviveIfAbsent(e, valBytes)
		if errors.Is(err, errFrozen) || (err == nil && !ok) {
			continue
		}
		return ok, err
	}
}

// insert claims a slot in c, writes the entry, and publishes it at pos in
// the order snapshot ord. errRetry means the caller must re-locate: the
// chunk was full, sealed, or a concurrent insert won with the same key.
func (idx *Index[K]) insert(c *chunk[K], ord *[]uint16, pos int, keyBytes, valBytes []byte) error {
	slot, ok := c.claim()
	if !ok {
		idx.rebalance(c)
		return errRetry
	}

	kh, err := idx.allocRecord(keyBytes)
	if err != nil {
		return err
	}
	vh, err := idx.allocRecord(valBytes)
	if err != nil {
		idx.freeRecord(kh)
		return err
	}

	e := &c.entries[slot]
	e.keyHandle = kh
	e.meta.Store(0)
	e.value.Store(uint64(vh))

	cur, curPos := ord, pos
	for {
		next := make([]uint16, len(*cur)+1)
		copy(next, (*cur)[:curPos])
		next[curPos] = uint16(slot)
		copy(next[curPos+1:], (*cur)[curPos:])
		if c.publish(cur, &next) {
			idx.length.Inc()
			return nil
		}

		reload, ok := c.loadOrder()
		if !ok {
			idx.unpublishSlot(e, kh, vh)
			return errRetry
		}
		p, found := idx.searchOrd(c, *reload, func(ek []byte) int {
			return idx.cmp.CompareBytes(ek, keyBytes)
		})
		if found {
			idx.unpublishSlot(e, kh, vh)
			return errRetry
		}
		cur, curPos = reload, p
	}
}

// unpublishSlot abandons a claimed slot whose entry never made it into the
// order. The records were never visible, so they are freed directly.
func (idx *Index[K]) unpublishSlot(e *entry, kh, vh arena.Handle) {
	e.value.Store(valueAbsent)
	idx.freeRecord(kh)
	idx.freeRecord(vh)
}

// replaceValue swaps in a new value record, reviving a tombstoned entry.
func (idx *Index[K]) replaceValue(e *entry, valBytes []byte) error {
	vh, err := idx.allocRecord(valBytes)
	if err != nil {
		return err
	}
	if err := e.acquire(); err != nil {
		idx.freeRecord(vh)
		return err
	}
	old := e.value.Load()
	e.value.Store(uint64(vh))
	e.release(2)

	if old > valueTombstone {
		idx.retireRecord(arena.Handle(old))
	} else {
		idx.length.Inc()
	}
	return nil
}

// reviveIfAbsent installs the value only if the entry is tombstoned,
// reporting whether it did.
func (idx *Index[K]) reviveIfAbsent(e *entry, valBytes []byte) (bool, error) {
	if e.live() {
		return false, nil
	}
	vh, err := idx.allocRecord(valBytes)
	if err != nil {
		return false, err
	}
	if err := e.acquire(); err != nil {
		idx.freeRecord(vh)
		return false, err
	}
	if e.value.Load() > valueTombstone {
		e.release(0)
		idx.freeRecord(vh)
		return false, nil
	}
	e.value.Store(uint64(vh))
	e.release(2)
	idx.length.Inc()
	return true, nil
}

// tombstone logically deletes the entry's value.
func (idx *Index[K]) tombstone(e *entry) (bool, error) {
	if !e.live() {
		return false, nil
	}
	if err := e.acquire(); err != nil {
		return false, err
	}
	old := e.value.Load()
	if old <= valueTombstone {
		e.release(0)
		return false, nil
	}
	record.MarkTombstone(idx.recordBytes(arena.Handle(old)))
	e.value.Store(valueTombstone)
	e.release(2)

	idx.retireRecord(arena.Handle(old))
	idx.length.Dec()
	return true, nil
}

// compute applies fn to the entry's value under writer exclusion. A nil or
// same-slice result mutates in place under the seqlock; a fresh slice is
// installed as a new record and the old one retired. It reports false
// without error when the entry is tombstoned.
func (idx *Index[K]) compute(e *entry, fn func(valBytes []byte) []byte) (bool, error) {
	if err := e.acquire(); err != nil {
		return false, err
	}
	v := e.value.Load()
	if v <= valueTombstone {
		e.release(0)
		return false, nil
	}
	rec := idx.recordBytes(arena.Handle(v))
	payload := record.Payload(rec)

	// Enter the odd seqlock state so readers wait out the mutation instead
	// of observing it half-written.
	m := e.meta.Add(1)
	out := fn(payload)

	inPlace := out == nil || (len(out) == len(payload) && (len(out) == 0 || &out[0] == &payload[0]))
	if inPlace {
		record.SetVersion(rec, uint32((m+1)&versionMask))
		e.release(1)
		return true, nil
	}

	vh, err := idx.allocRecord(out)
	if err != nil {
		e.release(1)
		return false, err
	}
	e.value.Store(uint64(vh))
	e.release(1)
	idx.retireRecord(arena.Handle(v))
	return true, nil
}

// allocRecord stores payload as a framed arena record.
func (idx *Index[K]) allocRecord(payload []byte) (arena.Handle, error) {
	h, buf, err := idx.arena.Alloc(record.Size(len(payload)))
	if err != nil {
		return 0, err
	}
	copy(record.Init(buf, len(payload)), payload)
	return h, nil
}

// freeRecord returns a never-published record directly to the arena.
func (idx *Index[K]) freeRecord(h arena.Handle) {
	hdr := idx.arena.Bytes(h, record.HeaderSize)
	idx.arena.Free(h, record.Size(record.Length(hdr)))
}

// retireRecord hands a previously visible record to the reclaimer; readers
// inside the current epoch keep seeing stable bytes.
func (idx *Index[K]) retireRecord(h arena.Handle) {
	hdr := idx.arena.Bytes(h, record.HeaderSize)
	idx.rec.Retire(h, record.Size(record.Length(hdr)))
}

// recordBytes resolves the full framed record behind h.
func (idx *Index[K]) recordBytes(h arena.Handle) []byte {
	hdr := idx.arena.Bytes(h, record.HeaderSize)
	return idx.arena.Bytes(h, record.Size(record.Length(hdr)))
}

// keyPayload resolves an entry's serialized key.
func (idx *Index[K]) keyPayload(h arena.Handle) []byte {
	return record.Payload(idx.recordBytes(h))
}

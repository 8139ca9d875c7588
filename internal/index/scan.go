package index

import (
	"runtime"
)

// Bound is an endpoint of a scan's key range.
type Bound[K any] struct {
	Key       K
	Inclusive bool
}

// Scanner walks the index in key order. It is weakly consistent: entries
// present when the scan started and not removed are always delivered,
// concurrent inserts and removes may or may not be observed, and no key is
// delivered twice. The caller must hold an epoch guard for the scanner's
// whole lifetime and must not use it from multiple goroutines.
type Scanner[K any] struct {
	idx   *Index[K]
	desc  bool
	lower *Bound[K]
	upper *Bound[K]

	cur *chunk[K]
	ord []uint16
	pos int

	// lastKey is the serialized key last accepted, live or tombstoned. It
	// deduplicates entries re-encountered after a rebalance moved them.
	lastKey []byte

	e   *entry
	key []byte
}

// NewScanner creates a scanner over (lower, upper) in ascending or
// descending key order. Nil bounds are open ends.
func (idx *Index[K]) NewScanner(lower, upper *Bound[K], desc bool) *Scanner[K] {
	s := &Scanner[K]{idx: idx, desc: desc, lower: lower, upper: upper}
	s.start()
	return s
}

// Next advances to the next entry with a live value. It reports false when
// the range is exhausted.
func (s *Scanner[K]) Next() bool {
	if s.desc {
		return s.nextDesc()
	}
	return s.nextAsc()
}

// Key returns the current entry's serialized key. The bytes stay valid
// while the caller's epoch guard is held.
func (s *Scanner[K]) Key() []byte {
	return s.key
}

// ReadValue reads the current entry's value. found is false when the entry
// was removed after Next observed it.
func (s *Scanner[K]) ReadValue(read func(valBytes []byte) error) (bool, error) {
	return s.idx.ReadValue(s.e, read)
}

// Ref captures a stable reference to the current entry.
func (s *Scanner[K]) Ref() (Ref, bool) {
	return capture(s.e)
}

func (s *Scanner[K]) start() {
	for {
		var c *chunk[K]
		if s.desc {
			if s.upper != nil {
				c = s.idx.findChunk(s.upper.Key)
			} else {
				chunks := s.idx.dir.Load().chunks
				c = chunks[len(chunks)-1]
			}
		} else {
			c = s.relocateAsc()
		}
		ord, ok := c.loadOrder()
		if !ok {
			runtime.Gosched()
			continue
		}
		s.cur, s.ord = c, *ord
		if s.desc {
			s.pos = len(s.ord) - 1
		} else {
			s.pos = 0
		}
		return
	}
}

func (s *Scanner[K]) nextAsc() bool {
	for {
		if s.cur == nil {
			return false
		}
		for s.pos < len(s.ord) {
			e := &s.cur.entries[s.ord[s.pos]]
			s.pos++
			ek := s.idx.keyPayload(e.keyHandle)

			if s.lastKey != nil {
				if s.idx.cmp.CompareBytes(ek, s.lastKey) <= 0 {
					continue
				}
			} else if s.lower != nil {
				d := s.idx.cmp.CompareBytesAndKey(ek, s.lower.Key)
				if d < 0 || (d == 0 && !s.lower.Inclusive) {
					continue
				}
			}
			if s.upper != nil {
				d := s.idx.cmp.CompareBytesAndKey(ek, s.upper.Key)
				if d > 0 || (d == 0 && !s.upper.Inclusive) {
					s.cur = nil
					return false
				}
			}

			s.lastKey = ek
			if !e.live() {
				continue
			}
			s.e, s.key = e, ek
			return true
		}
		s.advanceAsc()
	}
}

// advanceAsc moves to the next chunk up the chain. A sealed successor means
// a rebalance is replacing it; re-locate past the last visited key through
// the directory, which always covers the full key space.
func (s *Scanner[K]) advanceAsc() {
	n := s.cur.next.Load()
	for {
		if n == nil {
			s.cur = nil
			return
		}
		ord, ok := n.loadOrder()
		if ok {
			s.cur, s.ord, s.pos = n, *ord, 0
			return
		}
		runtime.Gosched()
		n = s.relocateAsc()
	}
}

func (s *Scanner[K]) relocateAsc() *chunk[K] {
	if s.lastKey != nil {
		return s.idx.findChunkBytes(s.lastKey)
	}
	if s.lower != nil {
		return s.idx.findChunk(s.lower.Key)
	}
	return s.idx.dir.Load().chunks[0]
}

func (s *Scanner[K]) nextDesc() bool {
	for {
		if s.cur == nil {
			return false
		}
		for s.pos >= 0 {
			e := &s.cur.entries[s.ord[s.pos]]
			s.pos--
			ek := s.idx.keyPayload(e.keyHandle)

			if s.lastKey != nil {
				if s.idx.cmp.CompareBytes(ek, s.lastKey) >= 0 {
					continue
				}
			} else if s.upper != nil {
				d := s.idx.cmp.CompareBytesAndKey(ek, s.upper.Key)
				if d > 0 || (d == 0 && !s.upper.Inclusive) {
					continue
				}
			}
			if s.lower != nil {
				d := s.idx.cmp.CompareBytesAndKey(ek, s.lower.Key)
				if d < 0 || (d == 0 && !s.lower.Inclusive) {
					s.cur = nil
					return false
				}
			}

			s.lastKey = ek
			if !e.live() {
				continue
			}
			s.e, s.key = e, ek
			return true
		}
		s.advanceDesc()
	}
}

// advanceDesc steps to the chunk covering the range below the current
// chunk's boundary. The directory lookup per step keeps the walk correct
// across rebalances without back-pointers.
func (s *Scanner[K]) advanceDesc() {
	bound := s.cur.minKey
	for {
		c, ok := s.idx.chunkBelow(bound)
		if !ok {
			s.cur = nil
			return
		}
		ord, live := c.loadOrder()
		if live {
			s.cur, s.ord = c, *ord
			s.pos = len(s.ord) - 1
			return
		}
		runtime.Gosched()
	}
}

// chunkBelow returns the last chunk whose minKey sorts strictly below
// bound, or false at the low end of the key space.
func (idx *Index[K]) chunkBelow(bound []byte) (*chunk[K], bool) {
	chunks := idx.dir.Load().chunks
	lo, hi := 0, len(chunks)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if idx.cmp.CompareBytes(chunks[mid].minKey, bound) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return nil, false
	}
	return chunks[lo-1], true
}

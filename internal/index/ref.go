package index

import (
	"errors"
	"runtime"

	"github.com/hupe1980/arenamap/internal/arena"
	"github.com/hupe1980/arenamap/internal/record"
)

// ErrStale reports that the entry behind a Ref changed after the reference
// was captured: its value was replaced or removed, or a rebalance moved it.
var ErrStale = errors.New("index: stale entry reference")

// Ref is a stable reference to one entry's state at capture time. Any later
// mutation of the entry invalidates it; reads through an invalid Ref fail
// with ErrStale instead of observing reused memory.
type Ref struct {
	e     *entry
	meta  uint64
	value uint64
}

// capture snapshots a consistent (meta, value) pair for a live entry.
func capture(e *entry) (Ref, bool) {
	for {
		m := e.meta.Load()
		if m&1 == 1 {
			runtime.Gosched()
			continue
		}
		v := e.value.Load()
		if v <= valueTombstone {
			return Ref{}, false
		}
		if e.meta.Load() == m {
			return Ref{e: e, meta: m, value: v}, true
		}
	}
}

// GetRef captures a reference to the key's current entry state.
func (idx *Index[K]) GetRef(key K) (Ref, bool) {
	c, ord, pos, found := idx.locate(key)
	if !found {
		return Ref{}, false
	}
	return capture(&c.entries[(*ord)[pos]])
}

// ReadRef reads the referenced value, failing with ErrStale if the entry
// changed since capture. The caller must hold an epoch guard.
func (idx *Index[K]) ReadRef(r Ref, read func(valBytes []byte) error) error {
	if r.e == nil {
		return ErrStale
	}
	if r.e.meta.Load() != r.meta || r.e.value.Load() != r.value {
		return ErrStale
	}
	payload := record.Payload(idx.recordBytes(arena.Handle(r.value)))
	err := read(payload)
	if r.e.meta.Load() != r.meta || r.e.value.Load() != r.value {
		return ErrStale
	}
	return err
}

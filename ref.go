package arenamap

import (
	"github.com/hupe1980/arenamap/internal/index"
)

// EntryRef is a stable reference to a single entry, for view layers that
// want to re-read a value without repeating the index traversal. The
// reference carries the entry's liveness token from capture time: once the
// entry is removed, replaced, or relocated by a rebalance, every access
// fails with ErrConcurrentModification instead of returning reused bytes.
type EntryRef[K, V any] struct {
	m   *Map[K, V]
	ref index.Ref
	key K
}

// GetRef captures a reference to the key's current entry. ok is false when
// the key is absent.
func (m *Map[K, V]) GetRef(key K) (*EntryRef[K, V], bool) {
	if m.closed.Load() {
		return nil, false
	}
	g := m.rec.Enter()
	defer g.Close()

	r, ok := m.idx.GetRef(key)
	if !ok {
		return nil, false
	}
	return &EntryRef[K, V]{m: m, ref: r, key: key}, true
}

// Key returns the referenced key.
func (r *EntryRef[K, V]) Key() K {
	return r.key
}

// Value re-reads the referenced value. It fails with
// ErrConcurrentModification when the entry changed since capture.
func (r *EntryRef[K, V]) Value() (V, error) {
	var zero V
	if r.m.closed.Load() {
		return zero, ErrClosed
	}
	g := r.m.rec.Enter()
	defer g.Close()

	var out V
	err := r.m.idx.ReadRef(r.ref, func(valBytes []byte) error {
		v, err := r.m.valSer.Read(valBytes)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return zero, translateError(err)
	}
	return out, nil
}

// Valid reports whether the reference still matches the live entry. A true
// result is advisory: a concurrent writer may invalidate the reference
// immediately afterwards, so Value can still fail.
func (r *EntryRef[K, V]) Valid() bool {
	g := r.m.rec.Enter()
	defer g.Close()

	err := r.m.idx.ReadRef(r.ref, func([]byte) error { return nil })
	return err == nil
}

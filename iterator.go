package arenamap

import (
	"time"

	"github.com/hupe1980/arenamap/internal/epoch"
	"github.com/hupe1980/arenamap/internal/index"
)

// IterOptions configures a range scan.
type IterOptions[K any] struct {
	// LowerBound and UpperBound restrict the scanned key range; nil means
	// open-ended.
	LowerBound     *K
	LowerInclusive bool
	UpperBound     *K
	UpperInclusive bool

	// Descending reverses the traversal order.
	Descending bool
}

// From sets an inclusive lower bound.
func From[K any](key K) func(*IterOptions[K]) {
	return func(o *IterOptions[K]) {
		o.LowerBound = &key
		o.LowerInclusive = true
	}
}

// Above sets an exclusive lower bound.
func Above[K any](key K) func(*IterOptions[K]) {
	return func(o *IterOptions[K]) {
		o.LowerBound = &key
		o.LowerInclusive = false
	}
}

// To sets an inclusive upper bound.
func To[K any](key K) func(*IterOptions[K]) {
	return func(o *IterOptions[K]) {
		o.UpperBound = &key
		o.UpperInclusive = true
	}
}

// Below sets an exclusive upper bound.
func Below[K any](key K) func(*IterOptions[K]) {
	return func(o *IterOptions[K]) {
		o.UpperBound = &key
		o.UpperInclusive = false
	}
}

// Descending reverses the traversal order.
func Descending[K any]() func(*IterOptions[K]) {
	return func(o *IterOptions[K]) {
		o.Descending = true
	}
}

// Iterator walks the map in key order. It is a scoped resource: creation
// acquires an epoch guard that pins retired memory, released when the
// iterator is exhausted or closed. Always call Close (it is idempotent).
//
// The scan is weakly consistent: entries present at creation and not
// removed are always delivered, concurrent inserts and removes may or may
// not be observed, and no key is delivered twice. An Iterator must not be
// shared between goroutines.
//
// Example:
//
//	it := m.Iterator(arenamap.Above[uint64](4), arenamap.To[uint64](6))
//	defer it.Close()
//	for it.Next() {
//	    fmt.Println(it.Key(), it.Value())
//	}
//	if err := it.Err(); err != nil {
//	    return err
//	}
func (m *Map[K, V]) Iterator(optFns ...func(*IterOptions[K])) *Iterator[K, V] {
	var o IterOptions[K]
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	it := &Iterator[K, V]{m: m, descending: o.Descending, start: time.Now()}
	if m.closed.Load() {
		it.err = ErrClosed
		it.released = true
		return it
	}

	var lower, upper *index.Bound[K]
	if o.LowerBound != nil {
		lower = &index.Bound[K]{Key: *o.LowerBound, Inclusive: o.LowerInclusive}
	}
	if o.UpperBound != nil {
		upper = &index.Bound[K]{Key: *o.UpperBound, Inclusive: o.UpperInclusive}
	}

	it.guard = m.rec.Enter()
	it.s = m.idx.NewScanner(lower, upper, o.Descending)
	return it
}

// Iterator is a weakly-consistent ordered cursor over the map. See
// Map.Iterator.
type Iterator[K, V any] struct {
	m          *Map[K, V]
	guard      *epoch.Guard
	s          *index.Scanner[K]
	descending bool
	start      time.Time

	key   K
	value V
	err   error

	count    int
	released bool
}

// Next advances to the next entry, decoding its key and value. It returns
// false when the range is exhausted or an error occurred; the guard is
// released on exhaustion.
func (it *Iterator[K, V]) Next() bool {
	if it.released || it.err != nil {
		return false
	}
	for it.s.Next() {
		key, err := it.m.keySer.Read(it.s.Key())
		if err != nil {
			it.fail(err)
			return false
		}
		var value V
		found, err := it.s.ReadValue(func(valBytes []byte) error {
			v, err := it.m.valSer.Read(valBytes)
			if err != nil {
				return err
			}
			value = v
			return nil
		})
		if err != nil {
			it.fail(err)
			return false
		}
		if !found {
			// removed between the cursor step and the value read
			continue
		}
		it.key, it.value = key, value
		it.count++
		return true
	}
	it.release()
	return false
}

// Key returns the current entry's key. Valid after a true Next.
func (it *Iterator[K, V]) Key() K {
	return it.key
}

// Value returns the current entry's decoded value. Valid after a true Next.
func (it *Iterator[K, V]) Value() V {
	return it.value
}

// Ref captures a stable reference to the current entry. ok is false when
// the entry changed since Next observed it.
func (it *Iterator[K, V]) Ref() (*EntryRef[K, V], bool) {
	if it.released {
		return nil, false
	}
	r, ok := it.s.Ref()
	if !ok {
		return nil, false
	}
	return &EntryRef[K, V]{m: it.m, ref: r, key: it.key}, true
}

// Err returns the first error the iterator encountered, if any.
func (it *Iterator[K, V]) Err() error {
	return it.err
}

// Close releases the iterator's epoch guard. It is idempotent and safe to
// call at any point of the scan.
func (it *Iterator[K, V]) Close() {
	it.release()
}

func (it *Iterator[K, V]) fail(err error) {
	it.err = translateError(err)
	it.release()
}

func (it *Iterator[K, V]) release() {
	if it.released {
		return
	}
	it.released = true
	it.guard.Close()
	it.m.metrics.RecordScan(it.count, time.Since(it.start))
	it.m.logger.LogScan(it.count, it.descending, it.err)
}

package arenamap

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/arenamap/internal/arena"
	"github.com/hupe1980/arenamap/internal/epoch"
	"github.com/hupe1980/arenamap/internal/index"
	"github.com/hupe1980/arenamap/serializer"
)

// UpdateFunc transforms a value's serialized bytes in place. It runs inside
// the entry's critical section: keep it short and never let it block.
//
// Contract:
//   - Returning nil or the input slice publishes the (size-preserving)
//     in-place mutation.
//   - Returning a different slice replaces the value with the returned
//     bytes; in that case the input must be left unmodified.
type UpdateFunc func(value []byte) []byte

// Map is a concurrent, ordered key-value map whose keys and values live in
// manually managed memory outside the Go heap. Reads are lock-free, writers
// to the same key serialize on a per-entry exclusion, and range scans are
// weakly consistent in both directions.
//
// All methods are safe for concurrent use, except Close, which must not
// race with other operations.
type Map[K, V any] struct {
	keySer serializer.Serializer[K]
	valSer serializer.Serializer[V]
	cmp    serializer.Comparator[K]

	arena *arena.Arena
	rec   *epoch.Reclaimer
	idx   *index.Index[K]

	logger  *Logger
	metrics MetricsCollector

	closed atomic.Bool
}

func newMap[K, V any](capacity int64, keySer serializer.Serializer[K], valSer serializer.Serializer[V], cmp serializer.Comparator[K], minKeyBytes []byte, optFns ...Option) (*Map[K, V], error) {
	o := applyOptions(optFns)

	a, err := arena.New(capacity, o.segmentSize)
	if err != nil {
		return nil, translateError(err)
	}
	rec := epoch.NewReclaimer(a)

	return &Map[K, V]{
		keySer:  keySer,
		valSer:  valSer,
		cmp:     cmp,
		arena:   a,
		rec:     rec,
		idx:     index.New[K](a, rec, cmp, minKeyBytes, o.chunkCapacity),
		logger:  o.logger,
		metrics: o.metricsCollector,
	}, nil
}

// Get returns the value mapped to key, decoded onto the heap. The second
// return is false when the key is absent.
func (m *Map[K, V]) Get(key K) (V, bool, error) {
	var zero V
	if m.closed.Load() {
		return zero, false, ErrClosed
	}
	start := time.Now()
	g := m.rec.Enter()
	defer g.Close()

	var out V
	found, err := m.idx.Get(key, func(valBytes []byte) error {
		v, err := m.valSer.Read(valBytes)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	err = translateError(err)
	m.metrics.RecordGet(time.Since(start), found, err)
	if err != nil || !found {
		return zero, found, err
	}
	return out, true, nil
}

// Put maps key to value, inserting or replacing. Replacement is a single
// atomic swap of the entry's value; concurrent readers see either the old
// or the new value, never a mix.
func (m *Map[K, V]) Put(key K, value V) error {
	if m.closed.Load() {
		return ErrClosed
	}
	start := time.Now()

	keyBytes, valBytes, err := m.encode(key, value)
	if err == nil {
		g := m.rec.Enter()
		err = m.idx.Put(key, keyBytes, valBytes)
		g.Close()
		m.rec.Reclaim()
	}
	err = translateError(err)
	m.metrics.RecordPut(time.Since(start), err)
	m.logger.LogPut("put", len(keyBytes), len(valBytes), err)
	return err
}

// PutIfAbsent maps key to value only if the key is absent. It reports
// whether the value was installed; under a race, at most one concurrent
// writer succeeds.
func (m *Map[K, V]) PutIfAbsent(key K, value V) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}
	start := time.Now()

	var inserted bool
	keyBytes, valBytes, err := m.encode(key, value)
	if err == nil {
		g := m.rec.Enter()
		inserted, err = m.idx.PutIfAbsent(key, keyBytes, valBytes)
		g.Close()
		m.rec.Reclaim()
	}
	err = translateError(err)
	m.metrics.RecordPut(time.Since(start), err)
	m.logger.LogPut("put_if_absent", len(keyBytes), len(valBytes), err)
	return inserted, err
}

// Remove deletes the key's value if present; removing an absent key is a
// no-op. References obtained before the removal fail their next access with
// ErrConcurrentModification.
func (m *Map[K, V]) Remove(key K) error {
	if m.closed.Load() {
		return ErrClosed
	}
	start := time.Now()

	g := m.rec.Enter()
	removed, err := m.idx.Remove(key)
	g.Close()
	m.rec.Reclaim()

	err = translateError(err)
	m.metrics.RecordRemove(time.Since(start), err)
	m.logger.LogRemove(removed, err)
	return err
}

// ComputeIfPresent applies fn to the key's current value bytes if the key
// is present, atomically with respect to all other operations on the key.
// It reports whether fn was applied.
func (m *Map[K, V]) ComputeIfPresent(key K, fn UpdateFunc) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}
	start := time.Now()

	g := m.rec.Enter()
	applied, err := m.idx.ComputeIfPresent(key, fn)
	g.Close()
	m.rec.Reclaim()

	err = translateError(err)
	m.metrics.RecordCompute(time.Since(start), applied, err)
	m.logger.LogCompute(applied, err)
	return applied, err
}

// PutIfAbsentComputeIfPresent inserts value if the key is absent, otherwise
// applies fn to the existing value - one index traversal, with the same
// atomicity as the two standalone operations. It reports whether the value
// was inserted (false means fn was applied).
func (m *Map[K, V]) PutIfAbsentComputeIfPresent(key K, value V, fn UpdateFunc) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}
	start := time.Now()

	var inserted bool
	keyBytes, valBytes, err := m.encode(key, value)
	if err == nil {
		g := m.rec.Enter()
		inserted, err = m.idx.PutIfAbsentComputeIfPresent(key, keyBytes, valBytes, fn)
		g.Close()
		m.rec.Reclaim()
	}
	err = translateError(err)
	m.metrics.RecordPut(time.Since(start), err)
	m.logger.LogPut("put_if_absent_compute_if_present", len(keyBytes), len(valBytes), err)
	return inserted, err
}

// Len returns the number of live entries. The value is approximate while
// writers are in flight, exact at rest.
func (m *Map[K, V]) Len() int {
	return m.idx.Len()
}

// Stats reports memory and structure usage.
type Stats struct {
	Entries int
	Chunks  int

	// Arena accounting. BytesLive + BytesFree never exceeds Capacity.
	Capacity      int64
	BytesReserved int64
	BytesLive     int64
	BytesFree     int64
	Segments      int

	// Reclaimer state.
	Epoch          uint64
	ActiveGuards   int
	RetiredPending int64
	Reclaimed      int64
}

// Stats returns a point-in-time snapshot of map usage.
func (m *Map[K, V]) Stats() Stats {
	as := m.arena.Stats()
	es := m.rec.Stats()
	return Stats{
		Entries:        m.idx.Len(),
		Chunks:         m.idx.Chunks(),
		Capacity:       as.Capacity,
		BytesReserved:  as.BytesReserved,
		BytesLive:      as.BytesLive,
		BytesFree:      as.BytesFree,
		Segments:       as.Segments,
		Epoch:          es.Epoch,
		ActiveGuards:   es.ActiveGuards,
		RetiredPending: es.Pending,
		Reclaimed:      es.Reclaimed,
	}
}

// Close unmaps all off-heap memory. The map must not be used afterwards,
// and Close must not run concurrently with other operations. Close is
// idempotent.
func (m *Map[K, V]) Close() error {
	if m == nil || !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	stats := m.Stats()
	err := m.arena.Close()
	m.logger.LogClose(stats, err)
	return err
}

func (m *Map[K, V]) encode(key K, value V) (keyBytes, valBytes []byte, err error) {
	keyBytes = make([]byte, m.keySer.SizeOf(key))
	if err := m.keySer.Write(key, keyBytes); err != nil {
		return nil, nil, err
	}
	valBytes = make([]byte, m.valSer.SizeOf(value))
	if err := m.valSer.Write(value, valBytes); err != nil {
		return nil, nil, err
	}
	return keyBytes, valBytes, nil
}

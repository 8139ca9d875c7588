// Package arenamap provides a concurrent, ordered key-value map backed by
// off-heap memory.
//
// Keys and values live in manually managed arena segments mapped outside
// the Go heap, so working sets of many gigabytes do not inflate garbage
// collection pauses. On top of the arena sit:
//
//   - Epoch-based reclamation: retired memory is reused only once every
//     operation that could have observed it has finished, so readers are
//     lock-free without risking use-after-free.
//   - A chunked ordered index: fixed-capacity chunks of entries with
//     copy-on-write sorted views and a copy-on-write chunk directory, giving
//     lock-free O(log n) lookups and cache-friendly scans.
//   - An atomic update protocol: put, putIfAbsent, remove, computeIfPresent
//     and putIfAbsentComputeIfPresent serialize same-key writers on a
//     per-entry exclusion while readers validate against a seqlock version.
//   - Weakly-consistent iterators: ascending and descending range scans
//     with optional inclusive/exclusive bounds, scoped by an epoch guard.
//
// # Quick Start
//
// Create a map with the fluent builder:
//
//	m, err := arenamap.Uint64Keys[string](serializer.String{}).
//	    Capacity(1 << 30). // 1 GiB off-heap budget
//	    Build()
//	if err != nil {
//	    panic(err)
//	}
//	defer m.Close()
//
//	if err := m.Put(42, "answer"); err != nil { ... }
//	v, found, err := m.Get(42)
//
// Range scans:
//
//	it := m.Iterator(arenamap.From[uint64](100), arenamap.Below[uint64](200))
//	defer it.Close()
//	for it.Next() {
//	    process(it.Key(), it.Value())
//	}
//
// In-place updates without reallocation:
//
//	applied, err := m.ComputeIfPresent(42, func(value []byte) []byte {
//	    binary.LittleEndian.PutUint64(value, counter)
//	    return value // same slice: published in place
//	})
//
// Custom key and value types plug in through the serializer package:
// implement serializer.Serializer for the encoding and, for keys,
// serializer.Comparator for the order.
//
// # Memory model
//
// The capacity passed to the builder is a hard budget covering keys, values
// and free lists. When it is exhausted, writes fail with ErrArenaFull and
// the map stays fully usable. Removing entries returns their memory to
// size-class free lists for reuse; memory is returned to the OS only on
// Close.
package arenamap

// Package index implements the concurrent, chunked ordered index over
// arena-resident entries.
//
// # Structure
//
// Entries live in fixed-capacity chunks. Each chunk owns an append-only slot
// array plus a copy-on-write sorted order slice published through an atomic
// pointer, so readers binary-search a consistent snapshot without locks. A
// copy-on-write directory of chunks ordered by minimum key forms the sparse
// skip layer: locating the chunk for a key is a lock-free binary search.
//
// # Mutation protocol
//
// Inserts claim a slot, write the entry, then publish it by CAS-swapping the
// chunk's order slice. Value updates serialize per entry through a writer
// bit in the entry's meta word; readers validate reads against the meta
// seqlock version instead of blocking. When a chunk fills up it is sealed
// (its order pointer swapped to a sentinel), its live entries are compacted
// into one or two replacement chunks, and the directory is swapped - writers
// and readers that observe the seal simply re-locate through the directory.
//
// Entries migrated or dropped by a rebalance keep their bytes intact and
// their meta frozen, so operations still holding pre-rebalance snapshots
// read consistent data and stale external references fail validation instead
// of observing reused memory.
package index

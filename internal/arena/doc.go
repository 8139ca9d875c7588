// Package arena provides a manually-managed off-heap memory allocator with a
// fixed byte budget.
//
// # Concurrency Model
//
// All methods except Close are safe for concurrent use. Allocation is
// lock-free in the common case: goroutines carve small slices out of private
// bump blocks and only fall back to the shared CAS bump pointer (and, rarely,
// the segment-growth mutex) when a block is exhausted.
//
// # Memory Management
//
// Memory is obtained from the OS as large anonymous mappings (segments) that
// never move while the arena is open, so a handle resolved once stays valid
// until the slice is freed and reused. Freed slices go onto size-class free
// lists and are recycled before any new segment space is consumed. Free never
// zeroes or unmaps memory.
//
// The arena enforces a hard capacity configured at construction: growth adds
// segments up to the budget and ErrArenaFull is returned once neither the
// free lists nor the remaining budget can satisfy an allocation.
package arena

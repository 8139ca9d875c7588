package index

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/hupe1980/arenamap/internal/arena"
)

// Entry meta word layout. The low 32 bits hold the seqlock version: odd
// while an in-place mutation is running, even otherwise. The top bits carry
// the writer lock and the frozen flag set by rebalancing.
const (
	versionMask uint64 = (1 << 32) - 1

	metaFrozen uint64 = 1 << 62
	metaWriter uint64 = 1 << 63
)

// Sentinel value words. Real arena handles never collide with these because
// the arena reserves its lowest offsets at construction.
const (
	valueAbsent    uint64 = 0
	valueTombstone uint64 = 1
)

// errFrozen signals that the entry was frozen by a rebalance mid-operation.
// Callers re-locate the key through the directory and try again.
var errFrozen = errors.New("index: entry frozen by rebalance")

// entry is a single key slot inside a chunk. The key handle is written
// before the entry is published through the chunk's order slice and is
// immutable afterwards; value and meta change under the update protocol.
type entry struct {
	keyHandle arena.Handle
	value     atomic.Uint64
	meta      atomic.Uint64
}

// acquire takes the entry's writer lock, spinning while another writer
// holds it. It fails with errFrozen once a rebalance has claimed the entry.
func (e *entry) acquire() error {
	for {
		m := e.meta.Load()
		if m&metaFrozen != 0 {
			return errFrozen
		}
		if m&metaWriter != 0 {
			runtime.Gosched()
			continue
		}
		if e.meta.CompareAndSwap(m, m|metaWriter) {
			return nil
		}
	}
}

// release drops the writer lock and advances the version by bump. Writers
// that swapped the value word pass 2 to invalidate concurrent readers and
// stale references; no-op writers pass 0.
func (e *entry) release(bump uint64) {
	for {
		m := e.meta.Load()
		if e.meta.CompareAndSwap(m, (m&^metaWriter)+bump) {
			return
		}
	}
}

// freeze marks the entry immutable, waiting out any writer in flight. Only
// the rebalancer calls this; the flag is never cleared, so references into
// the pre-rebalance chunk fail validation from here on.
func (e *entry) freeze() {
	for {
		m := e.meta.Load()
		if m&metaWriter != 0 {
			runtime.Gosched()
			continue
		}
		if e.meta.CompareAndSwap(m, m|metaFrozen) {
			return
		}
	}
}

// live reports whether the entry currently maps to a value record.
func (e *entry) live() bool {
	return e.value.Load() > valueTombstone
}

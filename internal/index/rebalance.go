package index

// rebalance seals c, compacts its live entries, and replaces it in the
// chain and directory with one or two fresh chunks. Tombstoned entries are
// dropped and their key records retired. Concurrent operations that observe
// the seal or a frozen entry re-locate through the directory; operations
// still holding pre-seal snapshots keep reading the old entries, whose
// bytes and value words never change again.
func (idx *Index[K]) rebalance(c *chunk[K]) {
	c.rebalanceMu.Lock()
	defer c.rebalanceMu.Unlock()
	if c.replaced.Load() {
		return
	}

	// Seal: the CAS takes the final order snapshot and shuts out publishes
	// in one step.
	var ord []uint16
	for {
		p := c.order.Load()
		if c.order.CompareAndSwap(p, sealedOrder) {
			ord = *p
			break
		}
	}

	// Freeze every published entry. From here on no value word or payload
	// in c can change.
	for _, slot := range ord {
		c.entries[slot].freeze()
	}

	// Compact: keep live entries, drop tombstones and retire their keys.
	live := make([]uint16, 0, len(ord))
	for _, slot := range ord {
		e := &c.entries[slot]
		if e.value.Load() <= valueTombstone {
			idx.retireRecord(e.keyHandle)
			continue
		}
		live = append(live, slot)
	}

	// Split only when compaction alone would leave the chunk nearly full.
	var parts [][]uint16
	if len(live) > idx.chunkCap*3/4 {
		mid := len(live) / 2
		parts = [][]uint16{live[:mid], live[mid:]}
	} else {
		parts = [][]uint16{live}
	}

	repl := make([]*chunk[K], 0, len(parts))
	for i, part := range parts {
		var minKey []byte
		if i == 0 {
			// The first replacement inherits the chunk's boundary so the
			// directory's key ranges stay a partition.
			minKey = c.minKey
		} else {
			minKey = append([]byte(nil), idx.keyPayload(c.entries[part[0]].keyHandle)...)
		}
		n := newChunk[K](minKey, idx.chunkCap)
		for j, slot := range part {
			src := &c.entries[slot]
			dst := &n.entries[j]
			dst.keyHandle = src.keyHandle
			dst.value.Store(src.value.Load())
		}
		n.allocIdx.Store(int32(len(part)))
		ordN := make([]uint16, len(part))
		for j := range ordN {
			ordN[j] = uint16(j)
		}
		n.order.Store(&ordN)
		repl = append(repl, n)
	}

	// Splice the replacements into the chain and swap the directory. The
	// dead chunk keeps its own next pointer so scans parked on it still
	// reach the rest of the chain.
	idx.dirMu.Lock()
	last := repl[len(repl)-1]
	next := c.next.Load()
	last.next.Store(next)
	if len(repl) == 2 {
		repl[0].next.Store(repl[1])
	}

	d := idx.dir.Load()
	chunks := make([]*chunk[K], 0, len(d.chunks)+len(repl)-1)
	for i, cc := range d.chunks {
		if cc != c {
			chunks = append(chunks, cc)
			continue
		}
		chunks = append(chunks, repl...)
		if i > 0 {
			chunks[i-1].next.Store(repl[0])
		}
	}
	idx.dir.Store(&directory[K]{chunks: chunks})
	idx.dirMu.Unlock()

	c.replaced.Store(true)
}

package index

import (
	"errors"
	"math/rand"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/arenamap/internal/arena"
	"github.com/hupe1980/arenamap/internal/epoch"
	"github.com/hupe1980/arenamap/serializer"
)

func newTestIndex(t *testing.T, chunkCap int) (*Index[uint64], *epoch.Reclaimer) {
	t.Helper()
	a, err := arena.New(64<<20, 0)
	if err != nil {
		t.Fatalf("arena.New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	rec := epoch.NewReclaimer(a)
	return New[uint64](a, rec, serializer.Uint64Comparator{}, u64(0), chunkCap), rec
}

func u64(v uint64) []byte {
	buf := make([]byte, 8)
	serializer.Uint64{}.Write(v, buf)
	return buf
}

func putU64(t *testing.T, idx *Index[uint64], k, v uint64) {
	t.Helper()
	if err := idx.Put(k, u64(k), u64(v)); err != nil {
		t.Fatalf("Put(%d): %v", k, err)
	}
}

func getU64(t *testing.T, idx *Index[uint64], rec *epoch.Reclaimer, k uint64) (uint64, bool) {
	t.Helper()
	g := rec.Enter()
	defer g.Close()

	var out uint64
	found, err := idx.Get(k, func(b []byte) error {
		v, err := serializer.Uint64{}.Read(b)
		out = v
		return err
	})
	if err != nil {
		t.Fatalf("Get(%d): %v", k, err)
	}
	return out, found
}

func TestIndex_PutGet(t *testing.T) {
	idx, rec := newTestIndex(t, 0)

	keys := rand.New(rand.NewSource(1)).Perm(200)
	for _, k := range keys {
		putU64(t, idx, uint64(k), uint64(k)*10)
	}
	for _, k := range keys {
		v, found := getU64(t, idx, rec, uint64(k))
		if !found {
			t.Fatalf("key %d not found", k)
		}
		if v != uint64(k)*10 {
			t.Fatalf("key %d: got %d, want %d", k, v, k*10)
		}
	}
	if _, found := getU64(t, idx, rec, 10_000); found {
		t.Fatal("absent key reported present")
	}
	if got := idx.Len(); got != 200 {
		t.Fatalf("Len() = %d, want 200", got)
	}
}

func TestIndex_PutOverwrite(t *testing.T) {
	idx, rec := newTestIndex(t, 0)

	putU64(t, idx, 7, 1)
	putU64(t, idx, 7, 2)

	if v, _ := getU64(t, idx, rec, 7); v != 2 {
		t.Fatalf("got %d, want 2", v)
	}
	if got := idx.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
}

func TestIndex_PutIfAbsent(t *testing.T) {
	idx, rec := newTestIndex(t, 0)

	ok, err := idx.PutIfAbsent(3, u64(3), u64(30))
	if err != nil || !ok {
		t.Fatalf("first PutIfAbsent: ok=%v err=%v", ok, err)
	}
	ok, err = idx.PutIfAbsent(3, u64(3), u64(31))
	if err != nil || ok {
		t.Fatalf("second PutIfAbsent: ok=%v err=%v", ok, err)
	}
	if v, _ := getU64(t, idx, rec, 3); v != 30 {
		t.Fatalf("got %d, want 30", v)
	}

	// a tombstoned entry counts as absent
	if _, err := idx.Remove(3); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	ok, err = idx.PutIfAbsent(3, u64(3), u64(32))
	if err != nil || !ok {
		t.Fatalf("PutIfAbsent after remove: ok=%v err=%v", ok, err)
	}
	if v, _ := getU64(t, idx, rec, 3); v != 32 {
		t.Fatalf("got %d, want 32", v)
	}
}

func TestIndex_Remove(t *testing.T) {
	idx, rec := newTestIndex(t, 0)

	putU64(t, idx, 1, 10)
	removed, err := idx.Remove(1)
	if err != nil || !removed {
		t.Fatalf("Remove: removed=%v err=%v", removed, err)
	}
	if _, found := getU64(t, idx, rec, 1); found {
		t.Fatal("removed key still present")
	}
	if got := idx.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0", got)
	}

	removed, err = idx.Remove(1)
	if err != nil || removed {
		t.Fatalf("second Remove: removed=%v err=%v", removed, err)
	}
	removed, err = idx.Remove(99)
	if err != nil || removed {
		t.Fatalf("Remove of absent key: removed=%v err=%v", removed, err)
	}
}

func TestIndex_ComputeIfPresent(t *testing.T) {
	idx, rec := newTestIndex(t, 0)
	putU64(t, idx, 5, 100)

	// size-preserving mutation in place
	applied, err := idx.ComputeIfPresent(5, func(b []byte) []byte {
		v, _ := serializer.Uint64{}.Read(b)
		serializer.Uint64{}.Write(v+1, b)
		return b
	})
	if err != nil || !applied {
		t.Fatalf("in-place compute: applied=%v err=%v", applied, err)
	}
	if v, _ := getU64(t, idx, rec, 5); v != 101 {
		t.Fatalf("got %d, want 101", v)
	}

	// size-changing mutation swaps in a fresh record
	applied, err = idx.ComputeIfPresent(5, func(b []byte) []byte {
		return append(b[:len(b):len(b)], 0xFF)
	})
	if err != nil || !applied {
		t.Fatalf("resize compute: applied=%v err=%v", applied, err)
	}
	g := rec.Enter()
	found, err := idx.Get(5, func(b []byte) error {
		if len(b) != 9 {
			t.Fatalf("payload length %d, want 9", len(b))
		}
		return nil
	})
	g.Close()
	if err != nil || !found {
		t.Fatalf("Get after resize: found=%v err=%v", found, err)
	}

	applied, err = idx.ComputeIfPresent(6, func(b []byte) []byte { return nil })
	if err != nil || applied {
		t.Fatalf("compute on absent key: applied=%v err=%v", applied, err)
	}
}

func TestIndex_PutIfAbsentComputeIfPresent(t *testing.T) {
	idx, rec := newTestIndex(t, 0)

	inserted, err := idx.PutIfAbsentComputeIfPresent(9, u64(9), u64(1), func(b []byte) []byte { return nil })
	if err != nil || !inserted {
		t.Fatalf("absent: inserted=%v err=%v", inserted, err)
	}
	inserted, err = idx.PutIfAbsentComputeIfPresent(9, u64(9), u64(1), func(b []byte) []byte {
		v, _ := serializer.Uint64{}.Read(b)
		serializer.Uint64{}.Write(v*2, b)
		return b
	})
	if err != nil || inserted {
		t.Fatalf("present: inserted=%v err=%v", inserted, err)
	}
	if v, _ := getU64(t, idx, rec, 9); v != 2 {
		t.Fatalf("got %d, want 2", v)
	}
}

func TestIndex_RebalanceSplits(t *testing.T) {
	idx, rec := newTestIndex(t, 16)

	const n = 2000
	for _, k := range rand.New(rand.NewSource(42)).Perm(n) {
		putU64(t, idx, uint64(k), uint64(k))
	}
	if idx.Chunks() < 2 {
		t.Fatalf("Chunks() = %d, expected splits", idx.Chunks())
	}
	for k := uint64(0); k < n; k++ {
		if v, found := getU64(t, idx, rec, k); !found || v != k {
			t.Fatalf("key %d after splits: found=%v v=%d", k, found, v)
		}
	}
	if got := idx.Len(); got != n {
		t.Fatalf("Len() = %d, want %d", got, n)
	}
}

func collect(t *testing.T, idx *Index[uint64], rec *epoch.Reclaimer, lower, upper *Bound[uint64], desc bool) []uint64 {
	t.Helper()
	g := rec.Enter()
	defer g.Close()

	var out []uint64
	s := idx.NewScanner(lower, upper, desc)
	for s.Next() {
		k, err := serializer.Uint64{}.Read(s.Key())
		if err != nil {
			t.Fatalf("decode key: %v", err)
		}
		out = append(out, k)
	}
	return out
}

func TestIndex_ScanAscending(t *testing.T) {
	idx, rec := newTestIndex(t, 16)
	for _, k := range []uint64{7, 4, 6, 5} {
		putU64(t, idx, k, k)
	}

	got := collect(t, idx, rec, nil, nil, false)
	want := []uint64{4, 5, 6, 7}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestIndex_ScanBounds(t *testing.T) {
	idx, rec := newTestIndex(t, 16)
	for _, k := range []uint64{4, 5, 6, 7} {
		putU64(t, idx, k, k)
	}

	lower := &Bound[uint64]{Key: 4, Inclusive: false}
	upper := &Bound[uint64]{Key: 6, Inclusive: true}

	got := collect(t, idx, rec, lower, upper, false)
	if len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Fatalf("ascending (4,6]: got %v, want [5 6]", got)
	}

	got = collect(t, idx, rec, lower, upper, true)
	if len(got) != 2 || got[0] != 6 || got[1] != 5 {
		t.Fatalf("descending (4,6]: got %v, want [6 5]", got)
	}
}

func TestIndex_ScanDescending(t *testing.T) {
	idx, rec := newTestIndex(t, 16)

	const n = 500
	for _, k := range rand.New(rand.NewSource(7)).Perm(n) {
		putU64(t, idx, uint64(k), uint64(k))
	}

	got := collect(t, idx, rec, nil, nil, true)
	if len(got) != n {
		t.Fatalf("scan returned %d keys, want %d", len(got), n)
	}
	for i, k := range got {
		if k != uint64(n-1-i) {
			t.Fatalf("position %d: got %d, want %d", i, k, n-1-i)
		}
	}
}

func TestIndex_ScanSkipsTombstones(t *testing.T) {
	idx, rec := newTestIndex(t, 16)
	for k := uint64(0); k < 10; k++ {
		putU64(t, idx, k, k)
	}
	for k := uint64(0); k < 10; k += 2 {
		if _, err := idx.Remove(k); err != nil {
			t.Fatalf("Remove(%d): %v", k, err)
		}
	}

	got := collect(t, idx, rec, nil, nil, false)
	if len(got) != 5 {
		t.Fatalf("got %v, want 5 odd keys", got)
	}
	for i, k := range got {
		if k != uint64(2*i+1) {
			t.Fatalf("got %v, want odd keys", got)
		}
	}
}

func TestIndex_RefInvalidation(t *testing.T) {
	idx, rec := newTestIndex(t, 0)
	putU64(t, idx, 1, 10)

	r, ok := idx.GetRef(1)
	if !ok {
		t.Fatal("GetRef on live key failed")
	}

	g := rec.Enter()
	err := idx.ReadRef(r, func(b []byte) error { return nil })
	g.Close()
	if err != nil {
		t.Fatalf("ReadRef before mutation: %v", err)
	}

	putU64(t, idx, 1, 11)

	g = rec.Enter()
	err = idx.ReadRef(r, func(b []byte) error { return nil })
	g.Close()
	if !errors.Is(err, ErrStale) {
		t.Fatalf("ReadRef after overwrite: err=%v, want ErrStale", err)
	}

	r, _ = idx.GetRef(1)
	if _, err := idx.Remove(1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	g = rec.Enter()
	err = idx.ReadRef(r, func(b []byte) error { return nil })
	g.Close()
	if !errors.Is(err, ErrStale) {
		t.Fatalf("ReadRef after remove: err=%v, want ErrStale", err)
	}
}

func TestIndex_ConcurrentPutGet(t *testing.T) {
	idx, rec := newTestIndex(t, 32)

	const (
		writers = 4
		perW    = 500
	)
	var eg errgroup.Group
	for w := 0; w < writers; w++ {
		base := uint64(w * perW)
		eg.Go(func() error {
			for i := uint64(0); i < perW; i++ {
				k := base + i
				if err := idx.Put(k, u64(k), u64(k+1)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	for r := 0; r < 2; r++ {
		eg.Go(func() error {
			for i := 0; i < 2000; i++ {
				g := rec.Enter()
				_, err := idx.Get(uint64(i%(writers*perW)), func([]byte) error { return nil })
				g.Close()
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("concurrent ops: %v", err)
	}

	for k := uint64(0); k < writers*perW; k++ {
		if v, found := getU64(t, idx, rec, k); !found || v != k+1 {
			t.Fatalf("key %d: found=%v v=%d", k, found, v)
		}
	}
	if got := idx.Len(); got != writers*perW {
		t.Fatalf("Len() = %d, want %d", got, writers*perW)
	}
}

func TestIndex_ConcurrentPutIfAbsentSingleWinner(t *testing.T) {
	idx, _ := newTestIndex(t, 32)

	const contenders = 8
	var eg errgroup.Group
	wins := make([]int, contenders)
	for c := 0; c < contenders; c++ {
		c := c
		eg.Go(func() error {
			for k := uint64(0); k < 200; k++ {
				ok, err := idx.PutIfAbsent(k, u64(k), u64(uint64(c)))
				if err != nil {
					return err
				}
				if ok {
					wins[c]++
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("concurrent PutIfAbsent: %v", err)
	}

	total := 0
	for _, w := range wins {
		total += w
	}
	if total != 200 {
		t.Fatalf("%d inserts won, want exactly 200", total)
	}
}

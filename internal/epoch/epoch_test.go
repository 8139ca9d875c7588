package epoch

import (
	"sync"
	"testing"

	"github.com/hupe1980/arenamap/internal/arena"
)

func newTestArena(t *testing.T) *arena.Arena {
	t.Helper()
	a, err := arena.New(1<<20, 0)
	if err != nil {
		t.Fatalf("arena.New failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestReclaimer_DeferredReuse(t *testing.T) {
	a := newTestArena(t)
	r := NewReclaimer(a)

	h, _, err := a.Alloc(100)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}

	// A guard entered before retirement pins the slice.
	g := r.Enter()
	r.Retire(h, 100)

	r.Drain()
	if got := r.Stats().Pending; got != 1 {
		t.Fatalf("expected slice to stay pending under active guard, pending=%d", got)
	}

	g.Close()
	r.Drain()
	if got := r.Stats().Pending; got != 0 {
		t.Fatalf("expected slice reclaimed after guard close, pending=%d", got)
	}

	// The slice must now be reusable via the arena free list.
	h2, _, err := a.Alloc(100)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if h2 != h {
		t.Errorf("expected reclaimed slice to be reused, got %d != %d", h2, h)
	}
}

func TestReclaimer_LateGuardDoesNotPin(t *testing.T) {
	a := newTestArena(t)
	r := NewReclaimer(a)

	h, _, err := a.Alloc(64)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	r.Retire(h, 64)

	// Entered after retirement: could never have observed the slice.
	g := r.Enter()
	defer g.Close()

	r.Drain()
	if got := r.Stats().Pending; got != 0 {
		t.Errorf("late guard must not pin retired slice, pending=%d", got)
	}
}

func TestGuard_CloseIdempotent(t *testing.T) {
	a := newTestArena(t)
	r := NewReclaimer(a)

	g := r.Enter()
	g.Close()
	g.Close()

	if got := r.Stats().ActiveGuards; got != 0 {
		t.Errorf("expected no active guards, got %d", got)
	}
}

func TestReclaimer_ConcurrentRetire(t *testing.T) {
	a := newTestArena(t)
	r := NewReclaimer(a)

	const goroutines = 8
	const perG = 500

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				h, _, err := a.Alloc(32)
				if err != nil {
					t.Errorf("Alloc failed: %v", err)
					return
				}
				guard := r.Enter()
				r.Retire(h, 32)
				guard.Close()
			}
		}()
	}
	wg.Wait()

	r.Drain()
	stats := r.Stats()
	if stats.Pending != 0 {
		t.Errorf("expected full drain with no active guards, pending=%d", stats.Pending)
	}
	if stats.Reclaimed != goroutines*perG {
		t.Errorf("expected %d reclaimed, got %d", goroutines*perG, stats.Reclaimed)
	}

	as := a.Stats()
	if as.BytesLive+as.BytesFree > as.BytesReserved {
		t.Errorf("accounting violated: live(%d)+free(%d) > reserved(%d)", as.BytesLive, as.BytesFree, as.BytesReserved)
	}
}

package arenamap

import (
	"errors"
	"fmt"

	"github.com/hupe1980/arenamap/internal/arena"
	"github.com/hupe1980/arenamap/internal/index"
)

var (
	// ErrArenaFull is returned when the configured off-heap capacity budget
	// is exhausted. The failing operation leaves the map intact.
	ErrArenaFull = errors.New("arena capacity exhausted")

	// ErrConcurrentModification is returned when a stale EntryRef is read
	// after the underlying entry was removed, replaced, or relocated.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrClosed is returned by operations on a closed map.
	ErrClosed = errors.New("map is closed")

	// ErrNotFound is returned by callers that require a key to be present.
	ErrNotFound = errors.New("not found")
)

// ErrConfig indicates an invalid builder configuration, detected before any
// memory is mapped.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrConfig struct {
	Field  string
	Reason string
	cause  error
}

func (e *ErrConfig) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ErrConfig) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Capacity normalization: all allocation failures surface as ErrArenaFull.
	if errors.Is(err, arena.ErrArenaFull) || errors.Is(err, arena.ErrSizeTooLarge) {
		return fmt.Errorf("%w: %w", ErrArenaFull, err)
	}
	if errors.Is(err, arena.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if errors.Is(err, index.ErrStale) {
		return fmt.Errorf("%w: %w", ErrConcurrentModification, err)
	}

	return err
}

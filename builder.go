// Package arenamap provides fluent builder APIs for creating and configuring
// Map instances.
//
// Builders are immutable - each method returns a new builder with the updated
// configuration. This ensures thread-safety and prevents accidental state
// sharing.
package arenamap

import (
	"github.com/hupe1980/arenamap/serializer"
)

// New creates an empty map builder. Key and value serializers, the key
// comparator, the minimum key, and a capacity budget must all be provided
// before Build.
//
// Example:
//
//	m, err := arenamap.New[string, string]().
//	    KeySerializer(serializer.String{}).
//	    ValueSerializer(serializer.String{}).
//	    Comparator(serializer.StringComparator{}).
//	    MinKey("").
//	    Capacity(256 << 20).
//	    Build()
func New[K, V any]() Builder[K, V] {
	return Builder[K, V]{}
}

// Uint64Keys creates a builder pre-wired for uint64 keys: serializer,
// comparator and minimum key (0) are already set.
func Uint64Keys[V any](valSer serializer.Serializer[V]) Builder[uint64, V] {
	return New[uint64, V]().
		KeySerializer(serializer.Uint64{}).
		ValueSerializer(valSer).
		Comparator(serializer.Uint64Comparator{}).
		MinKey(0)
}

// StringKeys creates a builder pre-wired for string keys with the empty
// string as minimum key.
func StringKeys[V any](valSer serializer.Serializer[V]) Builder[string, V] {
	return New[string, V]().
		KeySerializer(serializer.String{}).
		ValueSerializer(valSer).
		Comparator(serializer.StringComparator{}).
		MinKey("")
}

// BytesKeys creates a builder pre-wired for []byte keys with the empty
// slice as minimum key.
func BytesKeys[V any](valSer serializer.Serializer[V]) Builder[[]byte, V] {
	return New[[]byte, V]().
		KeySerializer(serializer.Bytes{}).
		ValueSerializer(valSer).
		Comparator(serializer.BytesComparator{}).
		MinKey([]byte{})
}

// Builder is an immutable fluent builder for creating Map instances.
// Each method returns a new builder with the updated configuration.
type Builder[K, V any] struct {
	capacity      int64
	segmentSize   int
	chunkCapacity int
	keySer        serializer.Serializer[K]
	valSer        serializer.Serializer[V]
	cmp           serializer.Comparator[K]
	minKey        *K
	logger        *Logger
	metrics       MetricsCollector
}

// Capacity sets the off-heap memory budget in bytes. The budget is hard:
// once keys, values and free lists reach it, writes fail with ErrArenaFull.
func (b Builder[K, V]) Capacity(bytes int64) Builder[K, V] {
	b.capacity = bytes
	return b
}

// SegmentSize sets the size of each off-heap segment in bytes.
// Default: 32 MiB, rounded to a power of two and clamped to the capacity.
func (b Builder[K, V]) SegmentSize(bytes int) Builder[K, V] {
	b.segmentSize = bytes
	return b
}

// ChunkCapacity sets the number of entry slots per index chunk.
// Default: 128.
func (b Builder[K, V]) ChunkCapacity(n int) Builder[K, V] {
	b.chunkCapacity = n
	return b
}

// KeySerializer sets the serializer for keys.
func (b Builder[K, V]) KeySerializer(s serializer.Serializer[K]) Builder[K, V] {
	b.keySer = s
	return b
}

// ValueSerializer sets the serializer for values.
func (b Builder[K, V]) ValueSerializer(s serializer.Serializer[V]) Builder[K, V] {
	b.valSer = s
	return b
}

// Comparator sets the key order. All three comparator views must agree; the
// configured minimum key must compare below every stored key.
func (b Builder[K, V]) Comparator(c serializer.Comparator[K]) Builder[K, V] {
	b.cmp = c
	return b
}

// MinKey sets the minimal key anchoring the first chunk. No stored key may
// compare below it.
func (b Builder[K, V]) MinKey(k K) Builder[K, V] {
	b.minKey = &k
	return b
}

// Logger sets the structured logger for operation tracing.
func (b Builder[K, V]) Logger(l *Logger) Builder[K, V] {
	b.logger = l
	return b
}

// Metrics sets the metrics collector for monitoring.
func (b Builder[K, V]) Metrics(mc MetricsCollector) Builder[K, V] {
	b.metrics = mc
	return b
}

// Build validates the configuration and creates the Map. Validation happens
// before any memory is mapped; failures are *ErrConfig.
func (b Builder[K, V]) Build() (*Map[K, V], error) {
	if b.capacity <= 0 {
		return nil, &ErrConfig{Field: "capacity", Reason: "must be positive"}
	}
	if b.keySer == nil {
		return nil, &ErrConfig{Field: "keySerializer", Reason: "must be set"}
	}
	if b.valSer == nil {
		return nil, &ErrConfig{Field: "valueSerializer", Reason: "must be set"}
	}
	if b.cmp == nil {
		return nil, &ErrConfig{Field: "comparator", Reason: "must be set"}
	}
	if b.minKey == nil {
		return nil, &ErrConfig{Field: "minKey", Reason: "must be set"}
	}

	minKeyBytes := make([]byte, b.keySer.SizeOf(*b.minKey))
	if err := b.keySer.Write(*b.minKey, minKeyBytes); err != nil {
		return nil, &ErrConfig{Field: "minKey", Reason: "serialization failed", cause: err}
	}

	var optFns []Option
	if b.segmentSize > 0 {
		optFns = append(optFns, WithSegmentSize(b.segmentSize))
	}
	if b.chunkCapacity > 0 {
		optFns = append(optFns, WithChunkCapacity(b.chunkCapacity))
	}
	if b.logger != nil {
		optFns = append(optFns, WithLogger(b.logger))
	}
	if b.metrics != nil {
		optFns = append(optFns, WithMetricsCollector(b.metrics))
	}

	return newMap[K, V](b.capacity, b.keySer, b.valSer, b.cmp, minKeyBytes, optFns...)
}

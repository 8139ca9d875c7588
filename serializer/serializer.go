// Package serializer defines how keys and values cross the heap/off-heap
// boundary, and how keys are ordered.
//
// The map core never interprets payload bytes: a Serializer turns an object
// into exactly SizeOf(v) bytes and back, and a Comparator defines one total
// order across objects and serialized forms so lookups can compare without
// deserializing.
//
// Serializer and Comparator implementations must be safe for concurrent use.
// The engine trusts them for performance: a Serializer writing past its
// declared size or a Comparator with an inconsistent order is undefined
// behavior, not a detected error.
package serializer

// Serializer converts values of type T to and from their off-heap byte form.
type Serializer[T any] interface {
	// SizeOf returns the exact number of bytes Write will produce for v.
	SizeOf(v T) int
	// Write serializes v into buf, which holds exactly SizeOf(v) bytes.
	Write(v T, buf []byte) error
	// Read deserializes a value from buf.
	Read(buf []byte) (T, error)
}

// Comparator defines a total order over keys of type T. All three methods
// must agree: comparing two keys, two serialized keys, or a serialized key
// against an object must yield one consistent order.
type Comparator[T any] interface {
	// Compare orders two keys. Negative if a < b, zero if equal, positive if a > b.
	Compare(a, b T) int
	// CompareBytes orders two serialized keys.
	CompareBytes(a, b []byte) int
	// CompareBytesAndKey orders a serialized key against a key object.
	CompareBytesAndKey(a []byte, b T) int
}

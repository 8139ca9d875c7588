package serializer

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Bytes serializes []byte values as-is (zero transformation).
type Bytes struct{}

// SizeOf implements Serializer.
func (Bytes) SizeOf(v []byte) int { return len(v) }

// Write implements Serializer.
func (Bytes) Write(v []byte, buf []byte) error {
	copy(buf, v)
	return nil
}

// Read implements Serializer. The returned slice is a copy; the input buffer
// belongs to the arena.
func (Bytes) Read(buf []byte) ([]byte, error) {
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// BytesComparator orders []byte keys lexicographically.
type BytesComparator struct{}

func (BytesComparator) Compare(a, b []byte) int            { return bytes.Compare(a, b) }
func (BytesComparator) CompareBytes(a, b []byte) int       { return bytes.Compare(a, b) }
func (BytesComparator) CompareBytesAndKey(a, b []byte) int { return bytes.Compare(a, b) }

// String serializes string values as raw UTF-8 bytes.
type String struct{}

func (String) SizeOf(v string) int { return len(v) }

func (String) Write(v string, buf []byte) error {
	copy(buf, v)
	return nil
}

func (String) Read(buf []byte) (string, error) {
	return string(buf), nil
}

// StringComparator orders string keys lexicographically, consistent with the
// byte order of their serialized form.
type StringComparator struct{}

func (StringComparator) Compare(a, b string) int { return stringsCompare(a, b) }

func (StringComparator) CompareBytes(a, b []byte) int { return bytes.Compare(a, b) }

func (StringComparator) CompareBytesAndKey(a []byte, b string) int {
	return bytes.Compare(a, []byte(b))
}

func stringsCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Uint64 serializes uint64 values as 8 little-endian bytes.
type Uint64 struct{}

func (Uint64) SizeOf(uint64) int { return 8 }

func (Uint64) Write(v uint64, buf []byte) error {
	binary.LittleEndian.PutUint64(buf, v)
	return nil
}

func (Uint64) Read(buf []byte) (uint64, error) {
	if len(buf) != 8 {
		return 0, fmt.Errorf("serializer: uint64 payload must be 8 bytes, got %d", len(buf))
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// Uint64Comparator orders uint64 keys numerically. CompareBytes decodes both
// sides; with an 8-byte fixed encoding this is as cheap as a memcmp.
type Uint64Comparator struct{}

func (Uint64Comparator) Compare(a, b uint64) int { return compareUint64(a, b) }

func (Uint64Comparator) CompareBytes(a, b []byte) int {
	return compareUint64(binary.LittleEndian.Uint64(a), binary.LittleEndian.Uint64(b))
}

func (Uint64Comparator) CompareBytesAndKey(a []byte, b uint64) int {
	return compareUint64(binary.LittleEndian.Uint64(a), b)
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// JSON serializes any value through encoding/json. SizeOf marshals to
// determine the exact size, so each store costs two marshal passes; use a
// fixed-size serializer for hot paths.
type JSON[T any] struct{}

// SizeOf has no error channel, so an unmarshalable value reports 0 bytes
// here and the error surfaces from Write's marshal of the same value.
func (JSON[T]) SizeOf(v T) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}

func (JSON[T]) Write(v T, buf []byte) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(b) != len(buf) {
		// The two marshal passes disagree: the value changed between
		// SizeOf and Write. Fail instead of truncating.
		return fmt.Errorf("json: encoded %d bytes into a %d byte buffer", len(b), len(buf))
	}
	copy(buf, b)
	return nil
}

func (JSON[T]) Read(buf []byte) (T, error) {
	var v T
	err := json.Unmarshal(buf, &v)
	return v, err
}

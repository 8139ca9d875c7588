package serializer

import (
	"github.com/klauspost/compress/s2"
)

// Compressed wraps a value serializer with S2 block compression, trading CPU
// for arena space. It is meant for large, compressible values; small values
// usually grow slightly.
//
// SizeOf compresses to learn the exact stored size and Write compresses
// again, so each store costs two compression passes. Key serializers should
// not be wrapped: compressed bytes do not preserve the comparator's order.
type Compressed[T any] struct {
	Inner Serializer[T]
}

// NewCompressed wraps inner with S2 compression.
func NewCompressed[T any](inner Serializer[T]) Compressed[T] {
	return Compressed[T]{Inner: inner}
}

func (c Compressed[T]) SizeOf(v T) int {
	raw, err := c.encode(v)
	if err != nil {
		return 0
	}
	return len(s2.Encode(nil, raw))
}

func (c Compressed[T]) Write(v T, buf []byte) error {
	raw, err := c.encode(v)
	if err != nil {
		return err
	}
	copy(buf, s2.Encode(nil, raw))
	return nil
}

func (c Compressed[T]) Read(buf []byte) (T, error) {
	var zero T
	raw, err := s2.Decode(nil, buf)
	if err != nil {
		return zero, err
	}
	return c.Inner.Read(raw)
}

func (c Compressed[T]) encode(v T) ([]byte, error) {
	raw := make([]byte, c.Inner.SizeOf(v))
	if err := c.Inner.Write(v, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

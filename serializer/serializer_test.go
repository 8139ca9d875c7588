package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	s := String{}

	v := "arena"
	buf := make([]byte, s.SizeOf(v))
	require.NoError(t, s.Write(v, buf))

	got, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestStringComparator_Consistency(t *testing.T) {
	s := String{}
	c := StringComparator{}

	pairs := [][2]string{
		{"a", "b"},
		{"abc", "abd"},
		{"same", "same"},
		{"", "x"},
		{"prefix", "prefixlonger"},
	}

	for _, p := range pairs {
		aBuf := make([]byte, s.SizeOf(p[0]))
		bBuf := make([]byte, s.SizeOf(p[1]))
		require.NoError(t, s.Write(p[0], aBuf))
		require.NoError(t, s.Write(p[1], bBuf))

		want := c.Compare(p[0], p[1])
		assert.Equal(t, want, c.CompareBytes(aBuf, bBuf), "CompareBytes(%q, %q)", p[0], p[1])
		assert.Equal(t, want, c.CompareBytesAndKey(aBuf, p[1]), "CompareBytesAndKey(%q, %q)", p[0], p[1])
	}
}

func TestUint64Comparator_Consistency(t *testing.T) {
	s := Uint64{}
	c := Uint64Comparator{}

	pairs := [][2]uint64{
		{1, 2},
		{2, 1},
		{42, 42},
		{0, 1 << 40},
		{255, 256}, // little-endian byte order differs from numeric order here
	}

	for _, p := range pairs {
		aBuf := make([]byte, 8)
		bBuf := make([]byte, 8)
		require.NoError(t, s.Write(p[0], aBuf))
		require.NoError(t, s.Write(p[1], bBuf))

		want := c.Compare(p[0], p[1])
		assert.Equal(t, want, c.CompareBytes(aBuf, bBuf), "CompareBytes(%d, %d)", p[0], p[1])
		assert.Equal(t, want, c.CompareBytesAndKey(aBuf, p[1]), "CompareBytesAndKey(%d, %d)", p[0], p[1])
	}
}

func TestJSON(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	s := JSON[payload]{}
	v := payload{Name: "chunk", Count: 7}

	buf := make([]byte, s.SizeOf(v))
	require.NoError(t, s.Write(v, buf))

	got, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestJSON_Errors(t *testing.T) {
	t.Run("unmarshalable value", func(t *testing.T) {
		s := JSON[chan int]{}
		v := make(chan int)

		// SizeOf has no error channel and reports 0; Write surfaces the
		// marshal error for the same value.
		assert.Equal(t, 0, s.SizeOf(v))
		assert.Error(t, s.Write(v, nil))
	})

	t.Run("buffer size mismatch", func(t *testing.T) {
		s := JSON[[]int]{}
		v := []int{1, 2, 3}

		buf := make([]byte, s.SizeOf(v)+1)
		assert.Error(t, s.Write(v, buf), "a disagreeing buffer must fail, not truncate")

		buf = make([]byte, s.SizeOf(v))
		require.NoError(t, s.Write(v, buf))
	})
}

func TestCompressed(t *testing.T) {
	s := NewCompressed[[]byte](Bytes{})

	// Compressible payload.
	v := make([]byte, 4096)
	for i := range v {
		v[i] = byte(i % 4)
	}

	size := s.SizeOf(v)
	require.Greater(t, size, 0)
	assert.Less(t, size, len(v), "repetitive payload should shrink")

	buf := make([]byte, size)
	require.NoError(t, s.Write(v, buf))

	got, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

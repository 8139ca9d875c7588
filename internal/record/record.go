// Package record defines the binary framing of a stored key or value slice.
//
// Layout, little-endian:
//
//	[length: uint32][flags: uint32][payload: length bytes]
//
// Flag bit 0 marks a tombstoned value; the remaining bits mirror the entry
// version at the last in-place mutation. The payload bytes are exactly what
// the serializer produced; the engine never interprets them.
package record

import (
	"encoding/binary"
)

// HeaderSize is the number of framing bytes preceding the payload.
const HeaderSize = 8

const (
	flagTombstone = uint32(1)
	versionShift  = 1
)

// Size returns the total allocation size for a payload of n bytes.
func Size(n int) int {
	return HeaderSize + n
}

// Init writes a fresh header for a payload of n bytes and returns the
// payload slice for the serializer to fill. buf must hold at least Size(n)
// bytes.
func Init(buf []byte, n int) []byte {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n))
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	return buf[HeaderSize : HeaderSize+n]
}

// Length returns the payload length declared in the header.
func Length(buf []byte) int {
	return int(binary.LittleEndian.Uint32(buf[0:4]))
}

// Payload returns the payload bytes of an initialized record.
func Payload(buf []byte) []byte {
	n := Length(buf)
	return buf[HeaderSize : HeaderSize+n]
}

// IsTombstone reports whether the record carries the logical-delete flag.
func IsTombstone(buf []byte) bool {
	return binary.LittleEndian.Uint32(buf[4:8])&flagTombstone != 0
}

// MarkTombstone sets the logical-delete flag. The caller must hold the
// entry's writer exclusion; the flag is a marker, not a synchronization
// point.
func MarkTombstone(buf []byte) {
	flags := binary.LittleEndian.Uint32(buf[4:8])
	binary.LittleEndian.PutUint32(buf[4:8], flags|flagTombstone)
}

// SetVersion mirrors the entry version into the header flags, preserving the
// tombstone bit. Written only under the entry's writer exclusion.
func SetVersion(buf []byte, version uint32) {
	flags := binary.LittleEndian.Uint32(buf[4:8]) & flagTombstone
	binary.LittleEndian.PutUint32(buf[4:8], flags|version<<versionShift)
}

// Version returns the version mirror from the header flags.
func Version(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[4:8]) >> versionShift
}

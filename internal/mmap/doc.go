// Package mmap provides anonymous off-heap memory mappings.
//
// # Overview
//
// MapAnon() creates read-write anonymous mappings that live outside the Go
// garbage collector's control. The arena allocator uses these to obtain its
// large memory segments, so working sets can grow far beyond what a managed
// heap tolerates without GC pauses scaling with them.
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON|MAP_PRIVATE
//   - Windows: VirtualAlloc with MEM_RESERVE|MEM_COMMIT
//
// # Thread Safety
//
// Mapping is safe for concurrent read/write access to its bytes. Close() is
// idempotent and protected by atomics, but callers must ensure no goroutine
// touches Bytes() after Close() returns.
package mmap

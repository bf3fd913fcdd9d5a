// Package atomicmem is the minimal shim the rest of the fabric builds ring
// math on top of. It exposes aligned 32-bit atomic load/store/fetch-add with
// acquire/release ordering, bulk byte copies, and a worker-side park/notify
// primitive over a single 32-bit address. Two backends exist: one atop an
// OS-shared memory mapping (native), one atop a linear memory shared between
// a main thread and js/wasm workers. Both agree on little-endian
// representation so a byte image produced by one is readable by the other.
package atomicmem

import "errors"

var (
	// ErrOutOfBounds is returned when an offset/length pair exceeds the
	// backing buffer.
	ErrOutOfBounds = errors.New("atomicmem: offset out of bounds")
	// ErrMisaligned is returned when a 32-bit operation targets an offset
	// that is not a multiple of 4.
	ErrMisaligned = errors.New("atomicmem: offset is not 4-byte aligned")
)

// Mem is the portable view over a single shared byte buffer that every
// ring, mailbox, and slot pool in the fabric is built on. Implementations
// must provide acquire/release semantics for Load32/Store32/FetchAdd32 that
// match Go's sync/atomic guarantees so producer/consumer handoff across the
// rings in package ports is correct regardless of backend.
//
// Main-thread code must never call Wait32: the main context is strictly
// single-threaded cooperative (see the worker runtime in package engine) and
// parking it would stall the UI loop.
type Mem interface {
	// Size returns the total length of the backing buffer in bytes.
	Size() uint32

	// CopyFrom copies src into the buffer starting at dst. It is a plain
	// (non-atomic) bulk copy used for payload bytes that are protected by
	// the surrounding ring's head/tail handshake rather than per-byte
	// atomicity.
	CopyFrom(dst uint32, src []byte) error
	// CopyTo copies length bytes starting at src into dst.
	CopyTo(src uint32, dst []byte) error

	// Load32 atomically loads the 32-bit little-endian word at off with
	// acquire ordering.
	Load32(off uint32) (uint32, error)
	// Store32 atomically stores val at off with release ordering.
	Store32(off uint32, val uint32) error
	// FetchAdd32 atomically adds delta to the word at off and returns the
	// previous value.
	FetchAdd32(off uint32, delta uint32) (uint32, error)

	// Wait32 parks the calling worker until the word at off no longer
	// equals expected, or timeout elapses. A zero or negative timeout
	// means "check once and return immediately". Never call this from the
	// main context.
	Wait32(off uint32, expected uint32, timeoutMillis float64) (woken bool, err error)
	// Notify32 wakes up to count parked waiters on off. It never blocks.
	Notify32(off uint32, count uint32) error

	// Close releases any OS resources backing the buffer.
	Close() error
}

// Package ring implements the fixed-capacity byte rings backing each
// connection's RX and TX paths, and the RX-side framing state machine that
// turns a stream of bytes back into discrete request frames.
package ring

import "errors"

// ErrFull is returned by Write when the ring does not have enough free
// space to hold the whole of the supplied span. Writes are all-or-nothing:
// a ring never holds a partial write.
var ErrFull = errors.New("ring: buffer full")

// ErrNotEnough is returned by Read when fewer than the requested number of
// bytes are currently buffered.
var ErrNotEnough = errors.New("ring: not enough buffered bytes")

// Buffer is a fixed-capacity wraparound byte ring. The zero value is not
// usable; construct one with New.
//
// Invariants, checked after every mutation: 0 <= used <= capacity, and head
// is always in [0, capacity).
type Buffer struct {
	data []byte
	head int
	used int
}

// New allocates a ring with the given fixed capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Cap returns the ring's fixed capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Used returns the number of currently buffered bytes.
func (b *Buffer) Used() int { return b.used }

// Free returns the number of bytes that can still be written without
// overflowing the ring.
func (b *Buffer) Free() int { return len(b.data) - b.used }

// Write copies p into the ring in its entirety, or not at all. It returns
// ErrFull (and writes nothing) if p does not fit in the ring's current free
// space — the backpressure contract: the caller (the event loop for
// RX, a handler for TX) decides what a full ring means for its side.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) > b.Free() {
		return 0, ErrFull
	}
	if len(p) == 0 {
		return 0, nil
	}
	cap := len(b.data)
	writeAt := (b.head + b.used) % cap
	n := copy(b.data[writeAt:], p)
	if n < len(p) {
		copy(b.data[0:], p[n:])
	}
	b.used += len(p)
	b.checkInvariants()
	return len(p), nil
}

// Read extracts the oldest n bytes from the ring into a freshly allocated
// span of length n+1, with the trailing byte set to zero so the span can be
// treated as a NUL-terminated string where convenient (the ring never
// requires or guarantees NUL-termination on the wire; this is purely a
// decode-side convenience). It advances head by n and decrements used by n.
//
// Returns ErrNotEnough, without mutating the ring, if fewer than n bytes are
// currently buffered.
func (b *Buffer) Read(n int) ([]byte, error) {
	if n < 0 {
		panic("ring: negative read length")
	}
	if n > b.used {
		return nil, ErrNotEnough
	}
	out := make([]byte, n+1)
	if n > 0 {
		cap := len(b.data)
		first := cap - b.head
		if first > n {
			first = n
		}
		copy(out[:first], b.data[b.head:b.head+first])
		if first < n {
			copy(out[first:n], b.data[0:n-first])
		}
		b.head = (b.head + n) % cap
		b.used -= n
	}
	b.checkInvariants()
	return out, nil
}

// Peek returns a contiguous view of every buffered byte without consuming
// it. When the buffered region does not wrap around the end of the backing
// array, the returned slice aliases the ring's storage directly (no copy).
// When it does wrap, the bytes are copied into scratch (which must be at
// least Used() bytes long) so the caller — the event loop's TX drain — can
// hand a single contiguous span to one write(2) call.
func (b *Buffer) Peek(scratch []byte) []byte {
	if b.used == 0 {
		return nil
	}
	cap := len(b.data)
	if b.head+b.used <= cap {
		return b.data[b.head : b.head+b.used]
	}
	first := cap - b.head
	n := copy(scratch, b.data[b.head:])
	copy(scratch[first:], b.data[:b.used-first])
	return scratch[:n+(b.used-first)]
}

// Advance consumes n bytes from the front of the ring after the caller has
// successfully handed them off (e.g. after a partial or full socket write).
// It panics if n exceeds Used(), which would indicate a caller bug, not a
// protocol condition.
func (b *Buffer) Advance(n int) {
	if n < 0 || n > b.used {
		panic("ring: advance out of range")
	}
	b.head = (b.head + n) % len(b.data)
	b.used -= n
	b.checkInvariants()
}

// checkInvariants panics if the ring's bookkeeping has drifted out of the
// bounds the ring requires. It is cheap enough to run unconditionally; the
// protocol's correctness properties (§8, "ring invariants") depend on it
// never firing.
func (b *Buffer) checkInvariants() {
	if b.used < 0 || b.used > len(b.data) {
		panic("ring: used out of range")
	}
	if b.head < 0 || b.head >= len(b.data) {
		panic("ring: head out of range")
	}
}

/*
package rstream implements the reliability layer of a TCP-like transport.

A Sender segments an outbound byte stream and retransmits what the remote has not
acknowledged. A Receiver maps incoming segments onto stream indices and hands them to a
Reassembler, which rebuilds the gap-free byte stream from out-of-order, overlapping and
duplicated pieces. The Receiver in turn reports acknowledgment and window back to the
remote Sender.

None of the types in this package block, start goroutines or read the clock. Time only
advances through the millisecond deltas passed to Tick.

# Values and Indices

Wire sequence numbers ([Value]) are 32 bits and wrap around. Stream indices are
absolute 64-bit byte offsets where index 0 is the first byte of application data.
[Wrap] and [Value.Unwrap] convert between the two given the connection's initial
sequence number (ISN). The SYN flag occupies the absolute sequence number just
before stream index 0 and the FIN flag the one just after the last byte.
*/
package rstream

// Value represents the value of a sequence number.
type Value uint32

// Size represents the size (length) of a sequence number window.
type Size uint32

const seqPeriod = 1 << 32

// Wrap converts the absolute sequence number n into a wire sequence number
// relative to zeroPoint.
func Wrap(n uint64, zeroPoint Value) Value {
	return Value(uint32(n)) + zeroPoint
}

// Unwrap returns the absolute sequence number that wraps to v and is closest
// to checkpoint. When two candidates are equally close, the smaller is returned.
func (v Value) Unwrap(zeroPoint Value, checkpoint uint64) uint64 {
	offset := uint64(v - zeroPoint)
	c := checkpoint&^(seqPeriod-1) | offset
	if c >= checkpoint {
		d := c - checkpoint
		if c >= seqPeriod && d >= seqPeriod/2 {
			return c - seqPeriod
		}
		return c
	}
	d := checkpoint - c
	if d > seqPeriod/2 && c <= ^uint64(0)-seqPeriod {
		return c + seqPeriod
	}
	return c
}

// LessThan checks if v is before w (modulo 32) i.e., v < w.
func LessThan(v, w Value) bool {
	return int32(v-w) < 0
}

// LessThanEq returns true if v==w or v is before (modulo 32) i.e., v < w.
func LessThanEq(v, w Value) bool {
	return v == w || LessThan(v, w)
}

// InRange checks if v is in the range [a,b) (modulo 32), i.e., a <= v < b.
func InRange(v, a, b Value) bool {
	return v-a < b-a
}

// InWindow checks if v is in the window that starts at 'first' and spans 'size'
// sequence numbers (modulo 32).
func InWindow(v, first Value, size Size) bool {
	return InRange(v, first, Add(first, size))
}

// Add calculates the sequence number following the [v, v+s) window.
func Add(v Value, s Size) Value {
	return v + Value(s)
}

// Sizeof calculates the size of the window defined by [v, w).
func Sizeof(v, w Value) Size {
	return Size(w - v)
}

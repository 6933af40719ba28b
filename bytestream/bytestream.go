// Package bytestream implements a flow-controlled in-memory byte stream with a
// bounded capacity, written on one side and read on the other.
package bytestream

import (
	"errors"
	"io"
)

var (
	// ErrClosed is returned by Write after the stream was closed.
	ErrClosed = errors.New("bytestream: closed")
	// ErrStreamError is returned by Read and Write once the stream is flagged as errored.
	ErrStreamError = errors.New("bytestream: stream error")
)

// ByteStream is a bounded byte stream. Pushed data is kept as a queue of owned
// chunks so that Peek can hand out the front chunk without copying.
// The zero value has no capacity; use [New].
type ByteStream struct {
	// chunks holds pushed data in order. chunks[0][off:] is the unread part of the front chunk.
	chunks [][]byte
	off    int

	capacity uint64
	buffered uint64
	pushed   uint64
	popped   uint64
	closed   bool
	err      bool
}

// New returns an empty stream that buffers at most capacity bytes.
func New(capacity uint64) *ByteStream {
	return &ByteStream{capacity: capacity}
}

// Push writes as much of data as the available capacity allows and returns the
// number of bytes accepted. Push is a no-op on a closed or errored stream.
func (bs *ByteStream) Push(data []byte) int {
	if bs.closed || bs.err {
		return 0
	}
	n := uint64(len(data))
	if avail := bs.AvailableCapacity(); n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}
	chunk := make([]byte, n)
	copy(chunk, data)
	bs.chunks = append(bs.chunks, chunk)
	bs.buffered += n
	bs.pushed += n
	return int(n)
}

// Close signals that no more bytes will be pushed.
func (bs *ByteStream) Close() { bs.closed = true }

// IsClosed reports whether Close has been called.
func (bs *ByteStream) IsClosed() bool { return bs.closed }

// AvailableCapacity returns how many bytes can be pushed right now.
func (bs *ByteStream) AvailableCapacity() uint64 { return bs.capacity - bs.buffered }

// BytesPushed returns the total number of bytes pushed to the stream.
func (bs *ByteStream) BytesPushed() uint64 { return bs.pushed }

// Peek returns the unread bytes of the front chunk. The returned slice aliases
// internal storage and must not be modified or retained past the next Pop.
func (bs *ByteStream) Peek() []byte {
	if len(bs.chunks) == 0 {
		return nil
	}
	return bs.chunks[0][bs.off:]
}

// Pop consumes n bytes from the front of the stream. n is clamped to the
// number of buffered bytes.
func (bs *ByteStream) Pop(n uint64) {
	if n > bs.buffered {
		n = bs.buffered
	}
	bs.buffered -= n
	bs.popped += n
	for n > 0 {
		front := uint64(len(bs.chunks[0]) - bs.off)
		if n < front {
			bs.off += int(n)
			return
		}
		n -= front
		bs.chunks[0] = nil // Release chunk for GC.
		bs.chunks = bs.chunks[1:]
		bs.off = 0
	}
	if len(bs.chunks) == 0 {
		bs.chunks = nil // Drop backing array once drained.
	}
}

// BytesBuffered returns the number of bytes pushed but not yet popped.
func (bs *ByteStream) BytesBuffered() uint64 { return bs.buffered }

// BytesPopped returns the total number of bytes popped from the stream.
func (bs *ByteStream) BytesPopped() uint64 { return bs.popped }

// IsFinished reports whether the stream is closed and fully drained.
func (bs *ByteStream) IsFinished() bool { return bs.closed && bs.buffered == 0 }

// SetError flags the stream as errored.
func (bs *ByteStream) SetError() { bs.err = true }

// HasError reports whether the stream was flagged as errored.
func (bs *ByteStream) HasError() bool { return bs.err }

// Read implements [io.Reader] on top of Peek and Pop. It returns io.EOF once
// the stream is finished and (0, nil) when no data is buffered yet.
func (bs *ByteStream) Read(b []byte) (n int, err error) {
	if bs.err {
		return 0, ErrStreamError
	}
	for n < len(b) && bs.buffered > 0 {
		ngot := copy(b[n:], bs.Peek())
		bs.Pop(uint64(ngot))
		n += ngot
	}
	if n == 0 && bs.IsFinished() && len(b) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write implements [io.Writer] on top of Push. A write that does not fit the
// available capacity is truncated and returns io.ErrShortWrite.
func (bs *ByteStream) Write(b []byte) (int, error) {
	switch {
	case bs.err:
		return 0, ErrStreamError
	case bs.closed:
		return 0, ErrClosed
	}
	n := bs.Push(b)
	if n < len(b) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

package rstream

// StreamWriter is the write side of a flow-controlled byte stream. The Reassembler
// writes reassembled bytes to it.
type StreamWriter interface {
	// Push writes as much of data as the available capacity allows and returns
	// the amount written. Excess is silently dropped.
	Push(data []byte) int
	// Close signals that nothing more will be pushed.
	Close()
	AvailableCapacity() uint64
	// BytesPushed is the total number of bytes cumulatively pushed.
	BytesPushed() uint64
	IsClosed() bool
	SetError()
	HasError() bool
}

// StreamReader is the read side of a flow-controlled byte stream. The Sender
// reads outbound application bytes from it.
type StreamReader interface {
	// Peek returns a view of the next buffered bytes without consuming them.
	// The view is only valid until the next call to Pop or Push.
	Peek() []byte
	// Pop consumes n buffered bytes.
	Pop(n uint64)
	BytesBuffered() uint64
	// BytesPopped is the total number of bytes cumulatively popped.
	BytesPopped() uint64
	// IsFinished reports whether the stream is closed and fully popped.
	IsFinished() bool
	SetError()
	HasError() bool
}

// Stream is a byte stream accessed from both sides.
type Stream interface {
	StreamWriter
	StreamReader
}

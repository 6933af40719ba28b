package rstream

import (
	"log/slog"
	"math"

	"github.com/soypat/rstream/internal"
)

// Receiver maps incoming segments onto stream indices for its Reassembler and
// reports the acknowledgment and window to be sent back to the remote Sender.
type Receiver struct {
	logger
	reasm *Reassembler
	// zero is the remote's ISN, valid once synSeen.
	zero    Value
	synSeen bool
}

// NewReceiver returns a Receiver that feeds reasm.
func NewReceiver(reasm *Reassembler) *Receiver {
	return &Receiver{reasm: reasm}
}

// SetLogger sets the logger used by the Receiver.
func (r *Receiver) SetLogger(log *slog.Logger) { r.log = log }

// Reassembler returns the Reassembler the Receiver feeds.
func (r *Receiver) Reassembler() *Reassembler { return r.reasm }

// ISN returns the remote's initial sequence number and whether it is known yet.
func (r *Receiver) ISN() (Value, bool) { return r.zero, r.synSeen }

// Receive processes a segment from the remote Sender. Segments arriving before
// the SYN are dropped.
func (r *Receiver) Receive(seg Segment) {
	output := r.reasm.Writer()
	if seg.Flags.HasAny(FlagRST) {
		r.logerr("rcv:rst")
		output.SetError()
		return
	}
	if !r.synSeen {
		if !seg.Flags.HasAny(FlagSYN) {
			r.trace("rcv:drop.nosyn", slog.Uint64("seq", uint64(seg.Seqno)))
			return
		}
		r.synSeen = true
		r.zero = seg.Seqno
		r.debug("rcv:syn", slog.Uint64("isn", uint64(seg.Seqno)))
	}
	abs := seg.Seqno.Unwrap(r.zero, r.nextAbsolute())
	if !seg.Flags.HasAny(FlagSYN) {
		if abs == 0 {
			r.trace("rcv:drop.synslot")
			return // Claims the SYN's sequence number without SYN.
		}
		abs-- // Payload starts one past the sequence number taken by SYN.
	}
	if r.logenabled(internal.LevelTrace) {
		r.trace("rcv:seg", slog.Uint64("index", abs), slog.Int("len", len(seg.Payload)),
			slog.String("flags", seg.Flags.String()))
	}
	r.reasm.Insert(abs, seg.Payload, seg.Flags.HasAny(FlagFIN))
}

// nextAbsolute returns the absolute sequence number of the next expected octet,
// counting SYN and, once the stream is complete, FIN.
func (r *Receiver) nextAbsolute() uint64 {
	output := r.reasm.Writer()
	next := output.BytesPushed() + 1
	if output.IsClosed() {
		next++
	}
	return next
}

// Send returns the acknowledgment and window for the remote Sender. The ackno is
// absent until a SYN has been received.
func (r *Receiver) Send() AckMessage {
	output := r.reasm.Writer()
	var msg AckMessage
	msg.Window = uint16(min(output.AvailableCapacity(), math.MaxUint16))
	if r.synSeen {
		msg.Flags |= FlagACK
		msg.Ackno = Wrap(r.nextAbsolute(), r.zero)
	}
	if output.HasError() {
		msg.Flags |= FlagRST
	}
	return msg
}

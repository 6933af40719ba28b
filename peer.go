package rstream

import (
	"log/slog"

	"github.com/soypat/rstream/bytestream"
)

// Peer is one endpoint of a connection. It owns a Sender for the outbound
// direction and a Receiver for the inbound direction, piggybacks the Receiver's
// acknowledgment on every outgoing segment and aborts the connection once the
// Sender has retransmitted too many times in a row.
//
// Like the components it drives, a Peer is not safe for concurrent use.
type Peer struct {
	logger
	cfg      Config
	sender   *Sender
	receiver *Receiver
	aborted  bool

	segmentsSent     uint64
	segmentsReceived uint64
	retransmissions  uint64
}

// Stats is a snapshot of a Peer's state.
type Stats struct {
	SenderState                SenderState
	SequenceNumbersInFlight    uint64
	ConsecutiveRetransmissions uint64
	// RTO is the current retransmission timeout in milliseconds.
	RTO uint64
	// RemoteWindow is the last window advertised by the remote.
	RemoteWindow uint16
	// LocalWindow is the window advertised to the remote.
	LocalWindow      uint16
	BytesPending     uint64
	BytesAssembled   uint64
	SegmentsSent     uint64
	SegmentsReceived uint64
	// Retransmissions counts every retransmitted segment over the Peer's lifetime.
	Retransmissions uint64
	Aborted         bool
}

// NewPeer returns a Peer that sends data read from outbound and writes
// reassembled inbound data to inbound.
func NewPeer(cfg Config, outbound Stream, inbound StreamWriter) (*Peer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	reasm := NewReassembler(inbound)
	p := &Peer{
		logger:   logger{log: cfg.Logger},
		cfg:      cfg,
		sender:   NewSender(outbound, cfg.senderConfig()),
		receiver: NewReceiver(reasm),
	}
	p.sender.SetLogger(cfg.Logger)
	p.receiver.SetLogger(cfg.Logger)
	reasm.SetLogger(cfg.Logger)
	return p, nil
}

// NewPeerBuffered returns a Peer along with the outbound and inbound streams it
// drives, each holding up to cfg.Capacity bytes. Data written to outbound is
// sent to the remote and data from the remote is read from inbound.
func NewPeerBuffered(cfg Config) (p *Peer, outbound, inbound *bytestream.ByteStream, err error) {
	capacity := cfg.withDefaults().Capacity
	outbound = bytestream.New(capacity)
	inbound = bytestream.New(capacity)
	p, err = NewPeer(cfg, outbound, inbound)
	if err != nil {
		return nil, nil, nil, err
	}
	return p, outbound, inbound, nil
}

// Sender returns the Peer's outbound half.
func (p *Peer) Sender() *Sender { return p.sender }

// Receiver returns the Peer's inbound half.
func (p *Peer) Receiver() *Receiver { return p.receiver }

// Active reports whether the connection still has work to do: it is false once
// aborted, once either stream errored, or once both directions are finished.
func (p *Peer) Active() bool {
	inbound := p.receiver.Reassembler().Writer()
	switch {
	case p.aborted, inbound.HasError(), p.sender.State() == SenderErrored:
		return false
	}
	return p.sender.State() != SenderClosed || !inbound.IsClosed()
}

// Push sends as much outbound data as the remote window allows.
func (p *Peer) Push(transmit func(Message)) {
	if p.aborted {
		return
	}
	p.sender.Push(p.transmitter(transmit))
}

// Receive processes a message from the remote Peer and transmits any response:
// new data if the window opened, or a bare acknowledgment if msg occupied
// sequence space and nothing else was sent.
func (p *Peer) Receive(msg Message, transmit func(Message)) {
	if p.aborted {
		return
	}
	p.segmentsReceived++
	p.receiver.Receive(msg.Segment)
	p.sender.Receive(msg.Ack)
	if p.sender.State() == SenderErrored || p.receiver.Reassembler().Writer().HasError() {
		return
	}
	// Finished peers keep acknowledging so the remote can retire a retransmitted FIN.
	sent := p.segmentsSent
	p.sender.Push(p.transmitter(transmit))
	if p.segmentsSent == sent && msg.LEN() > 0 {
		p.send(p.sender.MakeEmptySegment(), transmit)
	}
}

// Tick advances time by msSinceLastTick milliseconds, retransmitting on timeout.
// The Peer aborts and sends RST once the Sender exceeds the configured number of
// consecutive retransmissions.
func (p *Peer) Tick(msSinceLastTick uint64, transmit func(Message)) {
	if p.aborted {
		return
	}
	p.sender.Tick(msSinceLastTick, func(seg Segment) {
		p.retransmissions++
		p.send(seg, transmit)
	})
	if retx := p.sender.ConsecutiveRetransmissions(); retx > p.cfg.MaxRetransmissions {
		p.logerr("peer:abort", slog.Uint64("retx", retx))
		p.Abort(transmit)
	}
}

// Abort errors both streams and sends a RST to the remote.
func (p *Peer) Abort(transmit func(Message)) {
	if p.aborted {
		return
	}
	p.aborted = true
	p.sender.Reader().SetError()
	p.receiver.Reassembler().Writer().SetError()
	p.send(p.sender.MakeEmptySegment(), transmit)
}

// Stats returns a snapshot of the Peer's state.
func (p *Peer) Stats() Stats {
	reasm := p.receiver.Reassembler()
	return Stats{
		SenderState:                p.sender.State(),
		SequenceNumbersInFlight:    p.sender.SequenceNumbersInFlight(),
		ConsecutiveRetransmissions: p.sender.ConsecutiveRetransmissions(),
		RTO:                        p.sender.RTO(),
		RemoteWindow:               p.sender.Window(),
		LocalWindow:                p.receiver.Send().Window,
		BytesPending:               reasm.BytesPending(),
		BytesAssembled:             reasm.FirstUnassembled(),
		SegmentsSent:               p.segmentsSent,
		SegmentsReceived:           p.segmentsReceived,
		Retransmissions:            p.retransmissions,
		Aborted:                    p.aborted,
	}
}

func (p *Peer) transmitter(transmit func(Message)) func(Segment) {
	return func(seg Segment) { p.send(seg, transmit) }
}

func (p *Peer) send(seg Segment, transmit func(Message)) {
	msg := Message{Segment: seg, Ack: p.receiver.Send()}
	p.segmentsSent++
	if p.logenabled(slog.LevelDebug) {
		p.debug("peer:send", slog.String("msg", StringExchange(msg, p.sender.State(), p.sender.State(), false)))
	}
	transmit(msg)
}

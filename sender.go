package rstream

import (
	"log/slog"

	"github.com/google/btree"
	"github.com/soypat/rstream/internal"
)

const (
	// DefaultMaxPayloadSize is the largest payload the Sender puts in one segment
	// unless configured otherwise.
	DefaultMaxPayloadSize = 1000
	// DefaultInitialRTO is the retransmission timeout in milliseconds used when none is configured.
	DefaultInitialRTO = 1000
)

// SenderState enumerates the states a Sender progresses through.
type SenderState uint8

const (
	// SenderAwaitingSYN - SYN not yet sent or not yet acknowledged.
	SenderAwaitingSYN SenderState = iota
	// SenderEstablished - SYN acknowledged, data may flow.
	SenderEstablished
	// SenderFINSent - FIN sent but not yet acknowledged.
	SenderFINSent
	// SenderClosed - FIN acknowledged, nothing more will be sent.
	SenderClosed
	// SenderErrored - RST received or the input stream errored. Absorbing.
	SenderErrored
)

func (s SenderState) String() string {
	switch s {
	case SenderAwaitingSYN:
		return "AwaitingSYN"
	case SenderEstablished:
		return "Established"
	case SenderFINSent:
		return "FINSent"
	case SenderClosed:
		return "Closed"
	case SenderErrored:
		return "Errored"
	}
	return "SenderState(?)"
}

// SenderConfig configures a Sender. Zero fields take defaults.
type SenderConfig struct {
	// ISN is the initial sequence number, the zero point of outbound sequence numbers.
	ISN Value
	// InitialRTO is the retransmission timeout in milliseconds before any backoff.
	InitialRTO uint64
	// MaxRTO caps the backed off timeout in milliseconds. Zero means no cap.
	MaxRTO uint64
	// MaxPayloadSize limits the payload of a single segment.
	MaxPayloadSize int
}

// Sender segments an outbound byte stream, keeps every sent segment until it is
// acknowledged, and retransmits the oldest one on timeout with exponential backoff.
type Sender struct {
	logger
	input      Stream
	isn        Value
	maxPayload int
	// outstanding holds sent, unacknowledged segments keyed by absolute start.
	outstanding *btree.BTreeG[outstandingSegment]
	// nextSeq is the absolute sequence number of the next new segment.
	nextSeq uint64
	// acked is the absolute sequence number of the first unacknowledged octet.
	acked uint64
	// window is the last window advertised by the remote receiver.
	window  uint16
	rto     internal.Backoff
	elapsed uint64
	retx    uint64
	synSent bool
	finSent bool
	// probing is set while a zero window probe is outstanding.
	probing bool
	errored bool
}

type outstandingSegment struct {
	start uint64
	seg   Segment
}

func (o outstandingSegment) end() uint64 { return o.start + uint64(o.seg.LEN()) }

func lessOutstanding(a, b outstandingSegment) bool { return a.start < b.start }

// NewSender returns a Sender that reads outbound data from input.
func NewSender(input Stream, cfg SenderConfig) *Sender {
	if cfg.InitialRTO == 0 {
		cfg.InitialRTO = DefaultInitialRTO
	}
	if cfg.MaxPayloadSize <= 0 {
		cfg.MaxPayloadSize = DefaultMaxPayloadSize
	}
	return &Sender{
		input:       input,
		isn:         cfg.ISN,
		maxPayload:  cfg.MaxPayloadSize,
		outstanding: btree.NewG(btreeDegree, lessOutstanding),
		rto:         internal.NewBackoff(cfg.InitialRTO, cfg.MaxRTO),
		// Until the remote tells us otherwise assume room for the SYN.
		window: 1,
	}
}

// SetLogger sets the logger used by the Sender.
func (s *Sender) SetLogger(log *slog.Logger) { s.log = log }

// Reader returns the stream the Sender reads outbound data from.
func (s *Sender) Reader() StreamReader { return s.input }

// ISN returns the initial sequence number of the Sender.
func (s *Sender) ISN() Value { return s.isn }

// State returns the current state of the Sender.
func (s *Sender) State() SenderState {
	switch {
	case s.errored || s.input.HasError():
		return SenderErrored
	case s.finSent && s.acked == s.nextSeq:
		return SenderClosed
	case s.finSent:
		return SenderFINSent
	case s.acked == 0:
		return SenderAwaitingSYN
	}
	return SenderEstablished
}

// SequenceNumbersInFlight returns how many sequence numbers are sent but not acknowledged.
func (s *Sender) SequenceNumbersInFlight() uint64 { return s.nextSeq - s.acked }

// ConsecutiveRetransmissions returns the number of retransmissions since the
// last acknowledgment of new data.
func (s *Sender) ConsecutiveRetransmissions() uint64 { return s.retx }

// RTO returns the current retransmission timeout in milliseconds.
func (s *Sender) RTO() uint64 { return s.rto.Wait() }

// Window returns the last window advertised by the remote receiver.
func (s *Sender) Window() uint16 { return s.window }

// MakeEmptySegment returns a segment that occupies no sequence space. It is
// used to carry acknowledgments and RST.
func (s *Sender) MakeEmptySegment() Segment {
	seg := Segment{Seqno: Wrap(s.nextSeq, s.isn)}
	if s.input.HasError() {
		seg.Flags = FlagRST
	}
	return seg
}

// Push sends as many segments as the remote window allows, reading payload
// from the input stream. Nothing is sent once the input stream errored. A zero
// window is treated as a window of one so that a single probe segment elicits a
// window update.
func (s *Sender) Push(transmit func(Segment)) {
	if s.errored || s.input.HasError() {
		return
	}
	window := uint64(s.window)
	if window == 0 {
		if s.probing {
			return
		}
		window = 1
	}
	for s.SequenceNumbersInFlight() < window && !s.finSent {
		var seg Segment
		seg.Seqno = Wrap(s.nextSeq, s.isn)
		if !s.synSent {
			seg.Flags |= FlagSYN
		}
		room := window - s.SequenceNumbersInFlight() - uint64(seg.LEN())
		seg.Payload = s.readPayload(min(room, uint64(s.maxPayload)))
		if s.input.IsFinished() && room > uint64(len(seg.Payload)) {
			seg.Flags |= FlagFIN
		}
		if seg.LEN() == 0 {
			break // Nothing to send.
		}
		s.send(seg, transmit)
		if s.window == 0 {
			s.probing = true
		}
	}
}

func (s *Sender) send(seg Segment, transmit func(Segment)) {
	if s.outstanding.Len() == 0 {
		s.elapsed = 0 // Timer starts with the first outstanding segment.
	}
	s.synSent = s.synSent || seg.Flags.HasAny(FlagSYN)
	s.finSent = s.finSent || seg.Flags.HasAny(FlagFIN)
	s.outstanding.ReplaceOrInsert(outstandingSegment{start: s.nextSeq, seg: seg})
	s.nextSeq += uint64(seg.LEN())
	if s.logenabled(internal.LevelTrace) {
		s.trace("snd:push", slog.Uint64("seq", uint64(seg.Seqno)), slog.Int("len", len(seg.Payload)),
			slog.String("flags", seg.Flags.String()), slog.Uint64("inflight", s.SequenceNumbersInFlight()))
	}
	transmit(seg)
}

// readPayload pops up to n bytes from the input into a newly allocated slice.
func (s *Sender) readPayload(n uint64) []byte {
	n = min(n, s.input.BytesBuffered())
	if n == 0 {
		return nil
	}
	payload := make([]byte, 0, n)
	for uint64(len(payload)) < n {
		peek := s.input.Peek()
		if len(peek) == 0 {
			break
		}
		peek = peek[:min(uint64(len(peek)), n-uint64(len(payload)))]
		payload = append(payload, peek...)
		s.input.Pop(uint64(len(peek)))
	}
	return payload
}

// Receive processes an acknowledgment and window update from the remote receiver.
// Stale acknowledgments, acknowledgments of unsent data and acknowledgments that
// only partially cover the oldest outstanding segment are ignored.
func (s *Sender) Receive(msg AckMessage) {
	if s.errored {
		return
	}
	if msg.Flags.HasAny(FlagRST) {
		s.logerr("snd:rst")
		s.input.SetError()
		s.input.Close()
		s.errored = true
		return
	}
	s.window = msg.Window
	if !msg.Flags.HasAny(FlagACK) {
		// Window only update.
		s.rto.Hit()
		s.elapsed = 0
		return
	}
	una := Wrap(s.acked, s.isn)
	switch {
	case LessThanEq(msg.Ackno, una):
		s.trace("snd:ack.stale", slog.Uint64("ackno", uint64(msg.Ackno)))
		return
	case !InWindow(msg.Ackno, Add(una, 1), Size(s.nextSeq-s.acked)):
		s.debug("snd:ack.unsent", slog.Uint64("ackno", uint64(msg.Ackno)), slog.Uint64("nxt", s.nextSeq))
		return
	}
	ack := s.acked + uint64(Sizeof(una, msg.Ackno))
	if oldest, ok := s.outstanding.Min(); ok && ack < oldest.end() {
		s.trace("snd:ack.partial", slog.Uint64("ack", ack))
		return
	}
	for {
		o, ok := s.outstanding.Min()
		if !ok || o.end() > ack {
			break
		}
		s.outstanding.DeleteMin()
	}
	// acked may land inside a segment that stays outstanding. That segment is
	// still retransmitted whole, so its start can be below acked.
	s.acked = ack
	s.retx = 0
	s.rto.Hit()
	s.elapsed = 0
	s.probing = false
	s.trace("snd:ack", slog.Uint64("ack", ack), slog.Uint64("wnd", uint64(msg.Window)))
}

// Tick advances the retransmission timer by msSinceLastTick milliseconds. On
// timeout the oldest outstanding segment is retransmitted unchanged and the
// timeout doubles, unless the remote window is zero.
func (s *Sender) Tick(msSinceLastTick uint64, transmit func(Segment)) {
	if s.errored || s.input.HasError() {
		return
	}
	oldest, ok := s.outstanding.Min()
	if !ok {
		return
	}
	s.elapsed += msSinceLastTick
	if s.elapsed < s.rto.Wait() {
		return
	}
	s.debug("snd:retransmit", slog.Uint64("start", oldest.start), slog.Uint64("rto", s.rto.Wait()),
		slog.Uint64("retx", s.retx+1))
	transmit(oldest.seg)
	s.elapsed = 0
	s.retx++
	if s.window != 0 {
		s.rto.Miss()
	}
}

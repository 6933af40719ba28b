package rstream_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/soypat/rstream"
	"github.com/soypat/rstream/bytestream"
)

// network delivers messages between two peers dropping, duplicating, delaying
// and reordering them.
type network struct {
	rng    *rand.Rand
	loss   float64
	dup    float64
	delay  float64
	queues [2][]rstream.Message
}

func (n *network) sender(dir int) func(rstream.Message) {
	return func(msg rstream.Message) {
		if n.rng.Float64() < n.loss {
			return
		}
		n.queues[dir] = append(n.queues[dir], msg)
		if n.rng.Float64() < n.dup {
			n.queues[dir] = append(n.queues[dir], msg)
		}
	}
}

func (n *network) deliver(dir int, to *rstream.Peer) {
	q := n.queues[dir]
	n.queues[dir] = nil
	n.rng.Shuffle(len(q), func(i, j int) { q[i], q[j] = q[j], q[i] })
	for _, msg := range q {
		if n.rng.Float64() < n.delay {
			n.queues[dir] = append(n.queues[dir], msg)
			continue
		}
		to.Receive(msg, n.sender(1-dir))
	}
}

type endpoint struct {
	peer     *rstream.Peer
	outbound *bytestream.ByteStream
	inbound  *bytestream.ByteStream
	data     []byte
	written  int
	got      []byte
}

func newEndpoint(t *testing.T, cfg rstream.Config, data []byte) *endpoint {
	t.Helper()
	e := &endpoint{
		outbound: bytestream.New(3000),
		inbound:  bytestream.New(5000),
		data:     data,
	}
	var err error
	e.peer, err = rstream.NewPeer(cfg, e.outbound, e.inbound)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func (e *endpoint) write(rng *rand.Rand) {
	if e.written < len(e.data) {
		chunk := e.data[e.written:min(len(e.data), e.written+rng.Intn(2000))]
		e.written += e.outbound.Push(chunk)
	}
	if e.written == len(e.data) {
		e.outbound.Close()
	}
}

func (e *endpoint) read(rng *rand.Rand) {
	if rng.Intn(3) == 0 {
		return // Slow reader.
	}
	e.drain()
}

func (e *endpoint) drain() {
	for e.inbound.BytesBuffered() > 0 {
		p := e.inbound.Peek()
		e.got = append(e.got, p...)
		e.inbound.Pop(uint64(len(p)))
	}
}

func TestPeer_lossyNetwork(t *testing.T) {
	for _, seed := range []int64{1, 2, 3} {
		rng := rand.New(rand.NewSource(seed))
		dataA := make([]byte, 40000)
		dataB := make([]byte, 25000)
		rng.Read(dataA)
		rng.Read(dataB)
		cfg := rstream.Config{InitialRTO: 50, MaxRTO: 800, MaxPayloadSize: 700, MaxRetransmissions: 20}
		cfg.ISN = rstream.Value(rng.Uint32())
		a := newEndpoint(t, cfg, dataA)
		cfg.ISN = rstream.Value(rng.Uint32())
		b := newEndpoint(t, cfg, dataB)
		net := &network{rng: rng, loss: 0.1, dup: 0.05, delay: 0.2}

		const maxSteps = 100000
		step := 0
		for ; step < maxSteps && (a.peer.Active() || b.peer.Active()); step++ {
			a.write(rng)
			b.write(rng)
			a.peer.Push(net.sender(0))
			b.peer.Push(net.sender(1))
			net.deliver(0, b.peer)
			net.deliver(1, a.peer)
			a.read(rng)
			b.read(rng)
			a.peer.Tick(10, net.sender(0))
			b.peer.Tick(10, net.sender(1))
		}
		if step == maxSteps {
			t.Fatalf("seed %d: connection did not finish: A=%+v B=%+v", seed, a.peer.Stats(), b.peer.Stats())
		}
		a.drain()
		b.drain()
		if !bytes.Equal(b.got, dataA) {
			t.Errorf("seed %d: B received %d/%d bytes, mismatch", seed, len(b.got), len(dataA))
		}
		if !bytes.Equal(a.got, dataB) {
			t.Errorf("seed %d: A received %d/%d bytes, mismatch", seed, len(a.got), len(dataB))
		}
		for _, e := range []*endpoint{a, b} {
			st := e.peer.Stats()
			if st.SenderState != rstream.SenderClosed || st.Aborted || !e.inbound.IsFinished() {
				t.Errorf("seed %d: unexpected final state %+v", seed, st)
			}
			if st.Retransmissions == 0 {
				t.Errorf("seed %d: expected retransmissions over lossy network", seed)
			}
		}
	}
}

func TestPeer_handshake(t *testing.T) {
	a := newEndpoint(t, rstream.Config{ISN: 100}, nil)
	b := newEndpoint(t, rstream.Config{ISN: 300}, nil)
	var toB, toA []rstream.Message
	sendB := func(m rstream.Message) { toB = append(toB, m) }
	sendA := func(m rstream.Message) { toA = append(toA, m) }

	a.peer.Push(sendB)
	if len(toB) != 1 || toB[0].Seqno != 100 || toB[0].Flags != rstream.FlagSYN || toB[0].Ack.Flags.HasAny(rstream.FlagACK) {
		t.Fatalf("want bare SYN got %+v", toB)
	}
	if toB[0].Ack.Window != 5000 {
		t.Errorf("SYN advertises window %d", toB[0].Ack.Window)
	}
	b.peer.Receive(toB[0], sendA)
	toB = nil
	// B answers the SYN with its own SYN carrying the acknowledgment.
	if len(toA) != 1 || toA[0].Seqno != 300 || toA[0].Flags != rstream.FlagSYN || toA[0].Ack.Ackno != 101 || !toA[0].Ack.Flags.HasAny(rstream.FlagACK) {
		t.Fatalf("want SYN,ACK got %+v", toA)
	}
	a.peer.Receive(toA[0], sendB)
	toA = nil
	if len(toB) != 1 || toB[0].LEN() != 0 || toB[0].Ack.Ackno != 301 {
		t.Fatalf("want bare ACK got %+v", toB)
	}
	b.peer.Receive(toB[0], sendA)
	if len(toA) != 0 {
		t.Errorf("bare ACK was answered: %+v", toA)
	}
	for _, e := range []*endpoint{a, b} {
		if st := e.peer.Stats(); st.SenderState != rstream.SenderEstablished || st.SequenceNumbersInFlight != 0 {
			t.Errorf("want established got %+v", st)
		}
	}
}

func TestPeer_abort(t *testing.T) {
	a := newEndpoint(t, rstream.Config{InitialRTO: 100, MaxRetransmissions: 3}, []byte("data"))
	b := newEndpoint(t, rstream.Config{}, nil)
	var sent []rstream.Message
	transmit := func(m rstream.Message) { sent = append(sent, m) }
	a.peer.Push(transmit)
	b.peer.Receive(sent[0], func(rstream.Message) {})
	for i := 0; i < 10; i++ {
		a.peer.Tick(a.peer.Sender().RTO(), transmit)
	}
	if len(sent) != 6 {
		t.Fatalf("want SYN, 4 retransmissions and RST, got %d messages", len(sent))
	}
	rst := sent[len(sent)-1]
	if !rst.Flags.HasAny(rstream.FlagRST) || !rst.Ack.Flags.HasAny(rstream.FlagRST) {
		t.Errorf("last message not RST: %s", rstream.StringExchange(rst, rstream.SenderErrored, rstream.SenderAwaitingSYN, false))
	}
	if a.peer.Active() || !a.peer.Stats().Aborted {
		t.Error("peer still active after abort")
	}
	if !a.outbound.HasError() || !a.inbound.HasError() {
		t.Error("streams not errored")
	}
	b.peer.Receive(rst, func(m rstream.Message) { t.Errorf("answered RST with %+v", m) })
	if b.peer.Active() || !b.inbound.HasError() || !b.outbound.HasError() {
		t.Error("RST did not error remote")
	}
}

func TestPeer_invalidConfig(t *testing.T) {
	_, err := rstream.NewPeer(rstream.Config{MaxPayloadSize: -1}, bytestream.New(1), bytestream.New(1))
	if err == nil {
		t.Fatal("expected error")
	}
}

/*
package wire maps [rstream.Message] values onto TCP segments carried in IPv4
datagrams so that peers can be driven over a real or simulated IP network.

Only 20 byte TCP headers are produced. Options are skipped on decode.

	0      2      4        8        12    13    14     16    18     20
	| SRC  | DST  | SEQ    | ACK    | OFF | FLG | WND  | SUM | URG  |
*/
package wire

import (
	"encoding/binary"
	"net/netip"

	ipv4header "github.com/brown-csci1680/iptcp-headers"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"
	"github.com/soypat/rstream"
)

const (
	// DefaultTTL is the IPv4 time to live used when EncodeIPv4 is passed a zero TTL.
	DefaultTTL = 64
	sizePseudo = 12
)

var (
	// ErrShort is returned when a buffer cannot hold the header it should contain.
	ErrShort = errors.New("wire: buffer too short")
	// ErrBadChecksum is returned when a TCP checksum does not verify against the pseudo header.
	ErrBadChecksum = errors.New("wire: bad checksum")
	// ErrNotTCP is returned by DecodeIPv4 for datagrams of another protocol.
	ErrNotTCP = errors.New("wire: not a TCP datagram")
	// ErrNotIPv4 is returned when an address is not an IPv4 address.
	ErrNotIPv4 = errors.New("wire: address not IPv4")
)

// Addrs identifies the two endpoints of a segment.
type Addrs struct {
	Src netip.AddrPort
	Dst netip.AddrPort
}

// Flags returns the TCP header flags that encode msg. RST is set if either half
// carries it.
func Flags(msg rstream.Message) uint8 {
	flags := msg.Flags & (rstream.FlagSYN | rstream.FlagFIN | rstream.FlagRST | rstream.FlagPSH)
	flags |= msg.Ack.Flags & (rstream.FlagACK | rstream.FlagRST)
	return uint8(flags)
}

// AppendTCP appends a TCP header and msg's payload to dst. The checksum is
// calculated over the IPv4 pseudo header formed by addrs.
func AppendTCP(dst []byte, msg rstream.Message, addrs Addrs) ([]byte, error) {
	if !addrs.Src.Addr().Is4() || !addrs.Dst.Addr().Is4() {
		return dst, ErrNotIPv4
	}
	if len(msg.Payload) > rstream.MaxWirePayload {
		return dst, errors.Errorf("wire: payload of %d bytes too large", len(msg.Payload))
	}
	off := len(dst)
	dst = append(dst, make([]byte, header.TCPMinimumSize)...)
	dst = append(dst, msg.Payload...)
	fields := header.TCPFields{
		SrcPort:    addrs.Src.Port(),
		DstPort:    addrs.Dst.Port(),
		SeqNum:     uint32(msg.Seqno),
		DataOffset: header.TCPMinimumSize,
		Flags:      Flags(msg),
		WindowSize: msg.Ack.Window,
	}
	if msg.Ack.Flags.HasAny(rstream.FlagACK) {
		fields.AckNum = uint32(msg.Ack.Ackno)
	}
	tcp := header.TCP(dst[off:])
	tcp.Encode(&fields)
	sum := checksum(tcp, addrs.Src.Addr(), addrs.Dst.Addr())
	tcp.SetChecksum(^sum)
	return dst, nil
}

// DecodeTCP parses a TCP segment received from src addressed to dst. It returns
// the message together with the source and destination ports.
func DecodeTCP(b []byte, src, dst netip.Addr) (msg rstream.Message, srcPort, dstPort uint16, err error) {
	if len(b) < header.TCPMinimumSize {
		return msg, 0, 0, ErrShort
	}
	tcp := header.TCP(b)
	offset := int(tcp.DataOffset())
	if offset < header.TCPMinimumSize || offset > len(b) {
		return msg, 0, 0, errors.Wrapf(ErrShort, "data offset %d", offset)
	}
	if !src.Is4() || !dst.Is4() {
		return msg, 0, 0, ErrNotIPv4
	}
	if checksum(b, src, dst) != 0xffff {
		return msg, 0, 0, ErrBadChecksum
	}
	flags := rstream.Flags(tcp.Flags())
	msg.Seqno = rstream.Value(tcp.SequenceNumber())
	msg.Flags = flags & (rstream.FlagSYN | rstream.FlagFIN | rstream.FlagRST | rstream.FlagPSH)
	msg.Ack.Window = tcp.WindowSize()
	msg.Ack.Flags = flags & (rstream.FlagACK | rstream.FlagRST)
	if flags.HasAny(rstream.FlagACK) {
		msg.Ack.Ackno = rstream.Value(tcp.AckNumber())
	}
	if len(b) > offset {
		msg.Payload = append([]byte(nil), b[offset:]...)
	}
	return msg, tcp.SourcePort(), tcp.DestinationPort(), nil
}

// EncodeIPv4 returns an IPv4 datagram carrying msg as a TCP segment. A zero ttl
// is replaced by DefaultTTL.
func EncodeIPv4(msg rstream.Message, addrs Addrs, ttl uint8) ([]byte, error) {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	tcpLen := header.TCPMinimumSize + len(msg.Payload)
	iphdr := ipv4header.IPv4Header{
		Version:  4,
		Len:      ipv4header.HeaderLen,
		TotalLen: ipv4header.HeaderLen + tcpLen,
		TTL:      int(ttl),
		Protocol: int(header.TCPProtocolNumber),
		Src:      addrs.Src.Addr(),
		Dst:      addrs.Dst.Addr(),
		Options:  []byte{},
	}
	hdr, err := iphdr.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "wire: marshalling IPv4 header")
	}
	iphdr.Checksum = int(^header.Checksum(hdr, 0))
	hdr, err = iphdr.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "wire: marshalling IPv4 header")
	}
	datagram := make([]byte, 0, len(hdr)+tcpLen)
	datagram = append(datagram, hdr...)
	return AppendTCP(datagram, msg, addrs)
}

// DecodeIPv4 parses an IPv4 datagram carrying a TCP segment.
func DecodeIPv4(b []byte) (rstream.Message, Addrs, error) {
	var addrs Addrs
	iphdr, err := ipv4header.ParseHeader(b)
	if err != nil {
		return rstream.Message{}, addrs, errors.Wrap(err, "wire: parsing IPv4 header")
	}
	if iphdr.Len < ipv4header.HeaderLen || iphdr.TotalLen < iphdr.Len || iphdr.TotalLen > len(b) {
		return rstream.Message{}, addrs, errors.Wrapf(ErrShort, "total length %d", iphdr.TotalLen)
	}
	if header.Checksum(b[:iphdr.Len], 0) != 0xffff {
		return rstream.Message{}, addrs, errors.Wrap(ErrBadChecksum, "IPv4 header")
	}
	if iphdr.Protocol != int(header.TCPProtocolNumber) {
		return rstream.Message{}, addrs, errors.Wrapf(ErrNotTCP, "protocol %d", iphdr.Protocol)
	}
	msg, srcPort, dstPort, err := DecodeTCP(b[iphdr.Len:iphdr.TotalLen], iphdr.Src, iphdr.Dst)
	if err != nil {
		return rstream.Message{}, addrs, err
	}
	addrs.Src = netip.AddrPortFrom(iphdr.Src, srcPort)
	addrs.Dst = netip.AddrPortFrom(iphdr.Dst, dstPort)
	return msg, addrs, nil
}

// checksum returns the ones complement sum of the IPv4 pseudo header and tcp.
func checksum(tcp []byte, src, dst netip.Addr) uint16 {
	var pseudo [sizePseudo]byte
	s4, d4 := src.As4(), dst.As4()
	copy(pseudo[0:4], s4[:])
	copy(pseudo[4:8], d4[:])
	pseudo[9] = uint8(header.TCPProtocolNumber)
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(tcp)))
	return header.Checksum(tcp, header.Checksum(pseudo[:], 0))
}

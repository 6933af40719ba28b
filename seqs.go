package rstream

import (
	"strconv"
	"unsafe"
)

// Segment is the sender half of a TCP segment: the data and control flags that
// occupy sequence space.
type Segment struct {
	// Seqno is the sequence number of the first octet of the segment.
	// If SYN is set it is the ISN and the first data octet is at ISN+1.
	Seqno   Value
	Flags   Flags // Only FlagSYN, FlagFIN and FlagRST are meaningful.
	Payload []byte
}

// LEN returns the length of the segment in sequence numbers including SYN and FIN flags.
func (seg *Segment) LEN() Size {
	add := Size(seg.Flags>>0) & 1 // Add FIN bit.
	add += Size(seg.Flags>>1) & 1 // Add SYN bit.
	return Size(len(seg.Payload)) + add
}

// AckMessage is the receiver half of a TCP segment: acknowledgment and window.
type AckMessage struct {
	// Ackno is the next sequence number the receiver expects. Only valid if FlagACK is set.
	Ackno  Value
	Window uint16
	// Flags holds FlagACK when Ackno is present and FlagRST when the receiver's stream errored.
	Flags Flags
}

// Message is a full segment as it travels over the network: a sender half and
// the piggybacked receiver half of the opposite direction.
type Message struct {
	Segment
	Ack AckMessage
}

// Flags is a TCP flags masked implementation i.e: SYN, FIN, ACK.
type Flags uint16

const (
	FlagFIN Flags = 1 << iota // FlagFIN - No more data from sender.
	FlagSYN                   // FlagSYN - Synchronize sequence numbers.
	FlagRST                   // FlagRST - Reset the connection.
	FlagPSH                   // FlagPSH - Push function.
	FlagACK                   // FlagACK - Acknowledgment field significant.

	segmentFlags = FlagFIN | FlagSYN | FlagRST
)

// HasAll checks if mask bits are all set in the receiver flags.
func (flags Flags) HasAll(mask Flags) bool { return flags&mask == mask }

// HasAny checks if one or more mask bits are set in receiver flags.
func (flags Flags) HasAny(mask Flags) bool { return flags&mask != 0 }

// String returns human readable flag string. i.e:
//
//	"[SYN,ACK]"
//
// Flags are printed in order from LSB (FIN) to MSB (ACK).
func (flags Flags) String() string {
	if flags == 0 {
		return "[]"
	}
	const flaglen = 3
	const strflags = "FINSYNRSTPSHACK"
	var flagbuff [2 + (flaglen+1)*5]byte
	n := 0
	for i := 0; i*flaglen < len(strflags); i++ {
		if flags&(1<<i) == 0 {
			continue
		}
		if n == 0 {
			flagbuff[0] = '['
		} else {
			flagbuff[n] = ','
		}
		n++
		n += copy(flagbuff[n:], strflags[i*flaglen:i*flaglen+flaglen])
	}
	if n == 0 {
		return "[]"
	}
	flagbuff[n] = ']'
	n++
	return string(flagbuff[:n])
}

// StringExchange returns a string representation of a message exchange over
// a network in RFC9293 styled visualization. invertDir inverts the arrow directions.
// i.e:
//
//	SynSent     --> <SEQ=300><ACK=91><DATA=5>[SYN,ACK] --> Established
func StringExchange(msg Message, A, B SenderState, invertDir bool) string {
	b := make([]byte, 0, 64)
	b = appendVisualization(b, msg, A, B, invertDir)
	return unsafe.String(unsafe.SliceData(b), len(b))
}

func appendVisualization(buf []byte, msg Message, A, B SenderState, invertDir bool) []byte {
	const emptySpaces = "            "
	buf = buf[len(buf):] // clip off any previous data so we work with our data only.
	appendVal := func(buf []byte, name string, i uint64) []byte {
		buf = append(buf, '<')
		buf = append(buf, name...)
		buf = append(buf, '=')
		buf = strconv.AppendUint(buf, i, 10)
		buf = append(buf, '>')
		return buf
	}

	dirSep := " --> "
	if invertDir {
		dirSep = " <-- "
	}
	astr := A.String()
	buf = append(buf, astr...)
	if len(astr) < 11 {
		buf = append(buf, emptySpaces[:11-len(astr)]...) // Fill up to 11 characters
	}
	buf = append(buf, dirSep...)
	buf = appendVal(buf, "SEQ", uint64(msg.Seqno))
	if msg.Ack.Flags.HasAny(FlagACK) {
		buf = appendVal(buf, "ACK", uint64(msg.Ack.Ackno))
	}
	buf = appendVal(buf, "WND", uint64(msg.Ack.Window))
	if len(msg.Payload) > 0 {
		buf = appendVal(buf, "DATA", uint64(len(msg.Payload)))
	}
	buf = append(buf, (msg.Flags&segmentFlags | msg.Ack.Flags).String()...)
	if len(buf) < 48 {
		buf = append(buf, emptySpaces[:min(48-len(buf), len(emptySpaces))]...)
	}
	buf = append(buf, dirSep...)
	buf = append(buf, B.String()...)
	return buf
}

// Package protocol implements the interrupter link wire format: framing,
// checksums, VLQ payload encoding and the decoded command variants.
package protocol

// Version is the wire format revision reported by the host tools.
const Version = "0.3.0"

// Frame layout: SOF CMD LEN PAYLOAD[LEN] CRC_HI CRC_LO
const (
	FrameSOF        = 0x7E
	FrameHeader     = 3 // SOF, CMD, LEN
	FrameTrailer    = 2 // CRC16, big endian
	FramePayloadMax = 32
	FrameMin        = FrameHeader + FrameTrailer
	FrameMax        = FrameMin + FramePayloadMax

	// Scratch space for encoding, enough for a handful of queued frames
	MessageMax = 4 * FrameMax
)

// Kind is the raw CMD byte of a frame.
type Kind uint8

const (
	KindRun        Kind = 0x01
	KindStop       Kind = 0x02
	KindSetParam   Kind = 0x03
	KindFirePulse  Kind = 0x04
	KindResetFault Kind = 0x05

	// KindStatus only travels controller -> interrupter
	KindStatus Kind = 0x81
)

func (k Kind) String() string {
	switch k {
	case KindRun:
		return "RUN"
	case KindStop:
		return "STOP"
	case KindSetParam:
		return "SET_PARAM"
	case KindFirePulse:
		return "FIRE_PULSE"
	case KindResetFault:
		return "RESET_FAULT"
	case KindStatus:
		return "STATUS"
	}
	return "UNKNOWN(" + itoa(int(k)) + ")"
}

// Frame is one checksum-verified unit from the byte stream.
type Frame struct {
	Kind    Kind
	Payload []byte
}

// itoa converts int to string without strconv (keeps TinyGo builds small)
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	negative := i < 0
	if negative {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if negative {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

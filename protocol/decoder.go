package protocol

import "errors"

var (
	ErrBadLength   = errors.New("frame length exceeds payload limit")
	ErrBadChecksum = errors.New("frame checksum mismatch")
)

type decodeState uint8

const (
	stateSOF decodeState = iota
	stateCmd
	stateLen
	statePayload
	stateCRCHigh
	stateCRCLow
)

// Decoder reassembles frames from a byte stream one byte at a time. It keeps
// no heap state, so it can be fed from an interrupt or a polling loop.
// A frame error drops the partial frame and resumes hunting for SOF.
type Decoder struct {
	state   decodeState
	kind    Kind
	length  uint8
	pos     uint8
	crc     uint16
	rxCRC   uint16
	payload [FramePayloadMax]byte

	frames uint32
	errors uint32
}

// Feed consumes one byte. It returns a frame with ok set once the final CRC
// byte of a valid frame arrives. The returned payload aliases decoder state
// and is valid until the next call.
func (d *Decoder) Feed(b byte) (frame Frame, ok bool, err error) {
	switch d.state {
	case stateSOF:
		if b == FrameSOF {
			d.crc = 0xFFFF
			d.state = stateCmd
		}

	case stateCmd:
		d.kind = Kind(b)
		d.crc = crc16Update(d.crc, b)
		d.state = stateLen

	case stateLen:
		if b > FramePayloadMax {
			return d.fail(ErrBadLength)
		}
		d.length = b
		d.pos = 0
		d.crc = crc16Update(d.crc, b)
		if b == 0 {
			d.state = stateCRCHigh
		} else {
			d.state = statePayload
		}

	case statePayload:
		d.payload[d.pos] = b
		d.pos++
		d.crc = crc16Update(d.crc, b)
		if d.pos == d.length {
			d.state = stateCRCHigh
		}

	case stateCRCHigh:
		d.rxCRC = uint16(b) << 8
		d.state = stateCRCLow

	case stateCRCLow:
		d.rxCRC |= uint16(b)
		d.state = stateSOF
		if d.rxCRC != d.crc {
			return d.fail(ErrBadChecksum)
		}
		d.frames++
		return Frame{Kind: d.kind, Payload: d.payload[:d.length]}, true, nil
	}
	return Frame{}, false, nil
}

func (d *Decoder) fail(err error) (Frame, bool, error) {
	d.state = stateSOF
	d.errors++
	return Frame{}, false, err
}

// Reset discards any partial frame.
func (d *Decoder) Reset() {
	d.state = stateSOF
}

// Frames is the count of frames accepted.
func (d *Decoder) Frames() uint32 { return d.frames }

// Errors is the count of frames dropped for length or checksum.
func (d *Decoder) Errors() uint32 { return d.errors }

// AppendFrame writes SOF, header, payload and checksum for one frame.
func AppendFrame(out OutputBuffer, kind Kind, payload []byte) error {
	if len(payload) > FramePayloadMax {
		return ErrBadLength
	}
	out.Output([]byte{FrameSOF})
	start := out.CurPosition()
	out.Output([]byte{byte(kind), byte(len(payload))})
	out.Output(payload)
	crc := CRC16(out.DataSince(start))
	out.Output([]byte{byte(crc >> 8), byte(crc)})
	return nil
}

// EncodeFrame returns a freshly allocated frame.
func EncodeFrame(kind Kind, payload []byte) ([]byte, error) {
	out := NewScratchOutput()
	if err := AppendFrame(out, kind, payload); err != nil {
		return nil, err
	}
	return append([]byte(nil), out.Result()...), nil
}

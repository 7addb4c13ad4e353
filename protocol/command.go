package protocol

import "errors"

var (
	ErrUnknownCommand = errors.New("unknown command kind")
	ErrUnknownParam   = errors.New("unknown parameter id")
	ErrMalformed      = errors.New("malformed payload")
)

// ParamID selects the drive parameter targeted by SET_PARAM.
type ParamID uint8

const (
	// ParamConductionAngle is a Q16 fraction of the half-period.
	ParamConductionAngle ParamID = 1
	// ParamPhaseCompensation is a signed offset in timer ticks.
	ParamPhaseCompensation ParamID = 2
)

func (p ParamID) String() string {
	switch p {
	case ParamConductionAngle:
		return "conduction_angle"
	case ParamPhaseCompensation:
		return "phase_compensation"
	}
	return "param(" + itoa(int(p)) + ")"
}

// Command is a decoded interrupter request. The concrete types are Run,
// Stop, SetParam, FirePulse and ResetFault.
type Command interface {
	Kind() Kind
}

type Run struct{}

type Stop struct{}

type SetParam struct {
	ID    ParamID
	Value int32
}

// FirePulse enables the drive for Duration timer ticks.
type FirePulse struct {
	Duration uint32
}

type ResetFault struct{}

func (Run) Kind() Kind        { return KindRun }
func (Stop) Kind() Kind       { return KindStop }
func (SetParam) Kind() Kind   { return KindSetParam }
func (FirePulse) Kind() Kind  { return KindFirePulse }
func (ResetFault) Kind() Kind { return KindResetFault }

// ParseCommand converts a checksum-verified frame into a Command. Range
// checks on values belong to the receiver; this only validates shape.
func ParseCommand(f Frame) (Command, error) {
	data := f.Payload
	switch f.Kind {
	case KindRun:
		if len(data) != 0 {
			return nil, ErrMalformed
		}
		return Run{}, nil

	case KindStop:
		if len(data) != 0 {
			return nil, ErrMalformed
		}
		return Stop{}, nil

	case KindResetFault:
		if len(data) != 0 {
			return nil, ErrMalformed
		}
		return ResetFault{}, nil

	case KindSetParam:
		if len(data) < 2 {
			return nil, ErrMalformed
		}
		id := ParamID(data[0])
		if id != ParamConductionAngle && id != ParamPhaseCompensation {
			return nil, ErrUnknownParam
		}
		data = data[1:]
		v, err := DecodeVLQInt(&data)
		if err != nil || len(data) != 0 {
			return nil, ErrMalformed
		}
		return SetParam{ID: id, Value: v}, nil

	case KindFirePulse:
		d, err := DecodeVLQUint(&data)
		if err != nil || len(data) != 0 {
			return nil, ErrMalformed
		}
		return FirePulse{Duration: d}, nil
	}
	return nil, ErrUnknownCommand
}

// AppendCommand encodes c as a complete frame.
func AppendCommand(out OutputBuffer, c Command) error {
	var payload ScratchOutput
	switch c := c.(type) {
	case Run, Stop, ResetFault:
	case SetParam:
		payload.Output([]byte{byte(c.ID)})
		EncodeVLQInt(&payload, c.Value)
	case FirePulse:
		EncodeVLQUint(&payload, c.Duration)
	default:
		return ErrUnknownCommand
	}
	return AppendFrame(out, c.Kind(), payload.Result())
}

// EncodeCommand returns c as a freshly allocated frame.
func EncodeCommand(c Command) ([]byte, error) {
	out := NewScratchOutput()
	if err := AppendCommand(out, c); err != nil {
		return nil, err
	}
	return append([]byte(nil), out.Result()...), nil
}

// Status flag bits
const (
	StatusLocked = 1 << iota
	StatusStale
	StatusRunning
	StatusLatched
)

// Status is the periodic controller report.
type Status struct {
	Flags          uint8
	Period         uint32
	PhaseError     int32
	Peak           uint16
	ProtocolErrors uint32
	LatchCount     uint32
}

func (s Status) Locked() bool  { return s.Flags&StatusLocked != 0 }
func (s Status) Stale() bool   { return s.Flags&StatusStale != 0 }
func (s Status) Running() bool { return s.Flags&StatusRunning != 0 }
func (s Status) Latched() bool { return s.Flags&StatusLatched != 0 }

// AppendStatus encodes a STATUS frame.
func AppendStatus(out OutputBuffer, s Status) error {
	var payload ScratchOutput
	payload.Output([]byte{s.Flags})
	EncodeVLQUint(&payload, s.Period)
	EncodeVLQInt(&payload, s.PhaseError)
	EncodeVLQUint(&payload, uint32(s.Peak))
	EncodeVLQUint(&payload, s.ProtocolErrors)
	EncodeVLQUint(&payload, s.LatchCount)
	return AppendFrame(out, KindStatus, payload.Result())
}

// EncodeStatus returns a freshly allocated STATUS frame.
func EncodeStatus(s Status) ([]byte, error) {
	out := NewScratchOutput()
	if err := AppendStatus(out, s); err != nil {
		return nil, err
	}
	return append([]byte(nil), out.Result()...), nil
}

// ParseStatus decodes a STATUS frame payload.
func ParseStatus(f Frame) (Status, error) {
	if f.Kind != KindStatus {
		return Status{}, ErrUnknownCommand
	}
	data := f.Payload
	if len(data) == 0 {
		return Status{}, ErrMalformed
	}
	s := Status{Flags: data[0]}
	data = data[1:]

	var err error
	var peak uint32
	if s.Period, err = DecodeVLQUint(&data); err != nil {
		return Status{}, ErrMalformed
	}
	if s.PhaseError, err = DecodeVLQInt(&data); err != nil {
		return Status{}, ErrMalformed
	}
	if peak, err = DecodeVLQUint(&data); err != nil || peak > 0xFFFF {
		return Status{}, ErrMalformed
	}
	s.Peak = uint16(peak)
	if s.ProtocolErrors, err = DecodeVLQUint(&data); err != nil {
		return Status{}, ErrMalformed
	}
	if s.LatchCount, err = DecodeVLQUint(&data); err != nil {
		return Status{}, ErrMalformed
	}
	if len(data) != 0 {
		return Status{}, ErrMalformed
	}
	return s, nil
}

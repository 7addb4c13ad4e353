package sim

import (
	"fmt"
	"strings"

	"qcwcore/core"
	"qcwcore/protocol"
)

// Step is one scripted interrupter action.
type Step struct {
	At      uint64  `yaml:"at"`
	Action  string  `yaml:"action"`
	Value   float64 `yaml:"value,omitempty"`
	Corrupt bool    `yaml:"corrupt,omitempty"` // flip a checksum bit
}

// Command converts the step into a protocol command.
func (s Step) Command() (protocol.Command, error) {
	return ParseAction(s.Action, s.Value)
}

// Bytes returns the framed step as it would appear on the wire.
func (s Step) Bytes() ([]byte, error) {
	cmd, err := s.Command()
	if err != nil {
		return nil, err
	}
	msg, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}
	if s.Corrupt {
		msg[len(msg)-1] ^= 0x01
	}
	return msg, nil
}

// ParseAction maps an action name to a command. Angles are fractions of
// the half-period, phases and pulse lengths are ticks.
func ParseAction(action string, value float64) (protocol.Command, error) {
	switch strings.ToLower(action) {
	case "run":
		return protocol.Run{}, nil
	case "stop":
		return protocol.Stop{}, nil
	case "reset", "reset_fault":
		return protocol.ResetFault{}, nil
	case "fire", "fire_pulse":
		if value < 0 || value > 1<<32-1 {
			return nil, fmt.Errorf("pulse length %v out of range", value)
		}
		return protocol.FirePulse{Duration: uint32(value)}, nil
	case "angle", "conduction_angle":
		if value < 0 || value > 1 {
			return nil, fmt.Errorf("conduction angle %v not a fraction", value)
		}
		return protocol.SetParam{ID: protocol.ParamConductionAngle, Value: int32(core.Q16(value))}, nil
	case "phase", "phase_compensation":
		if value < -1<<31 || value > 1<<31-1 {
			return nil, fmt.Errorf("phase %v out of range", value)
		}
		return protocol.SetParam{ID: protocol.ParamPhaseCompensation, Value: int32(value)}, nil
	}
	return nil, fmt.Errorf("unknown action %q", action)
}

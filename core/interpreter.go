package core

import (
	"sync/atomic"

	"qcwcore/protocol"
)

// Interpreter decodes the serial byte stream into commands and commits
// their effect on the drive parameters. OnByte runs in the serial context,
// Tick in the cycle handler.
type Interpreter struct {
	maxAngle     uint32
	maxPhase     int32
	firePulseMax uint32

	clock      Clock
	protection *Protection
	trace      *Trace

	decoder protocol.Decoder

	params      paramCell
	deadline    atomic.Uint64
	protoErrors atomic.Uint32
}

func NewInterpreter(cfg *Config, clock Clock, protection *Protection, trace *Trace) *Interpreter {
	in := &Interpreter{
		maxAngle:     cfg.MaxConductionAngle,
		maxPhase:     cfg.MaxPhaseCompensation,
		firePulseMax: cfg.FirePulseMax,
		clock:        clock,
		protection:   protection,
		trace:        trace,
	}
	in.params.store(packParams(DriveParameters{ConductionAngle: cfg.InitialConductionAngle}))
	return in
}

// OnByte feeds one received byte to the frame decoder.
func (in *Interpreter) OnByte(b byte) {
	frame, ok, err := in.decoder.Feed(b)
	if err != nil {
		in.protocolError(EvtFrameError, 0, 0)
		return
	}
	if !ok {
		return
	}
	cmd, err := protocol.ParseCommand(frame)
	if err != nil {
		in.protocolError(EvtCommandError, uint32(frame.Kind), 0)
		return
	}
	in.Apply(cmd)
}

func (in *Interpreter) protocolError(kind uint8, v1, v2 uint32) {
	in.protoErrors.Add(1)
	in.trace.RecordEvent(kind, in.clock.Now(), v1, v2)
}

// Apply commits the effect of one decoded command.
func (in *Interpreter) Apply(cmd protocol.Command) {
	now := in.clock.Now()

	switch c := cmd.(type) {
	case protocol.Run:
		if in.protection.Inhibited() {
			in.trace.RecordEvent(EvtIgnored, now, uint32(protocol.KindRun), 0)
			return
		}
		in.deadline.Store(0)
		in.params.update(func(w paramWord) paramWord { return w.withRun(true, false) })

	case protocol.Stop:
		in.deadline.Store(0)
		in.params.update(func(w paramWord) paramWord { return w.withRun(false, false) })

	case protocol.SetParam:
		if !in.setParam(c.ID, c.Value) {
			in.protocolError(EvtParamRejected, uint32(c.ID), uint32(c.Value))
			return
		}

	case protocol.FirePulse:
		if c.Duration == 0 || c.Duration > in.firePulseMax {
			in.protocolError(EvtParamRejected, uint32(protocol.KindFirePulse), c.Duration)
			return
		}
		if in.protection.Inhibited() {
			in.trace.RecordEvent(EvtIgnored, now, uint32(protocol.KindFirePulse), c.Duration)
			return
		}
		in.deadline.Store(now + uint64(c.Duration))
		in.params.update(func(w paramWord) paramWord { return w.withNextSeq().withRun(true, true) })

	case protocol.ResetFault:
		in.protection.Reset()

	default:
		in.protocolError(EvtCommandError, uint32(cmd.Kind()), 0)
		return
	}
	in.trace.RecordEvent(EvtCommand, now, uint32(cmd.Kind()), 0)
}

func (in *Interpreter) setParam(id protocol.ParamID, v int32) bool {
	switch id {
	case protocol.ParamConductionAngle:
		if v <= 0 || uint32(v) > in.maxAngle {
			return false
		}
		in.params.update(func(w paramWord) paramWord { return w.withAngle(uint32(v)) })
		return true

	case protocol.ParamPhaseCompensation:
		if abs(int64(v)) > int64(in.maxPhase) {
			return false
		}
		in.params.update(func(w paramWord) paramWord { return w.withPhase(v) })
		return true
	}
	return false
}

// Tick ends an expired fire pulse. A Run or Stop issued since the pulse
// started takes precedence.
func (in *Interpreter) Tick(now uint64) {
	w := in.params.load()
	if !w.pulse() {
		return
	}
	dl := in.deadline.Load()
	if dl == 0 || now < dl {
		return
	}
	if in.params.v.CompareAndSwap(uint64(w), uint64(w.withRun(false, false))) {
		in.trace.RecordEvent(EvtPulseExpired, now, w.seq(), 0)
	}
}

// Params returns the committed drive parameters.
func (in *Interpreter) Params() DriveParameters {
	return in.params.load().params()
}

// PulseActive reports whether the drive is running on a fire pulse.
func (in *Interpreter) PulseActive() bool {
	return in.params.load().pulse()
}

// ProtocolErrors counts dropped frames, malformed commands and rejected
// parameters.
func (in *Interpreter) ProtocolErrors() uint32 {
	return in.protoErrors.Load()
}

// Halt clears run and any pending pulse. The controller calls it when a
// fault latches so a reset does not resume output by itself.
func (in *Interpreter) Halt() {
	in.deadline.Store(0)
	in.params.update(func(w paramWord) paramWord { return w.withRun(false, false) })
}

package core

import "sync/atomic"

// DebugWriter is a platform sink for debug text (UART, USB CDC, stderr).
type DebugWriter func(string)

// TraceEvent is one entry of the post-mortem ring.
type TraceEvent struct {
	Kind   uint8
	Clock  uint64
	Value1 uint32
	Value2 uint32
}

// Trace event kinds
const (
	EvtTrackFault    = 1  // raw period clamped; v1=raw half-period
	EvtLockGained    = 2  // v1=half-period
	EvtLockLost      = 3  // v1=phase error
	EvtStale         = 4  // feedback timeout; v1=ticks since last edge
	EvtFrameError    = 5  // bad length or checksum
	EvtCommandError  = 6  // unknown kind or malformed payload; v1=kind
	EvtParamRejected = 7  // v1=param id, v2=value
	EvtTrip          = 8  // v1=sample, v2=1 when sustained
	EvtResetCleared  = 9  // v1=last sample
	EvtResetRefused  = 10 // v1=last sample
	EvtPulseExpired  = 11 // v1=pulse sequence
	EvtIgnored       = 12 // command ignored while latched; v1=kind
	EvtCommand       = 13 // command applied; v1=kind, v2=value
)

const TraceRingSize = 32

var debugPrintln DebugWriter = func(string) {}

// SetDebugWriter sets the platform-specific debug output function.
func SetDebugWriter(writer DebugWriter) {
	if writer == nil {
		writer = func(string) {}
	}
	debugPrintln = writer
}

// DebugPrintln writes one line to the platform debug output.
func DebugPrintln(msg string) {
	debugPrintln(msg)
}

// Trace is a fixed ring of the most recent events. RecordEvent never
// blocks: if another context holds the ring the event is dropped and
// counted.
type Trace struct {
	busy    atomic.Bool
	ring    [TraceRingSize]TraceEvent
	head    uint8
	dropped atomic.Uint32
}

func NewTrace() *Trace {
	return &Trace{}
}

// RecordEvent appends an event. Safe to call with a nil receiver.
func (t *Trace) RecordEvent(kind uint8, clock uint64, value1, value2 uint32) {
	if t == nil {
		return
	}
	if !t.busy.CompareAndSwap(false, true) {
		t.dropped.Add(1)
		return
	}
	t.ring[t.head] = TraceEvent{Kind: kind, Clock: clock, Value1: value1, Value2: value2}
	t.head = (t.head + 1) % TraceRingSize
	t.busy.Store(false)
}

// Dropped is the number of events lost to contention.
func (t *Trace) Dropped() uint32 {
	return t.dropped.Load()
}

// Events copies the ring oldest first. It returns nil if the ring is busy.
func (t *Trace) Events() []TraceEvent {
	if !t.busy.CompareAndSwap(false, true) {
		return nil
	}
	defer t.busy.Store(false)

	out := make([]TraceEvent, 0, TraceRingSize)
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := t.ring[(t.head+i)%TraceRingSize]
		if evt.Kind != 0 {
			out = append(out, evt)
		}
	}
	return out
}

// Last returns the most recent event of the given kind.
func (t *Trace) Last(kind uint8) (TraceEvent, bool) {
	evts := t.Events()
	for i := len(evts) - 1; i >= 0; i-- {
		if evts[i].Kind == kind {
			return evts[i], true
		}
	}
	return TraceEvent{}, false
}

// Clear empties the ring.
func (t *Trace) Clear() {
	for !t.busy.CompareAndSwap(false, true) {
	}
	t.ring = [TraceRingSize]TraceEvent{}
	t.head = 0
	t.busy.Store(false)
}

// EventName returns the short name used in dumps.
func EventName(kind uint8) string {
	switch kind {
	case EvtTrackFault:
		return "TRACK_FAULT"
	case EvtLockGained:
		return "LOCK"
	case EvtLockLost:
		return "UNLOCK"
	case EvtStale:
		return "STALE"
	case EvtFrameError:
		return "FRAME_ERR"
	case EvtCommandError:
		return "CMD_ERR"
	case EvtParamRejected:
		return "PARAM_REJECT"
	case EvtTrip:
		return "TRIP!"
	case EvtResetCleared:
		return "RESET"
	case EvtResetRefused:
		return "RESET_REFUSED"
	case EvtPulseExpired:
		return "PULSE_END"
	case EvtIgnored:
		return "IGNORED"
	case EvtCommand:
		return "CMD"
	}
	return "UNKNOWN"
}

// Dump writes the ring through the debug writer. Call it outside the
// control cycle.
func (t *Trace) Dump() {
	debugPrintln("[TRACE] === Trace Dump ===")
	for _, evt := range t.Events() {
		debugPrintln("[TRACE] " + EventName(evt.Kind) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(uint64(evt.Value1)) +
			" v2=" + utoa(uint64(evt.Value2)))
	}
	if d := t.Dropped(); d > 0 {
		debugPrintln("[TRACE] dropped=" + utoa(uint64(d)))
	}
	debugPrintln("[TRACE] === End Dump ===")
}

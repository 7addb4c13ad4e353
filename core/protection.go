package core

import "sync/atomic"

// ProtectionState is the published view of the current monitor.
type ProtectionState struct {
	Latched    bool
	LastSample uint16
	Peak       uint16
	LatchCount uint16
}

// Word layout: last sample bits 0-15, peak 16-31, latch count 32-47,
// latched bit 63.
const psLatched = 1 << 63

func packProtection(s ProtectionState) uint64 {
	w := uint64(s.LastSample) | uint64(s.Peak)<<16 | uint64(s.LatchCount)<<32
	if s.Latched {
		w |= psLatched
	}
	return w
}

func unpackProtection(w uint64) ProtectionState {
	return ProtectionState{
		Latched:    w&psLatched != 0,
		LastSample: uint16(w),
		Peak:       uint16(w >> 16),
		LatchCount: uint16(w >> 32),
	}
}

// ResetResult is the outcome of a fault reset request.
type ResetResult uint8

const (
	ResetNotLatched ResetResult = iota
	ResetRefused
	ResetCleared
)

func (r ResetResult) String() string {
	switch r {
	case ResetRefused:
		return "refused"
	case ResetCleared:
		return "cleared"
	}
	return "not_latched"
}

// Protection latches a fault on overcurrent and holds it until an explicit
// reset while the current is back in range. OnSample runs in the sampling
// context; Reset in the command context. Both commit with compare-and-swap.
type Protection struct {
	trip           uint16
	sustained      uint16
	sustainedCount uint32
	clock          Clock
	trace          *Trace

	// sampling context only
	over uint32

	state atomic.Uint64
}

func NewProtection(cfg *Config, clock Clock, trace *Trace) *Protection {
	return &Protection{
		trip:           cfg.TripThreshold,
		sustained:      cfg.SustainedThreshold,
		sustainedCount: cfg.SustainedCount,
		clock:          clock,
		trace:          trace,
	}
}

// OnSample processes one current sample and reports whether it tripped.
func (p *Protection) OnSample(sample uint16) bool {
	if sample > p.sustained {
		if p.over < p.sustainedCount {
			p.over++
		}
	} else {
		p.over = 0
	}
	instant := sample > p.trip
	sustained := p.over >= p.sustainedCount

	for {
		w := p.state.Load()
		cur := unpackProtection(w)
		next := cur
		next.LastSample = sample
		next.Peak = max(cur.Peak-cur.Peak>>4, sample)

		tripped := !cur.Latched && (instant || sustained)
		if tripped {
			next.Latched = true
			if next.LatchCount < 0xFFFF {
				next.LatchCount++
			}
		}
		if !p.state.CompareAndSwap(w, packProtection(next)) {
			continue
		}
		if tripped {
			v2 := uint32(0)
			if !instant {
				v2 = 1
			}
			p.trace.RecordEvent(EvtTrip, p.clock.Now(), uint32(sample), v2)
		}
		return tripped
	}
}

// Reset clears a latched fault unless the current is still above the
// sustained threshold.
func (p *Protection) Reset() ResetResult {
	for {
		w := p.state.Load()
		cur := unpackProtection(w)
		if !cur.Latched {
			return ResetNotLatched
		}
		if cur.LastSample > p.sustained {
			p.trace.RecordEvent(EvtResetRefused, p.clock.Now(), uint32(cur.LastSample), 0)
			return ResetRefused
		}
		next := cur
		next.Latched = false
		if p.state.CompareAndSwap(w, packProtection(next)) {
			p.trace.RecordEvent(EvtResetCleared, p.clock.Now(), uint32(cur.LastSample), 0)
			return ResetCleared
		}
	}
}

// State returns the latest committed snapshot.
func (p *Protection) State() ProtectionState {
	return unpackProtection(p.state.Load())
}

// Inhibited is true while a fault is latched.
func (p *Protection) Inhibited() bool {
	return p.state.Load()&psLatched != 0
}

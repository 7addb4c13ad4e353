package core

import "sync/atomic"

// DriveParameters is the operator-controlled drive state. It is published
// as a single 64-bit word so the cycle handler never sees a mix of old
// and new fields.
type DriveParameters struct {
	Run               bool
	ConductionAngle   uint32 // Q16 fraction of the half-period
	PhaseCompensation int32  // ticks added to the phase 2 shift
}

// Word layout:
//
//	bits  0-31  phase compensation
//	bits 32-48  conduction angle (Q16, up to 1.0)
//	bits 49-60  fire-pulse sequence
//	bit  62     run was started by a fire pulse
//	bit  63     run
type paramWord uint64

const (
	pwAngleShift = 32
	pwAngleMask  = 0x1FFFF
	pwSeqShift   = 49
	pwSeqMask    = 0xFFF
	pwPulse      = 1 << 62
	pwRun        = 1 << 63
)

func packParams(p DriveParameters) paramWord {
	w := paramWord(uint32(p.PhaseCompensation))
	w |= paramWord(p.ConductionAngle&pwAngleMask) << pwAngleShift
	if p.Run {
		w |= pwRun
	}
	return w
}

func (w paramWord) params() DriveParameters {
	return DriveParameters{
		Run:               w&pwRun != 0,
		ConductionAngle:   uint32(w>>pwAngleShift) & pwAngleMask,
		PhaseCompensation: int32(uint32(w)),
	}
}

func (w paramWord) pulse() bool { return w&pwPulse != 0 }

func (w paramWord) seq() uint32 { return uint32(w>>pwSeqShift) & pwSeqMask }

func (w paramWord) withRun(run, pulse bool) paramWord {
	w &^= pwRun | pwPulse
	if run {
		w |= pwRun
	}
	if pulse {
		w |= pwPulse
	}
	return w
}

func (w paramWord) withNextSeq() paramWord {
	seq := (w.seq() + 1) & pwSeqMask
	return w&^(pwSeqMask<<pwSeqShift) | paramWord(seq)<<pwSeqShift
}

func (w paramWord) withAngle(angle uint32) paramWord {
	return w&^(pwAngleMask<<pwAngleShift) | paramWord(angle&pwAngleMask)<<pwAngleShift
}

func (w paramWord) withPhase(phase int32) paramWord {
	return w&^0xFFFFFFFF | paramWord(uint32(phase))
}

// paramCell is the committed parameter word. Writers from different
// contexts update it with compare-and-swap.
type paramCell struct {
	v atomic.Uint64
}

func (c *paramCell) load() paramWord {
	return paramWord(c.v.Load())
}

func (c *paramCell) store(w paramWord) {
	c.v.Store(uint64(w))
}

// update applies fn until it commits and returns the old and new words.
func (c *paramCell) update(fn func(paramWord) paramWord) (prev, next paramWord) {
	for {
		prev = c.load()
		next = fn(prev)
		if c.v.CompareAndSwap(uint64(prev), uint64(next)) {
			return prev, next
		}
	}
}

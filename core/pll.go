package core

import "sync/atomic"

// FeedbackEdge is one zero crossing of the resonant current, timestamped
// by the capture hardware.
type FeedbackEdge struct {
	Time   uint64
	Rising bool
}

// TrackedPeriod is the PLL output consumed by the waveform generator.
type TrackedPeriod struct {
	HalfPeriod uint32 // ticks
	PhaseError int32  // leaky sum of recent phase errors, ticks
	Locked     bool
	Stale      bool
}

// Word layout: half-period in bits 0-31, phase error (saturated int16) in
// bits 32-47, locked bit 48, stale bit 49.
const (
	tpLocked = 1 << 48
	tpStale  = 1 << 49
)

func packPeriod(p TrackedPeriod) uint64 {
	w := uint64(p.HalfPeriod) | uint64(uint16(satInt16(p.PhaseError)))<<32
	if p.Locked {
		w |= tpLocked
	}
	if p.Stale {
		w |= tpStale
	}
	return w
}

func unpackPeriod(w uint64) TrackedPeriod {
	return TrackedPeriod{
		HalfPeriod: uint32(w),
		PhaseError: int32(int16(uint16(w >> 32))),
		Locked:     w&tpLocked != 0,
		Stale:      w&tpStale != 0,
	}
}

// PLL tracks the tank resonance from feedback edges. OnFeedbackEdge runs in
// the capture context and is the only writer of the tracking state;
// CheckTimeout runs once per cycle and can only mark the snapshot stale.
// Only edges of the configured polarity count, so two of them are a full
// period apart: the half-period is half their spacing, and feedback is lost
// after four half-periods without one.
type PLL struct {
	minPeriod uint32
	maxPeriod uint32
	tau       int64
	lockThres int64
	lockCount uint32
	rising    bool
	trace     *Trace

	// edge context only
	seeded     bool
	measured   bool
	lastEdge   uint64
	filteredQ8 int64
	errAcc     int32
	lockRun    uint32

	lastEdgeAt atomic.Uint64
	snapshot   atomic.Uint64
	faults     atomic.Uint32
	ignored    atomic.Uint32
}

func NewPLL(cfg *Config, trace *Trace) *PLL {
	p := &PLL{
		minPeriod:  cfg.MinPeriod,
		maxPeriod:  cfg.MaxPeriod,
		tau:        int64(cfg.FilterTimeConstant),
		lockThres:  int64(cfg.LockThreshold),
		lockCount:  cfg.LockCount,
		rising:     cfg.FeedbackPolarity == Rising,
		trace:      trace,
		filteredQ8: int64(cfg.InitialPeriod) << 8,
	}
	p.snapshot.Store(packPeriod(TrackedPeriod{HalfPeriod: cfg.InitialPeriod}))
	return p
}

// OnFeedbackEdge consumes one edge. Edges of the other polarity are
// counted and dropped.
func (p *PLL) OnFeedbackEdge(edge FeedbackEdge) {
	if edge.Rising != p.rising {
		p.ignored.Add(1)
		return
	}

	prev := unpackPeriod(p.snapshot.Load())
	if !p.seeded || prev.Stale || edge.Time <= p.lastEdge {
		p.seed(edge.Time, prev.HalfPeriod)
		return
	}

	// Qualifying edges are one full period apart.
	raw := (edge.Time - p.lastEdge) / 2
	fault := raw < uint64(p.minPeriod) || raw > uint64(p.maxPeriod)
	raw = clamp(raw, uint64(p.minPeriod), uint64(p.maxPeriod))

	if !p.measured {
		p.filteredQ8 = int64(raw) << 8
		p.measured = true
	}
	predicted := p.lastEdge + 2*uint64(p.filteredQ8>>8)
	phaseErr := satInt32(int64(edge.Time) - int64(predicted))

	p.filteredQ8 += (int64(raw)<<8 - p.filteredQ8) / p.tau
	p.errAcc = satInt32(int64(p.errAcc) - int64(p.errAcc>>2) + int64(phaseErr))

	switch {
	case fault:
		p.lockRun = 0
		p.faults.Add(1)
		p.trace.RecordEvent(EvtTrackFault, edge.Time, uint32(min(raw, 1<<32-1)), uint32(phaseErr))
	case abs(int64(phaseErr)) <= p.lockThres:
		if p.lockRun < p.lockCount {
			p.lockRun++
		}
	default:
		p.lockRun = 0
	}

	next := TrackedPeriod{
		HalfPeriod: uint32((p.filteredQ8 + 128) >> 8),
		PhaseError: p.errAcc,
		Locked:     p.lockRun >= p.lockCount,
	}
	if next.Locked != prev.Locked {
		if next.Locked {
			p.trace.RecordEvent(EvtLockGained, edge.Time, next.HalfPeriod, 0)
		} else {
			p.trace.RecordEvent(EvtLockLost, edge.Time, uint32(phaseErr), 0)
		}
	}

	p.lastEdge = edge.Time
	p.lastEdgeAt.Store(edge.Time)
	p.snapshot.Store(packPeriod(next))
}

// seed restarts tracking from t, keeping the last period.
func (p *PLL) seed(t uint64, halfPeriod uint32) {
	p.seeded = true
	p.lastEdge = t
	p.errAcc = 0
	p.lockRun = 0
	p.lastEdgeAt.Store(t)
	p.snapshot.Store(packPeriod(TrackedPeriod{HalfPeriod: halfPeriod}))
}

// CheckTimeout marks the loop stale and unlocked when no qualifying edge
// has arrived for two full periods. The period is left as it was.
func (p *PLL) CheckTimeout(now uint64) bool {
	w := p.snapshot.Load()
	cur := unpackPeriod(w)
	if cur.Stale {
		return true
	}

	last := p.lastEdgeAt.Load()
	if now <= last {
		return false
	}
	elapsed := now - last
	if elapsed <= 4*uint64(cur.HalfPeriod) {
		return false
	}

	stale := cur
	stale.Locked = false
	stale.Stale = true
	if !p.snapshot.CompareAndSwap(w, packPeriod(stale)) {
		// an edge just landed
		return false
	}
	p.trace.RecordEvent(EvtStale, now, uint32(min(elapsed, 1<<32-1)), 0)
	if cur.Locked {
		p.trace.RecordEvent(EvtLockLost, now, 0, 0)
	}
	return true
}

// CurrentPeriod returns the latest committed tracking state.
func (p *PLL) CurrentPeriod() TrackedPeriod {
	return unpackPeriod(p.snapshot.Load())
}

// TrackingFaults counts raw periods clamped into range.
func (p *PLL) TrackingFaults() uint32 { return p.faults.Load() }

// IgnoredEdges counts edges of the non-qualifying polarity.
func (p *PLL) IgnoredEdges() uint32 { return p.ignored.Load() }

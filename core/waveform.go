package core

// HalfCycle says which switch of each bridge leg conducts this half-cycle.
type HalfCycle uint8

const (
	HighSide HalfCycle = iota
	LowSide
)

func (h HalfCycle) String() string {
	if h == LowSide {
		return "low"
	}
	return "high"
}

// PhaseEdges are assertion offsets from the start of the half-cycle. Fall
// before Rise means the assertion wraps into the next half-cycle.
type PhaseEdges struct {
	Rise uint32
	Fall uint32
}

// OutputEdgeSet is the switching plan for one half-cycle.
type OutputEdgeSet struct {
	Cycle     uint32
	Start     uint64
	Period    uint32
	Width     uint32
	HalfCycle HalfCycle
	Phase1    PhaseEdges
	Phase2    PhaseEdges
	// Phase2Carry is how long the previous half-cycle's phase 2 assertion
	// continues into this one, on the previous half-cycle's side. It ends
	// at least the dead time before Phase2.Rise and replaces the [0, Fall)
	// head of a wrapped Phase2.
	Phase2Carry uint32
	Inhibited   bool
}

// Asserted reports whether a phase with these edges is on at offset t.
func (e PhaseEdges) Asserted(t uint32) bool {
	switch {
	case e.Rise == e.Fall:
		return false
	case e.Rise < e.Fall:
		return t >= e.Rise && t < e.Fall
	default:
		return t >= e.Rise || t < e.Fall
	}
}

// Generator turns the tracked period and drive parameters into edge sets.
// It is only called from the cycle handler.
type Generator struct {
	minDeadTime uint32
	maxAngle    uint32
	cycle       uint32
	half        HalfCycle

	// phase 2 at the end of the last set: ticks spilling into the next
	// half-cycle, or ticks it had been off
	spill uint32
	idle  uint32
}

func NewGenerator(cfg *Config) *Generator {
	return &Generator{
		minDeadTime: cfg.MinDeadTime,
		maxAngle:    cfg.MaxConductionAngle,
		idle:        cfg.MinDeadTime,
	}
}

// ConductionWidth returns the assertion width for one phase. It is never
// more than period minus the dead time.
func (g *Generator) ConductionWidth(period uint32, angle uint32) uint32 {
	if period <= g.minDeadTime {
		return 0
	}
	angle = min(angle, g.maxAngle)
	width := uint32(uint64(period) * uint64(angle) >> 16)
	return min(width, period-g.minDeadTime)
}

// PhaseShift maps a signed tick offset into [0, period).
func PhaseShift(phase int32, period uint32) uint32 {
	if period == 0 {
		return 0
	}
	m := int64(phase) % int64(period)
	if m < 0 {
		m += int64(period)
	}
	return uint32(m)
}

// NextCycle computes the edge set for the half-cycle starting at start.
// When inhibited the set is explicit and safe: both phases held off.
//
// Phase 2 is checked against the end of the previous set. An assertion
// that ran past the previous half-cycle comes back as Phase2Carry, cut
// short to leave the dead time before this set's rise. If phase 2 was on
// too close to the end of the previous set, this set's rise is delayed.
// Inhibited sets break the chain.
func (g *Generator) NextCycle(start uint64, period uint32, params DriveParameters, inhibited bool) OutputEdgeSet {
	set := OutputEdgeSet{
		Cycle:     g.cycle,
		Start:     start,
		Period:    period,
		HalfCycle: g.half,
		Inhibited: inhibited,
	}
	g.cycle++
	g.half ^= 1

	carry, idle := g.spill, g.idle
	g.spill, g.idle = 0, period

	if inhibited {
		return set
	}

	width := g.ConductionWidth(period, params.ConductionAngle)
	if width == 0 {
		return set
	}
	shift := PhaseShift(params.PhaseCompensation, period)

	set.Width = width
	set.Phase1 = PhaseEdges{Rise: 0, Fall: width}

	if carry > 0 {
		carry = min(carry, shift-min(shift, g.minDeadTime))
		set.Phase2Carry = carry
		idle = 0
	}
	end := shift + width
	if end > period {
		// shift > dead time here, so the rise never moves
		set.Phase2 = PhaseEdges{Rise: shift, Fall: end - period}
		g.spill = end - period
		g.idle = 0
		return set
	}

	rise := shift
	if carry == 0 && idle < g.minDeadTime {
		rise = max(rise, g.minDeadTime-idle)
	}
	if rise >= end {
		g.idle = period - carry
		return set
	}
	set.Phase2 = PhaseEdges{Rise: rise, Fall: end % period}
	g.idle = period - end
	return set
}

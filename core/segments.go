package core

// Segment is a run of constant gate state within a half-cycle. Side is
// the switch an on run drives.
type Segment struct {
	On    bool
	Side  HalfCycle
	Ticks uint32
}

// Segments appends the state runs of e across a half-cycle of period
// ticks to dst. Zero-length runs are skipped; the durations always sum to
// period.
func (e PhaseEdges) Segments(period uint32, dst []Segment) []Segment {
	add := func(on bool, ticks uint32) {
		if ticks > 0 {
			dst = append(dst, Segment{On: on, Ticks: ticks})
		}
	}
	switch {
	case e.Rise == e.Fall || e.Rise >= period:
		add(false, period)
	case e.Rise < e.Fall:
		add(false, e.Rise)
		add(true, e.Fall-e.Rise)
		add(false, period-min(e.Fall, period))
	default:
		add(true, e.Fall)
		add(false, e.Rise-e.Fall)
		add(true, period-e.Rise)
	}
	return dst
}

// LegSegments appends the gate runs of one bridge leg (0 for phase 1, 1
// for phase 2) to dst. Runs inside the half-cycle drive set.HalfCycle; the
// phase 2 carry at the start drives the other side. The head of a wrapped
// assertion is never played from the edges alone.
func (s OutputEdgeSet) LegSegments(leg int, dst []Segment) []Segment {
	add := func(on bool, side HalfCycle, ticks uint32) {
		if ticks > 0 {
			dst = append(dst, Segment{On: on, Side: side, Ticks: ticks})
		}
	}
	if s.Inhibited {
		add(false, 0, s.Period)
		return dst
	}

	e, carry := s.Phase1, uint32(0)
	if leg == 1 {
		e, carry = s.Phase2, s.Phase2Carry
	}
	rise, fall := e.Rise, e.Fall
	switch {
	case rise == fall || rise >= s.Period:
		rise, fall = s.Period, s.Period
	case fall < rise:
		fall = s.Period
	}
	carry = min(carry, rise)

	add(true, s.HalfCycle^1, carry)
	add(false, 0, rise-carry)
	add(true, s.HalfCycle, fall-rise)
	add(false, 0, s.Period-fall)
	return dst
}

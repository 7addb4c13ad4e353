package sim

import "qcwcore/core"

// Record is one simulated half-cycle.
type Record struct {
	Set        core.OutputEdgeSet
	TrueHalf   float64
	Sample     uint16
	Locked     bool
	Stale      bool
	Latched    bool
	PhaseError int32
}

// Recorder is the simulated gate driver. It keeps every applied edge set
// and checks that inhibited sets really hold the gates off and that no
// leg changes side without the dead time in between.
type Recorder struct {
	deadTime   uint32
	legs       [2]legGate
	segs       []core.Segment
	records    []Record
	pending    *core.OutputEdgeSet
	safeCalls  int
	violations int
}

func NewRecorder(deadTime uint32) *Recorder {
	return &Recorder{deadTime: deadTime}
}

// legGate follows one bridge leg across half-cycles.
type legGate struct {
	driven bool
	side   core.HalfCycle
	off    uint32
}

// play advances the leg by one run and reports a side change that came
// too early.
func (l *legGate) play(s core.Segment, deadTime uint32) bool {
	if !s.On {
		l.off = min(l.off+s.Ticks, deadTime)
		return false
	}
	early := l.driven && s.Side != l.side && l.off < deadTime
	l.driven, l.side, l.off = true, s.Side, 0
	return early
}

func (r *Recorder) Apply(set core.OutputEdgeSet) {
	if set.Inhibited && (set.Width != 0 || set.Phase1 != (core.PhaseEdges{}) || set.Phase2 != (core.PhaseEdges{}) || set.Phase2Carry != 0) {
		r.violations++
	}
	for i := range r.legs {
		r.segs = set.LegSegments(i, r.segs[:0])
		for _, s := range r.segs {
			if r.legs[i].play(s, r.deadTime) {
				r.violations++
			}
		}
	}
	r.pending = &set
}

func (r *Recorder) Safe() {
	r.safeCalls++
	r.legs = [2]legGate{}
}

// take returns the set applied since the last call.
func (r *Recorder) take() (core.OutputEdgeSet, bool) {
	if r.pending == nil {
		return core.OutputEdgeSet{}, false
	}
	set := *r.pending
	r.pending = nil
	return set, true
}

func (r *Recorder) add(rec Record) {
	r.records = append(r.records, rec)
}

func (r *Recorder) Records() []Record {
	return r.records
}

// SafeCalls counts how often the controller forced the gates off.
func (r *Recorder) SafeCalls() int {
	return r.safeCalls
}

// Violations counts inhibited sets that asserted a gate and side changes
// closer than the dead time.
func (r *Recorder) Violations() int {
	return r.violations
}

package core

// OutputDriver applies edge sets to the gate drive hardware. Apply is
// called once per half-cycle from the cycle handler and must not block.
type OutputDriver interface {
	// Apply programs the switching plan for the next half-cycle. An
	// inhibited set must leave every gate off.
	Apply(set OutputEdgeSet)

	// Safe forces every gate off immediately.
	Safe()
}

// RecordingOutput keeps the applied edge sets, for tests and the
// simulator.
type RecordingOutput struct {
	Sets  []OutputEdgeSet
	Safed int
	Limit int // keep at most Limit sets, 0 for all
}

func (r *RecordingOutput) Apply(set OutputEdgeSet) {
	if r.Limit > 0 && len(r.Sets) >= r.Limit {
		copy(r.Sets, r.Sets[1:])
		r.Sets = r.Sets[:len(r.Sets)-1]
	}
	r.Sets = append(r.Sets, set)
}

func (r *RecordingOutput) Safe() {
	r.Safed++
}

// Last returns the most recent edge set.
func (r *RecordingOutput) Last() (OutputEdgeSet, bool) {
	if len(r.Sets) == 0 {
		return OutputEdgeSet{}, false
	}
	return r.Sets[len(r.Sets)-1], true
}

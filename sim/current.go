package sim

import "qcwcore/core"

// CurrentModel approximates the primary current envelope: it ramps while
// the bridge drives and rings down while inhibited.
type CurrentModel struct {
	rise  uint32
	decay uint8
	level uint32

	injections []Injection
}

func NewCurrentModel(cfg *Config) *CurrentModel {
	return &CurrentModel{
		rise:       cfg.CurrentRise,
		decay:      cfg.CurrentDecay,
		injections: cfg.Overcurrent,
	}
}

// Step advances one half-cycle under set and returns the sampled current.
func (m *CurrentModel) Step(set core.OutputEdgeSet) uint16 {
	m.level -= m.level >> m.decay
	if !set.Inhibited && set.Period > 0 {
		m.level += uint32(uint64(m.rise) * uint64(set.Width) / uint64(set.Period))
	}
	m.level = min(m.level, 0xFFFF)

	sample := uint16(m.level)
	for _, inj := range m.injections {
		if set.Start >= inj.At && set.Start < inj.At+inj.Duration {
			sample = max(sample, inj.Sample)
		}
	}
	return sample
}

func (m *CurrentModel) Level() uint16 {
	return uint16(m.level)
}

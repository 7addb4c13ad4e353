package sim

import (
	"golang.org/x/exp/rand"

	"qcwcore/core"
)

// Tank produces the zero-crossing edges of a drifting, jittery resonance.
type Tank struct {
	half   float64
	drift  float64
	jitter int64
	rng    *rand.Rand
	loss   []Window

	ideal  float64 // next rising edge before jitter
	rising bool
}

func NewTank(cfg *Config, start uint64) *Tank {
	return &Tank{
		half:   float64(cfg.HalfPeriod),
		drift:  cfg.Drift,
		jitter: int64(cfg.Jitter),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		loss:   cfg.FeedbackLoss,
		ideal:  float64(start),
		rising: true,
	}
}

// HalfPeriod is the true half-period right now.
func (t *Tank) HalfPeriod() float64 {
	return t.half
}

// Peek returns the time of the next edge without consuming it.
func (t *Tank) Peek() uint64 {
	return uint64(t.ideal)
}

// Next consumes the next edge. ok is false when the edge falls in a
// feedback loss window.
func (t *Tank) Next() (edge core.FeedbackEdge, ok bool) {
	at := int64(t.ideal)
	if t.jitter > 0 {
		at += t.rng.Int63n(2*t.jitter+1) - t.jitter
	}
	if at < 0 {
		at = 0
	}
	edge = core.FeedbackEdge{Time: uint64(at), Rising: t.rising}

	t.ideal += t.half
	if !t.rising {
		t.half += t.drift
	}
	t.rising = !t.rising

	for _, w := range t.loss {
		if w.Contains(edge.Time) {
			return edge, false
		}
	}
	return edge, true
}

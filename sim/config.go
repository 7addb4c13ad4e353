// Package sim runs the control core against a modelled resonant tank,
// current sensor and interrupter, all on a manual clock.
package sim

import (
	"errors"
	"fmt"
)

var ErrInvalidConfig = errors.New("invalid simulation config")

// Window is a closed-open span of ticks.
type Window struct {
	From uint64 `yaml:"from"`
	To   uint64 `yaml:"to"`
}

func (w Window) Contains(t uint64) bool {
	return t >= w.From && t < w.To
}

// Injection forces current samples to at least Sample during the window.
type Injection struct {
	At       uint64 `yaml:"at"`
	Duration uint64 `yaml:"duration"`
	Sample   uint16 `yaml:"sample"`
}

// Config describes the plant and the interrupter script.
type Config struct {
	HalfPeriod uint32  `yaml:"half_period"` // true tank half-period at start, ticks
	Jitter     uint32  `yaml:"jitter"`      // max edge jitter, ticks
	Drift      float64 `yaml:"drift"`       // half-period change per period, ticks
	Duration   uint64  `yaml:"duration"`    // ticks
	Seed       uint64  `yaml:"seed"`

	CurrentRise  uint32 `yaml:"current_rise"`  // sample units per cycle at full conduction
	CurrentDecay uint8  `yaml:"current_decay"` // decay shift per cycle

	FeedbackLoss []Window    `yaml:"feedback_loss"`
	Overcurrent  []Injection `yaml:"overcurrent"`
	Script       []Step      `yaml:"script"`
}

func (c *Config) Validate() error {
	switch {
	case c.HalfPeriod == 0:
		return fmt.Errorf("%w: half_period must be set", ErrInvalidConfig)
	case c.Jitter >= c.HalfPeriod/2:
		return fmt.Errorf("%w: jitter must be below a quarter period", ErrInvalidConfig)
	case c.Duration == 0:
		return fmt.Errorf("%w: duration must be set", ErrInvalidConfig)
	case c.CurrentDecay == 0 || c.CurrentDecay > 15:
		return fmt.Errorf("%w: current_decay must be in [1, 15]", ErrInvalidConfig)
	}
	for i, w := range c.FeedbackLoss {
		if w.To <= w.From {
			return fmt.Errorf("%w: feedback_loss[%d] is empty", ErrInvalidConfig, i)
		}
	}
	for i, s := range c.Script {
		if _, err := s.Command(); err != nil {
			return fmt.Errorf("%w: script[%d]: %v", ErrInvalidConfig, i, err)
		}
	}
	return nil
}

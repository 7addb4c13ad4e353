package core

import "sync/atomic"

// Clock is the free-running timer every timestamp in the core is taken
// from. Ticks are monotonic and never wrap in practice (64 bits).
type Clock interface {
	Now() uint64
}

// ManualClock is a Clock advanced explicitly, used by tests and the
// simulator.
type ManualClock struct {
	ticks atomic.Uint64
}

func NewManualClock(start uint64) *ManualClock {
	c := &ManualClock{}
	c.ticks.Store(start)
	return c
}

func (c *ManualClock) Now() uint64 {
	return c.ticks.Load()
}

func (c *ManualClock) Set(ticks uint64) {
	c.ticks.Store(ticks)
}

// Advance moves the clock forward and returns the new time.
func (c *ManualClock) Advance(d uint64) uint64 {
	return c.ticks.Add(d)
}

// TicksFromUS converts microseconds to ticks of a timer running at freq Hz.
func TicksFromUS(freq uint32, us uint32) uint64 {
	return uint64(us) * uint64(freq) / 1000000
}

// TicksToUS converts ticks back to microseconds.
func TicksToUS(freq uint32, ticks uint64) uint64 {
	return ticks * 1000000 / uint64(freq)
}

// HalfPeriodFromHz returns the half-period in ticks of a resonance at hz.
func HalfPeriodFromHz(freq uint32, hz uint32) uint32 {
	if hz == 0 {
		return 0
	}
	return freq / (2 * hz)
}

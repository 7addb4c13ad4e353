package core

import "errors"

// Q16One is 1.0 in the Q16 fractions used for conduction angles.
const Q16One = 1 << 16

// Q16 converts a fraction to Q16, rounding to nearest.
func Q16(f float64) uint32 {
	if f <= 0 {
		return 0
	}
	return uint32(f*Q16One + 0.5)
}

var ErrInvalidConfig = errors.New("invalid controller config")

// ConfigError names the offending field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "config " + e.Field + ": " + e.Reason
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// Edge polarity used by the PLL.
type Polarity uint8

const (
	Rising Polarity = iota
	Falling
)

// Config holds every tuning constant of the control core. All durations
// are timer ticks; periods are half-periods of the resonance. There are
// no built-in defaults: values come from the board config.
type Config struct {
	TimerFreq uint32 `yaml:"timer_freq"` // ticks per second

	// Phase tracking
	InitialPeriod      uint32   `yaml:"initial_period"` // open-loop ring-up half-period
	MinPeriod          uint32   `yaml:"min_period"`
	MaxPeriod          uint32   `yaml:"max_period"`
	FilterTimeConstant uint32   `yaml:"filter_time_constant"` // edges
	LockThreshold      uint32   `yaml:"lock_threshold"`       // ticks of phase error
	LockCount          uint32   `yaml:"lock_count"`           // consecutive in-threshold edges
	FeedbackPolarity   Polarity `yaml:"feedback_polarity"`

	// Waveform
	MinDeadTime            uint32 `yaml:"min_dead_time"`
	MaxConductionAngle     uint32 `yaml:"max_conduction_angle"` // Q16
	InitialConductionAngle uint32 `yaml:"initial_conduction_angle"`
	MaxPhaseCompensation   int32  `yaml:"max_phase_compensation"`

	// Protection, in sample units
	TripThreshold      uint16 `yaml:"trip_threshold"`
	SustainedThreshold uint16 `yaml:"sustained_threshold"`
	SustainedCount     uint32 `yaml:"sustained_count"`

	// Command interpreter
	FirePulseMax uint32 `yaml:"fire_pulse_max"`

	// STATUS frame every StatusInterval cycles, 0 disables
	StatusInterval uint32 `yaml:"status_interval"`
}

func invalid(field, reason string) error {
	return &ConfigError{Field: field, Reason: reason}
}

// Validate rejects missing or inconsistent values.
func (c *Config) Validate() error {
	switch {
	case c.TimerFreq == 0:
		return invalid("timer_freq", "must be set")
	case c.MinPeriod == 0:
		return invalid("min_period", "must be set")
	case c.MaxPeriod < c.MinPeriod:
		return invalid("max_period", "below min_period")
	case c.InitialPeriod < c.MinPeriod || c.InitialPeriod > c.MaxPeriod:
		return invalid("initial_period", "outside [min_period, max_period]")
	case c.MaxPeriod > 1<<30:
		return invalid("max_period", "too large")
	case c.FilterTimeConstant == 0:
		return invalid("filter_time_constant", "must be at least 1")
	case c.LockCount == 0:
		return invalid("lock_count", "must be at least 1")
	case c.LockThreshold == 0:
		return invalid("lock_threshold", "must be set")
	case c.FeedbackPolarity > Falling:
		return invalid("feedback_polarity", "must be rising or falling")
	case c.MinDeadTime == 0:
		return invalid("min_dead_time", "must be set")
	case c.MinDeadTime >= c.MinPeriod:
		return invalid("min_dead_time", "not shorter than min_period")
	case c.MaxConductionAngle == 0 || c.MaxConductionAngle >= Q16One:
		return invalid("max_conduction_angle", "must be in (0, 1)")
	case c.InitialConductionAngle == 0 || c.InitialConductionAngle > c.MaxConductionAngle:
		return invalid("initial_conduction_angle", "must be in (0, max_conduction_angle]")
	case c.MaxPhaseCompensation < 0:
		return invalid("max_phase_compensation", "negative")
	case c.TripThreshold == 0:
		return invalid("trip_threshold", "must be set")
	case c.SustainedThreshold == 0 || c.SustainedThreshold > c.TripThreshold:
		return invalid("sustained_threshold", "must be in (0, trip_threshold]")
	case c.SustainedCount == 0:
		return invalid("sustained_count", "must be at least 1")
	case c.FirePulseMax == 0:
		return invalid("fire_pulse_max", "must be set")
	}
	return nil
}

func (p Polarity) String() string {
	if p == Falling {
		return "falling"
	}
	return "rising"
}

// UnmarshalText accepts "rising" or "falling".
func (p *Polarity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "rising":
		*p = Rising
	case "falling":
		*p = Falling
	default:
		return invalid("feedback_polarity", "unknown value "+string(text))
	}
	return nil
}

func (p Polarity) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

package core

import "errors"

var ErrADCNotReady = errors.New("adc conversion not ready")

// ADCDriver is the platform current-sense converter.
type ADCDriver interface {
	// ReadRaw returns the latest conversion, or ErrADCNotReady when no new
	// conversion has completed since the last read.
	ReadRaw() (uint16, error)
}

// CurrentScale maps raw converter counts to protection sample units:
// sample = (raw - offset) * gain, saturating at both ends.
type CurrentScale struct {
	Offset uint32 // counts, 1/16 LSB
	Gain   uint32 // Q16 sample units per count
}

// NewCurrentScale builds a scale from the sensor's zero offset (counts),
// its sensitivity (counts per ampere) and the sample unit (units per ampere).
func NewCurrentScale(offsetCounts, countsPerAmp, unitsPerAmp float64) CurrentScale {
	s := CurrentScale{Gain: Q16(unitsPerAmp / countsPerAmp)}
	if offsetCounts > 0 {
		s.Offset = uint32(offsetCounts*16 + 0.5)
	}
	return s
}

func (s CurrentScale) Sample(raw uint16) uint16 {
	r := uint32(raw) << 4
	if r <= s.Offset {
		return 0
	}
	v := uint64(r-s.Offset) * uint64(s.Gain) >> 20
	return satUint16(uint32(min(v, 0xFFFFFFFF)))
}

// CurrentSampler polls an ADCDriver and feeds scaled samples to the
// protection monitor.
type CurrentSampler struct {
	adc   ADCDriver
	scale CurrentScale
	sink  func(uint16) bool

	samples uint32
	errors  uint32
}

func NewCurrentSampler(adc ADCDriver, scale CurrentScale, sink func(uint16) bool) *CurrentSampler {
	return &CurrentSampler{adc: adc, scale: scale, sink: sink}
}

// Poll takes at most one conversion. It reports whether the sample
// tripped the protection.
func (s *CurrentSampler) Poll() bool {
	raw, err := s.adc.ReadRaw()
	if err != nil {
		if !errors.Is(err, ErrADCNotReady) {
			s.errors++
		}
		return false
	}
	s.samples++
	return s.sink(s.scale.Sample(raw))
}

func (s *CurrentSampler) Samples() uint32 { return s.samples }
func (s *CurrentSampler) Errors() uint32  { return s.errors }

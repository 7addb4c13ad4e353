//go:build rp2040

package main

import "machine"

// Current transformer burden on ADC0: 80.4 counts at zero, 10.816 counts
// per ampere. Samples are in units of 10 mA.
const (
	currentOffsetCounts = 80.4
	currentCountsPerAmp = 10.816
	currentUnitsPerAmp  = 100
)

// rpADC reads the current sense channel. machine.ADC returns the 12-bit
// conversion left-aligned in 16 bits.
type rpADC struct {
	adc machine.ADC
}

func newRPADC(pin machine.Pin) *rpADC {
	machine.InitADC()
	a := &rpADC{adc: machine.ADC{Pin: pin}}
	a.adc.Configure(machine.ADCConfig{})
	return a
}

func (a *rpADC) ReadRaw() (uint16, error) {
	return a.adc.Get() >> 4, nil
}

//go:build rp2040

package main

import (
	"device/arm"
	"runtime/interrupt"
)

// cpuFreq is the SysTick rate and the timer frequency of the control core.
const cpuFreq = 125000000

const systickReload = 0x00FFFFFF

// sysClock extends the 24-bit down-counting SysTick to 64 bits. Now must
// be called at least once per wrap (about 134 ms).
type sysClock struct {
	high uint64
	last uint32
}

func newSysClock() *sysClock {
	arm.SYST.SYST_RVR.Set(systickReload)
	arm.SYST.SYST_CVR.Set(0)
	arm.SYST.SYST_CSR.Set(arm.SYST_CSR_ENABLE | arm.SYST_CSR_CLKSOURCE)
	return &sysClock{last: systickReload}
}

func (c *sysClock) Now() uint64 {
	state := interrupt.Disable()
	cur := arm.SYST.SYST_CVR.Get() & systickReload
	if cur > c.last {
		c.high += systickReload + 1
	}
	c.last = cur
	now := c.high + uint64(systickReload-cur)
	interrupt.Restore(state)
	return now
}

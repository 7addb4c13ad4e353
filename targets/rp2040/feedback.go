//go:build rp2040

package main

import (
	"machine"

	"qcwcore/core"
)

// watchFeedback timestamps both edges of the comparator output and hands
// them to the controller from the pin interrupt.
func watchFeedback(pin machine.Pin, clk core.Clock, ctrl *core.Controller) error {
	pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	return pin.SetInterrupt(machine.PinRising|machine.PinFalling, func(p machine.Pin) {
		ctrl.OnFeedbackEdge(core.FeedbackEdge{Time: clk.Now(), Rising: p.Get()})
	})
}

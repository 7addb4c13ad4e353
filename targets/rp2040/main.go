//go:build rp2040

package main

import (
	"machine"
	"time"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"qcwcore/core"
)

// Board wiring.
const (
	pinFeedback = machine.GPIO2  // comparator output of the feedback CT
	pinPhase1   = machine.GPIO10 // GPIO10/11: leg 1 high/low gate
	pinPhase2   = machine.GPIO12 // GPIO12/13: leg 2 high/low gate
	pinCurrent  = machine.ADC0   // primary current CT burden
	pinLED      = machine.GPIO16
)

// firmwareConfig is tuned for a ~350 kHz primary at the 125 MHz CPU clock.
var firmwareConfig = core.Config{
	TimerFreq:              cpuFreq,
	InitialPeriod:          178,
	MinPeriod:              100,
	MaxPeriod:              400,
	FilterTimeConstant:     4,
	LockThreshold:          6,
	LockCount:              8,
	FeedbackPolarity:       core.Rising,
	MinDeadTime:            12,
	MaxConductionAngle:     58982, // 0.9
	InitialConductionAngle: 32768, // 0.5
	MaxPhaseCompensation:   150,
	TripThreshold:          4000, // 40 A
	SustainedThreshold:     3000,
	SustainedCount:         16,
	FirePulseMax:           6250000, // 50 ms
	StatusInterval:         7000,
}

// indicatorEvery is how many loop passes go by between LED updates.
const indicatorEvery = 4096

var (
	trace core.Trace

	// Debug counters
	usbErrors  uint32
	ledErrors  uint32
	txOverruns uint32
)

func main() {
	// Disable any watchdog left running from before the reset
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	initUSB()
	initDebugUART()

	clk := newSysClock()
	led := newStatusLED(pinLED)

	out, err := newPIOOutput(rp2pio.PIO0, pinPhase1, pinPhase2)
	if err != nil {
		halt(led, err)
	}
	ctrl, err := core.NewController(firmwareConfig, clk, out, core.WithTrace(&trace))
	if err != nil {
		out.Safe()
		halt(led, err)
	}
	if err := watchFeedback(pinFeedback, clk, ctrl); err != nil {
		out.Safe()
		halt(led, err)
	}

	scale := core.NewCurrentScale(currentOffsetCounts, currentCountsPerAmp, currentUnitsPerAmp)
	sampler := core.NewCurrentSampler(newRPADC(pinCurrent), scale, ctrl.OnCurrentSample)
	indicator := core.NewIndicatorUpdater(led)

	var disp core.Dispatcher
	ctrl.Start(&disp, clk.Now()+uint64(firmwareConfig.InitialPeriod))

	tx := make([]byte, 64)
	for pass := uint32(0); ; pass++ {
		// Receive
		for machine.Serial.Buffered() > 0 {
			b, err := machine.Serial.ReadByte()
			if err != nil {
				usbErrors++
				break
			}
			ctrl.OnByte(b)
		}

		// a trip has already forced the legs safe inside Poll
		tripped := sampler.Poll()

		disp.Dispatch(clk.Now())

		if tripped {
			trace.Dump()
		}

		// Transmit queued STATUS frames
		if n := ctrl.ReadOutput(tx); n > 0 {
			if _, err := machine.Serial.Write(tx[:n]); err != nil {
				usbErrors++
			}
		}

		if pass%indicatorEvery == 0 {
			if err := indicator.Update(ctrl.Status()); err != nil {
				ledErrors++
			}
			txOverruns = out.overrun
		}
	}
}

// halt shows a fault and stays put with the outputs never driven.
func halt(led *statusLED, err error) {
	core.DebugPrintln("qcw: " + err.Error())
	for {
		_ = led.Show(core.ColorFault)
		time.Sleep(250 * time.Millisecond)
		_ = led.Show(core.ColorIdle)
		time.Sleep(250 * time.Millisecond)
	}
}

func initUSB() {
	// machine.Serial is USB CDC on the RP2040
	if err := machine.Serial.Configure(machine.UARTConfig{}); err != nil {
		return
	}
}

func initDebugUART() {
	err := machine.UART0.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	if err != nil {
		return
	}
	core.SetDebugWriter(func(s string) {
		_, _ = machine.UART0.Write([]byte(s))
		_, _ = machine.UART0.Write([]byte("\r\n"))
	})
}

//go:build rp2040

package main

import (
	"image/color"
	"machine"

	"tinygo.org/x/drivers/ws2812"
)

// statusLED is a single WS2812 on the board.
type statusLED struct {
	dev ws2812.Device
	buf [1]color.RGBA
}

func newStatusLED(pin machine.Pin) *statusLED {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &statusLED{dev: ws2812.New(pin)}
}

func (l *statusLED) Show(c color.RGBA) error {
	l.buf[0] = c
	return l.dev.WriteColors(l.buf[:])
}

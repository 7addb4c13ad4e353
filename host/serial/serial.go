// Package serial opens the fiber/serial adapter that carries the framed
// link to the controller.
package serial

import (
	"errors"
	"io"
	"time"
)

// ErrNoDevice is returned when no device path is configured.
var ErrNoDevice = errors.New("serial: no device configured")

// Port is the byte stream under a protocol.Link.
type Port interface {
	io.ReadWriteCloser

	// Flush discards buffered input and output.
	Flush() error
}

// Config holds serial port settings.
type Config struct {
	Device      string // e.g. "/dev/ttyUSB0", "COM3"
	Baud        int
	ReadTimeout time.Duration // 0 blocks
}

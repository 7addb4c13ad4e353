// Package interrupter is the operator side of the controller link: it
// range-checks requests against the controller configuration, sends them as
// frames and follows the STATUS stream.
package interrupter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/womat/debug"

	"qcwcore/core"
	"qcwcore/host/serial"
	"qcwcore/protocol"
)

var (
	ErrOutOfRange   = errors.New("value out of range")
	ErrNotConnected = errors.New("not connected")
)

// Interrupter sends commands to one controller.
type Interrupter struct {
	link *protocol.Link
	cfg  core.Config
}

// New wraps an open port. cfg must be the configuration the controller runs
// with; it is used for unit conversion and client-side range checks.
func New(port io.ReadWriteCloser, cfg core.Config) *Interrupter {
	return &Interrupter{
		link: protocol.NewLink(port),
		cfg:  cfg,
	}
}

// Connect opens the serial adapter and wraps it.
func Connect(sc serial.Config, cfg core.Config) (*Interrupter, error) {
	port, err := serial.Open(sc)
	if err != nil {
		return nil, err
	}
	debug.InfoLog.Printf("connected to %s at %d baud", sc.Device, sc.Baud)
	return New(port, cfg), nil
}

func (i *Interrupter) Close() error {
	if i.link == nil {
		return ErrNotConnected
	}
	return i.link.Close()
}

func (i *Interrupter) send(c protocol.Command) error {
	if i.link == nil {
		return ErrNotConnected
	}
	if err := i.link.Send(c); err != nil {
		debug.ErrorLog.Printf("send %v: %v", c.Kind(), err)
		return fmt.Errorf("send %v: %w", c.Kind(), err)
	}
	debug.DebugLog.Printf("sent %v %+v", c.Kind(), c)
	return nil
}

func (i *Interrupter) Run() error   { return i.send(protocol.Run{}) }
func (i *Interrupter) Stop() error  { return i.send(protocol.Stop{}) }
func (i *Interrupter) Reset() error { return i.send(protocol.ResetFault{}) }

// Fire requests a burst of length d.
func (i *Interrupter) Fire(d time.Duration) error {
	us := d.Microseconds()
	if us <= 0 || us > math.MaxUint32 {
		return fmt.Errorf("fire %v: %w", d, ErrOutOfRange)
	}
	ticks := core.TicksFromUS(i.cfg.TimerFreq, uint32(us))
	if ticks == 0 || ticks > uint64(i.cfg.FirePulseMax) {
		return fmt.Errorf("fire %v (%d ticks, max %d): %w", d, ticks, i.cfg.FirePulseMax, ErrOutOfRange)
	}
	return i.send(protocol.FirePulse{Duration: uint32(ticks)})
}

// SetAngle sets the conduction angle as a fraction of the half-period.
func (i *Interrupter) SetAngle(fraction float64) error {
	if fraction <= 0 || fraction > 1 {
		return fmt.Errorf("angle %v: %w", fraction, ErrOutOfRange)
	}
	q := core.Q16(fraction)
	if q == 0 || q > i.cfg.MaxConductionAngle {
		return fmt.Errorf("angle %v (max %.4f): %w", fraction,
			float64(i.cfg.MaxConductionAngle)/float64(core.Q16One), ErrOutOfRange)
	}
	return i.send(protocol.SetParam{ID: protocol.ParamConductionAngle, Value: int32(q)})
}

// SetPhase sets the phase compensation in timer ticks.
func (i *Interrupter) SetPhase(ticks int32) error {
	limit := i.cfg.MaxPhaseCompensation
	if ticks > limit || ticks < -limit {
		return fmt.Errorf("phase %d (max %d): %w", ticks, limit, ErrOutOfRange)
	}
	return i.send(protocol.SetParam{ID: protocol.ParamPhaseCompensation, Value: ticks})
}

// WaitStatus returns the next STATUS report.
func (i *Interrupter) WaitStatus(timeout time.Duration) (protocol.Status, error) {
	if i.link == nil {
		return protocol.Status{}, ErrNotConnected
	}
	return i.link.WaitStatus(timeout)
}

// Monitor calls fn for every STATUS report until ctx is done, the link
// closes or fn returns an error. Lock, fault and latch transitions are
// logged.
func (i *Interrupter) Monitor(ctx context.Context, fn func(protocol.Status) error) error {
	if i.link == nil {
		return ErrNotConnected
	}
	var last protocol.Status
	first := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-i.link.Statuses():
			if !ok {
				return protocol.ErrLinkClosed
			}
			if first || s.Flags != last.Flags {
				i.logTransition(last, s, first)
			}
			if !first && s.LatchCount != last.LatchCount {
				debug.ErrorLog.Printf("overcurrent trip, latch count %d", s.LatchCount)
			}
			last, first = s, false
			if fn != nil {
				if err := fn(s); err != nil {
					return err
				}
			}
		}
	}
}

func (i *Interrupter) logTransition(prev, s protocol.Status, first bool) {
	if first || prev.Locked() != s.Locked() {
		debug.InfoLog.Printf("locked=%v period=%d", s.Locked(), s.Period)
	}
	if (first || !prev.Stale()) && s.Stale() {
		debug.ErrorLog.Printf("feedback lost")
	}
	if (first || !prev.Latched()) && s.Latched() {
		debug.ErrorLog.Printf("fault latched, peak %d", s.Peak)
	}
	if !first && prev.Latched() && !s.Latched() {
		debug.InfoLog.Printf("fault cleared")
	}
}

// FrameErrors counts corrupt inbound frames.
func (i *Interrupter) FrameErrors() uint32 {
	if i.link == nil {
		return 0
	}
	return i.link.FrameErrors()
}

// FormatStatus renders a report in physical units.
func FormatStatus(cfg core.Config, s protocol.Status) string {
	var hz float64
	if s.Period > 0 {
		hz = float64(cfg.TimerFreq) / (2 * float64(s.Period))
	}
	flags := ""
	for _, f := range []struct {
		set  bool
		name string
	}{
		{s.Locked(), "LOCK"},
		{s.Stale(), "STALE"},
		{s.Running(), "RUN"},
		{s.Latched(), "FAULT"},
	} {
		if f.set {
			if flags != "" {
				flags += ","
			}
			flags += f.name
		}
	}
	if flags == "" {
		flags = "-"
	}
	return fmt.Sprintf("%-18s f=%.1fHz T/2=%d err=%d peak=%d proto_err=%d trips=%d",
		flags, hz, s.Period, s.PhaseError, s.Peak, s.ProtocolErrors, s.LatchCount)
}

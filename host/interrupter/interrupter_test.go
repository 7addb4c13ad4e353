package interrupter

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qcwcore/core"
	"qcwcore/protocol"
)

func testConfig() core.Config {
	return core.Config{
		TimerFreq:              12000000,
		InitialPeriod:          10000,
		MinPeriod:              5000,
		MaxPeriod:              20000,
		FilterTimeConstant:     4,
		LockThreshold:          100,
		LockCount:              4,
		MinDeadTime:            200,
		MaxConductionAngle:     core.Q16(0.9),
		InitialConductionAngle: core.Q16(0.5),
		MaxPhaseCompensation:   2000,
		TripThreshold:          1000,
		SustainedThreshold:     800,
		SustainedCount:         4,
		FirePulseMax:           1000000,
	}
}

// device decodes commands written by the interrupter on the far end of a pipe.
func device(t *testing.T) (*Interrupter, net.Conn, <-chan protocol.Command) {
	t.Helper()
	host, dev := net.Pipe()
	i := New(host, testConfig())
	t.Cleanup(func() {
		_ = dev.Close()
		_ = i.Close()
	})

	received := make(chan protocol.Command, 8)
	go func() {
		var d protocol.Decoder
		buf := make([]byte, 64)
		for {
			n, err := dev.Read(buf)
			for _, b := range buf[:n] {
				if f, ok, _ := d.Feed(b); ok {
					if c, err := protocol.ParseCommand(f); err == nil {
						received <- c
					}
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return i, dev, received
}

func next(t *testing.T, ch <-chan protocol.Command) protocol.Command {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(time.Second):
		t.Fatal("no command received")
		return nil
	}
}

func TestCommands(t *testing.T) {
	i, _, received := device(t)

	require.NoError(t, i.Run())
	assert.Equal(t, protocol.Run{}, next(t, received))

	require.NoError(t, i.Fire(10*time.Millisecond))
	assert.Equal(t, protocol.FirePulse{Duration: 120000}, next(t, received))

	require.NoError(t, i.SetAngle(0.25))
	assert.Equal(t, protocol.SetParam{ID: protocol.ParamConductionAngle, Value: 16384}, next(t, received))

	require.NoError(t, i.SetPhase(-150))
	assert.Equal(t, protocol.SetParam{ID: protocol.ParamPhaseCompensation, Value: -150}, next(t, received))

	require.NoError(t, i.Reset())
	assert.Equal(t, protocol.ResetFault{}, next(t, received))

	require.NoError(t, i.Stop())
	assert.Equal(t, protocol.Stop{}, next(t, received))
}

func TestRangeChecks(t *testing.T) {
	i, _, _ := device(t)

	tests := []struct {
		name string
		err  error
	}{
		{"zero pulse", i.Fire(0)},
		{"pulse over max", i.Fire(time.Second)},
		{"angle over max", i.SetAngle(0.95)},
		{"negative angle", i.SetAngle(-0.1)},
		{"phase over max", i.SetPhase(2001)},
		{"phase under min", i.SetPhase(-2001)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, ErrOutOfRange)
		})
	}
}

func TestMonitor(t *testing.T) {
	i, dev, _ := device(t)

	reports := []protocol.Status{
		{Period: 10000},
		{Flags: protocol.StatusLocked | protocol.StatusRunning, Period: 9990},
		{Flags: protocol.StatusLatched, Period: 9990, Peak: 1200, LatchCount: 1},
	}
	go func() {
		for _, s := range reports {
			msg, err := protocol.EncodeStatus(s)
			if err != nil {
				return
			}
			if _, err := dev.Write(msg); err != nil {
				return
			}
		}
	}()

	var got []protocol.Status
	done := errors.New("done")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := i.Monitor(ctx, func(s protocol.Status) error {
		got = append(got, s)
		if len(got) == len(reports) {
			return done
		}
		return nil
	})
	assert.ErrorIs(t, err, done)
	assert.Equal(t, reports, got)
}

func TestMonitorContext(t *testing.T) {
	i, _, _ := device(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, i.Monitor(ctx, nil), context.DeadlineExceeded)
}

func TestFormatStatus(t *testing.T) {
	s := protocol.Status{Flags: protocol.StatusLocked | protocol.StatusRunning, Period: 10000, Peak: 300}
	out := FormatStatus(testConfig(), s)
	assert.True(t, strings.HasPrefix(out, "LOCK,RUN"))
	assert.Contains(t, out, "f=600.0Hz")
	assert.Contains(t, out, "peak=300")

	assert.True(t, strings.HasPrefix(FormatStatus(testConfig(), protocol.Status{}), "- "))
}

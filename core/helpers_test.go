package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"qcwcore/protocol"
)

// testConfig is a tank resonating near 600 kHz on a 12 MHz timer.
func testConfig() Config {
	return Config{
		TimerFreq:              12000000,
		InitialPeriod:          10000,
		MinPeriod:              5000,
		MaxPeriod:              20000,
		FilterTimeConstant:     4,
		LockThreshold:          100,
		LockCount:              4,
		FeedbackPolarity:       Rising,
		MinDeadTime:            200,
		MaxConductionAngle:     Q16(0.9),
		InitialConductionAngle: Q16(0.5),
		MaxPhaseCompensation:   2000,
		TripThreshold:          1000,
		SustainedThreshold:     800,
		SustainedCount:         4,
		FirePulseMax:           1000000,
	}
}

// fastConfig uses a short half-period so pulse timing is easy to count.
func fastConfig() Config {
	cfg := testConfig()
	cfg.InitialPeriod = 100
	cfg.MinPeriod = 50
	cfg.MaxPeriod = 200
	cfg.MinDeadTime = 10
	cfg.LockThreshold = 5
	cfg.MaxPhaseCompensation = 50
	return cfg
}

func frame(t *testing.T, c protocol.Command) []byte {
	t.Helper()
	msg, err := protocol.EncodeCommand(c)
	require.NoError(t, err)
	return msg
}

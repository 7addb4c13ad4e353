package sim

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qcwcore/core"
	"qcwcore/protocol"
)

func ctrlConfig() core.Config {
	return core.Config{
		TimerFreq:              12000000,
		InitialPeriod:          10000,
		MinPeriod:              5000,
		MaxPeriod:              20000,
		FilterTimeConstant:     4,
		LockThreshold:          100,
		LockCount:              4,
		FeedbackPolarity:       core.Rising,
		MinDeadTime:            200,
		MaxConductionAngle:     core.Q16(0.9),
		InitialConductionAngle: core.Q16(0.5),
		MaxPhaseCompensation:   2000,
		TripThreshold:          1000,
		SustainedThreshold:     800,
		SustainedCount:         4,
		FirePulseMax:           1000000,
		StatusInterval:         10,
	}
}

func simConfig() Config {
	return Config{
		HalfPeriod:   10000,
		Jitter:       5,
		Duration:     1000000,
		Seed:         1,
		CurrentRise:  40,
		CurrentDecay: 4,
		Script:       []Step{{At: 0, Action: "run"}},
	}
}

func run(t *testing.T, cfg Config) (*Runner, *Report) {
	t.Helper()
	r, err := New(ctrlConfig(), cfg)
	require.NoError(t, err)
	rep, err := r.Run()
	require.NoError(t, err)
	return r, rep
}

func TestSteadyTankLocks(t *testing.T) {
	_, rep := run(t, simConfig())

	assert.GreaterOrEqual(t, rep.LockedAt, 0)
	assert.LessOrEqual(t, rep.LockedAt, 10)
	assert.Zero(t, rep.LockLosses)
	assert.Less(t, rep.TrackingP95, 100.0, "within 1%% of the half-period")
	assert.Zero(t, rep.Violations)
	assert.Zero(t, rep.Trips)
	assert.Equal(t, rep.Cycles, rep.ActiveCycles)
	assert.True(t, rep.Final.Period.Locked)
}

func TestDriftingTankStaysLocked(t *testing.T) {
	cfg := simConfig()
	cfg.Drift = 2
	cfg.HalfPeriod = 9000
	_, rep := run(t, cfg)

	assert.True(t, rep.Final.Period.Locked)
	assert.Zero(t, rep.TrackingFaults)
	assert.InDelta(t, 0, rep.TrackingMean, 50)
}

func TestOvercurrentLatchesUntilReset(t *testing.T) {
	cfg := simConfig()
	cfg.Overcurrent = []Injection{{At: 200000, Duration: 20000, Sample: 1500}}
	cfg.Script = append(cfg.Script,
		Step{At: 300000, Action: "run"},
		Step{At: 400000, Action: "reset"},
		Step{At: 410000, Action: "run"},
	)
	r, rep := run(t, cfg)

	assert.Equal(t, uint16(1), rep.Trips)
	assert.Zero(t, rep.Violations)
	assert.Equal(t, 2, rep.SafeStops, "once at start, once on the trip")
	assert.False(t, rep.Final.Protection.Latched)

	tripped := false
	activeAfterRun := 0
	for _, rec := range r.Recorder().Records() {
		start := rec.Set.Start
		if rec.Latched && !tripped {
			tripped = true
			continue
		}
		if tripped && start < 410000 {
			require.True(t, rec.Set.Inhibited, "cycle at %d should be inhibited", start)
		}
		if start > 410000 && !rec.Set.Inhibited {
			activeAfterRun++
		}
	}
	assert.True(t, tripped)
	assert.Greater(t, activeAfterRun, 0)
}

func TestFirePulseBurst(t *testing.T) {
	cfg := simConfig()
	cfg.Script = []Step{{At: 100000, Action: "fire", Value: 50000}}
	r, rep := run(t, cfg)

	active := uint64(0)
	for _, rec := range r.Recorder().Records() {
		if !rec.Set.Inhibited {
			active += uint64(rec.Set.Period)
		}
	}
	assert.InDelta(t, 50000, float64(active), 10001)
	assert.False(t, rep.Final.Params.Run)
}

func TestFeedbackLossKeepsSwitching(t *testing.T) {
	cfg := simConfig()
	cfg.FeedbackLoss = []Window{{From: 300000, To: 400000}}
	r, rep := run(t, cfg)

	assert.Greater(t, rep.StaleCycles, 0)
	assert.GreaterOrEqual(t, rep.LockLosses, 1)
	assert.True(t, rep.Final.Period.Locked, "lock comes back once feedback returns")

	for _, rec := range r.Recorder().Records() {
		if rec.Stale {
			assert.False(t, rec.Set.Inhibited)
		}
	}
}

func TestCorruptFrameCounted(t *testing.T) {
	cfg := simConfig()
	cfg.Script = []Step{
		{At: 0, Action: "run", Corrupt: true},
		{At: 50000, Action: "angle", Value: 0.97},
		{At: 60000, Action: "run"},
	}
	_, rep := run(t, cfg)

	assert.Equal(t, uint32(2), rep.ProtocolErrors)
	assert.Equal(t, core.Q16(0.5), rep.Final.Params.ConductionAngle)
	assert.True(t, rep.Final.Params.Run)
}

func TestStatusFramesEmitted(t *testing.T) {
	r, rep := run(t, simConfig())

	require.NotZero(t, rep.Statuses)
	assert.InDelta(t, rep.Cycles/10, rep.Statuses, 1)

	last := r.Statuses()[len(r.Statuses())-1]
	assert.True(t, last.Locked())
	assert.True(t, last.Running())
	assert.False(t, last.Latched())
}

func TestReportWriteTo(t *testing.T) {
	_, rep := run(t, simConfig())

	var buf bytes.Buffer
	_, err := rep.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "tracking error")
	assert.Contains(t, buf.String(), "gate violations 0")
}

func TestConfigValidate(t *testing.T) {
	cfg := simConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.HalfPeriod = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.CurrentDecay = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.Script = []Step{{Action: "explode"}}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.FeedbackLoss = []Window{{From: 10, To: 10}}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		action string
		value  float64
		want   protocol.Command
	}{
		{"run", 0, protocol.Run{}},
		{"STOP", 0, protocol.Stop{}},
		{"reset_fault", 0, protocol.ResetFault{}},
		{"fire", 500, protocol.FirePulse{Duration: 500}},
		{"angle", 0.5, protocol.SetParam{ID: protocol.ParamConductionAngle, Value: 32768}},
		{"phase", -120, protocol.SetParam{ID: protocol.ParamPhaseCompensation, Value: -120}},
	}
	for _, tt := range tests {
		got, err := ParseAction(tt.action, tt.value)
		require.NoError(t, err, tt.action)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseAction("angle", 1.5)
	assert.Error(t, err)
	_, err = ParseAction("fire", -1)
	assert.Error(t, err)
}

func TestRecorderFlagsEarlySideChange(t *testing.T) {
	r := NewRecorder(10)
	r.Apply(core.OutputEdgeSet{Period: 100, HalfCycle: core.HighSide, Width: 95, Phase1: core.PhaseEdges{Rise: 0, Fall: 95}})
	r.Apply(core.OutputEdgeSet{Period: 100, HalfCycle: core.LowSide, Width: 50, Phase1: core.PhaseEdges{Rise: 0, Fall: 50}})
	assert.Equal(t, 1, r.Violations())

	r = NewRecorder(10)
	r.Apply(core.OutputEdgeSet{Period: 100, HalfCycle: core.HighSide, Width: 95, Phase1: core.PhaseEdges{Rise: 0, Fall: 95}})
	r.Safe()
	r.Apply(core.OutputEdgeSet{Period: 100, HalfCycle: core.LowSide, Width: 50, Phase1: core.PhaseEdges{Rise: 0, Fall: 50}})
	assert.Zero(t, r.Violations())
}

func TestWrappedPhaseKeepsDeadTime(t *testing.T) {
	cfg := simConfig()
	cfg.Script = []Step{
		{At: 0, Action: "run"},
		{At: 0, Action: "angle", Value: 0.85},
		{At: 100000, Action: "phase", Value: 2000},
		{At: 300000, Action: "phase", Value: -2000},
		{At: 500000, Action: "phase", Value: 0},
	}
	_, rep := run(t, cfg)
	assert.Zero(t, rep.Violations)
}

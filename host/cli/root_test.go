package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qcwcore/host/serial"
	"qcwcore/host/statuslog"
	"qcwcore/protocol"
)

const benchConfig = `
controller:
  timer_freq: 12000000
  initial_period: 10000
  min_period: 5000
  max_period: 20000
  filter_time_constant: 4
  lock_threshold: 100
  lock_count: 4
  feedback_polarity: rising
  min_dead_time: 200
  max_conduction_angle: 58982
  initial_conduction_angle: 32768
  max_phase_compensation: 2000
  trip_threshold: 1000
  sustained_threshold: 800
  sustained_count: 4
  fire_pulse_max: 1000000
  status_interval: 10
sim:
  half_period: 10000
  jitter: 5
  duration: 1000000
  seed: 1
  current_rise: 40
  current_decay: 4
  script:
    - {at: 0, action: run}
log:
  level: error
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qcw.yaml")
	require.NoError(t, os.WriteFile(path, []byte(benchConfig), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "qcwctl", cmd.Use)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "qcwctl version "+protocol.Version+"\n", out)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{
		{"run"}, {"stop"}, {"reset"}, {"fire"}, {"set", "angle"}, {"set", "phase"}, {"monitor"}, {"sim"},
	} {
		t.Run(path[len(path)-1], func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	cfg := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "c", cfg.Shorthand)
	assert.Equal(t, "qcw.yaml", cfg.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("log"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("device"))
}

func TestMissingConfig(t *testing.T) {
	_, err := execute(t, "sim", "-c", filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestBadLogLevel(t *testing.T) {
	_, err := execute(t, "sim", "-c", writeConfig(t), "--log", "loud")
	assert.ErrorContains(t, err, "unknown log level")
}

func TestSim(t *testing.T) {
	out, err := execute(t, "sim", "-c", writeConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, "cycles")
	assert.Contains(t, out, "gate violations 0")
	assert.Contains(t, out, "trips           0")
	assert.Contains(t, out, "dropped reports 0")
}

func TestSimStoresStatuses(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sim.db")
	_, err := execute(t, "sim", "-c", writeConfig(t), "--db", db)
	require.NoError(t, err)

	store, err := statuslog.Open(db)
	require.NoError(t, err)
	defer store.Close()

	sessions, err := store.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sim", sessions[0].Device)

	records, err := store.Records(context.Background(), sessions[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, records)
}

func TestDriveNeedsDevice(t *testing.T) {
	_, err := execute(t, "run", "-c", writeConfig(t))
	assert.ErrorIs(t, err, serial.ErrNoDevice)
}

func TestFireParsesDuration(t *testing.T) {
	_, err := execute(t, "fire", "soon", "-c", writeConfig(t))
	assert.ErrorContains(t, err, "pulse duration")
}

func TestSetParsesValues(t *testing.T) {
	_, err := execute(t, "set", "angle", "half", "-c", writeConfig(t))
	assert.ErrorContains(t, err, "angle")

	_, err = execute(t, "set", "phase", "1.5", "-c", writeConfig(t))
	assert.ErrorContains(t, err, "phase")
}

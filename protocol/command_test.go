package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeOne(t *testing.T, msg []byte) Frame {
	t.Helper()
	var d Decoder
	frames, errs := feedAll(&d, msg)
	require.Empty(t, errs)
	require.Len(t, frames, 1)
	return frames[0]
}

func TestCommandRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{"run", Run{}},
		{"stop", Stop{}},
		{"reset", ResetFault{}},
		{"angle", SetParam{ID: ParamConductionAngle, Value: 29491}},
		{"negative phase", SetParam{ID: ParamPhaseCompensation, Value: -250}},
		{"pulse", FirePulse{Duration: 500}},
		{"long pulse", FirePulse{Duration: 1 << 24}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := EncodeCommand(tt.cmd)
			require.NoError(t, err)

			got, err := ParseCommand(decodeOne(t, msg))
			require.NoError(t, err)
			assert.Equal(t, tt.cmd, got)
		})
	}
}

func TestParseCommandRejects(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  error
	}{
		{"unknown kind", Frame{Kind: 0x42}, ErrUnknownCommand},
		{"status is not a command", Frame{Kind: KindStatus}, ErrUnknownCommand},
		{"run with payload", Frame{Kind: KindRun, Payload: []byte{1}}, ErrMalformed},
		{"stop with payload", Frame{Kind: KindStop, Payload: []byte{0}}, ErrMalformed},
		{"set param missing value", Frame{Kind: KindSetParam, Payload: []byte{1}}, ErrMalformed},
		{"set param unknown id", Frame{Kind: KindSetParam, Payload: []byte{9, 1}}, ErrUnknownParam},
		{"set param trailing", Frame{Kind: KindSetParam, Payload: []byte{1, 1, 1}}, ErrMalformed},
		{"set param truncated vlq", Frame{Kind: KindSetParam, Payload: []byte{1, 0x81}}, ErrMalformed},
		{"pulse empty", Frame{Kind: KindFirePulse}, ErrMalformed},
		{"pulse trailing", Frame{Kind: KindFirePulse, Payload: []byte{5, 5}}, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCommand(tt.frame)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStatusRoundTrip(t *testing.T) {
	want := Status{
		Flags:          StatusLocked | StatusRunning,
		Period:         10000,
		PhaseError:     -37,
		Peak:           812,
		ProtocolErrors: 3,
		LatchCount:     1,
	}

	msg, err := EncodeStatus(want)
	require.NoError(t, err)

	got, err := ParseStatus(decodeOne(t, msg))
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, got.Locked())
	assert.True(t, got.Running())
	assert.False(t, got.Stale())
	assert.False(t, got.Latched())
}

func TestStatusWorstCaseFits(t *testing.T) {
	s := Status{
		Flags:          0xFF,
		Period:         0xFFFFFFF0,
		PhaseError:     -1 << 31,
		Peak:           0xFFFF,
		ProtocolErrors: 0xFFFFFFF0,
		LatchCount:     0xFFFFFFF0,
	}
	msg, err := EncodeStatus(s)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(msg), FrameMax)
}

func TestParseStatusRejectsCommand(t *testing.T) {
	_, err := ParseStatus(Frame{Kind: KindRun})
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = ParseStatus(Frame{Kind: KindStatus, Payload: []byte{0, 1}})
	assert.ErrorIs(t, err, ErrMalformed)
}

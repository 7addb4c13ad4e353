package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestPhaseSegments(t *testing.T) {
	tests := []struct {
		name  string
		edges PhaseEdges
		want  []Segment
	}{
		{"off", PhaseEdges{}, []Segment{{false, 0, 100}}},
		{"leading", PhaseEdges{Rise: 0, Fall: 40}, []Segment{{true, 0, 40}, {false, 0, 60}}},
		{"middle", PhaseEdges{Rise: 20, Fall: 60}, []Segment{{false, 0, 20}, {true, 0, 40}, {false, 0, 40}}},
		{"ends at boundary", PhaseEdges{Rise: 60, Fall: 0}, []Segment{{false, 0, 60}, {true, 0, 40}}},
		{"wraps", PhaseEdges{Rise: 80, Fall: 20}, []Segment{{true, 0, 20}, {false, 0, 60}, {true, 0, 20}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.edges.Segments(100, nil)
			assert.Equal(t, tt.want, got)

			var sum uint32
			for _, s := range got {
				sum += s.Ticks
			}
			assert.Equal(t, uint32(100), sum)
		})
	}
}

func TestSegmentsMatchAsserted(t *testing.T) {
	g := NewGenerator(&Config{MinDeadTime: 10, MaxConductionAngle: Q16(0.9)})
	for _, phase := range []int32{0, 17, 50, 73, 99} {
		set := g.NextCycle(0, 100, DriveParameters{ConductionAngle: Q16(0.5), PhaseCompensation: phase}, false)
		for _, edges := range []PhaseEdges{set.Phase1, set.Phase2} {
			var t0 uint32
			for _, s := range edges.Segments(set.Period, nil) {
				for i := uint32(0); i < s.Ticks; i++ {
					assert.Equal(t, edges.Asserted(t0+i), s.On, "phase %d offset %d", phase, t0+i)
				}
				t0 += s.Ticks
			}
		}
	}
}

// legTicks appends the per-tick state of one leg: 0 off, else 1 + side.
func legTicks(set OutputEdgeSet, leg int, dst []uint8) []uint8 {
	for _, s := range set.LegSegments(leg, nil) {
		g := uint8(0)
		if s.On {
			g = 1 + uint8(s.Side)
		}
		for i := uint32(0); i < s.Ticks; i++ {
			dst = append(dst, g)
		}
	}
	return dst
}

// checkDeadTime fails when a leg switches side with fewer than deadTime
// off ticks in between.
func checkDeadTime(t *testing.T, ticks []uint8, deadTime uint32, msg string) {
	t.Helper()
	var last uint8
	var off uint32
	for i, g := range ticks {
		if g == 0 {
			off++
			continue
		}
		if last != 0 && g != last && off < deadTime {
			require.Failf(t, "shoot-through", "%s: side change at tick %d after %d off ticks", msg, i, off)
		}
		last, off = g, 0
	}
}

func TestLegSegmentsCarryWrappedAssertion(t *testing.T) {
	cfg := fastConfig()
	gen := NewGenerator(&cfg)
	params := DriveParameters{Run: true, ConductionAngle: Q16(0.5), PhaseCompensation: 80}

	a := gen.NextCycle(0, 100, params, false)
	b := gen.NextCycle(100, 100, params, false)
	require.Equal(t, PhaseEdges{Rise: 80, Fall: 30}, a.Phase2)
	assert.Zero(t, a.Phase2Carry, "nothing to carry into the first set")
	assert.Equal(t, uint32(30), b.Phase2Carry)

	assert.Equal(t, []Segment{{false, 0, 80}, {true, HighSide, 20}}, a.LegSegments(1, nil))
	assert.Equal(t, []Segment{{true, HighSide, 30}, {false, 0, 50}, {true, LowSide, 20}}, b.LegSegments(1, nil))

	ticks := legTicks(b, 1, legTicks(a, 1, nil))
	assert.Equal(t, uint8(1), ticks[99])
	assert.Equal(t, uint8(1), ticks[100], "the high side stays on across the boundary")
	checkDeadTime(t, ticks, cfg.MinDeadTime, "phase 80")
}

func TestLegSegmentsKeepDeadTime(t *testing.T) {
	cfg := fastConfig()
	const period = 100

	for _, angle := range []float64{0.2, 0.5, 0.85, 0.9} {
		for phase := int32(0); phase < period; phase++ {
			gen := NewGenerator(&cfg)
			params := DriveParameters{Run: true, ConductionAngle: Q16(angle), PhaseCompensation: phase}

			var legs [2][]uint8
			for n := 0; n < 6; n++ {
				set := gen.NextCycle(uint64(n*period), period, params, false)
				for leg := range legs {
					legs[leg] = legTicks(set, leg, legs[leg])
				}
			}
			for leg, ticks := range legs {
				require.Len(t, ticks, 6*period)
				checkDeadTime(t, ticks, cfg.MinDeadTime, fmt.Sprintf("angle %.2f phase %d leg %d", angle, phase, leg))
			}
		}
	}
}

func TestLegSegmentsDeadTimeAcrossChanges(t *testing.T) {
	cfg := fastConfig()
	gen := NewGenerator(&cfg)
	rng := rand.New(rand.NewSource(7))

	var legs [2][]uint8
	for n := 0; n < 2000; n++ {
		period := uint32(50 + rng.Intn(151))
		params := DriveParameters{
			Run:               true,
			ConductionAngle:   uint32(rng.Intn(Q16One + 1)),
			PhaseCompensation: int32(rng.Intn(2*int(period))) - int32(period),
		}
		set := gen.NextCycle(0, period, params, rng.Intn(20) == 0)
		if set.Inhibited {
			assert.Zero(t, set.Phase2Carry)
		}
		for leg := range legs {
			legs[leg] = legTicks(set, leg, legs[leg])
		}
	}
	for leg, ticks := range legs {
		checkDeadTime(t, ticks, cfg.MinDeadTime, fmt.Sprintf("leg %d", leg))
	}
}

func TestLegSegmentsAfterInhibit(t *testing.T) {
	cfg := fastConfig()
	gen := NewGenerator(&cfg)
	params := DriveParameters{Run: true, ConductionAngle: Q16(0.5), PhaseCompensation: 80}

	gen.NextCycle(0, 100, params, false)
	off := gen.NextCycle(100, 100, params, true)
	on := gen.NextCycle(200, 100, params, false)

	assert.Equal(t, []Segment{{false, 0, 100}}, off.LegSegments(1, nil))
	assert.Zero(t, on.Phase2Carry)
	assert.Equal(t, []Segment{{false, 0, 80}, {true, on.HalfCycle, 20}}, on.LegSegments(1, nil))
}

func TestLegSegmentsDelayRiseAfterLateAssertion(t *testing.T) {
	cfg := fastConfig()
	gen := NewGenerator(&cfg)

	// phase 2 runs right up to the end of the first half-cycle
	a := gen.NextCycle(0, 100, DriveParameters{Run: true, ConductionAngle: Q16(0.5), PhaseCompensation: 50}, false)
	require.Equal(t, PhaseEdges{Rise: 50, Fall: 0}, a.Phase2)

	b := gen.NextCycle(100, 100, DriveParameters{Run: true, ConductionAngle: Q16(0.5), PhaseCompensation: 0}, false)
	assert.Equal(t, cfg.MinDeadTime, b.Phase2.Rise)
	assert.Equal(t, uint32(50), b.Phase2.Fall)

	checkDeadTime(t, legTicks(b, 1, legTicks(a, 1, nil)), cfg.MinDeadTime, "phase step")
}

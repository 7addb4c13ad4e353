package sim

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"

	"qcwcore/core"
)

// Report summarises a run.
type Report struct {
	Cycles       int
	ActiveCycles int
	LockedAt     int // first locked cycle, -1 if never
	LockLosses   int
	StaleCycles  int

	// Tracked minus true half-period over locked cycles, ticks
	TrackingMean   float64
	TrackingStdDev float64
	TrackingP95    float64 // of the absolute error

	PeakSample     uint16
	Trips          uint16
	ProtocolErrors uint32
	TrackingFaults uint32
	Statuses       int
	Violations     int
	SafeStops      int
	DroppedReports uint32

	Final core.Status
}

func NewReport(r *Runner) *Report {
	rep := &Report{LockedAt: -1}
	records := r.out.Records()
	rep.Cycles = len(records)

	var errs, absErrs []float64
	wasLocked := false
	for i, rec := range records {
		if !rec.Set.Inhibited {
			rep.ActiveCycles++
		}
		if rec.Stale {
			rep.StaleCycles++
		}
		rep.PeakSample = max(rep.PeakSample, rec.Sample)
		if rec.Locked {
			if rep.LockedAt < 0 {
				rep.LockedAt = i
			}
			e := float64(rec.Set.Period) - rec.TrueHalf
			errs = append(errs, e)
			absErrs = append(absErrs, math.Abs(e))
		} else if wasLocked {
			rep.LockLosses++
		}
		wasLocked = rec.Locked
	}

	if len(errs) > 0 {
		rep.TrackingMean, rep.TrackingStdDev = stat.MeanStdDev(errs, nil)
		if len(errs) == 1 {
			rep.TrackingStdDev = 0
		}
		slices.Sort(absErrs)
		rep.TrackingP95 = stat.Quantile(0.95, stat.Empirical, absErrs, nil)
	}

	st := r.ctrl.Status()
	rep.Final = st
	rep.Trips = st.Protection.LatchCount
	rep.ProtocolErrors = st.ProtocolErrors
	rep.TrackingFaults = st.TrackingFaults
	rep.Statuses = len(r.statuses)
	rep.Violations = r.out.Violations()
	rep.SafeStops = r.out.SafeCalls()
	rep.DroppedReports = st.DroppedReports
	return rep
}

// WriteTo prints the report as aligned text.
func (rep *Report) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "cycles          %d (%d active)\n", rep.Cycles, rep.ActiveCycles)
	fmt.Fprintf(&buf, "locked at cycle %d, lost %d times\n", rep.LockedAt, rep.LockLosses)
	fmt.Fprintf(&buf, "stale cycles    %d\n", rep.StaleCycles)
	fmt.Fprintf(&buf, "tracking error  mean %.2f sd %.2f p95 %.2f ticks\n", rep.TrackingMean, rep.TrackingStdDev, rep.TrackingP95)
	fmt.Fprintf(&buf, "peak sample     %d\n", rep.PeakSample)
	fmt.Fprintf(&buf, "trips           %d\n", rep.Trips)
	fmt.Fprintf(&buf, "protocol errors %d\n", rep.ProtocolErrors)
	fmt.Fprintf(&buf, "tracking faults %d\n", rep.TrackingFaults)
	fmt.Fprintf(&buf, "status frames   %d\n", rep.Statuses)
	fmt.Fprintf(&buf, "gate violations %d\n", rep.Violations)
	fmt.Fprintf(&buf, "forced safe     %d\n", rep.SafeStops)
	fmt.Fprintf(&buf, "dropped reports %d\n", rep.DroppedReports)
	return buf.WriteTo(w)
}

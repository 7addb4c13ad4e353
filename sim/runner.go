package sim

import (
	"fmt"
	"sort"

	"qcwcore/core"
	"qcwcore/protocol"
)

// Runner steps the controller, the tank and the script in time order.
type Runner struct {
	cfg Config

	clock   *core.ManualClock
	disp    core.Dispatcher
	ctrl    *core.Controller
	out     *Recorder
	tank    *Tank
	current *CurrentModel

	script  []Step
	nextCmd int

	decoder  protocol.Decoder
	statuses []protocol.Status
	txBuf    [64]byte
}

func New(ctrlCfg core.Config, cfg Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:     cfg,
		clock:   core.NewManualClock(0),
		out:     NewRecorder(ctrlCfg.MinDeadTime),
		tank:    NewTank(&cfg, uint64(cfg.HalfPeriod)/2),
		current: NewCurrentModel(&cfg),
		script:  append([]Step(nil), cfg.Script...),
	}
	sort.SliceStable(r.script, func(i, j int) bool { return r.script[i].At < r.script[j].At })

	ctrl, err := core.NewController(ctrlCfg, r.clock, r.out)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	r.ctrl = ctrl
	ctrl.Start(&r.disp, 0)
	return r, nil
}

func (r *Runner) Controller() *core.Controller { return r.ctrl }

func (r *Runner) Recorder() *Recorder { return r.out }

// Statuses returns the STATUS reports the controller emitted.
func (r *Runner) Statuses() []protocol.Status { return r.statuses }

// Run advances until the configured duration and reports.
func (r *Runner) Run() (*Report, error) {
	if err := r.RunUntil(r.cfg.Duration); err != nil {
		return nil, err
	}
	return NewReport(r), nil
}

// RunUntil processes every event at or before end.
func (r *Runner) RunUntil(end uint64) error {
	for {
		wake, ok := r.disp.NextWake()
		if !ok {
			return fmt.Errorf("controller timer not scheduled")
		}
		t := min(wake, r.tank.Peek())
		if r.nextCmd < len(r.script) {
			t = min(t, r.script[r.nextCmd].At)
		}
		if t > end {
			r.clock.Set(end)
			return nil
		}
		r.clock.Set(max(t, r.clock.Now()))

		switch {
		case r.nextCmd < len(r.script) && r.script[r.nextCmd].At == t:
			if err := r.sendStep(r.script[r.nextCmd]); err != nil {
				return err
			}
			r.nextCmd++
		case r.tank.Peek() == t:
			if edge, ok := r.tank.Next(); ok {
				r.ctrl.OnFeedbackEdge(edge)
			}
		default:
			r.cycle(t)
		}
	}
}

func (r *Runner) sendStep(s Step) error {
	msg, err := s.Bytes()
	if err != nil {
		return fmt.Errorf("script step at %d: %w", s.At, err)
	}
	r.ctrl.OnBytes(msg)
	return nil
}

// Send injects raw bytes as if received on the link.
func (r *Runner) Send(data []byte) {
	r.ctrl.OnBytes(data)
}

func (r *Runner) cycle(now uint64) {
	r.disp.Dispatch(now)
	set, ok := r.out.take()
	if !ok {
		return
	}

	sample := r.current.Step(set)
	r.ctrl.OnCurrentSample(sample)

	st := r.ctrl.Status()
	r.out.add(Record{
		Set:        set,
		TrueHalf:   r.tank.HalfPeriod(),
		Sample:     sample,
		Locked:     st.Period.Locked,
		Stale:      st.Period.Stale,
		Latched:    st.Protection.Latched,
		PhaseError: st.Period.PhaseError,
	})
	r.drainStatus()
}

func (r *Runner) drainStatus() {
	for {
		n := r.ctrl.ReadOutput(r.txBuf[:])
		if n == 0 {
			return
		}
		for _, b := range r.txBuf[:n] {
			f, ok, err := r.decoder.Feed(b)
			if err != nil || !ok {
				continue
			}
			if s, err := protocol.ParseStatus(f); err == nil {
				r.statuses = append(r.statuses, s)
			}
		}
	}
}

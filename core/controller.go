package core

import (
	"errors"
	"sync/atomic"

	"qcwcore/protocol"
)

var ErrMissingDependency = errors.New("controller needs a clock and an output driver")

// Status is a point-in-time view of the whole control core.
type Status struct {
	Period         TrackedPeriod
	Params         DriveParameters
	Protection     ProtectionState
	PulseActive    bool
	Inhibited      bool
	ProtocolErrors uint32
	TrackingFaults uint32
	Cycles         uint32
	// STATUS frames lost to a full outbound queue
	DroppedReports uint32
}

// Report converts the status into the STATUS frame contents.
func (s Status) Report() protocol.Status {
	r := protocol.Status{
		Period:         s.Period.HalfPeriod,
		PhaseError:     s.Period.PhaseError,
		Peak:           s.Protection.Peak,
		ProtocolErrors: s.ProtocolErrors,
		LatchCount:     uint32(s.Protection.LatchCount),
	}
	if s.Period.Locked {
		r.Flags |= protocol.StatusLocked
	}
	if s.Period.Stale {
		r.Flags |= protocol.StatusStale
	}
	if s.Params.Run {
		r.Flags |= protocol.StatusRunning
	}
	if s.Protection.Latched {
		r.Flags |= protocol.StatusLatched
	}
	return r
}

type Option func(*Controller)

// WithTrace shares an existing trace ring.
func WithTrace(t *Trace) Option {
	return func(c *Controller) { c.trace = t }
}

// WithStatusQueue sizes the outbound frame queue in bytes.
func WithStatusQueue(size int) Option {
	return func(c *Controller) { c.txSize = size }
}

// Controller wires the PLL, generator, protection monitor and command
// interpreter to one half-cycle timer. The three On* input handlers may
// run in their own interrupt contexts; OnCycle, ReadOutput and the timer
// belong to the cycle context.
type Controller struct {
	cfg   Config
	clock Clock
	out   OutputDriver
	trace *Trace

	pll    *PLL
	gen    *Generator
	prot   *Protection
	interp *Interpreter

	timer       Timer
	tx          *protocol.FifoBuffer
	txSize      int
	sinceStatus uint32
	txDropped   uint32

	cycles atomic.Uint32
}

// NewController validates cfg, forces the output safe and returns a
// controller ready to be scheduled.
func NewController(cfg Config, clock Clock, out OutputDriver, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil || out == nil {
		return nil, ErrMissingDependency
	}

	c := &Controller{
		cfg:    cfg,
		clock:  clock,
		out:    out,
		txSize: 4 * protocol.FrameMax,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.trace == nil {
		c.trace = NewTrace()
	}

	c.pll = NewPLL(&c.cfg, c.trace)
	c.gen = NewGenerator(&c.cfg)
	c.prot = NewProtection(&c.cfg, clock, c.trace)
	c.interp = NewInterpreter(&c.cfg, clock, c.prot, c.trace)
	c.tx = protocol.NewFifoBuffer(c.txSize)
	c.timer.Handler = c.onTimer

	out.Safe()
	return c, nil
}

// OnFeedbackEdge is the capture interrupt entry point.
func (c *Controller) OnFeedbackEdge(edge FeedbackEdge) {
	c.pll.OnFeedbackEdge(edge)
}

// OnCurrentSample is the ADC entry point. A sample that latches a fault
// forces the output safe before returning, without waiting for the next
// half-cycle; the result reports whether that happened.
func (c *Controller) OnCurrentSample(sample uint16) bool {
	tripped := c.prot.OnSample(sample)
	if tripped {
		c.out.Safe()
	}
	return tripped
}

// OnByte is the serial receive entry point.
func (c *Controller) OnByte(b byte) {
	c.interp.OnByte(b)
}

// OnBytes feeds a received chunk.
func (c *Controller) OnBytes(data []byte) {
	for _, b := range data {
		c.interp.OnByte(b)
	}
}

// OnCycle runs one half-cycle and returns when the next one starts.
func (c *Controller) OnCycle(now uint64) uint64 {
	c.interp.Tick(now)
	c.pll.CheckTimeout(now)

	period := c.pll.CurrentPeriod()
	prot := c.prot.State()
	if prot.Latched && c.interp.Params().Run {
		c.interp.Halt()
	}
	params := c.interp.Params()

	set := c.gen.NextCycle(now, period.HalfPeriod, params, prot.Latched || !params.Run)
	c.out.Apply(set)
	c.cycles.Add(1)

	if c.cfg.StatusInterval > 0 {
		c.sinceStatus++
		if c.sinceStatus >= c.cfg.StatusInterval {
			c.sinceStatus = 0
			c.queueStatus()
		}
	}
	return now + uint64(period.HalfPeriod)
}

func (c *Controller) queueStatus() {
	var out protocol.ScratchOutput
	if err := protocol.AppendStatus(&out, c.Status().Report()); err != nil {
		return
	}
	if !c.tx.WriteFrame(out.Result()) {
		c.txDropped++
	}
}

func (c *Controller) onTimer(t *Timer) uint8 {
	start := max(t.WakeTime, c.clock.Now())
	t.WakeTime = c.OnCycle(start)
	return SF_RESCHEDULE
}

// Start schedules the first cycle at the given time.
func (c *Controller) Start(d *Dispatcher, at uint64) {
	c.timer.WakeTime = at
	d.Schedule(&c.timer)
}

// Stop removes the cycle timer and forces the output safe.
func (c *Controller) Stop(d *Dispatcher) {
	d.Cancel(&c.timer)
	c.out.Safe()
}

// ReadOutput moves queued outbound frames into p.
func (c *Controller) ReadOutput(p []byte) int {
	return c.tx.Read(p)
}

// PendingOutput is the number of queued outbound bytes.
func (c *Controller) PendingOutput() int {
	return c.tx.Available()
}

// Status collects the current snapshots.
func (c *Controller) Status() Status {
	period := c.pll.CurrentPeriod()
	params := c.interp.Params()
	prot := c.prot.State()
	return Status{
		Period:         period,
		Params:         params,
		Protection:     prot,
		PulseActive:    c.interp.PulseActive(),
		Inhibited:      prot.Latched || !params.Run,
		ProtocolErrors: c.interp.ProtocolErrors(),
		TrackingFaults: c.pll.TrackingFaults(),
		Cycles:         c.cycles.Load(),
		DroppedReports: c.txDropped,
	}
}

func (c *Controller) PLL() *PLL                 { return c.pll }
func (c *Controller) Protection() *Protection   { return c.prot }
func (c *Controller) Interpreter() *Interpreter { return c.interp }
func (c *Controller) Trace() *Trace             { return c.trace }
func (c *Controller) Config() Config            { return c.cfg }

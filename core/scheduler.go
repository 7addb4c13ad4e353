package core

// Timer is one scheduled event. Handler returns SF_DONE or SF_RESCHEDULE;
// a rescheduling handler sets WakeTime before returning.
type Timer struct {
	WakeTime uint64
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Dispatcher keeps timers in a list sorted by wake time, the way Klipper's
// sched_add_timer does. The control loop has one, driven either by the
// hardware alarm or by a polling loop.
type Dispatcher struct {
	head *Timer
}

// Schedule inserts t. t must not already be scheduled.
func (d *Dispatcher) Schedule(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	d.insert(t)
}

func (d *Dispatcher) insert(t *Timer) {
	if d.head == nil || t.WakeTime < d.head.WakeTime {
		t.Next = d.head
		d.head = t
		return
	}

	current := d.head
	for current.Next != nil && current.Next.WakeTime <= t.WakeTime {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// Cancel removes t if it is scheduled.
func (d *Dispatcher) Cancel(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for p := &d.head; *p != nil; p = &(*p).Next {
		if *p == t {
			*p = t.Next
			t.Next = nil
			return
		}
	}
}

// Dispatch runs every timer due at or before now and returns how many ran.
func (d *Dispatcher) Dispatch(now uint64) int {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	ran := 0
	for d.head != nil && d.head.WakeTime <= now {
		timer := d.head
		d.head = timer.Next
		timer.Next = nil

		ran++
		if timer.Handler(timer) == SF_RESCHEDULE {
			d.insert(timer)
		}
	}
	return ran
}

// NextWake reports the earliest scheduled wake time.
func (d *Dispatcher) NextWake() (uint64, bool) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if d.head == nil {
		return 0, false
	}
	return d.head.WakeTime, true
}

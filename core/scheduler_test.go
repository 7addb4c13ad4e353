package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherOrder(t *testing.T) {
	var d Dispatcher
	var fired []int

	mk := func(id int, wake uint64) *Timer {
		return &Timer{WakeTime: wake, Handler: func(*Timer) uint8 {
			fired = append(fired, id)
			return SF_DONE
		}}
	}

	d.Schedule(mk(3, 300))
	d.Schedule(mk(1, 100))
	d.Schedule(mk(2, 200))
	d.Schedule(mk(4, 200))

	next, ok := d.NextWake()
	assert.True(t, ok)
	assert.Equal(t, uint64(100), next)

	assert.Equal(t, 3, d.Dispatch(250))
	assert.Equal(t, []int{1, 2, 4}, fired)

	assert.Equal(t, 1, d.Dispatch(1000))
	_, ok = d.NextWake()
	assert.False(t, ok)
}

func TestDispatcherReschedule(t *testing.T) {
	var d Dispatcher
	count := 0
	timer := &Timer{WakeTime: 10, Handler: func(tm *Timer) uint8 {
		count++
		tm.WakeTime += 10
		if count == 3 {
			return SF_DONE
		}
		return SF_RESCHEDULE
	}}
	d.Schedule(timer)

	assert.Equal(t, 2, d.Dispatch(25))
	next, _ := d.NextWake()
	assert.Equal(t, uint64(30), next)

	assert.Equal(t, 1, d.Dispatch(100))
	assert.Equal(t, 3, count)
}

func TestDispatcherCancel(t *testing.T) {
	var d Dispatcher
	a := &Timer{WakeTime: 1, Handler: func(*Timer) uint8 { return SF_DONE }}
	b := &Timer{WakeTime: 2, Handler: func(*Timer) uint8 { return SF_DONE }}
	d.Schedule(a)
	d.Schedule(b)

	d.Cancel(a)
	next, ok := d.NextWake()
	assert.True(t, ok)
	assert.Equal(t, uint64(2), next)

	d.Cancel(a) // not scheduled
	assert.Equal(t, 1, d.Dispatch(10))
}

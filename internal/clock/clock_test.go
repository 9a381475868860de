package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeAdvanceFiresInOrder(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var fired []string
	f.ScheduleRepeating(time.Second, func() { fired = append(fired, "a") })
	f.ScheduleRepeating(1500*time.Millisecond, func() { fired = append(fired, "b") })

	f.Advance(3 * time.Second)

	assert.Equal(t, []string{"a", "b", "a", "a", "b"}, fired)
	assert.Equal(t, time.Unix(3, 0), f.Now())
}

func TestFakeCancelStopsCallbacks(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	calls := 0
	h := f.ScheduleRepeating(time.Second, func() { calls++ })

	f.Advance(2 * time.Second)
	f.Cancel(h)
	f.Cancel(h)
	f.Cancel(0)
	f.Advance(5 * time.Second)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, f.Active())
	assert.Equal(t, 1, f.Cancelled())
}

func TestFakeCallbackMayCancelItself(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var h CancelHandle
	calls := 0
	h = f.ScheduleRepeating(time.Second, func() {
		calls++
		f.Cancel(h)
	})

	f.Advance(10 * time.Second)
	assert.Equal(t, 1, calls)
}

func TestSystemScheduleAndCancel(t *testing.T) {
	s := NewSystem()
	var calls atomic.Int32
	h := s.ScheduleRepeating(5*time.Millisecond, func() { calls.Add(1) })
	require.Equal(t, 1, s.Active())

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)

	s.Cancel(h)
	assert.Equal(t, 0, s.Active())
	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	// At most one tick that was already past its cancel check may still land.
	assert.LessOrEqual(t, calls.Load(), after+1)
}

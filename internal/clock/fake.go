package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually driven Clock and Scheduler.
// Advance moves time forward and fires every schedule whose interval elapsed.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	next   CancelHandle
	sched  map[CancelHandle]*fakeSchedule
	cancel int
}

type fakeSchedule struct {
	interval time.Duration
	due      time.Time
	fn       func()
}

// NewFake returns a fake clock positioned at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start, sched: make(map[CancelHandle]*fakeSchedule)}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to t without firing schedules. t may be in the past.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// ScheduleRepeating registers fn to run on every Advance crossing interval.
func (f *Fake) ScheduleRepeating(interval time.Duration, fn func()) CancelHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.sched[f.next] = &fakeSchedule{interval: interval, due: f.now.Add(interval), fn: fn}
	return f.next
}

// Cancel removes the schedule for h.
func (f *Fake) Cancel(h CancelHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sched[h]; ok {
		delete(f.sched, h)
		f.cancel++
	}
}

// Active returns the number of live schedules.
func (f *Fake) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sched)
}

// Cancelled returns how many schedules have been cancelled so far.
func (f *Fake) Cancelled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancel
}

// Advance moves the clock forward by d, firing due callbacks in time order.
// Callbacks run without the lock held and may schedule or cancel.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		var (
			s   *fakeSchedule
			ids = make([]CancelHandle, 0, len(f.sched))
		)
		for id := range f.sched {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			cand := f.sched[id]
			if cand.due.After(target) {
				continue
			}
			if s == nil || cand.due.Before(s.due) {
				s = cand
			}
		}
		if s == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = s.due
		s.due = s.due.Add(s.interval)
		fn := s.fn
		f.mu.Unlock()

		fn()
	}
}

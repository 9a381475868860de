// Package clock provides the wall-clock source and the repeating-callback
// scheduler used by the practice timer, with a manual fake for tests.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// CancelHandle identifies a repeating schedule. The zero value is never issued.
type CancelHandle uint64

// Scheduler runs a callback repeatedly until the returned handle is cancelled.
type Scheduler interface {
	ScheduleRepeating(interval time.Duration, fn func()) CancelHandle
	// Cancel stops the schedule. Unknown, zero or already cancelled handles are ignored.
	Cancel(h CancelHandle)
}

// System is the real clock and a ticker-backed scheduler.
type System struct {
	mu      sync.Mutex
	next    CancelHandle
	running map[CancelHandle]chan struct{}
}

// NewSystem creates a scheduler backed by time.Ticker goroutines.
func NewSystem() *System {
	return &System{running: make(map[CancelHandle]chan struct{})}
}

// Now returns time.Now().
func (s *System) Now() time.Time {
	return time.Now()
}

// ScheduleRepeating starts a goroutine that calls fn every interval.
func (s *System) ScheduleRepeating(interval time.Duration, fn func()) CancelHandle {
	s.mu.Lock()
	s.next++
	h := s.next
	done := make(chan struct{})
	s.running[h] = done
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// A tick racing with Cancel must not fire after Cancel returned.
				select {
				case <-done:
					return
				default:
				}
				fn()
			case <-done:
				return
			}
		}
	}()
	return h
}

// Cancel stops the ticker goroutine owning h.
func (s *System) Cancel(h CancelHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if done, ok := s.running[h]; ok {
		close(done)
		delete(s.running, h)
	}
}

// Active returns the number of schedules that have not been cancelled.
func (s *System) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

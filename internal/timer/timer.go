// Package timer implements the pausable, resettable elapsed-time stopwatch
// shown next to a practice challenge.
//
// The displayed value is always derived from (running, accumulated, startedAt)
// and the wall clock; periodic ticks only trigger a redraw and never bank time,
// so interval jitter cannot cause drift.
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/ashureev/shsh-practice/internal/clock"
	"github.com/ashureev/shsh-practice/internal/domain"
)

// DefaultTickInterval is how often a running timer asks for a redraw.
const DefaultTickInterval = time.Second

// State is the authoritative timer state for one conversation key.
type State struct {
	Owner         domain.ConversationKey `json:"owner"`
	Running       bool                   `json:"running"`
	AccumulatedMs int64                  `json:"accumulated_ms"`
	StartedAtMs   *int64                 `json:"started_at_ms,omitempty"`
	UpdatedAtMs   int64                  `json:"updated_at_ms"`
}

// Reading is the timer as seen at one instant. All fields are taken under the
// same lock.
type Reading struct {
	Owner   domain.ConversationKey
	Running bool
	Elapsed time.Duration
}

// TickFunc receives a fresh reading on every redraw.
type TickFunc func(r Reading)

// Config holds timer configuration.
type Config struct {
	TickInterval time.Duration
	OnTick       TickFunc
}

// DefaultConfig returns the default timer configuration.
func DefaultConfig() Config {
	return Config{TickInterval: DefaultTickInterval}
}

// Timer is an elapsed-time stopwatch scoped to one (user, challenge) pair.
// It is safe for concurrent use; OnTick is always invoked without the lock held.
type Timer struct {
	mu       sync.Mutex
	clock    clock.Clock
	sched    clock.Scheduler
	interval time.Duration
	onTick   TickFunc

	state  State
	handle clock.CancelHandle
	epoch  uint64
}

// New creates an idle timer with no owner.
func New(c clock.Clock, s clock.Scheduler, cfg Config) *Timer {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	t := &Timer{
		clock:    c,
		sched:    s,
		interval: cfg.TickInterval,
		onTick:   cfg.OnTick,
	}
	t.state.UpdatedAtMs = t.nowMs()
	return t
}

// Initialize discards any previous state and starts a fresh idle timer at zero
// for the given user and challenge. Prior ticking is stopped first.
func (t *Timer) Initialize(userID, challengeID string) {
	t.mu.Lock()
	t.disarmLocked()
	t.state = State{
		Owner:       domain.ConversationKey{UserID: userID, ChallengeID: challengeID},
		UpdatedAtMs: t.nowMs(),
	}
	r := t.readingLocked(t.state.UpdatedAtMs)
	t.mu.Unlock()

	t.emit(r)
}

// Start begins advancing the clock. Calling Start while running is a no-op.
func (t *Timer) Start() {
	t.mu.Lock()
	if t.state.Running {
		t.mu.Unlock()
		return
	}
	now := t.nowMs()
	t.state.Running = true
	t.state.StartedAtMs = &now
	t.state.UpdatedAtMs = now
	t.armLocked()
	r := t.readingLocked(now)
	t.mu.Unlock()

	t.emit(r)
}

// Pause folds the running interval into the accumulated total and stops ticking.
// Calling Pause while idle is a no-op.
func (t *Timer) Pause() {
	t.mu.Lock()
	if !t.state.Running {
		t.mu.Unlock()
		return
	}
	now := t.nowMs()
	t.state.AccumulatedMs += runningMs(*t.state.StartedAtMs, now)
	t.state.Running = false
	t.state.StartedAtMs = nil
	t.state.UpdatedAtMs = now
	t.disarmLocked()
	r := t.readingLocked(now)
	t.mu.Unlock()

	t.emit(r)
}

// Reset zeroes the timer and leaves it idle, whatever its prior state.
func (t *Timer) Reset() {
	t.mu.Lock()
	t.disarmLocked()
	t.state.Running = false
	t.state.AccumulatedMs = 0
	t.state.StartedAtMs = nil
	t.state.UpdatedAtMs = t.nowMs()
	r := t.readingLocked(t.state.UpdatedAtMs)
	t.mu.Unlock()

	t.emit(r)
}

// Close stops periodic ticking without touching state. Used when the view goes away.
func (t *Timer) Close() {
	t.mu.Lock()
	t.disarmLocked()
	t.mu.Unlock()
}

// Elapsed returns the effective elapsed time at the current wall-clock instant.
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsedLocked(t.nowMs())
}

// Read returns owner, running flag and elapsed time from a single instant.
func (t *Timer) Read() Reading {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readingLocked(t.nowMs())
}

// Display returns Elapsed formatted as HH:MM:SS.
func (t *Timer) Display() string {
	return Format(t.Elapsed())
}

// State returns a copy of the current state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state
	if s.StartedAtMs != nil {
		v := *s.StartedAtMs
		s.StartedAtMs = &v
	}
	return s
}

// Format renders d as zero-padded HH:MM:SS. Hours are not capped at 24 and
// negative durations render as zero.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

func (t *Timer) armLocked() {
	t.disarmLocked()
	epoch := t.epoch
	t.handle = t.sched.ScheduleRepeating(t.interval, func() { t.tick(epoch) })
}

func (t *Timer) disarmLocked() {
	t.epoch++
	if t.handle != 0 {
		t.sched.Cancel(t.handle)
		t.handle = 0
	}
}

// tick redraws from authoritative state. Ticks from a replaced schedule are dropped.
func (t *Timer) tick(epoch uint64) {
	t.mu.Lock()
	if epoch != t.epoch || !t.state.Running {
		t.mu.Unlock()
		return
	}
	r := t.readingLocked(t.nowMs())
	t.mu.Unlock()

	t.emit(r)
}

func (t *Timer) emit(r Reading) {
	if t.onTick != nil {
		t.onTick(r)
	}
}

func (t *Timer) readingLocked(nowMs int64) Reading {
	return Reading{
		Owner:   t.state.Owner,
		Running: t.state.Running,
		Elapsed: t.elapsedLocked(nowMs),
	}
}

func (t *Timer) elapsedLocked(nowMs int64) time.Duration {
	total := t.state.AccumulatedMs
	if t.state.Running && t.state.StartedAtMs != nil {
		total += runningMs(*t.state.StartedAtMs, nowMs)
	}
	if total < 0 {
		total = 0
	}
	return time.Duration(total) * time.Millisecond
}

func (t *Timer) nowMs() int64 {
	return t.clock.Now().UnixMilli()
}

// runningMs is the length of the current running interval, clamped at zero
// when the wall clock moved backwards.
func runningMs(startedAtMs, nowMs int64) int64 {
	if d := nowMs - startedAtMs; d > 0 {
		return d
	}
	return 0
}

// Package timer runs named countdown timers anchored to wall-clock
// deadlines. A timer's remaining time is always recomputed from its
// recorded start, so timers survive a reload as long as the start time is
// persisted.
package timer

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/abhisek/flashdrill/internal/clock"
)

// Well-known timer names.
const (
	Item     = "item"
	FollowUp = "followup"
	Cooldown = "cooldown"
)

// Guard is a single-fire latch shared by a timer's expiry and any manual
// completion of the same phase. Whoever calls TryFire first wins.
type Guard struct {
	fired atomic.Bool
}

// TryFire claims the guard. It returns false if it was already claimed.
func (g *Guard) TryFire() bool {
	if g == nil {
		return false
	}
	return g.fired.CompareAndSwap(false, true)
}

// Fired reports whether the guard has been claimed.
func (g *Guard) Fired() bool {
	return g != nil && g.fired.Load()
}

// State is the persistable projection of a timer.
type State struct {
	Name             string `json:"name"`
	DurationSeconds  int    `json:"durationSeconds"`
	StartedAtEpochMs int64  `json:"startedAtEpochMs"`
	Active           bool   `json:"active"`
}

type entry struct {
	state    State
	onExpire func()
	guard    *Guard
}

// Scheduler manages named timers. Tick is expected to be called about
// once per second by the host loop; it never blocks on callbacks.
type Scheduler struct {
	mu     sync.Mutex
	clock  clock.Clock
	timers map[string]*entry
}

// NewScheduler creates an empty scheduler reading time from c.
func NewScheduler(c clock.Clock) *Scheduler {
	return &Scheduler{
		clock:  c,
		timers: make(map[string]*entry),
	}
}

// Arm starts or replaces the named timer with a start time of now.
func (s *Scheduler) Arm(name string, durationSeconds int, onExpire func()) *Guard {
	return s.arm(name, clock.EpochMs(s.clock.Now()), durationSeconds, onExpire)
}

// Resume re-arms a timer from a previously persisted start time. If the
// deadline has already passed, onExpire runs before Resume returns.
func (s *Scheduler) Resume(name string, startedAtEpochMs int64, durationSeconds int, onExpire func()) *Guard {
	g := s.arm(name, startedAtEpochMs, durationSeconds, onExpire)

	s.mu.Lock()
	e := s.timers[name]
	expired := e.guard == g && remaining(e.state, clock.EpochMs(s.clock.Now())) <= 0
	if expired {
		e.state.Active = false
	}
	s.mu.Unlock()

	if expired && g.TryFire() && onExpire != nil {
		onExpire()
	}
	return g
}

func (s *Scheduler) arm(name string, startedAt int64, durationSeconds int, onExpire func()) *Guard {
	g := &Guard{}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.timers[name]; ok {
		// The replaced timer can no longer fire.
		old.guard.TryFire()
	}
	s.timers[name] = &entry{
		state: State{
			Name:             name,
			DurationSeconds:  durationSeconds,
			StartedAtEpochMs: startedAt,
			Active:           true,
		},
		onExpire: onExpire,
		guard:    g,
	}
	return g
}

// Tick recomputes every active timer and fires the expiry callback of
// each one that reached zero. Callbacks run after the lock is released,
// in timer-name order.
func (s *Scheduler) Tick() {
	now := clock.EpochMs(s.clock.Now())

	var due []*entry
	s.mu.Lock()
	for _, e := range s.timers {
		if !e.state.Active {
			continue
		}
		if remaining(e.state, now) <= 0 {
			e.state.Active = false
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].state.Name < due[j].state.Name })
	for _, e := range due {
		if e.guard.TryFire() && e.onExpire != nil {
			e.onExpire()
		}
	}
}

// Cancel deactivates the named timer without firing it.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.timers[name]; ok {
		e.state.Active = false
		e.guard.TryFire()
	}
}

// CancelAll deactivates every timer without firing.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.timers {
		e.state.Active = false
		e.guard.TryFire()
	}
}

// Remaining returns the whole seconds left on the named timer, floored at
// zero. ok is false if the timer is unknown or inactive.
func (s *Scheduler) Remaining(name string) (secs int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists := s.timers[name]
	if !exists || !e.state.Active {
		return 0, false
	}
	r := remaining(e.state, clock.EpochMs(s.clock.Now()))
	if r < 0 {
		r = 0
	}
	return r, true
}

// Get returns the state of the named timer.
func (s *Scheduler) Get(name string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.timers[name]
	if !ok {
		return State{}, false
	}
	return e.state, true
}

// States returns the active timers keyed by name.
func (s *Scheduler) States() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]State, len(s.timers))
	for name, e := range s.timers {
		if e.state.Active {
			out[name] = e.state
		}
	}
	return out
}

// remaining is duration - floor(elapsed seconds).
func remaining(st State, nowMs int64) int {
	elapsed := nowMs - st.StartedAtEpochMs
	if elapsed < 0 {
		elapsed = 0
	}
	return st.DurationSeconds - int(elapsed/1000)
}

// Package integrity watches for attempts to leave a live session: tab
// switches, back/forward navigation and fullscreen exit. Warnings
// escalate until the session is terminated.
package integrity

import (
	"fmt"
	"io"
	"log"
	"sync"
)

// DefaultMaxSwitches is the tab-switch count that terminates a session.
const DefaultMaxSwitches = 2

// Status is the monitor's externally visible state.
type Status int

const (
	StatusNormal Status = iota
	StatusHidden
	StatusWarned
	StatusNavigationPrompt
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusHidden:
		return "hidden"
	case StatusWarned:
		return "warned"
	case StatusNavigationPrompt:
		return "navigation-prompt"
	case StatusTerminated:
		return "terminated"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Reason explains a termination.
type Reason string

const (
	ReasonTabSwitches     Reason = "tab-switch-limit"
	ReasonWarningDeclined Reason = "warning-declined"
	ReasonNavigation      Reason = "navigation"
	ReasonManual          Reason = "manual"
)

// State is the persisted part of the monitor. An unanswered prompt is
// part of it so a restart cannot dismiss the prompt.
type State struct {
	TabSwitchCount      int  `json:"tabSwitchCount"`
	MaxSwitches         int  `json:"maxSwitches"`
	Terminated          bool `json:"terminated"`
	FullscreenAttempted bool `json:"fullscreenAttempted"`
	Warned              bool `json:"warned,omitempty"`
	NavigationPending   bool `json:"navigationPending,omitempty"`
}

// Display is the host's window/page capability port.
type Display interface {
	RequestFullscreen() error
	ExitFullscreen() error

	// PinHistory re-pins navigation history after a declined back/forward.
	PinHistory()
}

// NopDisplay is a Display for hosts without fullscreen or history.
type NopDisplay struct{}

func (NopDisplay) RequestFullscreen() error { return nil }
func (NopDisplay) ExitFullscreen() error    { return nil }
func (NopDisplay) PinHistory()              {}

// Monitor is the integrity state machine. Its callbacks run outside the
// monitor's lock.
type Monitor struct {
	mu      sync.Mutex
	display Display
	log     *log.Logger

	state      State
	hidden     bool
	fullscreen bool

	onChange    func(State)
	onTerminate func(Reason)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithMaxSwitches sets the tab-switch limit.
func WithMaxSwitches(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.state.MaxSwitches = n
		}
	}
}

// WithLogger sets the logger for non-fatal display failures.
func WithLogger(l *log.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// OnChange registers a callback invoked after every counted change, so the
// owner can persist State.
func OnChange(fn func(State)) Option {
	return func(m *Monitor) { m.onChange = fn }
}

// OnTerminate registers the callback that ends the session.
func OnTerminate(fn func(Reason)) Option {
	return func(m *Monitor) { m.onTerminate = fn }
}

// New creates a Monitor in the Normal state.
func New(d Display, opts ...Option) *Monitor {
	m := &Monitor{
		display: d,
		log:     log.New(io.Discard, "", 0),
		state:   State{MaxSwitches: DefaultMaxSwitches},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// State returns a copy of the persisted state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns the current status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status()
}

func (m *Monitor) status() Status {
	switch {
	case m.state.Terminated:
		return StatusTerminated
	case m.state.NavigationPending:
		return StatusNavigationPrompt
	case m.state.Warned:
		return StatusWarned
	case m.hidden:
		return StatusHidden
	}
	return StatusNormal
}

// WarningsLeft returns maxSwitches - tabSwitchCount, the n of Warned(n).
func (m *Monitor) WarningsLeft() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.MaxSwitches - m.state.TabSwitchCount
}

// Reset starts a fresh session's monitoring. The limit is kept.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{MaxSwitches: m.state.MaxSwitches}
	m.hidden, m.fullscreen = false, false
}

// Restore loads persisted counters and any unanswered prompt after a
// reload. Fullscreen does not survive a restart, so it may be requested
// again.
func (m *Monitor) Restore(st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st.MaxSwitches <= 0 {
		st.MaxSwitches = m.state.MaxSwitches
	}
	st.FullscreenAttempted = false
	m.state = st
	m.hidden, m.fullscreen = false, false
}

// VisibilityChanged records the page becoming hidden or visible again.
// Returning to visible after being hidden counts one tab switch.
func (m *Monitor) VisibilityChanged(hidden bool) {
	m.mu.Lock()
	if m.state.Terminated {
		m.mu.Unlock()
		return
	}
	if hidden {
		m.hidden = true
		m.mu.Unlock()
		return
	}
	if !m.hidden {
		m.mu.Unlock()
		return
	}

	m.hidden = false
	m.state.TabSwitchCount++
	if m.state.TabSwitchCount >= m.state.MaxSwitches {
		m.mu.Unlock()
		m.Terminate(ReasonTabSwitches)
		return
	}
	m.state.Warned = true
	st := m.state
	m.mu.Unlock()

	m.changed(st)
}

// NavigationAttempted records a back/forward navigation attempt. It always
// requires an acknowledgment, independent of the switch counter.
func (m *Monitor) NavigationAttempted() {
	m.mu.Lock()
	if m.state.Terminated || m.state.NavigationPending {
		m.mu.Unlock()
		return
	}
	m.state.NavigationPending = true
	st := m.state
	m.mu.Unlock()

	m.changed(st)
}

// Acknowledge answers the pending prompt. A pending navigation prompt is
// answered before a pending tab-switch warning. confirm continues the
// session; declining terminates it. It reports whether a prompt was pending.
func (m *Monitor) Acknowledge(confirm bool) bool {
	m.mu.Lock()
	if m.state.Terminated {
		m.mu.Unlock()
		return false
	}

	switch {
	case m.state.NavigationPending:
		m.state.NavigationPending = false
		st := m.state
		m.mu.Unlock()
		if !confirm {
			m.Terminate(ReasonNavigation)
			return true
		}
		m.display.PinHistory()
		m.changed(st)
		return true

	case m.state.Warned:
		m.state.Warned = false
		st := m.state
		m.mu.Unlock()
		if !confirm {
			m.Terminate(ReasonWarningDeclined)
			return true
		}
		m.changed(st)
		return true
	}

	m.mu.Unlock()
	return false
}

// RequestFullscreen asks for fullscreen once per batch. The attempt
// latches until ReleaseFullscreen even if the display refuses; refusal is
// not fatal.
func (m *Monitor) RequestFullscreen() {
	m.mu.Lock()
	if m.state.Terminated || m.state.FullscreenAttempted {
		m.mu.Unlock()
		return
	}
	m.state.FullscreenAttempted = true
	st := m.state
	m.mu.Unlock()

	if err := m.display.RequestFullscreen(); err != nil {
		m.log.Printf("warning: fullscreen unavailable: %v", err)
	} else {
		m.mu.Lock()
		m.fullscreen = true
		m.mu.Unlock()
	}
	m.changed(st)
}

// ReleaseFullscreen exits fullscreen if it was entered and re-arms
// RequestFullscreen for the next batch.
func (m *Monitor) ReleaseFullscreen() {
	m.mu.Lock()
	if !m.state.Terminated {
		m.state.FullscreenAttempted = false
	}
	if !m.fullscreen {
		m.mu.Unlock()
		return
	}
	m.fullscreen = false
	m.mu.Unlock()

	if err := m.display.ExitFullscreen(); err != nil {
		m.log.Printf("warning: exit fullscreen: %v", err)
	}
}

// Terminate ends monitoring and signals the owner. Only the first call
// has any effect.
func (m *Monitor) Terminate(reason Reason) {
	m.mu.Lock()
	if m.state.Terminated {
		m.mu.Unlock()
		return
	}
	m.state.Terminated = true
	m.state.Warned, m.state.NavigationPending = false, false
	m.hidden = false
	m.mu.Unlock()

	m.ReleaseFullscreen()
	if m.onTerminate != nil {
		m.onTerminate(reason)
	}
}

func (m *Monitor) changed(st State) {
	if m.onChange != nil {
		m.onChange(st)
	}
}

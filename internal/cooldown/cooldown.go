// Package cooldown enforces the rest period between batches. The backend
// is authoritative; a locally persisted completion time is used only for
// display and when the backend cannot be reached.
package cooldown

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/abhisek/flashdrill/internal/clock"
	"github.com/abhisek/flashdrill/internal/collab"
	"github.com/abhisek/flashdrill/internal/persist"
)

// DefaultDuration is the rest period after a batch.
const DefaultDuration = 5 * time.Minute

// Source says where a cooldown decision came from.
type Source string

const (
	SourceServer Source = "server"
	SourceLocal  Source = "local"
)

// State is the locally persisted cooldown.
type State struct {
	BatchCompletedAtEpochMs int64  `json:"batchCompletedAtEpochMs"`
	DurationMs              int64  `json:"durationMs"`
	Source                  Source `json:"source"`
}

// Status answers whether a new batch may start.
type Status struct {
	Allowed   bool
	Remaining time.Duration
	Source    Source
}

// Manager tracks the cooldown for one learner.
type Manager struct {
	mu       sync.Mutex
	collab   collab.Collaborator
	store    *persist.Store
	key      string
	clock    clock.Clock
	duration time.Duration
	log      *log.Logger
	state    *State
}

// Option configures a Manager.
type Option func(*Manager)

// WithDuration overrides DefaultDuration.
func WithDuration(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.duration = d
		}
	}
}

// WithLogger sets the logger for best-effort failures.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// New creates a Manager persisting under key.
func New(c collab.Collaborator, store *persist.Store, key string, clk clock.Clock, opts ...Option) *Manager {
	m := &Manager{
		collab:   c,
		store:    store,
		key:      key,
		clock:    clk,
		duration: DefaultDuration,
		log:      log.New(io.Discard, "", 0),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Duration returns the configured rest period.
func (m *Manager) Duration() time.Duration { return m.duration }

// Load restores the locally persisted cooldown, if any.
func (m *Manager) Load(ctx context.Context) {
	var st State
	if _, ok := m.store.Restore(ctx, m.key, &st); !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = &st
}

// State returns a copy of the local cooldown, or nil if none is recorded.
func (m *Manager) State() *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil
	}
	st := *m.state
	return &st
}

// CanStart asks the backend whether a new batch may start. Only when the
// backend is unreachable does it fall back to the local countdown. Other
// backend errors are returned.
func (m *Manager) CanStart(ctx context.Context) (Status, error) {
	srv, err := m.collab.CooldownStatus(ctx)
	if err != nil {
		if !collab.IsTransient(err) {
			return Status{}, fmt.Errorf("cooldown status: %w", err)
		}
		m.log.Printf("warning: cooldown server unreachable, using local state: %v", err)
		rem := m.Remaining()
		return Status{Allowed: rem == 0, Remaining: rem, Source: SourceLocal}, nil
	}

	rem := time.Duration(srv.RemainingSeconds) * time.Second
	if rem < 0 || !srv.Active {
		rem = 0
	}
	if rem > 0 {
		m.adopt(ctx, srv, rem)
	}
	return Status{Allowed: rem == 0, Remaining: rem, Source: SourceServer}, nil
}

// Refused records a cooldown the backend enforced by rejecting a call,
// so the local countdown shows the time the backend reported.
func (m *Manager) Refused(ctx context.Context, rem time.Duration) {
	if rem <= 0 {
		return
	}
	m.adopt(ctx, collab.CooldownStatus{}, rem)
}

// adopt aligns the local countdown with the server's, so the display
// matches the authoritative remaining time.
func (m *Manager) adopt(ctx context.Context, srv collab.CooldownStatus, rem time.Duration) {
	now := m.clock.Now()
	completedAt := now.Add(rem - m.duration)
	if srv.CompletedAtMs > 0 {
		completedAt = time.UnixMilli(srv.CompletedAtMs)
	}

	m.mu.Lock()
	if m.state != nil && m.state.BatchCompletedAtEpochMs == completedAt.UnixMilli() {
		m.mu.Unlock()
		return
	}
	st := State{
		BatchCompletedAtEpochMs: completedAt.UnixMilli(),
		DurationMs:              m.duration.Milliseconds(),
		Source:                  SourceServer,
	}
	m.state = &st
	m.mu.Unlock()

	m.store.Save(ctx, m.key, st)
}

// Start records a batch completion. The local record is written first;
// notifying the backend is best-effort.
func (m *Manager) Start(ctx context.Context, completedAt time.Time) {
	st := State{
		BatchCompletedAtEpochMs: completedAt.UnixMilli(),
		DurationMs:              m.duration.Milliseconds(),
		Source:                  SourceLocal,
	}
	m.mu.Lock()
	m.state = &st
	m.mu.Unlock()

	m.store.Save(ctx, m.key, st)

	if err := m.collab.CompleteCooldown(ctx, completedAt); err != nil {
		m.log.Printf("warning: notify cooldown start: %v", err)
		return
	}
	m.mu.Lock()
	if m.state != nil && m.state.BatchCompletedAtEpochMs == st.BatchCompletedAtEpochMs {
		m.state.Source = SourceServer
		st = *m.state
	}
	m.mu.Unlock()
	m.store.Save(ctx, m.key, st)
}

// Remaining is the locally computed time left, floored at zero.
func (m *Manager) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return 0
	}
	elapsed := clock.EpochMs(m.clock.Now()) - m.state.BatchCompletedAtEpochMs
	rem := time.Duration(m.state.DurationMs-elapsed) * time.Millisecond
	if rem < 0 {
		return 0
	}
	return rem
}

// Owed reports whether a local cooldown is still running.
func (m *Manager) Owed() bool {
	return m.Remaining() > 0
}

// Clear drops the cooldown once a new batch has been validated.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	m.state = nil
	m.mu.Unlock()
	m.store.Clear(ctx, m.key)
}

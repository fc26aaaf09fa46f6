package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/flashdrill/internal/clock"
)

func newTestScheduler() (*Scheduler, *clock.Fake) {
	c := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	return NewScheduler(c), c
}

func TestArmAndExpireOnce(t *testing.T) {
	s, c := newTestScheduler()
	fired := 0
	s.Arm(Item, 30, func() { fired++ })

	c.Advance(29 * time.Second)
	s.Tick()
	assert.Equal(t, 0, fired)
	rem, ok := s.Remaining(Item)
	require.True(t, ok)
	assert.Equal(t, 1, rem)

	c.Advance(time.Second)
	s.Tick()
	assert.Equal(t, 1, fired)

	c.Advance(10 * time.Second)
	s.Tick()
	assert.Equal(t, 1, fired, "expiry must never be retried")

	_, ok = s.Remaining(Item)
	assert.False(t, ok)
}

func TestRemainingUsesFlooredElapsedSeconds(t *testing.T) {
	s, c := newTestScheduler()
	s.Arm(FollowUp, 60, nil)

	c.Advance(1999 * time.Millisecond)
	rem, ok := s.Remaining(FollowUp)
	require.True(t, ok)
	assert.Equal(t, 59, rem)
}

func TestCancelDoesNotFire(t *testing.T) {
	s, c := newTestScheduler()
	fired := false
	s.Arm(Item, 5, func() { fired = true })
	s.Cancel(Item)

	c.Advance(time.Minute)
	s.Tick()
	assert.False(t, fired)
}

func TestArmReplacesTimer(t *testing.T) {
	s, c := newTestScheduler()
	var got []string
	first := s.Arm(Item, 5, func() { got = append(got, "first") })
	c.Advance(3 * time.Second)
	s.Arm(Item, 5, func() { got = append(got, "second") })

	assert.True(t, first.Fired(), "replaced timer's guard is consumed")

	c.Advance(3 * time.Second)
	s.Tick()
	assert.Empty(t, got)

	c.Advance(2 * time.Second)
	s.Tick()
	assert.Equal(t, []string{"second"}, got)
}

func TestManualCompletionBeatsExpiry(t *testing.T) {
	s, c := newTestScheduler()
	fired := false
	g := s.Arm(Item, 30, func() { fired = true })

	require.True(t, g.TryFire(), "manual completion claims the guard")
	c.Advance(31 * time.Second)
	s.Tick()
	assert.False(t, fired)
	assert.False(t, g.TryFire())
}

func TestExpiryBeatsManualCompletion(t *testing.T) {
	s, c := newTestScheduler()
	g := s.Arm(Item, 30, func() {})
	c.Advance(30 * time.Second)
	s.Tick()
	assert.False(t, g.TryFire())
}

func TestResumePastDeadlineFiresSynchronously(t *testing.T) {
	s, c := newTestScheduler()
	start := clock.EpochMs(c.Now())
	c.Advance(45 * time.Second)

	fired := 0
	s.Resume(Item, start, 30, func() { fired++ })
	assert.Equal(t, 1, fired)

	s.Tick()
	assert.Equal(t, 1, fired)
}

func TestResumeBeforeDeadlineKeepsRemaining(t *testing.T) {
	s, c := newTestScheduler()
	start := clock.EpochMs(c.Now())
	c.Advance(20 * time.Second)

	fired := false
	s.Resume(FollowUp, start, 60, func() { fired = true })
	assert.False(t, fired)

	rem, ok := s.Remaining(FollowUp)
	require.True(t, ok)
	assert.Equal(t, 40, rem)
}

func TestResumeDoesNotFireOtherTimers(t *testing.T) {
	s, c := newTestScheduler()
	cooldownFired := false
	s.Arm(Cooldown, 1, func() { cooldownFired = true })
	c.Advance(5 * time.Second)

	s.Resume(Item, clock.EpochMs(c.Now()), 30, nil)
	assert.False(t, cooldownFired)
}

func TestCancelAllAndStates(t *testing.T) {
	s, _ := newTestScheduler()
	s.Arm(Item, 30, nil)
	s.Arm(Cooldown, 300, nil)

	states := s.States()
	assert.Len(t, states, 2)
	assert.Equal(t, 300, states[Cooldown].DurationSeconds)

	s.CancelAll()
	assert.Empty(t, s.States())
}

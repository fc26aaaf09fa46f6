package integrity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDisplay struct {
	requestErr  error
	requests    int
	exits       int
	historyPins int
}

func (d *fakeDisplay) RequestFullscreen() error {
	d.requests++
	return d.requestErr
}

func (d *fakeDisplay) ExitFullscreen() error {
	d.exits++
	return nil
}

func (d *fakeDisplay) PinHistory() { d.historyPins++ }

type recorder struct {
	changes    []State
	terminated []Reason
}

func newTestMonitor(d *fakeDisplay) (*Monitor, *recorder) {
	r := &recorder{}
	m := New(d,
		OnChange(func(s State) { r.changes = append(r.changes, s) }),
		OnTerminate(func(reason Reason) { r.terminated = append(r.terminated, reason) }),
	)
	return m, r
}

func switchTab(m *Monitor) {
	m.VisibilityChanged(true)
	m.VisibilityChanged(false)
}

func TestHideAloneTakesNoAction(t *testing.T) {
	m, r := newTestMonitor(&fakeDisplay{})
	m.VisibilityChanged(true)

	assert.Equal(t, StatusHidden, m.Status())
	assert.Zero(t, m.State().TabSwitchCount)
	assert.Empty(t, r.changes)
}

func TestVisibleWithoutHideIsIgnored(t *testing.T) {
	m, _ := newTestMonitor(&fakeDisplay{})
	m.VisibilityChanged(false)
	assert.Zero(t, m.State().TabSwitchCount)
	assert.Equal(t, StatusNormal, m.Status())
}

func TestFirstSwitchWarnsSecondTerminates(t *testing.T) {
	d := &fakeDisplay{}
	m, r := newTestMonitor(d)
	m.RequestFullscreen()

	switchTab(m)
	assert.Equal(t, StatusWarned, m.Status())
	assert.Equal(t, 1, m.WarningsLeft())
	assert.Empty(t, r.terminated)

	require.True(t, m.Acknowledge(true))
	assert.Equal(t, StatusNormal, m.Status())

	switchTab(m)
	assert.Equal(t, StatusTerminated, m.Status())
	assert.Equal(t, []Reason{ReasonTabSwitches}, r.terminated)
	assert.Equal(t, 1, d.exits, "fullscreen released on termination")
}

func TestSecondSwitchWhileWarnedTerminates(t *testing.T) {
	m, r := newTestMonitor(&fakeDisplay{})
	switchTab(m)
	switchTab(m)
	assert.Equal(t, StatusTerminated, m.Status())
	assert.Equal(t, []Reason{ReasonTabSwitches}, r.terminated)
	assert.Equal(t, 2, m.State().TabSwitchCount)
}

func TestDecliningWarningTerminates(t *testing.T) {
	m, r := newTestMonitor(&fakeDisplay{})
	switchTab(m)
	m.Acknowledge(false)
	assert.Equal(t, []Reason{ReasonWarningDeclined}, r.terminated)
}

func TestNavigationPrompt(t *testing.T) {
	d := &fakeDisplay{}
	m, r := newTestMonitor(d)

	m.NavigationAttempted()
	assert.Equal(t, StatusNavigationPrompt, m.Status())
	m.Acknowledge(true)
	assert.Equal(t, StatusNormal, m.Status())
	assert.Equal(t, 1, d.historyPins)
	assert.Zero(t, m.State().TabSwitchCount, "navigation does not count as a tab switch")

	m.NavigationAttempted()
	m.Acknowledge(false)
	assert.Equal(t, []Reason{ReasonNavigation}, r.terminated)
}

func TestNavigationPromptAnsweredBeforeWarning(t *testing.T) {
	m, r := newTestMonitor(&fakeDisplay{})
	switchTab(m)
	m.NavigationAttempted()

	assert.Equal(t, StatusNavigationPrompt, m.Status())
	m.Acknowledge(true)
	assert.Equal(t, StatusWarned, m.Status())
	m.Acknowledge(true)
	assert.Equal(t, StatusNormal, m.Status())
	assert.Empty(t, r.terminated)
}

func TestTerminationIsIdempotent(t *testing.T) {
	d := &fakeDisplay{}
	m, r := newTestMonitor(d)
	m.RequestFullscreen()

	m.Terminate(ReasonManual)
	m.Terminate(ReasonManual)
	switchTab(m)
	m.NavigationAttempted()

	assert.Equal(t, []Reason{ReasonManual}, r.terminated)
	assert.Equal(t, 1, d.exits)
	assert.Zero(t, m.State().TabSwitchCount)
	assert.False(t, m.Acknowledge(true))
}

func TestFullscreenRequestedOnce(t *testing.T) {
	d := &fakeDisplay{requestErr: errors.New("not allowed")}
	m, r := newTestMonitor(d)

	m.RequestFullscreen()
	m.RequestFullscreen()
	assert.Equal(t, 1, d.requests)
	assert.True(t, m.State().FullscreenAttempted)
	require.Len(t, r.changes, 1)

	m.ReleaseFullscreen()
	assert.Zero(t, d.exits, "nothing to release when fullscreen was refused")
}

func TestResetClearsCounters(t *testing.T) {
	m, _ := newTestMonitor(&fakeDisplay{})
	switchTab(m)
	m.RequestFullscreen()
	m.Reset()

	st := m.State()
	assert.Zero(t, st.TabSwitchCount)
	assert.False(t, st.FullscreenAttempted)
	assert.Equal(t, DefaultMaxSwitches, st.MaxSwitches)
	assert.Equal(t, StatusNormal, m.Status())
}

func TestRestoreKeepsCount(t *testing.T) {
	m, r := newTestMonitor(&fakeDisplay{})
	m.Restore(State{TabSwitchCount: 1})
	assert.Equal(t, DefaultMaxSwitches, m.State().MaxSwitches)

	switchTab(m)
	assert.Equal(t, []Reason{ReasonTabSwitches}, r.terminated)
}

func TestWithMaxSwitches(t *testing.T) {
	m := New(&fakeDisplay{}, WithMaxSwitches(3))
	switchTab(m)
	switchTab(m)
	assert.Equal(t, StatusWarned, m.Status())
	assert.Equal(t, 1, m.WarningsLeft())
}

func TestFullscreenRequestedAgainAfterRelease(t *testing.T) {
	d := &fakeDisplay{}
	m, _ := newTestMonitor(d)

	m.RequestFullscreen()
	m.ReleaseFullscreen()
	assert.Equal(t, 1, d.exits)
	assert.False(t, m.State().FullscreenAttempted)

	m.RequestFullscreen()
	assert.Equal(t, 2, d.requests)
}

func TestRestoreAllowsFullscreenAgain(t *testing.T) {
	d := &fakeDisplay{}
	m, _ := newTestMonitor(d)
	m.Restore(State{FullscreenAttempted: true})

	m.RequestFullscreen()
	assert.Equal(t, 1, d.requests)
}

func TestPendingPromptsArePersisted(t *testing.T) {
	m, r := newTestMonitor(&fakeDisplay{})
	switchTab(m)
	m.NavigationAttempted()

	require.NotEmpty(t, r.changes)
	saved := r.changes[len(r.changes)-1]
	assert.True(t, saved.Warned)
	assert.True(t, saved.NavigationPending)

	restored, rr := newTestMonitor(&fakeDisplay{})
	restored.Restore(saved)
	assert.Equal(t, StatusNavigationPrompt, restored.Status())
	require.True(t, restored.Acknowledge(true))
	assert.Equal(t, StatusWarned, restored.Status())
	require.True(t, restored.Acknowledge(false))
	assert.Equal(t, []Reason{ReasonWarningDeclined}, rr.terminated)
}

func TestAnsweredPromptIsDroppedFromState(t *testing.T) {
	m, r := newTestMonitor(&fakeDisplay{})
	switchTab(m)
	require.True(t, m.Acknowledge(true))

	saved := r.changes[len(r.changes)-1]
	assert.False(t, saved.Warned)
	assert.Equal(t, 1, saved.TabSwitchCount)
}

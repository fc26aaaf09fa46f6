// Package drill is the terminal screen for a flashcard session. Every
// engine call that may touch the network runs inside a tea.Cmd; the
// screen re-reads the engine's View when the call returns.
package drill

import (
	"context"
	"errors"
	"strconv"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/flashdrill/internal/integrity"
	"github.com/abhisek/flashdrill/internal/router"
	"github.com/abhisek/flashdrill/internal/screen"
	"github.com/abhisek/flashdrill/internal/screens/summary"
	"github.com/abhisek/flashdrill/internal/session"
	"github.com/abhisek/flashdrill/internal/ui/components"
	"github.com/abhisek/flashdrill/internal/ui/layout"
)

// Engine is the part of *session.Orchestrator the screen drives.
type Engine interface {
	Start(ctx context.Context) error
	Rate(ctx context.Context, r session.Rating) error
	Answer(ctx context.Context, optionKey string) error
	Tick(ctx context.Context) error
	Retry(ctx context.Context) error
	EnterCooldown(ctx context.Context) error
	StartNewBatch(ctx context.Context) error
	VisibilityChanged(hidden bool)
	NavigationAttempted()
	AcknowledgeWarning(confirm bool) bool
	End(ctx context.Context, reason session.EndReason)
	View() session.View
}

var _ Engine = (*session.Orchestrator)(nil)

// DrillScreen implements screen.Screen for a running session.
type DrillScreen struct {
	engine Engine
	ctx    context.Context

	view     session.View
	itemID   string
	revealed bool
	choices  components.MultiChoice
	question string

	ticking     bool
	summaryDone int
	errMsg      string
}

var _ screen.Screen = (*DrillScreen)(nil)
var _ screen.KeyHintProvider = (*DrillScreen)(nil)
var _ screen.StatusProvider = (*DrillScreen)(nil)

// New creates a DrillScreen. Engine calls are bound to ctx.
func New(ctx context.Context, engine Engine) *DrillScreen {
	s := &DrillScreen{engine: engine, ctx: ctx}
	s.refresh()
	return s
}

func (s *DrillScreen) Init() tea.Cmd {
	return s.run("start", s.engine.Start)
}

func (s *DrillScreen) Title() string {
	switch s.view.Phase {
	case session.PhaseCooldown:
		return "Cooldown"
	case session.PhaseEnded:
		return "Session Ended"
	case session.PhaseIdle:
		return "Ready"
	}
	if s.view.BatchNumber > 0 {
		return "Batch " + strconv.Itoa(s.view.BatchNumber)
	}
	return "Session"
}

// Status shows the remaining integrity warnings while a session is live.
func (s *DrillScreen) Status() string {
	if s.view.SessionID == "" || s.view.Phase == session.PhaseEnded {
		return ""
	}
	return "warnings left " + strconv.Itoa(s.view.WarningsLeft)
}

func (s *DrillScreen) KeyHints() []layout.KeyHint {
	if s.prompting() {
		return []layout.KeyHint{
			{Key: "Y", Description: "Continue session"},
			{Key: "N", Description: "End session"},
		}
	}

	var hints []layout.KeyHint
	switch s.view.Phase {
	case session.PhasePresenting:
		hints = []layout.KeyHint{
			{Key: "Space", Description: "Flip"},
			{Key: "1-5", Description: "Rate recall"},
		}
	case session.PhaseFollowUp:
		hints = []layout.KeyHint{
			{Key: "↑↓", Description: "Navigate"},
			{Key: "Enter", Description: "Answer"},
		}
	case session.PhaseBatchComplete:
		hints = []layout.KeyHint{{Key: "Enter", Description: "Continue"}}
	case session.PhaseCooldown:
		hints = []layout.KeyHint{
			{Key: "N", Description: "Next batch"},
			{Key: "H", Description: "History"},
		}
	case session.PhaseIdle:
		hints = []layout.KeyHint{
			{Key: "Enter", Description: "Start"},
			{Key: "H", Description: "History"},
		}
	case session.PhaseEnded:
		hints = []layout.KeyHint{
			{Key: "Enter", Description: "New session"},
			{Key: "H", Description: "History"},
			{Key: "Q", Description: "Quit"},
		}
	}
	if s.view.Notice == session.NoticeRetry {
		hints = append(hints, layout.KeyHint{Key: "R", Description: "Retry"})
	}
	if s.view.SessionID != "" && s.view.Phase != session.PhaseEnded {
		hints = append(hints, layout.KeyHint{Key: "X", Description: "End session"})
	}
	return append(hints, layout.KeyHint{Key: "Ctrl+C", Description: "Quit"})
}

func (s *DrillScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case opDoneMsg:
		return s.handleOpDone(msg)

	case screen.TickMsg:
		return s.handleTick()

	case tea.BlurMsg:
		s.engine.VisibilityChanged(true)
		s.refresh()
		return s, nil

	case tea.FocusMsg:
		s.engine.VisibilityChanged(false)
		s.refresh()
		return s, nil

	case summary.ContinueMsg:
		return s, s.run("cooldown", s.engine.EnterCooldown)

	case tea.KeyPressMsg:
		return s.handleKey(msg)
	}
	return s, nil
}

func (s *DrillScreen) handleOpDone(msg opDoneMsg) (screen.Screen, tea.Cmd) {
	if msg.Op == "tick" {
		s.ticking = false
	}
	s.errMsg = ""
	if msg.Err != nil && !quiet(msg.Err) {
		s.errMsg = msg.Err.Error()
	}
	s.refresh()
	return s, s.maybeSummary()
}

func (s *DrillScreen) handleTick() (screen.Screen, tea.Cmd) {
	s.refresh()
	if s.ticking {
		return s, nil
	}
	s.ticking = true
	return s, s.run("tick", s.engine.Tick)
}

func (s *DrillScreen) handleKey(msg tea.KeyPressMsg) (screen.Screen, tea.Cmd) {
	key := msg.String()

	if s.prompting() {
		switch key {
		case "y", "Y", "enter":
			s.engine.AcknowledgeWarning(true)
		case "n", "N":
			s.engine.AcknowledgeWarning(false)
		}
		s.refresh()
		return s, nil
	}

	v := s.view
	live := v.SessionID != "" && v.Phase.Live()

	switch key {
	case "esc":
		if live {
			s.engine.NavigationAttempted()
			s.refresh()
			return s, nil
		}
		if v.Phase == session.PhaseEnded || v.Phase == session.PhaseIdle {
			return s, tea.Quit
		}
		return s, nil
	case "x", "X":
		if v.SessionID != "" && v.Phase != session.PhaseEnded {
			return s, s.run("end", func(ctx context.Context) error {
				s.engine.End(ctx, session.EndManual)
				return nil
			})
		}
	case "r", "R":
		if v.Notice == session.NoticeRetry {
			return s, s.run("retry", s.engine.Retry)
		}
	case "h", "H":
		if !live {
			return s, func() tea.Msg { return ShowHistoryMsg{} }
		}
	}

	switch v.Phase {
	case session.PhasePresenting:
		switch key {
		case "space", "enter", "f":
			s.revealed = !s.revealed
			return s, nil
		case "1", "2", "3", "4", "5":
			r := session.Rating(key[0] - '0')
			return s, s.run("rate", func(ctx context.Context) error { return s.engine.Rate(ctx, r) })
		}

	case session.PhaseFollowUp:
		switch key {
		case "enter":
			if c, ok := s.choices.Current(); ok {
				return s, s.answer(c.Key)
			}
		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			if c, ok := s.choices.At(int(key[0] - '0')); ok {
				s.choices.Selected = int(key[0]-'0') - 1
				return s, s.answer(c.Key)
			}
		default:
			var cmd tea.Cmd
			s.choices, cmd = s.choices.Update(msg)
			return s, cmd
		}

	case session.PhaseBatchComplete:
		if key == "enter" {
			return s, s.run("cooldown", s.engine.EnterCooldown)
		}

	case session.PhaseCooldown:
		if key == "n" || key == "N" {
			return s, s.run("next", s.engine.StartNewBatch)
		}

	case session.PhaseIdle:
		if key == "enter" || key == "s" {
			return s, s.run("start", s.engine.Start)
		}

	case session.PhaseEnded:
		switch key {
		case "enter", "s":
			return s, s.run("start", s.engine.Start)
		case "q", "Q":
			return s, tea.Quit
		}
	}
	return s, nil
}

func (s *DrillScreen) answer(key string) tea.Cmd {
	return s.run("answer", func(ctx context.Context) error { return s.engine.Answer(ctx, key) })
}

// run executes fn off the update loop and reports back with opDoneMsg.
func (s *DrillScreen) run(op string, fn func(context.Context) error) tea.Cmd {
	ctx := s.ctx
	return func() tea.Msg {
		return opDoneMsg{Op: op, Err: fn(ctx)}
	}
}

// refresh re-reads the engine and resets per-item UI state when the item
// or question changes.
func (s *DrillScreen) refresh() {
	s.view = s.engine.View()

	id := ""
	if s.view.Item != nil {
		id = s.view.Item.ID
	}
	if id != s.itemID {
		s.itemID = id
		s.revealed = false
	}

	q := s.view.FollowUp
	if q == nil {
		s.question = ""
		return
	}
	if q.ID != s.question {
		s.question = q.ID
		choices := make([]components.Choice, len(q.Options))
		for i, o := range q.Options {
			choices[i] = components.Choice{Key: o.Key, Label: o.Label}
		}
		s.choices = components.NewMultiChoice(q.Prompt, choices)
	}
}

// maybeSummary pushes the summary screen once per finished batch.
func (s *DrillScreen) maybeSummary() tea.Cmd {
	v := s.view
	if v.Phase != session.PhaseBatchComplete || v.Summary == nil || v.Summary.BatchNumber == s.summaryDone {
		return nil
	}
	s.summaryDone = v.Summary.BatchNumber
	scr := summary.New(v.Summary, func() time.Duration { return s.engine.View().CooldownLeft })
	return func() tea.Msg { return router.PushScreenMsg{Screen: scr} }
}

func (s *DrillScreen) prompting() bool {
	switch s.view.Integrity {
	case integrity.StatusWarned, integrity.StatusNavigationPrompt:
		return s.view.Phase != session.PhaseEnded
	}
	return false
}

// quiet reports errors the view already explains or that carry no news.
func quiet(err error) bool {
	var cd *session.CooldownError
	return errors.Is(err, session.ErrSuperseded) ||
		errors.Is(err, session.ErrWrongPhase) ||
		errors.As(err, &cd)
}

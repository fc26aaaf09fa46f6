package app

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/flashdrill/internal/router"
	"github.com/abhisek/flashdrill/internal/screen"
	"github.com/abhisek/flashdrill/internal/screens/drill"
	"github.com/abhisek/flashdrill/internal/screens/welcome"
	"github.com/abhisek/flashdrill/internal/ui/layout"
)

// Options holds the dependencies for the TUI.
type Options struct {
	Engine drill.Engine

	// NewEngine is used when Engine is nil. The TUI first asks for a
	// learner ID and then builds the engine for it.
	NewEngine func(userID string) (drill.Engine, error)

	// History builds the session history screen. Nil disables it.
	History func() screen.Screen

	// Display must be the same Display the engine's integrity monitor uses.
	Display *Display
}

// AppModel is the root Bubble Tea model.
type AppModel struct {
	router  *router.Router
	display *Display
	history func() screen.Screen
	width   int
	height  int
}

func newAppModel(ctx context.Context, opts Options) AppModel {
	display := opts.Display
	if display == nil {
		display = &Display{}
	}
	return AppModel{
		router:  router.New(initialScreen(ctx, opts)),
		display: display,
		history: opts.History,
	}
}

func initialScreen(ctx context.Context, opts Options) screen.Screen {
	if opts.Engine != nil || opts.NewEngine == nil {
		return drill.New(ctx, opts.Engine)
	}
	return welcome.New(func(userID string) (screen.Screen, error) {
		engine, err := opts.NewEngine(userID)
		if err != nil {
			return nil, err
		}
		return drill.New(ctx, engine), nil
	})
}

func (m AppModel) Init() tea.Cmd {
	return tea.Batch(m.router.Active().Init(), tick())
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			// The snapshot stays; the next launch resumes the session.
			return m, tea.Quit
		}
		return m, m.router.Update(msg)

	case router.PushScreenMsg, router.PopScreenMsg, router.ReplaceScreenMsg:
		return m, m.router.Update(msg)

	case screen.TickMsg:
		return m, tea.Batch(m.router.Broadcast(msg), tick())

	case drill.ShowHistoryMsg:
		if m.history == nil || m.router.Depth() > 1 {
			return m, nil
		}
		return m, m.router.Push(m.history())
	}

	// Command results go to every screen: the drill screen keeps its
	// engine calls in flight while a summary or history screen is on top.
	return m, m.router.Broadcast(msg)
}

func (m AppModel) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = m.display.Fullscreen()
	v.ReportFocus = true
	v.WindowTitle = "Flashdrill"

	if m.width == 0 || m.height == 0 {
		return v
	}

	if layout.IsTooSmall(m.width, m.height) {
		v.SetContent(layout.RenderMinSizeMessage(m.width, m.height))
		return v
	}

	active := m.router.Active()
	title, status := "", ""
	if active != nil {
		title = active.Title()
	}
	if sp, ok := active.(screen.StatusProvider); ok {
		status = sp.Status()
	}
	header := layout.RenderHeader(title, status, m.width)

	footerHints := []layout.KeyHint{{Key: "Ctrl+C", Description: "Quit"}}
	if kp, ok := active.(screen.KeyHintProvider); ok {
		footerHints = kp.KeyHints()
	}
	footer := layout.RenderFooter(footerHints, m.width)

	contentHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
	if contentHeight < 0 {
		contentHeight = 0
	}

	content := m.router.View(m.width, contentHeight)
	v.SetContent(layout.RenderFrame(header, content, footer, m.width, m.height))
	return v
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return screen.TickMsg(t)
	})
}

// Run starts the Bubble Tea program and blocks until it exits.
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(newAppModel(ctx, opts), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error running program:", err)
		return err
	}
	return nil
}

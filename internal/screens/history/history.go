package history

import (
	"context"
	"fmt"
	"image/color"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/flashdrill/internal/router"
	"github.com/abhisek/flashdrill/internal/screen"
	"github.com/abhisek/flashdrill/internal/store"
	"github.com/abhisek/flashdrill/internal/ui/layout"
	"github.com/abhisek/flashdrill/internal/ui/theme"
)

const eventLimit = 50

type historyLoadedMsg struct {
	Events []store.SessionEvent
	Totals store.AnswerTotals
	Err    error
}

// HistoryScreen lists recent session events for one learner.
type HistoryScreen struct {
	ctx      context.Context
	repo     store.EventRepo
	userID   string
	events   []store.SessionEvent
	totals   store.AnswerTotals
	selected int
	expanded map[int]bool
	loaded   bool
	errMsg   string
}

var _ screen.Screen = (*HistoryScreen)(nil)
var _ screen.KeyHintProvider = (*HistoryScreen)(nil)

// New creates a HistoryScreen for userID.
func New(ctx context.Context, repo store.EventRepo, userID string) *HistoryScreen {
	return &HistoryScreen{
		ctx:      ctx,
		repo:     repo,
		userID:   userID,
		expanded: make(map[int]bool),
	}
}

func (s *HistoryScreen) Init() tea.Cmd {
	return func() tea.Msg {
		events, err := s.repo.RecentSessionEvents(s.ctx, s.userID, eventLimit)
		if err != nil {
			return historyLoadedMsg{Err: err}
		}
		// Totals are a header nicety; the list still shows without them.
		totals, _ := s.repo.AnswerTotals(s.ctx)
		return historyLoadedMsg{Events: events, Totals: totals}
	}
}

func (s *HistoryScreen) Title() string {
	return "History"
}

func (s *HistoryScreen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "Enter", Description: "Details"},
		{Key: "↑↓", Description: "Navigate"},
		{Key: "Esc", Description: "Back"},
	}
}

func (s *HistoryScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case historyLoadedMsg:
		if msg.Err != nil {
			s.errMsg = msg.Err.Error()
		} else {
			s.events = msg.Events
			s.totals = msg.Totals
		}
		s.loaded = true
		return s, nil

	case tea.KeyPressMsg:
		switch msg.String() {
		case "esc", "q":
			return s, func() tea.Msg { return router.PopScreenMsg{} }
		case "up", "k":
			if s.selected > 0 {
				s.selected--
			}
		case "down", "j":
			if s.selected < len(s.events)-1 {
				s.selected++
			}
		case "enter":
			s.expanded[s.selected] = !s.expanded[s.selected]
		}
	}
	return s, nil
}

func (s *HistoryScreen) View(width, height int) string {
	if s.errMsg != "" {
		return lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.Error).
			Render(fmt.Sprintf("\n\nError: %s", s.errMsg))
	}
	if !s.loaded {
		return lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.TextDim).
			Render("\n\n  Loading history...")
	}
	if len(s.events) == 0 {
		return lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.TextDim).Italic(true).
			Render("\n\n  No sessions yet. Start a batch!")
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(layout.Center(theme.Hint, width, fmt.Sprintf(
		"%d answered  %.0f%% correct  %d timed out",
		s.totals.Answered, s.totals.Accuracy()*100, s.totals.TimedOut)))
	b.WriteString("\n\n")

	for i, e := range s.events {
		prefix := "  "
		if i == s.selected {
			prefix = "> "
		}
		line := fmt.Sprintf("%s%s  %-11s  batch %d  %d/%d correct",
			prefix, e.Timestamp.Local().Format("Jan 02 15:04"), e.Action,
			e.Batch, e.CorrectCount, e.CorrectCount+e.IncorrectCount)

		style := lipgloss.NewStyle().Foreground(actionColor(e.Action))
		if i == s.selected {
			style = style.Foreground(theme.Primary).Bold(true)
		}
		b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, style.Render(line)))
		b.WriteString("\n")

		if s.expanded[i] {
			detail := fmt.Sprintf("    session %s  %d items", e.SessionID, e.ItemsCompleted)
			if e.Reason != "" {
				detail += "  reason: " + e.Reason
			}
			b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center,
				lipgloss.NewStyle().Foreground(theme.TextDim).Italic(true).Render(detail)))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func actionColor(action string) color.Color {
	switch action {
	case store.ActionBatchEnd:
		return theme.Success
	case store.ActionEnd:
		return theme.Accent
	case store.ActionStart, store.ActionResume:
		return theme.Secondary
	default:
		return theme.Text
	}
}

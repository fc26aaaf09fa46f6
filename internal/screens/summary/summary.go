package summary

import (
	"fmt"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/flashdrill/internal/router"
	"github.com/abhisek/flashdrill/internal/screen"
	"github.com/abhisek/flashdrill/internal/session"
	"github.com/abhisek/flashdrill/internal/ui/components"
	"github.com/abhisek/flashdrill/internal/ui/layout"
	"github.com/abhisek/flashdrill/internal/ui/theme"
)

// ContinueMsg is sent to the screen below once the summary is dismissed.
type ContinueMsg struct{}

// SummaryScreen displays the result of a finished batch.
type SummaryScreen struct {
	summary  *session.Summary
	cooldown func() time.Duration
	left     time.Duration
}

var _ screen.Screen = (*SummaryScreen)(nil)
var _ screen.KeyHintProvider = (*SummaryScreen)(nil)

// New creates a SummaryScreen. cooldown reports the time until the next
// batch may start and may be nil.
func New(sum *session.Summary, cooldown func() time.Duration) *SummaryScreen {
	s := &SummaryScreen{summary: sum, cooldown: cooldown}
	s.refresh()
	return s
}

func (s *SummaryScreen) Init() tea.Cmd {
	return nil
}

func (s *SummaryScreen) Title() string {
	if s.summary == nil {
		return "Batch Summary"
	}
	return fmt.Sprintf("Batch %d Summary", s.summary.BatchNumber)
}

func (s *SummaryScreen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "Enter", Description: "Continue"},
	}
}

func (s *SummaryScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case screen.TickMsg:
		s.refresh()
	case tea.KeyPressMsg:
		switch msg.String() {
		case "enter", "esc", "space":
			return s, tea.Sequence(
				func() tea.Msg { return router.PopScreenMsg{} },
				func() tea.Msg { return ContinueMsg{} },
			)
		}
	}
	return s, nil
}

func (s *SummaryScreen) refresh() {
	if s.cooldown != nil {
		s.left = s.cooldown()
	}
}

func (s *SummaryScreen) View(width, height int) string {
	sum := s.summary
	if sum == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(layout.Center(lipgloss.NewStyle().Foreground(theme.Primary).Bold(true), width, "Batch complete!"))
	b.WriteString("\n\n")

	stats := fmt.Sprintf("Items: %d      Correct: %d      Incorrect: %d      Accuracy: %.0f%%",
		sum.Items, sum.Correct, sum.Incorrect, sum.Accuracy*100)
	b.WriteString(layout.Center(lipgloss.NewStyle().Foreground(theme.Text), width, stats))
	b.WriteString("\n")

	if sum.TimedOut > 0 || sum.Skipped > 0 {
		extra := fmt.Sprintf("Timed out: %d      Skipped: %d", sum.TimedOut, sum.Skipped)
		b.WriteString(layout.Center(lipgloss.NewStyle().Foreground(theme.TextDim), width, extra))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(sum.ByDifficulty) > 0 {
		divider := lipgloss.NewStyle().Foreground(theme.Border).Render(strings.Repeat("─", min(width-8, 50)))
		b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center,
			lipgloss.NewStyle().Foreground(theme.TextDim).Render("By difficulty")))
		b.WriteString("\n")
		b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, divider))
		b.WriteString("\n\n")

		barWidth := min(width-8, 50)
		for _, d := range sum.ByDifficulty {
			pct := 0.0
			if d.Attempted > 0 {
				pct = float64(d.Correct) / float64(d.Attempted)
			}
			bar := components.NewProgressBar(fmt.Sprintf("%-8s", d.Difficulty), pct,
				fmt.Sprintf("%d/%d", d.Correct, d.Attempted), barWidth)
			b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, bar.View()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if s.left > 0 {
		secs := int((s.left + time.Second - 1) / time.Second)
		b.WriteString(layout.Center(theme.Warning, width,
			fmt.Sprintf("Next batch unlocks in %d:%02d", secs/60, secs%60)))
	} else {
		b.WriteString(layout.Center(theme.Correct, width, "Next batch is ready"))
	}

	return b.String()
}

package drill

import (
	"fmt"
	"strings"
	"time"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/flashdrill/internal/integrity"
	"github.com/abhisek/flashdrill/internal/selector"
	"github.com/abhisek/flashdrill/internal/session"
	"github.com/abhisek/flashdrill/internal/ui/components"
	"github.com/abhisek/flashdrill/internal/ui/layout"
	"github.com/abhisek/flashdrill/internal/ui/theme"
)

func (s *DrillScreen) View(width, height int) string {
	v := s.view

	var body string
	switch v.Phase {
	case session.PhaseInitializing:
		body = renderWaiting(width, "Preparing your batch...")
	case session.PhasePresenting:
		body = s.renderCard(width)
	case session.PhaseRated:
		body = renderWaiting(width, "Loading follow-up question...")
	case session.PhaseFollowUp:
		body = s.renderFollowUp(width)
	case session.PhaseAnswered:
		body = renderWaiting(width, "Checking your answer...")
	case session.PhaseBatchComplete:
		body = renderWaiting(width, "Batch complete. Press Enter to continue.")
	case session.PhaseCooldown:
		body = renderCooldown(width, v.CooldownLeft)
	case session.PhaseEnded:
		body = renderEnded(width, v)
	default:
		body = renderIdle(width, v)
	}

	var b strings.Builder
	if v.SessionID != "" && v.Phase.Live() {
		b.WriteString(s.renderProgress(width))
		b.WriteString("\n\n")
	}
	b.WriteString(body)

	if v.Integrity == integrity.StatusHidden && v.Phase.Live() {
		b.WriteString("\n\n")
		b.WriteString(layout.Center(theme.Warning, width, "Session paused while the window is out of focus."))
	}
	if s.prompting() {
		b.WriteString("\n\n")
		b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, renderPrompt(v)))
	}
	if msg := s.notice(); msg != "" {
		b.WriteString("\n\n")
		b.WriteString(layout.Center(lipgloss.NewStyle().Foreground(theme.Error), width, msg))
	}
	return b.String()
}

// renderProgress renders the batch progress line and bar.
func (s *DrillScreen) renderProgress(width int) string {
	v := s.view
	info := fmt.Sprintf("  Batch %d   %s %d   %s %d",
		v.BatchNumber,
		theme.Correct.Render("✓"), v.CorrectCount,
		theme.Incorrect.Render("✗"), v.IncorrectCount,
	)
	pct := 0.0
	if v.BatchSize > 0 {
		pct = float64(v.ItemsCompleted) / float64(v.BatchSize)
	}
	bar := components.NewProgressBar("", pct, fmt.Sprintf("%d/%d", v.ItemsCompleted, v.BatchSize), min(width-4, 60))
	return info + "\n" + lipgloss.PlaceHorizontal(width, lipgloss.Center, bar.View())
}

func (s *DrillScreen) renderCard(width int) string {
	v := s.view
	item := v.Item
	if item == nil {
		return renderWaiting(width, "Loading item...")
	}

	var b strings.Builder
	b.WriteString(s.renderLast(width))

	label := item.SubTopic
	if v.ItemSource == selector.SourceDueReview {
		label += "  (review)"
	}
	b.WriteString(layout.Center(lipgloss.NewStyle().Foreground(theme.Secondary), width, label))
	b.WriteString("\n")

	card := item.Prompt
	if s.revealed {
		card += "\n\n" + theme.Correct.Render(item.Answer)
		if item.Explanation != "" {
			card += "\n\n" + lipgloss.NewStyle().Foreground(theme.TextDim).Render(item.Explanation)
		}
	}
	cardWidth := min(width-8, 70)
	b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center,
		theme.Card.Width(cardWidth).Align(lipgloss.Center).Render(card)))
	b.WriteString("\n\n")

	b.WriteString(s.renderTimer(width))
	b.WriteString("\n\n")
	b.WriteString(layout.Center(theme.Hint, width, "How well did you recall it? 1 (not at all) to 5 (perfectly)"))
	return b.String()
}

func (s *DrillScreen) renderFollowUp(width int) string {
	var b strings.Builder
	b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, s.choices.View()))
	b.WriteString("\n")
	b.WriteString(s.renderTimer(width))
	return b.String()
}

// renderLast shows the outcome of the previous item.
func (s *DrillScreen) renderLast(width int) string {
	r := s.view.LastResult
	if r == nil {
		return ""
	}
	var line string
	switch {
	case r.Skipped:
		line = lipgloss.NewStyle().Foreground(theme.TextDim).Render("Previous: no follow-up available")
	case r.TimedOut:
		line = theme.Warning.Render(fmt.Sprintf("Previous: time ran out (answer: %s)", r.CorrectOption))
	case r.Correct:
		line = theme.Correct.Render("Previous: correct!")
	default:
		line = theme.Incorrect.Render(fmt.Sprintf("Previous: not quite (answer: %s)", r.CorrectOption))
	}
	return lipgloss.PlaceHorizontal(width, lipgloss.Center, line) + "\n\n"
}

func (s *DrillScreen) renderTimer(width int) string {
	if !s.view.TimerActive {
		return ""
	}
	bar := components.Countdown("Time", s.view.TimeLeft, s.view.TimeTotal, min(width-8, 50))
	return lipgloss.PlaceHorizontal(width, lipgloss.Center, bar.View())
}

func (s *DrillScreen) notice() string {
	v := s.view
	switch v.Notice {
	case session.NoticeRetry:
		if v.Err != nil {
			return fmt.Sprintf("Something went wrong: %v. Press R to retry.", v.Err)
		}
		return "Something went wrong. Press R to retry."
	case session.NoticeAuth:
		return "Your sign-in has expired. Log in again and restart."
	}
	return s.errMsg
}

func renderPrompt(v session.View) string {
	var title, text string
	if v.Integrity == integrity.StatusNavigationPrompt {
		title = "Leave the session?"
		text = "Leaving ends the session.\n\n[Y] Stay   [N] Leave"
	} else {
		title = "You left the session window"
		text = fmt.Sprintf("Warnings left before the session ends: %d\n\n[Y] Continue   [N] End session", v.WarningsLeft)
	}
	return theme.Alert.Render(theme.Incorrect.Render(title) + "\n\n" + text)
}

func renderCooldown(width int, left time.Duration) string {
	secs := int((left + time.Second - 1) / time.Second)
	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(layout.Center(lipgloss.NewStyle().Foreground(theme.Text).Bold(true), width, "Take a short break"))
	b.WriteString("\n\n")
	b.WriteString(layout.Center(theme.Warning, width, fmt.Sprintf("Next batch in %d:%02d", secs/60, secs%60)))
	return b.String()
}

func renderIdle(width int, v session.View) string {
	switch v.Notice {
	case session.NoticeExhausted:
		return renderWaiting(width, "You have worked through everything available. Press Enter to start over.")
	case session.NoticeCooldown:
		secs := int((v.CooldownLeft + time.Second - 1) / time.Second)
		return renderWaiting(width, fmt.Sprintf("Cooldown active: %d:%02d remaining.", secs/60, secs%60))
	}
	if v.SessionID != "" && v.BatchNumber > 0 && v.ItemsCompleted >= v.BatchSize {
		return renderWaiting(width, "Ready for the next batch. Press Enter to start.")
	}
	return renderWaiting(width, "Press Enter to start a session.")
}

func renderEnded(width int, v session.View) string {
	var reason string
	switch v.EndReason {
	case session.EndTabSwitches:
		reason = "The session ended after too many window switches."
	case session.EndWarningDeclined, session.EndNavigation:
		reason = "The session ended because you left it."
	case session.EndLogout:
		reason = "You were signed out."
	default:
		reason = "Session ended."
	}

	var b strings.Builder
	b.WriteString(renderWaiting(width, reason))
	if sum := v.Summary; sum != nil {
		b.WriteString("\n\n")
		b.WriteString(layout.Center(lipgloss.NewStyle().Foreground(theme.TextDim), width,
			fmt.Sprintf("Batch %d: %d items, %d correct, accuracy %.0f%%",
				sum.BatchNumber, sum.Items, sum.Correct, sum.Accuracy*100)))
	}
	return b.String()
}

func renderWaiting(width int, text string) string {
	return "\n\n" + layout.Center(lipgloss.NewStyle().Foreground(theme.TextDim), width, text)
}

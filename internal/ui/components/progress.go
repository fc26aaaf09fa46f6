package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/flashdrill/internal/ui/theme"
)

// ProgressBar displays a horizontal progress bar.
type ProgressBar struct {
	Label   string
	Percent float64

	// Caption is printed after the bar, e.g. "3/6" or "0:25".
	Caption string
	Width   int

	// LowBelow switches to the warning fill when Percent drops under it.
	LowBelow float64
}

// NewProgressBar creates a new progress bar.
func NewProgressBar(label string, percent float64, caption string, width int) ProgressBar {
	return ProgressBar{
		Label:   label,
		Percent: percent,
		Caption: caption,
		Width:   width,
	}
}

// Countdown returns a bar for secs remaining out of total.
func Countdown(label string, secs, total, width int) ProgressBar {
	pct := 0.0
	if total > 0 {
		pct = float64(secs) / float64(total)
	}
	p := NewProgressBar(label, pct, fmt.Sprintf("%d:%02d", secs/60, secs%60), width)
	p.LowBelow = 0.25
	return p
}

// View renders the progress bar.
func (p ProgressBar) View() string {
	var result string

	if p.Label != "" {
		result += lipgloss.NewStyle().Foreground(theme.Text).Render(p.Label) + "  "
	}

	labelWidth := lipgloss.Width(result)
	captionWidth := 0
	if p.Caption != "" {
		captionWidth = len(p.Caption) + 2
	}

	barWidth := p.Width - labelWidth - captionWidth
	if barWidth < 4 {
		barWidth = 4
	}

	filled := int(float64(barWidth) * p.Percent)
	filled = max(0, min(filled, barWidth))
	empty := barWidth - filled

	fill := theme.ProgressFilled
	if p.LowBelow > 0 && p.Percent < p.LowBelow {
		fill = theme.ProgressLow
	}
	result += fill.Render(strings.Repeat(" ", filled)) +
		theme.ProgressEmpty.Render(strings.Repeat(" ", empty))

	if p.Caption != "" {
		result += lipgloss.NewStyle().
			Foreground(theme.TextDim).
			Render("  " + p.Caption)
	}

	return result
}

package welcome

import (
	"charm.land/lipgloss/v2"

	"github.com/abhisek/flashdrill/internal/ui/theme"
)

const bannerArt = `┏━╸╻  ┏━┓┏━┓╻ ╻╺┳┓┏━┓╻╻  ╻
┣╸ ┃  ┣━┫┗━┓┣━┫ ┃┃┣┳┛┃┃  ┃
╹  ┗━╸╹ ╹┗━┛╹ ╹╺┻┛╹┗╸╹┗━╸┗━╸`

const bannerCompact = "F L A S H D R I L L"

// RenderBanner returns the banner in the primary color, falling back to
// spaced letters below 32 columns.
func RenderBanner(width int) string {
	style := lipgloss.NewStyle().
		Foreground(theme.Primary).
		Bold(true)

	if width < 32 {
		return style.Render(bannerCompact)
	}
	return style.Render(bannerArt)
}

// Package welcome asks for a learner ID when none is configured and then
// hands off to the drill screen.
package welcome

import (
	"strings"
	"unicode"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/flashdrill/internal/router"
	"github.com/abhisek/flashdrill/internal/screen"
	"github.com/abhisek/flashdrill/internal/ui/components"
	"github.com/abhisek/flashdrill/internal/ui/layout"
	"github.com/abhisek/flashdrill/internal/ui/theme"
)

const maxIDLength = 64

// Factory builds the next screen for userID.
type Factory func(userID string) (screen.Screen, error)

// WelcomeScreen collects the learner ID.
type WelcomeScreen struct {
	next         Factory
	input        components.TextInput
	transitioned bool
}

var _ screen.Screen = (*WelcomeScreen)(nil)

// New creates a WelcomeScreen that replaces itself with next(userID).
func New(next Factory) *WelcomeScreen {
	input := components.NewTextInput("Learner ID", "e.g. alice@example.com", maxIDLength)
	input.Allow = validIDRune
	return &WelcomeScreen{next: next, input: input}
}

func validIDRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("-_.@", r)
}

func (w *WelcomeScreen) Title() string {
	return "Sign in"
}

func (w *WelcomeScreen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "Enter", Description: "Continue"},
		{Key: "Ctrl+C", Description: "Quit"},
	}
}

func (w *WelcomeScreen) Init() tea.Cmd {
	return w.input.Init()
}

func (w *WelcomeScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	if w.transitioned {
		return w, nil
	}
	if k, ok := msg.(tea.KeyPressMsg); ok && k.String() == "enter" {
		return w, w.submit()
	}

	var cmd tea.Cmd
	w.input, cmd = w.input.Update(msg)
	return w, cmd
}

func (w *WelcomeScreen) submit() tea.Cmd {
	id := w.input.Value()
	if id == "" {
		w.input.SetError("enter a learner ID")
		return nil
	}
	next, err := w.next(id)
	if err != nil {
		w.input.SetError(err.Error())
		return nil
	}
	w.transitioned = true
	return func() tea.Msg {
		return router.ReplaceScreenMsg{Screen: next}
	}
}

func (w *WelcomeScreen) View(width, height int) string {
	sections := []string{
		RenderBanner(width),
		"",
		lipgloss.NewStyle().Foreground(theme.Text).Bold(true).
			Render("Timed flashcards, one batch at a time."),
		"",
		w.input.View(),
		"",
		theme.Hint.Render("Your progress and cooldown are kept per learner."),
	}
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center,
		strings.Join(sections, "\n"))
}

package components

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/flashdrill/internal/ui/theme"
)

// Choice is one selectable option.
type Choice struct {
	Key   string
	Label string
}

// MultiChoice is a multiple-choice selector. It only tracks the cursor;
// the caller submits Current() when the learner confirms.
type MultiChoice struct {
	Question string
	Choices  []Choice
	Selected int
}

// NewMultiChoice creates a new multiple-choice component.
func NewMultiChoice(question string, choices []Choice) MultiChoice {
	return MultiChoice{
		Question: question,
		Choices:  choices,
	}
}

// Update moves the cursor on arrow and vi keys.
func (m MultiChoice) Update(msg tea.Msg) (MultiChoice, tea.Cmd) {
	kmsg, ok := msg.(tea.KeyPressMsg)
	if !ok {
		return m, nil
	}

	switch kmsg.String() {
	case "up", "k":
		if m.Selected > 0 {
			m.Selected--
		}
	case "down", "j":
		if m.Selected < len(m.Choices)-1 {
			m.Selected++
		}
	}
	return m, nil
}

// Current returns the choice under the cursor.
func (m MultiChoice) Current() (Choice, bool) {
	if m.Selected < 0 || m.Selected >= len(m.Choices) {
		return Choice{}, false
	}
	return m.Choices[m.Selected], true
}

// At returns the choice for a 1-based number key.
func (m MultiChoice) At(n int) (Choice, bool) {
	if n < 1 || n > len(m.Choices) {
		return Choice{}, false
	}
	return m.Choices[n-1], true
}

// View renders the question and its choices.
func (m MultiChoice) View() string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Foreground(theme.Text).Bold(true).Render(m.Question))
	b.WriteString("\n\n")

	for i, c := range m.Choices {
		prefix := "  "
		style := theme.Unselected
		if i == m.Selected {
			prefix = "> "
			style = theme.Selected
		}
		b.WriteString(style.Render(fmt.Sprintf("%s%d) %s", prefix, i+1, c.Label)))
		b.WriteString("\n")
	}
	return b.String()
}

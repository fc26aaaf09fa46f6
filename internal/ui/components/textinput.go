package components

import (
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/flashdrill/internal/ui/theme"
)

// TextInput wraps bubbles/textinput with a label and an inline error.
type TextInput struct {
	Label string
	Model textinput.Model

	// Allow filters typed runes; nil accepts everything.
	Allow func(r rune) bool

	err string
}

// NewTextInput creates a focused input limited to charLimit runes.
func NewTextInput(label, placeholder string, charLimit int) TextInput {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Prompt = "› "
	if charLimit > 0 {
		ti.CharLimit = charLimit
	}
	ti.Focus()
	return TextInput{Label: label, Model: ti}
}

// Init returns the cursor blink command.
func (t TextInput) Init() tea.Cmd {
	return t.Model.Focus()
}

// Update forwards msg to the underlying model. Typing clears the error.
func (t TextInput) Update(msg tea.Msg) (TextInput, tea.Cmd) {
	if k, ok := msg.(tea.KeyPressMsg); ok {
		if t.Allow != nil && k.Text != "" {
			for _, r := range k.Text {
				if !t.Allow(r) {
					return t, nil
				}
			}
		}
		t.err = ""
	}
	var cmd tea.Cmd
	t.Model, cmd = t.Model.Update(msg)
	return t, cmd
}

// Value returns the trimmed input.
func (t TextInput) Value() string {
	return strings.TrimSpace(t.Model.Value())
}

// SetError shows msg under the input until the next key press.
func (t *TextInput) SetError(msg string) {
	t.err = msg
}

// Err returns the current error text.
func (t TextInput) Err() string {
	return t.err
}

func (t TextInput) View() string {
	lines := []string{
		lipgloss.NewStyle().Foreground(theme.TextDim).Render(t.Label),
		t.Model.View(),
	}
	if t.err != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.Error).Render("✗ "+t.err))
	}
	return strings.Join(lines, "\n")
}

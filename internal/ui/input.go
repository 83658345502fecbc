package ui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrCancelled is returned when a prompt is dismissed with Esc or Ctrl+C.
var ErrCancelled = errors.New("cancelled")

type promptModel struct {
	input     textinput.Model
	label     string
	fallback  string
	required  bool
	missing   bool
	answered  bool
	cancelled bool
}

func newPromptModel(label, fallback string, required bool) promptModel {
	ti := textinput.New()
	ti.Placeholder = fallback
	ti.CharLimit = 256
	ti.Width = 48
	ti.Focus()
	return promptModel{input: ti, label: label, fallback: fallback, required: required}
}

// answer is the trimmed input, or the fallback when nothing was typed.
func (m promptModel) answer() string {
	if v := strings.TrimSpace(m.input.Value()); v != "" {
		return v
	}
	return m.fallback
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		case tea.KeyEnter:
			if m.required && m.answer() == "" {
				m.missing = true
				return m, nil
			}
			m.answered = true
			return m, tea.Quit
		}
		m.missing = false
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	switch {
	case m.answered:
		return ""
	case m.cancelled:
		return quitTextStyle.Render("Cancelled.") + "\n"
	}
	label := titleStyle.Render(m.label)
	if !m.required {
		label += " " + DimStyle.Render("(optional)")
	}
	view := fmt.Sprintf("\n%s\n%s\n", label, m.input.View())
	if m.missing {
		view += FailStyle.Render("A value is required.") + "\n"
	}
	return view
}

// Prompt asks for one line of text on stderr. An empty answer returns
// defaultValue; required prompts refuse to finish while both are empty.
func Prompt(label, defaultValue string, required bool) (string, error) {
	final, err := tea.NewProgram(newPromptModel(label, defaultValue, required), tea.WithOutput(os.Stderr)).Run()
	if err != nil {
		return "", err
	}
	m, ok := final.(promptModel)
	if !ok || !m.answered {
		return "", ErrCancelled
	}
	return m.answer(), nil
}

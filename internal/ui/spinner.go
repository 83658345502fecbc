package ui

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrInterrupted is returned when the user stops waiting with Ctrl+C.
var ErrInterrupted = errors.New("interrupted while waiting")

var waitSpinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

type doneMsg[T any] struct {
	value T
	err   error
}

// waitModel shows a label, the time spent waiting and a status line that is
// polled on every spinner tick.
type waitModel[T any] struct {
	spinner spinner.Model
	label   string
	status  func() string
	task    func() (T, error)
	since   time.Time
	now     time.Time

	value T
	err   error
	done  bool
}

func newWaitModel[T any](label string, status func() string, task func() (T, error)) waitModel[T] {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = waitSpinnerStyle
	now := time.Now()
	return waitModel[T]{
		spinner: s,
		label:   label,
		status:  status,
		task:    task,
		since:   now,
		now:     now,
	}
}

func (m waitModel[T]) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		v, err := m.task()
		return doneMsg[T]{value: v, err: err}
	})
}

func (m waitModel[T]) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.err = ErrInterrupted
			m.done = true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		m.now = msg.Time
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case doneMsg[T]:
		m.value, m.err, m.done = msg.value, msg.err, true
		return m, tea.Quit
	}
	return m, nil
}

func (m waitModel[T]) View() string {
	if m.done {
		return ""
	}
	line := fmt.Sprintf("%s %s %s", m.spinner.View(), m.label, DimStyle.Render(fmt.Sprintf("%ds", int(m.now.Sub(m.since).Seconds()))))
	if m.status != nil {
		if s := m.status(); s != "" {
			line += " " + DimStyle.Render("["+s+"]")
		}
	}
	return line + "\n"
}

// Wait runs task while rendering a spinner on stderr. status, when set, is
// shown next to the label and typically reports the state of whatever task
// is blocked on. Ctrl+C stops the wait with ErrInterrupted; task keeps
// running in the background.
func Wait[T any](label string, status func() string, task func() (T, error)) (T, error) {
	var zero T
	final, err := tea.NewProgram(newWaitModel(label, status, task), tea.WithOutput(os.Stderr)).Run()
	if err != nil {
		return zero, err
	}
	m, ok := final.(waitModel[T])
	if !ok {
		return zero, fmt.Errorf("unexpected model %T", final)
	}
	if m.err != nil {
		return zero, m.err
	}
	return m.value, nil
}

package ui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	quitTextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	// HeaderStyle renders table headers.
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	// OKStyle renders healthy values.
	OKStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	// WarnStyle renders values that need attention.
	WarnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	// FailStyle renders failures.
	FailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	// DimStyle renders secondary information.
	DimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorMauve).
			Background(colorSurface0).
			Padding(0, 1)

	contentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colorSurface1)

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSurface2).
			Padding(0, 1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(colorSubtext0)

	hintStyle = lipgloss.NewStyle().
			Foreground(colorOverlay0)

	errorTextStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorRed)
)

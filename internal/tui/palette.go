package tui

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha, the subset the console uses.
var (
	colorBase     = lipgloss.Color("#1e1e2e")
	colorSurface0 = lipgloss.Color("#313244")
	colorSurface1 = lipgloss.Color("#45475a")
	colorSurface2 = lipgloss.Color("#585b70")
	colorOverlay0 = lipgloss.Color("#6c7086")
	colorSubtext0 = lipgloss.Color("#a6adc8")
	colorSubtext1 = lipgloss.Color("#bac2de")
	colorText     = lipgloss.Color("#cdd6f4")

	colorLavender = lipgloss.Color("#b4befe")
	colorBlue     = lipgloss.Color("#89b4fa")
	colorSky      = lipgloss.Color("#89dceb")
	colorTeal     = lipgloss.Color("#94e2d5")
	colorGreen    = lipgloss.Color("#a6e3a1")
	colorYellow   = lipgloss.Color("#f9e2af")
	colorPeach    = lipgloss.Color("#fab387")
	colorRed      = lipgloss.Color("#f38ba8")
	colorMauve    = lipgloss.Color("#cba6f7")
)

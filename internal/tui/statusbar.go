package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// StatusBar is the single-line summary at the bottom of the console.
type StatusBar struct {
	device string
	width  int

	running bool
	err     error
	free    int
	slots   int
}

func NewStatusBar(device string) *StatusBar {
	return &StatusBar{device: device}
}

func (sb *StatusBar) SetWidth(width int)     { sb.width = width }
func (sb *StatusBar) SetRunning(running bool) { sb.running = running }
func (sb *StatusBar) SetError(err error)     { sb.err = err }

func (sb *StatusBar) SetRecords(free, slots int) {
	sb.free = free
	sb.slots = slots
}

// View renders the bar: mode, device, bridge state, send mode, record
// gauge and clock, padded to the full width.
func (sb *StatusBar) View(inputMode, sendMode, clock string) string {
	width := sb.width
	if width <= 0 {
		width = 80
	}

	var modeStyle lipgloss.Style
	if inputMode == "INSERT" {
		modeStyle = lipgloss.NewStyle().
			Foreground(colorBase).Background(colorGreen).Bold(true).Padding(0, 1)
	} else {
		modeStyle = lipgloss.NewStyle().
			Foreground(colorBase).Background(colorBlue).Bold(true).Padding(0, 1)
	}
	mode := modeStyle.Render(inputMode)

	device := lipgloss.NewStyle().
		Foreground(colorMauve).Bold(true).Padding(0, 1).Render(sb.device)

	var dot string
	switch {
	case sb.err != nil:
		dot = lipgloss.NewStyle().Foreground(colorRed).Render("✗")
	case sb.running:
		dot = lipgloss.NewStyle().Foreground(colorGreen).Render("●")
	default:
		dot = lipgloss.NewStyle().Foreground(colorYellow).Render("○")
	}

	divider := lipgloss.NewStyle().Foreground(colorSurface2).Padding(0, 1).Render("│")

	var sendInfo string
	if inputMode == "INSERT" {
		sendInfo = lipgloss.NewStyle().
			Foreground(colorPeach).Bold(true).Padding(0, 1).
			Render(fmt.Sprintf("[%s] Tab to toggle", sendMode))
	}

	gauge := lipgloss.NewStyle().
		Foreground(colorSubtext0).Padding(0, 1).
		Render(fmt.Sprintf("rec %d/%d", sb.free, sb.slots))

	clockSeg := lipgloss.NewStyle().
		Foreground(colorSubtext1).Padding(0, 1).Render(clock)

	var left string
	if sendInfo != "" {
		left = lipgloss.JoinHorizontal(lipgloss.Left, mode, device, dot, sendInfo, divider)
	} else {
		left = lipgloss.JoinHorizontal(lipgloss.Left, mode, device, dot, divider)
	}
	right := lipgloss.JoinHorizontal(lipgloss.Left, gauge, divider, clockSeg)

	spacerWidth := width - lipgloss.Width(left) - lipgloss.Width(right)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	bar := lipgloss.NewStyle().
		Foreground(colorText).Background(colorSurface0).Width(width)
	return bar.Render(lipgloss.JoinHorizontal(lipgloss.Left, left, spacer, right))
}

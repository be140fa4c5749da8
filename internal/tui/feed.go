package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sermux/sermux"
)

// Feed is the scrolling activity view: every tap event the bridge emits,
// newest at the bottom.
type Feed struct {
	viewport  viewport.Model
	formatter *Formatter
	lines     []string
}

func NewFeed(width, height int) *Feed {
	return &Feed{
		viewport:  viewport.New(width, height),
		formatter: NewFormatter(false, true),
	}
}

func (f *Feed) SetSize(width, height int) {
	f.viewport.Width = width
	f.viewport.Height = height
}

func (f *Feed) AddEvent(ev sermux.TapEvent) {
	f.lines = append(f.lines, f.formatter.FormatEvent(ev))
	f.viewport.SetContent(strings.Join(f.lines, "\n"))
	f.viewport.GotoBottom()
}

// AddLine appends an unformatted notice, used for local errors like a bad
// hex payload.
func (f *Feed) AddLine(line string) {
	f.lines = append(f.lines, line)
	f.viewport.SetContent(strings.Join(f.lines, "\n"))
	f.viewport.GotoBottom()
}

// Refresh re-renders the whole feed from raw events after a display mode
// toggle.
func (f *Feed) Refresh(events []sermux.TapEvent) {
	f.lines = make([]string, len(events))
	for i, ev := range events {
		f.lines[i] = f.formatter.FormatEvent(ev)
	}
	f.viewport.SetContent(strings.Join(f.lines, "\n"))
	f.viewport.GotoBottom()
}

func (f *Feed) Clear() {
	f.lines = nil
	f.viewport.SetContent("")
}

func (f *Feed) ToggleHex()   { f.formatter.ToggleHex() }
func (f *Feed) ToggleASCII() { f.formatter.ToggleASCII() }

func (f *Feed) Update(msg tea.Msg) tea.Cmd {
	// Keys never reach the viewport; they belong to the console's modes.
	switch msg.(type) {
	case tea.WindowSizeMsg:
		var cmd tea.Cmd
		f.viewport, cmd = f.viewport.Update(msg)
		return cmd
	default:
		return nil
	}
}

func (f *Feed) View() string {
	return f.viewport.View()
}

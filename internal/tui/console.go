// Package tui is the interactive console: a full-screen view of bridge
// activity with a send field that plays the role of the attached serial
// device. The command feeds it tap events through a Relay; nothing here
// touches the bridge directly except through the injected callbacks.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sermux/sermux"
)

// maxFeedEvents bounds the retained feed history.
const maxFeedEvents = 1000

// InputMode is the console's vim-like mode.
type InputMode int

const (
	InputModeNormal InputMode = iota
	InputModeInsert
)

func (m InputMode) String() string {
	if m == InputModeInsert {
		return "INSERT"
	}
	return "NORMAL"
}

// TapMsg delivers one bridge tap event to the UI loop.
type TapMsg sermux.TapEvent

// StatusMsg reports bridge lifecycle changes.
type StatusMsg struct {
	Running bool
	Err     error
}

type tickMsg time.Time

// Console is the bubbletea model for the sermux console.
type Console struct {
	feed      *Feed
	sessions  *SessionPanel
	statusBar *StatusBar
	input     *Input
	help      help.Model
	keys      ConsoleKeys

	mode  InputMode
	ready bool
	raw   []sermux.TapEvent

	send  func([]byte) error
	stats func() ([]sermux.SessionInfo, int)
	slots int
}

// NewConsole builds the console. send injects bytes into the serial side;
// stats snapshots the session registry and the free record count.
func NewConsole(device string, maxSessions, slots int, send func([]byte) error, stats func() ([]sermux.SessionInfo, int)) *Console {
	return &Console{
		feed:      NewFeed(0, 0),
		sessions:  NewSessionPanel(maxSessions),
		statusBar: NewStatusBar(device),
		input:     NewInput(),
		help:      help.New(),
		keys:      NewConsoleKeys(),
		send:      send,
		stats:     stats,
		slots:     slots,
	}
}

func (m *Console) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Console) refreshStats() {
	if m.stats == nil {
		return
	}
	infos, free := m.stats()
	m.sessions.SetSessions(infos)
	m.statusBar.SetRecords(free, m.slots)
}

func (m *Console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		inputHeight := 3
		statusBarHeight := 1
		borderHeight := 1
		feedHeight := msg.Height - inputHeight - statusBarHeight - borderHeight - m.sessions.Height()
		if feedHeight < 3 {
			feedHeight = 3
		}
		m.feed.SetSize(msg.Width, feedHeight)
		m.sessions.SetWidth(msg.Width)
		m.input.SetWidth(msg.Width)
		m.statusBar.SetWidth(msg.Width)
		m.ready = true

	case TapMsg:
		ev := sermux.TapEvent(msg)
		m.raw = append(m.raw, ev)
		if len(m.raw) > maxFeedEvents+200 {
			m.raw = append([]sermux.TapEvent(nil), m.raw[len(m.raw)-maxFeedEvents:]...)
			m.feed.Refresh(m.raw)
		} else {
			m.feed.AddEvent(ev)
		}
		if ev.Kind == sermux.TapSessionUp || ev.Kind == sermux.TapSessionDown {
			m.refreshStats()
		}

	case StatusMsg:
		m.statusBar.SetRunning(msg.Running)
		m.statusBar.SetError(msg.Err)

	case tickMsg:
		m.refreshStats()
		cmds = append(cmds, tickCmd())

	case tea.KeyMsg:
		if m.mode == InputModeInsert {
			switch {
			case msg.String() == "ctrl+c":
				return m, tea.Quit
			case key.Matches(msg, m.keys.Escape):
				m.mode = InputModeNormal
				m.input.Blur()
				return m, tea.Batch(cmds...)
			case key.Matches(msg, m.keys.Enter):
				m.submit()
				return m, tea.Batch(cmds...)
			case key.Matches(msg, m.keys.Up):
				m.input.NavigateHistoryUp()
				return m, tea.Batch(cmds...)
			case key.Matches(msg, m.keys.Down):
				m.input.NavigateHistoryDown()
				return m, tea.Batch(cmds...)
			case key.Matches(msg, m.keys.ToggleSend):
				m.input.ToggleSendMode()
				return m, tea.Batch(cmds...)
			}
		} else {
			switch {
			case key.Matches(msg, m.keys.Quit):
				return m, tea.Quit
			case key.Matches(msg, m.keys.InsertMode):
				m.mode = InputModeInsert
				m.input.Focus()
				return m, tea.Batch(cmds...)
			case key.Matches(msg, m.keys.Clear):
				m.raw = nil
				m.feed.Clear()
			case key.Matches(msg, m.keys.Help):
				m.help.ShowAll = !m.help.ShowAll
			case key.Matches(msg, m.keys.ToggleHex):
				m.feed.ToggleHex()
				m.feed.Refresh(m.raw)
			case key.Matches(msg, m.keys.ToggleASCII):
				m.feed.ToggleASCII()
				m.feed.Refresh(m.raw)
			case key.Matches(msg, m.keys.ToggleSend):
				m.input.ToggleSendMode()
			}
		}
	}

	if m.mode == InputModeInsert {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	if _, ok := msg.(tea.WindowSizeMsg); ok {
		cmds = append(cmds, m.feed.Update(msg))
	}

	return m, tea.Batch(cmds...)
}

// submit sends the input field's payload to the serial side and reports
// failures inline in the feed.
func (m *Console) submit() {
	value := m.input.Value()
	if value == "" || m.send == nil {
		return
	}
	payload, err := m.input.Payload()
	if err != nil {
		m.feed.AddLine(errorTextStyle.Render("input error: " + err.Error()))
		return
	}
	if err := m.send(payload); err != nil {
		m.feed.AddLine(errorTextStyle.Render("send error: " + err.Error()))
		return
	}
	m.input.AddToHistory(value)
	m.input.SetValue("")
}

func (m *Console) View() string {
	var content string
	if m.ready {
		content = m.feed.View()
	} else {
		content = "Initializing..."
	}

	sections := []string{
		contentBorderStyle.Render(content),
		m.sessions.View(),
		m.input.ViewWithMode(m.mode == InputModeInsert),
	}
	if m.help.ShowAll {
		sections = append(sections, m.help.View(m.keys))
	}
	sections = append(sections, m.statusBar.View(
		m.mode.String(),
		m.input.Mode().String(),
		time.Now().Format("15:04:05"),
	))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

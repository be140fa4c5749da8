package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/sermux/sermux"
)

// sessionRows is the number of visible table rows. The panel keeps a
// fixed height so the feed gets everything that is left.
const sessionRows = 5

// SessionPanel shows the live session registry as a table.
type SessionPanel struct {
	table table.Model
	count int
	limit int
}

func NewSessionPanel(limit int) *SessionPanel {
	t := table.New(
		table.WithColumns(sessionColumns(80)),
		table.WithHeight(sessionRows),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorSurface1).
		BorderBottom(true).
		Bold(true).
		Foreground(colorLavender)
	s.Selected = s.Selected.
		Foreground(colorText).
		Background(colorSurface0)
	t.SetStyles(s)

	return &SessionPanel{table: t, limit: limit}
}

func sessionColumns(width int) []table.Column {
	// Peer handles get the slack; the rest are fixed.
	peerWidth := width - (6 + 14 + 9 + 13 + 13) - 4
	if peerWidth < 12 {
		peerWidth = 12
	}
	return []table.Column{
		{Title: "ADDR", Width: 6},
		{Title: "NAME", Width: 14},
		{Title: "PEER", Width: peerWidth},
		{Title: "UP", Width: 9},
		{Title: "TX", Width: 13},
		{Title: "RX", Width: 13},
	}
}

// Height is the panel's total line count including title and header.
func (sp *SessionPanel) Height() int { return sessionRows + 2 }

func (sp *SessionPanel) SetWidth(width int) {
	sp.table.SetColumns(sessionColumns(width))
	sp.table.SetWidth(width)
}

// SetSessions replaces the table contents with a registry snapshot.
func (sp *SessionPanel) SetSessions(infos []sermux.SessionInfo) {
	rows := make([]table.Row, len(infos))
	for i, info := range infos {
		rows[i] = table.Row{
			fmt.Sprintf("%02d", info.Index),
			displayName(info.Name),
			info.Addr,
			formatUptime(time.Since(info.Since)),
			fmt.Sprintf("%d·%dB", info.TxRecords, info.TxBytes),
			fmt.Sprintf("%d·%dB", info.RxRecords, info.RxBytes),
		}
	}
	sp.count = len(infos)
	sp.table.SetRows(rows)
}

func (sp *SessionPanel) View() string {
	title := titleStyle.Render(fmt.Sprintf("SESSIONS %d/%d", sp.count, sp.limit))
	return lipgloss.JoinVertical(lipgloss.Left, title, sp.table.View())
}

func displayName(name string) string {
	if name == "" {
		return "-"
	}
	return name
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Hour {
		return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}

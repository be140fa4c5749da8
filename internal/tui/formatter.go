package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sermux/sermux"
)

// DisplayMode selects how record payloads are rendered in the feed.
type DisplayMode struct {
	ShowHex   bool
	ShowASCII bool
}

// Formatter turns tap events into feed lines.
type Formatter struct {
	mode DisplayMode
}

func NewFormatter(showHex, showASCII bool) *Formatter {
	return &Formatter{mode: DisplayMode{ShowHex: showHex, ShowASCII: showASCII}}
}

func (f *Formatter) Mode() DisplayMode { return f.mode }
func (f *Formatter) ToggleHex()        { f.mode.ShowHex = !f.mode.ShowHex }
func (f *Formatter) ToggleASCII()      { f.mode.ShowASCII = !f.mode.ShowASCII }

// FormatEvent renders one tap event. Session lifecycle events carry peer
// identity instead of payload bytes.
func (f *Formatter) FormatEvent(ev sermux.TapEvent) string {
	timestamp := timestampStyle.Render(
		fmt.Sprintf("[%s]", ev.At.Format("15:04:05.000")))

	switch ev.Kind {
	case sermux.TapSessionUp:
		ind := lipgloss.NewStyle().Foreground(colorGreen).Bold(true).Render("● UP")
		return fmt.Sprintf("%s %s: addr %02d  %s", timestamp, ind, ev.Addr, ev.Peer)
	case sermux.TapSessionDown:
		ind := lipgloss.NewStyle().Foreground(colorRed).Bold(true).Render("○ DOWN")
		line := fmt.Sprintf("%s %s: addr %02d  %s", timestamp, ind, ev.Addr, ev.Peer)
		if ev.Err != nil {
			line += "  " + errorTextStyle.Render(ev.Err.Error())
		}
		return line
	}

	var indicator string
	switch ev.Kind {
	case sermux.TapSerialRecord:
		indicator = lipgloss.NewStyle().Foreground(colorSky).Bold(true).Render("↙ SER")
	case sermux.TapSerialOut:
		indicator = lipgloss.NewStyle().Foreground(colorPeach).Bold(true).Render("↗ SER")
	case sermux.TapPeerData:
		indicator = lipgloss.NewStyle().Foreground(colorTeal).Bold(true).
			Render(fmt.Sprintf("↙ %s", addrLabel(ev.Addr)))
	case sermux.TapDeliver:
		indicator = lipgloss.NewStyle().Foreground(colorGreen).Bold(true).
			Render(fmt.Sprintf("↗ %s", addrLabel(ev.Addr)))
	default:
		indicator = lipgloss.NewStyle().Foreground(colorSubtext1).Render(ev.Kind.String())
	}

	var parts []string
	if f.mode.ShowHex {
		parts = append(parts, "HEX: "+hexPreview(ev.Data))
	}
	if f.mode.ShowASCII {
		parts = append(parts, "ASCII: "+asciiPreview(ev.Data))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("BYTES: %d", len(ev.Data)))
	}

	return fmt.Sprintf("%s %s: %s", timestamp, indicator, strings.Join(parts, "  "))
}

func addrLabel(addr int) string {
	if addr < 0 {
		return "P??"
	}
	return fmt.Sprintf("P%02d", addr)
}

func hexPreview(data []byte) string {
	return fmt.Sprintf("% X", data)
}

// asciiPreview replaces non-printable bytes with dots so control bytes
// never leak terminal sequences into the feed.
func asciiPreview(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

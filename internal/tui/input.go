package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SendMode selects how typed input becomes serial bytes.
type SendMode int

const (
	// SendModeASCII sends the text with a CR terminator, the way an
	// attached device ends its records.
	SendModeASCII SendMode = iota
	// SendModeHex sends raw bytes parsed from hex digits.
	SendModeHex
)

func (s SendMode) String() string {
	switch s {
	case SendModeHex:
		return "HEX"
	default:
		return "ASCII"
	}
}

// Input is the send field: a one-line editor with history and an
// ASCII/hex mode toggle.
type Input struct {
	textInput textinput.Model
	sendMode  SendMode

	history      []string
	historyIndex int
	currentInput string

	width int
}

func NewInput() *Input {
	ti := textinput.New()
	ti.Placeholder = "Type a record and press Enter..."
	ti.CharLimit = 256
	ti.Prompt = ""
	return &Input{
		textInput:    ti,
		historyIndex: -1,
	}
}

func (i *Input) SetWidth(width int) {
	i.width = width
	usable := width - 6
	if usable < 20 {
		usable = 20
	}
	i.textInput.Width = usable
}

func (i *Input) Focus()          { i.textInput.Focus() }
func (i *Input) Blur()           { i.textInput.Blur() }
func (i *Input) Value() string   { return i.textInput.Value() }
func (i *Input) SetValue(v string) { i.textInput.SetValue(v) }
func (i *Input) Mode() SendMode  { return i.sendMode }

func (i *Input) ToggleSendMode() {
	switch i.sendMode {
	case SendModeASCII:
		i.sendMode = SendModeHex
		i.textInput.Placeholder = "Enter hex (e.g. 2A30 30 68 69 0D)..."
	case SendModeHex:
		i.sendMode = SendModeASCII
		i.textInput.Placeholder = "Type a record and press Enter..."
	}
}

// Payload converts the current value into the bytes to feed the serial
// side. ASCII mode appends the CR terminator; hex mode sends the parsed
// bytes untouched.
func (i *Input) Payload() ([]byte, error) {
	value := i.Value()
	switch i.sendMode {
	case SendModeHex:
		return parseHexInput(value)
	default:
		if value == "" {
			return nil, fmt.Errorf("empty input")
		}
		return []byte(value + "\r"), nil
	}
}

func (i *Input) Update(msg tea.Msg) (*Input, tea.Cmd) {
	var cmd tea.Cmd
	i.textInput, cmd = i.textInput.Update(msg)
	return i, cmd
}

func (i *Input) ViewWithMode(isInsertMode bool) string {
	var promptStyle lipgloss.Style
	var promptSymbol string
	if i.sendMode == SendModeHex {
		promptSymbol = "#"
		promptStyle = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	} else {
		promptSymbol = ">"
		promptStyle = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	}
	prompt := promptStyle.Render(promptSymbol)

	var content string
	if isInsertMode {
		content = lipgloss.JoinHorizontal(lipgloss.Left, prompt, " ", i.textInput.View())
	} else {
		hint := hintStyle.Render("Press 'i' to enter insert mode")
		content = lipgloss.JoinHorizontal(lipgloss.Left, prompt, " ", hint)
	}

	adjustedWidth := i.width - 4
	if adjustedWidth < 10 {
		adjustedWidth = 10
	}
	style := inputStyle.Width(adjustedWidth).AlignHorizontal(lipgloss.Left)
	if isInsertMode {
		style = style.BorderForeground(colorGreen)
	}
	return style.Render(content)
}

// AddToHistory records a sent value, skipping blanks and immediate
// repeats. History is capped at 100 entries.
func (i *Input) AddToHistory(value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if len(i.history) > 0 && i.history[len(i.history)-1] == value {
		return
	}
	i.history = append(i.history, value)
	if len(i.history) > 100 {
		i.history = i.history[1:]
	}
	i.historyIndex = -1
	i.currentInput = ""
}

func (i *Input) NavigateHistoryUp() {
	if len(i.history) == 0 {
		return
	}
	if i.historyIndex == -1 {
		i.currentInput = i.textInput.Value()
		i.historyIndex = len(i.history) - 1
	} else if i.historyIndex > 0 {
		i.historyIndex--
	}
	i.textInput.SetValue(i.history[i.historyIndex])
}

func (i *Input) NavigateHistoryDown() {
	if len(i.history) == 0 || i.historyIndex == -1 {
		return
	}
	if i.historyIndex < len(i.history)-1 {
		i.historyIndex++
		i.textInput.SetValue(i.history[i.historyIndex])
	} else {
		i.historyIndex = -1
		i.textInput.SetValue(i.currentInput)
		i.currentInput = ""
	}
}

// parseHexInput converts hex digits to bytes. Spaces are ignored, so both
// "2A3030" and "2A 30 30" work.
func parseHexInput(hexStr string) ([]byte, error) {
	cleanHex := strings.ReplaceAll(strings.TrimSpace(hexStr), " ", "")
	if len(cleanHex) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	for _, char := range cleanHex {
		if !((char >= '0' && char <= '9') || (char >= 'A' && char <= 'F') || (char >= 'a' && char <= 'f')) {
			return nil, fmt.Errorf("invalid hex character %q", char)
		}
	}
	if len(cleanHex)%2 != 0 {
		return nil, fmt.Errorf("hex string must have an even number of digits (got %d)", len(cleanHex))
	}
	out := make([]byte, 0, len(cleanHex)/2)
	for pos := 0; pos < len(cleanHex); pos += 2 {
		b, err := strconv.ParseUint(cleanHex[pos:pos+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %v", cleanHex[pos:pos+2], err)
		}
		out = append(out, byte(b))
	}
	return out, nil
}

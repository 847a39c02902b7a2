package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// The TUI is modal the way tmux is: a prefix key arms one command
// keypress, everything else streams to the selected pane.
type keyMap struct {
	Prefix key.Binding

	SplitH  key.Binding
	SplitV  key.Binding
	ClosePn key.Binding
	Next    key.Binding
	Launch  key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Prefix: key.NewBinding(key.WithKeys("ctrl+a"), key.WithHelp("ctrl+a", "prefix")),

		SplitH:  key.NewBinding(key.WithKeys("h", "%"), key.WithHelp("h", "split horizontal")),
		SplitV:  key.NewBinding(key.WithKeys("v", "\""), key.WithHelp("v", "split vertical")),
		ClosePn: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "close pane")),
		Next:    key.NewBinding(key.WithKeys("o", "tab"), key.WithHelp("o", "next pane")),
		Launch:  key.NewBinding(key.WithKeys("b", "enter"), key.WithHelp("b", "launch shell")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh layout")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// keyToBytes converts a key press into the raw bytes a terminal would
// send, for forwarding to the pane's process.
func keyToBytes(msg tea.KeyMsg) []byte {
	if msg.Type == tea.KeyRunes && len(msg.Runes) > 0 {
		if msg.Alt {
			return append([]byte{0x1b}, []byte(string(msg.Runes))...)
		}
		return []byte(string(msg.Runes))
	}
	switch msg.Type {
	case tea.KeySpace:
		return []byte(" ")
	case tea.KeyEnter:
		return []byte("\r")
	case tea.KeyBackspace:
		return []byte{0x7f}
	case tea.KeyTab:
		return []byte("\t")
	case tea.KeyEsc:
		return []byte{0x1b}
	case tea.KeyCtrlC:
		return []byte{0x03}
	case tea.KeyCtrlD:
		return []byte{0x04}
	case tea.KeyCtrlZ:
		return []byte{0x1a}
	case tea.KeyCtrlL:
		return []byte{0x0c}
	case tea.KeyCtrlU:
		return []byte{0x15}
	case tea.KeyCtrlR:
		return []byte{0x12}
	}
	switch msg.String() {
	case "up":
		return []byte("\x1b[A")
	case "down":
		return []byte("\x1b[B")
	case "right":
		return []byte("\x1b[C")
	case "left":
		return []byte("\x1b[D")
	case "home":
		return []byte("\x1b[H")
	case "end":
		return []byte("\x1b[F")
	case "pgup":
		return []byte("\x1b[5~")
	case "pgdown":
		return []byte("\x1b[6~")
	case "delete":
		return []byte("\x1b[3~")
	}
	return nil
}

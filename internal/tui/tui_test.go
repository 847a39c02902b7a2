package tui

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestKeyToBytes(t *testing.T) {
	cases := []struct {
		name string
		msg  tea.KeyMsg
		want []byte
	}{
		{"rune", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}}, []byte("a")},
		{"alt rune", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'b'}, Alt: true}, []byte{0x1b, 'b'}},
		{"enter", tea.KeyMsg{Type: tea.KeyEnter}, []byte("\r")},
		{"up arrow", tea.KeyMsg{Type: tea.KeyUp}, []byte{0x1b, '[', 'A'}},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}, []byte{0x03}},
		{"backspace", tea.KeyMsg{Type: tea.KeyBackspace}, []byte{0x7f}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := keyToBytes(tc.msg)
			if !bytes.Equal(got, tc.want) {
				t.Fatalf("keyToBytes(%v) = %v, want %v", tc.msg, got, tc.want)
			}
		})
	}
}

func TestSurfaceTailLines(t *testing.T) {
	s := &paneSurface{}
	s.WriteOutput([]byte("one\r\ntwo\r\nthree\r\nfour"))

	got := s.tailLines(2)
	want := []string{"three", "four"}
	if len(got) != len(want) {
		t.Fatalf("tailLines(2) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tailLines(2)[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSurfaceClearAndError(t *testing.T) {
	s := &paneSurface{}
	s.WriteOutput([]byte("stale"))
	s.Clear()
	if lines := s.tailLines(10); len(lines) != 0 {
		t.Fatalf("expected empty surface after Clear, got %v", lines)
	}

	s.SetError("process exited")
	if got := s.errText(); got != "process exited" {
		t.Fatalf("errText() = %q, want %q", got, "process exited")
	}
}

func TestSurfaceCapsContent(t *testing.T) {
	s := &paneSurface{}
	chunk := bytes.Repeat([]byte("x"), 64*1024)
	for i := 0; i < 4; i++ {
		s.WriteOutput(chunk)
	}
	s.WriteOutput([]byte("tail-marker"))

	lines := s.tailLines(1)
	if len(lines) != 1 || !strings.HasSuffix(lines[0], "tail-marker") {
		t.Fatalf("expected capped content ending in marker, got %d lines", len(lines))
	}
}

func TestRegistryRekey(t *testing.T) {
	r := NewRegistry()
	r.Surface("pane-a").WriteOutput([]byte("hello"))

	r.rekey("pane-a", "pane-b")
	if got := r.get("pane-b").tailLines(1); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("expected surface content to follow rekey, got %v", got)
	}
	if got := r.get("pane-a").tailLines(1); len(got) != 0 {
		t.Fatalf("expected fresh surface under old key, got %v", got)
	}
}

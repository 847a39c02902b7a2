package tui

import (
	"strings"
	"sync"
)

// surfaceCap bounds how much pane text the view retains. The backend
// already bounds its history; this only protects the render path.
const surfaceCap = 128 * 1024

// paneSurface is the byte sink for one pane. Channels write to it from
// their own goroutines; the view reads it on every frame.
type paneSurface struct {
	mu       sync.Mutex
	content  []byte
	errMsg   string
	released bool
}

func (s *paneSurface) WriteOutput(data []byte) {
	if s == nil || len(data) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.content = append(s.content, data...)
	if len(s.content) > surfaceCap {
		trimmed := make([]byte, surfaceCap)
		copy(trimmed, s.content[len(s.content)-surfaceCap:])
		s.content = trimmed
	}
}

func (s *paneSurface) Clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = nil
}

func (s *paneSurface) SetError(msg string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = msg
}

func (s *paneSurface) Release() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.content = nil
}

// tailLines returns the last count lines of the pane text.
func (s *paneSurface) tailLines(count int) []string {
	if s == nil || count <= 0 {
		return nil
	}
	s.mu.Lock()
	text := string(s.content)
	s.mu.Unlock()
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) > count {
		lines = lines[len(lines)-count:]
	}
	return lines
}

func (s *paneSurface) errText() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

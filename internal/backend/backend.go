// Package backend defines the multiplexer backend contract. The backend
// is the source of truth for session layouts and remote terminal
// processes; everything above it receives an implementation by injection
// and never reaches one ambiently.
package backend

import (
	"context"
	"errors"

	"github.com/muxpane/muxpane/internal/layout"
)

// ErrNotFound reports a missing session layout. Callers branch on it to
// tell "does not exist yet" apart from transport failure.
var ErrNotFound = errors.New("backend: not found")

// Layout is the authoritative server-side split tree for one session.
// Node ids are backend-issued and must be treated as the only stable
// identity across refreshes.
type Layout struct {
	SessionID string
	Nodes     []layout.NodeSpec
}

// Dimensions is a confirmed terminal size in character cells.
type Dimensions struct {
	Cols int
	Rows int
}

// Backend is the transport-agnostic multiplexer surface. Every call may
// suspend; none carries an implicit timeout.
type Backend interface {
	// FetchLayout returns the layout for a session, or ErrNotFound.
	FetchLayout(ctx context.Context, sessionID string) (Layout, error)
	// CreateLayout creates and returns a fresh single-leaf layout.
	CreateLayout(ctx context.Context, sessionID string) (Layout, error)
	// SplitPane splits a leaf and returns the two new leaf ids.
	SplitPane(ctx context.Context, sessionID, leafID string, horizontal bool, ratio int) (first, second string, err error)
	// ClosePane removes a leaf from the session layout.
	ClosePane(ctx context.Context, sessionID, leafID string) error

	// CreateProcess starts a terminal process and returns its handle.
	CreateProcess(ctx context.Context, command string) (string, error)
	// SendInput forwards raw bytes to a process. Fire and forget.
	SendInput(ctx context.Context, processID string, data []byte) error
	// PollOutput returns the full captured output buffer, bounded to the
	// backend's history limit. Never a delta.
	PollOutput(ctx context.Context, processID string) (string, error)
	// ResizeProcess propagates a confirmed terminal size.
	ResizeProcess(ctx context.Context, processID string, cols, rows int) error
	// TerminateProcess requests process termination. Best effort.
	TerminateProcess(ctx context.Context, processID string) error
}

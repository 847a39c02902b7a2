// Package localmux is an in-process multiplexer backend: pty-backed
// shells with bounded output capture, and session layouts persisted in
// SQLite. It lets the client run standalone, with the same contract a
// remote multiplexer host would honor.
package localmux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/muxpane/muxpane/internal/backend"
	"github.com/muxpane/muxpane/internal/layout"
)

// Options tunes the local backend.
type Options struct {
	// HistoryBytes bounds each process's retained output.
	HistoryBytes int
	Logger       *slog.Logger
}

// Server implements backend.Backend against local ptys and a SQLite
// layout store.
type Server struct {
	store *Store
	opts  Options

	mu    sync.Mutex
	procs map[string]*process
}

var _ backend.Backend = (*Server)(nil)

// NewServer wraps a layout store in a local backend.
func NewServer(store *Store, opts Options) (*Server, error) {
	if store == nil {
		return nil, errors.New("localmux: store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{store: store, opts: opts, procs: make(map[string]*process)}, nil
}

// Close terminates every process and closes the store.
func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	procs := make([]*process, 0, len(s.procs))
	for id, p := range s.procs {
		procs = append(procs, p)
		delete(s.procs, id)
	}
	s.mu.Unlock()
	for _, p := range procs {
		p.terminate()
	}
	return s.store.Close()
}

func (s *Server) FetchLayout(ctx context.Context, sessionID string) (backend.Layout, error) {
	nodes, err := s.store.LoadLayout(ctx, sessionID)
	if errors.Is(err, ErrNoLayout) {
		return backend.Layout{}, backend.ErrNotFound
	}
	if err != nil {
		return backend.Layout{}, err
	}
	return backend.Layout{SessionID: sessionID, Nodes: nodes}, nil
}

func (s *Server) CreateLayout(ctx context.Context, sessionID string) (backend.Layout, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return backend.Layout{}, errors.New("localmux: session id is required")
	}
	tree := layout.NewTree(uuid.NewString())
	nodes := tree.Snapshot()
	if err := s.store.SaveLayout(ctx, sessionID, nodes); err != nil {
		return backend.Layout{}, err
	}
	return backend.Layout{SessionID: sessionID, Nodes: nodes}, nil
}

func (s *Server) SplitPane(ctx context.Context, sessionID, leafID string, horizontal bool, ratio int) (string, string, error) {
	tree, err := s.loadTree(ctx, sessionID)
	if err != nil {
		return "", "", err
	}
	first, second := uuid.NewString(), uuid.NewString()
	if err := tree.SplitAs(leafID, horizontal, ratio, first, second); err != nil {
		return "", "", err
	}
	if err := s.store.SaveLayout(ctx, sessionID, tree.Snapshot()); err != nil {
		return "", "", err
	}
	return first, second, nil
}

func (s *Server) ClosePane(ctx context.Context, sessionID, leafID string) error {
	tree, err := s.loadTree(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, err := tree.Close(leafID); err != nil {
		return err
	}
	return s.store.SaveLayout(ctx, sessionID, tree.Snapshot())
}

// BindPane persists a pane-process binding so FetchLayout can report it
// back after a reconnect.
func (s *Server) BindPane(ctx context.Context, sessionID, leafID, processID string) error {
	tree, err := s.loadTree(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := tree.Bind(leafID, processID); err != nil {
		return err
	}
	return s.store.SaveLayout(ctx, sessionID, tree.Snapshot())
}

func (s *Server) loadTree(ctx context.Context, sessionID string) (*layout.Tree, error) {
	nodes, err := s.store.LoadLayout(ctx, sessionID)
	if errors.Is(err, ErrNoLayout) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return layout.Rebuild(nodes)
}

func (s *Server) CreateProcess(_ context.Context, command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", errors.New("localmux: command is required")
	}
	id := uuid.NewString()
	p, err := spawnProcess(id, command, s.opts.HistoryBytes, 0, 0)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.procs[id] = p
	s.mu.Unlock()
	s.opts.Logger.Debug("process started", "process", id, "command", command)
	return id, nil
}

func (s *Server) SendInput(_ context.Context, processID string, data []byte) error {
	p, err := s.proc(processID)
	if err != nil {
		return err
	}
	return p.write(data)
}

func (s *Server) PollOutput(_ context.Context, processID string) (string, error) {
	p, err := s.proc(processID)
	if err != nil {
		return "", err
	}
	return p.ring.snapshot(), nil
}

func (s *Server) ResizeProcess(_ context.Context, processID string, cols, rows int) error {
	p, err := s.proc(processID)
	if err != nil {
		return err
	}
	return p.resize(cols, rows)
}

func (s *Server) TerminateProcess(_ context.Context, processID string) error {
	s.mu.Lock()
	p := s.procs[processID]
	delete(s.procs, processID)
	s.mu.Unlock()
	if p == nil {
		return fmt.Errorf("localmux: process %q not found", processID)
	}
	p.terminate()
	s.opts.Logger.Debug("process terminated", "process", processID)
	return nil
}

func (s *Server) proc(processID string) (*process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.procs[processID]
	if p == nil {
		return nil, fmt.Errorf("localmux: process %q not found", processID)
	}
	return p, nil
}

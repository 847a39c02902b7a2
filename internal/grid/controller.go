// Package grid orchestrates one session's layout tree and the I/O
// channels bound to its panes.
package grid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/muxpane/muxpane/internal/backend"
	"github.com/muxpane/muxpane/internal/channel"
	"github.com/muxpane/muxpane/internal/layout"
)

// SplitRatio is the fixed ratio used for user-driven splits.
const SplitRatio = 50

// SurfaceFactory builds the rendering sink for a pane.
type SurfaceFactory func(leafID string) channel.Surface

// Binder is an optional backend extension for persisting pane-process
// bindings, so a later FetchLayout can report them.
type Binder interface {
	BindPane(ctx context.Context, sessionID, leafID, processID string) error
}

// Options configures a controller.
type Options struct {
	// Command is the shell command started in newly bound panes.
	Command string
	Channel channel.Options
	Logger  *slog.Logger
}

// PaneView is one leaf pane as the renderer sees it.
type PaneView struct {
	ID       string
	Bounds   layout.Rect
	Bound    bool
	Selected bool
	State    channel.State
}

// Controller owns one session's layout tree, its channels, and the
// selection. Methods are not safe for concurrent use; the owner calls
// them from a single event loop.
type Controller struct {
	backend   backend.Backend
	sessionID string
	surfaces  SurfaceFactory
	opts      Options

	tree     *layout.Tree
	channels map[string]*channel.Channel
	selected string
}

// New creates a controller for a session. The backend is an injected
// collaborator, never reached ambiently.
func New(b backend.Backend, sessionID string, surfaces SurfaceFactory, opts Options) (*Controller, error) {
	if b == nil {
		return nil, errors.New("grid: backend is required")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("grid: session id is required")
	}
	if surfaces == nil {
		surfaces = func(string) channel.Surface { return nil }
	}
	if opts.Command == "" {
		opts.Command = "sh"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		backend:   b,
		sessionID: sessionID,
		surfaces:  surfaces,
		opts:      opts,
		channels:  make(map[string]*channel.Channel),
	}, nil
}

// Initialize fetches the session layout, creating a fresh single-leaf
// layout only when the backend reports it missing. Any other fetch
// error is returned untouched so "backend unreachable" never turns into
// "create new".
func (c *Controller) Initialize(ctx context.Context) error {
	if c == nil {
		return errors.New("grid: controller is nil")
	}
	srv, err := c.backend.FetchLayout(ctx, c.sessionID)
	created := false
	if errors.Is(err, backend.ErrNotFound) {
		srv, err = c.backend.CreateLayout(ctx, c.sessionID)
		created = true
	}
	if err != nil {
		return fmt.Errorf("grid: initialize session %q: %w", c.sessionID, err)
	}
	tree, err := layout.Rebuild(srv.Nodes)
	if err != nil {
		return fmt.Errorf("grid: initialize session %q: %w", c.sessionID, err)
	}
	c.tree = tree

	for _, leaf := range tree.Leaves() {
		if leaf.ProcessID != "" {
			c.attachChannel(leaf.ID, leaf.ProcessID)
		}
	}
	if created {
		// A fresh layout has one unbound leaf; give it a live shell.
		if err := c.BindPane(ctx, tree.RootID()); err != nil {
			c.opts.Logger.Warn("initial pane bind failed", "session", c.sessionID, "err", err)
		}
	}
	c.selected = ""
	if leaves := tree.Leaves(); len(leaves) > 0 {
		c.selected = leaves[0].ID
	}
	return nil
}

// attachChannel adopts an already-running process for a bound leaf.
// Attach failures are logged; the pane renders as unbound until a
// refresh reconciles it.
func (c *Controller) attachChannel(leafID, processID string) {
	ch := channel.New(c.backend, c.surfaces(leafID), c.opts.Command, c.opts.Channel)
	if err := ch.Attach(processID); err != nil {
		c.opts.Logger.Warn("attach to bound pane failed", "pane", leafID, "process", processID, "err", err)
		return
	}
	c.channels[leafID] = ch
}

// Tree returns the local layout tree.
func (c *Controller) Tree() *layout.Tree {
	if c == nil {
		return nil
	}
	return c.tree
}

// Selected returns the selected leaf id, empty when nothing is selected.
func (c *Controller) Selected() string {
	if c == nil {
		return ""
	}
	return c.selected
}

// SelectPane selects a leaf. Selecting an unknown id is a no-op.
func (c *Controller) SelectPane(leafID string) {
	if c == nil || c.tree == nil {
		return
	}
	if c.tree.Leaf(leafID) != nil {
		c.selected = leafID
	}
}

// Channel returns the channel bound to a leaf, or nil.
func (c *Controller) Channel(leafID string) *channel.Channel {
	if c == nil {
		return nil
	}
	return c.channels[leafID]
}

// Panes returns the leaf set in rendering order.
func (c *Controller) Panes() []PaneView {
	if c == nil || c.tree == nil {
		return nil
	}
	leaves := c.tree.Leaves()
	out := make([]PaneView, 0, len(leaves))
	for _, leaf := range leaves {
		view := PaneView{
			ID:       leaf.ID,
			Bounds:   leaf.Bounds,
			Bound:    leaf.ProcessID != "",
			Selected: leaf.ID == c.selected,
		}
		if ch := c.channels[leaf.ID]; ch != nil {
			view.State = ch.State()
		}
		out = append(out, view)
	}
	return out
}

// Split divides the selected pane 50/50. The live process stays with
// the first child; the second child starts unbound and becomes the
// selection. A backend failure leaves the local tree untouched.
func (c *Controller) Split(ctx context.Context, horizontal bool) (string, string, error) {
	if c == nil || c.tree == nil {
		return "", "", errors.New("grid: controller not initialized")
	}
	target := c.tree.Leaf(c.selected)
	if target == nil {
		return "", "", errors.New("grid: split requires a selected pane")
	}
	// Validate the geometry locally first so an unsplittable sliver
	// never reaches the backend.
	if _, _, err := layout.SplitRect(target.Bounds, horizontal, SplitRatio); err != nil {
		return "", "", fmt.Errorf("grid: split pane %q: %w", target.ID, err)
	}

	first, second, err := c.backend.SplitPane(ctx, c.sessionID, target.ID, horizontal, SplitRatio)
	if err != nil {
		c.opts.Logger.Warn("split rejected by backend", "session", c.sessionID, "pane", target.ID, "err", err)
		return "", "", fmt.Errorf("grid: split pane %q: %w", target.ID, err)
	}
	processID := target.ProcessID
	if err := c.tree.SplitAs(target.ID, horizontal, SplitRatio, first, second); err != nil {
		return "", "", fmt.Errorf("grid: split pane %q: %w", target.ID, err)
	}
	if processID != "" {
		if err := c.tree.Bind(first, processID); err != nil {
			return "", "", fmt.Errorf("grid: split pane %q: %w", target.ID, err)
		}
		if ch := c.channels[target.ID]; ch != nil {
			delete(c.channels, target.ID)
			c.channels[first] = ch
		}
		c.persistBinding(ctx, first, processID)
	}
	c.selected = second
	return first, second, nil
}

// Close tears down the selected pane. The last remaining pane cannot be
// closed; the validation never reaches the backend.
func (c *Controller) Close(ctx context.Context) error {
	if c == nil || c.tree == nil {
		return errors.New("grid: controller not initialized")
	}
	target := c.tree.Leaf(c.selected)
	if target == nil {
		return errors.New("grid: close requires a selected pane")
	}
	if c.tree.LeafCount() <= 1 {
		return layout.ErrLastLeaf
	}

	if err := c.backend.ClosePane(ctx, c.sessionID, target.ID); err != nil {
		c.opts.Logger.Warn("close rejected by backend", "session", c.sessionID, "pane", target.ID, "err", err)
		return fmt.Errorf("grid: close pane %q: %w", target.ID, err)
	}
	if ch := c.channels[target.ID]; ch != nil {
		ch.Close()
		delete(c.channels, target.ID)
	}
	if _, err := c.tree.Close(target.ID); err != nil {
		return fmt.Errorf("grid: close pane %q: %w", target.ID, err)
	}
	c.selected = ""
	return nil
}

// BindPane starts a shell in an empty pane.
func (c *Controller) BindPane(ctx context.Context, leafID string) error {
	if c == nil || c.tree == nil {
		return errors.New("grid: controller not initialized")
	}
	leaf := c.tree.Leaf(leafID)
	if leaf == nil {
		return fmt.Errorf("grid: pane %q not found", leafID)
	}
	if leaf.ProcessID != "" {
		return fmt.Errorf("grid: pane %q already bound", leafID)
	}
	ch := channel.New(c.backend, c.surfaces(leafID), c.opts.Command, c.opts.Channel)
	if err := ch.Start(ctx); err != nil {
		// The channel surfaced the failure on the pane; the pane stays
		// unbound and siblings are unaffected.
		c.channels[leafID] = ch
		return fmt.Errorf("grid: bind pane %q: %w", leafID, err)
	}
	processID := ch.ProcessID()
	if err := c.tree.Bind(leafID, processID); err != nil {
		ch.Close()
		return fmt.Errorf("grid: bind pane %q: %w", leafID, err)
	}
	c.channels[leafID] = ch
	c.persistBinding(ctx, leafID, processID)
	return nil
}

// Refresh re-fetches the authoritative layout and reconciles local
// channels to backend-issued ids. Channels whose leaves vanished are
// torn down; leaves that appeared with a process are attached. The
// returned map holds old id -> new id for every surviving pane the
// backend renamed, so the view can move its surfaces along.
func (c *Controller) Refresh(ctx context.Context) (map[string]string, error) {
	if c == nil || c.tree == nil {
		return nil, errors.New("grid: controller not initialized")
	}
	srv, err := c.backend.FetchLayout(ctx, c.sessionID)
	if err != nil {
		c.opts.Logger.Warn("refresh fetch failed", "session", c.sessionID, "err", err)
		return nil, fmt.Errorf("grid: refresh session %q: %w", c.sessionID, err)
	}
	tree, err := layout.Rebuild(srv.Nodes)
	if err != nil {
		return nil, fmt.Errorf("grid: refresh session %q: %w", c.sessionID, err)
	}

	// Re-key surviving channels by process handle; backend ids may have
	// changed across a reconnect.
	byProcess := make(map[string]string, len(tree.Leaves()))
	for _, leaf := range tree.Leaves() {
		if leaf.ProcessID != "" {
			byProcess[leaf.ProcessID] = leaf.ID
		}
	}
	moved := make(map[string]string)
	next := make(map[string]*channel.Channel, len(c.channels))
	for leafID, ch := range c.channels {
		newID, alive := byProcess[ch.ProcessID()]
		if !alive {
			c.opts.Logger.Info("pane vanished server-side", "session", c.sessionID, "pane", leafID)
			ch.Close()
			continue
		}
		if newID != leafID {
			moved[leafID] = newID
		}
		next[newID] = ch
		delete(byProcess, ch.ProcessID())
	}
	c.tree = tree
	c.channels = next
	// Remaining bound leaves appeared server-side; adopt their processes.
	for processID, leafID := range byProcess {
		c.attachChannel(leafID, processID)
	}

	// Selection follows a renamed pane before falling back to the first
	// leaf.
	if newID, ok := moved[c.selected]; ok {
		c.selected = newID
	}
	if c.tree.Leaf(c.selected) == nil {
		c.selected = ""
		if leaves := c.tree.Leaves(); len(leaves) > 0 {
			c.selected = leaves[0].ID
		}
	}
	return moved, nil
}

// Teardown closes every channel. Used on session close.
func (c *Controller) Teardown() {
	if c == nil {
		return
	}
	for leafID, ch := range c.channels {
		ch.Close()
		delete(c.channels, leafID)
	}
	c.selected = ""
}

func (c *Controller) persistBinding(ctx context.Context, leafID, processID string) {
	binder, ok := c.backend.(Binder)
	if !ok {
		return
	}
	if err := binder.BindPane(ctx, c.sessionID, leafID, processID); err != nil {
		c.opts.Logger.Warn("persist pane binding failed", "pane", leafID, "err", err)
	}
}

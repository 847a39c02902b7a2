// Package channel synchronizes one remote terminal process with one
// pane. A channel owns the process lifecycle end to end: creation,
// input forwarding, output polling and reconciliation, debounced resize
// propagation, and deterministic teardown.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/muxpane/muxpane/internal/backend"
)

// State is the channel lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateStarting
	StateStreaming
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Surface is the rendering sink for one pane. The channel decides what
// bytes go where and when; the surface decides how they are painted.
type Surface interface {
	WriteOutput(data []byte)
	Clear()
	SetError(msg string)
	Release()
}

const (
	DefaultPollInterval   = 250 * time.Millisecond
	DefaultResizeDebounce = 150 * time.Millisecond

	// maxPollFailures consecutive poll errors mark the channel failed.
	maxPollFailures = 3
)

// Options tunes a channel's timers.
type Options struct {
	PollInterval   time.Duration
	ResizeDebounce time.Duration
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ResizeDebounce <= 0 {
		o.ResizeDebounce = DefaultResizeDebounce
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Channel keeps one pane's view synchronized with one remote process.
type Channel struct {
	backend backend.Backend
	surface Surface
	command string
	opts    Options

	mu           sync.Mutex
	state        State
	processID    string
	lastOutput   string
	lastDims     backend.Dimensions
	pollFailures int
	pollBusy     bool
	resizeBusy   bool
	loopStarted  bool

	resizeCh chan backend.Dimensions
	stop     chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}
}

// New creates an idle channel for a caller-supplied shell command.
func New(b backend.Backend, surface Surface, command string, opts Options) *Channel {
	return &Channel{
		backend:  b,
		surface:  surface,
		command:  command,
		opts:     opts.withDefaults(),
		resizeCh: make(chan backend.Dimensions, 8),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Start requests process creation and, on success, begins streaming.
// A creation failure marks the channel failed and is surfaced on the
// pane; it is also returned so the owner can log it.
func (c *Channel) Start(ctx context.Context) error {
	if c == nil {
		return errors.New("channel: channel is nil")
	}
	c.mu.Lock()
	if c.state != StateUninitialized {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("channel: start in state %s", state)
	}
	c.state = StateStarting
	c.mu.Unlock()

	processID, err := c.backend.CreateProcess(ctx, c.command)
	if err != nil {
		c.fail(fmt.Sprintf("process creation failed: %v", err))
		return fmt.Errorf("channel: create process: %w", err)
	}
	return c.beginStreaming(processID)
}

// Attach adopts an already-running process, skipping creation. Used when
// a refresh reveals a backend-side pane that already has a process.
func (c *Channel) Attach(processID string) error {
	if c == nil {
		return errors.New("channel: channel is nil")
	}
	processID = strings.TrimSpace(processID)
	if processID == "" {
		return errors.New("channel: attach requires a process id")
	}
	c.mu.Lock()
	if c.state != StateUninitialized {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("channel: attach in state %s", state)
	}
	c.state = StateStarting
	c.mu.Unlock()
	return c.beginStreaming(processID)
}

func (c *Channel) beginStreaming(processID string) error {
	c.mu.Lock()
	if c.state != StateStarting {
		// Torn down while the create call was in flight; the response
		// is dropped and the process is released best effort.
		c.mu.Unlock()
		go func() { _ = c.backend.TerminateProcess(context.Background(), processID) }()
		return nil
	}
	c.state = StateStreaming
	c.processID = processID
	c.loopStarted = true
	c.mu.Unlock()
	go c.run()
	return nil
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	if c == nil {
		return StateUninitialized
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ProcessID returns the bound process handle, empty until streaming.
func (c *Channel) ProcessID() string {
	if c == nil {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processID
}

// LastDimensions returns the most recently confirmed terminal size.
func (c *Channel) LastDimensions() backend.Dimensions {
	if c == nil {
		return backend.Dimensions{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastDims
}

// run drives the poll ticker and the resize debounce timer for one
// channel. Both are independent of every other pane, and backend calls
// are dispatched off this goroutine so a hung poll never delays resize
// propagation (or the reverse).
func (c *Channel) run() {
	defer close(c.loopDone)
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	var (
		debounce *time.Timer
		pending  backend.Dimensions
		queued   bool
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	// First poll is not delayed.
	c.dispatchPoll()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.dispatchPoll()
		case dims := <-c.resizeCh:
			pending = dims
			queued = true
			if debounce == nil {
				debounce = time.NewTimer(c.opts.ResizeDebounce)
				continue
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(c.opts.ResizeDebounce)
		case <-timerChan(debounce):
			if !queued {
				continue
			}
			c.mu.Lock()
			busy := c.resizeBusy
			if !busy {
				c.resizeBusy = true
			}
			c.mu.Unlock()
			if busy {
				// A resize call is still in flight; hold the proposal for
				// another debounce window so calls stay ordered.
				debounce.Reset(c.opts.ResizeDebounce)
				continue
			}
			queued = false
			dims := pending
			go func() {
				c.pushResize(dims)
				c.mu.Lock()
				c.resizeBusy = false
				c.mu.Unlock()
			}()
		}
	}
}

// dispatchPoll runs one poll on its own goroutine. Ticks that arrive
// while a poll is still in flight are skipped rather than queued.
func (c *Channel) dispatchPoll() {
	c.mu.Lock()
	if c.pollBusy || c.state != StateStreaming {
		c.mu.Unlock()
		return
	}
	c.pollBusy = true
	c.mu.Unlock()
	go func() {
		c.poll()
		c.mu.Lock()
		c.pollBusy = false
		c.mu.Unlock()
	}()
}

func timerChan(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// poll fetches the full output buffer and reconciles it against the
// last known buffer. Reconciliation is idempotent: it is driven off
// absolute buffer content, never a shared cursor.
func (c *Channel) poll() {
	c.mu.Lock()
	if c.state != StateStreaming {
		c.mu.Unlock()
		return
	}
	processID := c.processID
	c.mu.Unlock()

	buf, err := c.backend.PollOutput(context.Background(), processID)
	if err != nil {
		c.mu.Lock()
		if c.state != StateStreaming {
			c.mu.Unlock()
			return
		}
		c.pollFailures++
		failures := c.pollFailures
		c.mu.Unlock()
		c.opts.Logger.Warn("poll output failed", "process", processID, "failures", failures, "err", err)
		if failures >= maxPollFailures {
			c.fail(fmt.Sprintf("output polling failed %d times: %v", failures, err))
		}
		return
	}

	c.mu.Lock()
	if c.state != StateStreaming {
		// Torn down while the poll was in flight; drop the response.
		c.mu.Unlock()
		return
	}
	c.pollFailures = 0
	prev := c.lastOutput
	c.lastOutput = buf
	surface := c.surface
	c.mu.Unlock()

	if surface == nil {
		return
	}
	if strings.HasPrefix(buf, prev) {
		if suffix := buf[len(prev):]; suffix != "" {
			surface.WriteOutput([]byte(suffix))
		}
		return
	}
	// History was trimmed or the screen cleared; rewrite in full.
	surface.Clear()
	surface.WriteOutput([]byte(buf))
}

// SendInput forwards raw bytes to the process immediately. Best effort:
// failures are logged and never change channel state.
func (c *Channel) SendInput(data []byte) {
	if c == nil || len(data) == 0 {
		return
	}
	c.mu.Lock()
	if c.state != StateStreaming {
		c.mu.Unlock()
		return
	}
	processID := c.processID
	c.mu.Unlock()

	payload := append([]byte(nil), data...)
	go func() {
		if err := c.backend.SendInput(context.Background(), processID, payload); err != nil {
			c.opts.Logger.Warn("send input failed", "process", processID, "err", err)
		}
	}()
}

// ProposeResize records a size observation for debounced propagation.
// Non-positive dimensions are a no-op, not an error.
func (c *Channel) ProposeResize(cols, rows int) {
	if c == nil || cols <= 0 || rows <= 0 {
		return
	}
	c.mu.Lock()
	streaming := c.state == StateStreaming
	c.mu.Unlock()
	if !streaming {
		return
	}
	select {
	case c.resizeCh <- backend.Dimensions{Cols: cols, Rows: rows}:
	default:
		// The debounce loop only cares about the newest observation;
		// drain one stale entry and retry.
		select {
		case <-c.resizeCh:
		default:
		}
		select {
		case c.resizeCh <- backend.Dimensions{Cols: cols, Rows: rows}:
		default:
		}
	}
}

func (c *Channel) pushResize(dims backend.Dimensions) {
	c.mu.Lock()
	if c.state != StateStreaming || dims == c.lastDims {
		c.mu.Unlock()
		return
	}
	processID := c.processID
	c.mu.Unlock()

	if err := c.backend.ResizeProcess(context.Background(), processID, dims.Cols, dims.Rows); err != nil {
		c.opts.Logger.Warn("resize failed", "process", processID, "cols", dims.Cols, "rows", dims.Rows, "err", err)
		return
	}
	c.mu.Lock()
	if c.state == StateStreaming {
		c.lastDims = dims
	}
	c.mu.Unlock()
}

// fail moves the channel to the terminal failed state and surfaces the
// message on the pane. Sibling panes are unaffected.
func (c *Channel) fail(msg string) {
	c.mu.Lock()
	switch c.state {
	case StateClosing, StateClosed, StateFailed:
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	surface := c.surface
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stop) })
	if surface != nil {
		surface.SetError(msg)
	}
}

// Close tears the channel down: stop polling, stop the resize debounce,
// request process termination, release the surface. The timer loop is
// waited out, but backend calls already in flight are not: each step
// proceeds regardless of the others' outcome, so a hung backend call
// never prevents local resource release. In-flight responses arriving
// after Close are dropped by the state checks above.
func (c *Channel) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return
	case StateFailed:
		// Timers are already stopped; only the process and surface
		// remain to release.
	default:
		c.state = StateClosing
	}
	processID := c.processID
	surface := c.surface
	c.surface = nil
	loopStarted := c.loopStarted
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stop) })
	if loopStarted {
		// The loop only dispatches work, so this settles promptly even
		// when a backend call is hung.
		<-c.loopDone
	}
	if processID != "" {
		go func() {
			if err := c.backend.TerminateProcess(context.Background(), processID); err != nil {
				c.opts.Logger.Warn("terminate process failed", "process", processID, "err", err)
			}
		}()
	}
	if surface != nil {
		surface.Release()
	}
	c.mu.Lock()
	if c.state != StateFailed {
		c.state = StateClosed
	}
	c.mu.Unlock()
}

// Package tui renders one session's pane grid and routes keystrokes to
// the selected pane. It is deliberately a thin byte sink over the grid
// controller: no escape-sequence interpretation happens here.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/muxpane/muxpane/internal/channel"
	"github.com/muxpane/muxpane/internal/grid"
	"github.com/muxpane/muxpane/internal/layout"
)

const redrawInterval = 100 * time.Millisecond

// Registry hands out pane surfaces and survives controller re-keying.
type Registry struct {
	mu    sync.Mutex
	panes map[string]*paneSurface
}

func NewRegistry() *Registry {
	return &Registry{panes: make(map[string]*paneSurface)}
}

// Surface returns the sink for a pane, creating it on first use. It is
// the grid.SurfaceFactory for this view.
func (r *Registry) Surface(leafID string) channel.Surface {
	return r.get(leafID)
}

func (r *Registry) get(leafID string) *paneSurface {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.panes[leafID]
	if !ok {
		s = &paneSurface{}
		r.panes[leafID] = s
	}
	return s
}

// rekey moves a surface when a split renames the surviving pane.
func (r *Registry) rekey(oldID, newID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.panes[oldID]; ok {
		delete(r.panes, oldID)
		r.panes[newID] = s
	}
}

func (r *Registry) drop(leafID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.panes, leafID)
}

type tickMsg time.Time

// Model is the Bubble Tea model for one session.
type Model struct {
	ctrl     *grid.Controller
	registry *Registry
	keys     keyMap

	width  int
	height int

	prefixArmed bool
	status      string
}

// New builds the session view. The controller must already be
// initialized.
func New(ctrl *grid.Controller, registry *Registry) Model {
	return Model{ctrl: ctrl, registry: registry, keys: defaultKeyMap()}
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(redrawInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tick()
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.proposeResizes()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.prefixArmed {
		return m.handleCommand(msg)
	}
	if key.Matches(msg, m.keys.Prefix) {
		m.prefixArmed = true
		return m, nil
	}
	if ch := m.ctrl.Channel(m.ctrl.Selected()); ch != nil {
		if data := keyToBytes(msg); data != nil {
			ch.SendInput(data)
		}
	}
	return m, nil
}

func (m Model) handleCommand(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.prefixArmed = false
	m.status = ""
	ctx := context.Background()

	switch {
	case key.Matches(msg, m.keys.Prefix):
		// Double prefix sends a literal ctrl+a to the pane.
		if ch := m.ctrl.Channel(m.ctrl.Selected()); ch != nil {
			ch.SendInput([]byte{0x01})
		}
	case key.Matches(msg, m.keys.SplitH):
		m.split(ctx, true)
	case key.Matches(msg, m.keys.SplitV):
		m.split(ctx, false)
	case key.Matches(msg, m.keys.ClosePn):
		closed := m.ctrl.Selected()
		if err := m.ctrl.Close(ctx); err != nil {
			if errors.Is(err, layout.ErrLastLeaf) {
				m.status = "cannot close the last pane"
			} else {
				m.status = err.Error()
			}
			break
		}
		m.registry.drop(closed)
		m.selectFirst()
		m.proposeResizes()
	case key.Matches(msg, m.keys.Launch):
		selected := m.ctrl.Selected()
		if err := m.ctrl.BindPane(ctx, selected); err != nil {
			m.status = err.Error()
			break
		}
		m.proposeResizes()
	case key.Matches(msg, m.keys.Next):
		m.selectNext()
	case key.Matches(msg, m.keys.Refresh):
		moved, err := m.ctrl.Refresh(ctx)
		if err != nil {
			m.status = err.Error()
			break
		}
		// Surfaces follow their channels across backend-reissued ids.
		for oldID, newID := range moved {
			m.registry.rekey(oldID, newID)
		}
		m.proposeResizes()
	case key.Matches(msg, m.keys.Quit):
		m.ctrl.Teardown()
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) split(ctx context.Context, horizontal bool) {
	target := m.ctrl.Selected()
	first, _, err := m.ctrl.Split(ctx, horizontal)
	if err != nil {
		m.status = err.Error()
		return
	}
	m.registry.rekey(target, first)
	m.proposeResizes()
}

func (m *Model) selectFirst() {
	if panes := m.ctrl.Panes(); len(panes) > 0 {
		m.ctrl.SelectPane(panes[0].ID)
	}
}

func (m *Model) selectNext() {
	panes := m.ctrl.Panes()
	if len(panes) == 0 {
		return
	}
	for i, pane := range panes {
		if pane.Selected {
			m.ctrl.SelectPane(panes[(i+1)%len(panes)].ID)
			return
		}
	}
	m.ctrl.SelectPane(panes[0].ID)
}

// proposeResizes re-derives every pane's cell size from the current
// terminal size and offers it to the pane's channel. The channels
// debounce and skip no-op changes themselves.
func (m *Model) proposeResizes() {
	if m.width <= 0 || m.gridHeight() <= 0 {
		return
	}
	for _, pane := range m.ctrl.Panes() {
		ch := m.ctrl.Channel(pane.ID)
		if ch == nil {
			continue
		}
		w, h := m.cellSize(pane.Bounds)
		// Interior of the bordered box.
		ch.ProposeResize(w-2, h-2)
	}
}

func (m *Model) gridHeight() int {
	return m.height - 1
}

func (m *Model) cellSize(r layout.Rect) (int, int) {
	x0 := r.X * m.width / layout.GridSize
	x1 := (r.X + r.W) * m.width / layout.GridSize
	y0 := r.Y * m.gridHeight() / layout.GridSize
	y1 := (r.Y + r.H) * m.gridHeight() / layout.GridSize
	return x1 - x0, y1 - y0
}

var (
	borderStyle         = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	selectedBorderStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("212"))
	failedBorderStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("160"))
	errorTextStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	dimTextStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	statusStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Background(lipgloss.Color("236"))
)

func (m Model) View() string {
	if m.width <= 0 || m.height <= 2 {
		return "loading..."
	}
	tree := m.ctrl.Tree()
	if tree == nil {
		return "no layout"
	}
	body := m.renderNode(tree, tree.RootID())
	return lipgloss.JoinVertical(lipgloss.Left, body, m.statusLine())
}

func (m Model) renderNode(tree *layout.Tree, id string) string {
	node := tree.Node(id)
	if node == nil {
		return ""
	}
	if node.IsLeaf() {
		return m.renderPane(node)
	}
	first := tree.Node(node.Children[0])
	second := tree.Node(node.Children[1])
	a := m.renderNode(tree, node.Children[0])
	b := m.renderNode(tree, node.Children[1])
	if first != nil && second != nil && first.Bounds.Y == second.Bounds.Y {
		return lipgloss.JoinHorizontal(lipgloss.Top, a, b)
	}
	return lipgloss.JoinVertical(lipgloss.Left, a, b)
}

func (m Model) renderPane(node *layout.Node) string {
	w, h := m.cellSize(node.Bounds)
	if w < 2 || h < 2 {
		return ""
	}
	innerW, innerH := w-2, h-2

	style := borderStyle
	selected := node.ID == m.ctrl.Selected()
	ch := m.ctrl.Channel(node.ID)
	if ch != nil && ch.State() == channel.StateFailed {
		style = failedBorderStyle
	} else if selected {
		style = selectedBorderStyle
	}

	var lines []string
	surface := m.registry.get(node.ID)
	switch {
	case surface.errText() != "":
		lines = []string{errorTextStyle.Render(surface.errText())}
	case node.ProcessID == "":
		lines = []string{dimTextStyle.Render("empty pane"), dimTextStyle.Render("ctrl+a b to launch")}
	default:
		for _, line := range surface.tailLines(innerH) {
			lines = append(lines, ansi.Truncate(ansi.Strip(line), innerW, ""))
		}
	}
	for len(lines) < innerH {
		lines = append(lines, "")
	}
	if len(lines) > innerH {
		lines = lines[len(lines)-innerH:]
	}
	content := strings.Join(lines, "\n")
	return style.Width(innerW).Height(innerH).MaxWidth(w).MaxHeight(h).Render(content)
}

func (m Model) statusLine() string {
	var b strings.Builder
	if m.prefixArmed {
		b.WriteString("[prefix] ")
	}
	selected := m.ctrl.Selected()
	if selected == "" {
		b.WriteString("no pane selected")
	} else {
		b.WriteString(fmt.Sprintf("pane %s", shortID(selected)))
		if ch := m.ctrl.Channel(selected); ch != nil {
			b.WriteString(fmt.Sprintf(" (%s)", ch.State()))
		}
	}
	if m.status != "" {
		b.WriteString("  |  ")
		b.WriteString(m.status)
	}
	b.WriteString("  |  ctrl+a h/v split, x close, o next, q quit")
	line := ansi.Truncate(b.String(), m.width, "")
	return statusStyle.Width(m.width).Render(line)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

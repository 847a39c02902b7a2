package layout

import (
	"errors"
	"fmt"
	"strings"
)

// Node is one node of the split tree. A node with no children is a leaf
// pane; a node with two children is an internal split and never carries
// a process binding.
type Node struct {
	ID        string
	Bounds    Rect
	ProcessID string
	Parent    string
	Children  []string
}

func (n *Node) IsLeaf() bool {
	return n != nil && len(n.Children) == 0
}

// Tree owns the split-tree for one session. The leaf rectangles exactly
// tile the full grid after every mutation.
type Tree struct {
	root      string
	nodes     map[string]*Node
	nextIndex int
}

// NewTree creates a tree holding a single unbound leaf covering the full
// grid. An empty rootID mints a local node id.
func NewTree(rootID string) *Tree {
	t := &Tree{nodes: make(map[string]*Node)}
	rootID = strings.TrimSpace(rootID)
	if rootID == "" {
		rootID = t.nextNodeID()
	}
	t.root = rootID
	t.nodes[rootID] = &Node{ID: rootID, Bounds: FullGrid()}
	return t
}

func (t *Tree) nextNodeID() string {
	for {
		t.nextIndex++
		id := fmt.Sprintf("n-%d", t.nextIndex)
		if _, exists := t.nodes[id]; !exists {
			return id
		}
	}
}

func (t *Tree) RootID() string {
	if t == nil {
		return ""
	}
	return t.root
}

// Node returns the node for id, or nil.
func (t *Tree) Node(id string) *Node {
	if t == nil || t.nodes == nil {
		return nil
	}
	return t.nodes[id]
}

// Leaf returns the leaf node for id, or nil if id is missing or internal.
func (t *Tree) Leaf(id string) *Node {
	node := t.Node(id)
	if node.IsLeaf() {
		return node
	}
	return nil
}

// Leaves returns the current leaf set in stable reading order (first
// child before second child, depth first).
func (t *Tree) Leaves() []*Node {
	if t == nil {
		return nil
	}
	var out []*Node
	t.walkLeaves(t.root, &out)
	return out
}

func (t *Tree) walkLeaves(id string, out *[]*Node) {
	node := t.nodes[id]
	if node == nil {
		return
	}
	if node.IsLeaf() {
		*out = append(*out, node)
		return
	}
	for _, child := range node.Children {
		t.walkLeaves(child, out)
	}
}

func (t *Tree) LeafCount() int {
	return len(t.Leaves())
}

// Rects returns leaf id -> bounds for the current leaf set.
func (t *Tree) Rects() map[string]Rect {
	out := make(map[string]Rect)
	for _, leaf := range t.Leaves() {
		out[leaf.ID] = leaf.Bounds
	}
	return out
}

// Split turns the leaf into an internal node with two fresh leaves and
// returns their ids. The leaf's process binding is not carried to either
// child; the caller decides which child inherits it.
func (t *Tree) Split(leafID string, horizontal bool, ratio int) (string, string, error) {
	if t == nil {
		return "", "", errors.New("layout: tree is nil")
	}
	firstID := t.nextNodeID()
	secondID := t.nextNodeID()
	if err := t.SplitAs(leafID, horizontal, ratio, firstID, secondID); err != nil {
		return "", "", err
	}
	return firstID, secondID, nil
}

// SplitAs is Split with caller-supplied child ids, used when the backend
// is the source of truth for pane ids.
func (t *Tree) SplitAs(leafID string, horizontal bool, ratio int, firstID, secondID string) error {
	if t == nil {
		return errors.New("layout: tree is nil")
	}
	leaf := t.Leaf(leafID)
	if leaf == nil {
		return fmt.Errorf("layout: pane %q not found", leafID)
	}
	firstID = strings.TrimSpace(firstID)
	secondID = strings.TrimSpace(secondID)
	if firstID == "" || secondID == "" || firstID == secondID {
		return errors.New("layout: split requires two distinct child ids")
	}
	if t.nodes[firstID] != nil || t.nodes[secondID] != nil {
		return fmt.Errorf("layout: child id %q or %q already in use", firstID, secondID)
	}
	boundsA, boundsB, err := SplitRect(leaf.Bounds, horizontal, ratio)
	if err != nil {
		return err
	}
	t.nodes[firstID] = &Node{ID: firstID, Bounds: boundsA, Parent: leaf.ID}
	t.nodes[secondID] = &Node{ID: secondID, Bounds: boundsB, Parent: leaf.ID}
	leaf.Children = []string{firstID, secondID}
	leaf.ProcessID = ""
	return nil
}

// Close removes the leaf and its parent, promoting the sibling subtree
// into the parent's bounds and grandparent slot. Returns the promoted
// sibling's id. Nodes outside the parent's subtree keep their bounds.
func (t *Tree) Close(leafID string) (string, error) {
	if t == nil {
		return "", errors.New("layout: tree is nil")
	}
	leaf := t.Leaf(leafID)
	if leaf == nil {
		return "", fmt.Errorf("layout: pane %q not found", leafID)
	}
	if leaf.ID == t.root {
		return "", ErrLastLeaf
	}
	parent := t.nodes[leaf.Parent]
	if parent == nil {
		return "", fmt.Errorf("layout: pane %q has no parent", leafID)
	}
	var sibling *Node
	for _, childID := range parent.Children {
		if childID != leaf.ID {
			sibling = t.nodes[childID]
		}
	}
	if sibling == nil {
		return "", fmt.Errorf("layout: pane %q has no sibling", leafID)
	}

	t.remapSubtree(sibling.ID, sibling.Bounds, parent.Bounds)
	sibling.Parent = parent.Parent
	delete(t.nodes, leaf.ID)
	delete(t.nodes, parent.ID)

	if sibling.Parent == "" {
		t.root = sibling.ID
		return sibling.ID, nil
	}
	grand := t.nodes[sibling.Parent]
	if grand == nil {
		return "", fmt.Errorf("layout: node %q missing grandparent", leafID)
	}
	for i, childID := range grand.Children {
		if childID == parent.ID {
			grand.Children[i] = sibling.ID
			break
		}
	}
	return sibling.ID, nil
}

// remapSubtree rescales every node under id from the from rectangle into
// to. Edge mapping keeps sibling rectangles tiling exactly.
func (t *Tree) remapSubtree(id string, from, to Rect) {
	node := t.nodes[id]
	if node == nil {
		return
	}
	node.Bounds = mapRect(node.Bounds, from, to)
	for _, child := range node.Children {
		t.remapSubtree(child, from, to)
	}
}

// Bind attaches a process handle to a leaf. Process handles are unique
// across the tree's leaves.
func (t *Tree) Bind(leafID, processID string) error {
	if t == nil {
		return errors.New("layout: tree is nil")
	}
	leaf := t.Leaf(leafID)
	if leaf == nil {
		return fmt.Errorf("layout: pane %q not found", leafID)
	}
	processID = strings.TrimSpace(processID)
	if processID == "" {
		leaf.ProcessID = ""
		return nil
	}
	for _, other := range t.Leaves() {
		if other.ID != leaf.ID && other.ProcessID == processID {
			return fmt.Errorf("layout: process %q already bound to pane %q", processID, other.ID)
		}
	}
	leaf.ProcessID = processID
	return nil
}

// Unbind clears a leaf's process binding.
func (t *Tree) Unbind(leafID string) {
	if leaf := t.Leaf(leafID); leaf != nil {
		leaf.ProcessID = ""
	}
}

// NodeSpec is a flattened tree node used to rebuild a tree from an
// authoritative backend snapshot.
type NodeSpec struct {
	ID        string
	ParentID  string
	Position  int
	Bounds    Rect
	ProcessID string
}

// Rebuild constructs a tree from backend-issued node rows. The snapshot
// must contain exactly one root covering the full grid, and every
// internal node must have exactly two children.
func Rebuild(specs []NodeSpec) (*Tree, error) {
	if len(specs) == 0 {
		return nil, errors.New("layout: empty snapshot")
	}
	t := &Tree{nodes: make(map[string]*Node, len(specs))}
	children := make(map[string][]NodeSpec)
	for _, spec := range specs {
		id := strings.TrimSpace(spec.ID)
		if id == "" {
			return nil, errors.New("layout: snapshot node missing id")
		}
		if t.nodes[id] != nil {
			return nil, fmt.Errorf("layout: duplicate node %q in snapshot", id)
		}
		if spec.Bounds.Empty() {
			return nil, fmt.Errorf("layout: node %q has empty bounds", id)
		}
		t.nodes[id] = &Node{ID: id, Bounds: spec.Bounds, Parent: spec.ParentID, ProcessID: spec.ProcessID}
		if spec.ParentID == "" {
			if t.root != "" {
				return nil, errors.New("layout: multiple roots in snapshot")
			}
			t.root = id
		} else {
			children[spec.ParentID] = append(children[spec.ParentID], spec)
		}
	}
	if t.root == "" {
		return nil, errors.New("layout: snapshot has no root")
	}
	if t.nodes[t.root].Bounds != FullGrid() {
		return nil, errors.New("layout: snapshot root does not cover the grid")
	}
	for parentID, specs := range children {
		parent := t.nodes[parentID]
		if parent == nil {
			return nil, fmt.Errorf("layout: snapshot node %q references missing parent %q", specs[0].ID, parentID)
		}
		if len(specs) != 2 {
			return nil, fmt.Errorf("layout: node %q has %d children, want 2", parentID, len(specs))
		}
		ordered := make([]string, 2)
		for _, spec := range specs {
			if spec.Position < 0 || spec.Position > 1 || ordered[spec.Position] != "" {
				return nil, fmt.Errorf("layout: node %q has invalid child positions", parentID)
			}
			ordered[spec.Position] = spec.ID
		}
		parent.Children = ordered
		parent.ProcessID = ""
	}
	seen := make(map[string]string)
	for _, leaf := range t.Leaves() {
		if leaf.ProcessID == "" {
			continue
		}
		if other, dup := seen[leaf.ProcessID]; dup {
			return nil, fmt.Errorf("layout: process %q bound to panes %q and %q", leaf.ProcessID, other, leaf.ID)
		}
		seen[leaf.ProcessID] = leaf.ID
	}
	return t, nil
}

// Snapshot flattens the tree back into node rows, inverse of Rebuild.
func (t *Tree) Snapshot() []NodeSpec {
	if t == nil {
		return nil
	}
	var out []NodeSpec
	t.snapshotNode(t.root, "", 0, &out)
	return out
}

func (t *Tree) snapshotNode(id, parentID string, position int, out *[]NodeSpec) {
	node := t.nodes[id]
	if node == nil {
		return
	}
	*out = append(*out, NodeSpec{
		ID:        node.ID,
		ParentID:  parentID,
		Position:  position,
		Bounds:    node.Bounds,
		ProcessID: node.ProcessID,
	})
	for i, child := range node.Children {
		t.snapshotNode(child, node.ID, i, out)
	}
}

package layout

import (
	"errors"
	"testing"
)

func TestSplitRectPartition(t *testing.T) {
	parent := Rect{X: 10, Y: 20, W: 80, H: 60}
	for ratio := 1; ratio <= 99; ratio++ {
		a, b, err := SplitRect(parent, true, ratio)
		if err != nil {
			t.Fatalf("SplitRect(horizontal, %d) error: %v", ratio, err)
		}
		if a.W+b.W != parent.W {
			t.Fatalf("ratio %d: widths %d+%d != %d", ratio, a.W, b.W, parent.W)
		}
		if a.H != parent.H || b.H != parent.H {
			t.Fatalf("ratio %d: heights changed: %#v %#v", ratio, a, b)
		}
		if a.X != parent.X || b.X != a.X+a.W || a.Y != parent.Y || b.Y != parent.Y {
			t.Fatalf("ratio %d: slices misplaced: %#v %#v", ratio, a, b)
		}
		if a.W < 1 || b.W < 1 {
			t.Fatalf("ratio %d: degenerate slice: %#v %#v", ratio, a, b)
		}

		a, b, err = SplitRect(parent, false, ratio)
		if err != nil {
			t.Fatalf("SplitRect(vertical, %d) error: %v", ratio, err)
		}
		if a.H+b.H != parent.H {
			t.Fatalf("ratio %d: heights %d+%d != %d", ratio, a.H, b.H, parent.H)
		}
		if a.W != parent.W || b.W != parent.W {
			t.Fatalf("ratio %d: widths changed: %#v %#v", ratio, a, b)
		}
		if b.Y != a.Y+a.H {
			t.Fatalf("ratio %d: slices misplaced: %#v %#v", ratio, a, b)
		}
		if a.H < 1 || b.H < 1 {
			t.Fatalf("ratio %d: degenerate slice: %#v %#v", ratio, a, b)
		}
	}
}

func TestSplitRectClampsExtremeRatios(t *testing.T) {
	// 10*1/100 rounds to zero; the first slice is floored at one cell.
	a, b, err := SplitRect(Rect{W: 10, H: 10}, true, 1)
	if err != nil {
		t.Fatalf("SplitRect() error: %v", err)
	}
	if a.W != 1 || b.W != 9 {
		t.Fatalf("ratio 1: a.W=%d b.W=%d, want 1/9", a.W, b.W)
	}
	a, b, err = SplitRect(Rect{W: 10, H: 10}, true, 99)
	if err != nil {
		t.Fatalf("SplitRect() error: %v", err)
	}
	if a.W != 9 || b.W != 1 {
		t.Fatalf("ratio 99: a.W=%d b.W=%d, want 9/1", a.W, b.W)
	}
}

func TestSplitRectRejectsThinRegion(t *testing.T) {
	cases := []struct {
		name       string
		parent     Rect
		horizontal bool
	}{
		{name: "one-cell width", parent: Rect{W: 1, H: 100}, horizontal: true},
		{name: "one-cell height", parent: Rect{W: 100, H: 1}, horizontal: false},
		{name: "zero width", parent: Rect{W: 0, H: 100}, horizontal: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := SplitRect(tc.parent, tc.horizontal, 50); !errors.Is(err, ErrTooSmall) {
				t.Fatalf("SplitRect(%#v) error = %v, want ErrTooSmall", tc.parent, err)
			}
		})
	}
}

func TestSplitRectRatioValidation(t *testing.T) {
	for _, ratio := range []int{-5, 0, 100, 120} {
		if _, _, err := SplitRect(FullGrid(), true, ratio); !errors.Is(err, ErrRatio) {
			t.Fatalf("SplitRect(ratio=%d) error = %v, want ErrRatio", ratio, err)
		}
	}
}

func TestSplitRectRounding(t *testing.T) {
	a, b, err := SplitRect(Rect{W: 33, H: 10}, true, 50)
	if err != nil {
		t.Fatalf("SplitRect() error: %v", err)
	}
	// round(33*50/100) = 17; remainder lands in the second slice.
	if a.W != 17 || b.W != 16 {
		t.Fatalf("unexpected rounding: a.W=%d b.W=%d", a.W, b.W)
	}
}

// checkTiling verifies the leaf rectangles cover every grid cell exactly
// once.
func checkTiling(t *testing.T, tree *Tree) {
	t.Helper()
	var covered [GridSize][GridSize]int
	for _, leaf := range tree.Leaves() {
		r := leaf.Bounds
		if r.Empty() {
			t.Fatalf("leaf %q has empty bounds: %#v", leaf.ID, r)
		}
		if r.X < 0 || r.Y < 0 || r.X+r.W > GridSize || r.Y+r.H > GridSize {
			t.Fatalf("leaf %q out of grid: %#v", leaf.ID, r)
		}
		for x := r.X; x < r.X+r.W; x++ {
			for y := r.Y; y < r.Y+r.H; y++ {
				covered[x][y]++
			}
		}
	}
	for x := 0; x < GridSize; x++ {
		for y := 0; y < GridSize; y++ {
			if covered[x][y] != 1 {
				t.Fatalf("cell (%d,%d) covered %d times", x, y, covered[x][y])
			}
		}
	}
}

func TestTreeSplitClose(t *testing.T) {
	tree := NewTree("root")
	first, second, err := tree.Split("root", true, 50)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if tree.Leaf("root") != nil {
		t.Fatalf("split target should no longer be a leaf")
	}
	rects := tree.Rects()
	if rects[first] != (Rect{X: 0, Y: 0, W: 50, H: 100}) {
		t.Fatalf("unexpected first bounds: %#v", rects[first])
	}
	if rects[second] != (Rect{X: 50, Y: 0, W: 50, H: 100}) {
		t.Fatalf("unexpected second bounds: %#v", rects[second])
	}
	checkTiling(t, tree)

	sibling, err := tree.Close(second)
	if err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if sibling != first {
		t.Fatalf("Close() promoted %q, want %q", sibling, first)
	}
	if tree.RootID() != first {
		t.Fatalf("promoted sibling should be root, got %q", tree.RootID())
	}
	if got := tree.Leaf(first).Bounds; got != FullGrid() {
		t.Fatalf("promoted bounds = %#v, want full grid", got)
	}
	checkTiling(t, tree)
}

func TestTreeSplitKeepsNoBinding(t *testing.T) {
	tree := NewTree("root")
	if err := tree.Bind("root", "proc-1"); err != nil {
		t.Fatalf("Bind() error: %v", err)
	}
	first, second, err := tree.Split("root", false, 30)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if tree.Leaf(first).ProcessID != "" || tree.Leaf(second).ProcessID != "" {
		t.Fatalf("split must not carry process binding to children")
	}
	if tree.Node("root").ProcessID != "" {
		t.Fatalf("internal node must not keep a process binding")
	}
}

func TestTreeCloseLastLeaf(t *testing.T) {
	tree := NewTree("root")
	if _, err := tree.Close("root"); !errors.Is(err, ErrLastLeaf) {
		t.Fatalf("Close(last leaf) error = %v, want ErrLastLeaf", err)
	}
	if tree.Leaf("root") == nil || tree.LeafCount() != 1 {
		t.Fatalf("tree changed by rejected close")
	}
}

func TestTreeCloseKeepsUnrelatedBounds(t *testing.T) {
	tree := NewTree("root")
	left, right, err := tree.Split("root", true, 50)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	rightTop, rightBottom, err := tree.Split(right, false, 50)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	leftBefore := tree.Leaf(left).Bounds
	parentBounds := tree.Node(right).Bounds

	sibling, err := tree.Close(rightBottom)
	if err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if sibling != rightTop {
		t.Fatalf("Close() promoted %q, want %q", sibling, rightTop)
	}
	if got := tree.Leaf(rightTop).Bounds; got != parentBounds {
		t.Fatalf("sibling bounds = %#v, want parent's %#v", got, parentBounds)
	}
	if got := tree.Leaf(left).Bounds; got != leftBefore {
		t.Fatalf("unrelated pane moved: %#v -> %#v", leftBefore, got)
	}
	checkTiling(t, tree)
}

func TestTreeClosePromotesInternalSibling(t *testing.T) {
	tree := NewTree("root")
	left, right, err := tree.Split("root", true, 40)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	innerA, innerB, err := tree.Split(right, false, 50)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if _, err := tree.Close(left); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	// The right subtree is rescaled into the full grid.
	rects := tree.Rects()
	if rects[innerA].W != GridSize || rects[innerB].W != GridSize {
		t.Fatalf("promoted subtree not rescaled: %#v", rects)
	}
	checkTiling(t, tree)
}

func TestTreeRandomOpsKeepTiling(t *testing.T) {
	// xorshift keeps the sequence deterministic across runs.
	seed := uint64(0x9e3779b97f4a7c15)
	next := func(n int) int {
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		return int(seed % uint64(n))
	}
	tree := NewTree("")
	for i := 0; i < 200; i++ {
		leaves := tree.Leaves()
		target := leaves[next(len(leaves))]
		if len(leaves) > 1 && next(3) == 0 {
			if _, err := tree.Close(target.ID); err != nil {
				t.Fatalf("op %d: Close(%q) error: %v", i, target.ID, err)
			}
		} else {
			ratio := 1 + next(99)
			_, _, err := tree.Split(target.ID, next(2) == 0, ratio)
			if errors.Is(err, ErrTooSmall) {
				// One-cell panes cannot be split further.
				continue
			}
			if err != nil {
				t.Fatalf("op %d: Split(%q, %d) error: %v", i, target.ID, ratio, err)
			}
		}
		checkTiling(t, tree)
	}
}

func TestTreeOneCellPaneCloseKeepsTiling(t *testing.T) {
	tree := NewTree("root")
	sliver, rest, err := tree.Split("root", true, 1)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if got := tree.Leaf(sliver).Bounds.W; got != 1 {
		t.Fatalf("sliver width = %d, want 1", got)
	}
	if _, _, err := tree.Split(sliver, true, 30); !errors.Is(err, ErrTooSmall) {
		t.Fatalf("Split(one-cell pane) error = %v, want ErrTooSmall", err)
	}
	checkTiling(t, tree)

	// Promoting through a one-cell slot must not leave uncovered cells.
	restTop, _, err := tree.Split(rest, false, 50)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if _, err := tree.Close(restTop); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	checkTiling(t, tree)
	if _, err := tree.Close(sliver); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	checkTiling(t, tree)
	if got := tree.Leaves(); len(got) != 1 || got[0].Bounds != FullGrid() {
		t.Fatalf("survivor not promoted to full grid: %#v", got)
	}
}

func TestTreeBindUnique(t *testing.T) {
	tree := NewTree("root")
	first, second, err := tree.Split("root", true, 50)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if err := tree.Bind(first, "proc-1"); err != nil {
		t.Fatalf("Bind() error: %v", err)
	}
	if err := tree.Bind(second, "proc-1"); err == nil {
		t.Fatalf("Bind() accepted duplicate process binding")
	}
	if err := tree.Bind(second, "proc-2"); err != nil {
		t.Fatalf("Bind() error: %v", err)
	}
	tree.Unbind(first)
	if tree.Leaf(first).ProcessID != "" {
		t.Fatalf("Unbind() left binding in place")
	}
}

func TestRebuildRoundTrip(t *testing.T) {
	tree := NewTree("root")
	first, second, err := tree.Split("root", true, 50)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if _, _, err := tree.Split(second, false, 25); err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if err := tree.Bind(first, "proc-1"); err != nil {
		t.Fatalf("Bind() error: %v", err)
	}

	rebuilt, err := Rebuild(tree.Snapshot())
	if err != nil {
		t.Fatalf("Rebuild() error: %v", err)
	}
	if rebuilt.RootID() != tree.RootID() {
		t.Fatalf("root changed: %q -> %q", tree.RootID(), rebuilt.RootID())
	}
	want := tree.Rects()
	got := rebuilt.Rects()
	if len(got) != len(want) {
		t.Fatalf("leaf count changed: %d -> %d", len(want), len(got))
	}
	for id, rect := range want {
		if got[id] != rect {
			t.Fatalf("leaf %q bounds changed: %#v -> %#v", id, rect, got[id])
		}
	}
	if rebuilt.Leaf(first).ProcessID != "proc-1" {
		t.Fatalf("process binding lost in round trip")
	}
	checkTiling(t, rebuilt)
}

func TestRebuildRejectsBadSnapshots(t *testing.T) {
	cases := []struct {
		name  string
		specs []NodeSpec
	}{
		{name: "empty", specs: nil},
		{name: "no root", specs: []NodeSpec{{ID: "a", ParentID: "ghost", Bounds: FullGrid()}}},
		{name: "partial root", specs: []NodeSpec{{ID: "a", Bounds: Rect{W: 50, H: 100}}}},
		{name: "single child", specs: []NodeSpec{
			{ID: "a", Bounds: FullGrid()},
			{ID: "b", ParentID: "a", Position: 0, Bounds: Rect{W: 50, H: 100}},
		}},
		{name: "empty child bounds", specs: []NodeSpec{
			{ID: "a", Bounds: FullGrid()},
			{ID: "b", ParentID: "a", Position: 0, Bounds: Rect{W: 0, H: 100}},
			{ID: "c", ParentID: "a", Position: 1, Bounds: Rect{W: 100, H: 100}},
		}},
		{name: "duplicate process", specs: []NodeSpec{
			{ID: "a", Bounds: FullGrid()},
			{ID: "b", ParentID: "a", Position: 0, Bounds: Rect{W: 50, H: 100}, ProcessID: "p"},
			{ID: "c", ParentID: "a", Position: 1, Bounds: Rect{X: 50, W: 50, H: 100}, ProcessID: "p"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Rebuild(tc.specs); err == nil {
				t.Fatalf("Rebuild() accepted invalid snapshot")
			}
		})
	}
}

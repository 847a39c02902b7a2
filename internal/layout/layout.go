package layout

import "errors"

// GridSize is the extent of the normalized layout grid on both axes.
// All pane bounds are integer rectangles inside [0,GridSize).
const GridSize = 100

var (
	// ErrRatio is returned when a split ratio falls outside [1,99].
	ErrRatio = errors.New("layout: split ratio must be between 1 and 99")
	// ErrLastLeaf is returned when closing the only remaining pane.
	ErrLastLeaf = errors.New("layout: cannot close the last pane")
	// ErrTooSmall is returned when a region is too thin to split.
	ErrTooSmall = errors.New("layout: region too small to split")
)

// Rect is a rectangle on the normalized layout grid.
type Rect struct {
	X int
	Y int
	W int
	H int
}

// FullGrid returns the rectangle covering the whole grid.
func FullGrid() Rect {
	return Rect{X: 0, Y: 0, W: GridSize, H: GridSize}
}

func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// SplitRect divides parent into two slices along one axis. A horizontal
// split divides the width, a vertical split the height. The first slice
// receives round(span*ratio/100); the rounding remainder goes to the
// second slice so the two spans always sum to the parent's span. Each
// slice keeps at least one cell, so a span thinner than two cells
// cannot be split; zero-span slices would later collapse to zero area
// when rescaled and punch holes in the tiling.
func SplitRect(parent Rect, horizontal bool, ratio int) (Rect, Rect, error) {
	if ratio < 1 || ratio > 99 {
		return Rect{}, Rect{}, ErrRatio
	}
	if horizontal {
		first, err := splitSpan(parent.W, ratio)
		if err != nil {
			return Rect{}, Rect{}, err
		}
		a := Rect{X: parent.X, Y: parent.Y, W: first, H: parent.H}
		b := Rect{X: parent.X + first, Y: parent.Y, W: parent.W - first, H: parent.H}
		return a, b, nil
	}
	first, err := splitSpan(parent.H, ratio)
	if err != nil {
		return Rect{}, Rect{}, err
	}
	a := Rect{X: parent.X, Y: parent.Y, W: parent.W, H: first}
	b := Rect{X: parent.X, Y: parent.Y + first, W: parent.W, H: parent.H - first}
	return a, b, nil
}

// splitSpan returns the first slice's share of span, clamped so both
// slices keep at least one cell.
func splitSpan(span, ratio int) (int, error) {
	if span < 2 {
		return 0, ErrTooSmall
	}
	first := (span*ratio + 50) / 100
	if first < 1 {
		first = 1
	}
	if first > span-1 {
		first = span - 1
	}
	return first, nil
}

// mapRect translates r from the coordinate space of from into to. Edges
// are mapped independently so rectangles that tile from still tile to.
func mapRect(r, from, to Rect) Rect {
	left := mapEdge(r.X, from.X, from.W, to.X, to.W)
	right := mapEdge(r.X+r.W, from.X, from.W, to.X, to.W)
	top := mapEdge(r.Y, from.Y, from.H, to.Y, to.H)
	bottom := mapEdge(r.Y+r.H, from.Y, from.H, to.Y, to.H)
	return Rect{X: left, Y: top, W: right - left, H: bottom - top}
}

func mapEdge(pos, fromStart, fromSpan, toStart, toSpan int) int {
	if fromSpan <= 0 {
		return toStart
	}
	return toStart + ((pos-fromStart)*toSpan+fromSpan/2)/fromSpan
}

// Package grid quantizes positions and resize rectangles to a fixed grid.
package grid

import (
	"math"

	"github.com/planeboard/engine/internal/geo"
	"github.com/planeboard/engine/pkg/core"
)

// DefaultUnit is the grid spacing used when none is configured.
const DefaultUnit = 20.0

// Handle names the resize handle being dragged. HandleNone lets the snapper
// infer moving edges by comparing the original and proposed rectangles.
type Handle string

const (
	HandleNone        Handle = ""
	HandleTopLeft     Handle = "top-left"
	HandleTop         Handle = "top-center"
	HandleTopRight    Handle = "top-right"
	HandleRight       Handle = "middle-right"
	HandleBottomRight Handle = "bottom-right"
	HandleBottom      Handle = "bottom-center"
	HandleBottomLeft  Handle = "bottom-left"
	HandleLeft        Handle = "middle-left"
)

// edges marks which sides of a rectangle move during a resize.
type edges struct {
	left, top, right, bottom bool
}

func (h Handle) edges() edges {
	switch h {
	case HandleTopLeft:
		return edges{left: true, top: true}
	case HandleTop:
		return edges{top: true}
	case HandleTopRight:
		return edges{right: true, top: true}
	case HandleRight:
		return edges{right: true}
	case HandleBottomRight:
		return edges{right: true, bottom: true}
	case HandleBottom:
		return edges{bottom: true}
	case HandleBottomLeft:
		return edges{left: true, bottom: true}
	case HandleLeft:
		return edges{left: true}
	}
	return edges{}
}

// Snapper rounds coordinates to multiples of Unit.
type Snapper struct {
	Unit float64
}

// New returns a Snapper. unit <= 0 selects DefaultUnit.
func New(unit float64) Snapper {
	if unit <= 0 || !geo.Finite(unit) {
		unit = DefaultUnit
	}
	return Snapper{Unit: unit}
}

func (s Snapper) valid() bool {
	return s.Unit > 0 && geo.Finite(s.Unit)
}

// SnapValue rounds v to the nearest grid line, halves rounding up.
// Non-finite input is returned unchanged.
func (s Snapper) SnapValue(v float64) float64 {
	if !s.valid() || !geo.Finite(v) {
		return v
	}
	return math.Floor(v/s.Unit+0.5) * s.Unit
}

// SnapPoint snaps both coordinates. If either is non-finite the point is
// returned unmodified.
func (s Snapper) SnapPoint(x, y float64) (float64, float64) {
	if !geo.Finite(x, y) {
		return x, y
	}
	return s.SnapValue(x), s.SnapValue(y)
}

// SnapResizeRect snaps the edges that moved between original and proposed.
// Edges that did not move stay exactly where they were.
func (s Snapper) SnapResizeRect(original, proposed geo.Rect) geo.Rect {
	return s.SnapResize(original, proposed, HandleNone)
}

// SnapResize snaps the moving edges of proposed. With HandleNone the moving
// edges are inferred from which sides differ from original.
func (s Snapper) SnapResize(original, proposed geo.Rect, h Handle) geo.Rect {
	if !s.valid() || !original.IsFinite() || !proposed.IsFinite() {
		return proposed
	}

	e := h.edges()
	if h == HandleNone {
		e = edges{
			left:   !nearlyEqual(proposed.X, original.X),
			top:    !nearlyEqual(proposed.Y, original.Y),
			right:  !nearlyEqual(proposed.Right(), original.Right()),
			bottom: !nearlyEqual(proposed.Bottom(), original.Bottom()),
		}
		// A pure move changes both opposite edges by the same amount; treat
		// the leading edge as moving so the size is preserved.
		if e.left && e.right && nearlyEqual(proposed.Width, original.Width) {
			e.right = false
		}
		if e.top && e.bottom && nearlyEqual(proposed.Height, original.Height) {
			e.bottom = false
		}
	}

	left, top := proposed.X, proposed.Y
	right, bottom := proposed.Right(), proposed.Bottom()

	if e.left {
		left = s.SnapValue(left)
		if right-left < core.MinSize {
			left = math.Floor((right-core.MinSize)/s.Unit) * s.Unit
		}
	}
	if e.right {
		right = s.SnapValue(right)
		if right-left < core.MinSize {
			right = math.Ceil((left+core.MinSize)/s.Unit) * s.Unit
		}
	}
	if e.top {
		top = s.SnapValue(top)
		if bottom-top < core.MinSize {
			top = math.Floor((bottom-core.MinSize)/s.Unit) * s.Unit
		}
	}
	if e.bottom {
		bottom = s.SnapValue(bottom)
		if bottom-top < core.MinSize {
			bottom = math.Ceil((top+core.MinSize)/s.Unit) * s.Unit
		}
	}

	// Moves keep their size: the trailing edge follows the snapped leading edge.
	if h == HandleNone {
		if e.left && !e.right && nearlyEqual(proposed.Width, original.Width) && !nearlyEqual(proposed.X, original.X) {
			right = left + proposed.Width
		}
		if e.top && !e.bottom && nearlyEqual(proposed.Height, original.Height) && !nearlyEqual(proposed.Y, original.Y) {
			bottom = top + proposed.Height
		}
	}

	return geo.Rect{X: left, Y: top, Width: right - left, Height: bottom - top}
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

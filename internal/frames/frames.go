// Package frames decides which frame an object belongs to and how a frame
// grows to cover a dropped object.
package frames

import (
	"math"

	"github.com/planeboard/engine/internal/geo"
	"github.com/planeboard/engine/pkg/core"
)

// Defaults for frame geometry.
const (
	DefaultTitleBarHeight = 32.0
	DefaultPadding        = 20.0
	DefaultPredominance   = 0.5
)

// Resolver holds the frame geometry constants.
type Resolver struct {
	TitleBarHeight float64
	Padding        float64
	// Predominance is the share of an object's area that must lie inside a
	// content rect for the object to count as contained. Strictly greater.
	Predominance float64
}

// NewResolver returns a resolver; negative values select defaults.
func NewResolver(titleBar, padding, predominance float64) *Resolver {
	if titleBar < 0 {
		titleBar = DefaultTitleBarHeight
	}
	if padding < 0 {
		padding = DefaultPadding
	}
	if predominance <= 0 || predominance >= 1 {
		predominance = DefaultPredominance
	}
	return &Resolver{TitleBarHeight: titleBar, Padding: padding, Predominance: predominance}
}

// ContentRect is the frame bounds minus the title bar strip on top.
func (r *Resolver) ContentRect(frame core.BoardObject) geo.Rect {
	h := math.Max(frame.Height-r.TitleBarHeight, 0)
	return geo.NewRect(frame.X, frame.Y+r.TitleBarHeight, frame.Width, h)
}

// Contains reports whether box lies fully or predominantly inside frame's content rect.
func (r *Resolver) Contains(frame core.BoardObject, box geo.Rect) bool {
	content := r.ContentRect(frame)
	if content.ContainsRect(box) {
		return true
	}
	area := box.Area()
	if area == 0 {
		return content.ContainsPoint(box.CenterX(), box.CenterY())
	}
	return content.Intersect(box).Area() > r.Predominance*area
}

// Resolve returns the id of the most specific frame containing obj, or ""
// when no frame qualifies. Frames and connectors never resolve to a parent.
// Ties on area go to the earlier frame.
func (r *Resolver) Resolve(obj core.BoardObject, frames []core.BoardObject) string {
	if !obj.Kind.ParticipatesInContainment() {
		return ""
	}
	box := geo.NewRect(obj.Bounds())
	if !box.IsFinite() {
		return ""
	}

	best := ""
	bestArea := math.Inf(1)
	for _, f := range frames {
		if !f.Kind.IsFrame() || f.ID == obj.ID {
			continue
		}
		if !r.Contains(f, box) {
			continue
		}
		a := geo.NewRect(f.Bounds()).Area()
		if a < bestArea {
			best, bestArea = f.ID, a
		}
	}
	return best
}

// Expand returns the frame bounds grown to cover box plus padding on each
// side that overflowed. The title bar keeps its height above the content.
// The frame never shrinks; ok is false when box is already fully contained.
func (r *Resolver) Expand(frame core.BoardObject, box geo.Rect) (geo.Rect, bool) {
	bounds := geo.NewRect(frame.Bounds())
	content := r.ContentRect(frame)
	if !box.IsFinite() || content.ContainsRect(box) {
		return bounds, false
	}

	left, right := bounds.X, bounds.Right()
	contentTop, bottom := content.Y, bounds.Bottom()

	if box.X < left {
		left = box.X - r.Padding
	}
	if box.Right() > right {
		right = box.Right() + r.Padding
	}
	if box.Y < contentTop {
		contentTop = box.Y - r.Padding
	}
	if box.Bottom() > bottom {
		bottom = box.Bottom() + r.Padding
	}

	top := contentTop - r.TitleBarHeight
	out := geo.NewRect(left, top, right-left, bottom-top)
	return out, true
}

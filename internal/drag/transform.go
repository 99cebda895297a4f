package drag

import (
	"math"

	"github.com/planeboard/engine/internal/batch"
	"github.com/planeboard/engine/internal/geo"
	"github.com/planeboard/engine/internal/grid"
	"github.com/planeboard/engine/pkg/core"
)

// TransformInput is what the rendering surface reports when a resize or
// rotate gesture ends. X and Y are the node position: the top-left corner
// for every kind except circular ones, where they are the center.
type TransformInput struct {
	X, Y           float64
	ScaleX, ScaleY float64
	Rotation       float64
	Handle         grid.Handle
}

// TransformResult is the final attribute set of a transformed object:
// either RectAttrs or PointAttrs.
type TransformResult interface {
	Patch() core.Patch
	isTransformResult()
}

// RectAttrs are the final attributes of rectangle-like, circular and
// composite kinds.
type RectAttrs struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
}

// Patch converts the attributes into a full geometry patch.
func (a RectAttrs) Patch() core.Patch {
	var p core.Patch
	p.SetPosition(a.X, a.Y)
	p.SetSize(a.Width, a.Height)
	p.Rotation = core.Float64Ptr(a.Rotation)
	return p
}

func (RectAttrs) isTransformResult() {}

// PointAttrs are the final attributes of lines and connectors. Width and
// Height are derived from the point bounding box.
type PointAttrs struct {
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Points   []float64 `json:"points"`
	Rotation float64   `json:"rotation"`
	Width    float64   `json:"width"`
	Height   float64   `json:"height"`
}

// Patch converts the attributes into a full geometry patch.
func (a PointAttrs) Patch() core.Patch {
	var p core.Patch
	p.SetPosition(a.X, a.Y)
	p.SetSize(a.Width, a.Height)
	p.Points = append([]float64(nil), a.Points...)
	p.Rotation = core.Float64Ptr(a.Rotation)
	return p
}

func (PointAttrs) isTransformResult() {}

// TransformEnd computes the final attributes of a resized or rotated object
// and the update to persist. It is a gesture of its own and fails while a
// drag is active.
func (c *Controller) TransformEnd(id string, in TransformInput) (TransformResult, core.Update, error) {
	if c.active != nil {
		return nil, core.Update{}, ErrGestureActive
	}
	obj, ok := c.board.Source().Get(id)
	if !ok {
		return nil, core.Update{}, ErrUnknownObject
	}
	if !geo.Finite(in.X, in.Y, in.ScaleX, in.ScaleY, in.Rotation) {
		return nil, core.Update{}, ErrNonFinite
	}

	var res TransformResult
	switch {
	case obj.Kind.IsPointBased():
		res = c.transformPoints(obj, in)
	case obj.Kind.IsCircular():
		res = c.transformCircle(obj, in)
	default:
		res = c.transformRect(obj, in)
	}

	patch := batch.Diff(obj, res.Patch())
	c.log.Debug("transform committed", "id", id, "kind", string(obj.Kind), "changed", !patch.IsEmpty())
	return res, core.Update{ObjectID: id, Patch: patch}, nil
}

// transformRect handles rectangle-like and composite kinds. Composite kinds
// size from their primary content rectangle, which is the stored box;
// decorative parts never contribute.
func (c *Controller) transformRect(obj core.BoardObject, in TransformInput) RectAttrs {
	w := math.Max(core.MinSize, obj.Width*math.Abs(in.ScaleX))
	h := math.Max(core.MinSize, obj.Height*math.Abs(in.ScaleY))
	r := geo.NewRect(in.X, in.Y, w, h)

	if c.cfg.GridEnabled {
		r = c.snapper.SnapResize(geo.NewRect(obj.Bounds()), r, in.Handle)
		r.Width = math.Max(core.MinSize, r.Width)
		r.Height = math.Max(core.MinSize, r.Height)
	}
	return RectAttrs{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height, Rotation: normalizeAngle(in.Rotation)}
}

// transformCircle derives the box from the center and scaled radii.
func (c *Controller) transformCircle(obj core.BoardObject, in TransformInput) RectAttrs {
	rx := math.Max(core.MinRadius, obj.Width/2*math.Abs(in.ScaleX))
	ry := math.Max(core.MinRadius, obj.Height/2*math.Abs(in.ScaleY))
	r := geo.NewRect(in.X-rx, in.Y-ry, 2*rx, 2*ry)

	if c.cfg.GridEnabled {
		r = c.snapper.SnapResize(geo.NewRect(obj.Bounds()), r, in.Handle)
		r.Width = math.Max(2*core.MinRadius, r.Width)
		r.Height = math.Max(2*core.MinRadius, r.Height)
	}
	return RectAttrs{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height, Rotation: normalizeAngle(in.Rotation)}
}

// transformPoints scales the point list per axis. Position and rotation are
// kept apart from the points; under grid-snap only the position snaps.
func (c *Controller) transformPoints(obj core.BoardObject, in TransformInput) PointAttrs {
	sx, sy := math.Abs(in.ScaleX), math.Abs(in.ScaleY)
	if b, ok := geo.PointsBounds(obj.Points); ok {
		if b.Width > 0 && b.Width*sx < core.MinSize {
			sx = core.MinSize / b.Width
		}
		if b.Height > 0 && b.Height*sy < core.MinSize {
			sy = core.MinSize / b.Height
		}
	}
	points := geo.ScalePoints(obj.Points, sx, sy)

	x, y := in.X, in.Y
	if c.cfg.GridEnabled {
		x, y = c.snapper.SnapPoint(x, y)
	}

	w, h := math.Max(core.MinSize, obj.Width*sx), math.Max(core.MinSize, obj.Height*sy)
	if b, ok := geo.PointsBounds(points); ok {
		// a flat line still reports a non-degenerate box
		w, h = math.Max(core.MinSize, b.Width), math.Max(core.MinSize, b.Height)
	}
	return PointAttrs{X: x, Y: y, Points: points, Rotation: normalizeAngle(in.Rotation), Width: w, Height: h}
}

func normalizeAngle(deg float64) float64 {
	a := math.Mod(deg, 360)
	if a < 0 {
		a += 360
	}
	return a
}
